// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

import "fmt"

// SimTarget is a bit-level simulated Cortex-M debug port and flash array.
// It implements PinInterface directly, standing in for both the pin
// driver and the target wired to it, so the rest of this module can be
// exercised without real hardware (spec.md §9's testability note).
//
// It tracks the wire protocol phase-by-phase: each SWD transaction is an
// ordered sequence of bit-role phases (request, turnaround, ack,
// turnaround, payload, parity, idle), advanced one clock edge at a time
// by SetClk transitions exactly as the real wire would drive it.
type SimTarget struct {
	IDCODE uint32

	mem map[uint32]byte
	tar uint32

	selectReg uint32
	ctrlstat  uint32
	abort     uint32
	rdbuff    uint32
	dhcsr     uint32

	flashRegs FlashRegisters
	flashCR   uint32
	flashSR   uint32
	flashLock bool
	keySeq    int

	family McuFamily

	// wire state
	ioDir   Direction
	ioLevel Level
	clk     Level
	rst     Level

	phase      simPhase
	bitIdx     int
	shiftIn    uint32
	request    byte
	isAPRead   bool
	isWrite    bool
	ack        Ack
	pendingRd  uint32
	haveHalted bool

	// InjectFault, when set, forces the next transaction's ACK to FAULT.
	InjectFault bool

	// InjectWaitCount, when nonzero, forces that many successive request
	// decodes to ACK WAIT before falling through to the normal OK/FAULT
	// handling, letting a test drive transact's retry loop deterministically.
	InjectWaitCount int
}

type simPhase int

const (
	phaseIdle simPhase = iota
	phaseReqBits
	phaseTrnToTarget
	phaseAckBits
	phaseTrnToHost
	phasePayload
	phaseParity
	phaseTrnAfterPayload
)

// NewSimTarget creates a simulated target of the given family with a
// flash array of size flashSize bytes starting at flashBase.
func NewSimTarget(family McuFamily, flashBase, flashSize uint32) *SimTarget {
	layout, err := flashLayoutFor(family)
	if err != nil {
		layout = FlashLayout{FlashBase: flashBase, FlashSize: flashSize}
	}

	idcode := uint32(0)
	for code, f := range idcodeFamilyTable {
		if f == family {
			idcode = code
		}
	}

	t := &SimTarget{
		IDCODE:    idcode,
		mem:       make(map[uint32]byte),
		family:    family,
		flashRegs: layout.Regs,
		flashLock: true,
		ioDir:     DirInput,
	}
	return t
}

// --- PinInterface ---

func (t *SimTarget) SetClk(l Level) {
	falling := t.clk == High && l == Low
	rising := t.clk == Low && l == High
	t.clk = l

	if falling {
		return
	}
	if rising {
		t.onRisingEdge()
	}
}

func (t *SimTarget) SetIO(l Level) {
	t.ioLevel = l
}

func (t *SimTarget) ReadIO() Level {
	return t.ioLevel
}

func (t *SimTarget) SetIODir(d Direction) {
	t.ioDir = d
}

func (t *SimTarget) SetRst(l Level) {
	t.rst = l
	if l == Low {
		t.haveHalted = false
	}
}

func (t *SimTarget) Tick() {}

// onRisingEdge advances the simulated target by one sampled bit, driving
// or consuming t.ioLevel depending on the current phase, mirroring the
// host's own WriteBit/ReadBit pairing one edge at a time.
func (t *SimTarget) onRisingEdge() {
	switch t.phase {
	case phaseIdle:
		// The High sampled here is the request's start bit, bit 0 of the
		// request byte; the remaining seven bits follow in phaseReqBits.
		if t.ioDir == DirOutput && t.ioLevel == High {
			t.phase = phaseReqBits
			t.bitIdx = 1
			t.shiftIn = 1
		}
		return

	case phaseReqBits:
		if t.ioLevel == High {
			t.shiftIn |= 1 << t.bitIdx
		}
		t.bitIdx++
		if t.bitIdx == 8 {
			t.request = byte(t.shiftIn)
			// A line reset drives 50+ high cycles before the trailer
			// byte; every 8-bit window sampled during that run fails
			// validation here and the target falls back to phaseIdle,
			// resynchronizing on the next genuine request byte rather
			// than acting on garbage framing.
			if t.decodeRequest() {
				t.phase = phaseTrnToTarget
			} else {
				t.phase = phaseIdle
			}
		}

	case phaseTrnToTarget:
		// The turnaround cycle itself carries no ACK bit; LineEngine
		// discards its sample. ACK bit 0 is only driven starting on
		// the first real phaseAckBits edge below.
		t.phase = phaseAckBits
		t.bitIdx = -1

	case phaseAckBits:
		t.bitIdx++
		switch t.bitIdx {
		case 0:
			t.ioLevel = Level(t.ack&1 != 0)
		case 1:
			t.ioLevel = Level(t.ack&2 != 0)
		case 2:
			t.ioLevel = Level(t.ack&4 != 0)
			if t.ack != AckOK {
				t.phase = phaseIdle
				return
			}
			t.phase = phaseTrnToHost
		}

	case phaseTrnToHost:
		t.phase = phasePayload
		t.bitIdx = 0
		t.shiftIn = 0
		if !t.isWrite {
			t.ioLevel = Level(t.pendingRd&1 != 0)
		}

	case phasePayload:
		if t.isWrite {
			if t.ioLevel == High {
				t.shiftIn |= 1 << t.bitIdx
			}
		}
		t.bitIdx++
		if !t.isWrite && t.bitIdx < 32 {
			t.ioLevel = Level((t.pendingRd>>t.bitIdx)&1 != 0)
		}
		if t.bitIdx == 32 {
			t.phase = phaseParity
			if !t.isWrite {
				t.ioLevel = Level(evenParity(t.pendingRd) != 0)
			}
		}

	case phaseParity:
		if t.isWrite {
			t.commitWrite(t.shiftIn)
		}
		t.phase = phaseIdle
		// A read leaves the line at its last driven bit. The host's
		// turnaround-to-output cycle samples this edge before it
		// drives anything of its own, so a lingering High here would
		// be misread by phaseIdle as the start of a new request.
		t.ioLevel = Low
	}
}

// decodeRequest classifies the just-shifted request byte and prepares the
// ack and, for a read, the value that will be shifted out. It returns
// false for any byte that does not carry valid SWD request framing
// (start/stop/park bits, parity over APnDP/RnW/A[3:2]) — the shape every
// 8-bit window of a line-reset's high-cycle run takes on.
func (t *SimTarget) decodeRequest() bool {
	start := t.request&1 != 0
	apndp := t.request&(1<<1) != 0
	rnw := t.request&(1<<2) != 0
	a2 := t.request & (1 << 3) != 0
	a3 := t.request & (1 << 4) != 0
	parity := t.request&(1<<5) != 0
	stop := t.request&(1<<6) != 0
	park := t.request&(1<<7) != 0

	var bits byte
	if apndp {
		bits |= 1
	}
	if rnw {
		bits |= 2
	}
	if a2 {
		bits |= 4
	}
	if a3 {
		bits |= 8
	}
	wantParity := evenParity(uint32(bits)) != 0

	if !start || stop || !park || parity != wantParity {
		return false
	}

	addr := byte(0)
	if a2 {
		addr |= 1 << 2
	}
	if a3 {
		addr |= 1 << 3
	}

	t.isWrite = !rnw
	t.isAPRead = apndp && rnw

	if t.InjectWaitCount > 0 {
		t.InjectWaitCount--
		t.ack = AckWait
		return true
	}

	if t.InjectFault {
		t.ack = AckFault
		t.InjectFault = false
		return true
	}
	t.ack = AckOK

	if rnw {
		t.pendingRd = t.readRegister(apndp, addr)
	}
	return true
}

func (t *SimTarget) commitWrite(value uint32) {
	apndp := t.request&(1<<1) != 0
	addr := byte(0)
	if t.request&(1<<3) != 0 {
		addr |= 1 << 2
	}
	if t.request&(1<<4) != 0 {
		addr |= 1 << 3
	}
	t.writeRegister(apndp, addr, value)
}

func (t *SimTarget) readRegister(apndp bool, addr byte) uint32 {
	if !apndp {
		switch addr {
		case dpIDCODE:
			return t.IDCODE
		case dpCTRLSTAT:
			return t.ctrlstat
		case dpRDBUFF:
			return t.rdbuff
		}
		return 0
	}

	bank := t.selectReg & apBankMask
	switch bank | uint32(addr) {
	case apIDR:
		t.rdbuff = 0x04770031
	case apDRW:
		t.rdbuff = t.readMemWord(t.tarReg())
		t.setTarReg(t.tar&^(memAPWindow-1) | (t.tar+4)&(memAPWindow-1))
	case apCSW:
		t.rdbuff = 0
	}
	return t.rdbuff
}

func (t *SimTarget) writeRegister(apndp bool, addr byte, value uint32) {
	if !apndp {
		switch addr {
		case dpABORT:
			t.abort = value
		case dpCTRLSTAT:
			t.ctrlstat = value | ctrlstatCDBGPWRUPACK | ctrlstatCSYSPWRUPACK
		case dpSELECT:
			t.selectReg = value
		}
		return
	}

	switch uint32(addr) {
	case apTAR:
		t.setTarReg(value)
	case apDRW:
		t.writeMemWord(t.tarReg(), value)
		t.setTarReg(t.tar&^(memAPWindow-1) | (t.tar+4)&(memAPWindow-1))
	case apCSW:
		// accepted, not decoded: every DRW access is modeled as 32-bit
		// with single auto-increment, wrapping inside the TAR window
	}
}

func (t *SimTarget) tarReg() uint32     { return t.tar }
func (t *SimTarget) setTarReg(v uint32) { t.tar = v }

// readMemWord resolves addr against either the core debug register file
// or the flash controller's register window, falling back to the
// flash/RAM byte map.
func (t *SimTarget) readMemWord(addr uint32) uint32 {
	switch addr {
	case regDHCSR:
		return t.dhcsr
	case t.flashRegs.SR:
		return t.flashSR
	case t.flashRegs.CR:
		return t.flashCR
	}
	var b [4]byte
	for i := 0; i < 4; i++ {
		b[i] = t.mem[addr+uint32(i)]
	}
	return leToU32(b[:])
}

func (t *SimTarget) writeMemWord(addr uint32, value uint32) {
	switch addr {
	case regDHCSR:
		t.dhcsr = value
		if value == dhcsrHaltAndDebug {
			t.haveHalted = true
		}
		return
	case t.flashRegs.KEYR:
		t.handleKey(value)
		return
	case t.flashRegs.CR:
		t.handleCR(value)
		return
	case t.flashRegs.AR:
		t.eraseBlock(value)
		return
	}
	var b [4]byte
	u32ToLE(b[:], value)
	for i := 0; i < 4; i++ {
		t.mem[addr+uint32(i)] = b[i]
	}
}

func (t *SimTarget) handleKey(value uint32) {
	if t.keySeq == 0 && value == flashKey1 {
		t.keySeq = 1
		return
	}
	if t.keySeq == 1 && value == flashKey2 {
		t.flashLock = false
		t.keySeq = 0
		return
	}
	t.keySeq = 0
}

func (t *SimTarget) handleCR(value uint32) {
	if value&crLOCK != 0 {
		t.flashLock = true
	}
	if value&crMER != 0 && value&crSTRT != 0 {
		for k := range t.mem {
			delete(t.mem, k)
		}
	}
	// STM32F4 silicon raises PGPERR if CR.PG is set without CR.PSIZE
	// selecting the write width the driver is about to use; F1/F0 have
	// no PSIZE field, so this only fires for CortexM4.
	if t.family == FamilyCortexM4 && value&crPG != 0 && value&crPSIZEMask != crPSIZEWord {
		t.flashSR |= srPGPERR
	}
	t.flashCR = value
	t.flashSR &^= srBSY
}

func (t *SimTarget) eraseBlock(addr uint32) {
	for i := uint32(0); i < 1024; i++ {
		delete(t.mem, addr+i)
	}
}

// ReadFlash returns a snapshot of simulated memory for test assertions;
// unwritten bytes read as 0xFF, the erase-state value.
func (t *SimTarget) ReadFlash(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		if b, ok := t.mem[addr+uint32(i)]; ok {
			out[i] = b
		} else {
			out[i] = 0xFF
		}
	}
	return out
}

func (t *SimTarget) String() string {
	return fmt.Sprintf("SimTarget(family=%s, idcode=0x%08X)", t.family, t.IDCODE)
}
