// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

import (
	"fmt"
)

// LineEngine drives the bit-banged SWD wire protocol: line reset, bit and
// byte framing, and the DP/AP register transaction sequence. It holds the
// only reference to the pin driver; no other component touches the wire.
type LineEngine struct {
	pins PinInterface
}

func NewLineEngine(pins PinInterface) *LineEngine {
	return &LineEngine{pins: pins}
}

// WriteBit drives one bit on IO. Outputs change on the falling edge.
func (e *LineEngine) WriteBit(b byte) {
	e.pins.SetClk(Low)
	e.pins.SetIO(Level(b&1 != 0))
	e.pins.Tick()
	e.pins.SetClk(High)
	e.pins.Tick()
}

// ReadBit samples one bit from IO. Inputs are sampled after the rising
// edge.
func (e *LineEngine) ReadBit() byte {
	e.pins.SetClk(Low)
	e.pins.Tick()
	e.pins.SetClk(High)
	var b byte
	if e.pins.ReadIO() {
		b = 1
	}
	e.pins.Tick()
	return b
}

// WriteByte drives 8 bits, LSB-first.
func (e *LineEngine) WriteByte(v byte) {
	for i := 0; i < 8; i++ {
		e.WriteBit((v >> i) & 1)
	}
}

// ReadByte samples 8 bits, LSB-first.
func (e *LineEngine) ReadByte() byte {
	var v byte
	for i := 0; i < 8; i++ {
		v |= e.ReadBit() << i
	}
	return v
}

func (e *LineEngine) idleCycle() {
	e.pins.SetIODir(DirOutput)
	e.WriteBit(0)
}

func (e *LineEngine) turnaround(to Direction) {
	e.pins.SetIODir(to)
	e.ReadBit()
}

// LineReset drives the legacy "two blocks of >=50 high clocks separated by
// a zero byte" reset convention (see DESIGN.md's Open Question decision),
// then reads DP.IDCODE to confirm the target answers.
func (e *LineEngine) LineReset() (uint32, error) {
	e.resetBlock()
	e.resetBlock()

	idcode, err := e.ReadDPRaw(dpIDCODE)
	if err != nil {
		return 0, wrapErr("swd.LineReset", KindTargetConnect, err)
	}
	if isNoTargetIDCODE(idcode) {
		return idcode, wrapErr("swd.LineReset", KindTargetConnect,
			fmt.Errorf("no target responded (IDCODE=0x%08X)", idcode))
	}
	return idcode, nil
}

func (e *LineEngine) resetBlock() {
	e.pins.SetIODir(DirOutput)
	for i := 0; i < lineResetMinClocks; i++ {
		e.WriteBit(1)
	}
	e.WriteByte(0x00)
}

// ReadDPRaw issues a bare DP register read without going through the
// typed DebugPort layer; used only by LineReset before a DebugPort exists.
func (e *LineEngine) ReadDPRaw(addr byte) (uint32, error) {
	req := buildRequest(false, true, addr)
	var word uint32
	ack, err := e.transact(req, &word, false)
	if err != nil {
		return 0, err
	}
	if ack != AckOK {
		return 0, fmt.Errorf("unexpected ack %03b reading DP raw", ack)
	}
	return word, nil
}

// buildRequest assembles the 8-bit SWD request byte. Transmitted LSB
// first as start(1), APnDP, RnW, A[2], A[3], parity, stop(0), park(1).
func buildRequest(apndp bool, rnw bool, addr byte) byte {
	a2 := (addr >> 2) & 1
	a3 := (addr >> 3) & 1
	var bits byte
	if apndp {
		bits |= 1
	}
	if rnw {
		bits |= 2
	}
	bits |= a2 << 2
	bits |= a3 << 3
	parity := evenParity(uint32(bits))

	var req byte
	req |= 1 << 0 // start
	if apndp {
		req |= 1 << 1
	}
	if rnw {
		req |= 1 << 2
	}
	req |= a2 << 3
	req |= a3 << 4
	req |= parity << 5
	// stop = 0 at bit 6
	req |= 1 << 7 // park
	return req
}

// transact runs one full SWD transaction: request, turnaround, ACK, and
// (on OK) the 33-bit payload. For writes, *word is driven onto the wire;
// for reads, *word receives the sampled value. WAIT is retried internally
// up to ackRetryLimit times with the same request, per spec. FAULT clears
// the sticky error bits via DP.ABORT and surfaces a fault error.
func (e *LineEngine) transact(request byte, word *uint32, isWrite bool) (Ack, error) {
	for attempt := 0; attempt < ackRetryLimit; attempt++ {
		e.pins.SetIODir(DirOutput)
		e.WriteByte(request)

		e.turnaround(DirInput)

		ack := Ack(e.ReadBit() | e.ReadBit()<<1 | e.ReadBit()<<2)

		switch ack {
		case AckOK:
			if isWrite {
				e.turnaround(DirOutput)
				e.writePayload(*word)
				e.idleCycle()
				return AckOK, nil
			}
			word32, parityOK := e.readPayload()
			e.turnaround(DirOutput)
			e.idleCycle()
			if !parityOK {
				return AckOK, fmt.Errorf("parity error on received word 0x%08X", word32)
			}
			*word = word32
			return AckOK, nil

		case AckWait:
			e.idleCycle()
			continue

		case AckFault:
			if request != buildRequest(false, false, dpABORT) {
				e.clearAbort()
			}
			e.idleCycle()
			return AckFault, fmt.Errorf("FAULT response to request 0x%02X", request)

		default:
			// Protocol error: no valid 3-bit pattern observed. Force a
			// line reset and surface a protocol error.
			e.resetBlock()
			e.resetBlock()
			return ack, fmt.Errorf("protocol error: invalid ack %03b", ack)
		}
	}
	return AckWait, fmt.Errorf("ACK WAIT retry limit (%d) exceeded for request 0x%02X", ackRetryLimit, request)
}

func (e *LineEngine) writePayload(word uint32) {
	for i := 0; i < 32; i++ {
		e.WriteBit(byte(word>>i) & 1)
	}
	e.WriteBit(evenParity(word))
}

func (e *LineEngine) readPayload() (uint32, bool) {
	var word uint32
	for i := 0; i < 32; i++ {
		word |= uint32(e.ReadBit()) << i
	}
	parity := e.ReadBit()
	return word, parity == evenParity(word)
}

func (e *LineEngine) clearAbort() {
	req := buildRequest(false, false, dpABORT)
	abort := uint32(abortSTKCMPCLR | abortSTKERRCLR | abortWDERRCLR | abortORUNERRCLR)
	// Best effort: a second FAULT here is not retried further.
	_, _ = e.transact(req, &abort, true)
}
