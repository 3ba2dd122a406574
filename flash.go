// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

import (
	"fmt"
	"time"
)

// FlashState is the controller's lifecycle state, per spec.md §4.E.
type FlashState int

const (
	StateLocked FlashState = iota
	StateUnlocked
	StateErasing
	StateProgramming
	StateFailed
)

func (s FlashState) String() string {
	switch s {
	case StateLocked:
		return "Locked"
	case StateUnlocked:
		return "Unlocked"
	case StateErasing:
		return "Erasing"
	case StateProgramming:
		return "Programming"
	default:
		return "Failed"
	}
}

const (
	busyPollInterval = 1 * time.Millisecond
	eraseTimeout     = 20 * time.Second
	programTimeout   = 100 * time.Millisecond
)

// FlashController drives a family's unlock/erase/program/lock state
// machine over the target memory bus (component E).
type FlashController struct {
	mem    *MemAP
	layout FlashLayout
	state  FlashState
}

func NewFlashController(mem *MemAP, family McuFamily) (*FlashController, error) {
	layout, err := flashLayoutFor(family)
	if err != nil {
		return nil, err
	}
	return &FlashController{mem: mem, layout: layout, state: StateLocked}, nil
}

func (f *FlashController) fail(op string, err error) error {
	f.state = StateFailed
	return wrapErr(op, KindProgramFail, err)
}

// Unlock writes the two-key unlock sequence to KEYR and confirms CR.LOCK
// clears.
func (f *FlashController) Unlock() error {
	if f.state != StateLocked {
		return nil
	}
	if err := f.mem.WriteU32(f.layout.Regs.KEYR, flashKey1); err != nil {
		return f.fail("flash.Unlock", err)
	}
	if err := f.mem.WriteU32(f.layout.Regs.KEYR, flashKey2); err != nil {
		return f.fail("flash.Unlock", err)
	}
	cr, err := f.mem.ReadU32(f.layout.Regs.CR)
	if err != nil {
		return f.fail("flash.Unlock", err)
	}
	if cr&crLOCK != 0 {
		return f.fail("flash.Unlock", fmt.Errorf("CR.LOCK still set after unlock sequence"))
	}
	f.state = StateUnlocked
	return nil
}

// EraseAll performs a full-chip mass erase, the default policy per
// spec.md §4.E.
func (f *FlashController) EraseAll() error {
	if f.state != StateUnlocked {
		return f.fail("flash.EraseAll", fmt.Errorf("erase requires Unlocked, have %s", f.state))
	}
	f.state = StateErasing
	if err := f.mem.WriteU32(f.layout.Regs.CR, crMER); err != nil {
		return f.fail("flash.EraseAll", err)
	}
	if err := f.mem.WriteU32(f.layout.Regs.CR, crMER|crSTRT); err != nil {
		return f.fail("flash.EraseAll", err)
	}
	if err := f.busyPoll(eraseTimeout); err != nil {
		return f.fail("flash.EraseAll", err)
	}
	if err := f.mem.WriteU32(f.layout.Regs.CR, 0); err != nil {
		return f.fail("flash.EraseAll", err)
	}
	f.state = StateUnlocked
	return nil
}

// ErasePage erases a single page containing addr; an alternative to
// EraseAll for families whose AR register supports it.
func (f *FlashController) ErasePage(addr uint32) error {
	if f.state != StateUnlocked {
		return f.fail("flash.ErasePage", fmt.Errorf("erase requires Unlocked, have %s", f.state))
	}
	if f.layout.Regs.AR == 0 {
		return f.fail("flash.ErasePage", fmt.Errorf("family has no AR register; use EraseAll"))
	}
	f.state = StateErasing
	if err := f.mem.WriteU32(f.layout.Regs.AR, addr); err != nil {
		return f.fail("flash.ErasePage", err)
	}
	if err := f.mem.WriteU32(f.layout.Regs.CR, crPER); err != nil {
		return f.fail("flash.ErasePage", err)
	}
	if err := f.mem.WriteU32(f.layout.Regs.CR, crPER|crSTRT); err != nil {
		return f.fail("flash.ErasePage", err)
	}
	if err := f.busyPoll(eraseTimeout); err != nil {
		return f.fail("flash.ErasePage", err)
	}
	if err := f.mem.WriteU32(f.layout.Regs.CR, 0); err != nil {
		return f.fail("flash.ErasePage", err)
	}
	f.state = StateUnlocked
	return nil
}

// Program is a WriteSink: it writes data at addr using the family's
// program granularity (half-word for F1/F0/Cortex-M0, word for F4 with
// CR.PSIZE set accordingly), a trailing partial unit padded with 0xFF.
func (f *FlashController) Program(addr uint32, data []byte) error {
	if f.state != StateUnlocked {
		return f.fail("flash.Program", fmt.Errorf("program requires Unlocked, have %s", f.state))
	}
	f.state = StateProgramming
	if err := f.mem.WriteU32(f.layout.Regs.CR, crPG|f.layout.ProgramCRBits); err != nil {
		return f.fail("flash.Program", err)
	}

	gran := int(f.layout.Granularity)
	for off := 0; off < len(data); off += gran {
		chunk := make([]byte, gran)
		copy(chunk, data[off:])
		for i := len(data) - off; i < gran && i >= 0; i++ {
			chunk[i] = 0xFF
		}

		if err := f.mem.Write(addr+uint32(off), chunk); err != nil {
			return f.fail("flash.Program", err)
		}
		if err := f.busyPoll(programTimeout); err != nil {
			return f.fail("flash.Program", err)
		}
	}

	if err := f.mem.WriteU32(f.layout.Regs.CR, 0); err != nil {
		return f.fail("flash.Program", err)
	}
	f.state = StateUnlocked
	return nil
}

// Verify is the second WriteSink: it re-reads [addr, addr+len(data)) and
// compares byte-for-byte; a mismatch is a hard failure.
func (f *FlashController) Verify(addr uint32, data []byte) error {
	readback := make([]byte, len(data))
	if err := f.mem.Read(addr, readback); err != nil {
		return wrapErr("flash.Verify", KindVerifyFail, err)
	}
	for i := range data {
		if data[i] != readback[i] {
			return wrapErr("flash.Verify", KindVerifyFail,
				fmt.Errorf("mismatch at 0x%08X: wrote 0x%02X, read 0x%02X", addr+uint32(i), data[i], readback[i]))
		}
	}
	return nil
}

// Lock sets CR.LOCK, returning the controller to the Locked state.
func (f *FlashController) Lock() error {
	if err := f.mem.WriteU32(f.layout.Regs.CR, crLOCK); err != nil {
		return wrapErr("flash.Lock", KindProgramFail, err)
	}
	f.state = StateLocked
	return nil
}

// busyPoll reads SR until BSY clears or timeout elapses, failing on any
// of the family's error bits.
func (f *FlashController) busyPoll(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		sr, err := f.mem.ReadU32(f.layout.Regs.SR)
		if err != nil {
			return err
		}
		if sr&srErrorMask != 0 {
			return fmt.Errorf("flash SR error bits set: 0x%02X", sr&srErrorMask)
		}
		if sr&srBSY == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("busy-poll timeout after %s", timeout)
		}
		time.Sleep(busyPollInterval)
	}
}
