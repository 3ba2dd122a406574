// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

import "testing"

func newTestFlashController(t *testing.T) (*FlashController, *SimTarget) {
	t.Helper()
	sim := NewSimTarget(FamilyCortexM4, 0x08000000, 512*1024)
	eng := NewLineEngine(sim)
	if _, err := eng.LineReset(); err != nil {
		t.Fatalf("LineReset: %v", err)
	}
	mem := NewMemAP(NewDebugPort(eng))
	fc, err := NewFlashController(mem, FamilyCortexM4)
	if err != nil {
		t.Fatalf("NewFlashController: %v", err)
	}
	return fc, sim
}

func TestFlashControllerUnlockEraseProgramVerifyLock(t *testing.T) {
	fc, sim := newTestFlashController(t)

	if fc.state != StateLocked {
		t.Fatalf("initial state = %v, want Locked", fc.state)
	}
	if err := fc.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if fc.state != StateUnlocked {
		t.Fatalf("state after Unlock = %v, want Unlocked", fc.state)
	}

	// A second Unlock while already unlocked is a no-op, not an error.
	if err := fc.Unlock(); err != nil {
		t.Fatalf("second Unlock: %v", err)
	}

	if err := fc.EraseAll(); err != nil {
		t.Fatalf("EraseAll: %v", err)
	}
	if fc.state != StateUnlocked {
		t.Fatalf("state after EraseAll = %v, want Unlocked", fc.state)
	}

	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := fc.Program(0x08000000, data); err != nil {
		t.Fatalf("Program: %v", err)
	}
	if fc.state != StateUnlocked {
		t.Fatalf("state after Program = %v, want Unlocked", fc.state)
	}

	if err := fc.Verify(0x08000000, data); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if err := fc.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if fc.state != StateLocked {
		t.Fatalf("state after Lock = %v, want Locked", fc.state)
	}

	if got := sim.ReadFlash(0x08000000, 4); string(got) != string(data) {
		t.Fatalf("flash contents = %X, want %X", got, data)
	}
}

func TestFlashControllerEraseRequiresUnlocked(t *testing.T) {
	fc, _ := newTestFlashController(t)
	if err := fc.EraseAll(); err == nil {
		t.Fatal("expected error erasing while still Locked")
	}
}

func TestFlashControllerProgramRequiresUnlocked(t *testing.T) {
	fc, _ := newTestFlashController(t)
	if err := fc.Program(0x08000000, []byte{0x01}); err == nil {
		t.Fatal("expected error programming while still Locked")
	}
}

func TestFlashControllerVerifyMismatch(t *testing.T) {
	fc, _ := newTestFlashController(t)
	if err := fc.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := fc.EraseAll(); err != nil {
		t.Fatalf("EraseAll: %v", err)
	}
	if err := fc.Program(0x08000000, []byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("Program: %v", err)
	}

	err := fc.Verify(0x08000000, []byte{0xAA, 0xCC})
	if err == nil {
		t.Fatal("expected verify mismatch error")
	}
	if KindOf(err) != KindVerifyFail {
		t.Fatalf("got Kind %v, want KindVerifyFail", KindOf(err))
	}
}

// TestFlashControllerProgramSetsPSIZE confirms Program's CR write selects
// CortexM4's 32-bit program width rather than leaving CR.PSIZE at its
// reset value of x8, which real STM32F4 silicon rejects as a programming
// parallelism error (SR.PGPERR) before it will act on CR.PG at all.
func TestFlashControllerProgramSetsPSIZE(t *testing.T) {
	fc, _ := newTestFlashController(t)
	if err := fc.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := fc.EraseAll(); err != nil {
		t.Fatalf("EraseAll: %v", err)
	}
	if err := fc.Program(0x08000000, []byte{0x01, 0x02, 0x03, 0x04}); err != nil {
		t.Fatalf("Program: %v", err)
	}
	sr, err := fc.mem.ReadU32(fc.layout.Regs.SR)
	if err != nil {
		t.Fatalf("ReadU32(SR): %v", err)
	}
	if sr&srPGPERR != 0 {
		t.Fatalf("SR.PGPERR set after Program: CR.PSIZE was not set to word width")
	}
}

// TestFlashSimFlagsMissingPSIZE confirms the simulated target itself
// enforces the PSIZE requirement: a CR.PG write that leaves CR.PSIZE at
// its reset value (byte) raises SR.PGPERR, the behavior a future
// regression in FlashController.Program would be caught by.
func TestFlashSimFlagsMissingPSIZE(t *testing.T) {
	fc, _ := newTestFlashController(t)
	if err := fc.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := fc.mem.WriteU32(fc.layout.Regs.CR, crPG); err != nil {
		t.Fatalf("WriteU32(CR): %v", err)
	}
	sr, err := fc.mem.ReadU32(fc.layout.Regs.SR)
	if err != nil {
		t.Fatalf("ReadU32(SR): %v", err)
	}
	if sr&srPGPERR == 0 {
		t.Fatal("expected SR.PGPERR after CR.PG write without CR.PSIZE=word")
	}
}

// TestFlashControllerProgramSubWordGranularity confirms an odd-length write
// shorter than the family's program granularity is padded with 0xFF rather
// than left partially written.
func TestFlashControllerProgramSubWordGranularity(t *testing.T) {
	fc, sim := newTestFlashController(t)
	if err := fc.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := fc.EraseAll(); err != nil {
		t.Fatalf("EraseAll: %v", err)
	}
	// CortexM4 granularity is 4 bytes; write 3.
	if err := fc.Program(0x08000000, []byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("Program: %v", err)
	}
	got := sim.ReadFlash(0x08000000, 4)
	want := []byte{0x01, 0x02, 0x03, 0xFF}
	if string(got) != string(want) {
		t.Fatalf("flash contents = %X, want %X", got, want)
	}
}
