// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Phase names the programming session's observable stage, mirroring the
// status distinctions original_source/Src/led_control.c drives an LED
// pattern from; this repository has no LED hardware to drive, but keeps
// the signal itself available to log against.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseUnlocking
	PhaseErasing
	PhaseProgramming
	PhaseVerifying
	PhaseLocking
	PhaseResetting
	PhaseSuccess
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseUnlocking:
		return "unlocking"
	case PhaseErasing:
		return "erasing"
	case PhaseProgramming:
		return "programming"
	case PhaseVerifying:
		return "verifying"
	case PhaseLocking:
		return "locking"
	case PhaseResetting:
		return "resetting"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	default:
		return "idle"
	}
}

const (
	debugPowerUpTimeout = 1 * time.Second
	rstAssertDuration   = 10 * time.Millisecond
	rstReleaseSettle    = 100 * time.Millisecond
	writeUnitSize       = 512
)

// Session wires components B through H together for one programming run:
// connect, identify, unlock, erase, stream-program, stream-verify, lock,
// reset (spec.md §4.H).
type Session struct {
	pins   PinInterface
	eng    *LineEngine
	dap    *DebugPort
	mem    *MemAP
	flash  *FlashController
	family McuFamily

	phase Phase
}

func NewSession(pins PinInterface) *Session {
	eng := NewLineEngine(pins)
	return &Session{
		pins: pins,
		eng:  eng,
		dap:  NewDebugPort(eng),
	}
}

func (s *Session) setPhase(p Phase) {
	s.phase = p
	logger.WithFields(logrus.Fields{"session": "swdflash", "phase": p.String()}).Debug("phase transition")
}

// Program runs one complete session against the storage-backed HEX stream
// at path, returning the Kind to report over the command channel.
func (s *Session) Program(storage Storage, path string) Kind {
	if err := storage.Open(path); err != nil {
		s.setPhase(PhaseError)
		return KindOf(err)
	}
	defer storage.Close()

	kind := s.run(storage)
	if kind == kindSuccess {
		s.setPhase(PhaseSuccess)
	} else {
		s.setPhase(PhaseError)
	}
	return kind
}

func (s *Session) run(storage Storage) Kind {
	s.mem = NewMemAP(s.dap)

	// finish's Lock/reset are best-effort on every failure path per
	// spec.md §7/§4.H, including a failed connect; finish itself guards
	// Lock with s.flash != nil, so deferring it before connect is safe.
	defer s.finish()

	if err := s.connect(); err != nil {
		return KindOf(err)
	}

	fc, err := NewFlashController(s.mem, s.family)
	if err != nil {
		return KindOf(err)
	}
	s.flash = fc

	s.setPhase(PhaseUnlocking)
	if err := s.flash.Unlock(); err != nil {
		return KindProgramFail
	}

	s.setPhase(PhaseErasing)
	if err := s.flash.EraseAll(); err != nil {
		return KindProgramFail
	}

	s.setPhase(PhaseProgramming)
	reader := newStorageReader(storage)
	programAsm := NewAssembler(writeUnitSize)
	if err := programAsm.Process(reader, s.flash.Program); err != nil {
		return KindOf(err)
	}

	if err := storage.Rewind(); err != nil {
		return KindOf(err)
	}

	s.setPhase(PhaseVerifying)
	verifyReader := newStorageReader(storage)
	verifyAsm := NewAssembler(writeUnitSize)
	if err := verifyAsm.Process(verifyReader, s.flash.Verify); err != nil {
		return KindOf(err)
	}

	return kindSuccess
}

// connect performs steps 1-3 of spec.md §4.H: line reset and IDCODE
// identification, debug-power-up, and issuing the halt write to DHCSR.
// The halt write here is the one spec.md §9's Open Question calls out:
// the source leaves it incomplete, this session actually issues it.
func (s *Session) connect() error {
	s.setPhase(PhaseConnecting)

	idcode, err := s.eng.LineReset()
	if err != nil {
		return err
	}
	s.family = familyFromIDCODE(idcode)
	if s.family == FamilyUnknown {
		return wrapErr("session.connect", KindTargetConnect,
			fmt.Errorf("unrecognized IDCODE 0x%08X", idcode))
	}

	if err := s.powerUpDebug(); err != nil {
		return err
	}

	if err := s.haltCore(); err != nil {
		return err
	}
	return nil
}

func (s *Session) powerUpDebug() error {
	want := uint32(ctrlstatCDBGPWRUPREQ | ctrlstatCSYSPWRUPREQ)
	if err := s.dap.WriteDP(dpCTRLSTAT, want); err != nil {
		return wrapErr("session.powerUpDebug", KindTargetConnect, err)
	}

	deadline := time.Now().Add(debugPowerUpTimeout)
	for {
		stat, err := s.dap.ReadDP(dpCTRLSTAT)
		if err != nil {
			return wrapErr("session.powerUpDebug", KindTargetConnect, err)
		}
		if stat&(ctrlstatCDBGPWRUPACK|ctrlstatCSYSPWRUPACK) == (ctrlstatCDBGPWRUPACK | ctrlstatCSYSPWRUPACK) {
			return nil
		}
		if time.Now().After(deadline) {
			return wrapErr("session.powerUpDebug", KindTargetConnect, fmt.Errorf("debug power-up ack timeout"))
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *Session) haltCore() error {
	if err := s.mem.WriteU32(regDHCSR, dhcsrHaltAndDebug); err != nil {
		return wrapErr("session.haltCore", KindTargetConnect, err)
	}
	return nil
}

// finish is best-effort: lock and reset are attempted regardless of how
// the session ended, and their own errors are logged, not surfaced.
func (s *Session) finish() {
	s.setPhase(PhaseLocking)
	if s.flash != nil {
		if err := s.flash.Lock(); err != nil {
			logger.WithError(err).Warn("best-effort flash.Lock failed")
		}
	}

	s.setPhase(PhaseResetting)
	s.resetTarget()
}

// resetTarget asserts RST for at least 10 ms, then releases and allows
// the target time to boot before the session returns.
func (s *Session) resetTarget() {
	s.pins.SetRst(Low)
	time.Sleep(rstAssertDuration)
	s.pins.SetRst(High)
	time.Sleep(rstReleaseSettle)
}
