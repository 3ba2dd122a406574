// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

import "errors"

// FlashRegisters is a per-family struct of absolute target addresses,
// loaded once after IDCODE identification and immutable thereafter.
type FlashRegisters struct {
	KEYR    uint32
	SR      uint32
	CR      uint32
	AR      uint32
	OPTKEYR uint32
}

// Granularity is the unit size, in bytes, a family's flash controller
// programs in a single CR.PG write.
type Granularity int

const (
	GranularityHalfWord Granularity = 2
	GranularityWord     Granularity = 4
)

// FlashLayout bundles everything the flash controller needs once a
// family has been identified: register addresses, program granularity,
// and the erasable page table.
type FlashLayout struct {
	Regs        FlashRegisters
	Granularity Granularity
	PageSize    uint32
	FlashBase   uint32
	FlashSize   uint32

	// ProgramCRBits is OR'd into CR alongside crPG before each program
	// write. STM32F1/F0 have no such bits (0); STM32F4 requires
	// CR.PSIZE set to the write width the driver is actually using.
	ProgramCRBits uint32
}

// CR/SR bit positions. STM32F1/F0 and STM32F4 share these bit meanings
// for the bits this driver uses; STM32F4 additionally has CR.PSIZE.
const (
	crPG         = 1 << 0
	crPER        = 1 << 1
	crMER        = 1 << 2
	crSTRT       = 1 << 6
	crLOCK       = 1 << 7
	crPSIZEShift = 8 // STM32F4 only: 00=x8 01=x16 10=x32 11=x64
	crPSIZEMask  = 3 << crPSIZEShift
	crPSIZEWord  = 2 << crPSIZEShift

	srBSY      = 1 << 0
	srPGERR    = 1 << 2
	srWRPRTERR = 1 << 4
	srEOP      = 1 << 5
	// F4-specific error bits, harmless to check on F1/F0 since those
	// bits are reserved (read as 0) there.
	srPGAERR = 1 << 3
	srPGPERR = 1 << 6

	srErrorMask = srPGERR | srWRPRTERR | srPGAERR | srPGPERR
)

const (
	flashKey1 uint32 = 0x45670123
	flashKey2 uint32 = 0xCDEF89AB
)

// flashLayoutFor returns the register map and program characteristics for
// a family, per spec.md §4.E. STM32F1 and STM32F0/Cortex-M0 share the
// classic FPEC register layout and half-word granularity; STM32F4/Cortex-M4
// uses the same register offsets but 32-bit granularity via CR.PSIZE. The
// source this spec distills from conflates M3 and M0/M4 layouts; this
// table keeps them distinct per family.
func flashLayoutFor(family McuFamily) (FlashLayout, error) {
	switch family {
	case FamilyCortexM3:
		return FlashLayout{
			Regs: FlashRegisters{
				KEYR: 0x40022004,
				SR:   0x4002200C,
				CR:   0x40022010,
				AR:   0x40022014,
			},
			Granularity: GranularityHalfWord,
			PageSize:    1024,
			FlashBase:   0x08000000,
			FlashSize:   128 * 1024,
		}, nil

	case FamilyCortexM0:
		return FlashLayout{
			Regs: FlashRegisters{
				KEYR: 0x40022004,
				SR:   0x4002200C,
				CR:   0x40022010,
				AR:   0x40022014,
			},
			Granularity: GranularityHalfWord,
			PageSize:    1024,
			FlashBase:   0x08000000,
			FlashSize:   64 * 1024,
		}, nil

	case FamilyCortexM4:
		return FlashLayout{
			Regs: FlashRegisters{
				KEYR: 0x40023C04,
				SR:   0x40023C0C,
				CR:   0x40023C10,
				AR:   0, // STM32F4 has no AR; sector erase uses CR.SNB
			},
			Granularity:   GranularityWord,
			PageSize:      16 * 1024,
			FlashBase:     0x08000000,
			FlashSize:     512 * 1024,
			ProgramCRBits: crPSIZEWord,
		}, nil

	default:
		return FlashLayout{}, wrapErr("flash.layout", KindTargetConnect, errUnknownFamily)
	}
}

var errUnknownFamily = errors.New("unknown MCU family")
