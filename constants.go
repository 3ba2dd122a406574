// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

// Ack is the 3-bit acknowledge field returned by a target after the
// request byte and turnaround cycle of an SWD transaction.
type Ack byte

const (
	AckOK    Ack = 0b001
	AckWait  Ack = 0b010
	AckFault Ack = 0b100
)

// Debug Port register addresses (4-bit, even banks only used by the DP).
const (
	dpIDCODE   = 0x0 // read
	dpABORT    = 0x0 // write
	dpCTRLSTAT = 0x4
	dpSELECT   = 0x8
	dpRDBUFF   = 0xC
)

// Access Port (MEM-AP) register addresses, bank 0.
const (
	apCSW = 0x00
	apTAR = 0x04
	apDRW = 0x0C
	apIDR = 0xFC
)

// DP.ABORT bits written on a FAULT response.
const (
	abortSTKCMPCLR  = 1 << 1
	abortSTKERRCLR  = 1 << 2
	abortWDERRCLR   = 1 << 3
	abortORUNERRCLR = 1 << 4
)

// DP.CTRL/STAT bits used during the debug-power-up handshake.
const (
	ctrlstatCDBGPWRUPREQ = 1 << 28
	ctrlstatCDBGPWRUPACK = 1 << 29
	ctrlstatCSYSPWRUPREQ = 1 << 30
	ctrlstatCSYSPWRUPACK = 1 << 31
)

// MEM-AP CSW bits: 32-bit transfer size with auto-increment.
const (
	cswSize32      = 0x2
	cswAddrIncSing = 0x1 << 4
)

// Core debug registers, reached through the MEM-AP like ordinary memory.
const (
	regDHCSR = 0xE000EDF0
	dhcsrDebugEnable = 0xA05F0001
	dhcsrHaltAndDebug = 0xA05F0003
)

// apBankMask isolates the 16-byte AP register bank from a full AP address.
const apBankMask = 0xF0

// memAPWindow is the size, in bytes, of the MEM-AP's packed auto-increment
// transfer window; a TAR rewrite is required on crossing it.
const memAPWindow = 1 << 10

const (
	lineResetMinClocks = 50
	ackRetryLimit      = 64
	hexLineBufferMax   = 256
)

// McuFamily identifies the target's debug architecture family, derived
// from a static IDCODE table (spec's Open Question: deliberately coarse,
// not cross-checked against DBGMCU_IDCODE).
type McuFamily int

const (
	FamilyUnknown McuFamily = iota
	FamilyCortexM0
	FamilyCortexM3
	FamilyCortexM4
)

func (f McuFamily) String() string {
	switch f {
	case FamilyCortexM0:
		return "CortexM0"
	case FamilyCortexM3:
		return "CortexM3"
	case FamilyCortexM4:
		return "CortexM4"
	default:
		return "Unknown"
	}
}

var idcodeFamilyTable = map[uint32]McuFamily{
	0x0BB11477: FamilyCortexM0,
	0x4BA00477: FamilyCortexM3,
	0x4BA01477: FamilyCortexM4,
}

func familyFromIDCODE(idcode uint32) McuFamily {
	if f, ok := idcodeFamilyTable[idcode]; ok {
		return f
	}
	return FamilyUnknown
}

func isNoTargetIDCODE(idcode uint32) bool {
	return idcode == 0x00000000 || idcode == 0xFFFFFFFF
}
