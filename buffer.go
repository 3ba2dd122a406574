// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

// leToU16, leToU32, u16ToLE and u32ToLE are little-endian codecs;
// memap.go and simtarget.go use the 32-bit pair directly to convert
// between byte buffers and 32-bit words. There is no byte-buffer staging
// step in this protocol's real flow, since swd.go clocks bits out one at a
// time via WriteBit.

func leToU16(buffer []byte) uint16 {
	return uint16(buffer[0]) | (uint16(buffer[1]) << 8)
}

func leToU32(buffer []byte) uint32 {
	return uint32(buffer[0]) | uint32(buffer[1])<<8 | uint32(buffer[2])<<16 | uint32(buffer[3])<<24
}

func u32ToLE(buffer []byte, value uint32) {
	buffer[0] = byte(value)
	buffer[1] = byte(value >> 8)
	buffer[2] = byte(value >> 16)
	buffer[3] = byte(value >> 24)
}

func u16ToLE(buffer []byte, value uint16) {
	buffer[0] = byte(value)
	buffer[1] = byte(value >> 8)
}

// evenParity returns the even parity bit (0 or 1) over the low 32 bits of v.
func evenParity(v uint32) byte {
	p := byte(0)
	for v != 0 {
		p ^= byte(v & 1)
		v >>= 1
	}
	return p
}
