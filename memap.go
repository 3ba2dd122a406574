// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

import "fmt"

// MemAP is the target memory bus (component D): word and bulk
// auto-increment transfers through the MEM-AP, with TAR window management
// hidden from callers.
type MemAP struct {
	dap        *DebugPort
	cswInit    bool
	tar        uint32
	haveTar    bool
}

func NewMemAP(dap *DebugPort) *MemAP {
	return &MemAP{dap: dap}
}

func (m *MemAP) ensureCSW() error {
	if m.cswInit {
		return nil
	}
	if err := m.dap.WriteAP(apCSW, cswSize32|cswAddrIncSing); err != nil {
		return err
	}
	m.cswInit = true
	return nil
}

// setTAR rewrites AP.TAR unless it already holds addr through
// auto-increment from the previous DRW access. Auto-increment wraps inside
// the MEM-AP window, so an address at the start of a window, or a cold
// cache, always forces a rewrite.
func (m *MemAP) setTAR(addr uint32) error {
	if m.haveTar && m.tar == addr && addr%memAPWindow != 0 {
		return nil
	}
	if err := m.dap.WriteAP(apTAR, addr); err != nil {
		return err
	}
	m.tar = addr
	m.haveTar = true
	return nil
}

func (m *MemAP) ReadU32(addr uint32) (uint32, error) {
	if addr%4 != 0 {
		return 0, wrapErr("memap.ReadU32", KindTargetConnect, fmt.Errorf("unaligned address 0x%08X", addr))
	}
	if err := m.ensureCSW(); err != nil {
		return 0, err
	}
	if err := m.setTAR(addr); err != nil {
		return 0, err
	}
	v, err := m.dap.ReadAP(apDRW)
	if err != nil {
		return 0, err
	}
	m.tar = addr + 4
	return v, nil
}

func (m *MemAP) WriteU32(addr uint32, value uint32) error {
	if addr%4 != 0 {
		return wrapErr("memap.WriteU32", KindTargetConnect, fmt.Errorf("unaligned address 0x%08X", addr))
	}
	if err := m.ensureCSW(); err != nil {
		return err
	}
	if err := m.setTAR(addr); err != nil {
		return err
	}
	if err := m.dap.WriteAP(apDRW, value); err != nil {
		return err
	}
	m.tar = addr + 4
	return nil
}

// Read fills buf from the target starting at addr. Bulk transfers are
// aligned to 4 bytes internally; for a leading or trailing partial word the
// whole word is read and only the requested bytes are copied into buf.
func (m *MemAP) Read(addr uint32, buf []byte) error {
	offset := 0
	for offset < len(buf) {
		wordAddr := (addr + uint32(offset)) &^ 3
		word, err := m.ReadU32(wordAddr)
		if err != nil {
			return err
		}
		var wbuf [4]byte
		u32ToLE(wbuf[:], word)

		start := int(addr+uint32(offset)) - int(wordAddr)
		n := 4 - start
		if n > len(buf)-offset {
			n = len(buf) - offset
		}
		copy(buf[offset:offset+n], wbuf[start:start+n])
		offset += n
	}
	return nil
}

// Write pushes buf to the target starting at addr, aligning to 4-byte
// words and performing read-modify-write for a non-aligned leading or
// trailing partial word.
func (m *MemAP) Write(addr uint32, data []byte) error {
	offset := 0
	for offset < len(data) {
		wordAddr := (addr + uint32(offset)) &^ 3
		start := int(addr+uint32(offset)) - int(wordAddr)
		n := 4 - start
		if n > len(data)-offset {
			n = len(data) - offset
		}

		var wbuf [4]byte
		if start != 0 || n != 4 {
			existing, err := m.ReadU32(wordAddr)
			if err != nil {
				return err
			}
			u32ToLE(wbuf[:], existing)
		}
		copy(wbuf[start:start+n], data[offset:offset+n])

		if err := m.WriteU32(wordAddr, leToU32(wbuf[:])); err != nil {
			return err
		}
		offset += n
	}
	return nil
}
