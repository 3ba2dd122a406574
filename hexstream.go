// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

import (
	"bufio"
	"fmt"
	"io"
)

// Sink receives one flushed WriteUnit's payload. FlashController.Program
// and FlashController.Verify are the two implementations used by the
// orchestrator.
type Sink func(addr uint32, data []byte) error

// WriteUnit is the fixed-size, flash-aligned programming block the
// assembler fills and flushes to a Sink.
type WriteUnit struct {
	Base     uint32
	Bytes    []byte
	ValidLen uint16
}

// Assembler is the streaming HEX-to-WriteUnit coalescer (component G). The
// orchestrator constructs one per pass over the image (program, then
// verify); it is reused for every unit and bounds per-unit memory at
// unitSize regardless of file size.
type Assembler struct {
	unitSize uint32
	extHigh  uint32
	pending  WriteUnit
}

func NewAssembler(unitSize uint32) *Assembler {
	return &Assembler{
		unitSize: unitSize,
		pending:  WriteUnit{Bytes: make([]byte, unitSize)},
	}
}

// Process reads HEX lines from r, maintaining extended-address state
// across calls, and dispatches each completed WriteUnit to sink. Returns
// a HexParse error for any malformed record or a stream that ends without
// an EOF record.
func (a *Assembler) Process(r io.Reader, sink Sink) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, hexLineBufferMax), hexLineBufferMax)
	scanner.Split(scanHexLine)

	sawEOF := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		rec, err := ParseLine(line)
		if err != nil {
			return err
		}

		switch rec.Type {
		case RecExtLinearAddr:
			if rec.ByteCount != 2 {
				return wrapErr("hexstream.Process", KindHexParse,
					fmt.Errorf("ExtLinearAddr byte_count must be 2, got %d", rec.ByteCount))
			}
			a.extHigh = uint32(rec.Data[0])<<24 | uint32(rec.Data[1])<<16

		case RecStartLinearAddr:
			// Ignored for programming, per spec.md §4.G.

		case RecData:
			if err := a.absorb(rec, sink); err != nil {
				return err
			}

		case RecEOF:
			if a.pending.ValidLen > 0 {
				if err := a.flush(sink); err != nil {
					return err
				}
			}
			sawEOF = true
		}

		if sawEOF {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return wrapErr("hexstream.Process", KindHexParse, err)
	}
	if !sawEOF {
		return wrapErr("hexstream.Process", KindHexParse, fmt.Errorf("stream ended without EOF record (truncated image)"))
	}
	return nil
}

// absorb folds one Data record into the pending unit, flushing and
// starting a fresh unit whenever the record's absolute address falls
// outside the unit currently being filled. A record straddling a unit
// boundary is split across iterations of this loop rather than recursion.
func (a *Assembler) absorb(rec Record, sink Sink) error {
	abs := a.extHigh | uint32(rec.Address)
	data := rec.Data

	for len(data) > 0 {
		if a.pending.ValidLen == 0 {
			a.pending.Base = abs &^ (a.unitSize - 1)
			memset(a.pending.Bytes, int(a.unitSize), 0xFF)
		}

		if abs < a.pending.Base || abs >= a.pending.Base+a.unitSize {
			if err := a.flush(sink); err != nil {
				return err
			}
			continue
		}

		offset := abs - a.pending.Base
		room := a.unitSize - offset
		n := uint32(len(data))
		if n > room {
			n = room
		}

		copy(a.pending.Bytes[offset:offset+n], data[:n])
		if end := uint16(offset + n); end > a.pending.ValidLen {
			a.pending.ValidLen = end
		}

		data = data[n:]
		abs += n
	}
	return nil
}

func (a *Assembler) flush(sink Sink) error {
	if err := sink(a.pending.Base, a.pending.Bytes[:a.pending.ValidLen]); err != nil {
		return err
	}
	a.pending.ValidLen = 0
	return nil
}

// scanHexLine is a bufio.SplitFunc delimiting on CR, LF, or CRLF,
// matching spec.md §4.G; bufio.ScanLines alone does not split on a bare
// CR line ending.
func scanHexLine(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '\n':
			return i + 1, data[:i], nil
		case '\r':
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if atEOF {
				return i + 1, data[:i], nil
			}
			return 0, nil, nil // need more data to know if \n follows
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
