// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

import "testing"

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Record
		wantErr bool
	}{
		{
			name: "data record",
			line: ":10000000C0070020D1060008D1060008D10600086C",
			want: Record{
				ByteCount: 0x10,
				Address:   0x0000,
				Type:      RecData,
			},
		},
		{
			name: "eof record",
			line: ":00000001FF",
			want: Record{ByteCount: 0, Address: 0, Type: RecEOF},
		},
		{
			name: "extended linear address record",
			line: ":020000040800F2",
			want: Record{ByteCount: 2, Address: 0, Type: RecExtLinearAddr, Data: []byte{0x08, 0x00}},
		},
		{
			name:    "bad checksum",
			line:    ":00000001FE",
			wantErr: true,
		},
		{
			name:    "missing colon",
			line:    ";00000001FF",
			wantErr: true,
		},
		{
			name:    "odd hex digit count",
			line:    ":00000001FFF",
			wantErr: true,
		},
		{
			name:    "non-hex character",
			line:    ":0000000GFF",
			wantErr: true,
		},
		{
			name:    "length inconsistent with byte_count",
			line:    ":04000000AABBCC61",
			wantErr: true,
		},
		{
			name:    "unknown record type",
			line:    ":00000009F7",
			wantErr: true,
		},
		{
			name:    "too short",
			line:    ":0000",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseLine(%q): expected error, got none", tt.line)
				}
				if KindOf(err) != KindHexParse {
					t.Fatalf("ParseLine(%q): got Kind %v, want KindHexParse", tt.line, KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLine(%q): unexpected error: %v", tt.line, err)
			}
			if got.ByteCount != tt.want.ByteCount || got.Address != tt.want.Address || got.Type != tt.want.Type {
				t.Fatalf("ParseLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
			if tt.want.Data != nil {
				if len(got.Data) != len(tt.want.Data) {
					t.Fatalf("ParseLine(%q) Data = %v, want %v", tt.line, got.Data, tt.want.Data)
				}
				for i := range tt.want.Data {
					if got.Data[i] != tt.want.Data[i] {
						t.Fatalf("ParseLine(%q) Data = %v, want %v", tt.line, got.Data, tt.want.Data)
					}
				}
			}
		})
	}
}

// TestParseLineChecksumLaw enumerates every possible single-byte checksum
// and confirms exactly one value (the true two's-complement checksum)
// satisfies verifyChecksum, per spec.md §8's checksum invariant.
func TestParseLineChecksumLaw(t *testing.T) {
	base := []byte{0x00, 0x00, 0x00, 0x01} // EOF record, byte_count=0
	var sum byte
	for _, b := range base {
		sum += b
	}
	want := byte(0) - sum

	matches := 0
	for cs := 0; cs < 256; cs++ {
		raw := append(append([]byte{}, base...), byte(cs))
		if verifyChecksum(raw) == nil {
			matches++
			if byte(cs) != want {
				t.Fatalf("unexpected checksum byte 0x%02X accepted", cs)
			}
		}
	}
	if matches != 1 {
		t.Fatalf("expected exactly one accepted checksum byte, got %d", matches)
	}
}
