// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

import "testing"

func TestFlashLayoutForKnownFamilies(t *testing.T) {
	tests := []struct {
		family McuFamily
		gran   Granularity
	}{
		{FamilyCortexM0, GranularityHalfWord},
		{FamilyCortexM3, GranularityHalfWord},
		{FamilyCortexM4, GranularityWord},
	}
	for _, tt := range tests {
		layout, err := flashLayoutFor(tt.family)
		if err != nil {
			t.Fatalf("flashLayoutFor(%v): %v", tt.family, err)
		}
		if layout.FlashBase != 0x08000000 {
			t.Fatalf("flashLayoutFor(%v).FlashBase = 0x%08X, want 0x08000000", tt.family, layout.FlashBase)
		}
		if layout.Granularity != tt.gran {
			t.Fatalf("flashLayoutFor(%v).Granularity = %v, want %v", tt.family, layout.Granularity, tt.gran)
		}
		if layout.Regs.KEYR == 0 || layout.Regs.SR == 0 || layout.Regs.CR == 0 {
			t.Fatalf("flashLayoutFor(%v) left a core register address unset", tt.family)
		}
	}
}

func TestFlashLayoutForUnknownFamily(t *testing.T) {
	_, err := flashLayoutFor(FamilyUnknown)
	if err == nil {
		t.Fatal("expected error for FamilyUnknown")
	}
	if KindOf(err) != KindTargetConnect {
		t.Fatalf("got Kind %v, want KindTargetConnect", KindOf(err))
	}
}
