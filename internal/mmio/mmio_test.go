// SPDX-License-Identifier: MIT

package mmio

import "testing"

func TestDecodeKnownRegisters(t *testing.T) {
	tests := []struct {
		name string
		chip Chip
		addr uint16
		want string
	}{
		{"FPCFG 5570", Chip5570, 0x1001, "FPCFG"},
		{"IVECT both", Chip8587, 0x1110, "IVECT"},
		{"PM1DO", Chip8587, 0x1501, "PM1DO"},
		{"HOSTAA", Chip8587, 0x1C00, "HOSTAA"},
		{"KSOH1", Chip5570, 0x1D01, "KSOH1"},
		{"SCAR0L shared", Chip5570, 0x1040, "SCAR0L"},
		{"SCAR1L 8587 only", Chip8587, 0x1043, "SCAR1L"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := Decode(tt.chip, tt.addr)
			if err != nil {
				t.Fatalf("Decode(0x%04X): unexpected error %v", tt.addr, err)
			}
			if reg.Name != tt.want {
				t.Errorf("got %q, want %q", reg.Name, tt.want)
			}
		})
	}
}

func TestDecodeUnknownRegion(t *testing.T) {
	_, err := Decode(Chip8587, 0x4000)
	fault, ok := err.(*Fault)
	if !ok || fault.Kind != UnknownRegion {
		t.Fatalf("expected UnknownRegion fault, got %v", err)
	}
}

func TestDecodeUnknownOffset(t *testing.T) {
	_, err := Decode(Chip8587, 0x1003)
	fault, ok := err.(*Fault)
	if !ok || fault.Kind != UnknownOffset {
		t.Fatalf("expected UnknownOffset fault, got %v", err)
	}
}

func TestDecodeChipSpecificOffsetMissing(t *testing.T) {
	// SCAR1L only exists for 8587.
	_, err := Decode(Chip5570, 0x1043)
	fault, ok := err.(*Fault)
	if !ok || fault.Kind != UnknownOffset {
		t.Fatalf("expected UnknownOffset fault for 5570 at SCAR1L, got %v", err)
	}
}

func TestCommitWriteClearAndReadOnly(t *testing.T) {
	// Mirrors spec scenario: HOSTAA-style register, bit0 read-only,
	// bit1 write-clear.
	masks := Masks{ReadOnly: 0x01, WriteClear: 0x02}

	got := Commit(0xFF, 0x02, masks)
	if got&0x02 != 0 {
		t.Errorf("bit 1 should be cleared, got 0x%02X", got)
	}
	if got&0x01 == 0 {
		t.Errorf("bit 0 is read-only and should remain 1, got 0x%02X", got)
	}
	if got&0xFC != 0x00 {
		t.Errorf("other bits should take 0 from new where it held 0, got 0x%02X", got)
	}
}

func TestCommitPlainRegister(t *testing.T) {
	got := Commit(0x00, 0x5A, Masks{})
	if got != 0x5A {
		t.Errorf("plain register should take new verbatim, got 0x%02X", got)
	}
}

func TestReadBackWriteOnly(t *testing.T) {
	got := ReadBack(0xFF, Masks{WriteOnly: 0xFF})
	if got != 0 {
		t.Errorf("write-only register should read back 0, got 0x%02X", got)
	}
}

func TestESPIRegionOnlyOn5570(t *testing.T) {
	if _, err := Decode(Chip5570, 0x3104); err != nil {
		t.Errorf("expected ESPICFG0 to decode on 5570, got %v", err)
	}
	_, err := Decode(Chip8587, 0x3104)
	fault, ok := err.(*Fault)
	if !ok || fault.Kind != UnknownOffset {
		t.Errorf("expected UnknownOffset for eSPI block on 8587, got %v", err)
	}
}
