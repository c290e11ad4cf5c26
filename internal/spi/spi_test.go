// SPDX-License-Identifier: MIT

package spi

import "testing"

func flash(size int) []byte {
	f := make([]byte, size)
	for i := range f {
		f[i] = 0xFF
	}
	return f
}

func dispatchOne(t *testing.T, d *Device, flash []byte, bytes ...byte) {
	t.Helper()
	for _, b := range bytes {
		d.Push(b)
	}
	if err := d.Advance(flash); err != nil {
		t.Fatalf("Advance: %v", err)
	}
}

func TestJEDECID(t *testing.T) {
	d := NewDevice()
	f := flash(256)
	dispatchOne(t, d, f, cmdJEDECID)

	want := []byte{0xEF, 0xEF, 0xEF}
	for i, w := range want {
		got, ok := d.PopOutput()
		if !ok {
			t.Fatalf("byte %d: output queue empty", i)
		}
		if got != w {
			t.Errorf("byte %d: got 0x%02X, want 0x%02X", i, got, w)
		}
	}
	if _, ok := d.PopOutput(); ok {
		t.Errorf("expected output queue empty after 3 bytes")
	}
}

func TestWriteEnableDisable(t *testing.T) {
	d := NewDevice()
	f := flash(256)

	dispatchOne(t, d, f, cmdWriteEnable)
	if !d.WriteEnabled {
		t.Fatalf("expected WriteEnabled after 0x06")
	}

	dispatchOne(t, d, f, cmdReadStatus)
	v, ok := d.PopOutput()
	if !ok || v != 0x02 {
		t.Errorf("read status: got %v ok=%v, want 0x02", v, ok)
	}

	dispatchOne(t, d, f, cmdWriteDisable)
	if d.WriteEnabled {
		t.Fatalf("expected WriteEnabled cleared after 0x04")
	}
}

func TestChipErase(t *testing.T) {
	d := NewDevice()
	f := flash(256)
	f[10] = 0x00
	f[200] = 0x55

	dispatchOne(t, d, f, cmdChipErase)
	for i, b := range f {
		if b != 0xFF {
			t.Fatalf("byte %d not erased: 0x%02X", i, b)
		}
	}
}

func TestPageProgramWrapsAtPageBoundary(t *testing.T) {
	d := NewDevice()
	f := flash(512)

	data := make([]byte, 257)
	for i := range data {
		data[i] = byte(i)
	}

	bytes := append([]byte{cmdPageProgram, 0x00, 0x00, 0xFF}, data...)
	dispatchOne(t, d, f, bytes...)

	if f[0xFF] != data[0] {
		t.Errorf("first byte: got 0x%02X at 0xFF, want 0x%02X", f[0xFF], data[0])
	}
	if f[0x00] != data[1] {
		t.Errorf("second byte: got 0x%02X at 0x00, want 0x%02X", f[0x00], data[1])
	}
	if f[0x01] != data[2] {
		t.Errorf("third byte: got 0x%02X at 0x01, want 0x%02X", f[0x01], data[2])
	}
}

func TestPageErase(t *testing.T) {
	d := NewDevice()
	f := flash(1024)
	for i := range f {
		f[i] = 0x00
	}

	dispatchOne(t, d, f, cmdPageErase, 0x00, 0x01, 0x00)
	for i := 0x100; i < 0x200; i++ {
		if f[i] != 0xFF {
			t.Fatalf("byte 0x%03X not erased", i)
		}
	}
	if f[0x000] != 0x00 || f[0x200] != 0x00 {
		t.Errorf("page erase touched bytes outside its range")
	}
}

func TestAAIProgram(t *testing.T) {
	d := NewDevice()
	f := flash(256)

	dispatchOne(t, d, f, cmdAAIProgram, 0x00, 0x00, 0x10, 0xAA, 0xBB)
	if f[0x10] != 0xAA || f[0x11] != 0xBB {
		t.Fatalf("first AAI write: got 0x%02X 0x%02X", f[0x10], f[0x11])
	}

	dispatchOne(t, d, f, cmdAAIProgram, 0xCC, 0xDD)
	if f[0x12] != 0xCC || f[0x13] != 0xDD {
		t.Fatalf("second AAI write (implicit address): got 0x%02X 0x%02X", f[0x12], f[0x13])
	}
}

func TestFastReadStreams(t *testing.T) {
	d := NewDevice()
	f := flash(16)
	for i := range f {
		f[i] = byte(0x50 + i)
	}

	dispatchOne(t, d, f, cmdFastRead, 0x00, 0x00, 0x04, 0x00)
	if d.output.Len() != 0 {
		t.Fatalf("fast read should not eagerly fill output")
	}

	for i := 0; i < 4; i++ {
		if err := d.Advance(f); err != nil {
			t.Fatalf("Advance %d: %v", i, err)
		}
		got, ok := d.PopOutput()
		if !ok {
			t.Fatalf("byte %d: no output produced", i)
		}
		if want := f[4+i]; got != want {
			t.Errorf("byte %d: got 0x%02X, want 0x%02X", i, got, want)
		}
	}
}

func TestUnknownCommandIsProtocolError(t *testing.T) {
	d := NewDevice()
	f := flash(16)
	d.Push(0xFF)
	err := d.Advance(f)
	if err == nil {
		t.Fatalf("expected a ProtocolError for an unknown command")
	}
	if _, ok := err.(*ProtocolError); !ok {
		t.Errorf("expected *ProtocolError, got %T", err)
	}
}

func TestMissingParameterIsProtocolError(t *testing.T) {
	d := NewDevice()
	f := flash(16)
	d.Push(cmdPageProgram)
	d.Push(0x00)
	err := d.Advance(f)
	if err == nil {
		t.Fatalf("expected a ProtocolError for a truncated command")
	}
}
