// SPDX-License-Identifier: MIT

// Package spi implements the stateful SPI flash command engine (C1): a
// tiny protocol interpreter driven by bytes pushed while chip-select is
// asserted, operating against a caller-supplied flash buffer.
//
// Device is not internally synchronized; the MMIO decoder holds the
// controller-level lock that guards it for the duration of an access.
package spi

import (
	"container/list"
	"fmt"
)

// Command bytes recognized on the first byte of a transaction.
const (
	cmdWriteStatus  = 0x01
	cmdPageProgram  = 0x02
	cmdWriteDisable = 0x04
	cmdReadStatus   = 0x05
	cmdWriteEnable  = 0x06
	cmdFastRead     = 0x0B
	cmdWriteVolStat = 0x50
	cmdChipErase    = 0x60
	cmdJEDECID      = 0x9F
	cmdAAIProgram   = 0xAD
	cmdPageErase    = 0xD7

	pageSize = 256
)

// ProtocolError reports that the SPI device received a byte sequence it
// cannot parse: an unknown command, a missing parameter byte, or leftover
// bytes after dispatch. Per the error handling design this is fatal.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("spi protocol error: %s", e.Detail)
}

// Device is the stateful consumer of SPI command bytes against a mutable
// flash buffer.
type Device struct {
	WriteEnabled bool

	hasFastRead  bool
	fastReadAddr uint32

	hasAAIAddr bool
	aaiAddr    uint32

	input  *list.List // FIFO of queued command/parameter bytes
	output *list.List // FIFO of bytes the firmware will read back
}

// NewDevice creates an idle SPI device.
func NewDevice() *Device {
	return &Device{
		input:  list.New(),
		output: list.New(),
	}
}

// Push queues one byte while chip-select is asserted.
func (d *Device) Push(b byte) {
	d.input.PushBack(b)
}

// popInput removes and returns the first queued byte, or ok=false if the
// input queue is empty.
func (d *Device) popInput() (byte, bool) {
	e := d.input.Front()
	if e == nil {
		return 0, false
	}
	d.input.Remove(e)
	return e.Value.(byte), true
}

func (d *Device) mustPop(what string) (byte, error) {
	b, ok := d.popInput()
	if !ok {
		return 0, &ProtocolError{Detail: fmt.Sprintf("missing %s byte", what)}
	}
	return b, nil
}

func (d *Device) pushOutput(b byte) {
	d.output.PushBack(b)
}

// PopOutput consumes and returns the next output byte (the "FOLLOW READ"
// operation), or ok=false if none is pending.
func (d *Device) PopOutput() (byte, bool) {
	e := d.output.Front()
	if e == nil {
		return 0, false
	}
	d.output.Remove(e)
	return e.Value.(byte), true
}

func readAddr24(a2, a1, a0 byte) uint32 {
	return uint32(a0) | uint32(a1)<<8 | uint32(a2)<<16
}

// Advance is the "advance the SPI device" operation the ECINDDR follow
// protocol performs on every chip-selected read (ECINDAR1 == 0xFD) and
// once more on de-assert (ECINDAR1 == 0xFE): if a full command is queued
// in input, it is dispatched and fully consumed; otherwise, if a fast
// read is in progress, exactly one more byte is pulled from flash into
// output. At most one of these happens per call.
func (d *Device) Advance(flash []byte) error {
	if cmd, ok := d.popInput(); ok {
		if err := d.dispatch(cmd, flash); err != nil {
			return err
		}
		if d.input.Len() != 0 {
			return &ProtocolError{Detail: fmt.Sprintf("residue in input queue after command 0x%02X", cmd)}
		}
		return nil
	}

	if d.hasFastRead {
		if int(d.fastReadAddr) >= len(flash) {
			d.hasFastRead = false
			return nil
		}
		d.pushOutput(flash[d.fastReadAddr])
		d.fastReadAddr++
		if int(d.fastReadAddr) >= len(flash) {
			d.hasFastRead = false
		}
	}
	return nil
}

// DiscardOutput clears any pending output bytes; the ECINDDR follow
// protocol calls this on chip-select de-assert (ECINDAR1 == 0xFE).
func (d *Device) DiscardOutput() {
	d.output.Init()
}

func (d *Device) dispatch(cmd byte, flash []byte) error {
	switch cmd {
	case cmdWriteStatus:
		if _, err := d.mustPop("write-status value"); err != nil {
			return err
		}
		return nil

	case cmdPageProgram:
		a2, err := d.mustPop("page-program address")
		if err != nil {
			return err
		}
		a1, err := d.mustPop("page-program address")
		if err != nil {
			return err
		}
		a0, err := d.mustPop("page-program address")
		if err != nil {
			return err
		}
		addr := readAddr24(a2, a1, a0)
		for {
			b, ok := d.popInput()
			if !ok {
				break
			}
			if int(addr) < len(flash) {
				flash[addr] = b
			}
			if addr&0xFF == 0xFF {
				addr -= 0xFF
			} else {
				addr++
			}
		}
		return nil

	case cmdWriteDisable:
		d.WriteEnabled = false
		d.hasAAIAddr = false
		return nil

	case cmdReadStatus:
		var v byte
		if d.WriteEnabled {
			v = 1 << 1
		}
		d.pushOutput(v)
		return nil

	case cmdWriteEnable:
		d.WriteEnabled = true
		return nil

	case cmdFastRead:
		a2, err := d.mustPop("fast-read address")
		if err != nil {
			return err
		}
		a1, err := d.mustPop("fast-read address")
		if err != nil {
			return err
		}
		a0, err := d.mustPop("fast-read address")
		if err != nil {
			return err
		}
		if _, err := d.mustPop("fast-read dummy"); err != nil {
			return err
		}
		d.hasFastRead = true
		d.fastReadAddr = readAddr24(a2, a1, a0)
		return nil

	case cmdWriteVolStat:
		return nil

	case cmdChipErase:
		for i := range flash {
			flash[i] = 0xFF
		}
		return nil

	case cmdJEDECID:
		d.pushOutput(0xEF)
		d.pushOutput(0xEF)
		d.pushOutput(0xEF)
		return nil

	case cmdAAIProgram:
		var addr uint32
		if d.input.Len() > 2 {
			a2, err := d.mustPop("aai address")
			if err != nil {
				return err
			}
			a1, err := d.mustPop("aai address")
			if err != nil {
				return err
			}
			a0, err := d.mustPop("aai address")
			if err != nil {
				return err
			}
			addr = readAddr24(a2, a1, a0)
		} else {
			addr = d.aaiAddr
		}
		b0, err := d.mustPop("aai data")
		if err != nil {
			return err
		}
		b1, err := d.mustPop("aai data")
		if err != nil {
			return err
		}
		if int(addr) < len(flash) {
			flash[addr] = b0
		}
		if int(addr+1) < len(flash) {
			flash[addr+1] = b1
		}
		d.aaiAddr = addr + 2
		d.hasAAIAddr = true
		return nil

	case cmdPageErase:
		a2, err := d.mustPop("page-erase address")
		if err != nil {
			return err
		}
		a1, err := d.mustPop("page-erase address")
		if err != nil {
			return err
		}
		a0, err := d.mustPop("page-erase address")
		if err != nil {
			return err
		}
		addr := readAddr24(a2, a1, a0)
		for i := uint32(0); i < pageSize; i++ {
			if int(addr+i) < len(flash) {
				flash[addr+i] = 0xFF
			}
		}
		return nil

	default:
		return &ProtocolError{Detail: fmt.Sprintf("unknown command 0x%02X", cmd)}
	}
}
