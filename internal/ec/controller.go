// SPDX-License-Identifier: MIT

// Package ec assembles the MCU, the SPI device, and the external flash
// buffer into the Controller (C5): the single object that owns reset
// defaults and wires the MMIO decoder's generic table (package mmio) to
// the stateful side effects of §4.3 — SCAR DMA, the ECINDDR indirect
// flash path, mailbox flag flips, and the KBSCAN console putc.
//
// Controller.Access corresponds to the source's habit of locking a
// single mutex once at the top of an operation and touching the guarded
// fields directly for its duration, rather than having each field
// re-acquire its own lock. Access locks all three guarded resources;
// HostPortRead/HostPortWrite lock the MCU memory alone, per §5.
package ec

import (
	"fmt"
	"sync"

	"github.com/system76/ecsim/internal/core"
	"github.com/system76/ecsim/internal/mailbox"
	"github.com/system76/ecsim/internal/mmio"
	"github.com/system76/ecsim/internal/progmem"
	"github.com/system76/ecsim/internal/spi"
	"github.com/system76/ecsim/internal/trace"
)

// ECINDAR/ECINDDR offsets within the SMFI region, used by the indirect
// flash path directly (they are also ordinary decoded registers, but
// their side effect needs their raw values before the generic commit
// logic runs).
const (
	addrECINDAR0 = 0x103B
	addrECINDAR1 = 0x103C
	addrECINDAR2 = 0x103D
	addrECINDAR3 = 0x103E
	addrECINDDR  = 0x103F
)

// FlashSize is the external SPI flash buffer size (C1/C5).
const FlashSize = 128 * 1024

// Controller is the assembled simulator state.
type Controller struct {
	ChipID  mmio.Chip
	Version byte

	Machine *core.Machine
	SPI     *spi.Device
	Flash   []byte

	SuperIO mailbox.SuperIO

	Tracer *trace.Tracer

	Steps uint64

	muMachine sync.Mutex
	muSPI     sync.Mutex
	muFlash   sync.Mutex
}

// New assembles an idle Controller for the given chip family.
func New(chip mmio.Chip, version byte, tracer *trace.Tracer) *Controller {
	return &Controller{
		ChipID:  chip,
		Version: version,
		Machine: core.NewMachine(),
		SPI:     spi.NewDevice(),
		Flash:   make([]byte, FlashSize),
		Tracer:  tracer,
	}
}

// LoadFirmware copies a flat firmware image into both program memory and
// the external flash buffer, per §6's persisted-image contract.
func (c *Controller) LoadFirmware(data []byte) {
	c.Machine.LoadProgram(data)
	for i := range c.Flash {
		c.Flash[i] = 0xFF
	}
	copy(c.Flash, data)
}

// Reset performs the MCU's own reset and then writes the chip-specific
// table of XRAM defaults required by §6.
func (c *Controller) Reset() {
	c.muMachine.Lock()
	defer c.muMachine.Unlock()

	c.Machine.Reset()
	xram := c.Machine.XRAM
	for i := range xram {
		xram[i] = 0
	}

	for _, w := range progmem.Windows(c.ChipID) {
		switch c.ChipID {
		case mmio.Chip5570:
			xram[w.Reg+2] = 0x07
		case mmio.Chip8587:
			xram[w.Reg+2] = 0x03
		}
	}

	if c.ChipID == mmio.Chip5570 {
		xram[0x1001] = 0x3F
	} else {
		xram[0x1001] = 0xBF
	}
	xram[0x1020] = 0x08
	xram[0x1032] = 0x03
	xram[0x1036] = 0x80
	xram[0x1110] = 0x10
	xram[0x1202] = 0x07
	xram[0x1506] = 0x40
	xram[0x1516] = 0x40
	xram[0x1600] = 0x04
	xram[0x1607] = 0x01
	xram[0x16F2] = 0x40
	xram[0x16F5] = 0x0F
	xram[0x1700] = 0x01
	xram[0x1701] = 0x01
	xram[0x1702] = 0x01
	xram[0x1801] = 0xFF
	xram[0x180D] = 0x55
	xram[0x1843] = 0xFF
	xram[0x1900] = 0x80
	xram[0x1901] = 0x80
	xram[0x1904] = 0x1F
	xram[0x1906] = 0x1F
	xram[0x1909] = 0x1F
	xram[0x190C] = 0x1F
	xram[0x1A00] = 0x10
	xram[0x1A01] = 0x3C
	xram[0x1C34] = 0x04
	xram[0x1D22] = 0x01
	xram[0x1E03] = 0x01
	xram[0x1E04] = 0x70
	xram[0x1E05] = 0x41
	xram[0x1E06] = 0x01
	xram[0x1E09] = 0x01
	xram[0x2000] = byte(c.ChipID >> 8)
	xram[0x2001] = byte(c.ChipID)
	xram[0x2002] = c.Version

	if c.ChipID == mmio.Chip5570 {
		xram[0x16E5] = 0x06
		xram[0x1C26] = 0x19
		xram[0x1C40] = 0x04
		xram[0x1C41] = 0x04
		xram[0x1CA9] = 0x0C
		xram[0x2006] = 0x4C

		// eSPI slave
		xram[0x3104] = 0x03
		xram[0x3105] = 0x02
		xram[0x3107] = 0x0F
		xram[0x310A] = 0x11
		xram[0x310E] = 0x07
		xram[0x3112] = 0x01
		xram[0x3113] = 0x10
		xram[0x3116] = 0x11
		xram[0x3117] = 0x24
		xram[0x311A] = 0x04
		xram[0x311B] = 0x01

		// eSPI virtual wire
		for _, off := range []uint16{0x3200, 0x3202, 0x3203, 0x3204, 0x3205, 0x3206, 0x3207,
			0x3240, 0x3241, 0x3242, 0x3243, 0x3244, 0x3245, 0x3246, 0x3247} {
			xram[off] = 0x03
		}
	} else {
		xram[0x2006] = 0x8C
	}

	c.Tracer.Reset(uint16(c.ChipID), c.Version)
}

// Access is the C3 contract operation: decode addr, run any side effect,
// commit the optional store, and return the previous value with
// write-only masking applied. It locks the MCU memory, the SPI device,
// and the external flash buffer for its whole duration, per §5.
func (c *Controller) Access(addr uint16, store *byte) (byte, error) {
	c.muMachine.Lock()
	defer c.muMachine.Unlock()
	c.muSPI.Lock()
	defer c.muSPI.Unlock()
	c.muFlash.Lock()
	defer c.muFlash.Unlock()

	if addr == addrECINDDR {
		return c.accessIndirect(store)
	}

	xram := c.Machine.XRAM
	old := xram[addr]

	reg, err := mmio.Decode(c.ChipID, addr)
	if err != nil {
		return 0, err
	}

	if err := c.sideEffect(reg, addr, old, store); err != nil {
		return 0, err
	}

	var stored byte
	if store != nil {
		stored = mmio.Commit(old, *store, reg.Masks)
		xram[addr] = stored
		c.Tracer.XRAMAccess(reg.Region, reg.Offset, addr, old, &stored)
	} else {
		c.Tracer.XRAMAccess(reg.Region, reg.Offset, addr, old, nil)
	}

	return mmio.ReadBack(old, reg.Masks), nil
}

// sideEffect executes the §4.3 step-4 side effects that are keyed by
// register identity rather than by the generic mask table: SCAR DMA
// trigger, mailbox flag flips, and the KBSCAN console putc.
func (c *Controller) sideEffect(reg mmio.Register, addr uint16, old byte, store *byte) error {
	if reg.Region == "SMFI" && len(reg.Name) == 6 && reg.Name[:4] == "SCAR" && reg.Name[5] == 'H' {
		if store != nil && old&0x80 != 0 && (*store)&0x80 == 0 {
			idx := int(reg.Name[4] - '0')
			c.triggerSCARCopy(idx)
		}
		return nil
	}

	switch reg.Name {
	case "PM1DO":
		if store != nil {
			mailbox.FirmwareWriteDataOut(c.Machine.XRAM, mailbox.PMC)
		}
	case "PM1DI":
		mailbox.FirmwareReadDataIn(c.Machine.XRAM, mailbox.PMC)
	case "KBHIKDOR":
		if store != nil {
			mailbox.FirmwareWriteDataOut(c.Machine.XRAM, mailbox.KBCKbd)
		}
	case "KBHIMDOR":
		if store != nil {
			mailbox.FirmwareWriteDataOut(c.Machine.XRAM, mailbox.KBCMouse)
		}
	case "KBHIDIR":
		mailbox.FirmwareReadDataIn(c.Machine.XRAM, mailbox.KBCKbd)
	case mmio.RegKSOH1:
		if store != nil && (*store)&0x01 == 0 {
			c.Tracer.ConsoleOutput(c.Machine.XRAM[addr-1])
		}
	}
	return nil
}

// triggerSCARCopy performs the DMA-style copy of §3: size bytes of
// program memory at the window's packed physical address into XRAM at
// its base.
func (c *Controller) triggerSCARCopy(index int) {
	windows := progmem.Windows(c.ChipID)
	if index < 0 || index >= len(windows) {
		return
	}
	w := windows[index]
	xram := c.Machine.XRAM
	l, m, h := xram[w.Reg], xram[w.Reg+1], xram[w.Reg+2]
	phys := uint32(l) | uint32(m)<<8 | uint32(h&0b11)<<16

	for i := 0; i < w.Size; i++ {
		src := int(phys) + i
		dst := int(w.Base) + i
		if src >= len(c.Machine.ProgMem) || dst >= len(xram) {
			break
		}
		xram[dst] = c.Machine.ProgMem[src]
	}
	c.Tracer.SCARCopy(index, phys, uint32(w.Base), w.Size)
}

// accessIndirect implements the ECINDDR side channel: either a direct
// byte-addressed read/write of the external flash buffer or program
// memory, or a "follow" operation that pipes bytes through the SPI
// device. Called with all three locks already held by Access.
func (c *Controller) accessIndirect(store *byte) (byte, error) {
	xram := c.Machine.XRAM
	ar0 := xram[addrECINDAR0]
	ar1 := xram[addrECINDAR1]
	ar2 := xram[addrECINDAR2]
	ar3 := xram[addrECINDAR3]

	if ar3&0x0F == 0x0F {
		switch ar1 {
		case 0xFD:
			if store != nil {
				c.SPI.Push(*store)
				return 0, nil
			}
			if err := c.SPI.Advance(c.Flash); err != nil {
				return 0, err
			}
			b, _ := c.SPI.PopOutput()
			return b, nil
		case 0xFE:
			if err := c.SPI.Advance(c.Flash); err != nil {
				return 0, err
			}
			c.SPI.DiscardOutput()
			return 0, nil
		default:
			return 0, &mmio.Fault{Kind: mmio.ProtocolError, Addr: addrECINDDR, Detail: fmt.Sprintf("reserved ECINDAR1 value 0x%02X in follow mode", ar1)}
		}
	}

	var buf []byte
	switch (ar3 >> 6) & 0b11 {
	case 0b00, 0b11:
		buf = c.Flash
	case 0b01:
		buf = c.Machine.ProgMem
	default:
		return 0, &mmio.Fault{Kind: mmio.ProtocolError, Addr: addrECINDDR, Detail: "ECINDAR3 bits 6-7 = 0b10 is reserved"}
	}

	addr := uint32(ar0) | uint32(ar1)<<8 | uint32(ar2)<<16 | uint32(ar3)<<24
	idx := addr & 0xFFFFFF
	if int(idx) >= len(buf) {
		return 0xFF, nil
	}
	old := buf[idx]
	if store != nil {
		buf[idx] = *store
	}
	return old, nil
}

// FetchProgramByte returns the byte the core would fetch at pc, applying
// the bank remap and SCAR shadow search (C4). The instruction decoder
// that would actually consume this byte is outside this package's scope;
// callers drive this to advance a program counter on their own terms.
func (c *Controller) FetchProgramByte(pc uint16) byte {
	c.muMachine.Lock()
	defer c.muMachine.Unlock()
	return progmem.Fetch(c.Machine.ProgMem, c.Machine.XRAM, c.Machine.Port(1), c.ChipID, pc)
}

// Step advances the simulated program counter by one byte and bumps the
// step counter. It does not decode or execute 8051 opcodes; that decoder
// is an external collaborator this repo does not implement. It exists so
// a driver loop has something to interleave with host-port polling.
func (c *Controller) Step() {
	c.muMachine.Lock()
	b := progmem.Fetch(c.Machine.ProgMem, c.Machine.XRAM, c.Machine.Port(1), c.ChipID, c.Machine.PC)
	_ = b
	c.Machine.PC++
	c.Machine.Steps++
	c.muMachine.Unlock()
	c.Steps++
}

// HostPortRead services a host inb of port, locking the MCU memory alone
// per §5. It covers the SuperIO data port (0x2F), the PMC port pair
// (0x62/0x66), and any H2RAM window; any other port reads 0.
func (c *Controller) HostPortRead(port uint16) byte {
	c.muMachine.Lock()
	defer c.muMachine.Unlock()
	xram := c.Machine.XRAM

	switch port {
	case 0x2F:
		return c.SuperIO.ReadData(uint16(c.ChipID))
	case 0x62:
		v := mailbox.HostReadData(xram, mailbox.PMC)
		c.Tracer.HostPort("inb", port, v)
		return v
	case 0x66:
		return xram[mailbox.PMC.Status]
	}

	if idx, ok := mailbox.H2RAMPort(xram, port); ok {
		return xram[idx]
	}
	return 0
}

// HostPortWrite services a host outb of value to port, locking the MCU
// memory alone per §5. The PMC command port (0x66) sets CMD|IBF; the
// data port (0x62) clears CMD and sets IBF, matching the open question
// that both paths toward CMD must be present.
func (c *Controller) HostPortWrite(port uint16, value byte) {
	c.muMachine.Lock()
	defer c.muMachine.Unlock()
	xram := c.Machine.XRAM

	switch port {
	case 0x2E:
		c.SuperIO.WriteIndex(value)
		return
	case 0x62:
		mailbox.HostWriteData(xram, mailbox.PMC, value)
		c.Tracer.HostPort("outb", port, value)
		return
	case 0x66:
		mailbox.HostWriteCommand(xram, mailbox.PMC, value)
		c.Tracer.HostPort("outb", port, value)
		return
	}

	if idx, ok := mailbox.H2RAMPort(xram, port); ok {
		xram[idx] = value
	}
}
