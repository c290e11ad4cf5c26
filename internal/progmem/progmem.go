// SPDX-License-Identifier: MIT

// Package progmem implements the program-memory view (C4): the bank
// remap applied to fetches with PC>=0x8000, and the SCAR window override
// that can substitute XRAM bytes for program memory during a fetch.
package progmem

import "github.com/system76/ecsim/internal/mmio"

// Window is one SCAR (Scratch Code-Access RAM) shadow: three XRAM bytes
// at Reg..Reg+2 pack the physical flash address being shadowed; Base is
// where the shadow lives in XRAM; Size is the window length.
type Window struct {
	Reg  uint16
	Base uint16
	Size int
}

// Windows returns the SCAR window table for chip, in search order.
func Windows(chip mmio.Chip) []Window {
	switch chip {
	case mmio.Chip5570:
		return []Window{
			{Reg: 0x1040, Base: 0x0000, Size: 4096},
		}
	case mmio.Chip8587:
		return []Window{
			{Reg: 0x1040, Base: 0x0000, Size: 2048},
			{Reg: 0x1043, Base: 0x0800, Size: 1024},
			{Reg: 0x1046, Base: 0x0C00, Size: 512},
			{Reg: 0x1049, Base: 0x0E00, Size: 256},
			{Reg: 0x104C, Base: 0x0F00, Size: 256},
		}
	default:
		return nil
	}
}

// Fetch returns the byte the core would fetch at PC, applying the bank
// remap and then the SCAR shadow search.
//
// The SCAR search does not consult the window's enable bit (bit 7 of its
// H byte): it packs win_phys from L, M, and the low two bits of H only,
// and tests range membership unconditionally. This is not a corrected
// re-derivation of the enable semantics described for the DMA trigger in
// §3 of the source material; it reproduces the fetch-path lookup as
// written, which never gates on bit 7. A corrected implementation would
// skip windows with bit 7 set; this one does not, by design choice to
// match observed behavior exactly.
func Fetch(progMem, xram []byte, port1 byte, chip mmio.Chip, pc uint16) byte {
	var phys uint32
	if pc < 0x8000 {
		phys = uint32(pc)
	} else {
		var bank byte
		if xram[0x1001]&0x80 == 0 {
			bank = port1 & 0b11
		} else {
			bank = xram[0x1005] & 0b11
		}
		phys = uint32(pc) + uint32(bank)*0x8000
	}

	for _, w := range Windows(chip) {
		l := xram[w.Reg]
		m := xram[w.Reg+1]
		h := xram[w.Reg+2]
		winPhys := uint32(l) | uint32(m)<<8 | uint32(h&0b11)<<16

		if phys >= winPhys && phys < winPhys+uint32(w.Size) {
			idx := int(w.Base) + int(phys-winPhys)
			if idx >= 0 && idx < len(xram) {
				return xram[idx]
			}
			return 0xFF
		}
	}

	if int(phys) < len(progMem) {
		return progMem[phys]
	}
	return 0xFF
}
