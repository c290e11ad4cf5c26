// SPDX-License-Identifier: MIT

// Package mailbox implements the host mailbox protocol (C2): the PMC/KBC
// register couplings visible to both firmware (through XRAM) and the host
// (through the 8042-style command/data ports), plus the SuperIO index/data
// latch and the H2RAM windows.
package mailbox

// Status bits shared by every mailbox (PMC, KBC keyboard, KBC mouse).
const (
	StatusOBF = 1 << 0
	StatusIBF = 1 << 1
	StatusCMD = 1 << 3
)

// Mailbox identifies one logical mailbox's XRAM offsets.
type Mailbox struct {
	Status  uint16
	DataOut uint16 // firmware -> host
	DataIn  uint16 // host -> firmware
}

// The three mailboxes defined by spec §4.2.
var (
	PMC       = Mailbox{Status: 0x1500, DataOut: 0x1501, DataIn: 0x1504}
	KBCKbd    = Mailbox{Status: 0x1304, DataOut: 0x1306, DataIn: 0x130A}
	KBCMouse  = Mailbox{Status: 0x1304, DataOut: 0x1308, DataIn: 0x130A}
)

// FirmwareWriteDataOut sets OBF as a side effect of a firmware store to
// the (write-only) data-out register. xram is the raw backing array.
func FirmwareWriteDataOut(xram []byte, mb Mailbox) {
	xram[mb.Status] |= StatusOBF
}

// HostReadData clears OBF and returns the data-out byte for a host read
// of the data port. The data-out byte is consumed (zeroed) once read, so
// a stray repeat read observes 0 rather than a stale value.
func HostReadData(xram []byte, mb Mailbox) byte {
	value := xram[mb.DataOut]
	xram[mb.Status] &^= StatusOBF
	xram[mb.DataOut] = 0
	return value
}

// HostWriteCommand sets IBF|CMD and deposits value at data-in, for a host
// write to the command port.
func HostWriteCommand(xram []byte, mb Mailbox, value byte) {
	xram[mb.Status] |= StatusIBF | StatusCMD
	xram[mb.DataIn] = value
}

// HostWriteData sets IBF and clears CMD, for a host write to the data
// port.
func HostWriteData(xram []byte, mb Mailbox, value byte) {
	xram[mb.Status] |= StatusIBF
	xram[mb.Status] &^= StatusCMD
	xram[mb.DataIn] = value
}

// FirmwareReadDataIn clears IBF, for a firmware read of the (read-only)
// data-in register.
func FirmwareReadDataIn(xram []byte, mb Mailbox) byte {
	value := xram[mb.DataIn]
	xram[mb.Status] &^= StatusIBF
	return value
}

// SuperIO models the legacy index/data side channel (ports 0x2E/0x2F).
type SuperIO struct {
	Addr byte
}

// SuperIO index/data identification offsets.
const (
	SuperIOIDHigh = 0x20
	SuperIOIDLow  = 0x21
)

// WriteIndex handles a host write to port 0x2E.
func (s *SuperIO) WriteIndex(value byte) {
	s.Addr = value
}

// ReadData handles a host read of port 0x2F given the chip id.
func (s *SuperIO) ReadData(chipID uint16) byte {
	switch s.Addr {
	case SuperIOIDHigh:
		return byte(chipID >> 8)
	case SuperIOIDLow:
		return byte(chipID)
	default:
		return 0
	}
}

// H2RAMWindow describes one decoded host-to-RAM window.
type H2RAMWindow struct {
	Base   uint16
	Length uint16
}

// H2RAM XRAM control-register offsets (spec §4.2).
const (
	RegHRAMWC     = 0x105A
	RegHRAMW0BA   = 0x105B
	RegHRAMW1BA   = 0x105C
	RegHRAMW0AAS  = 0x105D
	RegHRAMW1AAS  = 0x105E
)

// DecodeH2RAMWindows reads the five H2RAM control bytes out of xram and
// returns the two derived windows plus whether each is enabled in HRAMWC.
func DecodeH2RAMWindows(xram []byte) (windows [2]H2RAMWindow, enabled [2]bool) {
	wc := xram[RegHRAMWC]
	bases := [2]byte{xram[RegHRAMW0BA], xram[RegHRAMW1BA]}
	aas := [2]byte{xram[RegHRAMW0AAS], xram[RegHRAMW1AAS]}

	for i := 0; i < 2; i++ {
		windows[i] = H2RAMWindow{
			Base:   uint16(bases[i]) << 4,
			Length: 1 << (4 + uint(aas[i]&0x7)),
		}
		enabled[i] = wc&(1<<uint(i)) != 0
	}
	return windows, enabled
}

// H2RAMPort reports whether port falls inside an enabled H2RAM window and,
// if so, the XRAM index it maps to.
func H2RAMPort(xram []byte, port uint16) (xramIndex uint16, ok bool) {
	windows, enabled := DecodeH2RAMWindows(xram)
	for i := 0; i < 2; i++ {
		if !enabled[i] {
			continue
		}
		w := windows[i]
		if port >= w.Base && port < w.Base+w.Length {
			return port, true
		}
	}
	return 0, false
}
