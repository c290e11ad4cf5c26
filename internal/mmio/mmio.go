// SPDX-License-Identifier: MIT

// Package mmio is the pure, stateless half of the MMIO decoder (C3): the
// address -> (region, register, masks) table and the bit-policy math of
// spec §4.3 steps 4-6. It knows nothing about the SPI device, the
// external flash buffer, or the mailbox side effects; those are
// orchestrated by package ec, which calls Decode/Commit/ReadBack as the
// generic parts of each access and layers its own side effects on top.
//
// This is a table of rows, not a nested match: per the re-architecture
// guidance, keeping (region, offset, chip applicability, masks) as data
// rather than code makes the 0x5570/0x8587 diff reviewable at a glance
// and each row independently testable.
package mmio

import "fmt"

// Chip identifies which EC family is being decoded for.
type Chip uint16

const (
	Chip5570 Chip = 0x5570
	Chip8587 Chip = 0x8587
)

// chipSet is a small bitset of which chips a register row applies to.
type chipSet uint8

const (
	on5570 chipSet = 1 << iota
	on8587
)

const onBoth = on5570 | on8587

func (c chipSet) has(chip Chip) bool {
	switch chip {
	case Chip5570:
		return c&on5570 != 0
	case Chip8587:
		return c&on8587 != 0
	default:
		return false
	}
}

// FaultKind distinguishes the three structural error kinds spec §7
// defines.
type FaultKind int

const (
	UnknownRegion FaultKind = iota
	UnknownOffset
	ProtocolError
)

// Fault is a structural decode error. All three kinds are fatal: the
// decoder does not guess.
type Fault struct {
	Kind    FaultKind
	Addr    uint16
	Region  string
	Offset  uint16
	Detail  string
}

func (f *Fault) Error() string {
	switch f.Kind {
	case UnknownRegion:
		return fmt.Sprintf("mmio: unknown region at xram 0x%04X", f.Addr)
	case UnknownOffset:
		return fmt.Sprintf("mmio: unknown offset 0x%02X in region %s (xram 0x%04X)", f.Offset, f.Region, f.Addr)
	default:
		return fmt.Sprintf("mmio: protocol error at xram 0x%04X: %s", f.Addr, f.Detail)
	}
}

// Masks are the three access-policy bitmasks a register may declare.
// Zero value is plain read/write.
type Masks struct {
	ReadOnly   byte // bits unaffected by stores
	WriteOnly  byte // bits that always read back as zero
	WriteClear byte // bits where writing 1 clears the stored bit
}

// Register is the decoded result of one address lookup.
type Register struct {
	Region string
	Name   string
	Offset uint16
	Masks  Masks
}

type row struct {
	offset uint16
	name   string
	chips  chipSet
	masks  Masks
}

type regionDef struct {
	name string
	base uint16
	size uint16
	rows []row
}

// Register name constants used by the region table. Package ec's
// side-effect dispatch switches on RegKSOH1 by decoded name; it reaches
// ECINDDR by raw address instead.
const (
	RegECINDAR0 = "ECINDAR0"
	RegECINDAR1 = "ECINDAR1"
	RegECINDAR2 = "ECINDAR2"
	RegECINDAR3 = "ECINDAR3"
	RegECINDDR  = "ECINDDR"
	RegKSOL0    = "KSOL0"
	RegKSOH1    = "KSOH1"
)

// scarRow builds the three L/M/H rows for one SCAR window.
func scarRow(base uint16, name string, chips chipSet) []row {
	return []row{
		{offset: base, name: name + "L", chips: chips},
		{offset: base + 1, name: name + "M", chips: chips},
		{offset: base + 2, name: name + "H", chips: chips},
	}
}

var regions = []regionDef{
	{
		name: "SMFI", base: 0x1000, size: 0x0100,
		rows: concat(
			[]row{
				{offset: 0x01, name: "FPCFG", chips: onBoth},
				{offset: 0x05, name: "ECBB", chips: onBoth},
				{offset: 0x20, name: "SMECCS", chips: onBoth},
				{offset: 0x32, name: "FLHCTRL2R", chips: onBoth},
				{offset: 0x36, name: "HCTRL2R", chips: onBoth},
				{offset: 0x3B, name: RegECINDAR0, chips: onBoth},
				{offset: 0x3C, name: RegECINDAR1, chips: onBoth},
				{offset: 0x3D, name: RegECINDAR2, chips: onBoth},
				{offset: 0x3E, name: RegECINDAR3, chips: onBoth},
				{offset: 0x3F, name: RegECINDDR, chips: onBoth},
			},
			scarRow(0x40, "SCAR0", onBoth),
			scarRow(0x43, "SCAR1", on8587),
			scarRow(0x46, "SCAR2", on8587),
			scarRow(0x49, "SCAR3", on8587),
			scarRow(0x4C, "SCAR4", on8587),
		),
	},
	{
		name: "INTC", base: 0x1100, size: 0x0100,
		rows: []row{
			{offset: 0x10, name: "IVECT", chips: onBoth},
		},
	},
	{
		name: "KBC", base: 0x1200, size: 0x0200,
		rows: []row{
			{offset: 0x02, name: "KBIRQR", chips: onBoth},
			{offset: 0x104, name: "KBCSTS", chips: onBoth},
			{offset: 0x106, name: "KBHIKDOR", chips: onBoth, masks: Masks{WriteOnly: 0xFF}},
			{offset: 0x108, name: "KBHIMDOR", chips: onBoth, masks: Masks{WriteOnly: 0xFF}},
			{offset: 0x10A, name: "KBHIDIR", chips: onBoth, masks: Masks{ReadOnly: 0xFF}},
		},
	},
	{
		name: "PMC", base: 0x1500, size: 0x0100,
		rows: []row{
			{offset: 0x00, name: "PM1STS", chips: onBoth},
			{offset: 0x01, name: "PM1DO", chips: onBoth, masks: Masks{WriteOnly: 0xFF}},
			{offset: 0x04, name: "PM1DI", chips: onBoth, masks: Masks{ReadOnly: 0xFF}},
			{offset: 0x06, name: "PM1CTL", chips: onBoth},
			{offset: 0x16, name: "PM2CTL", chips: onBoth},
		},
	},
	{
		name: "GPIO", base: 0x1600, size: 0x0100,
		rows: []row{
			{offset: 0x00, name: "GCR", chips: onBoth},
			{offset: 0x07, name: "GPDRG", chips: onBoth},
			{offset: 0xE5, name: "GCR9", chips: on5570},
			{offset: 0xF2, name: "GCR3", chips: onBoth},
			{offset: 0xF5, name: "GCR6", chips: onBoth},
		},
	},
	{
		name: "PS2", base: 0x1700, size: 0x0100,
		rows: []row{
			{offset: 0x00, name: "PS2CTL0", chips: onBoth},
			{offset: 0x01, name: "PS2CTL1", chips: onBoth},
			{offset: 0x02, name: "PS2CTL2", chips: onBoth},
		},
	},
	{
		name: "PWM", base: 0x1800, size: 0x0100,
		rows: []row{
			{offset: 0x01, name: "CTR0", chips: onBoth},
			{offset: 0x0D, name: "PCSSGH", chips: onBoth},
			{offset: 0x43, name: "CTR3", chips: onBoth},
		},
	},
	{
		name: "ADC", base: 0x1900, size: 0x0100,
		rows: []row{
			{offset: 0x00, name: "ADCSTS", chips: onBoth},
			{offset: 0x01, name: "ADCCFG", chips: onBoth},
			{offset: 0x04, name: "VCH0CTL", chips: onBoth},
			{offset: 0x06, name: "VCH1CTL", chips: onBoth},
			{offset: 0x09, name: "VCH2CTL", chips: onBoth},
			{offset: 0x0C, name: "VCH3CTL", chips: onBoth},
		},
	},
	{
		name: "DAC", base: 0x1A00, size: 0x0100,
		rows: []row{
			{offset: 0x00, name: "DACCTL", chips: onBoth},
			{offset: 0x01, name: "PDREG", chips: onBoth},
		},
	},
	{
		name: "SMBUS", base: 0x1C00, size: 0x0100,
		rows: []row{
			{offset: 0x00, name: "HOSTAA", chips: onBoth, masks: Masks{ReadOnly: 0x01, WriteClear: 0x02}},
			{offset: 0x26, name: "HOSTA2", chips: on5570},
			{offset: 0x34, name: "HOSTAD", chips: onBoth},
			{offset: 0x40, name: "HOSTA3", chips: on5570},
			{offset: 0x41, name: "HOSTA4", chips: on5570},
			{offset: 0xA9, name: "HOSTCTL2", chips: on5570},
		},
	},
	{
		name: "KBSCAN", base: 0x1D00, size: 0x0100,
		rows: []row{
			{offset: 0x00, name: RegKSOL0, chips: onBoth},
			{offset: 0x01, name: RegKSOH1, chips: onBoth},
			{offset: 0x22, name: "KSOLGCTRL", chips: onBoth},
		},
	},
	{
		name: "ECPM", base: 0x1E00, size: 0x0100,
		rows: []row{
			{offset: 0x03, name: "ECPMR0", chips: onBoth},
			{offset: 0x04, name: "ECPMR1", chips: onBoth},
			{offset: 0x05, name: "ECPMR2", chips: onBoth},
			{offset: 0x06, name: "ECPMR3", chips: onBoth},
			{offset: 0x09, name: "ECPMR4", chips: onBoth},
		},
	},
	{
		name: "GCTRL", base: 0x2000, size: 0x0100,
		rows: []row{
			{offset: 0x00, name: "GCTRLIDH", chips: onBoth, masks: Masks{ReadOnly: 0xFF}},
			{offset: 0x01, name: "GCTRLIDL", chips: onBoth, masks: Masks{ReadOnly: 0xFF}},
			{offset: 0x02, name: "GCTRLVER", chips: onBoth, masks: Masks{ReadOnly: 0xFF}},
			{offset: 0x06, name: "GCTRLCFG", chips: onBoth},
		},
	},
	{
		name: "ESPI", base: 0x3100, size: 0x0200,
		rows: []row{
			{offset: 0x04, name: "ESPICFG0", chips: on5570},
			{offset: 0x05, name: "ESPICFG1", chips: on5570},
			{offset: 0x07, name: "ESPICFG2", chips: on5570},
			{offset: 0x0A, name: "ESPICFG3", chips: on5570},
			{offset: 0x0E, name: "ESPICFG4", chips: on5570},
			{offset: 0x12, name: "ESPICFG5", chips: on5570},
			{offset: 0x13, name: "ESPICFG6", chips: on5570},
			{offset: 0x16, name: "ESPICFG7", chips: on5570},
			{offset: 0x17, name: "ESPICFG8", chips: on5570},
			{offset: 0x1A, name: "ESPICFG9", chips: on5570},
			{offset: 0x1B, name: "ESPICFG10", chips: on5570},
			{offset: 0x100, name: "ESPIVW0", chips: on5570},
			{offset: 0x102, name: "ESPIVW1", chips: on5570},
			{offset: 0x103, name: "ESPIVW2", chips: on5570},
			{offset: 0x104, name: "ESPIVW3", chips: on5570},
			{offset: 0x105, name: "ESPIVW4", chips: on5570},
			{offset: 0x106, name: "ESPIVW5", chips: on5570},
			{offset: 0x107, name: "ESPIVW6", chips: on5570},
			{offset: 0x140, name: "ESPIVW7", chips: on5570},
			{offset: 0x141, name: "ESPIVW8", chips: on5570},
			{offset: 0x142, name: "ESPIVW9", chips: on5570},
			{offset: 0x143, name: "ESPIVW10", chips: on5570},
			{offset: 0x144, name: "ESPIVW11", chips: on5570},
			{offset: 0x145, name: "ESPIVW12", chips: on5570},
			{offset: 0x146, name: "ESPIVW13", chips: on5570},
			{offset: 0x147, name: "ESPIVW14", chips: on5570},
		},
	},
}

func concat(first []row, rest ...[]row) []row {
	out := append([]row{}, first...)
	for _, r := range rest {
		out = append(out, r...)
	}
	return out
}

// Decode looks up the register at addr for chip, returning its name and
// access-policy masks, or a Fault describing which of the two known kinds
// of unknown-address error occurred.
func Decode(chip Chip, addr uint16) (Register, error) {
	for _, reg := range regions {
		if addr < reg.base || addr >= reg.base+reg.size {
			continue
		}
		offset := addr - reg.base
		for _, r := range reg.rows {
			if r.offset == offset && r.chips.has(chip) {
				return Register{Region: reg.name, Name: r.name, Offset: offset, Masks: r.masks}, nil
			}
		}
		return Register{}, &Fault{Kind: UnknownOffset, Addr: addr, Region: reg.name, Offset: offset}
	}
	return Register{}, &Fault{Kind: UnknownRegion, Addr: addr}
}

// Commit applies spec §4.3 step 5: write-clear bits are cleared where new
// holds 1 (unchanged where 0); read-only bits retain their old value; all
// other bits take the value in new. The write-clear composition is
// computed first and the read-only bits are then taken from old, which is
// per-bit selection for registers whose masks are disjoint; overlapping
// ReadOnly/WriteClear bits on one register are a configuration error the
// caller should catch in table review, not at runtime (see DESIGN.md).
func Commit(old, new byte, masks Masks) byte {
	rwc := ((old &^ new) & masks.WriteClear) | (new &^ masks.WriteClear)
	return (rwc &^ masks.ReadOnly) | (old & masks.ReadOnly)
}

// ReadBack applies the write-only mask: those bits always read back as
// zero regardless of what is stored.
func ReadBack(value byte, masks Masks) byte {
	return value &^ masks.WriteOnly
}
