// Package memmap describes the PSoC6 address-space region table and
// answers the address->region lookup that drives firmware classification.
package memmap

import "fmt"

// Region is a named, non-overlapping span of target address space.
type Region struct {
	Name   string
	Start  uint32
	Length uint32
}

// End returns the address one past the last byte of the region.
func (r Region) End() uint32 {
	return r.Start + r.Length
}

// Contains reports whether addr falls within [Start, Start+Length).
func (r Region) Contains(addr uint32) bool {
	return addr >= r.Start && addr < r.End()
}

// Region name constants. SFlash sub-regions carry their own names in the
// table below but are folded to SFlashName by Logical for merge purposes.
const (
	ApplicationFlash = "ApplicationFlash"
	Eeprom           = "Eeprom"
	SFlashUserData   = "SFlashUserData"
	SFlashNAR        = "SFlashNAR"
	SFlashPublicKey  = "SFlashPublicKey"
	SFlashTOC2       = "SFlashTOC2"
	SFlashRTOC2      = "SFlashRTOC2"
	XIP              = "XIP"
	Checksum         = "Checksum"
	MetaData         = "MetaData"
	EFuse            = "eFuse"

	// SFlashName is the folded logical bucket name every SFlash sub-region
	// maps to in FirmwareRecord.order, per spec.md §4.D.
	SFlashName = "SFlash"
)

// RowSize is the PSoC6 programmable row size in bytes.
const RowSize = 512

// PSoC6 is the static, non-overlapping region table for the PSoC6 family,
// addresses and lengths as enumerated in spec.md §6.
var PSoC6 = []Region{
	{Name: ApplicationFlash, Start: 0x10000000, Length: 0x00200000},
	{Name: Eeprom, Start: 0x14000000, Length: 0x00008000},
	{Name: SFlashUserData, Start: 0x16000800, Length: 0x00000800},
	{Name: SFlashNAR, Start: 0x16001A00, Length: 0x200},
	{Name: SFlashPublicKey, Start: 0x16005A00, Length: 0xC00},
	{Name: SFlashTOC2, Start: 0x16007C00, Length: 0x200},
	{Name: SFlashRTOC2, Start: 0x16007E00, Length: 0x200},
	{Name: XIP, Start: 0x18000000, Length: 0x78000000},
	{Name: Checksum, Start: 0x90300000, Length: 0x100},
	{Name: MetaData, Start: 0x90500000, Length: 0x100},
	{Name: EFuse, Start: 0x90700000, Length: 0x1000},
}

// isSFlash reports whether name is one of the five SFlash sub-regions.
func isSFlash(name string) bool {
	switch name {
	case SFlashUserData, SFlashNAR, SFlashPublicKey, SFlashTOC2, SFlashRTOC2:
		return true
	}
	return false
}

// Logical folds SFlash sub-region names to the single SFlashName bucket
// used by FirmwareRecord.order and the adjacent-row merger (spec.md §4.D).
func Logical(name string) string {
	if isSFlash(name) {
		return SFlashName
	}
	return name
}

// RegionOf returns the first table entry containing addr, or false if addr
// is unmapped. Table order matters only in the pathological case of
// overlapping regions, which the static table never has (spec.md §4.A).
func RegionOf(table []Region, addr uint32) (Region, bool) {
	for _, r := range table {
		if r.Contains(addr) {
			return r, true
		}
	}
	return Region{}, false
}

// AlignDown rounds addr down to the nearest multiple of size.
func AlignDown(addr, size uint32) uint32 {
	return addr &^ (size - 1)
}

// AlignUp rounds addr up to the nearest multiple of size.
func AlignUp(addr, size uint32) uint32 {
	return AlignDown(addr+size-1, size)
}

// String renders a region for debug/table output.
func (r Region) String() string {
	return fmt.Sprintf("%-16s [0x%08x,0x%08x)", r.Name, r.Start, r.End())
}
