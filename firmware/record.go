// Package firmware classifies parsed Segments into PSoC6 memory-region
// buckets and merges adjacent row-aligned blocks, producing the
// FirmwareRecord the Programmer consumes (spec.md §3, §4.D).
package firmware

import (
	"github.com/tinkerator/psoc6prog/memmap"
	"github.com/tinkerator/psoc6prog/segment"
)

// Record groups classified segments the way spec.md §3 describes:
// list-valued buckets for regions that may carry multiple blocks, and
// single-valued slots for regions that only ever hold one.
type Record struct {
	// List-valued buckets.
	ApplicationFlash []segment.Segment
	EccFlash         []segment.Segment
	Eeprom           []segment.Segment
	SFlash           []segment.Segment
	XIP              []segment.Segment

	// Single-valued slots. A nil pointer means the region was never
	// populated.
	NVuser         *segment.Segment
	NVWO           *segment.Segment
	Checksum       *segment.Segment
	FlashProtection *segment.Segment
	MetaData       *segment.Segment
	ChipProtection *segment.Segment
	EFuse          *segment.Segment

	// Order records the insertion order of region tags, one per current
	// segment/slot, and drives re-serialization order (spec.md §3).
	Order []string

	// Dropped counts segments whose address did not resolve to any region
	// (spec.md §4.A: "silently dropped from the record" at classify time,
	// but we still report the count for diagnostics).
	Dropped int
}

// NVuser, NVWO, FlashProtection and ChipProtection are part of the
// FirmwareRecord data model (spec.md §3) but have no fixed address range in
// memmap.PSoC6 (spec.md §6 doesn't enumerate them), so Classify never
// populates those slots from an address-based lookup; they remain available
// on Record for a caller that sets them out of band (e.g. from a separate
// provisioning path outside this spec's scope).

// Classify locates each segment's region in table and files it into the
// appropriate bucket or slot, appending the (possibly folded) region name
// to Order. Segments in unmapped regions are skipped and counted in
// Dropped.
func Classify(table []memmap.Region, segments []segment.Segment) *Record {
	rec := &Record{}
	for _, s := range segments {
		region, ok := memmap.RegionOf(table, s.First)
		if !ok {
			rec.Dropped++
			continue
		}
		name := memmap.Logical(region.Name)
		switch name {
		case memmap.ApplicationFlash:
			rec.ApplicationFlash = append(rec.ApplicationFlash, s)
		case memmap.Eeprom:
			rec.Eeprom = append(rec.Eeprom, s)
		case memmap.SFlashName:
			rec.SFlash = append(rec.SFlash, s)
		case memmap.XIP:
			rec.XIP = append(rec.XIP, s)
		case memmap.Checksum:
			rec.Checksum = ptr(s)
		case memmap.MetaData:
			rec.MetaData = ptr(s)
		case memmap.EFuse:
			rec.EFuse = ptr(s)
		default:
			rec.Dropped++
			continue
		}
		rec.Order = append(rec.Order, name)
	}
	return rec
}

func ptr(s segment.Segment) *segment.Segment {
	v := s
	return &v
}

// AllSegments returns every segment currently held by the record, in Order.
func (r *Record) AllSegments() []segment.Segment {
	var out []segment.Segment
	idx := map[string]int{}
	for _, tag := range r.Order {
		switch tag {
		case memmap.ApplicationFlash:
			out = append(out, r.ApplicationFlash[idx[tag]])
		case memmap.Eeprom:
			out = append(out, r.Eeprom[idx[tag]])
		case memmap.SFlashName:
			out = append(out, r.SFlash[idx[tag]])
		case memmap.XIP:
			out = append(out, r.XIP[idx[tag]])
		case memmap.Checksum:
			out = append(out, *r.Checksum)
		case memmap.MetaData:
			out = append(out, *r.MetaData)
		case memmap.EFuse:
			out = append(out, *r.EFuse)
		default:
			continue
		}
		idx[tag]++
	}
	return out
}
