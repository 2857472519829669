package firmware

import (
	"github.com/tinkerator/psoc6prog/memmap"
	"github.com/tinkerator/psoc6prog/segment"
)

// eccFlashName is the Order tag the EccFlash bucket would carry. No memmap
// region is named this way (spec.md §6 doesn't enumerate one), so Classify
// never emits it, but Merge still needs a name to key the bucket's
// order-index lookup by.
const eccFlashName = "EccFlash"

// Merge applies the adjacent-row merger (spec.md §4.D) to every list-valued
// bucket of rec, parameterised by rowSize, and returns a new Record. Two
// segments merge when the byte gap between them is at most one row; the gap
// between them is filled with 0x00. Order is carried through from rec rather
// than rebuilt: each merged-away segment's tag is dropped from a copy of
// rec.Order in place, preserving the insertion-order invariant (spec.md §3:
// "order … recording insertion order (stable across the merge step)").
func Merge(rec *Record, rowSize uint32) *Record {
	out := &Record{
		NVuser:          rec.NVuser,
		NVWO:            rec.NVWO,
		Checksum:        rec.Checksum,
		FlashProtection: rec.FlashProtection,
		MetaData:        rec.MetaData,
		ChipProtection:  rec.ChipProtection,
		EFuse:           rec.EFuse,
		Dropped:         rec.Dropped,
	}

	// Group rec.Order's indices by tag so each list bucket's merge can be
	// told which Order slot each of its segments originally occupies.
	idxByName := map[string][]int{}
	for i, tag := range rec.Order {
		idxByName[tag] = append(idxByName[tag], i)
	}
	removed := map[int]bool{}

	mergeNamed := func(name string, segs []segment.Segment) []segment.Segment {
		idxs := idxByName[name]
		merged, kept := mergeBucket(segs, idxs, rowSize)
		keptSet := make(map[int]bool, len(kept))
		for _, k := range kept {
			keptSet[k] = true
		}
		for _, i := range idxs {
			if !keptSet[i] {
				removed[i] = true
			}
		}
		return merged
	}

	out.ApplicationFlash = mergeNamed(memmap.ApplicationFlash, rec.ApplicationFlash)
	out.EccFlash = mergeNamed(eccFlashName, rec.EccFlash)
	out.Eeprom = mergeNamed(memmap.Eeprom, rec.Eeprom)
	out.SFlash = mergeNamed(memmap.SFlashName, rec.SFlash)
	out.XIP = mergeNamed(memmap.XIP, rec.XIP)

	for i, tag := range rec.Order {
		if !removed[i] {
			out.Order = append(out.Order, tag)
		}
	}
	return out
}

// mergeBucket implements the forward/backward merge of spec.md §4.D over
// segs, carrying each surviving segment's original rec.Order index in idxs
// (parallel to segs) through to the result so Merge can drop exactly the
// consumed entries from Order. The walk is repeated until no pair merges
// (mirroring spec.md §8 Testable Property 3's idempotence requirement:
// merge(merge(R,rs),rs) == merge(R,rs)), and within each pass indices are
// visited in reverse to keep earlier indices stable across a removal
// (spec.md §4.D).
func mergeBucket(segs []segment.Segment, idxs []int, rowSize uint32) ([]segment.Segment, []int) {
	if len(segs) < 2 {
		return cloneSegs(segs), append([]int(nil), idxs...)
	}
	cur := cloneSegs(segs)
	curIdx := append([]int(nil), idxs...)
	for {
		merged := false
		for i := len(cur) - 1; i > 0; i-- {
			combined := tryMerge(cur[i-1], cur[i], rowSize)
			if combined == nil {
				continue
			}
			cur[i-1] = *combined
			if curIdx[i] < curIdx[i-1] {
				curIdx[i-1] = curIdx[i]
			}
			cur = append(cur[:i], cur[i+1:]...)
			curIdx = append(curIdx[:i], curIdx[i+1:]...)
			merged = true
		}
		if !merged {
			break
		}
	}
	return cur, curIdx
}

// tryMerge reports whether prev and curr merge, keyed on the actual byte gap
// between their ranges rather than their row-aligned endpoints: forward when
// curr.First > prev.Last && curr.First-prev.Last-1 <= rowSize, backward
// symmetrically. Overlapping or touching ranges always merge (joinForward's
// overlap branch is what makes a re-merge of an already-merged record
// idempotent). Returns nil when neither condition holds.
func tryMerge(prev, curr segment.Segment, rowSize uint32) *segment.Segment {
	switch {
	case curr.First > prev.Last:
		if curr.First-prev.Last-1 <= rowSize {
			return joinForward(prev, curr)
		}
	case prev.First > curr.Last:
		if prev.First-curr.Last-1 <= rowSize {
			return joinForward(curr, prev)
		}
	default:
		if curr.First >= prev.First {
			return joinForward(prev, curr)
		}
		return joinForward(curr, prev)
	}
	return nil
}

// joinForward concatenates two segments known to be in address order
// (first.First <= second.First), filling any gap between them with 0x00.
func joinForward(first, second segment.Segment) *segment.Segment {
	if second.First <= first.Last {
		// overlapping: just take the union, preferring
		// the later segment's bytes where they overlap so a re-merge of an
		// already-merged record (idempotence) reproduces the same bytes.
		last := first.Last
		if second.Last > last {
			last = second.Last
		}
		buf := make([]byte, last-first.First+1)
		copy(buf, first.Bytes)
		copy(buf[second.First-first.First:], second.Bytes)
		s := segment.New(first.First, buf)
		return &s
	}
	gap := second.First - first.Last - 1
	buf := make([]byte, 0, len(first.Bytes)+int(gap)+len(second.Bytes))
	buf = append(buf, first.Bytes...)
	buf = append(buf, make([]byte, gap)...)
	buf = append(buf, second.Bytes...)
	s := segment.New(first.First, buf)
	return &s
}

func cloneSegs(in []segment.Segment) []segment.Segment {
	if in == nil {
		return nil
	}
	out := make([]segment.Segment, len(in))
	copy(out, in)
	return out
}
