// Package segment defines the common Segment type produced by the firmware
// parsers (hexfile, elffile) and consumed by the firmware classifier.
package segment

import "fmt"

// Segment is a contiguous byte range [First, Last] in target address space.
// Immutable once emitted by a parser. Invariant: len(Bytes) == Last-First+1.
type Segment struct {
	First uint32
	Last  uint32
	Bytes []byte
}

// New builds a Segment from a starting address and payload, computing Last.
func New(first uint32, data []byte) Segment {
	b := make([]byte, len(data))
	copy(b, data)
	last := first
	if len(b) > 0 {
		last = first + uint32(len(b)) - 1
	}
	return Segment{First: first, Last: last, Bytes: b}
}

// Len returns the number of bytes in the segment.
func (s Segment) Len() uint32 {
	return uint32(len(s.Bytes))
}

func (s Segment) String() string {
	return fmt.Sprintf("[0x%08x,0x%08x] (%d bytes)", s.First, s.Last, len(s.Bytes))
}

// Validate checks the Segment's length invariant.
func (s Segment) Validate() error {
	want := uint64(s.Last) - uint64(s.First) + 1
	if len(s.Bytes) == 0 {
		return nil
	}
	if uint64(len(s.Bytes)) != want {
		return fmt.Errorf("segment %s: len(bytes)=%d != last-first+1=%d", s, len(s.Bytes), want)
	}
	return nil
}
