// Package hexfile parses and serializes Intel-HEX firmware images, turning
// the text record stream into the ordered Segment list the firmware
// classifier consumes (spec.md §4.B).
package hexfile

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/tinkerator/psoc6prog/segment"
)

// ParseError tags a parse failure the way spec.md §7 enumerates them.
type ParseError struct {
	Tag  string // InvalidChecksum | InvalidLength | InvalidRecord
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("hex:%d: %s: %s", e.Line, e.Tag, e.Msg)
}

func errChecksum(line int, msg string) error { return &ParseError{"InvalidChecksum", line, msg} }
func errLength(line int, msg string) error   { return &ParseError{"InvalidLength", line, msg} }
func errRecord(line int, msg string) error   { return &ParseError{"InvalidRecord", line, msg} }

const (
	recData             = 0x00
	recEOF              = 0x01
	recExtendedSegment  = 0x02
	recStartSegment     = 0x03
	recExtendedLinear   = 0x04
	recStartLinear      = 0x05
)

var lineSplit = regexp.MustCompile(`\r\n|\r|\n`)

// Result is the outcome of Parse: the ordered segments plus any non-fatal
// warnings collected along the way (a data record after the EOF record, or
// a missing EOF record).
type Result struct {
	Segments []segment.Segment
	Warnings error // *multierror.Error, nil if none
}

// Parse consumes Intel-HEX text and returns the ordered byte segments.
// Tokenisation accepts CR, LF, or CRLF line endings and ignores empty lines.
func Parse(text string) (Result, error) {
	var (
		segments    []segment.Segment
		cur         *segment.Segment
		nextAddress uint32
		upperSeg    uint32 // set by 0x02 Extended Segment Address
		upperLin    uint32 // set by 0x04 Extended Linear Address
		entryPoint  uint32
		sawEOF      bool
		warnings    *multierror.Error
	)
	_ = entryPoint

	lines := lineSplit.Split(text, -1)
	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, ":") {
			return Result{}, errRecord(lineNo, fmt.Sprintf("record does not start with ':': %q", line))
		}
		body := line[1:]
		if len(body)%2 != 0 {
			return Result{}, errLength(lineNo, "odd number of hex digits")
		}
		raw2, err := hex.DecodeString(body)
		if err != nil {
			return Result{}, errRecord(lineNo, fmt.Sprintf("invalid hex digits: %v", err))
		}
		if len(raw2) < 5 {
			return Result{}, errLength(lineNo, "record shorter than minimum 5 bytes")
		}

		byteCount := int(raw2[0])
		address := uint32(raw2[1])<<8 | uint32(raw2[2])
		recType := raw2[3]
		if len(raw2)-5 != byteCount {
			return Result{}, errLength(lineNo, fmt.Sprintf("byteCount=%d but record carries %d data bytes", byteCount, len(raw2)-5))
		}
		data := raw2[4 : 4+byteCount]
		checksum := raw2[4+byteCount]

		sum := 0
		for _, b := range raw2[:len(raw2)-1] {
			sum += int(b)
		}
		sum += int(checksum)
		if sum&0xff != 0 {
			return Result{}, errChecksum(lineNo, fmt.Sprintf("checksum 0x%02x does not satisfy sum mod 256 == 0", checksum))
		}

		switch recType {
		case recData:
			if sawEOF {
				warnings = multierror.Append(warnings, fmt.Errorf("line %d: data record after EOF", lineNo))
			}
			full := upperLin | upperSeg | address
			if cur != nil && full == nextAddress {
				cur.Bytes = append(cur.Bytes, data...)
			} else {
				if cur != nil {
					segments = append(segments, finalize(*cur))
				}
				s := segment.New(full, data)
				cur = &s
			}
			nextAddress = full + uint32(byteCount)

		case recEOF:
			if byteCount != 0 {
				return Result{}, errLength(lineNo, "EOF record must carry zero data bytes")
			}
			sawEOF = true

		case recExtendedSegment:
			if byteCount != 2 {
				return Result{}, errLength(lineNo, "extended segment address record must carry 2 data bytes")
			}
			upperSeg = (uint32(data[0])<<12 | uint32(data[1])<<4)
			if cur != nil {
				segments = append(segments, finalize(*cur))
				cur = nil
			}

		case recStartSegment:
			// Accepted, no effect on placement.

		case recExtendedLinear:
			if byteCount != 2 {
				return Result{}, errLength(lineNo, "extended linear address record must carry 2 data bytes")
			}
			upperLin = uint32(data[0])<<24 | uint32(data[1])<<16
			if cur != nil {
				segments = append(segments, finalize(*cur))
				cur = nil
			}

		case recStartLinear:
			if byteCount != 4 {
				return Result{}, errLength(lineNo, "start linear address record must carry 4 data bytes")
			}
			entryPoint = binary.BigEndian.Uint32(data)
			if cur != nil {
				segments = append(segments, finalize(*cur))
				cur = nil
			}

		default:
			return Result{}, errRecord(lineNo, fmt.Sprintf("unknown record type 0x%02x", recType))
		}
	}
	if cur != nil {
		segments = append(segments, finalize(*cur))
	}
	if !sawEOF {
		warnings = multierror.Append(warnings, fmt.Errorf("missing EOF record"))
	}

	var warnErr error
	if warnings != nil {
		warnErr = warnings.ErrorOrNil()
	}
	return Result{Segments: segments, Warnings: warnErr}, nil
}

func finalize(s segment.Segment) segment.Segment {
	if len(s.Bytes) > 0 {
		s.Last = s.First + uint32(len(s.Bytes)) - 1
	} else {
		s.Last = s.First
	}
	return s
}

// Serialize emits Intel-HEX text for segments using Extended Linear Address
// records and recLen-byte data records. Parse(Serialize(segments)) ==
// segments holds for segments that neither cross a 64 KiB boundary nor abut
// one another: Parse starts a new segment at every Extended Linear Address
// record, so a segment that crosses a 64 KiB boundary comes back split, and
// it joins contiguous data records, so abutting segments come back as one.
func Serialize(segments []segment.Segment, recLen int) string {
	if recLen <= 0 {
		recLen = 64
	}
	var buf strings.Builder
	w := bufio.NewWriter(&buf)

	var curUpper uint32 = 0xFFFFFFFF // force an ELA record before the first byte
	for _, s := range segments {
		addr := s.First
		data := s.Bytes
		for len(data) > 0 {
			upper := addr &^ 0xFFFF
			if upper != curUpper {
				hi := byte(upper >> 24)
				lo := byte(upper >> 16)
				writeRecord(w, recExtendedLinear, 0, []byte{hi, lo})
				curUpper = upper
			}
			n := len(data)
			if n > recLen {
				n = recLen
			}
			// a data record may not cross a 64KiB window since the low
			// 16 bits of addr are the record's address field.
			remInWindow := int(0x10000 - (addr & 0xFFFF))
			if n > remInWindow {
				n = remInWindow
			}
			writeRecord(w, recData, uint16(addr&0xFFFF), data[:n])
			addr += uint32(n)
			data = data[n:]
		}
	}
	writeRecord(w, recEOF, 0, nil)
	w.Flush()
	return buf.String()
}

func writeRecord(w *bufio.Writer, recType byte, addr uint16, data []byte) {
	rec := make([]byte, 0, 5+len(data)+1)
	rec = append(rec, byte(len(data)), byte(addr>>8), byte(addr), recType)
	rec = append(rec, data...)
	sum := 0
	for _, b := range rec {
		sum += int(b)
	}
	checksum := byte((0x100 - (sum & 0xff)) & 0xff)
	rec = append(rec, checksum)
	fmt.Fprintf(w, ":%s\r\n", strings.ToUpper(hex.EncodeToString(rec)))
}
