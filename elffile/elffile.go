// Package elffile loads ELF32 program images and emits the PT_LOAD program
// segments the firmware classifier consumes (spec.md §4.C). It builds on
// the standard library's debug/elf reader, the same approach
// ZacharyScolaro-Gopher2600's ARM ELF cartridge loader uses to turn program
// headers into flat memory images.
package elffile

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"

	"github.com/tinkerator/psoc6prog/segment"
)

// LoadError tags a load failure per spec.md §7.
type LoadError struct {
	Tag string // NotElf | NotElf32 | Truncated
	Msg string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("elf: %s: %s", e.Tag, e.Msg)
}

// ProgramSegment mirrors one ELF32 program-header-table entry.
type ProgramSegment struct {
	Type     elf.ProgType
	LoadAddr uint32 // p_paddr
	FileSize uint32 // p_filesz
	Data     []byte // len == p_memsz for PT_LOAD; empty otherwise
}

// Load parses raw ELF32 bytes and returns one ProgramSegment per
// program-header entry. Only PT_LOAD entries carry data, zero-filled to
// p_memsz with the first p_filesz bytes read from the file at p_offset.
func Load(raw []byte) ([]ProgramSegment, error) {
	if len(raw) < 4 || !bytes.Equal(raw[:4], []byte{0x7F, 'E', 'L', 'F'}) {
		return nil, &LoadError{"NotElf", "missing 0x7F 'ELF' magic"}
	}
	if len(raw) < 5 || raw[4] != 1 { // EI_CLASS == ELFCLASS32
		return nil, &LoadError{"NotElf32", "EI_CLASS is not ELFCLASS32"}
	}

	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, &LoadError{"Truncated", err.Error()}
	}
	defer f.Close()

	var out []ProgramSegment
	for _, p := range f.Progs {
		ps := ProgramSegment{
			Type:     p.Type,
			LoadAddr: uint32(p.Paddr),
			FileSize: uint32(p.Filesz),
		}
		if p.Type == elf.PT_LOAD {
			data := make([]byte, p.Memsz)
			r := p.Open()
			n, err := io.ReadFull(r, data[:p.Filesz])
			if err != nil && err != io.ErrUnexpectedEOF {
				return nil, &LoadError{"Truncated", fmt.Sprintf("PT_LOAD at 0x%08x: %v", p.Paddr, err)}
			}
			if uint64(n) != p.Filesz {
				return nil, &LoadError{"Truncated", fmt.Sprintf("PT_LOAD at 0x%08x: read %d of %d filesz bytes", p.Paddr, n, p.Filesz)}
			}
			ps.Data = data
		}
		out = append(out, ps)
	}
	return out, nil
}

// Segments converts the PT_LOAD program segments into the common Segment
// type, skipping non-PT_LOAD entries (spec.md §4.C: "other types emit empty
// data" — they contribute nothing to the firmware image).
func Segments(progs []ProgramSegment) []segment.Segment {
	var out []segment.Segment
	for _, p := range progs {
		if p.Type != elf.PT_LOAD || len(p.Data) == 0 {
			continue
		}
		out = append(out, segment.New(p.LoadAddr, p.Data))
	}
	return out
}
