package elffile_test

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinkerator/psoc6prog/elffile"
)

// buildELF32 assembles a minimal little-endian ELF32 executable with one
// PT_LOAD program header, suitable for exercising elffile.Load.
func buildELF32(t *testing.T, paddr, filesz, memsz uint32, data []byte) []byte {
	t.Helper()
	require.LessOrEqual(t, int(filesz), len(data))

	const ehsize = 52
	const phentsize = 32
	phoff := uint32(ehsize)
	dataOff := phoff + phentsize

	var buf bytes.Buffer
	// e_ident
	buf.Write([]byte{0x7F, 'E', 'L', 'F', 1, 1, 1, 0})
	buf.Write(make([]byte, 8)) // padding

	le := binary.LittleEndian
	write16 := func(v uint16) { binary.Write(&buf, le, v) }
	write32 := func(v uint32) { binary.Write(&buf, le, v) }

	write16(uint16(elf.ET_EXEC)) // e_type
	write16(uint16(elf.EM_ARM))  // e_machine
	write32(1)                   // e_version
	write32(paddr)               // e_entry
	write32(phoff)               // e_phoff
	write32(0)                   // e_shoff
	write32(0)                   // e_flags
	write16(ehsize)              // e_ehsize
	write16(phentsize)           // e_phentsize
	write16(1)                   // e_phnum
	write16(0)                   // e_shentsize
	write16(0)                   // e_shnum
	write16(0)                   // e_shstrndx

	require.Equal(t, ehsize, buf.Len())

	// program header
	write32(uint32(elf.PT_LOAD)) // p_type
	write32(dataOff)             // p_offset
	write32(paddr)               // p_vaddr
	write32(paddr)               // p_paddr
	write32(filesz)              // p_filesz
	write32(memsz)               // p_memsz
	write32(uint32(elf.PF_R | elf.PF_W | elf.PF_X))
	write32(4) // p_align

	require.Equal(t, int(dataOff), buf.Len())
	buf.Write(data[:filesz])

	return buf.Bytes()
}

func TestELFZeroFill(t *testing.T) {
	// E3: one PT_LOAD p_paddr=0x10000000, p_filesz=4, p_memsz=16,
	// data=[0xDE,0xAD,0xBE,0xEF] -> segment [0x10000000..0x1000000F] =
	// DE AD BE EF 00*12
	raw := buildELF32(t, 0x10000000, 4, 16, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	progs, err := elffile.Load(raw)
	require.NoError(t, err)
	require.Len(t, progs, 1)

	segs := elffile.Segments(progs)
	require.Len(t, segs, 1)
	s := segs[0]
	require.Equal(t, uint32(0x10000000), s.First)
	require.Equal(t, uint32(0x1000000F), s.Last)
	require.Len(t, s.Bytes, 16)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, s.Bytes[:4])
	for _, b := range s.Bytes[4:] {
		require.Equal(t, byte(0), b)
	}
}

func TestNotElf(t *testing.T) {
	_, err := elffile.Load([]byte{0, 1, 2, 3, 4, 5})
	require.Error(t, err)
	var le *elffile.LoadError
	require.ErrorAs(t, err, &le)
	require.Equal(t, "NotElf", le.Tag)
}

func TestNotElf32(t *testing.T) {
	raw := []byte{0x7F, 'E', 'L', 'F', 2, 1, 1, 0}
	_, err := elffile.Load(raw)
	require.Error(t, err)
	var le *elffile.LoadError
	require.ErrorAs(t, err, &le)
	require.Equal(t, "NotElf32", le.Tag)
}

func TestTruncated(t *testing.T) {
	raw := buildELF32(t, 0x10000000, 4, 16, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	_, err := elffile.Load(raw[:len(raw)-2])
	require.Error(t, err)
	var le *elffile.LoadError
	require.ErrorAs(t, err, &le)
	require.Equal(t, "Truncated", le.Tag)
}
