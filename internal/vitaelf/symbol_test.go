package vitaelf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildSymtabOnlyElf assembles a minimal ELF32/ARM file with only the
// sections loadSymbols cares about, for testing that function in isolation
// from the rest of the loader.
func buildSymtabOnlyElf(t *testing.T, symtabCount int) []byte {
	t.Helper()

	const ehsize = 52
	const shentsize = 40

	strtab := []byte("\x00one\x00two\x00")
	sym0 := make([]byte, 16) // null entry
	sym1 := make([]byte, 16)
	binary.LittleEndian.PutUint32(sym1[0:], 1) // "one"
	binary.LittleEndian.PutUint32(sym1[4:], 0x1000)
	symtab := append(append([]byte{}, sym0...), sym1...)

	type sec struct {
		name    string
		typ     elf.SectionType
		link    uint32
		entsize uint32
		data    []byte
	}
	secs := []sec{{name: "", typ: elf.SHT_NULL}}
	for i := 0; i < symtabCount; i++ {
		secs = append(secs, sec{name: ".symtab", typ: elf.SHT_SYMTAB, entsize: 16, data: symtab})
	}
	strtabIndex := uint32(len(secs))
	secs = append(secs, sec{name: ".strtab", typ: elf.SHT_STRTAB, data: strtab})
	for i := 1; i <= symtabCount; i++ {
		secs[i].link = strtabIndex
	}

	names := []byte("\x00")
	nameOffsets := make([]uint32, len(secs)+1)
	for i, s := range secs {
		if s.name == "" {
			continue
		}
		nameOffsets[i] = uint32(len(names))
		names = append(names, append([]byte(s.name), 0)...)
	}
	nameOffsets[len(secs)] = uint32(len(names))
	names = append(names, []byte(".shstrtab\x00")...)

	var buf bytes.Buffer
	buf.Write(make([]byte, ehsize))

	offsets := make([]uint32, len(secs)+1)
	for i, s := range secs {
		offsets[i] = uint32(buf.Len())
		buf.Write(s.data)
	}
	offsets[len(secs)] = uint32(buf.Len())
	buf.Write(names)

	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	shoff := uint32(buf.Len())

	writeShdr := func(name, typ, link, entsize, offset, size uint32) {
		var sh [shentsize]byte
		binary.LittleEndian.PutUint32(sh[0:], name)
		binary.LittleEndian.PutUint32(sh[4:], typ)
		binary.LittleEndian.PutUint32(sh[16:], offset)
		binary.LittleEndian.PutUint32(sh[20:], size)
		binary.LittleEndian.PutUint32(sh[24:], link)
		binary.LittleEndian.PutUint32(sh[32:], 1)
		binary.LittleEndian.PutUint32(sh[36:], entsize)
		buf.Write(sh[:])
	}

	for i, s := range secs {
		writeShdr(nameOffsets[i], uint32(s.typ), s.link, s.entsize, offsets[i], uint32(len(s.data)))
	}
	writeShdr(nameOffsets[len(secs)], uint32(elf.SHT_STRTAB), 0, 0, offsets[len(secs)], uint32(len(names)))

	out := buf.Bytes()
	out[0], out[1], out[2], out[3] = 0x7f, 'E', 'L', 'F'
	out[4] = 1
	out[5] = 1
	out[6] = 1
	binary.LittleEndian.PutUint16(out[16:], uint16(elf.ET_EXEC))
	binary.LittleEndian.PutUint16(out[18:], uint16(elf.EM_ARM))
	binary.LittleEndian.PutUint32(out[20:], 1)
	binary.LittleEndian.PutUint32(out[32:], shoff)
	binary.LittleEndian.PutUint16(out[40:], ehsize)
	binary.LittleEndian.PutUint16(out[46:], shentsize)
	binary.LittleEndian.PutUint16(out[48:], uint16(len(secs)+1))
	binary.LittleEndian.PutUint16(out[50:], uint16(len(secs)))

	return out
}

func TestLoadSymbolsPreservesNullIndex(t *testing.T) {
	raw := buildSymtabOnlyElf(t, 1)
	f, err := elf.NewFile(bytes.NewReader(raw))
	require.NoError(t, err)

	symbols, err := loadSymbols(f)
	require.NoError(t, err)

	require.Len(t, symbols, 2)
	assert.Equal(t, "", symbols[0].Name)
	assert.Equal(t, "one", symbols[1].Name)
	assert.Equal(t, uint32(0x1000), symbols[1].Value)
}

func TestLoadSymbolsRejectsMultipleSymtabs(t *testing.T) {
	raw := buildSymtabOnlyElf(t, 2)
	f, err := elf.NewFile(bytes.NewReader(raw))
	require.NoError(t, err)

	_, err = loadSymbols(f)
	assert.ErrorIs(t, err, errMultipleSymtabs)
}

func TestLoadSymbolsRejectsMissingSymtab(t *testing.T) {
	raw := buildSymtabOnlyElf(t, 0)
	f, err := elf.NewFile(bytes.NewReader(raw))
	require.NoError(t, err)

	_, err = loadSymbols(f)
	assert.ErrorIs(t, err, errNoSymtab)
}
