package vitaelf_test

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// testSection describes one section to splice into a hand-built ELF32
// relocatable, mirroring the handful of fields the loader actually reads.
type testSection struct {
	name      string
	typ       elf.SectionType
	flags     elf.SectionFlag
	addr      uint32
	link      uint32
	info      uint32
	addralign uint32
	entsize   uint32
	data      []byte
}

// testProg describes one program header to splice into the file.
type testProg struct {
	typ   elf.ProgType
	vaddr uint32
	memsz uint32
}

// buildARMElf assembles a minimal ELF32/ARM/little-endian relocatable file
// from the given sections and program headers, in the manner of a real
// linker's output: section data, then the string tables, then the section
// and program header tables. It is just enough for debug/elf.NewFile to
// parse back out everything the loader in this package needs.
func buildARMElf(sections []testSection, progs []testProg) []byte {
	const ehsize = 52
	const shentsize = 40
	const phentsize = 32

	names := []string{""}
	for _, s := range sections {
		names = append(names, s.name)
	}
	names = append(names, ".shstrtab")
	shstrtab, nameOffsets := buildStrtab(names)

	all := append([]testSection{{name: ""}}, sections...)
	all = append(all, testSection{name: ".shstrtab", typ: elf.SHT_STRTAB, data: shstrtab, addralign: 1})

	var buf bytes.Buffer
	buf.Write(make([]byte, ehsize))

	offsets := make([]uint32, len(all))
	for i, s := range all {
		if s.addralign > 1 {
			for buf.Len()%int(s.addralign) != 0 {
				buf.WriteByte(0)
			}
		}
		offsets[i] = uint32(buf.Len())
		buf.Write(s.data)
	}

	phoff := uint32(0)
	if len(progs) > 0 {
		for buf.Len()%4 != 0 {
			buf.WriteByte(0)
		}
		phoff = uint32(buf.Len())
		for _, p := range progs {
			var ph [phentsize]byte
			binary.LittleEndian.PutUint32(ph[0:], uint32(p.typ))
			binary.LittleEndian.PutUint32(ph[4:], 0)
			binary.LittleEndian.PutUint32(ph[8:], p.vaddr)
			binary.LittleEndian.PutUint32(ph[12:], p.vaddr)
			binary.LittleEndian.PutUint32(ph[16:], p.memsz)
			binary.LittleEndian.PutUint32(ph[20:], p.memsz)
			binary.LittleEndian.PutUint32(ph[24:], 0)
			binary.LittleEndian.PutUint32(ph[28:], 1)
			buf.Write(ph[:])
		}
	}

	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	shoff := uint32(buf.Len())

	for i, s := range all {
		var sh [shentsize]byte
		binary.LittleEndian.PutUint32(sh[0:], nameOffsets[i])
		binary.LittleEndian.PutUint32(sh[4:], uint32(s.typ))
		binary.LittleEndian.PutUint32(sh[8:], uint32(s.flags))
		binary.LittleEndian.PutUint32(sh[12:], s.addr)
		binary.LittleEndian.PutUint32(sh[16:], offsets[i])
		binary.LittleEndian.PutUint32(sh[20:], uint32(len(s.data)))
		binary.LittleEndian.PutUint32(sh[24:], s.link)
		binary.LittleEndian.PutUint32(sh[28:], s.info)
		binary.LittleEndian.PutUint32(sh[32:], s.addralign)
		binary.LittleEndian.PutUint32(sh[36:], s.entsize)
		buf.Write(sh[:])
	}

	out := buf.Bytes()

	out[0], out[1], out[2], out[3] = 0x7f, 'E', 'L', 'F'
	out[4] = 1 // ELFCLASS32
	out[5] = 1 // ELFDATA2LSB
	out[6] = 1 // EV_CURRENT
	binary.LittleEndian.PutUint16(out[16:], uint16(elf.ET_EXEC))
	binary.LittleEndian.PutUint16(out[18:], uint16(elf.EM_ARM))
	binary.LittleEndian.PutUint32(out[20:], 1)
	binary.LittleEndian.PutUint32(out[24:], 0)
	binary.LittleEndian.PutUint32(out[28:], phoff)
	binary.LittleEndian.PutUint32(out[32:], shoff)
	binary.LittleEndian.PutUint16(out[40:], ehsize)
	binary.LittleEndian.PutUint16(out[42:], phentsize)
	binary.LittleEndian.PutUint16(out[44:], uint16(len(progs)))
	binary.LittleEndian.PutUint16(out[46:], shentsize)
	binary.LittleEndian.PutUint16(out[48:], uint16(len(all)))
	binary.LittleEndian.PutUint16(out[50:], uint16(len(all)-1))

	return out
}

// buildStrtab packs a set of section names into an ELF string table,
// returning the table bytes and each name's offset within it.
func buildStrtab(names []string) ([]byte, []uint32) {
	var buf bytes.Buffer
	buf.WriteByte(0)
	offsets := make([]uint32, len(names))
	for i, n := range names {
		if n == "" {
			continue
		}
		offsets[i] = uint32(buf.Len())
		buf.WriteString(n)
		buf.WriteByte(0)
	}
	return buf.Bytes(), offsets
}

// buildSym32 packs an ELF32 symbol table entry.
func buildSym32(nameOffset uint32, value uint32, info byte, shndx uint16) []byte {
	var b [16]byte
	binary.LittleEndian.PutUint32(b[0:], nameOffset)
	binary.LittleEndian.PutUint32(b[4:], value)
	binary.LittleEndian.PutUint32(b[8:], 0)
	b[12] = info
	b[13] = 0
	binary.LittleEndian.PutUint16(b[14:], shndx)
	return b[:]
}

// buildRel32 packs an ELF32 REL entry.
func buildRel32(offset uint32, symIndex uint32, typ uint32) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:], offset)
	binary.LittleEndian.PutUint32(b[4:], elf.R_INFO32(symIndex, typ))
	return b[:]
}

// buildStub packs a 16-byte vitalink stub slot.
func buildStub(libraryNID, moduleNID, targetNID uint32) []byte {
	var b [16]byte
	binary.LittleEndian.PutUint32(b[0:], libraryNID)
	binary.LittleEndian.PutUint32(b[4:], moduleNID)
	binary.LittleEndian.PutUint32(b[8:], targetNID)
	return b[:]
}
