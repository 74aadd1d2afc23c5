package sceimage

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lunixbochs/struc"

	"github.com/kyroslabs/vita-elf-create/internal/align"
	"github.com/kyroslabs/vita-elf-create/internal/iometa"
	"github.com/kyroslabs/vita-elf-create/internal/vitaelf"
)

const (
	elf32HeaderSize  = 52
	elf32ProgSize    = 32
	elf32SectionSize = 40

	shtProgbits = uint32(elf.SHT_PROGBITS)
	shtStrtab   = uint32(elf.SHT_STRTAB)
	shfAlloc    = uint32(elf.SHF_ALLOC)
)

// elf32Header mirrors Elf32_Ehdr: struc can't encode [16]byte identification
// bytes as anything but a slice field, so Ident is built by the caller and
// packed verbatim ahead of the rest of the fixed fields.
type elf32Header struct {
	Ident     []byte `struc:"[16]byte"`
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type elf32ProgHeader struct {
	Type   uint32
	Off    uint32
	Vaddr  uint32
	Paddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

type elf32SectionHeader struct {
	Name      uint32
	Type      uint32
	Flags     uint32
	Addr      uint32
	Off       uint32
	Size      uint32
	Link      uint32
	Info      uint32
	Addralign uint32
	Entsize   uint32
}

// WriteELF emits the output module: the entire input file, byte for byte,
// followed by a new PT_LOAD segment holding img's three blobs, an extended
// copy of the input's section-name string table, and fresh program- and
// section-header tables. Every existing section and segment keeps its
// original file offset and virtual address untouched — nothing about the
// input's own code or data layout is disturbed, only appended to, which is
// what lets every pre-existing sh_name offset stay valid against the
// extended string table (it's the old table's bytes plus new names appended
// after).
func WriteELF(ctx *vitaelf.Context, img *Image, r io.ReaderAt, inputSize int64, w io.Writer) error {
	original := make([]byte, inputSize)
	if _, err := r.ReadAt(original, 0); err != nil {
		return fmt.Errorf("reading input file: %w", err)
	}

	shstrtabBytes, err := findShstrtab(ctx.File)
	if err != nil {
		return err
	}

	blob := append(append([]byte{}, img.ModuleInfo...), img.ImportTable...)
	blob = append(blob, img.RelocationTable...)

	blobOffset := align.Address(uint32(inputSize), sectionAlignment)

	extendedShstrtab := append([]byte{}, shstrtabBytes...)
	moduleInfoNameOff := uint32(len(extendedShstrtab))
	extendedShstrtab = append(extendedShstrtab, []byte(".sceModuleInfo\x00")...)
	importNameOff := uint32(len(extendedShstrtab))
	extendedShstrtab = append(extendedShstrtab, []byte(".sceImportTable\x00")...)
	relocNameOff := uint32(len(extendedShstrtab))
	extendedShstrtab = append(extendedShstrtab, []byte(".sceRelocationTable\x00")...)
	shstrtabNameOff := nameOffset(shstrtabBytes, ".shstrtab")

	shstrtabOffset := blobOffset + uint32(len(blob))

	progs := buildProgHeaders(ctx.File, blobOffset, img)
	sections := buildSectionHeaders(ctx.File, shstrtabBytes, blobOffset, img, shstrtabOffset, uint32(len(extendedShstrtab)),
		moduleInfoNameOff, importNameOff, relocNameOff, shstrtabNameOff)

	phoff := align.Address(shstrtabOffset+uint32(len(extendedShstrtab)), 4)
	shoff := phoff + uint32(len(progs))*elf32ProgSize

	header := buildHeader(ctx.File, phoff, shoff, len(progs), len(sections), len(ctx.File.Sections)+3)

	counted := &iometa.CountingWriter{Writer: w}

	if err := struc.PackWithOptions(counted, &header, &struc.Options{Order: binary.LittleEndian}); err != nil {
		return fmt.Errorf("writing ELF header: %w", err)
	}
	if _, err := counted.Write(original[elf32HeaderSize:]); err != nil {
		return fmt.Errorf("writing original file contents: %w", err)
	}
	if err := iometa.WriteZeros(counted, int(blobOffset-uint32(inputSize))); err != nil {
		return fmt.Errorf("padding to new segment: %w", err)
	}
	if _, err := counted.Write(blob); err != nil {
		return fmt.Errorf("writing sce blob: %w", err)
	}
	if _, err := counted.Write(extendedShstrtab); err != nil {
		return fmt.Errorf("writing extended section name table: %w", err)
	}
	if err := iometa.WriteZeros(counted, int(phoff-(shstrtabOffset+uint32(len(extendedShstrtab))))); err != nil {
		return fmt.Errorf("padding to program header table: %w", err)
	}

	for i, p := range progs {
		if err := struc.PackWithOptions(counted, &p, &struc.Options{Order: binary.LittleEndian}); err != nil {
			return fmt.Errorf("writing program header %d: %w", i, err)
		}
	}
	for i, s := range sections {
		if err := struc.PackWithOptions(counted, &s, &struc.Options{Order: binary.LittleEndian}); err != nil {
			return fmt.Errorf("writing section header %d: %w", i, err)
		}
	}

	return nil
}

func buildHeader(f *elf.File, phoff, shoff uint32, phnum, shnum, shstrndx int) elf32Header {
	ident := make([]byte, 16)
	ident[0], ident[1], ident[2], ident[3] = 0x7f, 'E', 'L', 'F'
	ident[4] = 1 // ELFCLASS32
	ident[5] = 1 // ELFDATA2LSB
	ident[6] = 1 // EV_CURRENT
	ident[7] = byte(f.OSABI)
	ident[8] = f.ABIVersion

	return elf32Header{
		Ident:     ident,
		Type:      uint16(f.Type),
		Machine:   uint16(elf.EM_ARM),
		Version:   1,
		Entry:     uint32(f.Entry),
		Phoff:     phoff,
		Shoff:     shoff,
		Ehsize:    elf32HeaderSize,
		Phentsize: elf32ProgSize,
		Phnum:     uint16(phnum),
		Shentsize: elf32SectionSize,
		Shnum:     uint16(shnum),
		Shstrndx:  uint16(shstrndx),
	}
}

func buildProgHeaders(f *elf.File, blobOffset uint32, img *Image) []elf32ProgHeader {
	progs := make([]elf32ProgHeader, 0, len(f.Progs)+1)

	for _, p := range f.Progs {
		progs = append(progs, elf32ProgHeader{
			Type:   uint32(p.Type),
			Off:    uint32(p.Off),
			Vaddr:  uint32(p.Vaddr),
			Paddr:  uint32(p.Paddr),
			Filesz: uint32(p.Filesz),
			Memsz:  uint32(p.Memsz),
			Flags:  uint32(p.Flags),
			Align:  uint32(p.Align),
		})
	}

	blobSize := uint32(len(img.ModuleInfo) + len(img.ImportTable) + len(img.RelocationTable))
	progs = append(progs, elf32ProgHeader{
		Type:   uint32(elf.PT_LOAD),
		Off:    blobOffset,
		Vaddr:  img.ModuleInfoAddr,
		Paddr:  img.ModuleInfoAddr,
		Filesz: blobSize,
		Memsz:  blobSize,
		Flags:  uint32(elf.PF_R),
		Align:  sectionAlignment,
	})

	return progs
}

func buildSectionHeaders(
	f *elf.File,
	oldShstrtabBytes []byte,
	blobOffset uint32,
	img *Image,
	shstrtabOffset uint32,
	shstrtabSize uint32,
	moduleInfoNameOff, importNameOff, relocNameOff, shstrtabNameOff uint32,
) []elf32SectionHeader {
	sections := make([]elf32SectionHeader, 0, len(f.Sections)+4)

	for _, s := range f.Sections {
		sections = append(sections, elf32SectionHeader{
			Name:      nameOffset(oldShstrtabBytes, s.Name),
			Type:      uint32(s.Type),
			Flags:     uint32(s.Flags),
			Addr:      uint32(s.Addr),
			Off:       uint32(s.Offset),
			Size:      uint32(s.Size),
			Link:      s.Link,
			Info:      s.Info,
			Addralign: uint32(s.Addralign),
			Entsize:   uint32(s.Entsize),
		})
	}

	sections = append(sections,
		elf32SectionHeader{
			Name: moduleInfoNameOff, Type: shtProgbits, Flags: shfAlloc,
			Addr: img.ModuleInfoAddr, Off: blobOffset, Size: uint32(len(img.ModuleInfo)), Addralign: 4,
		},
		elf32SectionHeader{
			Name: importNameOff, Type: shtProgbits, Flags: shfAlloc,
			Addr: img.ImportTableAddr, Off: blobOffset + uint32(len(img.ModuleInfo)),
			Size: uint32(len(img.ImportTable)), Addralign: 4,
		},
		elf32SectionHeader{
			Name: relocNameOff, Type: shtProgbits, Flags: shfAlloc,
			Addr: img.RelocationTableAddr, Off: blobOffset + uint32(len(img.ModuleInfo)) + uint32(len(img.ImportTable)),
			Size: uint32(len(img.RelocationTable)), Addralign: 4,
		},
		elf32SectionHeader{
			Name: shstrtabNameOff, Type: shtStrtab, Off: shstrtabOffset, Size: shstrtabSize, Addralign: 1,
		},
	)

	return sections
}

// findShstrtab returns the raw bytes of the input file's section-name
// string table, located by the ".shstrtab" name convention every ELF
// producer this tool has seen in the wild follows.
func findShstrtab(f *elf.File) ([]byte, error) {
	for _, s := range f.Sections {
		if s.Name == ".shstrtab" && s.Type == elf.SHT_STRTAB {
			data, err := s.Data()
			if err != nil {
				return nil, fmt.Errorf("reading .shstrtab: %w", err)
			}
			return data, nil
		}
	}
	return nil, errNoShstrtab
}

// nameOffset finds name's null-terminated byte offset within an existing
// string table blob. Every section name this function is called with is
// known to already exist in table (it was parsed out of that very table by
// debug/elf), so a miss only happens for a name this file invented itself.
func nameOffset(table []byte, name string) uint32 {
	needle := append([]byte(name), 0)
	if idx := bytes.Index(table, needle); idx >= 0 {
		return uint32(idx)
	}
	return 0
}
