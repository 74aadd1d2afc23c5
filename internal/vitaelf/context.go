// Package vitaelf loads a statically linked ARM ELF relocatable into a
// queryable in-memory representation: its stub-import placeholders, its
// symbol table, its recovered relocation addends, and the guest
// virtual-address space those pieces live in.
package vitaelf

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/kyroslabs/vita-elf-create/internal/addrspace"
)

// Context is the fully loaded view of an ELF relocatable, ready for import
// resolution and SCE module synthesis.
type Context struct {
	File *elf.File

	Symbols     []Symbol
	FStubs      []Stub
	VStubs      []Stub
	Relocations []Relocation

	FStubsSectionIndex int
	VStubsSectionIndex int

	AddrSpace *addrspace.Mapper
}

// Load reads and validates an ELF relocatable from r, then runs every
// sub-loader in the same order and with the same fatal post-conditions as
// the reference loader: section classification (decoding stub sections as
// they are found), symbol-table loading, relocation decoding, stub-symbol
// linking, then segment mapping.
func Load(r io.ReaderAt) (*Context, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("opening ELF file: %w", err)
	}

	if f.Machine != elf.EM_ARM {
		return nil, errNotARM
	}
	if f.Class != elf.ELFCLASS32 || f.Data != elf.ELFDATA2LSB {
		return nil, errNot32BitLittleEndian
	}

	ctx := &Context{File: f}

	fstubsNdx, vstubsNdx := -1, -1

	for i, sec := range f.Sections {
		switch {
		case sec.Type == elf.SHT_PROGBITS && sec.Name == ".vitalink.fstubs":
			if fstubsNdx != -1 {
				return nil, errMultipleFstubs
			}
			fstubsNdx = i

			stubs, err := loadStubs(sec)
			if err != nil {
				return nil, err
			}
			ctx.FStubs = stubs

		case sec.Type == elf.SHT_PROGBITS && sec.Name == ".vitalink.vstubs":
			if vstubsNdx != -1 {
				return nil, errMultipleVstubs
			}
			vstubsNdx = i

			stubs, err := loadStubs(sec)
			if err != nil {
				return nil, err
			}
			ctx.VStubs = stubs
		}
	}

	if fstubsNdx == -1 && vstubsNdx == -1 {
		return nil, errNoStubSections
	}

	ctx.FStubsSectionIndex = fstubsNdx
	ctx.VStubsSectionIndex = vstubsNdx

	symbols, err := loadSymbols(f)
	if err != nil {
		return nil, err
	}
	ctx.Symbols = symbols

	relocations, err := loadRelocations(f, symbols)
	if err != nil {
		return nil, err
	}
	hasRelSection := false
	for _, sec := range f.Sections {
		if sec.Type == elf.SHT_REL {
			hasRelSection = true
			break
		}
	}
	if !hasRelSection {
		return nil, errNoRelocations
	}
	ctx.Relocations = relocations

	if fstubsNdx != -1 {
		if err := linkStubSymbols(symbols, ctx.FStubs, elf.SectionIndex(fstubsNdx), elf.STT_FUNC); err != nil {
			return nil, err
		}
	}
	if vstubsNdx != -1 {
		if err := linkStubSymbols(symbols, ctx.VStubs, elf.SectionIndex(vstubsNdx), elf.STT_OBJECT); err != nil {
			return nil, err
		}
	}

	ctx.AddrSpace = addrspace.NewMapper(loadSegments(f))

	return ctx, nil
}
