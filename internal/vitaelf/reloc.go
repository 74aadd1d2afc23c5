package vitaelf

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/lunixbochs/struc"

	"github.com/kyroslabs/vita-elf-create/internal/armrel"
)

// Relocation is one materialized REL entry: the section it targets, the
// in-section offset it rewrites, the symbol it references, and the addend
// recovered from the in-place instruction encoding.
type Relocation struct {
	TargetSectionIndex int
	Offset             uint32
	SymbolIndex        uint32
	Type               armrel.Type
	Addend             int64
}

// loadRelocations walks every SHT_REL section in the file and decodes its
// entries into Relocations, recovering each addend from the bytes already
// sitting at the relocation site. SHT_RELA sections are rejected outright:
// the Vita toolchain only ever emits REL tables, and an addend-carrying
// table would mean this binary wasn't built the way this tool expects.
func loadRelocations(f *elf.File, symbols []Symbol) ([]Relocation, error) {
	var relocations []Relocation

	for _, sec := range f.Sections {
		if sec.Type == elf.SHT_RELA {
			return nil, fmt.Errorf("section %q: %w", sec.Name, errRelaUnsupported)
		}
		if sec.Type != elf.SHT_REL {
			continue
		}

		if slices.Contains(debugSectionNames, sec.Name) {
			return nil, fmt.Errorf("section %q: %w", sec.Name, errDebugInfoPresent)
		}

		target := f.Sections[sec.Info]
		data, err := target.Data()
		if err != nil {
			return nil, fmt.Errorf("reading relocation target section %q: %w", target.Name, err)
		}

		entries, err := readRelTable(sec)
		if err != nil {
			return nil, fmt.Errorf("reading relocation section %q: %w", sec.Name, err)
		}

		for _, entry := range entries {
			if int(entry.symbolIndex) >= len(symbols) {
				return nil, fmt.Errorf("section %q, offset 0x%x, symbol %d: %w",
					sec.Name, entry.offset, entry.symbolIndex, errSymbolIndexRange)
			}

			typ, skip := armrel.Normalize(armrel.Type(entry.typ))
			if skip {
				continue
			}

			switch armrel.Classify(typ) {
			case armrel.HandleIgnore:
				continue
			case armrel.HandleInvalid:
				return nil, fmt.Errorf("section %q, offset 0x%x: relocation type %d: %w",
					sec.Name, entry.offset, entry.typ, errUnsupportedRelocationType)
			}

			if uint64(entry.offset)+4 > uint64(len(data)) {
				return nil, fmt.Errorf("section %q, offset 0x%x: %w", sec.Name, entry.offset, errRelocationOutOfBounds)
			}
			word := binary.LittleEndian.Uint32(data[entry.offset : entry.offset+4])

			symbolValue := symbols[entry.symbolIndex].Value
			addend, err := armrel.Addend(typ, word, entry.offset, symbolValue)
			if err != nil {
				return nil, fmt.Errorf("section %q, offset 0x%x: %w", sec.Name, entry.offset, err)
			}

			relocations = append(relocations, Relocation{
				TargetSectionIndex: int(sec.Info),
				Offset:             entry.offset,
				SymbolIndex:        entry.symbolIndex,
				Type:               typ,
				Addend:             addend,
			})
		}
	}

	return relocations, nil
}

type relEntry struct {
	offset      uint32
	symbolIndex uint32
	typ         uint32
}

// readRelTable decodes every entry of a SHT_REL section with struc,
// unpacking each one as a 32-bit elf.Rel32 record.
func readRelTable(sec *elf.Section) ([]relEntry, error) {
	r := sec.Open()
	numEntries := int(sec.Size / sec.Entsize)
	entries := make([]relEntry, 0, numEntries)

	for i := 0; i < numEntries; i++ {
		var rel elf.Rel32
		if err := struc.UnpackWithOptions(r, &rel, &struc.Options{Order: binary.LittleEndian}); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		entries = append(entries, relEntry{
			offset:      rel.Off,
			symbolIndex: elf.R_SYM32(rel.Info),
			typ:         elf.R_TYPE32(rel.Info),
		})
	}

	return entries, nil
}
