package vitaelf

import (
	"debug/elf"
	"fmt"
)

// Symbol is a materialized entry from the ELF symbol table, addressable by
// its raw symtab index (index 0 is always the reserved null symbol, kept in
// place so relocation symbol indices need no translation).
type Symbol struct {
	Name    string
	Value   uint32
	Type    elf.SymType
	Binding elf.SymBind
	Shndx   elf.SectionIndex
}

// loadSymbols materializes the dense symbol array from the ELF file's
// symbol table, rejecting a second one per spec. debug/elf.File.Symbols
// strips the conventional null entry at index 0; it's restored here so
// Symbols[i] lines up exactly with the symbol index encoded in a
// relocation's r_info.
func loadSymbols(f *elf.File) ([]Symbol, error) {
	symtabCount := 0
	for _, sec := range f.Sections {
		if sec.Type == elf.SHT_SYMTAB {
			symtabCount++
		}
	}
	if symtabCount > 1 {
		return nil, errMultipleSymtabs
	}
	if symtabCount == 0 {
		return nil, errNoSymtab
	}

	raw, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("reading symbol table: %w", err)
	}

	symbols := make([]Symbol, len(raw)+1)
	for i, sym := range raw {
		symbols[i+1] = Symbol{
			Name:    sym.Name,
			Value:   uint32(sym.Value),
			Type:    elf.ST_TYPE(sym.Info),
			Binding: elf.ST_BIND(sym.Info),
			Shndx:   sym.Section,
		}
	}

	return symbols, nil
}
