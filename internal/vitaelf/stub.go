package vitaelf

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// stubSlotSize is the fixed size of a stub slot: three NIDs plus one
// reserved word, each 32-bit little-endian.
const stubSlotSize = 16

// Stub is one entry of a .vitalink.fstubs/.vitalink.vstubs section: a
// 16-byte placeholder the linker left for an imported function or variable.
// Symbol is populated by linkStubSymbols; the import resolver fills in the
// library/module/export binding separately, keyed by this stub's address.
type Stub struct {
	Addr       uint32
	LibraryNID uint32
	ModuleNID  uint32
	TargetNID  uint32
	Symbol     *Symbol
}

// loadStubs decodes a stub section's raw bytes into a dense Stub array.
// sh_size is not required to be an exact multiple of stubSlotSize in theory,
// but in practice always is; any remainder is simply not addressable and is
// dropped, matching the original loader's integer-division slot count.
func loadStubs(sec *elf.Section) ([]Stub, error) {
	data, err := sec.Data()
	if err != nil {
		return nil, fmt.Errorf("reading stub section %q: %w", sec.Name, err)
	}

	numStubs := len(data) / stubSlotSize
	stubs := make([]Stub, numStubs)

	for i := range stubs {
		slot := data[i*stubSlotSize : (i+1)*stubSlotSize]
		stubs[i] = Stub{
			Addr:       uint32(sec.Addr) + uint32(i*stubSlotSize),
			LibraryNID: binary.LittleEndian.Uint32(slot[0:4]),
			ModuleNID:  binary.LittleEndian.Uint32(slot[4:8]),
			TargetNID:  binary.LittleEndian.Uint32(slot[8:12]),
		}
	}

	return stubs, nil
}

// linkStubSymbols binds every GLOBAL symbol of the expected type living in
// the given stub section to its stub slot, by address match. It is fatal
// for a stub-addressed global symbol to have the wrong type, to point at no
// slot, or for two symbols to address the same slot (invariant 4).
func linkStubSymbols(symbols []Symbol, stubs []Stub, stubsNdx elf.SectionIndex, wantType elf.SymType) error {
	for _, sym := range symbols {
		if sym.Binding != elf.STB_GLOBAL {
			continue
		}
		if sym.Type != elf.STT_FUNC && sym.Type != elf.STT_OBJECT {
			continue
		}
		if sym.Shndx != stubsNdx {
			continue
		}

		if sym.Type != wantType {
			return fmt.Errorf("symbol %q in section %d: want type %s, got %s: %w",
				sym.Name, stubsNdx, wantType, sym.Type, errStubTypeMismatch)
		}

		found := false
		for i := range stubs {
			if stubs[i].Addr != sym.Value {
				continue
			}
			if stubs[i].Symbol != nil {
				return fmt.Errorf("stub at 0x%06x in section %d has duplicate symbols %q and %q: %w",
					sym.Value, stubsNdx, stubs[i].Symbol.Name, sym.Name, errDuplicateStubSymbol)
			}

			s := sym
			stubs[i].Symbol = &s
			found = true
			break
		}

		if !found {
			return fmt.Errorf("symbol %q in section %d: %w", sym.Name, stubsNdx, errStubNotFound)
		}
	}

	return nil
}
