package sceimage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/lunixbochs/struc"

	"github.com/kyroslabs/vita-elf-create/internal/vitaelf"
)

// runtimeReloc is the compact per-entry encoding the target loader's
// relocation processor consumes at load time: which segment the fixup
// targets, the ARM relocation type (so the loader knows which in-place
// encoding to rewrite), the relocation's r_offset as loaded (its offset
// within the target section), and the recovered addend.
// This is a simplified, byte-inefficient encoding relative to the original
// tool's packed "short"/"long" bitfield formats (out of scope per spec.md
// §1 — only the interface into this stage is specified), but it carries
// every field the loader actually needs.
type runtimeReloc struct {
	SegmentIndex uint8
	Reserved     []byte `struc:"[3]uint8"`
	Type         uint32
	Offset       uint32
	Addend       int32
}

const runtimeRelocSize = 16

// BuildRelocationTable re-encodes every Relocation recovered from the input
// ELF into the runtime's compact table, resolving each entry's ELF section
// index to a segment index via segmentOf.
func BuildRelocationTable(relocations []vitaelf.Relocation, segmentOf func(sectionIndex int) (int, error)) ([]byte, error) {
	var buf bytes.Buffer

	for i, reloc := range relocations {
		segIndex, err := segmentOf(reloc.TargetSectionIndex)
		if err != nil {
			return nil, fmt.Errorf("relocation %d: %w", i, err)
		}

		entry := runtimeReloc{
			SegmentIndex: uint8(segIndex),
			Type:         uint32(reloc.Type),
			Offset:       reloc.Offset,
			Addend:       int32(reloc.Addend),
		}

		if err := struc.PackWithOptions(&buf, &entry, &struc.Options{Order: binary.LittleEndian}); err != nil {
			return nil, fmt.Errorf("relocation %d: %w", i, err)
		}
	}

	return buf.Bytes(), nil
}
