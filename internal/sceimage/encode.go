package sceimage

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kyroslabs/vita-elf-create/internal/align"
	"github.com/kyroslabs/vita-elf-create/internal/imports"
	"github.com/kyroslabs/vita-elf-create/internal/vitaelf"
)

// sectionAlignment is the alignment the runtime expects of every newly
// appended segment's guest virtual address.
const sectionAlignment = 0x1000

// Image is the synthesized SCE hand-off payload: the three blobs the
// orchestrator appends to the input ELF as a new loadable segment, plus the
// guest virtual address each was placed at and a RunID tagging the build for
// diagnostics (the optional HTML report's run identifier).
type Image struct {
	RunID uuid.UUID

	ModuleInfoAddr uint32
	ModuleInfo     []byte

	ImportTableAddr uint32
	ImportTable     []byte

	RelocationTableAddr uint32
	RelocationTable     []byte
}

// Encode synthesizes module-info, import-table, and relocation-table blobs
// from a loaded ELF context and its resolved imports, laying them out as a
// single new segment appended after every existing one.
//
// moduleName and moduleNID identify the module itself (the name a sibling
// module would import this one by); resolving the module's own exports is
// out of scope (spec.md §1 only specifies the import side of the pipeline).
func Encode(ctx *vitaelf.Context, resolutions []imports.Resolution, moduleName string, moduleNID uint32) (*Image, error) {
	base, err := nextSegmentBase(ctx)
	if err != nil {
		return nil, fmt.Errorf("computing new segment base: %w", err)
	}

	info := NewModuleInfo(moduleName, moduleNID)
	infoBytes, err := info.Encode()
	if err != nil {
		return nil, fmt.Errorf("encoding module info: %w", err)
	}
	infoAddr := base

	importBase := align.Address(infoAddr+uint32(len(infoBytes)), 4)
	importBytes, err := BuildImportTable(resolutions, importBase)
	if err != nil {
		return nil, fmt.Errorf("building import table: %w", err)
	}

	relocBase := align.Address(importBase+uint32(len(importBytes)), 4)
	relocBytes, err := BuildRelocationTable(ctx.Relocations, segmentResolver(ctx))
	if err != nil {
		return nil, fmt.Errorf("building relocation table: %w", err)
	}

	info.ImportTop = importBase
	info.ImportEnd = importBase + uint32(len(importBytes))
	infoBytes, err = info.Encode()
	if err != nil {
		return nil, fmt.Errorf("re-encoding module info with import bounds: %w", err)
	}

	runID, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generating run ID: %w", err)
	}

	return &Image{
		RunID:               runID,
		ModuleInfoAddr:      infoAddr,
		ModuleInfo:          infoBytes,
		ImportTableAddr:     importBase,
		ImportTable:         importBytes,
		RelocationTableAddr: relocBase,
		RelocationTable:     relocBytes,
	}, nil
}

// nextSegmentBase finds the first free, page-aligned guest virtual address
// after every segment the input ELF already occupies.
func nextSegmentBase(ctx *vitaelf.Context) (uint32, error) {
	var top uint32
	for _, seg := range ctx.AddrSpace.Segments() {
		end := seg.VAddr + seg.MemSz
		if end > top {
			top = end
		}
	}

	return align.Address(top, sectionAlignment), nil
}

// segmentResolver adapts the context's address space into the
// section-index-to-segment-index function BuildRelocationTable needs,
// mapping a target section's first byte through the existing bijection.
func segmentResolver(ctx *vitaelf.Context) func(sectionIndex int) (int, error) {
	return func(sectionIndex int) (int, error) {
		sec := ctx.File.Sections[sectionIndex]
		return ctx.AddrSpace.VAddrToSegIndex(uint32(sec.Addr))
	}
}
