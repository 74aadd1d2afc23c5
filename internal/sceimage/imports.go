package sceimage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/lunixbochs/struc"

	"github.com/kyroslabs/vita-elf-create/internal/imports"
)

// libraryImportFlag marks an import entry as referring to another module's
// export rather than a syscall-style kernel entry; the only kind this tool
// produces.
const libraryImportFlag = 0x0000

// importLibraryHeader is the fixed-size header preceding one library's NID
// and entry-point tables in the import table blob. It mirrors the general
// shape of the runtime's per-library export/import record: a NID, counts,
// and guest-address pointers to the parallel NID/entry arrays that follow.
type importLibraryHeader struct {
	Size           uint16
	Version        uint16
	Flags          uint16
	NumFunctions   uint16
	NumVars        uint16
	Reserved       uint16
	LibraryNID     uint32
	ModuleNID      uint32
	FuncNIDTable   uint32
	FuncEntryTable uint32
	VarNIDTable    uint32
	VarEntryTable  uint32
}

const importLibraryHeaderSize = 36

// libraryKey groups resolutions by the (library, module) pair the runtime
// expects one import-table entry per.
type libraryKey struct {
	libraryNID uint32
	moduleNID  uint32
}

// BuildImportTable lays out the import table for every successfully
// resolved stub in resolutions, grouped by library and module per the
// runtime's one-entry-per-module convention. Unresolved stubs are skipped:
// the orchestrator has already logged a warning for each and the overall
// run will be reported as failed, but a partial table is still emitted so
// the caller can inspect what did resolve.
//
// The returned blob is self-contained: NID tables and entry-point tables
// follow the headers inside the blob, and each header's table pointers are
// already absolute guest addresses (base, the blob's own guest virtual
// address, plus the table's byte offset), so base must be the address the
// blob is finally placed at.
func BuildImportTable(resolutions []imports.Resolution, base uint32) ([]byte, error) {
	groups := groupByLibraryModule(resolutions)

	var headers bytes.Buffer
	var tables bytes.Buffer

	// Headers come first, then each group's NID table immediately followed
	// by its entry-point table, so every offset is computed from sizes
	// already known at the point of use.
	headerAreaSize := uint32(len(groups)) * importLibraryHeaderSize
	tableAreaOffset := headerAreaSize

	for _, key := range sortedKeys(groups) {
		g := groups[key]

		funcNIDOffset := tableAreaOffset + uint32(tables.Len())
		if err := writeNIDs(&tables, g.funcNIDs); err != nil {
			return nil, err
		}
		funcEntryOffset := tableAreaOffset + uint32(tables.Len())
		if err := writeEntries(&tables, g.funcAddrs); err != nil {
			return nil, err
		}

		varNIDOffset := tableAreaOffset + uint32(tables.Len())
		if err := writeNIDs(&tables, g.varNIDs); err != nil {
			return nil, err
		}
		varEntryOffset := tableAreaOffset + uint32(tables.Len())
		if err := writeEntries(&tables, g.varAddrs); err != nil {
			return nil, err
		}

		hdr := importLibraryHeader{
			Size:           importLibraryHeaderSize,
			Flags:          libraryImportFlag,
			NumFunctions:   uint16(len(g.funcNIDs)),
			NumVars:        uint16(len(g.varNIDs)),
			LibraryNID:     key.libraryNID,
			ModuleNID:      key.moduleNID,
			FuncNIDTable:   base + funcNIDOffset,
			FuncEntryTable: base + funcEntryOffset,
			VarNIDTable:    base + varNIDOffset,
			VarEntryTable:  base + varEntryOffset,
		}

		if err := struc.PackWithOptions(&headers, &hdr, &struc.Options{Order: binary.LittleEndian}); err != nil {
			return nil, fmt.Errorf("encoding import header for library %#x module %#x: %w",
				key.libraryNID, key.moduleNID, err)
		}
	}

	return append(headers.Bytes(), tables.Bytes()...), nil
}

type libraryGroup struct {
	funcNIDs  []uint32
	funcAddrs []uint32
	varNIDs   []uint32
	varAddrs  []uint32
}

func groupByLibraryModule(resolutions []imports.Resolution) map[libraryKey]*libraryGroup {
	groups := make(map[libraryKey]*libraryGroup)

	for _, res := range resolutions {
		if !res.Resolved {
			continue
		}

		key := libraryKey{libraryNID: res.Stub.LibraryNID, moduleNID: res.Stub.ModuleNID}
		g := groups[key]
		if g == nil {
			g = &libraryGroup{}
			groups[key] = g
		}

		switch res.Kind {
		case imports.KindFunction:
			g.funcNIDs = append(g.funcNIDs, res.TargetNID)
			g.funcAddrs = append(g.funcAddrs, res.Stub.Addr)
		case imports.KindVariable:
			g.varNIDs = append(g.varNIDs, res.TargetNID)
			g.varAddrs = append(g.varAddrs, res.Stub.Addr)
		}
	}

	return groups
}

// sortedKeys returns groups' keys in a stable order, so repeated runs over
// the same input produce byte-identical output.
func sortedKeys(groups map[libraryKey]*libraryGroup) []libraryKey {
	keys := make([]libraryKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].libraryNID != keys[j].libraryNID {
			return keys[i].libraryNID < keys[j].libraryNID
		}
		return keys[i].moduleNID < keys[j].moduleNID
	})
	return keys
}

func writeNIDs(w *bytes.Buffer, nids []uint32) error {
	for _, nid := range nids {
		if err := binary.Write(w, binary.LittleEndian, nid); err != nil {
			return fmt.Errorf("writing NID table entry: %w", err)
		}
	}
	return nil
}

func writeEntries(w *bytes.Buffer, addrs []uint32) error {
	for _, addr := range addrs {
		if err := binary.Write(w, binary.LittleEndian, addr); err != nil {
			return fmt.Errorf("writing entry-point table entry: %w", err)
		}
	}
	return nil
}
