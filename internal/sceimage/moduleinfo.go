// Package sceimage synthesizes the on-disk structures the target runtime's
// loader reads at module load time: the module-info header, the import
// table binding every resolved stub to its (library, module, target) NID
// triple, and the runtime's compact relocation encoding. It is the
// "hand-off" stage spec.md names but deliberately does not specify: a
// plausible consumer of a loaded vitaelf.Context and a resolved import set,
// not a byte-perfect reimplementation of the original encoder.
package sceimage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lunixbochs/struc"

	"github.com/kyroslabs/vita-elf-create/internal/iometa"
)

// moduleAttrCantStop marks the module as one the loader may not suspend;
// every module produced here sets it, matching the conservative default the
// original encoder uses absent any YAML-config override (out of scope here).
const moduleAttrCantStop = 0x8000

// ModuleInfo is the fixed-layout header the runtime reads first when it
// loads a module: its name, its own export/import table bounds (as guest
// virtual addresses), and the .ARM.exidx/.ARM.extab bounds needed to unwind
// through it.
type ModuleInfo struct {
	Attributes   uint16
	VersionMajor uint8
	VersionMinor uint8
	Name         []byte `struc:"[27]byte"`
	Type         uint8
	GPValue      uint32
	ExportTop    uint32
	ExportEnd    uint32
	ImportTop    uint32
	ImportEnd    uint32
	ModuleNID    uint32
	TLSStart     uint32
	TLSFileSize  uint32
	TLSMemSize   uint32
	ExidxTop     uint32
	ExidxEnd     uint32
	ExtabTop     uint32
	ExtabEnd     uint32
}

// NewModuleInfo builds a ModuleInfo for name, truncating or zero-padding it
// to fit the fixed 27-byte field the runtime expects.
func NewModuleInfo(name string, moduleNID uint32) *ModuleInfo {
	nameBytes := make([]byte, 27)
	copy(nameBytes, name)

	return &ModuleInfo{
		Attributes: moduleAttrCantStop,
		Name:       nameBytes,
		ModuleNID:  moduleNID,
	}
}

// WriteTo encodes the header in the runtime's little-endian layout.
func (m *ModuleInfo) WriteTo(w io.Writer) (int64, error) {
	counted := &iometa.CountingWriter{Writer: w}

	if err := struc.PackWithOptions(counted, m, &struc.Options{Order: binary.LittleEndian}); err != nil {
		return int64(counted.BytesWritten()), fmt.Errorf("encoding module info: %w", err)
	}

	return int64(counted.BytesWritten()), nil
}

// Encode returns the packed byte representation of m.
func (m *ModuleInfo) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
