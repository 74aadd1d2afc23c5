package vitaelf

import (
	"debug/elf"

	"github.com/kyroslabs/vita-elf-create/internal/addrspace"
)

// loadSegments turns every program header into an addrspace.Segment, one
// per phdr and in phdr order, exactly as the original loader's
// calloc(segment_count, ...)/gelf_getphdr loop does: segment index is a
// direct alias of program-header index, regardless of p_type, so any later
// lookup by segment index stays consistent with the file's own phdr table.
// The original loader keys EXIDX classification off the segment's p_type,
// not any section header, so elf.PT_ARM_EXIDX is checked against
// elf.Prog.Type here rather than against a section's sh_type (debug/elf has
// no SHT_ARM_EXIDX constant at all; the two reserved values share the same
// 0x70000001 number).
func loadSegments(f *elf.File) []addrspace.Segment {
	segments := make([]addrspace.Segment, len(f.Progs))

	for i, prog := range f.Progs {
		segments[i] = addrspace.Segment{
			VAddr:   uint32(prog.Vaddr),
			MemSz:   uint32(prog.Memsz),
			IsEXIDX: prog.Type == elf.PT_ARM_EXIDX,
		}
	}

	return segments
}
