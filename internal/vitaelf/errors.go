package vitaelf

import "errors"

var (
	errNotARM                    = errors.New("not an ARM binary")
	errNot32BitLittleEndian      = errors.New("not a 32-bit, little-endian binary")
	errMultipleSymtabs           = errors.New("ELF file appears to have multiple symbol tables")
	errNoStubSections            = errors.New("no .vitalink stub sections in binary, probably not a Vita binary")
	errNoSymtab                  = errors.New("no symbol table in binary, perhaps stripped out")
	errNoRelocations             = errors.New("no relocation sections in binary; link with -Wl,-q")
	errDebugInfoPresent          = errors.New("binary contains debugging information; strip it before linking")
	errRelaUnsupported           = errors.New("RELA relocation sections are not supported")
	errMultipleFstubs            = errors.New("multiple .vitalink.fstubs sections in binary")
	errMultipleVstubs            = errors.New("multiple .vitalink.vstubs sections in binary")
	errSymbolIndexRange          = errors.New("relocation references out-of-range symbol index")
	errUnsupportedRelocationType = errors.New("unsupported relocation type")
	errRelocationOutOfBounds     = errors.New("relocation offset exceeds bounds of target section")
	errStubTypeMismatch          = errors.New("global symbol has unexpected type for its stub section")
	errStubNotFound              = errors.New("global symbol does not point to a valid stub")
	errDuplicateStubSymbol       = errors.New("stub already bound to a symbol")
)

// debugSectionNames are relocation sections the loader refuses to process
// per spec: debug info must be stripped before this tool ever sees the ELF.
var debugSectionNames = []string{
	".rel.debug_info",
	".rel.debug_arange",
	".rel.debug_line",
	".rel.debug_frame",
}
