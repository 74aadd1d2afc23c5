// Package addrspace models the guest virtual-address space of a loaded
// segment set, and the bijection between a guest virtual address and a
// (segment index, offset-within-segment) pair.
//
// The original loader obtained this bijection by mmap-ing PROT_NONE regions
// and comparing raw host pointers; Go has no portable, pointer-safe
// equivalent; instead each segment is given a disjoint range of a
// monotonically increasing "host" counter that is never dereferenced, only
// compared and subtracted, preserving the same address-arithmetic contract
// without any unsafe memory mapping.
package addrspace

import (
	"errors"
	"fmt"
)

var (
	// ErrAddressOutOfRange means a vaddr or host address didn't fall inside
	// any known segment.
	ErrAddressOutOfRange = errors.New("address out of range")
	// ErrSegmentIndex means a segment index was out of bounds for the mapper.
	ErrSegmentIndex = errors.New("segment index out of range")
)

// Segment describes one loadable program segment: its guest virtual address
// range, and the classification needed to implement the EXIDX skip rule in
// VAddrToSegIndex.
type Segment struct {
	VAddr uint32
	MemSz uint32

	// IsEXIDX marks a PT_ARM_EXIDX segment, which duplicates address ranges
	// already covered by a PT_LOAD segment's .ARM.extab/.ARM.exidx sections.
	// VAddrToSegIndex skips these so lookups always resolve to the segment
	// that is actually loaded.
	IsEXIDX bool

	// hostBase is this segment's offset into the mapper's flat host address
	// space: a pure bookkeeping value, never dereferenced.
	hostBase uint64
}

// Mapper implements the address-space bijection described in the host
// documentation: VAddr <-> host address <-> (segment index, offset).
type Mapper struct {
	segments []Segment
}

// NewMapper builds a Mapper over the given segments, assigning each one a
// disjoint range of the flat host address space in the order given.
func NewMapper(segments []Segment) *Mapper {
	laidOut := make([]Segment, len(segments))
	var next uint64
	for i, seg := range segments {
		seg.hostBase = next
		laidOut[i] = seg
		next += uint64(seg.MemSz)
	}

	return &Mapper{segments: laidOut}
}

// Segments returns the segments backing this mapper, in load order.
func (m *Mapper) Segments() []Segment {
	return m.segments
}

// VAddrToHost maps a guest virtual address to its host address surrogate.
func (m *Mapper) VAddrToHost(vaddr uint32) (uint64, error) {
	for _, seg := range m.segments {
		if vaddr >= seg.VAddr && uint64(vaddr) < uint64(seg.VAddr)+uint64(seg.MemSz) {
			return seg.hostBase + uint64(vaddr-seg.VAddr), nil
		}
	}

	return 0, fmt.Errorf("vaddr 0x%x: %w", vaddr, ErrAddressOutOfRange)
}

// HostToVAddr is the inverse of VAddrToHost.
func (m *Mapper) HostToVAddr(host uint64) (uint32, error) {
	for _, seg := range m.segments {
		top := seg.hostBase
		bottom := top + uint64(seg.MemSz)
		if host >= top && host < bottom {
			return seg.VAddr + uint32(host-top), nil
		}
	}

	return 0, fmt.Errorf("host 0x%x: %w", host, ErrAddressOutOfRange)
}

// SegOffsetToHost maps a (segment index, offset) pair to a host address.
func (m *Mapper) SegOffsetToHost(segIndex int, offset uint32) (uint64, error) {
	seg, err := m.segment(segIndex)
	if err != nil {
		return 0, err
	}

	if offset >= seg.MemSz {
		return 0, fmt.Errorf("offset 0x%x into segment %d: %w", offset, segIndex, ErrAddressOutOfRange)
	}

	return seg.hostBase + uint64(offset), nil
}

// HostToSegOffset is the inverse of SegOffsetToHost, but bound to a specific
// segment index rather than searching all segments (matching
// vita_elf_host_to_segoffset's contract).
func (m *Mapper) HostToSegOffset(host uint64, segIndex int) (uint32, error) {
	seg, err := m.segment(segIndex)
	if err != nil {
		return 0, err
	}

	top := seg.hostBase
	bottom := top + uint64(seg.MemSz)
	if host < top || host >= bottom {
		return 0, fmt.Errorf("host 0x%x not in segment %d: %w", host, segIndex, ErrAddressOutOfRange)
	}

	return uint32(host - top), nil
}

// VAddrToSegIndex finds the index of the segment containing vaddr, skipping
// any PT_ARM_EXIDX segment so that a vaddr that falls within both a data
// segment and its duplicating EXIDX segment always resolves to the former.
func (m *Mapper) VAddrToSegIndex(vaddr uint32) (int, error) {
	for i, seg := range m.segments {
		if seg.IsEXIDX {
			continue
		}
		if vaddr >= seg.VAddr && uint64(vaddr) < uint64(seg.VAddr)+uint64(seg.MemSz) {
			return i, nil
		}
	}

	return -1, fmt.Errorf("vaddr 0x%x: %w", vaddr, ErrAddressOutOfRange)
}

// VAddrToSegOffset computes vaddr's offset into the given segment without
// validating that vaddr actually falls inside it, matching the original
// loader's "may have been fuzzy-matched" contract: callers that already know
// segIndex from VAddrToSegIndex get a plain subtraction, including the
// vaddr==0 special case (used for "no value" sentinels) which always maps
// to offset 0.
func (m *Mapper) VAddrToSegOffset(vaddr uint32, segIndex int) (uint32, error) {
	seg, err := m.segment(segIndex)
	if err != nil {
		return 0, err
	}

	if vaddr == 0 {
		return 0, nil
	}

	return vaddr - seg.VAddr, nil
}

func (m *Mapper) segment(index int) (Segment, error) {
	if index < 0 || index >= len(m.segments) {
		return Segment{}, fmt.Errorf("index %d: %w", index, ErrSegmentIndex)
	}

	return m.segments[index], nil
}
