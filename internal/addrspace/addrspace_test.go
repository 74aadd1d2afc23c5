package addrspace_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyroslabs/vita-elf-create/internal/addrspace"
)

// TestRoundTrip covers invariant 2: for every segment s and every address a
// in [s.vaddr, s.vaddr+s.memsz), host_to_vaddr(vaddr_to_host(a)) == a.
func TestRoundTrip(t *testing.T) {
	m := addrspace.NewMapper([]addrspace.Segment{
		{VAddr: 0x81000000, MemSz: 0x2000},
		{VAddr: 0x81010000, MemSz: 0x500},
	})

	for _, vaddr := range []uint32{0x81000000, 0x81000001, 0x81001fff, 0x81010000, 0x810104ff} {
		host, err := m.VAddrToHost(vaddr)
		require.NoError(t, err)

		back, err := m.HostToVAddr(host)
		require.NoError(t, err)

		assert.Equal(t, vaddr, back)
	}
}

// TestOutOfRange covers invariant 3: vaddr_to_host fails iff no segment
// contains the address.
func TestOutOfRange(t *testing.T) {
	m := addrspace.NewMapper([]addrspace.Segment{
		{VAddr: 0x81000000, MemSz: 0x1000},
	})

	_, err := m.VAddrToHost(0x81000000 - 1)
	assert.ErrorIs(t, err, addrspace.ErrAddressOutOfRange)

	_, err = m.VAddrToHost(0x81000000 + 0x1000)
	assert.ErrorIs(t, err, addrspace.ErrAddressOutOfRange)

	_, err = m.VAddrToHost(0x81000000 + 0xfff)
	assert.NoError(t, err)
}

// TestScenarioS4 covers segment routing: an EXIDX segment duplicating the
// address range of a LOAD segment must never be returned by
// VAddrToSegIndex.
func TestScenarioS4(t *testing.T) {
	m := addrspace.NewMapper([]addrspace.Segment{
		{VAddr: 0x80000000, MemSz: 0x10000},
		{VAddr: 0x81000000, MemSz: 0x1000},
		{VAddr: 0x80000000, MemSz: 0x200, IsEXIDX: true},
	})

	idx, err := m.VAddrToSegIndex(0x80000100)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}

func TestSegOffsetRoundTrip(t *testing.T) {
	m := addrspace.NewMapper([]addrspace.Segment{
		{VAddr: 0x81000000, MemSz: 0x1000},
	})

	host, err := m.SegOffsetToHost(0, 16)
	require.NoError(t, err)

	offset, err := m.HostToSegOffset(host, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(16), offset)

	_, err = m.SegOffsetToHost(0, 0x1000)
	assert.ErrorIs(t, err, addrspace.ErrAddressOutOfRange)

	_, err = m.SegOffsetToHost(5, 0)
	assert.ErrorIs(t, err, addrspace.ErrSegmentIndex)
}

func TestVAddrToSegOffset(t *testing.T) {
	m := addrspace.NewMapper([]addrspace.Segment{
		{VAddr: 0x81000000, MemSz: 0x1000},
	})

	offset, err := m.VAddrToSegOffset(0x81000010, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x10), offset)

	offset, err = m.VAddrToSegOffset(0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), offset)
}
