package heap_test

import (
	"testing"

	"github.com/armcore/kernelcore/memory/heap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedRegion(size int) heap.MemoryMapFunc {
	region := make([]byte, size)
	return func() ([]byte, bool) { return region, true }
}

func TestUninitializedAllocPanics(t *testing.T) {
	h := heap.New()
	assert.Panics(t, func() { _, _ = h.Alloc(16, 1) })
}

func TestUninitializedDeallocPanics(t *testing.T) {
	h := heap.New()
	assert.Panics(t, func() { h.Dealloc(0x1000, 16, 1) })
}

func TestInitializeThenAlloc(t *testing.T) {
	h := heap.New()
	require.NoError(t, h.Initialize(fixedRegion(1<<20), heap.DefaultConfig()))

	ptr, err := h.Alloc(32, 1)
	require.NoError(t, err)
	assert.NotZero(t, ptr)
}

func TestAllocDeallocRoundTrip(t *testing.T) {
	h := heap.New()
	require.NoError(t, h.Initialize(fixedRegion(1<<20), heap.DefaultConfig()))

	ptr, err := h.Alloc(32, 1)
	require.NoError(t, err)
	h.Dealloc(ptr, 32, 1)

	ptr2, err := h.Alloc(32, 1)
	require.NoError(t, err)
	assert.Equal(t, ptr, ptr2)
}

func TestLargeAllocRoutesThroughPages(t *testing.T) {
	h := heap.New()
	require.NoError(t, h.Initialize(fixedRegion(4<<20), heap.DefaultConfig()))

	ptr, err := h.Alloc(1<<16, 1)
	require.NoError(t, err)
	assert.NotZero(t, ptr)
}

// TestOverAlignedSmallAllocDeallocRoundTrip is a regression test for a size
// class routing asymmetry: a small size with a large alignment must be
// page-routed by both Alloc and Dealloc, computing the same
// r = max(size, align) on each side. Deciding Dealloc's path from size
// alone would send this allocation down the bin path instead, where it was
// never recorded.
func TestOverAlignedSmallAllocDeallocRoundTrip(t *testing.T) {
	h := heap.New()
	require.NoError(t, h.Initialize(fixedRegion(4<<20), heap.DefaultConfig()))

	const size, align = 16, 1 << 14 // align exceeds MaxBinOrder's slot size
	ptr, err := h.Alloc(size, align)
	require.NoError(t, err)
	require.NotZero(t, ptr)

	h.Dealloc(ptr, size, align)

	ptr2, err := h.Alloc(size, align)
	require.NoError(t, err)
	assert.Equal(t, ptr, ptr2, "freed page-routed block should be reused by the next same-shape allocation")
}

func TestFailedMemoryMapPanics(t *testing.T) {
	h := heap.New()
	assert.Panics(t, func() {
		_ = h.Initialize(func() ([]byte, bool) { return nil, false }, heap.DefaultConfig())
	})
}
