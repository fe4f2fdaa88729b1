// Package heap is the process-wide allocator façade: a lock-protected
// optional allocator, built by layering memory/slab over memory/buddy.
// Nothing allocates before Initialize is called; every call before that
// panics, mirroring the retained kernel's Mutex<Option<Allocator>> and
// its "panics if uninitialized" contract in
// kernel/src/allocator/mod.rs.
package heap

import (
	"sync"

	"github.com/armcore/kernelcore/memory/buddy"
	"github.com/armcore/kernelcore/memory/slab"
)

// MemoryMapFunc returns the bounds of the region the heap should manage.
// ok is false if no usable memory map could be determined, mirroring the
// retained kernel's memory_map() returning None.
type MemoryMapFunc func() (region []byte, ok bool)

// Config fixes the allocator's page and bin geometry at Initialize time.
type Config struct {
	PageOrder    uint
	MaxPageOrder uint
	MinBinOrder  uint
	MaxBinOrder  uint
}

// DefaultConfig matches the scenario parameters used throughout this
// module's tests: 16 KiB pages (order 14), blocks up to 256 KiB (order 4
// beyond the page), and bins from 8 bytes through half a page.
func DefaultConfig() Config {
	return Config{
		PageOrder:    14,
		MaxPageOrder: 4,
		MinBinOrder:  3,
		MaxBinOrder:  13,
	}
}

type allocatorPair struct {
	pages *buddy.Allocator
	bins  *slab.Allocator
}

// Heap is the global allocator. The zero value is uninitialized; use New
// to get one in that state explicitly.
type Heap struct {
	mu    sync.Mutex
	state *allocatorPair
}

// New returns an uninitialized Heap, the analogue of the retained
// kernel's Allocator::uninitialized().
func New() *Heap {
	return &Heap{}
}

// Initialize queries mapFn for the managed region and constructs the
// underlying buddy+slab allocators in place. Calling Initialize twice
// replaces the previous allocator state; any memory handed out under the
// old state becomes invalid.
func (h *Heap) Initialize(mapFn MemoryMapFunc, cfg Config) error {
	region, ok := mapFn()
	if !ok {
		panic("heap: failed to find memory map")
	}

	pages, err := buddy.New(region, cfg.PageOrder, cfg.MaxPageOrder)
	if err != nil {
		return err
	}
	bins, err := slab.New(pages, cfg.MinBinOrder, cfg.MaxBinOrder)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = &allocatorPair{pages: pages, bins: bins}
	return nil
}

// Alloc returns the address of a block of at least size bytes aligned to
// align. Panics if the heap hasn't been initialized yet.
func (h *Heap) Alloc(size, align uintptr) (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == nil {
		panic("heap: allocator used before Initialize()")
	}
	return h.state.bins.Alloc(size, align)
}

// Dealloc returns ptr, previously obtained from Alloc(size, align), to the
// heap. Panics if the heap hasn't been initialized yet.
//
// size and align must match the arguments passed to the corresponding
// Alloc call; unlike a GC'd runtime, this allocator keeps no side table of
// live allocation sizes, exactly the information loss a Rust
// GlobalAlloc::dealloc(ptr, layout) call requires the caller to supply.
// Dealloc recomputes r = max(size, align) the same way Alloc did, so a
// request Alloc routed to the page allocator is freed through the page
// allocator here too, and one routed to a bin is freed through the bin —
// deciding on size alone (ignoring align) would send an over-aligned,
// page-routed allocation down the bin path instead, reading garbage out of
// a slab header that was never written.
func (h *Heap) Dealloc(ptr uintptr, size, align uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == nil {
		panic("heap: allocator used before Initialize()")
	}

	r := size
	if align > r {
		r = align
	}
	if r == 0 {
		r = 1
	}

	if r > h.state.bins.MaxSlotSize() {
		h.state.pages.Free(h.state.pages.AlignToBlock(ptr, 0), pageOrderFor(h.state.pages, r))
		return
	}
	h.state.bins.Free(ptr)
}

func pageOrderFor(pages *buddy.Allocator, size uintptr) uint {
	order := uint(0)
	for pages.BlockSize(order) < size {
		order++
	}
	return order
}
