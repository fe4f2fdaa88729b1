// Package slab implements a size-class ("bin") allocator layered on top of
// a page allocator (package buddy): each slab is one page-sized block
// subdivided into equal slots, with an in-place trailer header tracking
// which slots are taken.
//
// This layer has no direct analogue in the retained kernel sources kept
// alongside this repository (the allocator snapshot there stops at the
// page allocator); it is built from the bin/slab state-machine description
// in the design notes this module implements — free/partial/full slab
// lists per bin, a trailer-stored bitmap header, and routing of
// oversized/overaligned requests straight to the page allocator.
package slab

import (
	"unsafe"

	"github.com/armcore/kernelcore/errkernel"
	"github.com/armcore/kernelcore/memory/bitmap"
	"github.com/armcore/kernelcore/memory/buddy"
	"github.com/armcore/kernelcore/memory/freelist"
)

// header is the trailer written at a fixed offset from the tail of every
// slab, regardless of which bin currently owns it. Keeping the offset
// fixed (sized for the smallest bin order, which has the most slots and
// so the largest bitmap) lets Free locate a slab's header from a bare
// pointer without first knowing which bin it belongs to.
//
// The first sixteen bytes double as the freelist.List link words: a
// slab's header address is exactly what gets pushed/popped/removed from
// a bin's free/partial/full lists.
type header struct {
	prev, next uintptr // owned by freelist.List; never touched directly here
	binOrder   uint
	head       uintptr
	numSlots   int
	reserved   int // trailing slots permanently set aside for this header
}

const headerFixedSize = unsafe.Sizeof(header{})

func headerAt(addr uintptr) *header {
	return (*header)(unsafe.Pointer(addr)) //nolint:govet // trailer layout by design
}

func (h *header) bitmapStorage(byteLen int) []byte {
	storageAddr := uintptr(unsafe.Pointer(h)) + headerFixedSize
	return unsafe.Slice((*byte)(unsafe.Pointer(storageAddr)), byteLen)
}

func (h *header) bitmap() bitmap.Bitmap {
	return bitmap.Wrap(h.bitmapStorage(bitmap.ByteLength(h.numSlots)), h.numSlots)
}

// bin holds the three slab lists for one size class, keyed by the slab
// header's address.
type bin struct {
	order               uint
	free, partial, full freelist.List
}

// Allocator routes small, fixed-alignment requests to size-class bins
// backed by slabs, and anything larger (or requiring alignment beyond a
// single slab) directly to the underlying page allocator.
type Allocator struct {
	pages      *buddy.Allocator
	minOrder   uint
	maxOrder   uint
	headerSize uintptr
	bins       []bin
}

// New constructs a bin allocator over pages, covering size classes
// 1<<minOrder through 1<<maxOrder bytes. maxOrder must leave room for at
// least two slots per slab (1<<(maxOrder+1) <= pages.PageSize()).
func New(pages *buddy.Allocator, minOrder, maxOrder uint) (*Allocator, error) {
	if minOrder > maxOrder {
		return nil, errkernel.ErrInvalidInput.WithMessage("slab: minOrder exceeds maxOrder")
	}
	if uintptr(1)<<(maxOrder+1) > pages.PageSize() {
		return nil, errkernel.ErrInvalidInput.WithMessage(
			"slab: maxOrder leaves fewer than two slots per slab")
	}

	maxSlots := int(pages.PageSize() >> minOrder)
	headerSize := headerFixedSize + uintptr(bitmap.ByteLength(maxSlots))
	headerSize = alignUp(headerSize, 8)
	if headerSize >= pages.PageSize() {
		return nil, errkernel.ErrInvalidInput.WithMessage(
			"slab: minOrder too small for this page size; header would consume the whole slab")
	}

	a := &Allocator{
		pages:      pages,
		minOrder:   minOrder,
		maxOrder:   maxOrder,
		headerSize: headerSize,
		bins:       make([]bin, maxOrder-minOrder+1),
	}
	for order := minOrder; order <= maxOrder; order++ {
		a.bins[order-minOrder] = bin{order: order}
	}
	return a, nil
}

func alignUp(p, align uintptr) uintptr { return (p + align - 1) &^ (align - 1) }

// Alloc returns the address of a block of at least size bytes, aligned to
// align. Alignment greater than the page allocator's page size is
// rejected. Requests larger than the largest bin's slot size (or that
// need alignment a slab slot can't naturally provide) are routed straight
// to the page allocator.
func (a *Allocator) Alloc(size, align uintptr) (uintptr, error) {
	if align > a.pages.PageSize() {
		return 0, errkernel.ErrInvalidInput.WithMessage("slab: alignment exceeds page size")
	}

	r := size
	if align > r {
		r = align
	}
	if r == 0 {
		r = 1
	}

	slabMaxSlot := uintptr(1) << a.maxOrder
	if r > slabMaxSlot {
		order := uint(0)
		for a.pages.BlockSize(order) < r {
			order++
		}
		return a.pages.Alloc(order)
	}

	order := a.minOrder
	for uintptr(1)<<order < r {
		order++
	}
	return a.allocFromBin(order)
}

func (a *Allocator) allocFromBin(order uint) (uintptr, error) {
	b := &a.bins[order-a.minOrder]

	var h *header
	if addr, ok := b.partial.Pop(); ok {
		h = headerAt(addr)
	} else if addr, ok := b.free.Pop(); ok {
		h = headerAt(addr)
	} else {
		newHeader, err := a.newSlab(order)
		if err != nil {
			return 0, err
		}
		h = newHeader
	}

	bm := h.bitmap()
	idx, ok := firstClear(bm)
	if !ok {
		return 0, errkernel.ErrFileSystemCorrupted.WithMessage(
			"slab: bin gave us a slab with no clear bits")
	}
	bm.Set(idx, true)

	headerAddr := uintptr(unsafe.Pointer(h))
	if bm.Population() == h.numSlots {
		b.full.Push(headerAddr)
	} else {
		b.partial.Push(headerAddr)
	}

	return h.head + uintptr(idx)<<order, nil
}

// newSlab asks the page allocator for a fresh page and installs a slab
// header for the given bin order at the slab's fixed trailer offset,
// reserving whatever trailing slots the header itself occupies.
func (a *Allocator) newSlab(order uint) (*header, error) {
	blockAddr, err := a.pages.Alloc(0)
	if err != nil {
		return nil, err
	}

	slotSize := uintptr(1) << order
	numSlots := int(a.pages.PageSize() / slotSize)
	headerAddr := blockAddr + a.pages.PageSize() - a.headerSize

	h := headerAt(headerAddr)
	h.binOrder = order
	h.head = blockAddr
	h.numSlots = numSlots

	bm := h.bitmap()
	reservedFrom := int(a.pages.PageSize()-a.headerSize) / int(slotSize)
	h.reserved = numSlots - reservedFrom
	for i := reservedFrom; i < numSlots; i++ {
		bm.Set(i, true)
	}

	return h, nil
}

func firstClear(bm bitmap.Bitmap) (int, bool) {
	for i := 0; i < bm.Len(); i++ {
		if !bm.Get(i) {
			return i, true
		}
	}
	return 0, false
}

// Free returns ptr, previously returned by Alloc for a size within a
// bin's range, to its slab. Freeing a pointer that was routed to the page
// allocator (because it was too large or over-aligned for any bin) is the
// caller's responsibility via the page allocator directly — Free only
// handles slab-owned slots, identified by locating a valid header at the
// slab's fixed trailer offset.
//
// A slab's header occupies a fixed number of trailing slots, permanently
// marked allocated in newSlab; "all user slots free" is population ==
// h.reserved, not population == 0 — the header's own reserved bits never
// clear, so a literal zero population is unreachable.
func (a *Allocator) Free(ptr uintptr) {
	head := a.pages.AlignToBlock(ptr, 0)
	headerAddr := head + a.pages.PageSize() - a.headerSize
	h := headerAt(headerAddr)

	order := h.binOrder
	b := &a.bins[order-a.minOrder]
	idx := int((ptr - h.head) >> order)

	bm := h.bitmap()
	wasFull := bm.Population() == h.numSlots
	bm.Set(idx, false)

	switch {
	case bm.Population() == h.reserved:
		if wasFull {
			b.full.Remove(headerAddr)
		} else {
			b.partial.Remove(headerAddr)
		}
		b.free.Push(headerAddr)
	case wasFull:
		b.full.Remove(headerAddr)
		b.partial.Push(headerAddr)
	}
}

// MaxSlotSize reports the largest size a request can have and still be
// routed to a bin by Alloc; anything bigger goes straight to the page
// allocator. Callers that need to mirror Alloc's routing decision from the
// outside (heap.Dealloc recomputing which path Alloc would have taken for
// a given size/align pair) use this instead of re-deriving maxOrder.
func (a *Allocator) MaxSlotSize() uintptr {
	return uintptr(1) << a.maxOrder
}

// SlabCounts reports how many slabs currently sit in each of a bin's
// three lists. Intended for tests and diagnostics.
func (a *Allocator) SlabCounts(order uint) (free, partial, full int) {
	b := &a.bins[order-a.minOrder]
	return b.free.Len(), b.partial.Len(), b.full.Len()
}
