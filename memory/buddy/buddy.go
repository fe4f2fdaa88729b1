// Package buddy implements a power-of-two buddy page allocator over a
// physically contiguous region of memory, orders 0..=MaxOrder. It is the
// layer underneath the slab/bin allocator (package slab) and is also usable
// directly for large, page-multiple allocations.
//
// Grounded in the retained kernel's kernel/src/allocator/bin.rs
// (BuddyBlockAllocatorZone / BuddyBlockAllocator): the parity-bit bookkeeping,
// the index/buddy address formulas, and the greedy largest-order-first
// seeding walk are all carried over unchanged, just flattened from recursion
// into iteration (bounded by MaxOrder) as the kernel's own design notes call
// for in a non-tail-call-optimized setting.
package buddy

import (
	"unsafe"

	"github.com/armcore/kernelcore/errkernel"
	"github.com/armcore/kernelcore/memory/bitmap"
	"github.com/armcore/kernelcore/memory/freelist"
)

// zone holds the bookkeeping for a single order: the free list of blocks of
// that order, and the parity bitmap over that order's buddy pairs.
type zone struct {
	free  freelist.List
	bits  bitmap.Bitmap
	order uint
}

// index returns the parity bit index for the buddy pair containing ptr,
// per spec: bit i = (p - base) >> (PageOrder + order + 1).
func (a *Allocator) index(z *zone, ptr uintptr) int {
	return int((ptr - a.memStart) >> (a.pageOrder + z.order + 1))
}

// buddyOf returns the address of ptr's buddy at z's order.
func (a *Allocator) buddyOf(z *zone, ptr uintptr) uintptr {
	mask := uintptr(1) << (a.pageOrder + z.order)
	return ((ptr - a.memStart) ^ mask) + a.memStart
}

// Allocator manages a physically contiguous region of memory as
// power-of-two blocks of pages, orders 0..=MaxOrder.
type Allocator struct {
	region    []byte
	pageOrder uint
	maxOrder  uint
	memStart  uintptr
	memEnd    uintptr
	zones     []zone
}

// PageSize returns 1<<PageOrder, the allocator's smallest block size in
// bytes.
func (a *Allocator) PageSize() uintptr { return uintptr(1) << a.pageOrder }

// MaxOrder returns the highest order this allocator supports.
func (a *Allocator) MaxOrder() uint { return a.maxOrder }

// BlockSize returns the size in bytes of a block of the given order.
func (a *Allocator) BlockSize(order uint) uintptr { return a.PageSize() << order }

// New constructs a buddy allocator over region, with pages of size
// 1<<pageOrder and blocks up to order maxOrder (block size
// (1<<pageOrder)<<maxOrder).
//
// Construction reserves, from the start of region, enough bitmap storage
// for every order's parity map (sum over k of ceil(numPages>>(k+1)) + 1
// bits), aligns the remainder up to a page boundary, and seeds the free
// lists by greedily carving the aligned-down remainder into blocks from
// the largest order down to order 0 — the canonical already-coalesced
// initial state.
func New(region []byte, pageOrder, maxOrder uint) (*Allocator, error) {
	if len(region) == 0 {
		return nil, errkernel.ErrInvalidInput.WithMessage("empty memory region")
	}

	start := uintptr(unsafe.Pointer(&region[0]))
	end := start + uintptr(len(region))
	pageSize := uintptr(1) << pageOrder
	numPages := (end - start) >> pageOrder
	if numPages == 0 {
		return nil, errkernel.ErrInvalidInput.WithMessage("region smaller than one page")
	}

	a := &Allocator{
		region:    region,
		pageOrder: pageOrder,
		maxOrder:  maxOrder,
		zones:     make([]zone, maxOrder+1),
	}

	bitmapCursor := start
	for k := uint(0); k <= maxOrder; k++ {
		length := int(numPages>>(k+1)) + 1
		byteLen := bitmap.ByteLength(length)
		if bitmapCursor+uintptr(byteLen) > end {
			return nil, errkernel.ErrInvalidInput.WithMessage(
				"memory region too small to hold bitmap bookkeeping")
		}

		storageOffset := bitmapCursor - start
		storage := region[storageOffset : storageOffset+uintptr(byteLen)]
		for i := range storage {
			storage[i] = 0
		}

		a.zones[k] = zone{bits: bitmap.Wrap(storage, length), order: k}
		bitmapCursor += uintptr(byteLen)
	}

	memStart := alignUp(bitmapCursor, pageSize)
	memEnd := alignDown(end, pageSize)
	if memStart >= memEnd {
		return nil, errkernel.ErrInvalidInput.WithMessage(
			"no usable memory left after bitmap reservation")
	}

	a.memStart = memStart
	a.memEnd = memEnd

	cursor := memStart
	for order := int(maxOrder); order >= 0; order-- {
		chunk := pageSize << uint(order)
		for cursor+chunk <= memEnd {
			a.Free(cursor, uint(order))
			cursor += chunk
		}
	}

	return a, nil
}

func alignUp(p, align uintptr) uintptr   { return alignDown(p+align-1, align) }
func alignDown(p, align uintptr) uintptr { return p &^ (align - 1) }

// Alloc returns the address of a zeroed block of order order, or
// errkernel.ErrExhausted if none is available.
func (a *Allocator) Alloc(order uint) (uintptr, error) {
	if order > a.maxOrder {
		return 0, errkernel.ErrExhausted.WithMessage("order exceeds allocator's max order")
	}

	found := -1
	for o := int(order); o <= int(a.maxOrder); o++ {
		if !a.zones[o].free.IsEmpty() {
			found = o
			break
		}
	}
	if found == -1 {
		return 0, errkernel.ErrExhausted
	}

	ptr, _ := a.zones[found].free.Pop()
	a.zones[found].bits.Toggle(a.index(&a.zones[found], ptr))

	for o := found - 1; o >= int(order); o-- {
		lower := ptr
		higher := a.buddyOf(&a.zones[o], lower)
		a.releaseToZone(o, lower)
		ptr = higher
	}

	a.zeroBlock(ptr, a.BlockSize(order))
	return ptr, nil
}

// releaseToZone is the non-coalescing half of Free: used only while
// splitting a larger block during Alloc, where the sibling can never have
// a free buddy (it was just carved out of an allocated block).
func (a *Allocator) releaseToZone(order int, ptr uintptr) {
	z := &a.zones[order]
	z.bits.Toggle(a.index(z, ptr))
	z.free.Push(ptr)
}

// Free returns a block of order order to the allocator, coalescing with its
// buddy (and that buddy's buddy, and so on) as far as possible.
func (a *Allocator) Free(ptr uintptr, order uint) {
	o := order
	for {
		z := &a.zones[o]
		stillInUse := z.bits.Toggle(a.index(z, ptr))

		if o == a.maxOrder || stillInUse {
			z.free.Push(ptr)
			return
		}

		buddy := a.buddyOf(z, ptr)
		z.free.Remove(buddy)

		if buddy < ptr {
			ptr = buddy
		}
		o++
	}
}

func (a *Allocator) zeroBlock(ptr uintptr, size uintptr) {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size)
	for i := range buf {
		buf[i] = 0
	}
}

// AlignToBlock floors ptr down to the start address of the order-sized
// block that contains it. Used by the slab allocator to recover a slab's
// head address from any pointer into it.
func (a *Allocator) AlignToBlock(ptr uintptr, order uint) uintptr {
	size := a.BlockSize(order)
	offset := ptr - a.memStart
	return a.memStart + (offset &^ (size - 1))
}

// FreeBlockCount returns the number of blocks currently free at order
// order. Intended for tests and diagnostics (property S1/coalescing
// checks), not the allocation hot path.
func (a *Allocator) FreeBlockCount(order uint) int {
	return a.zones[order].free.Len()
}
