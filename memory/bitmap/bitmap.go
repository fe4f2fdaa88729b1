// Package bitmap implements a packed bit array over externally supplied
// storage, used by the buddy allocator's per-order parity maps and by the
// slab allocator's per-slot occupancy maps.
//
// A Bitmap never owns its storage: it is a view over a byte slice supplied
// by the caller (typically a slice of a larger reserved region), so the
// caller's storage must outlive the Bitmap.
package bitmap

import bbitmap "github.com/boljen/go-bitmap"

// Bitmap is a packed bit array. Bit i is stored little-endian within byte
// i/8, bit i%8, matching bbitmap.Bitmap's layout.
type Bitmap struct {
	bits   bbitmap.Bitmap
	length int
}

// New allocates fresh, zeroed storage for length bits. Use Wrap instead when
// the storage already exists (e.g. reserved from the buddy allocator's
// region) and must not be separately allocated.
func New(length int) Bitmap {
	return Bitmap{bits: bbitmap.NewSlice(length), length: length}
}

// Wrap constructs a Bitmap over caller-supplied storage. storage must have
// at least ByteLength(length) bytes; its lifetime must exceed the Bitmap's.
func Wrap(storage []byte, length int) Bitmap {
	return Bitmap{bits: bbitmap.Bitmap(storage), length: length}
}

// ByteLength returns the number of bytes needed to store length bits.
func ByteLength(length int) int {
	return (length + 7) / 8
}

// Len returns the number of bits in the map.
func (b Bitmap) Len() int { return b.length }

// Storage returns the underlying byte slice backing the bitmap.
func (b Bitmap) Storage() []byte { return b.bits }

// Get returns the value of bit i.
func (b Bitmap) Get(i int) bool {
	b.checkRange(i)
	return b.bits.Get(i)
}

// Set assigns the value of bit i.
func (b Bitmap) Set(i int, value bool) {
	b.checkRange(i)
	b.bits.Set(i, value)
}

// Clear sets bit i to false.
func (b Bitmap) Clear(i int) { b.Set(i, false) }

// Toggle flips bit i and returns its new value.
func (b Bitmap) Toggle(i int) bool {
	newValue := !b.Get(i)
	b.Set(i, newValue)
	return newValue
}

// IterSet calls fn for the index of every set bit, in ascending order.
func (b Bitmap) IterSet(fn func(i int)) {
	for i := 0; i < b.length; i++ {
		if b.Get(i) {
			fn(i)
		}
	}
}

// Population returns the number of set bits.
func (b Bitmap) Population() int {
	count := 0
	b.IterSet(func(int) { count++ })
	return count
}

func (b Bitmap) checkRange(i int) {
	if i < 0 || i >= b.length {
		panic("bitmap: index out of range")
	}
}
