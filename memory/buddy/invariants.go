package buddy

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// CheckInvariants walks every order's free list and parity bitmap and
// reports every violation of this allocator's testable properties
// (maximal coalescing, alignment, parity-bit/free-list agreement) it can
// find, rather than stopping at the first one. Not on any allocation hot
// path — it's O(total free blocks) and used by test assertions, collecting
// every violation the way mbr.ValidateAll does for the MBR.
func (a *Allocator) CheckInvariants() error {
	var result *multierror.Error

	for order := uint(0); order <= a.maxOrder; order++ {
		z := &a.zones[order]

		z.free.ForEach(func(ptr uintptr) {
			if (ptr-a.memStart)%a.BlockSize(order) != 0 {
				result = multierror.Append(result, invariantErrorf(
					"order %d: free block %#x is not aligned to its block size", order, ptr))
			}
			if order < a.maxOrder {
				if parity := z.bits.Get(a.index(z, ptr)); !parity {
					result = multierror.Append(result, invariantErrorf(
						"order %d: free block %#x has parity bit clear (buddy should appear free too)", order, ptr))
				}
			}
		})

		if order == a.maxOrder {
			continue
		}

		// Maximal coalescing: no free block at this order should have a
		// free buddy — if it did, Free would have merged them already.
		seen := map[uintptr]bool{}
		z.free.ForEach(func(ptr uintptr) { seen[ptr] = true })
		z.free.ForEach(func(ptr uintptr) {
			if seen[a.buddyOf(z, ptr)] {
				result = multierror.Append(result, invariantErrorf(
					"order %d: both buddies of block %#x are free; should have coalesced into order %d",
					order, ptr, order+1))
			}
		})
	}

	return result.ErrorOrNil()
}

func invariantErrorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
