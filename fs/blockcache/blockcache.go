// Package blockcache provides a read-through sector cache over a
// blockdev.Device, translating logical sector numbers (relative to a
// partition) into physical sector reads and caching the results.
//
// Grounded in the retained kernel's fat32/src/vfat/cache.rs (CachedDevice,
// Partition, virtual_to_physical, load_to_cache) and the teacher's
// file_systems/common/blockcache package for doc-comment register and
// naming. The filesystem stack is read-only: there is no Flush, and the
// per-entry dirty flag is kept but never written back.
package blockcache

import (
	"github.com/armcore/kernelcore/blockdev"
	"github.com/armcore/kernelcore/errkernel"
)

// Partition describes where a logical sector space begins on the
// underlying device and how wide a logical sector is there.
type Partition struct {
	// StartPhysicalSector is the first physical sector occupied by the
	// partition.
	StartPhysicalSector uint64
	// LogicalSectorSize is the size, in bytes, of one logical sector
	// inside the partition. Must be an integer multiple of the device's
	// physical sector size.
	LogicalSectorSize uint64
}

type cacheEntry struct {
	data  []byte
	dirty bool
}

// CachedDevice transparently caches sectors read from device, presenting
// a uniform logical sector space: sector n before partition.start is read
// straight from physical sector n; sector n at or after partition.start
// is mapped to logical sector n - partition.start, sized
// partition.LogicalSectorSize.
type CachedDevice struct {
	device    blockdev.Device
	partition Partition
	cache     map[uint64]*cacheEntry
}

// New constructs a CachedDevice. Panics if the partition's logical sector
// size is smaller than the device's physical sector size, mirroring the
// precondition in cache.rs.
func New(device blockdev.Device, partition Partition) *CachedDevice {
	if partition.LogicalSectorSize < device.SectorSize() {
		panic("blockcache: logical sector size smaller than device sector size")
	}

	return &CachedDevice{
		device:    device,
		partition: partition,
		cache:     make(map[uint64]*cacheEntry),
	}
}

// SectorSize returns the partition's logical sector size.
func (c *CachedDevice) SectorSize() uint64 { return c.partition.LogicalSectorSize }

// virtualToPhysical maps a logical sector number to the first physical
// sector backing it and the number of physical sectors it spans.
func (c *CachedDevice) virtualToPhysical(virt uint64) (physical uint64, span uint64) {
	if virt < c.partition.StartPhysicalSector {
		return virt, 1
	}
	factor := c.partition.LogicalSectorSize / c.device.SectorSize()
	logicalOffset := virt - c.partition.StartPhysicalSector
	return c.partition.StartPhysicalSector + logicalOffset*factor, factor
}

func (c *CachedDevice) loadToCache(sector uint64) (*cacheEntry, error) {
	physical, span := c.virtualToPhysical(sector)
	physicalSectorSize := int(c.device.SectorSize())

	entry := &cacheEntry{data: make([]byte, int(span)*physicalSectorSize)}
	for i := uint64(0); i < span; i++ {
		chunk := entry.data[int(i)*physicalSectorSize : int(i+1)*physicalSectorSize]
		n, err := c.device.ReadSector(physical+i, chunk)
		if err != nil {
			return nil, err
		}
		if n != physicalSectorSize {
			return nil, errkernel.ErrShortRead
		}
	}

	c.cache[sector] = entry
	return entry, nil
}

// Get returns the cached contents of logical sector n, loading it from
// the device first if necessary.
func (c *CachedDevice) Get(n uint64) ([]byte, error) {
	entry, ok := c.cache[n]
	if !ok {
		var err error
		entry, err = c.loadToCache(n)
		if err != nil {
			return nil, err
		}
	}
	return entry.data, nil
}

// GetMut returns the cached contents of logical sector n for mutation,
// marking it dirty. The present stack never flushes dirty sectors back to
// the device; the flag is preserved for a future write-back path.
func (c *CachedDevice) GetMut(n uint64) ([]byte, error) {
	entry, ok := c.cache[n]
	if !ok {
		var err error
		entry, err = c.loadToCache(n)
		if err != nil {
			return nil, err
		}
	}
	entry.dirty = true
	return entry.data, nil
}

// ReadOffset reads into buf starting at byte offset off within logical
// sector n, returning the number of bytes copied (capped by the sector's
// length, the same behavior as an io.Reader's short read).
func (c *CachedDevice) ReadOffset(n uint64, off int, buf []byte) (int, error) {
	data, err := c.Get(n)
	if err != nil {
		return 0, err
	}
	if off > len(data) {
		return 0, errkernel.ErrInvalidInput.WithMessage("read offset past end of sector")
	}

	size := len(buf)
	if remaining := len(data) - off; remaining < size {
		size = remaining
	}
	copy(buf[:size], data[off:off+size])
	return size, nil
}

// IsDirty reports whether logical sector n has been fetched via GetMut
// and not yet flushed. Used by tests; no flush path exists yet.
func (c *CachedDevice) IsDirty(n uint64) bool {
	entry, ok := c.cache[n]
	return ok && entry.dirty
}
