// Package kernelcore is the top-level façade: Boot wires the memory
// allocator and the FAT32 stack together the way the retained kernel's
// early init sequence does, without owning either subsystem's internals.
package kernelcore

import (
	"github.com/armcore/kernelcore/blockdev"
	"github.com/armcore/kernelcore/fs/vfat"
	"github.com/armcore/kernelcore/memory/heap"
)

// Kernel bundles the two subsystems this module provides: a process-wide
// allocator and a mounted read-only FAT32 volume. Neither depends on the
// other; Kernel exists only to hand both back from a single entry point.
type Kernel struct {
	Heap *heap.Heap
	FS   *vfat.FS
}

// Boot initializes the global allocator from mapFn and cfg, mounts device
// as a FAT32 volume, and returns both. Boot returns the first error either
// step reports; nothing is torn down, since Initialize leaves no handles
// open on failure. If mapFn reports no usable memory map, Initialize
// panics rather than returning an error.
func Boot(mapFn heap.MemoryMapFunc, cfg heap.Config, device blockdev.Device) (*Kernel, error) {
	h := heap.New()
	if err := h.Initialize(mapFn, cfg); err != nil {
		return nil, err
	}

	fs, err := vfat.Mount(device)
	if err != nil {
		return nil, err
	}

	return &Kernel{Heap: h, FS: fs}, nil
}
