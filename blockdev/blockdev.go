// Package blockdev defines the block device contract the filesystem stack
// is built on, decoupled from any particular controller.
//
// The retained kernel's SD card driver (kernel/src/fs/sd.rs) talks directly
// to MMIO registers; that layer is out of scope here. Device is its
// replacement contract, and SliceDevice is a RAM-backed implementation
// (via github.com/xaionaro-go/bytesextra, the same library the teacher
// uses to back its disk-image test fixtures) used by tests and tools that
// operate on a disk image file loaded wholesale into memory.
package blockdev

import (
	"io"

	"github.com/armcore/kernelcore/errkernel"
	"github.com/xaionaro-go/bytesextra"
)

// Device is a sector-addressable block device. Only ReadSector matters for
// this module's read-only filesystem; WriteSector exists so the interface
// mirrors a real block device and so a future writable implementation has
// somewhere to live.
type Device interface {
	// SectorSize returns the device's native sector size in bytes.
	SectorSize() uint64

	// ReadSector reads sector n into buf, which must be at least
	// SectorSize() bytes. Returns the number of bytes read.
	ReadSector(n uint64, buf []byte) (int, error)

	// WriteSector writes buf to sector n. Returns errkernel.ErrNotSupported
	// on a read-only device.
	WriteSector(n uint64, buf []byte) (int, error)
}

// SliceDevice is a Device backed entirely by an in-memory byte slice, the
// shape every disk image fixture in this module's tests takes.
type SliceDevice struct {
	stream     io.ReadWriteSeeker
	sectorSize uint64
	numSectors uint64
}

// NewSliceDevice wraps image as a Device with the given sector size. len
// (image) must be a multiple of sectorSize.
func NewSliceDevice(image []byte, sectorSize uint64) (*SliceDevice, error) {
	if sectorSize == 0 {
		return nil, errkernel.ErrInvalidInput.WithMessage("sector size must be nonzero")
	}
	if uint64(len(image))%sectorSize != 0 {
		return nil, errkernel.ErrInvalidInput.WithMessage("image size is not a multiple of sector size")
	}

	return &SliceDevice{
		stream:     bytesextra.NewReadWriteSeeker(image),
		sectorSize: sectorSize,
		numSectors: uint64(len(image)) / sectorSize,
	}, nil
}

// SectorSize implements Device.
func (d *SliceDevice) SectorSize() uint64 { return d.sectorSize }

// ReadSector implements Device.
func (d *SliceDevice) ReadSector(n uint64, buf []byte) (int, error) {
	if uint64(len(buf)) < d.sectorSize {
		return 0, errkernel.ErrInvalidInput.WithMessage("read buffer shorter than sector size")
	}
	if n >= d.numSectors {
		return 0, errkernel.ErrUnexpectedEOF
	}

	if _, err := d.stream.Seek(int64(n*d.sectorSize), io.SeekStart); err != nil {
		return 0, errkernel.ErrIOFailed.Wrap(err)
	}

	total := 0
	for total < int(d.sectorSize) {
		n, err := d.stream.Read(buf[total:d.sectorSize])
		total += n
		if err != nil {
			if err == io.EOF {
				return total, errkernel.ErrShortRead
			}
			return total, errkernel.ErrIOFailed.Wrap(err)
		}
		if n == 0 {
			break
		}
	}
	if total < int(d.sectorSize) {
		return total, errkernel.ErrShortRead
	}
	return total, nil
}

// WriteSector implements Device. This module's filesystem stack is
// read-only; SliceDevice rejects writes rather than silently accepting
// them.
func (d *SliceDevice) WriteSector(n uint64, buf []byte) (int, error) {
	return 0, errkernel.ErrNotSupported
}
