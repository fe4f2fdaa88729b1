package vfat

import (
	"io"

	"github.com/armcore/kernelcore/errkernel"
	"github.com/armcore/kernelcore/fs/dirent"
	"github.com/armcore/kernelcore/fs/fat"
)

// File is an open handle to a regular file: its first cluster, size, and
// current (cluster, byte offset) read position. Mirrors the retained
// kernel's vfat::File and its Position{cluster, offset} field.
type File struct {
	handle Handle

	firstCluster fat.ClusterID
	name         string
	meta         dirent.Metadata
	size         int64

	curCluster fat.ClusterID
	curOffset  int64
}

func newFile(h Handle, firstCluster fat.ClusterID, name string, meta dirent.Metadata, size uint32) *File {
	return &File{
		handle:       h,
		firstCluster: firstCluster,
		name:         name,
		meta:         meta,
		size:         int64(size),
		curCluster:   firstCluster,
	}
}

// Name implements Entry.
func (f *File) Name() string { return f.name }

// Metadata implements Entry.
func (f *File) Metadata() dirent.Metadata { return f.meta }

// AsFile implements Entry.
func (f *File) AsFile() (*File, bool) { return f, true }

// AsDir implements Entry.
func (f *File) AsDir() (*Dir, bool) { return nil, false }

// Size returns the file's length in bytes, as recorded in its directory
// entry.
func (f *File) Size() int64 { return f.size }

// Read implements io.Reader, filling buf from the file's current position
// and advancing it by the number of bytes read. Returns io.EOF once the
// position reaches the file's recorded size; never returns (0, nil).
//
// Mirrors the retained kernel's impl io::Read for File: each iteration
// reads at most one cluster's worth, clipped to both the cluster boundary
// and the file's remaining size, and only advances to the next cluster in
// the chain once the current one is exhausted.
func (f *File) Read(buf []byte) (int, error) {
	if f.curOffset >= f.size {
		return 0, io.EOF
	}

	var clusterSize int
	var totalRead int
	err := f.handle.borrow(func(fs *FS) error {
		clusterSize = fs.engine.ClusterSize()

		for totalRead < len(buf) && f.curOffset < f.size {
			offsetInCluster := int(f.curOffset % int64(clusterSize))
			bytesAvailable := min64(int64(clusterSize-offsetInCluster), f.size-f.curOffset)
			bytesToRead := min64(int64(len(buf)-totalRead), bytesAvailable)
			if bytesToRead == 0 {
				break
			}

			n, err := fs.engine.ReadCluster(f.curCluster, offsetInCluster, buf[totalRead:totalRead+int(bytesToRead)])
			if err != nil {
				return err
			}
			totalRead += n
			f.curOffset += int64(n)

			if int64(n) == bytesAvailable && f.curOffset < f.size {
				next, ok, err := fs.engine.NextCluster(f.curCluster)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				f.curCluster = next
			}
		}
		return nil
	})
	if err != nil {
		return totalRead, err
	}
	if totalRead == 0 {
		return 0, io.EOF
	}
	return totalRead, nil
}

// Seek implements io.Seeker. whence follows io.SeekStart/io.SeekCurrent/
// io.SeekEnd. A resulting offset outside [0, Size()] is rejected with
// errkernel.ErrInvalidInput, matching the retained kernel's seek law.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = f.curOffset + offset
	case io.SeekEnd:
		target = f.size + offset
	default:
		return 0, errkernel.ErrInvalidInput.WithMessage("unknown seek whence")
	}

	if target < 0 || target > f.size {
		return 0, errkernel.ErrInvalidInput.WithMessage("seek target out of range")
	}

	var cluster fat.ClusterID
	err := f.handle.borrow(func(fs *FS) error {
		clusterSize := fs.engine.ClusterSize()
		clusterIndex := int(target / int64(clusterSize))

		c, ok, err := fs.engine.FindCluster(f.firstCluster, clusterIndex)
		if err != nil {
			return err
		}
		if !ok && clusterIndex > 0 {
			// target sits exactly at EOF, one cluster past the chain's
			// last real link (size is a multiple of cluster size):
			// park on the last cluster instead, since Read() will
			// return io.EOF before ever dereferencing it.
			c, _, err = fs.engine.FindCluster(f.firstCluster, clusterIndex-1)
			if err != nil {
				return err
			}
		}
		cluster = c
		return nil
	})
	if err != nil {
		return 0, err
	}

	f.curCluster = cluster
	f.curOffset = target
	return target, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
