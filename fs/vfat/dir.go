package vfat

import (
	"github.com/armcore/kernelcore/errkernel"
	"github.com/armcore/kernelcore/fs/dirent"
	"github.com/armcore/kernelcore/fs/fat"
)

// Dir is an open handle to a directory: its first cluster plus the name
// and metadata it was found under (the root directory has no directory
// entry of its own, so its name is empty). Mirrors the retained kernel's
// vfat::Dir.
type Dir struct {
	handle       Handle
	firstCluster fat.ClusterID
	name         string
	meta         dirent.Metadata
}

// Name implements Entry.
func (d *Dir) Name() string { return d.name }

// Metadata implements Entry.
func (d *Dir) Metadata() dirent.Metadata { return d.meta }

// AsFile implements Entry.
func (d *Dir) AsFile() (*File, bool) { return nil, false }

// AsDir implements Entry.
func (d *Dir) AsDir() (*Dir, bool) { return d, true }

// Entries reads and decodes every live directory entry in d, in on-disk
// order. Mirrors traits::Dir::entries backed by DirIter in the retained
// kernel, except it returns an already-decoded slice rather than a lazy
// iterator — this module's directories are small enough (boot, a handful
// of source files) that the simplicity is worth the one-shot cluster-chain
// read.
func (d *Dir) Entries() ([]Entry, error) {
	raw, err := d.handle.readChain(d.firstCluster)
	if err != nil {
		return nil, err
	}

	decoded := dirent.Decode(raw)
	entries := make([]Entry, len(decoded))
	for i, de := range decoded {
		entries[i] = d.handle.newEntry(de)
	}
	return entries, nil
}

// Find returns the entry named name within d, case-insensitive. Returns
// errkernel.ErrNotFound if no such entry exists.
func (d *Dir) Find(name string) (Entry, error) {
	raw, err := d.handle.readChain(d.firstCluster)
	if err != nil {
		return nil, err
	}

	decoded := dirent.Decode(raw)
	de, ok := dirent.Find(decoded, name)
	if !ok {
		return nil, errkernel.ErrNotFound
	}
	return d.handle.newEntry(de), nil
}
