// Package vfat assembles the block device, MBR, BPB, and FAT chain engine
// into a mountable, read-only FAT32 filesystem: path resolution plus File
// and Dir handles shared across a single locked FS instance.
//
// Grounded in the retained kernel's fat32/src/vfat/vfat.rs (VFat::from,
// FileSystem::open) and fat32/src/fs/mod.rs's Mutex<Option<VFat>> pattern,
// adapted per this module's concurrency design: FS.borrow stands in for
// the Rust RefCell's borrow_mut, a single mutex serializing every access
// instead of a borrow-checked reference count.
package vfat

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/armcore/kernelcore/blockdev"
	"github.com/armcore/kernelcore/errkernel"
	"github.com/armcore/kernelcore/fs/blockcache"
	"github.com/armcore/kernelcore/fs/bpb"
	"github.com/armcore/kernelcore/fs/dirent"
	"github.com/armcore/kernelcore/fs/fat"
	"github.com/armcore/kernelcore/fs/mbr"
)

// FS is a mounted FAT32 volume. All state lives behind a single mutex;
// File and Dir never touch it directly, only through a Handle's borrow.
type FS struct {
	mu sync.Mutex

	device      *blockcache.CachedDevice
	engine      *fat.Engine
	rootCluster fat.ClusterID
}

// Mount reads the MBR and FAT32 BPB from device, locates the first FAT32
// partition, and constructs an FS over it. Mirrors VFat::from in the
// retained kernel.
func Mount(device blockdev.Device) (*FS, error) {
	record, err := mbr.Read(device)
	if err != nil {
		return nil, err
	}

	_, partition, err := record.FindFAT32()
	if err != nil {
		return nil, err
	}

	b, err := bpb.Read(device, uint64(partition.LBAStart))
	if err != nil {
		return nil, err
	}

	cached := blockcache.New(device, blockcache.Partition{
		StartPhysicalSector: uint64(partition.LBAStart),
		LogicalSectorSize:   uint64(b.BytesPerSector),
	})

	// The cache numbers the partition's sectors from its first physical
	// sector, so the BPB's partition-relative offsets are shifted by it.
	partitionStart := uint64(partition.LBAStart)
	engine := fat.NewEngine(
		cached,
		b.BytesPerSector,
		b.SectorsPerCluster,
		partitionStart+b.FATStartSector(),
		partitionStart+b.DataStartSector(),
	)

	return &FS{
		device:      cached,
		engine:      engine,
		rootCluster: fat.NewClusterID(b.RootCluster),
	}, nil
}

// borrow acquires fs's lock for the duration of fn. Calling Open, Find, or
// Entries again from within fn deadlocks rather than silently corrupting
// state — nested re-entry into the filesystem lock is a programmer error,
// exactly as the retained kernel's RefCell panics on re-entrant borrow.
func (fs *FS) borrow(fn func(*FS) error) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fn(fs)
}

// Handle is a shared reference to a mounted FS, held by every File and Dir
// opened from it. Its lifetime is independent of any one File or Dir: the
// FS outlives every handle created from it.
type Handle struct {
	fs *FS
}

func (h Handle) borrow(fn func(*FS) error) error { return h.fs.borrow(fn) }

func (h Handle) readChain(start fat.ClusterID) ([]byte, error) {
	var raw []byte
	err := h.borrow(func(fs *FS) error {
		var err error
		raw, err = fs.engine.ReadChain(start)
		return err
	})
	return raw, err
}

func (h Handle) rootDir() *Dir {
	return &Dir{
		handle:       h,
		firstCluster: h.fs.rootCluster,
		name:         "",
		meta:         dirent.Metadata{Attributes: dirent.AttrDirectory},
	}
}

func (h Handle) newEntry(d dirent.Decoded) Entry {
	if d.IsDir {
		return &Dir{
			handle:       h,
			firstCluster: fat.NewClusterID(d.FirstCluster),
			name:         d.Name,
			meta:         d.Metadata,
		}
	}
	return newFile(h, fat.NewClusterID(d.FirstCluster), d.Name, d.Metadata, d.FileSize)
}

// Open resolves path against the volume's root and returns the entry it
// names. Mirrors FileSystem::open in the retained kernel: RootDir, CurDir,
// and path prefixes are no-ops; ParentDir pops the entry stack (a no-op at
// the root, see this module's design notes); Normal components look up a
// name in the current directory.
func (fs *FS) Open(path string) (Entry, error) {
	if !utf8.ValidString(path) {
		return nil, errkernel.ErrInvalidUTF8
	}

	handle := Handle{fs: fs}
	stack := []Entry{handle.rootDir()}

	for _, comp := range splitPath(path) {
		switch comp.kind {
		case compRoot, compCurrent:
			// No-op: these never change which entry is "current".
		case compParent:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			// Popping past the root is a no-op, not an error: see
			// this module's decision on spec's open question about
			// ParentDir applied to the root directory.
		case compNormal:
			top := stack[len(stack)-1]
			dir, ok := top.AsDir()
			if !ok {
				return nil, errkernel.ErrNotADirectory
			}
			entry, err := dir.Find(comp.name)
			if err != nil {
				return nil, err
			}
			stack = append(stack, entry)
		}
	}

	return stack[len(stack)-1], nil
}

// CreateFile, CreateDir, Rename, and Remove all return
// errkernel.ErrNotSupported: this filesystem stack is read-only, per this
// module's Non-goals.
func (fs *FS) CreateFile(path string) (*File, error) { return nil, errkernel.ErrNotSupported }
func (fs *FS) CreateDir(path string) (*Dir, error)   { return nil, errkernel.ErrNotSupported }
func (fs *FS) Rename(from, to string) error          { return errkernel.ErrNotSupported }
func (fs *FS) Remove(path string) error              { return errkernel.ErrNotSupported }

type componentKind int

const (
	compNormal componentKind = iota
	compRoot
	compCurrent
	compParent
)

type component struct {
	kind componentKind
	name string
}

// splitPath classifies each "/"-delimited segment of path, collapsing
// repeated and leading/trailing slashes the same way Rust's
// Path::components() treats them as a single RootDir/no-op.
func splitPath(path string) []component {
	var out []component
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "":
			continue
		case ".":
			out = append(out, component{kind: compCurrent})
		case "..":
			out = append(out, component{kind: compParent})
		default:
			out = append(out, component{kind: compNormal, name: seg})
		}
	}
	return out
}
