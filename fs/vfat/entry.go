package vfat

import "github.com/armcore/kernelcore/fs/dirent"

// Entry is the sum of what a directory can contain: a File or a Dir.
// Mirrors the retained kernel's Entry enum (FileKind/DirKind), modeled as
// an interface rather than a tagged union per this module's design notes.
type Entry interface {
	// Name returns the entry's long filename if one was assembled from
	// LFN slots, otherwise its reconstructed 8.3 short name.
	Name() string
	Metadata() dirent.Metadata
	AsFile() (*File, bool)
	AsDir() (*Dir, bool)
}
