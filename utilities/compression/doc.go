// Package compression shrinks FAT32 disk images (such as test fixtures):
// raw images that are almost entirely the zero-filled unused clusters a
// small test volume never touches. No compressed fixtures are checked into
// this module; internal/kerneltest and cmd/fsinspect's --gunzip use it.
//
// A FAT32 volume built for a test is a few kilobytes of MBR, BPB, FAT, and
// directory/data clusters sitting inside an image that's otherwise zeros
// out to whatever size the scenario's geometry needs. Run-length encoding
// the raw image first, then gzipping the result, squeezes that dead space
// down to almost nothing.
//
// The encoding is RLE8, the scheme the Microsoft BMP format uses: a byte B
// that repeats N times (N >= 2) is written as B, B, then a third byte
// giving how many additional repeats follow. For example:
//
//	WXXXXXXXXXXXXXXXYZZ
//	W XX 13 Y ZZ 0
//
// This represents runs up to 257 bytes long in three bytes; longer runs
// split into multiple three-byte groups (a run of 300 "X" becomes
// `XX 255 XX 41`). A run of exactly two identical bytes costs one byte
// more than storing them literally (two bytes plus a trailing zero) — the
// scheme's one inefficiency, and negligible against the long all-zero runs
// this package exists to shrink.
package compression
