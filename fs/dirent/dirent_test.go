package dirent_test

import (
	"testing"
	"unicode/utf16"

	"github.com/armcore/kernelcore/fs/dirent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putUTF16(dst []byte, units []uint16) {
	for i, u := range units {
		dst[2*i] = byte(u)
		dst[2*i+1] = byte(u >> 8)
	}
}

// buildLFNEntry writes one 32-byte LFN slot for seq carrying the 13 UTF-16
// code units units[0:13] (padded with 0xFFFF past the end of units),
// matching the retained kernel's VFatLfnDirEntry layout.
func buildLFNEntry(seq uint8, units []uint16) []byte {
	slot := make([]byte, 32)
	for i := range slot {
		slot[i] = 0xFF
	}
	slot[0] = seq
	putUTF16(slot[1:11], units[0:5])
	slot[11] = dirent.AttrLFN
	slot[12] = 0
	putUTF16(slot[14:26], units[5:11])
	slot[26], slot[27] = 0, 0
	putUTF16(slot[28:32], units[11:13])
	return slot
}

func buildRegularEntry(name, ext string, attrs uint8, firstCluster uint32, size uint32) []byte {
	slot := make([]byte, 32)
	copy(slot[0:8], padRight(name, 8))
	copy(slot[8:11], padRight(ext, 3))
	slot[11] = attrs
	slot[26] = byte(firstCluster)
	slot[27] = byte(firstCluster >> 8)
	slot[20] = byte(firstCluster >> 16)
	slot[21] = byte(firstCluster >> 24)
	slot[28] = byte(size)
	slot[29] = byte(size >> 8)
	slot[30] = byte(size >> 16)
	slot[31] = byte(size >> 24)
	return slot
}

func padRight(s string, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	return b
}

// lfnChunk returns the 13 UTF-16 code units an LFN entry at 1-based index
// seq would carry for full: the real characters at [base, base+13), a
// 0x0000 terminator immediately after the name ends, and 0xFFFF padding
// beyond that — the on-disk convention this package's Decode relies on.
func lfnChunk(full []uint16, seq int) []uint16 {
	base := (seq - 1) * 13
	chunk := make([]uint16, 13)
	for i := range chunk {
		chunk[i] = 0xFFFF
	}
	for i := 0; i < 13 && base+i < len(full); i++ {
		chunk[i] = full[base+i]
	}
	if base+13 > len(full) && base <= len(full) {
		chunk[len(full)-base] = 0x0000
	}
	return chunk
}

func TestDecodeLFNAssembly(t *testing.T) {
	name := "hello_world.txt"
	units := utf16.Encode([]rune(name))
	require.Len(t, units, 15)

	var raw []byte
	raw = append(raw, buildLFNEntry(0x42, lfnChunk(units, 2))...) // seq=2 (0x42&0x1F==2)
	raw = append(raw, buildLFNEntry(0x01, lfnChunk(units, 1))...) // seq=1
	raw = append(raw, buildRegularEntry("HELLO~1", "TXT", 0, 5, 42)...)
	raw = append(raw, make([]byte, 32)...) // terminator (id == 0x00)

	decoded := dirent.Decode(raw)
	require.Len(t, decoded, 1)
	assert.Equal(t, name, decoded[0].Name)
	assert.Equal(t, uint32(5), decoded[0].FirstCluster)
	assert.Equal(t, uint32(42), decoded[0].FileSize)
	assert.False(t, decoded[0].IsDir)
}

func TestDecodeShortNameFallback(t *testing.T) {
	var raw []byte
	raw = append(raw, buildRegularEntry("README", "MD", 0, 10, 100)...)
	raw = append(raw, make([]byte, 32)...)

	decoded := dirent.Decode(raw)
	require.Len(t, decoded, 1)
	assert.Equal(t, "README.MD", decoded[0].Name)
}

func TestDecodeShortNameNoExtension(t *testing.T) {
	var raw []byte
	raw = append(raw, buildRegularEntry("NAME", "", 0, 1, 0)...)
	raw = append(raw, make([]byte, 32)...)

	decoded := dirent.Decode(raw)
	require.Len(t, decoded, 1)
	assert.Equal(t, "NAME", decoded[0].Name)
}

func TestDecodeSkipsDeletedEntries(t *testing.T) {
	var raw []byte
	deleted := buildRegularEntry("GONE", "TXT", 0, 2, 1)
	deleted[0] = 0xE5
	raw = append(raw, deleted...)
	raw = append(raw, buildRegularEntry("KEEP", "TXT", 0, 3, 1)...)
	raw = append(raw, make([]byte, 32)...)

	decoded := dirent.Decode(raw)
	require.Len(t, decoded, 1)
	assert.Equal(t, "KEEP.TXT", decoded[0].Name)
}

func TestDecodeStopsAtEndSentinel(t *testing.T) {
	var raw []byte
	raw = append(raw, buildRegularEntry("A", "", 0, 1, 0)...)
	raw = append(raw, make([]byte, 32)...) // id == 0x00 terminates
	raw = append(raw, buildRegularEntry("B", "", 0, 2, 0)...)

	decoded := dirent.Decode(raw)
	require.Len(t, decoded, 1)
	assert.Equal(t, "A", decoded[0].Name)
}

func TestDecodeDirectoryAttribute(t *testing.T) {
	var raw []byte
	raw = append(raw, buildRegularEntry("SUBDIR", "", dirent.AttrDirectory, 9, 0)...)
	raw = append(raw, make([]byte, 32)...)

	decoded := dirent.Decode(raw)
	require.Len(t, decoded, 1)
	assert.True(t, decoded[0].IsDir)
}

func TestFindCaseInsensitive(t *testing.T) {
	entries := []dirent.Decoded{{Name: "Hello.TXT"}, {Name: "World"}}

	found, ok := dirent.Find(entries, "hello.txt")
	require.True(t, ok)
	assert.Equal(t, "Hello.TXT", found.Name)

	_, ok = dirent.Find(entries, "missing")
	assert.False(t, ok)
}

func TestDateTimeDecoding(t *testing.T) {
	// Year 2023 (43 << 9), month 6, day 15.
	d := dirent.Date(43<<9 | 6<<5 | 15)
	assert.Equal(t, 2023, d.Year())
	assert.Equal(t, 6, d.Month())
	assert.Equal(t, 15, d.Day())

	// Hour 13, minute 30, second 44 (22*2).
	tm := dirent.Time(13<<11 | 30<<5 | 22)
	assert.Equal(t, 13, tm.Hour())
	assert.Equal(t, 30, tm.Minute())
	assert.Equal(t, 44, tm.Second())
}
