package vfat_test

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/armcore/kernelcore/blockdev"
	"github.com/armcore/kernelcore/errkernel"
	"github.com/armcore/kernelcore/fs/vfat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sectorSize        = 512
	sectorsPerCluster = 1
	reservedSectors   = 1 // one BPB sector
	fatSectors        = 1
	dataStartSector   = reservedSectors + fatSectors // partition-relative

	rootCluster   = 2
	fileCluster1  = 3
	fileCluster2  = 4
	subdirCluster = 5
	nestedCluster = 6

	fileSize = sectorSize + 5 // spans two clusters, per spec scenario S6
)

func clusterSector(c int) int { return dataStartSector + c*sectorsPerCluster }

func putUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func putUint16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }

func writeDirEntry(sector []byte, off int, name, ext string, attrs uint8, firstCluster uint32, size uint32) {
	entry := sector[off : off+32]
	copy(entry[0:8], padRight(name, 8))
	copy(entry[8:11], padRight(ext, 3))
	entry[11] = attrs
	putUint16(entry[20:22], uint16(firstCluster>>16))
	putUint16(entry[26:28], uint16(firstCluster))
	putUint32(entry[28:32], size)
}

func padRight(s string, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	return b
}

// buildImage assembles a tiny MBR + FAT32 BPB + FAT + directory/data image
// with one file ("FILE.TXT", clusters 3 and 4) and one subdirectory
// ("SUBDIR", cluster 5) containing a single nested file.
func buildImage(t *testing.T) blockdev.Device {
	t.Helper()

	totalSectors := 1 + clusterSector(nestedCluster) + 1 // +1 MBR, +1 to hold the last cluster
	image := make([]byte, totalSectors*sectorSize)

	// MBR at physical sector 0: one FAT32 partition starting at sector 1.
	mbrSector := image[0:sectorSize]
	partEntry := mbrSector[446:462]
	partEntry[0] = 0x80
	partEntry[4] = 0x0C // FAT32 LBA
	putUint32(partEntry[8:12], 1)
	putUint32(partEntry[12:16], uint32(totalSectors-1))
	mbrSector[510] = 0x55
	mbrSector[511] = 0xAA

	// BPB at physical sector 1 (partition-relative sector 0).
	bpbSector := image[1*sectorSize : 2*sectorSize]
	copy(bpbSector[3:11], "MSWIN4.1")
	putUint16(bpbSector[11:13], sectorSize)
	bpbSector[13] = sectorsPerCluster
	putUint16(bpbSector[14:16], reservedSectors)
	bpbSector[16] = 1 // NumFATs
	bpbSector[21] = 0xF8
	putUint32(bpbSector[36:40], fatSectors)
	putUint32(bpbSector[44:48], rootCluster)
	bpbSector[66] = 0x29
	bpbSector[510] = 0x55
	bpbSector[511] = 0xAA

	// FAT table at partition-relative sector 1 (physical sector 2).
	fatSector := image[(1+reservedSectors)*sectorSize : (1+reservedSectors+fatSectors)*sectorSize]
	putUint32(fatSector[rootCluster*4:], 0x0FFFFFFF)
	putUint32(fatSector[fileCluster1*4:], fileCluster2)
	putUint32(fatSector[fileCluster2*4:], 0x0FFFFFFF)
	putUint32(fatSector[subdirCluster*4:], 0x0FFFFFFF)
	putUint32(fatSector[nestedCluster*4:], 0x0FFFFFFF)

	physicalSector := func(cluster int) []byte {
		start := (1 + clusterSector(cluster)) * sectorSize
		return image[start : start+sectorSize]
	}

	// Root directory: FILE.TXT and SUBDIR.
	root := physicalSector(rootCluster)
	writeDirEntry(root, 0, "FILE", "TXT", 0, fileCluster1, fileSize)
	writeDirEntry(root, 32, "SUBDIR", "", 0x10, subdirCluster, 0)

	// Subdirectory: NESTED.TXT.
	subdir := physicalSector(subdirCluster)
	writeDirEntry(subdir, 0, "NESTED", "TXT", 0, nestedCluster, 4)

	// File data: cluster 1 filled with an ascending pattern, cluster 2
	// with a distinct one, so crossing the boundary is unambiguous.
	c1 := physicalSector(fileCluster1)
	for i := range c1 {
		c1[i] = byte(i)
	}
	c2 := physicalSector(fileCluster2)
	for i := range c2 {
		c2[i] = byte(0x80 + i)
	}

	nested := physicalSector(nestedCluster)
	copy(nested, "TEST")

	dev, err := blockdev.NewSliceDevice(image, sectorSize)
	require.NoError(t, err)
	return dev
}

func TestOpenRootIsDir(t *testing.T) {
	fs, err := vfat.Mount(buildImage(t))
	require.NoError(t, err)

	entry, err := fs.Open("/")
	require.NoError(t, err)
	dir, ok := entry.AsDir()
	require.True(t, ok)
	assert.Equal(t, "", dir.Name())
}

func TestOpenFileByPath(t *testing.T) {
	fs, err := vfat.Mount(buildImage(t))
	require.NoError(t, err)

	entry, err := fs.Open("/FILE.TXT")
	require.NoError(t, err)
	file, ok := entry.AsFile()
	require.True(t, ok)
	assert.Equal(t, "FILE.TXT", file.Name())
	assert.Equal(t, int64(fileSize), file.Size())
}

func TestOpenNestedPath(t *testing.T) {
	fs, err := vfat.Mount(buildImage(t))
	require.NoError(t, err)

	entry, err := fs.Open("/SUBDIR/NESTED.TXT")
	require.NoError(t, err)
	file, ok := entry.AsFile()
	require.True(t, ok)
	assert.Equal(t, "NESTED.TXT", file.Name())

	buf := make([]byte, 4)
	n, err := file.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "TEST", string(buf))
}

func TestOpenPathIdentityMatchesFind(t *testing.T) {
	fs, err := vfat.Mount(buildImage(t))
	require.NoError(t, err)

	parent, err := fs.Open("/SUBDIR")
	require.NoError(t, err)
	parentDir, ok := parent.AsDir()
	require.True(t, ok)

	viaOpen, err := fs.Open("/SUBDIR/NESTED.TXT")
	require.NoError(t, err)
	viaFind, err := parentDir.Find("NESTED.TXT")
	require.NoError(t, err)

	assert.Equal(t, viaOpen.Name(), viaFind.Name())
}

func TestOpenNotFound(t *testing.T) {
	fs, err := vfat.Mount(buildImage(t))
	require.NoError(t, err)

	_, err = fs.Open("/MISSING.TXT")
	assert.ErrorIs(t, err, errkernel.ErrNotFound)
}

func TestOpenThroughFileIsNotADirectory(t *testing.T) {
	fs, err := vfat.Mount(buildImage(t))
	require.NoError(t, err)

	_, err = fs.Open("/FILE.TXT/NOPE")
	assert.ErrorIs(t, err, errkernel.ErrNotADirectory)
}

// TestSeekAndReadAcrossClusterBoundary is spec scenario S6.
func TestSeekAndReadAcrossClusterBoundary(t *testing.T) {
	fs, err := vfat.Mount(buildImage(t))
	require.NoError(t, err)

	entry, err := fs.Open("/FILE.TXT")
	require.NoError(t, err)
	file, _ := entry.AsFile()

	pos, err := file.Seek(int64(sectorSize-3), io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(sectorSize-3), pos)

	buf := make([]byte, 8)
	n, err := file.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	tailStart := sectorSize - 3
	expected := []byte{
		byte(tailStart), byte(tailStart + 1), byte(tailStart + 2),
		0x80, 0x81, 0x82, 0x83, 0x84,
	}
	assert.Equal(t, expected, buf)
}

func TestReadReturnsEOFAtEndOfFile(t *testing.T) {
	fs, err := vfat.Mount(buildImage(t))
	require.NoError(t, err)

	entry, err := fs.Open("/FILE.TXT")
	require.NoError(t, err)
	file, _ := entry.AsFile()

	_, err = file.Seek(0, io.SeekEnd)
	require.NoError(t, err)

	buf := make([]byte, 1)
	n, err := file.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSeekOutOfRangeIsRejected(t *testing.T) {
	fs, err := vfat.Mount(buildImage(t))
	require.NoError(t, err)

	entry, err := fs.Open("/FILE.TXT")
	require.NoError(t, err)
	file, _ := entry.AsFile()

	_, err = file.Seek(-1, io.SeekStart)
	assert.ErrorIs(t, err, errkernel.ErrInvalidInput)

	_, err = file.Seek(1, io.SeekEnd)
	assert.ErrorIs(t, err, errkernel.ErrInvalidInput)
}

func TestMutationsAreUnsupported(t *testing.T) {
	fs, err := vfat.Mount(buildImage(t))
	require.NoError(t, err)

	_, err = fs.CreateFile("/NEW.TXT")
	assert.ErrorIs(t, err, errkernel.ErrNotSupported)
	assert.ErrorIs(t, fs.Rename("/FILE.TXT", "/OTHER.TXT"), errkernel.ErrNotSupported)
	assert.ErrorIs(t, fs.Remove("/FILE.TXT"), errkernel.ErrNotSupported)
}
