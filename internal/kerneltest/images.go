// Package kerneltest holds fixture-loading helpers shared by this
// module's test suites, kept out of the importable package tree under
// internal/ since nothing outside a _test.go file should depend on them.
//
// Grounded in the teacher's testing/images.go (LoadDiskImage): a fixture
// is held RLE8+gzip compressed by utilities/compression and decompressed
// back into a full-size image when a test needs it. No compressed fixture
// files are checked into this module.
package kerneltest

import (
	"bytes"
	"testing"

	"github.com/armcore/kernelcore/blockdev"
	"github.com/armcore/kernelcore/utilities/compression"
	"github.com/stretchr/testify/require"
)

// LoadDiskImage decompresses compressedImage (an RLE8+gzip compressed
// image, as CompressImage produces) and wraps the result as a blockdev.Device with the given
// sector size. It fails the test immediately if the decompressed size
// doesn't match sectorSize*totalSectors, the same sanity check the
// teacher's LoadDiskImage performs.
func LoadDiskImage(t *testing.T, compressedImage []byte, sectorSize, totalSectors uint64) blockdev.Device {
	t.Helper()
	require.Greater(t, len(compressedImage), 0, "compressed image fixture is empty")

	raw, err := compression.DecompressImageToBytes(bytes.NewReader(compressedImage))
	require.NoError(t, err)
	require.Equal(t, sectorSize*totalSectors, uint64(len(raw)), "decompressed image is the wrong size")

	device, err := blockdev.NewSliceDevice(raw, sectorSize)
	require.NoError(t, err)
	return device
}

// CompressImage is the inverse of LoadDiskImage: it RLE8+gzip-compresses a
// raw image into the form LoadDiskImage accepts.
func CompressImage(t *testing.T, raw []byte) []byte {
	t.Helper()

	var out bytes.Buffer
	_, err := compression.CompressImage(bytes.NewReader(raw), &out)
	require.NoError(t, err)
	return out.Bytes()
}
