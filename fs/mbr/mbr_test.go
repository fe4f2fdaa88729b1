package mbr_test

import (
	"encoding/binary"
	"testing"

	"github.com/armcore/kernelcore/errkernel"
	"github.com/armcore/kernelcore/fs/mbr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSector(t *testing.T, signature [2]byte, kind byte, lbaStart uint32) []byte {
	t.Helper()
	sector := make([]byte, 512)
	entryOffset := 446
	sector[entryOffset] = 0x00 // indicator
	sector[entryOffset+4] = kind
	binary.LittleEndian.PutUint32(sector[entryOffset+8:], lbaStart)
	binary.LittleEndian.PutUint32(sector[entryOffset+12:], 2048)
	sector[510] = signature[0]
	sector[511] = signature[1]
	return sector
}

// TestMBRParseAccepted is scenario S4.
func TestMBRParseAccepted(t *testing.T) {
	sector := buildSector(t, [2]byte{0x55, 0xAA}, 0x0C, 2048)

	decoded, err := mbr.Decode(sector)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x0C), decoded.Partitions[0].Kind)
	assert.Equal(t, uint32(2048), decoded.Partitions[0].LBAStart)
	assert.Equal(t, uint32(2048), decoded.Partitions[0].LBASectors)
}

func TestMBRParseBadSignature(t *testing.T) {
	sector := buildSector(t, [2]byte{0x00, 0x00}, 0x0C, 2048)

	_, err := mbr.Decode(sector)
	assert.ErrorIs(t, err, errkernel.ErrBadSignature)
}

func TestMBRParseUnknownIndicator(t *testing.T) {
	sector := buildSector(t, [2]byte{0x55, 0xAA}, 0x0C, 2048)
	sector[446] = 0x7F // neither 0x00 nor 0x80

	_, err := mbr.Decode(sector)
	assert.ErrorIs(t, err, errkernel.ErrUnknownBootIndicator)
}

func TestFindFAT32(t *testing.T) {
	sector := buildSector(t, [2]byte{0x55, 0xAA}, 0x0C, 2048)

	decoded, err := mbr.Decode(sector)
	require.NoError(t, err)

	idx, entry, err := decoded.FindFAT32()
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, uint32(2048), entry.LBAStart)
}

func TestFindFAT32NoneFound(t *testing.T) {
	sector := buildSector(t, [2]byte{0x55, 0xAA}, 0x83, 2048) // Linux native, not FAT32

	decoded, err := mbr.Decode(sector)
	require.NoError(t, err)

	_, _, err = decoded.FindFAT32()
	assert.ErrorIs(t, err, errkernel.ErrNoFAT32Partition)
}

func TestDecodeRejectsShortSector(t *testing.T) {
	_, err := mbr.Decode(make([]byte, 100))
	assert.Error(t, err)
}
