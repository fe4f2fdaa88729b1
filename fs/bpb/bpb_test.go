package bpb_test

import (
	"encoding/binary"
	"testing"

	"github.com/armcore/kernelcore/errkernel"
	"github.com/armcore/kernelcore/fs/bpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSector(t *testing.T) []byte {
	t.Helper()
	sector := make([]byte, 512)
	copy(sector[3:11], "MSWIN4.1")
	binary.LittleEndian.PutUint16(sector[11:13], 512)
	sector[13] = 8
	binary.LittleEndian.PutUint16(sector[14:16], 32)
	sector[16] = 2
	sector[21] = 0xF8
	binary.LittleEndian.PutUint32(sector[32:36], 131072)
	binary.LittleEndian.PutUint32(sector[36:40], 942)
	binary.LittleEndian.PutUint32(sector[44:48], 2)
	sector[64] = 0x80
	sector[66] = 0x29
	binary.LittleEndian.PutUint32(sector[67:71], 0xDEADBEEF)
	copy(sector[71:82], "NO NAME    ")
	copy(sector[82:90], "FAT32   ")
	sector[510] = 0x55
	sector[511] = 0xAA
	return sector
}

func TestDecodeValidBPB(t *testing.T) {
	sector := buildSector(t)

	decoded, err := bpb.Decode(sector)
	require.NoError(t, err)
	assert.Equal(t, uint16(512), decoded.BytesPerSector)
	assert.Equal(t, uint8(8), decoded.SectorsPerCluster)
	assert.Equal(t, uint32(2), decoded.RootCluster)
	assert.Equal(t, uint8(0x29), decoded.Signature)
}

func TestDecodeRejectsBadBootSignature(t *testing.T) {
	sector := buildSector(t)
	sector[510] = 0x00

	_, err := bpb.Decode(sector)
	assert.ErrorIs(t, err, errkernel.ErrBadSignature)
}

func TestDecodeRejectsBadExtendedSignature(t *testing.T) {
	sector := buildSector(t)
	sector[66] = 0x50

	_, err := bpb.Decode(sector)
	assert.ErrorIs(t, err, errkernel.ErrBadSignature)
}

func TestDecodeRejectsZeroGeometry(t *testing.T) {
	sector := buildSector(t)
	binary.LittleEndian.PutUint16(sector[11:13], 0)

	_, err := bpb.Decode(sector)
	assert.ErrorIs(t, err, errkernel.ErrFileSystemCorrupted)
}

func TestDataStartSector(t *testing.T) {
	sector := buildSector(t)

	decoded, err := bpb.Decode(sector)
	require.NoError(t, err)
	assert.Equal(t, uint64(32), decoded.FATStartSector())
	assert.Equal(t, uint64(32+2*942), decoded.DataStartSector())
}
