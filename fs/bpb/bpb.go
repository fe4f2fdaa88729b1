// Package bpb decodes a FAT32 BIOS Parameter Block (and its extended
// fields) from a boot sector.
//
// Grounded in the retained kernel's fat32/src/vfat/ebpb.rs
// (BiosParameterBlock::from, valid_signature, the FAT32-extended field
// layout); field offsets are the canonical FAT32 on-disk layout, decoded
// here with encoding/binary rather than a Rust #[repr(C, packed)]
// transmute.
package bpb

import (
	"encoding/binary"

	"github.com/armcore/kernelcore/blockdev"
	"github.com/armcore/kernelcore/errkernel"
)

const (
	bootSignatureOffset = 510
	bootSignatureLow    = 0x55
	bootSignatureHigh   = 0xAA
)

// BPB holds the decoded fields of a FAT32 BIOS Parameter Block, including
// its FAT32-only extended fields.
type BPB struct {
	OEMName            [8]byte
	BytesPerSector     uint16
	SectorsPerCluster  uint8
	ReservedSectors    uint16
	NumFATs            uint8
	MediaDescriptor    uint8
	SectorsPerTrack    uint16
	NumHeads           uint16
	NumHiddenSectors   uint32
	LogicalSectors     uint32

	// Extended (FAT32-only) fields.
	SectorsPerFAT32  uint32
	Flags            uint16
	VersionNumber    uint16
	RootCluster      uint32
	FSInfoSector     uint16
	BackupBootSector uint16
	DriveNumber      uint8
	Signature        uint8
	VolumeSerial     uint32
	VolumeLabel      [11]byte
	SystemIDString   [8]byte
}

func validSignature(sig uint8, bootSig uint16) bool {
	if bootSig != uint16(bootSignatureHigh)<<8|uint16(bootSignatureLow) {
		return false
	}
	return sig == 0x28 || sig == 0x29
}

// Read reads and decodes the BPB from the given sector of device.
func Read(device blockdev.Device, sector uint64) (*BPB, error) {
	buf := make([]byte, device.SectorSize())
	if _, err := device.ReadSector(sector, buf); err != nil {
		return nil, err
	}
	return Decode(buf)
}

// Decode parses an already-read boot sector buffer.
//
// Returns errkernel.ErrBadSignature if the trailing 0x55AA marker is
// missing or the FAT32 extended signature byte isn't 0x28/0x29.
func Decode(sector []byte) (*BPB, error) {
	if len(sector) < bootSignatureOffset+2 {
		return nil, errkernel.ErrInvalidInput.WithMessage("sector shorter than a BPB")
	}

	bootSig := binary.LittleEndian.Uint16(sector[bootSignatureOffset:])
	extSig := sector[66]
	if !validSignature(extSig, bootSig) {
		return nil, errkernel.ErrBadSignature
	}

	var b BPB
	copy(b.OEMName[:], sector[3:11])
	b.BytesPerSector = binary.LittleEndian.Uint16(sector[11:13])
	b.SectorsPerCluster = sector[13]
	b.ReservedSectors = binary.LittleEndian.Uint16(sector[14:16])
	b.NumFATs = sector[16]
	b.MediaDescriptor = sector[21]
	b.SectorsPerTrack = binary.LittleEndian.Uint16(sector[24:26])
	b.NumHeads = binary.LittleEndian.Uint16(sector[26:28])
	b.NumHiddenSectors = binary.LittleEndian.Uint32(sector[28:32])
	b.LogicalSectors = binary.LittleEndian.Uint32(sector[32:36])

	b.SectorsPerFAT32 = binary.LittleEndian.Uint32(sector[36:40])
	b.Flags = binary.LittleEndian.Uint16(sector[40:42])
	b.VersionNumber = binary.LittleEndian.Uint16(sector[42:44])
	b.RootCluster = binary.LittleEndian.Uint32(sector[44:48])
	b.FSInfoSector = binary.LittleEndian.Uint16(sector[48:50])
	b.BackupBootSector = binary.LittleEndian.Uint16(sector[50:52])
	b.DriveNumber = sector[64]
	b.Signature = extSig
	b.VolumeSerial = binary.LittleEndian.Uint32(sector[67:71])
	copy(b.VolumeLabel[:], sector[71:82])
	copy(b.SystemIDString[:], sector[82:90])

	if err := b.sanityCheck(); err != nil {
		return nil, err
	}
	return &b, nil
}

// sanityCheck rejects BPBs whose geometry can't describe a real FAT32
// volume: a zero bytes-per-sector, sectors-per-cluster, or FAT count
// would make every downstream cluster/sector computation meaningless.
func (b *BPB) sanityCheck() error {
	if b.BytesPerSector == 0 {
		return errkernel.ErrFileSystemCorrupted.WithMessage("bytes per sector is zero")
	}
	if b.SectorsPerCluster == 0 {
		return errkernel.ErrFileSystemCorrupted.WithMessage("sectors per cluster is zero")
	}
	if b.NumFATs == 0 {
		return errkernel.ErrFileSystemCorrupted.WithMessage("FAT count is zero")
	}
	if b.SectorsPerFAT32 == 0 {
		return errkernel.ErrFileSystemCorrupted.WithMessage("sectors per FAT is zero")
	}
	return nil
}

// FATStartSector returns the first sector of the first FAT, relative to
// the start of the partition.
func (b *BPB) FATStartSector() uint64 {
	return uint64(b.ReservedSectors)
}

// DataStartSector returns the first sector of cluster data, relative to
// the start of the partition.
func (b *BPB) DataStartSector() uint64 {
	return uint64(b.ReservedSectors) + uint64(b.NumFATs)*uint64(b.SectorsPerFAT32)
}
