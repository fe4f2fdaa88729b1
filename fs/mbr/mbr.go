// Package mbr parses the master boot record from the first sector of a
// block device: 446 bytes of boot code, four 16-byte partition entries,
// and a 2-byte 0x55AA signature.
//
// Grounded in the retained kernel's fat32/src/mbr.rs (MasterBootRecord,
// PartitionEntry, valid_indicator/valid_signature); since this module
// never boots real hardware, the 446-byte boot code region is parsed but
// not interpreted or executed.
package mbr

import (
	"encoding/binary"

	"github.com/armcore/kernelcore/blockdev"
	"github.com/armcore/kernelcore/errkernel"
)

const (
	bootCodeSize     = 446
	partitionEntrySize = 16
	numPartitions    = 4
	signatureOffset  = 510
	signatureLow     = 0x55
	signatureHigh    = 0xAA
)

// CHS is a decoded cylinder/head/sector address, included for
// completeness; the FAT chain engine never consults it.
type CHS struct {
	Head     uint8
	Sector   uint8
	Cylinder uint16
}

func decodeCHS(raw [3]byte) CHS {
	cylinderSector := uint16(raw[1])<<8 | uint16(raw[2])
	return CHS{
		Head:     raw[0],
		Sector:   uint8(cylinderSector & 0x3f),
		Cylinder: cylinderSector >> 6,
	}
}

// PartitionEntry is one of the MBR's four fixed partition slots.
type PartitionEntry struct {
	// Indicator is 0x00 (not bootable) or 0x80 (bootable). Any other
	// value fails validation.
	Indicator  uint8
	CHSStart   CHS
	Kind       uint8
	CHSEnd     CHS
	LBAStart   uint32
	LBASectors uint32
}

// ValidIndicator reports whether Indicator is a recognized boot flag.
func (p PartitionEntry) ValidIndicator() bool {
	return p.Indicator&0x7f == 0
}

// IsEmpty reports whether this slot describes no partition at all.
func (p PartitionEntry) IsEmpty() bool {
	return p.Kind == 0 && p.LBASectors == 0
}

// MasterBootRecord is the decoded contents of sector 0.
type MasterBootRecord struct {
	Partitions [numPartitions]PartitionEntry
}

func decodePartitionEntry(raw []byte) PartitionEntry {
	var chsStart, chsEnd [3]byte
	copy(chsStart[:], raw[1:4])
	copy(chsEnd[:], raw[5:8])

	return PartitionEntry{
		Indicator:  raw[0],
		CHSStart:   decodeCHS(chsStart),
		Kind:       raw[4],
		CHSEnd:     decodeCHS(chsEnd),
		LBAStart:   binary.LittleEndian.Uint32(raw[8:12]),
		LBASectors: binary.LittleEndian.Uint32(raw[12:16]),
	}
}

// Read reads and decodes the MBR from sector 0 of device.
//
// Returns errkernel.ErrBadSignature if the trailing 0x55AA marker is
// missing, or errkernel.ErrUnknownBootIndicator if any partition entry's
// indicator byte is neither 0x00 nor 0x80.
func Read(device blockdev.Device) (*MasterBootRecord, error) {
	buf := make([]byte, device.SectorSize())
	if _, err := device.ReadSector(0, buf); err != nil {
		return nil, err
	}
	return Decode(buf)
}

// Decode parses an already-read 512-byte-or-larger sector 0 buffer. Only
// the first 512 bytes are consulted.
func Decode(sector []byte) (*MasterBootRecord, error) {
	if len(sector) < signatureOffset+2 {
		return nil, errkernel.ErrInvalidInput.WithMessage("sector shorter than an MBR")
	}

	if sector[signatureOffset] != signatureLow || sector[signatureOffset+1] != signatureHigh {
		return nil, errkernel.ErrBadSignature
	}

	var mbr MasterBootRecord
	for i := 0; i < numPartitions; i++ {
		offset := bootCodeSize + i*partitionEntrySize
		entry := decodePartitionEntry(sector[offset : offset+partitionEntrySize])
		if !entry.ValidIndicator() {
			return nil, errkernel.ErrUnknownBootIndicator.WithMessage(partitionIndexMessage(i))
		}
		mbr.Partitions[i] = entry
	}

	return &mbr, nil
}

func partitionIndexMessage(i int) string {
	digits := "0123456789"
	return "partition " + string(digits[i])
}

// FindFAT32 returns the index and entry of the first non-empty partition
// whose Kind matches a FAT32 partition type byte (0x0B for CHS, 0x0C for
// LBA), or errkernel.ErrNoFAT32Partition if none is present.
func (m *MasterBootRecord) FindFAT32() (int, PartitionEntry, error) {
	for i, p := range m.Partitions {
		if p.IsEmpty() {
			continue
		}
		switch p.Kind {
		case 0x0B, 0x0C:
			return i, p, nil
		}
	}
	return -1, PartitionEntry{}, errkernel.ErrNoFAT32Partition
}
