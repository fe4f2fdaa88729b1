// Package fat implements the FAT32 cluster/FAT-chain engine: decoding
// 28-bit cluster numbers, classifying FAT table entries, and walking (or
// reading the contents of) a cluster chain.
//
// Grounded in the retained kernel's fat32/src/vfat/cluster.rs (Cluster,
// into_sector, fat_entry_offset) and fat32/src/vfat/vfat.rs (fat_entry,
// next_cluster, find_cluster, read_cluster, read_chain).
package fat

import (
	"encoding/binary"

	"github.com/armcore/kernelcore/errkernel"
	"github.com/armcore/kernelcore/fs/blockcache"
)

// ClusterID is a FAT32 cluster number; only the low 28 bits are
// meaningful; the top 4 bits are masked off on construction.
type ClusterID uint32

// NewClusterID masks raw down to its 28 valid bits.
func NewClusterID(raw uint32) ClusterID {
	return ClusterID(raw &^ (uint32(0xF) << 28))
}

// StatusKind classifies a FAT entry's 28-bit value.
type StatusKind int

const (
	StatusFree StatusKind = iota
	StatusReserved
	StatusData
	StatusReservedHigh
	StatusBad
	StatusEoc
)

// Status is a decoded FAT entry: its classification, and — only when Kind
// is StatusData — the next cluster in the chain.
type Status struct {
	Kind StatusKind
	Next ClusterID
}

// ClassifyEntry decodes a raw 32-bit FAT entry (top 4 bits ignored) into
// a Status, per the FAT32 boundary values:
//
//	0             Free
//	1             Reserved
//	2..0xFFFFFEF  Data(cluster)
//	0xFFFFFF0..6  Reserved
//	0xFFFFFF7     Bad
//	0xFFFFFF8..F  End-of-chain
func ClassifyEntry(raw uint32) Status {
	v := raw & 0x0FFFFFFF
	switch {
	case v == 0:
		return Status{Kind: StatusFree}
	case v == 1:
		return Status{Kind: StatusReserved}
	case v <= 0x0FFFFFEF:
		return Status{Kind: StatusData, Next: ClusterID(v)}
	case v <= 0x0FFFFFF6:
		return Status{Kind: StatusReservedHigh}
	case v == 0x0FFFFFF7:
		return Status{Kind: StatusBad}
	default:
		return Status{Kind: StatusEoc}
	}
}

const fatEntrySize = 4

// Engine reads FAT entries and cluster contents through a sector cache,
// given the geometry decoded from a BPB.
type Engine struct {
	device            *blockcache.CachedDevice
	bytesPerSector    uint16
	sectorsPerCluster uint8
	fatStartSector    uint64
	dataStartSector   uint64
}

// NewEngine constructs a FAT chain engine over device, with the given
// geometry. fatStartSector and dataStartSector are sector numbers as
// device.Get takes them, i.e. already offset by the partition's start.
func NewEngine(device *blockcache.CachedDevice, bytesPerSector uint16, sectorsPerCluster uint8, fatStartSector, dataStartSector uint64) *Engine {
	return &Engine{
		device:            device,
		bytesPerSector:    bytesPerSector,
		sectorsPerCluster: sectorsPerCluster,
		fatStartSector:    fatStartSector,
		dataStartSector:   dataStartSector,
	}
}

// ClusterSize returns the size in bytes of one cluster.
func (e *Engine) ClusterSize() int {
	return int(e.bytesPerSector) * int(e.sectorsPerCluster)
}

func (e *Engine) clusterToSector(c ClusterID) uint64 {
	return uint64(c)*uint64(e.sectorsPerCluster) + e.dataStartSector
}

func (e *Engine) fatEntryOffset(c ClusterID) (sector uint64, byteOffset uint64) {
	off := uint64(c) * fatEntrySize
	return off/uint64(e.bytesPerSector) + e.fatStartSector, off % uint64(e.bytesPerSector)
}

// FatEntry reads and classifies cluster c's FAT table entry.
func (e *Engine) FatEntry(c ClusterID) (Status, error) {
	sector, byteOffset := e.fatEntryOffset(c)
	data, err := e.device.Get(sector)
	if err != nil {
		return Status{}, err
	}

	raw := binary.LittleEndian.Uint32(data[byteOffset : byteOffset+fatEntrySize])
	return ClassifyEntry(raw), nil
}

// NextCluster returns the cluster following c, or ok=false if c is the
// end of its chain. An entry that is neither Data nor end-of-chain is an
// error: the chain is corrupt.
func (e *Engine) NextCluster(c ClusterID) (next ClusterID, ok bool, err error) {
	status, err := e.FatEntry(c)
	if err != nil {
		return 0, false, err
	}

	switch status.Kind {
	case StatusData:
		return status.Next, true, nil
	case StatusEoc:
		return 0, false, nil
	default:
		return 0, false, errkernel.ErrInvalidData
	}
}

// FindCluster walks offset links forward from start, returning ok=false
// if the chain ends before offset links have been followed.
func (e *Engine) FindCluster(start ClusterID, offset int) (ClusterID, bool, error) {
	cluster := start
	for i := 0; i < offset; i++ {
		next, ok, err := e.NextCluster(cluster)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return 0, false, nil
		}
		cluster = next
	}
	return cluster, true, nil
}

// ReadCluster reads into buf starting at byte offset offset within
// cluster c, returning the number of bytes copied. c must currently hold
// data (Data or Eoc status) — any other status is an error.
func (e *Engine) ReadCluster(c ClusterID, offset int, buf []byte) (int, error) {
	status, err := e.FatEntry(c)
	if err != nil {
		return 0, err
	}
	if status.Kind != StatusData && status.Kind != StatusEoc {
		return 0, errkernel.ErrInvalidData
	}

	startSector := e.clusterToSector(c)
	sectorSize := int(e.bytesPerSector)
	bytesRead := 0

	for index := 0; index < int(e.sectorsPerCluster); index++ {
		sectorStartByte := sectorSize * index
		sectorEndByte := sectorSize * (index + 1)

		readStart := max(offset, sectorStartByte)
		readEnd := min(offset+len(buf), sectorEndByte)
		if readStart >= readEnd || readStart < sectorStartByte {
			continue
		}

		readLength := readEnd - readStart
		bufStart := readStart - offset
		chunkStart := readStart - sectorStartByte

		chunk, err := e.device.Get(startSector + uint64(index))
		if err != nil {
			return bytesRead, err
		}
		copy(buf[bufStart:bufStart+readLength], chunk[chunkStart:chunkStart+readLength])
		bytesRead += readLength
	}

	return bytesRead, nil
}

// ReadChain reads every cluster in start's chain and returns the
// concatenated contents.
func (e *Engine) ReadChain(start ClusterID) ([]byte, error) {
	var buf []byte
	cluster := start
	clusterSize := e.ClusterSize()

	for {
		end := len(buf)
		buf = append(buf, make([]byte, clusterSize)...)
		if _, err := e.ReadCluster(cluster, 0, buf[end:]); err != nil {
			return nil, err
		}

		next, ok, err := e.NextCluster(cluster)
		if err != nil {
			return nil, err
		}
		if !ok {
			return buf, nil
		}
		cluster = next
	}
}
