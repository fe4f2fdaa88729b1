// Package dirent decodes FAT32 directory entries: the 32-byte on-disk
// slots that make up a directory's cluster chain, including long filename
// (LFN) reassembly across sequence-ordered entries.
//
// Grounded in the retained kernel's fat32/src/vfat/dir.rs (VFatRegularDirEntry,
// VFatLfnDirEntry, VFatUnknownDirEntry, DirIter) and fat32/src/vfat/metadata.rs
// (Attributes, Date, Time, Timestamp). The original decodes the 32-byte slot
// by transmuting a packed repr(C) union; here each slot is decoded field by
// field with encoding/binary into a tagged sum type, exactly as this
// module's design notes call for ("unions are a size-coincidence
// optimization, not a semantic requirement").
package dirent

import (
	"strings"
	"unicode/utf16"
)

const entrySize = 32

// Attribute bits, per the FAT32 on-disk directory entry layout.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLFN       = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

// Date is a packed FAT32 date: year-1980 in the high 7 bits, month in the
// next 4, day in the low 5.
type Date uint16

func (d Date) Year() int  { return int(d>>9) + 1980 }
func (d Date) Month() int { return int(d>>5) & 0xF }
func (d Date) Day() int   { return int(d) & 0x1F }

// Time is a packed FAT32 time: hour in the high 5 bits, minute in the next
// 6, and seconds/2 in the low 5.
type Time uint16

func (t Time) Hour() int   { return int(t>>11) & 0x1F }
func (t Time) Minute() int { return int(t>>5) & 0x3F }
func (t Time) Second() int { return (int(t) & 0x1F) * 2 }

// Timestamp pairs a Time and a Date, as stored for creation and
// last-modified fields.
type Timestamp struct {
	Time Time
	Date Date
}

// Metadata carries the attribute and timestamp fields common to every
// decoded directory entry.
type Metadata struct {
	Attributes     uint8
	Created        Timestamp
	LastAccessDate Date
	LastModified   Timestamp
}

func (m Metadata) ReadOnly() bool   { return m.Attributes&AttrReadOnly != 0 }
func (m Metadata) Hidden() bool     { return m.Attributes&AttrHidden != 0 }
func (m Metadata) IsDir() bool      { return m.Attributes&AttrDirectory != 0 }
func (m Metadata) IsVolumeID() bool { return m.Attributes&AttrVolumeID != 0 }

// Kind tags which alternative a decoded Entry represents.
type Kind int

const (
	KindUnknown Kind = iota
	KindRegular
	KindLFN
)

// Entry is the tagged sum of what a single 32-byte directory slot can
// decode to. Only the fields relevant to Kind are meaningful.
type Entry struct {
	Kind Kind

	// Populated when Kind == KindRegular.
	ShortName    string
	Metadata     Metadata
	FirstCluster uint32
	FileSize     uint32

	// Populated when Kind == KindLFN.
	SequenceNumber uint8
	NameUnits      [13]uint16
}

// decodeSlot classifies and decodes one 32-byte directory slot. The
// caller has already filtered out the 0x00 (end) and 0xE5 (deleted)
// sentinel id bytes.
func decodeSlot(slot []byte) Entry {
	attributes := slot[11]
	if attributes&AttrLFN == AttrLFN {
		return decodeLFN(slot)
	}
	return decodeRegular(slot)
}

func decodeLFN(slot []byte) Entry {
	var units [13]uint16
	readUTF16LE(slot[1:11], units[0:5])
	readUTF16LE(slot[14:26], units[5:11])
	readUTF16LE(slot[28:32], units[11:13])

	return Entry{
		Kind:           KindLFN,
		SequenceNumber: slot[0],
		NameUnits:      units,
	}
}

func readUTF16LE(src []byte, dst []uint16) {
	for i := range dst {
		dst[i] = uint16(src[2*i]) | uint16(src[2*i+1])<<8
	}
}

func decodeRegular(slot []byte) Entry {
	meta := Metadata{
		Attributes: slot[11],
		Created: Timestamp{
			Time: Time(leUint16(slot[14:16])),
			Date: Date(leUint16(slot[16:18])),
		},
		LastAccessDate: Date(leUint16(slot[18:20])),
		LastModified: Timestamp{
			Time: Time(leUint16(slot[22:24])),
			Date: Date(leUint16(slot[24:26])),
		},
	}

	firstClusterHigh := leUint16(slot[20:22])
	firstClusterLow := leUint16(slot[26:28])
	firstCluster := uint32(firstClusterHigh)<<16 | uint32(firstClusterLow)

	return Entry{
		Kind:         KindRegular,
		Metadata:     meta,
		FirstCluster: firstCluster,
		FileSize:     leUint32(slot[28:32]),
		ShortName:    shortName(slot[0:8], slot[8:11]),
	}
}

func leUint16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// shortName reassembles the 8.3 DOS name from its fixed-width fields,
// trimming trailing spaces, and omitting the dot when the extension is
// empty.
func shortName(name, ext []byte) string {
	n := strings.TrimRight(string(name), " ")
	e := strings.TrimRight(string(ext), " ")
	if e == "" {
		return n
	}
	return n + "." + e
}

// Decoded is one fully assembled directory entry: a terminating Regular
// slot plus whatever long filename preceded it.
type Decoded struct {
	Name     string
	Metadata Metadata
	IsDir    bool
	FirstCluster uint32
	FileSize     uint32
}

// sequenceIndex returns the 1-based LFN ordinal encoded in the low 5 bits
// of the sequence number.
func sequenceIndex(seq uint8) int { return int(seq & 0x1F) }

// Decode walks raw — the concatenated contents of a directory's cluster
// chain — and returns every live entry in order. Deleted slots (id ==
// 0xE5) are skipped; decoding stops at the first slot with id == 0x00,
// same as the retained kernel's DirIter. Entries that claim to extend
// past the end of raw, or regular entries with the volume-ID bit set, are
// dropped rather than causing a panic, matching the decoder's silent
// "malformed entries are skipped" propagation policy.
func Decode(raw []byte) []Decoded {
	var out []Decoded
	var staging [260]uint16
	haveLFN := false

	for off := 0; off+entrySize <= len(raw); off += entrySize {
		slot := raw[off : off+entrySize]
		id := slot[0]
		if id == 0x00 {
			break
		}
		if id == 0xE5 {
			continue
		}

		e := decodeSlot(slot)
		switch e.Kind {
		case KindLFN:
			idx := sequenceIndex(e.SequenceNumber)
			if idx < 1 || idx > 20 {
				continue
			}
			base := (idx - 1) * 13
			copy(staging[base:base+13], e.NameUnits[:])
			haveLFN = true
		case KindRegular:
			if e.Metadata.IsVolumeID() {
				haveLFN = false
				continue
			}
			name := e.ShortName
			if haveLFN {
				name = decodeUTF16Staging(staging[:])
			}
			out = append(out, Decoded{
				Name:         name,
				Metadata:     e.Metadata,
				IsDir:        e.Metadata.IsDir(),
				FirstCluster: e.FirstCluster,
				FileSize:     e.FileSize,
			})
			haveLFN = false
			staging = [260]uint16{}
		}
	}
	return out
}

// decodeUTF16Staging decodes units up to the first 0x0000 or 0xFFFF
// terminator, replacing ill-formed surrogates with U+FFFD, per this
// module's documented convention for the long-filename code-unit filter
// (spec's open question on the source's two inconsistent predicates).
func decodeUTF16Staging(units []uint16) string {
	end := len(units)
	for i, u := range units {
		if u == 0x0000 || u == 0xFFFF {
			end = i
			break
		}
	}

	var b strings.Builder
	for _, r := range utf16.Decode(units[:end]) {
		b.WriteRune(r)
	}
	return b.String()
}

// Find returns the first entry in entries whose Name matches name under
// ASCII case-insensitive comparison, the same rule Dir::find uses in the
// retained kernel.
func Find(entries []Decoded, name string) (Decoded, bool) {
	for _, e := range entries {
		if equalFoldASCII(e.Name, name) {
			return e, true
		}
	}
	return Decoded{}, false
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
