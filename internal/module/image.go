package module

import (
	"encoding/binary"
	"fmt"

	"github.com/ancvm/ancvm/ancerr"
	"github.com/ancvm/ancvm/api"
)

// ImageMagic and IndexMapMagic are the 8-byte file headers for a module
// image and its sibling index-map file (spec.md §6). Both are zero-padded
// to 8 bytes, like the original XiaoXuan Core runtime's "ancmod\0\0"
// convention.
var (
	ImageMagic    = [8]byte{'a', 'n', 'c', 'm', 'o', 'd', 0, 0}
	IndexMapMagic = [8]byte{'a', 'n', 'c', 's', 'i', 'm', 0, 0}
)

// runtimeCodeName is a diagnostic-only constant carried over from the
// original implementation this spec distills (a literal runtime code
// name embedded for version strings); it has no effect on parsing.
const runtimeCodeName = "Selina"

// RuntimeCodeName returns the runtime's diagnostic code name, for
// Runtime.String().
func RuntimeCodeName() string { return runtimeCodeName }

// ImageFormatMajorVersion and ImageFormatMinorVersion are this runtime's
// own image format version. An application module (as opposed to a
// shared/library module) must match both exactly: spec.md §6 / original
// semver policy is "an application will only run if its required major
// and minor versions match the current runtime version strictly" (spec.md
// §6, _examples/original_source/crates/isa/src/lib.rs). That strict check
// is enforced at link time (internal/link.Build) against the application
// module only; ReadHeader's own check stays a lenient upper bound so
// shared modules compiled against an older compatible minor still load.
const (
	ImageFormatMajorVersion = 1
	ImageFormatMinorVersion = 0
)

// SectionID identifies one section of a module image.
type SectionID uint16

const (
	SectionType SectionID = iota
	SectionFunction
	SectionLocalVariableList
	SectionCode
	SectionDataReadOnly
	SectionDataReadWrite
	SectionDataUninitialized
	SectionImportFunction
	SectionImportData
	SectionExternalLibrary
	SectionExternalFunction
)

func (id SectionID) valid() bool { return id <= SectionExternalFunction }

// sectionTableEntry is one 12-byte, 4-byte-aligned record in the image's
// section table: {id u16, pad u16, offset u32, length u32}, offset and
// length being relative to the start of the data area that follows the
// section table (spec.md §6).
type sectionTableEntry struct {
	ID     SectionID
	Offset uint32
	Length uint32
}

const sectionTableEntrySize = 12

// Header is the 16-byte fixed prelude of a module image: magic, minor
// version, major version, and the entry function's public index (-1 if
// this module declares no entry function) (spec.md §6, §6 "Program entry").
type Header struct {
	Magic              [8]byte
	Minor              uint16
	Major              uint16
	EntryFunctionIndex int32
}

const headerSize = 16

// ReadHeader parses and validates the 16-byte header, refusing images
// whose major version exceeds ImageFormatMajorVersion.
func ReadHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < headerSize {
		return h, fmt.Errorf("module: image too short for header")
	}
	copy(h.Magic[:], b[:8])
	h.Minor = binary.LittleEndian.Uint16(b[8:10])
	h.Major = binary.LittleEndian.Uint16(b[10:12])
	h.EntryFunctionIndex = int32(binary.LittleEndian.Uint32(b[12:16]))
	if h.Magic != ImageMagic {
		return h, ancerr.NewLinkError(-1, -1, "module: bad image magic")
	}
	if h.Major > ImageFormatMajorVersion {
		return h, ancerr.NewLinkError(-1, -1,
			fmt.Sprintf("module: image major version %d exceeds supported major %d", h.Major, ImageFormatMajorVersion))
	}
	return h, nil
}

func (h Header) write(buf []byte) {
	copy(buf[:8], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[8:10], h.Minor)
	binary.LittleEndian.PutUint16(buf[10:12], h.Major)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.EntryFunctionIndex))
}

// align4 rounds n up to the next multiple of 4, matching the image
// format's "all structures are padded to 4-byte alignment" rule.
func align4(n int) int { return (n + 3) &^ 3 }

// sectionTable is the parsed, in-memory form of the section table plus a
// view of the data area that follows it.
type sectionTable struct {
	entries []sectionTableEntry
	data    []byte
}

func readSectionTable(b []byte) (sectionTable, error) {
	if len(b) < 4 {
		return sectionTable{}, fmt.Errorf("module: image too short for section table")
	}
	count := binary.LittleEndian.Uint16(b[0:2])
	need := 4 + int(count)*sectionTableEntrySize
	if len(b) < need {
		return sectionTable{}, fmt.Errorf("module: image too short for %d section entries", count)
	}
	entries := make([]sectionTableEntry, count)
	for i := 0; i < int(count); i++ {
		off := 4 + i*sectionTableEntrySize
		rec := b[off : off+sectionTableEntrySize]
		id := SectionID(binary.LittleEndian.Uint16(rec[0:2]))
		if !id.valid() {
			return sectionTable{}, ancerr.NewLinkError(-1, int(id), "module: unrecognised section id")
		}
		entries[i] = sectionTableEntry{
			ID:     id,
			Offset: binary.LittleEndian.Uint32(rec[4:8]),
			Length: binary.LittleEndian.Uint32(rec[8:12]),
		}
	}
	return sectionTable{entries: entries, data: b[need:]}, nil
}

func (t sectionTable) section(id SectionID) ([]byte, bool) {
	for _, e := range t.entries {
		if e.ID == id {
			end := uint64(e.Offset) + uint64(e.Length)
			if end > uint64(len(t.data)) {
				return nil, false
			}
			return t.data[e.Offset:end], true
		}
	}
	return nil, false
}

func writeSectionTable(sections []sectionWrite) []byte {
	headerLen := 4 + len(sections)*sectionTableEntrySize
	dataLen := 0
	for _, s := range sections {
		dataLen += align4(len(s.bytes))
	}
	buf := make([]byte, headerLen+dataLen)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(sections)))

	dataOff := 0
	for i, s := range sections {
		rec := buf[4+i*sectionTableEntrySize:]
		binary.LittleEndian.PutUint16(rec[0:2], uint16(s.id))
		binary.LittleEndian.PutUint32(rec[4:8], uint32(dataOff))
		binary.LittleEndian.PutUint32(rec[8:12], uint32(len(s.bytes)))
		copy(buf[headerLen+dataOff:], s.bytes)
		dataOff += align4(len(s.bytes))
	}
	return buf
}

type sectionWrite struct {
	id    SectionID
	bytes []byte
}

// recordArea is the "table-only" / "table+data" uniform layout from
// spec.md §4.4: item_count u32, padding u32, then the fixed records, then
// (optionally) a variable data pool the records reference by offset+length.
func readRecordArea(b []byte) (count uint32, records []byte, err error) {
	if len(b) < 8 {
		return 0, nil, fmt.Errorf("module: section too short for record area header")
	}
	count = binary.LittleEndian.Uint32(b[0:4])
	return count, b[8:], nil
}

func writeRecordAreaHeader(count uint32) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], count)
	return buf
}

var _ = api.OperandI32 // keep api imported for future section codecs
