// Package module holds the in-memory representation of a loaded module
// image (spec.md §3 "Module", §4.3 "Data Sections", §4.4 "Module Image
// Reader") and the binary reader/writer for the on-disk image format
// (spec.md §6). Modules are immutable after Load returns.
package module

import (
	"fmt"

	"github.com/ancvm/ancvm/api"
)

// FunctionType is a tuple of parameter and result operand types.
type FunctionType struct {
	Params  []api.OperandType
	Results []api.OperandType
}

func (t *FunctionType) String() string {
	return fmt.Sprintf("(%v) -> (%v)", t.Params, t.Results)
}

// Equal reports whether t and other declare the same parameter and result
// types, used by the linker (spec.md §4.5) to validate import/export and
// external-function signatures.
func (t *FunctionType) Equal(other *FunctionType) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil {
		return false
	}
	return bytesEqual(t.Params, other.Params) && bytesEqual(t.Results, other.Results)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// LocalVariableItem is one entry of a local-variable list: a memory data
// type plus its declared length and alignment, with a computed byte
// offset within the owning frame's local area (spec.md §3 "Frame").
type LocalVariableItem struct {
	Type      api.MemoryDataType
	LengthBytes uint32
	Alignment   uint32
	Offset      uint32 // computed by NewLocalVariableList
}

// LocalVariableList describes the locals (arguments plus declared locals)
// of one function or block. ArgumentBytes is the size, in bytes, of the
// prefix occupied by copied-in call/block arguments; TotalBytes is the
// frame's total local-area allocation (spec.md §4.1 create_frame).
type LocalVariableList struct {
	Items         []LocalVariableItem
	ArgumentBytes uint32
	TotalBytes    uint32
}

// NewLocalVariableList lays out items sequentially, aligning each item's
// offset to its declared alignment, and records the byte length of the
// first argCount items as ArgumentBytes.
func NewLocalVariableList(items []LocalVariableItem, argCount int) *LocalVariableList {
	list := &LocalVariableList{Items: make([]LocalVariableItem, len(items))}
	var offset uint32
	for i, it := range items {
		if it.Alignment > 1 {
			if rem := offset % it.Alignment; rem != 0 {
				offset += it.Alignment - rem
			}
		}
		it.Offset = offset
		list.Items[i] = it
		offset += it.LengthBytes
		if i+1 == argCount {
			list.ArgumentBytes = offset
		}
	}
	list.TotalBytes = offset
	if argCount == 0 {
		list.ArgumentBytes = 0
	}
	return list
}

// DataObject is one entry of a data section: its byte range within the
// section's packed pool, plus its declared alignment.
type DataObject struct {
	Offset    uint32
	Length    uint32
	Alignment uint32
}

// DataSection is one of a module's three parallel data arrays (spec.md
// §4.3). Pool holds the packed bytes backing every DataObject; for
// DataSectionUninitialized, Pool is allocated zeroed at load time rather
// than read from the image.
type DataSection struct {
	Kind    api.DataSectionKind
	Pool    []byte
	Objects []DataObject
}

// Bounds returns the absolute [start, end) byte range of object i within
// Pool, validating the length the caller requests against the object's
// declared length.
func (s *DataSection) Bounds(objectIndex int, offset, length uint32) (start, end uint32, ok bool) {
	if objectIndex < 0 || objectIndex >= len(s.Objects) {
		return 0, 0, false
	}
	obj := s.Objects[objectIndex]
	if uint64(offset)+uint64(length) > uint64(obj.Length) {
		return 0, 0, false
	}
	start = obj.Offset + offset
	end = start + length
	return start, end, true
}

// FunctionEntry is one entry of a module's function table: the type it
// implements, which local-variable list sizes its frame, and where its
// bytecode lives within the module's code blob.
type FunctionEntry struct {
	TypeIndex      uint32
	LocalListIndex uint32
	CodeOffset     uint32
	CodeLength     uint32
}

// ImportedFunction names a function this module expects to resolve from
// another module via the link tables (spec.md §4.5).
type ImportedFunction struct {
	ModuleName   string
	FunctionName string
	TypeIndex    uint32
}

// ImportedData names a data object this module expects to resolve from
// another module.
type ImportedData struct {
	ModuleName string
	DataName   string
	Kind       api.DataSectionKind
}

// ExternalLibraryKind classifies how an external (native) library is
// located, per spec.md §4.9.
type ExternalLibraryKind byte

const (
	ExternalLibrarySystem ExternalLibraryKind = iota // e.g. "libc.so.6"
	ExternalLibraryFile                              // path relative to the program directory
	ExternalLibraryLocal                             // resolved by external tooling before load
	ExternalLibraryRemote
	ExternalLibraryShare
	ExternalLibraryRuntime
)

// ExternalLibraryRef is one entry of a module's external-library table.
type ExternalLibraryRef struct {
	Kind  ExternalLibraryKind
	Value string // soname, path, or tooling-resolved identifier
}

// ExternalFunctionRef is one entry of a module's external-function table:
// a symbol within a named external library, with the calling signature
// described by TypeIndex.
type ExternalFunctionRef struct {
	LibraryIndex uint32
	Symbol       string
	TypeIndex    uint32
}

// Module is the immutable, in-memory form of one loaded module image
// (spec.md §3 "Module"). Public function and data indices count imports
// first, then internal entries (spec.md §3 "Public vs. internal
// indices"); Functions and DataSections hold the internal entries only.
type Module struct {
	Name    string
	Runtime api.ProgramSourceType

	Types              []*FunctionType
	LocalVariableLists []*LocalVariableList
	Functions          []*FunctionEntry // internal functions only
	Code               []byte           // packed bytecode blob; FunctionEntry.CodeOffset indexes into this

	DataSections [3]*DataSection // indexed by api.DataSectionKind

	ImportedFunctions []*ImportedFunction
	ImportedData      []*ImportedData

	ExternalLibraries []*ExternalLibraryRef
	ExternalFunctions []*ExternalFunctionRef

	// EntryFunctionIndex is set on the application module only (spec.md
	// §6 "Program entry"); -1 otherwise.
	EntryFunctionIndex int

	// FormatMajor/FormatMinor are the image format version this module
	// was compiled against (spec.md §6 header), checked strictly against
	// this runtime's own version for the application module at link time.
	FormatMajor uint16
	FormatMinor uint16
}

// FunctionCount returns the number of public function indices: imports
// first, then internally defined functions.
func (m *Module) FunctionCount() int {
	return len(m.ImportedFunctions) + len(m.Functions)
}

// IsImportedFunction reports whether publicIndex names an imported
// function rather than one defined in this module.
func (m *Module) IsImportedFunction(publicIndex int) bool {
	return publicIndex >= 0 && publicIndex < len(m.ImportedFunctions)
}

// InternalFunctionIndex converts a public function index into an internal
// one, counting imports first (spec.md §3). ok is false if publicIndex
// names an import or is out of range.
func (m *Module) InternalFunctionIndex(publicIndex int) (internalIndex int, ok bool) {
	n := len(m.ImportedFunctions)
	if publicIndex < n || publicIndex >= m.FunctionCount() {
		return 0, false
	}
	return publicIndex - n, true
}

// DataCount returns the number of public data indices across all three
// data-section kinds combined with imports, mirroring FunctionCount.
func (m *Module) DataCount() int {
	total := len(m.ImportedData)
	for _, s := range m.DataSections {
		if s != nil {
			total += len(s.Objects)
		}
	}
	return total
}

// FunctionTypeOf returns the FunctionType of internal function index i.
func (m *Module) FunctionTypeOf(internalIndex int) *FunctionType {
	fn := m.Functions[internalIndex]
	return m.Types[fn.TypeIndex]
}

// LocalVariableListOf returns the LocalVariableList of internal function
// index i.
func (m *Module) LocalVariableListOf(internalIndex int) *LocalVariableList {
	fn := m.Functions[internalIndex]
	return m.LocalVariableLists[fn.LocalListIndex]
}
