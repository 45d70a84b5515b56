// Package memory implements linear memory (spec.md §4.2, component C2): a
// page-granular, resizeable byte region with typed load/store operations.
package memory

import (
	"encoding/binary"
	"math"

	"github.com/ancvm/ancvm/api"
	"github.com/ancvm/ancvm/internal/floatmath"
)

// PageSize is the unit of growth for linear memory (spec.md §4.2
// "Capacity is expressed in fixed-size pages").
const PageSize = 64 * 1024

// Memory is one page-granular linear memory region. A linked program
// holds a single Memory shared by all of its modules.
type Memory struct {
	bytes    []byte
	maxPages int // 0 means unbounded within api constraints
}

// New creates a Memory with the given initial page count and an optional
// maximum page count (0 = unbounded).
func New(initialPages, maxPages int) *Memory {
	return &Memory{bytes: make([]byte, initialPages*PageSize), maxPages: maxPages}
}

// NewView wraps an existing byte slice (typically a module.DataSection's
// packed pool) with the same typed load/store API as linear memory, per
// spec.md §4.3 "The indexed-access API is identical to C2's". It does not
// grow; Resize on a view always fails.
func NewView(b []byte) *Memory { return &Memory{bytes: b} }

// CapacityInPages implements spec.md §4.2 capacity_in_pages.
func (m *Memory) CapacityInPages() int { return len(m.bytes) / PageSize }

// Resize implements spec.md §4.2 resize: grows memory by deltaPages pages,
// zero-filling the new region, and returns the previous capacity in pages.
// It refuses to grow past maxPages when one was configured.
func (m *Memory) Resize(deltaPages int) (previousPages int, ok bool) {
	previousPages = m.CapacityInPages()
	if deltaPages < 0 {
		return previousPages, false
	}
	newPages := previousPages + deltaPages
	if m.maxPages > 0 && newPages > m.maxPages {
		return previousPages, false
	}
	m.bytes = append(m.bytes, make([]byte, deltaPages*PageSize)...)
	return previousPages, true
}

// bounds reports whether [offset, offset+length) lies within memory,
// guarding against the uint32 wraparound a naive offset+length check
// would miss.
func (m *Memory) bounds(offset, length uint32) bool {
	end := uint64(offset) + uint64(length)
	return end <= uint64(len(m.bytes))
}

// Fill implements spec.md §4.2 fill: writes value into [offset,
// offset+length).
func (m *Memory) Fill(offset, length uint32, value byte) bool {
	if !m.bounds(offset, length) {
		return false
	}
	region := m.bytes[offset : offset+length]
	for i := range region {
		region[i] = value
	}
	return true
}

// Copy implements spec.md §4.2 copy: copies length bytes from src to dst
// within the same memory, correctly handling overlap.
func (m *Memory) Copy(dst, src, length uint32) bool {
	if !m.bounds(dst, length) || !m.bounds(src, length) {
		return false
	}
	copy(m.bytes[dst:dst+length], m.bytes[src:src+length])
	return true
}

// Slice returns a direct view of [offset, offset+length) for bulk
// operations (data-section initialization, extcall/syscall argument
// marshalling). Callers must not retain it across a Resize, which may
// reallocate the backing array.
func (m *Memory) Slice(offset, length uint32) ([]byte, bool) {
	if !m.bounds(offset, length) {
		return nil, false
	}
	return m.bytes[offset : offset+length], true
}

// --- typed load/store -------------------------------------------------

// LoadI8/LoadI16/LoadI32/LoadI64 read raw little-endian integers of the
// named width without interpreting signedness, matching spec.md §4.2
// "Signed/unsigned is an instruction attribute, not a type attribute";
// callers sign- or zero-extend into the operand slot themselves.

func (m *Memory) LoadI8(offset uint32) (uint8, bool) {
	if !m.bounds(offset, 1) {
		return 0, false
	}
	return m.bytes[offset], true
}

func (m *Memory) LoadI16(offset uint32) (uint16, bool) {
	if !m.bounds(offset, 2) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(m.bytes[offset:]), true
}

func (m *Memory) LoadI32(offset uint32) (uint32, bool) {
	if !m.bounds(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.bytes[offset:]), true
}

func (m *Memory) LoadI64(offset uint32) (uint64, bool) {
	if !m.bounds(offset, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.bytes[offset:]), true
}

func (m *Memory) StoreI8(offset uint32, v uint8) bool {
	if !m.bounds(offset, 1) {
		return false
	}
	m.bytes[offset] = v
	return true
}

func (m *Memory) StoreI16(offset uint32, v uint16) bool {
	if !m.bounds(offset, 2) {
		return false
	}
	binary.LittleEndian.PutUint16(m.bytes[offset:], v)
	return true
}

func (m *Memory) StoreI32(offset uint32, v uint32) bool {
	if !m.bounds(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.bytes[offset:], v)
	return true
}

func (m *Memory) StoreI64(offset uint32, v uint64) bool {
	if !m.bounds(offset, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.bytes[offset:], v)
	return true
}

// FloatLoadPolicy controls how LoadF32/LoadF64 react to signalling NaN
// bit patterns (spec.md §4.2 "float load validation policy").
type FloatLoadPolicy byte

const (
	// FloatLoadPermissive accepts any bit pattern, including signalling
	// NaNs, unchanged. The runtime's default features select
	// FloatLoadRejectSignaling instead.
	FloatLoadPermissive FloatLoadPolicy = iota
	// FloatLoadRejectSignaling reports failure when the loaded bits
	// encode a signalling NaN.
	FloatLoadRejectSignaling
)

func (m *Memory) LoadF32(offset uint32, policy FloatLoadPolicy) (float32, bool) {
	bits, ok := m.LoadI32(offset)
	if !ok {
		return 0, false
	}
	if policy == FloatLoadRejectSignaling && floatmath.IsSignalingNaN32(bits) {
		return 0, false
	}
	return math.Float32frombits(bits), true
}

func (m *Memory) LoadF64(offset uint32, policy FloatLoadPolicy) (float64, bool) {
	bits, ok := m.LoadI64(offset)
	if !ok {
		return 0, false
	}
	if policy == FloatLoadRejectSignaling && floatmath.IsSignalingNaN64(bits) {
		return 0, false
	}
	return math.Float64frombits(bits), true
}

func (m *Memory) StoreF32(offset uint32, v float32) bool {
	return m.StoreI32(offset, math.Float32bits(v))
}

func (m *Memory) StoreF64(offset uint32, v float64) bool {
	return m.StoreI64(offset, math.Float64bits(v))
}

// LoadTyped and StoreTyped dispatch on api.MemoryDataType, used by the
// interpreter's data section load/store handlers (spec.md §4.3, §4.7),
// which only ever need the four scalar types and never the sub-word
// I8/I16 variants that the linear-memory handlers read through
// LoadI8/LoadI16 directly.
func (m *Memory) LoadTyped(t api.MemoryDataType, offset uint32) (uint64, bool) {
	switch t {
	case api.MemoryI32:
		v, ok := m.LoadI32(offset)
		return uint64(v), ok
	case api.MemoryI64:
		v, ok := m.LoadI64(offset)
		return v, ok
	case api.MemoryF32:
		v, ok := m.LoadF32(offset, FloatLoadPermissive)
		return uint64(math.Float32bits(v)), ok
	case api.MemoryF64:
		v, ok := m.LoadF64(offset, FloatLoadPermissive)
		return math.Float64bits(v), ok
	default:
		return 0, false
	}
}

func (m *Memory) StoreTyped(t api.MemoryDataType, offset uint32, v uint64) bool {
	switch t {
	case api.MemoryI32:
		return m.StoreI32(offset, uint32(v))
	case api.MemoryI64:
		return m.StoreI64(offset, v)
	case api.MemoryF32:
		return m.StoreI32(offset, uint32(v))
	case api.MemoryF64:
		return m.StoreI64(offset, v)
	default:
		return false
	}
}
