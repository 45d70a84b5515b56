package interpreter

import (
	"github.com/ancvm/ancvm/api"
	"github.com/ancvm/ancvm/internal/bridge"
	"github.com/ancvm/ancvm/internal/module"
)

func bridgeSignature(ft *module.FunctionType) bridge.Signature {
	return bridge.Signature{Params: ft.Params, Results: ft.Results}
}

// Host addresses (spec.md §4.12, component C12) are not raw pointers —
// Go's runtime can relocate backing arrays (stack growth) and offers no
// safe way to hand out one anyway. Instead a host address is a tagged
// 64-bit handle validated against the live buffer every time it is used:
// byte 7 is the region kind, byte 6 the owning module index and byte 5
// the data-section kind (both unused outside hostAddrKindData), and the
// low 40 bits are a byte offset into that region.
const (
	hostAddrKindLocal byte = iota
	hostAddrKindData
	hostAddrKindMemory
)

func encodeHostAddr(kind, moduleIndex, sectionKind byte, offset uint64) uint64 {
	return uint64(kind)<<56 | uint64(moduleIndex)<<48 | uint64(sectionKind)<<40 | (offset & 0xFFFFFFFFFF)
}

func decodeHostAddr(h uint64) (kind, moduleIndex, sectionKind byte, offset uint64) {
	return byte(h >> 56), byte(h >> 48), byte(h >> 40), h & 0xFFFFFFFFFF
}

// execHostAddrLocal implements spec.md §4.12 host_addr_local.
func (tc *ThreadContext) execHostAddrLocal(p []byte) verdict {
	layer, localIndex, _ := decodeE(p)
	addr, _, ok := tc.localItem(layer, localIndex)
	if !ok {
		return terminate(api.TerminatePanic)
	}
	tc.Stack.PushI64(encodeHostAddr(hostAddrKindLocal, 0, 0, uint64(addr)))
	return fallThrough
}

// execHostAddrData implements spec.md §4.12 host_addr_data.
func (tc *ThreadContext) execHostAddrData(p []byte, m *module.Module) verdict {
	offsetImm, dataIndex := decodeD(p)
	target, obj, err := tc.Tables.ResolveData(tc.PC.ModuleIndex, int(dataIndex), uint32(offsetImm), 0)
	if err != nil {
		return terminate(api.TerminateMemoryOutOfBounds)
	}
	abs := uint64(obj.Offset) + uint64(offsetImm)
	tc.Stack.PushI64(encodeHostAddr(hostAddrKindData, byte(target.Module), target.Kind, abs))
	return fallThrough
}

// execHostAddrMemory implements spec.md §4.12 host_addr_memory: the
// memory address is already on the stack as an i32 operand.
func (tc *ThreadContext) execHostAddrMemory() verdict {
	addr := tc.Stack.PopI32()
	tc.Stack.PushI64(encodeHostAddr(hostAddrKindMemory, 0, 0, uint64(addr)))
	return fallThrough
}

// execHostAddrFunction implements spec.md §4.12 host_addr_function: it
// returns a real native-callable function pointer via the bridge
// generator's callback flavor (spec.md §4.10 "Callback"), not a tagged
// handle — the value must be directly dereferenceable by native code
// that receives it through an extcall argument.
func (tc *ThreadContext) execHostAddrFunction(publicIndex uint32, m *module.Module) verdict {
	target, err := tc.Tables.ResolveFunction(tc.PC.ModuleIndex, int(publicIndex))
	if err != nil {
		return terminate(api.TerminateLinkError)
	}
	targetModule := tc.Tables.Module(target.Module)
	fn := targetModule.Functions[target.InternalIndex]
	ft := targetModule.Types[fn.TypeIndex]
	sig := bridgeSignature(ft)
	ptr := tc.Bridges.Callback(target.Module, target.InternalIndex, sig)
	tc.Stack.PushI64(uint64(ptr))
	return fallThrough
}

func (tc *ThreadContext) hostRegion(kind, moduleIndex, sectionKind byte, offset, length uint64) ([]byte, bool) {
	end := offset + length
	switch kind {
	case hostAddrKindLocal:
		buf := tc.Stack.Bytes()
		if end > uint64(len(buf)) {
			return nil, false
		}
		return buf[offset:end], true
	case hostAddrKindMemory:
		return tc.Memory.Slice(uint32(offset), uint32(length))
	case hostAddrKindData:
		m := tc.Tables.Module(int(moduleIndex))
		ds := m.DataSections[sectionKind]
		if end > uint64(len(ds.Pool)) {
			return nil, false
		}
		return ds.Pool[offset:end], true
	default:
		return nil, false
	}
}

// execHostCopyFromMemory implements spec.md §4.12 host_copy_from_memory:
// stack layout (host_address, memory_address, length), copying out of
// linear memory into the host-addressed region.
func (tc *ThreadContext) execHostCopyFromMemory() verdict {
	length := tc.Stack.PopI32()
	memAddr := tc.Stack.PopI32()
	handle := tc.Stack.PopI64()

	src, ok := tc.Memory.Slice(memAddr, length)
	if !ok {
		return terminate(api.TerminateMemoryOutOfBounds)
	}
	kind, moduleIndex, sectionKind, offset := decodeHostAddr(handle)
	dst, ok := tc.hostRegion(kind, moduleIndex, sectionKind, offset, uint64(length))
	if !ok {
		return terminate(api.TerminateMemoryOutOfBounds)
	}
	copy(dst, src)
	return fallThrough
}

// execHostCopyToMemory implements spec.md §4.12 host_copy_to_memory:
// stack layout (host_address, memory_address, length), copying into
// linear memory from the host-addressed region.
func (tc *ThreadContext) execHostCopyToMemory() verdict {
	length := tc.Stack.PopI32()
	memAddr := tc.Stack.PopI32()
	handle := tc.Stack.PopI64()

	kind, moduleIndex, sectionKind, offset := decodeHostAddr(handle)
	src, ok := tc.hostRegion(kind, moduleIndex, sectionKind, offset, uint64(length))
	if !ok {
		return terminate(api.TerminateMemoryOutOfBounds)
	}
	dst, ok := tc.Memory.Slice(memAddr, length)
	if !ok {
		return terminate(api.TerminateMemoryOutOfBounds)
	}
	copy(dst, src)
	return fallThrough
}
