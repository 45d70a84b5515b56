package interpreter

import (
	"encoding/binary"

	"github.com/ancvm/ancvm/api"
	"github.com/ancvm/ancvm/internal/memory"
	"github.com/ancvm/ancvm/internal/module"
)

// --- local variable access (spec.md §4.7 "local load/store by (layer,
// local variable index)") ---------------------------------------------

func (tc *ThreadContext) localItem(layer, localIndex uint16) (addr int, item module.LocalVariableItem, ok bool) {
	pack := tc.Stack.GetFramePack(int(layer))
	m := tc.Tables.Module(tc.PC.ModuleIndex)
	list := m.LocalVariableLists[pack.LocalListIndex]
	if int(localIndex) >= len(list.Items) {
		return 0, module.LocalVariableItem{}, false
	}
	item = list.Items[localIndex]
	return pack.FP + int(item.Offset), item, true
}

func (tc *ThreadContext) execLocalLoad(op Opcode, p []byte) verdict {
	layer, localIndex, _ := decodeE(p)
	addr, _, ok := tc.localItem(layer, localIndex)
	if !ok {
		return terminate(api.TerminatePanic)
	}
	buf := tc.Stack.Bytes()
	switch op {
	case OpLocalLoadI32:
		tc.Stack.PushI32(binary.LittleEndian.Uint32(buf[addr:]))
	case OpLocalLoadI64:
		tc.Stack.PushI64(binary.LittleEndian.Uint64(buf[addr:]))
	case OpLocalLoadF32:
		tc.Stack.PushRaw(uint64(binary.LittleEndian.Uint32(buf[addr:])))
	case OpLocalLoadF64:
		tc.Stack.PushRaw(binary.LittleEndian.Uint64(buf[addr:]))
	case OpLocalLoadI8S:
		tc.Stack.PushI32(uint32(int32(int8(buf[addr]))))
	case OpLocalLoadI8U:
		tc.Stack.PushI32(uint32(buf[addr]))
	case OpLocalLoadI16S:
		tc.Stack.PushI32(uint32(int32(int16(binary.LittleEndian.Uint16(buf[addr:])))))
	case OpLocalLoadI16U:
		tc.Stack.PushI32(uint32(binary.LittleEndian.Uint16(buf[addr:])))
	case OpLocalLoadI32S:
		tc.Stack.PushI64(uint64(int64(int32(binary.LittleEndian.Uint32(buf[addr:])))))
	case OpLocalLoadI32U:
		tc.Stack.PushI64(uint64(binary.LittleEndian.Uint32(buf[addr:])))
	}
	return fallThrough
}

func (tc *ThreadContext) execLocalStore(op Opcode, p []byte) verdict {
	layer, localIndex, _ := decodeE(p)
	addr, _, ok := tc.localItem(layer, localIndex)
	if !ok {
		return terminate(api.TerminatePanic)
	}
	buf := tc.Stack.Bytes()
	switch op {
	case OpLocalStoreI32, OpLocalStoreF32:
		binary.LittleEndian.PutUint32(buf[addr:], uint32(tc.Stack.PopRaw()))
	case OpLocalStoreI64, OpLocalStoreF64:
		binary.LittleEndian.PutUint64(buf[addr:], tc.Stack.PopRaw())
	case OpLocalStoreI8:
		buf[addr] = byte(tc.Stack.PopI32())
	case OpLocalStoreI16:
		binary.LittleEndian.PutUint16(buf[addr:], uint16(tc.Stack.PopI32()))
	}
	return fallThrough
}

// --- data section access (spec.md §4.3, §4.7) --------------------------

func dataWidth(op Opcode) uint32 {
	switch op {
	case OpDataLoadI64, OpDataStoreI64, OpDataLoadF64, OpDataStoreF64:
		return 8
	default:
		return 4
	}
}

func (tc *ThreadContext) resolveDataView(dataIndex uint32, offset uint32, width uint32) (*memory.Memory, uint32, api.DataSectionKind, error) {
	target, obj, err := tc.Tables.ResolveData(tc.PC.ModuleIndex, int(dataIndex), offset, width)
	if err != nil {
		return nil, 0, 0, err
	}
	m := tc.Tables.Module(target.Module)
	ds := m.DataSections[target.Kind]
	return memory.NewView(ds.Pool), obj.Offset + offset, api.DataSectionKind(target.Kind), nil
}

// dataMemoryType maps a data-section opcode to the generic data type
// Memory.LoadTyped/StoreTyped dispatch on: unlike local/memory access,
// data section objects never need the I8/I16 sub-word variants, so every
// op here has a direct api.MemoryDataType counterpart.
func dataMemoryType(op Opcode) api.MemoryDataType {
	switch op {
	case OpDataLoadI64, OpDataStoreI64:
		return api.MemoryI64
	case OpDataLoadF32, OpDataStoreF32:
		return api.MemoryF32
	case OpDataLoadF64, OpDataStoreF64:
		return api.MemoryF64
	default:
		return api.MemoryI32
	}
}

func (tc *ThreadContext) execDataLoad(op Opcode, p []byte, m *module.Module) verdict {
	offsetImm, dataIndex := decodeD(p)
	view, abs, _, err := tc.resolveDataView(dataIndex, uint32(offsetImm), dataWidth(op))
	if err != nil {
		return terminate(api.TerminateMemoryOutOfBounds)
	}
	v, _ := view.LoadTyped(dataMemoryType(op), abs)
	tc.Stack.PushRaw(v)
	return fallThrough
}

func (tc *ThreadContext) execDataStore(op Opcode, p []byte, m *module.Module) verdict {
	offsetImm, dataIndex := decodeD(p)
	view, abs, kind, err := tc.resolveDataView(dataIndex, uint32(offsetImm), dataWidth(op))
	if err != nil {
		return terminate(api.TerminateMemoryOutOfBounds)
	}
	if kind == api.DataSectionReadOnly {
		return terminate(api.TerminateLinkError)
	}
	view.StoreTyped(dataMemoryType(op), abs, tc.Stack.PopRaw())
	return fallThrough
}

// --- linear memory access (spec.md §4.2, §4.7) --------------------------

func (tc *ThreadContext) execMemoryLoad(op Opcode, p []byte) verdict {
	imm := decodeB(p)
	addr := tc.Stack.PopI32() + uint32(imm)
	switch op {
	case OpMemoryLoadI32:
		v, ok := tc.Memory.LoadI32(addr)
		if !ok {
			return terminate(api.TerminateMemoryOutOfBounds)
		}
		tc.Stack.PushI32(v)
	case OpMemoryLoadI64:
		v, ok := tc.Memory.LoadI64(addr)
		if !ok {
			return terminate(api.TerminateMemoryOutOfBounds)
		}
		tc.Stack.PushI64(v)
	case OpMemoryLoadF32:
		v, ok := tc.Memory.LoadF32(addr, tc.FloatLoadPolicy)
		if !ok {
			return terminate(api.TerminateUnsupportedFloatingPointVariants)
		}
		tc.Stack.PushF32(v)
	case OpMemoryLoadF64:
		v, ok := tc.Memory.LoadF64(addr, tc.FloatLoadPolicy)
		if !ok {
			return terminate(api.TerminateUnsupportedFloatingPointVariants)
		}
		tc.Stack.PushF64(v)
	case OpMemoryLoadI8S:
		v, ok := tc.Memory.LoadI8(addr)
		if !ok {
			return terminate(api.TerminateMemoryOutOfBounds)
		}
		tc.Stack.PushI32(uint32(int32(int8(v))))
	case OpMemoryLoadI8U:
		v, ok := tc.Memory.LoadI8(addr)
		if !ok {
			return terminate(api.TerminateMemoryOutOfBounds)
		}
		tc.Stack.PushI32(uint32(v))
	case OpMemoryLoadI16S:
		v, ok := tc.Memory.LoadI16(addr)
		if !ok {
			return terminate(api.TerminateMemoryOutOfBounds)
		}
		tc.Stack.PushI32(uint32(int32(int16(v))))
	case OpMemoryLoadI16U:
		v, ok := tc.Memory.LoadI16(addr)
		if !ok {
			return terminate(api.TerminateMemoryOutOfBounds)
		}
		tc.Stack.PushI32(uint32(v))
	}
	return fallThrough
}

func (tc *ThreadContext) execMemoryStore(op Opcode, p []byte) verdict {
	imm := decodeB(p)
	switch op {
	case OpMemoryStoreI32:
		v := tc.Stack.PopI32()
		addr := tc.Stack.PopI32() + uint32(imm)
		if !tc.Memory.StoreI32(addr, v) {
			return terminate(api.TerminateMemoryOutOfBounds)
		}
	case OpMemoryStoreI64:
		v := tc.Stack.PopI64()
		addr := tc.Stack.PopI32() + uint32(imm)
		if !tc.Memory.StoreI64(addr, v) {
			return terminate(api.TerminateMemoryOutOfBounds)
		}
	case OpMemoryStoreF32:
		v := tc.Stack.PopF32()
		addr := tc.Stack.PopI32() + uint32(imm)
		if !tc.Memory.StoreF32(addr, v) {
			return terminate(api.TerminateMemoryOutOfBounds)
		}
	case OpMemoryStoreF64:
		v := tc.Stack.PopF64()
		addr := tc.Stack.PopI32() + uint32(imm)
		if !tc.Memory.StoreF64(addr, v) {
			return terminate(api.TerminateMemoryOutOfBounds)
		}
	case OpMemoryStoreI8:
		v := byte(tc.Stack.PopI32())
		addr := tc.Stack.PopI32() + uint32(imm)
		if !tc.Memory.StoreI8(addr, v) {
			return terminate(api.TerminateMemoryOutOfBounds)
		}
	case OpMemoryStoreI16:
		v := uint16(tc.Stack.PopI32())
		addr := tc.Stack.PopI32() + uint32(imm)
		if !tc.Memory.StoreI16(addr, v) {
			return terminate(api.TerminateMemoryOutOfBounds)
		}
	}
	return fallThrough
}
