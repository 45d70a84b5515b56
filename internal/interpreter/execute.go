package interpreter

import (
	"github.com/ancvm/ancvm/api"
	"github.com/ancvm/ancvm/internal/module"
)

// execute runs one instruction's handler and returns its verdict. instrOff
// is the instruction's own offset (start of its opcode); length is its
// total scheme length, used by control-flow handlers to compute "next
// instruction" addresses for return PCs.
func (tc *ThreadContext) execute(op Opcode, p []byte, m *module.Module, instrOff, length int) verdict {
	switch op {
	case OpNop:
		return fallThrough
	case OpDrop:
		tc.Stack.PopRaw()
		return fallThrough
	case OpDuplicate:
		v := tc.Stack.PeekRaw(0)
		tc.Stack.PushRaw(v)
		return fallThrough
	case OpSwap:
		a := tc.Stack.PopRaw()
		b := tc.Stack.PopRaw()
		tc.Stack.PushRaw(a)
		tc.Stack.PushRaw(b)
		return fallThrough
	case OpSelectNez:
		onFalse := tc.Stack.PopRaw()
		onTrue := tc.Stack.PopRaw()
		pred := tc.Stack.PopRaw()
		if pred != 0 {
			tc.Stack.PushRaw(onTrue)
		} else {
			tc.Stack.PushRaw(onFalse)
		}
		return fallThrough

	case OpImmI32:
		tc.Stack.PushI32(decodeC(p))
		return fallThrough
	case OpImmF32:
		tc.Stack.PushRaw(uint64(decodeC(p)))
		return fallThrough
	case OpImmI64:
		lo, hi := decodeF(p)
		tc.Stack.PushI64(uint64(lo) | uint64(hi)<<32)
		return fallThrough
	case OpImmF64:
		lo, hi := decodeF(p)
		tc.Stack.PushI64(uint64(lo) | uint64(hi)<<32)
		return fallThrough

	case OpLocalLoadI32, OpLocalLoadI64, OpLocalLoadF32, OpLocalLoadF64,
		OpLocalLoadI8S, OpLocalLoadI8U, OpLocalLoadI16S, OpLocalLoadI16U,
		OpLocalLoadI32S, OpLocalLoadI32U:
		return tc.execLocalLoad(op, p)
	case OpLocalStoreI32, OpLocalStoreI64, OpLocalStoreF32, OpLocalStoreF64, OpLocalStoreI8, OpLocalStoreI16:
		return tc.execLocalStore(op, p)

	case OpDataLoadI32, OpDataLoadI64, OpDataLoadF32, OpDataLoadF64:
		return tc.execDataLoad(op, p, m)
	case OpDataStoreI32, OpDataStoreI64, OpDataStoreF32, OpDataStoreF64:
		return tc.execDataStore(op, p, m)

	case OpMemoryLoadI32, OpMemoryLoadI64, OpMemoryLoadF32, OpMemoryLoadF64,
		OpMemoryLoadI8S, OpMemoryLoadI8U, OpMemoryLoadI16S, OpMemoryLoadI16U:
		return tc.execMemoryLoad(op, p)
	case OpMemoryStoreI32, OpMemoryStoreI64, OpMemoryStoreF32, OpMemoryStoreF64, OpMemoryStoreI8, OpMemoryStoreI16:
		return tc.execMemoryStore(op, p)
	case OpMemoryCapacity:
		tc.Stack.PushI64(uint64(tc.Memory.CapacityInPages()))
		return fallThrough
	case OpMemoryResize:
		delta := int(tc.Stack.PopI32())
		prev, ok := tc.Memory.Resize(delta)
		if !ok {
			return terminate(api.TerminateMemoryOutOfBounds)
		}
		tc.Stack.PushI64(uint64(prev))
		return fallThrough
	case OpMemoryFill:
		length32 := tc.Stack.PopI32()
		value := byte(tc.Stack.PopI32())
		offset := tc.Stack.PopI32()
		if !tc.Memory.Fill(offset, length32, value) {
			return terminate(api.TerminateMemoryOutOfBounds)
		}
		return fallThrough
	case OpMemoryCopy:
		length32 := tc.Stack.PopI32()
		src := tc.Stack.PopI32()
		dst := tc.Stack.PopI32()
		if !tc.Memory.Copy(dst, src, length32) {
			return terminate(api.TerminateMemoryOutOfBounds)
		}
		return fallThrough

	case OpBlock:
		return tc.execBlock(p, m, instrOff, length)
	case OpBlockAlt:
		return tc.execBlockAlt(p, m, instrOff, length)
	case OpBlockNez:
		return tc.execBlockNez(p, m, instrOff, length)
	case OpBreak:
		return tc.execBreak(p, false)
	case OpBreakNez:
		return tc.execBreak(p, true)
	case OpRecur:
		return tc.execRecur(p, m, false)
	case OpRecurNez:
		return tc.execRecur(p, m, true)
	case OpEnd:
		return tc.execEnd(instrOff, length)

	case OpCall:
		return tc.execCall(decodeC(p), instrOff, length)
	case OpDynCall:
		idx := int(tc.Stack.PopI32())
		return tc.execCall(uint32(idx), instrOff, length)
	case OpEnvCall:
		return terminate(api.TerminateUnreachableExecuted)
	case OpSyscall:
		return tc.execSyscall()
	case OpExtCall:
		return tc.execExtCall(decodeC(p), m)

	case OpPanic:
		return terminate(api.TerminatePanic)
	case OpUnreachable:
		return terminate(api.TerminateUnreachableExecuted)
	case OpDebug:
		return fallThrough

	case OpHostAddrLocal:
		return tc.execHostAddrLocal(p)
	case OpHostAddrData:
		return tc.execHostAddrData(p, m)
	case OpHostAddrMemory:
		return tc.execHostAddrMemory()
	case OpHostAddrFunction:
		return tc.execHostAddrFunction(decodeC(p), m)
	case OpHostCopyFromMemory:
		return tc.execHostCopyFromMemory()
	case OpHostCopyToMemory:
		return tc.execHostCopyToMemory()

	case OpIncI32, OpDecI32, OpIncI64, OpDecI64:
		return tc.execIncDec(op, p)

	default:
		return tc.execArith(op)
	}
}
