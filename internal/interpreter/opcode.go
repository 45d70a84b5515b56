// Package interpreter implements the thread context, instruction
// dispatcher, and control-flow engine (spec.md §4.6-4.8, §4.12,
// components C6, C7, C8, C12).
package interpreter

// Opcode is a two-byte little-endian instruction tag (spec.md §4.7).
type Opcode uint16

// Scheme identifies one of the seven fixed instruction layouts (spec.md
// §4.7's scheme table A-G), named by their total instruction length.
type Scheme byte

const (
	SchemeA Scheme = iota // 2 bytes: opcode only
	SchemeB               // 4 bytes: opcode + u16
	SchemeC               // 8 bytes: opcode + u16 pad + u32
	SchemeD               // 8 bytes: opcode + u16 + u32
	SchemeE               // 8 bytes: opcode + u16 + u16 + u16
	SchemeF               // 12 bytes: opcode + u16 pad + u32 + u32
	SchemeG               // 16 bytes: opcode + u16 pad + u32 + u32 + u32
)

// Length returns the total instruction length in bytes for s.
func (s Scheme) Length() int {
	switch s {
	case SchemeA:
		return 2
	case SchemeB:
		return 4
	case SchemeC, SchemeD, SchemeE:
		return 8
	case SchemeF:
		return 12
	case SchemeG:
		return 16
	default:
		return 2
	}
}

const (
	OpNop Opcode = iota
	OpDrop
	OpDuplicate
	OpSwap
	OpSelectNez

	OpImmI32
	OpImmI64
	OpImmF32
	OpImmF64

	// Local variable access: layer (u16), local index (u16); the third
	// E-scheme parameter is reserved/zero.
	OpLocalLoadI32
	OpLocalLoadI64
	OpLocalLoadF32
	OpLocalLoadF64
	OpLocalLoadI8S
	OpLocalLoadI8U
	OpLocalLoadI16S
	OpLocalLoadI16U
	OpLocalLoadI32S // widen to i64, sign-extended
	OpLocalLoadI32U
	OpLocalStoreI32
	OpLocalStoreI64
	OpLocalStoreF32
	OpLocalStoreF64
	OpLocalStoreI8
	OpLocalStoreI16

	// Data section access: byte offset (scheme D's u16 field), data public
	// index (scheme D's u32 field).
	OpDataLoadI32
	OpDataLoadI64
	OpDataLoadF32
	OpDataLoadF64
	OpDataStoreI32
	OpDataStoreI64
	OpDataStoreF32
	OpDataStoreF64

	// Linear memory access: operand address popped from the stack, plus a
	// u16 immediate offset (scheme B).
	OpMemoryLoadI32
	OpMemoryLoadI64
	OpMemoryLoadF32
	OpMemoryLoadF64
	OpMemoryLoadI8S
	OpMemoryLoadI8U
	OpMemoryLoadI16S
	OpMemoryLoadI16U
	OpMemoryStoreI32
	OpMemoryStoreI64
	OpMemoryStoreF32
	OpMemoryStoreF64
	OpMemoryStoreI8
	OpMemoryStoreI16
	OpMemoryCapacity
	OpMemoryResize
	OpMemoryFill
	OpMemoryCopy

	// Integer arithmetic/bitwise, 32-bit.
	OpAddI32
	OpSubI32
	OpMulI32
	OpDivSI32
	OpDivUI32
	OpRemSI32
	OpRemUI32
	OpIncI32 // amount (u16, scheme B): pop, add amount, push
	OpDecI32 // amount (u16, scheme B): pop, subtract amount, push
	OpAndI32
	OpOrI32
	OpXorI32
	OpNotI32
	OpShlI32
	OpShrSI32
	OpShrUI32
	OpRotlI32
	OpRotrI32
	OpClzI32
	OpCtzI32
	OpPopcntI32

	// Integer arithmetic/bitwise, 64-bit.
	OpAddI64
	OpSubI64
	OpMulI64
	OpDivSI64
	OpDivUI64
	OpRemSI64
	OpRemUI64
	OpIncI64 // amount (u16, scheme B): pop, add amount, push
	OpDecI64 // amount (u16, scheme B): pop, subtract amount, push
	OpAndI64
	OpOrI64
	OpXorI64
	OpNotI64
	OpShlI64
	OpShrSI64
	OpShrUI64
	OpRotlI64
	OpRotrI64
	OpClzI64
	OpCtzI64
	OpPopcntI64

	// Float arithmetic.
	OpAddF32
	OpSubF32
	OpMulF32
	OpDivF32
	OpMinF32
	OpMaxF32
	OpAddF64
	OpSubF64
	OpMulF64
	OpDivF64
	OpMinF64
	OpMaxF64

	// Comparisons producing a 0/1 i32.
	OpEqzI32
	OpEqI32
	OpNeI32
	OpLtSI32
	OpLtUI32
	OpGtSI32
	OpGtUI32
	OpLeSI32
	OpLeUI32
	OpGeSI32
	OpGeUI32
	OpEqzI64
	OpEqI64
	OpNeI64
	OpLtSI64
	OpLtUI64
	OpGtSI64
	OpGtUI64
	OpLeSI64
	OpLeUI64
	OpGeSI64
	OpGeUI64
	OpEqF32
	OpNeF32
	OpLtF32
	OpGtF32
	OpLeF32
	OpGeF32
	OpEqF64
	OpNeF64
	OpLtF64
	OpGtF64
	OpLeF64
	OpGeF64

	// Width/sign conversions and float<->int.
	OpI32WrapI64
	OpI64ExtendI32S
	OpI64ExtendI32U
	OpI32TruncF32S
	OpI32TruncF32U
	OpI32TruncF64S
	OpI32TruncF64U
	OpI64TruncF32S
	OpI64TruncF32U
	OpI64TruncF64S
	OpI64TruncF64U
	OpF32ConvertI32S
	OpF32ConvertI32U
	OpF64ConvertI32S
	OpF64ConvertI32U
	OpF32DemoteF64
	OpF64PromoteF32

	// Structured control flow (spec.md §4.8).
	OpBlock
	OpBlockAlt
	OpBlockNez
	OpBreak
	OpBreakNez
	OpRecur
	OpRecurNez
	OpEnd

	// Calls.
	OpCall
	OpDynCall
	OpEnvCall
	OpSyscall
	OpExtCall

	// Diagnostics.
	OpPanic
	OpUnreachable
	OpDebug

	// Host-address operators (spec.md §4.12).
	OpHostAddrLocal
	OpHostAddrData
	OpHostAddrMemory
	OpHostAddrFunction
	OpHostCopyFromMemory
	OpHostCopyToMemory
)

var opcodeScheme = map[Opcode]Scheme{
	OpNop: SchemeA, OpDrop: SchemeA, OpDuplicate: SchemeA, OpSwap: SchemeA, OpSelectNez: SchemeA,

	OpImmI32: SchemeC, OpImmF32: SchemeC, OpImmI64: SchemeF, OpImmF64: SchemeF,

	OpLocalLoadI32: SchemeE, OpLocalLoadI64: SchemeE, OpLocalLoadF32: SchemeE, OpLocalLoadF64: SchemeE,
	OpLocalLoadI8S: SchemeE, OpLocalLoadI8U: SchemeE, OpLocalLoadI16S: SchemeE, OpLocalLoadI16U: SchemeE,
	OpLocalLoadI32S: SchemeE, OpLocalLoadI32U: SchemeE,
	OpLocalStoreI32: SchemeE, OpLocalStoreI64: SchemeE, OpLocalStoreF32: SchemeE, OpLocalStoreF64: SchemeE,
	OpLocalStoreI8: SchemeE, OpLocalStoreI16: SchemeE,

	OpDataLoadI32: SchemeD, OpDataLoadI64: SchemeD, OpDataLoadF32: SchemeD, OpDataLoadF64: SchemeD,
	OpDataStoreI32: SchemeD, OpDataStoreI64: SchemeD, OpDataStoreF32: SchemeD, OpDataStoreF64: SchemeD,

	OpMemoryLoadI32: SchemeB, OpMemoryLoadI64: SchemeB, OpMemoryLoadF32: SchemeB, OpMemoryLoadF64: SchemeB,
	OpMemoryLoadI8S: SchemeB, OpMemoryLoadI8U: SchemeB, OpMemoryLoadI16S: SchemeB, OpMemoryLoadI16U: SchemeB,
	OpMemoryStoreI32: SchemeB, OpMemoryStoreI64: SchemeB, OpMemoryStoreF32: SchemeB, OpMemoryStoreF64: SchemeB,
	OpMemoryStoreI8: SchemeB, OpMemoryStoreI16: SchemeB,
	OpMemoryCapacity: SchemeA, OpMemoryResize: SchemeA, OpMemoryFill: SchemeA, OpMemoryCopy: SchemeA,

	OpAddI32: SchemeA, OpSubI32: SchemeA, OpMulI32: SchemeA, OpDivSI32: SchemeA, OpDivUI32: SchemeA,
	OpRemSI32: SchemeA, OpRemUI32: SchemeA, OpIncI32: SchemeB, OpDecI32: SchemeB,
	OpAndI32: SchemeA, OpOrI32: SchemeA, OpXorI32: SchemeA,
	OpNotI32: SchemeA, OpShlI32: SchemeA, OpShrSI32: SchemeA, OpShrUI32: SchemeA, OpRotlI32: SchemeA,
	OpRotrI32: SchemeA, OpClzI32: SchemeA, OpCtzI32: SchemeA, OpPopcntI32: SchemeA,

	OpAddI64: SchemeA, OpSubI64: SchemeA, OpMulI64: SchemeA, OpDivSI64: SchemeA, OpDivUI64: SchemeA,
	OpRemSI64: SchemeA, OpRemUI64: SchemeA, OpIncI64: SchemeB, OpDecI64: SchemeB,
	OpAndI64: SchemeA, OpOrI64: SchemeA, OpXorI64: SchemeA,
	OpNotI64: SchemeA, OpShlI64: SchemeA, OpShrSI64: SchemeA, OpShrUI64: SchemeA, OpRotlI64: SchemeA,
	OpRotrI64: SchemeA, OpClzI64: SchemeA, OpCtzI64: SchemeA, OpPopcntI64: SchemeA,

	OpAddF32: SchemeA, OpSubF32: SchemeA, OpMulF32: SchemeA, OpDivF32: SchemeA, OpMinF32: SchemeA, OpMaxF32: SchemeA,
	OpAddF64: SchemeA, OpSubF64: SchemeA, OpMulF64: SchemeA, OpDivF64: SchemeA, OpMinF64: SchemeA, OpMaxF64: SchemeA,

	OpEqzI32: SchemeA, OpEqI32: SchemeA, OpNeI32: SchemeA, OpLtSI32: SchemeA, OpLtUI32: SchemeA,
	OpGtSI32: SchemeA, OpGtUI32: SchemeA, OpLeSI32: SchemeA, OpLeUI32: SchemeA, OpGeSI32: SchemeA, OpGeUI32: SchemeA,
	OpEqzI64: SchemeA, OpEqI64: SchemeA, OpNeI64: SchemeA, OpLtSI64: SchemeA, OpLtUI64: SchemeA,
	OpGtSI64: SchemeA, OpGtUI64: SchemeA, OpLeSI64: SchemeA, OpLeUI64: SchemeA, OpGeSI64: SchemeA, OpGeUI64: SchemeA,
	OpEqF32: SchemeA, OpNeF32: SchemeA, OpLtF32: SchemeA, OpGtF32: SchemeA, OpLeF32: SchemeA, OpGeF32: SchemeA,
	OpEqF64: SchemeA, OpNeF64: SchemeA, OpLtF64: SchemeA, OpGtF64: SchemeA, OpLeF64: SchemeA, OpGeF64: SchemeA,

	OpI32WrapI64: SchemeA, OpI64ExtendI32S: SchemeA, OpI64ExtendI32U: SchemeA,
	OpI32TruncF32S: SchemeA, OpI32TruncF32U: SchemeA, OpI32TruncF64S: SchemeA, OpI32TruncF64U: SchemeA,
	OpI64TruncF32S: SchemeA, OpI64TruncF32U: SchemeA, OpI64TruncF64S: SchemeA, OpI64TruncF64U: SchemeA,
	OpF32ConvertI32S: SchemeA, OpF32ConvertI32U: SchemeA, OpF64ConvertI32S: SchemeA, OpF64ConvertI32U: SchemeA,
	OpF32DemoteF64: SchemeA, OpF64PromoteF32: SchemeA,

	OpBlock: SchemeF, OpBlockAlt: SchemeG, OpBlockNez: SchemeD,
	OpBreak: SchemeD, OpBreakNez: SchemeD, OpRecur: SchemeD, OpRecurNez: SchemeD, OpEnd: SchemeA,

	OpCall: SchemeC, OpDynCall: SchemeA, OpEnvCall: SchemeC, OpSyscall: SchemeA, OpExtCall: SchemeC,

	OpPanic: SchemeA, OpUnreachable: SchemeC, OpDebug: SchemeC,

	OpHostAddrLocal: SchemeE, OpHostAddrData: SchemeD, OpHostAddrMemory: SchemeA, OpHostAddrFunction: SchemeC,
	OpHostCopyFromMemory: SchemeA, OpHostCopyToMemory: SchemeA,
}
