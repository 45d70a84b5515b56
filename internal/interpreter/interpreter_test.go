package interpreter

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ancvm/ancvm/api"
	"github.com/ancvm/ancvm/internal/extcall"
	"github.com/ancvm/ancvm/internal/link"
	"github.com/ancvm/ancvm/internal/memory"
	"github.com/ancvm/ancvm/internal/module"
)

// --- tiny hand-assembler, mirroring opcode.go's seven fixed schemes.
// Each helper writes a full instruction (opcode plus its scheme's fixed
// payload), matching exactly what dispatch.go reads back apart at
// code[off:off+length]. ---

func asmA(op Opcode) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(op))
	return b
}

func asmB(op Opcode, u16 uint16) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b, uint16(op))
	binary.LittleEndian.PutUint16(b[2:], u16)
	return b
}

func asmC(op Opcode, u32 uint32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint16(b, uint16(op))
	binary.LittleEndian.PutUint32(b[4:], u32)
	return b
}

func asmE(op Opcode, a, b2, c uint16) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint16(b, uint16(op))
	binary.LittleEndian.PutUint16(b[2:], a)
	binary.LittleEndian.PutUint16(b[4:], b2)
	binary.LittleEndian.PutUint16(b[6:], c)
	return b
}

func asmF(op Opcode, typeIndex, localListIndex uint32) []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint16(b, uint16(op))
	binary.LittleEndian.PutUint32(b[4:], typeIndex)
	binary.LittleEndian.PutUint32(b[8:], localListIndex)
	return b
}

func i32Local() module.LocalVariableItem {
	return module.LocalVariableItem{Type: api.OperandI32, LengthBytes: 4, Alignment: 4}
}

func newThread(t *testing.T, mods []*module.Module, applicationIndex, entryParams, entryResults int) *ThreadContext {
	t.Helper()
	for _, m := range mods {
		m.FormatMajor = module.ImageFormatMajorVersion
		m.FormatMinor = module.ImageFormatMinorVersion
	}
	tables, err := link.Build(mods, applicationIndex, entryParams, entryResults)
	require.NoError(t, err)
	mem := memory.New(1, 1)
	return New(tables, mem, 1<<20, extcall.NewGateway(t.TempDir()), memory.FloatLoadRejectSignaling)
}

// TestAddEntryFunction builds an (i32,i32)->i32 entry function out of two
// local loads and an add, linked and run end to end through CallEntry.
func TestAddEntryFunction(t *testing.T) {
	var code []byte
	code = append(code, asmE(OpLocalLoadI32, 0, 0, 0)...)
	code = append(code, asmE(OpLocalLoadI32, 0, 1, 0)...)
	code = append(code, asmA(OpAddI32)...)
	code = append(code, asmA(OpEnd)...)

	locals := module.NewLocalVariableList([]module.LocalVariableItem{i32Local(), i32Local()}, 2)

	m := &module.Module{
		Name:               "add",
		Types:              []*module.FunctionType{{Params: []api.OperandType{api.OperandI32, api.OperandI32}, Results: []api.OperandType{api.OperandI32}}},
		LocalVariableLists: []*module.LocalVariableList{locals},
		Functions:          []*module.FunctionEntry{{TypeIndex: 0, LocalListIndex: 0, CodeOffset: 0, CodeLength: uint32(len(code))}},
		Code:               code,
		EntryFunctionIndex: 0,
	}

	tc := newThread(t, []*module.Module{m}, 0, 2, 1)
	results, err := tc.CallEntry(0, 0, []uint64{7, 35})
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}

// TestCallAndDynCall links a "double" function and an entry function that
// calls it once via a statically-encoded call and once via dyncall with
// an index computed at runtime, exercising both call forms against the
// same link tables (spec.md §4.8 call/dyncall).
func TestCallAndDynCall(t *testing.T) {
	doubleLocals := module.NewLocalVariableList([]module.LocalVariableItem{i32Local()}, 1)
	mainLocals := module.NewLocalVariableList([]module.LocalVariableItem{i32Local()}, 1)

	var codeDouble []byte
	codeDouble = append(codeDouble, asmE(OpLocalLoadI32, 0, 0, 0)...)
	codeDouble = append(codeDouble, asmE(OpLocalLoadI32, 0, 0, 0)...)
	codeDouble = append(codeDouble, asmA(OpAddI32)...)
	codeDouble = append(codeDouble, asmA(OpEnd)...)

	var codeMain []byte
	codeMain = append(codeMain, asmE(OpLocalLoadI32, 0, 0, 0)...) // x
	codeMain = append(codeMain, asmC(OpCall, 0)...)                // double(x) -> y, left on stack
	codeMain = append(codeMain, asmC(OpImmI32, 0)...)              // dyncall target index
	codeMain = append(codeMain, asmA(OpDynCall)...)                // double(y) -> z
	codeMain = append(codeMain, asmA(OpEnd)...)

	code := append(append([]byte{}, codeDouble...), codeMain...)

	m := &module.Module{
		Name:               "calltest",
		Types:              []*module.FunctionType{{Params: []api.OperandType{api.OperandI32}, Results: []api.OperandType{api.OperandI32}}},
		LocalVariableLists: []*module.LocalVariableList{doubleLocals, mainLocals},
		Functions: []*module.FunctionEntry{
			{TypeIndex: 0, LocalListIndex: 0, CodeOffset: 0, CodeLength: uint32(len(codeDouble))},
			{TypeIndex: 0, LocalListIndex: 1, CodeOffset: uint32(len(codeDouble)), CodeLength: uint32(len(codeMain))},
		},
		Code:               code,
		EntryFunctionIndex: 1,
	}

	tc := newThread(t, []*module.Module{m}, 0, 1, 1)
	results, err := tc.CallEntry(0, 1, []uint64{3})
	require.NoError(t, err)
	require.Equal(t, []uint64{12}, results) // double(double(3)) == 12
}

// TestMemoryRoundTrip stores an i32 and an i64 into linear memory and
// reads them back, exercising both directions of memory access (spec.md
// §4.2, §4.7).
func TestMemoryRoundTrip(t *testing.T) {
	var code []byte
	code = append(code, asmC(OpImmI32, 0)...)          // addr 0
	code = append(code, asmC(OpImmI32, 0x11223344)...) // value
	code = append(code, asmB(OpMemoryStoreI32, 0)...)

	code = append(code, asmC(OpImmI32, 8)...) // addr 8
	lo := uint32(0xcafebabe)
	hi := uint32(0xdeadbeef)
	imm64 := make([]byte, 12)
	binary.LittleEndian.PutUint16(imm64, uint16(OpImmI64))
	binary.LittleEndian.PutUint32(imm64[4:], lo)
	binary.LittleEndian.PutUint32(imm64[8:], hi)
	code = append(code, imm64...)
	code = append(code, asmB(OpMemoryStoreI64, 0)...)

	code = append(code, asmC(OpImmI32, 0)...)
	code = append(code, asmB(OpMemoryLoadI32, 0)...)
	code = append(code, asmC(OpImmI32, 8)...)
	code = append(code, asmB(OpMemoryLoadI64, 0)...)
	code = append(code, asmA(OpEnd)...)

	locals := module.NewLocalVariableList(nil, 0)
	m := &module.Module{
		Name:               "memrw",
		Types:              []*module.FunctionType{{Results: []api.OperandType{api.OperandI32, api.OperandI64}}},
		LocalVariableLists: []*module.LocalVariableList{locals},
		Functions:          []*module.FunctionEntry{{TypeIndex: 0, LocalListIndex: 0, CodeOffset: 0, CodeLength: uint32(len(code))}},
		Code:               code,
		EntryFunctionIndex: 0,
	}

	tc := newThread(t, []*module.Module{m}, 0, 0, 2)
	results, err := tc.CallEntry(0, 0, nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{0x11223344, 0xdeadbeefcafebabe}, results)
}

// TestBlockFallsThroughToEnd exercises a plain block entered and left by
// normal fall-through execution rather than by break/recur: the block
// consumes its caller's argument as its own local, computes with it, and
// its `end` must resume at the instruction right after itself so the
// enclosing function can return the block's result.
func TestBlockFallsThroughToEnd(t *testing.T) {
	addOne := module.NewLocalVariableList([]module.LocalVariableItem{i32Local()}, 1)

	var code []byte
	code = append(code, asmE(OpLocalLoadI32, 0, 0, 0)...) // push x
	code = append(code, asmF(OpBlock, 0, 1)...)            // block (i32)->(i32), consumes x as its own local 0
	code = append(code, asmE(OpLocalLoadI32, 0, 0, 0)...)  // push block's local 0 (== x)
	code = append(code, asmC(OpImmI32, 10)...)
	code = append(code, asmA(OpAddI32)...)
	code = append(code, asmA(OpEnd)...) // end block: result left on stack, resumes right after
	code = append(code, asmA(OpEnd)...) // end function: returns the block's result

	m := &module.Module{
		Name:               "blockfallthrough",
		Types:              []*module.FunctionType{{Params: []api.OperandType{api.OperandI32}, Results: []api.OperandType{api.OperandI32}}},
		LocalVariableLists: []*module.LocalVariableList{addOne, addOne},
		Functions:          []*module.FunctionEntry{{TypeIndex: 0, LocalListIndex: 0, CodeOffset: 0, CodeLength: uint32(len(code))}},
		Code:               code,
		EntryFunctionIndex: 0,
	}

	tc := newThread(t, []*module.Module{m}, 0, 1, 1)
	results, err := tc.CallEntry(0, 0, []uint64{32})
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}
