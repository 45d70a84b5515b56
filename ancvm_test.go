package ancvm

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ancvm/ancvm/api"
	"github.com/ancvm/ancvm/internal/interpreter"
	"github.com/ancvm/ancvm/internal/module"
)

func asmA(op interpreter.Opcode) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(op))
	return b
}

func asmE(op interpreter.Opcode, a, b2, c uint16) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint16(b, uint16(op))
	binary.LittleEndian.PutUint16(b[2:], a)
	binary.LittleEndian.PutUint16(b[4:], b2)
	binary.LittleEndian.PutUint16(b[6:], c)
	return b
}

// TestCompileLinkAndRunEntry exercises the full embedding path: build a
// module, serialize it (module.Save), feed the bytes through
// Runtime.CompileModule as if they had been read from disk, link, and run
// its entry function (spec.md §8 "Image save(load(image)) is
// bit-identical", §4.5 "entry function").
func TestCompileLinkAndRunEntry(t *testing.T) {
	var code []byte
	code = append(code, asmE(interpreter.OpLocalLoadI32, 0, 0, 0)...)
	code = append(code, asmE(interpreter.OpLocalLoadI32, 0, 1, 0)...)
	code = append(code, asmA(interpreter.OpAddI32)...)
	code = append(code, asmA(interpreter.OpEnd)...)

	locals := module.NewLocalVariableList([]module.LocalVariableItem{
		{Type: api.OperandI32, LengthBytes: 4, Alignment: 4},
		{Type: api.OperandI32, LengthBytes: 4, Alignment: 4},
	}, 2)

	m := &module.Module{
		Types:              []*module.FunctionType{{Params: []api.OperandType{api.OperandI32, api.OperandI32}, Results: []api.OperandType{api.OperandI32}}},
		LocalVariableLists: []*module.LocalVariableList{locals},
		Functions:          []*module.FunctionEntry{{TypeIndex: 0, LocalListIndex: 0, CodeOffset: 0, CodeLength: uint32(len(code))}},
		Code:               code,
		EntryFunctionIndex: 0,
	}
	image := module.Save(m)

	rt := NewRuntime(NewRuntimeConfig().WithMemoryPages(1, 1))
	compiled, err := rt.CompileModule(image, "add")
	require.NoError(t, err)
	require.Equal(t, "add", compiled.Name())

	program, err := rt.Link([]*CompiledModule{compiled}, 2, 1)
	require.NoError(t, err)

	results, err := program.RunEntry([]uint64{7, 35})
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}

// TestLinkRejectsWrongEntrySignature confirms Link surfaces a link error
// rather than panicking when the caller's expected entry signature
// doesn't match the module's declared one.
func TestLinkRejectsWrongEntrySignature(t *testing.T) {
	locals := module.NewLocalVariableList(nil, 0)
	m := &module.Module{
		Types:              []*module.FunctionType{{}},
		LocalVariableLists: []*module.LocalVariableList{locals},
		Functions:          []*module.FunctionEntry{{TypeIndex: 0, LocalListIndex: 0, CodeOffset: 0, CodeLength: 2}},
		Code:               asmA(interpreter.OpEnd),
		EntryFunctionIndex: 0,
	}
	image := module.Save(m)

	rt := NewRuntime(nil)
	compiled, err := rt.CompileModule(image, "empty")
	require.NoError(t, err)

	_, err = rt.Link([]*CompiledModule{compiled}, 2, 1)
	require.Error(t, err)
}

// TestRuntimeConfigCloneIsolation confirms each With method returns an
// independent config rather than mutating a shared base.
func TestRuntimeConfigCloneIsolation(t *testing.T) {
	base := NewRuntimeConfig()
	derived := base.WithStackCapacity(1234)
	require.NotEqual(t, base.stackCapacityBytes, derived.stackCapacityBytes)
	require.Equal(t, defaultStackCapacityBytes, base.stackCapacityBytes)
	require.Equal(t, 1234, derived.stackCapacityBytes)
}
