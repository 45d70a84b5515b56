package stack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ancvm/ancvm/api"
	"github.com/ancvm/ancvm/internal/module"
)

func TestPushPopRoundTrip(t *testing.T) {
	s := New(1 << 20)

	require.True(t, s.PushI32(42))
	require.True(t, s.PushI64(0xdeadbeefcafebabe))
	require.True(t, s.PushF32(3.5))
	require.True(t, s.PushF64(-2.25))

	require.Equal(t, float64(-2.25), s.PopF64())
	require.Equal(t, float32(3.5), s.PopF32())
	require.Equal(t, uint64(0xdeadbeefcafebabe), s.PopI64())
	require.Equal(t, uint32(42), s.PopI32())
	require.Equal(t, 0, s.SP())
}

func TestPreparePushPop(t *testing.T) {
	s := New(1 << 20)
	slot, ok := s.PreparePush()
	require.True(t, ok)
	slot[0] = 0x7b
	require.Equal(t, uint64(0x7b), s.PeekRaw(0))

	popped := s.PreparePop()
	require.Equal(t, byte(0x7b), popped[0])
}

func TestPopLastOperandsAndReserve(t *testing.T) {
	s := New(1 << 20)
	s.PushI32(1)
	s.PushI32(2)
	s.PushI32(3)

	view := s.PopLastOperands(2)
	require.Len(t, view, 16)
	require.Equal(t, 8, s.SP())

	region, ok := s.ReserveOperands(2)
	require.True(t, ok)
	require.Len(t, region, 16)
	require.Equal(t, 24, s.SP())
}

func simpleLocalList() *module.LocalVariableList {
	return module.NewLocalVariableList([]module.LocalVariableItem{
		{Type: api.OperandI32, LengthBytes: 4, Alignment: 4},
		{Type: api.OperandI64, LengthBytes: 8, Alignment: 8},
	}, 1)
}

func TestCreateAndLeaveFunctionFrame(t *testing.T) {
	s := New(1 << 20)
	list := simpleLocalList()

	require.True(t, s.PushI32(99)) // the single argument

	ok := s.CreateFrame(1, 1, 0, list, true, PC{FunctionIndex: 1, InstructionOffset: 4}, 0, 0, false)
	require.True(t, ok)
	require.Equal(t, 1, s.Depth())

	pack := s.GetFramePack(0)
	require.Equal(t, uint32(0), pack.LocalListIndex)

	argBytes := s.Bytes()[pack.FP : pack.FP+4]
	require.Equal(t, uint32(99), leU32(argBytes))

	// simulate producing one i64 result and leaving the frame
	s.PushI64(12345)
	returnPC, isFunction := s.LeaveFrame(1)
	require.True(t, isFunction)
	require.Equal(t, 4, returnPC.InstructionOffset)
	require.Equal(t, uint64(12345), s.PopI64())
	require.Equal(t, 0, s.Depth())
}

func TestNestedBlockFrameInheritsEnclosingFunction(t *testing.T) {
	s := New(1 << 20)
	list := simpleLocalList()

	require.True(t, s.PushI32(7))
	require.True(t, s.CreateFrame(1, 0, 0, list, true, PC{}, 0, 0, false))
	fnFP := s.CurrentFrame().FP

	blockList := module.NewLocalVariableList(nil, 0)
	require.True(t, s.CreateFrame(0, 0, 1, blockList, false, PC{}, 100, 0, false))
	require.Equal(t, fnFP, s.CurrentFrame().EnclosingFunctionFP)
}

func TestStackOverflow(t *testing.T) {
	s := New(64) // tiny ceiling
	for i := 0; i < 100; i++ {
		if !s.PushI64(uint64(i)) {
			return
		}
	}
	t.Fatal("expected stack overflow before 100 pushes")
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
