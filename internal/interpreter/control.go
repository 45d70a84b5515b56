package interpreter

import (
	"github.com/ancvm/ancvm/api"
	"github.com/ancvm/ancvm/internal/extcall"
	"github.com/ancvm/ancvm/internal/module"
	"github.com/ancvm/ancvm/internal/stack"
)

func extcallSignature(ft *module.FunctionType) extcall.Signature {
	return extcall.Signature{Params: ft.Params, Results: ft.Results}
}

// execBlock implements spec.md §4.8 `block (type_index, local_list_index)`.
func (tc *ThreadContext) execBlock(p []byte, m *module.Module, instrOff, length int) verdict {
	typeIndex, localListIndex := decodeF(p)
	return tc.enterBlock(m, typeIndex, localListIndex, instrOff, length, 0, 0, false)
}

// execBlockAlt implements spec.md §4.8
// `block_alt (type_index, local_list_index, alt_offset)`.
func (tc *ThreadContext) execBlockAlt(p []byte, m *module.Module, instrOff, length int) verdict {
	typeIndex, localListIndex, altOffset := decodeG(p)
	predicate := tc.Stack.PopI32()
	if predicate != 0 {
		return tc.enterBlock(m, typeIndex, localListIndex, instrOff, length, 0, int(altOffset), true)
	}
	v := tc.enterBlock(m, typeIndex, localListIndex, instrOff, length, 0, int(altOffset), true)
	if v.terminate != nil {
		return v
	}
	return jumpTo(stack.PC{ModuleIndex: tc.PC.ModuleIndex, FunctionIndex: tc.PC.FunctionIndex, InstructionOffset: instrOff + int(altOffset)})
}

// execBlockNez implements spec.md §4.8 `block_nez (local_list_index, end_offset)`.
func (tc *ThreadContext) execBlockNez(p []byte, m *module.Module, instrOff, length int) verdict {
	localListIndex, endOffset := decodeD(p)
	predicate := tc.Stack.PopI32()
	if predicate == 0 {
		return jumpTo(stack.PC{ModuleIndex: tc.PC.ModuleIndex, FunctionIndex: tc.PC.FunctionIndex, InstructionOffset: instrOff + int(endOffset)})
	}
	return tc.enterBlock(m, 0, uint32(localListIndex), instrOff, length, int(endOffset), 0, false)
}

func (tc *ThreadContext) enterBlock(m *module.Module, typeIndex uint32, localListIndex uint32, instrOff, length int, endOffset, altOffset int, hasAlt bool) verdict {
	var paramCount, resultCount int
	if int(typeIndex) < len(m.Types) {
		ft := m.Types[typeIndex]
		paramCount, resultCount = len(ft.Params), len(ft.Results)
	}
	list := m.LocalVariableLists[localListIndex]
	ok := tc.Stack.CreateFrame(paramCount, resultCount, localListIndex, list, false, stack.PC{}, endOffset, altOffset, hasAlt)
	if !ok {
		return terminate(api.TerminateStackOverflow)
	}
	return fallThrough
}

// execBreak implements spec.md §4.8 `break (reversed_layer, end_offset)`
// and its predicated variant.
func (tc *ThreadContext) execBreak(p []byte, predicated bool) verdict {
	layer, endOffset := decodeD(p)
	if predicated && tc.Stack.PopI32() == 0 {
		return fallThrough
	}
	return tc.unwindTo(int(layer), int(endOffset), false)
}

// execRecur implements spec.md §4.8 `recur (reversed_layer, start_offset)`
// and its predicated variant.
func (tc *ThreadContext) execRecur(p []byte, m *module.Module, predicated bool) verdict {
	layer, startOffset := decodeD(p)
	if predicated && tc.Stack.PopI32() == 0 {
		return fallThrough
	}
	return tc.unwindTo(int(layer), int(startOffset), true)
}

// unwindTo implements the shared unwind machinery of break/recur (spec.md
// §4.8): it pops the target frame's declared result (break) or argument
// (recur) count of operands, collapsing layer+1 frames down to the
// target's enclosing frame, threading those operands down through each
// intermediate LeaveFrame call; recur then recreates the target frame
// fresh from those operands instead of leaving it collapsed.
func (tc *ThreadContext) unwindTo(layer, offset int, isRecur bool) verdict {
	target := tc.Stack.FrameAt(layer)
	count := target.ResultCount
	if isRecur {
		count = target.ParamCount
	}

	for i := 0; i < layer; i++ {
		tc.Stack.LeaveFrame(count)
	}

	targetModule, targetFn := tc.PC.ModuleIndex, tc.PC.FunctionIndex
	if isRecur {
		tc.Stack.LeaveFrame(count)
		list := tc.localListFor(targetModule, target.LocalListIndex)
		tc.Stack.CreateFrame(target.ParamCount, target.ResultCount, target.LocalListIndex, list,
			target.IsFunction, target.ReturnPC, target.EndOffset, target.AltOffset, target.HasAlt)
		return jumpTo(stack.PC{ModuleIndex: targetModule, FunctionIndex: targetFn, InstructionOffset: offset})
	}

	tc.Stack.LeaveFrame(count)
	return jumpTo(stack.PC{ModuleIndex: targetModule, FunctionIndex: targetFn, InstructionOffset: offset})
}

func (tc *ThreadContext) localListFor(moduleIdx int, localListIndex uint32) *module.LocalVariableList {
	m := tc.Tables.Module(moduleIdx)
	return m.LocalVariableLists[localListIndex]
}

// execEnd implements spec.md §4.8 `end`: a function frame's `end` is only
// ever reached by falling through the last instruction of its body, so it
// performs function return to the frame's saved call site. A block frame's
// `end` is reached the same way (break/recur already carry their own
// target offset and never jump through here), so it simply resumes at the
// instruction following this one.
func (tc *ThreadContext) execEnd(instrOff, length int) verdict {
	f := *tc.Stack.CurrentFrame()
	if f.IsFunction {
		returnPC, _ := tc.Stack.LeaveFrame(f.ResultCount)
		return jumpTo(returnPC)
	}
	tc.Stack.LeaveFrame(f.ResultCount)
	return jumpTo(tc.nextPC(instrOff, length))
}

// execCall implements spec.md §4.8 `call`/`dyncall`: resolve the public
// index, build a function frame, and jump into the target.
func (tc *ThreadContext) execCall(publicIndex uint32, instrOff, length int) verdict {
	target, err := tc.Tables.ResolveFunction(tc.PC.ModuleIndex, int(publicIndex))
	if err != nil {
		return terminate(api.TerminateLinkError)
	}
	m := tc.Tables.Module(target.Module)
	fn := m.Functions[target.InternalIndex]
	ft := m.Types[fn.TypeIndex]
	list := m.LocalVariableLists[fn.LocalListIndex]

	returnPC := tc.nextPC(instrOff, length)
	if !tc.Stack.CreateFrame(len(ft.Params), len(ft.Results), fn.LocalListIndex, list, true, returnPC, 0, 0, false) {
		return terminate(api.TerminateStackOverflow)
	}
	return jumpTo(stack.PC{ModuleIndex: target.Module, FunctionIndex: target.InternalIndex, InstructionOffset: int(fn.CodeOffset)})
}

// execExtCall implements spec.md §4.9: pop the parameters, invoke the
// resolved external function, push the result if any.
func (tc *ThreadContext) execExtCall(publicIndex uint32, m *module.Module) verdict {
	target, err := tc.Tables.ResolveExternal(tc.PC.ModuleIndex, int(publicIndex))
	if err != nil {
		return terminate(api.TerminateExternalSymbolNotFound)
	}
	uf := tc.Tables.UnifiedFunctions[target.UnifiedIndex]
	lib := tc.Tables.UnifiedLibraries[uf.LibraryIndex]
	ft := m.Types[target.TypeIndex]
	if len(ft.Results) > 1 {
		return terminate(api.TerminateExternalFunctionMoreThanOneResult)
	}

	paramBytes := tc.Stack.PopLastOperands(len(ft.Params))
	params := make([]uint64, len(ft.Params))
	for i := range params {
		params[i] = leUint64(paramBytes[i*8 : i*8+8])
	}

	sig := extcallSignature(ft)
	result, hasResult, err := tc.External.Invoke(uf.LibraryIndex, lib, uf.Symbol, sig, params)
	if err != nil {
		return terminate(api.TerminateExternalSymbolNotFound)
	}
	if hasResult {
		tc.Stack.PushRaw(result)
	}
	return fallThrough
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
