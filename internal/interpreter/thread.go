package interpreter

import (
	"github.com/ancvm/ancvm/ancerr"
	"github.com/ancvm/ancvm/api"
	"github.com/ancvm/ancvm/internal/bridge"
	"github.com/ancvm/ancvm/internal/extcall"
	"github.com/ancvm/ancvm/internal/link"
	"github.com/ancvm/ancvm/internal/memory"
	"github.com/ancvm/ancvm/internal/stack"
)

// ThreadContext is C6: one operand stack, one linear memory, a program
// counter, and shared references to the per-process link tables, the
// external-function gateway, and the bridge generator (spec.md §4.6).
// Thread contexts are not safe for concurrent use; a program that wants
// concurrency creates one per OS thread (spec.md §5 "Scheduling model").
type ThreadContext struct {
	Stack  *stack.Stack
	Memory *memory.Memory
	Tables *link.Tables

	External *extcall.Gateway
	Bridges  *bridge.Generator

	// FloatLoadPolicy governs memory_load.f32/f64's handling of
	// signalling NaN bit patterns, set from RuntimeConfig's enabled
	// instruction-set features (spec.md §4.2 "float load validation
	// policy", SPEC_FULL.md §1.3).
	FloatLoadPolicy memory.FloatLoadPolicy

	PC stack.PC
}

// New creates a ThreadContext. stackCapacityBytes bounds the operand
// stack (spec.md §8 "Stack overflow"); mem is the thread's single linear
// memory (spec.md §4.6); floatPolicy governs signalling-NaN handling on
// float loads.
func New(tables *link.Tables, mem *memory.Memory, stackCapacityBytes int, external *extcall.Gateway, floatPolicy memory.FloatLoadPolicy) *ThreadContext {
	tc := &ThreadContext{
		Stack:           stack.New(stackCapacityBytes),
		Memory:          mem,
		Tables:          tables,
		External:        external,
		FloatLoadPolicy: floatPolicy,
	}
	tc.Bridges = bridge.NewGenerator(tc.runBridge, tc.runCallback)
	return tc
}

// runBridge is the Delegate behind bridge.Generator.Bridge: it resets the
// stack before entering (spec.md §4.10 "Bridge").
func (tc *ThreadContext) runBridge(module, internalFunctionIndex int, params []uint64) ([]uint64, api.TerminateCode) {
	tc.Stack.Reset()
	return tc.enter(module, internalFunctionIndex, params, true)
}

// runCallback is the Delegate behind bridge.Generator.Callback: it does
// not reset the stack, since an enclosing VM call is still live beneath
// it (spec.md §4.10 "Callback").
func (tc *ThreadContext) runCallback(module, internalFunctionIndex int, params []uint64) ([]uint64, api.TerminateCode) {
	return tc.enter(module, internalFunctionIndex, params, false)
}

// enter pushes params, builds a function frame with an exit-dispatcher
// return PC, runs the dispatcher to completion, and collects results.
func (tc *ThreadContext) enter(moduleIdx, internalFn int, params []uint64, exitDispatcher bool) ([]uint64, api.TerminateCode) {
	for _, p := range params {
		if !tc.Stack.PushRaw(p) {
			return nil, api.TerminateStackOverflow
		}
	}
	m := tc.Tables.Module(moduleIdx)
	fn := m.Functions[internalFn]
	ft := m.Types[fn.TypeIndex]
	list := m.LocalVariableLists[fn.LocalListIndex]

	returnPC := stack.PC{ModuleIndex: moduleIdx, FunctionIndex: internalFn, ExitDispatcher: exitDispatcher}
	if !tc.Stack.CreateFrame(len(ft.Params), len(ft.Results), fn.LocalListIndex, list, true, returnPC, 0, 0, false) {
		return nil, api.TerminateStackOverflow
	}
	tc.PC = stack.PC{ModuleIndex: moduleIdx, FunctionIndex: internalFn, InstructionOffset: int(fn.CodeOffset)}

	if code := tc.Run(); code != api.TerminateNone {
		return nil, code
	}

	results := make([]uint64, len(ft.Results))
	for i := len(ft.Results) - 1; i >= 0; i-- {
		results[i] = tc.Stack.PopRaw()
	}
	return results, api.TerminateNone
}

// CallEntry is the entry point embedders use directly (without going
// through a bridge function value) to invoke the application's entry
// function or any other exported function by public index.
func (tc *ThreadContext) CallEntry(moduleIdx, publicFunctionIndex int, params []uint64) ([]uint64, error) {
	target, err := tc.Tables.ResolveFunction(moduleIdx, publicFunctionIndex)
	if err != nil {
		return nil, err
	}
	tc.Stack.Reset()
	results, code := tc.enter(target.Module, target.InternalIndex, params, true)
	if code != api.TerminateNone {
		return nil, ancerr.New(code, tc.PC.ModuleIndex, tc.PC.FunctionIndex, tc.PC.InstructionOffset)
	}
	return results, nil
}
