// Package bridge generates native entry points that let host code call a
// VM function by ordinary function value, and lets VM code hand out
// callback pointers for native code to call back into (spec.md §4.10,
// component C10).
//
// Rather than emitting machine code, stubs are cached Go closures built
// with reflect.MakeFunc, generalizing the teacher's own reflect-based
// signature-bridging technique (tetratelabs-wazero's
// internal/engine/interpreter host-function closures) from Go<->Wasm
// signatures to VM<->native signatures; SPEC_FULL.md §5 resolves the
// spec's open "choice of JIT backend" question in favor of this approach
// since machine-code emission is explicitly out of scope for the core.
package bridge

import (
	"fmt"
	"math"
	"reflect"
	"sync"

	"github.com/ebitengine/purego"

	"github.com/ancvm/ancvm/api"
)

// Signature is a VM function's parameter and result operand types.
type Signature struct {
	Params  []api.OperandType
	Results []api.OperandType
}

// Delegate runs a target VM function to completion and returns its
// results, or a non-zero terminate code on failure. The *Bridge* delegate
// resets the calling thread's stack before running; the *Callback*
// delegate must not, since the enclosing VM stack is still live beneath
// it (spec.md §4.10).
type Delegate func(targetModule, internalFunctionIndex int, params []uint64) (results []uint64, code api.TerminateCode)

type key struct{ module, function int }

// Generator caches bridge and callback stubs per (target module, internal
// function index), so repeated acquisition of the same target returns the
// same pointer (spec.md §8 "For every outstanding bridge pointer... a
// later request for the same (m, i) returns p").
type Generator struct {
	mu                sync.Mutex
	bridgeDelegate    Delegate
	callbackDelegate  Delegate
	bridgeCache       map[key]reflect.Value
	callbackCache     map[key]uintptr
}

// NewGenerator builds a Generator. bridgeDelegate backs Bridge stubs,
// callbackDelegate backs Callback stubs.
func NewGenerator(bridgeDelegate, callbackDelegate Delegate) *Generator {
	return &Generator{
		bridgeDelegate:   bridgeDelegate,
		callbackDelegate: callbackDelegate,
		bridgeCache:      map[key]reflect.Value{},
		callbackCache:    map[key]uintptr{},
	}
}

func goKindFor(t api.OperandType) reflect.Type {
	switch t {
	case api.OperandI32:
		return reflect.TypeOf(int32(0))
	case api.OperandI64:
		return reflect.TypeOf(int64(0))
	case api.OperandF32:
		return reflect.TypeOf(float32(0))
	case api.OperandF64:
		return reflect.TypeOf(float64(0))
	default:
		return reflect.TypeOf(int64(0))
	}
}

func toSlot(t api.OperandType, v reflect.Value) uint64 {
	switch t {
	case api.OperandI32:
		return uint64(uint32(v.Int()))
	case api.OperandI64:
		return uint64(v.Int())
	case api.OperandF32:
		return uint64(math.Float32bits(float32(v.Float())))
	case api.OperandF64:
		return math.Float64bits(v.Float())
	default:
		return uint64(v.Int())
	}
}

func fromSlot(t api.OperandType, slot uint64) reflect.Value {
	switch t {
	case api.OperandI32:
		return reflect.ValueOf(int32(uint32(slot)))
	case api.OperandI64:
		return reflect.ValueOf(int64(slot))
	case api.OperandF32:
		return reflect.ValueOf(math.Float32frombits(uint32(slot)))
	case api.OperandF64:
		return reflect.ValueOf(math.Float64frombits(slot))
	default:
		return reflect.ValueOf(int64(slot))
	}
}

// Bridge returns a Go function value implementing spec.md §4.10's
// "Bridge" flavor for (module, internalFunctionIndex): calling it resets
// the thread's stack, pushes sig.Params, runs the dispatcher to
// completion, and returns sig.Results.
func (g *Generator) Bridge(module, internalFunctionIndex int, sig Signature) reflect.Value {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := key{module, internalFunctionIndex}
	if v, ok := g.bridgeCache[k]; ok {
		return v
	}
	v := g.makeStub(module, internalFunctionIndex, sig, g.bridgeDelegate)
	g.bridgeCache[k] = v
	return v
}

// Callback returns a real C-callable function pointer implementing
// spec.md §4.10's "Callback" flavor, suitable for handing to native code
// that will invoke it while a VM function is still on the stack. It is
// built with purego.NewCallback, which synthesizes the native ABI trampoline
// that the core itself does not emit.
func (g *Generator) Callback(module, internalFunctionIndex int, sig Signature) uintptr {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := key{module, internalFunctionIndex}
	if p, ok := g.callbackCache[k]; ok {
		return p
	}
	stub := g.makeStub(module, internalFunctionIndex, sig, g.callbackDelegate)
	p := purego.NewCallback(stub.Interface())
	g.callbackCache[k] = p
	return p
}

func (g *Generator) makeStub(module, internalFunctionIndex int, sig Signature, delegate Delegate) reflect.Value {
	in := make([]reflect.Type, len(sig.Params))
	for i, t := range sig.Params {
		in[i] = goKindFor(t)
	}
	out := make([]reflect.Type, len(sig.Results))
	for i, t := range sig.Results {
		out[i] = goKindFor(t)
	}
	fnType := reflect.FuncOf(in, out, false)

	return reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
		params := make([]uint64, len(sig.Params))
		for i, t := range sig.Params {
			params[i] = toSlot(t, args[i])
		}
		results, code := delegate(module, internalFunctionIndex, params)
		if code != api.TerminateNone {
			panic(fmt.Sprintf("bridge: target function terminated: %s", code))
		}
		out := make([]reflect.Value, len(sig.Results))
		for i, t := range sig.Results {
			out[i] = fromSlot(t, results[i])
		}
		return out
	})
}
