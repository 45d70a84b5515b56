// Package extcall implements the external call gateway (spec.md §4.9,
// component C9): resolves native libraries and symbols and invokes them
// with operands marshalled off the VM stack.
//
// Library/symbol resolution and invocation are built on
// github.com/ebitengine/purego, which provides dlopen/dlsym-equivalent
// loading and reflect-based native calls without cgo — the domain-stack
// dependency this component is grounded on (SPEC_FULL.md §2).
package extcall

import (
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/ebitengine/purego"

	"github.com/ancvm/ancvm/api"
	"github.com/ancvm/ancvm/internal/module"
)

// Signature is an external function's calling signature. Per spec.md
// §4.9, at most one result is supported.
type Signature struct {
	Params  []api.OperandType
	Results []api.OperandType
}

// SymbolResolver abstracts the two purego operations Gateway depends on
// for native library loading and function binding, so a program built
// with RuntimeConfig.WithExternalResolver can exercise C9/C10 in tests
// without touching a real shared library (spec.md §1.3, §4.9).
type SymbolResolver interface {
	Dlopen(path string, mode int) (uintptr, error)
	RegisterLibFunc(fptr interface{}, handle uintptr, name string)
}

// puregoResolver is the default SymbolResolver, backed by
// github.com/ebitengine/purego's real dlopen/dlsym-equivalent calls.
type puregoResolver struct{}

func (puregoResolver) Dlopen(path string, mode int) (uintptr, error) {
	return purego.Dlopen(path, mode)
}

func (puregoResolver) RegisterLibFunc(fptr interface{}, handle uintptr, name string) {
	purego.RegisterLibFunc(fptr, handle, name)
}

// Gateway owns the process-wide unified library handles and generated
// wrapper functions (spec.md §4.9 "looked up or created in the external
// function table"). One Gateway is shared, mutex-protected, across every
// thread context in a program (spec.md §5 "Shared state").
type Gateway struct {
	mu sync.Mutex

	programDir string
	resolver   SymbolResolver

	libraryHandles map[int]uintptr // unified library index -> dlopen handle
	wrappers       map[wrapperKey]reflect.Value
}

type wrapperKey struct {
	libraryIndex int
	symbol       string
}

// NewGateway creates a Gateway that resolves ExternalLibraryFile
// references relative to programDir (spec.md §4.9, §6 "Environment")
// through the real purego-backed resolver.
func NewGateway(programDir string) *Gateway {
	return NewGatewayWithResolver(programDir, puregoResolver{})
}

// NewGatewayWithResolver is NewGateway with a pluggable SymbolResolver,
// used by tests that want to exercise Invoke without a real shared
// library on disk.
func NewGatewayWithResolver(programDir string, resolver SymbolResolver) *Gateway {
	return &Gateway{
		programDir:     programDir,
		resolver:       resolver,
		libraryHandles: map[int]uintptr{},
		wrappers:       map[wrapperKey]reflect.Value{},
	}
}

func (g *Gateway) libraryHandle(libraryIndex int, lib module.ExternalLibraryRef) (uintptr, error) {
	if h, ok := g.libraryHandles[libraryIndex]; ok {
		return h, nil
	}
	var path string
	switch lib.Kind {
	case module.ExternalLibrarySystem:
		path = lib.Value
	case module.ExternalLibraryFile:
		path = filepath.Join(g.programDir, lib.Value)
	default:
		// Local/Remote/Share/Runtime libraries are resolved by external
		// tooling before the core ever sees them (spec.md §4.9); by the
		// time a module image reaches the gateway, Value already names a
		// loadable path or soname.
		path = lib.Value
	}
	h, err := g.resolver.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, fmt.Errorf("extcall: open library %q: %w", path, err)
	}
	g.libraryHandles[libraryIndex] = h
	return h, nil
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

// wrapper resolves (or builds and caches) the Go function value bound to
// the external symbol via purego.RegisterLibFunc — the "wrapper function
// specialised to signature" from spec.md §4.9, generated once per
// distinct (library, symbol) pair and reused across calls.
func (g *Gateway) wrapper(libraryIndex int, lib module.ExternalLibraryRef, symbol string, sig Signature) (reflect.Value, error) {
	k := wrapperKey{libraryIndex, symbol}
	if w, ok := g.wrappers[k]; ok {
		return w, nil
	}
	if len(sig.Results) > 1 {
		return reflect.Value{}, fmt.Errorf("extcall: external function %q declares more than one result", symbol)
	}
	handle, err := g.libraryHandle(libraryIndex, lib)
	if err != nil {
		return reflect.Value{}, err
	}

	in := make([]reflect.Type, len(sig.Params))
	for i, t := range sig.Params {
		in[i] = goKindFor(t)
	}
	out := make([]reflect.Type, len(sig.Results))
	for i, t := range sig.Results {
		out[i] = goKindFor(t)
	}
	fnType := reflect.FuncOf(in, out, false)
	bound := reflect.New(fnType)
	g.resolver.RegisterLibFunc(bound.Interface(), handle, symbol)
	w := bound.Elem()
	g.wrappers[k] = w
	return w, nil
}

// Invoke implements spec.md §4.9 steps 3-5: it takes the already-popped
// parameter operand slots, calls the resolved wrapper, and returns at
// most one result slot.
func (g *Gateway) Invoke(libraryIndex int, lib module.ExternalLibraryRef, symbol string, sig Signature, params []uint64) (result uint64, hasResult bool, err error) {
	g.mu.Lock()
	w, err := g.wrapper(libraryIndex, lib, symbol, sig)
	g.mu.Unlock()
	if err != nil {
		return 0, false, err
	}

	// w.Call happens outside the lock: it may re-enter the dispatcher
	// through a C10 callback that performs another extcall on this same
	// thread, which would deadlock against a lock held across the call.
	args := make([]reflect.Value, len(sig.Params))
	for i, t := range sig.Params {
		args[i] = fromSlot(t, params[i])
	}
	out := w.Call(args)
	if len(sig.Results) == 0 {
		return 0, false, nil
	}
	return toSlot(sig.Results[0], out[0]), true, nil
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
