package extcall

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ancvm/ancvm/api"
	"github.com/ancvm/ancvm/internal/module"
)

// fakeResolver implements SymbolResolver without touching a real shared
// library: Dlopen hands back a synthetic handle and RegisterLibFunc binds
// each requested symbol to a plain Go function from a lookup table, the
// same shape purego.RegisterLibFunc fills in for a real C symbol.
type fakeResolver struct {
	funcs map[string]interface{}
}

func (f *fakeResolver) Dlopen(path string, mode int) (uintptr, error) {
	return 1, nil
}

func (f *fakeResolver) RegisterLibFunc(fptr interface{}, handle uintptr, name string) {
	impl, ok := f.funcs[name]
	if !ok {
		return
	}
	reflect.ValueOf(fptr).Elem().Set(reflect.ValueOf(impl))
}

// TestGatewayInvokeWithFakeResolver exercises C9 end to end (wrapper
// lookup/creation, then Invoke's marshalling) against a fake resolver, so
// this never needs a real shared library on disk.
func TestGatewayInvokeWithFakeResolver(t *testing.T) {
	resolver := &fakeResolver{funcs: map[string]interface{}{
		"add_i32": func(a, b int32) int32 { return a + b },
	}}
	g := NewGatewayWithResolver(t.TempDir(), resolver)

	lib := module.ExternalLibraryRef{Kind: module.ExternalLibrarySystem, Value: "libfake.so"}
	sig := Signature{
		Params:  []api.OperandType{api.OperandI32, api.OperandI32},
		Results: []api.OperandType{api.OperandI32},
	}

	result, hasResult, err := g.Invoke(0, lib, "add_i32", sig, []uint64{7, 35})
	require.NoError(t, err)
	require.True(t, hasResult)
	require.Equal(t, uint64(42), result)

	// The wrapper is cached: a second Invoke for the same symbol must not
	// call RegisterLibFunc again, only reuse the bound function value.
	delete(resolver.funcs, "add_i32")
	result, hasResult, err = g.Invoke(0, lib, "add_i32", sig, []uint64{1, 2})
	require.NoError(t, err)
	require.True(t, hasResult)
	require.Equal(t, uint64(3), result)
}

// TestGatewayInvokeVoidFunctionNoResult exercises a void external
// function (no declared result), the other branch of Invoke's return.
func TestGatewayInvokeVoidFunctionNoResult(t *testing.T) {
	called := false
	resolver := &fakeResolver{funcs: map[string]interface{}{
		"touch": func(a int32) { called = true },
	}}
	g := NewGatewayWithResolver(t.TempDir(), resolver)

	lib := module.ExternalLibraryRef{Kind: module.ExternalLibraryFile, Value: "libfake.so"}
	sig := Signature{Params: []api.OperandType{api.OperandI32}}

	_, hasResult, err := g.Invoke(0, lib, "touch", sig, []uint64{9})
	require.NoError(t, err)
	require.False(t, hasResult)
	require.True(t, called)
}
