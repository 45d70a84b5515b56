package interpreter

import (
	"github.com/ancvm/ancvm/api"
	"github.com/ancvm/ancvm/internal/syscallgw"
)

// execSyscall implements spec.md §4.11: stack layout is
// arg_1 ... arg_n, syscall_number, arg_count (arg_count on top).
func (tc *ThreadContext) execSyscall() verdict {
	argCount := int(tc.Stack.PopI64())
	number := tc.Stack.PopI64()

	if argCount > syscallgw.MaxArgs {
		return terminate(api.TerminatePanic)
	}
	raw := tc.Stack.PopLastOperands(argCount)
	args := make([]uintptr, argCount)
	for i := 0; i < argCount; i++ {
		args[i] = uintptr(leUint64(raw[i*8 : i*8+8]))
	}

	value, errno, ok := syscallgw.Invoke(uintptr(number), args)
	if !ok {
		return terminate(api.TerminatePanic)
	}
	tc.Stack.PushI64(uint64(value))
	tc.Stack.PushI32(uint32(errno))
	return fallThrough
}
