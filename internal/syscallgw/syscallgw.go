// Package syscallgw implements the syscall gateway (spec.md §4.11,
// component C11): marshals up to six operands into a raw OS system call.
//
// Built on golang.org/x/sys/unix's raw Syscall/Syscall6, the domain-stack
// dependency SPEC_FULL.md §2 assigns to this component — the teacher
// (tetratelabs-wazero) sandboxes the handful of syscalls it needs behind
// its own sys.Walltime/sys.Nanosleep rather than exposing raw syscall
// numbers, so there is no teacher file to adapt here; this is built
// fresh against x/sys's documented calling convention.
package syscallgw

import (
	"golang.org/x/sys/unix"
)

// MaxArgs is the largest argument count spec.md §4.11 supports.
const MaxArgs = 6

// Invoke performs the raw system call number with the given arguments (0
// to MaxArgs of them) and returns the encoded (return_value, errno) pair
// per spec.md §4.11: on success (value, 0); on failure (0, errno).
func Invoke(number uintptr, args []uintptr) (value int64, errno int32, ok bool) {
	if len(args) > MaxArgs {
		return 0, 0, false
	}
	var a [MaxArgs]uintptr
	copy(a[:], args)

	var r1 uintptr
	var e unix.Errno
	if len(args) <= 3 {
		r1, _, e = unix.Syscall(number, a[0], a[1], a[2])
	} else {
		r1, _, e = unix.Syscall6(number, a[0], a[1], a[2], a[3], a[4], a[5])
	}
	if e != 0 {
		return 0, int32(e), true
	}
	return int64(r1), 0, true
}
