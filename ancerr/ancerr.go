// Package ancerr defines the error types the engine surfaces to embedders.
//
// Handlers never unwind Go's call stack to signal a VM-level failure; they
// return a terminate verdict (see internal/interpreter) which a bridge
// translates, at its boundary, into one of the errors below. Nothing in
// this package is returned from inside the dispatch loop itself.
package ancerr

import (
	"fmt"

	"github.com/ancvm/ancvm/api"
)

// TerminateError reports why a thread context's dispatch loop stopped
// running a function early. ModuleIndex/FunctionIndex/InstructionOffset
// identify the faulting program counter (spec.md §3 "Program counter").
type TerminateError struct {
	Code              api.TerminateCode
	ModuleIndex       int
	FunctionIndex     int
	InstructionOffset int
	// Detail carries an instruction-specific payload: the operand for
	// unreachable(code)/debug(code), the errno for a failed external
	// library load, etc.
	Detail string
	cause  error
}

func (e *TerminateError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s at module %d func %d offset %#x: %s",
			e.Code, e.ModuleIndex, e.FunctionIndex, e.InstructionOffset, e.Detail)
	}
	return fmt.Sprintf("%s at module %d func %d offset %#x",
		e.Code, e.ModuleIndex, e.FunctionIndex, e.InstructionOffset)
}

func (e *TerminateError) Unwrap() error { return e.cause }

// New builds a TerminateError for the given code at the given program
// counter position.
func New(code api.TerminateCode, moduleIndex, functionIndex, instructionOffset int) *TerminateError {
	return &TerminateError{Code: code, ModuleIndex: moduleIndex, FunctionIndex: functionIndex, InstructionOffset: instructionOffset}
}

// WithDetail attaches a human-readable detail string, returning e for
// chaining at the call site.
func (e *TerminateError) WithDetail(detail string) *TerminateError {
	e.Detail = detail
	return e
}

// WithCause attaches the underlying Go error (e.g. a dlopen failure),
// returning e for chaining at the call site.
func (e *TerminateError) WithCause(cause error) *TerminateError {
	e.cause = cause
	return e
}

// LinkError is reported at program-load time (spec.md §4.5) rather than
// during dispatch; it never participates in a running thread context.
type LinkError struct {
	ModuleIndex int
	PublicIndex int
	Reason      string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link error: module %d public index %d: %s", e.ModuleIndex, e.PublicIndex, e.Reason)
}

// NewLinkError constructs a LinkError naming the offending (module, public
// index) pair, per spec.md §4.5's validation contract.
func NewLinkError(moduleIndex, publicIndex int, reason string) *LinkError {
	return &LinkError{ModuleIndex: moduleIndex, PublicIndex: publicIndex, Reason: reason}
}
