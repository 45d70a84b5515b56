package interpreter

import (
	"encoding/binary"

	"github.com/ancvm/ancvm/api"
	"github.com/ancvm/ancvm/internal/stack"
)

// Run executes the dispatch loop (spec.md §4.7, §4.13 "Dispatcher" state
// machine) starting at tc.PC until a handler returns Terminate. It
// returns api.TerminateNone when the exit-dispatcher flag on a returning
// function frame's saved PC was set, which is not a failure: it marks the
// boundary where a bridge or callback stub should hand control back to
// native code.
func (tc *ThreadContext) Run() api.TerminateCode {
	for {
		m := tc.Tables.Module(tc.PC.ModuleIndex)
		code := m.Code
		off := tc.PC.InstructionOffset
		if off < 0 || off+2 > len(code) {
			return api.TerminatePanic
		}
		op := Opcode(binary.LittleEndian.Uint16(code[off:]))
		scheme, ok := opcodeScheme[op]
		if !ok {
			return api.TerminatePanic
		}
		length := scheme.Length()
		if off+length > len(code) {
			return api.TerminatePanic
		}
		payload := code[off+2 : off+length]

		v := tc.execute(op, payload, m, off, length)
		switch {
		case v.terminate != nil:
			return *v.terminate
		case v.jump != nil:
			if v.jump.ExitDispatcher {
				return api.TerminateNone
			}
			tc.PC = *v.jump
		default:
			tc.PC.InstructionOffset += length
		}
	}
}

func (tc *ThreadContext) nextPC(instrOff, length int) stack.PC {
	return stack.PC{ModuleIndex: tc.PC.ModuleIndex, FunctionIndex: tc.PC.FunctionIndex, InstructionOffset: instrOff + length}
}
