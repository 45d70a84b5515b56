package interpreter

import (
	"github.com/ancvm/ancvm/api"
	"github.com/ancvm/ancvm/internal/stack"
)

// verdict is what a handler returns to the dispatch loop (spec.md §4.7):
// a nil jump and nil terminate means "fall through" (advance the PC by
// the instruction's scheme length); a non-nil jump sets the PC
// explicitly; a non-nil terminate exits the loop.
type verdict struct {
	jump      *stack.PC
	terminate *api.TerminateCode
}

var fallThrough = verdict{}

func jumpTo(pc stack.PC) verdict {
	return verdict{jump: &pc}
}

func terminate(code api.TerminateCode) verdict {
	return verdict{terminate: &code}
}
