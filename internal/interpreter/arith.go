package interpreter

import (
	"math"
	"math/bits"

	"github.com/ancvm/ancvm/api"
	"github.com/ancvm/ancvm/internal/floatmath"
)

func b2i32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// execArith implements spec.md §4.4/§4.5/§4.6: integer and float
// arithmetic, bitwise ops, comparisons, and width/sign/float conversions.
// Every handler here has a fixed stack effect and never branches, so it
// needs none of the instrOff/length bookkeeping the control-flow handlers
// carry.
func (tc *ThreadContext) execArith(op Opcode) verdict {
	switch op {

	// --- i32 arithmetic --------------------------------------------------
	case OpAddI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		tc.Stack.PushI32(a + b)
	case OpSubI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		tc.Stack.PushI32(a - b)
	case OpMulI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		tc.Stack.PushI32(a * b)
	case OpDivSI32:
		b, a := int32(tc.Stack.PopI32()), int32(tc.Stack.PopI32())
		if b == 0 {
			return terminate(api.TerminateDivisionByZero)
		}
		if a == math.MinInt32 && b == -1 {
			return terminate(api.TerminateIntegerOverflow)
		}
		tc.Stack.PushI32(uint32(a / b))
	case OpDivUI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		if b == 0 {
			return terminate(api.TerminateDivisionByZero)
		}
		tc.Stack.PushI32(a / b)
	case OpRemSI32:
		b, a := int32(tc.Stack.PopI32()), int32(tc.Stack.PopI32())
		if b == 0 {
			return terminate(api.TerminateDivisionByZero)
		}
		if a == math.MinInt32 && b == -1 {
			tc.Stack.PushI32(0)
		} else {
			tc.Stack.PushI32(uint32(a % b))
		}
	case OpRemUI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		if b == 0 {
			return terminate(api.TerminateDivisionByZero)
		}
		tc.Stack.PushI32(a % b)

	case OpAndI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		tc.Stack.PushI32(a & b)
	case OpOrI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		tc.Stack.PushI32(a | b)
	case OpXorI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		tc.Stack.PushI32(a ^ b)
	case OpNotI32:
		a := tc.Stack.PopI32()
		tc.Stack.PushI32(^a)
	case OpShlI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		tc.Stack.PushI32(a << (b & 31))
	case OpShrSI32:
		b, a := tc.Stack.PopI32(), int32(tc.Stack.PopI32())
		tc.Stack.PushI32(uint32(a >> (b & 31)))
	case OpShrUI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		tc.Stack.PushI32(a >> (b & 31))
	case OpRotlI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		tc.Stack.PushI32(bits.RotateLeft32(a, int(b&31)))
	case OpRotrI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		tc.Stack.PushI32(bits.RotateLeft32(a, -int(b&31)))
	case OpClzI32:
		tc.Stack.PushI32(uint32(bits.LeadingZeros32(tc.Stack.PopI32())))
	case OpCtzI32:
		tc.Stack.PushI32(uint32(bits.TrailingZeros32(tc.Stack.PopI32())))
	case OpPopcntI32:
		tc.Stack.PushI32(uint32(bits.OnesCount32(tc.Stack.PopI32())))

	// --- i64 arithmetic --------------------------------------------------
	case OpAddI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		tc.Stack.PushI64(a + b)
	case OpSubI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		tc.Stack.PushI64(a - b)
	case OpMulI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		tc.Stack.PushI64(a * b)
	case OpDivSI64:
		b, a := int64(tc.Stack.PopI64()), int64(tc.Stack.PopI64())
		if b == 0 {
			return terminate(api.TerminateDivisionByZero)
		}
		if a == math.MinInt64 && b == -1 {
			return terminate(api.TerminateIntegerOverflow)
		}
		tc.Stack.PushI64(uint64(a / b))
	case OpDivUI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		if b == 0 {
			return terminate(api.TerminateDivisionByZero)
		}
		tc.Stack.PushI64(a / b)
	case OpRemSI64:
		b, a := int64(tc.Stack.PopI64()), int64(tc.Stack.PopI64())
		if b == 0 {
			return terminate(api.TerminateDivisionByZero)
		}
		if a == math.MinInt64 && b == -1 {
			tc.Stack.PushI64(0)
		} else {
			tc.Stack.PushI64(uint64(a % b))
		}
	case OpRemUI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		if b == 0 {
			return terminate(api.TerminateDivisionByZero)
		}
		tc.Stack.PushI64(a % b)

	case OpAndI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		tc.Stack.PushI64(a & b)
	case OpOrI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		tc.Stack.PushI64(a | b)
	case OpXorI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		tc.Stack.PushI64(a ^ b)
	case OpNotI64:
		a := tc.Stack.PopI64()
		tc.Stack.PushI64(^a)
	case OpShlI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		tc.Stack.PushI64(a << (b & 63))
	case OpShrSI64:
		b, a := tc.Stack.PopI64(), int64(tc.Stack.PopI64())
		tc.Stack.PushI64(uint64(a >> (b & 63)))
	case OpShrUI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		tc.Stack.PushI64(a >> (b & 63))
	case OpRotlI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		tc.Stack.PushI64(bits.RotateLeft64(a, int(b&63)))
	case OpRotrI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		tc.Stack.PushI64(bits.RotateLeft64(a, -int(b&63)))
	case OpClzI64:
		tc.Stack.PushI64(uint64(bits.LeadingZeros64(tc.Stack.PopI64())))
	case OpCtzI64:
		tc.Stack.PushI64(uint64(bits.TrailingZeros64(tc.Stack.PopI64())))
	case OpPopcntI64:
		tc.Stack.PushI64(uint64(bits.OnesCount64(tc.Stack.PopI64())))

	// --- float arithmetic -------------------------------------------------
	case OpAddF32:
		b, a := tc.Stack.PopF32(), tc.Stack.PopF32()
		tc.Stack.PushF32(a + b)
	case OpSubF32:
		b, a := tc.Stack.PopF32(), tc.Stack.PopF32()
		tc.Stack.PushF32(a - b)
	case OpMulF32:
		b, a := tc.Stack.PopF32(), tc.Stack.PopF32()
		tc.Stack.PushF32(a * b)
	case OpDivF32:
		b, a := tc.Stack.PopF32(), tc.Stack.PopF32()
		tc.Stack.PushF32(a / b)
	case OpMinF32:
		b, a := tc.Stack.PopF32(), tc.Stack.PopF32()
		tc.Stack.PushF32(floatmath.Min32(a, b))
	case OpMaxF32:
		b, a := tc.Stack.PopF32(), tc.Stack.PopF32()
		tc.Stack.PushF32(floatmath.Max32(a, b))

	case OpAddF64:
		b, a := tc.Stack.PopF64(), tc.Stack.PopF64()
		tc.Stack.PushF64(a + b)
	case OpSubF64:
		b, a := tc.Stack.PopF64(), tc.Stack.PopF64()
		tc.Stack.PushF64(a - b)
	case OpMulF64:
		b, a := tc.Stack.PopF64(), tc.Stack.PopF64()
		tc.Stack.PushF64(a * b)
	case OpDivF64:
		b, a := tc.Stack.PopF64(), tc.Stack.PopF64()
		tc.Stack.PushF64(a / b)
	case OpMinF64:
		b, a := tc.Stack.PopF64(), tc.Stack.PopF64()
		tc.Stack.PushF64(floatmath.Min64(a, b))
	case OpMaxF64:
		b, a := tc.Stack.PopF64(), tc.Stack.PopF64()
		tc.Stack.PushF64(floatmath.Max64(a, b))

	// --- comparisons: i32 -------------------------------------------------
	case OpEqzI32:
		tc.Stack.PushI32(b2i32(tc.Stack.PopI32() == 0))
	case OpEqI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		tc.Stack.PushI32(b2i32(a == b))
	case OpNeI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		tc.Stack.PushI32(b2i32(a != b))
	case OpLtSI32:
		b, a := int32(tc.Stack.PopI32()), int32(tc.Stack.PopI32())
		tc.Stack.PushI32(b2i32(a < b))
	case OpLtUI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		tc.Stack.PushI32(b2i32(a < b))
	case OpGtSI32:
		b, a := int32(tc.Stack.PopI32()), int32(tc.Stack.PopI32())
		tc.Stack.PushI32(b2i32(a > b))
	case OpGtUI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		tc.Stack.PushI32(b2i32(a > b))
	case OpLeSI32:
		b, a := int32(tc.Stack.PopI32()), int32(tc.Stack.PopI32())
		tc.Stack.PushI32(b2i32(a <= b))
	case OpLeUI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		tc.Stack.PushI32(b2i32(a <= b))
	case OpGeSI32:
		b, a := int32(tc.Stack.PopI32()), int32(tc.Stack.PopI32())
		tc.Stack.PushI32(b2i32(a >= b))
	case OpGeUI32:
		b, a := tc.Stack.PopI32(), tc.Stack.PopI32()
		tc.Stack.PushI32(b2i32(a >= b))

	// --- comparisons: i64 (result is still a 32-bit boolean) -------------
	case OpEqzI64:
		tc.Stack.PushI32(b2i32(tc.Stack.PopI64() == 0))
	case OpEqI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		tc.Stack.PushI32(b2i32(a == b))
	case OpNeI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		tc.Stack.PushI32(b2i32(a != b))
	case OpLtSI64:
		b, a := int64(tc.Stack.PopI64()), int64(tc.Stack.PopI64())
		tc.Stack.PushI32(b2i32(a < b))
	case OpLtUI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		tc.Stack.PushI32(b2i32(a < b))
	case OpGtSI64:
		b, a := int64(tc.Stack.PopI64()), int64(tc.Stack.PopI64())
		tc.Stack.PushI32(b2i32(a > b))
	case OpGtUI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		tc.Stack.PushI32(b2i32(a > b))
	case OpLeSI64:
		b, a := int64(tc.Stack.PopI64()), int64(tc.Stack.PopI64())
		tc.Stack.PushI32(b2i32(a <= b))
	case OpLeUI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		tc.Stack.PushI32(b2i32(a <= b))
	case OpGeSI64:
		b, a := int64(tc.Stack.PopI64()), int64(tc.Stack.PopI64())
		tc.Stack.PushI32(b2i32(a >= b))
	case OpGeUI64:
		b, a := tc.Stack.PopI64(), tc.Stack.PopI64()
		tc.Stack.PushI32(b2i32(a >= b))

	// --- comparisons: float -----------------------------------------------
	case OpEqF32:
		b, a := tc.Stack.PopF32(), tc.Stack.PopF32()
		tc.Stack.PushI32(b2i32(a == b))
	case OpNeF32:
		b, a := tc.Stack.PopF32(), tc.Stack.PopF32()
		tc.Stack.PushI32(b2i32(a != b))
	case OpLtF32:
		b, a := tc.Stack.PopF32(), tc.Stack.PopF32()
		tc.Stack.PushI32(b2i32(a < b))
	case OpGtF32:
		b, a := tc.Stack.PopF32(), tc.Stack.PopF32()
		tc.Stack.PushI32(b2i32(a > b))
	case OpLeF32:
		b, a := tc.Stack.PopF32(), tc.Stack.PopF32()
		tc.Stack.PushI32(b2i32(a <= b))
	case OpGeF32:
		b, a := tc.Stack.PopF32(), tc.Stack.PopF32()
		tc.Stack.PushI32(b2i32(a >= b))

	case OpEqF64:
		b, a := tc.Stack.PopF64(), tc.Stack.PopF64()
		tc.Stack.PushI32(b2i32(a == b))
	case OpNeF64:
		b, a := tc.Stack.PopF64(), tc.Stack.PopF64()
		tc.Stack.PushI32(b2i32(a != b))
	case OpLtF64:
		b, a := tc.Stack.PopF64(), tc.Stack.PopF64()
		tc.Stack.PushI32(b2i32(a < b))
	case OpGtF64:
		b, a := tc.Stack.PopF64(), tc.Stack.PopF64()
		tc.Stack.PushI32(b2i32(a > b))
	case OpLeF64:
		b, a := tc.Stack.PopF64(), tc.Stack.PopF64()
		tc.Stack.PushI32(b2i32(a <= b))
	case OpGeF64:
		b, a := tc.Stack.PopF64(), tc.Stack.PopF64()
		tc.Stack.PushI32(b2i32(a >= b))

	// --- conversions -------------------------------------------------------
	case OpI32WrapI64:
		tc.Stack.PushI32(uint32(tc.Stack.PopI64()))
	case OpI64ExtendI32S:
		tc.Stack.PushI64(uint64(int64(int32(tc.Stack.PopI32()))))
	case OpI64ExtendI32U:
		tc.Stack.PushI64(uint64(tc.Stack.PopI32()))

	case OpI32TruncF32S:
		f := tc.Stack.PopF32()
		if f != f || f < math.MinInt32 || f > math.MaxInt32 {
			return terminate(api.TerminateIntegerOverflow)
		}
		tc.Stack.PushI32(uint32(int32(f)))
	case OpI32TruncF32U:
		f := tc.Stack.PopF32()
		if f != f || f < 0 || f > math.MaxUint32 {
			return terminate(api.TerminateIntegerOverflow)
		}
		tc.Stack.PushI32(uint32(f))
	case OpI32TruncF64S:
		f := tc.Stack.PopF64()
		if f != f || f < math.MinInt32 || f > math.MaxInt32 {
			return terminate(api.TerminateIntegerOverflow)
		}
		tc.Stack.PushI32(uint32(int32(f)))
	case OpI32TruncF64U:
		f := tc.Stack.PopF64()
		if f != f || f < 0 || f > math.MaxUint32 {
			return terminate(api.TerminateIntegerOverflow)
		}
		tc.Stack.PushI32(uint32(f))
	case OpI64TruncF32S:
		f := tc.Stack.PopF32()
		if f != f || f < math.MinInt64 || f >= math.MaxInt64 {
			return terminate(api.TerminateIntegerOverflow)
		}
		tc.Stack.PushI64(uint64(int64(f)))
	case OpI64TruncF32U:
		f := tc.Stack.PopF32()
		if f != f || f < 0 || f >= math.MaxUint64 {
			return terminate(api.TerminateIntegerOverflow)
		}
		tc.Stack.PushI64(uint64(f))
	case OpI64TruncF64S:
		f := tc.Stack.PopF64()
		if f != f || f < math.MinInt64 || f >= math.MaxInt64 {
			return terminate(api.TerminateIntegerOverflow)
		}
		tc.Stack.PushI64(uint64(int64(f)))
	case OpI64TruncF64U:
		f := tc.Stack.PopF64()
		if f != f || f < 0 || f >= math.MaxUint64 {
			return terminate(api.TerminateIntegerOverflow)
		}
		tc.Stack.PushI64(uint64(f))

	case OpF32ConvertI32S:
		tc.Stack.PushF32(float32(int32(tc.Stack.PopI32())))
	case OpF32ConvertI32U:
		tc.Stack.PushF32(float32(tc.Stack.PopI32()))
	case OpF64ConvertI32S:
		tc.Stack.PushF64(float64(int32(tc.Stack.PopI32())))
	case OpF64ConvertI32U:
		tc.Stack.PushF64(float64(tc.Stack.PopI32()))
	case OpF32DemoteF64:
		tc.Stack.PushF32(float32(tc.Stack.PopF64()))
	case OpF64PromoteF32:
		tc.Stack.PushF64(float64(tc.Stack.PopF32()))

	default:
		return terminate(api.TerminateUnreachableExecuted)
	}
	return fallThrough
}

// execIncDec implements spec.md §4.7's inc/dec: pop the top operand, add
// or subtract the instruction's immediate amount, push the result.
// Unlike the rest of execArith's handlers these carry a scheme-B operand,
// so they're dispatched separately.
func (tc *ThreadContext) execIncDec(op Opcode, p []byte) verdict {
	amount := decodeB(p)
	switch op {
	case OpIncI32:
		tc.Stack.PushI32(tc.Stack.PopI32() + uint32(amount))
	case OpDecI32:
		tc.Stack.PushI32(tc.Stack.PopI32() - uint32(amount))
	case OpIncI64:
		tc.Stack.PushI64(tc.Stack.PopI64() + uint64(amount))
	case OpDecI64:
		tc.Stack.PushI64(tc.Stack.PopI64() - uint64(amount))
	}
	return fallThrough
}
