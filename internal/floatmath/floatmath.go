// Package floatmath implements the float semantics the instruction set
// requires but the Go standard library does not provide directly: min/max
// that propagate NaN through -Inf/+Inf (spec.md §4.7 "float arithmetic and
// transcendentals"), and the signalling-NaN / subnormal load policy from
// spec.md §4.2.
package floatmath

import "math"

// Min64 returns the smaller of x and y. Unlike math.Min, if either operand
// is NaN the result is NaN even when the other operand is -Inf.
func Min64(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, -1) || math.IsInf(y, -1):
		return math.Inf(-1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

// Max64 returns the larger of x and y, with the same NaN-propagation rule
// as Min64.
func Max64(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, 1) || math.IsInf(y, 1):
		return math.Inf(1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}

// Min32 and Max32 are the float32 analogues of Min64/Max64.
func Min32(x, y float32) float32 { return float32(Min64(float64(x), float64(y))) }
func Max32(x, y float32) float32 { return float32(Max64(float64(x), float64(y))) }

// f32QuietBit / f64QuietBit isolate the "is-quiet" bit of
// an IEEE-754 NaN payload: a quiet NaN has the top mantissa bit set: a
// signalling NaN has it clear.
const (
	f32QuietBit = uint32(1) << 22
	f64QuietBit = uint64(1) << 51
)

// IsSignalingNaN32 reports whether bits encodes a signalling NaN (spec.md
// §4.2: "canonical quiet NaN and normal finite numbers load normally;
// subnormals are accepted; any signalling NaN bit pattern aborts the run").
func IsSignalingNaN32(bits uint32) bool {
	exp := bits & 0x7f800000
	mantissa := bits & 0x007fffff
	return exp == 0x7f800000 && mantissa != 0 && mantissa&f32QuietBit == 0
}

// IsSignalingNaN64 is the float64 analogue of IsSignalingNaN32.
func IsSignalingNaN64(bits uint64) bool {
	exp := bits & 0x7ff0000000000000
	mantissa := bits & 0x000fffffffffffff
	return exp == 0x7ff0000000000000 && mantissa != 0 && mantissa&f64QuietBit == 0
}
