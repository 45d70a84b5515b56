package floatmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMin64Max64_NaNPropagation(t *testing.T) {
	require.True(t, math.IsNaN(Min64(math.NaN(), math.Inf(-1))))
	require.True(t, math.IsNaN(Max64(math.NaN(), math.Inf(1))))
	require.Equal(t, math.Inf(-1), Min64(math.Inf(-1), 5))
	require.Equal(t, math.Inf(1), Max64(math.Inf(1), -5))
	require.Equal(t, 1.0, Min64(1, 2))
	require.Equal(t, 2.0, Max64(1, 2))
}

func TestMin64Max64_SignedZero(t *testing.T) {
	negZero := math.Copysign(0, -1)
	require.True(t, math.Signbit(Min64(0, negZero)))
	require.False(t, math.Signbit(Max64(0, negZero)))
}

func TestIsSignalingNaN32(t *testing.T) {
	quiet := math.Float32bits(float32(math.NaN()))
	require.False(t, IsSignalingNaN32(quiet))

	signaling := uint32(0x7f800001) // exponent all-ones, nonzero mantissa, quiet bit clear
	require.True(t, IsSignalingNaN32(signaling))

	require.False(t, IsSignalingNaN32(math.Float32bits(1.5)))
}

func TestIsSignalingNaN64(t *testing.T) {
	quiet := math.Float64bits(math.NaN())
	require.False(t, IsSignalingNaN64(quiet))

	signaling := uint64(0x7ff0000000000001)
	require.True(t, IsSignalingNaN64(signaling))

	require.False(t, IsSignalingNaN64(math.Float64bits(1.5)))
}
