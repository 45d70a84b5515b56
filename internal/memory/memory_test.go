package memory

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ancvm/ancvm/api"
)

func TestResizeGrowsAndZeroes(t *testing.T) {
	m := New(1, 4)
	require.Equal(t, 1, m.CapacityInPages())

	prev, ok := m.Resize(2)
	require.True(t, ok)
	require.Equal(t, 1, prev)
	require.Equal(t, 3, m.CapacityInPages())

	region, ok := m.Slice(PageSize, 8)
	require.True(t, ok)
	for _, b := range region {
		require.Equal(t, byte(0), b)
	}
}

func TestResizeRefusesPastMax(t *testing.T) {
	m := New(1, 2)
	_, ok := m.Resize(5)
	require.False(t, ok)
}

func TestFillAndCopy(t *testing.T) {
	m := New(1, 0)
	require.True(t, m.Fill(0, 16, 0xab))
	require.True(t, m.Copy(100, 0, 16))

	region, _ := m.Slice(100, 16)
	for _, b := range region {
		require.Equal(t, byte(0xab), b)
	}
}

func TestBoundsRejectsOverflowAndOutOfRange(t *testing.T) {
	m := New(1, 0)
	require.False(t, m.Fill(math.MaxUint32-4, 16, 0))
	require.False(t, m.Fill(uint32(len(m.bytes)), 1, 0))
}

func TestTypedLoadStoreRoundTrip(t *testing.T) {
	m := New(1, 0)
	require.True(t, m.StoreTyped(api.MemoryI32, 0, uint64(uint32(42))))
	v, ok := m.LoadTyped(api.MemoryI32, 0)
	require.True(t, ok)
	require.Equal(t, uint64(42), v)

	require.True(t, m.StoreF64(8, -1.5))
	f, ok := m.LoadF64(8, FloatLoadPermissive)
	require.True(t, ok)
	require.Equal(t, -1.5, f)
}

func TestLoadF32RejectsSignalingNaN(t *testing.T) {
	m := New(1, 0)
	// signalling NaN: exponent all-ones, mantissa nonzero, quiet bit clear
	const signaling = uint32(0x7f800001)
	require.True(t, m.StoreI32(0, signaling))

	_, ok := m.LoadF32(0, FloatLoadRejectSignaling)
	require.False(t, ok)

	_, ok = m.LoadF32(0, FloatLoadPermissive)
	require.True(t, ok)
}

func TestNarrowWidthLoadStore(t *testing.T) {
	m := New(1, 0)
	require.True(t, m.StoreI8(0, 0xff))
	v8, ok := m.LoadI8(0)
	require.True(t, ok)
	require.Equal(t, uint8(0xff), v8)

	require.True(t, m.StoreI16(2, 0xbeef))
	v16, ok := m.LoadI16(2)
	require.True(t, ok)
	require.Equal(t, uint16(0xbeef), v16)
}
