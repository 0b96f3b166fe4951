package bitfield

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetTestClear(t *testing.T) {
	b := New(10)
	require.False(t, b.Test(3))
	b.Set(3)
	require.True(t, b.Test(3))
	b.Clear(3)
	require.False(t, b.Test(3))
}

func TestOutOfRangeBitsAreNoops(t *testing.T) {
	b := New(4)
	b.Set(100)
	require.False(t, b.Test(100))
	require.EqualValues(t, 0, b.Count())
}

func TestAllRequiresEveryBitSet(t *testing.T) {
	b := New(3)
	require.False(t, b.All())
	b.Set(0)
	b.Set(1)
	require.False(t, b.All())
	b.Set(2)
	require.True(t, b.All())
}

func TestNewBytesValidatesLength(t *testing.T) {
	_, err := NewBytes([]byte{0xFF}, 16)
	require.Error(t, err)

	b, err := NewBytes([]byte{0xFF}, 8)
	require.NoError(t, err)
	require.EqualValues(t, 8, b.Count())
}

func TestCopyIsIndependent(t *testing.T) {
	b := New(8)
	b.Set(0)
	cp := b.Copy()
	cp.Set(1)
	require.False(t, b.Test(1))
	require.True(t, cp.Test(1))
}

func TestBytesRoundTripsThroughNewBytes(t *testing.T) {
	b := New(16)
	b.Set(0)
	b.Set(15)
	cp, err := NewBytes(b.Bytes(), 16)
	require.NoError(t, err)
	require.True(t, cp.Test(0))
	require.True(t, cp.Test(15))
	require.EqualValues(t, 2, cp.Count())
}
