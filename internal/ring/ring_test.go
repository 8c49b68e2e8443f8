package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferKeepsOnlyLastN(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}
	require.Equal(t, []int{3, 4, 5}, b.Items())
	require.Equal(t, 3, b.Len())
}

func TestBufferBelowCapacity(t *testing.T) {
	b := New[int](5)
	b.Push(1)
	b.Push(2)
	require.Equal(t, []int{1, 2}, b.Items())
}

func TestBufferZeroCapacityIsNoOp(t *testing.T) {
	b := New[int](0)
	b.Push(1)
	require.Equal(t, 0, b.Len())
	require.Empty(t, b.Items())
}
