package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_DropsOldestWhenFull(t *testing.T) {
	b := New[int](3)
	require.False(t, b.Push(1))
	require.False(t, b.Push(2))
	require.False(t, b.Push(3))
	require.True(t, b.Push(4), "pushing past capacity should drop oldest")

	assert.Equal(t, int64(1), b.DroppedCount())
	assert.Equal(t, []int{2, 3, 4}, b.ToSlice())
}

func TestBuffer_AtCapacityDoesNotBlock(t *testing.T) {
	b := New[string](100)
	for i := 0; i < 150; i++ {
		b.Push("x")
	}
	assert.Equal(t, 100, b.Size())
	assert.True(t, b.IsFull())
	assert.Equal(t, int64(50), b.DroppedCount())
}

func TestBuffer_PopNAndDrain(t *testing.T) {
	b := New[int](5)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}
	first := b.PopN(2)
	assert.Equal(t, []int{1, 2}, first)
	rest := b.Drain()
	assert.Equal(t, []int{3, 4, 5}, rest)
	assert.True(t, b.IsEmpty())
}
