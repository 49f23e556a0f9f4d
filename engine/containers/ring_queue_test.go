package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueBounded(t *testing.T) {
	rq := NewRingQueue[int](2)
	_, err := rq.Peek()
	assert.ErrorIs(t, err, ErrQueueEmpty)

	require.NoError(t, rq.Enqueue(1))
	require.NoError(t, rq.Enqueue(2))
	assert.True(t, rq.IsFull())
	assert.ErrorIs(t, rq.Enqueue(3), ErrQueueFull)

	v, err := rq.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, rq.Enqueue(3))

	back, err := rq.PeekBack()
	require.NoError(t, err)
	*back = 30
	v, _ = rq.Dequeue()
	assert.Equal(t, 2, v)
	v, _ = rq.Dequeue()
	assert.Equal(t, 30, v)
	_, err = rq.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRingQueueGrowKeepsOrder(t *testing.T) {
	rq := NewRingQueue[int](2)
	rq.Grow = true
	require.NoError(t, rq.Enqueue(0))
	require.NoError(t, rq.Enqueue(1))
	_, _ = rq.Dequeue()
	for i := 2; i < 10; i++ {
		require.NoError(t, rq.Enqueue(i))
	}
	assert.Equal(t, 9, rq.Len())
	for want := 1; want < 10; want++ {
		got, err := rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.True(t, rq.IsEmpty())
}
