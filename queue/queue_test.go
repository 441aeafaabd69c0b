package queue

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFO(t *testing.T) {
	q := New[int](0)
	for i := 1; i <= 5; i++ {
		require.NoError(t, q.Put(context.Background(), i))
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5}, slices.Collect(q.Drain()))
	assert.Equal(t, 0, q.Len())
}

func TestDrainEmptyAndRestartable(t *testing.T) {
	q := New[string](0)
	assert.Empty(t, slices.Collect(q.Drain()))

	q.TryPut("a")
	assert.Equal(t, []string{"a"}, slices.Collect(q.Drain()))

	q.TryPut("b")
	q.TryPut("c")
	assert.Equal(t, []string{"b", "c"}, slices.Collect(q.Drain()))
}

func TestDrainStopsWhenConsumerBreaks(t *testing.T) {
	q := New[int](0)
	for i := range 4 {
		q.TryPut(i)
	}

	for v := range q.Drain() {
		if v == 1 {
			break
		}
	}
	assert.Equal(t, 2, q.Len())
}

func TestCapacity(t *testing.T) {
	q := New[int](2)

	assert.True(t, q.TryPut(1))
	assert.False(t, q.Full())
	assert.True(t, q.TryPut(2))
	assert.True(t, q.Full())
	assert.False(t, q.TryPut(3))
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 2, q.Cap())
}

func TestUnboundedNeverFull(t *testing.T) {
	q := New[int](0)
	for i := range 1000 {
		require.True(t, q.TryPut(i))
	}
	assert.False(t, q.Full())
}

func TestPutBlocksUntilSpace(t *testing.T) {
	q := New[int](1)
	require.True(t, q.TryPut(1))

	done := make(chan error, 1)
	go func() { done <- q.Put(context.Background(), 2) }()

	select {
	case <-done:
		t.Fatal("Put returned while queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	v, ok := q.TryGet()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Put did not resume after TryGet")
	}
	assert.Equal(t, 1, q.Len())
}

func TestPutHonoursContext(t *testing.T) {
	q := New[int](1)
	q.TryPut(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, q.Put(ctx, 2), context.DeadlineExceeded)
	assert.Equal(t, 1, q.Len())
}

func TestConcurrentProducersNeverExceedCapacity(t *testing.T) {
	const capacity = 10
	q := New[int](capacity)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := range 100 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if q.TryPut(n) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, capacity, accepted)
	assert.Equal(t, capacity, q.Len())
}
