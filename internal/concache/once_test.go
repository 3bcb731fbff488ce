package concache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnceSingleComputation(t *testing.T) {
	cache := NewOnce[string, int]()
	var calls atomic.Int32
	start := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]int, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			v, err := cache.Do("key", func() (int, error) {
				calls.Add(1)
				return 42, nil
			})
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestOnceDistinctKeys(t *testing.T) {
	cache := NewOnce[string, string]()
	a, err := cache.Do("a", func() (string, error) { return "A", nil })
	require.NoError(t, err)
	b, err := cache.Do("b", func() (string, error) { return "B", nil })
	require.NoError(t, err)
	assert.Equal(t, "A", a)
	assert.Equal(t, "B", b)
}

func TestOnceFailureNotCached(t *testing.T) {
	cache := NewOnce[string, int]()
	boom := errors.New("boom")

	_, err := cache.Do("key", func() (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)

	// The failed key retries and can succeed.
	v, err := cache.Do("key", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	// The success is now cached.
	v, err = cache.Do("key", func() (int, error) { t.Fatal("must not recompute"); return 0, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestOnceConcurrentWaitersSeeFailure(t *testing.T) {
	cache := NewOnce[string, int]()
	boom := errors.New("boom")
	entered := make(chan struct{})
	release := make(chan struct{})

	go func() {
		cache.Do("key", func() (int, error) {
			close(entered)
			<-release
			return 0, boom
		})
	}()
	<-entered

	done := make(chan error)
	go func() {
		_, err := cache.Do("key", func() (int, error) { return 1, nil })
		done <- err
	}()
	// Give the waiter time to join the in-flight computation before it
	// is released.
	time.Sleep(50 * time.Millisecond)
	close(release)

	// The waiter joined the in-flight computation and observes its error.
	err := <-done
	assert.ErrorIs(t, err, boom)
}
