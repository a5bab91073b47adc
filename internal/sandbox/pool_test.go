package sandbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	engine, err := New(Options{Timeout: 2 * time.Second})
	require.NoError(t, err)
	pool := NewPool(engine, size)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func TestPoolEvaluate(t *testing.T) {
	pool := newTestPool(t, 2)

	got, err := pool.Evaluate(context.Background(), "x + 1", map[string]any{"x": 1}, EvaluateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	stats := pool.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 2, stats.Available)
	assert.Equal(t, 0, stats.InUse)
	assert.False(t, stats.Closed)
	assert.Equal(t, BackendNative, stats.Backend)
}

func TestPoolDefaultSize(t *testing.T) {
	pool := newTestPool(t, 0)
	assert.Equal(t, 4, pool.Stats().Size)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := newTestPool(t, 2)

	var mu sync.Mutex
	inFlight, peak := 0, 0
	opts := EvaluateOptions{OnLog: func(e LogEntry) {
		mu.Lock()
		defer mu.Unlock()
		if e.Message == "enter" {
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
		} else {
			inFlight--
		}
	}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Evaluate(context.Background(),
				"console.log('enter'); var s = Date.now(); while (Date.now() - s < 20) {} console.log('exit');",
				nil, opts)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, 2)
	assert.Positive(t, peak)
}

func TestPoolAcquireTimeout(t *testing.T) {
	pool := newTestPool(t, 1)
	pool.SetAcquireTimeout(20 * time.Millisecond)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = pool.Evaluate(context.Background(),
			"console.log('go'); var s = Date.now(); while (Date.now() - s < 300) {}",
			nil, EvaluateOptions{OnLog: func(LogEntry) { close(started) }})
	}()
	<-started

	_, err := pool.Evaluate(context.Background(), "1", nil, EvaluateOptions{})
	assert.ErrorIs(t, err, ErrAcquireTimeout)
	<-done
}

func TestPoolAcquireHonorsContext(t *testing.T) {
	pool := newTestPool(t, 1)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = pool.Evaluate(context.Background(),
			"console.log('go'); var s = Date.now(); while (Date.now() - s < 300) {}",
			nil, EvaluateOptions{OnLog: func(LogEntry) { close(started) }})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pool.Evaluate(ctx, "1", nil, EvaluateOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	<-done
}

func TestPoolClose(t *testing.T) {
	engine, err := New(Options{})
	require.NoError(t, err)
	pool := NewPool(engine, 2)

	started := make(chan struct{})
	result := make(chan error, 1)
	go func() {
		_, err := pool.Evaluate(context.Background(),
			"console.log('go'); var s = Date.now(); while (Date.now() - s < 100) {} 'finished'",
			nil, EvaluateOptions{OnLog: func(LogEntry) { close(started) }})
		result <- err
	}()
	<-started

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	// The in-flight evaluation completed before the engine was disposed.
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("in-flight evaluation never returned")
	}

	_, err = pool.Evaluate(context.Background(), "1", nil, EvaluateOptions{})
	assert.ErrorIs(t, err, ErrPoolClosed)
	_, err = engine.EvaluateSync("1", nil, EvaluateOptions{})
	assert.ErrorIs(t, err, ErrDisposed)
	assert.True(t, pool.Stats().Closed)
}
