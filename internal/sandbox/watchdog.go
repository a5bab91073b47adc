package sandbox

import (
	"context"
	"runtime/metrics"
	"sync"
	"time"
)

// watchdogConfig bounds one context.
type watchdogConfig struct {
	timeout  time.Duration
	limit    uint64 // bytes of heap growth allowed, 0 disables sampling
	interval time.Duration
	readHeap func() uint64
}

// watchdog trips a backend interrupt at most once, with the first of: the
// deadline, ctx cancellation, or heap growth past the ceiling.
type watchdog struct {
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	cause error
}

func startWatchdog(ctx context.Context, cfg watchdogConfig, interrupt func(cause error)) *watchdog {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.readHeap == nil {
		cfg.readHeap = heapInUse
	}
	if cfg.interval <= 0 {
		cfg.interval = DefaultMemorySampleInterval
	}

	w := &watchdog{
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.run(ctx, cfg, interrupt)
	return w
}

func (w *watchdog) run(ctx context.Context, cfg watchdogConfig, interrupt func(error)) {
	defer close(w.done)

	timer := time.NewTimer(cfg.timeout)
	defer timer.Stop()

	var sample <-chan time.Time
	var base uint64
	if cfg.limit > 0 {
		ticker := time.NewTicker(cfg.interval)
		defer ticker.Stop()
		sample = ticker.C
		base = cfg.readHeap()
	}

	for {
		select {
		case <-timer.C:
			w.trip(ErrTimeout, interrupt)
			return
		case <-ctx.Done():
			w.trip(interruptCause(ctx.Err()), interrupt)
			return
		case <-sample:
			if used := cfg.readHeap(); used > base && used-base > cfg.limit {
				w.trip(ErrMemoryLimit, interrupt)
				return
			}
		case <-w.stopCh:
			return
		}
	}
}

func (w *watchdog) trip(cause error, interrupt func(error)) {
	w.mu.Lock()
	w.cause = cause
	w.mu.Unlock()
	interrupt(cause)
}

// err returns the trip cause, or nil if the watchdog never fired.
func (w *watchdog) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cause
}

// stop halts the watchdog and waits for its goroutine to exit.
func (w *watchdog) stop() {
	w.once.Do(func() { close(w.stopCh) })
	<-w.done
}

// heapInUse approximates live heap plus goroutine stacks for the whole
// process. Concurrent contexts share this figure.
func heapInUse() uint64 {
	samples := []metrics.Sample{
		{Name: "/memory/classes/heap/objects:bytes"},
		{Name: "/memory/classes/heap/stacks:bytes"},
	}
	metrics.Read(samples)

	var total uint64
	for _, s := range samples {
		if s.Value.Kind() == metrics.KindUint64 {
			total += s.Value.Uint64()
		}
	}
	return total
}
