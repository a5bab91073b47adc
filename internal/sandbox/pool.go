package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrPoolClosed     = errors.New("sandbox pool is closed")
	ErrAcquireTimeout = errors.New("sandbox slot acquisition timeout")
)

// DefaultAcquireTimeout bounds how long Evaluate waits for a free slot.
const DefaultAcquireTimeout = 5 * time.Second

// Pool bounds concurrent evaluations on one engine
type Pool struct {
	engine         Engine
	slots          chan struct{}
	size           int
	acquireTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// PoolStats is a point-in-time view of pool occupancy.
type PoolStats struct {
	Size      int     `json:"size"`
	Available int     `json:"available"`
	InUse     int     `json:"in_use"`
	Closed    bool    `json:"closed"`
	Backend   Backend `json:"backend"`
}

// NewPool wraps engine with size slots
func NewPool(engine Engine, size int) *Pool {
	if size <= 0 {
		size = 4
	}

	pool := &Pool{
		engine:         engine,
		slots:          make(chan struct{}, size),
		size:           size,
		acquireTimeout: DefaultAcquireTimeout,
		done:           make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		pool.slots <- struct{}{}
	}
	return pool
}

// SetAcquireTimeout overrides the slot wait bound. Must be called before use.
func (p *Pool) SetAcquireTimeout(d time.Duration) {
	if d > 0 {
		p.acquireTimeout = d
	}
}

// Engine returns the wrapped engine
func (p *Pool) Engine() Engine {
	return p.engine
}

func (p *Pool) acquire(ctx context.Context) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrPoolClosed
	}

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case <-p.slots:
		p.mu.RLock()
		closed := p.closed
		p.mu.RUnlock()
		if closed {
			p.slots <- struct{}{}
			return ErrPoolClosed
		}
		return nil
	case <-p.done:
		return ErrPoolClosed
	case <-ctx.Done():
		return interruptCause(ctx.Err())
	case <-timer.C:
		return ErrAcquireTimeout
	}
}

func (p *Pool) release() {
	p.slots <- struct{}{}
}

// Evaluate runs code on the engine once a slot is free
func (p *Pool) Evaluate(ctx context.Context, code string, globals map[string]any, opts EvaluateOptions) (Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()

	return p.engine.Evaluate(ctx, code, globals, opts)
}

// Close refuses new work, waits for in-flight evaluations, then disposes
// the engine.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	for i := 0; i < p.size; i++ {
		<-p.slots
	}
	p.engine.Dispose()
	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	available := len(p.slots)
	return PoolStats{
		Size:      p.size,
		Available: available,
		InUse:     p.size - available,
		Closed:    p.closed,
		Backend:   p.engine.Backend(),
	}
}
