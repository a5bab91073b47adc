package evaluator

import (
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/GriffinCanCode/scriptvm/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/scriptvm/internal/sandbox"
)

// entry is one cached engine
type entry struct {
	key     string
	pool    *sandbox.Pool
	breaker *resilience.Breaker
}

func fingerprint(backend sandbox.Backend, env string) string {
	sum := blake2b.Sum256([]byte(string(backend) + "\x00" + env))
	return hex.EncodeToString(sum[:])
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

// engineFor returns the cached engine for env, building one on a miss.
// Construction runs outside the lock; a concurrent builder for the same env
// wins and the loser is disposed.
func (s *Service) engineFor(env string) (*entry, error) {
	key := fingerprint(s.cfg.Backend, env)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := s.lru.Get(key); ok {
		s.mu.Unlock()
		return e, nil
	}
	s.mu.Unlock()

	built, err := s.build(key, env)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		built.pool.Close()
		return nil, ErrClosed
	}
	if e, ok := s.lru.Get(key); ok {
		s.mu.Unlock()
		built.pool.Close()
		return e, nil
	}
	s.lru.Add(key, built)
	s.metrics.SetEnginesCached(s.lru.Len())
	s.mu.Unlock()
	return built, nil
}

// evicted runs under s.mu whenever the LRU drops an entry. Close purges
// after marking the service closed and disposes the pools itself.
func (s *Service) evicted(key string, e *entry) {
	if s.closed {
		return
	}
	s.metrics.IncEngineEvictions()
	s.logger.Debug("Evicting engine", zap.String("fingerprint", shortKey(key)))
	// Close waits for in-flight calls; do not make the caller wait too.
	go e.pool.Close()
}

func (s *Service) build(key, env string) (*entry, error) {
	engine, err := sandbox.New(sandbox.Options{
		Backend:       s.cfg.Backend,
		MemoryLimitMB: s.cfg.MemoryLimitMB,
		Timeout:       s.cfg.Timeout,
		Env:           env,
		Logger:        s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	breaker := resilience.New(shortKey(key), resilience.Settings{
		Threshold: s.cfg.BreakerThreshold,
		Trials:    1,
		Cooldown:  s.cfg.BreakerCooldown,
		IsFailure: countsAgainstEngine,
		OnStateChange: func(name string, from, to resilience.State) {
			if to == resilience.StateOpen {
				s.metrics.IncBreakerTrips()
			}
			s.logger.Warn("Engine breaker state changed",
				zap.String("fingerprint", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	s.logger.Debug("Built engine",
		zap.String("fingerprint", shortKey(key)),
		zap.Int("env_bytes", len(env)))

	return &entry{
		key:     key,
		pool:    sandbox.NewPool(engine, s.cfg.PoolSize),
		breaker: breaker,
	}, nil
}

// run executes one call through the entry's breaker and pool
func (e *entry) run(fn func(*sandbox.Pool) error) error {
	err := e.breaker.Do(func() error { return fn(e.pool) })
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrEngineTripped, err)
	}
	return err
}
