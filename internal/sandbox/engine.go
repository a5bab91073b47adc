package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// isolate is the long-lived, read-mostly half of a backend.
type isolate interface {
	open() (scope, error)
	dispose()
}

// scope is one ephemeral global scope bound to exactly one evaluation.
type scope interface {
	installConsole(sink consoleSink) error
	runEnv() error
	run(code string) error
	setGlobal(name string, v Value) error
	eval(code string, warn func(error)) (Value, error)
	interrupt(cause error)
	release()
}

const (
	stateUninitialized = iota
	stateReady
	stateDisposed
)

// core implements the Engine contract on top of an isolate. Each backend
// embeds it.
type core struct {
	id      string
	backend Backend
	opts    Options
	logger  *zap.Logger

	mu    sync.RWMutex
	state int
	iso   isolate
}

// New creates an engine for opts.Backend.
func New(opts Options) (Engine, error) {
	switch opts.Backend {
	case "", BackendNative:
		e, err := NewNative(opts)
		if err != nil {
			return nil, err
		}
		return e, nil
	case BackendInterpreted:
		e, err := NewInterpreted(opts)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, &InitializationError{
			Op:  "backend",
			Err: fmt.Errorf("%w: %q", errUnknownBackend, opts.Backend),
		}
	}
}

func (c *core) init(backend Backend, opts Options, iso isolate) {
	c.id = uuid.NewString()
	c.backend = backend
	c.opts = opts
	c.logger = opts.Logger.With(
		zap.String("engine_id", c.id),
		zap.String("backend", string(backend)),
	)
	c.iso = iso
	c.state = stateReady
	c.logger.Debug("engine ready",
		zap.Int64("memory_limit_mb", opts.MemoryLimitMB),
		zap.Duration("timeout", opts.Timeout),
		zap.Bool("env", opts.Env != ""))
}

// ID identifies the engine instance in logs.
func (c *core) ID() string { return c.id }

// Backend returns the evaluator kind.
func (c *core) Backend() Backend { return c.backend }

// Evaluate runs code on a dedicated goroutine and suspends the caller until
// the context has been released. Cancelling ctx interrupts the evaluation.
func (c *core) Evaluate(ctx context.Context, code string, globals map[string]any, opts EvaluateOptions) (Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, interruptCause(err)
	}

	type outcome struct {
		value Value
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := c.evaluate(ctx, code, globals, opts)
		done <- outcome{v, err}
	}()

	res := <-done
	return res.value, res.err
}

// EvaluateSync runs code on the caller's goroutine.
func (c *core) EvaluateSync(code string, globals map[string]any, opts EvaluateOptions) (Value, error) {
	return c.evaluate(context.Background(), code, globals, opts)
}

// Dispose destroys the isolate after in-flight evaluations finish.
func (c *core) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateDisposed {
		return
	}
	c.state = stateDisposed
	if c.iso != nil {
		c.iso.dispose()
		c.iso = nil
	}
	if c.logger != nil {
		c.logger.Debug("engine disposed")
	}
}

func (c *core) evaluate(ctx context.Context, code string, globals map[string]any, opts EvaluateOptions) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("sandbox: evaluator panic: %v", r)
		}
	}()

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != stateReady {
		return nil, ErrDisposed
	}

	timeout := c.opts.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	sc, err := c.iso.open()
	if err != nil {
		return nil, err
	}
	defer sc.release()

	start := time.Now()
	wd := startWatchdog(ctx, watchdogConfig{
		timeout:  timeout,
		limit:    c.opts.memoryLimitBytes(),
		interval: c.opts.MemorySampleInterval,
	}, sc.interrupt)
	defer wd.stop()

	fail := func(err error) error {
		if cause := wd.err(); cause != nil {
			c.logger.Debug("evaluation interrupted",
				zap.Error(cause),
				zap.Duration("elapsed", time.Since(start)))
			return cause
		}
		return err
	}
	warn := func(w error) {
		c.logger.Warn("sandbox warning", zap.Error(w))
		if opts.OnWarning != nil {
			opts.OnWarning(w)
		}
	}

	if err := sc.installConsole(newConsoleSink(c.logger, c.backend, opts.OnLog)); err != nil {
		return nil, fail(err)
	}
	if err := sc.runEnv(); err != nil {
		return nil, fail(err)
	}
	if opts.Env != "" {
		if err := sc.run(opts.Env); err != nil {
			return nil, fail(err)
		}
	}

	for _, name := range sortedKeys(globals) {
		v, ok := Normalize(globals[name])
		if !ok {
			warn(&InjectionWarning{Name: name, Err: errNotTransferable})
			continue
		}
		if err := sc.setGlobal(name, v); err != nil {
			if cause := wd.err(); cause != nil {
				return nil, cause
			}
			warn(&InjectionWarning{Name: name, Err: err})
		}
	}

	if opts.ModifyEnv != "" {
		if err := sc.run(opts.ModifyEnv); err != nil {
			if cause := wd.err(); cause != nil {
				return nil, cause
			}
			warn(&EnvMutationWarning{Err: err})
		}
	}

	result, err = sc.eval(code, warn)
	if err != nil {
		return nil, fail(err)
	}
	return result, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// interruptCause maps a watchdog cause onto the public error taxonomy.
func interruptCause(cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) && !errors.Is(cause, ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrTimeout, cause)
	}
	return cause
}
