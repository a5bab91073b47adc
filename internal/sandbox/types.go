package sandbox

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Backend selects the evaluator behind an Engine.
type Backend string

const (
	// BackendNative runs code on goja with preemptive interruption.
	BackendNative Backend = "native"
	// BackendInterpreted runs code on otto with cooperative interruption.
	BackendInterpreted Backend = "interpreted"
)

const (
	DefaultMemoryLimitMB        = 128
	DefaultTimeout              = time.Second
	DefaultMaxCallStackSize     = 1024
	DefaultMemorySampleInterval = 10 * time.Millisecond
)

// Options configures an engine. Fixed at construction.
type Options struct {
	Backend       Backend       // Defaults to BackendNative
	MemoryLimitMB int64         // Heap ceiling per context; 0 means default, negative is invalid
	Timeout       time.Duration // Default deadline for a single evaluation
	Env           string        // Environment script re-run at the start of every context

	Logger *zap.Logger

	MaxCallStackSize     int           // Native backend only
	MemorySampleInterval time.Duration // How often the watchdog samples the heap
}

// EvaluateOptions tunes a single evaluation. Nothing here outlives the call.
type EvaluateOptions struct {
	Timeout   time.Duration // Overrides Options.Timeout when positive
	Env       string        // Extra environment code run after the isolate environment
	ModifyEnv string        // Run after global injection, before the main code; failures are non-fatal

	OnLog     func(LogEntry) // Receives console.log output
	OnWarning func(error)    // Receives *InjectionWarning and *EnvMutationWarning
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    // always "log"
	Message string    // Formatted arguments
	Time    time.Time // Timestamp
}

// Engine is the public contract shared by both backends.
type Engine interface {
	// Evaluate runs code in a fresh context on its own goroutine and waits for
	// it, honoring ctx cancellation.
	Evaluate(ctx context.Context, code string, globals map[string]any, opts EvaluateOptions) (Value, error)
	// EvaluateSync runs the same steps on the caller's goroutine.
	EvaluateSync(code string, globals map[string]any, opts EvaluateOptions) (Value, error)
	// Dispose destroys the isolate. Idempotent.
	Dispose()
	Backend() Backend
}

// DefaultOptions returns the default native configuration.
func DefaultOptions() Options {
	return Options{
		Backend:              BackendNative,
		MemoryLimitMB:        DefaultMemoryLimitMB,
		Timeout:              DefaultTimeout,
		MaxCallStackSize:     DefaultMaxCallStackSize,
		MemorySampleInterval: DefaultMemorySampleInterval,
	}
}

// withDefaults validates opts and fills unset fields.
func (o Options) withDefaults() (Options, error) {
	if o.Backend == "" {
		o.Backend = BackendNative
	}
	if o.MemoryLimitMB < 0 {
		return o, &InitializationError{Op: "memory limit", Err: errInvalidMemoryLimit}
	}
	if o.MemoryLimitMB == 0 {
		o.MemoryLimitMB = DefaultMemoryLimitMB
	}
	if o.Timeout < 0 {
		return o, &InitializationError{Op: "timeout", Err: errInvalidTimeout}
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxCallStackSize <= 0 {
		o.MaxCallStackSize = DefaultMaxCallStackSize
	}
	if o.MemorySampleInterval <= 0 {
		o.MemorySampleInterval = DefaultMemorySampleInterval
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o, nil
}

func (o Options) memoryLimitBytes() uint64 {
	return uint64(o.MemoryLimitMB) << 20
}
