package sandbox

import (
	"errors"
	"fmt"
)

var (
	// ErrDisposed is returned when evaluating on a disposed or unconstructed engine.
	ErrDisposed = errors.New("cannot evaluate, engine has been disposed or is not initialized")
	// ErrTimeout is returned when execution exceeds its deadline.
	ErrTimeout = errors.New("script execution timed out")
	// ErrMemoryLimit is returned when a context grows the heap past the ceiling.
	ErrMemoryLimit = errors.New("script exceeded memory limit")

	errInvalidMemoryLimit = errors.New("memory limit must be positive")
	errInvalidTimeout     = errors.New("timeout must not be negative")
	errUnknownBackend     = errors.New("unknown backend")
)

// InitializationError reports a failure while constructing an engine.
type InitializationError struct {
	Op  string
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("sandbox init: %s: %v", e.Op, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// RuntimeError is an exception raised by evaluated code: syntax errors,
// reference errors and thrown values alike.
type RuntimeError struct {
	Name    string // ReferenceError, SyntaxError, ... empty for non-Error throws
	Message string
	Value   Value // The thrown value, when it could be transferred
}

func (e *RuntimeError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// InjectionWarning reports a global that could not be bound. The call proceeds
// without it.
type InjectionWarning struct {
	Name string
	Err  error
}

func (w *InjectionWarning) Error() string {
	return fmt.Sprintf("global %q not injected: %v", w.Name, w.Err)
}

func (w *InjectionWarning) Unwrap() error { return w.Err }

// EnvMutationWarning reports a ModifyEnv script that raised. The main code
// still runs.
type EnvMutationWarning struct {
	Err error
}

func (w *EnvMutationWarning) Error() string {
	return fmt.Sprintf("modify env failed: %v", w.Err)
}

func (w *EnvMutationWarning) Unwrap() error { return w.Err }

// OversizedArrayWarning reports a result array longer than the copy limit.
// The array comes back as undefined.
type OversizedArrayWarning struct {
	Length int64
}

func (w *OversizedArrayWarning) Error() string {
	return fmt.Sprintf("array of %d elements exceeds the %d element limit", w.Length, maxArrayLength)
}

var errNotTransferable = errors.New("value is not transferable")

// IsResourceError reports whether err is a timeout or memory ceiling failure.
func IsResourceError(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrMemoryLimit)
}
