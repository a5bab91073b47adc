package evaluator

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/scriptvm/internal/sandbox"
)

var (
	// ErrEngineTripped is returned while an engine's breaker is open.
	ErrEngineTripped = errors.New("engine temporarily rejecting work after repeated resource failures")
	// ErrNotString is returned by Render when the script does not produce a string.
	ErrNotString = errors.New("render result is not a string")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("evaluator is closed")
	// ErrEmptyCode is returned for a request without code.
	ErrEmptyCode = errors.New("code is required")
)

// Outcome classifies an evaluation error into a metrics label
func Outcome(err error) string {
	var rt *sandbox.RuntimeError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrEngineTripped):
		return OutcomeRejected
	case errors.Is(err, sandbox.ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, sandbox.ErrMemoryLimit):
		return OutcomeMemory
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.As(err, &rt):
		return OutcomeRuntime
	default:
		return OutcomeError
	}
}

// countsAgainstEngine reports whether err says something about the engine's
// health. Script exceptions and caller cancellations do not.
func countsAgainstEngine(err error) bool {
	return sandbox.IsResourceError(err)
}
