package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/GriffinCanCode/scriptvm/internal/bundle"
	"github.com/GriffinCanCode/scriptvm/internal/evaluator"
	"github.com/GriffinCanCode/scriptvm/internal/sandbox"
)

// StatusClientClosedRequest is used when the caller went away mid-evaluation
const StatusClientClosedRequest = 499

// errorStatus maps an evaluation error onto a status code and body
func errorStatus(err error) (int, ErrorResponse) {
	var rt *sandbox.RuntimeError
	var initErr *sandbox.InitializationError

	switch {
	case errors.As(err, &rt):
		return http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "runtime error",
			Name:    rt.Name,
			Message: rt.Message,
		}
	case errors.Is(err, sandbox.ErrTimeout):
		return http.StatusRequestTimeout, ErrorResponse{Error: err.Error()}
	case errors.Is(err, sandbox.ErrMemoryLimit):
		return http.StatusInsufficientStorage, ErrorResponse{Error: err.Error()}
	case errors.Is(err, evaluator.ErrEngineTripped),
		errors.Is(err, evaluator.ErrClosed),
		errors.Is(err, sandbox.ErrPoolClosed),
		errors.Is(err, sandbox.ErrAcquireTimeout),
		errors.Is(err, sandbox.ErrDisposed):
		return http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()}
	case errors.Is(err, evaluator.ErrNotString):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()}
	case errors.Is(err, bundle.ErrUnknownBundle),
		errors.Is(err, evaluator.ErrEmptyCode),
		errors.As(err, &initErr):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error()}
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, ErrorResponse{Error: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal error"}
	}
}
