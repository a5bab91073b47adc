package http

import (
	"time"

	"github.com/GriffinCanCode/scriptvm/internal/evaluator"
	"github.com/GriffinCanCode/scriptvm/internal/sandbox"
)

// EvaluateRequest is the body of /evaluate and /render
type EvaluateRequest struct {
	Code           string         `json:"code" binding:"required"`
	Globals        map[string]any `json:"globals"`
	Deps           []string       `json:"deps"`
	AdditionalDeps []string       `json:"additionalDeps"`
	TimeoutMS      int            `json:"timeoutMs" binding:"gte=0"`
	ModifyEnv      string         `json:"modifyEnv"`
}

func (r *EvaluateRequest) toRequest() *evaluator.Request {
	return &evaluator.Request{
		Code:           r.Code,
		Globals:        r.Globals,
		Deps:           r.Deps,
		AdditionalDeps: r.AdditionalDeps,
		Timeout:        time.Duration(r.TimeoutMS) * time.Millisecond,
		ModifyEnv:      r.ModifyEnv,
	}
}

// EvaluateResponse is the body of a successful /evaluate
type EvaluateResponse struct {
	ID         string          `json:"id"`
	Value      sandbox.Value   `json:"value"`
	Console    []string        `json:"console"`
	Warnings   []string        `json:"warnings"`
	DurationMS float64         `json:"durationMs"`
	Backend    sandbox.Backend `json:"backend"`
}

func newEvaluateResponse(res *evaluator.Result) EvaluateResponse {
	return EvaluateResponse{
		ID:         res.ID,
		Value:      res.Value,
		Console:    res.Console,
		Warnings:   res.Warnings,
		DurationMS: float64(res.Duration.Microseconds()) / 1000,
		Backend:    res.Backend,
	}
}

// RenderResponse is the body of a successful /render
type RenderResponse struct {
	ID   string `json:"id"`
	HTML string `json:"html"`
	Text string `json:"text"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error     string `json:"error"`
	Name      string `json:"name,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
