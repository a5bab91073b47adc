package evaluator

import (
	"time"

	"github.com/GriffinCanCode/scriptvm/internal/sandbox"
)

// Outcome labels for metrics and logs
const (
	OutcomeOK       = "ok"
	OutcomeTimeout  = "timeout"
	OutcomeMemory   = "memory"
	OutcomeRuntime  = "runtime"
	OutcomeCanceled = "canceled"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Config sizes the engine cache
type Config struct {
	Backend       sandbox.Backend
	MemoryLimitMB int64
	Timeout       time.Duration
	PoolSize      int
	MaxEngines    int

	// Consecutive resource failures before an engine's breaker opens
	BreakerThreshold uint32
	// How long an open breaker rejects before admitting a trial call
	BreakerCooldown time.Duration
}

// Request is one evaluation
type Request struct {
	Code           string
	Globals        map[string]any
	Deps           []string // Bundle names, composed in order
	AdditionalDeps []string // Raw environment code appended after Deps
	Timeout        time.Duration
	ModifyEnv      string

	// OnConsole, when set, receives each console line as it is logged
	OnConsole func(line string)
}

// Result is the outcome of a successful evaluation
type Result struct {
	ID       string          `json:"id"`
	Value    sandbox.Value   `json:"value"`
	HTML     string          `json:"html,omitempty"`
	Text     string          `json:"text,omitempty"`
	Console  []string        `json:"console"`
	Warnings []string        `json:"warnings"`
	Duration time.Duration   `json:"-"`
	Backend  sandbox.Backend `json:"backend"`
}

// EngineStats describes one cached engine
type EngineStats struct {
	Fingerprint string            `json:"fingerprint"`
	Pool        sandbox.PoolStats `json:"pool"`
	Breaker     string            `json:"breaker"`
}

// Stats is a point-in-time view of the cache
type Stats struct {
	Backend    sandbox.Backend `json:"backend"`
	Engines    int             `json:"engines"`
	MaxEngines int             `json:"max_engines"`
	Closed     bool            `json:"closed"`
	Cached     []EngineStats   `json:"cached"`
}
