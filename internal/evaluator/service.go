package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptvm/internal/bundle"
	"github.com/GriffinCanCode/scriptvm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scriptvm/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/scriptvm/internal/sandbox"
	"github.com/GriffinCanCode/scriptvm/internal/shared/id"
)

// Service evaluates requests on cached engines
type Service struct {
	cfg     Config
	bundles *bundle.Registry
	metrics *monitoring.Metrics
	logger  *zap.Logger
	policy  *bluemonday.Policy
	tracer  *tracing.Tracer

	mu     sync.Mutex
	lru    *simplelru.LRU[string, *entry]
	closed bool
}

// New creates a service. A nil registry, metrics or logger gets a fresh
// default.
func New(cfg Config, bundles *bundle.Registry, metrics *monitoring.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bundles == nil {
		bundles = bundle.NewRegistry(logger)
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics(nil)
	}
	if cfg.Backend == "" {
		cfg.Backend = sandbox.BackendNative
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.MaxEngines <= 0 {
		cfg.MaxEngines = 16
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}

	s := &Service{
		cfg:     cfg,
		bundles: bundles,
		metrics: metrics,
		logger:  logger.Named("evaluator"),
		policy:  newRenderPolicy(),
	}
	// NewLRU only fails on a non-positive size.
	s.lru, _ = simplelru.NewLRU(cfg.MaxEngines, s.evicted)
	return s
}

// SetTracer makes every evaluation record a span. Call before serving.
func (s *Service) SetTracer(t *tracing.Tracer) {
	s.tracer = t
}

// Bundles returns the registry requests compose from
func (s *Service) Bundles() *bundle.Registry {
	return s.bundles
}

// Backend returns the configured engine backend
func (s *Service) Backend() sandbox.Backend {
	return s.cfg.Backend
}

// environment composes the env script for a request
func (s *Service) environment(req *Request) (string, error) {
	env, err := s.bundles.Compose(req.Deps...)
	if err != nil {
		return "", err
	}
	if len(req.AdditionalDeps) == 0 {
		return env, nil
	}

	parts := make([]string, 0, len(req.AdditionalDeps)+1)
	if env != "" {
		parts = append(parts, env)
	}
	parts = append(parts, req.AdditionalDeps...)
	return strings.Join(parts, "\n;\n"), nil
}

// Evaluate runs req and returns its plain-data result
func (s *Service) Evaluate(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || strings.TrimSpace(req.Code) == "" {
		return nil, ErrEmptyCode
	}

	evalID := id.NewEvalID().String()
	logger := s.logger.With(zap.String("eval_id", evalID))
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		logger = logger.With(zap.String("trace_id", string(traceID)))
	}

	var span *tracing.Span
	if s.tracer != nil {
		span, ctx = s.tracer.StartSpan(ctx, "evaluate")
		span.SetTag("eval_id", evalID)
		span.SetTag("backend", string(s.cfg.Backend))
	}

	timer := monitoring.NewTimer(s.metrics, string(s.cfg.Backend))

	res := &Result{
		ID:       evalID,
		Backend:  s.cfg.Backend,
		Console:  []string{},
		Warnings: []string{},
	}

	err := s.evaluate(ctx, req, res)
	outcome := Outcome(err)
	res.Duration = timer.Stop(outcome)

	s.metrics.IncConsoleLines(len(res.Console))
	logger.Debug("Evaluation finished",
		zap.String("outcome", outcome),
		zap.Duration("duration", res.Duration),
		zap.Int("console_lines", len(res.Console)),
		zap.Int("warnings", len(res.Warnings)),
		zap.Error(err))

	if span != nil {
		span.SetTag("outcome", outcome)
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
		s.tracer.Submit(span)
	}

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) evaluate(ctx context.Context, req *Request, res *Result) error {
	env, err := s.environment(req)
	if err != nil {
		return err
	}

	opts := sandbox.EvaluateOptions{
		Timeout:   req.Timeout,
		ModifyEnv: req.ModifyEnv,
		OnLog: func(entry sandbox.LogEntry) {
			res.Console = append(res.Console, entry.Message)
			if req.OnConsole != nil {
				req.OnConsole(entry.Message)
			}
		},
		OnWarning: func(w error) {
			res.Warnings = append(res.Warnings, w.Error())
			s.metrics.RecordWarning(warningKind(w))
		},
	}

	// An engine evicted between lookup and acquire reports a closed pool;
	// look it up again once.
	for attempt := 0; ; attempt++ {
		e, err := s.engineFor(env)
		if err != nil {
			return err
		}

		err = e.run(func(pool *sandbox.Pool) error {
			v, err := pool.Evaluate(ctx, req.Code, req.Globals, opts)
			res.Value = v
			return err
		})
		if errors.Is(err, sandbox.ErrPoolClosed) && attempt == 0 {
			continue
		}
		return err
	}
}

func warningKind(w error) string {
	var inj *sandbox.InjectionWarning
	var mod *sandbox.EnvMutationWarning
	switch {
	case errors.As(w, &inj):
		return "injection"
	case errors.As(w, &mod):
		return "modify_env"
	default:
		return "other"
	}
}

// Render evaluates req, which must produce a string of HTML, sanitizes the
// markup and derives a plain-text alternative from it.
func (s *Service) Render(ctx context.Context, req *Request) (*Result, error) {
	res, err := s.Evaluate(ctx, req)
	if err != nil {
		return nil, err
	}

	html, ok := res.Value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotString, res.Value)
	}
	res.HTML = s.policy.Sanitize(html)
	if res.Text, err = plainText(res.HTML); err != nil {
		return nil, err
	}
	return res, nil
}

// Stats returns the cache contents, most recently used first
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Backend:    s.cfg.Backend,
		Engines:    s.lru.Len(),
		MaxEngines: s.cfg.MaxEngines,
		Closed:     s.closed,
		Cached:     make([]EngineStats, 0, s.lru.Len()),
	}
	keys := s.lru.Keys()
	for i := len(keys) - 1; i >= 0; i-- {
		e, ok := s.lru.Peek(keys[i])
		if !ok {
			continue
		}
		stats.Cached = append(stats.Cached, EngineStats{
			Fingerprint: shortKey(e.key),
			Pool:        e.pool.Stats(),
			Breaker:     e.breaker.State().String(),
		})
	}
	return stats
}

// Close disposes every cached engine, waiting for in-flight evaluations.
// Idempotent.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	entries := s.lru.Values()
	s.lru.Purge()
	s.metrics.SetEnginesCached(0)
	s.mu.Unlock()

	for _, e := range entries {
		e.pool.Close()
	}
	s.logger.Info("Evaluator closed", zap.Int("engines", len(entries)))
	return nil
}
