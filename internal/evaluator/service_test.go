package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/scriptvm/internal/bundle"
	"github.com/GriffinCanCode/scriptvm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scriptvm/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/scriptvm/internal/sandbox"
)

func newTestService(t *testing.T, cfg Config) (*Service, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics(nil)
	svc := New(cfg, bundle.NewRegistry(nil), metrics, nil)
	t.Cleanup(func() { svc.Close() })
	return svc, metrics
}

func TestEvaluate(t *testing.T) {
	svc, metrics := newTestService(t, Config{})

	res, err := svc.Evaluate(context.Background(), &Request{
		Code:    `console.log("total", data.total); data.total * 2`,
		Globals: map[string]any{"data": map[string]any{"total": 21}},
	})
	require.NoError(t, err)

	assert.Equal(t, 42.0, res.Value)
	assert.Equal(t, []string{"total 21"}, res.Console)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, sandbox.BackendNative, res.Backend)
	assert.Contains(t, res.ID, "eval_")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Evaluations.WithLabelValues("native", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ConsoleLines))
}

func TestEvaluateRejectsEmptyCode(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	_, err := svc.Evaluate(context.Background(), &Request{Code: "  "})
	assert.ErrorIs(t, err, ErrEmptyCode)
}

func TestEvaluateWithDeps(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	require.NoError(t, svc.Bundles().Register("math", "var double = function (x) { return x * 2; };"))

	res, err := svc.Evaluate(context.Background(), &Request{
		Code:           `[double(2), triple(2), typeof document]`,
		Deps:           []string{bundle.Polyfill, "math"},
		AdditionalDeps: []string{"var triple = function (x) { return x * 3; };"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{4.0, 6.0, "object"}, res.Value)

	_, err = svc.Evaluate(context.Background(), &Request{Code: "1", Deps: []string{"nope"}})
	assert.ErrorIs(t, err, bundle.ErrUnknownBundle)
}

func TestEvaluateCachesEnginePerEnvironment(t *testing.T) {
	svc, metrics := newTestService(t, Config{})

	for i := 0; i < 3; i++ {
		_, err := svc.Evaluate(context.Background(), &Request{Code: "1", AdditionalDeps: []string{"var a = 1;"}})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, svc.Stats().Engines)

	_, err := svc.Evaluate(context.Background(), &Request{Code: "1", AdditionalDeps: []string{"var b = 1;"}})
	require.NoError(t, err)
	assert.Equal(t, 2, svc.Stats().Engines)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.EnginesCached))
}

func TestEvaluateEvictsLeastRecentlyUsed(t *testing.T) {
	svc, metrics := newTestService(t, Config{MaxEngines: 2})

	envs := []string{"var a = 1;", "var b = 2;", "var a = 1;", "var c = 3;"}
	for _, env := range envs {
		_, err := svc.Evaluate(context.Background(), &Request{Code: "1", AdditionalDeps: []string{env}})
		require.NoError(t, err)
	}

	stats := svc.Stats()
	require.Equal(t, 2, stats.Engines)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EngineEvictions))

	// "a" was touched after "b", so "b" went
	assert.Equal(t, shortKey(fingerprint(sandbox.BackendNative, "var c = 3;")), stats.Cached[0].Fingerprint)
	assert.Equal(t, shortKey(fingerprint(sandbox.BackendNative, "var a = 1;")), stats.Cached[1].Fingerprint)
}

func TestCloseDisposesWithoutCountingEvictions(t *testing.T) {
	svc, metrics := newTestService(t, Config{MaxEngines: 2})

	for _, env := range []string{"var a = 1;", "var b = 2;"} {
		_, err := svc.Evaluate(context.Background(), &Request{Code: "1", AdditionalDeps: []string{env}})
		require.NoError(t, err)
	}
	require.NoError(t, svc.Close())

	stats := svc.Stats()
	assert.True(t, stats.Closed)
	assert.Zero(t, stats.Engines)
	assert.Zero(t, testutil.ToFloat64(metrics.EngineEvictions))
	assert.Zero(t, testutil.ToFloat64(metrics.EnginesCached))
}

func TestEvaluateBadEnvironment(t *testing.T) {
	svc, _ := newTestService(t, Config{})

	_, err := svc.Evaluate(context.Background(), &Request{Code: "1", AdditionalDeps: []string{"var = ;"}})
	var initErr *sandbox.InitializationError
	assert.ErrorAs(t, err, &initErr)
	assert.Equal(t, OutcomeError, Outcome(err))
	assert.Zero(t, svc.Stats().Engines)
}

func TestEvaluateWarnings(t *testing.T) {
	svc, metrics := newTestService(t, Config{})

	res, err := svc.Evaluate(context.Background(), &Request{
		Code:      `typeof fn`,
		Globals:   map[string]any{"fn": func() {}},
		ModifyEnv: `throw new Error("nope")`,
	})
	require.NoError(t, err)
	assert.Equal(t, "undefined", res.Value)
	assert.Len(t, res.Warnings, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Warnings.WithLabelValues("injection")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Warnings.WithLabelValues("modify_env")))
}

func TestEvaluateRuntimeError(t *testing.T) {
	svc, metrics := newTestService(t, Config{})

	_, err := svc.Evaluate(context.Background(), &Request{Code: `missing + 1`})
	var rt *sandbox.RuntimeError
	require.ErrorAs(t, err, &rt)
	assert.Equal(t, "ReferenceError", rt.Name)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Evaluations.WithLabelValues("native", OutcomeRuntime)))
}

func TestBreakerTripsOnRepeatedTimeouts(t *testing.T) {
	svc, metrics := newTestService(t, Config{BreakerThreshold: 2, BreakerCooldown: time.Hour})
	loop := &Request{Code: `while (true) {}`, Timeout: 20 * time.Millisecond}

	for i := 0; i < 2; i++ {
		_, err := svc.Evaluate(context.Background(), loop)
		require.ErrorIs(t, err, sandbox.ErrTimeout)
	}

	_, err := svc.Evaluate(context.Background(), &Request{Code: `1`})
	assert.ErrorIs(t, err, ErrEngineTripped)
	assert.Equal(t, OutcomeRejected, Outcome(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BreakerTrips))
	assert.Equal(t, "open", svc.Stats().Cached[0].Breaker)

	// Other environments have their own breaker
	res, err := svc.Evaluate(context.Background(), &Request{Code: `1`, AdditionalDeps: []string{"var other = 1;"}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Value)
}

func TestBreakerRecoversAfterCooldown(t *testing.T) {
	svc, _ := newTestService(t, Config{BreakerThreshold: 1, BreakerCooldown: 50 * time.Millisecond})

	_, err := svc.Evaluate(context.Background(), &Request{Code: `while (true) {}`, Timeout: 20 * time.Millisecond})
	require.ErrorIs(t, err, sandbox.ErrTimeout)

	_, err = svc.Evaluate(context.Background(), &Request{Code: `1`})
	require.ErrorIs(t, err, ErrEngineTripped)

	time.Sleep(80 * time.Millisecond)
	res, err := svc.Evaluate(context.Background(), &Request{Code: `1`})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Value)
	assert.Equal(t, "closed", svc.Stats().Cached[0].Breaker)
}

func TestRuntimeErrorsDoNotTripBreaker(t *testing.T) {
	svc, _ := newTestService(t, Config{BreakerThreshold: 1})

	for i := 0; i < 3; i++ {
		_, err := svc.Evaluate(context.Background(), &Request{Code: `throw new Error("x")`})
		require.Error(t, err)
	}
	res, err := svc.Evaluate(context.Background(), &Request{Code: `2`})
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Value)
}

func TestRender(t *testing.T) {
	svc, _ := newTestService(t, Config{})

	res, err := svc.Render(context.Background(), &Request{
		Code: `'<table border="1"><tbody><tr><td onclick="steal()">' + name + '</td></tr></tbody></table><script>alert(1)</script>'`,
		Globals: map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)

	assert.Contains(t, res.HTML, `<table border="1">`)
	assert.Contains(t, res.HTML, "<td>Ada</td>")
	assert.NotContains(t, res.HTML, "onclick")
	assert.NotContains(t, res.HTML, "script")
	assert.Equal(t, "Ada", res.Text)
}

func TestRenderRequiresString(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	_, err := svc.Render(context.Background(), &Request{Code: `({a: 1})`})
	assert.ErrorIs(t, err, ErrNotString)
}

func TestClose(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	_, err := svc.Evaluate(context.Background(), &Request{Code: "1"})
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	stats := svc.Stats()
	assert.True(t, stats.Closed)
	assert.Zero(t, stats.Engines)

	_, err = svc.Evaluate(context.Background(), &Request{Code: "1"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentEvaluations(t *testing.T) {
	svc, _ := newTestService(t, Config{PoolSize: 2, MaxEngines: 2})

	var wg sync.WaitGroup
	errs := make(chan error, 24)
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			env := fmt.Sprintf("var n = %d;", i%3)
			res, err := svc.Evaluate(context.Background(), &Request{Code: "n", AdditionalDeps: []string{env}})
			if err != nil {
				errs <- err
				return
			}
			if res.Value != float64(i%3) {
				errs <- fmt.Errorf("got %v for env %d", res.Value, i%3)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		// Eviction under contention may surface a closed pool on the retry.
		if !errors.Is(err, sandbox.ErrPoolClosed) {
			t.Error(err)
		}
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{fmt.Errorf("%w: open", ErrEngineTripped), OutcomeRejected},
		{fmt.Errorf("%w: %w", sandbox.ErrTimeout, context.DeadlineExceeded), OutcomeTimeout},
		{sandbox.ErrMemoryLimit, OutcomeMemory},
		{context.Canceled, OutcomeCanceled},
		{&sandbox.RuntimeError{Name: "Error", Message: "x"}, OutcomeRuntime},
		{errors.New("boom"), OutcomeError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Outcome(tt.err), "%v", tt.err)
	}
}

func TestEvaluateStreamsConsole(t *testing.T) {
	svc, _ := newTestService(t, Config{})

	var lines []string
	res, err := svc.Evaluate(context.Background(), &Request{
		Code:      `console.log("a"); console.log("b", 1); 3`,
		OnConsole: func(line string) { lines = append(lines, line) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b 1"}, lines)
	assert.Equal(t, lines, res.Console)
}

func TestEvaluateRecordsSpan(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := tracing.New("test", zap.New(core))
	svc.SetTracer(tracer)

	parent, ctx := tracer.StartSpan(context.Background(), "request")
	res, err := svc.Evaluate(ctx, &Request{Code: "1"})
	require.NoError(t, err)
	_, err = svc.Evaluate(context.Background(), &Request{Code: `throw new Error("x")`})
	require.Error(t, err)
	tracer.Close()

	spans := logs.FilterMessageSnippet("Span completed").All()
	require.Len(t, spans, 2)

	ok := spans[0].ContextMap()
	assert.Equal(t, "evaluate", ok["operation"])
	assert.Equal(t, string(parent.TraceID), ok["trace_id"])
	assert.Equal(t, string(parent.SpanID), ok["parent_id"])
	assert.Equal(t, res.ID, ok["tag.eval_id"])
	assert.Equal(t, OutcomeOK, ok["tag.outcome"])

	failed := spans[1].ContextMap()
	assert.Equal(t, OutcomeRuntime, failed["tag.outcome"])
	assert.Equal(t, zapcore.WarnLevel, spans[1].Level)
}
