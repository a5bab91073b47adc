package monitoring

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gonum.org/v1/gonum/stat"
)

// latencyWindow is how many recent evaluation durations feed the JSON summary
const latencyWindow = 1024

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Evaluation metrics
	Evaluations        *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec
	Warnings           *prometheus.CounterVec
	ConsoleLines       prometheus.Counter

	// Engine cache metrics
	EnginesCached   prometheus.Gauge
	EngineEvictions prometheus.Counter
	BreakerTrips    prometheus.Counter

	startTime time.Time
	gatherer  prometheus.Gatherer

	// Snapshot for the health endpoint
	snapshot  Snapshot
	latencies []float64 // ring of recent evaluation durations in ms
	next      int
	mu        sync.RWMutex
}

// Snapshot holds current metric values for JSON responses
type Snapshot struct {
	TotalRequests int64            `json:"total_requests"`
	TotalErrors   int64            `json:"total_errors"`
	Evaluations   map[string]int64 `json:"evaluations"`
	Latency       LatencySummary   `json:"latency"`
	UptimeSeconds float64          `json:"uptime_seconds"`
}

// LatencySummary describes recent evaluation durations
type LatencySummary struct {
	Samples int     `json:"samples"`
	MeanMs  float64 `json:"mean_ms"`
	P50Ms   float64 `json:"p50_ms"`
	P95Ms   float64 `json:"p95_ms"`
	P99Ms   float64 `json:"p99_ms"`
}

// NewMetrics registers every collector on reg. A nil reg gets a fresh
// registry carrying the Go and process collectors.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),
		gatherer:  reg,
		snapshot:  Snapshot{Evaluations: make(map[string]int64)},
		latencies: make([]float64, 0, latencyWindow),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptvm_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptvm_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptvm_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptvm_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Evaluation metrics
		Evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptvm_evaluations_total",
				Help: "Total number of evaluations by outcome",
			},
			[]string{"backend", "outcome"},
		),
		EvaluationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptvm_evaluation_duration_seconds",
				Help:    "Evaluation duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"backend"},
		),
		Warnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptvm_evaluation_warnings_total",
				Help: "Non-fatal evaluation warnings by kind",
			},
			[]string{"kind"},
		),
		ConsoleLines: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scriptvm_console_lines_total",
				Help: "Total console.log calls made by evaluated code",
			},
		),

		// Engine cache metrics
		EnginesCached: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scriptvm_engines_cached",
				Help: "Number of engines held in the environment cache",
			},
		),
		EngineEvictions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scriptvm_engine_evictions_total",
				Help: "Total engines evicted from the environment cache",
			},
		),
		BreakerTrips: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scriptvm_breaker_trips_total",
				Help: "Total times an engine breaker opened",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "scriptvm_uptime_seconds",
			Help: "Service uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordEvaluation records one evaluation outcome
func (m *Metrics) RecordEvaluation(backend, outcome string, duration time.Duration) {
	m.Evaluations.WithLabelValues(backend, outcome).Inc()
	m.EvaluationDuration.WithLabelValues(backend).Observe(duration.Seconds())

	ms := float64(duration.Microseconds()) / 1000

	m.mu.Lock()
	m.snapshot.Evaluations[outcome]++
	if len(m.latencies) < latencyWindow {
		m.latencies = append(m.latencies, ms)
	} else {
		m.latencies[m.next] = ms
	}
	m.next = (m.next + 1) % latencyWindow
	m.mu.Unlock()
}

// RecordWarning records a non-fatal evaluation warning
func (m *Metrics) RecordWarning(kind string) {
	m.Warnings.WithLabelValues(kind).Inc()
}

// IncConsoleLines counts console output
func (m *Metrics) IncConsoleLines(n int) {
	m.ConsoleLines.Add(float64(n))
}

// SetEnginesCached sets the engine cache size
func (m *Metrics) SetEnginesCached(count int) {
	m.EnginesCached.Set(float64(count))
}

// IncEngineEvictions counts an engine leaving the cache
func (m *Metrics) IncEngineEvictions() {
	m.EngineEvictions.Inc()
}

// IncBreakerTrips counts a breaker opening
func (m *Metrics) IncBreakerTrips() {
	m.BreakerTrips.Inc()
}

// Snapshot returns a copy of the JSON-facing counters
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	evals := make(map[string]int64, len(m.snapshot.Evaluations))
	for k, v := range m.snapshot.Evaluations {
		evals[k] = v
	}
	return Snapshot{
		TotalRequests: m.snapshot.TotalRequests,
		TotalErrors:   m.snapshot.TotalErrors,
		Evaluations:   evals,
		Latency:       summarize(m.latencies),
		UptimeSeconds: time.Since(m.startTime).Seconds(),
	}
}

func summarize(samples []float64) LatencySummary {
	if len(samples) == 0 {
		return LatencySummary{}
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	return LatencySummary{
		Samples: len(sorted),
		MeanMs:  stat.Mean(sorted, nil),
		P50Ms:   stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P95Ms:   stat.Quantile(0.95, stat.Empirical, sorted, nil),
		P99Ms:   stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
}
