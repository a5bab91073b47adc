/*
Package monitoring provides Prometheus metrics for the evaluation service.

# Metrics

  - HTTP requests (count, latency, request and response size) by route
  - Evaluations by backend and outcome, with a latency histogram
  - Non-fatal warnings (injection, env mutation) and console output volume
  - Engine cache size, evictions and breaker trips
  - Uptime

Snapshot also summarizes the last 1024 evaluation durations (mean and
p50/p95/p99, computed with gonum/stat) for the JSON metrics endpoint.

Every collector registers on a caller-supplied registry, so tests can build
as many Metrics as they like.

# Usage

	metrics := monitoring.NewMetrics(nil)
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "native")
	// ... evaluate ...
	timer.Stop("ok")
*/
package monitoring
