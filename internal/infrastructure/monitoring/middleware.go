package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		c.Next()

		// Route templates keep label cardinality bounded.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		metrics.RecordHTTPRequest(method, path, status, duration, reqSize, respSize)
	}
}

// Timer measures evaluation duration
type Timer struct {
	start   time.Time
	metrics *Metrics
	backend string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, backend string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		backend: backend,
	}
}

// Stop records the outcome and returns the elapsed time
func (t *Timer) Stop(outcome string) time.Duration {
	duration := time.Since(t.start)
	if t.metrics != nil {
		t.metrics.RecordEvaluation(t.backend, outcome, duration)
	}
	return duration
}
