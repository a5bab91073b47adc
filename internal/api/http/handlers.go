package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptvm/internal/api/middleware"
	"github.com/GriffinCanCode/scriptvm/internal/evaluator"
	"github.com/GriffinCanCode/scriptvm/internal/infrastructure/monitoring"
)

// Version is reported by the root handler
const Version = "0.1.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	evaluator    *evaluator.Service
	metrics      *monitoring.Metrics
	logger       *zap.Logger
	maxBodyBytes int64
}

// NewHandlers creates a new handler set
func NewHandlers(svc *evaluator.Service, metrics *monitoring.Metrics, logger *zap.Logger, maxBodyBytes int64) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &Handlers{
		evaluator:    svc,
		metrics:      metrics,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/bundles", h.Bundles)
	r.GET("/metrics/json", h.MetricsJSON)
	r.POST("/evaluate", h.Evaluate)
	r.POST("/render", h.Render)
	r.GET("/stream", h.Stream)
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "scriptvm",
		"version": Version,
		"backend": h.evaluator.Backend(),
	})
}

// Health reports engine cache occupancy
func (h *Handlers) Health(c *gin.Context) {
	stats := h.evaluator.Stats()
	status, code := "healthy", http.StatusOK
	if stats.Closed {
		status, code = "closed", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"evaluator": stats,
	})
}

// Bundles lists registered dependency bundles
func (h *Handlers) Bundles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"bundles": h.evaluator.Bundles().Names(),
	})
}

// MetricsJSON returns the JSON-facing counters
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// Evaluate runs code and returns its result
func (h *Handlers) Evaluate(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	res, err := h.evaluator.Evaluate(c.Request.Context(), req.toRequest())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, newEvaluateResponse(res))
}

// Render runs code that produces HTML and returns it sanitized
func (h *Handlers) Render(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	res, err := h.evaluator.Render(c.Request.Context(), req.toRequest())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, RenderResponse{ID: res.ID, HTML: res.HTML, Text: res.Text})
}

func (h *Handlers) bind(c *gin.Context) (*EvaluateRequest, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)

	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, ErrorResponse{
			Error:     err.Error(),
			RequestID: middleware.GetRequestID(c),
		})
		return nil, false
	}
	return &req, true
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status, body := errorStatus(err)
	body.RequestID = middleware.GetRequestID(c)

	if status >= http.StatusInternalServerError && status != http.StatusInsufficientStorage {
		h.logger.Error("Evaluation failed",
			zap.String("request_id", body.RequestID),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, body)
}
