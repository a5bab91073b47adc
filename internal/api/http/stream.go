package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptvm/internal/api/middleware"
	"github.com/GriffinCanCode/scriptvm/internal/evaluator"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is open for the JSON routes too
	},
}

const streamWriteTimeout = 10 * time.Second

// StreamMessage is a client frame on /stream
type StreamMessage struct {
	Type    string           `json:"type"` // evaluate, render or ping
	ID      string           `json:"id,omitempty"`
	Request *EvaluateRequest `json:"request,omitempty"`
}

// StreamEvent is a server frame on /stream
type StreamEvent struct {
	Type    string            `json:"type"` // system, console, result, rendered, error, pong
	ID      string            `json:"id,omitempty"`
	Message string            `json:"message,omitempty"`
	Status  int               `json:"status,omitempty"`
	Result  *EvaluateResponse `json:"result,omitempty"`
	Render  *RenderResponse   `json:"render,omitempty"`
	Error   *ErrorResponse    `json:"error,omitempty"`
}

// streamConn serializes writes; console lines arrive from the evaluation
// goroutine.
type streamConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *streamConn) send(ev StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return s.conn.WriteJSON(ev)
}

// Stream upgrades to a WebSocket and runs evaluations one at a time,
// pushing console lines as they happen.
func (h *Handlers) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(h.maxBodyBytes)

	rid := middleware.GetRequestID(c)
	sc := &streamConn{conn: conn}
	if err := sc.send(StreamEvent{Type: "system", Message: "connected"}); err != nil {
		return
	}

	ctx := c.Request.Context()
	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("WebSocket read ended", zap.String("request_id", rid), zap.Error(err))
			}
			return
		}

		var ev StreamEvent
		switch msg.Type {
		case "ping":
			ev = StreamEvent{Type: "pong", ID: msg.ID}
		case "evaluate", "render":
			ev = h.streamEvaluate(ctx, sc, rid, msg)
		default:
			ev = StreamEvent{
				Type:   "error",
				ID:     msg.ID,
				Status: http.StatusBadRequest,
				Error:  &ErrorResponse{Error: "unknown message type", RequestID: rid},
			}
		}
		if err := sc.send(ev); err != nil {
			return
		}
	}
}

func (h *Handlers) streamEvaluate(ctx context.Context, sc *streamConn, rid string, msg StreamMessage) StreamEvent {
	if msg.Request == nil {
		return StreamEvent{
			Type:   "error",
			ID:     msg.ID,
			Status: http.StatusBadRequest,
			Error:  &ErrorResponse{Error: evaluator.ErrEmptyCode.Error(), RequestID: rid},
		}
	}

	req := msg.Request.toRequest()
	req.OnConsole = func(line string) {
		_ = sc.send(StreamEvent{Type: "console", ID: msg.ID, Message: line})
	}

	var res *evaluator.Result
	var err error
	if msg.Type == "render" {
		res, err = h.evaluator.Render(ctx, req)
	} else {
		res, err = h.evaluator.Evaluate(ctx, req)
	}
	if err != nil {
		status, body := errorStatus(err)
		body.RequestID = rid
		if status >= http.StatusInternalServerError && status != http.StatusInsufficientStorage {
			h.logger.Error("Stream evaluation failed",
				zap.String("request_id", rid),
				zap.String("id", msg.ID),
				zap.Error(err))
		}
		return StreamEvent{Type: "error", ID: msg.ID, Status: status, Error: &body}
	}

	if msg.Type == "render" {
		return StreamEvent{Type: "rendered", ID: msg.ID, Render: &RenderResponse{ID: res.ID, HTML: res.HTML, Text: res.Text}}
	}
	resp := newEvaluateResponse(res)
	return StreamEvent{Type: "result", ID: msg.ID, Result: &resp}
}
