package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Aut0Matee/AIDigitalWorkforce/internal/config"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/models"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/orchestrator"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/streaming"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Dev-friendly, secure via proxy in prod
}

// StreamHandler serves the realtime task event stream over WebSocket.
type StreamHandler struct {
	hub    *streaming.Hub
	orch   *orchestrator.Orchestrator
	cfg    config.StreamingConfig
	logger *zap.Logger
}

func NewStreamHandler(hub *streaming.Hub, orch *orchestrator.Orchestrator, cfg config.StreamingConfig, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, orch: orch, cfg: cfg, logger: logger}
}

func (h *StreamHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.handleWS)
}

// clientFrame is what the browser sends over the socket.
type clientFrame struct {
	Type    string `json:"type"`
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// serverFrame is a connection-level acknowledgement; task events go out
// as streaming.Event JSON.
type serverFrame struct {
	Type    string `json:"type"`
	TaskID  string `json:"task_id,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *StreamHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 * 1024)
	conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		return nil
	})

	if err := conn.WriteJSON(serverFrame{Type: "connected", Message: "WebSocket connection established"}); err != nil {
		return
	}

	// Reader pump: client frames are forwarded to the writer loop so
	// all writes stay on one goroutine.
	frames := make(chan clientFrame, 8)
	go func() {
		defer close(frames)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
			var f clientFrame
			if err := json.Unmarshal(data, &f); err != nil {
				h.logger.Debug("Dropping malformed websocket frame", zap.Error(err))
				continue
			}
			select {
			case frames <- f:
			case <-r.Context().Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	var sub *streaming.Subscription
	var events chan streaming.Event
	defer func() {
		if sub != nil {
			h.hub.Unsubscribe(sub)
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return

		case f, ok := <-frames:
			if !ok {
				return
			}
			switch f.Type {
			case "subscribe_task":
				if f.TaskID == "" {
					if err := conn.WriteJSON(serverFrame{Type: "error", Message: "task_id required"}); err != nil {
						return
					}
					continue
				}
				// One task per connection; a new subscribe replaces the old.
				if sub != nil {
					h.hub.Unsubscribe(sub)
				}
				sub = h.hub.Subscribe(f.TaskID, h.cfg.SubscriberBuffer)
				events = sub.C
				if err := conn.WriteJSON(serverFrame{Type: "task_subscribed", TaskID: f.TaskID}); err != nil {
					return
				}
				if since := lastSeq(r); since > 0 {
					for _, ev := range h.hub.ReplaySince(f.TaskID, since) {
						if err := conn.WriteJSON(ev); err != nil {
							return
						}
					}
				}

			case "human_intervention":
				if _, err := h.orch.Interject(r.Context(), f.TaskID, f.Message); err != nil {
					h.logger.Warn("Websocket interjection rejected",
						zap.String("task_id", f.TaskID), zap.Error(err))
					if writeErr := conn.WriteJSON(serverFrame{Type: "error", TaskID: f.TaskID, Message: interventionError(err)}); writeErr != nil {
						return
					}
				}

			default:
				if err := conn.WriteJSON(serverFrame{Type: "error", Message: "unknown frame type: " + f.Type}); err != nil {
					return
				}
			}

		case ev, ok := <-events:
			if !ok {
				// Task stream torn down (task deleted).
				events = nil
				sub = nil
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

// lastSeq reads the optional ?last_seq= reconnect cursor.
func lastSeq(r *http.Request) uint64 {
	if q := r.URL.Query().Get("last_seq"); q != "" {
		if n, err := strconv.ParseUint(q, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func interventionError(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "task not found"
	case errors.Is(err, models.ErrInvalidState):
		return "task is not accepting interventions"
	case errors.Is(err, models.ErrValidation):
		return "message must not be empty"
	default:
		return "intervention failed"
	}
}
