package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/Aut0Matee/AIDigitalWorkforce/internal/models"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/orchestrator"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/store"
)

// MessageHandler serves task transcripts and accepts human interjections.
type MessageHandler struct {
	store  *store.Store
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

func NewMessageHandler(st *store.Store, orch *orchestrator.Orchestrator, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{store: st, orch: orch, logger: logger}
}

func (h *MessageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/messages/task/{taskID}", h.ListTaskMessages)
	mux.HandleFunc("POST /api/messages", h.CreateMessage)
	mux.HandleFunc("GET /api/messages/{id}", h.GetMessage)
}

type messageListResponse struct {
	Messages []models.Message `json:"messages"`
	Total    int              `json:"total"`
}

// ListTaskMessages handles GET /api/messages/task/{taskID}: the full
// transcript in append order.
func (h *MessageHandler) ListTaskMessages(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskID")
	if _, err := h.store.GetTask(r.Context(), taskID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	msgs, err := h.store.ListMessages(r.Context(), taskID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageListResponse{Messages: msgs, Total: len(msgs)})
}

type createMessageRequest struct {
	TaskID    string `json:"task_id"`
	AgentRole string `json:"agent_role"`
	Content   string `json:"content"`
}

// CreateMessage handles POST /api/messages. Only human messages are
// accepted here; agent messages are produced by the run itself. A human
// message on an in-progress task is routed as an interjection so the
// next agent turn sees it.
func (h *MessageHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid request body: %v", models.ErrValidation, err))
		return
	}

	role, err := models.ParseAgentRole(req.AgentRole)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if role != models.RoleHuman {
		writeError(w, h.logger, fmt.Errorf("%w: only human messages may be posted directly", models.ErrValidation))
		return
	}

	msg, err := h.orch.Interject(r.Context(), req.TaskID, req.Content)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// GetMessage handles GET /api/messages/{id}.
func (h *MessageHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.store.GetMessage(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}
