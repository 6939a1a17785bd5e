// Package httpapi exposes the REST and WebSocket surface of the
// workforce service.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Aut0Matee/AIDigitalWorkforce/internal/models"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/orchestrator"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/store"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/streaming"
)

// TaskHandler handles task CRUD and run kickoff.
type TaskHandler struct {
	store  *store.Store
	orch   *orchestrator.Orchestrator
	hub    *streaming.Hub
	logger *zap.Logger
}

func NewTaskHandler(st *store.Store, orch *orchestrator.Orchestrator, hub *streaming.Hub, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{store: st, orch: orch, hub: hub, logger: logger}
}

// RegisterRoutes registers task endpoints on the mux.
func (h *TaskHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tasks", h.CreateTask)
	mux.HandleFunc("GET /api/tasks", h.ListTasks)
	mux.HandleFunc("GET /api/tasks/{id}", h.GetTask)
	mux.HandleFunc("PUT /api/tasks/{id}", h.UpdateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", h.DeleteTask)
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type taskListResponse struct {
	Tasks []models.Task `json:"tasks"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
}

// CreateTask handles POST /api/tasks: persists the task and starts the
// agent run in the background.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid request body: %v", models.ErrValidation, err))
		return
	}

	task, err := h.store.CreateTask(r.Context(), req.Title, req.Description)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// kick off the run; the client observes progress over the stream
	if err := h.orch.StartRun(r.Context(), task.ID); err != nil {
		h.logger.Error("Failed to start run for new task",
			zap.String("task_id", task.ID), zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, task)
}

// ListTasks handles GET /api/tasks?page&size&status.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(q.Get("size"))
	if size < 1 {
		size = 10
	}

	var status *models.TaskStatus
	if s := q.Get("status"); s != "" {
		parsed, err := models.ParseTaskStatus(s)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		status = &parsed
	}

	tasks, total, err := h.store.ListTasks(r.Context(), page, size, status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, taskListResponse{Tasks: tasks, Total: total, Page: page, Size: size})
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.store.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Deliverable *string `json:"deliverable"`
}

// UpdateTask handles PUT /api/tasks/{id} as a partial update.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid request body: %v", models.ErrValidation, err))
		return
	}

	upd := store.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		Deliverable: req.Deliverable,
	}
	if req.Status != nil {
		parsed, err := models.ParseTaskStatus(*req.Status)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		upd.Status = &parsed
	}

	task, err := h.store.UpdateTask(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DeleteTask handles DELETE /api/tasks/{id}: stops any active run,
// removes the task with its transcript and tears down live streams.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	h.orch.Cancel(id)
	if err := h.store.DeleteTask(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.hub.CloseTask(id)

	h.logger.Info("Task deleted", zap.String("task_id", id))
	w.WriteHeader(http.StatusNoContent)
}
