package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Aut0Matee/AIDigitalWorkforce/internal/models"
)

// errorResponse is the JSON envelope for all handler errors.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var status int
	switch {
	case errors.Is(err, models.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidState):
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
		logger.Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
