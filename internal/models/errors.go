package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across the store, orchestrator and HTTP layers.
// Handlers map these onto status codes; everything else wraps them with %w.
var (
	// ErrValidation marks bad input rejected before any state change.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an unknown task or message id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState marks an operation attempted in a lifecycle state
	// that forbids it, e.g. interjecting on a completed task.
	ErrInvalidState = errors.New("invalid state")
)

// CapabilityError wraps a failed external capability call (LLM completion,
// web search) with the role that attempted it. The orchestrator retries
// these; exhausting the retry budget fails the task.
type CapabilityError struct {
	Role AgentRole
	Err  error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s capability: %v", e.Role, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }
