package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "created"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// ParseTaskStatus validates a status string from external input.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case TaskStatusCreated, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return TaskStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown task status %q", ErrValidation, s)
}

// Terminal reports whether no further transition may leave this status.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// AgentRole identifies the author of a message.
type AgentRole string

const (
	RoleResearcher AgentRole = "researcher"
	RoleWriter     AgentRole = "writer"
	RoleAnalyst    AgentRole = "analyst"
	RoleHuman      AgentRole = "human"
	RoleSystem     AgentRole = "system"
)

// ParseAgentRole validates a role string from external input.
func ParseAgentRole(s string) (AgentRole, error) {
	switch AgentRole(s) {
	case RoleResearcher, RoleWriter, RoleAnalyst, RoleHuman, RoleSystem:
		return AgentRole(s), nil
	}
	return "", fmt.Errorf("%w: unknown agent role %q", ErrValidation, s)
}

// Task is a unit of work processed by the agent sequence.
type Task struct {
	ID          string     `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Status      TaskStatus `db:"status" json:"status"`
	Deliverable *string    `db:"deliverable" json:"deliverable"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at"`
}

// Validate checks user-supplied fields at creation time.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	return nil
}

// Message is one entry in a task's append-only transcript.
type Message struct {
	ID        string    `db:"id" json:"id"`
	TaskID    string    `db:"task_id" json:"task_id"`
	AgentRole AgentRole `db:"agent_role" json:"agent_role"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Validate rejects messages that must never be persisted or broadcast.
func (m *Message) Validate() error {
	if m.TaskID == "" {
		return fmt.Errorf("%w: task_id is required", ErrValidation)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: content is empty", ErrValidation)
	}
	if _, err := ParseAgentRole(string(m.AgentRole)); err != nil {
		return err
	}
	return nil
}
