package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Aut0Matee/AIDigitalWorkforce/internal/config"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	status      TEXT NOT NULL,
	deliverable TEXT,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	agent_role TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_task_id ON messages(task_id);
`

// Store is the durable record of tasks and their transcripts, backed by
// an embedded SQLite database through sqlx.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New opens (creating if needed) the SQLite database at cfg.Path and
// bootstraps the schema.
func New(cfg config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", cfg.Path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	logger.Info("Store initialized", zap.String("path", cfg.Path))
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection, used by readiness checks.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// CreateTask persists a new task in status "created".
func (s *Store) CreateTask(ctx context.Context, title, description string) (*models.Task, error) {
	task := &models.Task{
		ID:          uuid.New().String(),
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Status:      models.TaskStatusCreated,
		CreatedAt:   time.Now().UTC(),
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, task.Status, task.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

// GetTask fetches a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	err := s.db.GetContext(ctx, &task, `SELECT * FROM tasks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select task: %w", err)
	}
	return &task, nil
}

// ListTasks returns one page of tasks, newest first, with the unpaged
// total for the pagination envelope. A nil status means no filter.
func (s *Store) ListTasks(ctx context.Context, page, size int, status *models.TaskStatus) ([]models.Task, int, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 10
	}

	where, args := "", []interface{}{}
	if status != nil {
		where = " WHERE status = ?"
		args = append(args, *status)
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM tasks`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	tasks := []models.Task{}
	query := `SELECT * FROM tasks` + where + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, size, (page-1)*size)
	if err := s.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, 0, fmt.Errorf("select tasks: %w", err)
	}
	return tasks, total, nil
}

// TaskUpdate carries a partial update; nil fields are left untouched.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *models.TaskStatus
	Deliverable *string
}

// UpdateTask applies a partial update and touches updated_at.
func (s *Store) UpdateTask(ctx context.Context, id string, upd TaskUpdate) (*models.Task, error) {
	sets, args := []string{}, []interface{}{}
	if upd.Title != nil {
		if strings.TrimSpace(*upd.Title) == "" {
			return nil, fmt.Errorf("%w: title is required", models.ErrValidation)
		}
		sets, args = append(sets, "title = ?"), append(args, strings.TrimSpace(*upd.Title))
	}
	if upd.Description != nil {
		if strings.TrimSpace(*upd.Description) == "" {
			return nil, fmt.Errorf("%w: description is required", models.ErrValidation)
		}
		sets, args = append(sets, "description = ?"), append(args, strings.TrimSpace(*upd.Description))
	}
	if upd.Status != nil {
		sets, args = append(sets, "status = ?"), append(args, *upd.Status)
	}
	if upd.Deliverable != nil {
		sets, args = append(sets, "deliverable = ?"), append(args, *upd.Deliverable)
	}
	if len(sets) == 0 {
		return s.GetTask(ctx, id)
	}
	sets, args = append(sets, "updated_at = ?"), append(args, time.Now().UTC())
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: task %s", models.ErrNotFound, id)
	}
	return s.GetTask(ctx, id)
}

// TransitionStatus moves a task from one status to another atomically.
// Returns ErrInvalidState when the task is not in the expected state,
// which is how concurrent StartRun calls lose the race.
func (s *Store) TransitionStatus(ctx context.Context, id string, from, to models.TaskStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		return fmt.Errorf("transition task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetTask(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: task %s is not %s", models.ErrInvalidState, id, from)
	}
	return nil
}

// CompleteTask records the deliverable and the completed status in one
// write, guarded on the task still being in progress.
func (s *Store) CompleteTask(ctx context.Context, id, deliverable string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, deliverable = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.TaskStatusCompleted, deliverable, time.Now().UTC(), id, models.TaskStatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetTask(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: task %s is not in progress", models.ErrInvalidState, id)
	}
	return nil
}

// DeleteTask removes a task; messages cascade via the foreign key.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: task %s", models.ErrNotFound, id)
	}
	return nil
}

// AppendMessage appends one message to a task transcript. Empty content
// is rejected before any write.
func (s *Store) AppendMessage(ctx context.Context, taskID string, role models.AgentRole, content string) (*models.Message, error) {
	msg := &models.Message{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		AgentRole: role,
		Content:   strings.TrimSpace(content),
		CreatedAt: time.Now().UTC(),
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, task_id, agent_role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.TaskID, msg.AgentRole, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return nil, fmt.Errorf("%w: task %s", models.ErrNotFound, taskID)
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// ListMessages returns the full transcript in append order.
func (s *Store) ListMessages(ctx context.Context, taskID string) ([]models.Message, error) {
	msgs := []models.Message{}
	// rowid preserves insertion order even for equal timestamps
	err := s.db.SelectContext(ctx, &msgs,
		`SELECT id, task_id, agent_role, content, created_at FROM messages WHERE task_id = ? ORDER BY rowid`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	return msgs, nil
}

// GetMessage fetches a single message by id.
func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := s.db.GetContext(ctx, &msg, `SELECT id, task_id, agent_role, content, created_at FROM messages WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select message: %w", err)
	}
	return &msg, nil
}

// CountMessages reports how many messages a task has, optionally for a
// single role. Used by tests and the failed-task invariant check.
func (s *Store) CountMessages(ctx context.Context, taskID string, role *models.AgentRole) (int, error) {
	var n int
	if role != nil {
		err := s.db.GetContext(ctx, &n,
			`SELECT COUNT(*) FROM messages WHERE task_id = ? AND agent_role = ?`, taskID, *role)
		return n, err
	}
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages WHERE task_id = ?`, taskID)
	return n, err
}
