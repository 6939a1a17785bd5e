// Package orchestrator owns the task lifecycle: it sequences agent
// turns, appends their output to the transcript, merges human
// interjections at turn boundaries and drives tasks to a terminal state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Aut0Matee/AIDigitalWorkforce/internal/agents"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/config"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/metrics"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/models"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/store"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/streaming"
)

// Orchestrator runs at most one agent sequence per task. Tasks run
// concurrently with each other; within one task, turns are strictly
// sequential.
type Orchestrator struct {
	store       *store.Store
	hub         *streaming.Hub
	sequence    []agents.Agent
	maxRetries  int
	turnTimeout time.Duration
	logger      *zap.Logger

	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
}

// run tracks one in-flight task execution.
type run struct {
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []string // interjections buffered until the next turn boundary
}

// takePending drains buffered interjections, concatenated in arrival order.
func (r *run) takePending() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	joined := strings.Join(r.pending, "\n")
	r.pending = nil
	return joined
}

func (r *run) addPending(content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, content)
}

// New builds an orchestrator over the given agent sequence. The last
// agent in the sequence is the terminal role; its output becomes the
// deliverable.
func New(st *store.Store, hub *streaming.Hub, sequence []agents.Agent, cfg config.AgentsConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:       st,
		hub:         hub,
		sequence:    sequence,
		maxRetries:  cfg.MaxRetries,
		turnTimeout: cfg.TurnTimeout,
		logger:      logger,
		runs:        make(map[string]*run),
	}
}

// StartRun transitions a task from created to in_progress, emits the
// start event and launches the agent sequence in the background. A task
// not in created status is an error, not a queued retry.
func (o *Orchestrator) StartRun(ctx context.Context, taskID string) error {
	o.mu.Lock()
	if _, active := o.runs[taskID]; active {
		o.mu.Unlock()
		return fmt.Errorf("%w: task %s already has an active run", models.ErrInvalidState, taskID)
	}
	o.mu.Unlock()

	if err := o.store.TransitionStatus(ctx, taskID, models.TaskStatusCreated, models.TaskStatusInProgress); err != nil {
		return err
	}
	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel}

	o.mu.Lock()
	o.runs[taskID] = r
	o.mu.Unlock()

	o.hub.Publish(streaming.Event{
		TaskID: taskID,
		Type:   streaming.EventTaskStarted,
		Task:   task,
	})
	metrics.RunsStarted.Inc()
	o.logger.Info("Run started", zap.String("task_id", taskID))

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.execute(runCtx, task, r)
	}()
	return nil
}

// Interject accepts a human message for a task that is in progress. The
// message is persisted and broadcast immediately; its content is merged
// into the next agent turn's context with directive priority. An
// interjection arriving after the terminal agent's turn is still
// recorded but triggers no further turn.
func (o *Orchestrator) Interject(ctx context.Context, taskID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: intervention message is empty", models.ErrValidation)
	}

	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusInProgress {
		return nil, fmt.Errorf("%w: cannot interject on task in status %s", models.ErrInvalidState, task.Status)
	}

	msg, err := o.store.AppendMessage(ctx, taskID, models.RoleHuman, content)
	if err != nil {
		return nil, err
	}
	o.hub.Publish(streaming.Event{
		TaskID:    taskID,
		Type:      streaming.EventHumanIntervention,
		AgentRole: models.RoleHuman,
		Message:   msg.Content,
	})

	o.mu.Lock()
	r := o.runs[taskID]
	o.mu.Unlock()
	if r != nil {
		r.addPending(content)
	}

	metrics.Interventions.Inc()
	o.logger.Info("Human intervention accepted", zap.String("task_id", taskID))
	return msg, nil
}

// Cancel stops the run for a task, if one is active. Used by task
// deletion; output already appended stays until the cascade removes it.
func (o *Orchestrator) Cancel(taskID string) {
	o.mu.Lock()
	r := o.runs[taskID]
	delete(o.runs, taskID)
	o.mu.Unlock()
	if r != nil {
		r.cancel()
		o.logger.Info("Run cancelled", zap.String("task_id", taskID))
	}
}

// Close cancels all active runs and waits for their goroutines.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	for id, r := range o.runs {
		r.cancel()
		delete(o.runs, id)
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// execute drives the fixed agent sequence for one task.
func (o *Orchestrator) execute(ctx context.Context, task *models.Task, r *run) {
	start := time.Now()
	defer func() {
		o.mu.Lock()
		delete(o.runs, task.ID)
		o.mu.Unlock()
		metrics.RunDuration.Observe(time.Since(start).Seconds())
	}()

	var writerOut, analystOut string
	for _, agent := range o.sequence {
		if ctx.Err() != nil {
			return // task deleted mid-run
		}

		content, err := o.turn(ctx, task, r, agent)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.fail(task.ID, err.Error())
			return
		}
		if content == "" {
			// empty production: discarded, hand off to the next role
			o.logger.Warn("Agent produced empty content, skipping turn",
				zap.String("task_id", task.ID),
				zap.String("role", string(agent.Role())))
			continue
		}

		msg, err := o.store.AppendMessage(ctx, task.ID, agent.Role(), content)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) || ctx.Err() != nil {
				return // deleted under us; last write wins and is gone with the task
			}
			o.fail(task.ID, fmt.Sprintf("persist %s message: %v", agent.Role(), err))
			return
		}
		o.hub.Publish(streaming.Event{
			TaskID:    task.ID,
			Type:      streaming.EventAgentMessage,
			AgentRole: agent.Role(),
			Message:   msg.Content,
		})

		switch agent.Role() {
		case models.RoleWriter:
			writerOut = content
		case models.RoleAnalyst:
			analystOut = content
		}
	}

	deliverable := analystOut
	if deliverable == "" {
		deliverable = writerOut
	}
	if deliverable == "" {
		o.fail(task.ID, "no deliverable produced")
		return
	}
	o.complete(ctx, task.ID, deliverable)
}

// turn runs one agent with the task's current transcript and any pending
// interjection, retrying capability failures up to the budget.
func (o *Orchestrator) turn(ctx context.Context, task *models.Task, r *run, agent agents.Agent) (string, error) {
	transcript, err := o.store.ListMessages(ctx, task.ID)
	if err != nil {
		return "", fmt.Errorf("load transcript: %w", err)
	}
	tc := agents.TurnContext{
		Title:       task.Title,
		Description: task.Description,
		Transcript:  transcript,
		Directive:   r.takePending(),
	}

	role := string(agent.Role())
	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.TurnRetries.WithLabelValues(role).Inc()
			o.logger.Warn("Retrying agent turn",
				zap.String("task_id", task.ID),
				zap.String("role", role),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
		}

		turnStart := time.Now()
		turnCtx := ctx
		var cancel context.CancelFunc
		if o.turnTimeout > 0 {
			turnCtx, cancel = context.WithTimeout(ctx, o.turnTimeout)
		}
		content, err := agent.Produce(turnCtx, tc)
		if cancel != nil {
			cancel()
		}
		metrics.TurnDuration.WithLabelValues(role).Observe(time.Since(turnStart).Seconds())

		if err == nil {
			return strings.TrimSpace(content), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}
	return "", fmt.Errorf("%s turn failed after %d attempts: %w", role, o.maxRetries+1, lastErr)
}

// complete records the deliverable and emits the completion event.
func (o *Orchestrator) complete(ctx context.Context, taskID, deliverable string) {
	if err := o.store.CompleteTask(ctx, taskID, deliverable); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return
		}
		o.logger.Error("Failed to record completion", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	o.hub.Publish(streaming.Event{
		TaskID:      taskID,
		Type:        streaming.EventTaskCompleted,
		Deliverable: deliverable,
	})
	metrics.RunsCompleted.WithLabelValues(string(models.TaskStatusCompleted)).Inc()
	o.logger.Info("Task completed", zap.String("task_id", taskID))
}

// fail moves the task to failed, records the cause as a system message
// and emits the error event. Failures are data: the task stays queryable.
func (o *Orchestrator) fail(taskID, reason string) {
	// detached context: failure bookkeeping must outlive the run context
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := o.store.TransitionStatus(ctx, taskID, models.TaskStatusInProgress, models.TaskStatusFailed); err != nil {
		o.logger.Warn("Failed to record failure transition", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	if _, err := o.store.AppendMessage(ctx, taskID, models.RoleSystem, "Task failed: "+reason); err != nil {
		o.logger.Error("Failed to append failure message", zap.String("task_id", taskID), zap.Error(err))
	}
	o.hub.Publish(streaming.Event{
		TaskID: taskID,
		Type:   streaming.EventError,
		Error:  reason,
	})
	metrics.RunsCompleted.WithLabelValues(string(models.TaskStatusFailed)).Inc()
	o.logger.Error("Task failed", zap.String("task_id", taskID), zap.String("reason", reason))
}
