package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Aut0Matee/AIDigitalWorkforce/internal/agents"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/config"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/models"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/orchestrator"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/store"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/streaming"
)

type stubAgent struct {
	role    models.AgentRole
	produce func(ctx context.Context, tc agents.TurnContext) (string, error)
}

func (a *stubAgent) Role() models.AgentRole { return a.role }

func (a *stubAgent) Produce(ctx context.Context, tc agents.TurnContext) (string, error) {
	return a.produce(ctx, tc)
}

func fixedAgent(role models.AgentRole, content string) *stubAgent {
	return &stubAgent{
		role: role,
		produce: func(context.Context, agents.TurnContext) (string, error) {
			return content, nil
		},
	}
}

type env struct {
	store  *store.Store
	hub    *streaming.Hub
	orch   *orchestrator.Orchestrator
	server *httptest.Server
}

// newEnv spins up the full HTTP stack over an in-process run pipeline.
func newEnv(t *testing.T, sequence []agents.Agent) *env {
	t.Helper()

	logger := zaptest.NewLogger(t)
	st, err := store.New(config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		Streaming: config.StreamingConfig{
			RingCapacity:     64,
			SubscriberBuffer: 64,
			PingInterval:     20 * time.Second,
			PongTimeout:      60 * time.Second,
		},
	}
	hub := streaming.NewHub(cfg.Streaming.RingCapacity)
	orch := orchestrator.New(st, hub, sequence, config.AgentsConfig{
		MaxRetries:  2,
		TurnTimeout: 5 * time.Second,
	}, logger)
	t.Cleanup(orch.Close)

	srv := NewServer(cfg, st, orch, hub, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &env{store: st, hub: hub, orch: orch, server: ts}
}

func defaultSequence() []agents.Agent {
	return []agents.Agent{
		fixedAgent(models.RoleResearcher, "research notes"),
		fixedAgent(models.RoleWriter, "draft"),
		fixedAgent(models.RoleAnalyst, "final deliverable"),
	}
}

func (e *env) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

func (e *env) getJSON(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// waitForStatus polls until the task reaches the wanted status.
func (e *env) waitForStatus(t *testing.T, taskID string, want models.TaskStatus) models.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := e.store.GetTask(context.Background(), taskID)
		require.NoError(t, err)
		if task.Status == want {
			return *task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached status %s", taskID, want)
	return models.Task{}
}

func TestCreateTaskRunsToCompletion(t *testing.T) {
	e := newEnv(t, defaultSequence())

	resp := e.postJSON(t, "/api/tasks", map[string]string{
		"title":       "Market research",
		"description": "Summarize the EV market",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[models.Task](t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Market research", created.Title)

	task := e.waitForStatus(t, created.ID, models.TaskStatusCompleted)
	require.NotNil(t, task.Deliverable)
	assert.Equal(t, "final deliverable", *task.Deliverable)
}

func TestCreateTaskValidation(t *testing.T) {
	e := newEnv(t, defaultSequence())

	resp := e.postJSON(t, "/api/tasks", map[string]string{"title": "   ", "description": "d"})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = e.postJSON(t, "/api/tasks", map[string]string{"title": "t", "description": ""})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestListTasksPagination(t *testing.T) {
	e := newEnv(t, defaultSequence())

	for i := 0; i < 3; i++ {
		_, err := e.store.CreateTask(context.Background(), fmt.Sprintf("task %d", i), "d")
		require.NoError(t, err)
	}

	var page taskListResponse
	resp := e.getJSON(t, "/api/tasks?page=1&size=2", &page)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Tasks, 2)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.Size)

	resp = e.getJSON(t, "/api/tasks?page=2&size=2", &page)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, page.Tasks, 1)

	var filtered taskListResponse
	resp = e.getJSON(t, "/api/tasks?status=created", &filtered)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, filtered.Total)

	resp = e.getJSON(t, "/api/tasks?status=bogus", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestGetTaskNotFound(t *testing.T) {
	e := newEnv(t, defaultSequence())
	resp := e.getJSON(t, "/api/tasks/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateTask(t *testing.T) {
	e := newEnv(t, defaultSequence())
	task, err := e.store.CreateTask(context.Background(), "before", "d")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, e.server.URL+"/api/tasks/"+task.ID,
		strings.NewReader(`{"title":"after"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decode[models.Task](t, resp)
	assert.Equal(t, "after", updated.Title)
	assert.Equal(t, "d", updated.Description)
	assert.NotNil(t, updated.UpdatedAt)
}

func TestDeleteTask(t *testing.T) {
	e := newEnv(t, defaultSequence())
	task, err := e.store.CreateTask(context.Background(), "t", "d")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodDelete, e.server.URL+"/api/tasks/"+task.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.getJSON(t, "/api/tasks/"+task.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTaskTranscriptEndpoint(t *testing.T) {
	e := newEnv(t, defaultSequence())

	resp := e.postJSON(t, "/api/tasks", map[string]string{"title": "t", "description": "d"})
	created := decode[models.Task](t, resp)
	e.waitForStatus(t, created.ID, models.TaskStatusCompleted)

	var list messageListResponse
	resp2 := e.getJSON(t, "/api/messages/task/"+created.ID, &list)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	require.Equal(t, 3, list.Total)
	assert.Equal(t, models.RoleResearcher, list.Messages[0].AgentRole)
	assert.Equal(t, models.RoleWriter, list.Messages[1].AgentRole)
	assert.Equal(t, models.RoleAnalyst, list.Messages[2].AgentRole)

	var msg models.Message
	resp3 := e.getJSON(t, "/api/messages/"+list.Messages[0].ID, &msg)
	require.Equal(t, http.StatusOK, resp3.StatusCode)
	assert.Equal(t, "research notes", msg.Content)

	resp4 := e.getJSON(t, "/api/messages/task/no-such-task", nil)
	assert.Equal(t, http.StatusNotFound, resp4.StatusCode)
}

func TestPostMessageRejectsAgentRoles(t *testing.T) {
	e := newEnv(t, defaultSequence())
	task, err := e.store.CreateTask(context.Background(), "t", "d")
	require.NoError(t, err)

	resp := e.postJSON(t, "/api/messages", map[string]string{
		"task_id": task.ID, "agent_role": "writer", "content": "hi",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestPostMessageRequiresActiveRun(t *testing.T) {
	e := newEnv(t, defaultSequence())
	task, err := e.store.CreateTask(context.Background(), "t", "d")
	require.NoError(t, err)

	// Task is still in created status, no run is accepting interventions.
	resp := e.postJSON(t, "/api/messages", map[string]string{
		"task_id": task.ID, "agent_role": "human", "content": "note",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPostMessageInterjectsIntoRun(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	sequence := []agents.Agent{
		&stubAgent{role: models.RoleResearcher, produce: func(ctx context.Context, tc agents.TurnContext) (string, error) {
			close(started)
			<-gate
			return "research", nil
		}},
		fixedAgent(models.RoleWriter, "draft"),
		fixedAgent(models.RoleAnalyst, "final"),
	}
	e := newEnv(t, sequence)

	resp := e.postJSON(t, "/api/tasks", map[string]string{"title": "t", "description": "d"})
	created := decode[models.Task](t, resp)
	<-started

	resp2 := e.postJSON(t, "/api/messages", map[string]string{
		"task_id": created.ID, "agent_role": "human", "content": "focus on pricing",
	})
	require.Equal(t, http.StatusCreated, resp2.StatusCode)
	msg := decode[models.Message](t, resp2)
	assert.Equal(t, models.RoleHuman, msg.AgentRole)
	assert.Equal(t, "focus on pricing", msg.Content)

	close(gate)
	e.waitForStatus(t, created.ID, models.TaskStatusCompleted)
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var v map[string]any
	require.NoError(t, conn.ReadJSON(&v))
	return v
}

func TestWebSocketStream(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	sequence := []agents.Agent{
		&stubAgent{role: models.RoleResearcher, produce: func(ctx context.Context, tc agents.TurnContext) (string, error) {
			close(started)
			<-gate
			return "research", nil
		}},
		fixedAgent(models.RoleWriter, "draft"),
		fixedAgent(models.RoleAnalyst, "final"),
	}
	e := newEnv(t, sequence)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(e.server.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	frame := readFrame(t, conn)
	assert.Equal(t, "connected", frame["type"])

	resp := e.postJSON(t, "/api/tasks", map[string]string{"title": "t", "description": "d"})
	created := decode[models.Task](t, resp)
	<-started

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": "subscribe_task", "task_id": created.ID,
	}))
	frame = readFrame(t, conn)
	assert.Equal(t, "task_subscribed", frame["type"])
	assert.Equal(t, created.ID, frame["task_id"])

	close(gate)

	var types []string
	for i := 0; i < 4; i++ {
		frame = readFrame(t, conn)
		types = append(types, frame["type"].(string))
	}
	assert.Equal(t, []string{"agent_message", "agent_message", "agent_message", "task_completed"}, types)
}

func TestWebSocketIntervention(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	directives := make(chan string, 1)
	sequence := []agents.Agent{
		&stubAgent{role: models.RoleResearcher, produce: func(ctx context.Context, tc agents.TurnContext) (string, error) {
			close(started)
			<-gate
			return "research", nil
		}},
		&stubAgent{role: models.RoleWriter, produce: func(ctx context.Context, tc agents.TurnContext) (string, error) {
			directives <- tc.Directive
			return "draft", nil
		}},
		fixedAgent(models.RoleAnalyst, "final"),
	}
	e := newEnv(t, sequence)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(e.server.URL), nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = readFrame(t, conn) // connected

	resp := e.postJSON(t, "/api/tasks", map[string]string{"title": "t", "description": "d"})
	created := decode[models.Task](t, resp)
	<-started

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": "subscribe_task", "task_id": created.ID,
	}))
	_ = readFrame(t, conn) // task_subscribed

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": "human_intervention", "task_id": created.ID, "message": "shorter please",
	}))

	frame := readFrame(t, conn)
	require.Equal(t, "human_intervention", frame["type"])
	assert.Equal(t, "shorter please", frame["message"])

	close(gate)
	e.waitForStatus(t, created.ID, models.TaskStatusCompleted)
	assert.Equal(t, "shorter please", <-directives)
}

func TestWebSocketUnknownFrame(t *testing.T) {
	e := newEnv(t, defaultSequence())

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(e.server.URL), nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = readFrame(t, conn) // connected

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "bogus"}))
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
}

func TestHealthEndpoints(t *testing.T) {
	e := newEnv(t, defaultSequence())

	resp := e.getJSON(t, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = e.getJSON(t, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = e.getJSON(t, "/health/live", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, defaultSequence())
	resp := e.getJSON(t, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
