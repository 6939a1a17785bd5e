package streaming

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Aut0Matee/AIDigitalWorkforce/internal/metrics"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/models"
)

// EventType enumerates the events fanned out per task.
type EventType string

const (
	EventTaskStarted       EventType = "task_started"
	EventAgentMessage      EventType = "agent_message"
	EventTaskCompleted     EventType = "task_completed"
	EventHumanIntervention EventType = "human_intervention"
	EventError             EventType = "error"
)

// Event is one entry in a task's live stream. Seq is assigned at publish
// time and is strictly increasing per task.
type Event struct {
	TaskID      string           `json:"task_id"`
	Type        EventType        `json:"type"`
	AgentRole   models.AgentRole `json:"agent_role,omitempty"`
	Message     string           `json:"message,omitempty"`
	Deliverable string           `json:"deliverable,omitempty"`
	Error       string           `json:"error,omitempty"`
	Task        *models.Task     `json:"task,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	Seq         uint64           `json:"seq"`
}

// Marshal returns the JSON encoding for transport or logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Subscription is the handle returned by Subscribe. The channel is closed
// by Unsubscribe or CloseTask; callers must drain it.
type Subscription struct {
	TaskID string
	C      chan Event
}

// Hub provides in-memory, task-scoped pub/sub for live observers.
// Publishing never blocks: a subscriber that cannot keep up loses events
// rather than stalling agent progress.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{}
	// per-task ring buffer for replay after reconnect
	history  map[string]*ring
	capacity int
}

// NewHub creates a hub whose per-task replay rings hold capacity events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		subscribers: make(map[string]map[*Subscription]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe registers an observer for taskID events.
func (h *Hub) Subscribe(taskID string, buffer int) *Subscription {
	sub := &Subscription{TaskID: taskID, C: make(chan Event, buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subscribers[taskID]
	if subs == nil {
		subs = make(map[*Subscription]struct{})
		h.subscribers[taskID] = subs
	}
	subs[sub] = struct{}{}
	metrics.HubSubscribers.Inc()
	return sub
}

// Unsubscribe removes and closes the subscription. Idempotent.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subscribers[sub.TaskID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.C)
	metrics.HubSubscribers.Dec()
	if len(subs) == 0 {
		delete(h.subscribers, sub.TaskID)
	}
}

// Publish delivers evt to every current subscriber of evt.TaskID.
// Publishing to a task with no subscribers is a no-op apart from the
// replay ring. Delivery order per subscriber matches publish order.
func (h *Hub) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	h.mu.Lock()
	rg := h.history[evt.TaskID]
	if rg == nil {
		rg = newRing(h.capacity)
		h.history[evt.TaskID] = rg
	}
	rg.nextSeq++
	evt.Seq = rg.nextSeq
	rg.push(evt)
	// sends are non-blocking, so they stay under the lock; this keeps
	// Publish safe against a concurrent Unsubscribe closing a channel
	for sub := range h.subscribers[evt.TaskID] {
		select {
		case sub.C <- evt:
		default:
			// slow observer: drop instead of stalling the run
			metrics.HubEventsDropped.Inc()
		}
	}
	h.mu.Unlock()

	metrics.HubEventsPublished.WithLabelValues(string(evt.Type)).Inc()
}

// ReplaySince returns retained events with Seq > since, oldest first.
func (h *Hub) ReplaySince(taskID string, since uint64) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rg := h.history[taskID]
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// CloseTask tears down all subscriptions and history for a deleted task.
func (h *Hub) CloseTask(taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers[taskID] {
		close(sub.C)
		metrics.HubSubscribers.Dec()
	}
	delete(h.subscribers, taskID)
	delete(h.history, taskID)
}

// SubscriberCount reports current observers of a task.
func (h *Hub) SubscriberCount(taskID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[taskID])
}

// ring is a fixed-capacity ring buffer of events.
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
