// Package health exposes liveness and readiness probes for the
// workforce service.
package health

import (
	"context"
	"sync"
	"time"
)

// Checker is a component-level health probe.
type Checker interface {
	// Name returns the unique name of this health check
	Name() string

	// Check performs the health check, returning nil when healthy
	Check(ctx context.Context) error

	// IsCritical returns true if this check's failure should mark the service as not ready
	IsCritical() bool
}

// CheckResult contains the result of a single check.
type CheckResult struct {
	Component string        `json:"component"`
	Healthy   bool          `json:"healthy"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Critical  bool          `json:"critical"`
}

// Status is the aggregate of all registered checks.
type Status struct {
	Healthy    bool                   `json:"healthy"`
	Ready      bool                   `json:"ready"`
	Timestamp  time.Time              `json:"timestamp"`
	Components map[string]CheckResult `json:"components"`
}

const checkTimeout = 5 * time.Second

// Manager runs registered checkers on demand.
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewManager() *Manager {
	return &Manager{checkers: make(map[string]Checker)}
}

func (m *Manager) RegisterChecker(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[c.Name()] = c
}

// Check runs all checkers and aggregates the results. The service is
// unhealthy when any check fails, and not ready when a critical check
// fails.
func (m *Manager) Check(ctx context.Context) Status {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	st := Status{
		Healthy:    true,
		Ready:      true,
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]CheckResult, len(checkers)),
	}

	for _, c := range checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		start := time.Now()
		err := c.Check(cctx)
		cancel()

		res := CheckResult{
			Component: c.Name(),
			Healthy:   err == nil,
			Duration:  time.Since(start),
			Critical:  c.IsCritical(),
		}
		if err != nil {
			res.Error = err.Error()
			st.Healthy = false
			if c.IsCritical() {
				st.Ready = false
			}
		}
		st.Components[c.Name()] = res
	}
	return st
}
