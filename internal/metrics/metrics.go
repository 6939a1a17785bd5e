package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workforce_runs_started_total",
			Help: "Total number of task runs started",
		},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workforce_runs_completed_total",
			Help: "Total number of task runs reaching a terminal state",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workforce_run_duration_seconds",
			Help:    "Full run duration from start to terminal state",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// Agent turn metrics
	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workforce_agent_turn_duration_seconds",
			Help:    "Single agent turn duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"role"},
	)

	TurnRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workforce_agent_turn_retries_total",
			Help: "Agent turn attempts beyond the first",
		},
		[]string{"role"},
	)

	// Intervention metrics
	Interventions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workforce_human_interventions_total",
			Help: "Human interjections accepted into running tasks",
		},
	)

	// Hub metrics
	HubSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workforce_hub_subscribers",
			Help: "Currently registered task stream subscribers",
		},
	)

	HubEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workforce_hub_events_published_total",
			Help: "Events published to the task event hub",
		},
		[]string{"type"},
	)

	HubEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workforce_hub_events_dropped_total",
			Help: "Events dropped because a subscriber could not keep up",
		},
	)
)
