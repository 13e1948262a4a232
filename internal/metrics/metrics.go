// Package metrics exposes Prometheus instrumentation for the task engine.
package metrics

import (
	"encoding/json"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dotcommander/taskbrew/internal/bus"
	"github.com/dotcommander/taskbrew/internal/models"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	TasksCreated   prometheus.Counter
	TasksClaimed   prometheus.Counter
	TasksCompleted prometheus.Counter
	TasksFailed    prometheus.Counter
	TasksRejected  prometheus.Counter
	TasksCancelled prometheus.Counter
	TasksRetried   prometheus.Counter
	TasksRecovered prometheus.Counter

	GroupsCompleted prometheus.Counter
	ScaleUps        prometheus.Counter
	ScaleDowns      prometheus.Counter

	TaskDuration prometheus.Histogram

	QueueDepth  *prometheus.GaugeVec
	ActiveTasks prometheus.Gauge
}

// New registers all collectors on reg (or the default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TasksCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskbrew_tasks_created_total",
			Help: "Tasks created.",
		}),
		TasksClaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskbrew_tasks_claimed_total",
			Help: "Tasks claimed by agents.",
		}),
		TasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskbrew_tasks_completed_total",
			Help: "Tasks completed successfully.",
		}),
		TasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskbrew_tasks_failed_total",
			Help: "Tasks that reached the failed status.",
		}),
		TasksRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskbrew_tasks_rejected_total",
			Help: "Tasks rejected by reviewers.",
		}),
		TasksCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskbrew_tasks_cancelled_total",
			Help: "Tasks cancelled.",
		}),
		TasksRetried: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskbrew_tasks_retried_total",
			Help: "Terminal tasks returned to the queue.",
		}),
		TasksRecovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskbrew_tasks_recovered_total",
			Help: "Tasks reclaimed by crash or staleness recovery.",
		}),
		GroupsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskbrew_groups_completed_total",
			Help: "Groups whose tasks all reached a terminal status.",
		}),
		ScaleUps: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskbrew_agent_scale_ups_total",
			Help: "Auto-scaler spawn decisions.",
		}),
		ScaleDowns: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskbrew_agent_scale_downs_total",
			Help: "Auto-scaler stop decisions.",
		}),
		TaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskbrew_task_duration_seconds",
			Help:    "Claim-to-completion duration of tasks.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~34m
		}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "taskbrew_queue_depth",
			Help: "Claimable tasks per role.",
		}, []string{"role"}),
		ActiveTasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskbrew_tasks_in_progress",
			Help: "Tasks currently claimed and executing.",
		}),
	}
}

// SetQueueDepth records the current claimable backlog for a role.
func (m *Metrics) SetQueueDepth(role string, n int) {
	m.QueueDepth.WithLabelValues(role).Set(float64(n))
}

// completedDuration extracts the claim-to-completion seconds a completed
// event carries.
func completedDuration(data []byte) (float64, bool) {
	if len(data) == 0 {
		return 0, false
	}
	var payload struct {
		DurationSec string `json:"duration_sec"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.DurationSec == "" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(payload.DurationSec, 64)
	if err != nil {
		return 0, false
	}
	return secs, true
}

// Observe wires the metrics to the event bus. Counters follow lifecycle
// events; the in-progress gauge tracks claim/terminal transitions.
func (m *Metrics) Observe(b *bus.Bus) {
	b.Subscribe("*", func(ev *models.Event) {
		switch ev.Type {
		case models.EventTaskCreated:
			m.TasksCreated.Inc()
		case models.EventTaskClaimed:
			m.TasksClaimed.Inc()
			m.ActiveTasks.Inc()
		case models.EventTaskCompleted:
			m.TasksCompleted.Inc()
			m.ActiveTasks.Dec()
			if secs, ok := completedDuration(ev.Data); ok {
				m.TaskDuration.Observe(secs)
			}
		case models.EventTaskFailed:
			m.TasksFailed.Inc()
		case models.EventTaskRejected:
			m.TasksRejected.Inc()
		case models.EventTaskCancelled:
			m.TasksCancelled.Inc()
		case models.EventTaskRetried:
			m.TasksRetried.Inc()
		case models.EventTaskRecovered:
			m.TasksRecovered.Inc()
		case models.EventGroupCompleted:
			m.GroupsCompleted.Inc()
		case models.EventAgentScaledUp:
			m.ScaleUps.Inc()
		case models.EventAgentScaledDown:
			m.ScaleDowns.Inc()
		}
	})
}
