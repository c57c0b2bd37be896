package task

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics is a container of metrics for a coordinator, grouped under its own
// registry so a single Register/Unregister pair can attach or detach the
// whole set.
type metrics struct {
	reg *prometheus.Registry

	transitionsTotal   *prometheus.CounterVec
	notificationsTotal prometheus.Counter
	failedTasksTotal   prometheus.Counter
	createdTasksTotal  prometheus.Counter

	updateSeconds prometheus.Histogram
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()

	return &metrics{
		reg: reg,

		transitionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "loki_taskcoord_task_transitions_total",
			Help: "Total number of task state transitions, counting transitions into state",
		}, []string{"state"}),
		notificationsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "loki_taskcoord_version_notifications_total",
			Help: "Total number of status/version beacon notifications fired across all tasks",
		}),
		failedTasksTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "loki_taskcoord_failed_tasks_total",
			Help: "Total number of tasks that terminated in the failed state",
		}),
		createdTasksTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "loki_taskcoord_created_tasks_total",
			Help: "Total number of tasks created",
		}),

		updateSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "loki_taskcoord_update_seconds",
			Help: "Number of seconds spent inside a single task update call",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
	}
}

// Register registers metrics to report to reg.
func (m *metrics) Register(reg prometheus.Registerer) error { return reg.Register(m.reg) }

// Unregister unregisters metrics from the provided Registerer.
func (m *metrics) Unregister(reg prometheus.Registerer) { reg.Unregister(m.reg) }
