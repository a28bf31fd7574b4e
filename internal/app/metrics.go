package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/specialistvlad/hydroshard/internal/task"
)

// metrics implements executor.Observer on a private registry, so several
// apps can live in one process.
type metrics struct {
	registry *prometheus.Registry

	tasksFinished *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	taskStatus    *prometheus.GaugeVec
	indexEntries  prometheus.Gauge
	failedTiles   prometheus.Gauge
	catalogItems  *prometheus.GaugeVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &metrics{
		registry: reg,
		tasksFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hydroshard_tasks_finished_total",
			Help: "Tasks that reached a final state, by stage and status.",
		}, []string{"kind", "status"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hydroshard_task_duration_seconds",
			Help:    "Wall time of executed tasks.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		}, []string{"kind"}),
		taskStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hydroshard_tasks",
			Help: "Tasks per status at the last progress report.",
		}, []string{"status"}),
		indexEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "hydroshard_routing_index_entries",
			Help: "Tiles in the saved routing index.",
		}),
		failedTiles: f.NewGauge(prometheus.GaugeOpts{
			Name: "hydroshard_failed_tiles",
			Help: "Tiles listed in the failure report.",
		}),
		catalogItems: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hydroshard_catalog_items",
			Help: "Items per catalog collection.",
		}, []string{"collection"}),
	}
}

func (m *metrics) TaskFinished(t *task.Task, status task.Status, elapsed time.Duration) {
	m.tasksFinished.WithLabelValues(t.Kind.String(), status.String()).Inc()
	if status == task.Done || status == task.Failed {
		m.taskDuration.WithLabelValues(t.Kind.String()).Observe(elapsed.Seconds())
	}
}

func (m *metrics) Progress(counts map[task.Status]int) {
	for _, s := range task.Statuses() {
		m.taskStatus.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}
