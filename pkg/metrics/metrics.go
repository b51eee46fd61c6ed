// Package metrics exposes Prometheus collectors for build sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Task outcomes
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeCached = "cached"
)

// Metrics holds the collectors of a project session. A nil *Metrics
// records nothing.
type Metrics struct {
	tasks    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	builds   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cbs",
			Name:      "tasks_total",
			Help:      "Attempted tasks by builder and outcome.",
		}, []string{"builder", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cbs",
			Name:      "task_duration_seconds",
			Help:      "Duration of task build steps.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"builder"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cbs",
			Name:      "builds_total",
			Help:      "Build invocations by result.",
		}, []string{"result"}),
	}
	for _, c := range []prometheus.Collector{m.tasks, m.duration, m.builds} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveTask records one attempted task
func (m *Metrics) ObserveTask(builder, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(builder, outcome).Inc()
	if outcome != OutcomeCached {
		m.duration.WithLabelValues(builder).Observe(d.Seconds())
	}
}

// ObserveBuild records one build invocation
func (m *Metrics) ObserveBuild(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.builds.WithLabelValues(result).Inc()
}
