package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer counts finished task runs.
type Observer interface {
	ObserveJob(task string, err error)
}

// Metrics exposes Prometheus collectors for background tasks.
type Metrics struct {
	observer    Observer
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

// NewMetrics registers the task collectors against registerer. Run counts are
// forwarded to observer when it is set.
func NewMetrics(registerer prometheus.Registerer, observer Observer) *Metrics {
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_job_duration_seconds",
		Help:    "Duration in seconds of background task executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_job_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run per task.",
	}, []string{"task"})
	if registerer != nil {
		registerer.MustRegister(duration, lastSuccess)
	}
	return &Metrics{observer: observer, duration: duration, lastSuccess: lastSuccess}
}

// Tracker provides lifecycle instrumentation for a single task run.
type Tracker struct {
	metrics *Metrics
	task    string
	start   time.Time
}

// Track starts a tracker for task.
func (m *Metrics) Track(task string) *Tracker {
	return &Tracker{metrics: m, task: task, start: time.Now()}
}

// End records duration and outcome and returns err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.task == "" {
		return err
	}
	end := time.Now()
	t.metrics.duration.WithLabelValues(t.task).Observe(end.Sub(t.start).Seconds())
	if err == nil {
		t.metrics.lastSuccess.WithLabelValues(t.task).Set(float64(end.Unix()))
	}
	if t.metrics.observer != nil {
		t.metrics.observer.ObserveJob(t.task, err)
	}
	return err
}
