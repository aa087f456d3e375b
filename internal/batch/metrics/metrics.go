package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the batch pipeline.
type Metrics struct {
	JobsStarted   prometheus.Counter
	JobsFinished  *prometheus.CounterVec
	ItemsFinished *prometheus.CounterVec
	Attempts      *prometheus.CounterVec
	ItemDuration  prometheus.Histogram
	ActiveWorkers prometheus.Gauge
}

// New registers batch metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		JobsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "labelcheck_batch_jobs_started_total",
			Help: "Batch jobs accepted",
		}),
		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labelcheck_batch_jobs_finished_total",
			Help: "Batch jobs that reached a terminal status",
		}, []string{"status"}),
		ItemsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labelcheck_batch_items_finished_total",
			Help: "Batch items that reached a terminal status",
		}, []string{"status"}),
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labelcheck_batch_item_attempts_total",
			Help: "Batch item attempts by outcome and error code",
		}, []string{"outcome", "code"}),
		ItemDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "labelcheck_batch_item_duration_seconds",
			Help:    "Time from first attempt to terminal status per item",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveWorkers: f.NewGauge(prometheus.GaugeOpts{
			Name: "labelcheck_batch_active_workers",
			Help: "Batch workers currently running",
		}),
	}
}

func (m *Metrics) IncJobStarted() {
	if m == nil {
		return
	}
	m.JobsStarted.Inc()
}

func (m *Metrics) IncJobFinished(status string) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) IncItemFinished(status string) {
	if m == nil {
		return
	}
	m.ItemsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) IncAttempt(outcome, code string) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(outcome, code).Inc()
}

func (m *Metrics) ObserveItem(seconds float64) {
	if m == nil {
		return
	}
	m.ItemDuration.Observe(seconds)
}

func (m *Metrics) AddWorkers(n int) {
	if m == nil {
		return
	}
	m.ActiveWorkers.Add(float64(n))
}
