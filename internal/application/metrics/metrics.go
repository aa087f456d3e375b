package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the application service.
type Metrics struct {
	EventsAppended   *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	CrdtOpsMerged    prometheus.Counter
	SyncFailures     prometheus.Counter
	Claims           *prometheus.CounterVec
}

// New registers application metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsAppended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labelcheck_application_events_appended_total",
			Help: "Events appended to application logs by type",
		}, []string{"type"}),
		OperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labelcheck_application_operation_duration_seconds",
			Help:    "Application service operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		CrdtOpsMerged: f.NewCounter(prometheus.CounterOpts{
			Name: "labelcheck_crdt_operations_received_total",
			Help: "CRDT operations received from clients",
		}),
		SyncFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "labelcheck_crdt_sync_failures_total",
			Help: "CRDT batches that could not be persisted",
		}),
		Claims: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labelcheck_ownership_claims_total",
			Help: "Ownership claims by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncEventAppended(typ string) {
	if m == nil {
		return
	}
	m.EventsAppended.WithLabelValues(typ).Inc()
}

// ObserveOperation records the time since start for operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddCrdtOps(n int) {
	if m == nil {
		return
	}
	m.CrdtOpsMerged.Add(float64(n))
}

func (m *Metrics) IncSyncFailure() {
	if m == nil {
		return
	}
	m.SyncFailures.Inc()
}

func (m *Metrics) IncClaim(result string) {
	if m == nil {
		return
	}
	m.Claims.WithLabelValues(result).Inc()
}
