package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for notification fanout.
type Metrics struct {
	Published   *prometheus.CounterVec
	Dropped     prometheus.Counter
	Subscribers prometheus.Gauge
	RelayErrors *prometheus.CounterVec
}

// New registers notification metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labelcheck_notifications_published_total",
			Help: "Notifications published to the bus by type",
		}, []string{"type"}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "labelcheck_notifications_dropped_total",
			Help: "Notifications dropped because a subscriber buffer was full",
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "labelcheck_notification_subscribers",
			Help: "Live notification subscribers",
		}),
		RelayErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labelcheck_notification_relay_errors_total",
			Help: "Failed relay deliveries by sink",
		}, []string{"sink"}),
	}
}

func (m *Metrics) IncPublished(typ string) {
	if m == nil {
		return
	}
	m.Published.WithLabelValues(typ).Inc()
}

func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}

func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}

func (m *Metrics) IncRelayError(sink string) {
	if m == nil {
		return
	}
	m.RelayErrors.WithLabelValues(sink).Inc()
}
