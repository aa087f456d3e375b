// Package relay forwards bus notifications to external sinks so processes
// other than this one can observe them. Delivery stays best-effort.
package relay

import (
	"context"
	"log/slog"

	"labelcheck/internal/notify"
	"labelcheck/internal/notify/metrics"
)

// Sink receives relayed notifications.
type Sink interface {
	Name() string
	Send(ctx context.Context, n notify.Notification) error
	Close() error
}

// Relay consumes one bus subscription and writes everything to its sinks.
type Relay struct {
	bus     *notify.Bus
	sinks   []Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func New(bus *notify.Bus, sinks []Sink, opts ...Option) *Relay {
	r := &Relay{bus: bus, sinks: sinks, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run forwards notifications until ctx is done or the bus closes.
// Sink errors are logged and never stop the loop.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.bus.Subscribe(notify.Filter{})
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-sub.C():
			if !ok {
				return nil
			}
			if n.Type == notify.TypeConnected {
				continue
			}
			for _, sink := range r.sinks {
				if err := sink.Send(ctx, n); err != nil {
					r.metrics.IncRelayError(sink.Name())
					r.logger.WarnContext(ctx, "notification relay failed",
						"sink", sink.Name(),
						"type", n.Type,
						"error", err,
					)
				}
			}
		}
	}
}

// Close closes every sink.
func (r *Relay) Close() error {
	var first error
	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
