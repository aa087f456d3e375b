// Package handler streams notifications to HTTP clients as server-sent events.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"labelcheck/internal/notify"
	"labelcheck/pkg/domain"
	dErrors "labelcheck/pkg/domain-errors"
	"labelcheck/pkg/platform/httputil"
	"labelcheck/pkg/requestcontext"
)

const defaultHeartbeat = 15 * time.Second

// Subscriber is the part of the bus the stream needs.
type Subscriber interface {
	Subscribe(filter notify.Filter) *notify.Subscription
}

// AccessChecker gates officer streams scoped to one application.
type AccessChecker interface {
	CanActorAccessApplication(ctx context.Context, id string, actor domain.Actor) (bool, error)
}

type Handler struct {
	bus       Subscriber
	access    AccessChecker
	logger    *slog.Logger
	heartbeat time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

type Option func(*Handler)

// WithHeartbeat sets the keep-alive comment interval.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

func New(bus Subscriber, access AccessChecker, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		bus:       bus,
		access:    access,
		logger:    logger,
		heartbeat: defaultHeartbeat,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Close ends every open stream. Register it with the server's shutdown
// hooks so long-lived streams do not hold up a graceful shutdown.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/notifications", h.HandleStream)
}

// HandleStream handles GET /notifications?applicationId=&batchId=.
// Managers may watch anything; officers must scope the stream to an
// application they can access. Delivery is at-most-once with no replay.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requestcontext.Actor(ctx)
	if !ok || actor.ID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	filter := notify.Filter{
		ApplicationID: r.URL.Query().Get("applicationId"),
		BatchID:       r.URL.Query().Get("batchId"),
	}
	if err := h.authorize(ctx, actor, filter); err != nil {
		httputil.WriteError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}

	sub := h.bus.Subscribe(filter)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.InfoContext(ctx, "notification stream opened",
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", actor.ID,
		"application_id", filter.ApplicationID,
		"batch_id", filter.BatchID,
	)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case n, open := <-sub.C():
			if !open {
				return
			}
			if err := writeEvent(w, n); err != nil {
				h.logger.DebugContext(ctx, "notification stream write failed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) authorize(ctx context.Context, actor domain.Actor, filter notify.Filter) error {
	if actor.IsManager() {
		return nil
	}
	if filter.ApplicationID == "" {
		return dErrors.New(dErrors.CodeForbidden, "officers must scope notifications to an application")
	}
	if h.access == nil {
		return nil
	}
	allowed, err := h.access.CanActorAccessApplication(ctx, filter.ApplicationID, actor)
	if err != nil {
		return err
	}
	if !allowed {
		return dErrors.New(dErrors.CodeForbidden, "actor cannot access this application")
	}
	return nil
}

func writeEvent(w http.ResponseWriter, n notify.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", n.ID, n.Type, body)
	return err
}
