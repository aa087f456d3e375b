// Package fallback runs best-effort writes and reads against a durable store
// while an in-memory copy stays authoritative for the process lifetime.
package fallback

import (
	"context"
	"errors"
	"log/slog"

	"labelcheck/pkg/platform/circuit"
	"labelcheck/pkg/platform/sentinel"
)

// ErrSkipped is returned by Guard.Do when the breaker refused the call.
var ErrSkipped = errors.New("durable store skipped: circuit open")

// Guard wraps durable-store calls with a circuit breaker and logging.
type Guard struct {
	name    string
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuard(name string, breaker *circuit.Breaker, logger *slog.Logger) *Guard {
	if breaker == nil {
		breaker = circuit.New(name)
	}
	return &Guard{name: name, breaker: breaker, logger: logger}
}

// Do runs fn against the durable store. The returned error wraps
// sentinel.ErrUnavailable when the store failed or was skipped.
func (g *Guard) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !g.breaker.Allow() {
		return errors.Join(sentinel.ErrUnavailable, ErrSkipped)
	}
	err := fn(ctx)
	if err == nil {
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.log(ctx, slog.LevelInfo, "durable store recovered", op, nil)
		}
		return nil
	}
	if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrConflict) {
		// The store answered; these are facts, not outages.
		g.breaker.RecordSuccess()
		return err
	}
	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.log(ctx, slog.LevelWarn, "durable store circuit opened", op, err)
	}
	return errors.Join(sentinel.ErrUnavailable, err)
}

// Write runs a best-effort durable write: failures are logged and swallowed.
func (g *Guard) Write(ctx context.Context, op string, fn func(ctx context.Context) error) {
	if err := g.Do(ctx, op, fn); err != nil && !errors.Is(err, ErrSkipped) {
		g.log(ctx, slog.LevelWarn, "durable write failed, keeping in-memory state", op, err)
	}
}

// Read serves from memory and consults the durable store only for records
// memory has never seen, such as those written before a restart.
func Read[T any](ctx context.Context, g *Guard, op string, memory, durable func(ctx context.Context) (T, error)) (T, error) {
	out, memErr := memory(ctx)
	if memErr == nil || !errors.Is(memErr, sentinel.ErrNotFound) {
		return out, memErr
	}
	err := g.Do(ctx, op, func(ctx context.Context) error {
		v, err := durable(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err == nil {
		return out, nil
	}
	if errors.Is(err, sentinel.ErrUnavailable) {
		return out, memErr
	}
	return out, err
}

func (g *Guard) log(ctx context.Context, level slog.Level, msg, op string, err error) {
	if g.logger == nil {
		return
	}
	args := []any{"store", g.name, "op", op}
	if err != nil {
		args = append(args, "error", err)
	}
	g.logger.Log(ctx, level, msg, args...)
}
