package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"labelcheck/internal/application/crdt"
	"labelcheck/internal/application/models"
	"labelcheck/pkg/platform/fallback"
	"labelcheck/pkg/platform/sentinel"
)

// Fallback keeps an in-memory Repository authoritative for the process and
// mirrors writes to a durable one on a best-effort basis. Durable failures
// are logged and swallowed, except for CRDT operations which must persist.
type Fallback struct {
	memory  Repository
	durable Repository
	guard   *fallback.Guard
}

func NewFallback(memory, durable Repository, guard *fallback.Guard) *Fallback {
	return &Fallback{memory: memory, durable: durable, guard: guard}
}

// NewFallbackWithLogger builds a Fallback guarded by a default breaker.
func NewFallbackWithLogger(memory, durable Repository, logger *slog.Logger) *Fallback {
	return NewFallback(memory, durable, fallback.NewGuard("applications", nil, logger))
}

func (f *Fallback) SaveApplication(ctx context.Context, app *models.Application) error {
	if err := f.memory.SaveApplication(ctx, app); err != nil {
		return err
	}
	f.guard.Write(ctx, "save_application", func(ctx context.Context) error {
		return f.durable.SaveApplication(ctx, app)
	})
	return nil
}

// FindApplication returns whichever copy has seen more events; memory wins ties.
func (f *Fallback) FindApplication(ctx context.Context, id string) (*models.Application, error) {
	mem, memErr := f.memory.FindApplication(ctx, id)
	if memErr != nil && !errors.Is(memErr, sentinel.ErrNotFound) {
		return nil, memErr
	}
	var durable *models.Application
	err := f.guard.Do(ctx, "find_application", func(ctx context.Context) error {
		var err error
		durable, err = f.durable.FindApplication(ctx, id)
		return err
	})
	switch {
	case err == nil && mem == nil:
		return durable, nil
	case err == nil && durable.EventCount > mem.EventCount:
		return durable, nil
	case mem != nil:
		return mem, nil
	case errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrUnavailable):
		return nil, memErr
	}
	return nil, err
}

func (f *Fallback) ListApplications(ctx context.Context) ([]*models.Application, error) {
	mem, err := f.memory.ListApplications(ctx)
	if err != nil {
		return nil, err
	}
	var durable []*models.Application
	if err := f.guard.Do(ctx, "list_applications", func(ctx context.Context) error {
		var err error
		durable, err = f.durable.ListApplications(ctx)
		return err
	}); err != nil {
		return mem, nil
	}

	byID := make(map[string]*models.Application, len(durable)+len(mem))
	for _, app := range durable {
		byID[app.ID] = app
	}
	for _, app := range mem {
		if cur, ok := byID[app.ID]; !ok || app.EventCount >= cur.EventCount {
			byID[app.ID] = app
		}
	}
	out := make([]*models.Application, 0, len(byID))
	for _, app := range byID {
		out = append(out, app)
	}
	sortApplications(out)
	return out, nil
}

func (f *Fallback) AppendEvents(ctx context.Context, events ...models.Event) error {
	if err := f.memory.AppendEvents(ctx, events...); err != nil {
		return err
	}
	f.guard.Write(ctx, "append_events", func(ctx context.Context) error {
		return f.durable.AppendEvents(ctx, events...)
	})
	return nil
}

// ListEvents merges both logs by sequence. Memory wins on a shared sequence
// since durable appends may have been dropped while the store was down.
func (f *Fallback) ListEvents(ctx context.Context, applicationID string) ([]models.Event, error) {
	mem, err := f.memory.ListEvents(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	var durable []models.Event
	if err := f.guard.Do(ctx, "list_events", func(ctx context.Context) error {
		var err error
		durable, err = f.durable.ListEvents(ctx, applicationID)
		return err
	}); err != nil {
		return mem, nil
	}
	return unionEvents(durable, mem, func(ev models.Event) any { return ev.Sequence }, sortEvents), nil
}

func (f *Fallback) ListEventsByType(ctx context.Context, types []models.EventType, since, until time.Time) ([]models.Event, error) {
	mem, err := f.memory.ListEventsByType(ctx, types, since, until)
	if err != nil {
		return nil, err
	}
	var durable []models.Event
	if err := f.guard.Do(ctx, "list_events_by_type", func(ctx context.Context) error {
		var err error
		durable, err = f.durable.ListEventsByType(ctx, types, since, until)
		return err
	}); err != nil {
		return mem, nil
	}
	return unionEvents(durable, mem, func(ev models.Event) any { return ev.ID }, sortEventsByTime), nil
}

// SaveOperations persists to the durable store first; only then is the
// memory copy updated. Any durable failure is returned wrapping
// sentinel.ErrUnavailable.
func (f *Fallback) SaveOperations(ctx context.Context, applicationID string, ops []models.Operation) error {
	err := f.guard.Do(ctx, "save_operations", func(ctx context.Context) error {
		return f.durable.SaveOperations(ctx, applicationID, ops)
	})
	if err != nil {
		return fmt.Errorf("persist crdt operations: %w", err)
	}
	return f.memory.SaveOperations(ctx, applicationID, ops)
}

func (f *Fallback) ListOperations(ctx context.Context, applicationID string) ([]models.Operation, error) {
	mem, err := f.memory.ListOperations(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	var durable []models.Operation
	if err := f.guard.Do(ctx, "list_operations", func(ctx context.Context) error {
		var err error
		durable, err = f.durable.ListOperations(ctx, applicationID)
		return err
	}); err != nil {
		return mem, nil
	}
	return crdt.Merge(durable, mem), nil
}

func unionEvents(durable, mem []models.Event, keyOf func(models.Event) any, sortFn func([]models.Event)) []models.Event {
	seen := make(map[any]int, len(durable)+len(mem))
	out := make([]models.Event, 0, len(durable)+len(mem))
	for _, ev := range durable {
		seen[keyOf(ev)] = len(out)
		out = append(out, ev)
	}
	for _, ev := range mem {
		if i, ok := seen[keyOf(ev)]; ok {
			out[i] = ev
			continue
		}
		seen[keyOf(ev)] = len(out)
		out = append(out, ev)
	}
	sortFn(out)
	return out
}
