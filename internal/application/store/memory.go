package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"labelcheck/internal/application/crdt"
	"labelcheck/internal/application/models"
	"labelcheck/pkg/platform/sentinel"
)

// InMemory is a process-local Repository. It backs tests and serves as the
// authoritative copy behind Fallback.
type InMemory struct {
	mu     sync.RWMutex
	apps   map[string]*models.Application
	events map[string][]models.Event
	ops    map[string][]models.Operation
}

func NewInMemory() *InMemory {
	return &InMemory{
		apps:   make(map[string]*models.Application),
		events: make(map[string][]models.Event),
		ops:    make(map[string][]models.Operation),
	}
}

func (s *InMemory) SaveApplication(_ context.Context, app *models.Application) error {
	if app == nil || app.ID == "" {
		return fmt.Errorf("save application: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *InMemory) FindApplication(_ context.Context, id string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, fmt.Errorf("application %s: %w", id, sentinel.ErrNotFound)
	}
	return app.Clone(), nil
}

func (s *InMemory) ListApplications(_ context.Context) ([]*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Application, 0, len(s.apps))
	for _, app := range s.apps {
		out = append(out, app.Clone())
	}
	sortApplications(out)
	return out, nil
}

func (s *InMemory) AppendEvents(_ context.Context, events ...models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		for _, existing := range s.events[ev.ApplicationID] {
			if existing.Sequence == ev.Sequence || existing.ID == ev.ID {
				return fmt.Errorf("event %s/%d: %w", ev.ApplicationID, ev.Sequence, sentinel.ErrConflict)
			}
		}
	}
	for _, ev := range events {
		s.events[ev.ApplicationID] = append(s.events[ev.ApplicationID], ev)
	}
	return nil
}

func (s *InMemory) ListEvents(_ context.Context, applicationID string) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.events[applicationID])
	sortEvents(out)
	return out, nil
}

func (s *InMemory) ListEventsByType(_ context.Context, types []models.EventType, since, until time.Time) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Event
	for _, evs := range s.events {
		for _, ev := range evs {
			if slices.Contains(types, ev.Type) && inWindow(ev.CreatedAt, since, until) {
				out = append(out, ev)
			}
		}
	}
	sortEventsByTime(out)
	return out, nil
}

func (s *InMemory) SaveOperations(_ context.Context, applicationID string, ops []models.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[applicationID] = crdt.Merge(s.ops[applicationID], ops)
	return nil
}

func (s *InMemory) ListOperations(_ context.Context, applicationID string) ([]models.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.ops[applicationID]), nil
}

func sortApplications(apps []*models.Application) {
	slices.SortFunc(apps, func(a, b *models.Application) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func sortEvents(events []models.Event) {
	slices.SortFunc(events, func(a, b models.Event) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})
}

func sortEventsByTime(events []models.Event) {
	slices.SortFunc(events, func(a, b models.Event) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
