package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"labelcheck/internal/batch/models"
	"labelcheck/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	jobs     map[string]*models.Job
	items    map[string]models.Item
	byBatch  map[string][]string
	attempts map[string][]models.Attempt
}

func NewInMemory() *InMemory {
	return &InMemory{
		jobs:     make(map[string]*models.Job),
		items:    make(map[string]models.Item),
		byBatch:  make(map[string][]string),
		attempts: make(map[string][]models.Attempt),
	}
}

func (s *InMemory) SaveJob(_ context.Context, job *models.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("save job: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *InMemory) FindJob(_ context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, sentinel.ErrNotFound)
	}
	return job.Clone(), nil
}

func (s *InMemory) SaveItems(_ context.Context, items ...models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if it.ID == "" || it.BatchID == "" {
			return fmt.Errorf("save item: missing id")
		}
	}
	for _, it := range items {
		if _, ok := s.items[it.ID]; !ok {
			s.byBatch[it.BatchID] = append(s.byBatch[it.BatchID], it.ID)
		}
		s.items[it.ID] = it.Clone()
	}
	return nil
}

func (s *InMemory) FindItem(_ context.Context, id string) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("batch item %s: %w", id, sentinel.ErrNotFound)
	}
	c := it.Clone()
	return &c, nil
}

// ListItems returns items in index order. Unknown batches are not found so
// a fallback reader can consult the durable store.
func (s *InMemory) ListItems(_ context.Context, batchID string, filter models.ItemFilter) (models.ItemPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[batchID]; !ok {
		return models.ItemPage{}, fmt.Errorf("batch %s: %w", batchID, sentinel.ErrNotFound)
	}
	all := make([]models.Item, 0, len(s.byBatch[batchID]))
	for _, id := range s.byBatch[batchID] {
		it := s.items[id]
		if filter.Status != nil && it.Status != *filter.Status {
			continue
		}
		all = append(all, it.Clone())
	}
	slices.SortFunc(all, func(a, b models.Item) int { return cmp.Compare(a.Index, b.Index) })
	return page(all, filter), nil
}

func page(all []models.Item, filter models.ItemFilter) models.ItemPage {
	out := models.ItemPage{Total: len(all), Items: []models.Item{}}
	if filter.Offset >= len(all) {
		return out
	}
	end := len(all)
	if filter.Limit > 0 {
		end = min(end, filter.Offset+filter.Limit)
	}
	out.Items = all[filter.Offset:end]
	return out
}

func (s *InMemory) AppendAttempt(_ context.Context, attempt models.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts[attempt.BatchItemID] {
		if a.AttemptNo == attempt.AttemptNo || a.ID == attempt.ID {
			return fmt.Errorf("attempt %s/%d: %w", attempt.BatchItemID, attempt.AttemptNo, sentinel.ErrConflict)
		}
	}
	s.attempts[attempt.BatchItemID] = append(s.attempts[attempt.BatchItemID], attempt)
	return nil
}

func (s *InMemory) ListAttempts(_ context.Context, itemID string) ([]models.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.items[itemID]; !ok {
		return nil, fmt.Errorf("batch item %s: %w", itemID, sentinel.ErrNotFound)
	}
	out := slices.Clone(s.attempts[itemID])
	slices.SortFunc(out, func(a, b models.Attempt) int { return cmp.Compare(a.AttemptNo, b.AttemptNo) })
	return out, nil
}
