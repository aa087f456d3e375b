package store

import (
	"context"
	"log/slog"

	"labelcheck/internal/batch/models"
	"labelcheck/pkg/platform/fallback"
)

// Fallback writes to memory first and mirrors to the durable store on a
// best-effort basis. Reads come from memory; the durable store only answers
// for batches this process has not seen.
type Fallback struct {
	memory  Repository
	durable Repository
	guard   *fallback.Guard
}

func NewFallback(memory, durable Repository, guard *fallback.Guard) *Fallback {
	return &Fallback{memory: memory, durable: durable, guard: guard}
}

func NewFallbackWithLogger(memory, durable Repository, logger *slog.Logger) *Fallback {
	return NewFallback(memory, durable, fallback.NewGuard("batches", nil, logger))
}

func (f *Fallback) SaveJob(ctx context.Context, job *models.Job) error {
	if err := f.memory.SaveJob(ctx, job); err != nil {
		return err
	}
	f.guard.Write(ctx, "save_job", func(ctx context.Context) error {
		return f.durable.SaveJob(ctx, job)
	})
	return nil
}

func (f *Fallback) FindJob(ctx context.Context, id string) (*models.Job, error) {
	return fallback.Read(ctx, f.guard, "find_job",
		func(ctx context.Context) (*models.Job, error) { return f.memory.FindJob(ctx, id) },
		func(ctx context.Context) (*models.Job, error) { return f.durable.FindJob(ctx, id) },
	)
}

func (f *Fallback) SaveItems(ctx context.Context, items ...models.Item) error {
	if err := f.memory.SaveItems(ctx, items...); err != nil {
		return err
	}
	f.guard.Write(ctx, "save_items", func(ctx context.Context) error {
		return f.durable.SaveItems(ctx, items...)
	})
	return nil
}

func (f *Fallback) FindItem(ctx context.Context, id string) (*models.Item, error) {
	return fallback.Read(ctx, f.guard, "find_item",
		func(ctx context.Context) (*models.Item, error) { return f.memory.FindItem(ctx, id) },
		func(ctx context.Context) (*models.Item, error) { return f.durable.FindItem(ctx, id) },
	)
}

func (f *Fallback) ListItems(ctx context.Context, batchID string, filter models.ItemFilter) (models.ItemPage, error) {
	return fallback.Read(ctx, f.guard, "list_items",
		func(ctx context.Context) (models.ItemPage, error) { return f.memory.ListItems(ctx, batchID, filter) },
		func(ctx context.Context) (models.ItemPage, error) { return f.durable.ListItems(ctx, batchID, filter) },
	)
}

func (f *Fallback) AppendAttempt(ctx context.Context, attempt models.Attempt) error {
	if err := f.memory.AppendAttempt(ctx, attempt); err != nil {
		return err
	}
	f.guard.Write(ctx, "append_attempt", func(ctx context.Context) error {
		return f.durable.AppendAttempt(ctx, attempt)
	})
	return nil
}

func (f *Fallback) ListAttempts(ctx context.Context, itemID string) ([]models.Attempt, error) {
	return fallback.Read(ctx, f.guard, "list_attempts",
		func(ctx context.Context) ([]models.Attempt, error) { return f.memory.ListAttempts(ctx, itemID) },
		func(ctx context.Context) ([]models.Attempt, error) { return f.durable.ListAttempts(ctx, itemID) },
	)
}
