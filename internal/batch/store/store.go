// Package store persists batch jobs, items and the attempt log.
package store

import (
	"context"

	"labelcheck/internal/batch/models"
)

// Repository is the persistence boundary of the batch pipeline.
//
// Lookups of unknown jobs or items return an error wrapping
// sentinel.ErrNotFound. AppendAttempt returns sentinel.ErrConflict when the
// attempt number is already recorded for the item.
type Repository interface {
	SaveJob(ctx context.Context, job *models.Job) error
	FindJob(ctx context.Context, id string) (*models.Job, error)

	// SaveItems upserts items by id.
	SaveItems(ctx context.Context, items ...models.Item) error
	FindItem(ctx context.Context, id string) (*models.Item, error)
	ListItems(ctx context.Context, batchID string, filter models.ItemFilter) (models.ItemPage, error)

	AppendAttempt(ctx context.Context, attempt models.Attempt) error
	ListAttempts(ctx context.Context, itemID string) ([]models.Attempt, error)
}
