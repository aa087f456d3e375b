// Package store holds the application repositories: the event log, the
// cached projected rows and the CRDT operation log.
package store

import (
	"context"
	"time"

	"labelcheck/internal/application/models"
)

// Repository is the persistence boundary of the application service.
//
// Lookups of unknown applications return an error wrapping
// sentinel.ErrNotFound. AppendEvents returns sentinel.ErrConflict when a
// sequence number is already taken.
type Repository interface {
	SaveApplication(ctx context.Context, app *models.Application) error
	FindApplication(ctx context.Context, id string) (*models.Application, error)
	ListApplications(ctx context.Context) ([]*models.Application, error)

	AppendEvents(ctx context.Context, events ...models.Event) error
	ListEvents(ctx context.Context, applicationID string) ([]models.Event, error)
	ListEventsByType(ctx context.Context, types []models.EventType, since, until time.Time) ([]models.Event, error)

	// SaveOperations upserts ops into the application's CRDT log. On identity
	// collision the operation that sorts first is kept.
	SaveOperations(ctx context.Context, applicationID string, ops []models.Operation) error
	ListOperations(ctx context.Context, applicationID string) ([]models.Operation, error)
}

func inWindow(t, since, until time.Time) bool {
	if !since.IsZero() && t.Before(since) {
		return false
	}
	if !until.IsZero() && !t.Before(until) {
		return false
	}
	return true
}
