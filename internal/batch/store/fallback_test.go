package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelcheck/internal/batch/models"
	"labelcheck/pkg/platform/circuit"
	"labelcheck/pkg/platform/fallback"
	"labelcheck/pkg/platform/sentinel"
)

var errStoreDown = errors.New("connection refused")

// flakyRepo is an InMemory whose calls fail while down is set.
type flakyRepo struct {
	*InMemory
	down atomic.Bool
}

func newFlaky() *flakyRepo { return &flakyRepo{InMemory: NewInMemory()} }

func (r *flakyRepo) check() error {
	if r.down.Load() {
		return errStoreDown
	}
	return nil
}

func (r *flakyRepo) SaveJob(ctx context.Context, j *models.Job) error {
	if err := r.check(); err != nil {
		return err
	}
	return r.InMemory.SaveJob(ctx, j)
}

func (r *flakyRepo) FindJob(ctx context.Context, id string) (*models.Job, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.InMemory.FindJob(ctx, id)
}

func (r *flakyRepo) SaveItems(ctx context.Context, items ...models.Item) error {
	if err := r.check(); err != nil {
		return err
	}
	return r.InMemory.SaveItems(ctx, items...)
}

func (r *flakyRepo) ListItems(ctx context.Context, batchID string, filter models.ItemFilter) (models.ItemPage, error) {
	if err := r.check(); err != nil {
		return models.ItemPage{}, err
	}
	return r.InMemory.ListItems(ctx, batchID, filter)
}

func (r *flakyRepo) AppendAttempt(ctx context.Context, a models.Attempt) error {
	if err := r.check(); err != nil {
		return err
	}
	return r.InMemory.AppendAttempt(ctx, a)
}

func newTestFallback() (*Fallback, *InMemory, *flakyRepo) {
	mem := NewInMemory()
	durable := newFlaky()
	guard := fallback.NewGuard("test", circuit.New("test", circuit.WithFailureThreshold(100)), nil)
	return NewFallback(mem, durable, guard), mem, durable
}

func TestFallbackWritesSurviveDurableOutage(t *testing.T) {
	ctx := context.Background()
	f, mem, durable := newTestFallback()
	durable.down.Store(true)

	require.NoError(t, f.SaveJob(ctx, job("b1")))
	require.NoError(t, f.SaveItems(ctx, items("b1", 2)...))
	require.NoError(t, f.AppendAttempt(ctx, models.Attempt{ID: "a1", BatchItemID: "b1-item-0", AttemptNo: 1}))

	got, err := f.FindJob(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", got.ID)

	page, err := f.ListItems(ctx, "b1", models.ItemFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	_, err = mem.FindJob(ctx, "b1")
	require.NoError(t, err)
	durable.down.Store(false)
	_, err = durable.FindJob(ctx, "b1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestFallbackReadsDurableOnMemoryMiss(t *testing.T) {
	ctx := context.Background()
	f, _, durable := newTestFallback()
	require.NoError(t, durable.InMemory.SaveJob(ctx, job("old")))
	require.NoError(t, durable.InMemory.SaveItems(ctx, items("old", 3)...))

	got, err := f.FindJob(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "old", got.ID)

	page, err := f.ListItems(ctx, "old", models.ItemFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)

	durable.down.Store(true)
	_, err = f.FindJob(ctx, "old")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestFallbackMirrorsWrites(t *testing.T) {
	ctx := context.Background()
	f, _, durable := newTestFallback()

	require.NoError(t, f.SaveJob(ctx, job("b1")))
	require.NoError(t, f.SaveItems(ctx, items("b1", 1)...))

	got, err := durable.FindJob(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.JobReceived, got.Status)
	it, err := durable.FindItem(ctx, "b1-item-0")
	require.NoError(t, err)
	assert.Equal(t, models.ItemQueued, it.Status)
}

func TestFallbackMemoryConflictIsReturned(t *testing.T) {
	ctx := context.Background()
	f, _, _ := newTestFallback()
	require.NoError(t, f.SaveJob(ctx, job("b1")))
	require.NoError(t, f.SaveItems(ctx, items("b1", 1)...))
	a := models.Attempt{ID: "a1", BatchItemID: "b1-item-0", AttemptNo: 1}
	require.NoError(t, f.AppendAttempt(ctx, a))

	a.ID = "a2"
	assert.ErrorIs(t, f.AppendAttempt(ctx, a), sentinel.ErrConflict)
}
