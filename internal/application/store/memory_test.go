package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"labelcheck/internal/application/models"
	"labelcheck/pkg/platform/sentinel"
)

var t0 = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

func mustEvent(t *testing.T, appID string, typ models.EventType, seq int64, at time.Time) models.Event {
	t.Helper()
	ev, err := models.NewEvent(appID, typ, map[string]string{}, seq, at)
	require.NoError(t, err)
	return ev
}

func app(id string, events int, updated time.Time) *models.Application {
	return &models.Application{
		ID:         id,
		DocumentID: "doc-" + id,
		Status:     models.StatusCaptured,
		SyncState:  models.SyncSynced,
		Checks:     []models.ComplianceCheck{},
		EventCount: events,
		CreatedAt:  t0,
		UpdatedAt:  updated,
	}
}

type InMemorySuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *InMemorySuite) TestApplications() {
	s.Run("find unknown returns not found", func() {
		_, err := s.store.FindApplication(s.ctx, "missing")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("saved copy is isolated from caller", func() {
		a := app("a", 1, t0)
		s.Require().NoError(s.store.SaveApplication(s.ctx, a))
		a.Status = models.StatusApproved

		got, err := s.store.FindApplication(s.ctx, "a")
		s.Require().NoError(err)
		s.Equal(models.StatusCaptured, got.Status)
	})

	s.Run("list is newest first", func() {
		s.Require().NoError(s.store.SaveApplication(s.ctx, app("b", 1, t0.Add(time.Hour))))
		list, err := s.store.ListApplications(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(list, 2)
		s.Equal("b", list[0].ID)
	})
}

func (s *InMemorySuite) TestEvents() {
	t := s.T()
	s.Require().NoError(s.store.AppendEvents(s.ctx,
		mustEvent(t, "a", models.EventApplicationCreated, 1, t0),
		mustEvent(t, "a", models.EventScannerQuickCheckRecorded, 2, t0.Add(time.Minute)),
	))
	s.Require().NoError(s.store.AppendEvents(s.ctx, mustEvent(t, "b", models.EventScannerQuickCheckRecorded, 1, t0.Add(2*time.Minute))))

	s.Run("duplicate sequence conflicts", func() {
		err := s.store.AppendEvents(s.ctx, mustEvent(t, "a", models.EventSyncMerged, 2, t0))
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("list is ordered by sequence", func() {
		evs, err := s.store.ListEvents(s.ctx, "a")
		s.Require().NoError(err)
		s.Require().Len(evs, 2)
		s.Equal(int64(1), evs[0].Sequence)
		s.Equal(int64(2), evs[1].Sequence)
	})

	s.Run("by type honours half-open window", func() {
		evs, err := s.store.ListEventsByType(s.ctx, []models.EventType{models.EventScannerQuickCheckRecorded}, t0.Add(time.Minute), t0.Add(2*time.Minute))
		s.Require().NoError(err)
		s.Require().Len(evs, 1)
		s.Equal("a", evs[0].ApplicationID)

		all, err := s.store.ListEventsByType(s.ctx, []models.EventType{models.EventScannerQuickCheckRecorded}, time.Time{}, time.Time{})
		s.Require().NoError(err)
		s.Len(all, 2)
	})
}

func TestInMemory_SaveOperationsMerges(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	first := models.Operation{ID: "op-b", ApplicationID: "a", ActorID: "dev", Sequence: 1, CreatedAt: t0.Add(time.Second)}
	earlier := models.Operation{ID: "op-a", ApplicationID: "a", ActorID: "dev", Sequence: 1, CreatedAt: t0}
	second := models.Operation{ID: "op-c", ApplicationID: "a", ActorID: "dev", Sequence: 2, CreatedAt: t0}

	require.NoError(t, store.SaveOperations(ctx, "a", []models.Operation{first, second}))
	require.NoError(t, store.SaveOperations(ctx, "a", []models.Operation{earlier}))

	ops, err := store.ListOperations(ctx, "a")
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "op-a", ops[0].ID)
	assert.Equal(t, "op-c", ops[1].ID)
}
