package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"labelcheck/internal/application/metrics"
	"labelcheck/internal/application/models"
	"labelcheck/internal/application/projector"
	"labelcheck/internal/application/store"
	"labelcheck/internal/notify"
	dErrors "labelcheck/pkg/domain-errors"
	"labelcheck/pkg/domain"
	"labelcheck/pkg/platform/sentinel"
)

// opsFailingStore rejects CRDT persistence while fail is set.
type opsFailingStore struct {
	*store.InMemory
	mu   sync.Mutex
	fail bool
}

func (s *opsFailingStore) SaveOperations(ctx context.Context, id string, ops []models.Operation) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return errors.Join(sentinel.ErrUnavailable, errors.New("connection reset"))
	}
	return s.InMemory.SaveOperations(ctx, id, ops)
}

func (s *opsFailingStore) setFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = v
}

type ServiceSuite struct {
	suite.Suite
	ctx   context.Context
	store *opsFailingStore
	bus   *notify.Bus
	svc   *Service
	clock time.Time
	mu    sync.Mutex
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = &opsFailingStore{InMemory: store.NewInMemory()}
	s.bus = notify.NewBus(notify.WithBufferSize(256))
	s.clock = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.svc = New(s.store, s.bus,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
		WithClock(s.tick),
	)
}

// tick advances the fake clock by one second per call.
func (s *ServiceSuite) tick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *ServiceSuite) create(sub models.SubmissionType, actor string) *models.Application {
	doc, err := s.svc.CreateApplication(s.ctx, CreateRequest{
		Profile:        models.ProfileDistilledSpirits,
		SubmissionType: sub,
		ActorID:        actor,
	})
	s.Require().NoError(err)
	return doc
}

func result(summary models.Summary, latency int64, fallback bool) models.QuickCheckResult {
	return models.QuickCheckResult{
		Summary:      summary,
		Confidence:   0.8,
		LatencyMs:    latency,
		UsedFallback: fallback,
		Extracted:    models.ExtractedFields{BrandName: "Copper Still", ClassType: "Bourbon"},
		Checks: []models.RawCheck{
			{ID: "alcohol_content", Outcome: models.OutcomeNotEvaluable},
			{ID: "brand_name", Outcome: models.OutcomePass},
		},
	}
}

func (s *ServiceSuite) drain(sub *notify.Subscription) []notify.Notification {
	var out []notify.Notification
	for {
		select {
		case n := <-sub.C():
			out = append(out, n)
		default:
			return out
		}
	}
}

func (s *ServiceSuite) TestCreateApplication() {
	s.Run("single without actor", func() {
		doc := s.create(models.SubmissionSingle, "")
		s.Equal(models.StatusCaptured, doc.Status)
		s.Equal(models.SyncSynced, doc.SyncState)
		s.Equal(1, doc.EventCount)
		s.NotEmpty(doc.DocumentID)
		s.Empty(doc.OwnerID)
	})

	s.Run("actor becomes claimed owner", func() {
		doc := s.create(models.SubmissionSingle, "officer-1")
		s.Equal(2, doc.EventCount)
		s.Equal("officer-1", doc.OwnerID)
		s.True(doc.OwnerClaimed)
	})

	s.Run("defaults to single", func() {
		doc, err := s.svc.CreateApplication(s.ctx, CreateRequest{Profile: models.ProfileWine})
		s.Require().NoError(err)
		s.Equal(models.SubmissionSingle, doc.SubmissionType)
	})

	s.Run("rejects unknown profile", func() {
		_, err := s.svc.CreateApplication(s.ctx, CreateRequest{Profile: "cider"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("publishes status change", func() {
		sub := s.bus.Subscribe(notify.Filter{})
		defer sub.Close()
		doc := s.create(models.SubmissionBatch, "")
		got := s.drain(sub)
		s.Require().Len(got, 2)
		s.Equal(notify.TypeConnected, got[0].Type)
		s.Equal(notify.TypeStatusChanged, got[1].Type)
		s.Equal(doc.ID, got[1].ApplicationID)
	})
}

func (s *ServiceSuite) TestBatchRejectThenClientSync() {
	doc := s.create(models.SubmissionBatch, "")
	s.Equal(models.StatusBatchReceived, doc.Status)

	doc, err := s.svc.RecordScannerQuickCheck(s.ctx, doc.ID, result(models.SummaryFail, 120, false), nil)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, doc.Status)
	s.Equal(models.SyncPendingSync, doc.SyncState)

	doc, err = s.svc.MergeClientSync(s.ctx, doc.ID, map[string]any{"syncState": "synced"})
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, doc.Status)
	s.Equal(models.SyncSynced, doc.SyncState)
}

func (s *ServiceSuite) TestRecordScannerQuickCheck() {
	doc := s.create(models.SubmissionSingle, "")

	s.Run("normalizes against the profile", func() {
		got, err := s.svc.RecordScannerQuickCheck(s.ctx, doc.ID, result(models.SummaryPass, 80, false), &models.Expected{BrandName: "Copper Still"})
		s.Require().NoError(err)
		s.Equal(models.StatusMatched, got.Status)
		s.Equal("Copper Still", got.BrandName)
		s.Require().Len(got.Checks, 2)
		s.Equal(models.SeveritySoftFail, got.Checks[0].Severity)
		s.InDelta(0.6, got.Checks[0].Confidence, 1e-9)
		s.Equal(models.SeverityAdvisory, got.Checks[1].Severity)
	})

	s.Run("unknown application is nil", func() {
		got, err := s.svc.RecordScannerQuickCheck(s.ctx, "missing", result(models.SummaryPass, 1, false), nil)
		s.NoError(err)
		s.Nil(got)
	})

	s.Run("cached doc equals projection of the log", func() {
		events, err := s.svc.ListEvents(s.ctx, doc.ID)
		s.Require().NoError(err)
		cached, err := s.svc.GetApplication(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(projector.Project(events, nil), cached)
	})
}

func (s *ServiceSuite) TestMergeClientSync() {
	doc := s.create(models.SubmissionSingle, "")

	s.Run("empty patch is invalid", func() {
		_, err := s.svc.MergeClientSync(s.ctx, doc.ID, map[string]any{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("bad sync state is invalid", func() {
		_, err := s.svc.MergeClientSync(s.ctx, doc.ID, map[string]any{"syncState": "whenever"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.svc.MergeClientSync(s.ctx, doc.ID, map[string]any{"syncState": 3})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("records changed keys", func() {
		got, err := s.svc.MergeClientSync(s.ctx, doc.ID, map[string]any{"notes": "x", "brandName": "y"})
		s.Require().NoError(err)
		s.Equal(models.SyncSynced, got.SyncState)

		events, err := s.svc.ListEvents(s.ctx, doc.ID)
		s.Require().NoError(err)
		last := events[len(events)-1]
		s.Equal(models.EventSyncMerged, last.Type)
		var p models.SyncMergedPayload
		s.Require().NoError(json.Unmarshal(last.Payload, &p))
		s.Equal([]string{"brandName", "notes"}, p.ChangedKeys)
		s.Equal(models.SyncSourcePatch, p.Source)
	})

	s.Run("unknown application is nil", func() {
		got, err := s.svc.MergeClientSync(s.ctx, "missing", map[string]any{"a": 1})
		s.NoError(err)
		s.Nil(got)
	})
}

func (s *ServiceSuite) TestAppendCrdtOps() {
	doc := s.create(models.SubmissionSingle, "officer-1")
	_, err := s.svc.RecordScannerQuickCheck(s.ctx, doc.ID, result(models.SummaryNeedsReview, 50, false), nil)
	s.Require().NoError(err)

	ops := []models.Operation{
		{Sequence: 1, Payload: json.RawMessage(`{"brandName":"A"}`)},
		{Sequence: 2, Payload: json.RawMessage(`{"classType":"B"}`)},
	}

	s.Run("merges, stamps and marks synced", func() {
		sub := s.bus.Subscribe(notify.Filter{ApplicationID: doc.ID})
		defer sub.Close()

		merged, err := s.svc.AppendCrdtOps(s.ctx, doc.ID, "device-1", ops)
		s.Require().NoError(err)
		s.Require().Len(merged, 2)
		for _, op := range merged {
			s.Equal(doc.ID, op.ApplicationID)
			s.Equal("device-1", op.ActorID)
			s.NotEmpty(op.ID)
			s.False(op.CreatedAt.IsZero())
		}

		got, err := s.svc.GetApplication(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(models.SyncSynced, got.SyncState)
		s.Equal(models.StatusNeedsReview, got.Status)

		notes := s.drain(sub)
		s.Require().Len(notes, 2)
		s.Equal(notify.TypeSyncAck, notes[1].Type)
	})

	s.Run("replay keeps cardinality", func() {
		merged, err := s.svc.AppendCrdtOps(s.ctx, doc.ID, "device-1", ops)
		s.Require().NoError(err)
		s.Len(merged, 2)
	})

	s.Run("list after sequence", func() {
		_, err := s.svc.AppendCrdtOps(s.ctx, doc.ID, "device-2", []models.Operation{{Sequence: 3, Payload: json.RawMessage(`{}`)}})
		s.Require().NoError(err)
		after, err := s.svc.ListCrdtOps(s.ctx, doc.ID, 1)
		s.Require().NoError(err)
		s.Len(after, 2)
	})

	s.Run("bad sequence is invalid", func() {
		_, err := s.svc.AppendCrdtOps(s.ctx, doc.ID, "device-1", []models.Operation{{Sequence: 0}})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing actor is invalid", func() {
		_, err := s.svc.AppendCrdtOps(s.ctx, doc.ID, "", ops)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown application is nil", func() {
		got, err := s.svc.AppendCrdtOps(s.ctx, "missing", "device-1", ops)
		s.NoError(err)
		s.Nil(got)

		_, err = s.svc.ListCrdtOps(s.ctx, "missing", 0)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestAppendCrdtOpsPersistenceFailure() {
	doc := s.create(models.SubmissionSingle, "")
	s.store.setFail(true)

	_, err := s.svc.AppendCrdtOps(s.ctx, doc.ID, "device-1", []models.Operation{{Sequence: 1, Payload: json.RawMessage(`{"a":1}`)}})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeSyncFailed))

	got, err := s.svc.GetApplication(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.SyncFailed, got.SyncState)

	events, err := s.svc.ListEvents(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.EventSyncFailed, events[len(events)-1].Type)

	s.store.setFail(false)
	merged, err := s.svc.AppendCrdtOps(s.ctx, doc.ID, "device-1", []models.Operation{{Sequence: 1, Payload: json.RawMessage(`{"a":1}`)}})
	s.Require().NoError(err)
	s.Len(merged, 1)
	got, err = s.svc.GetApplication(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.SyncSynced, got.SyncState)
}

func (s *ServiceSuite) TestClaimOwnership() {
	s.Run("concurrent claims have exactly one winner", func() {
		for range 20 {
			doc := s.create(models.SubmissionSingle, "")
			results := make([]models.ClaimResult, 2)
			var wg sync.WaitGroup
			for i, actor := range []string{"alice", "bob"} {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := s.svc.ClaimApplicationOwnerForActor(s.ctx, doc.ID, actor)
					s.NoError(err)
					results[i] = res
				}()
			}
			wg.Wait()
			s.ElementsMatch([]models.ClaimResult{models.ClaimClaimed, models.ClaimAlreadyOwnedByOther}, results)
		}
	})

	s.Run("re-claim by owner is a no-op", func() {
		doc := s.create(models.SubmissionSingle, "")
		res, err := s.svc.ClaimApplicationOwnerForActor(s.ctx, doc.ID, "alice")
		s.Require().NoError(err)
		s.Equal(models.ClaimClaimed, res)

		res, err = s.svc.ClaimApplicationOwnerForActor(s.ctx, doc.ID, "alice")
		s.Require().NoError(err)
		s.Equal(models.ClaimAlreadyOwnedByYou, res)

		events, err := s.svc.ListEvents(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Len(events, 2)
	})

	s.Run("creator owns the application", func() {
		doc := s.create(models.SubmissionSingle, "carol")
		res, err := s.svc.ClaimApplicationOwnerForActor(s.ctx, doc.ID, "dave")
		s.Require().NoError(err)
		s.Equal(models.ClaimAlreadyOwnedByOther, res)
	})

	s.Run("unknown application", func() {
		res, err := s.svc.ClaimApplicationOwnerForActor(s.ctx, "missing", "alice")
		s.Require().NoError(err)
		s.Equal(models.ClaimApplicationNotFound, res)
	})
}

func (s *ServiceSuite) TestAccessAndOverride() {
	doc := s.create(models.SubmissionSingle, "officer-1")
	manager := domain.Actor{ID: "mgr", Role: domain.RoleManager}
	owner := domain.Actor{ID: "officer-1", Role: domain.RoleOfficer}
	stranger := domain.Actor{ID: "officer-2", Role: domain.RoleOfficer}

	for _, tc := range []struct {
		actor domain.Actor
		want  bool
	}{{manager, true}, {owner, true}, {stranger, false}} {
		ok, err := s.svc.CanActorAccessApplication(s.ctx, doc.ID, tc.actor)
		s.Require().NoError(err)
		s.Equal(tc.want, ok, tc.actor.ID)
	}

	_, err := s.svc.CanActorAccessApplication(s.ctx, "missing", manager)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.svc.RecordReviewerOverride(s.ctx, doc.ID, stranger, models.StatusApproved, "")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.svc.RecordReviewerOverride(s.ctx, doc.ID, manager, models.StatusBatchCompleted, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	got, err := s.svc.RecordReviewerOverride(s.ctx, doc.ID, manager, models.StatusApproved, "label fixed")
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, got.Status)

	got, err = s.svc.RecordReviewerOverride(s.ctx, doc.ID, owner, models.StatusRejected, "changed my mind")
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, got.Status)
}

func (s *ServiceSuite) TestListApplicationsScopesOfficers() {
	mine := s.create(models.SubmissionSingle, "officer-1")
	s.create(models.SubmissionSingle, "officer-2")
	s.create(models.SubmissionSingle, "")

	all, err := s.svc.ListApplications(s.ctx, nil)
	s.Require().NoError(err)
	s.Len(all, 3)

	managed, err := s.svc.ListApplications(s.ctx, &domain.Actor{ID: "m", Role: domain.RoleManager})
	s.Require().NoError(err)
	s.Len(managed, 3)

	owned, err := s.svc.ListApplications(s.ctx, &domain.Actor{ID: "officer-1", Role: domain.RoleOfficer})
	s.Require().NoError(err)
	s.Require().Len(owned, 1)
	s.Equal(mine.ID, owned[0].ID)
}

func (s *ServiceSuite) TestComputeKPIs() {
	start := s.clock
	a := s.create(models.SubmissionSingle, "")
	b := s.create(models.SubmissionSingle, "")
	for i, latency := range []int64{300, 100, 200} {
		target := a.ID
		if i == 2 {
			target = b.ID
		}
		_, err := s.svc.RecordScannerQuickCheck(s.ctx, target, result(models.SummaryPass, latency, i == 0), nil)
		s.Require().NoError(err)
	}
	_, err := s.svc.MergeClientSync(s.ctx, b.ID, map[string]any{"syncState": "synced"})
	s.Require().NoError(err)

	kpis, err := s.svc.ComputeKPIs(s.ctx, start, s.clock.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(3, kpis.QuickChecks)
	s.Equal(int64(200), kpis.LatencyP50Ms)
	s.Equal(int64(300), kpis.LatencyP95Ms)
	s.InDelta(1.0/3.0, kpis.FallbackRate, 1e-9)
	s.InDelta(0.8, kpis.AverageConfidence, 1e-9)
	s.Equal(2, kpis.StatusCounts[models.StatusMatched])
	s.Equal(1, kpis.SyncStateCounts[models.SyncPendingSync])
	s.Equal(1, kpis.SyncStateCounts[models.SyncSynced])

	empty, err := s.svc.ComputeKPIs(s.ctx, s.clock.Add(time.Hour), s.clock.Add(2*time.Hour))
	s.Require().NoError(err)
	s.Zero(empty.QuickChecks)
	s.Empty(empty.StatusCounts)

	_, err = s.svc.ComputeKPIs(s.ctx, s.clock, start)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestConcurrentWritesSerializePerApplication() {
	doc := s.create(models.SubmissionSingle, "")
	var wg sync.WaitGroup
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.RecordScannerQuickCheck(s.ctx, doc.ID, result(models.SummaryPass, 10, false), nil)
			s.NoError(err)
		}()
	}
	wg.Wait()

	events, err := s.svc.ListEvents(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 26)
	for i, ev := range events {
		s.Equal(int64(i+1), ev.Sequence)
	}
	got, err := s.svc.GetApplication(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(26, got.EventCount)
}

func (s *ServiceSuite) TestRecordBatchStatus() {
	doc := s.create(models.SubmissionBatch, "")
	got, err := s.svc.RecordBatchStatus(s.ctx, doc.ID, "batch-1", models.StatusBatchProcessing)
	s.Require().NoError(err)
	s.Equal(models.StatusBatchProcessing, got.Status)

	again, err := s.svc.RecordBatchStatus(s.ctx, doc.ID, "batch-1", models.StatusBatchProcessing)
	s.Require().NoError(err)
	s.Equal(got.EventCount, again.EventCount)

	_, err = s.svc.RecordBatchStatus(s.ctx, doc.ID, "batch-1", models.StatusApproved)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.svc.RecordBatchStatus(s.ctx, "missing", "batch-1", models.StatusBatchCompleted)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
