package projector

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelcheck/internal/application/models"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type logBuilder struct {
	t      *testing.T
	appID  string
	events []models.Event
}

func newLog(t *testing.T) *logBuilder {
	return &logBuilder{t: t, appID: "app-1"}
}

func (b *logBuilder) add(typ models.EventType, payload any) *logBuilder {
	b.t.Helper()
	seq := int64(len(b.events) + 1)
	ev, err := models.NewEvent(b.appID, typ, payload, seq, epoch.Add(time.Duration(seq)*time.Second))
	require.NoError(b.t, err)
	b.events = append(b.events, ev)
	return b
}

func (b *logBuilder) created(sub models.SubmissionType, actor string) *logBuilder {
	return b.add(models.EventApplicationCreated, models.ApplicationCreatedPayload{
		DocumentID:        "doc-1",
		RegulatoryProfile: models.ProfileWine,
		SubmissionType:    sub,
		ActorID:           actor,
	})
}

func (b *logBuilder) quickCheck(summary models.Summary) *logBuilder {
	return b.add(models.EventScannerQuickCheckRecorded, models.ScannerQuickCheckRecordedPayload{
		Result: models.QuickCheckResult{
			Summary:    summary,
			Confidence: 0.8,
			Extracted:  models.ExtractedFields{BrandName: "Old Tom", ClassType: "Gin"},
		},
		Checks: []models.ComplianceCheck{{ID: "brand_name", Outcome: models.OutcomePass, Severity: models.SeverityAdvisory}},
	})
}

func TestProject_SeedsBySubmissionType(t *testing.T) {
	single := Project(newLog(t).created(models.SubmissionSingle, "").events, nil)
	assert.Equal(t, models.StatusCaptured, single.Status)
	assert.Equal(t, models.SyncSynced, single.SyncState)
	assert.Equal(t, "app-1", single.ID)
	assert.Equal(t, 1, single.EventCount)

	batch := Project(newLog(t).created(models.SubmissionBatch, "").events, nil)
	assert.Equal(t, models.StatusBatchReceived, batch.Status)
}

func TestProject_QuickCheckSummaries(t *testing.T) {
	cases := map[models.Summary]models.Status{
		models.SummaryPass:        models.StatusMatched,
		models.SummaryFail:        models.StatusRejected,
		models.SummaryNeedsReview: models.StatusNeedsReview,
		"unexpected":              models.StatusNeedsReview,
	}
	for summary, want := range cases {
		t.Run(string(summary), func(t *testing.T) {
			doc := Project(newLog(t).created(models.SubmissionSingle, "").quickCheck(summary).events, nil)
			assert.Equal(t, want, doc.Status)
			assert.Equal(t, models.SyncPendingSync, doc.SyncState)
			require.NotNil(t, doc.LatestQuickCheck)
			assert.Equal(t, "Old Tom", doc.BrandName)
			assert.Equal(t, "Gin", doc.ClassType)
			assert.Len(t, doc.Checks, 1)
		})
	}
}

func TestProject_BatchRejectThenSync(t *testing.T) {
	b := newLog(t).created(models.SubmissionBatch, "").quickCheck(models.SummaryFail)
	doc := Project(b.events, nil)
	assert.Equal(t, models.StatusRejected, doc.Status)
	assert.Equal(t, models.SyncPendingSync, doc.SyncState)

	b.add(models.EventSyncMerged, models.SyncMergedPayload{ChangedKeys: []string{"syncState"}, SyncState: models.SyncSynced, Source: models.SyncSourcePatch})
	doc = Project(b.events, nil)
	assert.Equal(t, models.StatusRejected, doc.Status)
	assert.Equal(t, models.SyncSynced, doc.SyncState)
}

func TestProject_ReviewerOverrideAllowsRedecision(t *testing.T) {
	b := newLog(t).created(models.SubmissionSingle, "").quickCheck(models.SummaryFail)
	b.add(models.EventReviewerOverrideRecorded, models.ReviewerOverrideRecordedPayload{Status: models.StatusApproved, ReviewerID: "mgr"})
	assert.Equal(t, models.StatusApproved, Project(b.events, nil).Status)

	b.add(models.EventReviewerOverrideRecorded, models.ReviewerOverrideRecordedPayload{Status: models.StatusRejected, ReviewerID: "mgr"})
	assert.Equal(t, models.StatusRejected, Project(b.events, nil).Status)

	b.add(models.EventReviewerOverrideRecorded, models.ReviewerOverrideRecordedPayload{Status: models.StatusBatchCompleted, ReviewerID: "mgr"})
	assert.Equal(t, models.StatusRejected, Project(b.events, nil).Status)
}

func TestProject_Ownership(t *testing.T) {
	t.Run("creator is provisional owner", func(t *testing.T) {
		doc := Project(newLog(t).created(models.SubmissionSingle, "alice").events, nil)
		assert.Equal(t, "alice", doc.OwnerID)
		assert.False(t, doc.OwnerClaimed)
	})

	t.Run("first claim overrides creator then sticks", func(t *testing.T) {
		b := newLog(t).created(models.SubmissionSingle, "alice")
		b.add(models.EventOwnershipClaimed, models.OwnershipClaimedPayload{ActorID: "bob"})
		b.add(models.EventOwnershipClaimed, models.OwnershipClaimedPayload{ActorID: "carol"})
		doc := Project(b.events, nil)
		assert.Equal(t, "bob", doc.OwnerID)
		assert.True(t, doc.OwnerClaimed)
	})
}

func TestProject_UnknownAndMalformedAreCountedNoOps(t *testing.T) {
	b := newLog(t).created(models.SubmissionSingle, "")
	b.add("SomethingFromTheFuture", map[string]string{"x": "y"})
	b.events = append(b.events, models.Event{
		ID: "bad", ApplicationID: "app-1", Type: models.EventSyncMerged,
		Payload: json.RawMessage(`{not json`), Sequence: 3, CreatedAt: epoch.Add(3 * time.Second),
	})
	doc := Project(b.events, nil)
	assert.Equal(t, models.StatusCaptured, doc.Status)
	assert.Equal(t, models.SyncSynced, doc.SyncState)
	assert.Equal(t, 3, doc.EventCount)
	assert.Equal(t, epoch.Add(3*time.Second), doc.LastEventAt)
}

func TestProject_SyncFailedAndBatchStatus(t *testing.T) {
	b := newLog(t).created(models.SubmissionBatch, "")
	b.add(models.EventBatchStatusChanged, models.BatchStatusChangedPayload{Status: models.StatusBatchProcessing, BatchID: "b1"})
	b.add(models.EventSyncFailed, models.SyncFailedPayload{Reason: "store down"})
	doc := Project(b.events, nil)
	assert.Equal(t, models.StatusBatchProcessing, doc.Status)
	assert.Equal(t, models.SyncFailed, doc.SyncState)

	b.add(models.EventBatchStatusChanged, models.BatchStatusChangedPayload{Status: models.StatusApproved, BatchID: "b1"})
	assert.Equal(t, models.StatusBatchProcessing, Project(b.events, nil).Status)
}

func TestProject_Deterministic(t *testing.T) {
	b := newLog(t).created(models.SubmissionSingle, "alice").quickCheck(models.SummaryNeedsReview)
	b.add(models.EventOwnershipClaimed, models.OwnershipClaimedPayload{ActorID: "bob"})
	b.add(models.EventSyncMerged, models.SyncMergedPayload{SyncState: models.SyncSynced, Source: models.SyncSourceCRDT})

	first := Project(b.events, nil)
	time.Sleep(2 * time.Millisecond)
	second := Project(b.events, nil)
	assert.Equal(t, first, second)

	shuffled := []models.Event{b.events[3], b.events[0], b.events[2], b.events[1]}
	assert.Equal(t, first, Project(shuffled, nil))
}

func TestProject_FoldsOnTopOfSnapshot(t *testing.T) {
	b := newLog(t).created(models.SubmissionSingle, "").quickCheck(models.SummaryPass)
	full := Project(b.events, nil)

	snapshot := Project(b.events[:1], nil)
	before := *snapshot
	resumed := Project(b.events[1:], snapshot)

	assert.Equal(t, full, resumed)
	assert.Equal(t, 2, resumed.EventCount)
	assert.Equal(t, before.Status, snapshot.Status, "snapshot must not be mutated")
}
