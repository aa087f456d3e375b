// Package projector folds an application's event log into its materialized view.
//
// Project is pure: it reads nothing but its arguments, so the same event
// prefix always yields the same document.
package projector

import (
	"cmp"
	"encoding/json"
	"slices"

	"labelcheck/internal/application/models"
)

// Project folds events, in sequence order, on top of snapshot. A nil snapshot
// starts from the empty document. The snapshot is never mutated.
func Project(events []models.Event, snapshot *models.Application) *models.Application {
	doc := &models.Application{}
	if snapshot != nil {
		doc = snapshot.Clone()
	}

	ordered := slices.Clone(events)
	slices.SortStableFunc(ordered, func(a, b models.Event) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})

	for _, ev := range ordered {
		apply(doc, ev)
		doc.EventCount++
		doc.LastEventAt = ev.CreatedAt
		doc.UpdatedAt = ev.CreatedAt
		if doc.ID == "" {
			doc.ID = ev.ApplicationID
		}
	}
	if doc.Checks == nil {
		doc.Checks = []models.ComplianceCheck{}
	}
	return doc
}

func apply(doc *models.Application, ev models.Event) {
	switch ev.Type {
	case models.EventApplicationCreated:
		var p models.ApplicationCreatedPayload
		if !decode(ev, &p) {
			return
		}
		doc.ID = ev.ApplicationID
		doc.DocumentID = p.DocumentID
		doc.RegulatoryProfile = p.RegulatoryProfile
		doc.SubmissionType = p.SubmissionType
		doc.BatchID = p.BatchID
		doc.SyncState = models.SyncSynced
		doc.CreatedAt = ev.CreatedAt
		if p.SubmissionType == models.SubmissionBatch {
			doc.Status = models.StatusBatchReceived
		} else {
			doc.Status = models.StatusCaptured
		}
		if !doc.OwnerClaimed && p.ActorID != "" {
			doc.OwnerID = p.ActorID
		}

	case models.EventOwnershipClaimed:
		var p models.OwnershipClaimedPayload
		if !decode(ev, &p) || p.ActorID == "" || doc.OwnerClaimed {
			return
		}
		doc.OwnerID = p.ActorID
		doc.OwnerClaimed = true

	case models.EventScannerQuickCheckRecorded:
		var p models.ScannerQuickCheckRecordedPayload
		if !decode(ev, &p) {
			return
		}
		switch p.Result.Summary {
		case models.SummaryPass:
			doc.Status = models.StatusMatched
		case models.SummaryFail:
			doc.Status = models.StatusRejected
		default:
			doc.Status = models.StatusNeedsReview
		}
		doc.SyncState = models.SyncPendingSync
		result := p.Result.Clone()
		doc.LatestQuickCheck = &result
		doc.Checks = slices.Clone(p.Checks)
		if v := p.Result.Extracted.BrandName; v != "" {
			doc.BrandName = v
		}
		if v := p.Result.Extracted.ClassType; v != "" {
			doc.ClassType = v
		}

	case models.EventSyncMerged:
		var p models.SyncMergedPayload
		if !decode(ev, &p) || !p.SyncState.IsValid() {
			return
		}
		doc.SyncState = p.SyncState

	case models.EventReviewerOverrideRecorded:
		var p models.ReviewerOverrideRecordedPayload
		if !decode(ev, &p) || !p.Status.IsReviewerDecision() {
			return
		}
		doc.Status = p.Status

	case models.EventSyncFailed:
		doc.SyncState = models.SyncFailed

	case models.EventBatchStatusChanged:
		var p models.BatchStatusChangedPayload
		if !decode(ev, &p) || !p.Status.IsBatchStatus() {
			return
		}
		doc.Status = p.Status
	}
}

func decode(ev models.Event, v any) bool {
	if len(ev.Payload) == 0 {
		return false
	}
	return json.Unmarshal(ev.Payload, v) == nil
}
