package models

import (
	"encoding/json"
	"time"
)

// RegulatoryProfile selects the rule table a label is checked against.
type RegulatoryProfile string

const (
	ProfileDistilledSpirits RegulatoryProfile = "distilled_spirits"
	ProfileWine             RegulatoryProfile = "wine"
	ProfileMaltBeverage     RegulatoryProfile = "malt_beverage"
)

func (p RegulatoryProfile) IsValid() bool {
	switch p {
	case ProfileDistilledSpirits, ProfileWine, ProfileMaltBeverage:
		return true
	}
	return false
}

// SubmissionType tells the projector which branch of the state machine to seed.
type SubmissionType string

const (
	SubmissionSingle SubmissionType = "single"
	SubmissionBatch  SubmissionType = "batch"
)

func (t SubmissionType) IsValid() bool {
	return t == SubmissionSingle || t == SubmissionBatch
}

// Status is the application lifecycle position.
//
// Single submissions: captured -> scanned -> matched|rejected|needs_review -> approved|rejected.
// Batch submissions: batch_received -> batch_processing -> batch_completed|batch_partially_failed.
type Status string

const (
	StatusCaptured    Status = "captured"
	StatusScanned     Status = "scanned"
	StatusMatched     Status = "matched"
	StatusRejected    Status = "rejected"
	StatusNeedsReview Status = "needs_review"
	StatusApproved    Status = "approved"

	StatusBatchReceived        Status = "batch_received"
	StatusBatchProcessing      Status = "batch_processing"
	StatusBatchCompleted       Status = "batch_completed"
	StatusBatchPartiallyFailed Status = "batch_partially_failed"
)

// IsReviewerDecision reports whether a reviewer override may set this status.
func (s Status) IsReviewerDecision() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusNeedsReview
}

// IsBatchStatus reports whether s belongs to the batch branch.
func (s Status) IsBatchStatus() bool {
	switch s {
	case StatusBatchReceived, StatusBatchProcessing, StatusBatchCompleted, StatusBatchPartiallyFailed:
		return true
	}
	return false
}

// SyncState tracks whether client-side edits have been acknowledged.
type SyncState string

const (
	SyncSynced      SyncState = "synced"
	SyncPendingSync SyncState = "pending_sync"
	SyncFailed      SyncState = "sync_failed"
)

func (s SyncState) IsValid() bool {
	return s == SyncSynced || s == SyncPendingSync || s == SyncFailed
}

// Application is the materialized view of one application's event log.
// It is only ever produced by the projector; services never set fields directly.
type Application struct {
	ID                string            `json:"applicationId"`
	DocumentID        string            `json:"documentId"`
	RegulatoryProfile RegulatoryProfile `json:"regulatoryProfile"`
	SubmissionType    SubmissionType    `json:"submissionType"`
	Status            Status            `json:"status"`
	SyncState         SyncState         `json:"syncState"`
	BrandName         string            `json:"brandName,omitempty"`
	ClassType         string            `json:"classType,omitempty"`
	Checks            []ComplianceCheck `json:"checks"`
	OwnerID           string            `json:"ownerId,omitempty"`
	OwnerClaimed      bool              `json:"-"`
	BatchID           string            `json:"batchId,omitempty"`
	LatestQuickCheck  *QuickCheckResult `json:"latestQuickCheck,omitempty"`
	EventCount        int               `json:"eventCount"`
	LastEventAt       time.Time         `json:"lastEventAt"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy so cached views cannot be mutated by callers.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := *a
	c.Checks = append([]ComplianceCheck(nil), a.Checks...)
	if a.LatestQuickCheck != nil {
		qc := a.LatestQuickCheck.Clone()
		c.LatestQuickCheck = &qc
	}
	return &c
}

// ClaimResult is the outcome of an ownership claim.
type ClaimResult string

const (
	ClaimClaimed             ClaimResult = "claimed"
	ClaimAlreadyOwnedByYou   ClaimResult = "already_owned_by_you"
	ClaimAlreadyOwnedByOther ClaimResult = "already_owned_by_other"
	ClaimApplicationNotFound ClaimResult = "application_not_found"
)

// Operation is one CRDT edit submitted by an offline client.
// Identity for merging is (ApplicationID, ActorID, Sequence).
type Operation struct {
	ID            string          `json:"opId"`
	ApplicationID string          `json:"applicationId"`
	ActorID       string          `json:"actorId"`
	Sequence      int64           `json:"sequence"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"createdAt"`
}
