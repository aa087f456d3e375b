package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names an entry in the application event log.
type EventType string

const (
	EventApplicationCreated        EventType = "ApplicationCreated"
	EventOwnershipClaimed          EventType = "OwnershipClaimed"
	EventScannerQuickCheckRecorded EventType = "ScannerQuickCheckRecorded"
	EventSyncMerged                EventType = "SyncMerged"
	EventReviewerOverrideRecorded  EventType = "ReviewerOverrideRecorded"
	EventSyncFailed                EventType = "SyncFailed"
	EventBatchStatusChanged        EventType = "BatchStatusChanged"
)

// Event is an immutable entry in an application's log. Sequence is the
// 1-based append position and is the only ordering key.
type Event struct {
	ID            string          `json:"eventId"`
	ApplicationID string          `json:"applicationId"`
	Type          EventType       `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
	Sequence      int64           `json:"sequence"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// NewEvent marshals payload and stamps a fresh event id.
func NewEvent(applicationID string, typ EventType, payload any, sequence int64, at time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Event{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		Type:          typ,
		Payload:       raw,
		Sequence:      sequence,
		CreatedAt:     at,
	}, nil
}

type ApplicationCreatedPayload struct {
	DocumentID        string            `json:"documentId"`
	RegulatoryProfile RegulatoryProfile `json:"regulatoryProfile"`
	SubmissionType    SubmissionType    `json:"submissionType"`
	ActorID           string            `json:"actorId,omitempty"`
	BatchID           string            `json:"batchId,omitempty"`
}

type OwnershipClaimedPayload struct {
	ActorID string `json:"actorId"`
}

type ScannerQuickCheckRecordedPayload struct {
	Result   QuickCheckResult  `json:"result"`
	Checks   []ComplianceCheck `json:"checks"`
	Expected *Expected         `json:"expected,omitempty"`
}

// SyncSource tells whether a SyncMerged event came from a patch or a CRDT batch.
type SyncSource string

const (
	SyncSourcePatch SyncSource = "patch"
	SyncSourceCRDT  SyncSource = "crdt"
)

type SyncMergedPayload struct {
	ChangedKeys []string   `json:"changedKeys"`
	SyncState   SyncState  `json:"syncState"`
	Source      SyncSource `json:"source"`
	OpCount     int        `json:"opCount,omitempty"`
}

type ReviewerOverrideRecordedPayload struct {
	Status     Status `json:"status"`
	ReviewerID string `json:"reviewerId"`
	Reason     string `json:"reason,omitempty"`
}

type SyncFailedPayload struct {
	Reason string `json:"reason"`
}

type BatchStatusChangedPayload struct {
	Status  Status `json:"status"`
	BatchID string `json:"batchId"`
}
