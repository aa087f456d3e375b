// Package models holds batch jobs, their items and the per-item attempt log.
package models

import (
	"maps"
	"time"

	appModels "labelcheck/internal/application/models"
)

// JobStatus mirrors the parent application's batch branch plus a terminal
// failure for jobs whose discovery never produced items.
type JobStatus string

const (
	JobReceived        JobStatus = "batch_received"
	JobProcessing      JobStatus = "batch_processing"
	JobCompleted       JobStatus = "batch_completed"
	JobPartiallyFailed JobStatus = "batch_partially_failed"
	JobFailed          JobStatus = "failed"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobPartiallyFailed || s == JobFailed
}

// IngestStatus tracks discovery of a job's items.
type IngestStatus string

const (
	IngestPending     IngestStatus = "pending"
	IngestDiscovering IngestStatus = "discovering"
	IngestDiscovered  IngestStatus = "discovered"
	IngestFailed      IngestStatus = "failed"
)

type ItemStatus string

const (
	ItemQueued     ItemStatus = "queued"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
)

func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemQueued, ItemProcessing, ItemCompleted, ItemFailed:
		return true
	}
	return false
}

func (s ItemStatus) IsTerminal() bool {
	return s == ItemCompleted || s == ItemFailed
}

type ImageRole string

const (
	RoleFront ImageRole = "front"
	RoleBack  ImageRole = "back"
	RoleExtra ImageRole = "extra"
)

// Image points at one label photo. Path is a local file during discovery and
// the image store key once the item has been processed.
type Image struct {
	Role ImageRole `json:"role"`
	Path string    `json:"path"`
}

// Item error codes. The first four are never retried.
const (
	CodeMissingRequiredImages = "missing_required_images"
	CodeImageReadFailed       = "image_read_failed"
	CodeManifestParseFailed   = "manifest_parse_failed"
	CodeBatchSizeOutOfRange   = "batch_size_out_of_range"
	CodeNoItemsDiscovered     = "no_items_discovered"
	CodeArchiveInvalid        = "archive_invalid"
	CodeExtractionFailed      = "extraction_failed"
	CodeApplicationFailed     = "application_failed"
	CodeImageStoreFailed      = "image_store_failed"
	CodeInternal              = "internal_error"
)

// Job aggregates one upload. Counters are recomputed from items after every
// item transition.
type Job struct {
	ID              string                      `json:"batchId"`
	ApplicationID   string                      `json:"applicationId"`
	ActorID         string                      `json:"actorId,omitempty"`
	Profile         appModels.RegulatoryProfile `json:"regulatoryProfile"`
	TotalItems      int                         `json:"totalItems"`
	DiscoveredItems int                         `json:"discoveredItems"`
	QueuedItems     int                         `json:"queuedItems"`
	ProcessingItems int                         `json:"processingItems"`
	CompletedItems  int                         `json:"completedItems"`
	FailedItems     int                         `json:"failedItems"`
	Status          JobStatus                   `json:"status"`
	IngestStatus    IngestStatus                `json:"ingestStatus"`
	ErrorSummary    string                      `json:"errorSummary,omitempty"`
	CreatedAt       time.Time                   `json:"createdAt"`
	UpdatedAt       time.Time                   `json:"updatedAt"`
	CompletedAt     *time.Time                  `json:"completedAt,omitempty"`
}

func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Progress is the observer-facing summary published on every transition.
type Progress struct {
	BatchID    string    `json:"batchId"`
	Status     JobStatus `json:"status"`
	Total      int       `json:"totalItems"`
	Discovered int       `json:"discoveredItems"`
	Queued     int       `json:"queuedItems"`
	Processing int       `json:"processingItems"`
	Completed  int       `json:"completedItems"`
	Failed     int       `json:"failedItems"`
	Percent    float64   `json:"percent"`
}

func (j *Job) Progress() Progress {
	p := Progress{
		BatchID:    j.ID,
		Status:     j.Status,
		Total:      j.TotalItems,
		Discovered: j.DiscoveredItems,
		Queued:     j.QueuedItems,
		Processing: j.ProcessingItems,
		Completed:  j.CompletedItems,
		Failed:     j.FailedItems,
	}
	if j.TotalItems > 0 {
		p.Percent = float64(j.CompletedItems+j.FailedItems) * 100 / float64(j.TotalItems)
	} else if j.Status.IsTerminal() {
		p.Percent = 100
	}
	return p
}

// Recalculate derives counters and status from items. Status is only
// load-bearing once every item is terminal; mid-run it reads batch_processing.
func (j *Job) Recalculate(items []Item) {
	j.TotalItems = len(items)
	j.QueuedItems, j.ProcessingItems, j.CompletedItems, j.FailedItems = 0, 0, 0, 0
	for _, it := range items {
		switch it.Status {
		case ItemQueued:
			j.QueuedItems++
		case ItemProcessing:
			j.ProcessingItems++
		case ItemCompleted:
			j.CompletedItems++
		case ItemFailed:
			j.FailedItems++
		}
	}
	switch {
	case j.CompletedItems+j.FailedItems < j.TotalItems:
		j.Status = JobProcessing
	case j.FailedItems > 0:
		j.Status = JobPartiallyFailed
	default:
		j.Status = JobCompleted
	}
}

// Expected is what the submitter says the label shows.
type Expected = appModels.Expected

// Item is one label inside a job.
type Item struct {
	ID                string                      `json:"batchItemId"`
	BatchID           string                      `json:"batchId"`
	Index             int                         `json:"index"`
	ClientLabelID     string                      `json:"clientLabelId,omitempty"`
	RegulatoryProfile appModels.RegulatoryProfile `json:"regulatoryProfile"`
	Expected          Expected                    `json:"expected"`
	Images            []Image                     `json:"images"`
	Status            ItemStatus                  `json:"status"`
	RetryCount        int                         `json:"retryCount"`
	LastErrorCode     string                      `json:"lastErrorCode,omitempty"`
	LastErrorMessage  string                      `json:"lastErrorMessage,omitempty"`
	ApplicationID     string                      `json:"applicationId,omitempty"`
	UpdatedAt         time.Time                   `json:"updatedAt"`
}

func (it Item) Clone() Item {
	c := it
	c.Images = append([]Image(nil), it.Images...)
	c.Expected.Extra = maps.Clone(it.Expected.Extra)
	return c
}

// ImageFor returns the first image with role.
func (it Item) ImageFor(role ImageRole) (Image, bool) {
	for _, img := range it.Images {
		if img.Role == role {
			return img, true
		}
	}
	return Image{}, false
}

// ItemInput is one label as submitted or discovered, before it becomes an Item.
type ItemInput struct {
	ClientLabelID     string                      `json:"clientLabelId,omitempty"`
	RegulatoryProfile appModels.RegulatoryProfile `json:"regulatoryProfile,omitempty"`
	Expected          Expected                    `json:"expected"`
	Images            []Image                     `json:"images"`
}

type AttemptOutcome string

const (
	AttemptCompleted AttemptOutcome = "completed"
	AttemptFailed    AttemptOutcome = "failed"
)

// Attempt is one try at an item. Attempts are append-only.
type Attempt struct {
	ID           string         `json:"attemptId"`
	BatchItemID  string         `json:"batchItemId"`
	AttemptNo    int            `json:"attemptNo"`
	Outcome      AttemptOutcome `json:"outcome"`
	ErrorCode    string         `json:"errorCode,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// ItemFilter pages through a job's items. Limit 0 returns everything.
type ItemFilter struct {
	Status *ItemStatus
	Offset int
	Limit  int
}

// ItemPage is one page of items plus the filtered total.
type ItemPage struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
}
