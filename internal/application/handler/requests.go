package handler

import (
	"net/http"
	"strings"

	"labelcheck/internal/application/models"
	dErrors "labelcheck/pkg/domain-errors"
	"labelcheck/pkg/platform/httputil"
)

const maxOpsPerRequest = 500

type validatable interface {
	Validate() error
}

// decode reads the body into T and validates it, writing the error envelope on failure.
func decode[T any, PT interface {
	*T
	validatable
}](w http.ResponseWriter, r *http.Request) (*T, bool) {
	req, ok := httputil.DecodeJSON[T](w, r)
	if !ok {
		return nil, false
	}
	if err := PT(req).Validate(); err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	return req, true
}

// CreateApplicationRequest is the body for POST /applications.
type CreateApplicationRequest struct {
	RegulatoryProfile string `json:"regulatoryProfile"`
	SubmissionType    string `json:"submissionType"`
	DocumentID        string `json:"documentId"`

	parsedProfile    models.RegulatoryProfile
	parsedSubmission models.SubmissionType
}

func (r *CreateApplicationRequest) Validate() error {
	r.parsedProfile = models.RegulatoryProfile(strings.TrimSpace(r.RegulatoryProfile))
	if !r.parsedProfile.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "regulatoryProfile must be distilled_spirits, wine or malt_beverage")
	}
	r.parsedSubmission = models.SubmissionType(strings.TrimSpace(r.SubmissionType))
	if r.parsedSubmission == "" {
		r.parsedSubmission = models.SubmissionSingle
	}
	if !r.parsedSubmission.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "submissionType must be single or batch")
	}
	r.DocumentID = strings.TrimSpace(r.DocumentID)
	return nil
}

// QuickCheckRequest is the body for POST /applications/{id}/quick-checks.
type QuickCheckRequest struct {
	Result   models.QuickCheckResult `json:"result"`
	Expected *models.Expected        `json:"expected,omitempty"`
}

func (r *QuickCheckRequest) Validate() error {
	switch r.Result.Summary {
	case models.SummaryPass, models.SummaryFail, models.SummaryNeedsReview:
	default:
		return dErrors.New(dErrors.CodeValidation, "result.summary must be pass, fail or needs_review")
	}
	if r.Result.Confidence < 0 || r.Result.Confidence > 1 {
		return dErrors.New(dErrors.CodeValidation, "result.confidence must be between 0 and 1")
	}
	if r.Result.LatencyMs < 0 {
		return dErrors.New(dErrors.CodeValidation, "result.latencyMs must not be negative")
	}
	for _, c := range r.Result.Checks {
		if strings.TrimSpace(c.ID) == "" {
			return dErrors.New(dErrors.CodeValidation, "every check needs an id")
		}
	}
	return nil
}

// OverrideRequest is the body for POST /applications/{id}/override.
type OverrideRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`

	parsedStatus models.Status
}

func (r *OverrideRequest) Validate() error {
	r.parsedStatus = models.Status(strings.TrimSpace(r.Status))
	if !r.parsedStatus.IsReviewerDecision() {
		return dErrors.New(dErrors.CodeValidation, "status must be approved, rejected or needs_review")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	return nil
}

// AppendOpsRequest is the body for POST /applications/{id}/ops. ActorID
// defaults to the authenticated actor.
type AppendOpsRequest struct {
	ActorID string             `json:"actorId"`
	Ops     []models.Operation `json:"ops"`
}

func (r *AppendOpsRequest) Validate() error {
	if len(r.Ops) > maxOpsPerRequest {
		return dErrors.New(dErrors.CodeValidation, "too many operations in one request")
	}
	r.ActorID = strings.TrimSpace(r.ActorID)
	return nil
}
