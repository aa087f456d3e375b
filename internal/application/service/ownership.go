package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"labelcheck/internal/application/models"
	dErrors "labelcheck/pkg/domain-errors"
	"labelcheck/pkg/domain"
)

// ClaimApplicationOwnerForActor makes userID the owner unless someone has
// already claimed the application. The first claim wins; concurrent claims
// are serialized by the application lock.
func (s *Service) ClaimApplicationOwnerForActor(ctx context.Context, id, userID string) (_ models.ClaimResult, err error) {
	ctx, end := s.startSpan(ctx, "ClaimApplicationOwnerForActor", attribute.String("application_id", id))
	defer func() { end(err) }()

	if userID == "" {
		return "", dErrors.New(dErrors.CodeValidation, "user id is required")
	}

	var result models.ClaimResult
	var after *models.Application
	err = s.locks.run(ctx, id, func(ctx context.Context) error {
		var before *models.Application
		var err error
		before, after, err = s.mutate(ctx, id, func(doc *models.Application, next int64, at time.Time) ([]models.Event, error) {
			if doc.OwnerClaimed {
				if doc.OwnerID == userID {
					result = models.ClaimAlreadyOwnedByYou
				} else {
					result = models.ClaimAlreadyOwnedByOther
				}
				return nil, nil
			}
			result = models.ClaimClaimed
			ev, err := models.NewEvent(id, models.EventOwnershipClaimed, models.OwnershipClaimedPayload{ActorID: userID}, next, at)
			return []models.Event{ev}, err
		})
		if err == nil && before == nil {
			result = models.ClaimApplicationNotFound
		}
		return err
	})
	if err != nil {
		return "", err
	}
	s.metrics.IncClaim(string(result))
	if result == models.ClaimClaimed {
		s.logger.InfoContext(ctx, "application claimed",
			"application_id", id,
			"owner_id", userID,
		)
		s.publishStatus(after, after.Status)
	}
	return result, nil
}

// CanActorAccessApplication reports whether actor may see and act on the
// application: managers always, officers only when they own it.
func (s *Service) CanActorAccessApplication(ctx context.Context, id string, actor domain.Actor) (_ bool, err error) {
	ctx, end := s.startSpan(ctx, "CanActorAccessApplication", attribute.String("application_id", id))
	defer func() { end(err) }()

	doc, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	if doc == nil {
		return false, dErrors.New(dErrors.CodeNotFound, "application not found")
	}
	return canAccess(doc, actor), nil
}

func canAccess(doc *models.Application, actor domain.Actor) bool {
	if actor.IsManager() {
		return true
	}
	return actor.ID != "" && doc.OwnerID == actor.ID
}

// RecordReviewerOverride sets a reviewer decision. Re-decisions are allowed.
func (s *Service) RecordReviewerOverride(ctx context.Context, id string, actor domain.Actor, status models.Status, reason string) (_ *models.Application, err error) {
	ctx, end := s.startSpan(ctx, "RecordReviewerOverride", attribute.String("application_id", id))
	defer func() { end(err) }()

	if !status.IsReviewerDecision() {
		return nil, dErrors.New(dErrors.CodeValidation, "override status must be approved, rejected or needs_review")
	}

	var before, after *models.Application
	err = s.locks.run(ctx, id, func(ctx context.Context) error {
		var err error
		before, after, err = s.mutate(ctx, id, func(doc *models.Application, next int64, at time.Time) ([]models.Event, error) {
			if !canAccess(doc, actor) {
				return nil, dErrors.New(dErrors.CodeForbidden, "actor cannot access this application")
			}
			ev, err := models.NewEvent(id, models.EventReviewerOverrideRecorded, models.ReviewerOverrideRecordedPayload{
				Status:     status,
				ReviewerID: actor.ID,
				Reason:     reason,
			}, next, at)
			return []models.Event{ev}, err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if after == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
	}
	s.logger.InfoContext(ctx, "reviewer override recorded",
		"application_id", id,
		"reviewer_id", actor.ID,
		"status", status,
	)
	s.publishStatus(after, before.Status)
	return after, nil
}
