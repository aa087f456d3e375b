// Package service orchestrates the application aggregate: every mutation is
// an event append followed by a projection of the full log.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"labelcheck/internal/application/compliance"
	"labelcheck/internal/application/metrics"
	"labelcheck/internal/application/models"
	"labelcheck/internal/application/projector"
	"labelcheck/internal/notify"
	dErrors "labelcheck/pkg/domain-errors"
	"labelcheck/pkg/domain"
	"labelcheck/pkg/platform/sentinel"
)

// Store is the persistence the service needs. store.InMemory, store.Postgres
// and store.Fallback satisfy it.
type Store interface {
	SaveApplication(ctx context.Context, app *models.Application) error
	FindApplication(ctx context.Context, id string) (*models.Application, error)
	ListApplications(ctx context.Context) ([]*models.Application, error)
	AppendEvents(ctx context.Context, events ...models.Event) error
	ListEvents(ctx context.Context, applicationID string) ([]models.Event, error)
	ListEventsByType(ctx context.Context, types []models.EventType, since, until time.Time) ([]models.Event, error)
	SaveOperations(ctx context.Context, applicationID string, ops []models.Operation) error
	ListOperations(ctx context.Context, applicationID string) ([]models.Operation, error)
}

// Service owns the application aggregate. It is safe for concurrent use;
// mutations of one application are serialized.
type Service struct {
	store   Store
	bus     notify.Publisher
	locks   *applicationLocks
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithLockTimeout bounds how long a mutation may wait for its application
// lock and run when the caller's context carries no deadline.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.locks.timeout = d
	}
}

func New(store Store, bus notify.Publisher, opts ...Option) *Service {
	s := &Service{
		store:  store,
		bus:    bus,
		locks:  newApplicationLocks(),
		logger: slog.Default(),
		tracer: otel.Tracer("labelcheck/application"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest describes a new application. SubmissionType defaults to single.
type CreateRequest struct {
	Profile        models.RegulatoryProfile
	SubmissionType models.SubmissionType
	ActorID        string
	BatchID        string
	DocumentID     string
}

// CreateApplication appends ApplicationCreated, plus OwnershipClaimed when an
// actor is given, and returns the projected document.
func (s *Service) CreateApplication(ctx context.Context, req CreateRequest) (_ *models.Application, err error) {
	ctx, end := s.startSpan(ctx, "CreateApplication")
	defer func() { end(err) }()

	if !req.Profile.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown regulatory profile: "+string(req.Profile))
	}
	if req.SubmissionType == "" {
		req.SubmissionType = models.SubmissionSingle
	}
	if !req.SubmissionType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown submission type: "+string(req.SubmissionType))
	}
	if req.DocumentID == "" {
		req.DocumentID = uuid.NewString()
	}

	id := uuid.NewString()
	at := s.timestamp()
	created, err := models.NewEvent(id, models.EventApplicationCreated, models.ApplicationCreatedPayload{
		DocumentID:        req.DocumentID,
		RegulatoryProfile: req.Profile,
		SubmissionType:    req.SubmissionType,
		ActorID:           req.ActorID,
		BatchID:           req.BatchID,
	}, 1, at)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build event")
	}
	events := []models.Event{created}
	if req.ActorID != "" {
		claimed, err := models.NewEvent(id, models.EventOwnershipClaimed, models.OwnershipClaimedPayload{ActorID: req.ActorID}, 2, at)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build event")
		}
		events = append(events, claimed)
	}

	var doc *models.Application
	err = s.locks.run(ctx, id, func(ctx context.Context) error {
		var err error
		doc, err = s.commit(ctx, nil, events)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "application created",
		"application_id", id,
		"submission_type", req.SubmissionType,
		"batch_id", req.BatchID,
	)
	s.publishStatus(doc, "")
	return doc, nil
}

// GetApplication returns the projected document or a not_found error.
func (s *Service) GetApplication(ctx context.Context, id string) (_ *models.Application, err error) {
	ctx, end := s.startSpan(ctx, "GetApplication", attribute.String("application_id", id))
	defer func() { end(err) }()

	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
	}
	return doc, nil
}

// ListApplications returns the applications visible to actor. A nil actor or
// a manager sees everything; officers see only what they own.
func (s *Service) ListApplications(ctx context.Context, actor *domain.Actor) (_ []*models.Application, err error) {
	ctx, end := s.startSpan(ctx, "ListApplications")
	defer func() { end(err) }()

	apps, err := s.store.ListApplications(ctx)
	if err != nil {
		return nil, translate(err, "failed to list applications")
	}
	if actor == nil || actor.IsManager() {
		return apps, nil
	}
	out := make([]*models.Application, 0, len(apps))
	for _, app := range apps {
		if app.OwnerID == actor.ID {
			out = append(out, app)
		}
	}
	return out, nil
}

// RecordScannerQuickCheck normalizes result against the application's
// profile and appends ScannerQuickCheckRecorded. It returns (nil, nil) when
// the application does not exist.
func (s *Service) RecordScannerQuickCheck(ctx context.Context, id string, result models.QuickCheckResult, expected *models.Expected) (_ *models.Application, err error) {
	ctx, end := s.startSpan(ctx, "RecordScannerQuickCheck", attribute.String("application_id", id))
	defer func() { end(err) }()

	var before, after *models.Application
	err = s.locks.run(ctx, id, func(ctx context.Context) error {
		var err error
		before, after, err = s.mutate(ctx, id, func(doc *models.Application, next int64, at time.Time) ([]models.Event, error) {
			ev, err := models.NewEvent(id, models.EventScannerQuickCheckRecorded, models.ScannerQuickCheckRecordedPayload{
				Result:   result,
				Checks:   compliance.Normalize(doc.RegulatoryProfile, result),
				Expected: expected,
			}, next, at)
			return []models.Event{ev}, err
		})
		return err
	})
	if err != nil || after == nil {
		return nil, err
	}
	s.publishStatus(after, before.Status)
	return after, nil
}

// ListEvents returns the application's full history in sequence order.
func (s *Service) ListEvents(ctx context.Context, id string) (_ []models.Event, err error) {
	ctx, end := s.startSpan(ctx, "ListEvents", attribute.String("application_id", id))
	defer func() { end(err) }()

	events, err := s.store.ListEvents(ctx, id)
	if err != nil {
		return nil, translate(err, "failed to list events")
	}
	if len(events) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
	}
	return events, nil
}

// RecordBatchStatus moves a batch parent application to status. Repeating
// the current status appends nothing.
func (s *Service) RecordBatchStatus(ctx context.Context, id, batchID string, status models.Status) (_ *models.Application, err error) {
	ctx, end := s.startSpan(ctx, "RecordBatchStatus", attribute.String("application_id", id), attribute.String("batch_id", batchID))
	defer func() { end(err) }()

	if !status.IsBatchStatus() {
		return nil, dErrors.New(dErrors.CodeValidation, "not a batch status: "+string(status))
	}
	var before, after *models.Application
	err = s.locks.run(ctx, id, func(ctx context.Context) error {
		var err error
		before, after, err = s.mutate(ctx, id, func(doc *models.Application, next int64, at time.Time) ([]models.Event, error) {
			if doc.Status == status {
				return nil, nil
			}
			ev, err := models.NewEvent(id, models.EventBatchStatusChanged, models.BatchStatusChangedPayload{
				Status:  status,
				BatchID: batchID,
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
	if before.Status != after.Status {
		s.publishStatus(after, before.Status)
	}
	return after, nil
}

// buildFunc returns the events to append given the current projection, the
// next free sequence number and the commit time. Returning no events makes
// the mutation a no-op.
type buildFunc func(doc *models.Application, next int64, at time.Time) ([]models.Event, error)

// mutate loads the log, asks build for new events, appends and reprojects.
// Callers must hold the application lock. Both documents are nil when the
// application does not exist.
func (s *Service) mutate(ctx context.Context, id string, build buildFunc) (before, after *models.Application, err error) {
	events, err := s.store.ListEvents(ctx, id)
	if err != nil {
		return nil, nil, translate(err, "failed to read event log")
	}
	if len(events) == 0 {
		return nil, nil, nil
	}
	before = projector.Project(events, nil)

	added, err := build(before, int64(len(events))+1, s.timestamp())
	if err != nil {
		if isCoded(err) {
			return nil, nil, err
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build event")
	}
	if len(added) == 0 {
		return before, before, nil
	}
	after, err = s.commit(ctx, before, added)
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// commit appends events, projects them on top of snapshot and caches the result.
func (s *Service) commit(ctx context.Context, snapshot *models.Application, events []models.Event) (*models.Application, error) {
	if err := s.store.AppendEvents(ctx, events...); err != nil {
		return nil, translate(err, "failed to append events")
	}
	for _, ev := range events {
		s.metrics.IncEventAppended(string(ev.Type))
	}
	doc := projector.Project(events, snapshot)
	if err := s.store.SaveApplication(ctx, doc); err != nil {
		return nil, translate(err, "failed to save application")
	}
	return doc, nil
}

// load returns the cached document, rebuilding it from the log when the
// cache has no row. It returns (nil, nil) for unknown applications.
func (s *Service) load(ctx context.Context, id string) (*models.Application, error) {
	doc, err := s.store.FindApplication(ctx, id)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, translate(err, "failed to load application")
	}
	events, err := s.store.ListEvents(ctx, id)
	if err != nil {
		return nil, translate(err, "failed to read event log")
	}
	if len(events) == 0 {
		return nil, nil
	}
	return projector.Project(events, nil), nil
}

func (s *Service) publishStatus(doc *models.Application, previous models.Status) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(notify.Notification{
		Type:          notify.TypeStatusChanged,
		ApplicationID: doc.ID,
		BatchID:       doc.BatchID,
		Scope:         notify.ScopeApplication,
		Data: notify.Data(map[string]any{
			"previousStatus": previous,
			"status":         doc.Status,
			"syncState":      doc.SyncState,
			"eventCount":     doc.EventCount,
		}),
	})
}

func (s *Service) publish(n notify.Notification) {
	if s.bus != nil {
		s.bus.Publish(n)
	}
}

// timestamp truncates to microseconds so values survive a Postgres round trip.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "application."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.ObserveOperation(op, start)
	}
}

// translate maps store errors onto domain codes, keeping codes already set.
func translate(err error, msg string) error {
	if err == nil {
		return nil
	}
	if isCoded(err) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func isCoded(err error) bool {
	var de *dErrors.Error
	return errors.As(err, &de)
}
