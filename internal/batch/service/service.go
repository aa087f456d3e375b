// Package service runs batch jobs: discovery of label items from an upload,
// then a bounded worker pool that drives every item through the application
// service with per-item retries.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appModels "labelcheck/internal/application/models"
	appService "labelcheck/internal/application/service"
	"labelcheck/internal/batch/discovery"
	"labelcheck/internal/batch/extractor"
	"labelcheck/internal/batch/metrics"
	"labelcheck/internal/batch/models"
	"labelcheck/internal/batch/store"
	"labelcheck/internal/notify"
	dErrors "labelcheck/pkg/domain-errors"
	"labelcheck/pkg/platform/sentinel"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Applications is the slice of the application service the pipeline drives.
type Applications interface {
	CreateApplication(ctx context.Context, req appService.CreateRequest) (*appModels.Application, error)
	RecordScannerQuickCheck(ctx context.Context, id string, result appModels.QuickCheckResult, expected *appModels.Expected) (*appModels.Application, error)
	RecordBatchStatus(ctx context.Context, id, batchID string, status appModels.Status) (*appModels.Application, error)
}

// Extractor runs the composite extraction and check pipeline for one item.
type Extractor interface {
	Extract(ctx context.Context, req extractor.Request) (appModels.QuickCheckResult, error)
}

// ImageStore holds label images by key.
type ImageStore interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, data []byte, ext string) (string, error)
}

const (
	defaultWorkers     = 4
	defaultMaxAttempts = 3
	maxAttemptsLimit   = 3
	defaultMaxItems    = 500
	defaultPageSize    = 50
	maxPageSize        = 500
)

// Service owns batch jobs. Jobs run detached from the request that started
// them and always reach a terminal status.
type Service struct {
	store       store.Repository
	apps        Applications
	extractor   Extractor
	images      ImageStore
	bus         notify.Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	now         func() time.Time
	workers     int
	maxAttempts int
	maxItems    int
	backoff     RetryBackoff
	limits      discovery.Limits
	stagingDir  string

	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
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

// WithWorkers sets how many items of one job are processed at once.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxAttempts sets how many times an item is tried. Values above three
// are clamped to three.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = min(n, maxAttemptsLimit)
		}
	}
}

// WithMaxItems caps the number of items one job may hold.
func WithMaxItems(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxItems = n
		}
	}
}

func WithRetryBackoff(b RetryBackoff) Option {
	return func(s *Service) {
		s.backoff = b
	}
}

func WithArchiveLimits(l discovery.Limits) Option {
	return func(s *Service) {
		s.limits = l
	}
}

// WithStagingDir sets where archives are unpacked. Defaults to the OS temp dir.
func WithStagingDir(dir string) Option {
	return func(s *Service) {
		s.stagingDir = dir
	}
}

func New(repo store.Repository, apps Applications, ext Extractor, images ImageStore, bus notify.Publisher, opts ...Option) *Service {
	s := &Service{
		store:       repo,
		apps:        apps,
		extractor:   ext,
		images:      images,
		bus:         bus,
		logger:      slog.Default(),
		tracer:      otel.Tracer("labelcheck/batch"),
		now:         time.Now,
		workers:     defaultWorkers,
		maxAttempts: defaultMaxAttempts,
		maxItems:    defaultMaxItems,
		backoff:     RetryBackoff{Initial: DefaultBackoffInitial, Max: DefaultBackoffMax},
		runs:        make(map[string]*run),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartRequest starts a job from either a list of items or an archive on disk.
type StartRequest struct {
	Items         []models.ItemInput
	ArchivePath   string
	// RemoveArchive deletes ArchivePath once it has been unpacked.
	RemoveArchive bool
	Profile       appModels.RegulatoryProfile
	ActorID       string
}

// Start creates the parent batch application and the job, then processes
// the job in the background. The returned job is the accepted snapshot.
func (s *Service) Start(ctx context.Context, req StartRequest) (_ *models.Job, err error) {
	ctx, end := s.startSpan(ctx, "Start")
	defer func() { end(err) }()

	if err := s.validateStart(req); err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	parent, err := s.apps.CreateApplication(ctx, appService.CreateRequest{
		Profile:        req.Profile,
		SubmissionType: appModels.SubmissionBatch,
		ActorID:        req.ActorID,
		BatchID:        batchID,
	})
	if err != nil {
		return nil, err
	}

	at := s.timestamp()
	job := &models.Job{
		ID:            batchID,
		ApplicationID: parent.ID,
		ActorID:       req.ActorID,
		Profile:       req.Profile,
		Status:        models.JobReceived,
		IngestStatus:  models.IngestPending,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	r := &run{job: job, done: make(chan struct{}), read: s.images.Read}
	if req.ArchivePath == "" {
		r.items = s.newItems(job, req.Items, at)
		job.IngestStatus = models.IngestDiscovered
		job.DiscoveredItems = len(r.items)
		job.TotalItems = len(r.items)
		job.QueuedItems = len(r.items)
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		s.setParentStatus(ctx, job, appModels.StatusBatchPartiallyFailed)
		return nil, translate(err, "failed to save batch job")
	}
	if len(r.items) > 0 {
		if err := s.store.SaveItems(ctx, r.items...); err != nil {
			s.setParentStatus(ctx, job, appModels.StatusBatchPartiallyFailed)
			return nil, translate(err, "failed to save batch items")
		}
	}

	s.mu.Lock()
	s.runs[batchID] = r
	s.mu.Unlock()
	s.wg.Add(1)
	s.metrics.IncJobStarted()

	s.logger.InfoContext(ctx, "batch accepted",
		"batch_id", batchID,
		"application_id", parent.ID,
		"items", len(r.items),
		"archive", req.ArchivePath != "",
	)
	snapshot := job.Clone()
	go s.execute(context.WithoutCancel(ctx), r, req)
	return snapshot, nil
}

func (s *Service) validateStart(req StartRequest) error {
	if !req.Profile.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown regulatory profile: "+string(req.Profile))
	}
	if (req.ArchivePath == "") == (len(req.Items) == 0) {
		return dErrors.New(dErrors.CodeValidation, "provide either items or an archive")
	}
	if len(req.Items) > s.maxItems {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s: at most %d items per batch", models.CodeBatchSizeOutOfRange, s.maxItems))
	}
	for i, in := range req.Items {
		if in.RegulatoryProfile != "" && !in.RegulatoryProfile.IsValid() {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("item %d: unknown regulatory profile: %s", i, in.RegulatoryProfile))
		}
	}
	return nil
}

func (s *Service) newItems(job *models.Job, inputs []models.ItemInput, at time.Time) []models.Item {
	items := make([]models.Item, len(inputs))
	for i, in := range inputs {
		profile := in.RegulatoryProfile
		if profile == "" {
			profile = job.Profile
		}
		label := in.ClientLabelID
		if label == "" {
			label = fmt.Sprintf("item-%d", i+1)
		}
		items[i] = models.Item{
			ID:                uuid.NewString(),
			BatchID:           job.ID,
			Index:             i,
			ClientLabelID:     label,
			RegulatoryProfile: profile,
			Expected:          in.Expected,
			Images:            append([]models.Image(nil), in.Images...),
			Status:            models.ItemQueued,
			UpdatedAt:         at,
		}
	}
	return items
}

// Wait blocks until the job is terminal or ctx is done.
func (s *Service) Wait(ctx context.Context, batchID string) error {
	s.mu.Lock()
	r, ok := s.runs[batchID]
	s.mu.Unlock()
	if ok {
		select {
		case <-r.done:
			return nil
		case <-ctx.Done():
			return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "batch still running")
		}
	}
	job, err := s.GetJob(ctx, batchID)
	if err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeConflict, "batch is not running in this process")
	}
	return nil
}

// Shutdown waits for every running job to finish or ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) GetJob(ctx context.Context, batchID string) (_ *models.Job, err error) {
	ctx, end := s.startSpan(ctx, "GetJob", attribute.String("batch_id", batchID))
	defer func() { end(err) }()

	job, err := s.store.FindJob(ctx, batchID)
	if err != nil {
		return nil, translate(err, "batch not found")
	}
	return job, nil
}

// Page selects a window of items. A zero Limit uses the default page size.
type Page struct {
	Offset int
	Limit  int
}

func (s *Service) ListItems(ctx context.Context, batchID string, page Page, status *models.ItemStatus) (_ models.ItemPage, err error) {
	ctx, end := s.startSpan(ctx, "ListItems", attribute.String("batch_id", batchID))
	defer func() { end(err) }()

	if page.Offset < 0 || page.Limit < 0 {
		return models.ItemPage{}, dErrors.New(dErrors.CodeValidation, "offset and limit must be non-negative")
	}
	if page.Limit == 0 {
		page.Limit = defaultPageSize
	}
	page.Limit = min(page.Limit, maxPageSize)
	if status != nil && !status.IsValid() {
		return models.ItemPage{}, dErrors.New(dErrors.CodeValidation, "unknown item status: "+string(*status))
	}
	out, err := s.store.ListItems(ctx, batchID, models.ItemFilter{Status: status, Offset: page.Offset, Limit: page.Limit})
	if err != nil {
		return models.ItemPage{}, translate(err, "batch not found")
	}
	return out, nil
}

func (s *Service) GetItem(ctx context.Context, itemID string) (_ *models.Item, err error) {
	ctx, end := s.startSpan(ctx, "GetItem", attribute.String("item_id", itemID))
	defer func() { end(err) }()

	it, err := s.store.FindItem(ctx, itemID)
	if err != nil {
		return nil, translate(err, "batch item not found")
	}
	return it, nil
}

func (s *Service) ListAttempts(ctx context.Context, itemID string) (_ []models.Attempt, err error) {
	ctx, end := s.startSpan(ctx, "ListAttempts", attribute.String("item_id", itemID))
	defer func() { end(err) }()

	attempts, err := s.store.ListAttempts(ctx, itemID)
	if err != nil {
		return nil, translate(err, "batch item not found")
	}
	if attempts == nil {
		attempts = []models.Attempt{}
	}
	return attempts, nil
}

func (s *Service) publishProgress(job *models.Job) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(notify.Notification{
		Type:          notify.TypeBatchProgress,
		ApplicationID: job.ApplicationID,
		BatchID:       job.ID,
		Scope:         notify.ScopeBatch,
		Data:          notify.Data(job.Progress()),
	})
}

func (s *Service) publishScan(batchID string, it models.Item, stage string, attempt int) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(notify.Notification{
		Type:          notify.TypeScanProgress,
		ApplicationID: it.ApplicationID,
		BatchID:       batchID,
		Scope:         notify.ScopeBatch,
		Data: notify.Data(map[string]any{
			"batchItemId":   it.ID,
			"clientLabelId": it.ClientLabelID,
			"stage":         stage,
			"attempt":       attempt,
		}),
	})
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "batch."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// translate maps store errors onto domain codes, keeping codes already set.
func translate(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
