package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	appModels "labelcheck/internal/application/models"
	appService "labelcheck/internal/application/service"
	"labelcheck/internal/batch/discovery"
	"labelcheck/internal/batch/extractor"
	"labelcheck/internal/batch/models"
)

// Item stages reported through scan.progress.
const (
	StageReadingImages = "reading_images"
	StageExtracting    = "extracting"
	StageRecording     = "recording"
)

// run is the in-process state of one job. items is the working copy; every
// change to it goes through update, which persists and republishes.
//
// mu guards the working copy and is never held across store calls. Each
// change takes a sequence number under mu; saveMu and savedSeq keep a job
// snapshot from overwriting a newer one that was persisted first.
type run struct {
	mu    sync.Mutex
	job   *models.Job
	items []models.Item
	read  func(ctx context.Context, path string) ([]byte, error)
	done  chan struct{}
	seq   uint64

	saveMu   sync.Mutex
	savedSeq uint64
}

func (r *run) item(idx int) models.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[idx].Clone()
}

func (s *Service) execute(ctx context.Context, r *run, req StartRequest) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.runs, r.job.ID)
		s.mu.Unlock()
		close(r.done)
	}()

	if req.ArchivePath != "" {
		staging, err := s.discover(ctx, r, req)
		if staging != "" {
			defer os.RemoveAll(staging)
		}
		if err != nil {
			s.failJob(ctx, r, err)
			return
		}
	}

	s.setParentStatus(ctx, r.job, appModels.StatusBatchProcessing)
	s.process(ctx, r)
	s.finish(ctx, r)
}

// discover unpacks the archive into a fresh staging directory and turns it
// into queued items. The caller removes the returned directory.
func (s *Service) discover(ctx context.Context, r *run, req StartRequest) (string, error) {
	if req.RemoveArchive {
		defer os.Remove(req.ArchivePath)
	}
	s.updateJob(ctx, r, func(job *models.Job) {
		job.IngestStatus = models.IngestDiscovering
	})

	staging, err := os.MkdirTemp(s.stagingDir, "batch-"+r.job.ID+"-")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	if err := discovery.Extract(req.ArchivePath, staging, s.limits); err != nil {
		return staging, err
	}
	inputs, err := discovery.Discover(staging, discovery.Options{DefaultProfile: r.job.Profile, MaxItems: s.maxItems})
	if err != nil {
		return staging, err
	}
	for i := range inputs {
		for j, img := range inputs[i].Images {
			if rel, err := filepath.Rel(staging, img.Path); err == nil {
				inputs[i].Images[j].Path = filepath.ToSlash(rel)
			}
		}
	}

	root := os.DirFS(staging)
	r.mu.Lock()
	r.read = func(_ context.Context, path string) ([]byte, error) {
		return fs.ReadFile(root, path)
	}
	r.items = s.newItems(r.job, inputs, s.timestamp())
	items := r.items
	r.mu.Unlock()

	if err := s.store.SaveItems(ctx, items...); err != nil {
		return staging, fmt.Errorf("save discovered items: %w", err)
	}
	s.updateJob(ctx, r, func(job *models.Job) {
		job.IngestStatus = models.IngestDiscovered
		job.DiscoveredItems = len(items)
		job.Recalculate(items)
	})
	s.logger.InfoContext(ctx, "batch discovered", "batch_id", r.job.ID, "items", len(items))
	return staging, nil
}

// failJob ends a job whose discovery failed. No items are created.
func (s *Service) failJob(ctx context.Context, r *run, err error) {
	code := discovery.CodeOf(err)
	s.updateJob(ctx, r, func(job *models.Job) {
		at := s.timestamp()
		job.Status = models.JobFailed
		job.IngestStatus = models.IngestFailed
		job.ErrorSummary = code + ": " + errorMessage(err)
		job.CompletedAt = &at
	})
	s.logger.WarnContext(ctx, "batch discovery failed",
		"batch_id", r.job.ID,
		"application_id", r.job.ApplicationID,
		"code", code,
		"error", err,
	)
	s.metrics.IncJobFinished(string(models.JobFailed))
	s.setParentStatus(ctx, r.job, appModels.StatusBatchPartiallyFailed)
}

func errorMessage(err error) string {
	var de *discovery.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// process runs the worker pool: each worker claims the next unclaimed index
// and drives that item to a terminal status before claiming another.
func (s *Service) process(ctx context.Context, r *run) {
	n := len(r.items)
	workers := min(s.workers, n)
	if workers == 0 {
		return
	}
	s.metrics.AddWorkers(workers)
	defer s.metrics.AddWorkers(-workers)

	var next atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			for {
				idx := int(next.Add(1) - 1)
				if idx >= n {
					return nil
				}
				s.processItem(ctx, r, idx)
			}
		})
	}
	_ = g.Wait()
}

func (s *Service) processItem(ctx context.Context, r *run, idx int) {
	start := s.now()
	it := r.item(idx)
	ctx, span := s.tracer.Start(ctx, "batch.ProcessItem")
	span.SetAttributes(attribute.String("batch_id", it.BatchID), attribute.String("item_id", it.ID))
	defer span.End()

	s.update(ctx, r, idx, func(it *models.Item) {
		it.Status = models.ItemProcessing
	})

	for attempt := 1; ; attempt++ {
		err := s.attempt(ctx, r, idx, attempt)
		s.recordAttempt(ctx, r.item(idx), attempt, err)
		if err == nil {
			s.update(ctx, r, idx, func(it *models.Item) {
				it.Status = models.ItemCompleted
				it.RetryCount = attempt - 1
				it.LastErrorCode = ""
				it.LastErrorMessage = ""
			})
			s.metrics.IncItemFinished(string(models.ItemCompleted))
			break
		}

		ie := asItemError(err, models.CodeInternal, "item processing failed")
		final := !ie.Retryable || attempt >= s.maxAttempts
		s.update(ctx, r, idx, func(it *models.Item) {
			it.RetryCount = attempt - 1
			it.LastErrorCode = ie.Code
			it.LastErrorMessage = ie.Message
			if final {
				it.Status = models.ItemFailed
			}
		})
		s.logger.WarnContext(ctx, "batch item attempt failed",
			"batch_id", it.BatchID,
			"item_id", it.ID,
			"attempt", attempt,
			"code", ie.Code,
			"retryable", ie.Retryable,
			"error", err,
		)
		if final {
			s.metrics.IncItemFinished(string(models.ItemFailed))
			break
		}
		if err := sleep(ctx, s.backoff.Delay(attempt)); err != nil {
			s.update(ctx, r, idx, func(it *models.Item) {
				it.Status = models.ItemFailed
			})
			s.metrics.IncItemFinished(string(models.ItemFailed))
			break
		}
	}
	s.metrics.ObserveItem(s.now().Sub(start).Seconds())
}

// attempt runs one try of the item pipeline. The child application is
// created on the first try that gets that far and reused afterwards.
func (s *Service) attempt(ctx context.Context, r *run, idx, attempt int) error {
	it := r.item(idx)
	front, hasFront := it.ImageFor(models.RoleFront)
	back, hasBack := it.ImageFor(models.RoleBack)
	if !hasFront || !hasBack {
		return NewItemError(models.CodeMissingRequiredImages, "front and back images are required", nil)
	}

	s.publishScan(it.BatchID, it, StageReadingImages, attempt)
	r.mu.Lock()
	read := r.read
	r.mu.Unlock()
	ordered := []models.Image{front, back}
	for _, img := range it.Images {
		if img.Role == models.RoleExtra {
			ordered = append(ordered, img)
		}
	}
	images := make([]extractor.Image, 0, len(ordered))
	for _, img := range ordered {
		data, err := read(ctx, img.Path)
		if err != nil {
			return NewItemError(models.CodeImageReadFailed, "cannot read "+img.Path, err)
		}
		images = append(images, extractor.Image{Role: img.Role, Data: data})
	}

	if it.ApplicationID == "" {
		child, err := s.apps.CreateApplication(ctx, appService.CreateRequest{
			Profile:        it.RegulatoryProfile,
			SubmissionType: appModels.SubmissionBatch,
			ActorID:        r.job.ActorID,
			BatchID:        it.BatchID,
			DocumentID:     it.ID,
		})
		if err != nil {
			return NewItemError(models.CodeApplicationFailed, "cannot create application", err)
		}
		s.update(ctx, r, idx, func(item *models.Item) {
			item.ApplicationID = child.ID
		})
		it.ApplicationID = child.ID
	}

	for i, img := range ordered {
		if _, err := s.images.Put(ctx, images[i].Data, filepath.Ext(img.Path)); err != nil {
			return NewItemError(models.CodeImageStoreFailed, "cannot store "+img.Path, err)
		}
	}

	s.publishScan(it.BatchID, it, StageExtracting, attempt)
	result, err := s.extractor.Extract(ctx, extractor.Request{
		Profile:  it.RegulatoryProfile,
		Expected: it.Expected,
		Images:   images,
	})
	if err != nil {
		return asItemError(err, models.CodeExtractionFailed, "extraction failed")
	}

	s.publishScan(it.BatchID, it, StageRecording, attempt)
	expected := it.Expected
	doc, err := s.apps.RecordScannerQuickCheck(ctx, it.ApplicationID, result, &expected)
	if err != nil {
		return NewItemError(models.CodeApplicationFailed, "cannot record quick check", err)
	}
	if doc == nil {
		return NewItemError(models.CodeApplicationFailed, "child application disappeared", nil)
	}
	return nil
}

func (s *Service) recordAttempt(ctx context.Context, it models.Item, attemptNo int, err error) {
	a := models.Attempt{
		ID:          uuid.NewString(),
		BatchItemID: it.ID,
		AttemptNo:   attemptNo,
		Outcome:     models.AttemptCompleted,
		CreatedAt:   s.timestamp(),
	}
	if err != nil {
		ie := asItemError(err, models.CodeInternal, "item processing failed")
		a.Outcome = models.AttemptFailed
		a.ErrorCode = ie.Code
		a.ErrorMessage = ie.Message
	}
	if err := s.store.AppendAttempt(ctx, a); err != nil {
		s.logger.ErrorContext(ctx, "failed to append attempt",
			"batch_id", it.BatchID,
			"item_id", it.ID,
			"attempt", attemptNo,
			"error", err,
		)
	}
	s.metrics.IncAttempt(string(a.Outcome), a.ErrorCode)
}

// update applies fn to one item, recomputes the job and persists both
// after releasing the run lock.
func (s *Service) update(ctx context.Context, r *run, idx int, fn func(*models.Item)) {
	r.mu.Lock()
	it := &r.items[idx]
	fn(it)
	it.UpdatedAt = s.timestamp()
	r.job.Recalculate(r.items)
	r.job.UpdatedAt = it.UpdatedAt
	item := it.Clone()
	seq, job := r.snapshotLocked()
	s.publishProgress(job)
	r.mu.Unlock()

	// Only this item's worker changes it, so its saves arrive in order.
	if err := s.store.SaveItems(ctx, item); err != nil {
		s.logger.ErrorContext(ctx, "failed to save batch item", "batch_id", item.BatchID, "item_id", item.ID, "error", err)
	}
	s.saveJob(ctx, r, seq, job)
}

// updateJob applies fn to the job and persists it. It returns the snapshot
// that was saved.
func (s *Service) updateJob(ctx context.Context, r *run, fn func(*models.Job)) *models.Job {
	r.mu.Lock()
	fn(r.job)
	r.job.UpdatedAt = s.timestamp()
	seq, job := r.snapshotLocked()
	s.publishProgress(job)
	r.mu.Unlock()

	s.saveJob(ctx, r, seq, job)
	return job
}

func (r *run) snapshotLocked() (uint64, *models.Job) {
	r.seq++
	return r.seq, r.job.Clone()
}

// saveJob persists job unless a snapshot taken after it is already stored.
func (s *Service) saveJob(ctx context.Context, r *run, seq uint64, job *models.Job) {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	if seq <= r.savedSeq {
		return
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "failed to save batch job", "batch_id", job.ID, "error", err)
		return
	}
	r.savedSeq = seq
}

func (s *Service) finish(ctx context.Context, r *run) {
	job := s.updateJob(ctx, r, func(job *models.Job) {
		at := s.timestamp()
		job.Recalculate(r.items)
		job.CompletedAt = &at
	})
	status := appModels.StatusBatchCompleted
	if job.Status == models.JobPartiallyFailed {
		status = appModels.StatusBatchPartiallyFailed
	}
	s.setParentStatus(ctx, job, status)
	s.metrics.IncJobFinished(string(job.Status))
	s.logger.InfoContext(ctx, "batch finished",
		"batch_id", job.ID,
		"application_id", job.ApplicationID,
		"status", job.Status,
		"completed", job.CompletedItems,
		"failed", job.FailedItems,
	)
}

func (s *Service) setParentStatus(ctx context.Context, job *models.Job, status appModels.Status) {
	if _, err := s.apps.RecordBatchStatus(ctx, job.ApplicationID, job.ID, status); err != nil {
		s.logger.ErrorContext(ctx, "failed to update batch application status",
			"batch_id", job.ID,
			"application_id", job.ApplicationID,
			"status", status,
			"error", err,
		)
	}
}
