package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	appModels "labelcheck/internal/application/models"
	"labelcheck/internal/batch/extractor"
	"labelcheck/internal/batch/models"
	"labelcheck/internal/batch/store"
	dErrors "labelcheck/pkg/domain-errors"
	"labelcheck/pkg/platform/sentinel"
)

// gatedJobStore parks the first SaveJob after arm until release is closed.
type gatedJobStore struct {
	*store.InMemory
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func newGatedJobStore() *gatedJobStore {
	return &gatedJobStore{
		InMemory: store.NewInMemory(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (g *gatedJobStore) arm() {
	g.mu.Lock()
	g.armed = true
	g.mu.Unlock()
}

func (g *gatedJobStore) SaveJob(ctx context.Context, job *models.Job) error {
	g.mu.Lock()
	park := g.armed
	g.armed = false
	g.mu.Unlock()
	if park {
		close(g.entered)
		<-g.release
	}
	return g.InMemory.SaveJob(ctx, job)
}

// failingJobStore rejects every job write.
type failingJobStore struct {
	*store.InMemory
}

func (failingJobStore) SaveJob(context.Context, *models.Job) error {
	return fmt.Errorf("save job: %w", sentinel.ErrUnavailable)
}

func (s *BatchServiceSuite) testRun(n int) *run {
	at := time.Now()
	job := &models.Job{ID: "batch-1", ApplicationID: "app-1", Status: models.JobReceived, CreatedAt: at, UpdatedAt: at}
	items := make([]models.Item, n)
	for i := range items {
		items[i] = models.Item{ID: fmt.Sprintf("item-%d", i), BatchID: job.ID, Index: i, Status: models.ItemQueued, UpdatedAt: at}
	}
	return &run{job: job, items: items, done: make(chan struct{})}
}

func (s *BatchServiceSuite) TestSlowJobWriteDoesNotBlockOtherItems() {
	repo := newGatedJobStore()
	svc := New(repo, s.apps, extractor.New(), s.images, s.bus)
	r := s.testRun(2)
	repo.arm()

	first := make(chan struct{})
	go func() {
		defer close(first)
		svc.update(s.ctx, r, 0, func(it *models.Item) { it.Status = models.ItemProcessing })
	}()
	<-repo.entered

	second := make(chan struct{})
	go func() {
		defer close(second)
		svc.update(s.ctx, r, 1, func(it *models.Item) { it.Status = models.ItemProcessing })
	}()

	s.Eventually(func() bool {
		it, err := repo.FindItem(s.ctx, "item-1")
		return err == nil && it.Status == models.ItemProcessing
	}, 2*time.Second, 5*time.Millisecond, "second item is saved while the first job write is parked")
	s.Equal(models.ItemProcessing, r.item(0).Status)

	close(repo.release)
	<-first
	<-second

	job, err := repo.FindJob(s.ctx, "batch-1")
	s.Require().NoError(err)
	s.Equal(2, job.ProcessingItems, "the newest job snapshot is the one stored")
}

func (s *BatchServiceSuite) TestStaleJobSnapshotIsNotSaved() {
	svc := New(s.repo, s.apps, extractor.New(), s.images, s.bus)
	r := s.testRun(1)

	seqOld, older := r.snapshotLocked()
	r.job.Status = models.JobProcessing
	seqNew, newer := r.snapshotLocked()

	svc.saveJob(s.ctx, r, seqNew, newer)
	svc.saveJob(s.ctx, r, seqOld, older)

	job, err := s.repo.FindJob(s.ctx, "batch-1")
	s.Require().NoError(err)
	s.Equal(models.JobProcessing, job.Status)
}

func (s *BatchServiceSuite) TestJobSaveFailureFailsParent() {
	svc := New(failingJobStore{store.NewInMemory()}, s.apps, extractor.New(), s.images, s.bus)
	_, err := svc.Start(s.ctx, StartRequest{Items: s.storedItems(1, nil), Profile: appModels.ProfileWine, ActorID: "officer-1"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	apps, err := s.apps.ListApplications(s.ctx, nil)
	s.Require().NoError(err)
	s.Require().Len(apps, 1)
	s.Equal(appModels.StatusBatchPartiallyFailed, apps[0].Status)
}
