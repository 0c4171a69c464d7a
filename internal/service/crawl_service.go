package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"go-linkrot/internal/model"
	"go-linkrot/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrReportNotReady = errors.New("report not ready")
	ErrInvalidInput   = errors.New("invalid crawl input")
)

// /interfaces defined
type JobRepository interface {
	CreateJob(ctx context.Context, job *model.CrawlJob) error
	GetJob(ctx context.Context, id string) (*model.CrawlJob, error)
	UpdateJobStatus(ctx context.Context, id string, status model.CrawlStatus, errMsg string) error
	IncrementPagesCrawled(ctx context.Context, id string) error
}

type ReportWriter interface {
	SaveReport(ctx context.Context, jobID string, report *model.Report) error
}

type ReportRepository interface {
	ReportWriter
	GetReport(ctx context.Context, jobID string) (*model.Report, error)
}

// Crawler runs one crawl to completion. crawl.Runner implements it.
type Crawler interface {
	Run(ctx context.Context, input model.CrawlInput, onPage func(model.PageResult)) (*model.Report, error)
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

///crawlservice - orchestration

type CrawlService struct {
	jobs    JobRepository
	reports ReportRepository
	crawler Crawler
	log     logrus.FieldLogger

	mu      sync.Mutex
	running map[string]*run
	wg      sync.WaitGroup
}

// constructor
func NewCrawlService(jobs JobRepository, reports ReportRepository, crawler Crawler, log logrus.FieldLogger) *CrawlService {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	return &CrawlService{
		jobs:    jobs,
		reports: reports,
		crawler: crawler,
		log:     log,
		running: make(map[string]*run),
	}
}

// Submit registers a job and starts crawling in the background. The
// crawl outlives ctx; use Cancel to stop it.
func (s *CrawlService) Submit(ctx context.Context, input model.CrawlInput) (*model.CrawlJob, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	now := time.Now()
	job := &model.CrawlJob{
		ID:        uuid.New().String(),
		Input:     input,
		Status:    model.CrawlStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.running[job.ID] = r
	s.mu.Unlock()

	s.wg.Add(1)
	go s.execute(runCtx, job.ID, input, r)

	s.log.WithFields(logrus.Fields{"job": job.ID, "url": input.URL}).Info("crawl job submitted")
	return job, nil
}

func (s *CrawlService) execute(ctx context.Context, id string, input model.CrawlInput, r *run) {
	defer s.wg.Done()
	defer func() {
		r.cancel()
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
		close(r.done)
	}()

	log := s.log.WithField("job", id)
	// status bookkeeping must land even after the crawl is cancelled
	bg := context.Background()

	if err := s.jobs.UpdateJobStatus(bg, id, model.CrawlStatusRunning, ""); err != nil {
		log.WithError(err).Error("mark job running")
	}

	report, err := s.crawler.Run(ctx, input, func(model.PageResult) {
		if err := s.jobs.IncrementPagesCrawled(bg, id); err != nil {
			log.WithError(err).Warn("increment pages crawled")
		}
	})
	if err != nil {
		log.WithError(err).Error("crawl failed")
		s.finish(bg, log, id, model.CrawlStatusFailed, err.Error())
		return
	}

	if err := s.reports.SaveReport(bg, id, report); err != nil {
		log.WithError(err).Error("save report")
		s.finish(bg, log, id, model.CrawlStatusFailed, fmt.Sprintf("save report: %v", err))
		return
	}

	status := model.CrawlStatusCompleted
	if report.Cancelled {
		status = model.CrawlStatusCancelled
	}
	log.WithFields(logrus.Fields{
		"status":  status,
		"pages":   report.PagesCrawled,
		"visited": report.TotalVisitedLinks,
	}).Info("crawl job finished")
	s.finish(bg, log, id, status, "")
}

func (s *CrawlService) finish(ctx context.Context, log logrus.FieldLogger, id string, status model.CrawlStatus, errMsg string) {
	if err := s.jobs.UpdateJobStatus(ctx, id, status, errMsg); err != nil {
		log.WithError(err).Error("update job status")
	}
}

func (s *CrawlService) GetJob(ctx context.Context, id string) (*model.CrawlJob, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, err
	}
	return job, nil
}

// GetReport returns the report of a finished job. It fails with
// ErrReportNotReady while the job is still pending or running.
func (s *CrawlService) GetReport(ctx context.Context, id string) (*model.Report, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.Finished() {
		return nil, fmt.Errorf("%w: job %s is %s", ErrReportNotReady, id, job.Status)
	}
	report, err := s.reports.GetReport(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: job %s has no report", ErrReportNotReady, id)
		}
		return nil, err
	}
	return report, nil
}

// Cancel asks a running job to stop. The job keeps the pages crawled so
// far and ends CANCELLED. Cancelling a finished job is a no-op.
func (s *CrawlService) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	r, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		r.cancel()
		s.log.WithField("job", id).Info("crawl job cancel requested")
		return nil
	}
	_, err := s.GetJob(ctx, id)
	return err
}

// Wait blocks until the job has finished or ctx is done, then returns
// the job's latest state.
func (s *CrawlService) Wait(ctx context.Context, id string) (*model.CrawlJob, error) {
	s.mu.Lock()
	r, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.GetJob(ctx, id)
}

// Shutdown cancels every running job and waits for them to record their
// final state.
func (s *CrawlService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, r := range s.running {
		r.cancel()
	}
	s.mu.Unlock()

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

func validateInput(input model.CrawlInput) error {
	u, err := url.Parse(input.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url must be http or https", ErrInvalidInput)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url has no host", ErrInvalidInput)
	}
	if input.MaxConcurrency < 0 || input.MaxPages < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidInput)
	}
	return nil
}
