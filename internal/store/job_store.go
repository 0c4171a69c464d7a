package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-linkrot/internal/model"
)

var ErrNotFound = errors.New("store: not found")

// JobStore keeps crawl jobs in memory. Callers always get copies, so a
// job returned by GetJob never changes underneath them.
type JobStore struct {
	jobs map[string]*model.CrawlJob
	mu   sync.RWMutex
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*model.CrawlJob),
	}
}

func (s *JobStore) CreateJob(_ context.Context, job *model.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *JobStore) GetJob(_ context.Context, id string) (*model.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return cloneJob(job), nil
}

func (s *JobStore) UpdateJobStatus(_ context.Context, id string, status model.CrawlStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	job.Status = status
	job.Error = errMsg
	job.UpdatedAt = time.Now()
	return nil
}

func (s *JobStore) IncrementPagesCrawled(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	job.PagesCrawled++
	job.UpdatedAt = time.Now()
	return nil
}

func cloneJob(job *model.CrawlJob) *model.CrawlJob {
	c := *job
	if job.Input.Keywords != nil {
		c.Input.Keywords = append([]string{}, job.Input.Keywords...)
	}
	if job.Input.NonDocumentExtensions != nil {
		c.Input.NonDocumentExtensions = append([]string{}, job.Input.NonDocumentExtensions...)
	}
	return &c
}
