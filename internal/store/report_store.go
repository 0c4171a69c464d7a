package store

import (
	"context"
	"fmt"
	"sync"

	"go-linkrot/internal/model"
)

// ReportStore keeps finished crawl reports in memory, keyed by job id.
type ReportStore struct {
	reports map[string]*model.Report
	mu      sync.RWMutex
}

func NewReportStore() *ReportStore {
	return &ReportStore{
		reports: make(map[string]*model.Report),
	}
}

// SaveReport stores a copy of report, replacing any earlier one for jobID.
func (s *ReportStore) SaveReport(_ context.Context, jobID string, report *model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports[jobID] = CloneReport(report)
	return nil
}

func (s *ReportStore) GetReport(_ context.Context, jobID string) (*model.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.reports[jobID]
	if !ok {
		return nil, fmt.Errorf("report for job %s: %w", jobID, ErrNotFound)
	}
	return CloneReport(report), nil
}

// CloneReport deep-copies r.
func CloneReport(r *model.Report) *model.Report {
	if r == nil {
		return nil
	}
	c := *r
	c.Keywords = append([]string{}, r.Keywords...)
	c.Results = make([]model.PageResult, len(r.Results))
	for i, pr := range r.Results {
		c.Results[i] = model.PageResult{
			BaseURL:         pr.BaseURL,
			BrokenLinks:     append([]string{}, pr.BrokenLinks...),
			MatchedKeywords: append([]string{}, pr.MatchedKeywords...),
		}
	}
	return &c
}
