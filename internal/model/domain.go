package model

import "time"

type CrawlStatus string

const (
	CrawlStatusPending   CrawlStatus = "PENDING"
	CrawlStatusRunning   CrawlStatus = "RUNNING"
	CrawlStatusCompleted CrawlStatus = "COMPLETED"
	CrawlStatusCancelled CrawlStatus = "CANCELLED"
	CrawlStatusFailed    CrawlStatus = "FAILED"
)

func (s CrawlStatus) Finished() bool {
	return s == CrawlStatusCompleted || s == CrawlStatusCancelled || s == CrawlStatusFailed
}

// CrawlInput is what a caller submits. Zero values fall back to the
// server's configured defaults.
type CrawlInput struct {
	URL                   string   `json:"url"`
	Keywords              []string `json:"keywords"`
	MaxConcurrency        int      `json:"max_concurrency,omitempty"`
	NonDocumentExtensions []string `json:"non_document_extensions,omitempty"`
	MaxPages              int      `json:"max_pages,omitempty"`
}

type CrawlJob struct {
	ID     string      `json:"id"`
	Input  CrawlInput  `json:"input"`
	Status CrawlStatus `json:"status"`

	PagesCrawled int    `json:"pages_crawled"`
	Error        string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageResult is the entry recorded for every crawled page.
type PageResult struct {
	BaseURL         string   `json:"base_url"`
	BrokenLinks     []string `json:"broken_links"`
	MatchedKeywords []string `json:"matched_keywords"`
}

// Report is the outcome of one crawl. It is complete when neither
// Cancelled nor Truncated is set.
type Report struct {
	URL               string       `json:"url"`
	Keywords          []string     `json:"keywords"`
	TotalVisitedLinks int          `json:"total_visited_links"`
	Results           []PageResult `json:"results"`

	PagesQueued  int  `json:"pages_queued"`
	PagesCrawled int  `json:"pages_crawled"`
	Cancelled    bool `json:"cancelled,omitempty"`
	Truncated    bool `json:"truncated,omitempty"`
}
