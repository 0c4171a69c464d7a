package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-linkrot/internal/model"
	"go-linkrot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCrawler reports pages results through onPage, then returns report or err. When
// block is set it waits for cancellation before returning.
type stubCrawler struct {
	pages  int
	report *model.Report
	err    error
	block  bool

	mu    sync.Mutex
	input model.CrawlInput
}

func (c *stubCrawler) Run(ctx context.Context, input model.CrawlInput, onPage func(model.PageResult)) (*model.Report, error) {
	c.mu.Lock()
	c.input = input
	c.mu.Unlock()

	for i := 0; i < c.pages; i++ {
		onPage(model.PageResult{BaseURL: input.URL})
	}
	if c.block {
		<-ctx.Done()
		return &model.Report{URL: input.URL, Cancelled: true, PagesCrawled: c.pages}, nil
	}
	return c.report, c.err
}

func newService(c Crawler) (*CrawlService, *store.ReportStore) {
	reports := store.NewReportStore()
	return NewCrawlService(store.NewJobStore(), reports, c, nil), reports
}

func waitJob(t *testing.T, svc *CrawlService, id string) *model.CrawlJob {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := svc.Wait(ctx, id)
	require.NoError(t, err)
	return job
}

func TestCrawlService_Completes(t *testing.T) {
	report := &model.Report{
		URL:          "https://site.test/",
		Keywords:     []string{"go"},
		Results:      []model.PageResult{{BaseURL: "https://site.test/", BrokenLinks: []string{}, MatchedKeywords: []string{"go"}}},
		PagesCrawled: 1,
	}
	crawler := &stubCrawler{pages: 3, report: report}
	svc, _ := newService(crawler)

	input := model.CrawlInput{URL: "https://site.test", Keywords: []string{"go"}}
	job, err := svc.Submit(context.Background(), input)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.CrawlStatusPending, job.Status)

	done := waitJob(t, svc, job.ID)
	assert.Equal(t, model.CrawlStatusCompleted, done.Status)
	assert.Equal(t, 3, done.PagesCrawled)
	assert.Empty(t, done.Error)

	got, err := svc.GetReport(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, report, got)
	assert.Equal(t, input, crawler.input)
}

func TestCrawlService_Failure(t *testing.T) {
	svc, _ := newService(&stubCrawler{err: errors.New("automaton exploded")})

	job, err := svc.Submit(context.Background(), model.CrawlInput{URL: "https://site.test"})
	require.NoError(t, err)

	done := waitJob(t, svc, job.ID)
	assert.Equal(t, model.CrawlStatusFailed, done.Status)
	assert.Equal(t, "automaton exploded", done.Error)

	_, err = svc.GetReport(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrReportNotReady)
}

func TestCrawlService_Cancel(t *testing.T) {
	svc, _ := newService(&stubCrawler{pages: 1, block: true})

	job, err := svc.Submit(context.Background(), model.CrawlInput{URL: "https://site.test"})
	require.NoError(t, err)

	_, err = svc.GetReport(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrReportNotReady)

	require.NoError(t, svc.Cancel(context.Background(), job.ID))
	done := waitJob(t, svc, job.ID)
	assert.Equal(t, model.CrawlStatusCancelled, done.Status)

	report, err := svc.GetReport(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, report.Cancelled)

	// already finished
	assert.NoError(t, svc.Cancel(context.Background(), job.ID))
}

func TestCrawlService_UnknownJob(t *testing.T) {
	svc, _ := newService(&stubCrawler{})
	ctx := context.Background()

	_, err := svc.GetJob(ctx, "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = svc.GetReport(ctx, "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, svc.Cancel(ctx, "nope"), ErrJobNotFound)
	_, err = svc.Wait(ctx, "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestCrawlService_RejectsInvalidInput(t *testing.T) {
	svc, _ := newService(&stubCrawler{})

	for _, input := range []model.CrawlInput{
		{URL: ""},
		{URL: "ftp://site.test"},
		{URL: "https://"},
		{URL: "https://site.test", MaxPages: -1},
	} {
		_, err := svc.Submit(context.Background(), input)
		assert.ErrorIs(t, err, ErrInvalidInput, input.URL)
	}
}

func TestCrawlService_Shutdown(t *testing.T) {
	svc, _ := newService(&stubCrawler{block: true})

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := svc.Submit(context.Background(), model.CrawlInput{URL: "https://site.test"})
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	for _, id := range ids {
		job, err := svc.GetJob(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, model.CrawlStatusCancelled, job.Status)
	}
}

type failingWriter struct{ calls int }

func (f *failingWriter) SaveReport(context.Context, string, *model.Report) error {
	f.calls++
	return errors.New("database down")
}

func TestPersistingWriter(t *testing.T) {
	ctx := context.Background()
	primary := store.NewReportStore()
	mirror := store.NewReportStore()
	broken := &failingWriter{}
	w := NewPersistingWriter(primary, nil, broken, mirror)

	report := &model.Report{URL: "https://site.test/", Keywords: []string{}, Results: []model.PageResult{}}
	require.NoError(t, w.SaveReport(ctx, "job", report))
	assert.Equal(t, 1, broken.calls)

	got, err := w.GetReport(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, report, got)

	mirrored, err := mirror.GetReport(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, report.URL, mirrored.URL)
}
