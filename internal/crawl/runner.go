package crawl

import (
	"context"

	"go-linkrot/internal/model"

	"github.com/sirupsen/logrus"
)

// Runner starts one Engine per crawl while sharing the transport and the
// robots.txt cache between crawls.
type Runner struct {
	defaults Config
	fetcher  Fetcher
	rules    RulesFetcher
	log      logrus.FieldLogger
}

func NewRunner(defaults Config, fetcher Fetcher, log logrus.FieldLogger) *Runner {
	if log == nil {
		log = discardLogger()
	}
	ua := defaults.Fetcher.UserAgent
	if ua == "" {
		ua = DefaultFetcherConfig().UserAgent
	}
	return &Runner{
		defaults: defaults,
		fetcher:  fetcher,
		rules:    NewRobotsFetcher(fetcher, ua, log),
		log:      log,
	}
}

// Run crawls input.URL. Non-zero fields of input override the defaults.
func (r *Runner) Run(ctx context.Context, input model.CrawlInput, onPage func(model.PageResult)) (*model.Report, error) {
	cfg := r.defaults
	if input.MaxConcurrency > 0 {
		cfg.MaxConcurrency = input.MaxConcurrency
	}
	if input.NonDocumentExtensions != nil {
		cfg.NonDocumentExtensions = input.NonDocumentExtensions
	}
	if input.MaxPages > 0 {
		cfg.MaxPages = input.MaxPages
	}

	keywords := make([]string, len(input.Keywords))
	copy(keywords, input.Keywords)

	engine := NewEngine(r.fetcher, cfg,
		WithRules(r.rules),
		WithLogger(r.log),
		WithProgress(onPage),
	)
	return engine.Run(ctx, input.URL, keywords)
}
