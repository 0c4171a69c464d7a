package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go-linkrot/internal/model"
	"go-linkrot/internal/search"

	"github.com/sirupsen/logrus"
)

var (
	ErrEngineUsed     = errors.New("crawl: engine already run")
	ErrInvalidRootURL = errors.New("crawl: invalid root url")
)

type Config struct {
	// MaxConcurrency bounds the parallel fetches of one link batch.
	MaxConcurrency int
	// NonDocumentExtensions overrides DefaultNonDocumentExtensions when non-nil.
	NonDocumentExtensions []string
	// MaxPages stops the crawl after that many pages; 0 means no limit.
	MaxPages int

	Fetcher FetcherConfig
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 8,
		Fetcher:        DefaultFetcherConfig(),
	}
}

type Option func(*Engine)

func WithResolver(r BatchResolver) Option { return func(e *Engine) { e.resolver = r } }

func WithRules(r RulesFetcher) Option { return func(e *Engine) { e.rules = r } }

func WithTextExtractor(t TextExtractor) Option { return func(e *Engine) { e.text = t } }

func WithLogger(l logrus.FieldLogger) Option { return func(e *Engine) { e.log = l } }

// WithProgress registers fn to be called with each page result right
// after it is recorded.
func WithProgress(fn func(model.PageResult)) Option { return func(e *Engine) { e.onPage = fn } }

// Engine drives one breadth-first crawl. It owns the keyword automaton
// and the crawl state; build a new Engine for every crawl.
type Engine struct {
	cfg      Config
	fetcher  Fetcher
	resolver BatchResolver
	rules    RulesFetcher
	text     TextExtractor
	log      logrus.FieldLogger
	onPage   func(model.PageResult)

	automaton *search.Automaton
	state     *State
	used      bool
}

func NewEngine(fetcher Fetcher, cfg Config, opts ...Option) *Engine {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	e := &Engine{
		cfg:       cfg,
		fetcher:   fetcher,
		text:      HTMLText{},
		automaton: search.NewAutomaton(),
		state:     NewState(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = discardLogger()
	}
	if e.resolver == nil {
		e.resolver = NewConcurrentResolver(fetcher, cfg.MaxConcurrency, e.log)
	}
	if e.rules == nil {
		ua := cfg.Fetcher.UserAgent
		if ua == "" {
			ua = DefaultFetcherConfig().UserAgent
		}
		e.rules = NewRobotsFetcher(fetcher, ua, e.log)
	}
	return e
}

// Crawl runs a single crawl of rootURL over HTTP.
func Crawl(ctx context.Context, rootURL string, keywords []string, cfg Config, opts ...Option) (*model.Report, error) {
	return NewEngine(NewHTTPFetcher(cfg.Fetcher), cfg, opts...).Run(ctx, rootURL, keywords)
}

// Run crawls the site under rootURL and returns the report. Dead and
// unreachable links never fail the run; it returns an error only for an
// invalid root URL or a keyword automaton failure. When ctx is cancelled
// the crawl stops before the next page and the partial report is
// returned with Cancelled set.
func (e *Engine) Run(ctx context.Context, rootURL string, keywords []string) (*model.Report, error) {
	if e.used {
		return nil, ErrEngineUsed
	}
	e.used = true

	root, err := normalizeRoot(rootURL)
	if err != nil {
		return nil, err
	}
	log := e.log.WithField("site", root)

	// INIT
	for _, k := range keywords {
		if search.Normalize(k) == "" {
			continue
		}
		if err := e.automaton.AddKeyword(k); err != nil {
			return nil, fmt.Errorf("add keyword %q: %w", k, err)
		}
	}
	if err := e.automaton.Build(); err != nil {
		return nil, fmt.Errorf("build automaton: %w", err)
	}

	classifier, err := NewClassifier(root, e.cfg.NonDocumentExtensions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRootURL, err)
	}

	rules, err := e.rules.FetchRules(ctx, root)
	if err != nil {
		log.WithError(err).Warn("permission rules unavailable, allowing all")
		rules = AllowAll{}
	}

	e.state.MarkQueued(root)
	frontier := []*Page{NewPage(root, root)}
	report := &model.Report{
		URL:      root,
		Keywords: e.automaton.Keywords(),
	}
	log.WithField("keywords", len(report.Keywords)).Info("crawl started")

	for len(frontier) > 0 {
		if ctx.Err() != nil {
			report.Cancelled = true
			log.Info("crawl cancelled")
			break
		}
		if e.cfg.MaxPages > 0 && e.state.PagesCrawled() >= e.cfg.MaxPages {
			report.Truncated = true
			log.WithField("max_pages", e.cfg.MaxPages).Info("max pages reached")
			break
		}

		page := frontier[0]
		frontier[0] = nil
		frontier = frontier[1:]

		next, err := e.process(ctx, page, classifier, rules)
		if err != nil {
			return nil, err
		}
		frontier = append(frontier, next...)
	}

	report.TotalVisitedLinks = e.state.Visited()
	report.Results = e.state.Results()
	report.PagesQueued = e.state.PagesQueued()
	report.PagesCrawled = e.state.PagesCrawled()

	log.WithFields(logrus.Fields{
		"pages":   report.PagesCrawled,
		"visited": report.TotalVisitedLinks,
	}).Info("crawl finished")
	return report, nil
}

// process runs DISCOVER, RESOLVE and AGGREGATE for one page.
func (e *Engine) process(ctx context.Context, page *Page, classifier *Classifier, rules RuleSet) ([]*Page, error) {
	log := e.log.WithField("url", page.URL())

	if err := page.Fetch(ctx, e.fetcher); err != nil {
		log.WithError(err).Warn("page fetch failed")
	}

	if _, err := page.ExtractKeywords(e.automaton, e.text); err != nil && !errors.Is(err, ErrNotFetched) {
		return nil, fmt.Errorf("match keywords on %s: %w", page.URL(), err)
	}
	external := page.ExtractExternalLinks(classifier)
	internal := page.ExtractInternalLinks(classifier, rules, log)

	next := page.ResolveLinks(ctx, e.state, e.resolver)

	result := page.Result()
	e.state.AddResult(result)
	if e.onPage != nil {
		e.onPage(result)
	}
	page.Release()

	log.WithFields(logrus.Fields{
		"status":   page.StatusCode(),
		"internal": len(internal),
		"external": len(external),
		"broken":   len(result.BrokenLinks),
		"keywords": len(result.MatchedKeywords),
		"enqueued": len(next),
	}).Debug("page crawled")
	return next, nil
}

// State exposes the crawl state, mainly for inspection after Run.
func (e *Engine) State() *State {
	return e.state
}

func normalizeRoot(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRootURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRootURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidRootURL)
	}
	return NormalizeURL(u), nil
}
