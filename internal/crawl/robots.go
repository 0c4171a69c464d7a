package crawl

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RuleSet answers crawl-permission questions for one site.
type RuleSet interface {
	Allowed(rawURL string) bool
}

type RulesFetcher interface {
	FetchRules(ctx context.Context, siteURL string) (RuleSet, error)
}

// AllowAll is the RuleSet used when a site publishes no usable rules.
type AllowAll struct{}

func (AllowAll) Allowed(string) bool { return true }

type robotsRules struct {
	data      *robotstxt.RobotsData
	userAgent string
}

func (r robotsRules) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return r.data.TestAgent(u.RequestURI(), r.userAgent)
}

// RobotsFetcher loads robots.txt through a Fetcher and caches the parsed
// rules per scheme and host. It is safe for concurrent use so one
// instance can serve every crawl of a long-running process.
type RobotsFetcher struct {
	fetcher   Fetcher
	userAgent string
	log       logrus.FieldLogger

	mu    sync.RWMutex
	cache map[string]RuleSet
}

func NewRobotsFetcher(fetcher Fetcher, userAgent string, log logrus.FieldLogger) *RobotsFetcher {
	if log == nil {
		log = discardLogger()
	}
	return &RobotsFetcher{
		fetcher:   fetcher,
		userAgent: userAgent,
		log:       log,
		cache:     make(map[string]RuleSet),
	}
}

func (r *RobotsFetcher) FetchRules(ctx context.Context, siteURL string) (RuleSet, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("parse site url: %w", err)
	}
	key := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)

	r.mu.RLock()
	rules, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return rules, nil
	}

	rules, cacheable := r.load(ctx, key)
	if !cacheable {
		return rules, nil
	}

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		rules = cached
	} else {
		r.cache[key] = rules
	}
	r.mu.Unlock()
	return rules, nil
}

// load fetches and parses the rules for origin. Only rules derived from an
// HTTP answer are cacheable; a transport failure yields AllowAll for this
// call alone so the next crawl asks again.
func (r *RobotsFetcher) load(ctx context.Context, origin string) (RuleSet, bool) {
	robotsURL := origin + "/robots.txt"
	log := r.log.WithField("url", robotsURL)

	resp, err := r.fetcher.Fetch(ctx, robotsURL, true)
	if err != nil {
		log.WithError(err).Warn("robots.txt unreachable, allowing all")
		return AllowAll{}, false
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		log.WithError(err).Warn("robots.txt unparsable, allowing all")
		return AllowAll{}, true
	}
	log.WithField("status", resp.StatusCode).Debug("robots.txt loaded")
	return robotsRules{data: data, userAgent: r.userAgent}, true
}
