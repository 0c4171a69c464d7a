package crawl

import (
	"context"
	"errors"
	"fmt"

	"go-linkrot/internal/model"
	"go-linkrot/internal/search"

	"github.com/sirupsen/logrus"
)

var ErrNotFetched = errors.New("crawl: page content not fetched")

// Link is a discovered URL and, once resolved, its status.
type Link struct {
	URL        string
	StatusCode int
	Resolved   bool
}

// Page is one document of the site. Each derived value (content,
// keywords, links) is computed once and cached behind an explicit flag.
type Page struct {
	link    Link
	hostURL string

	content []byte
	fetched bool

	keywords []string
	matched  bool

	parsed    *ParsedPage
	extracted bool

	external    []Link
	hasExternal bool
	internal    []Link
	hasInternal bool

	broken []string
}

func NewPage(hostURL, url string) *Page {
	return &Page{
		link:    Link{URL: url},
		hostURL: hostURL,
	}
}

// newFetchedPage wraps content that was already retrieved while the link
// was being resolved.
func newFetchedPage(hostURL, url string, status int, content []byte) *Page {
	return &Page{
		link:    Link{URL: url, StatusCode: status, Resolved: true},
		hostURL: hostURL,
		content: content,
		fetched: true,
	}
}

func (p *Page) URL() string     { return p.link.URL }
func (p *Page) HostURL() string { return p.hostURL }
func (p *Page) StatusCode() int { return p.link.StatusCode }
func (p *Page) Fetched() bool   { return p.fetched }

// Fetch retrieves the page once. After a successful call further calls
// return immediately.
func (p *Page) Fetch(ctx context.Context, f Fetcher) error {
	if p.fetched {
		return nil
	}
	resp, err := f.Fetch(ctx, p.link.URL, true)
	if err != nil {
		p.link.StatusCode = StatusUnresolved
		p.link.Resolved = true
		return fmt.Errorf("fetch %s: %w", p.link.URL, err)
	}
	p.link.StatusCode = resp.StatusCode
	p.link.Resolved = true
	p.content = resp.Body
	p.fetched = true
	return nil
}

// ExtractKeywords returns the keywords found in the page text. The
// result is cached, so text extraction runs at most once per page.
// Unparsable HTML is searched as raw text.
func (p *Page) ExtractKeywords(a *search.Automaton, te TextExtractor) ([]string, error) {
	if p.matched {
		return p.keywords, nil
	}
	if !p.fetched {
		return nil, ErrNotFetched
	}

	text, err := te.PlainText(p.content)
	if err != nil {
		text = string(p.content)
	}
	keywords, err := a.Search(text)
	if err != nil {
		return nil, err
	}
	p.keywords = keywords
	p.matched = true
	return p.keywords, nil
}

func (p *Page) links() []string {
	if !p.extracted {
		p.extracted = true
		if !p.fetched {
			return nil
		}
		parsed, err := ParsePage(p.link.URL, p.content)
		if err != nil {
			parsed = &ParsedPage{}
		}
		p.parsed = parsed
	}
	if p.parsed == nil {
		return nil
	}
	return p.parsed.Links
}

func (p *Page) ExtractExternalLinks(c *Classifier) []Link {
	if p.hasExternal {
		return p.external
	}
	for _, u := range p.links() {
		if c.Classify(u) == LinkExternal && c.IsCrawlable(u) {
			p.external = append(p.external, Link{URL: u})
		}
	}
	p.hasExternal = true
	return p.external
}

// ExtractInternalLinks returns the same-host links the rules allow.
// Disallowed links are logged and dropped.
func (p *Page) ExtractInternalLinks(c *Classifier, rules RuleSet, log logrus.FieldLogger) []Link {
	if p.hasInternal {
		return p.internal
	}
	for _, u := range p.links() {
		if c.Classify(u) != LinkInternal || !c.IsCrawlable(u) {
			continue
		}
		if !rules.Allowed(u) {
			if log != nil {
				log.WithField("link", u).Info("disallowed by robots.txt")
			}
			continue
		}
		p.internal = append(p.internal, Link{URL: u})
	}
	p.hasInternal = true
	return p.internal
}

// ResolveLinks assigns a status to every extracted link. Links already in
// state reuse their recorded status; the rest are resolved in one batch
// per kind and recorded. Internal links that fail are recorded as broken
// on every page that references them, including pages that only see a
// status cached by an earlier page, so each result stands on its own.
// Internal links resolved successfully by this call become new pages,
// carrying the content fetched for them.
func (p *Page) ResolveLinks(ctx context.Context, state *State, r BatchResolver) []*Page {
	state.Record(p.link.URL, p.link.StatusCode)

	if pending := unresolved(state, p.external); len(pending) > 0 {
		res := r.Resolve(ctx, pending, false)
		for _, u := range pending {
			state.Record(u, res[u].StatusCode)
		}
	}
	for i := range p.external {
		p.external[i].StatusCode, p.external[i].Resolved = state.Status(p.external[i].URL)
	}

	fresh := make(map[string]Resolution)
	if pending := unresolved(state, p.internal); len(pending) > 0 {
		res := r.Resolve(ctx, pending, true)
		for _, u := range pending {
			if state.Record(u, res[u].StatusCode) {
				fresh[u] = res[u]
			}
		}
	}

	var next []*Page
	for i := range p.internal {
		l := &p.internal[i]
		l.StatusCode, l.Resolved = state.Status(l.URL)

		switch {
		case l.StatusCode == StatusUnresolved:
		case !IsStatusOK(l.StatusCode):
			p.broken = append(p.broken, l.URL)
		default:
			res, ok := fresh[l.URL]
			if ok && state.MarkQueued(l.URL) {
				next = append(next, newFetchedPage(p.hostURL, l.URL, res.StatusCode, res.Content))
			}
		}
	}
	return next
}

func unresolved(state *State, links []Link) []string {
	var pending []string
	seen := make(map[string]struct{}, len(links))
	for _, l := range links {
		if _, ok := state.Status(l.URL); ok {
			continue
		}
		if _, dup := seen[l.URL]; dup {
			continue
		}
		seen[l.URL] = struct{}{}
		pending = append(pending, l.URL)
	}
	return pending
}

func (p *Page) BrokenLinks() []string {
	return p.broken
}

// Result is the entry recorded for this page.
func (p *Page) Result() model.PageResult {
	broken := make([]string, len(p.broken))
	copy(broken, p.broken)
	keywords := make([]string, len(p.keywords))
	copy(keywords, p.keywords)
	return model.PageResult{
		BaseURL:         p.link.URL,
		BrokenLinks:     broken,
		MatchedKeywords: keywords,
	}
}

// Release drops the page content once links and keywords are derived.
func (p *Page) Release() {
	p.content = nil
	p.parsed = nil
}
