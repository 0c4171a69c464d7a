package crawl

import (
	"context"
	"strings"
	"sync"
)

type fakeResponse struct {
	status int
	body   string
	err    error
}

// fakeFetcher serves canned responses and counts calls per URL. Unknown
// URLs answer 404.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]fakeResponse
	calls map[string]int
}

func newFakeFetcher(pages map[string]fakeResponse) *fakeFetcher {
	return &fakeFetcher{pages: pages, calls: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string, wantBody bool) (*Response, error) {
	f.mu.Lock()
	f.calls[rawURL]++
	r, ok := f.pages[rawURL]
	f.mu.Unlock()

	if !ok {
		return &Response{URL: rawURL, StatusCode: 404}, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	resp := &Response{URL: rawURL, StatusCode: r.status}
	if wantBody {
		resp.Body = []byte(r.body)
	}
	return resp, nil
}

func (f *fakeFetcher) Calls(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

// countingResolver records how often each URL was handed to a batch.
type countingResolver struct {
	inner BatchResolver

	mu      sync.Mutex
	counts  map[string]int
	batches int
}

func newCountingResolver(inner BatchResolver) *countingResolver {
	return &countingResolver{inner: inner, counts: make(map[string]int)}
}

func (c *countingResolver) Resolve(ctx context.Context, urls []string, wantContent bool) map[string]Resolution {
	c.mu.Lock()
	c.batches++
	for _, u := range urls {
		c.counts[u]++
	}
	c.mu.Unlock()
	return c.inner.Resolve(ctx, urls, wantContent)
}

type prefixRules struct {
	disallowed []string
}

func (r prefixRules) Allowed(rawURL string) bool {
	for _, p := range r.disallowed {
		if strings.HasPrefix(rawURL, p) {
			return false
		}
	}
	return true
}

type staticRules struct {
	rules RuleSet
}

func (s staticRules) FetchRules(context.Context, string) (RuleSet, error) {
	return s.rules, nil
}

// countingText counts PlainText calls.
type countingText struct {
	mu    sync.Mutex
	calls int
}

func (c *countingText) PlainText(content []byte) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return HTMLText{}.PlainText(content)
}

func doc(body string) string {
	return "<html><head><title>t</title></head><body>" + body + "</body></html>"
}
