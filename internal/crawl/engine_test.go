package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go-linkrot/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_BrokenLinksAndKeywords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, doc(`<a href="/a">A</a> <a href="/b">B</a>`))
		case "/a":
			fmt.Fprint(w, doc(`<p>all about FOO here</p>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.MaxConcurrency = 2
	report, err := Crawl(context.Background(), server.URL, []string{"foo"}, cfg)
	require.NoError(t, err)

	root := server.URL + "/"
	assert.Equal(t, root, report.URL)
	assert.Equal(t, []string{"foo"}, report.Keywords)
	assert.Equal(t, []model.PageResult{
		{BaseURL: root, BrokenLinks: []string{server.URL + "/b"}, MatchedKeywords: []string{}},
		{BaseURL: server.URL + "/a", BrokenLinks: []string{}, MatchedKeywords: []string{"foo"}},
	}, report.Results)
	assert.Equal(t, 3, report.TotalVisitedLinks)
	assert.Equal(t, report.PagesQueued, report.PagesCrawled)
	assert.False(t, report.Cancelled)
	assert.False(t, report.Truncated)
}

func TestEngine_ResolvesEachURLOnce(t *testing.T) {
	const site = "https://site.test"
	fetcher := newFakeFetcher(map[string]fakeResponse{
		site + "/": {status: 200, body: doc(`
			<a href="/a">a</a><a href="/b">b</a><a href="/c">c</a>
			<a href="https://other.test/x">x</a>`)},
		site + "/a": {status: 200, body: doc(`
			<a href="/">home</a><a href="/a">self</a><a href="/b">b</a><a href="/c">c</a>
			<a href="https://other.test/x">x</a><a href="/d">d</a>`)},
		site + "/b": {status: 200, body: doc(`<a href="/a">a</a><a href="/d">d</a><a href="/gone">gone</a>`)},
		site + "/c": {status: 200, body: doc("c")},
		site + "/d": {status: 200, body: doc(`<a href="/b">b</a><a href="/gone">gone</a>`)},
		"https://other.test/x": {status: 200},
	})
	resolver := newCountingResolver(NewConcurrentResolver(fetcher, 4, nil))

	engine := NewEngine(fetcher, DefaultConfig(),
		WithResolver(resolver),
		WithRules(staticRules{rules: AllowAll{}}),
	)
	report, err := engine.Run(context.Background(), site, nil)
	require.NoError(t, err)

	for u, n := range resolver.counts {
		assert.Equal(t, 1, n, "url %s resolved %d times", u, n)
	}
	for u, n := range fetcher.calls {
		assert.Equal(t, 1, n, "url %s fetched %d times", u, n)
	}
	assert.True(t, engine.State().Complete())
	assert.Equal(t, 5, report.PagesCrawled)

	var order []string
	broken := map[string][]string{}
	for _, r := range report.Results {
		order = append(order, r.BaseURL)
		broken[r.BaseURL] = r.BrokenLinks
	}
	assert.Equal(t, []string{site + "/", site + "/a", site + "/b", site + "/c", site + "/d"}, order)
	assert.Equal(t, []string{site + "/gone"}, broken[site+"/b"])
	assert.Equal(t, []string{site + "/gone"}, broken[site+"/d"])
	assert.Empty(t, broken[site+"/a"])
}

func TestEngine_PermissionDeniedNeverFetched(t *testing.T) {
	var privateHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprintln(w, "User-agent: *")
			fmt.Fprintln(w, "Disallow: /private")
		case "/":
			fmt.Fprint(w, doc(`<a href="/public">p</a><a href="/private">x</a>`))
		case "/public":
			fmt.Fprint(w, doc(`<a href="/private">x</a><a href="/missing">m</a>`))
		case "/private":
			privateHits.Add(1)
			http.NotFound(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	report, err := Crawl(context.Background(), server.URL, []string{"anything"}, DefaultConfig())
	require.NoError(t, err)

	assert.Zero(t, privateHits.Load())
	require.Len(t, report.Results, 2)
	for _, r := range report.Results {
		assert.NotContains(t, r.BaseURL, "/private")
		for _, b := range r.BrokenLinks {
			assert.NotContains(t, b, "/private")
		}
	}
	assert.Equal(t, []string{server.URL + "/missing"}, report.Results[1].BrokenLinks)
}

func TestEngine_NonDocumentLinksSkipped(t *testing.T) {
	const site = "https://site.test"
	fetcher := newFakeFetcher(map[string]fakeResponse{
		site + "/": {status: 200, body: doc(`
			<a href="/logo.PNG">logo</a><a href="/app.js?v=2">js</a>
			<a href="https://cdn.test/font.woff2">font</a><a href="/about">about</a>`)},
		site + "/about": {status: 200, body: doc("about")},
	})

	engine := NewEngine(fetcher, DefaultConfig(), WithRules(staticRules{rules: AllowAll{}}))
	report, err := engine.Run(context.Background(), site+"/", nil)
	require.NoError(t, err)

	assert.Zero(t, fetcher.Calls(site+"/logo.PNG"))
	assert.Zero(t, fetcher.Calls(site+"/app.js?v=2"))
	assert.Zero(t, fetcher.Calls("https://cdn.test/font.woff2"))
	assert.Equal(t, 2, report.PagesCrawled)
}

func TestEngine_UnresolvedLinksAreNeitherBrokenNorCrawled(t *testing.T) {
	const site = "https://site.test"
	fetcher := newFakeFetcher(map[string]fakeResponse{
		site + "/":      {status: 200, body: doc(`<a href="/down">down</a><a href="/down2">down</a>`)},
		site + "/down":  {err: errors.New("connection refused")},
		site + "/down2": {err: errors.New("timeout")},
	})

	engine := NewEngine(fetcher, DefaultConfig(), WithRules(staticRules{rules: AllowAll{}}))
	report, err := engine.Run(context.Background(), site, nil)
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Empty(t, report.Results[0].BrokenLinks)
	status, ok := engine.State().Status(site + "/down")
	assert.True(t, ok)
	assert.Equal(t, StatusUnresolved, status)
	assert.Equal(t, 3, report.TotalVisitedLinks)
}

func TestEngine_RootFetchFailure(t *testing.T) {
	fetcher := newFakeFetcher(map[string]fakeResponse{
		"https://site.test/": {err: errors.New("no such host")},
	})

	engine := NewEngine(fetcher, DefaultConfig(), WithRules(staticRules{rules: AllowAll{}}))
	report, err := engine.Run(context.Background(), "https://site.test", []string{"x"})
	require.NoError(t, err)

	assert.Equal(t, []model.PageResult{
		{BaseURL: "https://site.test/", BrokenLinks: []string{}, MatchedKeywords: []string{}},
	}, report.Results)
	assert.Equal(t, 1, report.TotalVisitedLinks)
}

func TestEngine_Cancellation(t *testing.T) {
	const site = "https://site.test"
	fetcher := newFakeFetcher(map[string]fakeResponse{
		site + "/":  {status: 200, body: doc(`<a href="/a">a</a><a href="/b">b</a>`)},
		site + "/a": {status: 200, body: doc("a")},
		site + "/b": {status: 200, body: doc("b")},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := NewEngine(fetcher, DefaultConfig(),
		WithRules(staticRules{rules: AllowAll{}}),
		WithProgress(func(model.PageResult) { cancel() }),
	)
	report, err := engine.Run(ctx, site, nil)
	require.NoError(t, err)

	assert.True(t, report.Cancelled)
	require.Len(t, report.Results, 1)
	assert.Equal(t, site+"/", report.Results[0].BaseURL)
	assert.Equal(t, 3, report.PagesQueued)
	assert.Equal(t, 1, report.PagesCrawled)
}

func TestEngine_MaxPages(t *testing.T) {
	const site = "https://site.test"
	fetcher := newFakeFetcher(map[string]fakeResponse{
		site + "/":  {status: 200, body: doc(`<a href="/a">a</a><a href="/b">b</a>`)},
		site + "/a": {status: 200, body: doc("a")},
		site + "/b": {status: 200, body: doc("b")},
	})

	cfg := DefaultConfig()
	cfg.MaxPages = 2
	engine := NewEngine(fetcher, cfg, WithRules(staticRules{rules: AllowAll{}}))
	report, err := engine.Run(context.Background(), site, nil)
	require.NoError(t, err)

	assert.True(t, report.Truncated)
	assert.Len(t, report.Results, 2)
}

func TestEngine_Misuse(t *testing.T) {
	t.Run("invalid root", func(t *testing.T) {
		for _, root := range []string{"ftp://site.test", "not a url", "https://", "://x"} {
			engine := NewEngine(newFakeFetcher(nil), DefaultConfig())
			_, err := engine.Run(context.Background(), root, nil)
			assert.ErrorIs(t, err, ErrInvalidRootURL, root)
		}
	})

	t.Run("run twice", func(t *testing.T) {
		fetcher := newFakeFetcher(map[string]fakeResponse{"https://site.test/": {status: 200}})
		engine := NewEngine(fetcher, DefaultConfig(), WithRules(staticRules{rules: AllowAll{}}))
		_, err := engine.Run(context.Background(), "https://site.test/", nil)
		require.NoError(t, err)
		_, err = engine.Run(context.Background(), "https://site.test/", nil)
		assert.ErrorIs(t, err, ErrEngineUsed)
	})
}

func TestEngine_KeywordsAreCopied(t *testing.T) {
	fetcher := newFakeFetcher(map[string]fakeResponse{
		"https://site.test/": {status: 200, body: doc("Go and Rust")},
	})
	keywords := []string{" GO ", "rust", ""}

	engine := NewEngine(fetcher, DefaultConfig(), WithRules(staticRules{rules: AllowAll{}}))
	report, err := engine.Run(context.Background(), "https://site.test", keywords)
	require.NoError(t, err)

	assert.Equal(t, []string{" GO ", "rust", ""}, keywords)
	assert.Equal(t, []string{"go", "rust"}, report.Keywords)
	assert.Equal(t, []string{"go", "rust"}, report.Results[0].MatchedKeywords)
}

func TestRunner_AppliesInputOverrides(t *testing.T) {
	const site = "https://site.test"
	fetcher := newFakeFetcher(map[string]fakeResponse{
		site + "/":           {status: 200, body: doc(`<a href="/a.html">a</a><a href="/b">b</a>`)},
		site + "/a.html":     {status: 200, body: doc("Keyword")},
		site + "/b":          {status: 200, body: doc("b")},
		site + "/robots.txt": {status: 404},
	})

	runner := NewRunner(DefaultConfig(), fetcher, nil)
	var seen []string
	report, err := runner.Run(context.Background(), model.CrawlInput{
		URL:                   site,
		Keywords:              []string{"keyword"},
		NonDocumentExtensions: []string{"HTML"},
		MaxConcurrency:        1,
	}, func(r model.PageResult) { seen = append(seen, r.BaseURL) })
	require.NoError(t, err)

	assert.Equal(t, []string{site + "/", site + "/b"}, seen)
	assert.Zero(t, fetcher.Calls(site+"/a.html"))
	assert.True(t, strings.HasSuffix(report.Results[1].BaseURL, "/b"))
}

func TestRunner_CancelledCrawlKeepsRobotsRules(t *testing.T) {
	var privateHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
		case "/":
			fmt.Fprint(w, doc(`<a href="/private">x</a><a href="/public">p</a>`))
		case "/private":
			privateHits.Add(1)
			fmt.Fprint(w, doc("secret"))
		default:
			fmt.Fprint(w, doc("public"))
		}
	}))
	defer server.Close()

	runner := NewRunner(DefaultConfig(), NewHTTPFetcher(DefaultFetcherConfig()), nil)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	first, err := runner.Run(cancelled, model.CrawlInput{URL: server.URL}, nil)
	require.NoError(t, err)
	assert.True(t, first.Cancelled)

	second, err := runner.Run(context.Background(), model.CrawlInput{URL: server.URL}, nil)
	require.NoError(t, err)
	assert.Zero(t, privateHits.Load())
	require.Len(t, second.Results, 2)
	for _, r := range second.Results {
		assert.NotContains(t, r.BaseURL, "/private")
	}
}

func TestEngine_RootSelfLinkVariantsCrawledOnce(t *testing.T) {
	const site = "https://site.test"
	fetcher := newFakeFetcher(map[string]fakeResponse{
		site + "/": {status: 200, body: doc(`
			<a href="https://site.test">home</a>
			<a href="HTTPS://SITE.test#top">home again</a>
			<a href="/a">a</a>`)},
		site + "/a": {status: 200, body: doc(`<a href="https://Site.Test">home</a>`)},
	})
	resolver := newCountingResolver(NewConcurrentResolver(fetcher, 2, nil))

	engine := NewEngine(fetcher, DefaultConfig(),
		WithResolver(resolver),
		WithRules(staticRules{rules: AllowAll{}}),
	)
	report, err := engine.Run(context.Background(), site, nil)
	require.NoError(t, err)

	var order []string
	for _, r := range report.Results {
		order = append(order, r.BaseURL)
	}
	assert.Equal(t, []string{site + "/", site + "/a"}, order)
	assert.Equal(t, 1, fetcher.Calls(site+"/"))
	assert.Zero(t, resolver.counts[site+"/"])
	assert.Equal(t, 2, report.TotalVisitedLinks)
}
