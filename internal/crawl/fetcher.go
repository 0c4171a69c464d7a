package crawl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// StatusUnresolved marks a URL whose fetch failed at the transport level.
// It is neither successful nor broken.
const StatusUnresolved = 0

// IsStatusOK reports whether status is in the successful range.
func IsStatusOK(status int) bool {
	return status >= 200 && status < 300
}

type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Fetcher performs a single GET. A non-2xx status is not an error; only
// transport failures are.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, wantBody bool) (*Response, error)
}

// FetcherConfig zero values select the defaults; redirects are always
// followed, up to MaxRedirects.
type FetcherConfig struct {
	UserAgent         string
	Timeout           time.Duration
	MaxBodyBytes      int64
	MaxRedirects      int
	RequestsPerSecond float64
}

func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		UserAgent:    "linkrot/1.0 (+https://github.com/go-linkrot)",
		Timeout:      10 * time.Second,
		MaxBodyBytes: 10 * 1024 * 1024,
		MaxRedirects: 10,
	}
}

type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	limiter   *rate.Limiter
}

func NewHTTPFetcher(cfg FetcherConfig) *HTTPFetcher {
	def := DefaultFetcherConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = def.MaxRedirects
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	maxRedirects := cfg.MaxRedirects
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodyBytes,
		limiter:   limiter,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, wantBody bool) (*Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	out := &Response{URL: rawURL, StatusCode: resp.StatusCode}
	if !wantBody {
		// drain a little so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return out, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	out.Body = toUTF8(raw, resp.Header.Get("Content-Type"))
	return out, nil
}

// toUTF8 decodes body using the charset from the Content-Type header or
// the document's meta tags. Undecodable bodies are returned unchanged.
func toUTF8(body []byte, contentType string) []byte {
	if len(body) == 0 {
		return body
	}
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return body
	}
	return decoded
}
