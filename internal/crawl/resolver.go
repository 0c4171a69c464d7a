package crawl

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Resolution is the outcome for one URL of a batch. Content is only set
// when it was requested and the fetch succeeded at the transport level.
type Resolution struct {
	StatusCode int
	Content    []byte
}

// BatchResolver resolves every requested URL independently. The returned
// map holds an entry for each input URL; transport failures are reported
// as StatusUnresolved, never omitted.
type BatchResolver interface {
	Resolve(ctx context.Context, urls []string, wantContent bool) map[string]Resolution
}

type ConcurrentResolver struct {
	fetcher        Fetcher
	maxConcurrency int
	log            logrus.FieldLogger
}

func NewConcurrentResolver(fetcher Fetcher, maxConcurrency int, log logrus.FieldLogger) *ConcurrentResolver {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if log == nil {
		log = discardLogger()
	}
	return &ConcurrentResolver{
		fetcher:        fetcher,
		maxConcurrency: maxConcurrency,
		log:            log,
	}
}

func (r *ConcurrentResolver) Resolve(ctx context.Context, urls []string, wantContent bool) map[string]Resolution {
	resolved := make([]Resolution, len(urls))

	var g errgroup.Group
	g.SetLimit(r.maxConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			resp, err := r.fetcher.Fetch(ctx, u, wantContent)
			if err != nil {
				r.log.WithFields(logrus.Fields{"url": u}).WithError(err).Debug("link unresolved")
				resolved[i] = Resolution{StatusCode: StatusUnresolved}
				return nil
			}
			resolved[i] = Resolution{StatusCode: resp.StatusCode, Content: resp.Body}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Resolution, len(urls))
	for i, u := range urls {
		if _, dup := out[u]; !dup {
			out[u] = resolved[i]
		}
	}
	return out
}
