package crawl

import "go-linkrot/internal/model"

// State is the crawl-wide record owned by one Engine: every URL whose
// status was resolved, the queued/crawled counters and the ordered
// result list. Only the engine's driving loop mutates it, so it carries
// no lock.
type State struct {
	visited map[string]int
	queued  map[string]struct{}

	pagesQueued  int
	pagesCrawled int
	results      []model.PageResult
}

func NewState() *State {
	return &State{
		visited: make(map[string]int),
		queued:  make(map[string]struct{}),
	}
}

// Status returns the recorded status for url.
func (s *State) Status(url string) (int, bool) {
	status, ok := s.visited[url]
	return status, ok
}

// Record stores status for url unless one is already present. It
// reports whether this call wrote the entry.
func (s *State) Record(url string, status int) bool {
	if _, ok := s.visited[url]; ok {
		return false
	}
	s.visited[url] = status
	return true
}

// MarkQueued registers url as a frontier page. It returns false if the
// url was queued before.
func (s *State) MarkQueued(url string) bool {
	if _, ok := s.queued[url]; ok {
		return false
	}
	s.queued[url] = struct{}{}
	s.pagesQueued++
	return true
}

func (s *State) AddResult(result model.PageResult) {
	s.results = append(s.results, result)
	s.pagesCrawled++
}

func (s *State) Visited() int      { return len(s.visited) }
func (s *State) PagesQueued() int  { return s.pagesQueued }
func (s *State) PagesCrawled() int { return s.pagesCrawled }

// Complete reports whether every queued page has a result.
func (s *State) Complete() bool {
	return s.pagesQueued == s.pagesCrawled
}

func (s *State) Results() []model.PageResult {
	out := make([]model.PageResult, len(s.results))
	copy(out, s.results)
	return out
}
