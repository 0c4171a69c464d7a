package search

import (
	"errors"
	"sort"
	"strings"
	"unicode"
)

var (
	ErrAlreadyBuilt = errors.New("search: automaton already built")
	ErrNotBuilt     = errors.New("search: automaton not built")
	ErrEmptyKeyword = errors.New("search: empty keyword")
)

const root = 0

type node struct {
	next map[rune]int // goto
	fail int
	out  []int // keyword IDs, own terminal first then inherited via fail
}

// Automaton is an Aho-Corasick matcher over a fixed keyword set.
// Keywords are added, Build is called once, and from then on the
// automaton is read-only and safe for concurrent Search calls.
type Automaton struct {
	nodes    []node
	keywords []string
	ids      map[string]int
	built    bool
}

func NewAutomaton() *Automaton {
	return &Automaton{
		nodes: []node{{next: make(map[rune]int)}},
		ids:   make(map[string]int),
	}
}

// Normalize trims and case-folds a keyword. Search applies the same
// folding to text, so a keyword matches regardless of case.
func Normalize(keyword string) string {
	return strings.Map(unicode.ToLower, strings.TrimSpace(keyword))
}

func (a *Automaton) AddKeyword(keyword string) error {
	if a.built {
		return ErrAlreadyBuilt
	}
	k := Normalize(keyword)
	if k == "" {
		return ErrEmptyKeyword
	}
	if _, ok := a.ids[k]; ok {
		return nil
	}

	cur := root
	for _, r := range k {
		nxt, ok := a.nodes[cur].next[r]
		if !ok {
			nxt = len(a.nodes)
			a.nodes = append(a.nodes, node{next: make(map[rune]int)})
			a.nodes[cur].next[r] = nxt
		}
		cur = nxt
	}

	id := len(a.keywords)
	a.keywords = append(a.keywords, k)
	a.ids[k] = id
	a.nodes[cur].out = append(a.nodes[cur].out, id)
	return nil
}

// Build computes failure links breadth-first from the root and merges
// each node's output set with the output set of its failure node.
func (a *Automaton) Build() error {
	if a.built {
		return ErrAlreadyBuilt
	}

	queue := make([]int, 0, len(a.nodes))
	for _, child := range a.nodes[root].next {
		a.nodes[child].fail = root
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		for r, child := range a.nodes[parent].next {
			f := a.nodes[parent].fail
			for {
				if nxt, ok := a.nodes[f].next[r]; ok {
					a.nodes[child].fail = nxt
					break
				}
				if f == root {
					a.nodes[child].fail = root
					break
				}
				f = a.nodes[f].fail
			}
			// the failure node is shallower, so its outputs are already complete
			a.nodes[child].out = append(a.nodes[child].out, a.nodes[a.nodes[child].fail].out...)
			queue = append(queue, child)
		}
	}

	a.built = true
	return nil
}

// Search scans text once and returns the sorted set of keywords that
// occur in it as substrings.
func (a *Automaton) Search(text string) ([]string, error) {
	if !a.built {
		return nil, ErrNotBuilt
	}

	found := make([]bool, len(a.keywords))
	count := 0
	state := root
	for _, r := range text {
		r = unicode.ToLower(r)
		for {
			if nxt, ok := a.nodes[state].next[r]; ok {
				state = nxt
				break
			}
			if state == root {
				break
			}
			state = a.nodes[state].fail
		}
		for _, id := range a.nodes[state].out {
			if !found[id] {
				found[id] = true
				count++
			}
		}
		if count == len(a.keywords) {
			break
		}
	}

	matched := make([]string, 0, count)
	for id, ok := range found {
		if ok {
			matched = append(matched, a.keywords[id])
		}
	}
	sort.Strings(matched)
	return matched, nil
}

// Keywords returns the normalized keywords in insertion order.
func (a *Automaton) Keywords() []string {
	out := make([]string, len(a.keywords))
	copy(out, a.keywords)
	return out
}

func (a *Automaton) Built() bool {
	return a.built
}
