package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"playlog/models"
)

// Searcher is the part of Bridge a Surface needs.
type Searcher interface {
	Search(ctx context.Context, collection models.CollectionType, query string) ([]models.Candidate, error)
}

var _ Searcher = (*Bridge)(nil)

// Result is one delivered set of candidates. Generation increases with every
// input so a consumer can tell results apart.
type Result struct {
	Generation uint64             `json:"generation"`
	Collection string             `json:"collection"`
	Query      string             `json:"query"`
	Candidates []models.Candidate `json:"candidates"`
}

// Surface debounces keystrokes into searches. Only the result of the latest
// input is ever delivered; superseded requests are cancelled.
type Surface struct {
	searcher Searcher
	debounce time.Duration
	deliver  func(Result)

	// deliverMu serializes callbacks so a stale result cannot land after a
	// newer one.
	deliverMu sync.Mutex

	mu         sync.Mutex
	collection models.CollectionType
	generation uint64
	timer      *time.Timer
	cancel     context.CancelFunc
	latest     Result
	closed     bool
	wg         sync.WaitGroup
}

// NewSurface calls deliver with every current result. deliver must not call
// back into the Surface.
func NewSurface(searcher Searcher, collection models.CollectionType, debounce time.Duration, deliver func(Result)) *Surface {
	if deliver == nil {
		deliver = func(Result) {}
	}
	return &Surface{
		searcher:   searcher,
		collection: collection,
		debounce:   debounce,
		deliver:    deliver,
		latest:     Result{Collection: string(collection), Candidates: []models.Candidate{}},
	}
}

// Input records a new query. Whitespace-only input clears the results right
// away; anything else is searched once the debounce window passes quietly.
func (s *Surface) Input(query string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.generation++
	gen := s.generation
	collection := s.collection
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	if strings.TrimSpace(query) == "" {
		s.cancelLocked()
		s.mu.Unlock()
		s.publish(Result{Generation: gen, Collection: string(collection), Candidates: []models.Candidate{}})
		return
	}

	s.timer = time.AfterFunc(s.debounce, func() { s.dispatch(gen, collection, query) })
	s.mu.Unlock()
}

// SetCollection switches the catalog being searched and clears the results.
func (s *Surface) SetCollection(collection models.CollectionType) {
	s.mu.Lock()
	s.collection = collection
	s.mu.Unlock()
	s.Input("")
}

// Current returns the last delivered result.
func (s *Surface) Current() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Close cancels pending work and waits for in-flight searches to return.
func (s *Surface) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.cancelLocked()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Surface) cancelLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Surface) dispatch(gen uint64, collection models.CollectionType, query string) {
	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.cancelLocked()
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	defer cancel()

	candidates, err := s.searcher.Search(ctx, collection, query)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return
	}
	if candidates == nil {
		candidates = []models.Candidate{}
	}
	s.publish(Result{Generation: gen, Collection: string(collection), Query: NormalizeQuery(query), Candidates: candidates})
}

func (s *Surface) publish(r Result) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	current := !s.closed && r.Generation == s.generation
	if current {
		s.latest = r
	}
	s.mu.Unlock()

	if current {
		s.deliver(r)
	}
}
