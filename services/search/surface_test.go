package search

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"playlog/models"
)

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	fn      func(ctx context.Context, query string) ([]models.Candidate, error)
}

func (f *fakeSearcher) Search(ctx context.Context, collection models.CollectionType, query string) ([]models.Candidate, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, query)
	}
	return []models.Candidate{{ID: 1, Name: query}}, nil
}

func (f *fakeSearcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for search result")
	}
	return Result{}
}

func TestSurfaceDebouncesKeystrokes(t *testing.T) {
	defer goleak.VerifyNone(t)

	searcher := &fakeSearcher{}
	results := make(chan Result, 8)
	surface := NewSurface(searcher, models.CollectionGames, 30*time.Millisecond, func(r Result) { results <- r })
	defer surface.Close()

	surface.Input("z")
	surface.Input("ze")
	surface.Input("zel")

	r := waitResult(t, results)
	if r.Query != "zel" || len(r.Candidates) != 1 {
		t.Fatalf("expected result for final query, got %+v", r)
	}
	if calls := searcher.calls(); len(calls) != 1 || calls[0] != "zel" {
		t.Fatalf("expected a single search for %q, got %v", "zel", calls)
	}
	if surface.Current().Generation != r.Generation {
		t.Fatalf("expected current result to match delivered result")
	}
}

func TestSurfaceBlankInputClearsSynchronously(t *testing.T) {
	defer goleak.VerifyNone(t)

	searcher := &fakeSearcher{}
	results := make(chan Result, 8)
	surface := NewSurface(searcher, models.CollectionGames, 10*time.Millisecond, func(r Result) { results <- r })
	defer surface.Close()

	surface.Input("hades")
	waitResult(t, results)

	surface.Input("   ")
	select {
	case r := <-results:
		if len(r.Candidates) != 0 || r.Candidates == nil {
			t.Fatalf("expected empty candidate list, got %+v", r.Candidates)
		}
	default:
		t.Fatalf("expected clear to be delivered before Input returns")
	}
	if len(surface.Current().Candidates) != 0 {
		t.Fatalf("expected current results to be cleared")
	}
	if calls := searcher.calls(); len(calls) != 1 {
		t.Fatalf("blank input must not search, got %v", calls)
	}
}

func TestSurfaceDropsSupersededResults(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	searcher := &fakeSearcher{fn: func(ctx context.Context, query string) ([]models.Candidate, error) {
		if query == "slow" {
			close(started)
			<-ctx.Done()
			close(cancelled)
			// Report stale data instead of the context error to prove it is discarded.
			return []models.Candidate{{ID: 99, Name: "stale"}}, nil
		}
		return []models.Candidate{{ID: 2, Name: query}}, nil
	}}

	results := make(chan Result, 8)
	surface := NewSurface(searcher, models.CollectionAnimes, 10*time.Millisecond, func(r Result) { results <- r })
	defer surface.Close()

	surface.Input("slow")
	<-started
	surface.Input("fast")

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected superseded request to be cancelled")
	}

	r := waitResult(t, results)
	if r.Query != "fast" {
		t.Fatalf("expected only the newest result, got %+v", r)
	}
	select {
	case extra := <-results:
		t.Fatalf("unexpected extra delivery %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSurfaceCloseCancelsPendingInput(t *testing.T) {
	defer goleak.VerifyNone(t)

	searcher := &fakeSearcher{}
	surface := NewSurface(searcher, models.CollectionGames, 20*time.Millisecond, nil)
	surface.Input("pending")
	surface.Close()

	time.Sleep(50 * time.Millisecond)
	if calls := searcher.calls(); len(calls) != 0 {
		t.Fatalf("expected no search after close, got %v", calls)
	}
	surface.Input("ignored")
}
