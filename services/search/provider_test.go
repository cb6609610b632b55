package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func TestRAWGProviderMapsResults(t *testing.T) {
	var captured *http.Request
	httpc := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		captured = req
		return respond(http.StatusOK, `{"results":[
			{"id":3328,"name":"The Witcher 3","background_image":"https://img/w3.jpg","released":"2015-05-18","rating":4.66},
			{"id":7,"name":"Unreleased","background_image":null,"released":null,"rating":0}
		]}`), nil
	})}

	provider := NewRAWGProvider("secret", "https://rawg.test/api/", httpc)
	results, err := provider.Search(context.Background(), "witcher")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	if captured.URL.Host != "rawg.test" || captured.URL.Path != "/api/games" {
		t.Fatalf("unexpected request url %s", captured.URL)
	}
	if got := captured.URL.Query().Get("key"); got != "secret" {
		t.Fatalf("expected api key in query, got %q", got)
	}
	if got := captured.URL.Query().Get("search"); got != "witcher" {
		t.Fatalf("expected search term in query, got %q", got)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	first := results[0]
	if first.ID != 3328 || first.Name != "The Witcher 3" || first.Image != "https://img/w3.jpg" || first.ReleasedYear != 2015 || first.Rating != 4.66 {
		t.Fatalf("unexpected mapping %+v", first)
	}
	if results[1].ReleasedYear != 0 || results[1].Image != "" {
		t.Fatalf("expected missing release and image to be zero, got %+v", results[1])
	}
}

func TestRAWGProviderRequiresKey(t *testing.T) {
	httpc := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected without an api key")
		return nil, nil
	})}

	_, err := NewRAWGProvider("", "", httpc).Search(context.Background(), "zelda")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestProviderRetriesServerErrors(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	httpc := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return respond(http.StatusServiceUnavailable, ""), nil
		}
		if calls == 2 {
			return respond(http.StatusTooManyRequests, ""), nil
		}
		return respond(http.StatusOK, `{"results":[{"id":1,"name":"Celeste"}]}`), nil
	})}

	provider := NewRAWGProvider("key", "", httpc, WithRetry(3, time.Millisecond))
	results, err := provider.Search(context.Background(), "celeste")
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if calls != 3 || len(results) != 1 {
		t.Fatalf("expected 3 calls and 1 result, got %d calls and %d results", calls, len(results))
	}
}

func TestProviderDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	httpc := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		return respond(http.StatusUnauthorized, `{"error":"bad key"}`), nil
	})}

	provider := NewRAWGProvider("key", "", httpc, WithRetry(3, time.Millisecond))
	_, err := provider.Search(context.Background(), "celeste")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 status error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestAniListQueryEscapesInput(t *testing.T) {
	provider := NewAniListProvider("", nil, WithLimit(5))
	query := provider.BuildQuery(`say "hi" \o/`)

	if !strings.Contains(query, `search: "say \"hi\" \\o/"`) {
		t.Fatalf("expected escaped search term, got %s", query)
	}
	if !strings.Contains(query, "perPage: 5") {
		t.Fatalf("expected page size in query, got %s", query)
	}
	if !strings.Contains(query, "type: ANIME") {
		t.Fatalf("expected anime type filter, got %s", query)
	}

	query = provider.BuildQuery("cowboy\nbebop\r\tsession")
	if !strings.Contains(query, `search: "cowboy\nbebop\r\tsession"`) {
		t.Fatalf("expected escaped control characters, got %s", query)
	}
	if strings.ContainsAny(query[strings.Index(query, "search:"):strings.Index(query, "type:")], "\r\n\t") {
		t.Fatalf("raw control characters left in search literal: %q", query)
	}
}

func TestAniListProviderMapsResults(t *testing.T) {
	var sent map[string]string
	httpc := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", req.Method)
		}
		if err := json.NewDecoder(req.Body).Decode(&sent); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		return respond(http.StatusOK, `{"data":{"Page":{"media":[
			{"id":21,"title":{"userPreferred":"One Piece"},"coverImage":{"large":"https://img/op.jpg"},"startDate":{"year":1999},"averageScore":87},
			{"id":99,"title":{"userPreferred":null,"romaji":""},"coverImage":{"large":""},"startDate":{"year":null},"averageScore":null}
		]}}}`), nil
	})}

	results, err := NewAniListProvider("https://anilist.test", httpc).Search(context.Background(), "one piece")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(sent["query"], `search: "one piece"`) {
		t.Fatalf("expected query document in body, got %q", sent["query"])
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Name != "One Piece" || results[0].ReleasedYear != 1999 || results[0].Rating != 8.7 || results[0].Image != "https://img/op.jpg" {
		t.Fatalf("unexpected mapping %+v", results[0])
	}
	if results[1].Name != "Untitled" || results[1].ReleasedYear != 0 || results[1].Rating != 0 {
		t.Fatalf("expected fallbacks for sparse media, got %+v", results[1])
	}
}

func TestAniListProviderSurfacesGraphQLErrors(t *testing.T) {
	httpc := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `{"data":null,"errors":[{"message":"Syntax Error"}]}`), nil
	})}

	_, err := NewAniListProvider("", httpc).Search(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "Syntax Error") {
		t.Fatalf("expected graphql error, got %v", err)
	}
}
