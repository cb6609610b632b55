package search

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/text/unicode/norm"

	"playlog/models"
)

var ErrNoProvider = errors.New("no catalog provider for collection")

// Bridge dispatches queries to the provider registered for a collection type.
// Upstream failures are logged and reported as empty results.
type Bridge struct {
	mu        sync.RWMutex
	providers map[models.CollectionType]CatalogProvider
	limit     int
	sem       *semaphore.Weighted
}

// NewBridge caps each result list at limit and allows at most maxConcurrent
// upstream requests at once.
func NewBridge(providers map[models.CollectionType]CatalogProvider, limit, maxConcurrent int) *Bridge {
	if limit <= 0 || limit > defaultLimit {
		limit = defaultLimit
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	b := &Bridge{limit: limit, sem: semaphore.NewWeighted(int64(maxConcurrent))}
	b.SetProviders(providers)
	return b
}

// SetProviders swaps the provider set, e.g. after the catalog settings change.
func (b *Bridge) SetProviders(providers map[models.CollectionType]CatalogProvider) {
	copied := make(map[models.CollectionType]CatalogProvider, len(providers))
	for k, v := range providers {
		copied[k] = v
	}
	b.mu.Lock()
	b.providers = copied
	b.mu.Unlock()
}

// NormalizeQuery trims the query and puts it in NFC form.
func NormalizeQuery(query string) string {
	return norm.NFC.String(strings.TrimSpace(query))
}

// Search returns up to the configured number of candidates. A blank query
// yields an empty list without contacting the provider. When ctx is
// cancelled the context error is returned and nothing is logged.
func (b *Bridge) Search(ctx context.Context, collection models.CollectionType, query string) ([]models.Candidate, error) {
	b.mu.RLock()
	provider, ok := b.providers[collection]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrNoProvider
	}

	query = NormalizeQuery(query)
	if query == "" {
		return []models.Candidate{}, nil
	}

	if err := b.sem.Acquire(ctx, 1); err != nil {
		return []models.Candidate{}, err
	}
	defer b.sem.Release(1)

	results, err := provider.Search(ctx, query)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return []models.Candidate{}, ctxErr
	}
	if err != nil {
		log.Printf("[search] %s query %q failed: %v", provider.Name(), query, err)
		return []models.Candidate{}, nil
	}
	if len(results) > b.limit {
		results = results[:b.limit]
	}
	if results == nil {
		results = []models.Candidate{}
	}
	return results, nil
}
