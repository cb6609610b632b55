// Package search turns free-text queries into catalog candidates for the
// collection type being browsed.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"playlog/config"
	"playlog/models"
)

const defaultLimit = 8

var ErrNotConfigured = errors.New("catalog provider not configured")

// CatalogProvider searches one external catalog and normalizes its results.
type CatalogProvider interface {
	Name() string
	Search(ctx context.Context, query string) ([]models.Candidate, error)
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Provider   string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Status)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Option tunes a provider.
type Option func(*transport)

// WithLimit sets how many results a provider asks for.
func WithLimit(limit int) Option {
	return func(t *transport) {
		if limit > 0 {
			t.limit = limit
		}
	}
}

// WithRetry sets the attempt count and initial backoff delay.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(t *transport) {
		if attempts > 0 {
			t.attempts = uint(attempts)
		}
		if delay > 0 {
			t.delay = delay
		}
	}
}

// transport is the shared HTTP plumbing of the catalog providers.
type transport struct {
	name     string
	httpc    *http.Client
	limit    int
	attempts uint
	delay    time.Duration
}

func newTransport(name string, httpc *http.Client, opts []Option) transport {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	t := transport{name: name, httpc: httpc, limit: defaultLimit, attempts: 3, delay: 300 * time.Millisecond}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// do sends the request built by newReq and decodes the JSON body into v.
// 429 and 5xx responses and transport failures are retried with backoff.
func (t *transport) do(ctx context.Context, newReq func(context.Context) (*http.Request, error), v any) error {
	return retry.Do(
		func() error {
			req, err := newReq(ctx)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := t.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 400 {
				return &StatusError{Provider: t.name, StatusCode: resp.StatusCode, Status: resp.Status}
			}
			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode %s response: %w", t.name, err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(t.attempts),
		retry.Delay(t.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if !retry.IsRecoverable(err) || ctx.Err() != nil {
				return false
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.retryable()
			}
			return true
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[%s] request failed (attempt %d/%d): %v", t.name, n+1, t.attempts, err)
		}),
	)
}

// NewProviders builds the provider for each collection type from settings.
func NewProviders(settings config.CatalogSettings, httpc *http.Client, limit int) map[models.CollectionType]CatalogProvider {
	if httpc == nil {
		httpc = &http.Client{Timeout: time.Duration(settings.TimeoutSeconds) * time.Second}
	}
	opts := []Option{WithLimit(limit), WithRetry(settings.MaxRetries, 0)}
	return map[models.CollectionType]CatalogProvider{
		models.CollectionGames:  NewRAWGProvider(settings.RAWGAPIKey, settings.RAWGBaseURL, httpc, opts...),
		models.CollectionAnimes: NewAniListProvider(settings.AniListURL, httpc, opts...),
	}
}
