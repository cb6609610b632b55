// Package collection mirrors one user's collection of one type and routes
// every mutation through the document store.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"playlog/models"
	"playlog/services/docstore"
	"playlog/services/transfer"
)

var (
	ErrNotAuthenticated  = errors.New("not signed in")
	ErrAlreadySubscribed = errors.New("collection already has an active subscription")
	ErrNotSubscribed     = errors.New("collection has no active subscription")
)

// ImportError reports where a sequential import stopped. Entries before
// Index were added and stay in the collection.
type ImportError struct {
	Applied int
	Index   int
	Err     error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import stopped at entry %d after adding %d: %v", e.Index, e.Applied, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// Export is a downloadable rendition of the mirror.
type Export struct {
	FileName string
	Data     []byte
}

// documentStore is the slice of docstore.Store the adapter depends on.
type documentStore interface {
	Add(ctx context.Context, scope docstore.Scope, item models.CollectionItem) (string, error)
	Update(ctx context.Context, scope docstore.Scope, id string, patch models.ItemPatch) error
	Delete(ctx context.Context, scope docstore.Scope, id string) error
	Subscribe(scope docstore.Scope, listener docstore.Listener) (func(), error)
}

var _ documentStore = docstore.Store(nil)

// Adapter owns the live mirror for one (user, collection type) pair.
type Adapter struct {
	store documentStore
	scope docstore.Scope
	now   func() time.Time

	mu  sync.Mutex
	sub *Subscription
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAdapter binds an adapter to userID, which may be empty when nobody is signed in.
func NewAdapter(store documentStore, userID string, collectionType models.CollectionType, opts ...Option) *Adapter {
	a := &Adapter{
		store: store,
		scope: docstore.Scope{UserID: strings.TrimSpace(userID), Collection: collectionType},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Collection() models.CollectionType { return a.scope.Collection }

// Subscribe starts the live mirror. Without a bound user the subscription
// stays loading with no items and never touches the store.
func (a *Adapter) Subscribe(ctx context.Context) (*Subscription, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sub != nil {
		select {
		case <-a.sub.Done():
		default:
			return nil, ErrAlreadySubscribed
		}
	}

	if a.scope.UserID == "" {
		sub := newSubscription(Snapshot{Items: []models.CollectionItem{}, Loading: true})
		a.sub = sub
		go a.release(ctx, sub)
		return sub, nil
	}

	sub := newSubscription(Snapshot{Items: []models.CollectionItem{}, Loading: true})
	unsubscribe, err := a.store.Subscribe(a.scope, sub.receive)
	if err != nil {
		log.Printf("[collection] subscribe %s failed: %v", a.scope, err)
		sub.state = Snapshot{Items: []models.CollectionItem{}, Err: fmt.Errorf("could not load collection: %w", err)}
	} else {
		sub.unsubscribe = unsubscribe
	}
	a.sub = sub
	go a.release(ctx, sub)
	return sub, nil
}

func (a *Adapter) release(ctx context.Context, sub *Subscription) {
	select {
	case <-ctx.Done():
		sub.Close()
	case <-sub.Done():
	}
}

// Snapshot returns the current state of the active subscription.
func (a *Adapter) Snapshot() (Snapshot, error) {
	a.mu.Lock()
	sub := a.sub
	a.mu.Unlock()

	if sub == nil {
		return Snapshot{}, ErrNotSubscribed
	}
	select {
	case <-sub.Done():
		return Snapshot{}, ErrNotSubscribed
	default:
	}
	return sub.Current(), nil
}

// Add writes a new item and returns its generated id. Timestamps supplied by
// the caller are replaced.
func (a *Adapter) Add(ctx context.Context, item models.CollectionItem) (string, error) {
	if a.scope.UserID == "" {
		return "", ErrNotAuthenticated
	}

	now := a.now().UTC()
	item = item.Clone()
	item.ID = ""
	item.CreatedAt = now
	item.UpdatedAt = now

	id, err := a.store.Add(ctx, a.scope, item)
	if err != nil {
		log.Printf("[collection] add %q to %s failed: %v", item.Name, a.scope, err)
		return "", fmt.Errorf("could not add %q: %w", item.Name, err)
	}
	return id, nil
}

// Update applies patch to item id and refreshes its updatedAt.
func (a *Adapter) Update(ctx context.Context, id string, patch models.ItemPatch) error {
	if a.scope.UserID == "" {
		return ErrNotAuthenticated
	}

	patch.UpdatedAt = a.now().UTC()
	if err := a.store.Update(ctx, a.scope, id, patch); err != nil {
		log.Printf("[collection] update %s in %s failed: %v", id, a.scope, err)
		return fmt.Errorf("could not update item: %w", err)
	}
	return nil
}

// Remove deletes item id. Removing an id that does not exist succeeds.
func (a *Adapter) Remove(ctx context.Context, id string) error {
	if a.scope.UserID == "" {
		return ErrNotAuthenticated
	}

	if err := a.store.Delete(ctx, a.scope, id); err != nil {
		log.Printf("[collection] remove %s from %s failed: %v", id, a.scope, err)
		return fmt.Errorf("could not remove item: %w", err)
	}
	return nil
}

// ExportSnapshot encodes the mirror as a dated JSON document.
func (a *Adapter) ExportSnapshot() (Export, error) {
	snapshot, err := a.Snapshot()
	if err != nil {
		return Export{}, err
	}
	data, err := transfer.Encode(snapshot.Items)
	if err != nil {
		log.Printf("[collection] export %s failed: %v", a.scope, err)
		return Export{}, fmt.Errorf("could not export collection: %w", err)
	}
	return Export{FileName: transfer.FileName(a.scope.Collection, a.now()), Data: data}, nil
}

// ImportSnapshot adds every entry of an exported document, one at a time and
// in document order. The whole document is validated before the first add; a
// failing add stops the import and the entries already added remain.
func (a *Adapter) ImportSnapshot(ctx context.Context, data []byte) (int, error) {
	if a.scope.UserID == "" {
		return 0, ErrNotAuthenticated
	}

	entries, err := transfer.Decode(data)
	if err != nil {
		return 0, err
	}

	for i, entry := range entries {
		if _, err := a.Add(ctx, entry); err != nil {
			return i, &ImportError{Applied: i, Index: i, Err: err}
		}
	}
	log.Printf("[collection] imported %d entries into %s", len(entries), a.scope)
	return len(entries), nil
}

// Close ends the active subscription, if any.
func (a *Adapter) Close() {
	a.mu.Lock()
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}
