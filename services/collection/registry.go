package collection

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"playlog/models"
	"playlog/services/docstore"
	"playlog/services/sessions"
)

var ErrRegistryClosed = errors.New("collection registry closed")

// sessionWatcher is the sign-in change stream the registry follows.
type sessionWatcher interface {
	Watch(fn func(sessions.Change)) func()
}

var _ sessionWatcher = (*sessions.Service)(nil)

// Registry keeps one adapter and one live subscription per (user, collection type).
type Registry struct {
	store documentStore
	opts  []Option

	mu      sync.Mutex
	entries map[docstore.Scope]*registryEntry
	closed  bool
}

type registryEntry struct {
	adapter *Adapter
	sub     *Subscription
	cancel  context.CancelFunc
}

func NewRegistry(store documentStore, opts ...Option) *Registry {
	return &Registry{
		store:   store,
		opts:    opts,
		entries: make(map[docstore.Scope]*registryEntry),
	}
}

// Follow releases a user's adapters when their last session ends.
func (r *Registry) Follow(source sessionWatcher) func() {
	return source.Watch(func(change sessions.Change) {
		if !change.SignedIn {
			r.Release(change.UserID)
		}
	})
}

// Open returns the adapter for userID's collection, subscribing on first use.
func (r *Registry) Open(userID string, collectionType models.CollectionType) (*Adapter, *Subscription, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil, ErrNotAuthenticated
	}
	scope := docstore.Scope{UserID: userID, Collection: collectionType}
	if err := scope.Validate(); err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, nil, ErrRegistryClosed
	}

	if entry, ok := r.entries[scope]; ok {
		if entry.healthy() {
			return entry.adapter, entry.sub, nil
		}
		entry.close()
		delete(r.entries, scope)
	}

	adapter := NewAdapter(r.store, userID, collectionType, r.opts...)
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := adapter.Subscribe(ctx)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	r.entries[scope] = &registryEntry{adapter: adapter, sub: sub, cancel: cancel}
	log.Printf("[collection] opened %s", scope)
	return adapter, sub, nil
}

// Release tears down every adapter owned by userID.
func (r *Registry) Release(userID string) {
	r.mu.Lock()
	var released []*registryEntry
	for scope, entry := range r.entries {
		if scope.UserID == userID {
			released = append(released, entry)
			delete(r.entries, scope)
		}
	}
	r.mu.Unlock()

	for _, entry := range released {
		entry.close()
	}
	if len(released) > 0 {
		log.Printf("[collection] released %d collection(s) for %s", len(released), userID)
	}
}

// Close tears down every adapter and rejects further opens.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[docstore.Scope]*registryEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.close()
	}
}

func (e *registryEntry) healthy() bool {
	select {
	case <-e.sub.Done():
		return false
	default:
	}
	return e.sub.Current().Err == nil
}

func (e *registryEntry) close() {
	e.cancel()
	e.adapter.Close()
}
