// Package docstore persists collection documents per user and collection
// type and pushes full snapshots to subscribers after every write.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"playlog/config"
	"playlog/models"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrScopeRequired = errors.New("user and collection are required")
	ErrInvalidScope  = errors.New("invalid scope")
	ErrClosed        = errors.New("store closed")
)

// Scope addresses one user's collection, users/{uid}/{collection}.
type Scope struct {
	UserID     string
	Collection models.CollectionType
}

func (s Scope) String() string {
	return "users/" + s.UserID + "/" + string(s.Collection)
}

// Validate rejects empty scopes and ids that cannot be used as path segments.
func (s Scope) Validate() error {
	if strings.TrimSpace(s.UserID) == "" || s.Collection == "" {
		return ErrScopeRequired
	}
	if strings.ContainsAny(s.UserID, `/\`) || s.UserID == "." || s.UserID == ".." {
		return fmt.Errorf("%w: user id %q", ErrInvalidScope, s.UserID)
	}
	if _, err := models.ParseCollectionType(string(s.Collection)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}
	return nil
}

// Listener receives the full document set of a scope. It runs on a goroutine
// owned by the store and must not call the unsubscribe func it was registered with.
type Listener func(items []models.CollectionItem)

// Store is the remote collection store.
type Store interface {
	Add(ctx context.Context, scope Scope, item models.CollectionItem) (string, error)
	Update(ctx context.Context, scope Scope, id string, patch models.ItemPatch) error
	Delete(ctx context.Context, scope Scope, id string) error
	List(ctx context.Context, scope Scope) ([]models.CollectionItem, error)
	// Subscribe delivers the current set immediately and again after every
	// write. Once the returned func returns, the listener is never called again.
	Subscribe(scope Scope, listener Listener) (func(), error)
	Close() error
}

// Open builds the backend selected in settings.
func Open(settings config.StorageSettings) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(settings.Backend)) {
	case "", "file":
		return NewFileStore(settings.Directory)
	case "sqlite":
		return NewSQLiteStore(settings.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", settings.Backend)
	}
}

func newDocumentID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// sortDocuments orders by creation instant, then id.
func sortDocuments(items []models.CollectionItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

func cloneDocuments(items []models.CollectionItem) []models.CollectionItem {
	out := make([]models.CollectionItem, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}
