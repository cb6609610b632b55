package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"playlog/models"
)

// FileStore keeps one JSON document file per scope under
// <dir>/users/<uid>/<collection>.json.
type FileStore struct {
	mu     sync.RWMutex
	dir    string
	scopes map[Scope]map[string]models.CollectionItem
	hub    *hub
	closed bool
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage directory not provided")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{
		dir:    dir,
		scopes: make(map[Scope]map[string]models.CollectionItem),
		hub:    newHub(),
	}, nil
}

func (s *FileStore) Add(ctx context.Context, scope Scope, item models.CollectionItem) (string, error) {
	if err := s.begin(ctx, scope); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	docs, err := s.scopeLocked(scope)
	if err != nil {
		return "", err
	}

	item = item.Clone()
	item.ID = newDocumentID()
	for _, exists := docs[item.ID]; exists; _, exists = docs[item.ID] {
		item.ID = newDocumentID()
	}
	docs[item.ID] = item

	if err := s.persistLocked(scope, docs); err != nil {
		delete(docs, item.ID)
		return "", err
	}
	s.hub.publish(scope, snapshotOf(docs))
	return item.ID, nil
}

func (s *FileStore) Update(ctx context.Context, scope Scope, id string, patch models.ItemPatch) error {
	if err := s.begin(ctx, scope); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	docs, err := s.scopeLocked(scope)
	if err != nil {
		return err
	}

	previous, ok := docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	updated := previous.Clone()
	patch.Apply(&updated)
	docs[id] = updated

	if err := s.persistLocked(scope, docs); err != nil {
		docs[id] = previous
		return err
	}
	s.hub.publish(scope, snapshotOf(docs))
	return nil
}

func (s *FileStore) Delete(ctx context.Context, scope Scope, id string) error {
	if err := s.begin(ctx, scope); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	docs, err := s.scopeLocked(scope)
	if err != nil {
		return err
	}

	previous, ok := docs[id]
	if !ok {
		return nil
	}
	delete(docs, id)

	if err := s.persistLocked(scope, docs); err != nil {
		docs[id] = previous
		return err
	}
	s.hub.publish(scope, snapshotOf(docs))
	return nil
}

func (s *FileStore) List(ctx context.Context, scope Scope) ([]models.CollectionItem, error) {
	if err := s.begin(ctx, scope); err != nil {
		return nil, err
	}

	// Loading a scope mutates the cache, so take the write lock.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	docs, err := s.scopeLocked(scope)
	if err != nil {
		return nil, err
	}
	return snapshotOf(docs), nil
}

func (s *FileStore) Subscribe(scope Scope, listener Listener) (func(), error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if listener == nil {
		return nil, errors.New("listener is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	docs, err := s.scopeLocked(scope)
	if err != nil {
		return nil, err
	}
	return s.hub.add(scope, listener, snapshotOf(docs))
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.hub.close()
	return nil
}

func (s *FileStore) begin(ctx context.Context, scope Scope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return scope.Validate()
}

func (s *FileStore) path(scope Scope) string {
	return filepath.Join(s.dir, "users", scope.UserID, string(scope.Collection)+".json")
}

func (s *FileStore) scopeLocked(scope Scope) (map[string]models.CollectionItem, error) {
	if docs, ok := s.scopes[scope]; ok {
		return docs, nil
	}

	docs := make(map[string]models.CollectionItem)
	file, err := os.Open(s.path(scope))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("open %s: %w", scope, err)
	default:
		defer file.Close()
		var stored []models.CollectionItem
		if err := json.NewDecoder(file).Decode(&stored); err != nil {
			return nil, fmt.Errorf("decode %s: %w", scope, err)
		}
		for _, item := range stored {
			if strings.TrimSpace(item.ID) == "" {
				continue
			}
			docs[item.ID] = item
		}
	}

	s.scopes[scope] = docs
	return docs, nil
}

func (s *FileStore) persistLocked(scope Scope, docs map[string]models.CollectionItem) error {
	path := s.path(scope)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s dir: %w", scope, err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s temp file: %w", scope, err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshotOf(docs)); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode %s: %w", scope, err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", scope, err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s temp file: %w", scope, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s file: %w", scope, err)
	}
	return nil
}

func snapshotOf(docs map[string]models.CollectionItem) []models.CollectionItem {
	items := make([]models.CollectionItem, 0, len(docs))
	for _, item := range docs {
		items = append(items, item.Clone())
	}
	sortDocuments(items)
	return items
}
