package docstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"playlog/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore keeps one row per document with the JSON body.
type SQLiteStore struct {
	// mu serializes writes with the snapshot publish that follows them.
	mu     sync.Mutex
	db     *sql.DB
	hub    *hub
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and applies migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path not provided")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, hub: newHub()}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Add(ctx context.Context, scope Scope, item models.CollectionItem) (string, error) {
	if err := scope.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	item = item.Clone()
	item.ID = newDocumentID()
	body, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (user_id, collection, id, created_at, body) VALUES (?, ?, ?, ?, ?)`,
		scope.UserID, string(scope.Collection), item.ID, item.CreatedAt.UnixNano(), string(body))
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", scope, err)
	}

	s.publishLocked(ctx, scope)
	return item.ID, nil
}

func (s *SQLiteStore) Update(ctx context.Context, scope Scope, id string, patch models.ItemPatch) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var body string
	err = tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE user_id = ? AND collection = ? AND id = ?`,
		scope.UserID, string(scope.Collection), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("load %s/%s: %w", scope, id, err)
	}

	var item models.CollectionItem
	if err := json.Unmarshal([]byte(body), &item); err != nil {
		return fmt.Errorf("decode %s/%s: %w", scope, id, err)
	}
	patch.Apply(&item)
	item.ID = id

	updated, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET body = ? WHERE user_id = ? AND collection = ? AND id = ?`,
		string(updated), scope.UserID, string(scope.Collection), id); err != nil {
		return fmt.Errorf("update %s/%s: %w", scope, id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}

	s.publishLocked(ctx, scope)
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, scope Scope, id string) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE user_id = ? AND collection = ? AND id = ?`,
		scope.UserID, string(scope.Collection), id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", scope, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	s.publishLocked(ctx, scope)
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, scope Scope) ([]models.CollectionItem, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.list(ctx, scope)
}

func (s *SQLiteStore) Subscribe(scope Scope, listener Listener) (func(), error) {
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

	items, err := s.list(context.Background(), scope)
	if err != nil {
		return nil, err
	}
	return s.hub.add(scope, listener, items)
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.hub.close()
	return s.db.Close()
}

func (s *SQLiteStore) list(ctx context.Context, scope Scope) ([]models.CollectionItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, body FROM documents WHERE user_id = ? AND collection = ? ORDER BY created_at, id`,
		scope.UserID, string(scope.Collection))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", scope, err)
	}
	defer rows.Close()

	items := make([]models.CollectionItem, 0)
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", scope, err)
		}
		var item models.CollectionItem
		if err := json.Unmarshal([]byte(body), &item); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", scope, id, err)
		}
		item.ID = id
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", scope, err)
	}
	sortDocuments(items)
	return items, nil
}

// publishLocked pushes the post-write set. The write has already committed,
// so a failed reload is only logged.
func (s *SQLiteStore) publishLocked(ctx context.Context, scope Scope) {
	items, err := s.list(context.WithoutCancel(ctx), scope)
	if err != nil {
		log.Printf("[docstore] publish %s: %v", scope, err)
		return
	}
	s.hub.publish(scope, items)
}
