package docstore_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"playlog/config"
	"playlog/models"
	"playlog/services/docstore"
)

var gamesScope = docstore.Scope{UserID: "u1", Collection: models.CollectionGames}

type backend struct {
	name string
	open func(t *testing.T) docstore.Store
}

func backends() []backend {
	return []backend{
		{name: "file", open: func(t *testing.T) docstore.Store {
			store, err := docstore.NewFileStore(t.TempDir())
			require.NoError(t, err)
			return store
		}},
		{name: "sqlite", open: func(t *testing.T) docstore.Store {
			store, err := docstore.NewSQLiteStore(filepath.Join(t.TempDir(), "collections.db"))
			require.NoError(t, err)
			return store
		}},
	}
}

func item(name string, created time.Time) models.CollectionItem {
	return models.CollectionItem{Name: name, CreatedAt: created, UpdatedAt: created}
}

func waitFor(t *testing.T, ch <-chan []models.CollectionItem, match func([]models.CollectionItem) bool) []models.CollectionItem {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case items := <-ch:
			if match(items) {
				return items
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot")
			return nil
		}
	}
}

func TestStoreContract(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			ctx := context.Background()
			store := b.open(t)
			defer store.Close()

			base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			second, err := store.Add(ctx, gamesScope, item("Celeste", base.Add(time.Minute)))
			require.NoError(t, err)
			first, err := store.Add(ctx, gamesScope, item("Hades", base))
			require.NoError(t, err)
			assert.NotEqual(t, first, second)

			items, err := store.List(ctx, gamesScope)
			require.NoError(t, err)
			require.Len(t, items, 2)
			assert.Equal(t, first, items[0].ID, "ordered by createdAt")
			assert.Equal(t, "Celeste", items[1].Name)

			hours := 12.5
			require.NoError(t, store.Update(ctx, gamesScope, second, models.ItemPatch{HoursPlayed: &hours}))
			items, err = store.List(ctx, gamesScope)
			require.NoError(t, err)
			assert.Equal(t, 12.5, items[1].HoursPlayed)

			err = store.Update(ctx, gamesScope, "missing", models.ItemPatch{HoursPlayed: &hours})
			assert.ErrorIs(t, err, docstore.ErrNotFound)

			require.NoError(t, store.Delete(ctx, gamesScope, "missing"), "deleting a missing id is a no-op")
			require.NoError(t, store.Delete(ctx, gamesScope, first))
			items, err = store.List(ctx, gamesScope)
			require.NoError(t, err)
			require.Len(t, items, 1)

			other := docstore.Scope{UserID: "u1", Collection: models.CollectionAnimes}
			items, err = store.List(ctx, other)
			require.NoError(t, err)
			assert.Empty(t, items, "collections are isolated")
		})
	}
}

func TestStoreRejectsInvalidScope(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := b.open(t)
			defer store.Close()

			_, err := store.Add(context.Background(), docstore.Scope{Collection: models.CollectionGames}, item("x", time.Now()))
			assert.ErrorIs(t, err, docstore.ErrScopeRequired)

			_, err = store.List(context.Background(), docstore.Scope{UserID: "../etc", Collection: models.CollectionGames})
			assert.ErrorIs(t, err, docstore.ErrInvalidScope)

			_, err = store.Subscribe(docstore.Scope{UserID: "u1"}, func([]models.CollectionItem) {})
			assert.ErrorIs(t, err, docstore.ErrScopeRequired)
		})
	}
}

func TestSubscribeDeliversInitialAndSubsequentSnapshots(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			ctx := context.Background()
			store := b.open(t)
			defer store.Close()

			_, err := store.Add(ctx, gamesScope, item("Hades", time.Now().UTC()))
			require.NoError(t, err)

			ch := make(chan []models.CollectionItem, 16)
			unsubscribe, err := store.Subscribe(gamesScope, func(items []models.CollectionItem) { ch <- items })
			require.NoError(t, err)

			initial := waitFor(t, ch, func(items []models.CollectionItem) bool { return true })
			require.Len(t, initial, 1)

			_, err = store.Add(ctx, gamesScope, item("Celeste", time.Now().UTC()))
			require.NoError(t, err)
			waitFor(t, ch, func(items []models.CollectionItem) bool { return len(items) == 2 })

			unsubscribe()
		})
	}
}

func TestUnsubscribeStopsCallbacks(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			ctx := context.Background()
			store := b.open(t)
			defer store.Close()

			var calls atomic.Int32
			unsubscribe, err := store.Subscribe(gamesScope, func([]models.CollectionItem) { calls.Add(1) })
			require.NoError(t, err)
			unsubscribe()
			after := calls.Load()

			for i := 0; i < 5; i++ {
				_, err := store.Add(ctx, gamesScope, item("Tetris", time.Now().UTC()))
				require.NoError(t, err)
			}
			time.Sleep(20 * time.Millisecond)
			assert.Equal(t, after, calls.Load())
		})
	}
}

func TestSnapshotsAreNeverReordered(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			ctx := context.Background()
			store := b.open(t)
			defer store.Close()

			var seen []int
			done := make(chan struct{})
			unsubscribe, err := store.Subscribe(gamesScope, func(items []models.CollectionItem) {
				seen = append(seen, len(items))
				if len(items) == 10 {
					close(done)
				}
			})
			require.NoError(t, err)

			for i := 0; i < 10; i++ {
				_, err := store.Add(ctx, gamesScope, item("Doom", time.Now().UTC()))
				require.NoError(t, err)
			}

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatalf("never saw final snapshot")
			}
			unsubscribe()

			for i := 1; i < len(seen); i++ {
				assert.Less(t, seen[i-1], seen[i], "snapshots must arrive in write order")
			}
		})
	}
}

func TestCloseStopsSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, err := docstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Subscribe(gamesScope, func([]models.CollectionItem) {})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Add(context.Background(), gamesScope, item("x", time.Now()))
	assert.ErrorIs(t, err, docstore.ErrClosed)
}

func TestFileStorePersistsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users", "u1", "games.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	seed := `[{"id":"a","name":"Okami","rawgId":42,"released":"2006-04-20","platform":"ps2","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"}]`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	store, err := docstore.NewFileStore(dir)
	require.NoError(t, err)

	items, err := store.List(context.Background(), gamesScope)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(42), items[0].ExternalID)
	assert.Equal(t, 2006, items[0].ReleasedYear)

	notes := "great"
	require.NoError(t, store.Update(context.Background(), gamesScope, "a", models.ItemPatch{PlayerNotes: &notes}))
	require.NoError(t, store.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var docs []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &docs))
	require.Len(t, docs, 1)
	assert.JSONEq(t, `"ps2"`, string(docs[0]["platform"]))
	assert.JSONEq(t, `"great"`, string(docs[0]["playerNotes"]))

	reopened, err := docstore.NewFileStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	items, err = reopened.List(context.Background(), gamesScope)
	require.NoError(t, err)
	assert.Equal(t, "great", items[0].PlayerNotes)
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()

	store, err := docstore.Open(config.StorageSettings{Backend: "sqlite", SQLitePath: filepath.Join(dir, "c.db")})
	require.NoError(t, err)
	_, ok := store.(*docstore.SQLiteStore)
	assert.True(t, ok)
	require.NoError(t, store.Close())

	store, err = docstore.Open(config.StorageSettings{Directory: dir})
	require.NoError(t, err)
	_, ok = store.(*docstore.FileStore)
	assert.True(t, ok)
	require.NoError(t, store.Close())

	_, err = docstore.Open(config.StorageSettings{Backend: "firestore"})
	assert.Error(t, err)
}
