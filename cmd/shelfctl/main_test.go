package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playlog/models"
	"playlog/services/ordering"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "shelf.yaml")
	require.NoError(t, os.WriteFile(file, []byte("storage:\n  backend: sqlite\n  directory: from-file\n"), 0o644))

	t.Setenv("PLAYLOG_STORAGE_DIRECTORY", "from-env")

	storage, err := loadConfig(file, nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", storage.Backend)
	assert.Equal(t, "from-env", storage.Directory)
	assert.Equal(t, "cache/collections.db", storage.SQLitePath)

	storage, err = loadConfig(file, map[string]string{cfgKeyDirectory: "from-flag", cfgKeyBackend: ""})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", storage.Directory)
	assert.Equal(t, "sqlite", storage.Backend, "empty overrides are ignored")
}

func TestImportListExport(t *testing.T) {
	dataDir := t.TempDir()
	doc := `[
  {"name": "Celeste", "yearPlayed": 2018, "personalRating": 9.5, "order": 1},
  {"name": "Hades", "yearPlayed": 2020, "personalRating": 10},
  {"name": "Silksong", "inWishlist": true}
]`

	out, err := run(t, doc, "--data-dir", dataDir, "import", "default", "games", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "imported 3 entries")

	out, err = run(t, "", "--data-dir", dataDir, "--json", "list", "default", "games")
	require.NoError(t, err)
	var buckets []ordering.Bucket
	require.NoError(t, json.Unmarshal([]byte(out), &buckets))
	require.Len(t, buckets, 2)
	assert.Equal(t, 2020, buckets[0].Year)
	assert.Equal(t, "Celeste", buckets[1].Items[0].Name)

	out, err = run(t, "", "--data-dir", dataDir, "--json", "list", "default", "games", "--wishlist")
	require.NoError(t, err)
	var wishlist []models.CollectionItem
	require.NoError(t, json.Unmarshal([]byte(out), &wishlist))
	require.Len(t, wishlist, 1)
	assert.Equal(t, "Silksong", wishlist[0].Name)

	exportDir := t.TempDir()
	out, err = run(t, "", "--data-dir", dataDir, "export", "default", "games", "-o", exportDir)
	require.NoError(t, err)
	assert.Contains(t, out, "exported to ")

	matches, err := filepath.Glob(filepath.Join(exportDir, "games-*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "Hades")
}

func TestImportRejectsBadDocument(t *testing.T) {
	dataDir := t.TempDir()
	_, err := run(t, `{"not": "an array"}`, "--data-dir", dataDir, "import", "default", "games", "-")
	require.Error(t, err)

	_, err = run(t, "[]", "--data-dir", dataDir, "import", "default", "books", "-")
	require.Error(t, err)
}

func TestUsersCreatesDefaultProfile(t *testing.T) {
	dataDir := t.TempDir()
	out, err := run(t, "", "--data-dir", dataDir, "users")
	require.NoError(t, err)
	assert.Contains(t, out, models.DefaultUserID)
	assert.Contains(t, out, models.DefaultUserName)
}
