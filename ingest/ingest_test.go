package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexgo"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestDB(t *testing.T) *lexgo.Lexgo {
	t.Helper()
	db, err := lexgo.InMemory().Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunIndexesTree(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "notes.txt", "the quick brown fox")
	writeFile(t, root, "sub/todo.txt", "walk the dog")
	writeFile(t, root, ".hidden", "secret")
	writeFile(t, root, ".git/config", "not indexed")
	writeFile(t, root, "editor.swp", "swap file")

	db := newTestDB(t)
	ing, err := New(db, DefaultConfig(), nil)
	require.NoError(t, err)

	stats, err := ing.Run(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Indexed)
	assert.Equal(t, 2, stats.Skipped) // .hidden and editor.swp; .git is pruned
	assert.Positive(t, stats.Bytes)

	page, err := db.Search(ctx, "fox", 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalMatches)
	assert.Equal(t, filepath.Join(root, "notes.txt"), page.Results[0].Fields["path"])

	page, err = db.Search(ctx, "secret", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.TotalMatches)
}

func TestRunIncludeHidden(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, ".hidden", "dotfile content")

	cfg := DefaultConfig()
	cfg.IncludeHidden = true

	db := newTestDB(t)
	ing, err := New(db, cfg, nil)
	require.NoError(t, err)

	stats, err := ing.Run(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)
}

func TestRunNonRecursive(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "top.txt", "top level")
	writeFile(t, root, "sub/deep.txt", "nested")

	cfg := DefaultConfig()
	cfg.Recursive = false

	db := newTestDB(t)
	ing, err := New(db, cfg, nil)
	require.NoError(t, err)

	stats, err := ing.Run(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)

	page, err := db.Search(ctx, "nested", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.TotalMatches)
}

func TestRunSkipsOversizedFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "small.txt", "tiny")
	writeFile(t, root, "big.txt", "this file is bigger than the limit")

	cfg := DefaultConfig()
	cfg.MaxFileSize = 10

	db := newTestDB(t)
	ing, err := New(db, cfg, nil)
	require.NoError(t, err)

	stats, err := ing.Run(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 1, stats.Skipped)
}

func TestRunRefreshReplacesByPath(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	path := writeFile(t, root, "a.txt", "first draft")

	cfg := DefaultConfig()
	cfg.Refresh = true

	db := newTestDB(t)
	ing, err := New(db, cfg, nil)
	require.NoError(t, err)

	_, err = ing.Run(ctx, root)
	require.NoError(t, err)

	writeFile(t, root, "a.txt", "second revision")
	stats, err := ing.Run(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 1, stats.Replaced)

	count, err := db.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	page, err := db.Search(ctx, "draft", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.TotalMatches)

	res, err := db.SearchByField(ctx, "path", path)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestRunWithoutRefreshDuplicates(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "a.txt", "content")

	db := newTestDB(t)
	ing, err := New(db, DefaultConfig(), nil)
	require.NoError(t, err)

	_, err = ing.Run(ctx, root)
	require.NoError(t, err)
	_, err = ing.Run(ctx, root)
	require.NoError(t, err)

	count, err := db.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunWithResourceLimits(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		writeFile(t, root, name, "some shared words here")
	}

	cfg := DefaultConfig()
	cfg.Workers = 2
	cfg.MemoryLimit = 16 // smaller than a single file, still must proceed
	cfg.IOLimitBytesPerSec = 1 << 20

	db := newTestDB(t)
	ing, err := New(db, cfg, nil)
	require.NoError(t, err)

	stats, err := ing.Run(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Indexed)
}

func TestRunWriterErrorReleasesWorkers(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	for i := 0; i < 8; i++ {
		writeFile(t, root, fmt.Sprintf("f%d.txt", i), "some file content")
	}

	// Refresh mode deletes by the path field; declaring it as a text
	// field makes the first DeleteByField fail mid-consume.
	schema := lexgo.Schema{
		{Name: "filename", Kind: lexgo.FieldText, Stored: true},
		{Name: "path", Kind: lexgo.FieldText, Stored: true},
		{Name: "content", Kind: lexgo.FieldText},
	}
	db, err := lexgo.InMemory().Schema(schema).Build(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := DefaultConfig()
	cfg.Refresh = true
	cfg.Workers = 4

	ing, err := New(db, cfg, nil)
	require.NoError(t, err)

	before := runtime.NumGoroutine()
	_, err = ing.Run(ctx, root)
	require.Error(t, err)

	// The workers wind down instead of blocking on the results channel.
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+1
	}, 2*time.Second, 10*time.Millisecond)

	// The transaction was rolled back and the lock released.
	count, err := db.DocCount()
	require.NoError(t, err)
	assert.Zero(t, count)

	w, err := db.Writer()
	require.NoError(t, err)
	require.NoError(t, w.Rollback())
}

func TestRunInvalidRoot(t *testing.T) {
	db := newTestDB(t)
	ing, err := New(db, DefaultConfig(), nil)
	require.NoError(t, err)

	_, err = ing.Run(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	require.ErrorIs(t, err, ErrInvalidRoot)
}

func TestRunCanceledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "content")

	db := newTestDB(t)
	ing, err := New(db, DefaultConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ing.Run(ctx, root)
	require.Error(t, err)

	// Nothing was committed, and the writer lock was released.
	count, err := db.DocCount()
	require.NoError(t, err)
	assert.Zero(t, count)

	w, err := db.Writer()
	require.NoError(t, err)
	require.NoError(t, w.Rollback())
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ingest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workers: 3
include_hidden: true
exclude_suffixes: [".log"]
max_file_size: 1024
refresh: true
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.True(t, cfg.IncludeHidden)
	assert.Equal(t, []string{".log"}, cfg.ExcludeSuffixes)
	assert.Equal(t, int64(1024), cfg.MaxFileSize)
	assert.True(t, cfg.Refresh)
	// Defaults survive for omitted settings.
	assert.Equal(t, int64(256<<20), cfg.MemoryLimit)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: -1\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
