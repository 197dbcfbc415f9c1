package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexgo/internal/fs"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	require.NoError(t, store.Put(ctx, "seg-000001/terms", []byte("hello")))
	require.NoError(t, store.Put(ctx, "CURRENT", []byte("MANIFEST-000001.json")))

	b, err := store.Open(ctx, "seg-000001/terms")
	require.NoError(t, err)
	defer b.Close()

	data, err := ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, int64(5), b.Size())
}

func TestLocalStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	require.NoError(t, store.Put(ctx, "seg-000001/terms", []byte("a")))
	require.NoError(t, store.Put(ctx, "seg-000001/postings", []byte("b")))
	require.NoError(t, store.Put(ctx, "seg-000002/terms", []byte("c")))
	require.NoError(t, store.Put(ctx, "CURRENT", []byte("d")))

	names, err := store.List(ctx, "seg-")
	require.NoError(t, err)
	assert.Equal(t, []string{"seg-000001/postings", "seg-000001/terms", "seg-000002/terms"}, names)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestLocalStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	require.NoError(t, store.Put(ctx, "seg-000001/terms", []byte("a")))
	require.NoError(t, store.Delete(ctx, "seg-000001/terms"))

	// Deleting again is not an error.
	require.NoError(t, store.Delete(ctx, "seg-000001/terms"))

	_, err := store.Open(ctx, "seg-000001/terms")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorePutFaultLeavesNoBlob(t *testing.T) {
	ctx := context.Background()
	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule("broken", fs.Fault{FailOnWrite: true})
	store := NewLocalStoreFS(t.TempDir(), faulty)

	err := store.Put(ctx, "broken.bin", []byte("data"))
	require.Error(t, err)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("mutable")
	require.NoError(t, store.Put(ctx, "blob", data))
	data[0] = 'X'

	b, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	got, err := ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, []byte("mutable"), got)
}
