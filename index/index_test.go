package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/internal/fs"
	"github.com/hupe1980/lexgo/model"
)

func openTestIndex(t *testing.T, store blobstore.BlobStore) *Index {
	t.Helper()
	idx, err := Open(context.Background(), store, Options{
		CreateIfMissing: true,
		CacheSize:       1 << 20,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func addFile(t *testing.T, w *Writer, filename, path, content string) model.DocID {
	t.Helper()
	id, err := w.AddDocument(map[string]string{
		"filename": filename,
		"path":     path,
		"content":  content,
	})
	require.NoError(t, err)
	return id
}

func commitFiles(t *testing.T, idx *Index, files map[string]string) {
	t.Helper()
	w, err := idx.Writer()
	require.NoError(t, err)
	for path, content := range files {
		addFile(t, w, path, path, content)
	}
	require.NoError(t, w.Commit(context.Background()))
}

func TestOpenMissingWithoutCreate(t *testing.T) {
	_, err := Open(context.Background(), blobstore.NewMemoryStore(), Options{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddCommitSearch(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())

	w, err := idx.Writer()
	require.NoError(t, err)
	id1 := addFile(t, w, "notes.txt", "/docs/notes.txt", "the quick brown fox")
	id2 := addFile(t, w, "todo.txt", "/docs/todo.txt", "walk the dog")
	assert.Equal(t, model.DocID(1), id1)
	assert.Equal(t, model.DocID(2), id2)

	// Staged documents are invisible before commit.
	page, err := idx.Search(ctx, "fox", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.TotalMatches)

	require.NoError(t, w.Commit(ctx))

	page, err = idx.Search(ctx, "fox", 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalMatches)
	assert.Equal(t, id1, page.Results[0].DocID)
	assert.Equal(t, "notes.txt", page.Results[0].Fields["filename"])
	assert.Greater(t, page.Results[0].Score, 0.0)

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRollbackDiscardsStaged(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())

	w, err := idx.Writer()
	require.NoError(t, err)
	addFile(t, w, "a.txt", "/a.txt", "hello world")
	require.NoError(t, w.Rollback())

	page, err := idx.Search(ctx, "hello", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.TotalMatches)

	// DocID counters roll back with the transaction.
	w, err = idx.Writer()
	require.NoError(t, err)
	id := addFile(t, w, "b.txt", "/b.txt", "hello again")
	assert.Equal(t, model.DocID(1), id)
	require.NoError(t, w.Commit(ctx))
}

func TestWriterLockIsExclusive(t *testing.T) {
	idx := openTestIndex(t, blobstore.NewMemoryStore())

	w, err := idx.Writer()
	require.NoError(t, err)

	_, err = idx.Writer()
	assert.ErrorIs(t, err, ErrLockBusy)

	require.NoError(t, w.Rollback())

	w2, err := idx.Writer()
	require.NoError(t, err)
	require.NoError(t, w2.Rollback())
}

func TestWriterDoneAfterFinish(t *testing.T) {
	idx := openTestIndex(t, blobstore.NewMemoryStore())

	w, err := idx.Writer()
	require.NoError(t, err)
	require.NoError(t, w.Commit(context.Background()))

	_, err = w.AddDocument(map[string]string{"filename": "x"})
	assert.ErrorIs(t, err, ErrWriterDone)
	assert.ErrorIs(t, w.Commit(context.Background()), ErrWriterDone)
	assert.NoError(t, w.Rollback())
}

func TestAddDocumentUnknownField(t *testing.T) {
	idx := openTestIndex(t, blobstore.NewMemoryStore())

	w, err := idx.Writer()
	require.NoError(t, err)
	defer func() { _ = w.Rollback() }()

	_, err = w.AddDocument(map[string]string{"nope": "x"})
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestDeleteHidesDocument(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())
	commitFiles(t, idx, map[string]string{
		"/a.txt": "shared term apple",
		"/b.txt": "shared term banana",
	})

	res, err := idx.SearchByField(ctx, "path", "/a.txt")
	require.NoError(t, err)
	require.Len(t, res, 1)

	w, err := idx.Writer()
	require.NoError(t, err)
	require.NoError(t, w.Delete(res[0].DocID))
	require.NoError(t, w.Commit(ctx))

	page, err := idx.Search(ctx, "shared", 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalMatches)
	assert.Equal(t, "/b.txt", page.Results[0].Fields["path"])

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Deleting the same id again is a no-op.
	w, err = idx.Writer()
	require.NoError(t, err)
	require.NoError(t, w.Delete(res[0].DocID))
	require.NoError(t, w.Commit(ctx))

	count, err = idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteUnknownIDIsNoOp(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())

	// Deleting on an empty index must not manufacture a tombstone.
	before, err := idx.Stats()
	require.NoError(t, err)

	w, err := idx.Writer()
	require.NoError(t, err)
	require.NoError(t, w.Delete(7))
	require.NoError(t, w.Commit(ctx))

	after, err := idx.Stats()
	require.NoError(t, err)
	assert.Zero(t, after.DocCount)
	assert.Zero(t, after.Tombstones)
	assert.Equal(t, before.ManifestID, after.ManifestID, "pruned-empty commit publishes nothing")

	// A stray id alongside a real addition is dropped as well.
	w, err = idx.Writer()
	require.NoError(t, err)
	addFile(t, w, "a.txt", "/a.txt", "apple")
	require.NoError(t, w.Delete(42))
	require.NoError(t, w.Commit(ctx))

	stats, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocCount)
	assert.Zero(t, stats.Tombstones)
}

func TestDeleteAfterCompactIsNoOp(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())
	commitFiles(t, idx, map[string]string{
		"/a.txt": "apple",
		"/b.txt": "banana",
	})

	res, err := idx.SearchByField(ctx, "path", "/a.txt")
	require.NoError(t, err)
	require.Len(t, res, 1)
	gone := res[0].DocID

	w, err := idx.Writer()
	require.NoError(t, err)
	require.NoError(t, w.Delete(gone))
	require.NoError(t, w.Commit(ctx))
	require.NoError(t, idx.Compact(ctx))

	// Compaction removed the document physically; deleting its old id
	// again must not resurrect a tombstone for it.
	w, err = idx.Writer()
	require.NoError(t, err)
	require.NoError(t, w.Delete(gone))
	require.NoError(t, w.Commit(ctx))

	stats, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocCount)
	assert.Zero(t, stats.Tombstones)
}

func TestDeleteByField(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())
	commitFiles(t, idx, map[string]string{
		"/a.txt": "apple",
		"/b.txt": "banana",
	})

	w, err := idx.Writer()
	require.NoError(t, err)
	n, err := w.DeleteByField("path", "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Unknown value marks nothing.
	n, err = w.DeleteByField("path", "/missing.txt")
	require.NoError(t, err)
	assert.Zero(t, n)

	// Text fields cannot be used for exact deletes.
	_, err = w.DeleteByField("content", "apple")
	require.Error(t, err)

	require.NoError(t, w.Commit(ctx))

	res, err := idx.SearchByField(ctx, "path", "/a.txt")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestReopenKeepsCommittedState(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	idx := openTestIndex(t, store)
	commitFiles(t, idx, map[string]string{"/a.txt": "persistent data"})
	require.NoError(t, idx.Close())

	idx2, err := Open(ctx, store, Options{})
	require.NoError(t, err)
	defer idx2.Close()

	page, err := idx2.Search(ctx, "persistent", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalMatches)

	// The docID counter continues after reopen.
	w, err := idx2.Writer()
	require.NoError(t, err)
	id := addFile(t, w, "b.txt", "/b.txt", "more")
	assert.Equal(t, model.DocID(2), id)
	require.NoError(t, w.Rollback())
}

func TestRebuildDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	idx := openTestIndex(t, store)
	commitFiles(t, idx, map[string]string{"/a.txt": "old content"})
	require.NoError(t, idx.Close())

	idx2, err := Open(ctx, store, Options{Rebuild: true})
	require.NoError(t, err)
	defer idx2.Close()

	page, err := idx2.Search(ctx, "old", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.TotalMatches)

	count, err := idx2.DocCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestInterruptedCommitLeavesOldState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	faulty := fs.NewFaultyFS(nil)
	store := blobstore.NewLocalStoreFS(dir, faulty)

	idx, err := Open(ctx, store, Options{CreateIfMissing: true})
	require.NoError(t, err)
	commitFiles(t, idx, map[string]string{"/a.txt": "stable state"})

	// Fail the atomic publish of the CURRENT pointer mid-commit.
	faulty.AddRule("CURRENT", fs.Fault{FailOnRename: true})

	w, err := idx.Writer()
	require.NoError(t, err)
	addFile(t, w, "b.txt", "/b.txt", "doomed content")
	require.Error(t, w.Commit(ctx))

	// The in-memory view still serves the last committed state.
	page, err := idx.Search(ctx, "stable", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalMatches)

	page, err = idx.Search(ctx, "doomed", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.TotalMatches)
	require.NoError(t, idx.Close())

	// Reopening recovers the committed state and collects orphans.
	faulty.ClearRules()
	idx2, err := Open(ctx, store, Options{})
	require.NoError(t, err)
	defer idx2.Close()

	page, err = idx2.Search(ctx, "stable", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalMatches)

	page, err = idx2.Search(ctx, "doomed", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.TotalMatches)
}

func TestOpenRefusesCorruptSegment(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	idx := openTestIndex(t, store)
	commitFiles(t, idx, map[string]string{"/a.txt": "some content"})
	require.NoError(t, idx.Close())

	b, err := store.Open(ctx, "seg-000001/postings")
	require.NoError(t, err)
	data, err := blobstore.ReadAll(b)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	data[len(data)/2] ^= 0xFF
	require.NoError(t, store.Put(ctx, "seg-000001/postings", data))

	_, err = Open(ctx, store, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt")
}

func TestCompact(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())

	commitFiles(t, idx, map[string]string{"/a.txt": "alpha shared"})
	commitFiles(t, idx, map[string]string{"/b.txt": "beta shared"})
	commitFiles(t, idx, map[string]string{"/c.txt": "gamma shared"})

	res, err := idx.SearchByField(ctx, "path", "/b.txt")
	require.NoError(t, err)
	require.Len(t, res, 1)

	w, err := idx.Writer()
	require.NoError(t, err)
	require.NoError(t, w.Delete(res[0].DocID))
	require.NoError(t, w.Commit(ctx))

	stats, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.SegmentCount)
	assert.Equal(t, 1, stats.Tombstones)

	require.NoError(t, idx.Compact(ctx))

	stats, err = idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SegmentCount)
	assert.Zero(t, stats.Tombstones)
	assert.Equal(t, 2, stats.DocCount)

	page, err := idx.Search(ctx, "shared", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalMatches)

	page, err = idx.Search(ctx, "beta", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.TotalMatches)

	// Ids survive compaction.
	res, err = idx.SearchByField(ctx, "path", "/c.txt")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, model.DocID(3), res[0].DocID)
}

func TestCompactEverythingDeleted(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())
	commitFiles(t, idx, map[string]string{"/a.txt": "only doc"})

	w, err := idx.Writer()
	require.NoError(t, err)
	require.NoError(t, w.Delete(1))
	require.NoError(t, w.Commit(ctx))

	require.NoError(t, idx.Compact(ctx))

	stats, err := idx.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.SegmentCount)
	assert.Zero(t, stats.DocCount)
	assert.Zero(t, stats.Tombstones)
}

func TestSnapshotIsolation(t *testing.T) {
	idx := openTestIndex(t, blobstore.NewMemoryStore())
	commitFiles(t, idx, map[string]string{"/a.txt": "first"})

	snap, err := idx.Acquire()
	require.NoError(t, err)
	defer snap.Close()

	commitFiles(t, idx, map[string]string{"/b.txt": "second"})

	// The old snapshot still sees only the first commit.
	assert.Equal(t, 1, snap.docCount())

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEmptyCommitPublishesNothing(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())

	before, err := idx.Stats()
	require.NoError(t, err)

	w, err := idx.Writer()
	require.NoError(t, err)
	require.NoError(t, w.Commit(ctx))

	after, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, before.ManifestID, after.ManifestID)
}
