package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/model"
)

func TestSearchRanking(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())
	commitFiles(t, idx, map[string]string{
		"/one.txt":   "the quick brown fox jumps over the lazy dog",
		"/two.txt":   "a fox chased another fox through the fox den",
		"/three.txt": "nothing to see here",
	})

	page, err := idx.Search(ctx, "fox", 1, 10)
	require.NoError(t, err)
	require.Equal(t, 2, page.TotalMatches)

	// Higher term frequency ranks first.
	assert.Equal(t, "/two.txt", page.Results[0].Fields["path"])
	assert.Equal(t, "/one.txt", page.Results[1].Fields["path"])
	assert.Greater(t, page.Results[0].Score, page.Results[1].Score)
}

func TestSearchMultipleTermsIsUnion(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())
	commitFiles(t, idx, map[string]string{
		"/a.txt": "apples are red",
		"/b.txt": "bananas are yellow",
		"/c.txt": "carrots are orange",
	})

	page, err := idx.Search(ctx, "apples bananas", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalMatches)
}

func TestSearchMatchesFilenameField(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())

	w, err := idx.Writer()
	require.NoError(t, err)
	addFile(t, w, "report-summary.txt", "/docs/report-summary.txt", "quarterly numbers")
	require.NoError(t, w.Commit(ctx))

	// Filename tokens are searchable alongside content.
	page, err := idx.Search(ctx, "summary", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalMatches)
}

func TestSearchQueryNormalization(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())
	commitFiles(t, idx, map[string]string{"/a.txt": "Hello, World!"})

	for _, q := range []string{"hello", "HELLO", "hello, world", "WORLD?!"} {
		page, err := idx.Search(ctx, q, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, page.TotalMatches, "query %q", q)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())
	commitFiles(t, idx, map[string]string{"/a.txt": "content"})

	for _, q := range []string{"", "   ", "!!! ???"} {
		page, err := idx.Search(ctx, q, 1, 10)
		require.NoError(t, err)
		assert.Zero(t, page.TotalMatches, "query %q", q)
		assert.Empty(t, page.Results)
	}
}

func TestSearchPagination(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())

	files := make(map[string]string, 25)
	for i := 0; i < 25; i++ {
		files[fmt.Sprintf("/doc-%02d.txt", i)] = "common term"
	}
	commitFiles(t, idx, files)

	seen := make(map[model.DocID]struct{})
	for page := 1; page <= 3; page++ {
		p, err := idx.Search(ctx, "common", page, 10)
		require.NoError(t, err)
		assert.Equal(t, 25, p.TotalMatches)

		want := 10
		if page == 3 {
			want = 5
		}
		require.Len(t, p.Results, want)

		for _, r := range p.Results {
			_, dup := seen[r.DocID]
			assert.False(t, dup, "doc %d appeared on two pages", r.DocID)
			seen[r.DocID] = struct{}{}
		}
	}

	// Past the last page.
	p, err := idx.Search(ctx, "common", 4, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, p.TotalMatches)
	assert.Empty(t, p.Results)
}

func TestSearchStableAcrossSegmentLayout(t *testing.T) {
	ctx := context.Background()

	// Same corpus, committed once as a single segment and once as three.
	single := openTestIndex(t, blobstore.NewMemoryStore())
	commitFiles(t, single, map[string]string{
		"/a.txt": "fox fox fox",
		"/b.txt": "fox dog",
		"/c.txt": "dog dog",
	})

	split := openTestIndex(t, blobstore.NewMemoryStore())
	commitFiles(t, split, map[string]string{"/a.txt": "fox fox fox"})
	commitFiles(t, split, map[string]string{"/b.txt": "fox dog"})
	commitFiles(t, split, map[string]string{"/c.txt": "dog dog"})

	p1, err := single.Search(ctx, "fox", 1, 10)
	require.NoError(t, err)
	p2, err := split.Search(ctx, "fox", 1, 10)
	require.NoError(t, err)

	require.Equal(t, p1.TotalMatches, p2.TotalMatches)
	for i := range p1.Results {
		assert.Equal(t, p1.Results[i].Fields["path"], p2.Results[i].Fields["path"])
		assert.InDelta(t, p1.Results[i].Score, p2.Results[i].Score, 1e-9)
	}
}

func TestSearchByFieldExact(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())
	commitFiles(t, idx, map[string]string{
		"/src/main.go":      "package main",
		"/src/main_test.go": "package main test",
	})

	res, err := idx.SearchByField(ctx, "path", "/src/main.go")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "/src/main.go", res[0].Fields["path"])

	// Exact means exact, no tokenization of the identifier.
	res, err = idx.SearchByField(ctx, "path", "main.go")
	require.NoError(t, err)
	assert.Empty(t, res)

	// Only identifier fields support exact lookup.
	_, err = idx.SearchByField(ctx, "content", "package")
	require.Error(t, err)

	_, err = idx.SearchByField(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestSearchByPrefix(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())
	commitFiles(t, idx, map[string]string{
		"/src/a.go":    "alpha",
		"/src/b.go":    "beta",
		"/docs/readme": "docs",
	})

	res, err := idx.SearchByPrefix(ctx, "path", "/src/", 0)
	require.NoError(t, err)
	require.Len(t, res, 2)
	paths := []string{res[0].Fields["path"], res[1].Fields["path"]}
	assert.ElementsMatch(t, []string{"/src/a.go", "/src/b.go"}, paths)

	res, err = idx.SearchByPrefix(ctx, "path", "/src/", 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)

	res, err = idx.SearchByPrefix(ctx, "path", "/nope/", 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestDocumentLookup(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, blobstore.NewMemoryStore())
	commitFiles(t, idx, map[string]string{"/a.txt": "content here"})

	fields, ok, err := idx.Document(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/a.txt", fields["path"])

	_, ok, err = idx.Document(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)
}
