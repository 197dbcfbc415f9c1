// Package lexgo provides an embedded full-text search engine for Go.
//
// Lexgo indexes documents with a declared field schema and serves
// ranked (BM25) full-text queries plus exact and prefix lookups on
// identifier fields, with production-ready storage semantics:
//
//   - Immutable on-disk segments with CRC-checked blobs
//   - Atomic commits via a versioned manifest and CURRENT pointer
//   - Snapshot-isolated readers; a single writer at a time
//   - Deletes as tombstones, reclaimed by compaction
//   - Pluggable blob storage: local filesystem, memory, or S3-compatible
//     object stores
//
// # Quick Start
//
// Open an index on the local filesystem with the default file schema
// (filename, path, content):
//
//	ctx := context.Background()
//	db, err := lexgo.Local("./index").
//	    CreateIfMissing().
//	    Build(ctx)
//	if err != nil {
//	    panic(err)
//	}
//	defer db.Close()
//
// Index documents inside a transaction:
//
//	w, err := db.Writer()
//	if err != nil {
//	    panic(err)
//	}
//	_, err = w.AddDocument(map[string]string{
//	    "filename": "notes.txt",
//	    "path":     "/home/user/notes.txt",
//	    "content":  "the quick brown fox",
//	})
//	if err != nil {
//	    w.Rollback()
//	    panic(err)
//	}
//	if err := w.Commit(ctx); err != nil {
//	    panic(err)
//	}
//
// Search with pagination:
//
//	page, err := db.Search(ctx, "quick fox", 1, 10)
//	for _, hit := range page.Results {
//	    fmt.Println(hit.Fields["path"], hit.Score)
//	}
//
// Look up by exact path:
//
//	hits, err := db.SearchByField(ctx, "path", "/home/user/notes.txt")
//
// For bulk directory indexing see the ingest package.
package lexgo
