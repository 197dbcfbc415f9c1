package lexgo

import (
	"context"
	"time"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/index"
	"github.com/hupe1980/lexgo/model"
)

// Convenience aliases so common usage needs only the root package.
type (
	// DocID is the stable, index-wide identifier of a document.
	DocID = model.DocID
	// Schema is the enumerated field configuration of an index.
	Schema = model.Schema
	// FieldConfig declares a single schema field.
	FieldConfig = model.FieldConfig
	// FieldKind describes how a field participates in indexing.
	FieldKind = model.FieldKind
	// StoredFields holds the retrievable field values of a document.
	StoredFields = model.StoredFields
	// SearchResult is a single ranked match.
	SearchResult = model.SearchResult
	// SearchPage is one page of ranked results.
	SearchPage = model.SearchPage
)

const (
	// FieldText is tokenized and indexed for ranked full-text search.
	FieldText = model.FieldText
	// FieldIdentifier is indexed as a single exact term.
	FieldIdentifier = model.FieldIdentifier
	// FieldStoredOnly is retrievable but not searchable.
	FieldStoredOnly = model.FieldStoredOnly
)

// DefaultSchema returns the file-indexing schema: a stored, tokenized
// filename, a stored exact path, and tokenized (but not stored) content.
func DefaultSchema() Schema {
	return model.DefaultSchema()
}

// Lexgo is an embedded full-text index over a blob store.
//
// All methods are safe for concurrent use. Reads run against immutable
// snapshots; writes go through a Writer transaction and become visible
// atomically on Commit.
type Lexgo struct {
	idx     *index.Index
	schema  Schema
	logger  *Logger
	metrics MetricsCollector
}

// Open opens an index stored in store. Prefer the fluent builders
// (Local, InMemory, Store) for common setups.
func Open(ctx context.Context, store blobstore.BlobStore, optFns ...func(o *Options)) (*Lexgo, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = NoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetricsCollector{}
	}

	idx, err := index.Open(ctx, store, index.Options{
		Schema:          opts.Schema,
		CreateIfMissing: opts.CreateIfMissing,
		Rebuild:         opts.Rebuild,
		Compression:     opts.Compression,
		CacheSize:       opts.CacheSize,
		Logger:          opts.Logger.Logger,
	})
	if err != nil {
		return nil, translateError(err)
	}

	schema, err := idx.Schema()
	if err != nil {
		_ = idx.Close()
		return nil, translateError(err)
	}

	return &Lexgo{
		idx:     idx,
		schema:  schema,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// Schema returns the committed field schema.
func (db *Lexgo) Schema() Schema {
	return append(Schema(nil), db.schema...)
}

// Prepared is a document after analysis but before it has an id.
// Preparing is pure, so callers may analyze documents concurrently and
// feed them to the single writer via Writer.AddPrepared.
type Prepared = index.Prepared

// Prepare validates fields against the schema and tokenizes them
// without touching the index.
func (db *Lexgo) Prepare(fields map[string]string) (Prepared, error) {
	p, err := index.Prepare(db.schema, fields)
	return p, translateError(err)
}

// DocCount returns the number of live (non-deleted) documents.
func (db *Lexgo) DocCount() (int, error) {
	n, err := db.idx.DocCount()
	return n, translateError(err)
}

// Stats summarizes the committed index state.
type Stats = index.Stats

// Stats returns counters describing the committed index state.
func (db *Lexgo) Stats() (Stats, error) {
	s, err := db.idx.Stats()
	return s, translateError(err)
}

// Compact merges all live documents into a single segment, reclaiming
// the space held by deleted documents.
func (db *Lexgo) Compact(ctx context.Context) error {
	start := time.Now()
	err := translateError(db.idx.Compact(ctx))
	db.metrics.RecordCompaction(time.Since(start), err)
	db.logger.LogCompaction(ctx, err)
	return err
}

// Close releases the index. Outstanding writers and searches finish
// against their own snapshots.
func (db *Lexgo) Close() error {
	return translateError(db.idx.Close())
}

// Writer starts a write transaction. At most one writer is active at a
// time; ErrLockBusy is returned without blocking when the lock is held.
func (db *Lexgo) Writer() (*Writer, error) {
	w, err := db.idx.Writer()
	if err != nil {
		return nil, translateError(err)
	}
	return &Writer{w: w, db: db}, nil
}

// Writer stages document additions and deletions and publishes them
// atomically on Commit. Staged changes are invisible to readers until
// Commit returns.
type Writer struct {
	w  *index.Writer
	db *Lexgo
}

// AddDocument analyzes fields against the schema and stages a new
// document, returning its assigned id.
func (w *Writer) AddDocument(fields map[string]string) (DocID, error) {
	id, err := w.w.AddDocument(fields)
	return id, translateError(err)
}

// AddPrepared stages an already-analyzed document, returning its
// assigned id. The Prepared must come from this index's Prepare.
func (w *Writer) AddPrepared(p Prepared) (DocID, error) {
	id, err := w.w.AddPrepared(p)
	return id, translateError(err)
}

// Delete stages a tombstone for id. Deletes are idempotent.
func (w *Writer) Delete(id DocID) error {
	return translateError(w.w.Delete(id))
}

// DeleteByField stages tombstones for every live document whose
// identifier field equals value, returning how many were marked.
func (w *Writer) DeleteByField(field, value string) (int, error) {
	n, err := w.w.DeleteByField(field, value)
	return n, translateError(err)
}

// Commit publishes all staged changes atomically. On error nothing is
// published and readers keep the previous committed state.
func (w *Writer) Commit(ctx context.Context) error {
	adds, deletes := w.w.Pending()
	start := time.Now()
	err := translateError(w.w.Commit(ctx))
	w.db.metrics.RecordCommit(adds, deletes, time.Since(start), err)
	w.db.logger.LogCommit(ctx, adds, deletes, err)
	return err
}

// Rollback discards all staged changes. Rollback after Commit is a
// no-op.
func (w *Writer) Rollback() error {
	return translateError(w.w.Rollback())
}
