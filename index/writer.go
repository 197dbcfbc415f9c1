package index

import (
	"context"
	"fmt"
	"path"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/lexgo/analysis"
	"github.com/hupe1980/lexgo/manifest"
	"github.com/hupe1980/lexgo/model"
	"github.com/hupe1980/lexgo/segment"
)

// Prepared is a document after analysis but before it has an id:
// stored field values plus the tokens of every indexable field.
// Preparing is pure, so callers may prepare documents concurrently and
// feed them to the single writer.
type Prepared struct {
	Stored model.StoredFields
	Tokens map[string][]analysis.Token
}

// Prepare validates fields against the schema and tokenizes them.
// Text fields are analyzed, identifier fields become a single exact
// term, stored-only fields are kept verbatim without indexing.
func Prepare(schema model.Schema, fields map[string]string) (Prepared, error) {
	p := Prepared{
		Stored: make(model.StoredFields),
		Tokens: make(map[string][]analysis.Token),
	}
	for name, value := range fields {
		cfg, ok := schema.Field(name)
		if !ok {
			return Prepared{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
		if cfg.Stored {
			p.Stored[name] = value
		}
		switch cfg.Kind {
		case model.FieldText:
			p.Tokens[name] = analysis.Tokenize(value)
		case model.FieldIdentifier:
			p.Tokens[name] = []analysis.Token{{Term: value, Position: 0}}
		case model.FieldStoredOnly:
			// Not indexed.
		}
	}
	return p, nil
}

// Writer stages additions and deletions against one committed state
// and publishes them atomically on Commit. A writer must finish with
// exactly one Commit or Rollback; all changes are invisible to readers
// until Commit returns.
type Writer struct {
	idx     *Index
	base    *Snapshot
	staged  *manifest.Manifest
	builder *segment.Builder
	deletes *roaring64.Bitmap
	done    bool
}

// Writer acquires the single-writer lock and starts a transaction.
// Returns ErrLockBusy without blocking when a writer is already active.
func (idx *Index) Writer() (*Writer, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil, ErrClosed
	}
	if idx.writerHeld {
		return nil, ErrLockBusy
	}
	idx.writerHeld = true
	idx.current.acquire()

	return &Writer{
		idx:     idx,
		base:    idx.current,
		staged:  idx.current.manifest.Clone(),
		builder: segment.NewBuilder(idx.current.manifest.Schema, idx.compression),
		deletes: roaring64.New(),
	}, nil
}

// releaseLock returns the writer lock and the base snapshot reference.
func (w *Writer) releaseLock() {
	w.done = true
	w.base.Close()
	w.idx.mu.Lock()
	w.idx.writerHeld = false
	w.idx.mu.Unlock()
}

// AddDocument analyzes fields and stages a new document. The assigned
// id is returned immediately but the document is searchable only after
// Commit.
func (w *Writer) AddDocument(fields map[string]string) (model.DocID, error) {
	if w.done {
		return 0, ErrWriterDone
	}
	p, err := Prepare(w.staged.Schema, fields)
	if err != nil {
		return 0, err
	}
	return w.AddPrepared(p)
}

// AddPrepared stages an already-analyzed document, assigning the next
// document id. The Prepared must have been built against this index's
// schema.
func (w *Writer) AddPrepared(p Prepared) (model.DocID, error) {
	if w.done {
		return 0, ErrWriterDone
	}
	id := w.staged.NextDocID
	w.staged.NextDocID++
	w.builder.Add(id, p.Stored, p.Tokens)
	return id, nil
}

// Delete stages a tombstone for id. Deleting an id that is not a live
// committed document is a no-op, which makes deletes idempotent.
func (w *Writer) Delete(id model.DocID) error {
	if w.done {
		return ErrWriterDone
	}
	w.deletes.Add(uint64(id))
	return nil
}

// DeleteByField stages tombstones for every live document whose
// identifier field equals value, returning how many were marked.
func (w *Writer) DeleteByField(field, value string) (int, error) {
	if w.done {
		return 0, ErrWriterDone
	}
	cfg, ok := w.staged.Schema.Field(field)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if cfg.Kind != model.FieldIdentifier {
		return 0, fmt.Errorf("field %q is %s, delete-by-field needs an identifier field", field, cfg.Kind)
	}

	count := 0
	for _, h := range w.base.segments {
		it, found, err := h.r.Postings(field, value)
		if err != nil {
			return count, err
		}
		if !found {
			continue
		}
		for it.Next() {
			if w.base.deleted(it.Doc()) || w.deletes.Contains(uint64(it.Doc())) {
				continue
			}
			w.deletes.Add(uint64(it.Doc()))
			count++
		}
		if err := it.Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// Pending reports the number of staged additions and deletions.
func (w *Writer) Pending() (adds, deletes int) {
	return w.builder.DocCount(), int(w.deletes.GetCardinality())
}

// Commit flushes staged documents as a new segment, merges staged
// tombstones, publishes the new manifest, and makes the result visible
// to subsequent reads. On error nothing is published and readers keep
// the previous committed state.
func (w *Writer) Commit(ctx context.Context) error {
	if w.done {
		return ErrWriterDone
	}
	defer w.releaseLock()

	deletes := w.pruneDeletes()
	if w.builder.Empty() && deletes.IsEmpty() {
		return nil
	}

	var flushed []string // blobs to clean up if the commit fails

	if !w.builder.Empty() {
		segID := w.staged.NextSegmentID
		w.staged.NextSegmentID++
		dir := manifest.SegmentDir(segID)

		meta, err := w.builder.Flush(ctx, w.idx.store, dir)
		if err != nil {
			return err
		}
		for _, f := range []string{segment.TermsBlob, segment.PostingsBlob, segment.DocsBlob} {
			flushed = append(flushed, path.Join(dir, f))
		}
		w.staged.Segments = append(w.staged.Segments, manifest.SegmentInfo{
			ID:       segID,
			DocCount: meta.DocCount,
			Dir:      dir,
			MinDocID: meta.MinDocID,
			MaxDocID: meta.MaxDocID,
		})
	}

	tombstones := w.base.tombstones.Clone()
	tombstones.Or(deletes)
	w.staged.Tombstones = ""
	if !tombstones.IsEmpty() {
		data, err := tombstones.MarshalBinary()
		if err != nil {
			w.cleanup(ctx, flushed)
			return err
		}
		// Named after the manifest version that will reference it.
		name := manifest.TombstoneBlob(w.staged.ID + 1)
		if err := w.idx.store.Put(ctx, name, data); err != nil {
			w.cleanup(ctx, flushed)
			return err
		}
		flushed = append(flushed, name)
		w.staged.Tombstones = name
	}

	if err := w.idx.manifests.Save(ctx, w.staged); err != nil {
		w.cleanup(ctx, flushed)
		return err
	}

	snap, err := w.newSnapshot(ctx, tombstones)
	if err != nil {
		// The commit is durable; only the in-memory view failed. Surface
		// the error and let the next open recover.
		return err
	}
	w.idx.install(snap)

	w.idx.gc(ctx, w.staged)
	w.idx.logger.Info("committed",
		"manifest", w.staged.ID,
		"segments", len(w.staged.Segments),
		"tombstones", tombstones.GetCardinality(),
	)
	return nil
}

// pruneDeletes keeps only staged deletes that name a document present
// in the base segments or added by this transaction. Stray ids must
// never reach the tombstone set, whose cardinality feeds DocCount.
func (w *Writer) pruneDeletes() *roaring64.Bitmap {
	pruned := roaring64.New()
	it := w.deletes.Iterator()
	for it.HasNext() {
		id := it.Next()
		if w.docExists(model.DocID(id)) {
			pruned.Add(id)
		}
	}
	return pruned
}

func (w *Writer) docExists(id model.DocID) bool {
	if id >= w.base.manifest.NextDocID && id < w.staged.NextDocID {
		return true
	}
	for _, h := range w.base.segments {
		if h.r.Contains(id) && h.r.Has(id) {
			return true
		}
	}
	return false
}

// newSnapshot builds the post-commit snapshot, reusing the base
// snapshot's segment readers and opening only the newly added segment.
func (w *Writer) newSnapshot(ctx context.Context, tombstones *roaring64.Bitmap) (*Snapshot, error) {
	snap := &Snapshot{manifest: w.staged, tombstones: tombstones}
	snap.refs.Store(1)

	open := make(map[model.SegmentID]*segHandle, len(w.base.segments))
	for _, h := range w.base.segments {
		open[h.r.ID()] = h
	}
	for _, info := range w.staged.Segments {
		if h, ok := open[info.ID]; ok {
			h.acquire()
			snap.segments = append(snap.segments, h)
			continue
		}
		r, err := segment.Open(ctx, w.idx.store, info.Dir, info.ID, w.idx.blockCache)
		if err != nil {
			snap.Close()
			return nil, fmt.Errorf("open committed segment %s: %w", info.Dir, err)
		}
		h := &segHandle{r: r}
		h.refs.Store(1)
		snap.segments = append(snap.segments, h)
	}
	return snap, nil
}

// cleanup removes blobs written by a failed commit. Best effort; the
// garbage collector removes anything left over on the next open.
func (w *Writer) cleanup(ctx context.Context, names []string) {
	for _, name := range names {
		if err := w.idx.store.Delete(ctx, name); err != nil {
			w.idx.logger.Warn("cleanup after failed commit", "blob", name, "error", err)
		}
	}
}

// Rollback discards all staged changes and releases the writer lock.
// Rollback after Commit is a no-op.
func (w *Writer) Rollback() error {
	if w.done {
		return nil
	}
	w.releaseLock()
	return nil
}
