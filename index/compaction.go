package index

import (
	"context"
	"path"
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/lexgo/manifest"
	"github.com/hupe1980/lexgo/segment"
)

// Compact merges all live documents into a single fresh segment,
// dropping tombstoned documents and clearing the tombstone set. It
// takes the writer lock and publishes the result like a normal commit;
// open snapshots keep reading the pre-compaction state.
func (idx *Index) Compact(ctx context.Context) error {
	w, err := idx.Writer()
	if err != nil {
		return err
	}

	// Nothing to merge down.
	if len(w.base.segments) <= 1 && w.base.tombstones.IsEmpty() {
		return w.Rollback()
	}

	staged := w.staged
	builder := segment.NewBuilder(staged.Schema, idx.compression)

	// Segments are kept in ascending docID-range order, so appending
	// their postings per term preserves docID order in the merged lists.
	segments := make([]*segHandle, len(w.base.segments))
	copy(segments, w.base.segments)
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].r.DocIDs()[0] < segments[j].r.DocIDs()[0]
	})

	for _, h := range segments {
		if err := ctx.Err(); err != nil {
			_ = w.Rollback()
			return err
		}

		err := h.r.ForEachTerm(func(field, term string, it *segment.PostingsIterator) error {
			for it.Next() {
				if w.base.deleted(it.Doc()) {
					continue
				}
				builder.AddPosting(field, term, segment.Posting{
					DocID:     it.Doc(),
					Freq:      it.Freq(),
					Positions: append([]uint32(nil), it.Positions()...),
				})
			}
			return it.Err()
		})
		if err != nil {
			_ = w.Rollback()
			return err
		}

		for _, id := range h.r.DocIDs() {
			if w.base.deleted(id) {
				continue
			}
			stored, ok, err := h.r.Document(id)
			if err != nil {
				_ = w.Rollback()
				return err
			}
			if !ok {
				continue
			}
			lengths, _ := h.r.FieldLengths(id)
			builder.AddStoredDoc(id, stored, lengths)
		}
	}

	if builder.Empty() {
		// Every document was tombstoned; publish an empty index.
		staged.Segments = nil
		staged.Tombstones = ""
		return w.publishCompaction(ctx, nil)
	}

	segID := staged.NextSegmentID
	staged.NextSegmentID++
	dir := manifest.SegmentDir(segID)

	meta, err := builder.Flush(ctx, idx.store, dir)
	if err != nil {
		_ = w.Rollback()
		return err
	}
	staged.Segments = []manifest.SegmentInfo{{
		ID:       segID,
		DocCount: meta.DocCount,
		Dir:      dir,
		MinDocID: meta.MinDocID,
		MaxDocID: meta.MaxDocID,
	}}
	staged.Tombstones = ""

	flushed := []string{
		path.Join(dir, segment.TermsBlob),
		path.Join(dir, segment.PostingsBlob),
		path.Join(dir, segment.DocsBlob),
	}
	return w.publishCompaction(ctx, flushed)
}

// publishCompaction saves the staged manifest and swaps in the new
// snapshot. flushed names the new segment's blobs for cleanup if the
// save fails.
func (w *Writer) publishCompaction(ctx context.Context, flushed []string) error {
	defer w.releaseLock()

	if err := w.idx.manifests.Save(ctx, w.staged); err != nil {
		w.cleanup(ctx, flushed)
		return err
	}

	snap, err := w.newSnapshot(ctx, roaring64.New())
	if err != nil {
		return err
	}
	w.idx.install(snap)

	w.idx.gc(ctx, w.staged)
	w.idx.logger.Info("compacted",
		"manifest", w.staged.ID,
		"segments", len(w.staged.Segments),
	)
	return nil
}
