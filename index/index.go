// Package index ties segments, manifest, and tombstones together into
// a searchable single-writer index with snapshot-isolated readers.
package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/internal/cache"
	"github.com/hupe1980/lexgo/manifest"
	"github.com/hupe1980/lexgo/model"
	"github.com/hupe1980/lexgo/segment"
)

var (
	// ErrLockBusy is returned when another writer already holds the
	// single-writer lock.
	ErrLockBusy = errors.New("another writer holds the index lock")
	// ErrClosed is returned when the index has been closed.
	ErrClosed = errors.New("index is closed")
	// ErrNotFound is returned when no index exists at the store location
	// and creation was not requested.
	ErrNotFound = errors.New("index not found")
	// ErrWriterDone is returned when a writer is used after Commit or
	// Rollback.
	ErrWriterDone = errors.New("writer already finished")
	// ErrUnknownField is returned when a document or query names a field
	// the schema does not declare.
	ErrUnknownField = errors.New("field not declared in schema")
)

// Options configures opening an index.
type Options struct {
	// Schema is used when creating a new index. Ignored when an existing
	// index is opened; the committed schema wins.
	Schema model.Schema
	// CreateIfMissing creates an empty index when none exists.
	CreateIfMissing bool
	// Rebuild discards any existing index data and starts fresh.
	Rebuild bool
	// Compression is applied to newly written segment blocks.
	Compression segment.Compression
	// CacheSize bounds the decoded-block cache in bytes.
	CacheSize int64
	// Logger receives operational events. Defaults to a discard logger.
	Logger *slog.Logger
}

// Index is a single-node full-text index over a blob store.
//
// Reads are served from an immutable snapshot; a writer stages changes
// and publishes them atomically via the manifest. At most one writer
// is active at a time.
type Index struct {
	store       blobstore.BlobStore
	manifests   *manifest.Store
	blockCache  *cache.LRU
	compression segment.Compression
	logger      *slog.Logger

	mu         sync.Mutex
	current    *Snapshot
	writerHeld bool
	closed     bool
}

// Open opens the index stored in store, creating or rebuilding it
// according to opts. It refuses to open when any committed segment
// fails its integrity checks.
func Open(ctx context.Context, store blobstore.BlobStore, opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	idx := &Index{
		store:       store,
		manifests:   manifest.NewStore(store),
		blockCache:  cache.NewLRU(opts.CacheSize),
		compression: opts.Compression,
		logger:      logger,
	}

	if opts.Rebuild {
		if err := idx.wipe(ctx); err != nil {
			return nil, fmt.Errorf("rebuild: %w", err)
		}
	}

	m, err := idx.manifests.Load(ctx)
	switch {
	case errors.Is(err, manifest.ErrNotFound):
		if !opts.CreateIfMissing && !opts.Rebuild {
			return nil, ErrNotFound
		}
		schema := opts.Schema
		if schema == nil {
			schema = model.DefaultSchema()
		}
		if err := schema.Validate(); err != nil {
			return nil, err
		}
		m = manifest.New(schema)
		if err := idx.manifests.Save(ctx, m); err != nil {
			return nil, err
		}
		logger.Info("created index", "fields", len(schema))
	case err != nil:
		return nil, err
	}

	snap, err := idx.openSnapshot(ctx, m)
	if err != nil {
		return nil, err
	}
	idx.current = snap

	idx.gc(ctx, m)
	return idx, nil
}

// wipe removes every blob so a rebuild starts from nothing.
func (idx *Index) wipe(ctx context.Context) error {
	names, err := idx.store.List(ctx, "")
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := idx.store.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// openSnapshot opens readers for every committed segment plus the
// tombstone bitmap. The returned snapshot starts with one reference.
func (idx *Index) openSnapshot(ctx context.Context, m *manifest.Manifest) (*Snapshot, error) {
	snap := &Snapshot{manifest: m, tombstones: roaring64.New()}
	snap.refs.Store(1)

	for _, info := range m.Segments {
		r, err := segment.Open(ctx, idx.store, info.Dir, info.ID, idx.blockCache)
		if err != nil {
			snap.Close()
			return nil, fmt.Errorf("open segment %s: %w", info.Dir, err)
		}
		h := &segHandle{r: r}
		h.refs.Store(1)
		snap.segments = append(snap.segments, h)
	}

	if m.Tombstones != "" {
		data, err := readBlob(ctx, idx.store, m.Tombstones)
		if err != nil {
			snap.Close()
			return nil, fmt.Errorf("open tombstones %s: %w", m.Tombstones, err)
		}
		if err := snap.tombstones.UnmarshalBinary(data); err != nil {
			snap.Close()
			return nil, fmt.Errorf("decode tombstones %s: %w", m.Tombstones, err)
		}
	}
	return snap, nil
}

// gc removes blobs no longer referenced by the committed manifest,
// typically left behind by an interrupted commit. Failures are logged
// and retried on the next commit.
func (idx *Index) gc(ctx context.Context, m *manifest.Manifest) {
	names, err := idx.store.List(ctx, "")
	if err != nil {
		idx.logger.Warn("garbage collection list failed", "error", err)
		return
	}
	live := m.LiveBlobs()
	for _, name := range names {
		if _, ok := live[name]; ok {
			continue
		}
		if err := idx.store.Delete(ctx, name); err != nil {
			idx.logger.Warn("garbage collection delete failed", "blob", name, "error", err)
			continue
		}
		idx.logger.Debug("removed orphaned blob", "blob", name)
	}
}

// Acquire returns the current snapshot with an extra reference. The
// caller must Close it.
func (idx *Index) Acquire() (*Snapshot, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil, ErrClosed
	}
	idx.current.acquire()
	return idx.current, nil
}

// install publishes snap as the current snapshot and drops the index's
// reference to the previous one.
func (idx *Index) install(snap *Snapshot) {
	idx.mu.Lock()
	prev := idx.current
	idx.current = snap
	idx.mu.Unlock()
	prev.Close()
}

// Schema returns the committed schema.
func (idx *Index) Schema() (model.Schema, error) {
	snap, err := idx.Acquire()
	if err != nil {
		return nil, err
	}
	defer snap.Close()
	return append(model.Schema(nil), snap.manifest.Schema...), nil
}

// DocCount returns the number of live (non-deleted) documents.
func (idx *Index) DocCount() (int, error) {
	snap, err := idx.Acquire()
	if err != nil {
		return 0, err
	}
	defer snap.Close()
	return snap.docCount(), nil
}

// Stats summarizes the committed index state.
type Stats struct {
	DocCount     int
	SegmentCount int
	Tombstones   int
	ManifestID   uint64
}

// Stats returns counters describing the committed index state.
func (idx *Index) Stats() (Stats, error) {
	snap, err := idx.Acquire()
	if err != nil {
		return Stats{}, err
	}
	defer snap.Close()
	return Stats{
		DocCount:     snap.docCount(),
		SegmentCount: len(snap.segments),
		Tombstones:   int(snap.tombstones.GetCardinality()),
		ManifestID:   snap.manifest.ID,
	}, nil
}

// Close releases the current snapshot. Outstanding snapshots stay
// valid until their own Close.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	idx.current.Close()
	idx.current = nil
	return nil
}

// Snapshot is an immutable view of the index at one committed state.
type Snapshot struct {
	manifest   *manifest.Manifest
	segments   []*segHandle
	tombstones *roaring64.Bitmap
	refs       atomic.Int32
}

func (s *Snapshot) acquire() {
	s.refs.Add(1)
}

// Close releases the snapshot. Segment readers are closed once no
// snapshot references them.
func (s *Snapshot) Close() {
	if s.refs.Add(-1) != 0 {
		return
	}
	for _, h := range s.segments {
		h.release()
	}
}

// docCount returns the number of live documents in the snapshot.
func (s *Snapshot) docCount() int {
	var total uint64
	for _, h := range s.segments {
		total += uint64(h.r.DocCount())
	}
	return int(total - s.tombstones.GetCardinality())
}

// deleted reports whether id carries a tombstone in this snapshot.
func (s *Snapshot) deleted(id model.DocID) bool {
	return s.tombstones.Contains(uint64(id))
}

// document fetches the stored fields of a live document.
func (s *Snapshot) document(id model.DocID) (model.StoredFields, bool, error) {
	if s.deleted(id) {
		return nil, false, nil
	}
	for _, h := range s.segments {
		if !h.r.Contains(id) {
			continue
		}
		fields, ok, err := h.r.Document(id)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return fields, true, nil
		}
	}
	return nil, false, nil
}

// segHandle refcounts one segment reader across snapshots, so a reader
// survives until every snapshot that includes it is closed.
type segHandle struct {
	r    *segment.Reader
	refs atomic.Int32
}

func (h *segHandle) acquire() {
	h.refs.Add(1)
}

func (h *segHandle) release() {
	if h.refs.Add(-1) == 0 {
		_ = h.r.Close()
	}
}

func readBlob(ctx context.Context, store blobstore.BlobStore, name string) ([]byte, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	return blobstore.ReadAll(b)
}
