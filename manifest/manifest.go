// Package manifest persists the authoritative record of an index's
// committed state: its schema, segment list, tombstone blob, and id
// counters.
//
// The manifest is published atomically: a new MANIFEST-%06d.json blob
// is written first, then the CURRENT pointer is swapped to it. A crash
// between segment flush and CURRENT swap leaves the previous manifest
// (and therefore the previous committed state) fully intact.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/model"
)

const (
	// ManifestFileName is the prefix of versioned manifest blobs.
	ManifestFileName = "MANIFEST"
	// CurrentFileName is the pointer blob naming the live manifest.
	CurrentFileName = "CURRENT"
	// CurrentVersion is the manifest format version.
	CurrentVersion = 1
)

// ErrNotFound is returned when no manifest has been published yet.
var ErrNotFound = errors.New("manifest not found")

// Manifest describes the committed state of an index at a point in time.
type Manifest struct {
	Version       int             `json:"version"`
	ID            uint64          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	Schema        model.Schema    `json:"schema"`
	NextDocID     model.DocID     `json:"next_doc_id"`
	NextSegmentID model.SegmentID `json:"next_segment_id"`
	Segments      []SegmentInfo   `json:"segments"`
	// Tombstones names the blob holding the serialized deletion bitmap.
	// Empty when no document has ever been deleted.
	Tombstones string `json:"tombstones,omitempty"`
}

// New creates a new empty manifest for the given schema.
func New(schema model.Schema) *Manifest {
	return &Manifest{
		Version:       CurrentVersion,
		CreatedAt:     time.Now(),
		Schema:        schema,
		NextDocID:     1,
		NextSegmentID: 1,
	}
}

// SegmentInfo describes a single committed segment.
type SegmentInfo struct {
	ID       model.SegmentID `json:"id"`
	DocCount uint32          `json:"doc_count"`
	// Dir is the segment directory, relative to the index root.
	Dir string `json:"dir"`
	// MinDocID and MaxDocID bound the document ids in this segment.
	MinDocID model.DocID `json:"min_doc_id"`
	MaxDocID model.DocID `json:"max_doc_id"`
}

// SegmentDir returns the conventional directory name for a segment id.
func SegmentDir(id model.SegmentID) string {
	return fmt.Sprintf("seg-%06d", id)
}

// TombstoneBlob returns the conventional blob name for a tombstone
// bitmap published by manifest version id.
func TombstoneBlob(id uint64) string {
	return fmt.Sprintf("TOMBSTONES-%06d.bin", id)
}

// Clone returns a deep copy, so a writer can stage changes without
// mutating the manifest seen by open snapshots.
func (m *Manifest) Clone() *Manifest {
	out := *m
	out.Schema = append(model.Schema(nil), m.Schema...)
	out.Segments = append([]SegmentInfo(nil), m.Segments...)
	return &out
}

// LiveBlobs returns every blob name referenced by the manifest,
// including the manifest's own blob and the CURRENT pointer. Blobs not
// in this set are garbage from interrupted commits.
func (m *Manifest) LiveBlobs() map[string]struct{} {
	live := map[string]struct{}{
		CurrentFileName: {},
		blobName(m.ID):  {},
	}
	if m.Tombstones != "" {
		live[m.Tombstones] = struct{}{}
	}
	for _, seg := range m.Segments {
		for _, f := range []string{"terms", "postings", "docs"} {
			live[path.Join(seg.Dir, f)] = struct{}{}
		}
	}
	return live
}

func blobName(id uint64) string {
	return fmt.Sprintf("%s-%06d.json", ManifestFileName, id)
}

// Store manages manifest blobs and atomic updates.
type Store struct {
	store blobstore.BlobStore
	mu    sync.Mutex
}

// NewStore creates a new manifest store.
func NewStore(store blobstore.BlobStore) *Store {
	return &Store{store: store}
}

// Load loads the manifest named by the CURRENT pointer.
// Returns ErrNotFound if no manifest has been published.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.readBlob(ctx, CurrentFileName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) || os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	data, err := s.readBlob(ctx, string(cur))
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", cur, err)
	}

	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", cur, err)
	}
	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported manifest version: %d (expected %d)", m.Version, CurrentVersion)
	}
	return m, nil
}

// Save atomically publishes a new manifest version and swaps CURRENT
// to it. The previous manifest blob is removed afterwards; it is
// unreferenced once CURRENT moves on.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevID := m.ID
	m.Version = CurrentVersion
	m.ID++
	m.CreatedAt = time.Now()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	if err := s.store.Put(ctx, blobName(m.ID), data); err != nil {
		m.ID = prevID
		return err
	}
	if err := s.store.Put(ctx, CurrentFileName, []byte(blobName(m.ID))); err != nil {
		m.ID = prevID
		return err
	}

	if prevID > 0 {
		// Best effort; an orphaned manifest blob is harmless.
		_ = s.store.Delete(ctx, blobName(prevID))
	}
	return nil
}

func (s *Store) readBlob(ctx context.Context, name string) ([]byte, error) {
	b, err := s.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	return blobstore.ReadAll(b)
}
