// Package segment implements the immutable on-disk segment format: a
// term dictionary with per-field statistics, delta-compressed posting
// lists, and a compressed stored-document area. Each blob is framed
// with a magic, a format version, and a CRC32-C checksum that is
// verified when the segment is opened.
package segment

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/internal/cache"
	"github.com/hupe1980/lexgo/model"
)

type fieldInfo struct {
	name        string
	kind        model.FieldKind
	docCount    uint64
	totalTokens uint64
}

// Reader provides read access to one committed segment. Readers are
// safe for concurrent use once opened.
type Reader struct {
	id  model.SegmentID
	dir string

	docCount uint32
	minDocID model.DocID
	maxDocID model.DocID

	fields     []fieldInfo
	fieldIndex map[string]int

	docIDs     []model.DocID
	docLengths map[model.DocID][]uint32

	dict []dictEntry

	postingsBlob blobstore.Blob
	docsBlob     blobstore.Blob
	docIndex     map[model.DocID]docLocation

	blockCache *cache.LRU
}

type docLocation struct {
	offset uint64
	length uint64
}

// Open opens the segment stored under dir and verifies the integrity
// of all three blobs. It fails with a CorruptError when any check does
// not hold; a segment that fails its checks must not serve queries.
func Open(ctx context.Context, store blobstore.BlobStore, dir string, id model.SegmentID, blockCache *cache.LRU) (*Reader, error) {
	r := &Reader{id: id, dir: dir, blockCache: blockCache}

	if err := r.loadTerms(ctx, store); err != nil {
		return nil, err
	}

	var err error
	r.postingsBlob, err = store.Open(ctx, path.Join(dir, PostingsBlob))
	if err != nil {
		return nil, err
	}
	if _, err := verifyBlobAt(path.Join(dir, PostingsBlob), postingsMagic, r.postingsBlob); err != nil {
		_ = r.postingsBlob.Close()
		return nil, err
	}

	r.docsBlob, err = store.Open(ctx, path.Join(dir, DocsBlob))
	if err != nil {
		_ = r.postingsBlob.Close()
		return nil, err
	}
	if err := r.loadDocIndex(path.Join(dir, DocsBlob)); err != nil {
		_ = r.postingsBlob.Close()
		_ = r.docsBlob.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the underlying blob handles.
func (r *Reader) Close() error {
	err := r.postingsBlob.Close()
	if cerr := r.docsBlob.Close(); err == nil {
		err = cerr
	}
	return err
}

// ID returns the segment id.
func (r *Reader) ID() model.SegmentID { return r.id }

// DocCount returns the number of documents stored in the segment,
// ignoring tombstones.
func (r *Reader) DocCount() uint32 { return r.docCount }

// DocIDs returns the segment's document ids in ascending order. The
// returned slice is shared; callers must not mutate it.
func (r *Reader) DocIDs() []model.DocID { return r.docIDs }

// Contains reports whether id falls inside the segment's docID range.
// The range can have gaps after compaction; use Has for an exact check.
func (r *Reader) Contains(id model.DocID) bool {
	return id >= r.minDocID && id <= r.maxDocID
}

// Has reports whether the segment physically stores id.
func (r *Reader) Has(id model.DocID) bool {
	_, ok := r.docIndex[id]
	return ok
}

func (r *Reader) loadTerms(ctx context.Context, store blobstore.BlobStore) error {
	name := path.Join(r.dir, TermsBlob)
	b, err := store.Open(ctx, name)
	if err != nil {
		return err
	}
	defer b.Close()

	data, err := blobstore.ReadAll(b)
	if err != nil {
		return err
	}
	payload, err := verifyBlob(name, termsMagic, data)
	if err != nil {
		return err
	}

	rd := &bufReader{b: payload}
	r.docCount = uint32(rd.uvarint())
	r.minDocID = model.DocID(rd.uvarint())
	r.maxDocID = model.DocID(rd.uvarint())

	numFields := rd.uvarint()
	r.fields = make([]fieldInfo, 0, numFields)
	r.fieldIndex = make(map[string]int, numFields)
	for i := uint64(0); i < numFields; i++ {
		f := fieldInfo{
			name:        rd.str(),
			kind:        model.FieldKind(rd.uvarint()),
			docCount:    rd.uvarint(),
			totalTokens: rd.uvarint(),
		}
		r.fieldIndex[f.name] = len(r.fields)
		r.fields = append(r.fields, f)
	}

	numDocs := rd.uvarint()
	r.docIDs = make([]model.DocID, 0, numDocs)
	r.docLengths = make(map[model.DocID][]uint32, numDocs)
	var prevDoc uint64
	for i := uint64(0); i < numDocs; i++ {
		prevDoc += rd.uvarint()
		id := model.DocID(prevDoc)
		lengths := make([]uint32, numFields)
		for j := range lengths {
			lengths[j] = uint32(rd.uvarint())
		}
		r.docIDs = append(r.docIDs, id)
		r.docLengths[id] = lengths
	}

	numTerms := rd.uvarint()
	r.dict = make([]dictEntry, 0, numTerms)
	for i := uint64(0); i < numTerms; i++ {
		r.dict = append(r.dict, dictEntry{
			field:   uint32(rd.uvarint()),
			term:    rd.str(),
			docFreq: rd.uvarint(),
			offset:  rd.uvarint(),
			length:  rd.uvarint(),
		})
	}

	if rd.err != nil {
		return &CorruptError{Blob: name, Reason: rd.err.Error()}
	}
	if uint64(len(r.docIDs)) != uint64(r.docCount) {
		return &CorruptError{Blob: name, Reason: "doc count mismatch"}
	}
	return nil
}

func (r *Reader) loadDocIndex(name string) error {
	payloadLen, err := verifyBlobAt(name, docsMagic, r.docsBlob)
	if err != nil {
		return err
	}
	if payloadLen < docTrailerSize {
		return &CorruptError{Blob: name, Reason: "missing trailer"}
	}

	trailer := make([]byte, docTrailerSize)
	if _, err := r.docsBlob.ReadAt(trailer, headerSize+payloadLen-docTrailerSize); err != nil {
		return err
	}
	indexOffset := binary.LittleEndian.Uint64(trailer[0:8])
	numDocs := binary.LittleEndian.Uint32(trailer[8:12])

	indexSize := uint64(numDocs) * docIndexEntrySize
	if indexOffset+indexSize+docTrailerSize != uint64(payloadLen) {
		return &CorruptError{Blob: name, Reason: "doc index out of bounds"}
	}

	raw := make([]byte, indexSize)
	if _, err := r.docsBlob.ReadAt(raw, headerSize+int64(indexOffset)); err != nil {
		return err
	}
	r.docIndex = make(map[model.DocID]docLocation, numDocs)
	for i := uint32(0); i < numDocs; i++ {
		e := raw[i*docIndexEntrySize:]
		id := model.DocID(binary.LittleEndian.Uint64(e[0:8]))
		r.docIndex[id] = docLocation{
			offset: binary.LittleEndian.Uint64(e[8:16]),
			length: binary.LittleEndian.Uint64(e[16:24]),
		}
	}
	return nil
}

// lookup finds the dictionary entry for (field, term) via binary search
// over the (field ordinal, term)-sorted dictionary.
func (r *Reader) lookup(field, term string) (dictEntry, bool) {
	ord, ok := r.fieldIndex[field]
	if !ok {
		return dictEntry{}, false
	}
	i := sort.Search(len(r.dict), func(i int) bool {
		if r.dict[i].field != uint32(ord) {
			return r.dict[i].field > uint32(ord)
		}
		return r.dict[i].term >= term
	})
	if i < len(r.dict) && r.dict[i].field == uint32(ord) && r.dict[i].term == term {
		return r.dict[i], true
	}
	return dictEntry{}, false
}

// Postings returns an iterator over the posting list of term in field.
// The second return is false when the segment has no such term.
func (r *Reader) Postings(field, term string) (*PostingsIterator, bool, error) {
	e, ok := r.lookup(field, term)
	if !ok {
		return nil, false, nil
	}
	block, err := r.readPostingBlock(e)
	if err != nil {
		return nil, false, err
	}
	it, err := newPostingsIterator(block)
	if err != nil {
		return nil, false, &CorruptError{Blob: path.Join(r.dir, PostingsBlob), Reason: err.Error()}
	}
	return it, true, nil
}

// DocFreq returns the number of segment documents containing term in
// field, without decoding the posting list.
func (r *Reader) DocFreq(field, term string) uint64 {
	if e, ok := r.lookup(field, term); ok {
		return e.docFreq
	}
	return 0
}

func (r *Reader) readPostingBlock(e dictEntry) ([]byte, error) {
	key := fmt.Sprintf("%s/p@%d", r.dir, e.offset)
	if cached, ok := r.blockCache.Get(key); ok {
		return cached, nil
	}

	raw := make([]byte, e.length)
	if _, err := r.postingsBlob.ReadAt(raw, headerSize+int64(e.offset)); err != nil {
		return nil, err
	}
	block, err := decompressBlock(raw)
	if err != nil {
		return nil, &CorruptError{Blob: path.Join(r.dir, PostingsBlob), Reason: err.Error()}
	}
	r.blockCache.Set(key, block)
	return block, nil
}

// ForEachTerm calls fn for every dictionary entry in (field, term)
// order, with a fresh posting iterator each time. Iteration stops at
// the first error. Used by the compactor to carry live postings over.
func (r *Reader) ForEachTerm(fn func(field, term string, it *PostingsIterator) error) error {
	for _, e := range r.dict {
		block, err := r.readPostingBlock(e)
		if err != nil {
			return err
		}
		it, err := newPostingsIterator(block)
		if err != nil {
			return &CorruptError{Blob: path.Join(r.dir, PostingsBlob), Reason: err.Error()}
		}
		if err := fn(r.fields[e.field].name, e.term, it); err != nil {
			return err
		}
	}
	return nil
}

// ForEachTermPrefix calls fn for every term in field sharing prefix, in
// term order, until fn returns false. An empty prefix visits every
// term in the field.
func (r *Reader) ForEachTermPrefix(field, prefix string, fn func(term string, docFreq uint64) bool) {
	ord, ok := r.fieldIndex[field]
	if !ok {
		return
	}
	start := sort.Search(len(r.dict), func(i int) bool {
		if r.dict[i].field != uint32(ord) {
			return r.dict[i].field > uint32(ord)
		}
		return r.dict[i].term >= prefix
	})
	for i := start; i < len(r.dict); i++ {
		e := r.dict[i]
		if e.field != uint32(ord) || !strings.HasPrefix(e.term, prefix) {
			return
		}
		if !fn(e.term, e.docFreq) {
			return
		}
	}
}

// DocLength returns the token count of field in document id, or 0 if
// the document or field is unknown.
func (r *Reader) DocLength(id model.DocID, field string) uint32 {
	ord, ok := r.fieldIndex[field]
	if !ok {
		return 0
	}
	lengths, ok := r.docLengths[id]
	if !ok {
		return 0
	}
	return lengths[ord]
}

// FieldLengths returns the per-field token counts of document id in
// schema order, for carrying statistics over during compaction.
func (r *Reader) FieldLengths(id model.DocID) (map[string]uint32, bool) {
	lengths, ok := r.docLengths[id]
	if !ok {
		return nil, false
	}
	out := make(map[string]uint32, len(r.fields))
	for i, f := range r.fields {
		if lengths[i] > 0 {
			out[f.name] = lengths[i]
		}
	}
	return out, true
}

// FieldStats returns the number of documents with at least one token in
// field and the total token count across them.
func (r *Reader) FieldStats(field string) (docCount, totalTokens uint64) {
	ord, ok := r.fieldIndex[field]
	if !ok {
		return 0, 0
	}
	return r.fields[ord].docCount, r.fields[ord].totalTokens
}

// Document fetches the stored fields of document id. The second return
// is false when the segment does not contain the document.
func (r *Reader) Document(id model.DocID) (model.StoredFields, bool, error) {
	loc, ok := r.docIndex[id]
	if !ok {
		return nil, false, nil
	}

	raw := make([]byte, loc.length)
	if _, err := r.docsBlob.ReadAt(raw, headerSize+int64(loc.offset)); err != nil {
		return nil, false, err
	}
	record, err := decompressBlock(raw)
	if err != nil {
		return nil, false, &CorruptError{Blob: path.Join(r.dir, DocsBlob), Reason: err.Error()}
	}

	var fields model.StoredFields
	if err := json.Unmarshal(record, &fields); err != nil {
		return nil, false, &CorruptError{Blob: path.Join(r.dir, DocsBlob), Reason: fmt.Sprintf("decode doc %d: %v", id, err)}
	}
	return fields, true, nil
}
