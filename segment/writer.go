package segment

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path"
	"sort"

	"github.com/hupe1980/lexgo/analysis"
	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/model"
)

// Meta summarizes a flushed segment for the manifest.
type Meta struct {
	DocCount uint32
	MinDocID model.DocID
	MaxDocID model.DocID
}

type fieldTerm struct {
	field string
	term  string
}

type docEntry struct {
	id      model.DocID
	stored  model.StoredFields
	lengths map[string]uint32
}

// Builder accumulates documents in memory and flushes them as one
// immutable segment. It is not safe for concurrent use; the index
// writer owns it exclusively.
type Builder struct {
	schema      model.Schema
	compression Compression
	postings    map[fieldTerm][]Posting
	docs        []docEntry
}

// NewBuilder creates an empty segment builder for the given schema.
func NewBuilder(schema model.Schema, compression Compression) *Builder {
	return &Builder{
		schema:      schema,
		compression: compression,
		postings:    make(map[fieldTerm][]Posting),
	}
}

// DocCount returns the number of buffered documents.
func (b *Builder) DocCount() int { return len(b.docs) }

// Empty reports whether nothing has been added yet.
func (b *Builder) Empty() bool { return len(b.docs) == 0 }

// Add buffers one document: its stored fields plus the tokens of each
// indexable field. Identifier fields are passed as a single exact token.
func (b *Builder) Add(id model.DocID, stored model.StoredFields, tokens map[string][]analysis.Token) {
	lengths := make(map[string]uint32, len(tokens))
	for field, toks := range tokens {
		lengths[field] = uint32(len(toks))

		// Group occurrences per term so each term contributes one posting.
		byTerm := make(map[string][]uint32)
		for _, t := range toks {
			byTerm[t.Term] = append(byTerm[t.Term], t.Position)
		}
		for term, positions := range byTerm {
			b.AddPosting(field, term, Posting{
				DocID:     id,
				Freq:      uint32(len(positions)),
				Positions: positions,
			})
		}
	}
	b.AddStoredDoc(id, stored, lengths)
}

// AddPosting appends one posting to a term's list. Postings must arrive
// in ascending docID order per term; the compactor and Add both honor
// this.
func (b *Builder) AddPosting(field, term string, p Posting) {
	key := fieldTerm{field: field, term: term}
	b.postings[key] = append(b.postings[key], p)
}

// AddStoredDoc records a document's stored fields and per-field token
// counts without touching the posting lists. Used by the compactor when
// carrying documents over from source segments.
func (b *Builder) AddStoredDoc(id model.DocID, stored model.StoredFields, lengths map[string]uint32) {
	b.docs = append(b.docs, docEntry{id: id, stored: stored.Clone(), lengths: lengths})
}

// Flush writes the buffered documents as segment blobs under dir and
// returns the segment metadata. The builder must not be reused after a
// successful flush.
func (b *Builder) Flush(ctx context.Context, store blobstore.BlobStore, dir string) (Meta, error) {
	if b.Empty() {
		return Meta{}, fmt.Errorf("flush of empty segment")
	}

	sort.Slice(b.docs, func(i, j int) bool { return b.docs[i].id < b.docs[j].id })
	meta := Meta{
		DocCount: uint32(len(b.docs)),
		MinDocID: b.docs[0].id,
		MaxDocID: b.docs[len(b.docs)-1].id,
	}

	postingsPayload, dict, err := b.buildPostings()
	if err != nil {
		return Meta{}, err
	}
	termsPayload := b.buildTerms(meta, dict)
	docsPayload, err := b.buildDocs()
	if err != nil {
		return Meta{}, err
	}

	blobs := []struct {
		name    string
		magic   [4]byte
		payload []byte
	}{
		{TermsBlob, termsMagic, termsPayload},
		{PostingsBlob, postingsMagic, postingsPayload},
		{DocsBlob, docsMagic, docsPayload},
	}
	for _, blob := range blobs {
		name := path.Join(dir, blob.name)
		if err := store.Put(ctx, name, frameBlob(blob.magic, blob.payload)); err != nil {
			return Meta{}, fmt.Errorf("write segment blob %s: %w", name, err)
		}
	}
	return meta, nil
}

type dictEntry struct {
	field   uint32 // schema ordinal
	term    string
	docFreq uint64
	offset  uint64
	length  uint64
}

func (b *Builder) fieldOrdinal(name string) (uint32, bool) {
	for i, f := range b.schema {
		if f.Name == name {
			return uint32(i), true
		}
	}
	return 0, false
}

// buildPostings encodes every term's posting list as one compressed
// block and returns the concatenated payload plus the dictionary.
func (b *Builder) buildPostings() ([]byte, []dictEntry, error) {
	dict := make([]dictEntry, 0, len(b.postings))
	for key, ps := range b.postings {
		ord, ok := b.fieldOrdinal(key.field)
		if !ok {
			return nil, nil, fmt.Errorf("posting for undeclared field %q", key.field)
		}
		sort.Slice(ps, func(i, j int) bool { return ps[i].DocID < ps[j].DocID })
		dict = append(dict, dictEntry{field: ord, term: key.term, docFreq: uint64(len(ps))})
	}
	sort.Slice(dict, func(i, j int) bool {
		if dict[i].field != dict[j].field {
			return dict[i].field < dict[j].field
		}
		return dict[i].term < dict[j].term
	})

	var payload []byte
	for i := range dict {
		key := fieldTerm{field: b.schema[dict[i].field].Name, term: dict[i].term}
		block, err := compressBlock(encodePostings(b.postings[key]), b.compression)
		if err != nil {
			return nil, nil, err
		}
		dict[i].offset = uint64(len(payload))
		dict[i].length = uint64(len(block))
		payload = append(payload, block...)
	}
	return payload, dict, nil
}

// buildTerms encodes the field table, per-document field lengths, and
// the sorted term dictionary.
func (b *Builder) buildTerms(meta Meta, dict []dictEntry) []byte {
	w := &bufWriter{}
	w.uvarint(uint64(meta.DocCount))
	w.uvarint(uint64(meta.MinDocID))
	w.uvarint(uint64(meta.MaxDocID))

	// Field table with aggregate stats for scoring.
	w.uvarint(uint64(len(b.schema)))
	for _, f := range b.schema {
		var fieldDocs, totalTokens uint64
		for _, d := range b.docs {
			if n := d.lengths[f.Name]; n > 0 {
				fieldDocs++
				totalTokens += uint64(n)
			}
		}
		w.str(f.Name)
		w.uvarint(uint64(f.Kind))
		w.uvarint(fieldDocs)
		w.uvarint(totalTokens)
	}

	// Per-document field lengths, docs in ascending id order.
	w.uvarint(uint64(len(b.docs)))
	var prevDoc uint64
	for _, d := range b.docs {
		w.uvarint(uint64(d.id) - prevDoc)
		prevDoc = uint64(d.id)
		for _, f := range b.schema {
			w.uvarint(uint64(d.lengths[f.Name]))
		}
	}

	// Term dictionary, sorted by (field ordinal, term).
	w.uvarint(uint64(len(dict)))
	for _, e := range dict {
		w.uvarint(uint64(e.field))
		w.str(e.term)
		w.uvarint(e.docFreq)
		w.uvarint(e.offset)
		w.uvarint(e.length)
	}
	return w.b
}

// buildDocs encodes one compressed record per document followed by a
// fixed-width offset index and a trailer locating it, so single
// documents can be fetched with two ReadAt calls.
func (b *Builder) buildDocs() ([]byte, error) {
	type indexEntry struct {
		id     model.DocID
		offset uint64
		length uint64
	}

	var payload []byte
	index := make([]indexEntry, 0, len(b.docs))
	for _, d := range b.docs {
		record, err := json.Marshal(d.stored)
		if err != nil {
			return nil, fmt.Errorf("encode stored fields for doc %d: %w", d.id, err)
		}
		block, err := compressBlock(record, b.compression)
		if err != nil {
			return nil, err
		}
		index = append(index, indexEntry{
			id:     d.id,
			offset: uint64(len(payload)),
			length: uint64(len(block)),
		})
		payload = append(payload, block...)
	}

	indexOffset := uint64(len(payload))
	buf := make([]byte, docIndexEntrySize)
	for _, e := range index {
		binary.LittleEndian.PutUint64(buf[0:8], uint64(e.id))
		binary.LittleEndian.PutUint64(buf[8:16], e.offset)
		binary.LittleEndian.PutUint64(buf[16:24], e.length)
		payload = append(payload, buf...)
	}

	trailer := make([]byte, docTrailerSize)
	binary.LittleEndian.PutUint64(trailer[0:8], indexOffset)
	binary.LittleEndian.PutUint32(trailer[8:12], uint32(len(index)))
	return append(payload, trailer...), nil
}

const (
	docIndexEntrySize = 24
	docTrailerSize    = 12
)
