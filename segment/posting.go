package segment

import (
	"github.com/hupe1980/lexgo/model"
)

// Posting records the occurrences of one term in one document.
type Posting struct {
	DocID model.DocID
	Freq  uint32
	// Positions are the ordinal token positions of each occurrence,
	// ascending. len(Positions) == Freq.
	Positions []uint32
}

// encodePostings serializes a docID-sorted posting list with delta
// compression: doc ids and positions are stored as gaps.
func encodePostings(ps []Posting) []byte {
	w := &bufWriter{b: make([]byte, 0, len(ps)*4)}
	w.uvarint(uint64(len(ps)))

	var prevDoc uint64
	for _, p := range ps {
		w.uvarint(uint64(p.DocID) - prevDoc)
		prevDoc = uint64(p.DocID)
		w.uvarint(uint64(p.Freq))

		var prevPos uint64
		for _, pos := range p.Positions {
			w.uvarint(uint64(pos) - prevPos)
			prevPos = uint64(pos)
		}
	}
	return w.b
}

// PostingsIterator streams one term's posting list in docID order.
// The zero value is exhausted; obtain iterators from Reader.Postings.
type PostingsIterator struct {
	r         bufReader
	remaining uint64
	prevDoc   uint64

	doc       model.DocID
	freq      uint32
	positions []uint32
}

func newPostingsIterator(block []byte) (*PostingsIterator, error) {
	it := &PostingsIterator{r: bufReader{b: block}}
	it.remaining = it.r.uvarint()
	if it.r.err != nil {
		return nil, it.r.err
	}
	return it, nil
}

// Next advances to the next posting. It returns false when the list is
// exhausted or the underlying data is malformed.
func (it *PostingsIterator) Next() bool {
	if it.remaining == 0 || it.r.err != nil {
		return false
	}
	it.remaining--

	it.prevDoc += it.r.uvarint()
	it.doc = model.DocID(it.prevDoc)
	it.freq = uint32(it.r.uvarint())

	it.positions = it.positions[:0]
	var prevPos uint64
	for i := uint32(0); i < it.freq; i++ {
		prevPos += it.r.uvarint()
		it.positions = append(it.positions, uint32(prevPos))
	}
	return it.r.err == nil
}

// Doc returns the current document id.
func (it *PostingsIterator) Doc() model.DocID { return it.doc }

// Freq returns the current in-document term frequency.
func (it *PostingsIterator) Freq() uint32 { return it.freq }

// Positions returns the current occurrence positions. The slice is
// reused across Next calls; copy it to retain.
func (it *PostingsIterator) Positions() []uint32 { return it.positions }

// Err reports a decoding error encountered during iteration.
func (it *PostingsIterator) Err() error { return it.r.err }
