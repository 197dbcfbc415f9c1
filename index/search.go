package index

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/hupe1980/lexgo/analysis"
	"github.com/hupe1980/lexgo/model"
)

// Okapi BM25 parameters, conventional defaults.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Search runs a ranked OR query over all text fields and returns the
// requested result page. Pages are 1-based; perPage defaults to 10
// when non-positive. TotalMatches counts every live matching document
// regardless of pagination.
func (idx *Index) Search(ctx context.Context, query string, page, perPage int) (model.SearchPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 10
	}

	snap, err := idx.Acquire()
	if err != nil {
		return model.SearchPage{}, err
	}
	defer snap.Close()

	terms := dedupe(analysis.Terms(query))
	if len(terms) == 0 {
		return model.SearchPage{}, nil
	}

	scores := make(map[model.DocID]float64)
	for _, field := range snap.manifest.Schema {
		if field.Kind != model.FieldText {
			continue
		}
		if err := ctx.Err(); err != nil {
			return model.SearchPage{}, err
		}
		if err := snap.scoreField(field.Name, terms, scores); err != nil {
			return model.SearchPage{}, err
		}
	}
	if len(scores) == 0 {
		return model.SearchPage{}, nil
	}

	ranked := make([]model.SearchResult, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, model.SearchResult{DocID: id, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].DocID < ranked[j].DocID
	})

	pageResults, err := snap.materialize(paginate(ranked, page, perPage))
	if err != nil {
		return model.SearchPage{}, err
	}
	return model.SearchPage{Results: pageResults, TotalMatches: len(ranked)}, nil
}

// scoreField adds each term's BM25 contribution in one field to the
// accumulated document scores. Statistics (document frequency, average
// field length) are aggregated across all segments so scores do not
// depend on how documents happen to be split into segments.
func (s *Snapshot) scoreField(field string, terms []string, scores map[model.DocID]float64) error {
	var n, fieldDocs, totalTokens uint64
	for _, h := range s.segments {
		n += uint64(h.r.DocCount())
		d, t := h.r.FieldStats(field)
		fieldDocs += d
		totalTokens += t
	}
	if fieldDocs == 0 {
		return nil
	}
	avgdl := float64(totalTokens) / float64(fieldDocs)

	for _, term := range terms {
		var df uint64
		for _, h := range s.segments {
			df += h.r.DocFreq(field, term)
		}
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))

		for _, h := range s.segments {
			it, found, err := h.r.Postings(field, term)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			for it.Next() {
				id := it.Doc()
				if s.deleted(id) {
					continue
				}
				tf := float64(it.Freq())
				dl := float64(h.r.DocLength(id, field))
				norm := bm25K1 * (1 - bm25B + bm25B*dl/avgdl)
				scores[id] += idf * tf * (bm25K1 + 1) / (tf + norm)
			}
			if err := it.Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

// paginate slices ranked into the 1-based page of size perPage.
func paginate(ranked []model.SearchResult, page, perPage int) []model.SearchResult {
	start := (page - 1) * perPage
	if start >= len(ranked) {
		return nil
	}
	end := start + perPage
	if end > len(ranked) {
		end = len(ranked)
	}
	return ranked[start:end]
}

// materialize attaches stored fields to each result.
func (s *Snapshot) materialize(results []model.SearchResult) ([]model.SearchResult, error) {
	out := make([]model.SearchResult, 0, len(results))
	for _, res := range results {
		fields, ok, err := s.document(res.DocID)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Ranked from postings, so the document must exist.
			return nil, fmt.Errorf("stored fields missing for doc %d", res.DocID)
		}
		res.Fields = fields
		out = append(out, res)
	}
	return out, nil
}

// SearchByField returns every live document whose identifier field
// exactly equals value, in docID order.
func (idx *Index) SearchByField(ctx context.Context, field, value string) ([]model.SearchResult, error) {
	snap, err := idx.Acquire()
	if err != nil {
		return nil, err
	}
	defer snap.Close()

	if err := snap.requireIdentifier(field); err != nil {
		return nil, err
	}

	var results []model.SearchResult
	for _, h := range snap.segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		it, found, err := h.r.Postings(field, value)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		for it.Next() {
			if snap.deleted(it.Doc()) {
				continue
			}
			results = append(results, model.SearchResult{DocID: it.Doc()})
		}
		if err := it.Err(); err != nil {
			return nil, err
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].DocID < results[j].DocID })
	return snap.materialize(results)
}

// SearchByPrefix returns live documents whose identifier field starts
// with prefix, in docID order. A non-positive limit returns all
// matches.
func (idx *Index) SearchByPrefix(ctx context.Context, field, prefix string, limit int) ([]model.SearchResult, error) {
	snap, err := idx.Acquire()
	if err != nil {
		return nil, err
	}
	defer snap.Close()

	if err := snap.requireIdentifier(field); err != nil {
		return nil, err
	}

	var results []model.SearchResult
	for _, h := range snap.segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var innerErr error
		h.r.ForEachTermPrefix(field, prefix, func(term string, docFreq uint64) bool {
			it, found, err := h.r.Postings(field, term)
			if err != nil {
				innerErr = err
				return false
			}
			if !found {
				return true
			}
			for it.Next() {
				if snap.deleted(it.Doc()) {
					continue
				}
				results = append(results, model.SearchResult{DocID: it.Doc()})
			}
			innerErr = it.Err()
			return innerErr == nil
		})
		if innerErr != nil {
			return nil, innerErr
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].DocID < results[j].DocID })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return snap.materialize(results)
}

// Document returns the stored fields of a live document.
func (idx *Index) Document(ctx context.Context, id model.DocID) (model.StoredFields, bool, error) {
	snap, err := idx.Acquire()
	if err != nil {
		return nil, false, err
	}
	defer snap.Close()
	return snap.document(id)
}

func (s *Snapshot) requireIdentifier(field string) error {
	cfg, ok := s.manifest.Schema.Field(field)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if cfg.Kind != model.FieldIdentifier {
		return fmt.Errorf("field %q is %s, lookup needs an identifier field", field, cfg.Kind)
	}
	return nil
}

func dedupe(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
