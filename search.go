package lexgo

import (
	"context"
	"time"
)

// Search runs a ranked OR query over all text fields and returns the
// requested result page. Pages are 1-based; perPage defaults to 10
// when non-positive. TotalMatches counts every matching live document
// regardless of pagination.
func (db *Lexgo) Search(ctx context.Context, query string, page, perPage int) (SearchPage, error) {
	start := time.Now()
	result, err := db.idx.Search(ctx, query, page, perPage)
	err = translateError(err)

	db.metrics.RecordSearch(result.TotalMatches, time.Since(start), err)
	db.logger.LogSearch(ctx, query, result.TotalMatches, err)
	return result, err
}

// SearchByField returns every live document whose identifier field
// exactly equals value, in docID order. The field must be declared as
// an identifier field in the schema.
func (db *Lexgo) SearchByField(ctx context.Context, field, value string) ([]SearchResult, error) {
	results, err := db.idx.SearchByField(ctx, field, value)
	return results, translateError(err)
}

// SearchByPrefix returns live documents whose identifier field starts
// with prefix, in docID order. A non-positive limit returns all
// matches.
func (db *Lexgo) SearchByPrefix(ctx context.Context, field, prefix string, limit int) ([]SearchResult, error) {
	results, err := db.idx.SearchByPrefix(ctx, field, prefix, limit)
	return results, translateError(err)
}

// Document returns the stored fields of a live document by id.
func (db *Lexgo) Document(ctx context.Context, id DocID) (StoredFields, bool, error) {
	fields, ok, err := db.idx.Document(ctx, id)
	return fields, ok, translateError(err)
}
