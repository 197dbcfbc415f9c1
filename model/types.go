package model

import (
	"fmt"
)

// DocID is the stable, index-wide identifier of a document.
// IDs are assigned by the writer from a monotonic counter and are never
// reused; updates are expressed as delete-then-add with a fresh ID.
type DocID uint64

// SegmentID is the unique identifier for a segment within an index.
type SegmentID uint64

// FieldKind describes how a field participates in indexing.
type FieldKind uint8

const (
	// FieldText is tokenized and indexed for ranked full-text search.
	FieldText FieldKind = iota
	// FieldIdentifier is indexed as a single exact term (no tokenization),
	// enabling exact and prefix lookups.
	FieldIdentifier
	// FieldStoredOnly is retrievable but not searchable.
	FieldStoredOnly
)

// String returns a human-readable name for the field kind.
func (k FieldKind) String() string {
	switch k {
	case FieldText:
		return "text"
	case FieldIdentifier:
		return "identifier"
	case FieldStoredOnly:
		return "stored-only"
	default:
		return fmt.Sprintf("FieldKind(%d)", uint8(k))
	}
}

// FieldConfig declares a single field of the index schema.
type FieldConfig struct {
	Name   string    `json:"name"`
	Kind   FieldKind `json:"kind"`
	Stored bool      `json:"stored"`
}

// Schema is the enumerated field configuration of an index, declared at
// creation time and immutable afterwards.
type Schema []FieldConfig

// DefaultSchema returns the file-indexing schema: a stored, tokenized
// filename, a stored exact path, and tokenized (but not stored) content.
func DefaultSchema() Schema {
	return Schema{
		{Name: "filename", Kind: FieldText, Stored: true},
		{Name: "path", Kind: FieldIdentifier, Stored: true},
		{Name: "content", Kind: FieldText, Stored: false},
	}
}

// Field returns the configuration for the named field.
func (s Schema) Field(name string) (FieldConfig, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return FieldConfig{}, false
}

// Validate checks the schema for duplicate or empty field names.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("schema must declare at least one field")
	}
	seen := make(map[string]struct{}, len(s))
	for _, f := range s {
		if f.Name == "" {
			return fmt.Errorf("schema field with empty name")
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate schema field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// StoredFields holds the retrievable field values of a document.
type StoredFields map[string]string

// Clone returns a deep copy so callers cannot mutate committed state.
func (f StoredFields) Clone() StoredFields {
	if f == nil {
		return nil
	}
	out := make(StoredFields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// SearchResult is a single ranked match.
type SearchResult struct {
	DocID  DocID
	Fields StoredFields
	Score  float64
}

// SearchPage is one page of ranked results.
//
// TotalMatches counts every matching live document, not just the ones
// on this page.
type SearchPage struct {
	Results      []SearchResult
	TotalMatches int
}
