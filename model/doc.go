// Package model defines core types used throughout lexgo.
//
// # Identity Types
//
//   - DocID: Globally unique, auto-incrementing document identifier (uint64)
//   - SegmentID: Unique identifier for a segment (uint64)
//
// # Data Types
//
//   - Schema / FieldConfig: the enumerated field configuration declared
//     at index-creation time
//   - StoredFields: the retrievable field values of a document
//   - SearchResult / SearchPage: ranked query output
//
// The package is imported by nearly every other lexgo package and must
// not depend on any other lexgo package.
package model
