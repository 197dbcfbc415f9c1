// Package blobstore provides the storage abstraction under the lexgo
// index: named, immutable blobs with atomic publish semantics.
//
// Two implementations ship with lexgo:
//
//   - LocalStore: files under a root directory, published with
//     write-to-temp, fsync, rename, and directory fsync
//   - MemoryStore: an in-memory store for tests
//
// The minio subpackage adds an object-storage backend for S3-compatible
// services, where Put is atomic by virtue of object-store semantics.
package blobstore
