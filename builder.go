// Package lexgo fluent builder APIs for creating and configuring index
// instances. Builders are immutable - each method returns a new builder
// with the updated configuration.
package lexgo

import (
	"context"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/model"
)

// Local creates a builder for an index stored in a local directory.
//
// Example:
//
//	db, err := lexgo.Local("./index").
//	    CreateIfMissing().
//	    ZSTD().
//	    Build(ctx)
func Local(path string) Builder {
	return newBuilder(blobstore.NewLocalStore(path))
}

// InMemory creates a builder for a transient in-memory index, useful
// for tests and short-lived tooling.
func InMemory() Builder {
	return newBuilder(blobstore.NewMemoryStore()).CreateIfMissing()
}

// Store creates a builder on an arbitrary blob store, e.g. an
// S3-compatible object store (see the blobstore/minio package).
func Store(store blobstore.BlobStore) Builder {
	return newBuilder(store)
}

func newBuilder(store blobstore.BlobStore) Builder {
	defaults := DefaultOptions()
	return Builder{
		store:       store,
		schema:      defaults.Schema,
		compression: defaults.Compression,
		cacheSize:   defaults.CacheSize,
	}
}

// Builder is an immutable fluent builder for creating Lexgo instances.
// Each method returns a new builder with the updated configuration.
type Builder struct {
	store           blobstore.BlobStore
	schema          model.Schema
	createIfMissing bool
	rebuild         bool
	compression     Compression
	cacheSize       int64
	logger          *Logger
	metrics         MetricsCollector
}

// Schema declares the field schema used when creating the index.
// An existing index keeps its committed schema.
func (b Builder) Schema(schema model.Schema) Builder {
	b.schema = schema
	return b
}

// CreateIfMissing creates an empty index when none exists.
func (b Builder) CreateIfMissing() Builder {
	b.createIfMissing = true
	return b
}

// Rebuild discards any existing index data and starts fresh.
func (b Builder) Rebuild() Builder {
	b.rebuild = true
	return b
}

// LZ4 selects LZ4 block compression (fast decode). This is the default.
func (b Builder) LZ4() Builder {
	b.compression = CompressionLZ4
	return b
}

// ZSTD selects ZSTD block compression (better ratio).
func (b Builder) ZSTD() Builder {
	b.compression = CompressionZSTD
	return b
}

// NoCompression stores segment blocks uncompressed.
func (b Builder) NoCompression() Builder {
	b.compression = CompressionNone
	return b
}

// CacheSize bounds the decoded-block cache in bytes.
// Default: 32 MiB. A non-positive size disables the cache.
func (b Builder) CacheSize(size int64) Builder {
	b.cacheSize = size
	return b
}

// Logger sets the structured logger for operation tracing.
func (b Builder) Logger(l *Logger) Builder {
	b.logger = l
	return b
}

// Metrics sets the metrics collector for monitoring.
func (b Builder) Metrics(mc MetricsCollector) Builder {
	b.metrics = mc
	return b
}

// Build opens the index with the accumulated configuration.
func (b Builder) Build(ctx context.Context) (*Lexgo, error) {
	return Open(ctx, b.store, func(o *Options) {
		o.Schema = b.schema
		o.CreateIfMissing = b.createIfMissing
		o.Rebuild = b.rebuild
		o.Compression = b.compression
		o.CacheSize = b.cacheSize
		if b.logger != nil {
			o.Logger = b.logger
		}
		if b.metrics != nil {
			o.Metrics = b.metrics
		}
	})
}

// MustBuild opens the index, panicking on error.
func (b Builder) MustBuild(ctx context.Context) *Lexgo {
	db, err := b.Build(ctx)
	if err != nil {
		panic(err)
	}
	return db
}
