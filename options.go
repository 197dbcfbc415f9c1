package lexgo

import (
	"github.com/hupe1980/lexgo/model"
	"github.com/hupe1980/lexgo/segment"
)

// Compression selects the algorithm used for segment blocks.
type Compression = segment.Compression

const (
	// CompressionNone stores segment blocks uncompressed.
	CompressionNone = segment.CompressionNone
	// CompressionLZ4 is the default: fast decode for hot posting blocks.
	CompressionLZ4 = segment.CompressionLZ4
	// CompressionZSTD trades decode speed for a better ratio.
	CompressionZSTD = segment.CompressionZSTD
)

// Options holds the configuration for opening an index.
type Options struct {
	// Schema declares the index fields when creating a new index. An
	// existing index keeps its committed schema.
	Schema model.Schema

	// CreateIfMissing creates an empty index when none exists at the
	// store location.
	CreateIfMissing bool

	// Rebuild discards any existing index data and starts fresh.
	Rebuild bool

	// Compression is applied to newly written segment blocks.
	Compression Compression

	// CacheSize bounds the decoded-block cache in bytes.
	CacheSize int64

	// Logger receives operational events.
	Logger *Logger

	// Metrics receives operation timings and counters.
	Metrics MetricsCollector
}

// DefaultOptions returns the default configuration: the file-indexing
// schema, LZ4 block compression, and a 32 MiB block cache.
func DefaultOptions() Options {
	return Options{
		Schema:      model.DefaultSchema(),
		Compression: CompressionLZ4,
		CacheSize:   32 << 20,
		Logger:      NoopLogger(),
		Metrics:     NoopMetricsCollector{},
	}
}

// Option customizes Options.
type Option func(*Options)

// WithSchema declares the field schema used when creating the index.
func WithSchema(schema model.Schema) Option {
	return func(o *Options) {
		o.Schema = schema
	}
}

// WithCreateIfMissing creates an empty index when none exists.
func WithCreateIfMissing(create bool) Option {
	return func(o *Options) {
		o.CreateIfMissing = create
	}
}

// WithRebuild discards existing index data and starts fresh.
func WithRebuild(rebuild bool) Option {
	return func(o *Options) {
		o.Rebuild = rebuild
	}
}

// WithCompression selects the segment block compression.
func WithCompression(c Compression) Option {
	return func(o *Options) {
		o.Compression = c
	}
}

// WithCacheSize bounds the decoded-block cache in bytes.
// A non-positive size disables the cache.
func WithCacheSize(size int64) Option {
	return func(o *Options) {
		o.CacheSize = size
	}
}

// WithLogger sets the structured logger for operation tracing.
func WithLogger(l *Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetricsCollector sets the metrics collector for monitoring.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *Options) {
		o.Metrics = mc
	}
}
