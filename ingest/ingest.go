// Package ingest bulk-indexes directory trees into a lexgo index.
//
// Files are read and analyzed concurrently, then staged through the
// single writer and committed as one transaction: either the whole run
// becomes visible or none of it does. Unreadable files are logged and
// skipped rather than failing the run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lexgo"
)

// ErrInvalidRoot is returned when the ingest root does not exist or
// cannot be read. Unlike per-file errors it fails the whole run.
var ErrInvalidRoot = errors.New("invalid ingest root")

// Stats summarizes an ingest run.
type Stats struct {
	// Indexed is the number of documents added.
	Indexed int
	// Replaced is the number of previously indexed versions deleted in
	// refresh mode.
	Replaced int
	// Skipped counts files excluded by filters or unreadable on disk.
	Skipped int
	// Bytes is the total content size indexed.
	Bytes int64
}

// Ingester walks directory trees and indexes their files.
type Ingester struct {
	db     *lexgo.Lexgo
	cfg    Config
	logger *lexgo.Logger
	limits *limits
}

// New creates an Ingester for db. A nil logger discards output.
func New(db *lexgo.Lexgo, cfg Config, logger *lexgo.Logger) (*Ingester, error) {
	if cfg.Workers == 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = lexgo.NoopLogger()
	}
	return &Ingester{
		db:     db,
		cfg:    cfg,
		logger: logger,
		limits: newLimits(cfg.MemoryLimit, cfg.IOLimitBytesPerSec),
	}, nil
}

type fileEntry struct {
	path string
	size int64
}

type prepared struct {
	path     string
	size     int64
	reserved int64
	doc      lexgo.Prepared
	err      error
}

// Run indexes every eligible file under root in a single transaction.
// It returns the stats of the committed run; on error nothing is
// committed.
func (ing *Ingester) Run(ctx context.Context, root string) (Stats, error) {
	var stats Stats

	files, skipped, err := ing.discover(root)
	if err != nil {
		return stats, err
	}
	stats.Skipped = skipped

	w, err := ing.db.Writer()
	if err != nil {
		return stats, err
	}

	results := make(chan prepared, ing.cfg.Workers)

	// Workers must always have a way out of their result send, even
	// when the consumer below bails out first.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(wctx)
	g.SetLimit(ing.cfg.Workers)
	go func() {
		for _, f := range files {
			f := f
			g.Go(func() error { return ing.prepareFile(gctx, f, results) })
		}
		_ = g.Wait()
		close(results)
	}()

	// Unblocks the remaining workers and returns their memory
	// reservations before an early exit.
	abort := func() {
		cancel()
		for res := range results {
			ing.limits.releaseMemory(res.reserved)
		}
	}

	// The writer is single-threaded; consume prepared documents here.
	for res := range results {
		ing.limits.releaseMemory(res.reserved)

		if res.err != nil {
			ing.logger.WithPath(res.path).Warn("skipping unreadable file", "error", res.err)
			stats.Skipped++
			continue
		}

		if ing.cfg.Refresh {
			n, err := w.DeleteByField("path", res.path)
			if err != nil {
				abort()
				_ = w.Rollback()
				return stats, fmt.Errorf("replace %s: %w", res.path, err)
			}
			stats.Replaced += n
		}

		if _, err := w.AddPrepared(res.doc); err != nil {
			abort()
			_ = w.Rollback()
			return stats, fmt.Errorf("index %s: %w", res.path, err)
		}
		stats.Indexed++
		stats.Bytes += res.size
	}

	if err := g.Wait(); err != nil {
		_ = w.Rollback()
		return stats, err
	}

	if err := w.Commit(ctx); err != nil {
		return stats, err
	}
	ing.logger.Info("ingest completed",
		"root", root,
		"indexed", stats.Indexed,
		"replaced", stats.Replaced,
		"skipped", stats.Skipped,
		"bytes", stats.Bytes,
	)
	return stats, nil
}

// prepareFile reads and analyzes one file, always delivering a result
// so the consumer can account for it.
func (ing *Ingester) prepareFile(ctx context.Context, f fileEntry, results chan<- prepared) error {
	res := prepared{path: f.path, size: f.size}

	res.reserved, res.err = ing.limits.acquireMemory(ctx, f.size)
	if res.err == nil {
		res.err = ing.limits.throttleIO(ctx, f.size)
	}

	var data []byte
	if res.err == nil {
		data, res.err = os.ReadFile(f.path)
	}
	if res.err == nil {
		res.doc, res.err = ing.db.Prepare(map[string]string{
			"filename": filepath.Base(f.path),
			"path":     f.path,
			"content":  string(data),
		})
	}

	select {
	case results <- res:
	case <-ctx.Done():
		ing.limits.releaseMemory(res.reserved)
		return ctx.Err()
	}

	// Schema errors are a caller bug, not a per-file condition.
	if res.err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// discover walks root and returns the eligible files, counting the
// ones filtered out.
func (ing *Ingester) discover(root string) ([]fileEntry, int, error) {
	var files []fileEntry
	skipped := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("%w: %s", ErrInvalidRoot, err)
			}
			if d != nil && d.IsDir() {
				ing.logger.WithPath(path).Warn("skipping unreadable directory", "error", err)
				skipped++
				return fs.SkipDir
			}
			ing.logger.WithPath(path).Warn("skipping unreadable entry", "error", err)
			skipped++
			return nil
		}

		name := d.Name()
		if !ing.cfg.IncludeHidden && strings.HasPrefix(name, ".") && path != root {
			if d.IsDir() {
				return fs.SkipDir
			}
			skipped++
			return nil
		}
		if d.IsDir() {
			if !ing.cfg.Recursive && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if ing.excluded(name) {
			skipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			ing.logger.WithPath(path).Warn("skipping unstatable file", "error", err)
			skipped++
			return nil
		}
		if !info.Mode().IsRegular() {
			skipped++
			return nil
		}
		if ing.cfg.MaxFileSize > 0 && info.Size() > ing.cfg.MaxFileSize {
			ing.logger.WithPath(path).Debug("skipping oversized file", "size", info.Size())
			skipped++
			return nil
		}

		files = append(files, fileEntry{path: path, size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, skipped, nil
}

func (ing *Ingester) excluded(name string) bool {
	for _, suffix := range ing.cfg.ExcludeSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
