package lexgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lexgo/index"
	"github.com/hupe1980/lexgo/segment"
)

var (
	// ErrNotFound is returned when an index or document is not found.
	ErrNotFound = errors.New("not found")

	// ErrLockBusy is returned when another writer holds the
	// single-writer lock.
	ErrLockBusy = errors.New("another writer holds the index lock")

	// ErrClosed is returned when the index has been closed.
	ErrClosed = errors.New("index is closed")

	// ErrUnknownField is returned when a document or query names a
	// field the schema does not declare.
	ErrUnknownField = errors.New("field not declared in schema")
)

// ErrCorruptSegment indicates that committed segment data failed its
// integrity checks. The index refuses to serve queries from corrupt
// data; rebuild the index to recover.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrCorruptSegment struct {
	Blob  string
	cause error
}

func (e *ErrCorruptSegment) Error() string {
	return fmt.Sprintf("corrupt segment data in %s", e.Blob)
}

func (e *ErrCorruptSegment) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, index.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	if errors.Is(err, index.ErrLockBusy) {
		return fmt.Errorf("%w: %w", ErrLockBusy, err)
	}
	if errors.Is(err, index.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if errors.Is(err, index.ErrUnknownField) {
		return fmt.Errorf("%w: %w", ErrUnknownField, err)
	}

	var ce *segment.CorruptError
	if errors.As(err, &ce) {
		return &ErrCorruptSegment{Blob: ce.Blob, cause: err}
	}

	return err
}
