package ingest

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// limits bounds the memory and IO consumed by an ingest run: a
// weighted semaphore caps the file bytes held in flight, a rate
// limiter throttles disk reads.
type limits struct {
	memSem    *semaphore.Weighted // nil if unbounded
	memLimit  int64
	ioLimiter *rate.Limiter // nil if unlimited
}

func newLimits(memLimit, ioBytesPerSec int64) *limits {
	l := &limits{memLimit: memLimit}
	if memLimit > 0 {
		l.memSem = semaphore.NewWeighted(memLimit)
	}
	if ioBytesPerSec > 0 {
		l.ioLimiter = rate.NewLimiter(rate.Limit(ioBytesPerSec), int(ioBytesPerSec))
	}
	return l
}

// acquireMemory blocks until bytes of budget are available. Requests
// larger than the whole budget are clamped so they can still proceed.
func (l *limits) acquireMemory(ctx context.Context, bytes int64) (int64, error) {
	if l.memSem == nil || bytes <= 0 {
		return 0, nil
	}
	if bytes > l.memLimit {
		bytes = l.memLimit
	}
	if err := l.memSem.Acquire(ctx, bytes); err != nil {
		return 0, err
	}
	return bytes, nil
}

func (l *limits) releaseMemory(bytes int64) {
	if l.memSem != nil && bytes > 0 {
		l.memSem.Release(bytes)
	}
}

// throttleIO waits until the rate limiter admits reading n bytes.
func (l *limits) throttleIO(ctx context.Context, n int64) error {
	if l.ioLimiter == nil || n <= 0 {
		return nil
	}
	// WaitN rejects requests beyond the burst; split large files.
	burst := int64(l.ioLimiter.Burst())
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := l.ioLimiter.WaitN(ctx, int(chunk)); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
