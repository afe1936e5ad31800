package repository

import (
	"context"
	"sync"
	"time"
)

// memoryRateLimitRepository is the in-process fallback used when Redis is
// not configured. Counters reset when their window elapses; stale entries
// are swept lazily on access.
type memoryRateLimitRepository struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int64
	startAt time.Time
	length  time.Duration
}

func NewMemoryRateLimitRepository() RateLimitRepository {
	return &memoryRateLimitRepository{
		windows: make(map[string]*window),
	}
}

func (r *memoryRateLimitRepository) Increment(ctx context.Context, key string, windowLen time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	w, ok := r.windows[key]
	if !ok || now.Sub(w.startAt) >= w.length {
		r.windows[key] = &window{count: 1, startAt: now, length: windowLen}
		r.sweepLocked(now)
		return 1, nil
	}

	w.count++
	return w.count, nil
}

func (r *memoryRateLimitRepository) sweepLocked(now time.Time) {
	for key, w := range r.windows {
		if now.Sub(w.startAt) >= w.length {
			delete(r.windows, key)
		}
	}
}
