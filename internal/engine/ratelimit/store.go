package ratelimit

import (
	"context"
	"fmt"
	"sync"
)

// Store claims one request slot in a fixed window. Implementations must
// make the stale-window reset and the increment a single atomic
// conditional operation: two concurrent claims racing for the last slot
// must never both succeed.
type Store interface {
	// Claim returns whether a slot was granted for the window keyed by
	// (key, windowSecs). On denial windowStart reports the start of the
	// currently full window so callers can compute a retry hint.
	Claim(ctx context.Context, key string, windowSecs int64, limit int, now int64) (allowed bool, windowStart int64, err error)
}

type window struct {
	start int64
	count int
}

// MemoryStore is the in-process counter store. The mutex makes each
// claim a single check-and-increment; used in tests and for single-node
// deployments.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window)}
}

func (s *MemoryStore) Claim(_ context.Context, key string, windowSecs int64, limit int, now int64) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := storeKey(key, windowSecs)
	w, ok := s.windows[id]
	if !ok || now-w.start >= windowSecs {
		s.windows[id] = &window{start: now, count: 1}
		return true, now, nil
	}

	if w.count < limit {
		w.count++
		return true, w.start, nil
	}

	return false, w.start, nil
}

func storeKey(key string, windowSecs int64) string {
	return fmt.Sprintf("%s:%d", key, windowSecs)
}
