package ratelimit

import (
	"context"

	"github.com/jonboulle/clockwork"
)

const (
	minuteWindow int64 = 60
	dayWindow    int64 = 86400
)

// Limits is the per-key quota for the two fixed windows.
type Limits struct {
	PerMinute int
	PerDay    int
}

// Decision is the admit/deny answer. RetryAfter is the seconds until the
// nearest denied window resets; zero when allowed.
type Decision struct {
	Allowed    bool
	RetryAfter int64
}

type Limiter struct {
	store Store
	clock clockwork.Clock
}

func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store, clock: clockwork.NewRealClock()}
}

// NewLimiterWithClock lets tests roll windows deterministically.
func NewLimiterWithClock(store Store, clock clockwork.Clock) *Limiter {
	return &Limiter{store: store, clock: clock}
}

// Admit claims a slot in both windows. A denial from either window
// denies the request; the minute window is claimed first, so a day-level
// denial costs one minute-level slot, never the reverse.
func (l *Limiter) Admit(ctx context.Context, keyID string, limits Limits) (*Decision, error) {
	now := l.clock.Now().Unix()

	windows := []struct {
		secs  int64
		limit int
	}{
		{minuteWindow, limits.PerMinute},
		{dayWindow, limits.PerDay},
	}

	for _, w := range windows {
		if w.limit <= 0 {
			continue
		}
		allowed, start, err := l.store.Claim(ctx, keyID, w.secs, w.limit, now)
		if err != nil {
			return nil, err
		}
		if !allowed {
			retry := start + w.secs - now
			if retry < 1 {
				retry = 1
			}
			return &Decision{Allowed: false, RetryAfter: retry}, nil
		}
	}

	return &Decision{Allowed: true}, nil
}
