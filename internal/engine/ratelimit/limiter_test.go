package ratelimit

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
)

func setupCounterDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	db.SetMaxOpenConns(1)

	query := `
	CREATE TABLE rate_windows (
		key TEXT NOT NULL,
		window_secs INTEGER NOT NULL,
		window_start INTEGER NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (key, window_secs)
	);
	`
	if _, err := db.Exec(query); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLimiter_MinuteWindow(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1700000000, 0))
	limiter := NewLimiterWithClock(NewMemoryStore(), clock)

	limits := Limits{PerMinute: 3, PerDay: 100}

	for i := 0; i < 3; i++ {
		d, err := limiter.Admit(context.Background(), "key_1", limits)
		if err != nil {
			t.Fatalf("Admit failed: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}

	d, err := limiter.Admit(context.Background(), "key_1", limits)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if d.Allowed {
		t.Fatal("4th request in the window should be denied")
	}
	if d.RetryAfter != 60 {
		t.Errorf("Expected retry-after 60 at window start, got %d", d.RetryAfter)
	}

	clock.Advance(61 * time.Second)

	d, err = limiter.Admit(context.Background(), "key_1", limits)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if !d.Allowed {
		t.Error("Request after rollover should be allowed")
	}
}

func TestLimiter_DayWindow(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1700000000, 0))
	limiter := NewLimiterWithClock(NewMemoryStore(), clock)

	limits := Limits{PerMinute: 10, PerDay: 2}

	for i := 0; i < 2; i++ {
		d, err := limiter.Admit(context.Background(), "key_1", limits)
		if err != nil || !d.Allowed {
			t.Fatalf("Request %d should be allowed: %v", i+1, err)
		}
	}

	d, err := limiter.Admit(context.Background(), "key_1", limits)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if d.Allowed {
		t.Fatal("Daily quota exhausted, request should be denied")
	}
	if d.RetryAfter != 86400 {
		t.Errorf("Expected retry-after 86400, got %d", d.RetryAfter)
	}
}

func TestLimiter_KeysIndependent(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1700000000, 0))
	limiter := NewLimiterWithClock(NewMemoryStore(), clock)

	limits := Limits{PerMinute: 1, PerDay: 100}

	if d, _ := limiter.Admit(context.Background(), "key_a", limits); !d.Allowed {
		t.Fatal("key_a first request should pass")
	}
	if d, _ := limiter.Admit(context.Background(), "key_b", limits); !d.Allowed {
		t.Error("key_b must have its own budget")
	}
	if d, _ := limiter.Admit(context.Background(), "key_a", limits); d.Allowed {
		t.Error("key_a second request should be denied")
	}
}

// The admit decision and the increment must be one atomic operation:
// with one slot left, concurrent claims must admit exactly one caller.
func TestMemoryStore_NoBoundaryRace(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().Unix()

	const limit = 10
	const attempts = 50

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := store.Claim(context.Background(), "key_1", 60, limit, now)
			if err != nil {
				t.Errorf("Claim failed: %v", err)
				return
			}
			if ok {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	if admitted != limit {
		t.Errorf("Expected exactly %d admits, got %d", limit, admitted)
	}
}

func TestSQLStore_ClaimAndReset(t *testing.T) {
	db := setupCounterDB(t)
	store := NewSQLStore(db)

	now := int64(1700000000)

	for i := 0; i < 2; i++ {
		ok, _, err := store.Claim(context.Background(), "key_1", 60, 2, now)
		if err != nil {
			t.Fatalf("Claim failed: %v", err)
		}
		if !ok {
			t.Fatalf("Claim %d should succeed", i+1)
		}
	}

	ok, start, err := store.Claim(context.Background(), "key_1", 60, 2, now+5)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if ok {
		t.Fatal("Full window should deny")
	}
	if start != now {
		t.Errorf("Expected window start %d, got %d", now, start)
	}

	// Stale window resets and admits again.
	ok, _, err = store.Claim(context.Background(), "key_1", 60, 2, now+60)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if !ok {
		t.Error("Rolled-over window should admit")
	}

	var count int
	if err := db.QueryRow(`SELECT count FROM rate_windows WHERE key = 'key_1' AND window_secs = 60`).Scan(&count); err != nil {
		t.Fatalf("Failed to read counter: %v", err)
	}
	if count != 1 {
		t.Errorf("Reset window should hold count 1, got %d", count)
	}
}

func TestSQLStore_Concurrent(t *testing.T) {
	db := setupCounterDB(t)
	store := NewSQLStore(db)

	now := time.Now().Unix()
	const limit = 5
	const attempts = 20

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := store.Claim(context.Background(), "key_1", 60, limit, now)
			if err != nil {
				t.Errorf("Claim failed: %v", err)
				return
			}
			if ok {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	if admitted != limit {
		t.Errorf("Expected exactly %d admits, got %d", limit, admitted)
	}
}
