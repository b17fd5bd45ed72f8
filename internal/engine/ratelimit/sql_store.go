package ratelimit

import (
	"context"
	"database/sql"
)

// SQLStore keeps window counters in the rate_windows table. Every branch
// below is one conditional statement, so the database serializes the
// check and the increment together and concurrent claims cannot both
// take the last slot.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Claim(ctx context.Context, key string, windowSecs int64, limit int, now int64) (bool, int64, error) {
	// Two passes: a competing claim may reset or create the row between
	// our statements, in which case the second pass settles it.
	for attempt := 0; attempt < 2; attempt++ {
		// Live window with room: take a slot.
		res, err := s.db.ExecContext(ctx, `
			UPDATE rate_windows SET count = count + 1
			WHERE key = ? AND window_secs = ? AND window_start + window_secs > ? AND count < ?
		`, key, windowSecs, now, limit)
		if err != nil {
			return false, 0, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return true, 0, nil
		}

		// Stale window: reset it and take the first slot.
		res, err = s.db.ExecContext(ctx, `
			UPDATE rate_windows SET count = 1, window_start = ?
			WHERE key = ? AND window_secs = ? AND window_start + window_secs <= ?
		`, now, key, windowSecs, now)
		if err != nil {
			return false, 0, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return true, now, nil
		}

		// No row yet for this key/window.
		res, err = s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO rate_windows (key, window_secs, window_start, count)
			VALUES (?, ?, ?, 1)
		`, key, windowSecs, now)
		if err != nil {
			return false, 0, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return true, now, nil
		}
	}

	// Window exists, is live, and is full.
	var start int64
	err := s.db.QueryRowContext(ctx, `
		SELECT window_start FROM rate_windows WHERE key = ? AND window_secs = ?
	`, key, windowSecs).Scan(&start)
	if err != nil {
		return false, 0, err
	}
	return false, start, nil
}
