package database

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"compass/internal/platform/config"
)

// Open constructs the process-wide database handle. It is created once in
// main, passed down explicitly, and closed on shutdown.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
