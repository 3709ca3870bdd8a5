package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Open opens (and creates if needed) the channel database at path and
// ensures required tables exist. The database is shared by every process
// attached to a channel, so WAL mode and a busy timeout are applied to keep
// concurrent senders and receivers from tripping over each other.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA synchronous = NORMAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set synchronous: %w", err)
	}
	if err := Bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Bootstrap creates channel tables/indexes if missing.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS channel_messages (
  seq         INTEGER PRIMARY KEY AUTOINCREMENT,
  channel     TEXT NOT NULL,
  frame       BLOB NOT NULL,
  enqueued_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS channel_meta (
  channel    TEXT PRIMARY KEY,
  closed     INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS channel_messages_channel_seq_idx ON channel_messages(channel, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
