package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	keyHost        = "host"
	keyStatus      = "lastBlockingStatus"
	keyLastRefresh = "lastRefreshTime"
)

const schema = `CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// SQLiteBackend stores the state as key/value rows in a SQLite database.
// All three keys are written in one transaction.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite state: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteBackend{db: db, path: path}, nil
}

// Path returns the database location.
func (b *SQLiteBackend) Path() string {
	return b.path
}

// Load reads the state rows. An empty table means nothing was saved yet.
func (b *SQLiteBackend) Load(ctx context.Context) (State, bool, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT key, value FROM state`)
	if err != nil {
		return State{}, false, fmt.Errorf("failed to query state: %w", err)
	}
	defer rows.Close()

	var (
		state State
		found bool
	)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return State{}, false, fmt.Errorf("failed to scan state: %w", err)
		}
		found = true

		switch key {
		case keyHost:
			state.Host = value
		case keyStatus:
			if err := json.Unmarshal([]byte(value), &state.Status); err != nil {
				return State{}, false, fmt.Errorf("invalid %s: %w", keyStatus, err)
			}
		case keyLastRefresh:
			if value == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return State{}, false, fmt.Errorf("invalid %s: %w", keyLastRefresh, err)
			}
			state.LastRefresh = t
		}
	}
	if err := rows.Err(); err != nil {
		return State{}, false, fmt.Errorf("failed to read state: %w", err)
	}
	return state, found, nil
}

// Save upserts all keys in a single transaction.
func (b *SQLiteBackend) Save(ctx context.Context, state State) error {
	status, err := json.Marshal(state.Status)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`

	values := [][2]string{
		{keyHost, state.Host},
		{keyStatus, string(status)},
		{keyLastRefresh, formatTime(state.LastRefresh)},
	}
	for _, kv := range values {
		if _, err := tx.ExecContext(ctx, upsert, kv[0], kv[1]); err != nil {
			return fmt.Errorf("failed to write %s: %w", kv[0], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
