// Package ledger provides SQLite-backed request accounting shared across
// worker processes.
//
// Fan-out workers share no in-process memory, so any counter that must be
// visible across them lives here instead: every worker appends to the same
// WAL-mode database file, and /api/stats reads the merged per-worker counts.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps the shared request-ledger database.
type DB struct {
	db *sql.DB
}

// Open creates or opens the ledger at dir/ledger.db. WAL mode plus a busy
// timeout keeps concurrent writers from separate processes safe.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	// modernc's driver takes pragmas as _pragma=name(value); the
	// mattn-style _journal_mode/_busy_timeout keys are silently ignored.
	dbPath := filepath.Join(dir, "ledger.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer per connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error { return d.db.Close() }

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS worker_requests (
			worker_id INTEGER NOT NULL,
			route     TEXT NOT NULL,
			count     INTEGER NOT NULL DEFAULT 0,
			last_seen INTEGER NOT NULL,
			PRIMARY KEY (worker_id, route)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_worker_requests_route ON worker_requests(route)`,
	}
	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// Record increments the request count for one worker/route pair.
func (d *DB) Record(workerID int, route string) error {
	_, err := d.db.Exec(`
		INSERT INTO worker_requests (worker_id, route, count, last_seen)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (worker_id, route)
		DO UPDATE SET count = count + 1, last_seen = excluded.last_seen`,
		workerID, route, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record request: %w", err)
	}
	return nil
}

// WorkerCount is one worker/route tally from the shared ledger.
type WorkerCount struct {
	WorkerID int       `json:"worker_id"`
	Route    string    `json:"route"`
	Count    int64     `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

// Counts returns all per-worker tallies, busiest first.
func (d *DB) Counts() ([]WorkerCount, error) {
	rows, err := d.db.Query(`
		SELECT worker_id, route, count, last_seen
		FROM worker_requests ORDER BY count DESC`)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	var out []WorkerCount
	for rows.Next() {
		var wc WorkerCount
		var ts int64
		if err := rows.Scan(&wc.WorkerID, &wc.Route, &wc.Count, &ts); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		wc.LastSeen = time.Unix(ts, 0)
		out = append(out, wc)
	}
	return out, rows.Err()
}

// DistinctWorkers returns how many distinct worker ids the ledger has seen.
func (d *DB) DistinctWorkers() (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(DISTINCT worker_id) FROM worker_requests`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count workers: %w", err)
	}
	return n, nil
}

// Reset clears all tallies. Used by tests and `weft bench --reset`.
func (d *DB) Reset() error {
	_, err := d.db.Exec(`DELETE FROM worker_requests`)
	return err
}
