// Package storage keeps the snapshots of the current run in an in-process
// SQLite database so the final summary and the status endpoint can query them.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id    TEXT     NOT NULL,
    taken_at  DATETIME NOT NULL,
    venue     TEXT     NOT NULL,
    p_up      REAL     NOT NULL,
    degraded  INTEGER  NOT NULL DEFAULT 0,
    payload   TEXT     NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_run ON snapshots(run_id);
`

// SQLiteJournal implements ports.SnapshotJournal using SQLite (pure Go, no CGo).
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens the database at path and applies the schema.
// ":memory:" keeps the journal in process for the lifetime of the run.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteJournal: open %q: %w", path, err)
	}
	// a second connection to :memory: would be a different, empty database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteJournal: apply schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// Append stores one snapshot.
func (j *SQLiteJournal) Append(ctx context.Context, s domain.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("storage.Append: encode: %w", err)
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO snapshots (run_id, taken_at, venue, p_up, degraded, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		s.RunID, s.Time.UTC(), s.Venue, s.PUp, boolToInt(s.Degraded), string(payload),
	)
	if err != nil {
		return fmt.Errorf("storage.Append: %w", err)
	}
	return nil
}

// Recent returns up to limit snapshots, oldest first. limit <= 0 returns all.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]domain.Snapshot, error) {
	if limit <= 0 {
		limit = -1 // no limit in SQLite
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT payload FROM (
			SELECT id, payload FROM snapshots ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.Recent: %w", err)
	}
	defer rows.Close()

	var out []domain.Snapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("storage.Recent: scan: %w", err)
		}
		var s domain.Snapshot
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			return nil, fmt.Errorf("storage.Recent: decode: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Summary aggregates every stored snapshot.
func (j *SQLiteJournal) Summary(ctx context.Context) (ports.JournalSummary, error) {
	var s ports.JournalSummary
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(degraded), 0), COALESCE(AVG(p_up), 0) FROM snapshots`,
	).Scan(&s.Count, &s.Degraded, &s.MeanPUp)
	if err != nil {
		return ports.JournalSummary{}, fmt.Errorf("storage.Summary: %w", err)
	}
	return s, nil
}

// Close releases the database. An in-memory journal is discarded.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
