package database

import (
	"context"
	"database/sql"
	"fmt"

	"gitpub-go/internal/database/migrations"
	"gitpub-go/internal/gitpub"
)

// SQLiteHistory implements gitpub.History using SQLite.
type SQLiteHistory struct {
	db    *sql.DB
	clock gitpub.Clock
	path  string
}

// NewSQLiteHistory opens the history database at path and migrates it.
// path can be a file path or ":memory:". A nil clock uses the real time.
func NewSQLiteHistory(path string, clock gitpub.Clock) (*SQLiteHistory, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db, migrations.History); err != nil {
		db.Close()
		return nil, err
	}
	h := NewSQLiteHistoryFromDB(db, clock)
	h.path = path
	return h, nil
}

// NewSQLiteHistoryFromDB wraps an existing, migrated database connection.
func NewSQLiteHistoryFromDB(db *sql.DB, clock gitpub.Clock) *SQLiteHistory {
	if clock == nil {
		clock = gitpub.RealClock{}
	}
	return &SQLiteHistory{db: db, clock: clock}
}

func (h *SQLiteHistory) StartRound(ctx context.Context, operation, remote string) (int64, error) {
	res, err := h.db.ExecContext(ctx,
		`INSERT INTO rounds (operation, remote, started_at, status) VALUES (?, ?, ?, ?)`,
		operation, remote, h.clock.Now().UTC(), gitpub.RoundRunning)
	if err != nil {
		return 0, fmt.Errorf("recording round start: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading round id: %w", err)
	}
	return id, nil
}

func (h *SQLiteHistory) FinishRound(ctx context.Context, id int64, status string, changed int, errMsg string) error {
	res, err := h.db.ExecContext(ctx,
		`UPDATE rounds SET finished_at = ?, status = ?, changed = ?, error = ? WHERE id = ?`,
		h.clock.Now().UTC(), status, changed, errMsg, id)
	if err != nil {
		return fmt.Errorf("recording round finish: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("recording round finish: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("round %d: %w", id, gitpub.ErrNotFound)
	}
	return nil
}

func (h *SQLiteHistory) ListRounds(ctx context.Context, limit int) ([]gitpub.RoundRecord, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, operation, remote, started_at, finished_at, status, changed, error
		 FROM rounds ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing rounds: %w", err)
	}
	defer rows.Close()

	var out []gitpub.RoundRecord
	for rows.Next() {
		var (
			r        gitpub.RoundRecord
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Operation, &r.Remote, &r.StartedAt, &finished, &r.Status, &r.Changed, &r.Error); err != nil {
			return nil, fmt.Errorf("scanning round: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing rounds: %w", err)
	}
	return out, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (h *SQLiteHistory) Path() string {
	return h.path
}

// CheckMigrations verifies the schema is up-to-date.
func (h *SQLiteHistory) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(h.db, migrations.History)
}

// Close closes the database connection.
func (h *SQLiteHistory) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteHistory implements gitpub.History
var _ gitpub.History = (*SQLiteHistory)(nil)
