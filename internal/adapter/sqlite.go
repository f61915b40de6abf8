package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gitpub-go/internal/database"
	"gitpub-go/internal/database/migrations"
	"gitpub-go/internal/gitpub"
)

// SQLiteAdapter publishes documents into a SQLite database using the
// DocStore schema.
type SQLiteAdapter struct {
	db    *sql.DB
	ids   gitpub.IDGenerator
	clock gitpub.Clock
}

// NewSQLiteAdapter opens the document store at path and migrates it.
func NewSQLiteAdapter(path string, ids gitpub.IDGenerator, clock gitpub.Clock) (*SQLiteAdapter, error) {
	db, err := database.OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db, migrations.DocStore); err != nil {
		db.Close()
		return nil, err
	}
	if ids == nil {
		ids = gitpub.UUIDGenerator{}
	}
	if clock == nil {
		clock = gitpub.RealClock{}
	}
	return &SQLiteAdapter{db: db, ids: ids, clock: clock}, nil
}

func (a *SQLiteAdapter) NewDocument(ctx context.Context, doc *gitpub.Document, attrs map[string]string) (string, error) {
	id := a.ids.New()
	now := a.clock.Now().UTC()
	err := a.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (id, title, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			id, doc.Title, doc.Content, now, now); err != nil {
			return fmt.Errorf("inserting document: %w", err)
		}
		return insertAttrs(ctx, tx, id, withoutTitle(attrs))
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (a *SQLiteAdapter) SetDocument(ctx context.Context, remoteID string, doc *gitpub.Document, attrs map[string]string) error {
	return a.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE documents SET title = ?, content = ?, updated_at = ? WHERE id = ?`,
			doc.Title, doc.Content, a.clock.Now().UTC(), remoteID)
		if err != nil {
			return fmt.Errorf("updating document: %w", err)
		}
		if err := requireRow(res, remoteID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM document_attrs WHERE document_id = ?`, remoteID); err != nil {
			return fmt.Errorf("clearing attributes: %w", err)
		}
		return insertAttrs(ctx, tx, remoteID, withoutTitle(attrs))
	})
}

func (a *SQLiteAdapter) DeleteDocument(ctx context.Context, remoteID string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, remoteID)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return requireRow(res, remoteID)
}

func (a *SQLiteAdapter) ListDocuments(ctx context.Context) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)

	err := a.query(ctx, `SELECT id, title FROM documents`, nil, func(rows *sql.Rows) error {
		var id, title string
		if err := rows.Scan(&id, &title); err != nil {
			return err
		}
		attrs := map[string]string{}
		if title != "" {
			attrs[TitleAttr] = title
		}
		out[id] = attrs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	err = a.query(ctx, `SELECT document_id, key, value FROM document_attrs`, nil, func(rows *sql.Rows) error {
		var id, key, value string
		if err := rows.Scan(&id, &key, &value); err != nil {
			return err
		}
		if attrs, ok := out[id]; ok {
			attrs[key] = value
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing attributes: %w", err)
	}
	return out, nil
}

func (a *SQLiteAdapter) GetDocument(ctx context.Context, remoteID string) (string, map[string]string, error) {
	var title, content string
	err := a.db.QueryRowContext(ctx,
		`SELECT title, content FROM documents WHERE id = ?`, remoteID).Scan(&title, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("document %s: %w", remoteID, gitpub.ErrNotFound)
	}
	if err != nil {
		return "", nil, fmt.Errorf("getting document: %w", err)
	}

	attrs := map[string]string{}
	if title != "" {
		attrs[TitleAttr] = title
	}
	err = a.query(ctx, `SELECT key, value FROM document_attrs WHERE document_id = ?`, []any{remoteID},
		func(rows *sql.Rows) error {
			var key, value string
			if err := rows.Scan(&key, &value); err != nil {
				return err
			}
			attrs[key] = value
			return nil
		})
	if err != nil {
		return "", nil, fmt.Errorf("getting attributes: %w", err)
	}
	return content, attrs, nil
}

// Close closes the database connection.
func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}

// query runs q and calls fn for every row. The rows are closed before it returns.
func (a *SQLiteAdapter) query(ctx context.Context, q string, args []any, fn func(*sql.Rows) error) error {
	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (a *SQLiteAdapter) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertAttrs(ctx context.Context, tx *sql.Tx, id string, attrs map[string]string) error {
	for k, v := range attrs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_attrs (document_id, key, value) VALUES (?, ?, ?)`, id, k, v); err != nil {
			return fmt.Errorf("inserting attribute %s: %w", k, err)
		}
	}
	return nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, gitpub.ErrNotFound)
	}
	return nil
}

// Compile-time checks
var (
	_ gitpub.Adapter = (*SQLiteAdapter)(nil)
	_ gitpub.Fetcher = (*SQLiteAdapter)(nil)
)
