package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/glabrego/newsdesk-cli/internal/feed"
)

// Snapshot is the last list the client showed, kept so the next start has
// something on screen before the first page load returns.
type Snapshot struct {
	Items   []feed.Item
	Totals  *feed.Totals
	SavedAt time.Time
}

// ErrStaleSnapshot is returned when the stored snapshot is newer than the one
// being saved.
var ErrStaleSnapshot = errors.New("stored snapshot is newer")

type Repository struct {
	db *sql.DB
}

func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A transaction holds the only connection, so concurrent saves run one
	// after another and the saved_at check in SaveSnapshot sees the last commit.
	db.SetMaxOpenConns(1)
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) Init(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS snapshot_items (
  position INTEGER PRIMARY KEY,
  id TEXT NOT NULL UNIQUE,
  published_at TEXT NOT NULL,
  card TEXT NOT NULL,
  modal TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshot_meta (
  singleton INTEGER PRIMARY KEY CHECK (singleton = 1),
  total_items INTEGER,
  total_pages INTEGER,
  saved_at TEXT NOT NULL
);
`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the stored snapshot unless the stored one carries a
// later SavedAt, in which case it returns ErrStaleSnapshot and writes nothing.
// A zero SavedAt is stamped with the current time.
func (r *Repository) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var storedAt string
	err = tx.QueryRowContext(ctx, `SELECT saved_at FROM snapshot_meta WHERE singleton = 1`).Scan(&storedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("query stored saved_at: %w", err)
	default:
		stored, err := time.Parse(time.RFC3339Nano, storedAt)
		if err != nil {
			return fmt.Errorf("parse stored saved_at %q: %w", storedAt, err)
		}
		if stored.After(savedAt) {
			return ErrStaleSnapshot
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_items`); err != nil {
		return fmt.Errorf("clear snapshot items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO snapshot_items (position, id, published_at, card, modal)
VALUES (?, ?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare save statement: %w", err)
	}
	defer stmt.Close()

	for i, item := range snap.Items {
		_, err := stmt.ExecContext(
			ctx,
			i,
			string(item.ID),
			item.PublishedAt.UTC().Format(time.RFC3339Nano),
			item.Payload.Card,
			item.Payload.Modal,
		)
		if err != nil {
			return fmt.Errorf("save item %s: %w", item.ID, err)
		}
	}

	var totalItems, totalPages sql.NullInt64
	if snap.Totals != nil {
		totalItems = sql.NullInt64{Int64: int64(snap.Totals.Items), Valid: true}
		totalPages = sql.NullInt64{Int64: int64(snap.Totals.Pages), Valid: snap.Totals.HasPages}
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO snapshot_meta (singleton, total_items, total_pages, saved_at)
VALUES (1, ?, ?, ?)
ON CONFLICT(singleton) DO UPDATE SET
  total_items=excluded.total_items,
  total_pages=excluded.total_pages,
  saved_at=excluded.saved_at
`, totalItems, totalPages, savedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save snapshot meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot. ok is false when nothing was
// ever saved.
func (r *Repository) LoadSnapshot(ctx context.Context) (snap Snapshot, ok bool, err error) {
	var totalItems, totalPages sql.NullInt64
	var savedAt string
	err = r.db.QueryRowContext(ctx, `
SELECT total_items, total_pages, saved_at FROM snapshot_meta WHERE singleton = 1
`).Scan(&totalItems, &totalPages, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("query snapshot meta: %w", err)
	}
	snap.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("parse saved_at %q: %w", savedAt, err)
	}
	if totalItems.Valid {
		snap.Totals = &feed.Totals{
			Items:    int(totalItems.Int64),
			Pages:    int(totalPages.Int64),
			HasPages: totalPages.Valid,
		}
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, published_at, card, modal
FROM snapshot_items
ORDER BY position ASC
`)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("query snapshot items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item feed.Item
		var id, publishedAt string
		if err := rows.Scan(&id, &publishedAt, &item.Payload.Card, &item.Payload.Modal); err != nil {
			return Snapshot{}, false, fmt.Errorf("scan item: %w", err)
		}
		item.ID = feed.ID(id)
		item.PublishedAt, err = time.Parse(time.RFC3339Nano, publishedAt)
		if err != nil {
			return Snapshot{}, false, fmt.Errorf("parse item published_at %q: %w", publishedAt, err)
		}
		snap.Items = append(snap.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, false, fmt.Errorf("rows iteration: %w", err)
	}
	return snap, true, nil
}
