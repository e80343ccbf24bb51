// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface using Go's standard database/sql package.
//
// WHY SQLite?
// ───────────
// Redis is the production backend. SQLite keeps everything in a single
// file, so it is handy for local development without a Redis server.
// It follows the same contract as the Redis store:
//
//   - one row per record; the score column is the ranking
//   - Save/Update are a single upsert inside a transaction
//   - pages are ordered score DESC, id DESC (the tie order Redis
//     ZREVRANGE produces); the total only counts scores in
//     [MinScore, MaxScore]
//
// The blank import below registers the sqlite3 driver with database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/aanand-mishra/records-api/internal/config"
	"github.com/aanand-mishra/records-api/internal/storage"
	"github.com/aanand-mishra/records-api/internal/types"

	// Blank import: side-effect only (registers the "sqlite3" driver).
	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the concrete implementation of storage.Storage.
// It holds a *sql.DB which is a connection pool managed by database/sql.
// A single *sql.DB is safe for concurrent use by multiple goroutines.
type SQLite struct {
	Db *sql.DB
}

// New opens the SQLite database at cfg.Storage.SQLitePath, creates the
// records table if it does not already exist, and returns a ready store.
func New(cfg *config.Config) (*SQLite, error) {
	return Open(cfg.Storage.SQLitePath)
}

// Open is New for an explicit path (tests use a temp dir).
func Open(path string) (*SQLite, error) {
	// sql.Open does NOT open a real connection yet — it just validates
	// the driver name and data source name (DSN).
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	// CREATE TABLE IF NOT EXISTS is idempotent — safe to run on every
	// startup. If the table already exists nothing happens.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id          TEXT    PRIMARY KEY,
			name        TEXT    NOT NULL DEFAULT '',
			birthday    TEXT    NOT NULL DEFAULT '',
			description TEXT    NOT NULL DEFAULT '',
			score       INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: create table: %w", err)
	}

	return &SQLite{Db: db}, nil
}

func transportError(op string, err error) error {
	slog.Warn("sqlite operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()))
	return fmt.Errorf("sqlite.%s: %w: %w", op, storage.ErrTransport, err)
}

// Exists reports whether a row is stored for id.
func (s *SQLite) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.Db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM records WHERE id = ?", id,
	).Scan(&n)
	if err != nil {
		return false, transportError("Exists", err)
	}
	return n > 0, nil
}

// Save upserts the whole record.
func (s *SQLite) Save(ctx context.Context, st types.Student) error {
	return s.inTx(ctx, "Save", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO records (id, name, birthday, description, score)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name        = excluded.name,
				birthday    = excluded.birthday,
				description = excluded.description,
				score       = excluded.score`,
			st.ID, st.Name, st.Birthday, st.Description, st.Score)
		return err
	})
}

// Update is identical to Save.
func (s *SQLite) Update(ctx context.Context, st types.Student) error {
	return s.Save(ctx, st)
}

// Remove deletes the row for id. A missing id is not an error.
func (s *SQLite) Remove(ctx context.Context, id string) error {
	return s.inTx(ctx, "Remove", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id)
		return err
	})
}

// inTx runs fn in a transaction. Rollback is deferred so every early
// return releases the connection; after a successful Commit it is a no-op.
func (s *SQLite) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, nil)
	if err != nil {
		return transportError(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return transportError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return transportError(op, err)
	}
	return nil
}

// ListPage returns one page ordered by score DESC, id DESC.
func (s *SQLite) ListPage(ctx context.Context, pageNum, pageSize int) (types.PageInfo[types.Student], error) {
	var total int64
	err := s.Db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM records WHERE score BETWEEN ? AND ?",
		types.MinScore, types.MaxScore,
	).Scan(&total)
	if err != nil {
		return types.PageInfo[types.Student]{}, transportError("ListPage", err)
	}

	page := types.NewPageInfo[types.Student](pageNum, pageSize, total)

	rows, err := s.Db.QueryContext(ctx, `
		SELECT id, name, birthday, description, score
		FROM records
		ORDER BY score DESC, id DESC
		LIMIT ? OFFSET ?`,
		page.PageSize, page.StartIndex)
	if err != nil {
		return types.PageInfo[types.Student]{}, transportError("ListPage", err)
	}
	defer rows.Close() // must close rows to free the DB connection

	for rows.Next() {
		var st types.Student
		if err := rows.Scan(&st.ID, &st.Name, &st.Birthday, &st.Description, &st.Score); err != nil {
			return types.PageInfo[types.Student]{}, transportError("ListPage", err)
		}
		page.Records = append(page.Records, st)
	}

	if err := rows.Err(); err != nil {
		return types.PageInfo[types.Student]{}, transportError("ListPage", err)
	}

	return page, nil
}

// Ping checks the database file is usable.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.Db.PingContext(ctx); err != nil {
		return transportError("Ping", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *SQLite) Close() error {
	return s.Db.Close()
}

var _ storage.Storage = (*SQLite)(nil)
