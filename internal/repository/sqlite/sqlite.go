// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary
// builds without a C toolchain and ":memory:" databases make tests fast and
// isolated.
//
// CONNECTION SETTINGS:
// database/sql keeps a pool of connections, and SQLite PRAGMAs apply per
// connection. Running "PRAGMA foreign_keys=ON" once would only configure
// whichever connection happened to run it. Instead the settings travel in
// the DSN as _pragma parameters, which the driver applies to every new
// connection:
//   - foreign_keys(1)   enforce REFERENCES / ON DELETE rules
//   - journal_mode(WAL) readers don't block the writer
//   - busy_timeout      wait for the write lock instead of failing at once
//
// TRANSACTIONS:
// Every repository method is defined on *queries, which runs against a dbtx:
// either the pool or a *sql.Tx. DB embeds a *queries bound to the pool;
// InTx hands the callback a *queries bound to a transaction. The service
// layer sees both through repository.Repository and never knows which.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/sakif/support-desk/internal/repository"
)

// dbtx is the subset of *sql.DB and *sql.Tx the queries need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements repository.Repository against a dbtx.
type queries struct {
	q dbtx
}

var _ repository.Repository = (*queries)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	*queries
	conn *sql.DB
}

var _ repository.Store = (*DB)(nil)

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/support.db" → file-based database (persistent)
//   - ":memory:"        → in-memory database, private to this *DB
func New(dbPath string) (*DB, error) {
	memory := dbPath == ":memory:"

	conn, err := sql.Open("sqlite", dsn(dbPath, memory))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" gets its own empty database, so an
	// in-memory pool must be exactly one connection wide.
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{queries: &queries{q: conn}, conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func dsn(dbPath string, memory bool) string {
	params := []string{"_pragma=foreign_keys(1)"}
	if memory {
		return dbPath + "?" + strings.Join(params, "&")
	}
	params = append(params,
		"_pragma=journal_mode(WAL)",
		"_pragma=busy_timeout(5000)",
		"_txlock=immediate",
	)
	return "file:" + dbPath + "?" + strings.Join(params, "&")
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// InTx runs fn inside a transaction. fn must only use the Repository it is
// given; on an in-memory database the pool has a single connection and
// reaching for db would block.
func (db *DB) InTx(ctx context.Context, fn func(tx repository.Repository) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	if err := fn(&queries{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("sqlite: rolling back: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				auth0_id   TEXT UNIQUE,
				email      TEXT NOT NULL UNIQUE,
				username   TEXT NOT NULL,
				name       TEXT,
				roles      TEXT NOT NULL DEFAULT '[]',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);`},
		{"challenges", `
			CREATE TABLE IF NOT EXISTS challenges (
				id                       INTEGER PRIMARY KEY AUTOINCREMENT,
				public_id                TEXT NOT NULL UNIQUE,
				title                    TEXT NOT NULL,
				description              TEXT,
				category                 TEXT,
				difficulty               TEXT,
				points                   INTEGER,
				assigned_support_user_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
				created_at               DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at               DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_challenges_points ON challenges(points);`},
		{"tags", `
			CREATE TABLE IF NOT EXISTS tags (
				id   INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE
			);
			CREATE TABLE IF NOT EXISTS challenge_tags (
				challenge_id INTEGER NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
				tag_id       INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				PRIMARY KEY (challenge_id, tag_id)
			);`},
		{"challenge_hints", `
			CREATE TABLE IF NOT EXISTS challenge_hints (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				challenge_id INTEGER NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
				text         TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_hints_challenge ON challenge_hints(challenge_id);`},
		{"learning_objectives", `
			CREATE TABLE IF NOT EXISTS learning_objectives (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				challenge_id INTEGER NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
				text         TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_objectives_challenge ON learning_objectives(challenge_id);`},
		{"support_conversations", `
			CREATE TABLE IF NOT EXISTS support_conversations (
				id                  INTEGER PRIMARY KEY AUTOINCREMENT,
				identifier          TEXT NOT NULL UNIQUE CHECK (length(identifier) <= 32),
				topic               TEXT NOT NULL CHECK (length(topic) <= 255),
				category            TEXT CHECK (category IS NULL OR length(category) <= 100),
				status              TEXT NOT NULL DEFAULT 'OPEN'
				                    CHECK (status IN ('OPEN', 'ASSIGNED', 'RESOLVED', 'CLOSED')),
				priority            TEXT CHECK (priority IS NULL OR priority IN ('LOW', 'MEDIUM', 'HIGH')),
				challenge_id        INTEGER REFERENCES challenges(id) ON DELETE SET NULL,
				created_by_user_id  INTEGER REFERENCES users(id) ON DELETE SET NULL,
				assigned_to_user_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
				created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_conversations_challenge ON support_conversations(challenge_id);
			CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON support_conversations(created_at);`},
		{"conversation_posts", `
			CREATE TABLE IF NOT EXISTS conversation_posts (
				id                  INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id     INTEGER NOT NULL REFERENCES support_conversations(id) ON DELETE CASCADE,
				author_user_id      INTEGER REFERENCES users(id) ON DELETE SET NULL,
				author_display_name TEXT CHECK (author_display_name IS NULL OR length(author_display_name) <= 120),
				content             TEXT NOT NULL,
				created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_posts_conversation ON conversation_posts(conversation_id, created_at);`},
	}

	for _, step := range steps {
		if _, err := db.conn.Exec(step.sql); err != nil {
			return fmt.Errorf("creating %s: %w", step.name, err)
		}
	}
	return nil
}

// Nullable column helpers.

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	i := ni.Int64
	return &i
}

// likePattern escapes LIKE wildcards in s and wraps it in %...%.
// Queries using it must declare ESCAPE '\'.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// limitClause renders LIMIT/OFFSET for opts. SQLite needs a LIMIT before
// OFFSET, and -1 means unbounded.
func limitClause(opts repository.ListOptions) (string, []any) {
	if opts.Limit <= 0 && opts.Offset <= 0 {
		return "", nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	return " LIMIT ? OFFSET ?", []any{limit, max(opts.Offset, 0)}
}
