// Package store is the durable database behind accounts and the persisted
// translation log. Postgres DSNs use pgx, anything else opens SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// DB wraps the connection with the dialect it was opened with.
type DB struct {
	*sql.DB
	postgres bool
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// InitDB opens dsn and creates the schema if needed.
func InitDB(ctx context.Context, dsn string) (*DB, error) {
	driver := "sqlite3"
	if isPostgres(dsn) {
		driver = "pgx"
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if driver == "sqlite3" {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}

	db := &DB{DB: sqlDB, postgres: driver == "pgx"}
	if _, err := db.ExecContext(ctx, db.schema()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

func (db *DB) schema() string {
	ts := "DATETIME"
	if db.postgres {
		ts = "TIMESTAMPTZ"
	}
	return `
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    ` + ts + ` NOT NULL
	);

	CREATE TABLE IF NOT EXISTS translations (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		prediction  TEXT NOT NULL,
		confidence  INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		captured_at ` + ts + ` NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_translations_user_time ON translations(user_id, captured_at);
	`
}

// rebind rewrites ? placeholders to $n for Postgres.
func (db *DB) rebind(query string) string {
	if !db.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Ping reports whether the database answers.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Dialect names the backing database for health output.
func (db *DB) Dialect() string {
	if db.postgres {
		return "postgres"
	}
	return "sqlite"
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func utc(t time.Time) time.Time {
	return t.UTC()
}
