package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist or is not visible to the caller.
var ErrNotFound = errors.New("not found")

// DB wraps *sqlx.DB for wagroups storage. Schema is owned by the app.
// Queries are written with ? placeholders and rebound per driver.
type DB struct {
	*sqlx.DB
	driver string
}

// Open opens the database and applies the schema. driver is "sqlite" (dsn is a
// file path, created if missing) or "postgres" (dsn is a connection URL, e.g.
// the Supabase pooler address).
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case "sqlite", "sqlite3":
		driver = "sqlite"
	case "postgres", "postgresql":
		driver = "postgres"
	default:
		return nil, errors.Errorf("unsupported database driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if driver == "sqlite" {
		// One connection keeps PRAGMAs in effect and serializes writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	if driver == "sqlite" {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "enable foreign keys")
		}
	}
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "applying schema statement %d", i)
		}
	}
	return &DB{DB: db, driver: driver}, nil
}

// Driver returns the normalized driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Close closes the database.
func (db *DB) Close() error {
	return db.DB.Close()
}

func (db *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.ExecContext(ctx, db.Rebind(query), args...)
}

func (db *DB) get(ctx context.Context, dest any, query string, args ...any) error {
	err := db.GetContext(ctx, dest, db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (db *DB) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return db.SelectContext(ctx, dest, db.Rebind(query), args...)
}

// affectedOrNotFound turns a zero-row UPDATE/DELETE into ErrNotFound.
func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// now is UTC so SQLite's text timestamps compare in order.
func now() time.Time {
	return time.Now().UTC()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique constraint") || strings.Contains(s, "duplicate key")
}

// ErrConflict is returned when an insert collides with a unique key.
var ErrConflict = errors.New("already exists")
