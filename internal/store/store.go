// Package store is the relational layer: schema management, seed data, and
// the query primitives the importer, search, comparison, and account code
// build on. All SQL lives here.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert would violate a uniqueness rule the
// caller can meaningfully report (e.g. an email already registered).
var ErrDuplicate = errors.New("already exists")

// DB is the slice of pgx the store uses. Both *pgxpool.Pool and the pgxmock
// pool satisfy it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store executes all SQL against a DB handle. sequences selects the named
// sequence primary-key strategy used by the managed backend; identity columns
// otherwise. Only DDL differs between the two, never query shape.
type Store struct {
	db        DB
	sequences bool
}

// New creates a store over db.
func New(db DB, sequences bool) *Store {
	return &Store{db: db, sequences: sequences}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// IsUniqueViolation checks whether err is a unique-constraint violation
// (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
