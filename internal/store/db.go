// Package store is the sqlite-backed persistence layer for the parts of
// the control plane that need durable, queryable state: the
// authorization cache, the local authorization list, the transaction
// request FIFO and the installed smart-charging profiles.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a *sql.DB opened against a single sqlite file. All repositories
// in this package share one DB so the FIFO, cache and profile tables live
// in one file and survive a restart together.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if absent) the sqlite database at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1) // modernc.org/sqlite: one writer, avoids SQLITE_BUSY under our own locking
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.conn.ExecContext(ctx, query, args...)
}

func (d *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.conn.QueryContext(ctx, query, args...)
}

func (d *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.conn.QueryRowContext(ctx, query, args...)
}

// mapError normalizes modernc.org/sqlite error text into sentinel-ish
// wrapped errors the repositories can check against, mirroring the
// mapping style used elsewhere in the pack for sqlite error surfaces.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return err
	}
	return fmt.Errorf("store: %s: %w", op, err)
}
