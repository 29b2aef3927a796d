package store

import (
	"context"
)

// FifoEntry is one queued transaction-related request.
type FifoEntry struct {
	ID      uint32
	Action  string
	Request string // JSON-encoded payload
}

// FifoRepo persists the transaction request FIFO, grounded on
// RequestFifo.cpp: strict insertion order, durable across restarts,
// popped strictly from the head.
type FifoRepo struct {
	db *DB
}

// NewFifoRepo creates the table if absent.
func NewFifoRepo(db *DB) (*FifoRepo, error) {
	if _, err := db.exec(context.Background(), `CREATE TABLE IF NOT EXISTS request_fifo (
		id INTEGER PRIMARY KEY,
		action VARCHAR(64),
		request TEXT
	)`); err != nil {
		return nil, mapError("create request_fifo", err)
	}
	return &FifoRepo{db: db}, nil
}

// Push appends entry with explicit id (the caller owns id assignment so
// it can track the next-id counter in memory, per RequestFifo::push).
func (r *FifoRepo) Push(ctx context.Context, id uint32, action, request string) error {
	_, err := r.db.exec(ctx, `INSERT INTO request_fifo (id, action, request) VALUES (?, ?, ?)`, id, action, request)
	return mapError("insert request_fifo entry", err)
}

// Pop deletes the entry with the given id.
func (r *FifoRepo) Pop(ctx context.Context, id uint32) error {
	_, err := r.db.exec(ctx, `DELETE FROM request_fifo WHERE id = ?`, id)
	return mapError("delete request_fifo entry", err)
}

// LoadAll returns every stored entry ordered by id ascending, for
// rebuilding the in-memory FIFO at startup (RequestFifo::load).
func (r *FifoRepo) LoadAll(ctx context.Context) ([]FifoEntry, error) {
	rows, err := r.db.query(ctx, `SELECT id, action, request FROM request_fifo ORDER BY id ASC`)
	if err != nil {
		return nil, mapError("load request_fifo", err)
	}
	defer rows.Close()

	var entries []FifoEntry
	for rows.Next() {
		var e FifoEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.Request); err != nil {
			return nil, mapError("scan request_fifo row", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("iterate request_fifo", err)
	}
	return entries, nil
}
