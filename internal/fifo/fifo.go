// Package fifo is the durable, strictly in-order transaction request
// queue of spec §4.2: StartTransaction/StopTransaction/transactional
// MeterValues calls are pushed here and drained strictly head-first so
// a restart or a disconnected RPC layer never reorders or drops one.
package fifo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/chargepoint/ocpp16cp/internal/store"
)

// Entry is one queued request, deserializable back into its concrete
// request type by the caller via Action.
type Entry struct {
	ID      uint32
	Action  string
	Payload json.RawMessage
}

// Fifo is the in-memory mirror of the persisted queue; every mutation
// is written through to repo before being reflected in memory, so a
// crash mid-push never loses or duplicates an entry.
type Fifo struct {
	repo *store.FifoRepo

	mu      sync.Mutex
	entries []Entry
	nextID  uint32
}

// Load rebuilds the in-memory queue from repo, per RequestFifo::load.
func Load(ctx context.Context, repo *store.FifoRepo) (*Fifo, error) {
	rows, err := repo.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	f := &Fifo{repo: repo}
	for _, row := range rows {
		f.entries = append(f.entries, Entry{ID: row.ID, Action: row.Action, Payload: json.RawMessage(row.Request)})
	}
	if len(f.entries) > 0 {
		f.nextID = f.entries[len(f.entries)-1].ID + 1
	}
	return f, nil
}

// Push serializes payload and appends it under the next id, returning
// the id assigned so a caller can correlate a later ack back to it.
func (f *Fifo) Push(ctx context.Context, action string, payload any) (uint32, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("fifo: marshal %s: %w", action, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	if err := f.repo.Push(ctx, id, action, string(body)); err != nil {
		return 0, err
	}
	f.entries = append(f.entries, Entry{ID: id, Action: action, Payload: body})
	f.nextID++
	return id, nil
}

// Front returns the head entry without removing it.
func (f *Fifo) Front() (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return Entry{}, false
	}
	return f.entries[0], true
}

// Pop removes the head entry. Only the retry driver calls this, and
// only after the head's CALL has been confirmed delivered.
func (f *Fifo) Pop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return nil
	}
	id := f.entries[0].ID
	if err := f.repo.Pop(ctx, id); err != nil {
		return err
	}
	f.entries = f.entries[1:]
	return nil
}

// Entries returns a defensive copy of every pending entry, head first,
// for diagnostic listing.
func (f *Fifo) Entries() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Size returns the number of pending entries.
func (f *Fifo) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
