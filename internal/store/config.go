package store

import (
	"context"
	"database/sql"
)

// ConfigRepo persists OCPP standardized configuration keys (spec §6)
// so they survive a restart, grounded on
// IOcppConfig/IInternalConfig's setKey/getKey/createKey shape in
// original_source.
type ConfigRepo struct {
	db *DB
}

// NewConfigRepo creates the table if absent.
func NewConfigRepo(db *DB) (*ConfigRepo, error) {
	if _, err := db.exec(context.Background(), `CREATE TABLE IF NOT EXISTS config_kv (
		key VARCHAR(64) PRIMARY KEY,
		value TEXT,
		readonly INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		return nil, mapError("create config_kv", err)
	}
	return &ConfigRepo{db: db}, nil
}

// Get returns the stored value for key, ok=false if the key is unset.
func (r *ConfigRepo) Get(ctx context.Context, key string) (string, bool, error) {
	row := r.db.queryRow(ctx, `SELECT value FROM config_kv WHERE key = ?`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, mapError("get config key", err)
	}
	return value, true, nil
}

// Set creates or updates key, preserving its readonly flag if it already
// exists.
func (r *ConfigRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.exec(ctx, `INSERT INTO config_kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return mapError("set config key", err)
}

// CreateIfAbsent seeds key with value and readonly only if it doesn't
// already exist, so restarts don't clobber a value changed since boot.
func (r *ConfigRepo) CreateIfAbsent(ctx context.Context, key, value string, readonly bool) error {
	ro := 0
	if readonly {
		ro = 1
	}
	_, err := r.db.exec(ctx, `INSERT OR IGNORE INTO config_kv (key, value, readonly) VALUES (?, ?, ?)`, key, value, ro)
	return mapError("seed config key", err)
}

// All returns every key/value/readonly triple, for GetConfiguration.req
// with no key filter.
func (r *ConfigRepo) All(ctx context.Context) (map[string]struct {
	Value    string
	Readonly bool
}, error) {
	rows, err := r.db.query(ctx, `SELECT key, value, readonly FROM config_kv`)
	if err != nil {
		return nil, mapError("list config_kv", err)
	}
	defer rows.Close()

	out := make(map[string]struct {
		Value    string
		Readonly bool
	})
	for rows.Next() {
		var key, value string
		var readonly int
		if err := rows.Scan(&key, &value, &readonly); err != nil {
			return nil, mapError("scan config_kv row", err)
		}
		out[key] = struct {
			Value    string
			Readonly bool
		}{Value: value, Readonly: readonly != 0}
	}
	return out, rows.Err()
}

// IsReadonly reports whether key is marked readonly.
func (r *ConfigRepo) IsReadonly(ctx context.Context, key string) (bool, error) {
	row := r.db.queryRow(ctx, `SELECT readonly FROM config_kv WHERE key = ?`, key)
	var readonly int
	if err := row.Scan(&readonly); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, mapError("check config key readonly", err)
	}
	return readonly != 0, nil
}
