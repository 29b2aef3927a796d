package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
)

// LocalListRepo persists the local authorization list, grounded on
// AuthentLocalList.cpp's table and query shapes.
type LocalListRepo struct {
	db *DB
}

// NewLocalListRepo creates the table if absent.
func NewLocalListRepo(db *DB) (*LocalListRepo, error) {
	if _, err := db.exec(context.Background(), `CREATE TABLE IF NOT EXISTS authent_local_list (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tag VARCHAR(20) UNIQUE,
		parent VARCHAR(20),
		expiry INTEGER,
		status VARCHAR(16)
	)`); err != nil {
		return nil, mapError("create authent_local_list", err)
	}
	return &LocalListRepo{db: db}, nil
}

// Check mirrors AuthentLocalList::check: an expired entry is reported as
// a miss but, unlike the cache, is NOT deleted (the local list is
// server-managed, only SendLocalList may mutate it).
func (r *LocalListRepo) Check(ctx context.Context, idTag types.IdTag) (types.IdTagInfo, bool, error) {
	row := r.db.queryRow(ctx, `SELECT parent, expiry, status FROM authent_local_list WHERE tag = ?`, string(idTag))

	var parent sql.NullString
	var expiry sql.NullInt64
	var status string
	if err := row.Scan(&parent, &expiry, &status); err != nil {
		if err == sql.ErrNoRows {
			return types.IdTagInfo{}, false, nil
		}
		return types.IdTagInfo{}, false, mapError("check authent_local_list", err)
	}

	info := types.IdTagInfo{Status: types.AuthorizationStatus(status)}
	if parent.Valid {
		p := types.IdTag(parent.String)
		info.ParentIdTag = &p
	}
	if expiry.Valid {
		t := time.Unix(expiry.Int64, 0).UTC()
		info.ExpiryDate = &t
		if t.Before(time.Now()) {
			return types.IdTagInfo{}, false, nil
		}
	}
	return info, true, nil
}

// FullUpdate replaces the whole table, per performFullUpdate. Every entry
// must carry an idTagInfo; a Full update is an add-only list, so a nil
// entry is a malformed request and fails the update rather than being
// skipped.
func (r *LocalListRepo) FullUpdate(ctx context.Context, entries map[types.IdTag]*types.IdTagInfo) error {
	for tag, info := range entries {
		if info == nil {
			return fmt.Errorf("authent_local_list: entry %q missing idTagInfo", tag)
		}
	}
	if _, err := r.db.exec(ctx, `DELETE FROM authent_local_list`); err != nil {
		return mapError("clear authent_local_list", err)
	}
	for tag, info := range entries {
		if err := r.insert(ctx, tag, *info); err != nil {
			return err
		}
	}
	return nil
}

// PartialUpdate applies adds/updates/removals, per performPartialUpdate:
// a nil info means delete the idTag, otherwise upsert it.
func (r *LocalListRepo) PartialUpdate(ctx context.Context, entries map[types.IdTag]*types.IdTagInfo) error {
	for tag, info := range entries {
		if info == nil {
			if _, err := r.db.exec(ctx, `DELETE FROM authent_local_list WHERE tag = ?`, string(tag)); err != nil {
				return mapError("delete authent_local_list entry", err)
			}
			continue
		}
		exists, err := r.exists(ctx, tag)
		if err != nil {
			return err
		}
		if exists {
			if err := r.update(ctx, tag, *info); err != nil {
				return err
			}
		} else if err := r.insert(ctx, tag, *info); err != nil {
			return err
		}
	}
	return nil
}

func (r *LocalListRepo) exists(ctx context.Context, tag types.IdTag) (bool, error) {
	row := r.db.queryRow(ctx, `SELECT id FROM authent_local_list WHERE tag = ?`, string(tag))
	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, mapError("lookup authent_local_list entry", err)
	}
	return true, nil
}

func (r *LocalListRepo) insert(ctx context.Context, tag types.IdTag, info types.IdTagInfo) error {
	var parent any
	if info.ParentIdTag != nil {
		parent = string(*info.ParentIdTag)
	}
	var expiry any
	if info.ExpiryDate != nil {
		expiry = info.ExpiryDate.Unix()
	}
	_, err := r.db.exec(ctx, `INSERT INTO authent_local_list (tag, parent, expiry, status) VALUES (?, ?, ?, ?)`,
		string(tag), parent, expiry, string(info.Status))
	return mapError("insert authent_local_list entry", err)
}

func (r *LocalListRepo) update(ctx context.Context, tag types.IdTag, info types.IdTagInfo) error {
	var parent any
	if info.ParentIdTag != nil {
		parent = string(*info.ParentIdTag)
	}
	var expiry any
	if info.ExpiryDate != nil {
		expiry = info.ExpiryDate.Unix()
	}
	_, err := r.db.exec(ctx, `UPDATE authent_local_list SET parent = ?, expiry = ?, status = ? WHERE tag = ?`,
		parent, expiry, string(info.Status), string(tag))
	return mapError("update authent_local_list entry", err)
}
