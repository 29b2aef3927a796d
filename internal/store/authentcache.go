package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
)

// AuthentCacheRepo persists the authorization cache, mirroring the table
// and FIFO-eviction trigger of AuthentCache.cpp: entries are evicted
// oldest-rowid-first once the table exceeds maxEntries, entirely inside
// sqlite so the bound holds even across process restarts.
type AuthentCacheRepo struct {
	db         *DB
	maxEntries int
}

// NewAuthentCacheRepo creates the table, the eviction trigger, and
// returns a repo bound to maxEntries.
func NewAuthentCacheRepo(db *DB, maxEntries int) (*AuthentCacheRepo, error) {
	r := &AuthentCacheRepo{db: db, maxEntries: maxEntries}
	ctx := context.Background()

	if _, err := db.exec(ctx, `CREATE TABLE IF NOT EXISTS authent_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tag VARCHAR(20) UNIQUE,
		parent VARCHAR(20),
		expiry INTEGER,
		status VARCHAR(16)
	)`); err != nil {
		return nil, mapError("create authent_cache", err)
	}

	trigger := fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS delete_oldest_authent_cache
		AFTER INSERT ON authent_cache
		WHEN (SELECT count(*) FROM authent_cache) > %d
		BEGIN
			DELETE FROM authent_cache WHERE rowid IN (SELECT rowid FROM authent_cache ORDER BY rowid ASC LIMIT 1);
		END`, maxEntries)
	if _, err := db.exec(ctx, trigger); err != nil {
		return nil, mapError("create eviction trigger", err)
	}

	return r, nil
}

// Check looks up idTag. A present-but-expired entry is deleted and
// reported as a miss, matching AuthentCache::check.
func (r *AuthentCacheRepo) Check(ctx context.Context, idTag types.IdTag) (types.IdTagInfo, bool, error) {
	row := r.db.queryRow(ctx, `SELECT parent, expiry, status FROM authent_cache WHERE tag = ?`, string(idTag))

	var parent sql.NullString
	var expiry sql.NullInt64
	var status string
	if err := row.Scan(&parent, &expiry, &status); err != nil {
		if err == sql.ErrNoRows {
			return types.IdTagInfo{}, false, nil
		}
		return types.IdTagInfo{}, false, mapError("check authent_cache", err)
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
			if _, delErr := r.db.exec(ctx, `DELETE FROM authent_cache WHERE tag = ?`, string(idTag)); delErr != nil {
				return types.IdTagInfo{}, false, mapError("evict expired authent_cache entry", delErr)
			}
			return types.IdTagInfo{}, false, nil
		}
	}
	return info, true, nil
}

// Update inserts, updates or deletes the cache entry for idTag per
// AuthentCache::update's rules: non-Accepted status removes the entry
// entirely (a cache only remembers tags it can let through), Accepted
// status upserts it.
func (r *AuthentCacheRepo) Update(ctx context.Context, idTag types.IdTag, info types.IdTagInfo) error {
	_, found, err := r.existsRow(ctx, idTag)
	if err != nil {
		return err
	}

	if info.Status != types.AuthorizationStatusAccepted {
		if found {
			_, err := r.db.exec(ctx, `DELETE FROM authent_cache WHERE tag = ?`, string(idTag))
			return mapError("delete authent_cache entry", err)
		}
		return nil
	}

	var parent any
	if info.ParentIdTag != nil {
		parent = string(*info.ParentIdTag)
	}
	var expiry any
	if info.ExpiryDate != nil {
		expiry = info.ExpiryDate.Unix()
	}

	if found {
		_, err := r.db.exec(ctx, `UPDATE authent_cache SET parent = ?, expiry = ?, status = ? WHERE tag = ?`,
			parent, expiry, string(info.Status), string(idTag))
		return mapError("update authent_cache entry", err)
	}

	_, err = r.db.exec(ctx, `INSERT INTO authent_cache (tag, parent, expiry, status) VALUES (?, ?, ?, ?)`,
		string(idTag), parent, expiry, string(info.Status))
	return mapError("insert authent_cache entry", err)
}

func (r *AuthentCacheRepo) existsRow(ctx context.Context, idTag types.IdTag) (int64, bool, error) {
	row := r.db.queryRow(ctx, `SELECT id FROM authent_cache WHERE tag = ?`, string(idTag))
	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, mapError("lookup authent_cache entry", err)
	}
	return id, true, nil
}

// Clear deletes every cache entry, per a ClearCache.req when caching is
// enabled.
func (r *AuthentCacheRepo) Clear(ctx context.Context) error {
	_, err := r.db.exec(ctx, `DELETE FROM authent_cache`)
	return mapError("clear authent_cache", err)
}
