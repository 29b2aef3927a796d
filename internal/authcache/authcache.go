// Package authcache is the authorization cache of spec §4.3.1: sqlite
// holds the authoritative, strictly FIFO-bounded table (internal/store),
// this package layers an in-memory LRU mirror on top so repeated checks
// for the same idTag during a charging session don't round-trip to disk.
package authcache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
	"github.com/chargepoint/ocpp16cp/internal/store"
)

// Cache answers Authorize/StartTransaction lookups and persists the
// results Authorize/StartTransaction.conf carry back.
type Cache struct {
	repo    *store.AuthentCacheRepo
	enabled func() bool
	log     *logrus.Entry

	mu     sync.Mutex
	mirror *lru.Cache[types.IdTag, types.IdTagInfo]
}

// New builds a Cache backed by repo. enabled reports the live value of
// the AuthorizationCacheEnabled configuration key (spec §6); it is a
// function, not a bool, since ChangeConfiguration can flip it at runtime.
func New(repo *store.AuthentCacheRepo, mirrorSize int, enabled func() bool, log *logrus.Entry) (*Cache, error) {
	mirror, err := lru.New[types.IdTag, types.IdTagInfo](mirrorSize)
	if err != nil {
		return nil, err
	}
	return &Cache{repo: repo, enabled: enabled, log: log, mirror: mirror}, nil
}

// Check looks up idTag, consulting the in-memory mirror first and
// falling back to sqlite on a miss. A disabled cache always misses.
func (c *Cache) Check(ctx context.Context, idTag types.IdTag) (types.IdTagInfo, bool, error) {
	if !c.enabled() {
		return types.IdTagInfo{}, false, nil
	}

	c.mu.Lock()
	if info, ok := c.mirror.Get(idTag); ok {
		if info.ExpiryDate == nil || !info.ExpiryDate.Before(time.Now()) {
			c.mu.Unlock()
			return info, true, nil
		}
		c.mirror.Remove(idTag)
	}
	c.mu.Unlock()

	info, found, err := c.repo.Check(ctx, idTag)
	if err != nil || !found {
		return types.IdTagInfo{}, found, err
	}

	c.mu.Lock()
	c.mirror.Add(idTag, info)
	c.mu.Unlock()
	return info, true, nil
}

// Update stores the outcome of an Authorize/StartTransaction exchange.
// A no-op when caching is disabled.
func (c *Cache) Update(ctx context.Context, idTag types.IdTag, info types.IdTagInfo) error {
	if !c.enabled() {
		return nil
	}
	if err := c.repo.Update(ctx, idTag, info); err != nil {
		return err
	}
	c.mu.Lock()
	if info.Status == types.AuthorizationStatusAccepted {
		c.mirror.Add(idTag, info)
	} else {
		c.mirror.Remove(idTag)
	}
	c.mu.Unlock()
	return nil
}

// ClearResult is the outcome of a ClearCache.req, mirroring
// AuthentCache::handleMessage: Rejected when caching is disabled, never
// a silent no-op.
type ClearResult int

const (
	ClearAccepted ClearResult = iota
	ClearRejectedDisabled
)

// Clear empties the cache if enabled, otherwise reports rejection.
func (c *Cache) Clear(ctx context.Context) (ClearResult, error) {
	if !c.enabled() {
		c.log.Info("clear cache rejected: authorization cache disabled")
		return ClearRejectedDisabled, nil
	}
	if err := c.repo.Clear(ctx); err != nil {
		return ClearAccepted, err
	}
	c.mu.Lock()
	c.mirror.Purge()
	c.mu.Unlock()
	c.log.Info("authorization cache cleared")
	return ClearAccepted, nil
}
