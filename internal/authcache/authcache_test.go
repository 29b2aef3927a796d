package authcache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
	"github.com/chargepoint/ocpp16cp/internal/store"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestCache(t *testing.T, enabled bool, maxEntries int) *Cache {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo, err := store.NewAuthentCacheRepo(db, maxEntries)
	if err != nil {
		t.Fatalf("NewAuthentCacheRepo: %v", err)
	}
	c, err := New(repo, 8, func() bool { return enabled }, testLog())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCheckMissOnEmptyCache(t *testing.T) {
	c := newTestCache(t, true, 10)
	_, ok, err := c.Check(context.Background(), "TAG1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ok {
		t.Error("Check() should miss on an empty cache")
	}
}

func TestUpdateThenCheckHitsMirror(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, true, 10)

	info := types.IdTagInfo{Status: types.AuthorizationStatusAccepted}
	if err := c.Update(ctx, "TAG1", info); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, ok, err := c.Check(ctx, "TAG1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !ok || got.Status != types.AuthorizationStatusAccepted {
		t.Fatalf("Check(TAG1) = (%+v, %v), want an Accepted hit", got, ok)
	}
}

// TestUpdateNonAcceptedRemovesEntry mirrors AuthentCache::update: a cache
// only ever remembers Accepted outcomes, so updating with a non-Accepted
// status must remove any existing entry instead of storing it.
func TestUpdateNonAcceptedRemovesEntry(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, true, 10)

	if err := c.Update(ctx, "TAG1", types.IdTagInfo{Status: types.AuthorizationStatusAccepted}); err != nil {
		t.Fatalf("Update (accept): %v", err)
	}
	if err := c.Update(ctx, "TAG1", types.IdTagInfo{Status: types.AuthorizationStatusBlocked}); err != nil {
		t.Fatalf("Update (block): %v", err)
	}

	_, ok, err := c.Check(ctx, "TAG1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ok {
		t.Error("Check(TAG1) should miss after a non-Accepted update removed the entry")
	}
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, false, 10)

	if err := c.Update(ctx, "TAG1", types.IdTagInfo{Status: types.AuthorizationStatusAccepted}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	_, ok, err := c.Check(ctx, "TAG1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ok {
		t.Error("a disabled cache should never report a hit")
	}
}

// TestClearRejectedWhenDisabled mirrors AuthentCache::handleMessage:
// ClearCache must report rejection rather than silently succeeding when
// caching is turned off.
func TestClearRejectedWhenDisabled(t *testing.T) {
	c := newTestCache(t, false, 10)
	result, err := c.Clear(context.Background())
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if result != ClearRejectedDisabled {
		t.Fatalf("Clear() = %v, want ClearRejectedDisabled", result)
	}
}

func TestClearEmptiesCacheWhenEnabled(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, true, 10)

	if err := c.Update(ctx, "TAG1", types.IdTagInfo{Status: types.AuthorizationStatusAccepted}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	result, err := c.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if result != ClearAccepted {
		t.Fatalf("Clear() = %v, want ClearAccepted", result)
	}

	_, ok, err := c.Check(ctx, "TAG1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ok {
		t.Error("Check(TAG1) should miss after Clear")
	}
}

// TestCheckMirrorEntryExpires guards against the mirror outliving the
// expiry sqlite already enforces: a row that was fresh when it entered
// the mirror must still be treated as expired on a later Check rather
// than served stale until LRU capacity happens to evict it.
func TestCheckMirrorEntryExpires(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, true, 10)

	expiry := time.Now().Add(-time.Second)
	info := types.IdTagInfo{Status: types.AuthorizationStatusAccepted, ExpiryDate: &expiry}
	if err := c.Update(ctx, "TAG1", info); err != nil {
		t.Fatalf("Update: %v", err)
	}

	_, ok, err := c.Check(ctx, "TAG1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ok {
		t.Error("Check(TAG1) should miss once the mirrored entry's expiry has passed")
	}

	if _, ok := c.mirror.Peek("TAG1"); ok {
		t.Error("the expired entry should have been removed from the mirror, not just reported as a miss")
	}
}

// TestFIFOEvictionBeyondMaxEntries exercises the sqlite trigger that
// evicts the oldest row once the table exceeds maxEntries.
func TestFIFOEvictionBeyondMaxEntries(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, true, 2)

	accepted := types.IdTagInfo{Status: types.AuthorizationStatusAccepted}
	if err := c.Update(ctx, "TAG1", accepted); err != nil {
		t.Fatalf("Update TAG1: %v", err)
	}
	if err := c.Update(ctx, "TAG2", accepted); err != nil {
		t.Fatalf("Update TAG2: %v", err)
	}
	if err := c.Update(ctx, "TAG3", accepted); err != nil {
		t.Fatalf("Update TAG3: %v", err)
	}

	// The mirror still holds TAG1 (LRU, separate from the sqlite table),
	// so bypass it by checking directly against the repo.
	_, ok, err := c.repo.Check(ctx, "TAG1")
	if err != nil {
		t.Fatalf("repo.Check TAG1: %v", err)
	}
	if ok {
		t.Error("TAG1 should have been evicted from sqlite once a 3rd entry was inserted with maxEntries=2")
	}

	_, ok, err = c.repo.Check(ctx, "TAG3")
	if err != nil {
		t.Fatalf("repo.Check TAG3: %v", err)
	}
	if !ok {
		t.Error("TAG3 (most recently inserted) should still be present")
	}
}
