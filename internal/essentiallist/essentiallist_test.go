package essentiallist

import (
	"context"
	"testing"

	"github.com/chargepoint/ocpp16cp/internal/kv"
	"github.com/chargepoint/ocpp16cp/internal/ocpp/messages"
	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
	"github.com/chargepoint/ocpp16cp/internal/store"
)

func newTestList(t *testing.T, enabled bool) *List {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo, err := store.NewLocalListRepo(db)
	if err != nil {
		t.Fatalf("NewLocalListRepo: %v", err)
	}
	kvStore, err := kv.Open("")
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	t.Cleanup(func() { kvStore.Close() })

	l, err := New(repo, kvStore, func() bool { return enabled })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestVersionStartsAtZero(t *testing.T) {
	l := newTestList(t, true)
	if v := l.Version(); v != 0 {
		t.Errorf("Version() = %d, want 0", v)
	}
}

func TestApplyFullUpdateAccepted(t *testing.T) {
	ctx := context.Background()
	l := newTestList(t, true)

	req := messages.SendLocalListReq{
		ListVersion: 1,
		UpdateType:  messages.UpdateTypeFull,
		LocalAuthorizationList: []messages.AuthorizationData{
			{IdTag: "TAG1", IdTagInfo: &types.IdTagInfo{Status: types.AuthorizationStatusAccepted}},
		},
	}
	status, err := l.Apply(ctx, req)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if status != messages.UpdateStatusAccepted {
		t.Fatalf("status = %s, want Accepted", status)
	}
	if l.Version() != 1 {
		t.Fatalf("Version() = %d, want 1", l.Version())
	}

	info, ok, err := l.Check(ctx, "TAG1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !ok || info.Status != types.AuthorizationStatusAccepted {
		t.Fatalf("Check(TAG1) = (%+v, %v), want Accepted entry", info, ok)
	}
}

// TestApplyRejectsSameOrOlderVersion exercises the redesigned version
// check: a listVersion equal to (not just less than) the installed
// version must be reported as a mismatch, never silently re-applied.
func TestApplyRejectsSameOrOlderVersion(t *testing.T) {
	ctx := context.Background()
	l := newTestList(t, true)

	first := messages.SendLocalListReq{ListVersion: 5, UpdateType: messages.UpdateTypeFull}
	if _, err := l.Apply(ctx, first); err != nil {
		t.Fatalf("Apply (seed): %v", err)
	}

	same := messages.SendLocalListReq{ListVersion: 5, UpdateType: messages.UpdateTypeFull}
	status, err := l.Apply(ctx, same)
	if err != nil {
		t.Fatalf("Apply (same version): %v", err)
	}
	if status != messages.UpdateStatusVersionMismatch {
		t.Fatalf("status = %s, want VersionMismatch for an equal version", status)
	}

	older := messages.SendLocalListReq{ListVersion: 3, UpdateType: messages.UpdateTypeFull}
	status, err = l.Apply(ctx, older)
	if err != nil {
		t.Fatalf("Apply (older version): %v", err)
	}
	if status != messages.UpdateStatusVersionMismatch {
		t.Fatalf("status = %s, want VersionMismatch for an older version", status)
	}
	if l.Version() != 5 {
		t.Fatalf("Version() = %d, want unchanged 5", l.Version())
	}
}

func TestApplyPartialUpdateRemoval(t *testing.T) {
	ctx := context.Background()
	l := newTestList(t, true)

	full := messages.SendLocalListReq{
		ListVersion: 1,
		UpdateType:  messages.UpdateTypeFull,
		LocalAuthorizationList: []messages.AuthorizationData{
			{IdTag: "TAG1", IdTagInfo: &types.IdTagInfo{Status: types.AuthorizationStatusAccepted}},
		},
	}
	if _, err := l.Apply(ctx, full); err != nil {
		t.Fatalf("Apply (full): %v", err)
	}

	partial := messages.SendLocalListReq{
		ListVersion: 2,
		UpdateType:  messages.UpdateTypePartial,
		LocalAuthorizationList: []messages.AuthorizationData{
			{IdTag: "TAG1", IdTagInfo: nil},
		},
	}
	status, err := l.Apply(ctx, partial)
	if err != nil {
		t.Fatalf("Apply (partial removal): %v", err)
	}
	if status != messages.UpdateStatusAccepted {
		t.Fatalf("status = %s, want Accepted", status)
	}

	if _, ok, err := l.Check(ctx, "TAG1"); err != nil || ok {
		t.Fatalf("Check(TAG1) after removal = (ok=%v, err=%v), want a miss", ok, err)
	}
}

// TestApplyFullUpdateRejectsMissingIdTagInfo exercises spec §4.3.2's
// requirement that every entry in a Full update carry an idTagInfo: one
// missing entry fails the whole update, it is not silently dropped.
func TestApplyFullUpdateRejectsMissingIdTagInfo(t *testing.T) {
	ctx := context.Background()
	l := newTestList(t, true)

	req := messages.SendLocalListReq{
		ListVersion: 1,
		UpdateType:  messages.UpdateTypeFull,
		LocalAuthorizationList: []messages.AuthorizationData{
			{IdTag: "TAG1", IdTagInfo: &types.IdTagInfo{Status: types.AuthorizationStatusAccepted}},
			{IdTag: "TAG2", IdTagInfo: nil},
		},
	}
	status, err := l.Apply(ctx, req)
	if err == nil {
		t.Fatal("Apply with a missing idTagInfo should return an error")
	}
	if status != messages.UpdateStatusFailed {
		t.Fatalf("status = %s, want Failed", status)
	}
	if l.Version() != 0 {
		t.Fatalf("Version() = %d, want unchanged 0 after a failed update", l.Version())
	}
	if _, ok, err := l.Check(ctx, "TAG1"); err != nil || ok {
		t.Fatalf("Check(TAG1) after failed update = (ok=%v, err=%v), want a miss since the table was never cleared/rewritten", ok, err)
	}
}

func TestCheckDisabledReturnsMiss(t *testing.T) {
	l := newTestList(t, false)
	_, ok, err := l.Check(context.Background(), "ANY")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ok {
		t.Error("Check() should report a miss when the local list is disabled")
	}
}

func TestApplyDisabledReportsNotSupported(t *testing.T) {
	l := newTestList(t, false)
	status, err := l.Apply(context.Background(), messages.SendLocalListReq{ListVersion: 1, UpdateType: messages.UpdateTypeFull})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if status != messages.UpdateStatusNotSupported {
		t.Fatalf("status = %s, want NotSupported", status)
	}
}
