// Package essentiallist is the local authorization list of spec §4.3.2:
// a server-pushed allow/deny table, versioned so the charge point can
// reject stale or duplicate SendLocalList requests.
package essentiallist

import (
	"context"
	"fmt"
	"sync"

	"github.com/chargepoint/ocpp16cp/internal/kv"
	"github.com/chargepoint/ocpp16cp/internal/ocpp/messages"
	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
	"github.com/chargepoint/ocpp16cp/internal/store"
)

const versionKey = "essentiallist.version"

// List owns the local list's version counter and its table.
type List struct {
	repo    *store.LocalListRepo
	kv      *kv.Store
	enabled func() bool

	mu      sync.Mutex
	version int
}

// New loads the persisted version (0 if never set) and returns a List.
func New(repo *store.LocalListRepo, kvStore *kv.Store, enabled func() bool) (*List, error) {
	version, err := kvStore.GetInt(versionKey)
	if err != nil {
		return nil, err
	}
	return &List{repo: repo, kv: kvStore, enabled: enabled, version: version}, nil
}

// Version returns the current list version, for GetLocalListVersion.conf.
func (l *List) Version() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// Check looks up idTag in the list.
func (l *List) Check(ctx context.Context, idTag types.IdTag) (types.IdTagInfo, bool, error) {
	if !l.enabled() {
		return types.IdTagInfo{}, false, nil
	}
	return l.repo.Check(ctx, idTag)
}

// Apply handles a SendLocalList.req. A request is only honored when its
// listVersion is strictly newer than what's installed; same-or-older
// versions are reported as a mismatch rather than silently re-applied.
func (l *List) Apply(ctx context.Context, req messages.SendLocalListReq) (messages.UpdateStatus, error) {
	if !l.enabled() {
		return messages.UpdateStatusNotSupported, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if req.ListVersion <= l.version {
		return messages.UpdateStatusVersionMismatch, nil
	}

	entries := make(map[types.IdTag]*types.IdTagInfo, len(req.LocalAuthorizationList))
	for _, ad := range req.LocalAuthorizationList {
		entries[ad.IdTag] = ad.IdTagInfo
	}

	var err error
	switch req.UpdateType {
	case messages.UpdateTypeFull:
		err = l.repo.FullUpdate(ctx, entries)
	case messages.UpdateTypePartial:
		err = l.repo.PartialUpdate(ctx, entries)
	default:
		return messages.UpdateStatusFailed, fmt.Errorf("essentiallist: unknown update type %q", req.UpdateType)
	}
	if err != nil {
		return messages.UpdateStatusFailed, err
	}

	l.version = req.ListVersion
	if err := l.kv.SetInt(versionKey, l.version); err != nil {
		return messages.UpdateStatusAccepted, fmt.Errorf("essentiallist: persist version: %w", err)
	}
	return messages.UpdateStatusAccepted, nil
}
