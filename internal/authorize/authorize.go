// Package authorize implements the authorization decision order of
// spec §4.3: local list, then cache, then a live Authorize.req to the
// central system, each layer only consulted when the previous one
// misses.
package authorize

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/chargepoint/ocpp16cp/internal/authcache"
	"github.com/chargepoint/ocpp16cp/internal/essentiallist"
	"github.com/chargepoint/ocpp16cp/internal/ocpp/messages"
	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
)

// CentralCaller issues the Authorize.req when local sources miss.
type CentralCaller interface {
	Authorize(ctx context.Context, idTag types.IdTag) (types.IdTagInfo, error)
}

// Manager resolves an idTag to an authorization decision.
type Manager struct {
	localList *essentiallist.List
	cache     *authcache.Cache
	central   CentralCaller
	log       *logrus.Entry
}

// New builds a Manager over the given layers.
func New(localList *essentiallist.List, cache *authcache.Cache, central CentralCaller, log *logrus.Entry) *Manager {
	return &Manager{localList: localList, cache: cache, central: central, log: log}
}

// Resolve returns the authorization outcome for idTag, trying the local
// list, then the cache, then the central system, in that order, and
// updating the cache with whatever the central system returns.
func (m *Manager) Resolve(ctx context.Context, idTag types.IdTag) (types.IdTagInfo, error) {
	if info, found, err := m.localList.Check(ctx, idTag); err != nil {
		return types.IdTagInfo{}, err
	} else if found {
		m.log.WithField("idTag", idTag).Debug("authorization resolved from local list")
		return info, nil
	}

	if info, found, err := m.cache.Check(ctx, idTag); err != nil {
		return types.IdTagInfo{}, err
	} else if found {
		m.log.WithField("idTag", idTag).Debug("authorization resolved from cache")
		return info, nil
	}

	info, err := m.central.Authorize(ctx, idTag)
	if err != nil {
		return types.IdTagInfo{}, err
	}
	m.log.WithField("idTag", idTag).WithField("status", info.Status).Debug("authorization resolved from central system")
	if updateErr := m.cache.Update(ctx, idTag, info); updateErr != nil {
		m.log.WithError(updateErr).Warn("failed to update authorization cache")
	}
	return info, nil
}

// UpdateCache refreshes the authorization cache with an idTagInfo learned
// outside Resolve's own central call, e.g. the one riding a
// StartTransaction.conf.
func (m *Manager) UpdateCache(ctx context.Context, idTag types.IdTag, info types.IdTagInfo) error {
	return m.cache.Update(ctx, idTag, info)
}

// HandleGetLocalListVersion answers GetLocalListVersion.req.
func (m *Manager) HandleGetLocalListVersion(context.Context, messages.GetLocalListVersionReq) (messages.GetLocalListVersionConf, error) {
	return messages.GetLocalListVersionConf{ListVersion: m.localList.Version()}, nil
}

// HandleSendLocalList answers SendLocalList.req.
func (m *Manager) HandleSendLocalList(ctx context.Context, req messages.SendLocalListReq) (messages.SendLocalListConf, error) {
	status, err := m.localList.Apply(ctx, req)
	if err != nil {
		return messages.SendLocalListConf{}, err
	}
	return messages.SendLocalListConf{Status: status}, nil
}

// HandleClearCache answers ClearCache.req.
func (m *Manager) HandleClearCache(ctx context.Context, _ messages.ClearCacheReq) (messages.ClearCacheConf, error) {
	result, err := m.cache.Clear(ctx)
	if err != nil {
		return messages.ClearCacheConf{}, err
	}
	if result == authcache.ClearRejectedDisabled {
		return messages.ClearCacheConf{Status: messages.ClearCacheStatusRejected}, nil
	}
	return messages.ClearCacheConf{Status: messages.ClearCacheStatusAccepted}, nil
}
