// Package smartcharging implements the stacked charging-profile store
// and composite-schedule evaluator of spec §4.4: SetChargingProfile,
// ClearChargingProfile, GetCompositeSchedule, and the setpoint
// computation GetCompositeSchedule is built on.
package smartcharging

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
	"github.com/chargepoint/ocpp16cp/internal/store"
)

// ConnectorInfo is what the evaluator needs to know about a connector's
// live transaction, supplied by internal/transaction at evaluation time.
type ConnectorInfo struct {
	TransactionId *int
	Since         time.Time // transaction start, for Relative-kind schedules
}

// Store holds every installed profile, indexed by connector, and
// persists them through repo.
type Store struct {
	repo *store.ProfileRepo
	log  *logrus.Entry

	mu       sync.Mutex
	profiles map[int][]types.ChargingProfile // connectorId -> profiles
	pending  map[int][]types.ChargingProfile // connectorId -> TxProfiles awaiting a transaction id
}

// New rebuilds the in-memory index from repo at startup.
func New(ctx context.Context, repo *store.ProfileRepo, log *logrus.Entry) (*Store, error) {
	loaded, err := repo.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	s := &Store{
		repo:     repo,
		log:      log,
		profiles: loaded,
		pending:  make(map[int][]types.ChargingProfile),
	}
	if s.profiles == nil {
		s.profiles = make(map[int][]types.ChargingProfile)
	}
	return s, nil
}

// Install stores profile at connectorId, persisting it and applying the
// replace-at-stack-level rule for ChargePointMaxProfile/TxDefaultProfile,
// and the pending-until-transaction-known rule for TxProfile.
func (s *Store) Install(ctx context.Context, connectorId int, profile types.ChargingProfile, hasRunningTx bool) error {
	profile.ConnectorId = connectorId

	s.mu.Lock()
	defer s.mu.Unlock()

	if profile.ChargingProfilePurpose == types.TxProfile && !hasRunningTx {
		s.pending[connectorId] = append(s.pending[connectorId], profile)
		return nil
	}

	if profile.ChargingProfilePurpose == types.ChargePointMaxProfile || profile.ChargingProfilePurpose == types.TxDefaultProfile {
		list := s.profiles[connectorId]
		replaced := false
		for i, p := range list {
			if p.ChargingProfilePurpose == profile.ChargingProfilePurpose && p.StackLevel == profile.StackLevel {
				list[i] = profile
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, profile)
		}
		s.profiles[connectorId] = list
	} else {
		s.profiles[connectorId] = append(s.profiles[connectorId], profile)
	}

	return s.repo.Put(ctx, connectorId, profile)
}

// AssignPendingTxProfiles materializes every TxProfile queued for
// connectorId once its transaction id becomes known (RemoteStart ->
// StartTransaction.conf).
func (s *Store) AssignPendingTxProfiles(ctx context.Context, connectorId, transactionId int) error {
	s.mu.Lock()
	pending := s.pending[connectorId]
	delete(s.pending, connectorId)
	s.mu.Unlock()

	for _, p := range pending {
		p.TransactionId = &transactionId
		if err := s.Install(ctx, connectorId, p, true); err != nil {
			return err
		}
	}
	return nil
}

// ClearTxProfiles deletes every TxProfile bound to connectorId, on
// transaction stop.
func (s *Store) ClearTxProfiles(ctx context.Context, connectorId int) error {
	purpose := types.TxProfile
	_, err := s.repo.DeleteMatching(ctx, &connectorId, &purpose, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, connectorId)
	kept := s.profiles[connectorId][:0]
	for _, p := range s.profiles[connectorId] {
		if p.ChargingProfilePurpose != types.TxProfile {
			kept = append(kept, p)
		}
	}
	s.profiles[connectorId] = kept
	return nil
}

// Clear implements ClearChargingProfile.req's filter semantics: all
// filters absent wipes everything; any subset matches the intersection.
func (s *Store) Clear(ctx context.Context, id *int, connectorId *int, purpose *types.ChargingProfilePurpose, stackLevel *int) (int, error) {
	var removed int
	var err error
	if id != nil {
		var ok bool
		ok, err = s.repo.DeleteByID(ctx, *id)
		if ok {
			removed = 1
		}
	} else {
		removed, err = s.repo.DeleteMatching(ctx, connectorId, purpose, stackLevel)
	}
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for cID, list := range s.profiles {
		kept := list[:0]
		for _, p := range list {
			if matches(p, cID, id, connectorId, purpose, stackLevel) {
				continue
			}
			kept = append(kept, p)
		}
		s.profiles[cID] = kept
	}
	return removed, nil
}

// matches implements ClearChargingProfile.req's filter semantics: a
// profile matches when every supplied filter agrees, and absent filters
// are treated as wildcards rather than excluding the profile — so all
// filters nil matches every profile (spec §4.4.1: "all absent ⇒ wipe
// everything"), not none of them.
func matches(p types.ChargingProfile, connID int, id, connectorId *int, purpose *types.ChargingProfilePurpose, stackLevel *int) bool {
	if id != nil {
		return p.ChargingProfileId == *id
	}
	if connectorId != nil && connID != *connectorId {
		return false
	}
	if purpose != nil && p.ChargingProfilePurpose != *purpose {
		return false
	}
	if stackLevel != nil && p.StackLevel != *stackLevel {
		return false
	}
	return true
}

// Cleanup removes every non-recurring profile whose validTo has passed,
// meant to be run periodically off a timer (spec §4.4 Cleanup).
func (s *Store) Cleanup(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var expired []types.ChargingProfile
	for connID, list := range s.profiles {
		kept := list[:0]
		for _, p := range list {
			if p.ChargingProfileKind != types.ChargingProfileKindRecurring && p.ValidTo != nil && p.ValidTo.Before(now) {
				expired = append(expired, p)
				continue
			}
			kept = append(kept, p)
		}
		s.profiles[connID] = kept
	}
	s.mu.Unlock()

	for _, p := range expired {
		if _, err := s.repo.DeleteByID(ctx, p.ChargingProfileId); err != nil {
			s.log.WithError(err).WithField("profileId", p.ChargingProfileId).Warn("failed to delete expired charging profile")
		}
	}
}

// profilesForConnector returns a defensive copy of connID's installed
// profiles plus connector-0's, for fallback lookups.
func (s *Store) profilesForConnector(connID int) []types.ChargingProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]types.ChargingProfile(nil), s.profiles[connID]...)
	if connID != 0 {
		out = append(out, s.profiles[0]...)
	}
	return out
}
