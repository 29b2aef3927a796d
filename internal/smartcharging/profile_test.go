package smartcharging

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
	"github.com/chargepoint/ocpp16cp/internal/store"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newStoreWithRepo(t *testing.T) (*Store, *store.ProfileRepo) {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo, err := store.NewProfileRepo(db)
	if err != nil {
		t.Fatalf("NewProfileRepo: %v", err)
	}
	s, err := New(context.Background(), repo, testLog())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, repo
}

func TestInstallTxProfileDefersWithoutRunningTransaction(t *testing.T) {
	ctx := context.Background()
	s, _ := newStoreWithRepo(t)

	p := flatProfile(1, 1, 0, types.TxProfile, 16, types.ChargingRateUnitA)
	if err := s.Install(ctx, 1, p, false); err != nil {
		t.Fatalf("Install: %v", err)
	}

	cp, conn := s.GetSetpoint(1, ConnectorInfo{}, *p.ChargingSchedule.StartSchedule, types.ChargingRateUnitA)
	if cp != nil || conn != nil {
		t.Fatalf("expected no active setpoint for a pending TxProfile, got cp=%+v conn=%+v", cp, conn)
	}
}

func TestAssignPendingTxProfilesMaterializesQueuedProfile(t *testing.T) {
	ctx := context.Background()
	s, _ := newStoreWithRepo(t)

	p := flatProfile(1, 1, 0, types.TxProfile, 16, types.ChargingRateUnitA)
	if err := s.Install(ctx, 1, p, false); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := s.AssignPendingTxProfiles(ctx, 1, 42); err != nil {
		t.Fatalf("AssignPendingTxProfiles: %v", err)
	}

	txId := 42
	_, conn := s.GetSetpoint(1, ConnectorInfo{TransactionId: &txId}, *p.ChargingSchedule.StartSchedule, types.ChargingRateUnitA)
	if conn == nil || conn.Value != 16 {
		t.Fatalf("connSetpoint = %+v, want the materialized TxProfile's 16A", conn)
	}
}

func TestInstallReplacesSameStackLevel(t *testing.T) {
	ctx := context.Background()
	s, _ := newStoreWithRepo(t)

	first := flatProfile(1, 1, 0, types.TxDefaultProfile, 10, types.ChargingRateUnitA)
	if err := s.Install(ctx, 1, first, false); err != nil {
		t.Fatalf("Install (first): %v", err)
	}
	second := flatProfile(2, 1, 0, types.TxDefaultProfile, 20, types.ChargingRateUnitA)
	if err := s.Install(ctx, 1, second, false); err != nil {
		t.Fatalf("Install (second): %v", err)
	}

	if got := len(s.profiles[1]); got != 1 {
		t.Fatalf("len(profiles[1]) = %d, want 1 (same stack level should replace, not append)", got)
	}
	_, conn := s.GetSetpoint(1, ConnectorInfo{}, *second.ChargingSchedule.StartSchedule, types.ChargingRateUnitA)
	if conn == nil || conn.Value != 20 {
		t.Fatalf("connSetpoint = %+v, want the replacing profile's 20A", conn)
	}
}

func TestClearTxProfilesOnTransactionStop(t *testing.T) {
	ctx := context.Background()
	s, _ := newStoreWithRepo(t)

	txId := 5
	tx := flatProfile(1, 1, 0, types.TxProfile, 16, types.ChargingRateUnitA)
	tx.TransactionId = &txId
	if err := s.Install(ctx, 1, tx, true); err != nil {
		t.Fatalf("Install: %v", err)
	}
	def := flatProfile(2, 1, 0, types.TxDefaultProfile, 10, types.ChargingRateUnitA)
	if err := s.Install(ctx, 1, def, false); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if err := s.ClearTxProfiles(ctx, 1); err != nil {
		t.Fatalf("ClearTxProfiles: %v", err)
	}

	for _, p := range s.profiles[1] {
		if p.ChargingProfilePurpose == types.TxProfile {
			t.Fatalf("expected every TxProfile to be removed, found %+v", p)
		}
	}
	if len(s.profiles[1]) != 1 {
		t.Fatalf("expected the TxDefaultProfile to survive, len = %d", len(s.profiles[1]))
	}
}

// TestClearWithNoFiltersWipesEverything covers the fixed no-filter
// semantics of ClearChargingProfile.req: all filters nil must clear every
// installed profile, both in sqlite and in the in-memory index.
func TestClearWithNoFiltersWipesEverything(t *testing.T) {
	ctx := context.Background()
	s, _ := newStoreWithRepo(t)

	p1 := flatProfile(1, 1, 0, types.TxDefaultProfile, 10, types.ChargingRateUnitA)
	p2 := flatProfile(2, 2, 0, types.ChargePointMaxProfile, 32, types.ChargingRateUnitA)
	if err := s.Install(ctx, 1, p1, false); err != nil {
		t.Fatalf("Install p1: %v", err)
	}
	if err := s.Install(ctx, 0, p2, false); err != nil {
		t.Fatalf("Install p2: %v", err)
	}

	removed, err := s.Clear(ctx, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	for connID, list := range s.profiles {
		if len(list) != 0 {
			t.Fatalf("profiles[%d] still has %d entries after a no-filter Clear", connID, len(list))
		}
	}
}

func TestClearByIDOnlyRemovesMatchingProfile(t *testing.T) {
	ctx := context.Background()
	s, _ := newStoreWithRepo(t)

	p1 := flatProfile(1, 1, 0, types.TxDefaultProfile, 10, types.ChargingRateUnitA)
	p2 := flatProfile(2, 1, 1, types.TxDefaultProfile, 20, types.ChargingRateUnitA)
	if err := s.Install(ctx, 1, p1, false); err != nil {
		t.Fatalf("Install p1: %v", err)
	}
	if err := s.Install(ctx, 1, p2, false); err != nil {
		t.Fatalf("Install p2: %v", err)
	}

	id := 1
	removed, err := s.Clear(ctx, &id, nil, nil, nil)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if len(s.profiles[1]) != 1 || s.profiles[1][0].ChargingProfileId != 2 {
		t.Fatalf("expected only profile 2 to remain, got %+v", s.profiles[1])
	}
}
