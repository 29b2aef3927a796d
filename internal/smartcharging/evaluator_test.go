package smartcharging

import (
	"testing"
	"time"

	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
)

func newTestStore(profiles map[int][]types.ChargingProfile) *Store {
	return &Store{profiles: profiles, pending: make(map[int][]types.ChargingProfile)}
}

func flatProfile(id, connID, stackLevel int, purpose types.ChargingProfilePurpose, limit float64, unit types.ChargingRateUnit) types.ChargingProfile {
	return types.ChargingProfile{
		ChargingProfileId:      id,
		ConnectorId:            connID,
		StackLevel:             stackLevel,
		ChargingProfilePurpose: purpose,
		ChargingProfileKind:    types.ChargingProfileKindAbsolute,
		ChargingSchedule: types.ChargingSchedule{
			StartSchedule:    timePtr(time.Now().Add(-time.Hour)),
			ChargingRateUnit: unit,
			ChargingSchedulePeriod: []types.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: limit},
			},
		},
	}
}

func timePtr(t time.Time) *time.Time { return &t }

// TestGetSetpointStackedProfiles exercises spec §8 scenario 5: a
// ChargePointMaxProfile at stack level 0 limiting the whole station to
// 32A, plus a per-connector TxDefaultProfile at stack level 1 limiting
// connector 1 to 16A, should yield a connector setpoint of 16A and a
// charge-point setpoint of 32A.
func TestGetSetpointStackedProfiles(t *testing.T) {
	now := time.Now()
	cpMax := flatProfile(1, 0, 0, types.ChargePointMaxProfile, 32, types.ChargingRateUnitA)
	txDefault := flatProfile(2, 1, 1, types.TxDefaultProfile, 16, types.ChargingRateUnitA)

	s := newTestStore(map[int][]types.ChargingProfile{
		0: {cpMax},
		1: {txDefault},
	})

	cpSetpoint, connSetpoint := s.GetSetpoint(1, ConnectorInfo{}, now, types.ChargingRateUnitA)
	if cpSetpoint == nil || cpSetpoint.Value != 32 {
		t.Fatalf("cpSetpoint = %+v, want 32A", cpSetpoint)
	}
	if connSetpoint == nil || connSetpoint.Value != 16 {
		t.Fatalf("connSetpoint = %+v, want 16A", connSetpoint)
	}
}

func TestGetSetpointNoProfilesReturnsNil(t *testing.T) {
	s := newTestStore(map[int][]types.ChargingProfile{})
	cp, conn := s.GetSetpoint(1, ConnectorInfo{}, time.Now(), types.ChargingRateUnitA)
	if cp != nil || conn != nil {
		t.Fatalf("expected nil setpoints with no installed profiles, got cp=%+v conn=%+v", cp, conn)
	}
}

// TestGetSetpointTxProfileBeatsTxDefaultAtSameStackLevel covers the tie
// break in highestActive: a TxProfile must win over a TxDefaultProfile at
// an equal stack level.
func TestGetSetpointTxProfileBeatsTxDefaultAtSameStackLevel(t *testing.T) {
	now := time.Now()
	txId := 7
	txDefault := flatProfile(1, 1, 0, types.TxDefaultProfile, 10, types.ChargingRateUnitA)
	txProfile := flatProfile(2, 1, 0, types.TxProfile, 20, types.ChargingRateUnitA)
	txProfile.TransactionId = &txId

	s := newTestStore(map[int][]types.ChargingProfile{1: {txDefault, txProfile}})

	_, connSetpoint := s.GetSetpoint(1, ConnectorInfo{TransactionId: &txId}, now, types.ChargingRateUnitA)
	if connSetpoint == nil || connSetpoint.Value != 20 {
		t.Fatalf("connSetpoint = %+v, want the TxProfile's 20A", connSetpoint)
	}
}

func TestGetSetpointHigherStackLevelWins(t *testing.T) {
	now := time.Now()
	low := flatProfile(1, 1, 0, types.TxDefaultProfile, 10, types.ChargingRateUnitA)
	high := flatProfile(2, 1, 5, types.TxDefaultProfile, 25, types.ChargingRateUnitA)

	s := newTestStore(map[int][]types.ChargingProfile{1: {low, high}})
	_, connSetpoint := s.GetSetpoint(1, ConnectorInfo{}, now, types.ChargingRateUnitA)
	if connSetpoint == nil || connSetpoint.Value != 25 {
		t.Fatalf("connSetpoint = %+v, want the higher stack level's 25A", connSetpoint)
	}
}

func TestGetSetpointOutsideValidityWindowIsIgnored(t *testing.T) {
	now := time.Now()
	p := flatProfile(1, 1, 0, types.TxDefaultProfile, 10, types.ChargingRateUnitA)
	future := now.Add(time.Hour)
	p.ValidFrom = &future

	s := newTestStore(map[int][]types.ChargingProfile{1: {p}})
	_, connSetpoint := s.GetSetpoint(1, ConnectorInfo{}, now, types.ChargingRateUnitA)
	if connSetpoint != nil {
		t.Fatalf("connSetpoint = %+v, want nil before ValidFrom", connSetpoint)
	}
}

// TestConvertAmpsToWatts checks the P = sqrt(3)*U*I*phases/3 relation.
func TestConvertAmpsToWatts(t *testing.T) {
	got := convert(16, types.ChargingRateUnitA, types.ChargingRateUnitW, 3)
	want := 1.7320508075688772 * NominalVoltage * 16 * 3 / 3
	if diff := got - want; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("convert() = %v, want %v", got, want)
	}
}

func TestConvertWattsToAmpsRoundTrip(t *testing.T) {
	watts := convert(16, types.ChargingRateUnitA, types.ChargingRateUnitW, 1)
	amps := convert(watts, types.ChargingRateUnitW, types.ChargingRateUnitA, 1)
	if diff := amps - 16; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("round trip = %v, want 16", amps)
	}
}

func TestConvertSameUnitIsIdentity(t *testing.T) {
	if got := convert(42, types.ChargingRateUnitA, types.ChargingRateUnitA, 1); got != 42 {
		t.Errorf("convert() = %v, want 42 unchanged", got)
	}
}

// TestRecurringScheduleWrapsToLatestOccurrence covers scheduleStartFor's
// Recurring-Daily branch: a StartSchedule far in the past must be rolled
// forward to the most recent daily occurrence, not used as-is.
func TestRecurringScheduleWrapsToLatestOccurrence(t *testing.T) {
	now := time.Now()
	daily := types.RecurrencyDaily
	p := types.ChargingProfile{
		ChargingProfileKind: types.ChargingProfileKindRecurring,
		RecurrencyKind:      &daily,
		ChargingSchedule: types.ChargingSchedule{
			StartSchedule:    timePtr(now.Add(-72 * time.Hour).Add(-5 * time.Minute)),
			ChargingRateUnit: types.ChargingRateUnitA,
			ChargingSchedulePeriod: []types.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: 10},
			},
		},
	}
	period, ok := activePeriod(p, ConnectorInfo{}, now)
	if !ok {
		t.Fatal("expected the recurring schedule to be active")
	}
	if period.Limit != 10 {
		t.Fatalf("Limit = %v, want 10", period.Limit)
	}
}

func TestRelativeScheduleAnchorsOnTransactionStart(t *testing.T) {
	now := time.Now()
	since := now.Add(-10 * time.Minute)
	p := types.ChargingProfile{
		ChargingProfileKind: types.ChargingProfileKindRelative,
		ChargingSchedule: types.ChargingSchedule{
			ChargingRateUnit: types.ChargingRateUnitA,
			ChargingSchedulePeriod: []types.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: 8},
				{StartPeriod: 900, Limit: 12},
			},
		},
	}
	period, ok := activePeriod(p, ConnectorInfo{Since: since}, now)
	if !ok {
		t.Fatal("expected the relative schedule to be active")
	}
	if period.Limit != 8 {
		t.Fatalf("Limit = %v, want 8 (10 minutes elapsed, before the 900s period boundary)", period.Limit)
	}
}
