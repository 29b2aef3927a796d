package smartcharging

import (
	"math"
	"time"

	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
)

// NominalVoltage is the configurable phase voltage used to convert
// between amps and watts (spec §4.4).
const NominalVoltage = 230.0

// GetSetpoint computes the charge-point setpoint (from connector 0's
// ChargePointMaxProfile stack) and the connector's own setpoint (from
// TxProfile/TxDefaultProfile), both evaluated at now.
func (s *Store) GetSetpoint(connID int, info ConnectorInfo, now time.Time, unit types.ChargingRateUnit) (cpSetpoint, connectorSetpoint *types.SmartChargingSetpoint) {
	cpProfiles := s.profilesForConnector(0)
	cpSetpoint = highestActive(cpProfiles, func(p types.ChargingProfile) bool {
		return p.ChargingProfilePurpose == types.ChargePointMaxProfile
	}, info, now, unit)

	connProfiles := s.profilesForConnector(connID)
	connectorSetpoint = highestActive(connProfiles, func(p types.ChargingProfile) bool {
		if p.ChargingProfilePurpose == types.TxProfile {
			return info.TransactionId != nil && p.TransactionId != nil && *p.TransactionId == *info.TransactionId
		}
		return p.ChargingProfilePurpose == types.TxDefaultProfile
	}, info, now, unit)

	return cpSetpoint, connectorSetpoint
}

// highestActive finds the active profile (satisfying filter) with the
// highest stack level, TxProfile winning ties against TxDefaultProfile,
// and returns its setpoint in unit.
func highestActive(profiles []types.ChargingProfile, filter func(types.ChargingProfile) bool, info ConnectorInfo, now time.Time, unit types.ChargingRateUnit) *types.SmartChargingSetpoint {
	var best *types.ChargingProfile
	var bestPeriod *types.ChargingSchedulePeriod

	for i := range profiles {
		p := &profiles[i]
		if !filter(*p) {
			continue
		}
		period, ok := activePeriod(*p, info, now)
		if !ok {
			continue
		}
		if best == nil || p.StackLevel > best.StackLevel ||
			(p.StackLevel == best.StackLevel && p.ChargingProfilePurpose == types.TxProfile && best.ChargingProfilePurpose == types.TxDefaultProfile) {
			best = p
			bestPeriod = &period
		}
	}

	if best == nil {
		return nil
	}

	numberPhases := 1
	if bestPeriod.NumberPhases != nil {
		numberPhases = *bestPeriod.NumberPhases
	}
	value := convert(bestPeriod.Limit, best.ChargingSchedule.ChargingRateUnit, unit, numberPhases)
	return &types.SmartChargingSetpoint{Value: value, Unit: unit, NumberPhases: numberPhases}
}

// activePeriod finds the schedule period in effect at now for profile p,
// per spec §4.4: validity window, transaction match (already filtered by
// the caller), schedule-start computation by kind, and the last period
// whose offset has elapsed but within duration if set.
func activePeriod(p types.ChargingProfile, info ConnectorInfo, now time.Time) (types.ChargingSchedulePeriod, bool) {
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return types.ChargingSchedulePeriod{}, false
	}
	if p.ValidTo != nil && !now.Before(*p.ValidTo) {
		return types.ChargingSchedulePeriod{}, false
	}

	scheduleStart, ok := scheduleStartFor(p, info, now)
	if !ok {
		return types.ChargingSchedulePeriod{}, false
	}

	elapsed := now.Sub(scheduleStart)
	if elapsed < 0 {
		return types.ChargingSchedulePeriod{}, false
	}
	if p.ChargingSchedule.Duration != nil && elapsed.Seconds() >= float64(*p.ChargingSchedule.Duration) {
		return types.ChargingSchedulePeriod{}, false
	}

	periods := p.ChargingSchedule.ChargingSchedulePeriod
	var active *types.ChargingSchedulePeriod
	for i := range periods {
		if float64(periods[i].StartPeriod) <= elapsed.Seconds() {
			active = &periods[i]
		} else {
			break
		}
	}
	if active == nil {
		return types.ChargingSchedulePeriod{}, false
	}
	return *active, true
}

// scheduleStartFor computes the schedule's anchor instant per the
// profile's kind.
func scheduleStartFor(p types.ChargingProfile, info ConnectorInfo, now time.Time) (time.Time, bool) {
	switch p.ChargingProfileKind {
	case types.ChargingProfileKindAbsolute:
		if p.ChargingSchedule.StartSchedule == nil {
			return time.Time{}, false
		}
		return *p.ChargingSchedule.StartSchedule, true

	case types.ChargingProfileKindRecurring:
		if p.ChargingSchedule.StartSchedule == nil || p.RecurrencyKind == nil {
			return time.Time{}, false
		}
		period := 24 * time.Hour
		if *p.RecurrencyKind == types.RecurrencyWeekly {
			period = 7 * 24 * time.Hour
		}
		start := *p.ChargingSchedule.StartSchedule
		if !start.Before(now) {
			return start, true
		}
		elapsed := now.Sub(start)
		k := math.Floor(elapsed.Seconds() / period.Seconds())
		return start.Add(time.Duration(k) * period), true

	case types.ChargingProfileKindRelative:
		if !info.Since.IsZero() {
			return info.Since, true
		}
		return now, true

	default:
		return time.Time{}, false
	}
}

// convert translates limit from 'from' units to 'to' units using the
// nominal phase voltage and three-phase power relation.
func convert(limit float64, from, to types.ChargingRateUnit, numberPhases int) float64 {
	if from == to {
		return limit
	}
	if from == types.ChargingRateUnitA && to == types.ChargingRateUnitW {
		return math.Sqrt(3) * NominalVoltage * limit * float64(numberPhases) / 3
	}
	if from == types.ChargingRateUnitW && to == types.ChargingRateUnitA {
		return limit * 3 / (math.Sqrt(3) * NominalVoltage * float64(numberPhases))
	}
	return limit
}
