package smartcharging

import (
	"context"
	"sort"
	"time"

	"github.com/chargepoint/ocpp16cp/internal/ocpp/messages"
	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
)

// HandleSetChargingProfile answers SetChargingProfile.req.
func (s *Store) HandleSetChargingProfile(ctx context.Context, req messages.SetChargingProfileReq, hasRunningTx bool) (messages.SetChargingProfileConf, error) {
	if req.ChargingProfile.ChargingProfilePurpose == types.ChargePointMaxProfile && req.ConnectorId != 0 {
		return messages.SetChargingProfileConf{Status: messages.ChargingProfileStatusRejected}, nil
	}
	if err := s.Install(ctx, req.ConnectorId, req.ChargingProfile, hasRunningTx); err != nil {
		return messages.SetChargingProfileConf{}, err
	}
	return messages.SetChargingProfileConf{Status: messages.ChargingProfileStatusAccepted}, nil
}

// HandleClearChargingProfile answers ClearChargingProfile.req.
func (s *Store) HandleClearChargingProfile(ctx context.Context, req messages.ClearChargingProfileReq) (messages.ClearChargingProfileConf, error) {
	removed, err := s.Clear(ctx, req.Id, req.ConnectorId, req.ChargingProfilePurpose, req.StackLevel)
	if err != nil {
		return messages.ClearChargingProfileConf{}, err
	}
	if removed == 0 {
		return messages.ClearChargingProfileConf{Status: messages.ClearChargingProfileUnknown}, nil
	}
	return messages.ClearChargingProfileConf{Status: messages.ClearChargingProfileAccepted}, nil
}

// HandleGetCompositeSchedule answers GetCompositeSchedule.req by
// stepping the evaluator across [now, now+duration] at every boundary
// where the active limit changes, and coalescing equal-valued runs into
// a minimal period list.
func (s *Store) HandleGetCompositeSchedule(ctx context.Context, req messages.GetCompositeScheduleReq, info ConnectorInfo, now time.Time) (messages.GetCompositeScheduleConf, error) {
	unit := types.ChargingRateUnitA
	if req.ChargingRateUnit != nil {
		unit = *req.ChargingRateUnit
	}

	boundaries := s.boundaries(req.ConnectorId, now, time.Duration(req.Duration)*time.Second)

	var periods []types.ChargingSchedulePeriod
	var lastValue *types.SmartChargingSetpoint
	for _, offset := range boundaries {
		t := now.Add(time.Duration(offset) * time.Second)
		_, connSetpoint := s.GetSetpoint(req.ConnectorId, info, t, unit)
		if connSetpoint == nil {
			lastValue = nil
			continue
		}
		if lastValue != nil && lastValue.Value == connSetpoint.Value && lastValue.NumberPhases == connSetpoint.NumberPhases {
			continue
		}
		lastValue = connSetpoint
		numberPhases := connSetpoint.NumberPhases
		periods = append(periods, types.ChargingSchedulePeriod{
			StartPeriod:  offset,
			Limit:        connSetpoint.Value,
			NumberPhases: &numberPhases,
		})
	}

	if len(periods) == 0 {
		return messages.GetCompositeScheduleConf{Status: messages.GetCompositeScheduleRejected}, nil
	}

	connID := req.ConnectorId
	schedule := &types.ChargingSchedule{
		Duration:               &req.Duration,
		StartSchedule:          &now,
		ChargingRateUnit:       unit,
		ChargingSchedulePeriod: periods,
	}
	return messages.GetCompositeScheduleConf{
		Status:           messages.GetCompositeScheduleAccepted,
		ConnectorId:      &connID,
		ScheduleStart:    &now,
		ChargingSchedule: schedule,
	}, nil
}

// boundaries collects every distinct period-start offset (in seconds,
// relative to now) contributed by profiles applicable to connID within
// the requested window, sorted ascending, always including 0.
func (s *Store) boundaries(connID int, now time.Time, window time.Duration) []int {
	set := map[int]struct{}{0: {}}
	end := now.Add(window)

	consider := func(p types.ChargingProfile) {
		start, ok := scheduleStartFor(p, ConnectorInfo{}, now)
		if !ok {
			return
		}
		for _, period := range p.ChargingSchedule.ChargingSchedulePeriod {
			t := start.Add(time.Duration(period.StartPeriod) * time.Second)
			if t.Before(now) || t.After(end) {
				continue
			}
			set[int(t.Sub(now).Seconds())] = struct{}{}
		}
	}

	for _, p := range s.profilesForConnector(connID) {
		consider(p)
	}

	out := make([]int, 0, len(set))
	for offset := range set {
		out = append(out, offset)
	}
	sort.Ints(out)
	return out
}
