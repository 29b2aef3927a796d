// Package scenario is a demo events.Handler backed by synthetic meter
// readings instead of real hardware, for running this station without a
// physical EVSE attached. Grounded on the teacher's
// charging_scenario.go, which drove its fake Energy/Power/Voltage/
// Current/Temperature/SoC counters the same way (go-faker random walks,
// each measurand independently and randomly present in a sample) but
// kept them in badger; here they live in an in-memory struct since they
// are demo state, not anything that needs to survive a restart.
package scenario

import (
	"math/rand"
	"strconv"
	"sync"

	"github.com/go-faker/faker/v4"

	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
)

// Measurand names, matching the OCPP 1.6 Measurand enumeration.
const (
	MeasurandEnergy      = "Energy.Active.Import.Register"
	MeasurandPower       = "Power.Active.Import"
	MeasurandCurrent     = "Current.Import"
	MeasurandVoltage     = "Voltage"
	MeasurandTemperature = "Temperature"
	MeasurandSoC         = "SoC"
)

// Simulator is a fake EVSE: an events.Handler that accepts every idTag
// and fabricates plausible meter readings on demand.
type Simulator struct {
	mu sync.Mutex

	energyWh     int
	powerW       int
	voltageV     int
	currentA     int
	temperatureC int
	batteryPct   int
}

// New returns a Simulator with a plausible starting battery level.
func New() *Simulator {
	return &Simulator{batteryPct: fakeNumber(10, 40)}
}

// Tick advances every reading by a random increment; meant to be called
// once per MeterValueSampleInterval while a transaction is active, the
// same cadence the teacher drove its badger counters at.
func (s *Simulator) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.energyWh += fakeNumber(200, 1000)
	s.temperatureC = fakeNumber(20, 50)
	s.batteryPct = minInt(100, s.batteryPct+fakeNumber(0, 2))
	s.powerW, s.voltageV, s.currentA = generateFakePAV()
}

// ConnectorStatusChanged, TransactionStarted, TransactionStopped and
// MeterValue are no-ops: the simulator only answers queries, it never
// needs to react to them.
func (s *Simulator) ConnectorStatusChanged(int, types.ChargePointStatus, types.ChargePointErrorCode) {}
func (s *Simulator) TransactionStarted(int, int)                                                     {}
func (s *Simulator) TransactionStopped(int, types.Reason)                                             {}
func (s *Simulator) MeterValue(int, []types.SampledValue)                                             {}

// AuthorizationRequested accepts every idTag, standing in for a swipe at
// an EVSE with no attached access-control hardware.
func (s *Simulator) AuthorizationRequested(types.IdTag) types.IdTagInfo {
	return types.IdTagInfo{Status: types.AuthorizationStatusAccepted}
}

// GetMeterValue answers with the current reading for measurand.
// Energy is always reported (billing needs a monotonic reading at
// StartTransaction/StopTransaction); the instantaneous measurands are
// only sometimes present in a given sample, mirroring the teacher's
// randomTrigger gating in sendMeterValues.
func (s *Simulator) GetMeterValue(connectorId int, measurand string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch measurand {
	case MeasurandEnergy:
		return strconv.Itoa(s.energyWh), true
	case MeasurandPower:
		if !randomTrigger() {
			return "", false
		}
		return strconv.Itoa(s.powerW), true
	case MeasurandCurrent:
		if !randomTrigger() {
			return "", false
		}
		return strconv.Itoa(s.currentA), true
	case MeasurandVoltage:
		if !randomTrigger() {
			return "", false
		}
		return strconv.Itoa(s.voltageV), true
	case MeasurandTemperature:
		if !randomTrigger() {
			return "", false
		}
		return strconv.Itoa(s.temperatureC), true
	case MeasurandSoC:
		if !randomTrigger() {
			return "", false
		}
		return strconv.Itoa(s.batteryPct), true
	default:
		return "", false
	}
}

// generateFakePAV fabricates a (power, voltage, current) triple within a
// plausible AC/DC charging envelope, the same three brackets the
// teacher's generateFakePAV used.
func generateFakePAV() (power, voltage, current int) {
	power = fakeNumber(1_000, 360_000)
	switch {
	case power < 3_300:
		voltage = 120
		current = fakeNumber(1, 12)
	case power >= 3_300 && power < 19_200:
		voltage = fakeNumber(208, 240)
		current = fakeNumber(16, 80)
	default:
		voltage = fakeNumber(380, 800)
		current = fakeNumber(80, 500)
	}
	return power, voltage, current
}

func fakeNumber(min, max int) int {
	v, err := faker.RandomInt(min, max, 1)
	if err != nil || len(v) == 0 {
		return min
	}
	return v[0]
}

func randomTrigger() bool {
	return rand.Intn(2) == 0
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
