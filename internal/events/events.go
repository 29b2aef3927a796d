// Package events defines the collaborator interface of spec §6: the
// callbacks the station-embedding code supplies so the control plane can
// notify the physical hardware layer of state changes and pull live
// metering data from it, grounded on the teacher's direct calls into its
// own badger-backed meter simulation (charging_scenario.go) generalized
// into an injected interface instead of package-level functions.
package events

import (
	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
)

// Handler is implemented by the code embedding this station. Its methods
// are never called from the RPC layer's I/O goroutine: inbound handlers
// and timer callbacks call them on the worker pool (internal/timer.Pool),
// while calls that start outside the pool, such as the control server's
// plug/swipe/stop endpoints, run on the caller's own goroutine.
type Handler interface {
	// ConnectorStatusChanged notifies the embedder that a connector's
	// state machine transitioned. It is called before the corresponding
	// StatusNotification, which is sent afterwards on its own goroutine.
	ConnectorStatusChanged(connectorId int, status types.ChargePointStatus, errorCode types.ChargePointErrorCode)

	// AuthorizationRequested asks the embedder for a decision on idTag.
	// No component of this module calls it: authorization is decided by
	// the three built-in authorities (local list, cache, central call)
	// alone. NopHandler returns Invalid.
	AuthorizationRequested(idTag types.IdTag) types.IdTagInfo

	// TransactionStarted notifies the embedder that connectorId now has
	// a confirmed transaction id, e.g. to energize the contactor.
	TransactionStarted(connectorId, transactionId int)

	// TransactionStopped notifies the embedder that connectorId's
	// transaction ended for reason, e.g. to de-energize the contactor.
	TransactionStopped(connectorId int, reason types.Reason)

	// MeterValue is called once per sample interval while a transaction
	// is active, so the embedder can record/export the reading; the
	// value itself is obtained through GetMeterValue.
	MeterValue(connectorId int, values []types.SampledValue)

	// GetMeterValue asks the embedder for the current reading of
	// measurand on connectorId. ok is false if the embedder has no
	// reading for that measurand right now.
	GetMeterValue(connectorId int, measurand string) (value string, ok bool)
}

// NopHandler is a Handler that does nothing and authorizes nobody; useful
// as a default when an embedder only cares about a subset of events.
type NopHandler struct{}

func (NopHandler) ConnectorStatusChanged(int, types.ChargePointStatus, types.ChargePointErrorCode) {}
func (NopHandler) AuthorizationRequested(types.IdTag) types.IdTagInfo {
	return types.IdTagInfo{Status: types.AuthorizationStatusInvalid}
}
func (NopHandler) TransactionStarted(int, int)             {}
func (NopHandler) TransactionStopped(int, types.Reason)    {}
func (NopHandler) MeterValue(int, []types.SampledValue)    {}
func (NopHandler) GetMeterValue(int, string) (string, bool) { return "", false }
