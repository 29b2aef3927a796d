// Package connector models the per-connector state machine of spec
// §4.7: plug/fault/meter events, authorization, transaction start/stop,
// reservation and ChangeAvailability all drive transitions, each
// emitting a StatusNotification.
package connector

import (
	"sync"
	"time"

	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
)

// Connector is one socket/plug; id 0 denotes the station as a whole.
type Connector struct {
	mu sync.Mutex

	ID            int
	status        types.ChargePointStatus
	errorCode     types.ChargePointErrorCode
	available     bool
	currentTxId   *int
	currentIdTag  *types.IdTag
	reservationId *int
	txStart       time.Time

	meterWh int
}

// NewConnector returns a Connector starting in the Available state.
func NewConnector(id int) *Connector {
	return &Connector{ID: id, status: types.StatusAvailable, errorCode: types.NoError, available: true}
}

// Status returns the connector's current status and error code.
func (c *Connector) Status() (types.ChargePointStatus, types.ChargePointErrorCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.errorCode
}

// TransactionId returns the active transaction id, if any.
func (c *Connector) TransactionId() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentTxId == nil {
		return 0, false
	}
	return *c.currentTxId, true
}

// IdTag returns the idTag bound to the active transaction, if any.
func (c *Connector) IdTag() (types.IdTag, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentIdTag == nil {
		return "", false
	}
	return *c.currentIdTag, true
}

// TransactionStart returns when the active transaction began.
func (c *Connector) TransactionStart() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txStart
}

// setStatus transitions status/errorCode under lock and returns whether
// anything actually changed (the caller only emits a StatusNotification
// on a real change).
func (c *Connector) setStatus(status types.ChargePointStatus, errCode types.ChargePointErrorCode) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == status && c.errorCode == errCode {
		return false
	}
	c.status = status
	c.errorCode = errCode
	return true
}

// PlugIn transitions Available -> Preparing on a physical plug-in event.
func (c *Connector) PlugIn() bool {
	c.mu.Lock()
	cur := c.status
	c.mu.Unlock()
	if cur != types.StatusAvailable {
		return false
	}
	return c.setStatus(types.StatusPreparing, types.NoError)
}

// PlugOut transitions back to Available/Finishing depending on whether a
// transaction is active, on a physical unplug event.
func (c *Connector) PlugOut() bool {
	c.mu.Lock()
	hasTx := c.currentIdTag != nil
	c.mu.Unlock()
	if hasTx {
		return c.setStatus(types.StatusFinishing, types.NoError)
	}
	return c.setStatus(types.StatusAvailable, types.NoError)
}

// Fault transitions to Faulted with the given error code; any state can
// fault.
func (c *Connector) Fault(errCode types.ChargePointErrorCode) bool {
	return c.setStatus(types.StatusFaulted, errCode)
}

// ClearFault returns the connector to Available after a fault clears.
func (c *Connector) ClearFault() bool {
	c.mu.Lock()
	cur := c.status
	c.mu.Unlock()
	if cur != types.StatusFaulted {
		return false
	}
	return c.setStatus(types.StatusAvailable, types.NoError)
}

// StartTransaction transitions to Charging from any state and records the
// session; txId is nil until StartTransaction.conf assigns one.
func (c *Connector) StartTransaction(idTag types.IdTag, start time.Time) bool {
	c.mu.Lock()
	c.currentIdTag = &idTag
	c.txStart = start
	c.mu.Unlock()
	return c.setStatus(types.StatusCharging, types.NoError)
}

// AssignTransactionId records the transaction id once StartTransaction.conf
// returns it.
func (c *Connector) AssignTransactionId(txId int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTxId = &txId
}

// SuspendEV transitions Charging -> SuspendedEV (EV stopped drawing
// current on its own).
func (c *Connector) SuspendEV() bool {
	return c.transitionFrom(types.StatusCharging, types.StatusSuspendedEV)
}

// SuspendEVSE transitions Charging -> SuspendedEVSE (station withheld
// current, e.g. a smart-charging limit dropped to zero).
func (c *Connector) SuspendEVSE() bool {
	return c.transitionFrom(types.StatusCharging, types.StatusSuspendedEVSE)
}

// ResumeCharging transitions a suspended connector back to Charging.
func (c *Connector) ResumeCharging() bool {
	c.mu.Lock()
	cur := c.status
	c.mu.Unlock()
	if cur != types.StatusSuspendedEV && cur != types.StatusSuspendedEVSE {
		return false
	}
	return c.setStatus(types.StatusCharging, types.NoError)
}

func (c *Connector) transitionFrom(from, to types.ChargePointStatus) bool {
	c.mu.Lock()
	cur := c.status
	c.mu.Unlock()
	if cur != from {
		return false
	}
	return c.setStatus(to, types.NoError)
}

// StopTransaction clears the session and transitions to Finishing.
func (c *Connector) StopTransaction() (txId int, idTag types.IdTag, ok bool) {
	c.mu.Lock()
	if c.currentTxId != nil {
		txId = *c.currentTxId
	}
	if c.currentIdTag != nil {
		idTag = *c.currentIdTag
		ok = true
	}
	c.currentTxId = nil
	c.currentIdTag = nil
	c.mu.Unlock()
	c.setStatus(types.StatusFinishing, types.NoError)
	return txId, idTag, ok
}

// Reserve marks the connector as Reserved for reservationId.
func (c *Connector) Reserve(reservationId int) bool {
	c.mu.Lock()
	cur := c.status
	c.mu.Unlock()
	if cur != types.StatusAvailable {
		return false
	}
	c.mu.Lock()
	c.reservationId = &reservationId
	c.mu.Unlock()
	return c.setStatus(types.StatusReserved, types.NoError)
}

// ReservationExpire drops a reservation with no matching StartTransaction.
func (c *Connector) ReservationExpire() bool {
	c.mu.Lock()
	c.reservationId = nil
	c.mu.Unlock()
	return c.transitionFrom(types.StatusReserved, types.StatusAvailable)
}

// SetAvailability implements ChangeAvailability: Inoperative forces
// Unavailable immediately if idle, or is deferred ("Scheduled") if a
// transaction is in progress; Operative always restores Available.
func (c *Connector) SetAvailability(operative bool) (scheduled bool) {
	c.mu.Lock()
	hasTx := c.currentIdTag != nil
	c.mu.Unlock()

	if operative {
		c.mu.Lock()
		c.available = true
		c.mu.Unlock()
		c.setStatus(types.StatusAvailable, types.NoError)
		return false
	}

	c.mu.Lock()
	c.available = false
	c.mu.Unlock()
	if hasTx {
		return true
	}
	c.setStatus(types.StatusUnavailable, types.NoError)
	return false
}

// IsAvailable reports the last ChangeAvailability outcome.
func (c *Connector) IsAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}
