// Package transaction owns the interlock of spec §4.7/§9 between a
// connector's state machine, the authorization subsystem, the
// smart-charging profile store and the durable FIFO: Manager is the
// TransactionManager the spec calls out as a raw-pointer tangle in the
// original and re-expresses here as one component holding a reference to
// the connector Arena, never a pointer into an individual Connector
// struct.
package transaction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chargepoint/ocpp16cp/internal/authorize"
	"github.com/chargepoint/ocpp16cp/internal/connector"
	"github.com/chargepoint/ocpp16cp/internal/events"
	"github.com/chargepoint/ocpp16cp/internal/fifo"
	"github.com/chargepoint/ocpp16cp/internal/ocpp/messages"
	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
	"github.com/chargepoint/ocpp16cp/internal/smartcharging"
)

// EnergyMeasurand is the measurand sampled for StartTransaction.meterStart
// and StopTransaction.meterStop, per spec §3's ChargingSchedule units.
const EnergyMeasurand = "Energy.Active.Import.Register"

// Manager ties a connector Arena to the authorization subsystem, the
// smart-charging profile store and the transaction FIFO.
type Manager struct {
	arena    *connector.Arena
	fifoQ    *fifo.Fifo
	authz    *authorize.Manager
	profiles *smartcharging.Store
	events   events.Handler
	sender   Sender
	log      *logrus.Entry

	authorizeRemote func() bool
	sampledKeys     func() []string

	mu          sync.Mutex
	pendingTxId map[uint32]int // fifo entry id -> connectorId, for StartTransaction entries awaiting an ack
}

// New builds a Manager. authorizeRemote reports the live value of the
// AuthorizeRemoteTxRequests configuration key; sampledKeys reports the
// live, comma-split value of MeterValuesSampledData.
func New(arena *connector.Arena, fifoQ *fifo.Fifo, authz *authorize.Manager, profiles *smartcharging.Store,
	ev events.Handler, sender Sender, authorizeRemote func() bool, sampledKeys func() []string, log *logrus.Entry) *Manager {
	return &Manager{
		arena:           arena,
		fifoQ:           fifoQ,
		authz:           authz,
		profiles:        profiles,
		events:          ev,
		sender:          sender,
		authorizeRemote: authorizeRemote,
		sampledKeys:     sampledKeys,
		log:             log,
		pendingTxId:     make(map[uint32]int),
	}
}

// OnAck should be wired as the RetryDriver's OnAck callback so StartTransaction
// responses can be correlated back to the connector that initiated them.
func (m *Manager) OnAck(id uint32, action string, response json.RawMessage) {
	if action != messages.ActionStartTransaction {
		return
	}
	m.mu.Lock()
	connectorId, ok := m.pendingTxId[id]
	delete(m.pendingTxId, id)
	m.mu.Unlock()
	if !ok {
		return
	}

	var conf messages.StartTransactionConf
	if err := json.Unmarshal(response, &conf); err != nil {
		m.log.WithError(err).WithField("connectorId", connectorId).Error("malformed StartTransaction.conf")
		return
	}

	c := m.arena.Get(connectorId)
	if c == nil {
		return
	}

	if conf.IdTagInfo.Status != types.AuthorizationStatusAccepted {
		m.log.WithField("connectorId", connectorId).WithField("status", conf.IdTagInfo.Status).
			Warn("central system rejected an already-started transaction")
		return
	}

	c.AssignTransactionId(conf.TransactionId)
	if err := m.profiles.AssignPendingTxProfiles(context.Background(), connectorId, conf.TransactionId); err != nil {
		m.log.WithError(err).WithField("connectorId", connectorId).Warn("failed to materialize pending TxProfiles")
	}
	if err := m.authz.UpdateCache(context.Background(), idTagOf(c), conf.IdTagInfo); err != nil {
		m.log.WithError(err).Warn("failed to refresh authorization cache after StartTransaction")
	}
	m.events.TransactionStarted(connectorId, conf.TransactionId)
	m.log.WithField("connectorId", connectorId).WithField("transactionId", conf.TransactionId).Info("transaction confirmed")
}

func idTagOf(c *connector.Connector) types.IdTag {
	tag, _ := c.IdTag()
	return tag
}

// RequestAuthorization is the entry point for a local idTag presentation
// (a swipe at the connector), satisfying the collaborator interface's
// authorizationRequested hook: it resolves idTag through the three
// authorities of spec §4.3 and, if accepted, starts a transaction.
func (m *Manager) RequestAuthorization(ctx context.Context, connectorId int, idTag types.IdTag) (types.IdTagInfo, error) {
	info, err := m.authz.Resolve(ctx, idTag)
	if err != nil {
		return types.IdTagInfo{}, err
	}
	if info.Status != types.AuthorizationStatusAccepted {
		return info, nil
	}
	if err := m.startLocal(ctx, connectorId, idTag); err != nil {
		return info, err
	}
	return info, nil
}

// startLocal transitions connectorId into Charging and durably enqueues
// the StartTransaction CALL; the transaction id itself isn't known until
// OnAck fires (spec §8 scenario 1: offline start, then reconcile on
// reconnect).
func (m *Manager) startLocal(ctx context.Context, connectorId int, idTag types.IdTag) error {
	c := m.arena.Get(connectorId)
	if c == nil {
		return fmt.Errorf("transaction: no such connector %d", connectorId)
	}
	if _, running := c.IdTag(); running {
		return fmt.Errorf("transaction: connector %d already has a running transaction", connectorId)
	}

	start := time.Now()
	meterStart, _ := m.meterValue(connectorId, EnergyMeasurand)

	c.StartTransaction(idTag, start)
	m.emitStatus(connectorId)

	req := messages.StartTransactionReq{
		ConnectorId: connectorId,
		IdTag:       idTag,
		MeterStart:  meterStart,
		Timestamp:   start,
	}
	id, err := m.fifoQ.Push(ctx, messages.ActionStartTransaction, req)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.pendingTxId[id] = connectorId
	m.mu.Unlock()
	return nil
}

// HandleRemoteStartTransaction answers RemoteStartTransaction.req.
func (m *Manager) HandleRemoteStartTransaction(ctx context.Context, req messages.RemoteStartTransactionReq) (messages.RemoteStartTransactionConf, error) {
	connectorId := 1
	if req.ConnectorId != nil {
		connectorId = *req.ConnectorId
	}
	c := m.arena.Get(connectorId)
	if c == nil {
		return messages.RemoteStartTransactionConf{Status: messages.RemoteStartStopRejected}, nil
	}
	if _, running := c.IdTag(); running {
		return messages.RemoteStartTransactionConf{Status: messages.RemoteStartStopRejected}, nil
	}

	if m.authorizeRemote() {
		info, err := m.authz.Resolve(ctx, req.IdTag)
		if err != nil {
			return messages.RemoteStartTransactionConf{}, err
		}
		if info.Status != types.AuthorizationStatusAccepted {
			return messages.RemoteStartTransactionConf{Status: messages.RemoteStartStopRejected}, nil
		}
	}

	if req.ChargingProfile != nil {
		if err := m.profiles.Install(ctx, connectorId, *req.ChargingProfile, false); err != nil {
			return messages.RemoteStartTransactionConf{}, err
		}
	}

	if err := m.startLocal(ctx, connectorId, req.IdTag); err != nil {
		m.log.WithError(err).Warn("RemoteStartTransaction failed to start locally")
		return messages.RemoteStartTransactionConf{Status: messages.RemoteStartStopRejected}, nil
	}
	return messages.RemoteStartTransactionConf{Status: messages.RemoteStartStopAccepted}, nil
}

// HandleRemoteStopTransaction answers RemoteStopTransaction.req.
func (m *Manager) HandleRemoteStopTransaction(ctx context.Context, req messages.RemoteStopTransactionReq) (messages.RemoteStopTransactionConf, error) {
	for _, c := range m.arena.All() {
		if txId, _, ok := txMatch(c, req.TransactionId); ok {
			if err := m.stopLocal(ctx, c.ID, types.ReasonRemote); err != nil {
				m.log.WithError(err).WithField("transactionId", txId).Warn("RemoteStopTransaction failed")
				return messages.RemoteStopTransactionConf{Status: messages.RemoteStartStopRejected}, nil
			}
			return messages.RemoteStopTransactionConf{Status: messages.RemoteStartStopAccepted}, nil
		}
	}
	return messages.RemoteStopTransactionConf{Status: messages.RemoteStartStopRejected}, nil
}

func txMatch(c *connector.Connector, transactionId int) (int, types.IdTag, bool) {
	txId, ok := c.TransactionId()
	if !ok || txId != transactionId {
		return 0, "", false
	}
	idTag, _ := c.IdTag()
	return txId, idTag, true
}

// StopLocal is the entry point for a physical/local stop (EV unplugged,
// a local stop button, etc.), satisfying spec §4.7's transaction-stop
// driven transition.
func (m *Manager) StopLocal(ctx context.Context, connectorId int, reason types.Reason) error {
	return m.stopLocal(ctx, connectorId, reason)
}

func (m *Manager) stopLocal(ctx context.Context, connectorId int, reason types.Reason) error {
	c := m.arena.Get(connectorId)
	if c == nil {
		return fmt.Errorf("transaction: no such connector %d", connectorId)
	}

	txId, idTag, ok := c.StopTransaction()
	if !ok {
		return fmt.Errorf("transaction: connector %d has no running transaction", connectorId)
	}
	m.emitStatus(connectorId)

	meterStop, _ := m.meterValue(connectorId, EnergyMeasurand)
	req := messages.StopTransactionReq{
		IdTag:         &idTag,
		MeterStop:     meterStop,
		Timestamp:     time.Now(),
		TransactionId: txId,
		Reason:        reason,
	}
	if _, err := m.fifoQ.Push(ctx, messages.ActionStopTransaction, req); err != nil {
		return err
	}

	if err := m.profiles.ClearTxProfiles(ctx, connectorId); err != nil {
		m.log.WithError(err).WithField("connectorId", connectorId).Warn("failed to clear TxProfiles on stop")
	}
	m.events.TransactionStopped(connectorId, reason)
	return nil
}

// SampleMeterValues is meant to be invoked by a periodic timer (spec §2
// item 1); it emits a transactional MeterValues CALL through the FIFO for
// every connector with an active transaction, per the
// MeterValuesSampledData configuration key.
func (m *Manager) SampleMeterValues(ctx context.Context) {
	keys := m.sampledKeys()
	if len(keys) == 0 {
		return
	}
	for _, c := range m.arena.All() {
		txId, running := c.TransactionId()
		if !running {
			continue
		}

		var samples []types.SampledValue
		for _, measurand := range keys {
			value, ok := m.meterValueString(c.ID, measurand)
			if !ok {
				continue
			}
			samples = append(samples, types.SampledValue{Value: value, Measurand: measurand, Context: "Sample.Periodic"})
		}
		if len(samples) == 0 {
			continue
		}

		id := txId
		req := messages.MeterValuesReq{
			ConnectorId:   c.ID,
			TransactionId: &id,
			MeterValue:    []types.MeterValue{{Timestamp: time.Now(), SampledValue: samples}},
		}
		if _, err := m.fifoQ.Push(ctx, messages.ActionMeterValues, req); err != nil {
			m.log.WithError(err).WithField("connectorId", c.ID).Error("failed to enqueue MeterValues")
			continue
		}
		m.events.MeterValue(c.ID, samples)
	}
}

func (m *Manager) meterValue(connectorId int, measurand string) (int, bool) {
	v, ok := m.meterValueString(connectorId, measurand)
	if !ok {
		return 0, false
	}
	var n int
	_, err := fmt.Sscanf(v, "%d", &n)
	return n, err == nil
}

func (m *Manager) meterValueString(connectorId int, measurand string) (string, bool) {
	return m.events.GetMeterValue(connectorId, measurand)
}

// EmitStatus sends a best-effort StatusNotification CALL for connectorId
// and notifies the embedder, for callers outside the transaction flow
// (ChangeAvailability, plug/fault events) that change connector state.
func (m *Manager) EmitStatus(connectorId int) {
	m.emitStatus(connectorId)
}

// emitStatus sends a best-effort StatusNotification CALL (not through
// the FIFO: it can be lost without compromising billing, per spec §4.7)
// and notifies the embedder.
func (m *Manager) emitStatus(connectorId int) {
	c := m.arena.Get(connectorId)
	if c == nil {
		return
	}
	status, errCode := c.Status()
	m.events.ConnectorStatusChanged(connectorId, status, errCode)

	go func() {
		req := messages.StatusNotificationReq{ConnectorId: connectorId, ErrorCode: errCode, Status: status}
		callCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := m.sender.Call(callCtx, messages.ActionStatusNotification, req); err != nil {
			m.log.WithError(err).WithField("connectorId", connectorId).WithField("status", status).
				Debug("StatusNotification delivery failed (not retried)")
		}
	}()
}

// SplitMeasurands parses a comma-separated MeterValuesSampledData value
// into its measurand keys, trimming whitespace and dropping empties.
func SplitMeasurands(raw string) []string {
	var out []string
	for _, k := range strings.Split(raw, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}
