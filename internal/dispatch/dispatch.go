// Package dispatch is the action-name -> handler registry of spec §4.6:
// it binds every component's typed Handle* method onto internal/rpc's
// generic, JSON-payload Handler signature, and owns the handful of
// inbound actions (ChangeAvailability, Reset, UnlockConnector,
// DataTransfer) too small to deserve their own package, grounded on the
// teacher's basic_handler.go stubs and transactions_handler.go's
// OnUnlockConnector.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chargepoint/ocpp16cp/internal/authorize"
	"github.com/chargepoint/ocpp16cp/internal/config"
	"github.com/chargepoint/ocpp16cp/internal/connector"
	"github.com/chargepoint/ocpp16cp/internal/ocpp/messages"
	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
	"github.com/chargepoint/ocpp16cp/internal/ocpperr"
	"github.com/chargepoint/ocpp16cp/internal/rpc"
	"github.com/chargepoint/ocpp16cp/internal/smartcharging"
	"github.com/chargepoint/ocpp16cp/internal/transaction"
	"github.com/chargepoint/ocpp16cp/internal/trigger"
)

// Registry holds every collaborator an inbound CALL might need.
type Registry struct {
	Arena        *connector.Arena
	Config       *config.Store
	Authorize    *authorize.Manager
	Profiles     *smartcharging.Store
	Transactions *transaction.Manager
	Trigger      *trigger.Dispatcher
	// Reboot, when set, is invoked asynchronously by a Reset.req; nil
	// means Reset always answers Rejected.
	Reboot func(hard bool)
	Log    *logrus.Entry
}

// RegisterAll binds every action this station answers to inbound CALLs
// onto peer.
func (r *Registry) RegisterAll(peer *rpc.Peer) error {
	binds := map[string]rpc.Handler{
		messages.ActionChangeAvailability:   bind(r.handleChangeAvailability),
		messages.ActionChangeConfiguration:  bind(r.Config.HandleChangeConfiguration),
		messages.ActionGetConfiguration:     bind(r.Config.HandleGetConfiguration),
		messages.ActionClearCache:           bind(r.Authorize.HandleClearCache),
		messages.ActionRemoteStartTransaction: bind(r.Transactions.HandleRemoteStartTransaction),
		messages.ActionRemoteStopTransaction:  bind(r.Transactions.HandleRemoteStopTransaction),
		messages.ActionReset:                bind(r.handleReset),
		messages.ActionUnlockConnector:      bind(r.handleUnlockConnector),
		messages.ActionDataTransfer:         bind(r.handleDataTransfer),
		messages.ActionTriggerMessage:       bind(r.Trigger.Handle),
		messages.ActionSendLocalList:        bind(r.Authorize.HandleSendLocalList),
		messages.ActionGetLocalListVersion:  bind(r.Authorize.HandleGetLocalListVersion),
		messages.ActionSetChargingProfile:   bind(r.handleSetChargingProfile),
		messages.ActionClearChargingProfile: bind(r.Profiles.HandleClearChargingProfile),
		messages.ActionGetCompositeSchedule: bind(r.handleGetCompositeSchedule),
	}
	for action, handler := range binds {
		if err := peer.RegisterHandler(action, handler); err != nil {
			return err
		}
	}
	return nil
}

// bind adapts a typed (ctx, Req) -> (Conf, error) method into rpc.Handler,
// so every component keeps writing ordinary typed Go instead of touching
// json.RawMessage.
func bind[Req any, Conf any](fn func(context.Context, Req) (Conf, error)) rpc.Handler {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req Req
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, ocpperr.New(ocpperr.FormationViolation, err.Error())
			}
		}
		return fn(ctx, req)
	}
}

func (r *Registry) handleChangeAvailability(_ context.Context, req messages.ChangeAvailabilityReq) (messages.ChangeAvailabilityConf, error) {
	c := r.Arena.Get(req.ConnectorId)
	if c == nil {
		return messages.ChangeAvailabilityConf{}, ocpperr.New(ocpperr.PropertyConstraintViolation, "invalid connector id")
	}
	scheduled := c.SetAvailability(req.Type == messages.AvailabilityOperative)
	r.Transactions.EmitStatus(req.ConnectorId)
	if scheduled {
		return messages.ChangeAvailabilityConf{Status: messages.AvailabilityStatusScheduled}, nil
	}
	return messages.ChangeAvailabilityConf{Status: messages.AvailabilityStatusAccepted}, nil
}

func (r *Registry) handleReset(_ context.Context, req messages.ResetReq) (messages.ResetConf, error) {
	if r.Reboot == nil {
		return messages.ResetConf{Status: messages.ResetStatusRejected}, nil
	}
	hard := req.Type == messages.ResetHard
	r.Log.WithField("hard", hard).Info("reset requested")
	go r.Reboot(hard)
	return messages.ResetConf{Status: messages.ResetStatusAccepted}, nil
}

func (r *Registry) handleUnlockConnector(ctx context.Context, req messages.UnlockConnectorReq) (messages.UnlockConnectorConf, error) {
	if req.ConnectorId == 0 {
		return messages.UnlockConnectorConf{Status: messages.UnlockStatusNotSupported}, nil
	}
	c := r.Arena.Get(req.ConnectorId)
	if c == nil {
		return messages.UnlockConnectorConf{Status: messages.UnlockStatusNotSupported}, nil
	}
	if _, running := c.IdTag(); running {
		if err := r.Transactions.StopLocal(ctx, req.ConnectorId, types.ReasonLocal); err != nil {
			r.Log.WithError(err).WithField("connectorId", req.ConnectorId).Warn("UnlockConnector failed to stop transaction")
			return messages.UnlockConnectorConf{Status: messages.UnlockStatusUnlockFailed}, nil
		}
	}
	return messages.UnlockConnectorConf{Status: messages.UnlockStatusUnlocked}, nil
}

func (r *Registry) handleDataTransfer(_ context.Context, req messages.DataTransferReq) (messages.DataTransferConf, error) {
	r.Log.WithField("vendorId", req.VendorId).WithField("messageId", req.MessageId).
		Debug("DataTransfer from an unrecognized vendor")
	return messages.DataTransferConf{Status: messages.DataTransferUnknownVendorId}, nil
}

func (r *Registry) handleSetChargingProfile(ctx context.Context, req messages.SetChargingProfileReq) (messages.SetChargingProfileConf, error) {
	hasRunningTx := false
	if c := r.Arena.Get(req.ConnectorId); c != nil {
		_, hasRunningTx = c.TransactionId()
	}
	return r.Profiles.HandleSetChargingProfile(ctx, req, hasRunningTx)
}

func (r *Registry) handleGetCompositeSchedule(ctx context.Context, req messages.GetCompositeScheduleReq) (messages.GetCompositeScheduleConf, error) {
	var info smartcharging.ConnectorInfo
	if c := r.Arena.Get(req.ConnectorId); c != nil {
		if txId, ok := c.TransactionId(); ok {
			info.TransactionId = &txId
			info.Since = c.TransactionStart()
		}
	}
	return r.Profiles.HandleGetCompositeSchedule(ctx, req, info, time.Now())
}
