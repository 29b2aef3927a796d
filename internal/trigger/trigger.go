// Package trigger implements the TriggerMessage dispatcher of spec
// §4.5: a per-MessageTrigger handler registry, with connector-id
// validation ahead of dispatch.
package trigger

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/chargepoint/ocpp16cp/internal/ocpperr"
	"github.com/chargepoint/ocpp16cp/internal/ocpp/messages"
	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
)

// Handler re-sends the message associated with trigger for connectorId,
// reporting whether it was able to.
type Handler func(ctx context.Context, trigger types.MessageTrigger, connectorId int) bool

// ConnectorValidator reports whether connectorId names a real connector
// (0 always means "the charge point itself").
type ConnectorValidator interface {
	IsValid(connectorId int) bool
}

// Dispatcher routes TriggerMessage.req to the handler registered for its
// requestedMessage.
type Dispatcher struct {
	connectors ConnectorValidator
	log        *logrus.Entry
	handlers   map[types.MessageTrigger]Handler
}

// New returns an empty Dispatcher.
func New(connectors ConnectorValidator, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{connectors: connectors, log: log, handlers: make(map[types.MessageTrigger]Handler)}
}

// Register binds trigger to fn, replacing any previous binding.
func (d *Dispatcher) Register(trigger types.MessageTrigger, fn Handler) {
	d.handlers[trigger] = fn
}

// Handle answers a TriggerMessage.req.
func (d *Dispatcher) Handle(ctx context.Context, req messages.TriggerMessageReq) (messages.TriggerMessageConf, error) {
	d.log.WithField("requestedMessage", req.RequestedMessage).Info("trigger message requested")

	handler, ok := d.handlers[req.RequestedMessage]
	if !ok {
		d.log.WithField("requestedMessage", req.RequestedMessage).Warn("trigger message not implemented")
		return messages.TriggerMessageConf{Status: messages.TriggerMessageNotImplemented}, nil
	}

	connectorId := 0
	if req.ConnectorId != nil {
		connectorId = *req.ConnectorId
	}
	if !d.connectors.IsValid(connectorId) {
		return messages.TriggerMessageConf{}, ocpperr.New(ocpperr.PropertyConstraintViolation, "invalid connector id")
	}

	if handler(ctx, req.RequestedMessage, connectorId) {
		return messages.TriggerMessageConf{Status: messages.TriggerMessageAccepted}, nil
	}
	return messages.TriggerMessageConf{Status: messages.TriggerMessageRejected}, nil
}
