// Package messages defines the typed request/response payloads for the
// subset of OCPP 1.6J actions this station implements, plus the action
// registry the dispatcher uses to marshal/unmarshal by name.
package messages

import "reflect"

// Action names, as carried in the third element of a CALL frame.
const (
	ActionAuthorize            = "Authorize"
	ActionBootNotification     = "BootNotification"
	ActionHeartbeat            = "Heartbeat"
	ActionStartTransaction     = "StartTransaction"
	ActionStopTransaction      = "StopTransaction"
	ActionMeterValues          = "MeterValues"
	ActionStatusNotification   = "StatusNotification"
	ActionDiagnosticsStatusNotification = "DiagnosticsStatusNotification"
	ActionChangeAvailability   = "ChangeAvailability"
	ActionChangeConfiguration  = "ChangeConfiguration"
	ActionGetConfiguration     = "GetConfiguration"
	ActionClearCache           = "ClearCache"
	ActionRemoteStartTransaction = "RemoteStartTransaction"
	ActionRemoteStopTransaction  = "RemoteStopTransaction"
	ActionReset                = "Reset"
	ActionUnlockConnector      = "UnlockConnector"
	ActionDataTransfer         = "DataTransfer"
	ActionTriggerMessage       = "TriggerMessage"
	ActionSendLocalList        = "SendLocalList"
	ActionGetLocalListVersion  = "GetLocalListVersion"
	ActionSetChargingProfile   = "SetChargingProfile"
	ActionClearChargingProfile = "ClearChargingProfile"
	ActionGetCompositeSchedule = "GetCompositeSchedule"
)

// typePair records the request/response Go types behind an action name.
type typePair struct {
	request  reflect.Type
	response reflect.Type
}

var registry = map[string]typePair{
	ActionAuthorize:            {reflect.TypeOf(AuthorizeReq{}), reflect.TypeOf(AuthorizeConf{})},
	ActionBootNotification:     {reflect.TypeOf(BootNotificationReq{}), reflect.TypeOf(BootNotificationConf{})},
	ActionHeartbeat:            {reflect.TypeOf(HeartbeatReq{}), reflect.TypeOf(HeartbeatConf{})},
	ActionStartTransaction:     {reflect.TypeOf(StartTransactionReq{}), reflect.TypeOf(StartTransactionConf{})},
	ActionStopTransaction:      {reflect.TypeOf(StopTransactionReq{}), reflect.TypeOf(StopTransactionConf{})},
	ActionMeterValues:          {reflect.TypeOf(MeterValuesReq{}), reflect.TypeOf(MeterValuesConf{})},
	ActionStatusNotification:   {reflect.TypeOf(StatusNotificationReq{}), reflect.TypeOf(StatusNotificationConf{})},
	ActionDiagnosticsStatusNotification: {reflect.TypeOf(DiagnosticsStatusNotificationReq{}), reflect.TypeOf(DiagnosticsStatusNotificationConf{})},
	ActionChangeAvailability:   {reflect.TypeOf(ChangeAvailabilityReq{}), reflect.TypeOf(ChangeAvailabilityConf{})},
	ActionChangeConfiguration:  {reflect.TypeOf(ChangeConfigurationReq{}), reflect.TypeOf(ChangeConfigurationConf{})},
	ActionGetConfiguration:     {reflect.TypeOf(GetConfigurationReq{}), reflect.TypeOf(GetConfigurationConf{})},
	ActionClearCache:           {reflect.TypeOf(ClearCacheReq{}), reflect.TypeOf(ClearCacheConf{})},
	ActionRemoteStartTransaction: {reflect.TypeOf(RemoteStartTransactionReq{}), reflect.TypeOf(RemoteStartTransactionConf{})},
	ActionRemoteStopTransaction:  {reflect.TypeOf(RemoteStopTransactionReq{}), reflect.TypeOf(RemoteStopTransactionConf{})},
	ActionReset:                {reflect.TypeOf(ResetReq{}), reflect.TypeOf(ResetConf{})},
	ActionUnlockConnector:      {reflect.TypeOf(UnlockConnectorReq{}), reflect.TypeOf(UnlockConnectorConf{})},
	ActionDataTransfer:         {reflect.TypeOf(DataTransferReq{}), reflect.TypeOf(DataTransferConf{})},
	ActionTriggerMessage:       {reflect.TypeOf(TriggerMessageReq{}), reflect.TypeOf(TriggerMessageConf{})},
	ActionSendLocalList:        {reflect.TypeOf(SendLocalListReq{}), reflect.TypeOf(SendLocalListConf{})},
	ActionGetLocalListVersion:  {reflect.TypeOf(GetLocalListVersionReq{}), reflect.TypeOf(GetLocalListVersionConf{})},
	ActionSetChargingProfile:   {reflect.TypeOf(SetChargingProfileReq{}), reflect.TypeOf(SetChargingProfileConf{})},
	ActionClearChargingProfile: {reflect.TypeOf(ClearChargingProfileReq{}), reflect.TypeOf(ClearChargingProfileConf{})},
	ActionGetCompositeSchedule: {reflect.TypeOf(GetCompositeScheduleReq{}), reflect.TypeOf(GetCompositeScheduleConf{})},
}

// RequestType returns the Go type backing the request payload of action,
// and whether the action is known.
func RequestType(action string) (reflect.Type, bool) {
	p, ok := registry[action]
	return p.request, ok
}

// ResponseType returns the Go type backing the response payload of action,
// and whether the action is known.
func ResponseType(action string) (reflect.Type, bool) {
	p, ok := registry[action]
	return p.response, ok
}

// NewRequest allocates a zero-valued request payload for action.
func NewRequest(action string) (any, bool) {
	t, ok := RequestType(action)
	if !ok {
		return nil, false
	}
	return reflect.New(t).Interface(), true
}

// NewResponse allocates a zero-valued response payload for action.
func NewResponse(action string) (any, bool) {
	t, ok := ResponseType(action)
	if !ok {
		return nil, false
	}
	return reflect.New(t).Interface(), true
}
