package messages

import (
	"time"

	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
)

// --- Authorize ---

type AuthorizeReq struct {
	IdTag types.IdTag `json:"idTag"`
}

type AuthorizeConf struct {
	IdTagInfo types.IdTagInfo `json:"idTagInfo"`
}

// --- BootNotification ---

type BootNotificationReq struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
	Iccid                   string `json:"iccid,omitempty"`
	MeterSerialNumber       string `json:"meterSerialNumber,omitempty"`
	MeterType               string `json:"meterType,omitempty"`
}

type RegistrationStatus string

const (
	RegistrationAccepted RegistrationStatus = "Accepted"
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationRejected RegistrationStatus = "Rejected"
)

type BootNotificationConf struct {
	Status      RegistrationStatus `json:"status"`
	CurrentTime time.Time          `json:"currentTime"`
	Interval    int                `json:"interval"`
}

// --- Heartbeat ---

type HeartbeatReq struct{}

type HeartbeatConf struct {
	CurrentTime time.Time `json:"currentTime"`
}

// --- StartTransaction ---

type StartTransactionReq struct {
	ConnectorId   int         `json:"connectorId"`
	IdTag         types.IdTag `json:"idTag"`
	MeterStart    int         `json:"meterStart"`
	ReservationId *int        `json:"reservationId,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

type StartTransactionConf struct {
	IdTagInfo     types.IdTagInfo `json:"idTagInfo"`
	TransactionId int             `json:"transactionId"`
}

// --- StopTransaction ---

type StopTransactionReq struct {
	IdTag           *types.IdTag       `json:"idTag,omitempty"`
	MeterStop       int                `json:"meterStop"`
	Timestamp       time.Time          `json:"timestamp"`
	TransactionId   int                `json:"transactionId"`
	Reason          types.Reason       `json:"reason,omitempty"`
	TransactionData []types.MeterValue `json:"transactionData,omitempty"`
}

type StopTransactionConf struct {
	IdTagInfo *types.IdTagInfo `json:"idTagInfo,omitempty"`
}

// --- MeterValues ---

type MeterValuesReq struct {
	ConnectorId   int                `json:"connectorId"`
	TransactionId *int               `json:"transactionId,omitempty"`
	MeterValue    []types.MeterValue `json:"meterValue"`
}

type MeterValuesConf struct{}

// --- StatusNotification ---

type StatusNotificationReq struct {
	ConnectorId     int                       `json:"connectorId"`
	ErrorCode       types.ChargePointErrorCode `json:"errorCode"`
	Status          types.ChargePointStatus    `json:"status"`
	Info            string                    `json:"info,omitempty"`
	Timestamp       *time.Time                `json:"timestamp,omitempty"`
	VendorId        string                    `json:"vendorId,omitempty"`
	VendorErrorCode string                    `json:"vendorErrorCode,omitempty"`
}

type StatusNotificationConf struct{}

// --- DiagnosticsStatusNotification ---

type DiagnosticsStatusNotificationReq struct {
	Status types.DiagnosticsStatus `json:"status"`
}

type DiagnosticsStatusNotificationConf struct{}

// --- ChangeAvailability ---

type AvailabilityType string

const (
	AvailabilityInoperative AvailabilityType = "Inoperative"
	AvailabilityOperative   AvailabilityType = "Operative"
)

type ChangeAvailabilityReq struct {
	ConnectorId int              `json:"connectorId"`
	Type        AvailabilityType `json:"type"`
}

type AvailabilityStatus string

const (
	AvailabilityStatusAccepted  AvailabilityStatus = "Accepted"
	AvailabilityStatusRejected  AvailabilityStatus = "Rejected"
	AvailabilityStatusScheduled AvailabilityStatus = "Scheduled"
)

type ChangeAvailabilityConf struct {
	Status AvailabilityStatus `json:"status"`
}

// --- ChangeConfiguration / GetConfiguration ---

type ChangeConfigurationReq struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type ConfigurationStatus string

const (
	ConfigurationStatusAccepted      ConfigurationStatus = "Accepted"
	ConfigurationStatusRejected      ConfigurationStatus = "Rejected"
	ConfigurationStatusRebootRequired ConfigurationStatus = "RebootRequired"
	ConfigurationStatusNotSupported  ConfigurationStatus = "NotSupported"
)

type ChangeConfigurationConf struct {
	Status ConfigurationStatus `json:"status"`
}

type GetConfigurationReq struct {
	Key []string `json:"key,omitempty"`
}

type ConfigurationKey struct {
	Key      string  `json:"key"`
	Readonly bool    `json:"readonly"`
	Value    *string `json:"value,omitempty"`
}

type GetConfigurationConf struct {
	ConfigurationKey []ConfigurationKey `json:"configurationKey,omitempty"`
	UnknownKey       []string           `json:"unknownKey,omitempty"`
}

// --- ClearCache ---

type ClearCacheReq struct{}

type ClearCacheStatus string

const (
	ClearCacheStatusAccepted ClearCacheStatus = "Accepted"
	ClearCacheStatusRejected ClearCacheStatus = "Rejected"
)

type ClearCacheConf struct {
	Status ClearCacheStatus `json:"status"`
}

// --- RemoteStartTransaction / RemoteStopTransaction ---

type RemoteStartTransactionReq struct {
	ConnectorId     *int                   `json:"connectorId,omitempty"`
	IdTag           types.IdTag            `json:"idTag"`
	ChargingProfile *types.ChargingProfile `json:"chargingProfile,omitempty"`
}

type RemoteStartStopStatus string

const (
	RemoteStartStopAccepted RemoteStartStopStatus = "Accepted"
	RemoteStartStopRejected RemoteStartStopStatus = "Rejected"
)

type RemoteStartTransactionConf struct {
	Status RemoteStartStopStatus `json:"status"`
}

type RemoteStopTransactionReq struct {
	TransactionId int `json:"transactionId"`
}

type RemoteStopTransactionConf struct {
	Status RemoteStartStopStatus `json:"status"`
}

// --- Reset ---

type ResetType string

const (
	ResetHard ResetType = "Hard"
	ResetSoft ResetType = "Soft"
)

type ResetReq struct {
	Type ResetType `json:"type"`
}

type ResetStatus string

const (
	ResetStatusAccepted ResetStatus = "Accepted"
	ResetStatusRejected ResetStatus = "Rejected"
)

type ResetConf struct {
	Status ResetStatus `json:"status"`
}

// --- UnlockConnector ---

type UnlockConnectorReq struct {
	ConnectorId int `json:"connectorId"`
}

type UnlockStatus string

const (
	UnlockStatusUnlocked     UnlockStatus = "Unlocked"
	UnlockStatusUnlockFailed UnlockStatus = "UnlockFailed"
	UnlockStatusNotSupported UnlockStatus = "NotSupported"
)

type UnlockConnectorConf struct {
	Status UnlockStatus `json:"status"`
}

// --- DataTransfer ---

type DataTransferReq struct {
	VendorId  string `json:"vendorId"`
	MessageId string `json:"messageId,omitempty"`
	Data      string `json:"data,omitempty"`
}

type DataTransferStatus string

const (
	DataTransferAccepted       DataTransferStatus = "Accepted"
	DataTransferRejected       DataTransferStatus = "Rejected"
	DataTransferUnknownMessageId DataTransferStatus = "UnknownMessageId"
	DataTransferUnknownVendorId  DataTransferStatus = "UnknownVendorId"
)

type DataTransferConf struct {
	Status DataTransferStatus `json:"status"`
	Data   string             `json:"data,omitempty"`
}

// --- TriggerMessage ---

type TriggerMessageReq struct {
	RequestedMessage types.MessageTrigger `json:"requestedMessage"`
	ConnectorId      *int                 `json:"connectorId,omitempty"`
}

type TriggerMessageStatus string

const (
	TriggerMessageAccepted      TriggerMessageStatus = "Accepted"
	TriggerMessageRejected      TriggerMessageStatus = "Rejected"
	TriggerMessageNotImplemented TriggerMessageStatus = "NotImplemented"
)

type TriggerMessageConf struct {
	Status TriggerMessageStatus `json:"status"`
}

// --- SendLocalList / GetLocalListVersion ---

type UpdateType string

const (
	UpdateTypeFull    UpdateType = "Full"
	UpdateTypePartial UpdateType = "Partial"
)

type AuthorizationData struct {
	IdTag     types.IdTag      `json:"idTag"`
	IdTagInfo *types.IdTagInfo `json:"idTagInfo,omitempty"`
}

type SendLocalListReq struct {
	ListVersion            int                 `json:"listVersion"`
	LocalAuthorizationList []AuthorizationData `json:"localAuthorizationList,omitempty"`
	UpdateType             UpdateType          `json:"updateType"`
}

type UpdateStatus string

const (
	UpdateStatusAccepted        UpdateStatus = "Accepted"
	UpdateStatusFailed          UpdateStatus = "Failed"
	UpdateStatusNotSupported    UpdateStatus = "NotSupported"
	UpdateStatusVersionMismatch UpdateStatus = "VersionMismatch"
)

type SendLocalListConf struct {
	Status UpdateStatus `json:"status"`
}

type GetLocalListVersionReq struct{}

type GetLocalListVersionConf struct {
	ListVersion int `json:"listVersion"`
}

// --- SetChargingProfile / ClearChargingProfile / GetCompositeSchedule ---

type SetChargingProfileReq struct {
	ConnectorId     int                  `json:"connectorId"`
	ChargingProfile types.ChargingProfile `json:"csChargingProfiles"`
}

type ChargingProfileStatus string

const (
	ChargingProfileStatusAccepted    ChargingProfileStatus = "Accepted"
	ChargingProfileStatusRejected    ChargingProfileStatus = "Rejected"
	ChargingProfileStatusNotSupported ChargingProfileStatus = "NotSupported"
)

type SetChargingProfileConf struct {
	Status ChargingProfileStatus `json:"status"`
}

type ClearChargingProfileReq struct {
	Id             *int                          `json:"id,omitempty"`
	ConnectorId    *int                          `json:"connectorId,omitempty"`
	ChargingProfilePurpose *types.ChargingProfilePurpose `json:"chargingProfilePurpose,omitempty"`
	StackLevel     *int                          `json:"stackLevel,omitempty"`
}

type ClearChargingProfileStatus string

const (
	ClearChargingProfileAccepted ClearChargingProfileStatus = "Accepted"
	ClearChargingProfileUnknown  ClearChargingProfileStatus = "Unknown"
)

type ClearChargingProfileConf struct {
	Status ClearChargingProfileStatus `json:"status"`
}

type GetCompositeScheduleReq struct {
	ConnectorId      int                    `json:"connectorId"`
	Duration         int                    `json:"duration"`
	ChargingRateUnit *types.ChargingRateUnit `json:"chargingRateUnit,omitempty"`
}

type GetCompositeScheduleStatus string

const (
	GetCompositeScheduleAccepted GetCompositeScheduleStatus = "Accepted"
	GetCompositeScheduleRejected GetCompositeScheduleStatus = "Rejected"
)

type GetCompositeScheduleConf struct {
	Status           GetCompositeScheduleStatus `json:"status"`
	ConnectorId      *int                       `json:"connectorId,omitempty"`
	ScheduleStart    *time.Time                 `json:"scheduleStart,omitempty"`
	ChargingSchedule *types.ChargingSchedule    `json:"chargingSchedule,omitempty"`
}
