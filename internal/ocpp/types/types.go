// Package types holds the OCPP 1.6J data model shared by every message and
// by the components that reason about it (spec §3).
package types

import "time"

// IdTag is an opaque credential identifier, case-sensitive, <= 20 chars.
type IdTag string

// AuthorizationStatus is the outcome carried by an IdTagInfo.
type AuthorizationStatus string

const (
	AuthorizationStatusAccepted      AuthorizationStatus = "Accepted"
	AuthorizationStatusBlocked       AuthorizationStatus = "Blocked"
	AuthorizationStatusExpired       AuthorizationStatus = "Expired"
	AuthorizationStatusInvalid       AuthorizationStatus = "Invalid"
	AuthorizationStatusConcurrentTx  AuthorizationStatus = "ConcurrentTx"
)

// IdTagInfo is returned by Authorize/StartTransaction and stored in local
// list entries.
type IdTagInfo struct {
	Status      AuthorizationStatus `json:"status"`
	ExpiryDate  *time.Time          `json:"expiryDate,omitempty"`
	ParentIdTag *IdTag              `json:"parentIdTag,omitempty"`
}

// ChargePointStatus is a connector state machine state (spec §4.7).
type ChargePointStatus string

const (
	StatusAvailable     ChargePointStatus = "Available"
	StatusPreparing     ChargePointStatus = "Preparing"
	StatusCharging      ChargePointStatus = "Charging"
	StatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	StatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	StatusFinishing     ChargePointStatus = "Finishing"
	StatusReserved      ChargePointStatus = "Reserved"
	StatusUnavailable   ChargePointStatus = "Unavailable"
	StatusFaulted       ChargePointStatus = "Faulted"
)

// ChargePointErrorCode accompanies a StatusNotification.
type ChargePointErrorCode string

const NoError ChargePointErrorCode = "NoError"

// ChargingProfilePurpose selects which policy a profile represents.
type ChargingProfilePurpose string

const (
	ChargePointMaxProfile ChargingProfilePurpose = "ChargePointMaxProfile"
	TxDefaultProfile      ChargingProfilePurpose = "TxDefaultProfile"
	TxProfile             ChargingProfilePurpose = "TxProfile"
)

// ChargingProfileKindType is the schedule's recurrence/anchoring mode.
type ChargingProfileKindType string

const (
	ChargingProfileKindAbsolute  ChargingProfileKindType = "Absolute"
	ChargingProfileKindRecurring ChargingProfileKindType = "Recurring"
	ChargingProfileKindRelative  ChargingProfileKindType = "Relative"
)

// RecurrencyKind is the period used to repeat a Recurring schedule.
type RecurrencyKind string

const (
	RecurrencyDaily  RecurrencyKind = "Daily"
	RecurrencyWeekly RecurrencyKind = "Weekly"
)

// ChargingRateUnit is the unit a limit is expressed in.
type ChargingRateUnit string

const (
	ChargingRateUnitW ChargingRateUnit = "W"
	ChargingRateUnitA ChargingRateUnit = "A"
)

// ChargingSchedulePeriod is one segment of a ChargingSchedule.
type ChargingSchedulePeriod struct {
	StartPeriod   int     `json:"startPeriod"`
	Limit         float64 `json:"limit"`
	NumberPhases  *int    `json:"numberPhases,omitempty"`
}

// ChargingSchedule is an ordered list of limit periods.
type ChargingSchedule struct {
	Duration           *int                     `json:"duration,omitempty"`
	StartSchedule      *time.Time               `json:"startSchedule,omitempty"`
	ChargingRateUnit    ChargingRateUnit         `json:"chargingRateUnit"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod"`
	MinChargingRate     *float64                 `json:"minChargingRate,omitempty"`
}

// ChargingProfile is a stacked, time-windowed power/current limit curve.
type ChargingProfile struct {
	ChargingProfileId      int                    `json:"chargingProfileId"`
	TransactionId          *int                   `json:"transactionId,omitempty"`
	StackLevel             int                    `json:"stackLevel"`
	ChargingProfilePurpose ChargingProfilePurpose `json:"chargingProfilePurpose"`
	ChargingProfileKind    ChargingProfileKindType `json:"chargingProfileKind"`
	RecurrencyKind         *RecurrencyKind         `json:"recurrencyKind,omitempty"`
	ValidFrom              *time.Time              `json:"validFrom,omitempty"`
	ValidTo                *time.Time              `json:"validTo,omitempty"`
	ChargingSchedule       ChargingSchedule        `json:"chargingSchedule"`

	// ConnectorId is not part of the OCPP wire payload (it comes from the
	// enclosing SetChargingProfile request) but is persisted alongside the
	// profile since the store keys on it.
	ConnectorId int `json:"-"`
}

// SmartChargingSetpoint is the effective limit at a given instant.
type SmartChargingSetpoint struct {
	Value        float64          `json:"value"`
	Unit         ChargingRateUnit `json:"unit"`
	NumberPhases int              `json:"numberPhases"`
}

// SampledValue is one metered reading inside a MeterValue.
type SampledValue struct {
	Value     string `json:"value"`
	Context   string `json:"context,omitempty"`
	Format    string `json:"format,omitempty"`
	Measurand string `json:"measurand,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Location  string `json:"location,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

// MeterValue is a timestamped batch of SampledValues.
type MeterValue struct {
	Timestamp    time.Time      `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

// MessageTrigger identifies the message a TriggerMessage request asks for.
type MessageTrigger string

const (
	TriggerBootNotification          MessageTrigger = "BootNotification"
	TriggerDiagnosticsStatusNotification MessageTrigger = "DiagnosticsStatusNotification"
	TriggerFirmwareStatusNotification MessageTrigger = "FirmwareStatusNotification"
	TriggerHeartbeat                 MessageTrigger = "Heartbeat"
	TriggerMeterValues                MessageTrigger = "MeterValues"
	TriggerStatusNotification         MessageTrigger = "StatusNotification"
)

// DiagnosticsStatus reports the progress of a diagnostics file upload.
type DiagnosticsStatus string

const (
	DiagnosticsStatusIdle         DiagnosticsStatus = "Idle"
	DiagnosticsStatusUploaded     DiagnosticsStatus = "Uploaded"
	DiagnosticsStatusUploadFailed DiagnosticsStatus = "UploadFailed"
	DiagnosticsStatusUploading    DiagnosticsStatus = "Uploading"
)

// Reason is why a transaction stopped.
type Reason string

const (
	ReasonLocal          Reason = "Local"
	ReasonEVDisconnected Reason = "EVDisconnected"
	ReasonRemote         Reason = "Remote"
	ReasonOther          Reason = "Other"
)
