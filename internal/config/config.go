// Package config is the OCPP standardized configuration key/value store
// of spec §6: GetConfiguration/ChangeConfiguration against a fixed set
// of supported keys, persisted through internal/store, with the
// SecurityProfile downgrade guard and the reboot that follows raising
// SecurityProfile to BasicSecurityProfile, adapted from the teacher's
// ChangeConfiguration handler.
package config

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/chargepoint/ocpp16cp/internal/ocpp/messages"
	"github.com/chargepoint/ocpp16cp/internal/store"
)

// Security profile ordinals, matching the teacher's constants.go.
const (
	NoSecurityProfile = iota
	BasicSecurityProfile
	BasicSecurityWithTLSProfile
)

// supportedKeys is the full set of OCPP standard configuration keys this
// charge point recognizes, carried over from the teacher's
// supportedConfigurationKeys map.
var supportedKeys = map[string]struct{}{
	"AuthorizeRemoteTxRequests":               {},
	"AuthorizationCacheEnabled":               {},
	"ClockAlignedDataInterval":                {},
	"ConnectionTimeOut":                       {},
	"ConnectorPhaseRotation":                  {},
	"GetConfigurationMaxKeys":                 {},
	"HeartbeatInterval":                       {},
	"LocalAuthorizeOffline":                   {},
	"LocalPreAuthorize":                       {},
	"MeterValuesAlignedData":                  {},
	"MeterValuesSampledData":                  {},
	"MeterValueSampleInterval":                {},
	"NumberOfConnectors":                      {},
	"ResetRetries":                            {},
	"StopTransactionOnEVSideDisconnect":       {},
	"StopTransactionOnInvalidId":              {},
	"StopTxnAlignedData":                      {},
	"StopTxnSampledData":                      {},
	"SupportedFeatureProfiles":                {},
	"TransactionMessageAttempts":              {},
	"TransactionMessageRetryInterval":         {},
	"UnlockConnectorOnEVSideDisconnect":       {},
	"WebSocketPingInterval":                   {},
	"LocalAuthListEnabled":                    {},
	"LocalAuthListMaxLength":                  {},
	"SendLocalListMaxLength":                  {},
	"ChargeProfileMaxStackLevel":              {},
	"ChargingScheduleAllowedChargingRateUnit": {},
	"ChargingScheduleMaxPeriods":              {},
	"MaxChargingProfilesInstalled":            {},
	"SupportedFileTransferProtocols":          {},
	"SecurityProfile":                         {},
	"CpoName":                                 {},
	"AdditionalRootCertificateCheck":          {},
	"CertificateStoreMaxLength":               {},
	"AuthorizationKey":                        {},
}

// readonlyKeys cannot be changed by ChangeConfiguration.req, only seeded
// at bootstrap.
var readonlyKeys = map[string]struct{}{
	"SupportedFeatureProfiles": {},
	"GetConfigurationMaxKeys":  {},
}

// Defaults seeds a fresh installation; CreateIfAbsent means a restart
// never clobbers an operator- or CSMS-changed value.
var Defaults = map[string]string{
	"AuthorizeRemoteTxRequests":         "true",
	"AuthorizationCacheEnabled":         "true",
	"ClockAlignedDataInterval":          "0",
	"ConnectionTimeOut":                 "30",
	"GetConfigurationMaxKeys":           "50",
	"HeartbeatInterval":                 "86400",
	"LocalAuthorizeOffline":             "true",
	"LocalPreAuthorize":                 "false",
	"MeterValueSampleInterval":          "60",
	"NumberOfConnectors":                "1",
	"ResetRetries":                      "3",
	"StopTransactionOnEVSideDisconnect": "true",
	"StopTransactionOnInvalidId":        "true",
	"SupportedFeatureProfiles":          "Core,FirmwareManagement,LocalAuthListManagement,SmartCharging,RemoteTrigger",
	"TransactionMessageAttempts":        "3",
	"TransactionMessageRetryInterval":   "60",
	"UnlockConnectorOnEVSideDisconnect": "true",
	"WebSocketPingInterval":             "30",
	"LocalAuthListEnabled":              "true",
	"LocalAuthListMaxLength":            "100",
	"SendLocalListMaxLength":            "20",
	"ChargeProfileMaxStackLevel":        "10",
	"ChargingScheduleAllowedChargingRateUnit": "Current",
	"ChargingScheduleMaxPeriods":               "24",
	"MaxChargingProfilesInstalled":             "10",
	"SecurityProfile":                          "0",
}

// Store is the runtime-mutable OCPP configuration.
type Store struct {
	repo       *store.ConfigRepo
	log        *logrus.Entry
	onChanged  func(key, value string)
	onReboot   func()
}

// New bootstraps supported keys with Defaults (skipping ones already
// present) and returns a Store.
func New(ctx context.Context, repo *store.ConfigRepo, log *logrus.Entry, onChanged func(key, value string), onReboot func()) (*Store, error) {
	for key, value := range Defaults {
		_, readonly := readonlyKeys[key]
		if err := repo.CreateIfAbsent(ctx, key, value, readonly); err != nil {
			return nil, fmt.Errorf("config: seed %s: %w", key, err)
		}
	}
	return &Store{repo: repo, log: log, onChanged: onChanged, onReboot: onReboot}, nil
}

// Get returns a single key's value.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	return s.repo.Get(ctx, key)
}

// GetInt returns a key's value parsed as an int, 0 if unset or
// unparsable.
func (s *Store) GetInt(ctx context.Context, key string) int {
	v, ok, err := s.repo.Get(ctx, key)
	if err != nil || !ok {
		return 0
	}
	i, _ := strconv.Atoi(v)
	return i
}

// GetBool returns a key's value parsed as a bool, false if unset.
func (s *Store) GetBool(ctx context.Context, key string) bool {
	v, ok, err := s.repo.Get(ctx, key)
	if err != nil || !ok {
		return false
	}
	b, _ := strconv.ParseBool(v)
	return b
}

// All returns every stored key/value pair, for the control server's
// diagnostic listing.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	all, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(all))
	for k, v := range all {
		out[k] = v.Value
	}
	return out, nil
}

// HandleGetConfiguration answers GetConfiguration.req.
func (s *Store) HandleGetConfiguration(ctx context.Context, req messages.GetConfigurationReq) (messages.GetConfigurationConf, error) {
	all, err := s.repo.All(ctx)
	if err != nil {
		return messages.GetConfigurationConf{}, err
	}

	keys := req.Key
	if len(keys) == 0 {
		for k := range supportedKeys {
			if _, stored := all[k]; stored {
				keys = append(keys, k)
			}
		}
	}

	var conf messages.GetConfigurationConf
	for _, key := range keys {
		if _, ok := supportedKeys[key]; !ok {
			conf.UnknownKey = append(conf.UnknownKey, key)
			continue
		}
		entry, ok := all[key]
		if !ok {
			conf.UnknownKey = append(conf.UnknownKey, key)
			continue
		}
		value := entry.Value
		conf.ConfigurationKey = append(conf.ConfigurationKey, messages.ConfigurationKey{
			Key:      key,
			Readonly: entry.Readonly,
			Value:    &value,
		})
	}
	return conf, nil
}

// HandleChangeConfiguration answers ChangeConfiguration.req, including
// the SecurityProfile downgrade guard carried over from the teacher's
// handler. Only a change of SecurityProfile to BasicSecurityProfile
// checks AuthorizationKey and triggers onReboot; other upgrades are
// stored and answered Accepted.
func (s *Store) HandleChangeConfiguration(ctx context.Context, req messages.ChangeConfigurationReq) (messages.ChangeConfigurationConf, error) {
	if _, ok := supportedKeys[req.Key]; !ok {
		return messages.ChangeConfigurationConf{Status: messages.ConfigurationStatusNotSupported}, nil
	}
	if _, ok := readonlyKeys[req.Key]; ok {
		return messages.ChangeConfigurationConf{Status: messages.ConfigurationStatusRejected}, nil
	}
	if readonly, err := s.repo.IsReadonly(ctx, req.Key); err == nil && readonly {
		return messages.ChangeConfigurationConf{Status: messages.ConfigurationStatusRejected}, nil
	}

	requiresReboot := false
	if req.Key == "SecurityProfile" {
		newProfile, _ := strconv.Atoi(req.Value)
		currentProfile := s.GetInt(ctx, "SecurityProfile")
		if newProfile < currentProfile {
			s.log.WithField("key", req.Key).Warn("rejected configuration change: cannot set a lower security profile")
			return messages.ChangeConfigurationConf{Status: messages.ConfigurationStatusRejected}, nil
		}
		if newProfile == BasicSecurityProfile {
			password, _, err := s.repo.Get(ctx, "AuthorizationKey")
			if err != nil {
				return messages.ChangeConfigurationConf{}, err
			}
			if password == "" {
				s.log.WithField("key", req.Key).Warn("rejected configuration change: not all security profile keys are set")
				return messages.ChangeConfigurationConf{Status: messages.ConfigurationStatusRejected}, nil
			}
			requiresReboot = true
		}
	}

	if err := s.repo.Set(ctx, req.Key, req.Value); err != nil {
		s.log.WithError(err).WithField("key", req.Key).Error("error updating configuration")
		return messages.ChangeConfigurationConf{Status: messages.ConfigurationStatusRejected}, err
	}

	if s.onChanged != nil {
		s.onChanged(req.Key, req.Value)
	}

	if requiresReboot {
		s.log.Info("security profile change requires reboot")
		if s.onReboot != nil {
			go s.onReboot()
		}
		return messages.ChangeConfigurationConf{Status: messages.ConfigurationStatusRebootRequired}, nil
	}

	return messages.ChangeConfigurationConf{Status: messages.ConfigurationStatusAccepted}, nil
}
