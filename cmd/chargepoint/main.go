// Command chargepoint runs one OCPP 1.6J charge-point-side control
// plane: it dials a central system, answers every inbound CALL this
// station supports, and drains its transaction request FIFO head-first
// whenever connected, per spec §2/§5. Flag handling, the badger/sqlite
// store bootstrap and the graceful-shutdown signal dance are adapted
// from the teacher's main.go; startControlServer's control endpoints live
// in control.go.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/sirupsen/logrus"

	"github.com/chargepoint/ocpp16cp/internal/authcache"
	"github.com/chargepoint/ocpp16cp/internal/authorize"
	"github.com/chargepoint/ocpp16cp/internal/config"
	"github.com/chargepoint/ocpp16cp/internal/connector"
	"github.com/chargepoint/ocpp16cp/internal/dispatch"
	"github.com/chargepoint/ocpp16cp/internal/essentiallist"
	"github.com/chargepoint/ocpp16cp/internal/fifo"
	"github.com/chargepoint/ocpp16cp/internal/kv"
	"github.com/chargepoint/ocpp16cp/internal/logging"
	"github.com/chargepoint/ocpp16cp/internal/ocpp/messages"
	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
	"github.com/chargepoint/ocpp16cp/internal/rpc"
	"github.com/chargepoint/ocpp16cp/internal/scenario"
	"github.com/chargepoint/ocpp16cp/internal/smartcharging"
	"github.com/chargepoint/ocpp16cp/internal/store"
	"github.com/chargepoint/ocpp16cp/internal/timer"
	"github.com/chargepoint/ocpp16cp/internal/transaction"
	"github.com/chargepoint/ocpp16cp/internal/trigger"
)

const appVersion = "1.0.0"

func init() {
	time.Local = time.UTC
}

// station bundles everything wired up at startup so the (re)connect
// path and the control server can reach it without package-level
// globals, unlike the teacher's flat var block.
type station struct {
	id            string
	centralSystem string
	log           *logrus.Entry

	sqliteDB *store.DB
	kvStore  *kv.Store

	cfg          *config.Store
	arena        *connector.Arena
	fifoQ        *fifo.Fifo
	profiles     *smartcharging.Store
	localList    *essentiallist.List
	cache        *authcache.Cache
	authorizeMgr *authorize.Manager
	triggerDisp  *trigger.Dispatcher
	sim          *scenario.Simulator
	txManager    *transaction.Manager

	pool     *timer.Pool
	timers   *timer.Service
	retry    *transaction.RetryDriver
	retryCtx context.Context
	cancel   context.CancelFunc

	peerMu sync.Mutex
	peer   *rpc.Peer
}

func main() {
	var (
		chargePointID string
		centralSystem string
		controlPort   string
		dbPath        string
		connectors    int
		vendor        string
		model         string
		showVersion   bool
	)

	flag.StringVar(&chargePointID, "cp", "", "charge point id")
	flag.StringVar(&centralSystem, "cs", "", "central system url")
	flag.StringVar(&controlPort, "control-port", "", "control server port (default: random)")
	flag.StringVar(&dbPath, "db", "db", "data directory")
	flag.IntVar(&connectors, "connectors", 1, "number of connectors")
	flag.StringVar(&vendor, "vendor", "", "chargePointVendor (default: generated)")
	flag.StringVar(&model, "model", "", "chargePointModel (default: generated)")
	flag.BoolVar(&showVersion, "version", false, "show version")
	flag.Parse()

	if showVersion {
		fmt.Println("chargepoint", appVersion)
		os.Exit(0)
	}
	if chargePointID == "" {
		fmt.Fprintln(os.Stderr, "missing charge point id")
		flag.Usage()
		os.Exit(1)
	}
	if centralSystem == "" {
		fmt.Fprintln(os.Stderr, "missing central system url")
		flag.Usage()
		os.Exit(1)
	}

	log := logging.New(chargePointID)
	root := filepath.Join(dbPath, chargePointID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		log.WithError(err).Fatal("failed to create data directory")
	}

	s, err := newStation(chargePointID, centralSystem, connectors, root, log)
	if err != nil {
		log.WithError(err).Fatal("failed to start station")
	}
	defer s.close()

	port := s.startControlServer(controlPort)
	log = log.WithField("control_port", port)

	if err := s.connect(vendor, model); err != nil {
		log.WithError(err).Fatal("failed to connect to central system")
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
	go func() {
		<-signals
		fmt.Println("forcefully shutting down")
		os.Exit(2)
	}()

	fmt.Println("gracefully shutting down")
	s.disconnect()
}

func newStation(id, centralSystem string, connectors int, root string, log *logrus.Entry) (*station, error) {
	kvStore, err := kv.Open(filepath.Join(root, "kv"))
	if err != nil {
		return nil, fmt.Errorf("open kv store: %w", err)
	}

	sqliteDB, err := store.Open(filepath.Join(root, "station.db"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	configRepo, err := store.NewConfigRepo(sqliteDB)
	if err != nil {
		return nil, err
	}
	fifoRepo, err := store.NewFifoRepo(sqliteDB)
	if err != nil {
		return nil, err
	}
	profileRepo, err := store.NewProfileRepo(sqliteDB)
	if err != nil {
		return nil, err
	}
	localListRepo, err := store.NewLocalListRepo(sqliteDB)
	if err != nil {
		return nil, err
	}
	authCacheRepo, err := store.NewAuthentCacheRepo(sqliteDB, 100)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	s := &station{id: id, centralSystem: centralSystem, log: log, sqliteDB: sqliteDB, kvStore: kvStore}

	cfg, err := config.New(ctx, configRepo, log, s.onConfigChanged, s.onRebootRequired)
	if err != nil {
		return nil, err
	}
	s.cfg = cfg

	n := cfg.GetInt(ctx, "NumberOfConnectors")
	if connectors > 0 {
		n = connectors
	}
	if n <= 0 {
		n = 1
	}
	s.arena = connector.NewArena(n)

	s.fifoQ, err = fifo.Load(ctx, fifoRepo)
	if err != nil {
		return nil, err
	}

	s.profiles, err = smartcharging.New(ctx, profileRepo, log)
	if err != nil {
		return nil, err
	}

	s.localList, err = essentiallist.New(localListRepo, kvStore, func() bool { return cfg.GetBool(ctx, "LocalAuthListEnabled") })
	if err != nil {
		return nil, err
	}

	s.cache, err = authcache.New(authCacheRepo, 100, func() bool { return cfg.GetBool(ctx, "AuthorizationCacheEnabled") }, log)
	if err != nil {
		return nil, err
	}

	s.authorizeMgr = authorize.New(s.localList, s.cache, s, log)
	s.triggerDisp = trigger.New(s.arena, log)
	s.sim = scenario.New()

	s.pool = timer.NewPool(4)
	s.timers = timer.NewService(s.pool)

	return s, nil
}

// Authorize implements authorize.CentralCaller against the live peer.
func (s *station) Authorize(ctx context.Context, idTag types.IdTag) (types.IdTagInfo, error) {
	s.peerMu.Lock()
	peer := s.peer
	s.peerMu.Unlock()
	if peer == nil {
		return types.IdTagInfo{}, errors.New("station: not connected")
	}
	raw, err := peer.Call(ctx, messages.ActionAuthorize, messages.AuthorizeReq{IdTag: idTag})
	if err != nil {
		return types.IdTagInfo{}, err
	}
	var conf messages.AuthorizeConf
	if err := jsonUnmarshal(raw, &conf); err != nil {
		return types.IdTagInfo{}, err
	}
	return conf.IdTagInfo, nil
}

func (s *station) onConfigChanged(key, value string) {
	s.log.WithField("key", key).WithField("value", value).Info("configuration changed")
	if key == "WebSocketPingInterval" || key == "HeartbeatInterval" {
		s.log.WithField("key", key).Info("new interval takes effect on next reconnect")
	}
}

func (s *station) onRebootRequired() {
	s.log.Info("reconnecting to apply a configuration change requiring reboot")
	s.disconnect()
	if err := s.connect("", ""); err != nil {
		s.log.WithError(err).Error("failed to reconnect after reboot")
	}
}

// connect dials the central system, wires every handler, sends
// BootNotification, and arms the periodic timers. vendor/model default
// to generated placeholders, mirroring the teacher's faker-driven
// bootNotification for a station with no real nameplate data.
func (s *station) connect(vendor, model string) error {
	ctx := context.Background()

	wsURL, opts, err := s.securityDialOptions()
	if err != nil {
		return fmt.Errorf("security profile setup: %w", err)
	}
	opts.PingInterval = time.Duration(s.cfg.GetInt(ctx, "WebSocketPingInterval")) * time.Second

	peer, err := rpc.Dial(ctx, wsURL, opts, s.pool, s.log)
	if err != nil {
		return fmt.Errorf("dial central system: %w", err)
	}
	peer.RegisterListener(s)

	s.peerMu.Lock()
	s.peer = peer
	s.peerMu.Unlock()

	s.txManager = transaction.New(s.arena, s.fifoQ, s.authorizeMgr, s.profiles, s.sim, peer,
		func() bool { return s.cfg.GetBool(ctx, "AuthorizeRemoteTxRequests") },
		func() []string { return s.sampledMeasurands(ctx) },
		s.log)

	s.registerTriggers(ctx)

	registry := &dispatch.Registry{
		Arena: s.arena, Config: s.cfg, Authorize: s.authorizeMgr, Profiles: s.profiles,
		Transactions: s.txManager, Trigger: s.triggerDisp, Reboot: s.handleReset, Log: s.log,
	}
	if err := registry.RegisterAll(peer); err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}

	retryCtx, cancel := context.WithCancel(context.Background())
	s.retryCtx, s.cancel = retryCtx, cancel
	s.retry = transaction.NewRetryDriver(s.fifoQ, peer, peer.IsConnected,
		transaction.RetryConfig{
			Interval: time.Duration(s.cfg.GetInt(ctx, "TransactionMessageRetryInterval")) * time.Second,
			MaxTries: s.cfg.GetInt(ctx, "TransactionMessageAttempts"),
		}, s.log)
	s.retry.OnAck = s.txManager.OnAck
	go s.retry.Run(retryCtx)

	if vendor == "" {
		vendor = faker.LastName()
	}
	if model == "" {
		model = faker.FirstName()
	}
	if err := s.bootNotification(ctx, vendor, model); err != nil {
		s.log.WithError(err).Warn("BootNotification failed")
	}

	s.armTimers(ctx)
	return nil
}

func (s *station) disconnect() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.retry != nil {
		s.retry.Stop()
	}
	s.timers.Stop()
	s.timers = timer.NewService(s.pool)

	s.peerMu.Lock()
	peer := s.peer
	s.peer = nil
	s.peerMu.Unlock()
	if peer != nil {
		peer.Close()
	}
}

func (s *station) close() {
	s.disconnect()
	s.pool.Stop()
	s.sqliteDB.Close()
	s.kvStore.Close()
}

// Connected/Disconnected implement rpc.Listener.
func (s *station) Connected() {
	s.log.Info("connected to central system")
	if s.retry != nil {
		s.retry.Nudge()
	}
}

func (s *station) Disconnected() {
	s.log.Warn("disconnected from central system")
}

func (s *station) bootNotification(ctx context.Context, vendor, model string) error {
	s.peerMu.Lock()
	peer := s.peer
	s.peerMu.Unlock()
	raw, err := peer.Call(ctx, messages.ActionBootNotification, messages.BootNotificationReq{
		ChargePointVendor: vendor,
		ChargePointModel:  model,
		FirmwareVersion:   appVersion,
	})
	if err != nil {
		return err
	}
	var conf messages.BootNotificationConf
	if err := jsonUnmarshal(raw, &conf); err != nil {
		return err
	}
	if conf.Status != messages.RegistrationAccepted {
		s.log.WithField("status", conf.Status).Warn("BootNotification not accepted")
		return nil
	}
	if conf.Interval > 0 {
		s.kvStore.SetInt("heartbeat_interval", conf.Interval)
	}
	return nil
}

func (s *station) armTimers(ctx context.Context) {
	heartbeat := s.kvStore.MustGetInt("heartbeat_interval")
	if heartbeat <= 0 {
		heartbeat = s.cfg.GetInt(ctx, "HeartbeatInterval")
	}
	if heartbeat <= 0 {
		heartbeat = 86400
	}
	s.timers.Register(time.Duration(heartbeat)*time.Second, false, func() {
		s.peerMu.Lock()
		peer := s.peer
		s.peerMu.Unlock()
		if peer == nil {
			return
		}
		if _, err := peer.Call(context.Background(), messages.ActionHeartbeat, messages.HeartbeatReq{}); err != nil {
			s.log.WithError(err).Debug("heartbeat failed")
		}
	})

	sampleInterval := s.cfg.GetInt(ctx, "MeterValueSampleInterval")
	if sampleInterval <= 0 {
		sampleInterval = 60
	}
	s.timers.Register(time.Duration(sampleInterval)*time.Second, false, func() {
		s.sim.Tick()
		s.txManager.SampleMeterValues(context.Background())
	})

	s.timers.Register(1*time.Hour, false, func() {
		s.profiles.Cleanup(context.Background(), time.Now())
	})

	s.timers.Register(20*time.Minute, false, func() {
		s.diagnosticsStatusNotification(context.Background(), types.DiagnosticsStatusIdle)
	})
}

// diagnosticsStatusNotification reports the state of the last (or absent)
// diagnostics upload. This station never actually uploads diagnostics, so
// it always reports Idle; the periodic call is kept because central
// systems poll it to confirm the station is still reachable between
// heartbeats.
func (s *station) diagnosticsStatusNotification(ctx context.Context, status types.DiagnosticsStatus) error {
	s.peerMu.Lock()
	peer := s.peer
	s.peerMu.Unlock()
	if peer == nil {
		return errors.New("not connected")
	}
	_, err := peer.Call(ctx, messages.ActionDiagnosticsStatusNotification, messages.DiagnosticsStatusNotificationReq{
		Status: status,
	})
	if err != nil {
		s.log.WithError(err).Debug("diagnostics status notification failed")
	}
	return err
}

func (s *station) sampledMeasurands(ctx context.Context) []string {
	raw, _, _ := s.cfg.Get(ctx, "MeterValuesSampledData")
	return transaction.SplitMeasurands(raw)
}

// registerTriggers binds every remotely-triggerable message this station
// can re-send on demand, per spec §4.5.
func (s *station) registerTriggers(ctx context.Context) {
	s.triggerDisp.Register(types.TriggerHeartbeat, func(ctx context.Context, _ types.MessageTrigger, _ int) bool {
		s.peerMu.Lock()
		peer := s.peer
		s.peerMu.Unlock()
		if peer == nil {
			return false
		}
		_, err := peer.Call(ctx, messages.ActionHeartbeat, messages.HeartbeatReq{})
		return err == nil
	})
	s.triggerDisp.Register(types.TriggerStatusNotification, func(_ context.Context, _ types.MessageTrigger, connectorId int) bool {
		s.txManager.EmitStatus(connectorId)
		return true
	})
	s.triggerDisp.Register(types.TriggerMeterValues, func(ctx context.Context, _ types.MessageTrigger, _ int) bool {
		s.txManager.SampleMeterValues(ctx)
		return true
	})
	s.triggerDisp.Register(types.TriggerBootNotification, func(ctx context.Context, _ types.MessageTrigger, _ int) bool {
		return s.bootNotification(ctx, faker.LastName(), faker.FirstName()) == nil
	})
	s.triggerDisp.Register(types.TriggerDiagnosticsStatusNotification, func(ctx context.Context, _ types.MessageTrigger, _ int) bool {
		return s.diagnosticsStatusNotification(ctx, types.DiagnosticsStatusIdle) == nil
	})
}

// handleReset implements dispatch.Registry.Reboot: Soft/Hard both just
// reconnect, this station having no firmware to actually restart.
func (s *station) handleReset(hard bool) {
	s.log.WithField("hard", hard).Info("resetting")
	s.disconnect()
	time.Sleep(time.Second)
	if err := s.connect("", ""); err != nil {
		s.log.WithError(err).Error("failed to reconnect after reset")
	}
}

// securityDialOptions builds the WebSocket URL and dial options for the
// configured SecurityProfile, adapted from the teacher's
// setUpSecurityOnWsClient.
func (s *station) securityDialOptions() (string, rpc.DialOptions, error) {
	ctx := context.Background()
	opts := rpc.DialOptions{ChargePointID: s.id}
	url := strings.TrimRight(s.centralSystem, "/") + "/" + s.id

	profile := s.cfg.GetInt(ctx, "SecurityProfile")
	switch profile {
	case config.NoSecurityProfile:
		return url, opts, nil

	case config.BasicSecurityProfile:
		password, _, _ := s.cfg.Get(ctx, "AuthorizationKey")
		if password == "" {
			return "", opts, errors.New("password is not set for this profile")
		}
		opts.User, opts.Password = s.id, password
		return url, opts, nil

	case config.BasicSecurityWithTLSProfile:
		if !strings.HasPrefix(url, "wss://") {
			return "", opts, errors.New("central system url must be wss:// for this profile")
		}
		password, _, _ := s.cfg.Get(ctx, "AuthorizationKey")
		if password == "" {
			return "", opts, errors.New("password is not set for this profile")
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		opts.User, opts.Password = s.id, password
		opts.TLSConfig = &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}
		return url, opts, nil

	default:
		return "", opts, fmt.Errorf("security profile %d not supported", profile)
	}
}

func jsonUnmarshal(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}
