package app

import (
	"context"
	"fmt"

	"github.com/dokzlo13/relayd/internal/agent"
	"github.com/dokzlo13/relayd/internal/config"
	"github.com/dokzlo13/relayd/internal/controller"
	"github.com/dokzlo13/relayd/internal/db"
	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/ledger"
	"github.com/dokzlo13/relayd/internal/prefs"
	"github.com/dokzlo13/relayd/internal/storage/kv"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	KV     *kv.Manager
	Prefs  *prefs.Store

	// Device
	Hardware   *HardwareService
	Sensor     *SensorService
	Controller *controller.Client

	// High-level services
	Agent   *AgentService
	Status  *StatusService
	MQTT    *MQTTService
	Cleanup *LedgerCleanupService
}

// NewServices creates all services with proper dependency injection.
// The relay is opened first so it is off before anything else happens.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	s.Ledger = ledger.New(database.DB)
	s.KV = kv.NewManager(database.DB)

	s.Prefs, err = newPrefs(cfg, s.KV)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Hardware, err = NewHardwareService(cfg, s.Prefs.Polarity())
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Sensor, err = NewSensorService(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	paths := controller.Paths{
		Register:  cfg.Controller.RegisterPath,
		State:     cfg.Controller.StatePath,
		Telemetry: cfg.Controller.TelemetryPath,
	}
	s.Controller = controller.NewClient(paths, cfg.Controller.Timeout.Duration(), cfg.Controller.RateLimitRPS)

	s.Agent = NewAgentService(cfg, agent.Deps{
		Link:       s.Hardware.Link,
		Relay:      s.Hardware.Relay,
		Controller: s.Controller,
		Prefs:      s.Prefs,
		Sensor:     s.Sensor,
		Recorder:   s.Ledger,
	})

	s.Status = NewStatusService(cfg, s.Agent.Loop, s.Ledger)
	s.MQTT = NewMQTTService(cfg, s.Agent.Loop)
	s.Cleanup = NewLedgerCleanupService(cfg, s.Ledger)

	return s, nil
}

// Start starts all background services.
// The onFatalError callback is called when the sync loop dies unexpectedly.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	s.Agent.Start(ctx, onFatalError)
	s.Status.Start(ctx)
	s.MQTT.Start(ctx)
	s.Cleanup.Start(ctx)

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Agent.Wait()
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Controller != nil {
		s.Controller.Close()
	}
	if s.Sensor != nil {
		s.Sensor.Close()
	}
	if s.Hardware != nil {
		s.Hardware.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

// newPrefs opens the preference bucket and seeds its defaults from cfg.
func newPrefs(cfg *config.Config, manager *kv.Manager) (*prefs.Store, error) {
	polarity, err := device.ParsePolarity(cfg.Relay.Polarity)
	if err != nil {
		return nil, fmt.Errorf("relay.polarity: %w", err)
	}

	bucket := manager.Bucket(cfg.Store.Namespace, true)
	return prefs.New(bucket, prefs.Defaults{
		Credentials: device.Credentials{
			SSID:       cfg.Link.SSID,
			Passphrase: cfg.Link.Passphrase,
			ServerURL:  cfg.Controller.BaseURL,
		},
		PollInterval: cfg.Sync.PollInterval.Duration(),
		Polarity:     polarity,
		APPersistent: cfg.Link.APPersistent,
	}), nil
}

// OpenPrefs opens only the durable store, for offline commands that must not
// touch the radio or the relay. The returned DB must be closed by the caller.
func OpenPrefs(cfg *config.Config) (*prefs.Store, *ledger.Ledger, *db.DB, error) {
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := newPrefs(cfg, kv.NewManager(database.DB))
	if err != nil {
		database.Close()
		return nil, nil, nil, err
	}

	return store, ledger.New(database.DB), database, nil
}
