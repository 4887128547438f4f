package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/relayd/internal/agent"
	"github.com/dokzlo13/relayd/internal/config"
	"github.com/dokzlo13/relayd/internal/device"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "relayd.sqlite")
	cfg.Relay.Driver = DriverSim
	cfg.Link.Driver = DriverSim
	cfg.Link.ConnectTimeout = config.Duration(200 * time.Millisecond)
	cfg.Link.PollStep = config.Duration(5 * time.Millisecond)
	cfg.Sync.Tick = config.Duration(5 * time.Millisecond)
	cfg.Sync.PollInterval = config.Duration(20 * time.Millisecond)
	disabled := false
	cfg.Status.Enabled = &disabled
	return cfg
}

func waitFor(t *testing.T, a *App, cond func(agent.Snapshot) bool) agent.Snapshot {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap := a.Services().Agent.Loop.Snapshot()
		if cond(snap) {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap := a.Services().Agent.Loop.Snapshot()
	t.Fatalf("condition not met, last snapshot: %+v", snap)
	return snap
}

func TestAppBootsIntoProvisioningWithoutCredentials(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	snap := waitFor(t, a, func(s agent.Snapshot) bool {
		return s.Phase == device.PhaseProvisioning.String() && s.APActive
	})
	if snap.RelayOn {
		t.Error("relay should stay off while provisioning")
	}

	cancel()
	if err := a.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestAppSynchronizesWithController(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/devices/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"token": "tok-1", "device_id": 7})
	})
	mux.HandleFunc("/api/pump/state", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"should_run": true})
	})
	mux.HandleFunc("/api/telemetry", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Controller.BaseURL = srv.URL
	cfg.Link.SSID = "home"
	cfg.Link.Passphrase = "secret"

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	snap := waitFor(t, a, func(s agent.Snapshot) bool {
		return s.Phase == device.PhaseSynchronized.String() && s.RelayOn
	})
	if snap.DeviceID != 7 {
		t.Errorf("DeviceID = %d, want 7", snap.DeviceID)
	}
	if !snap.WiFiConnected {
		t.Error("expected station link up")
	}

	cancel()
	if err := a.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Relay.Driver = "bitbang"

	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unknown relay driver")
	}
}

func TestOpenPrefsSeedsDefaultsFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Link.SSID = "home"
	cfg.Link.Passphrase = "secret"
	cfg.Relay.Polarity = "active_low"

	store, _, database, err := OpenPrefs(cfg)
	if err != nil {
		t.Fatalf("OpenPrefs() error = %v", err)
	}
	defer database.Close()

	creds := store.Credentials()
	if creds.SSID != "home" || creds.Passphrase != "secret" {
		t.Errorf("Credentials() = %+v", creds)
	}
	if creds.ServerURL != cfg.Controller.BaseURL {
		t.Errorf("ServerURL = %q, want %q", creds.ServerURL, cfg.Controller.BaseURL)
	}
	if store.Polarity() != device.ActiveLow {
		t.Errorf("Polarity() = %v, want active_low", store.Polarity())
	}
}

func TestOpenPrefsRejectsBadPolarity(t *testing.T) {
	cfg := testConfig(t)
	cfg.Relay.Polarity = "sideways"

	if _, _, _, err := OpenPrefs(cfg); err == nil {
		t.Fatal("expected error for bad polarity")
	}
}
