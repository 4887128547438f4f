package link

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dokzlo13/relayd/internal/device"
)

func newTestManager(radio *SimRadio, persistent bool) *Manager {
	return NewManager(radio, Options{
		PollStep:     5 * time.Millisecond,
		APSSID:       "relayd-setup",
		APPassword:   "12345678",
		APPersistent: persistent,
	})
}

func TestAttemptStationConnect_NoSSID(t *testing.T) {
	radio := NewSimRadio("AA:BB:CC:DD:EE:FF", nil)
	m := newTestManager(radio, false)

	start := time.Now()
	err := m.AttemptStationConnect(context.Background(), device.Credentials{}, time.Second)
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("err = %v, want ErrNoCredentials", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("empty SSID should fail without waiting")
	}
	if radio.Joins() != 0 {
		t.Errorf("joins = %d, want 0", radio.Joins())
	}
}

func TestAttemptStationConnect_Success(t *testing.T) {
	radio := NewSimRadio("AA:BB:CC:DD:EE:FF", map[string]string{"home": "secret"})
	radio.SetJoinDelay(20 * time.Millisecond)
	m := newTestManager(radio, false)

	if err := m.EnableAccessPoint(); err != nil {
		t.Fatalf("EnableAccessPoint: %v", err)
	}

	err := m.AttemptStationConnect(context.Background(), device.Credentials{SSID: "home", Passphrase: "secret"}, time.Second)
	if err != nil {
		t.Fatalf("AttemptStationConnect: %v", err)
	}
	if got := m.CurrentState(); got != device.LinkConnectedStation {
		t.Errorf("state = %v, want %v", got, device.LinkConnectedStation)
	}
	if m.APActive() {
		t.Error("non-persistent AP should be stopped after connect")
	}
}

func TestAttemptStationConnect_PersistentAPStaysUp(t *testing.T) {
	radio := NewSimRadio("", map[string]string{"home": "secret"})
	m := newTestManager(radio, true)

	if err := m.EnableAccessPoint(); err != nil {
		t.Fatalf("EnableAccessPoint: %v", err)
	}
	if got := m.CurrentState(); got != device.LinkAccessPointPersistent {
		t.Errorf("state = %v, want %v", got, device.LinkAccessPointPersistent)
	}

	err := m.AttemptStationConnect(context.Background(), device.Credentials{SSID: "home", Passphrase: "secret"}, time.Second)
	if err != nil {
		t.Fatalf("AttemptStationConnect: %v", err)
	}
	if !m.APActive() {
		t.Error("persistent AP should stay up after connect")
	}
	if got := m.CurrentState(); got != device.LinkConnectedStation {
		t.Errorf("state = %v, want %v", got, device.LinkConnectedStation)
	}
}

func TestAttemptStationConnect_Timeout(t *testing.T) {
	tests := []struct {
		name  string
		creds device.Credentials
	}{
		{"unknown network", device.Credentials{SSID: "elsewhere", Passphrase: "secret"}},
		{"wrong passphrase", device.Credentials{SSID: "home", Passphrase: "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			radio := NewSimRadio("", map[string]string{"home": "secret"})
			m := newTestManager(radio, false)

			start := time.Now()
			err := m.AttemptStationConnect(context.Background(), tt.creds, 50*time.Millisecond)
			if !errors.Is(err, ErrConnectTimeout) {
				t.Fatalf("err = %v, want ErrConnectTimeout", err)
			}
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Errorf("attempt took %v, want bounded by timeout", elapsed)
			}
			if got := m.CurrentState(); got != device.LinkDisconnected {
				t.Errorf("state = %v, want %v", got, device.LinkDisconnected)
			}
		})
	}
}

func TestAccessPoint_Idempotent(t *testing.T) {
	radio := NewSimRadio("", nil)
	m := newTestManager(radio, false)

	for i := 0; i < 3; i++ {
		if err := m.EnableAccessPoint(); err != nil {
			t.Fatalf("EnableAccessPoint #%d: %v", i, err)
		}
	}
	if radio.APStarts() != 1 {
		t.Errorf("AP starts = %d, want 1", radio.APStarts())
	}
	if got := m.CurrentState(); got != device.LinkAccessPointFallback {
		t.Errorf("state = %v, want %v", got, device.LinkAccessPointFallback)
	}

	for i := 0; i < 2; i++ {
		if err := m.DisableAccessPoint(); err != nil {
			t.Fatalf("DisableAccessPoint #%d: %v", i, err)
		}
	}
	if m.APActive() {
		t.Error("AP should be down")
	}
	if got := m.CurrentState(); got != device.LinkDisconnected {
		t.Errorf("state = %v, want %v", got, device.LinkDisconnected)
	}
}

func TestCurrentState_ConnectedWinsOverAP(t *testing.T) {
	radio := NewSimRadio("", map[string]string{"home": "secret"})
	m := newTestManager(radio, true)

	_ = m.EnableAccessPoint()
	_ = m.AttemptStationConnect(context.Background(), device.Credentials{SSID: "home", Passphrase: "secret"}, time.Second)

	if got := m.CurrentState(); got != device.LinkConnectedStation {
		t.Errorf("state = %v, want %v", got, device.LinkConnectedStation)
	}

	radio.Drop()
	if got := m.CurrentState(); got != device.LinkAccessPointPersistent {
		t.Errorf("after drop state = %v, want %v", got, device.LinkAccessPointPersistent)
	}
}

func TestSetAPPersistent_RequiresConcurrentRadio(t *testing.T) {
	tests := []struct {
		name       string
		concurrent bool
		wantErr    error
		wantState  device.LinkState
	}{
		{"separate hotspot interface", true, nil, device.LinkAccessPointPersistent},
		{"shared interface", false, ErrAPNotConcurrent, device.LinkAccessPointFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			radio := NewSimRadio("", nil)
			radio.SetConcurrentAP(tt.concurrent)
			m := newTestManager(radio, false)

			if err := m.SetAPPersistent(true); !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetAPPersistent(true) error = %v, want %v", err, tt.wantErr)
			}
			if err := m.SetAPPersistent(false); err != nil {
				t.Errorf("SetAPPersistent(false) error = %v", err)
			}
			if tt.wantErr == nil {
				_ = m.SetAPPersistent(true)
			}

			_ = m.EnableAccessPoint()
			if got := m.CurrentState(); got != tt.wantState {
				t.Errorf("state = %v, want %v", got, tt.wantState)
			}
		})
	}
}
