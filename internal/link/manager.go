// Package link owns station-mode connection attempts and the access-point
// fallback. It is a mechanism only: deciding when to fall back is the
// caller's job.
package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/device"
)

var (
	// ErrNoCredentials is returned when no SSID is configured; no join is attempted.
	ErrNoCredentials = errors.New("no ssid configured")
	// ErrConnectTimeout is returned when the link did not come up in time.
	ErrConnectTimeout = errors.New("station connect timed out")
	// ErrAPNotConcurrent is returned when a persistent access point is
	// requested on a radio that cannot hold it next to the station link.
	ErrAPNotConcurrent = errors.New("radio cannot keep the access point up alongside the station link")
)

// Radio is the wireless interface driver.
type Radio interface {
	// Join starts joining ssid in station mode. It may return before the
	// link is up; the manager polls Connected.
	Join(ctx context.Context, ssid, passphrase string) error
	// Connected reports whether the station link is up with an address.
	Connected() bool
	StartAP(ssid, password string) error
	StopAP() error
	APActive() bool
	// HardwareAddr returns the station MAC address, or "" if unknown.
	HardwareAddr() string
	// IPAddr returns the interface IPv4 address, or "" if none.
	IPAddr() string
	// ConcurrentAP reports whether the access point can stay up while the
	// station link is connected.
	ConcurrentAP() bool
}

// Options configures a Manager.
type Options struct {
	PollStep     time.Duration // Link status polling step during a join
	APSSID       string
	APPassword   string
	APPersistent bool // Keep the access point up after the station connects
}

// Manager exposes the link state and performs station joins.
type Manager struct {
	radio Radio
	opts  Options

	mu         sync.Mutex
	connecting bool
}

// NewManager creates a link manager over radio.
func NewManager(radio Radio, opts Options) *Manager {
	if opts.PollStep <= 0 {
		opts.PollStep = 250 * time.Millisecond
	}
	return &Manager{
		radio: radio,
		opts:  opts,
	}
}

// CurrentState derives the link state from the radio.
func (m *Manager) CurrentState() device.LinkState {
	m.mu.Lock()
	connecting := m.connecting
	persistent := m.opts.APPersistent
	m.mu.Unlock()

	switch {
	case m.radio.Connected():
		return device.LinkConnectedStation
	case connecting:
		return device.LinkConnecting
	case m.radio.APActive() && persistent:
		return device.LinkAccessPointPersistent
	case m.radio.APActive():
		return device.LinkAccessPointFallback
	default:
		return device.LinkDisconnected
	}
}

// Connected reports whether the station link is up.
func (m *Manager) Connected() bool {
	return m.radio.Connected()
}

// APActive reports whether the access point is up.
func (m *Manager) APActive() bool {
	return m.radio.APActive()
}

// HardwareAddr returns the station MAC address.
func (m *Manager) HardwareAddr() string {
	return m.radio.HardwareAddr()
}

// IPAddr returns the interface IPv4 address.
func (m *Manager) IPAddr() string {
	return m.radio.IPAddr()
}

// SetAPPersistent changes whether the access point survives a station connect.
// Enabling it fails with ErrAPNotConcurrent when the radio cannot run both.
func (m *Manager) SetAPPersistent(v bool) error {
	if v && !m.radio.ConcurrentAP() {
		return ErrAPNotConcurrent
	}
	m.mu.Lock()
	m.opts.APPersistent = v
	m.mu.Unlock()
	return nil
}

// AttemptStationConnect joins creds.SSID and blocks until the link is up or
// timeout elapses. On success the access point is disabled unless it is
// persistent. Returns ErrNoCredentials without joining when no SSID is set.
func (m *Manager) AttemptStationConnect(ctx context.Context, creds device.Credentials, timeout time.Duration) error {
	if creds.SSID == "" {
		log.Info().Msg("No SSID configured, staying in access-point mode")
		return ErrNoCredentials
	}

	m.setConnecting(true)
	defer m.setConnecting(false)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info().Str("ssid", creds.SSID).Dur("timeout", timeout).Msg("Connecting to WiFi")
	start := time.Now()

	if err := m.radio.Join(ctx, creds.SSID, creds.Passphrase); err != nil {
		if ctx.Err() != nil {
			return ErrConnectTimeout
		}
		return fmt.Errorf("failed to join %q: %w", creds.SSID, err)
	}

	ticker := time.NewTicker(m.opts.PollStep)
	defer ticker.Stop()

	for !m.radio.Connected() {
		select {
		case <-ctx.Done():
			log.Warn().Str("ssid", creds.SSID).Dur("elapsed", time.Since(start)).Msg("WiFi connect timed out")
			return ErrConnectTimeout
		case <-ticker.C:
		}
	}

	log.Info().
		Str("ssid", creds.SSID).
		Dur("elapsed", time.Since(start)).
		Msg("WiFi connected")

	m.mu.Lock()
	persistent := m.opts.APPersistent
	m.mu.Unlock()

	if !persistent {
		if err := m.DisableAccessPoint(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop access point after connect")
		}
	}
	return nil
}

// EnableAccessPoint starts the provisioning access point. No-op if already up.
func (m *Manager) EnableAccessPoint() error {
	if m.radio.APActive() {
		return nil
	}
	if err := m.radio.StartAP(m.opts.APSSID, m.opts.APPassword); err != nil {
		return fmt.Errorf("failed to start access point: %w", err)
	}

	log.Info().
		Str("ap_ssid", m.opts.APSSID).
		Bool("open", m.opts.APPassword == "").
		Msg("Configuration access point active")
	return nil
}

// DisableAccessPoint stops the access point. No-op if already down.
func (m *Manager) DisableAccessPoint() error {
	if !m.radio.APActive() {
		return nil
	}
	if err := m.radio.StopAP(); err != nil {
		return fmt.Errorf("failed to stop access point: %w", err)
	}

	log.Info().Msg("Access point stopped (station link active)")
	return nil
}

func (m *Manager) setConnecting(v bool) {
	m.mu.Lock()
	m.connecting = v
	m.mu.Unlock()
}
