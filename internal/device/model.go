// Package device holds the data model shared by the agent components:
// identity, credentials, directives, relay polarity and link/phase enums.
package device

import (
	"fmt"
	"strings"
	"time"
)

// DefaultPollInterval is used until the controller issues a poll cadence.
const DefaultPollInterval = 2000 * time.Millisecond

// Identity is the controller-issued identity of this device.
// ID and Token are set and cleared together; ID == 0 means unregistered.
type Identity struct {
	ID    uint32
	Token string
}

// Registered reports whether the device holds a controller identity.
func (i Identity) Registered() bool {
	return i.ID != 0
}

// MaskedToken returns the token with everything but the last four characters hidden.
func (i Identity) MaskedToken() string {
	if len(i.Token) <= 4 {
		return strings.Repeat("*", len(i.Token))
	}
	return strings.Repeat("*", len(i.Token)-4) + i.Token[len(i.Token)-4:]
}

// Credentials are the provisioned network and controller settings.
type Credentials struct {
	SSID       string
	Passphrase string
	ServerURL  string
}

// Directives are controller-issued operational parameters. They describe how
// to talk to a known controller and survive identity resets.
type Directives struct {
	StateURL     string // Empty means the configured default path
	TelemetryURL string
	PollInterval time.Duration
}

// Apply merges an update into d: non-empty endpoints overwrite, and a zero
// poll interval keeps the current one. Reports whether anything changed.
func (d *Directives) Apply(u DirectiveUpdate) bool {
	changed := false
	if u.StateURL != "" && u.StateURL != d.StateURL {
		d.StateURL = u.StateURL
		changed = true
	}
	if u.TelemetryURL != "" && u.TelemetryURL != d.TelemetryURL {
		d.TelemetryURL = u.TelemetryURL
		changed = true
	}
	if u.PollInterval >= time.Millisecond && u.PollInterval != d.PollInterval {
		d.PollInterval = u.PollInterval
		changed = true
	}
	return changed
}

// DirectiveUpdate is the optional directive block of a registration response.
type DirectiveUpdate struct {
	StateURL     string
	TelemetryURL string
	PollInterval time.Duration
}

// Polarity maps the logical relay state to the physical line level.
type Polarity uint8

const (
	ActiveHigh Polarity = iota
	ActiveLow
)

func (p Polarity) String() string {
	switch p {
	case ActiveHigh:
		return "active_high"
	case ActiveLow:
		return "active_low"
	default:
		return "unknown"
	}
}

// ParsePolarity parses "active_high" / "active_low" (also "high" / "low").
func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active_high", "high":
		return ActiveHigh, nil
	case "active_low", "low":
		return ActiveLow, nil
	default:
		return ActiveHigh, fmt.Errorf("unknown polarity %q", s)
	}
}

// LinkState is the network link state, derived on demand and never stored.
type LinkState uint8

const (
	LinkDisconnected LinkState = iota
	LinkConnecting
	LinkConnectedStation
	LinkAccessPointFallback
	LinkAccessPointPersistent
)

func (s LinkState) String() string {
	switch s {
	case LinkDisconnected:
		return "disconnected"
	case LinkConnecting:
		return "connecting"
	case LinkConnectedStation:
		return "connected_station"
	case LinkAccessPointFallback:
		return "access_point_fallback"
	case LinkAccessPointPersistent:
		return "access_point_persistent"
	default:
		return "unknown"
	}
}

// Phase is the sync loop state.
type Phase uint8

const (
	PhaseProvisioning Phase = iota
	PhaseConnecting
	PhaseUnregistered
	PhaseSynchronized
)

func (p Phase) String() string {
	switch p {
	case PhaseProvisioning:
		return "provisioning"
	case PhaseConnecting:
		return "connecting"
	case PhaseUnregistered:
		return "unregistered"
	case PhaseSynchronized:
		return "synchronized"
	default:
		return "unknown"
	}
}
