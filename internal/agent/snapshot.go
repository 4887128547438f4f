package agent

import (
	"time"
)

// Snapshot is an immutable view of the agent state, published after every
// tick and every submitted operation.
type Snapshot struct {
	Phase            string            `json:"phase"`
	LinkState        string            `json:"link_state"`
	WiFiConnected    bool              `json:"wifi_connected"`
	APActive         bool              `json:"ap_active"`
	APPersistent     bool              `json:"ap_persistent"`
	SSID             string            `json:"ssid"`
	IP               string            `json:"ip"`
	MAC              string            `json:"mac"`
	ServerURL        string            `json:"server_url"`
	DeviceID         uint32            `json:"device_id"`
	Token            string            `json:"token"` // Masked
	RelayOn          bool              `json:"relay_on"`
	Polarity         string            `json:"polarity"`
	ForceOff         bool              `json:"force_off"`
	DesiredOn        *bool             `json:"desired_on,omitempty"` // Last value fetched from the controller
	PollIntervalMs   int64             `json:"poll_interval_ms"`
	StateURL         string            `json:"state_url,omitempty"`
	TelemetryURL     string            `json:"telemetry_url,omitempty"`
	ReconnectPending bool              `json:"reconnect_pending"`
	LastErrors       map[string]string `json:"last_errors,omitempty"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Equal reports whether s and o describe the same state, ignoring UpdatedAt.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.Phase != o.Phase || s.LinkState != o.LinkState ||
		s.WiFiConnected != o.WiFiConnected || s.APActive != o.APActive ||
		s.APPersistent != o.APPersistent || s.SSID != o.SSID ||
		s.IP != o.IP || s.MAC != o.MAC || s.ServerURL != o.ServerURL ||
		s.DeviceID != o.DeviceID || s.Token != o.Token ||
		s.RelayOn != o.RelayOn || s.Polarity != o.Polarity ||
		s.ForceOff != o.ForceOff || s.PollIntervalMs != o.PollIntervalMs ||
		s.StateURL != o.StateURL || s.TelemetryURL != o.TelemetryURL ||
		s.ReconnectPending != o.ReconnectPending {
		return false
	}
	if (s.DesiredOn == nil) != (o.DesiredOn == nil) {
		return false
	}
	if s.DesiredOn != nil && *s.DesiredOn != *o.DesiredOn {
		return false
	}
	if len(s.LastErrors) != len(o.LastErrors) {
		return false
	}
	for k, v := range s.LastErrors {
		if o.LastErrors[k] != v {
			return false
		}
	}
	return true
}
