package controller

import (
	"math"
	"strings"
	"time"

	"github.com/dokzlo13/relayd/internal/device"
)

// registerRequest is the registration body.
type registerRequest struct {
	MAC            string `json:"mac"`
	Name           string `json:"name"`
	ConnectionType string `json:"connection_type"`
}

// registerResponse is the registration reply. Directives are optional.
type registerResponse struct {
	Token    string          `json:"token"`
	DeviceID uint32          `json:"device_id"`
	HTTP     *httpDirectives `json:"http,omitempty"`
}

type httpDirectives struct {
	State       string `json:"state"`
	Telemetry   string `json:"telemetry"`
	PollSeconds any    `json:"poll_seconds"` // Loosely typed; see pollInterval
}

// MaxPollInterval is the longest poll interval the durable store can hold.
const MaxPollInterval = time.Duration(math.MaxUint32) * time.Millisecond

// pollInterval converts poll_seconds to a duration rounded to the
// millisecond. Anything that is not a positive number yields 0, which leaves
// the stored interval unchanged.
func pollInterval(v any) time.Duration {
	secs, ok := v.(float64)
	if !ok || math.IsNaN(secs) || secs <= 0 {
		return 0
	}
	ms := math.Round(secs * 1000)
	if ms < 1 {
		return 0
	}
	if ms >= float64(math.MaxUint32) {
		return MaxPollInterval
	}
	return time.Duration(ms) * time.Millisecond
}

// Registration is a successful registration result.
type Registration struct {
	Identity   device.Identity
	Directives *device.DirectiveUpdate // nil when the response carried none
}

type stateResponse struct {
	ShouldRun any `json:"should_run"`
}

// Telemetry is the read-only snapshot pushed to the controller.
type Telemetry struct {
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	IsOn    bool    `json:"is_on"`
}

type telemetryRequest struct {
	DeviceID  uint32    `json:"device_id"`
	Telemetry Telemetry `json:"telemetry"`
}

// Truthy coerces a loosely typed wire value to a boolean. True for boolean
// true, any nonzero number, and the case-insensitive strings "1", "true"
// and "on". Everything else, including a missing value, is false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		switch strings.ToLower(t) {
		case "1", "true", "on":
			return true
		}
	}
	return false
}
