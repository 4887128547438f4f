package agent

import (
	"context"
	"time"

	"github.com/dokzlo13/relayd/internal/controller"
	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/ledger"
)

// Link is the network link mechanism driven by the loop.
type Link interface {
	CurrentState() device.LinkState
	Connected() bool
	APActive() bool
	HardwareAddr() string
	IPAddr() string
	AttemptStationConnect(ctx context.Context, creds device.Credentials, timeout time.Duration) error
	EnableAccessPoint() error
	DisableAccessPoint() error
	SetAPPersistent(v bool) error
}

// Relay is the actuator.
type Relay interface {
	IsOn() (bool, error)
	SetOn(on bool) error
	SetPolarity(p device.Polarity) error
	Polarity() device.Polarity
	ForceOff() bool
}

// Controller is the remote controller client.
type Controller interface {
	SetEndpoints(e controller.Endpoints)
	Register(ctx context.Context, mac, name string) (*controller.Registration, error)
	FetchDesiredState(ctx context.Context, id uint32, token string) (bool, error)
	SendTelemetry(ctx context.Context, id uint32, token string, t controller.Telemetry) error
}

// Recorder stores lifecycle events. Optional.
type Recorder interface {
	Append(eventType ledger.EventType, source string, payload map[string]any) error
}
