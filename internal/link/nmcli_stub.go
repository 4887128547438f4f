//go:build !linux

package link

import (
	"context"
	"errors"
)

var errNMUnsupported = errors.New("nmcli driver is only supported on linux")

// NMRadio is unavailable on this platform.
type NMRadio struct{}

// NewNMRadio always fails on non-linux platforms.
func NewNMRadio(iface, apIface string) (*NMRadio, error) {
	return nil, errNMUnsupported
}

func (r *NMRadio) Join(ctx context.Context, ssid, passphrase string) error { return errNMUnsupported }
func (r *NMRadio) Connected() bool                                         { return false }
func (r *NMRadio) StartAP(ssid, password string) error                     { return errNMUnsupported }
func (r *NMRadio) StopAP() error                                           { return errNMUnsupported }
func (r *NMRadio) APActive() bool                                          { return false }
func (r *NMRadio) HardwareAddr() string                                    { return "" }
func (r *NMRadio) IPAddr() string                                          { return "" }
func (r *NMRadio) ConcurrentAP() bool                                      { return false }
