package link

import (
	"context"
	"errors"
	"sync"
	"time"
)

// SimRadio is an in-process radio used by the "sim" driver and in tests.
// Station and access point can be active at the same time unless
// SetConcurrentAP(false) is called.
type SimRadio struct {
	mu        sync.Mutex
	networks  map[string]string // ssid -> passphrase
	joinDelay time.Duration
	mac       string
	singleIf  bool

	joining   string
	joinedAt  time.Time
	connected bool
	apActive  bool
	apStarts  int
	joins     int
}

// NewSimRadio creates a radio that can reach the given networks.
func NewSimRadio(mac string, networks map[string]string) *SimRadio {
	if networks == nil {
		networks = make(map[string]string)
	}
	return &SimRadio{
		networks: networks,
		mac:      mac,
	}
}

// SetJoinDelay makes joins take d before the link comes up.
func (r *SimRadio) SetJoinDelay(d time.Duration) {
	r.mu.Lock()
	r.joinDelay = d
	r.mu.Unlock()
}

// SetConcurrentAP controls whether the radio can keep the access point up
// next to the station link.
func (r *SimRadio) SetConcurrentAP(v bool) {
	r.mu.Lock()
	r.singleIf = !v
	r.mu.Unlock()
}

// AddNetwork makes ssid reachable with passphrase.
func (r *SimRadio) AddNetwork(ssid, passphrase string) {
	r.mu.Lock()
	r.networks[ssid] = passphrase
	r.mu.Unlock()
}

// Drop takes the station link down.
func (r *SimRadio) Drop() {
	r.mu.Lock()
	r.connected = false
	r.joining = ""
	r.mu.Unlock()
}

// Join implements Radio.
func (r *SimRadio) Join(ctx context.Context, ssid, passphrase string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.joins++
	r.connected = false
	r.joining = ""

	pass, ok := r.networks[ssid]
	if !ok || pass != passphrase {
		// Unreachable networks never come up; the caller times out
		return nil
	}
	r.joining = ssid
	r.joinedAt = time.Now()
	return nil
}

// Connected implements Radio.
func (r *SimRadio) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.connected && r.joining != "" && time.Since(r.joinedAt) >= r.joinDelay {
		r.connected = true
	}
	return r.connected
}

// StartAP implements Radio.
func (r *SimRadio) StartAP(ssid, password string) error {
	if ssid == "" {
		return errors.New("empty access point ssid")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.apActive = true
	r.apStarts++
	return nil
}

// StopAP implements Radio.
func (r *SimRadio) StopAP() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.apActive = false
	return nil
}

// APActive implements Radio.
func (r *SimRadio) APActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.apActive
}

// ConcurrentAP implements Radio.
func (r *SimRadio) ConcurrentAP() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return !r.singleIf
}

// HardwareAddr implements Radio.
func (r *SimRadio) HardwareAddr() string {
	return r.mac
}

// IPAddr implements Radio.
func (r *SimRadio) IPAddr() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.connected:
		return "192.168.1.50"
	case r.apActive:
		return "192.168.4.1"
	default:
		return ""
	}
}

// Joins returns how many joins were started.
func (r *SimRadio) Joins() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.joins
}

// APStarts returns how many times the access point was started.
func (r *SimRadio) APStarts() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.apStarts
}
