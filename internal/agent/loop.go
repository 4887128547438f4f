// Package agent implements the sync loop: the state machine that keeps the
// link up, registers the device, and keeps the relay in step with the
// controller while reporting telemetry.
//
// All device state is owned by the goroutine running Loop.Run. Other
// goroutines submit operations through Do and read the published Snapshot.
package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/controller"
	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/ledger"
	"github.com/dokzlo13/relayd/internal/link"
	"github.com/dokzlo13/relayd/internal/prefs"
	"github.com/dokzlo13/relayd/internal/sensor"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("agent loop stopped")

// Error keys used in Snapshot.LastErrors.
const (
	errKeyLink      = "link"
	errKeyRegister  = controller.OpRegister
	errKeyState     = controller.OpState
	errKeyTelemetry = controller.OpTelemetry
	errKeyRelay     = "relay"
	errKeySensor    = "sensor"
)

// Options configures a Loop.
type Options struct {
	DeviceName        string
	MAC               string // Overrides the link hardware address when set
	Tick              time.Duration
	ConnectTimeout    time.Duration
	RetryInterval     time.Duration // Minimum gap between automatic connect attempts
	ReconnectDebounce time.Duration
	TelemetryInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.Tick <= 0 {
		o.Tick = 100 * time.Millisecond
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 20 * time.Second
	}
	if o.ReconnectDebounce <= 0 {
		o.ReconnectDebounce = time.Second
	}
	if o.TelemetryInterval <= 0 {
		o.TelemetryInterval = 15 * time.Second
	}
}

// Deps are the collaborators of a Loop. Sensor and Recorder are optional.
type Deps struct {
	Link       Link
	Relay      Relay
	Controller Controller
	Prefs      *prefs.Store
	Sensor     sensor.Sensor
	Recorder   Recorder
}

type request struct {
	fn   func(ctx context.Context) error
	done chan error
}

// Loop is the sync loop.
type Loop struct {
	opts Options

	link     Link
	relay    Relay
	client   Controller
	prefs    *prefs.Store
	sensor   sensor.Sensor
	recorder Recorder

	// Owned by the loop goroutine
	creds              device.Credentials
	identity           device.Identity
	directives         device.Directives
	apPersistent       bool
	phase              device.Phase
	reconnectRequested bool
	reconnectAt        time.Time
	lastConnectAttempt time.Time
	nextPoll           time.Time
	nextTelemetry      time.Time
	desired            *bool
	lastErrors         map[string]string
	wasConnected       bool
	inFallback         bool

	work     chan request
	stopped  chan struct{}
	stopOnce sync.Once

	snapshot    atomic.Pointer[Snapshot]
	listenersMu sync.Mutex
	listeners   []func(Snapshot)
}

// New creates a loop and loads persisted state. The relay must already be
// in its fail-safe off state.
func New(opts Options, deps Deps) *Loop {
	opts.applyDefaults()

	l := &Loop{
		opts:       opts,
		link:       deps.Link,
		relay:      deps.Relay,
		client:     deps.Controller,
		prefs:      deps.Prefs,
		sensor:     deps.Sensor,
		recorder:   deps.Recorder,
		lastErrors: make(map[string]string),
		work:       make(chan request, 16),
		stopped:    make(chan struct{}),
	}
	if l.sensor == nil {
		l.sensor = sensor.Static{}
	}

	l.creds = l.prefs.Credentials()
	l.identity = l.prefs.Identity()
	l.directives = l.prefs.Directives()
	l.apPersistent = l.prefs.APPersistent()
	if err := l.link.SetAPPersistent(l.apPersistent); err != nil {
		log.Warn().Err(err).Msg("Ignoring stored persistent access point flag")
		l.apPersistent = false
	}
	l.updateEndpoints()

	l.phase = device.PhaseConnecting
	if l.creds.SSID == "" {
		l.phase = device.PhaseProvisioning
	}

	log.Info().
		Str("ssid", l.creds.SSID).
		Str("server_url", l.creds.ServerURL).
		Uint32("device_id", l.identity.ID).
		Str("token", l.identity.MaskedToken()).
		Dur("poll_interval", l.directives.PollInterval).
		Msg("Agent state loaded")

	l.publish(time.Now())
	return l
}

// Run drives the loop until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopOnce.Do(func() { close(l.stopped) })

	log.Info().
		Dur("tick", l.opts.Tick).
		Dur("telemetry_interval", l.opts.TelemetryInterval).
		Msg("Sync loop started")

	l.record(ledger.EventBoot, "agent", map[string]any{"device_id": l.identity.ID})

	ticker := time.NewTicker(l.opts.Tick)
	defer ticker.Stop()

	l.Tick(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Sync loop stopping")
			return nil
		case req := <-l.work:
			req.done <- l.execute(ctx, req.fn)
			l.publish(time.Now())
		case now := <-ticker.C:
			l.Tick(ctx, now)
		}
	}
}

// Do runs fn on the loop goroutine between ticks and returns its error.
// If ctx ends after fn was queued, fn still runs but its result is dropped.
func (l *Loop) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case <-l.stopped:
		return ErrStopped
	default:
	}

	req := request{fn: fn, done: make(chan error, 1)}

	select {
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case l.work <- req:
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		select {
		case err := <-req.done:
			return err
		default:
			return ErrStopped
		}
	}
}

func (l *Loop) execute(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Agent operation panicked - loop continuing")
			err = errors.New("operation panicked")
		}
	}()
	return fn(ctx)
}

// Snapshot returns the latest published state.
func (l *Loop) Snapshot() Snapshot {
	return *l.snapshot.Load()
}

// OnChange registers fn to be called on the loop goroutine whenever the
// published state changes. fn must not block.
func (l *Loop) OnChange(fn func(Snapshot)) {
	l.listenersMu.Lock()
	l.listeners = append(l.listeners, fn)
	l.listenersMu.Unlock()
}

// Tick evaluates the state machine once.
func (l *Loop) Tick(ctx context.Context, now time.Time) {
	connected := l.link.Connected()

	switch {
	case l.reconnectRequested && !now.Before(l.reconnectAt):
		l.reconnectRequested = false
		log.Info().Str("ssid", l.creds.SSID).Msg("Applying new credentials, reconnecting")
		connected = l.connect(ctx, now)

	case l.reconnectRequested:
		// Let the provisioning response finish before touching the link
		l.phase = device.PhaseConnecting
		connected = false

	case !connected:
		if l.wasConnected {
			log.Warn().Str("ssid", l.creds.SSID).Msg("WiFi link lost")
			l.wasConnected = false
		}
		connected = l.reconnect(ctx, now)
	}

	if connected {
		l.wasConnected = true
		if l.identity.Registered() {
			l.phase = device.PhaseSynchronized
			l.synchronize(ctx, now)
		} else {
			l.phase = device.PhaseUnregistered
			l.register(ctx, now)
		}
	}

	l.publish(now)
}

// reconnect handles a down link outside of an explicit reconnect request.
func (l *Loop) reconnect(ctx context.Context, now time.Time) bool {
	if l.creds.SSID == "" {
		l.fallback(nil)
		return false
	}
	if !l.lastConnectAttempt.IsZero() && now.Sub(l.lastConnectAttempt) < l.opts.RetryInterval {
		l.fallback(nil)
		return false
	}
	return l.connect(ctx, now)
}

// connect performs one blocking station join and falls back to the access
// point on failure.
func (l *Loop) connect(ctx context.Context, now time.Time) bool {
	l.lastConnectAttempt = now
	l.phase = device.PhaseConnecting
	l.publish(now)

	err := l.link.AttemptStationConnect(ctx, l.creds, l.opts.ConnectTimeout)
	if err != nil {
		if !errors.Is(err, link.ErrNoCredentials) {
			log.Warn().Err(err).Str("ssid", l.creds.SSID).Msg("Station connect failed, falling back to access point")
		}
		l.fallback(err)
		return false
	}

	l.clearError(errKeyLink)
	l.inFallback = false
	l.record(ledger.EventLinkConnected, "link", map[string]any{"ssid": l.creds.SSID})
	return true
}

// fallback ensures the provisioning access point is up.
func (l *Loop) fallback(cause error) {
	l.phase = device.PhaseProvisioning
	if cause != nil {
		l.setError(errKeyLink, cause)
	}

	if err := l.link.EnableAccessPoint(); err != nil {
		log.Error().Err(err).Msg("Failed to enable access point")
		l.setError(errKeyLink, err)
		return
	}

	if !l.inFallback {
		l.inFallback = true
		payload := map[string]any{"ssid": l.creds.SSID}
		if cause != nil {
			payload["reason"] = cause.Error()
		}
		l.record(ledger.EventLinkFallback, "link", payload)
	}
}

func (l *Loop) register(ctx context.Context, now time.Time) {
	if now.Before(l.nextPoll) {
		return
	}
	l.nextPoll = now.Add(l.directives.PollInterval)

	if l.creds.ServerURL == "" {
		return
	}

	mac := l.opts.MAC
	if mac == "" {
		mac = l.link.HardwareAddr()
	}

	log.Info().Str("mac", mac).Str("name", l.opts.DeviceName).Msg("Registering device")

	reg, err := l.client.Register(ctx, mac, l.opts.DeviceName)
	if err != nil {
		log.Warn().Err(err).Msg("Registration failed, will retry")
		l.setError(errKeyRegister, err)
		return
	}
	l.clearError(errKeyRegister)

	l.identity = reg.Identity
	if err := l.prefs.SaveIdentity(reg.Identity); err != nil {
		log.Error().Err(err).Msg("Failed to persist identity")
	}

	log.Info().
		Uint32("device_id", reg.Identity.ID).
		Str("token", reg.Identity.MaskedToken()).
		Msg("Device registered")
	l.record(ledger.EventRegistered, "controller", map[string]any{"device_id": reg.Identity.ID, "mac": mac})

	if reg.Directives != nil {
		l.applyDirectives(*reg.Directives, now)
	}
}

func (l *Loop) applyDirectives(u device.DirectiveUpdate, now time.Time) {
	d := l.directives
	if !d.Apply(u) {
		return
	}

	l.directives = d
	if err := l.prefs.SaveDirectives(d); err != nil {
		log.Error().Err(err).Msg("Failed to persist directives")
	}
	l.updateEndpoints()
	l.nextPoll = now.Add(d.PollInterval)

	log.Info().
		Str("state_url", d.StateURL).
		Str("telemetry_url", d.TelemetryURL).
		Dur("poll_interval", d.PollInterval).
		Msg("Controller directives applied")
	l.record(ledger.EventDirectivesApplied, "controller", map[string]any{
		"state_url":        d.StateURL,
		"telemetry_url":    d.TelemetryURL,
		"poll_interval_ms": d.PollInterval.Milliseconds(),
	})
}

func (l *Loop) synchronize(ctx context.Context, now time.Time) {
	if l.creds.ServerURL == "" {
		return
	}

	if !now.Before(l.nextPoll) {
		l.nextPoll = now.Add(l.directives.PollInterval)
		l.pollDesiredState(ctx)
	}

	if !now.Before(l.nextTelemetry) {
		l.nextTelemetry = now.Add(l.opts.TelemetryInterval)
		l.sendTelemetry(ctx)
	}
}

func (l *Loop) pollDesiredState(ctx context.Context) {
	on, err := l.client.FetchDesiredState(ctx, l.identity.ID, l.identity.Token)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch desired state")
		l.setError(errKeyState, err)
		return
	}
	l.clearError(errKeyState)

	changed := l.desired == nil || *l.desired != on
	l.desired = &on

	before, beforeErr := l.relay.IsOn()
	if err := l.relay.SetOn(on); err != nil {
		log.Error().Err(err).Msg("Failed to apply desired relay state")
		l.setError(errKeyRelay, err)
		return
	}
	l.clearError(errKeyRelay)

	// The force-off lock may have downgraded the request
	after, afterErr := l.relay.IsOn()
	if afterErr != nil {
		after = on && !l.relay.ForceOff()
	}

	if changed || beforeErr != nil || before != after {
		log.Info().Bool("requested", on).Bool("on", after).Msg("Relay state applied from controller")
		l.record(ledger.EventRelayApplied, "controller", map[string]any{
			"on":        after,
			"requested": on,
		})
	}
}

func (l *Loop) sendTelemetry(ctx context.Context) {
	on, err := l.relay.IsOn()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read relay for telemetry")
	}

	reading, err := l.sensor.Read(ctx, on)
	if err != nil {
		log.Warn().Err(err).Msg("Sensor read failed, reporting fallback values")
		l.setError(errKeySensor, err)
	} else {
		l.clearError(errKeySensor)
	}

	err = l.client.SendTelemetry(ctx, l.identity.ID, l.identity.Token, controller.Telemetry{
		Voltage: reading.Voltage,
		Current: reading.Current,
		IsOn:    on,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to send telemetry")
		l.setError(errKeyTelemetry, err)
		return
	}
	l.clearError(errKeyTelemetry)
	log.Debug().Bool("is_on", on).Float64("voltage", reading.Voltage).Float64("current", reading.Current).Msg("Telemetry sent")
}

func (l *Loop) updateEndpoints() {
	l.client.SetEndpoints(controller.Endpoints{
		BaseURL:           l.creds.ServerURL,
		StateOverride:     l.directives.StateURL,
		TelemetryOverride: l.directives.TelemetryURL,
	})
}

func (l *Loop) setError(key string, err error) {
	l.lastErrors[key] = err.Error()
}

func (l *Loop) clearError(key string) {
	delete(l.lastErrors, key)
}

func (l *Loop) record(eventType ledger.EventType, source string, payload map[string]any) {
	if l.recorder == nil {
		return
	}
	if err := l.recorder.Append(eventType, source, payload); err != nil {
		log.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to record ledger event")
	}
}

func (l *Loop) publish(now time.Time) {
	relayOn, err := l.relay.IsOn()
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read relay for snapshot")
	}

	errs := make(map[string]string, len(l.lastErrors))
	for k, v := range l.lastErrors {
		errs[k] = v
	}

	var desired *bool
	if l.desired != nil {
		v := *l.desired
		desired = &v
	}

	s := &Snapshot{
		Phase:            l.phase.String(),
		LinkState:        l.link.CurrentState().String(),
		WiFiConnected:    l.link.Connected(),
		APActive:         l.link.APActive(),
		APPersistent:     l.apPersistent,
		SSID:             l.creds.SSID,
		IP:               l.link.IPAddr(),
		MAC:              l.mac(),
		ServerURL:        l.creds.ServerURL,
		DeviceID:         l.identity.ID,
		Token:            l.identity.MaskedToken(),
		RelayOn:          relayOn,
		Polarity:         l.relay.Polarity().String(),
		ForceOff:         l.relay.ForceOff(),
		DesiredOn:        desired,
		PollIntervalMs:   l.directives.PollInterval.Milliseconds(),
		StateURL:         l.directives.StateURL,
		TelemetryURL:     l.directives.TelemetryURL,
		ReconnectPending: l.reconnectRequested,
		LastErrors:       errs,
		UpdatedAt:        now,
	}

	prev := l.snapshot.Swap(s)
	if prev != nil && prev.Equal(*s) {
		return
	}

	l.listenersMu.Lock()
	listeners := l.listeners
	l.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(*s)
	}
}

func (l *Loop) mac() string {
	if l.opts.MAC != "" {
		return l.opts.MAC
	}
	return l.link.HardwareAddr()
}
