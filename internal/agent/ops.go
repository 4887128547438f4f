package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/ledger"
)

// ErrMissingSSID is returned by Configure when no SSID is given.
var ErrMissingSSID = errors.New("ssid is required")

// Configure rewrites the network credentials, clears the device identity and
// schedules a debounced reconnect. An empty server URL keeps the current one.
func (l *Loop) Configure(ctx context.Context, creds device.Credentials) error {
	if creds.SSID == "" {
		return ErrMissingSSID
	}
	return l.Do(ctx, func(ctx context.Context) error {
		return l.configure(creds, time.Now())
	})
}

func (l *Loop) configure(creds device.Credentials, now time.Time) error {
	stored, err := l.prefs.RewriteCredentials(creds)
	if err != nil {
		return err
	}

	hadIdentity := l.identity.Registered()
	l.creds = stored
	l.identity = device.Identity{}
	l.desired = nil
	l.nextPoll = time.Time{}
	l.nextTelemetry = time.Time{}
	l.updateEndpoints()

	l.reconnectRequested = true
	l.reconnectAt = now.Add(l.opts.ReconnectDebounce)

	log.Info().
		Str("ssid", stored.SSID).
		Str("server_url", stored.ServerURL).
		Bool("identity_cleared", hadIdentity).
		Dur("debounce", l.opts.ReconnectDebounce).
		Msg("Credentials updated, reconnect scheduled")
	l.record(ledger.EventCredentialsChanged, "provisioning", map[string]any{
		"ssid":       stored.SSID,
		"server_url": stored.ServerURL,
	})
	return nil
}

// SetRelay applies a manual override. The next poll boundary re-applies the
// controller's intent.
func (l *Loop) SetRelay(ctx context.Context, on bool, source string) error {
	return l.Do(ctx, func(ctx context.Context) error {
		if err := l.relay.SetOn(on); err != nil {
			l.setError(errKeyRelay, err)
			return err
		}
		l.clearError(errKeyRelay)

		log.Info().Bool("on", on).Str("source", source).Msg("Manual relay override")
		l.record(ledger.EventRelayApplied, source, map[string]any{"on": on})
		return nil
	})
}

// SetPolarity changes and persists the relay calibration, keeping the
// logical relay state.
func (l *Loop) SetPolarity(ctx context.Context, p device.Polarity) error {
	return l.Do(ctx, func(ctx context.Context) error {
		prev := l.relay.Polarity()
		if err := l.relay.SetPolarity(p); err != nil {
			return err
		}
		if err := l.prefs.SavePolarity(p); err != nil {
			return fmt.Errorf("failed to persist polarity: %w", err)
		}
		if prev != p {
			l.record(ledger.EventPolarityChanged, "local", map[string]any{
				"from": prev.String(),
				"to":   p.String(),
			})
		}
		return nil
	})
}

// SetAPPersistent changes whether the access point stays up while the
// station link is connected.
func (l *Loop) SetAPPersistent(ctx context.Context, v bool) error {
	return l.Do(ctx, func(ctx context.Context) error {
		if err := l.link.SetAPPersistent(v); err != nil {
			return err
		}
		if err := l.prefs.SetAPPersistent(v); err != nil {
			_ = l.link.SetAPPersistent(l.apPersistent)
			return fmt.Errorf("failed to persist ap flag: %w", err)
		}
		l.apPersistent = v

		switch {
		case v:
			return l.link.EnableAccessPoint()
		case l.link.Connected():
			return l.link.DisableAccessPoint()
		}
		return nil
	})
}

// ResetIdentity forgets the controller identity; the device re-registers.
func (l *Loop) ResetIdentity(ctx context.Context) error {
	return l.Do(ctx, func(ctx context.Context) error {
		if err := l.prefs.ClearIdentity(); err != nil {
			return err
		}
		l.identity = device.Identity{}
		l.desired = nil
		l.nextPoll = time.Time{}

		log.Info().Msg("Device identity cleared")
		l.record(ledger.EventIdentityCleared, "local", nil)
		return nil
	})
}
