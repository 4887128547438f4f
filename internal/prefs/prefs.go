// Package prefs is the durable configuration store of the agent: typed
// accessors over a kv.Bucket plus the domain records persisted in it.
package prefs

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/storage/kv"
)

// Persisted keys
const (
	KeySSID         = "wifi_ssid"
	KeyPassphrase   = "wifi_pass"
	KeyServerURL    = "server_url"
	KeyDeviceToken  = "device_token"
	KeyDeviceID     = "device_id"
	KeyStateURL     = "state_url"
	KeyTelemetryURL = "telemetry_url"
	KeyPollInterval = "poll_ms"
	KeyPolarity     = "relay_polarity"
	KeyAPPersistent = "ap_persistent"
)

// Defaults seed every record that has never been written.
type Defaults struct {
	Credentials  device.Credentials
	PollInterval time.Duration
	Polarity     device.Polarity
	APPersistent bool
}

// Store provides typed access to the preference bucket.
// Reads never fail: a missing or unreadable key yields the default so the
// agent can always boot. Writes report errors.
type Store struct {
	bucket   kv.Bucket
	defaults Defaults
}

// New creates a preference store over bucket.
func New(bucket kv.Bucket, defaults Defaults) *Store {
	if defaults.PollInterval < time.Millisecond {
		defaults.PollInterval = device.DefaultPollInterval
	}
	return &Store{bucket: bucket, defaults: defaults}
}

// GetString returns the string stored under key, or def.
func (s *Store) GetString(key, def string) string {
	v, ok := s.get(key)
	if !ok {
		return def
	}
	str, ok := v.(string)
	if !ok {
		log.Warn().Str("key", key).Msg("Preference is not a string, using default")
		return def
	}
	return str
}

// PutString stores a string under key.
func (s *Store) PutString(key, value string) error {
	return s.bucket.Store(key, value)
}

// GetUint returns the unsigned integer stored under key, or def.
func (s *Store) GetUint(key string, def uint32) uint32 {
	v, ok := s.get(key)
	if !ok {
		return def
	}
	n, ok := v.(float64)
	if !ok || n < 0 || n > math.MaxUint32 || n != math.Trunc(n) {
		log.Warn().Str("key", key).Interface("value", v).Msg("Preference is not an unsigned integer, using default")
		return def
	}
	return uint32(n)
}

// PutUint stores an unsigned integer under key.
func (s *Store) PutUint(key string, value uint32) error {
	return s.bucket.Store(key, value)
}

// GetBool returns the boolean stored under key, or def.
func (s *Store) GetBool(key string, def bool) bool {
	v, ok := s.get(key)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		log.Warn().Str("key", key).Msg("Preference is not a boolean, using default")
		return def
	}
	return b
}

// PutBool stores a boolean under key.
func (s *Store) PutBool(key string, value bool) error {
	return s.bucket.Store(key, value)
}

// RemoveKey deletes key. Removing a missing key is not an error.
func (s *Store) RemoveKey(key string) error {
	_, err := s.bucket.Delete(key)
	return err
}

// HasKey reports whether key is stored.
func (s *Store) HasKey(key string) bool {
	ok, err := s.bucket.Exists(key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to check preference")
		return false
	}
	return ok
}

func (s *Store) get(key string) (any, bool) {
	v, err := s.bucket.Get(key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to read preference")
		return nil, false
	}
	if v == nil {
		return nil, false
	}
	return v, true
}

// Credentials returns the provisioned network credentials.
func (s *Store) Credentials() device.Credentials {
	return device.Credentials{
		SSID:       s.GetString(KeySSID, s.defaults.Credentials.SSID),
		Passphrase: s.GetString(KeyPassphrase, s.defaults.Credentials.Passphrase),
		ServerURL:  s.GetString(KeyServerURL, s.defaults.Credentials.ServerURL),
	}
}

// RewriteCredentials stores new credentials and clears the device identity in
// the same transaction. An empty server URL keeps the current one, and so
// does an empty passphrase for the current SSID. Returns the credentials now
// in effect.
func (s *Store) RewriteCredentials(c device.Credentials) (device.Credentials, error) {
	current := s.Credentials()
	if c.ServerURL == "" {
		c.ServerURL = current.ServerURL
	}
	if c.Passphrase == "" && c.SSID == current.SSID {
		c.Passphrase = current.Passphrase
	}

	err := s.bucket.Update(func(tx kv.Tx) error {
		if err := tx.Store(KeySSID, c.SSID); err != nil {
			return err
		}
		if err := tx.Store(KeyPassphrase, c.Passphrase); err != nil {
			return err
		}
		if err := tx.Store(KeyServerURL, c.ServerURL); err != nil {
			return err
		}
		return clearIdentity(tx)
	})
	if err != nil {
		return device.Credentials{}, fmt.Errorf("failed to rewrite credentials: %w", err)
	}

	return c, nil
}

// Identity returns the stored identity. A half-written pair (id without token
// or token without id) reads as unregistered.
func (s *Store) Identity() device.Identity {
	id := device.Identity{
		ID:    s.GetUint(KeyDeviceID, 0),
		Token: s.GetString(KeyDeviceToken, ""),
	}
	if id.ID == 0 || id.Token == "" {
		return device.Identity{}
	}
	return id
}

// SaveIdentity stores id and token together.
func (s *Store) SaveIdentity(id device.Identity) error {
	if id.ID == 0 || id.Token == "" {
		return s.ClearIdentity()
	}
	err := s.bucket.Update(func(tx kv.Tx) error {
		if err := tx.Store(KeyDeviceToken, id.Token); err != nil {
			return err
		}
		return tx.Store(KeyDeviceID, id.ID)
	})
	if err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	return nil
}

// ClearIdentity resets the identity to unregistered.
func (s *Store) ClearIdentity() error {
	if err := s.bucket.Update(clearIdentity); err != nil {
		return fmt.Errorf("failed to clear identity: %w", err)
	}
	return nil
}

func clearIdentity(tx kv.Tx) error {
	if err := tx.Delete(KeyDeviceToken); err != nil {
		return err
	}
	return tx.Store(KeyDeviceID, uint32(0))
}

// Directives returns the stored operational directives.
func (s *Store) Directives() device.Directives {
	ms := s.GetUint(KeyPollInterval, uint32(s.defaults.PollInterval/time.Millisecond))
	if ms == 0 {
		ms = uint32(s.defaults.PollInterval / time.Millisecond)
	}
	return device.Directives{
		StateURL:     s.GetString(KeyStateURL, ""),
		TelemetryURL: s.GetString(KeyTelemetryURL, ""),
		PollInterval: time.Duration(ms) * time.Millisecond,
	}
}

// SaveDirectives stores d. A poll interval below one millisecond is not
// written, so the stored value never drops to zero.
func (s *Store) SaveDirectives(d device.Directives) error {
	err := s.bucket.Update(func(tx kv.Tx) error {
		if d.StateURL != "" {
			if err := tx.Store(KeyStateURL, d.StateURL); err != nil {
				return err
			}
		}
		if d.TelemetryURL != "" {
			if err := tx.Store(KeyTelemetryURL, d.TelemetryURL); err != nil {
				return err
			}
		}
		if ms := pollMillis(d.PollInterval); ms >= 1 {
			return tx.Store(KeyPollInterval, ms)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save directives: %w", err)
	}
	return nil
}

// pollMillis converts d to stored milliseconds, saturating at the largest
// storable value.
func pollMillis(d time.Duration) uint32 {
	ms := d / time.Millisecond
	if ms <= 0 {
		return 0
	}
	if ms > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ms)
}

// Polarity returns the stored relay polarity calibration.
func (s *Store) Polarity() device.Polarity {
	raw := s.GetString(KeyPolarity, "")
	if raw == "" {
		return s.defaults.Polarity
	}
	p, err := device.ParsePolarity(raw)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid stored polarity, using default")
		return s.defaults.Polarity
	}
	return p
}

// SavePolarity stores the relay polarity calibration.
func (s *Store) SavePolarity(p device.Polarity) error {
	return s.PutString(KeyPolarity, p.String())
}

// APPersistent reports whether the access point stays up while the station is connected.
func (s *Store) APPersistent() bool {
	return s.GetBool(KeyAPPersistent, s.defaults.APPersistent)
}

// SetAPPersistent stores the access-point persistence flag.
func (s *Store) SetAPPersistent(v bool) error {
	return s.PutBool(KeyAPPersistent, v)
}

// Reset removes every stored preference.
func (s *Store) Reset() error {
	return s.bucket.Clear()
}
