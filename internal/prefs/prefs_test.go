package prefs

import (
	"math"
	"testing"
	"time"

	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/storage/kv"
)

func newTestStore(defaults Defaults) *Store {
	return New(kv.NewMemoryBucket("test"), defaults)
}

func TestDefaultsUntilWritten(t *testing.T) {
	s := newTestStore(Defaults{
		Credentials: device.Credentials{SSID: "factory", ServerURL: "http://ctl:8000"},
		Polarity:    device.ActiveLow,
	})

	creds := s.Credentials()
	if creds.SSID != "factory" || creds.ServerURL != "http://ctl:8000" {
		t.Errorf("Credentials() = %+v", creds)
	}
	if s.Identity().Registered() {
		t.Error("fresh store should be unregistered")
	}
	if got := s.Directives().PollInterval; got != device.DefaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", got, device.DefaultPollInterval)
	}
	if s.Polarity() != device.ActiveLow {
		t.Errorf("Polarity() = %v, want active_low", s.Polarity())
	}
	if s.APPersistent() {
		t.Error("APPersistent() should default to false")
	}
}

func TestRewriteCredentialsClearsIdentity(t *testing.T) {
	s := newTestStore(Defaults{Credentials: device.Credentials{ServerURL: "http://old:8000"}})

	if err := s.SaveIdentity(device.Identity{ID: 7, Token: "tok"}); err != nil {
		t.Fatalf("SaveIdentity() error = %v", err)
	}
	if !s.Identity().Registered() {
		t.Fatal("identity not saved")
	}

	tests := []struct {
		name       string
		in         device.Credentials
		wantServer string
	}{
		{"explicit server", device.Credentials{SSID: "home", Passphrase: "pw", ServerURL: "http://new:8000"}, "http://new:8000"},
		{"empty server keeps current", device.Credentials{SSID: "other", Passphrase: "pw2"}, "http://new:8000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.SaveIdentity(device.Identity{ID: 9, Token: "again"})

			got, err := s.RewriteCredentials(tt.in)
			if err != nil {
				t.Fatalf("RewriteCredentials() error = %v", err)
			}
			if got.ServerURL != tt.wantServer {
				t.Errorf("ServerURL = %q, want %q", got.ServerURL, tt.wantServer)
			}
			if stored := s.Credentials(); stored != got {
				t.Errorf("stored %+v, returned %+v", stored, got)
			}
			if s.Identity().Registered() {
				t.Error("identity should be cleared by a credential rewrite")
			}
		})
	}
}

func TestRewriteCredentialsEmptyPassphrase(t *testing.T) {
	tests := []struct {
		name     string
		in       device.Credentials
		wantPass string
	}{
		{"same ssid keeps passphrase", device.Credentials{SSID: "home", ServerURL: "http://new:8000"}, "secret"},
		{"new ssid is open network", device.Credentials{SSID: "cafe"}, ""},
		{"explicit passphrase replaces", device.Credentials{SSID: "home", Passphrase: "changed"}, "changed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(Defaults{})
			if _, err := s.RewriteCredentials(device.Credentials{SSID: "home", Passphrase: "secret", ServerURL: "http://old:8000"}); err != nil {
				t.Fatalf("RewriteCredentials() error = %v", err)
			}

			got, err := s.RewriteCredentials(tt.in)
			if err != nil {
				t.Fatalf("RewriteCredentials() error = %v", err)
			}
			if got.Passphrase != tt.wantPass {
				t.Errorf("Passphrase = %q, want %q", got.Passphrase, tt.wantPass)
			}
			if stored := s.Credentials().Passphrase; stored != tt.wantPass {
				t.Errorf("stored passphrase = %q, want %q", stored, tt.wantPass)
			}
		})
	}
}

func TestHalfWrittenIdentityReadsUnregistered(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *Store)
	}{
		{"id without token", func(s *Store) { s.PutUint(KeyDeviceID, 7) }},
		{"token without id", func(s *Store) { s.PutString(KeyDeviceToken, "tok") }},
		{"zero id with token", func(s *Store) {
			s.PutUint(KeyDeviceID, 0)
			s.PutString(KeyDeviceToken, "tok")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(Defaults{})
			tt.setup(s)
			if id := s.Identity(); id.Registered() {
				t.Errorf("Identity() = %+v, want unregistered", id)
			}
		})
	}
}

func TestSaveDirectivesKeepsPollIntervalAboveZero(t *testing.T) {
	s := newTestStore(Defaults{PollInterval: 5 * time.Second})

	if err := s.SaveDirectives(device.Directives{
		StateURL:     "http://ctl/state",
		PollInterval: 3 * time.Second,
	}); err != nil {
		t.Fatalf("SaveDirectives() error = %v", err)
	}
	if err := s.SaveDirectives(device.Directives{PollInterval: 0}); err != nil {
		t.Fatalf("SaveDirectives() error = %v", err)
	}

	d := s.Directives()
	if d.PollInterval != 3*time.Second {
		t.Errorf("PollInterval = %v, want 3s retained", d.PollInterval)
	}
	if d.StateURL != "http://ctl/state" {
		t.Errorf("StateURL = %q, empty override must not erase it", d.StateURL)
	}
}

func TestSaveDirectivesSaturatesLongPollInterval(t *testing.T) {
	s := newTestStore(Defaults{})

	if err := s.SaveDirectives(device.Directives{PollInterval: 1193*time.Hour + 2*time.Minute + 48*time.Second}); err != nil {
		t.Fatalf("SaveDirectives() error = %v", err)
	}

	want := time.Duration(math.MaxUint32) * time.Millisecond
	if got := s.Directives().PollInterval; got != want {
		t.Errorf("PollInterval = %v, want %v", got, want)
	}
}

func TestStoredZeroPollIntervalFallsBackToDefault(t *testing.T) {
	s := newTestStore(Defaults{PollInterval: 4 * time.Second})
	s.PutUint(KeyPollInterval, 0)

	if got := s.Directives().PollInterval; got != 4*time.Second {
		t.Errorf("PollInterval = %v, want 4s", got)
	}
}

func TestTypedAccessorsFallBackOnWrongType(t *testing.T) {
	s := newTestStore(Defaults{})
	s.PutString("n", "not-a-number")
	s.PutUint("s", 3)
	s.PutString("b", "yes")

	if got := s.GetUint("n", 11); got != 11 {
		t.Errorf("GetUint() = %d, want default 11", got)
	}
	if got := s.GetString("s", "def"); got != "def" {
		t.Errorf("GetString() = %q, want default", got)
	}
	if got := s.GetBool("b", true); !got {
		t.Error("GetBool() should fall back to the default")
	}
}

func TestPolarityAndAPFlagRoundTrip(t *testing.T) {
	s := newTestStore(Defaults{})

	if err := s.SavePolarity(device.ActiveLow); err != nil {
		t.Fatalf("SavePolarity() error = %v", err)
	}
	if err := s.SetAPPersistent(true); err != nil {
		t.Fatalf("SetAPPersistent() error = %v", err)
	}
	if s.Polarity() != device.ActiveLow || !s.APPersistent() {
		t.Errorf("Polarity() = %v, APPersistent() = %v", s.Polarity(), s.APPersistent())
	}

	s.PutString(KeyPolarity, "sideways")
	if s.Polarity() != device.ActiveHigh {
		t.Error("invalid stored polarity should read as the default")
	}
}

func TestResetClearsEverything(t *testing.T) {
	s := newTestStore(Defaults{Credentials: device.Credentials{SSID: "factory"}})
	s.RewriteCredentials(device.Credentials{SSID: "home", ServerURL: "http://ctl"})
	s.SaveIdentity(device.Identity{ID: 1, Token: "t"})

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if s.Credentials().SSID != "factory" {
		t.Errorf("SSID = %q, want factory default", s.Credentials().SSID)
	}
	if s.HasKey(KeyDeviceID) {
		t.Error("device id survived Reset()")
	}
}
