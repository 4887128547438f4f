package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the agent configuration.
// Every value has a default; the file only needs to override what differs.
type Config struct {
	Device          DeviceConfig     `yaml:"device"`
	Controller      ControllerConfig `yaml:"controller"`
	Link            LinkConfig       `yaml:"link"`
	Relay           RelayConfig      `yaml:"relay"`
	Sync            SyncConfig       `yaml:"sync"`
	Sensor          SensorConfig     `yaml:"sensor"`
	Database        DatabaseConfig   `yaml:"database"`
	Store           StoreConfig      `yaml:"store"`
	Status          StatusConfig     `yaml:"status"`
	MQTT            MQTTConfig       `yaml:"mqtt"`
	Ledger          LedgerConfig     `yaml:"ledger"`
	Log             LogConfig        `yaml:"log"`
	ShutdownTimeout Duration         `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DeviceConfig describes how the device presents itself to the controller
type DeviceConfig struct {
	Name string `yaml:"name"`
	MAC  string `yaml:"mac"` // Overrides the station interface MAC when set
}

// ControllerConfig contains remote controller settings
type ControllerConfig struct {
	BaseURL       string   `yaml:"base_url"` // Used until a URL is provisioned
	Timeout       Duration `yaml:"timeout"`  // HTTP timeout for controller requests
	RegisterPath  string   `yaml:"register_path"`
	StatePath     string   `yaml:"state_path"`
	TelemetryPath string   `yaml:"telemetry_path"`
	RateLimitRPS  float64  `yaml:"rate_limit_rps"`
}

// LinkConfig contains network link settings
type LinkConfig struct {
	Driver         string   `yaml:"driver"`       // "nmcli" or "sim"
	Interface      string   `yaml:"interface"`    // Station wireless interface
	APInterface    string   `yaml:"ap_interface"` // Hotspot interface; empty shares Interface
	ConnectTimeout Duration `yaml:"connect_timeout"`
	PollStep       Duration `yaml:"poll_step"`      // Link status polling step during a join
	RetryInterval  Duration `yaml:"retry_interval"` // Minimum gap between automatic station retries
	APSSID         string   `yaml:"ap_ssid"`
	APPassword     string   `yaml:"ap_password"`
	APPersistent   bool     `yaml:"ap_persistent"` // Seed for the stored flag

	// Credentials used until the first provisioning write
	SSID       string `yaml:"ssid"`
	Passphrase string `yaml:"passphrase"`

	SimNetworks map[string]string `yaml:"sim_networks"` // ssid -> passphrase reachable by the sim driver
}

// RelayConfig contains actuator settings
type RelayConfig struct {
	Driver   string `yaml:"driver"` // "gpiocdev" or "sim"
	Chip     string `yaml:"chip"`
	Pin      int    `yaml:"pin"`
	LEDPin   int    `yaml:"led_pin"`  // Negative disables the indicator
	Polarity string `yaml:"polarity"` // "active_high" or "active_low"
	ForceOff bool   `yaml:"force_off"`
}

// SyncConfig contains sync loop cadences
type SyncConfig struct {
	Tick              Duration `yaml:"tick"`
	PollInterval      Duration `yaml:"poll_interval"`      // Used until the controller issues one
	TelemetryInterval Duration `yaml:"telemetry_interval"` // Fixed, not adjustable by the controller
	ReconnectDebounce Duration `yaml:"reconnect_debounce"`
}

// SensorConfig contains telemetry sensor settings
type SensorConfig struct {
	Script  string  `yaml:"script"` // Optional Lua sensor script; static values are used when empty
	Voltage float64 `yaml:"voltage"`
	Current float64 `yaml:"current"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StoreConfig contains durable preference settings
type StoreConfig struct {
	Namespace string `yaml:"namespace"`
}

// StatusConfig contains local status/provisioning server settings
type StatusConfig struct {
	Enabled *bool  `yaml:"enabled"` // nil = enabled; it is the provisioning surface
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// IsEnabled returns whether the status server should run (default: true)
func (c *StatusConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// MQTTConfig contains the optional MQTT mirror settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file.
// A missing file is not an error: the agent runs on defaults and is
// provisioned through the local surface.
func Load(path string) (*Config, error) {
	cfg := seeded()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand environment variables
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		// Defaults only
	default:
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := seeded()
	cfg.applyDefaults()
	return &cfg
}

// seeded holds the defaults for fields where zero is a valid setting. They
// are set before decoding so an explicit 0 in the file survives.
func seeded() Config {
	return Config{
		Relay: RelayConfig{
			Pin:    2,
			LEDPin: 4,
		},
		// Nominal pump readings
		Sensor: SensorConfig{
			Voltage: 220.0,
			Current: 3.5,
		},
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Device defaults
	if cfg.Device.Name == "" {
		cfg.Device.Name = "relayd"
	}

	// Controller defaults
	if cfg.Controller.BaseURL == "" {
		cfg.Controller.BaseURL = "http://192.168.1.100:8000"
	}
	if cfg.Controller.Timeout == 0 {
		cfg.Controller.Timeout = Duration(10 * time.Second)
	}
	if cfg.Controller.RegisterPath == "" {
		cfg.Controller.RegisterPath = "/api/devices/register"
	}
	if cfg.Controller.StatePath == "" {
		cfg.Controller.StatePath = "/api/pump/state"
	}
	if cfg.Controller.TelemetryPath == "" {
		cfg.Controller.TelemetryPath = "/api/telemetry"
	}
	if cfg.Controller.RateLimitRPS == 0 {
		cfg.Controller.RateLimitRPS = 5.0
	}

	// Link defaults
	if cfg.Link.Driver == "" {
		cfg.Link.Driver = "nmcli"
	}
	if cfg.Link.Interface == "" {
		cfg.Link.Interface = "wlan0"
	}
	if cfg.Link.ConnectTimeout == 0 {
		cfg.Link.ConnectTimeout = Duration(20 * time.Second)
	}
	if cfg.Link.PollStep == 0 {
		cfg.Link.PollStep = Duration(250 * time.Millisecond)
	}
	if cfg.Link.RetryInterval == 0 {
		cfg.Link.RetryInterval = Duration(60 * time.Second)
	}
	if cfg.Link.APSSID == "" {
		cfg.Link.APSSID = "relayd-setup"
	}
	if cfg.Link.APPassword == "" {
		cfg.Link.APPassword = "12345678"
	}

	// Relay defaults
	if cfg.Relay.Driver == "" {
		cfg.Relay.Driver = "gpiocdev"
	}
	if cfg.Relay.Chip == "" {
		cfg.Relay.Chip = "gpiochip0"
	}
	if cfg.Relay.Polarity == "" {
		cfg.Relay.Polarity = "active_high"
	}

	// Sync defaults
	if cfg.Sync.Tick == 0 {
		cfg.Sync.Tick = Duration(100 * time.Millisecond)
	}
	if cfg.Sync.PollInterval == 0 {
		cfg.Sync.PollInterval = Duration(2 * time.Second)
	}
	if cfg.Sync.TelemetryInterval == 0 {
		cfg.Sync.TelemetryInterval = Duration(15 * time.Second)
	}
	if cfg.Sync.ReconnectDebounce == 0 {
		cfg.Sync.ReconnectDebounce = Duration(1 * time.Second)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "./relayd.sqlite"
	}
	if cfg.Store.Namespace == "" {
		cfg.Store.Namespace = "relayd"
	}

	// Status server defaults
	if cfg.Status.Host == "" {
		cfg.Status.Host = "0.0.0.0"
	}
	if cfg.Status.Port == 0 {
		cfg.Status.Port = 8080
	}

	// MQTT defaults
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "relayd"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "relayd-" + cfg.Device.Name
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// StatusAddr returns the listen address of the local status server
func (cfg *Config) StatusAddr() string {
	return fmt.Sprintf("%s:%d", cfg.Status.Host, cfg.Status.Port)
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
