package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for printcast.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Printer  PrinterConfig  `yaml:"printer"`
	OBS      OBSConfig      `yaml:"obs"`
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PrinterConfig contains the printer's MQTT and FTPS connection settings.
type PrinterConfig struct {
	Host     string `yaml:"host"`
	MQTTPort int    `yaml:"mqtt_port"`
	FTPPort  int    `yaml:"ftp_port"`
	Username string `yaml:"username"`

	// AccessCode is the LAN access code shown on the printer's screen.
	// It is used as the password for both MQTT and FTPS.
	AccessCode string `yaml:"access_code"`

	// Serial scopes the MQTT report topic (device/{serial}/report).
	Serial string `yaml:"serial"`

	// TLSInsecure disables certificate verification. Printers present a
	// self-signed certificate, so this defaults to true.
	TLSInsecure bool `yaml:"tls_insecure"`

	// SDPPath is the ffmpeg SDP file describing the printer's camera feed.
	SDPPath string `yaml:"sdp_path"`

	QoS int `yaml:"qos"`

	// RetryInterval is the delay between reconnect attempts (seconds).
	RetryInterval int `yaml:"retry_interval"`
}

// OBSConfig contains obs-websocket connection and provisioning settings.
type OBSConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`

	Scene        string `yaml:"scene"`
	StreamSource string `yaml:"stream_source"`

	// RetryInterval is the delay between websocket reconnect attempts (seconds).
	RetryInterval int `yaml:"retry_interval"`

	// BackoffMS is the pause after every provisioning call (milliseconds).
	BackoffMS int `yaml:"backoff_ms"`

	StartStreamOnStartup bool `yaml:"start_stream_on_startup"`
	StopStreamOnIdle     bool `yaml:"stop_stream_on_idle"`
	ForceCreateInputs    bool `yaml:"force_create_inputs"`
	LockInputs           bool `yaml:"lock_inputs"`
}

// AppConfig contains process-level behaviour flags.
type AppConfig struct {
	ExitOnIdle              bool `yaml:"exit_on_idle"`
	ExitOnPrinterDisconnect bool `yaml:"exit_on_printer_disconnect"`
	ExitOnOBSDisconnect     bool `yaml:"exit_on_obs_disconnect"`

	// PrintSceneItemsAndExit dumps the current OBS layout once connected and exits.
	PrintSceneItemsAndExit bool `yaml:"print_scene_items_and_exit"`

	// ImageDir holds the overlay icons and the downloaded print preview.
	ImageDir string `yaml:"image_dir"`

	QueueCapacity int `yaml:"queue_capacity"`

	// ThrottleMS is the pause between processed messages (milliseconds).
	ThrottleMS int `yaml:"throttle_ms"`

	// LookupTimeout bounds the print file lookup over FTPS (seconds).
	LookupTimeout int `yaml:"lookup_timeout"`
}

// DatabaseConfig contains SQLite settings for the print journal.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains status API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`

	// PanelDir serves the status page from disk instead of the embedded copy.
	PanelDir string `yaml:"panel_dir"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PRINTCAST_SECTION_KEY
// For example: PRINTCAST_PRINTER_ACCESS_CODE, PRINTCAST_OBS_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Printer: PrinterConfig{
			MQTTPort:      8883,
			FTPPort:       990,
			Username:      "bblp",
			TLSInsecure:   true,
			QoS:           0,
			RetryInterval: 1,
		},
		OBS: OBSConfig{
			URL:           "ws://localhost:4455",
			Scene:         "BambuScene",
			StreamSource:  "BambuStreamSource",
			RetryInterval: 5,
			BackoffMS:     100,
		},
		App: AppConfig{
			ExitOnIdle:              true,
			ExitOnPrinterDisconnect: false,
			ExitOnOBSDisconnect:     true,
			ImageDir:                "images",
			QueueCapacity:           5,
			ThrottleMS:              10,
			LookupTimeout:           30,
		},
		Database: DatabaseConfig{
			Path:        "./data/printcast.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8089,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PRINTCAST_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Printer
	if v := os.Getenv("PRINTCAST_PRINTER_HOST"); v != "" {
		cfg.Printer.Host = v
	}
	if v := os.Getenv("PRINTCAST_PRINTER_ACCESS_CODE"); v != "" {
		cfg.Printer.AccessCode = v
	}
	if v := os.Getenv("PRINTCAST_PRINTER_SERIAL"); v != "" {
		cfg.Printer.Serial = v
	}

	// OBS
	if v := os.Getenv("PRINTCAST_OBS_URL"); v != "" {
		cfg.OBS.URL = v
	}
	if v := os.Getenv("PRINTCAST_OBS_PASSWORD"); v != "" {
		cfg.OBS.Password = v
	}

	// Database
	if v := os.Getenv("PRINTCAST_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("PRINTCAST_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Printer validation
	if c.Printer.Host == "" {
		errs = append(errs, "printer.host is required")
	}
	if c.Printer.AccessCode == "" {
		errs = append(errs, "printer.access_code is required (set PRINTCAST_PRINTER_ACCESS_CODE environment variable)")
	}
	if c.Printer.Serial == "" {
		errs = append(errs, "printer.serial is required")
	}
	if c.Printer.MQTTPort < 1 || c.Printer.MQTTPort > 65535 {
		errs = append(errs, "printer.mqtt_port must be between 1 and 65535")
	}
	if c.Printer.FTPPort < 1 || c.Printer.FTPPort > 65535 {
		errs = append(errs, "printer.ftp_port must be between 1 and 65535")
	}
	if c.Printer.QoS < 0 || c.Printer.QoS > 2 {
		errs = append(errs, "printer.qos must be 0, 1, or 2")
	}

	// OBS validation
	if c.OBS.URL == "" {
		errs = append(errs, "obs.url is required")
	} else if !strings.HasPrefix(c.OBS.URL, "ws://") {
		errs = append(errs, "obs.url must be a ws:// address")
	}
	if c.OBS.Scene == "" {
		errs = append(errs, "obs.scene is required")
	}
	if c.OBS.StreamSource == "" {
		errs = append(errs, "obs.stream_source is required")
	}

	// App validation
	if c.App.QueueCapacity < 1 {
		errs = append(errs, "app.queue_capacity must be at least 1")
	}

	// Optional sinks
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetPrinterRetryInterval returns the MQTT reconnect interval as a Duration.
func (c *Config) GetPrinterRetryInterval() time.Duration {
	return time.Duration(c.Printer.RetryInterval) * time.Second
}

// GetOBSRetryInterval returns the websocket reconnect interval as a Duration.
func (c *Config) GetOBSRetryInterval() time.Duration {
	return time.Duration(c.OBS.RetryInterval) * time.Second
}

// GetBackoff returns the provisioning backoff as a Duration.
func (c *Config) GetBackoff() time.Duration {
	return time.Duration(c.OBS.BackoffMS) * time.Millisecond
}

// GetThrottle returns the inter-message throttle as a Duration.
func (c *Config) GetThrottle() time.Duration {
	return time.Duration(c.App.ThrottleMS) * time.Millisecond
}

// GetLookupTimeout returns the print file lookup timeout as a Duration.
func (c *Config) GetLookupTimeout() time.Duration {
	return time.Duration(c.App.LookupTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
