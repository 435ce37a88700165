package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
printer:
  host: "192.168.1.50"
  access_code: "12345678"
  serial: "01S00C123456789"
  sdp_path: "/opt/printcast/camera.sdp"
obs:
  url: "ws://obs.local:4455"
  password: "obs-secret"
  stop_stream_on_idle: true
app:
  exit_on_idle: false
  queue_capacity: 8
database:
  enabled: true
  path: "/tmp/test.db"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Printer.Host != "192.168.1.50" {
		t.Errorf("Printer.Host = %q, want %q", cfg.Printer.Host, "192.168.1.50")
	}
	if cfg.Printer.Serial != "01S00C123456789" {
		t.Errorf("Printer.Serial = %q, want %q", cfg.Printer.Serial, "01S00C123456789")
	}
	if cfg.OBS.URL != "ws://obs.local:4455" {
		t.Errorf("OBS.URL = %q, want %q", cfg.OBS.URL, "ws://obs.local:4455")
	}
	if !cfg.OBS.StopStreamOnIdle {
		t.Error("OBS.StopStreamOnIdle = false, want true")
	}
	if cfg.App.ExitOnIdle {
		t.Error("App.ExitOnIdle = true, want false (file overrides default)")
	}
	if cfg.App.QueueCapacity != 8 {
		t.Errorf("App.QueueCapacity = %d, want 8", cfg.App.QueueCapacity)
	}

	// Defaults survive for keys the file leaves out.
	if cfg.Printer.MQTTPort != 8883 {
		t.Errorf("Printer.MQTTPort = %d, want 8883", cfg.Printer.MQTTPort)
	}
	if cfg.Printer.Username != "bblp" {
		t.Errorf("Printer.Username = %q, want %q", cfg.Printer.Username, "bblp")
	}
	if cfg.OBS.Scene != "BambuScene" {
		t.Errorf("OBS.Scene = %q, want %q", cfg.OBS.Scene, "BambuScene")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
printer:
  host: "192.168.1.50"
obs:
  url: "ws://localhost:4455"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for missing access code, got nil")
	}
	if !strings.Contains(err.Error(), "printer.access_code") {
		t.Errorf("Load() error = %v, want mention of printer.access_code", err)
	}
	if !strings.Contains(err.Error(), "printer.serial") {
		t.Errorf("Load() error = %v, want all problems reported together", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	content := `
printer:
  host: "192.168.1.50"
  access_code: "from-file"
  serial: "SERIAL"
`
	t.Setenv("PRINTCAST_PRINTER_ACCESS_CODE", "from-env")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Printer.AccessCode != "from-env" {
		t.Errorf("Printer.AccessCode = %q, want %q", cfg.Printer.AccessCode, "from-env")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Printer.Host = "192.168.1.50"
	cfg.Printer.AccessCode = "12345678"
	cfg.Printer.Serial = "SERIAL"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing printer host",
			mutate:  func(c *Config) { c.Printer.Host = "" },
			wantErr: true,
		},
		{
			name:    "missing serial",
			mutate:  func(c *Config) { c.Printer.Serial = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.Printer.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid mqtt port",
			mutate:  func(c *Config) { c.Printer.MQTTPort = 70000 },
			wantErr: true,
		},
		{
			name:    "missing OBS URL",
			mutate:  func(c *Config) { c.OBS.URL = "" },
			wantErr: true,
		},
		{
			name:    "OBS URL without ws scheme",
			mutate:  func(c *Config) { c.OBS.URL = "localhost:4455" },
			wantErr: true,
		},
		{
			name:    "zero queue capacity",
			mutate:  func(c *Config) { c.App.QueueCapacity = 0 },
			wantErr: true,
		},
		{
			name: "journal enabled without path",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Path = ""
			},
			wantErr: true,
		},
		{
			name:    "journal disabled without path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: false,
		},
		{
			name:    "influxdb enabled without URL",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{
			name: "api enabled with bad port",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := defaultConfig()

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"printer retry", cfg.GetPrinterRetryInterval(), time.Second},
		{"obs retry", cfg.GetOBSRetryInterval(), 5 * time.Second},
		{"backoff", cfg.GetBackoff(), 100 * time.Millisecond},
		{"throttle", cfg.GetThrottle(), 10 * time.Millisecond},
		{"lookup timeout", cfg.GetLookupTimeout(), 30 * time.Second},
		{"api read", cfg.GetReadTimeout(), 10 * time.Second},
		{"api write", cfg.GetWriteTimeout(), 10 * time.Second},
		{"api idle", cfg.GetIdleTimeout(), 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("PRINTCAST_PRINTER_HOST", "10.0.0.20")
	t.Setenv("PRINTCAST_PRINTER_ACCESS_CODE", "87654321")
	t.Setenv("PRINTCAST_PRINTER_SERIAL", "ENV-SERIAL")
	t.Setenv("PRINTCAST_OBS_URL", "ws://10.0.0.30:4455")
	t.Setenv("PRINTCAST_OBS_PASSWORD", "obs-pass")
	t.Setenv("PRINTCAST_DATABASE_PATH", "/custom/path.db")
	t.Setenv("PRINTCAST_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"Printer.Host", cfg.Printer.Host, "10.0.0.20"},
		{"Printer.AccessCode", cfg.Printer.AccessCode, "87654321"},
		{"Printer.Serial", cfg.Printer.Serial, "ENV-SERIAL"},
		{"OBS.URL", cfg.OBS.URL, "ws://10.0.0.30:4455"},
		{"OBS.Password", cfg.OBS.Password, "obs-pass"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Printer.MQTTPort != 8883 {
		t.Errorf("defaultConfig Printer.MQTTPort = %d, want 8883", cfg.Printer.MQTTPort)
	}
	if cfg.Printer.FTPPort != 990 {
		t.Errorf("defaultConfig Printer.FTPPort = %d, want 990", cfg.Printer.FTPPort)
	}
	if !cfg.Printer.TLSInsecure {
		t.Error("defaultConfig Printer.TLSInsecure = false, want true")
	}
	if cfg.App.QueueCapacity != 5 {
		t.Errorf("defaultConfig App.QueueCapacity = %d, want 5", cfg.App.QueueCapacity)
	}
	if cfg.Database.Enabled || cfg.InfluxDB.Enabled || cfg.API.Enabled {
		t.Error("defaultConfig should leave optional sinks disabled")
	}
}
