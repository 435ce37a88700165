package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetConfigPath(t *testing.T) {
	tests := []struct {
		name string
		flag string
		env  string
		want string
	}{
		{"default", "", "", defaultConfigPath},
		{"env override", "", "/etc/printcast/config.yaml", "/etc/printcast/config.yaml"},
		{"flag wins over env", "./local.yaml", "/etc/printcast/config.yaml", "./local.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(configPathEnv, tt.env)
			if got := getConfigPath(tt.flag); got != tt.want {
				t.Errorf("getConfigPath(%q) = %q, want %q", tt.flag, got, tt.want)
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"--config", "a.yaml", "--print-scene-items"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if opts.configPath != "a.yaml" || !opts.printSceneItems {
		t.Errorf("parseFlags() = %+v", opts)
	}

	if _, err := parseFlags([]string{"--bogus"}, &bytes.Buffer{}); err == nil {
		t.Error("parseFlags(--bogus) error = nil, want error")
	}
	if _, err := parseFlags([]string{"extra"}, &bytes.Buffer{}); err == nil {
		t.Error("parseFlags(extra) error = nil, want error")
	}
	if _, err := parseFlags([]string{"--help"}, &bytes.Buffer{}); !errors.Is(err, errHelp) {
		t.Errorf("parseFlags(--help) error = %v, want errHelp", err)
	}
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--version"}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "printcast "+version) {
		t.Errorf("output = %q, want version line", out.String())
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv(configPathEnv, "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, nil, &bytes.Buffer{})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config failure", err)
	}
}

func TestRun_ValidationFailure(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
printer:
  host: "127.0.0.1"
obs:
  url: "ws://127.0.0.1:4455"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	err := run(context.Background(), []string{"--config", configPath}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "printer.access_code") {
		t.Errorf("run() error = %v, want access code validation failure", err)
	}
}

func TestRun_ContextCancelledDuringStartup(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
printer:
  host: "127.0.0.1"
  mqtt_port: 1
  access_code: "12345678"
  serial: "TESTSERIAL"
obs:
  url: "ws://127.0.0.1:1"
app:
  exit_on_obs_disconnect: false
logging:
  level: error
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"-c", configPath}, &bytes.Buffer{}) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v, want nil after cancellation", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}
}
