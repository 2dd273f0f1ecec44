package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Bridge.Transport != "sim" || cfg.Bridge.DeviceNumber != 1 {
		t.Errorf("bridge defaults = %+v", cfg.Bridge)
	}
	if cfg.Acquisition.PollInterval != 500*time.Millisecond {
		t.Errorf("poll interval = %v", cfg.Acquisition.PollInterval)
	}
	if cfg.Database.Enabled || cfg.InfluxDB.Enabled {
		t.Error("recorders should be disabled by default")
	}
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := writeConfig(t, `
bridge:
  transport: tcp
  address: 10.0.0.5:5025
  timeout: 3s
acquisition:
  poll_interval: 250ms
database:
  enabled: true
  host: db
  user: lcr
  password: secret
  database: measurements
`)
	t.Setenv("BRIDGE_BRIDGE_DEVICE_NUMBER", "2")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	if err := flags.Parse([]string{"--log-level=debug"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Bridge.Address != "10.0.0.5:5025" || cfg.Bridge.Timeout != 3*time.Second {
		t.Errorf("bridge = %+v", cfg.Bridge)
	}
	if cfg.Bridge.DeviceNumber != 2 {
		t.Errorf("device number = %d, want 2 from env", cfg.Bridge.DeviceNumber)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug from flag", cfg.Logging.Level)
	}
	if got := cfg.Database.DSN(); got != "postgres://lcr:secret@db:5432/measurements?sslmode=disable" {
		t.Errorf("DSN() = %q", got)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"transport":     "bridge:\n  transport: usb\n",
		"serial port":   "bridge:\n  transport: serial\n",
		"device":        "bridge:\n  device_number: 0\n",
		"poll interval": "acquisition:\n  poll_interval: 0s\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content), nil); err == nil {
				t.Error("Load() succeeded, want validation error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("Load() of missing file succeeded")
	}
}

func TestInfluxToken(t *testing.T) {
	t.Setenv("MY_TOKEN", "abc")
	cfg := InfluxDBConfig{TokenEnv: "MY_TOKEN"}
	if cfg.Token() != "abc" {
		t.Errorf("Token() = %q", cfg.Token())
	}
}
