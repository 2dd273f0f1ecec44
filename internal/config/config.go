package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Bridge      BridgeConfig      `mapstructure:"bridge"`
	Acquisition AcquisitionConfig `mapstructure:"acquisition"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Plan        PlanConfig        `mapstructure:"plan"`
	Database    DatabaseConfig    `mapstructure:"database"`
	InfluxDB    InfluxDBConfig    `mapstructure:"influxdb"`
}

// BridgeConfig selects how the instrument is reached: "tcp" to a gateway
// address, "serial" over a serial port, or "sim" for the built-in simulator.
type BridgeConfig struct {
	Transport    string        `mapstructure:"transport"`
	Address      string        `mapstructure:"address"`
	SerialPort   string        `mapstructure:"serial_port"`
	BaudRate     int           `mapstructure:"baud_rate"`
	DeviceNumber int           `mapstructure:"device_number"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type AcquisitionConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	StatusInterval time.Duration `mapstructure:"status_interval"`
	// Duration bounds a run; zero runs until interrupted.
	Duration time.Duration `mapstructure:"duration"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type PlanConfig struct {
	Path string `mapstructure:"path"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type InfluxDBConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	TokenEnv string `mapstructure:"token_env"`
	Org      string `mapstructure:"org"`
	Bucket   string `mapstructure:"bucket"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bridge.transport", "sim")
	v.SetDefault("bridge.address", "127.0.0.1:5025")
	v.SetDefault("bridge.baud_rate", 115200)
	v.SetDefault("bridge.device_number", 1)
	v.SetDefault("bridge.timeout", "2s")

	v.SetDefault("acquisition.poll_interval", "500ms")
	v.SetDefault("acquisition.status_interval", "10s")
	v.SetDefault("acquisition.duration", "0s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_connections", 4)

	v.SetDefault("influxdb.enabled", false)
	v.SetDefault("influxdb.token_env", "INFLUXDB_TOKEN")
}

// Load reads the YAML file at path (optional when empty), then environment
// variables with the BRIDGE_ prefix, then any flags set on flags.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Flag names map onto config keys.
var flagKeys = map[string]string{
	"transport":     "bridge.transport",
	"address":       "bridge.address",
	"serial-port":   "bridge.serial_port",
	"device":        "bridge.device_number",
	"plan":          "plan.path",
	"poll-interval": "acquisition.poll_interval",
	"duration":      "acquisition.duration",
	"log-level":     "logging.level",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Bridge.Transport {
	case "tcp":
		if c.Bridge.Address == "" {
			return fmt.Errorf("bridge.address is required for tcp transport")
		}
	case "serial":
		if c.Bridge.SerialPort == "" {
			return fmt.Errorf("bridge.serial_port is required for serial transport")
		}
	case "sim":
	default:
		return fmt.Errorf("unknown bridge.transport %q (expected tcp, serial or sim)", c.Bridge.Transport)
	}

	if c.Bridge.DeviceNumber < 1 {
		return fmt.Errorf("bridge.device_number must be >= 1")
	}
	if c.Acquisition.PollInterval <= 0 {
		return fmt.Errorf("acquisition.poll_interval must be positive")
	}
	if c.Acquisition.StatusInterval <= 0 {
		return fmt.Errorf("acquisition.status_interval must be positive")
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// Token reads the InfluxDB token from the configured environment variable.
func (c *InfluxDBConfig) Token() string {
	envVar := c.TokenEnv
	if envVar == "" {
		envVar = "INFLUXDB_TOKEN"
	}
	return os.Getenv(envVar)
}
