// Package config provides configuration loading and defaults for the health monitor.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/jamesprial/healthmon/internal/health"
	"github.com/jamesprial/healthmon/internal/logsink"
	"github.com/jamesprial/healthmon/internal/register"
)

// Environment variables recognised by ApplyEnvOverrides.
const (
	EnvSchema          = "HEALTHMON_SCHEMA"
	EnvRegisterRoot    = "HEALTHMON_REGISTER_ROOT"
	EnvInterval        = "HEALTHMON_INTERVAL"
	EnvMetricsTextfile = "HEALTHMON_METRICS_TEXTFILE"
)

// PathsConfig holds filesystem paths used by the monitor.
type PathsConfig struct {
	Schema    string `yaml:"schema"`
	Registers string `yaml:"registers"`
	PidFile   string `yaml:"pid_file"`
}

// ChecksConfig selects the sensor classes evaluated every tick.
type ChecksConfig struct {
	Fan  bool `yaml:"fan"`
	PSU  bool `yaml:"psu"`
	Temp bool `yaml:"temp"`
	CPU  bool `yaml:"cpu"`
}

// MonitorConfig controls the tick loop.
type MonitorConfig struct {
	// IntervalSeconds is the pause between two ticks in seconds.
	IntervalSeconds int          `yaml:"interval_seconds"`
	Checks          ChecksConfig `yaml:"checks"`
}

// TemperatureConfig maps temperature sensor ids to positions and sets the
// optional warning thresholds in degrees Celsius. Zero disables a threshold.
type TemperatureConfig struct {
	Inlet      string  `yaml:"inlet"`
	Outlet     string  `yaml:"outlet"`
	Board      string  `yaml:"board"`
	MacAverage string  `yaml:"mac_average"`
	MacMax     string  `yaml:"mac_max"`
	CPULabel   string  `yaml:"cpu_label"`
	InletMax   float64 `yaml:"inlet_max"`
	OutletMax  float64 `yaml:"outlet_max"`
	BoardMax   float64 `yaml:"board_max"`
}

// LogConfig controls where health events are sent.
type LogConfig struct {
	Syslog bool   `yaml:"syslog"`
	Tag    string `yaml:"tag"`
	// EventLog is an optional file receiving newline-delimited JSON events.
	EventLog string `yaml:"event_log"`
	// CallLog is an optional file receiving one JSON line per MCP tool call.
	CallLog string `yaml:"call_log"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	// Textfile is the output path; empty disables the export.
	Textfile string `yaml:"textfile"`
}

// Config is the top-level configuration structure for the health monitor.
type Config struct {
	Paths       PathsConfig       `yaml:"paths"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Temperature TemperatureConfig `yaml:"temperature"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// LoadConfig reads and parses a YAML configuration file from the given path.
// Keys absent from the file keep their DefaultConfig values. On error, nil is
// returned for the config pointer.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a new Config populated with sensible default values.
// Each call returns a distinct instance.
func DefaultConfig() *Config {
	b := health.DefaultTempBindings
	return &Config{
		Paths: PathsConfig{
			Schema:    "/etc/healthmon/dev.xml",
			Registers: register.DefaultRoot,
			PidFile:   "/var/run/healthmon.pid",
		},
		Monitor: MonitorConfig{
			IntervalSeconds: int(health.DefaultInterval / time.Second),
			Checks: ChecksConfig{
				Fan: health.DefaultChecks.Fan,
				PSU: health.DefaultChecks.PSU,
			},
		},
		Temperature: TemperatureConfig{
			Inlet:    b.Inlet,
			Outlet:   b.Outlet,
			Board:    b.Board,
			CPULabel: b.CPULabel,
		},
		Log: LogConfig{
			Syslog: true,
			Tag:    logsink.DefaultTag,
		},
	}
}

// Validate reports every invalid setting in cfg.
func (c *Config) Validate() error {
	var err error
	if c.Paths.Schema == "" {
		err = multierr.Append(err, errors.New("paths.schema is required"))
	}
	if c.Monitor.IntervalSeconds < 1 {
		err = multierr.Append(err, fmt.Errorf("monitor.interval_seconds must be at least 1, got %d", c.Monitor.IntervalSeconds))
	}
	if c.Log.Syslog && c.Log.Tag == "" {
		err = multierr.Append(err, errors.New("log.tag is required when syslog is enabled"))
	}
	for key, v := range map[string]float64{
		"inlet_max":  c.Temperature.InletMax,
		"outlet_max": c.Temperature.OutletMax,
		"board_max":  c.Temperature.BoardMax,
	} {
		if v < 0 {
			err = multierr.Append(err, fmt.Errorf("temperature.%s must not be negative, got %g", key, v))
		}
	}
	return err
}

// Interval returns the tick interval.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds) * time.Second
}

// Checks returns the enabled sensor classes.
func (c *Config) Checks() health.Checks {
	return health.Checks{
		Fan:  c.Monitor.Checks.Fan,
		PSU:  c.Monitor.Checks.PSU,
		Temp: c.Monitor.Checks.Temp,
		CPU:  c.Monitor.Checks.CPU,
	}
}

// TempBindings returns the temperature sensor mapping and thresholds.
func (c *Config) TempBindings() health.TempBindings {
	t := c.Temperature
	return health.TempBindings{
		Inlet:      t.Inlet,
		Outlet:     t.Outlet,
		Board:      t.Board,
		MacAverage: t.MacAverage,
		MacMax:     t.MacMax,
		CPULabel:   t.CPULabel,
		InletMax:   t.InletMax,
		OutletMax:  t.OutletMax,
		BoardMax:   t.BoardMax,
	}
}

// ApplyEnvOverrides updates cfg in place with values from environment variables.
// Recognized variables:
//   - HEALTHMON_SCHEMA overrides cfg.Paths.Schema
//   - HEALTHMON_REGISTER_ROOT overrides cfg.Paths.Registers
//   - HEALTHMON_INTERVAL overrides cfg.Monitor.IntervalSeconds
//   - HEALTHMON_METRICS_TEXTFILE overrides cfg.Metrics.Textfile
//
// An unparsable interval is returned as an error and leaves cfg unchanged.
func ApplyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvInterval); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvInterval, err)
		}
		cfg.Monitor.IntervalSeconds = secs
	}
	if v := os.Getenv(EnvSchema); v != "" {
		cfg.Paths.Schema = v
	}
	if v := os.Getenv(EnvRegisterRoot); v != "" {
		cfg.Paths.Registers = v
	}
	if v := os.Getenv(EnvMetricsTextfile); v != "" {
		cfg.Metrics.Textfile = v
	}
	return nil
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables already set are not overwritten.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
