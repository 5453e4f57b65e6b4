package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Bootstrap file names looked up inside the config directory.
const (
	ControllerConfigFile = "controller_config.yaml"
	ActuatorConfigFile   = "actuator_config.yaml"
)

// Environment overrides.
const (
	EnvTargetAddr = "ROVER_TARGET_ADDR"
	EnvListenAddr = "ROVER_LISTEN_ADDR"
	EnvHTTPPort   = "PORT"
)

// LoggingConfig holds logging settings shared by both binaries
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	LogPath string `yaml:"log_path,omitempty" json:"log_path,omitempty"`
}

// ZeroMQConfig holds the optional ZeroMQ operator sockets.
// Empty addresses disable the corresponding socket.
type ZeroMQConfig struct {
	RequestBindAddress string `yaml:"request_bind_address" json:"request_bind_address"`
	PublishBindAddress string `yaml:"publish_bind_address" json:"publish_bind_address"`
	// ActuatorStatusAddress is the actuator's PUB endpoint the controller
	// subscribes to.
	ActuatorStatusAddress string `yaml:"actuator_status_address,omitempty" json:"actuator_status_address,omitempty"`
}

// WatchdogConfig is used by the sender watchdog (LinkTimeoutMs) and
// the receiver watchdog (DeadlineMs).
type WatchdogConfig struct {
	PollIntervalMs  int `yaml:"poll_interval_ms" json:"poll_interval_ms"`
	LinkTimeoutMs   int `yaml:"link_timeout_ms,omitempty" json:"link_timeout_ms,omitempty"`
	DegradedAfterMs int `yaml:"degraded_after_ms,omitempty" json:"degraded_after_ms,omitempty"`
	DeadlineMs      int `yaml:"deadline_ms,omitempty" json:"deadline_ms,omitempty"`
}

// PollInterval returns the watchdog poll period.
func (w WatchdogConfig) PollInterval() time.Duration { return millis(w.PollIntervalMs) }

// LinkTimeout returns the sender-side dispatch timeout.
func (w WatchdogConfig) LinkTimeout() time.Duration { return millis(w.LinkTimeoutMs) }

// DegradedAfter returns the link age after which status reports "degraded".
func (w WatchdogConfig) DegradedAfter() time.Duration { return millis(w.DegradedAfterMs) }

// Deadline returns the receiver-side command deadline.
func (w WatchdogConfig) Deadline() time.Duration { return millis(w.DeadlineMs) }

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// readYAML loads path into out.
func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error parsing config file '%s': %w", path, err)
	}
	return nil
}

func configPath(dir, file string) string {
	return filepath.Join(dir, file)
}

func missing(kind, field string) error {
	return fmt.Errorf("missing required field in %s config: %s", kind, field)
}

func invalid(kind, field string, value interface{}) error {
	return fmt.Errorf("invalid value in %s config: %s=%v", kind, field, value)
}

func defaultInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func defaultString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func envOverride(v *string, key string) {
	if s := os.Getenv(key); s != "" {
		*v = s
	}
}
