package config

import (
	"strconv"
	"time"
)

// ControllerConfig holds the operator-side configuration loaded from controller_config.yaml
type ControllerConfig struct {
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	ZeroMQ     ZeroMQConfig     `yaml:"zeromq" json:"zeromq"`
	Link       SenderLinkConfig `yaml:"link" json:"link"`
	Control    ControlConfig    `yaml:"control" json:"control"`
	Watchdog   WatchdogConfig   `yaml:"watchdog" json:"watchdog"`
	Safety     SafetyConfig     `yaml:"safety" json:"safety"`
	Tracking   TrackingConfig   `yaml:"tracking" json:"tracking"`
	Processing ProcessingConfig `yaml:"processing" json:"processing"`
}

// ServerConfig holds the operator HTTP server settings
type ServerConfig struct {
	HTTPPort int `yaml:"http_port" json:"http_port"`
}

// SenderLinkConfig describes where motor commands are sent.
type SenderLinkConfig struct {
	TargetAddress      string `yaml:"target_address" json:"target_address"`
	WireFormat         string `yaml:"wire_format" json:"wire_format"`
	FinalSendTimeoutMs int    `yaml:"final_send_timeout_ms" json:"final_send_timeout_ms"`
}

// FinalSendTimeout bounds the best-effort zero command sent on teardown.
func (l SenderLinkConfig) FinalSendTimeout() time.Duration { return millis(l.FinalSendTimeoutMs) }

// ControlConfig holds the command scheduler settings
type ControlConfig struct {
	TickIntervalMs int `yaml:"tick_interval_ms" json:"tick_interval_ms"`
	MaxMagnitude   int `yaml:"max_magnitude" json:"max_magnitude"`
}

// TickInterval returns the scheduler period.
func (c ControlConfig) TickInterval() time.Duration { return millis(c.TickIntervalMs) }

// SafetyConfig holds emergency-stop policy
type SafetyConfig struct {
	// UnconditionalReset accepts a reset even while the link is still down.
	UnconditionalReset bool `yaml:"unconditional_reset" json:"unconditional_reset"`
}

// TrackingConfig holds autonomous tracking steering settings
type TrackingConfig struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	SpeedScale    float64 `yaml:"speed_scale" json:"speed_scale"`
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
	FrameWidth    float64 `yaml:"frame_width" json:"frame_width"`
}

// ProcessingConfig holds the detection ingestion worker pool settings
type ProcessingConfig struct {
	Workers   int `yaml:"workers" json:"workers"`
	QueueSize int `yaml:"queue_size" json:"queue_size"`
}

// LoadControllerConfig loads controller_config.yaml from configDir, applies
// defaults and environment overrides, and validates the result.
func LoadControllerConfig(configDir string) (*ControllerConfig, error) {
	var cfg ControllerConfig
	if err := readYAML(configPath(configDir, ControllerConfigFile), &cfg); err != nil {
		return nil, err
	}

	envOverride(&cfg.Link.TargetAddress, EnvTargetAddr)
	if port := envPort(); port != 0 {
		cfg.Server.HTTPPort = port
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values with the stock 20 Hz / 1 s settings.
func (c *ControllerConfig) ApplyDefaults() {
	defaultString(&c.Logging.Level, "info")
	defaultInt(&c.Server.HTTPPort, 8080)
	defaultString(&c.Link.WireFormat, "flatbuffers")
	defaultInt(&c.Link.FinalSendTimeoutMs, 200)
	defaultInt(&c.Control.TickIntervalMs, 50)
	defaultInt(&c.Control.MaxMagnitude, 100)
	defaultInt(&c.Watchdog.PollIntervalMs, 100)
	defaultInt(&c.Watchdog.LinkTimeoutMs, 1000)
	defaultInt(&c.Watchdog.DegradedAfterMs, 250)
	if c.Tracking.SpeedScale == 0 {
		c.Tracking.SpeedScale = 50
	}
	if c.Tracking.FrameWidth == 0 {
		c.Tracking.FrameWidth = 1
	}
	defaultInt(&c.Processing.Workers, 1)
	defaultInt(&c.Processing.QueueSize, 4)
}

// Validate checks required fields and value ranges.
func (c *ControllerConfig) Validate() error {
	const kind = "controller"
	if c.Link.TargetAddress == "" {
		return missing(kind, "link.target_address")
	}
	if c.Control.MaxMagnitude < 1 || c.Control.MaxMagnitude > 100 {
		return invalid(kind, "control.max_magnitude", c.Control.MaxMagnitude)
	}
	if c.Control.TickIntervalMs <= 0 {
		return invalid(kind, "control.tick_interval_ms", c.Control.TickIntervalMs)
	}
	if c.Watchdog.PollIntervalMs <= 0 {
		return invalid(kind, "watchdog.poll_interval_ms", c.Watchdog.PollIntervalMs)
	}
	if c.Watchdog.LinkTimeoutMs <= c.Control.TickIntervalMs {
		return invalid(kind, "watchdog.link_timeout_ms", c.Watchdog.LinkTimeoutMs)
	}
	if c.Tracking.SpeedScale < 0 || c.Tracking.SpeedScale > 100 {
		return invalid(kind, "tracking.speed_scale", c.Tracking.SpeedScale)
	}
	if c.Tracking.FrameWidth < 0 {
		return invalid(kind, "tracking.frame_width", c.Tracking.FrameWidth)
	}
	return nil
}

func envPort() int {
	var s string
	envOverride(&s, EnvHTTPPort)
	if s == "" {
		return 0
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return port
}
