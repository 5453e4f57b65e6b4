package config

import "time"

// Motor control modes.
const (
	ControlModeSerial     = "serial"
	ControlModeSimulation = "simulation"
)

// ActuatorConfig holds the robot-side configuration loaded from actuator_config.yaml
type ActuatorConfig struct {
	Logging   LoggingConfig      `yaml:"logging" json:"logging"`
	Link      ReceiverLinkConfig `yaml:"link" json:"link"`
	Watchdog  WatchdogConfig     `yaml:"watchdog" json:"watchdog"`
	Motor     MotorConfig        `yaml:"motor" json:"motor"`
	ZeroMQ    ZeroMQConfig       `yaml:"zeromq" json:"zeromq"`
	Telemetry TelemetryConfig    `yaml:"telemetry" json:"telemetry"`
}

// ReceiverLinkConfig describes where motor commands are received.
type ReceiverLinkConfig struct {
	ListenAddress   string `yaml:"listen_address" json:"listen_address"`
	WireFormat      string `yaml:"wire_format" json:"wire_format"`
	ReadBuffer      int    `yaml:"read_buffer" json:"read_buffer"`
	MaxCommandAgeMs int    `yaml:"max_command_age_ms" json:"max_command_age_ms"`
}

// MaxCommandAge returns the payload staleness bound; zero disables the check.
func (l ReceiverLinkConfig) MaxCommandAge() time.Duration { return millis(l.MaxCommandAgeMs) }

// MotorConfig holds the motor driver link settings
type MotorConfig struct {
	ControlMode    string `yaml:"control_mode" json:"control_mode"`
	SerialPort     string `yaml:"serial_port" json:"serial_port"`
	SerialBaudrate int    `yaml:"serial_baudrate" json:"serial_baudrate"`
	MaxSpeed       int    `yaml:"max_speed" json:"max_speed"`
}

// TelemetryConfig holds the optional MQTT telemetry publisher settings.
// An empty broker disables telemetry.
type TelemetryConfig struct {
	Broker   string `yaml:"broker" json:"broker"`
	ClientID string `yaml:"client_id" json:"client_id"`
	Topic    string `yaml:"topic" json:"topic"`
}

// LoadActuatorConfig loads actuator_config.yaml from configDir, applies
// defaults and environment overrides, and validates the result.
func LoadActuatorConfig(configDir string) (*ActuatorConfig, error) {
	var cfg ActuatorConfig
	if err := readYAML(configPath(configDir, ActuatorConfigFile), &cfg); err != nil {
		return nil, err
	}

	envOverride(&cfg.Link.ListenAddress, EnvListenAddr)

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values with the stock receiver defaults.
func (c *ActuatorConfig) ApplyDefaults() {
	defaultString(&c.Logging.Level, "info")
	defaultString(&c.Link.ListenAddress, "0.0.0.0:5000")
	defaultString(&c.Link.WireFormat, "flatbuffers")
	defaultInt(&c.Link.ReadBuffer, 1024)
	defaultInt(&c.Watchdog.PollIntervalMs, 100)
	defaultInt(&c.Watchdog.DeadlineMs, 1000)
	defaultString(&c.Motor.ControlMode, ControlModeSimulation)
	defaultString(&c.Motor.SerialPort, "/dev/ttyUSB0")
	defaultInt(&c.Motor.SerialBaudrate, 115200)
	defaultInt(&c.Motor.MaxSpeed, 100)
	defaultString(&c.Telemetry.ClientID, "rover-actuator")
	defaultString(&c.Telemetry.Topic, "rover/motor/telemetry")
}

// Validate checks required fields and value ranges.
func (c *ActuatorConfig) Validate() error {
	const kind = "actuator"
	switch c.Motor.ControlMode {
	case ControlModeSerial:
		if c.Motor.SerialPort == "" {
			return missing(kind, "motor.serial_port")
		}
	case ControlModeSimulation:
	default:
		return invalid(kind, "motor.control_mode", c.Motor.ControlMode)
	}
	if c.Motor.MaxSpeed < 1 || c.Motor.MaxSpeed > 100 {
		return invalid(kind, "motor.max_speed", c.Motor.MaxSpeed)
	}
	if c.Watchdog.PollIntervalMs <= 0 {
		return invalid(kind, "watchdog.poll_interval_ms", c.Watchdog.PollIntervalMs)
	}
	if c.Watchdog.DeadlineMs <= 0 {
		return invalid(kind, "watchdog.deadline_ms", c.Watchdog.DeadlineMs)
	}
	if c.Link.MaxCommandAgeMs < 0 {
		return invalid(kind, "link.max_command_age_ms", c.Link.MaxCommandAgeMs)
	}
	return nil
}
