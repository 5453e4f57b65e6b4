package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
}

func TestLoadControllerConfig(t *testing.T) {
	tempDir := t.TempDir()

	content := `
logging:
  level: "debug"
  log_path: "/var/log/rover"
server:
  http_port: 9090
zeromq:
  request_bind_address: "tcp://*:6666"
  publish_bind_address: "tcp://*:7777"
link:
  target_address: "192.168.1.50:5000"
  wire_format: "json"
control:
  tick_interval_ms: 40
  max_magnitude: 80
watchdog:
  poll_interval_ms: 50
  link_timeout_ms: 500
safety:
  unconditional_reset: true
tracking:
  enabled: true
  speed_scale: 60
  min_confidence: 0.4
processing:
  workers: 2
  queue_size: 8
`
	writeConfig(t, tempDir, ControllerConfigFile, content)

	cfg, err := LoadControllerConfig(tempDir)
	if err != nil {
		t.Fatalf("LoadControllerConfig failed: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected logging level 'debug', got '%s'", cfg.Logging.Level)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("Expected server http_port 9090, got %d", cfg.Server.HTTPPort)
	}
	if cfg.ZeroMQ.RequestBindAddress != "tcp://*:6666" {
		t.Errorf("Expected zeromq request_bind_address 'tcp://*:6666', got '%s'", cfg.ZeroMQ.RequestBindAddress)
	}
	if cfg.Link.TargetAddress != "192.168.1.50:5000" {
		t.Errorf("Expected link target_address '192.168.1.50:5000', got '%s'", cfg.Link.TargetAddress)
	}
	if cfg.Link.WireFormat != "json" {
		t.Errorf("Expected wire_format 'json', got '%s'", cfg.Link.WireFormat)
	}
	if cfg.Control.TickInterval() != 40*time.Millisecond {
		t.Errorf("Expected tick interval 40ms, got %v", cfg.Control.TickInterval())
	}
	if cfg.Control.MaxMagnitude != 80 {
		t.Errorf("Expected max_magnitude 80, got %d", cfg.Control.MaxMagnitude)
	}
	if cfg.Watchdog.LinkTimeout() != 500*time.Millisecond {
		t.Errorf("Expected link timeout 500ms, got %v", cfg.Watchdog.LinkTimeout())
	}
	if !cfg.Safety.UnconditionalReset {
		t.Errorf("Expected unconditional_reset true")
	}
	if !cfg.Tracking.Enabled || cfg.Tracking.SpeedScale != 60 {
		t.Errorf("Unexpected tracking config: %+v", cfg.Tracking)
	}
	if cfg.Processing.Workers != 2 || cfg.Processing.QueueSize != 8 {
		t.Errorf("Unexpected processing config: %+v", cfg.Processing)
	}

	// Defaults for omitted fields
	if cfg.Watchdog.DegradedAfter() != 250*time.Millisecond {
		t.Errorf("Expected default degraded_after 250ms, got %v", cfg.Watchdog.DegradedAfter())
	}
	if cfg.Link.FinalSendTimeout() != 200*time.Millisecond {
		t.Errorf("Expected default final send timeout 200ms, got %v", cfg.Link.FinalSendTimeout())
	}
	if cfg.Tracking.FrameWidth != 1 {
		t.Errorf("Expected default frame_width 1, got %v", cfg.Tracking.FrameWidth)
	}
}

func TestLoadControllerConfigDefaults(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, ControllerConfigFile, "link:\n  target_address: \"127.0.0.1:5000\"\n")

	cfg, err := LoadControllerConfig(tempDir)
	if err != nil {
		t.Fatalf("LoadControllerConfig failed: %v", err)
	}

	if cfg.Control.TickInterval() != 50*time.Millisecond {
		t.Errorf("Expected default tick 50ms, got %v", cfg.Control.TickInterval())
	}
	if cfg.Watchdog.LinkTimeout() != time.Second {
		t.Errorf("Expected default link timeout 1s, got %v", cfg.Watchdog.LinkTimeout())
	}
	if cfg.Control.MaxMagnitude != 100 {
		t.Errorf("Expected default max_magnitude 100, got %d", cfg.Control.MaxMagnitude)
	}
	if cfg.Link.WireFormat != "flatbuffers" {
		t.Errorf("Expected default wire_format flatbuffers, got %s", cfg.Link.WireFormat)
	}
	if cfg.Safety.UnconditionalReset {
		t.Errorf("Expected gated reset by default")
	}
}

func TestLoadControllerConfigEnvOverride(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, ControllerConfigFile, "link:\n  target_address: \"127.0.0.1:5000\"\n")

	t.Setenv(EnvTargetAddr, "10.0.0.7:5001")
	t.Setenv(EnvHTTPPort, "8181")

	cfg, err := LoadControllerConfig(tempDir)
	if err != nil {
		t.Fatalf("LoadControllerConfig failed: %v", err)
	}
	if cfg.Link.TargetAddress != "10.0.0.7:5001" {
		t.Errorf("Expected env target address, got %s", cfg.Link.TargetAddress)
	}
	if cfg.Server.HTTPPort != 8181 {
		t.Errorf("Expected env http port 8181, got %d", cfg.Server.HTTPPort)
	}
}

func TestLoadControllerConfigMissingRequired(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, ControllerConfigFile, "control:\n  tick_interval_ms: 50\n")

	_, err := LoadControllerConfig(tempDir)
	if err == nil {
		t.Fatalf("Expected error when loading controller config without target address, but got nil")
	}

	expectedErrorSubstr := "missing required field in controller config: link.target_address"
	if !strings.Contains(err.Error(), expectedErrorSubstr) {
		t.Errorf("Expected error message to contain '%s', but got: %v", expectedErrorSubstr, err)
	}
}

func TestLoadControllerConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{
			name:    "magnitude above 100",
			content: "link:\n  target_address: \"a:1\"\ncontrol:\n  max_magnitude: 150\n",
			field:   "control.max_magnitude",
		},
		{
			name:    "timeout shorter than tick",
			content: "link:\n  target_address: \"a:1\"\ncontrol:\n  tick_interval_ms: 100\nwatchdog:\n  link_timeout_ms: 80\n",
			field:   "watchdog.link_timeout_ms",
		},
		{
			name:    "negative tick interval",
			content: "link:\n  target_address: \"a:1\"\ncontrol:\n  tick_interval_ms: -10\n",
			field:   "control.tick_interval_ms",
		},
		{
			name:    "negative poll interval",
			content: "link:\n  target_address: \"a:1\"\nwatchdog:\n  poll_interval_ms: -5\n",
			field:   "watchdog.poll_interval_ms",
		},
		{
			name:    "speed scale above 100",
			content: "link:\n  target_address: \"a:1\"\ntracking:\n  speed_scale: 120\n",
			field:   "tracking.speed_scale",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			writeConfig(t, tempDir, ControllerConfigFile, tt.content)

			_, err := LoadControllerConfig(tempDir)
			if err == nil {
				t.Fatalf("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Expected error to name %s, got: %v", tt.field, err)
			}
		})
	}
}

func TestLoadControllerConfigMissingFile(t *testing.T) {
	_, err := LoadControllerConfig(t.TempDir())
	if err == nil {
		t.Fatalf("Expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "error reading config file") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoadActuatorConfig(t *testing.T) {
	tempDir := t.TempDir()

	content := `
logging:
  level: "warn"
link:
  listen_address: "0.0.0.0:6000"
  wire_format: "json"
  max_command_age_ms: 300
watchdog:
  deadline_ms: 750
motor:
  control_mode: "serial"
  serial_port: "/dev/ttyACM0"
  serial_baudrate: 57600
  max_speed: 80
telemetry:
  broker: "tcp://localhost:1883"
`
	writeConfig(t, tempDir, ActuatorConfigFile, content)

	cfg, err := LoadActuatorConfig(tempDir)
	if err != nil {
		t.Fatalf("LoadActuatorConfig failed: %v", err)
	}

	if cfg.Link.ListenAddress != "0.0.0.0:6000" {
		t.Errorf("Expected listen address 0.0.0.0:6000, got %s", cfg.Link.ListenAddress)
	}
	if cfg.Link.MaxCommandAge() != 300*time.Millisecond {
		t.Errorf("Expected max command age 300ms, got %v", cfg.Link.MaxCommandAge())
	}
	if cfg.Watchdog.Deadline() != 750*time.Millisecond {
		t.Errorf("Expected deadline 750ms, got %v", cfg.Watchdog.Deadline())
	}
	if cfg.Motor.ControlMode != ControlModeSerial || cfg.Motor.SerialPort != "/dev/ttyACM0" {
		t.Errorf("Unexpected motor config: %+v", cfg.Motor)
	}
	if cfg.Motor.SerialBaudrate != 57600 || cfg.Motor.MaxSpeed != 80 {
		t.Errorf("Unexpected motor config: %+v", cfg.Motor)
	}
	if cfg.Telemetry.Topic != "rover/motor/telemetry" {
		t.Errorf("Expected default telemetry topic, got %s", cfg.Telemetry.Topic)
	}
	if cfg.Watchdog.PollInterval() != 100*time.Millisecond {
		t.Errorf("Expected default poll 100ms, got %v", cfg.Watchdog.PollInterval())
	}
}

func TestLoadActuatorConfigDefaults(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, ActuatorConfigFile, "logging:\n  level: info\n")

	cfg, err := LoadActuatorConfig(tempDir)
	if err != nil {
		t.Fatalf("LoadActuatorConfig failed: %v", err)
	}
	if cfg.Link.ListenAddress != "0.0.0.0:5000" {
		t.Errorf("Expected default listen address, got %s", cfg.Link.ListenAddress)
	}
	if cfg.Watchdog.Deadline() != time.Second {
		t.Errorf("Expected default deadline 1s, got %v", cfg.Watchdog.Deadline())
	}
	if cfg.Motor.ControlMode != ControlModeSimulation {
		t.Errorf("Expected simulation mode by default, got %s", cfg.Motor.ControlMode)
	}
	if cfg.Link.MaxCommandAge() != 0 {
		t.Errorf("Expected staleness check disabled by default")
	}
}

func TestLoadActuatorConfigBadMode(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, ActuatorConfigFile, "motor:\n  control_mode: \"sdk\"\n")

	_, err := LoadActuatorConfig(tempDir)
	if err == nil {
		t.Fatalf("Expected error for unsupported control mode")
	}
	if !strings.Contains(err.Error(), "motor.control_mode=sdk") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoadActuatorConfigNegativePoll(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, ActuatorConfigFile, "watchdog:\n  poll_interval_ms: -1\n")

	_, err := LoadActuatorConfig(tempDir)
	if err == nil {
		t.Fatalf("Expected error for negative poll interval")
	}
	if !strings.Contains(err.Error(), "watchdog.poll_interval_ms=-1") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestShippedConfigs(t *testing.T) {
	if _, err := LoadControllerConfig("../../config"); err != nil {
		t.Errorf("Shipped controller config does not load: %v", err)
	}
	if _, err := LoadActuatorConfig("../../config"); err != nil {
		t.Errorf("Shipped actuator config does not load: %v", err)
	}
}
