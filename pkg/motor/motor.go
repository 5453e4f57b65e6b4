// Package motor holds the actuation sinks the actuator drives: a serial
// motor controller speaking the "M,<left>,<right>" line protocol, and a
// simulation sink that only logs.
package motor

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/open-teleop/rover/pkg/config"
	"github.com/open-teleop/rover/pkg/log"
)

// Sink applies wheel values or halts the motors.
type Sink interface {
	Apply(left, right int) error
	Halt() error
	Close() error
}

// FormatCommand renders the serial line for a wheel pair.
func FormatCommand(left, right int) string {
	return fmt.Sprintf("M,%d,%d\n", left, right)
}

// limit scales both wheels by the same factor so neither exceeds maxSpeed.
// The left/right ratio, and with it the turning radius, is kept.
func limit(left, right, maxSpeed int) (int, int) {
	peak := math.Max(math.Abs(float64(left)), math.Abs(float64(right)))
	if peak <= float64(maxSpeed) {
		return left, right
	}
	scale := float64(maxSpeed) / peak
	return int(math.Round(float64(left) * scale)), int(math.Round(float64(right) * scale))
}

// LineSink writes the line protocol to any writer.
type LineSink struct {
	mu       sync.Mutex
	w        io.Writer
	closer   io.Closer
	maxSpeed int
	logger   log.Logger
}

// NewLineSink creates a sink writing to w. maxSpeed outside 1..100 means 100.
func NewLineSink(w io.Writer, maxSpeed int, logger log.Logger) *LineSink {
	if maxSpeed <= 0 || maxSpeed > 100 {
		maxSpeed = 100
	}
	s := &LineSink{w: w, maxSpeed: maxSpeed, logger: logger}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *LineSink) Apply(left, right int) error {
	return s.write(limit(left, right, s.maxSpeed))
}

func (s *LineSink) Halt() error {
	return s.write(0, 0)
}

func (s *LineSink) write(left, right int) error {
	line := FormatCommand(left, right)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, line); err != nil {
		return fmt.Errorf("failed to write motor command: %w", err)
	}
	s.logger.Debugf("Sent serial command: M,%d,%d", left, right)
	return nil
}

func (s *LineSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// SimulationSink logs commands without driving hardware.
type SimulationSink struct {
	logger log.Logger
}

func NewSimulationSink(logger log.Logger) *SimulationSink {
	return &SimulationSink{logger: logger}
}

func (s *SimulationSink) Apply(left, right int) error {
	s.logger.Debugf("Motor command (simulation): left=%d right=%d", left, right)
	return nil
}

func (s *SimulationSink) Halt() error {
	s.logger.Infof("Motors halted (simulation)")
	return nil
}

func (s *SimulationSink) Close() error { return nil }

// NewSink builds the sink for cfg.ControlMode. A serial port that cannot be
// opened falls back to simulation.
func NewSink(cfg config.MotorConfig, logger log.Logger) Sink {
	if cfg.ControlMode != config.ControlModeSerial {
		logger.Infof("Motor control mode: simulation")
		return NewSimulationSink(logger)
	}

	port, err := OpenSerial(cfg.SerialPort, cfg.SerialBaudrate)
	if err != nil {
		logger.Errorf("Failed to open serial port, falling back to simulation: %v", err)
		return NewSimulationSink(logger)
	}
	logger.Infof("Serial connection established on %s at %d baud", cfg.SerialPort, cfg.SerialBaudrate)
	return NewLineSink(port, cfg.MaxSpeed, logger)
}
