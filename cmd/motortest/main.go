package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/open-teleop/rover/pkg/channel"
	customlog "github.com/open-teleop/rover/pkg/log"
	"github.com/open-teleop/rover/pkg/wire"
)

func main() {
	target := flag.String("target", "localhost:5000", "actuator address for direct datagram mode")
	format := flag.String("format", "flatbuffers", "wire format: flatbuffers or json")
	live := flag.String("live", "", "controller control socket URL (ws://host:8080/ws/control); drives through the controller instead")
	rate := flag.Duration("interval", 50*time.Millisecond, "resend interval within a step")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, err := customlog.NewLogrusLogger("motortest", *level, "")
	if err != nil {
		stdlog.Fatalf("Failed to create logger: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var d driver
	if *live != "" {
		d, err = dialControl(*live)
	} else {
		d, err = newDatagramDriver(*target, *format, logger)
	}
	if err != nil {
		logger.Fatalf("Cannot start motor test: %v", err)
	}

	steps := DefaultSequence()
	logger.Infof("Running %d steps", len(steps))
	failed := 0
	for i, step := range steps {
		logger.Infof("Test %d/%d: %s", i+1, len(steps), step.Name)
		if err := runStep(ctx, d, step, *rate); err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Warnf("Interrupted")
				break
			}
			logger.Errorf("  step failed: %v", err)
			failed++
		}
	}

	if err := d.Close(); err != nil {
		logger.Errorf("Close: %v", err)
	}
	logger.Infof("Passed: %d/%d", len(steps)-failed, len(steps))
	if failed > 0 {
		os.Exit(1)
	}
}

// driver sends one step's command. Close must leave the robot stopped.
type driver interface {
	Send(step Step) error
	Close() error
}

// runStep resends the step's command at every interval for its duration, so
// the receiver deadline never lapses mid-step.
func runStep(ctx context.Context, d driver, step Step, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	timer := time.NewTimer(step.Duration)
	defer timer.Stop()

	if err := d.Send(step); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-ticker.C:
			if err := d.Send(step); err != nil {
				return err
			}
		}
	}
}

type datagramDriver struct {
	sender *channel.Sender
	codec  wire.Codec
}

func newDatagramDriver(target, format string, logger customlog.Logger) (*datagramDriver, error) {
	codec, err := wire.NewCodec(format)
	if err != nil {
		return nil, err
	}
	sender, err := channel.NewSender(target, logger)
	if err != nil {
		return nil, err
	}
	sender.Start()
	return &datagramDriver{sender: sender, codec: codec}, nil
}

func (d *datagramDriver) Send(step Step) error {
	payload, err := d.codec.Encode(step.Command(time.Now()))
	if err != nil {
		return err
	}
	return d.sender.Dispatch(payload)
}

func (d *datagramDriver) Close() error {
	payload, err := d.codec.Encode(wire.Zero(time.Now()))
	if err != nil {
		return err
	}
	return errors.Join(d.sender.SendFinal(payload, 200*time.Millisecond), d.sender.Close())
}

type controlDriver struct {
	conn *websocket.Conn
}

func dialControl(url string) (*controlDriver, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &controlDriver{conn: conn}, nil
}

func (d *controlDriver) Send(step Step) error {
	x, y := step.Joystick()
	return d.conn.WriteJSON(map[string]float64{"x": x, "y": y})
}

func (d *controlDriver) Close() error {
	err := d.conn.WriteJSON(map[string]bool{"released": true})
	return errors.Join(err, d.conn.Close())
}
