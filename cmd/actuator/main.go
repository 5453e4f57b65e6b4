package main

import (
	"context"
	"errors"
	"flag"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/open-teleop/rover/domain/actuator"
	"github.com/open-teleop/rover/pkg/channel"
	"github.com/open-teleop/rover/pkg/config"
	customlog "github.com/open-teleop/rover/pkg/log"
	"github.com/open-teleop/rover/pkg/motor"
	"github.com/open-teleop/rover/pkg/telemetry"
	"github.com/open-teleop/rover/pkg/wire"
	"github.com/open-teleop/rover/pkg/zeromq"
)

func main() {
	configDir := flag.String("config-dir", "./config", "directory containing actuator_config.yaml")
	flag.Parse()

	cfg, err := config.LoadActuatorConfig(*configDir)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := customlog.NewLogrusLogger("actuator", cfg.Logging.Level, cfg.Logging.LogPath)
	if err != nil {
		stdlog.Fatalf("Failed to create logger: %v", err)
	}

	codec, err := wire.NewCodec(cfg.Link.WireFormat)
	if err != nil {
		appLogger.Fatalf("Invalid wire format: %v", err)
	}

	receiver, err := channel.Listen(cfg.Link.ListenAddress, cfg.Link.ReadBuffer, appLogger)
	if err != nil {
		if errors.Is(err, channel.ErrCannotOperate) {
			appLogger.Fatalf("Link cannot operate: %v", err)
		}
		appLogger.Fatalf("Failed to listen: %v", err)
	}

	sink := motor.NewSink(cfg.Motor, appLogger)

	var reporters []actuator.Reporter
	var mqttPublisher *telemetry.Publisher
	if cfg.Telemetry.Broker != "" {
		mqttPublisher = telemetry.NewMQTTPublisher(cfg.Telemetry, appLogger)
		reporters = append(reporters, mqttPublisher)
	}
	var zmqService *zeromq.ZeroMQService
	if cfg.ZeroMQ.PublishBindAddress != "" {
		// The actuator only publishes; it takes no operator requests.
		zmqService, err = zeromq.NewZeroMQService(config.ZeroMQConfig{PublishBindAddress: cfg.ZeroMQ.PublishBindAddress}, appLogger)
		if err != nil {
			appLogger.Fatalf("Failed to create ZeroMQ service: %v", err)
		}
		zmqService.Start()
		reporters = append(reporters, zeromq.NewStatusPublisher(zmqService, appLogger))
	}

	act := actuator.New(actuator.Config{
		Deadline:      cfg.Watchdog.Deadline(),
		PollInterval:  cfg.Watchdog.PollInterval(),
		MaxCommandAge: cfg.Link.MaxCommandAge(),
	}, codec, sink, appLogger, reporters...)
	act.Start()

	ctx, cancel := context.WithCancel(context.Background())
	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		act.Run(ctx)
	}()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- receiver.Serve(ctx, act.HandleDatagram)
	}()

	appLogger.Infof("Actuator listening on %s (%s, deadline %v, mode %s)",
		receiver.LocalAddr(), cfg.Link.WireFormat, cfg.Watchdog.Deadline(), cfg.Motor.ControlMode)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	serving := true
	select {
	case sig := <-quit:
		appLogger.Infof("Signal %v received, shutting down...", sig)
	case err := <-serveDone:
		appLogger.Errorf("Receiver stopped: %v", err)
		serving = false
	}

	// No datagram may be applied after the final halt.
	cancel()
	if err := receiver.Close(); err != nil {
		appLogger.Errorf("Receiver close: %v", err)
	}
	if serving {
		<-serveDone
	}
	<-watchdogDone
	act.Shutdown()

	if err := sink.Close(); err != nil {
		appLogger.Errorf("Motor sink close: %v", err)
	}
	if mqttPublisher != nil {
		mqttPublisher.Close()
	}
	if zmqService != nil {
		zmqService.Stop()
	}

	st := act.Status()
	appLogger.Infof("Actuator stopped (received %d, rejected %d)", st.Received, st.Rejected)
}
