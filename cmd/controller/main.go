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

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/open-teleop/rover/domain/diagnostic"
	"github.com/open-teleop/rover/domain/teleop"
	"github.com/open-teleop/rover/pkg/api"
	"github.com/open-teleop/rover/pkg/channel"
	"github.com/open-teleop/rover/pkg/config"
	customlog "github.com/open-teleop/rover/pkg/log"
	"github.com/open-teleop/rover/pkg/processing"
	"github.com/open-teleop/rover/pkg/wire"
	"github.com/open-teleop/rover/pkg/zeromq"
)

func main() {
	configDir := flag.String("config-dir", "./config", "directory containing controller_config.yaml")
	flag.Parse()

	cfg, err := config.LoadControllerConfig(*configDir)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := customlog.NewLogrusLogger("controller", cfg.Logging.Level, cfg.Logging.LogPath)
	if err != nil {
		stdlog.Fatalf("Failed to create logger: %v", err)
	}

	codec, err := wire.NewCodec(cfg.Link.WireFormat)
	if err != nil {
		appLogger.Fatalf("Invalid wire format: %v", err)
	}

	health := teleop.NewLinkHealth(time.Now())
	sender, err := channel.NewSender(cfg.Link.TargetAddress, appLogger, channel.WithOnSent(health.MarkSent))
	if err != nil {
		if errors.Is(err, channel.ErrCannotOperate) {
			appLogger.Fatalf("Link cannot operate: %v", err)
		}
		appLogger.Fatalf("Failed to create datagram sender: %v", err)
	}

	session := teleop.NewSession(teleop.ConfigFromController(cfg), codec, sender, health, appLogger)
	appLogger.Infof("Session %s sending %s commands to %s every %v", session.ID(), cfg.Link.WireFormat, cfg.Link.TargetAddress, cfg.Control.TickInterval())

	robotStatus := diagnostic.NewDiagnosticService(cfg.Watchdog.LinkTimeout())

	// ZeroMQ operator sockets are optional.
	var zmqService *zeromq.ZeroMQService
	var publisher processing.MessagePublisher
	if cfg.ZeroMQ.RequestBindAddress != "" || cfg.ZeroMQ.PublishBindAddress != "" {
		zmqService, err = zeromq.NewZeroMQService(cfg.ZeroMQ, appLogger)
		if err != nil {
			appLogger.Fatalf("Failed to create ZeroMQ service: %v", err)
		}
		zeromq.RegisterControlHandlers(zmqService, session, appLogger)
		zeromq.RegisterRobotStatusHandler(zmqService, func() interface{} { return robotStatus.GetStatus() })
		if cfg.ZeroMQ.PublishBindAddress != "" {
			zeromq.NewStatusPublisher(zmqService, appLogger).AttachSession(session)
			publisher = zmqService
		}
		zmqService.Start()
	}

	var statusListener *zeromq.StatusListener
	if cfg.ZeroMQ.ActuatorStatusAddress != "" {
		statusListener, err = zeromq.NewStatusListener(cfg.ZeroMQ.ActuatorStatusAddress, robotStatus.Update, appLogger)
		if err != nil {
			appLogger.Warnf("Actuator status unavailable: %v", err)
		} else {
			statusListener.Start()
		}
	}

	pool := processing.NewProcessingPool("detections", cfg.Processing.Workers, cfg.Processing.QueueSize, appLogger)
	pool.SetProcessor(processing.NewDetectionProcessor(appLogger, session).CreateProcessorFunc())
	pool.SetResultHandler(processing.NewLoggingResultHandler(appLogger, publisher).CreateHandlerFunc())
	pool.Start()
	submitFrame := func(data []byte, receivedAt time.Time) bool {
		return pool.Submit(&processing.Message{
			Topic:      processing.TopicDetections,
			Data:       data,
			ReceivedAt: receivedAt,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := session.Start(ctx); err != nil {
		appLogger.Fatalf("Failed to start session: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               "Rover Teleop Controller",
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(logger.New())
	app.Use(recover.New())

	teleopService := teleop.NewTeleopService(session, submitFrame)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "online",
			"service": "rover teleop controller",
			"session": session.ID(),
		})
	})
	app.Get("/health", teleopService.HealthHandler)
	app.Get("/api/v1/processing", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"metrics":        pool.GetMetrics(),
			"queue_length":   pool.GetQueueLength(),
			"queue_capacity": pool.GetQueueCapacity(),
			"link":           sender.Metrics(),
		})
	})
	v1 := app.Group("/api/v1")
	teleopService.RegisterRoutes(v1)
	v1.Get("/robot", robotStatus.GetStatusHandler)
	api.RegisterWebSocketRoutes(app, appLogger, session, submitFrame)

	serverErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
		appLogger.Infof("Server starting on %s", addr)
		serverErr <- app.Listen(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	exitCode := 0
	select {
	case sig := <-quit:
		appLogger.Infof("Signal %v received, shutting down...", sig)
	case err := <-serverErr:
		// The robot still gets its final stop below.
		appLogger.Errorf("Server stopped: %v", err)
		exitCode = 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		appLogger.Errorf("Server forced to shutdown: %v", err)
	}

	// The session sends its final zero command before the link closes.
	if err := session.Close(); err != nil {
		appLogger.Errorf("Session close: %v", err)
	}
	<-session.Done()
	pool.Stop()
	if statusListener != nil {
		statusListener.Stop()
	}
	if zmqService != nil {
		zmqService.Stop()
	}
	if exitCode != 0 {
		shutdownCancel()
		cancel()
		os.Exit(exitCode)
	}
	appLogger.Infof("Controller exited properly")
}

// Custom error handler
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
