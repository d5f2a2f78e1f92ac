package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/ryan12324/openassistant/pkg/authx"
	"github.com/ryan12324/openassistant/pkg/config"
	"github.com/ryan12324/openassistant/pkg/gateway"
	"github.com/ryan12324/openassistant/pkg/logx"
	"github.com/ryan12324/openassistant/pkg/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// 1. Logger and configuration
	logx.SetDefaultLogger(logx.NewLogger(logx.LoadFromEnv()))
	logx.Info("🚀 Starting OpenAssistant...")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logx.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Dependency container and background workers
	ctx, cancel := context.WithCancel(context.Background())
	container := NewContainer(ctx, cfg)
	container.StartBackgroundServices(ctx)

	// 3. Fiber app
	app := fiber.New(fiber.Config{
		AppName:               "OpenAssistant",
		DisableStartupMessage: true,
		ErrorHandler:          gateway.ErrorHandler(cfg.Server.Debug),
		BodyLimit:             4 * 1024 * 1024,
		IdleTimeout:           120 * time.Second,
	})

	// 4. Global middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: func() string { return "req-" + uuid.NewString() },
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(cfg.Server.CORSOrigins, ","),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID, " + gateway.WebhookSecretHeader,
		AllowMethods:  "GET, POST, PUT, DELETE, HEAD, OPTIONS",
		ExposeHeaders: fiber.HeaderXRequestID,
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${respHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	// 5. Routes
	app.Get("/", infoHandler(cfg))
	app.Get("/metrics", adaptor.HTTPHandler(telemetry.Handler()))
	container.Gateway.RegisterRoutes(app, authx.Authenticate(container.Tokens))
	app.Use(gateway.NotFound)

	printRouteSummary()

	// 6. Serve until signalled
	startServer(app, cfg.Server.Port)
	gracefulShutdown(app, cancel, container)
}

func infoHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service":  "OpenAssistant",
			"version":  cfg.Server.Version,
			"provider": cfg.Assistant.Provider,
			"queue":    cfg.Jobx.Backend,
			"endpoints": fiber.Map{
				"health":  "/health",
				"metrics": "/metrics",
				"inbound": "POST /api/v1/inbound/:source",
			},
		})
	}
}

func printRouteSummary() {
	logx.Info("📋 Route Summary:")
	logx.Info("   ├─ Inbound: POST /api/v1/inbound/:source")
	logx.Info("   ├─ Jobs: /api/v1/jobs/*")
	logx.Info("   ├─ Connectors: /api/v1/connectors/*, /api/v1/me/connectors/*")
	logx.Info("   └─ Health: /health, Metrics: /metrics")
}

func startServer(app *fiber.App, port string) {
	go func() {
		logx.Info("=" + repeatString("=", 60))
		logx.Infof("🚀 Server listening on port %s", port)
		logx.Infof("💚 Health Check: http://localhost:%s/health", port)
		logx.Info("=" + repeatString("=", 60))

		if err := app.Listen(":" + port); err != nil {
			logx.Fatalf("Server error: %v", err)
		}
	}()
}

// gracefulShutdown blocks until SIGINT or SIGTERM, then stops the HTTP
// server, the background workers and finally the connectors and stores.
func gracefulShutdown(app *fiber.App, cancel context.CancelFunc, container *Container) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logx.Infof("🛑 Received signal: %v", sig)
	logx.Info("Shutting down gracefully...")

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
	}

	cancel()

	ctx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	container.Cleanup(ctx)

	logx.Info("✅ Server exited successfully")
}
