package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clavehr/identity/pkg/config"
	"github.com/clavehr/identity/pkg/errx"
	"github.com/clavehr/identity/pkg/logx"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

func main() {
	logx.SetDefaultLogger(logx.NewLogger(logx.LoadFromEnv()))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logx.Fatalf("Configuration error: %v", err)
	}

	logx.Infof("Starting %s...", cfg.App.Name)

	container, err := NewContainer(cfg)
	if err != nil {
		logx.Fatalf("Failed to initialize: %v", err)
	}
	defer container.Cleanup()

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler(cfg),
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return uuid.NewString()
		},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.App.CORSOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-API-Key, X-Request-ID",
		AllowMethods:  "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${reqHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	app.Get("/health", healthCheckHandler(container))

	container.IAM.AuthHandlers.RegisterRoutes(app)
	logx.Info("Auth routes registered")

	// Per-key rate limiting sits right behind authentication on every
	// protected group.
	authn := container.IAM.AuthMiddleware.Authenticate()
	rateLimit := container.IAM.RateLimitMiddleware

	container.IAM.APIKeyHandlers.RegisterRoutes(app, authn, rateLimit)
	logx.Info("API key routes registered")

	container.IAM.RoleHandlers.RegisterRoutes(app, authn, rateLimit)
	logx.Info("Role routes registered")

	app.Use(notFoundHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	container.IAM.StartBackgroundServices(ctx)

	startServer(app, cfg.App.Port)
}

func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":  "healthy",
			"service": container.Cfg.App.Name,
		}

		if err := container.DB.Ping(); err != nil {
			health["db"] = "unhealthy"
			health["status"] = "degraded"
		} else {
			health["db"] = "healthy"
		}
		if err := container.Redis.Ping(c.UserContext()).Err(); err != nil {
			health["redis"] = "unhealthy"
			health["status"] = "degraded"
		} else {
			health["redis"] = "healthy"
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(health)
	}
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":      "Route not found",
		"code":       "NOT_FOUND",
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": c.Get("X-Request-ID"),
	})
}

// globalErrorHandler converts internal errors to standard HTTP responses.
func globalErrorHandler(cfg *config.Config) fiber.ErrorHandler {
	debug := cfg.App.Environment == "development"
	return func(c *fiber.Ctx, err error) error {
		logx.WithFields(logx.Fields{
			"path":       c.Path(),
			"method":     c.Method(),
			"ip":         c.IP(),
			"request_id": c.Get("X-Request-ID"),
		}).Errorf("Request error: %v", err)

		if e, ok := err.(*fiber.Error); ok {
			return c.Status(e.Code).JSON(fiber.Map{
				"error":      e.Message,
				"code":       "FIBER_ERROR",
				"status":     e.Code,
				"request_id": c.Get("X-Request-ID"),
			})
		}

		var e *errx.Error
		if errx.As(err, &e) {
			// Credential-validation failures must be indistinguishable at the
			// boundary: one code, one message, no details. The specific code
			// (expired vs bad signature vs spent link) is in the log line above.
			if e.Type == errx.TypeAuthorization {
				return c.Status(e.HTTPStatus).JSON(fiber.Map{
					"error":      "Invalid credentials",
					"code":       "AUTH_INVALID_CREDENTIALS",
					"type":       string(e.Type),
					"status":     e.HTTPStatus,
					"request_id": c.Get("X-Request-ID"),
				})
			}
			response := fiber.Map{
				"error":      e.Message,
				"code":       e.Code,
				"type":       string(e.Type),
				"status":     e.HTTPStatus,
				"request_id": c.Get("X-Request-ID"),
			}
			if len(e.Details) > 0 && debug {
				response["details"] = e.Details
			}
			return c.Status(e.HTTPStatus).JSON(response)
		}

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":      "Internal Server Error",
			"code":       "INTERNAL_ERROR",
			"request_id": c.Get("X-Request-ID"),
		})
	}
}

// startServer runs the listener and blocks until shutdown completes.
func startServer(app *fiber.App, port string) {
	go func() {
		logx.Infof("Server listening on port %s", port)
		if err := app.Listen(":" + port); err != nil {
			logx.Fatalf("Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logx.Infof("Received signal: %v, shutting down...", sig)

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
	}
	logx.Info("Server exited")
}
