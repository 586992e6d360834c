package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Abraxas-365/tenantry/pkg/config"
	"github.com/Abraxas-365/tenantry/pkg/database"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/logx"
)

func main() {
	logx.Info("🚀 Starting Tenantry API Server...")

	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		logx.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Dependency container
	container := NewContainer(cfg)
	defer container.Cleanup()

	if os.Getenv("MIGRATE_ON_START") == "true" {
		if err := database.Migrate(context.Background(), container.DB.DB); err != nil {
			logx.Fatalf("Migration failed: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	container.StartBackgroundServices(ctx)

	// 3. Fiber app
	app := newApp(container)

	// 4. Serve until signalled
	startServer(app, cfg.Server.Port, cancel)
}

// newApp builds the HTTP surface over an initialized container.
func newApp(container *Container) *fiber.App {
	cfg := container.Config

	app := fiber.New(fiber.Config{
		AppName:               "Tenantry API",
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler(!cfg.IsProduction()),
		BodyLimit:             cfg.Server.BodyLimit,
		IdleTimeout:           120 * time.Second,
	})

	// Global middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))

	app.Use(func(c *fiber.Ctx) error {
		id := c.GetRespHeader(fiber.HeaderXRequestID)
		c.SetUserContext(logx.ContextWithRequestID(c.UserContext(), id))
		return c.Next()
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.CORSOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods:  "GET, POST, PUT, OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${respHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	// Health, info and metrics
	app.Get("/health", healthCheckHandler(container))
	app.Get("/", infoHandler(cfg))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// ========================================================================
	// IAM
	// ========================================================================
	container.IAM.KeyHandlers.RegisterRoutes(app)
	container.IAM.UserHandlers.RegisterRoutes(app)
	container.IAM.OAuthHandlers.RegisterRoutes(app)
	container.IAM.TenantHandlers.RegisterRoutes(app)
	container.IAM.ClientHandlers.RegisterRoutes(app)
	logx.Info("✓ IAM routes registered")

	// ========================================================================
	// Billing
	// ========================================================================
	container.Billing.Handlers.RegisterRoutes(app)
	container.Billing.CatalogHandlers.RegisterRoutes(app)
	container.Billing.WebhookHandlers.RegisterRoutes(app)
	logx.Info("✓ Billing routes registered")

	app.Use(notFoundHandler)

	printRouteSummary()
	return app
}

// ============================================================================
// Handler Functions
// ============================================================================

func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":  "healthy",
			"service": "tenantry-api",
			"version": container.Config.Server.Version,
		}

		if err := container.DB.PingContext(c.UserContext()); err != nil {
			health["db"] = "unhealthy"
			health["db_error"] = err.Error()
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

func infoHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service":     "Tenantry API",
			"version":     cfg.Server.Version,
			"description": "Multi-tenant identity and subscription backend",
			"endpoints": fiber.Map{
				"jwks":     "GET /.well-known/jwks.json",
				"login":    "POST /auth/login",
				"oauth":    "GET /oauth/authorize, POST /oauth/grant, POST /oauth/token",
				"register": "POST /account/register/tenant",
				"checkout": "POST /account/checkout",
				"health":   "GET /health",
				"metrics":  "GET /metrics",
			},
		})
	}
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"success":    false,
		"error":      "Route not found",
		"code":       "NOT_FOUND",
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
	})
}

// ============================================================================
// Error Handler
// ============================================================================

// globalErrorHandler renders errx errors with their registered status and
// hides anything else behind a 500. debug adds the wrapped cause.
func globalErrorHandler(debug bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID := c.GetRespHeader(fiber.HeaderXRequestID)
		entry := logx.WithContext(c.UserContext()).WithFields(logx.Fields{
			"path":   c.Path(),
			"method": c.Method(),
			"ip":     c.IP(),
		})

		var fe *fiber.Error
		if errors.As(err, &fe) {
			entry.WithField("status", fe.Code).Warn("Request rejected: " + fe.Message)
			return c.Status(fe.Code).JSON(errx.Response{
				Error:     fe.Message,
				Message:   fe.Message,
				Code:      "HTTP_ERROR",
				Type:      "HTTP",
				Status:    fe.Code,
				RequestID: requestID,
			})
		}

		var xe *errx.Error
		if errors.As(err, &xe) {
			if xe.HTTPStatus >= fiber.StatusInternalServerError {
				entry.WithError(err).Error("Request failed")
			} else {
				entry.WithField("code", xe.Code).Info("Request rejected")
			}
			resp := xe.ToResponse(requestID)
			if debug && xe.Err != nil {
				details := map[string]interface{}{"underlying_error": xe.Err.Error()}
				for k, v := range resp.Details {
					details[k] = v
				}
				resp.Details = details
			}
			return c.Status(xe.HTTPStatus).JSON(resp)
		}

		entry.WithError(err).Error("Unhandled request error")
		return c.Status(fiber.StatusInternalServerError).JSON(errx.Response{
			Error:     "Internal Server Error",
			Message:   "An unexpected error occurred",
			Code:      "INTERNAL_ERROR",
			Type:      string(errx.TypeInternal),
			Status:    fiber.StatusInternalServerError,
			RequestID: requestID,
		})
	}
}

func printRouteSummary() {
	logx.Info("📋 Route Summary:")
	logx.Info("   ├─ Keys: /.well-known/jwks.json")
	logx.Info("   ├─ Auth: /auth/login, /oauth/*")
	logx.Info("   ├─ Account: /account/register/tenant, /account/tenant/:id, /account/register/auth_user, /account/auth_users")
	logx.Info("   ├─ Billing: /account/checkout, /account/verify-payment, /account/payment-status")
	logx.Info("   ├─ Catalog: /plans, /apps, /features")
	logx.Info("   ├─ Clients: /client/clients")
	logx.Info("   ├─ Webhooks: /webhooks/razorpay")
	logx.Info("   └─ Ops: /health, /metrics")
}

// startServer serves until SIGINT/SIGTERM, then stops background work and
// drains in-flight requests.
func startServer(app *fiber.App, port string, stopBackground context.CancelFunc) {
	go func() {
		logx.Infof("🚀 Server listening on port %s", port)
		logx.Infof("💚 Health Check: http://localhost:%s/health", port)

		if err := app.Listen(":" + port); err != nil {
			logx.Fatalf("Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logx.Infof("🛑 Received signal: %v", sig)
	logx.Info("Shutting down gracefully...")

	stopBackground()
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
	}

	logx.Info("✅ Server exited successfully")
}
