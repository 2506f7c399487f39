package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ridefusion/booking-backend/internal/config"
	"github.com/ridefusion/booking-backend/internal/database"
	"github.com/ridefusion/booking-backend/internal/handlers"
	"github.com/ridefusion/booking-backend/internal/services"
	"github.com/ridefusion/booking-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

const shutdownTimeout = 30 * time.Second

// engine groups everything the HTTP layer depends on
type engine struct {
	store       *database.Store
	jwt         *jwt.Service
	bookings    *services.BookingOrchestratorService
	rides       *services.RideService
	audit       *services.AuditService
	rateLimiter *services.RateLimitService
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.WithFields(logrus.Fields{
		"version":    version,
		"build_time": buildTime,
	}).Info("Starting RideFusion Booking Backend")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	applyRuntimeModes(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize %s store: %v", cfg.Store.Driver, err)
	}
	defer eng.store.Close()

	if err := serve(ctx, cfg, newRouter(cfg, eng, logger), logger); err != nil {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Info("Server stopped")
}

func applyRuntimeModes(cfg *config.Config, logger *logrus.Logger) {
	level, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warnf("Unknown log level %q, falling back to info", cfg.Server.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
		return
	}
	gin.SetMode(gin.DebugMode)
}

// buildEngine opens the store and wires the booking services on top of it.
// Background workers stop when ctx is cancelled.
func buildEngine(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*engine, error) {
	store, err := database.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	machine := services.NewBookingStateMachine(services.LifecycleConfig{
		RequiresConfirmation: cfg.Booking.RequiresConfirmation,
		MaxSeatsPerBooking:   cfg.Booking.MaxSeatsPerBooking,
	}, services.NewSeatInventory(logger), services.NewOTPService())

	eng := &engine{
		store: store,
		jwt:   jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry),
		bookings: services.NewBookingOrchestratorService(store, machine, services.BookingOrchestratorConfig{
			MaxRetries:   cfg.Booking.MaxRetries,
			RetryBackoff: cfg.Booking.RetryBackoff,
		}, logger),
		rides: services.NewRideService(store, logger),
		rateLimiter: services.NewRateLimitService(services.RateLimitConfig{
			MaxAttempts: cfg.Security.ConfirmMaxAttempts,
			Window:      cfg.Security.ConfirmWindow,
		}, logger),
	}
	eng.rateLimiter.StartCleanup(ctx, cfg.Security.ConfirmWindow)

	if cfg.Security.EnableAuditLog {
		eng.audit = services.NewAuditService(store.SQL, logger)
	}

	logger.WithFields(logrus.Fields{
		"store":                 store.Driver,
		"requires_confirmation": cfg.Booking.RequiresConfirmation,
		"max_retries":           cfg.Booking.MaxRetries,
		"audit":                 eng.audit != nil,
	}).Info("Booking engine initialized")
	return eng, nil
}

func newRouter(cfg *config.Config, eng *engine, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Security.EnableRequestLog {
		router.Use(requestLogger(logger))
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(eng.store))

	handlers.RegisterRoutes(
		router.Group("/api/v1"),
		handlers.NewRideHandler(eng.rides, logger),
		handlers.NewBookingHandler(eng.bookings, eng.audit, eng.rateLimiter, logger),
		eng.jwt,
		logger,
	)
	return router
}

// serve blocks until ctx is cancelled or the listener fails, then drains
// in-flight requests.
func serve(ctx context.Context, cfg *config.Config, handler http.Handler, logger *logrus.Logger) error {
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Infof("Listening on :%s", cfg.Server.Port)
		listenErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// requestLogger emits one structured line per request
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"status":     status,
			"method":     c.Request.Method,
			"path":       path,
			"query":      c.Request.URL.RawQuery,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		})

		switch {
		case len(c.Errors) > 0:
			entry.WithField("errors", c.Errors.Errors()).Error("Request failed")
		case status >= http.StatusInternalServerError:
			entry.Error("Request completed with server error")
		case status >= http.StatusBadRequest:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed")
		}
	}
}

// healthCheckHandler reports whether the configured store answers a ping
func healthCheckHandler(store *database.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		body := gin.H{
			"store":     store.Driver,
			"version":   version,
			"timestamp": time.Now().Unix(),
		}
		if err := store.Ping(ctx); err != nil {
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["status"] = "healthy"
		c.JSON(http.StatusOK, body)
	}
}
