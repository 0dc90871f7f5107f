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
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/tripnest/booking-backend/internal/config"
	"github.com/tripnest/booking-backend/internal/database"
	"github.com/tripnest/booking-backend/internal/database/memory"
	"github.com/tripnest/booking-backend/internal/handlers"
	"github.com/tripnest/booking-backend/internal/services"
	"github.com/tripnest/booking-backend/pkg/events"
	"github.com/tripnest/booking-backend/pkg/idempotency"
	"github.com/tripnest/booking-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

// stores bundles the persistence backends selected by DATABASE_DRIVER
type stores struct {
	departures services.DepartureStore
	bookings   services.BookingStore
	plans      services.PlanStore
	releases   services.ReleaseQueue
	audits     services.AuditLog
	health     interface{ Ping() error }
	close      func() error
}

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting TripNest booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize storage
	st, err := openStores(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}
	defer st.close()

	// Event publisher
	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			logger.Fatalf("Failed to create Kafka publisher: %v", err)
		}
		publisher = kafkaPublisher
		logger.WithField("topic", cfg.Kafka.Topic).Info("Publishing booking events to Kafka")
	} else {
		logger.Info("KAFKA_BROKERS not set, booking events will not be published")
	}
	defer publisher.Close()

	// Webhook de-duplication
	deduper, closeDeduper, err := openDeduper(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize webhook de-duplication: %v", err)
	}
	defer closeDeduper()

	// Initialize services
	logger.Info("Initializing services...")
	retry := services.RetryPolicy{
		MaxRetries: cfg.Ledger.BackendMaxRetries,
		Initial:    cfg.Ledger.BackoffInitial,
		Max:        cfg.Ledger.BackoffMax,
		MaxElapsed: cfg.Ledger.BackoffMaxElapsed,
		Multiplier: 2,
		Jitter:     0.5,
	}

	ledger := services.NewInventoryLedger(st.departures, services.InventoryLedgerConfig{
		MaxCASAttempts: cfg.Ledger.MaxCASAttempts,
		Retry:          retry,
	}, logger)
	lifecycle := services.NewBookingLifecycleService(st.bookings, cfg.Ledger.MaxCASAttempts, retry, logger)

	coordinatorConfig := services.DefaultReservationCoordinatorConfig()
	coordinatorConfig.VendorCutFallback = cfg.Payment.DefaultVendorCut
	coordinatorConfig.Retry = retry
	coordinator := services.NewReservationCoordinator(
		ledger, lifecycle, st.bookings, st.plans, st.releases, st.audits,
		publisher, coordinatorConfig, logger,
	)
	departureService := services.NewDepartureService(ledger, st.departures, st.plans, retry, logger)

	// Release worker
	releaseWorker := services.NewReleaseWorker(coordinator, ledger, st.bookings, st.releases, services.ReleaseWorkerConfig{
		Interval:    cfg.Compensation.Interval,
		MaxAttempts: cfg.Compensation.MaxAttempts,
		ClaimLease:  cfg.Compensation.ClaimLease,
		BatchSize:   cfg.Compensation.BatchSize,
	}, logger)
	releaseWorker.Start()
	defer releaseWorker.Stop()
	logger.Info("✓ Release worker started")

	// Scheduled jobs
	cronConfig := services.DefaultCronConfig()
	cronConfig.TripCompletionSpec = cfg.Jobs.TripCompletionSpec
	cronConfig.PayoutSpec = cfg.Jobs.PayoutSpec
	cronConfig.RefundWindow = time.Duration(cfg.Jobs.RefundWindowHours) * time.Hour
	cronService := services.NewCronService(coordinator, ledger, st.departures, st.bookings, cronConfig, logger)
	if cfg.Jobs.Enabled {
		if err := cronService.Start(); err != nil {
			logger.Fatalf("Failed to start cron service: %v", err)
		}
		defer cronService.Stop()
		logger.Info("✓ Cron service started - trip completion and payouts enabled")
	} else {
		logger.Info("JOBS_ENABLED=false, scheduled jobs are disabled")
	}

	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)
	logger.Info("Services initialized")

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     append(cfg.CORS.AllowedHeaders, handlers.SignatureHeader),
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(st.health))

	handlers.RegisterRoutes(router, handlers.Handlers{
		Booking:   handlers.NewBookingHandler(coordinator, logger),
		Departure: handlers.NewDepartureHandler(departureService, logger),
		Admin:     handlers.NewAdminHandler(coordinator, releaseWorker, cronService, logger),
		Webhook:   handlers.NewWebhookHandler(coordinator, deduper, cfg.Payment.WebhookSecret, logger),
	}, jwtService)

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// openStores connects the configured backend
func openStores(cfg *config.Config, logger *logrus.Logger) (*stores, error) {
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("Using in-memory storage; all data is lost on restart")
		store := memory.NewStore()
		return &stores{
			departures: store.Departures(),
			bookings:   store.Bookings(),
			plans:      store.Plans(),
			releases:   store.Releases(),
			audits:     store.Audits(),
			health:     store,
			close:      store.Close,
		}, nil

	default:
		logger.Info("Connecting to database...")
		db, err := database.NewConnection(cfg.Database)
		if err != nil {
			return nil, err
		}
		logger.Info("Database connection established")

		return &stores{
			departures: database.NewDepartureRepository(db),
			bookings:   database.NewBookingRepository(db),
			plans:      database.NewPlanRepository(db),
			releases:   database.NewPendingReleaseRepository(db),
			audits:     database.NewBookingAuditRepository(db),
			health:     db,
			close:      db.Close,
		}, nil
	}
}

// openDeduper uses Redis when REDIS_URL is set so every instance shares one
// view of delivered webhooks
func openDeduper(cfg *config.Config, logger *logrus.Logger) (idempotency.Deduper, func() error, error) {
	if cfg.Redis.URL == "" {
		logger.Info("REDIS_URL not set, using in-process webhook de-duplication")
		return idempotency.NewMemoryStore(cfg.Redis.WebhookTTL, cfg.Redis.WebhookInFlightTTL), func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("Redis connection established")
	return idempotency.NewStore(rdb, cfg.Redis.WebhookTTL, cfg.Redis.WebhookInFlightTTL), rdb.Close, nil
}

// requestLogger creates a logging middleware
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}

		// Set by the auth middleware
		if userID, exists := c.Get("user_id"); exists {
			fields["user_id"] = userID
		}
		if roles, exists := c.Get("roles"); exists {
			fields["roles"] = roles
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db interface{ Ping() error }) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
