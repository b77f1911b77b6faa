package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appbilling "github.com/billflow/backend/internal/application/billing"
	appevent "github.com/billflow/backend/internal/application/event"
	"github.com/billflow/backend/internal/domain/pricing"
	"github.com/billflow/backend/internal/infrastructure/cache"
	"github.com/billflow/backend/internal/infrastructure/config"
	"github.com/billflow/backend/internal/infrastructure/event"
	"github.com/billflow/backend/internal/infrastructure/logger"
	"github.com/billflow/backend/internal/infrastructure/persistence"
	"github.com/billflow/backend/internal/infrastructure/persistence/tenant"
	"github.com/billflow/backend/internal/infrastructure/telemetry"
	"github.com/billflow/backend/internal/interfaces/http/dto"
	"github.com/billflow/backend/internal/interfaces/http/handler"
	"github.com/billflow/backend/internal/interfaces/http/middleware"
	"github.com/billflow/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.NewFromConfig(cfg.Log, cfg.App.Env)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting BillFlow Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize OpenTelemetry providers when telemetry is enabled. The
	// tracer, meter and log providers share one collector endpoint.
	var meterProvider *telemetry.MeterProvider
	var tracerProvider *telemetry.TracerProvider
	if cfg.Telemetry.Enabled {
		telemetryCtx := context.Background()

		tracerProvider, err = telemetry.NewTracerProvider(telemetryCtx, telemetry.Config{
			Enabled:           true,
			CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
			SamplingRatio:     cfg.Telemetry.SamplingRatio,
			ServiceName:       cfg.Telemetry.ServiceName,
			Insecure:          cfg.Telemetry.Insecure,
		}, log)
		if err != nil {
			log.Fatal("Failed to initialize tracer provider", zap.Error(err))
		}
		defer shutdownProvider(tracerProvider.Shutdown, "tracer provider", log)

		meterProvider, err = telemetry.NewMeterProvider(telemetryCtx, telemetry.MetricsConfig{
			Enabled:           true,
			CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
			ServiceName:       cfg.Telemetry.ServiceName,
			Insecure:          cfg.Telemetry.Insecure,
		}, log)
		if err != nil {
			log.Fatal("Failed to initialize meter provider", zap.Error(err))
		}
		defer shutdownProvider(meterProvider.Shutdown, "meter provider", log)

		loggerProvider, err := telemetry.NewLoggerProvider(telemetryCtx, telemetry.LogsConfig{
			Enabled:           true,
			CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
			ServiceName:       cfg.Telemetry.ServiceName,
			Insecure:          cfg.Telemetry.Insecure,
		}, log)
		if err != nil {
			log.Fatal("Failed to initialize logger provider", zap.Error(err))
		}
		defer shutdownProvider(loggerProvider.Shutdown, "logger provider", log)

		// Bridge zap output into OTEL so log records carry trace context
		level, err := zapcore.ParseLevel(cfg.Log.Level)
		if err != nil {
			level = zapcore.InfoLevel
		}
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: loggerProvider,
			Level:          level,
		})
		log = telemetry.NewBridgedLogger(log.Core(), otelCore)

		log.Info("Telemetry initialized",
			zap.String("collector", cfg.Telemetry.CollectorEndpoint),
			zap.Float64("sampling_ratio", cfg.Telemetry.SamplingRatio),
		)
	}

	// Continuous profiling. CPU plus the heap profiles cover the hot
	// paths (usage ingestion, invoice generation) without the overhead
	// of mutex/block sampling.
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:             cfg.Profiling.Enabled,
		ServerAddress:       cfg.Profiling.ServerAddress,
		ApplicationName:     cfg.Profiling.AppName,
		ProfileCPU:          true,
		ProfileAllocObjects: true,
		ProfileAllocSpace:   true,
		ProfileInuseSpace:   true,
		ProfileGoroutines:   true,
	}, log)
	if err != nil {
		log.Warn("Failed to start profiler", zap.Error(err))
	} else {
		defer func() {
			if err := profiler.Stop(); err != nil {
				log.Error("Error stopping profiler", zap.Error(err))
			}
		}()

		// Span profiles link CPU samples to individual trace spans; the
		// profiler has to be running before the tracer is wrapped.
		if profiler.IsEnabled() && tracerProvider != nil {
			if err := tracerProvider.EnableSpanProfiles(); err != nil {
				log.Warn("Failed to enable span profiles", zap.Error(err))
			}
		}
	}

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel,
		logger.WithSlowThreshold(cfg.Database.SlowQueryThreshold))

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Register GORM tenant callbacks so reads and writes are scoped to the
	// tenant carried in the request context
	tenant.EnableAutoTenantFilter(db.DB, false)

	// Attach database observability plugins
	if meterProvider != nil {
		dbMetrics, err := telemetry.NewDBMetrics(
			meterProvider.Meter("billflow/database"),
			telemetry.DBMetricsConfig{Enabled: true},
			log,
		)
		if err != nil {
			log.Warn("Failed to initialize database metrics", zap.Error(err))
		} else if err := db.DB.Use(telemetry.NewDBMetricsPlugin(dbMetrics, log)); err != nil {
			log.Warn("Failed to register database metrics plugin", zap.Error(err))
		} else {
			dbMetrics.StartPoolStatsCollection(context.Background())
			defer dbMetrics.Stop()
		}

		tracingCfg := telemetry.DefaultDBTracingConfig()
		tracingCfg.Enabled = true
		if err := db.DB.Use(telemetry.NewDBTracingPlugin(tracingCfg, log)); err != nil {
			log.Warn("Failed to register database tracing plugin", zap.Error(err))
		}
	}

	// Shared Redis client for the pricing config cache tiers
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing redis client", zap.Error(err))
		}
	}()

	// Initialize repositories
	subscriptionRepo := persistence.NewGormSubscriptionRepository(db.DB)
	usageRecordRepo := persistence.NewGormUsageRecordRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	pricingStore := persistence.NewGormPricingConfigStore(db.DB)
	outboxRepo := event.NewGormOutboxRepository(db.DB)

	// Initialize event serializer with all billing event types registered
	eventSerializer := event.NewBillingEventSerializer()

	// Create outbox writer for transactional event saving and inject it
	// into repositories that persist domain events
	outboxWriter := event.NewGormOutboxWriter(eventSerializer)
	subscriptionRepo.SetOutboxWriter(outboxWriter)
	invoiceRepo.SetOutboxWriter(outboxWriter)

	// Initialize event bus
	eventBus := event.NewInMemoryEventBus(log)
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// The outbox delivers at-least-once, so consumers are wrapped with
	// event-ID deduplication. Redis backs the dedupe window so a restart
	// does not replay the backlog's side effects on this instance.
	idempotencyStore := cache.NewRedisIdempotencyStoreWithClient(redisClient, "billflow:events:processed:")
	lifecycleHandler := event.NewIdempotentHandler(
		appevent.NewBillingLifecycleHandler(log),
		idempotencyStore,
		log,
	)
	eventBus.Subscribe(lifecycleHandler, lifecycleHandler.EventTypes()...)

	// Billing metrics observe invoices, estimates, usage ingestion and the
	// outbox backlog
	var billingMetrics *telemetry.BillingMetrics
	if meterProvider != nil {
		billingMetrics, err = telemetry.NewBillingMetrics(telemetry.BillingMetricsConfig{
			Meter:           meterProvider.Meter("billflow/billing"),
			Logger:          log,
			BacklogProvider: telemetry.NewGormOutboxBacklogProvider(db.DB),
		})
		if err != nil {
			log.Warn("Failed to initialize billing metrics", zap.Error(err))
		} else {
			billingMetrics.StartPeriodicCollection(context.Background(), time.Minute)
			defer billingMetrics.Stop()
		}
	}

	// Initialize outbox processor for guaranteed event delivery. It reads
	// events from the outbox_events table and publishes them to the bus.
	outboxProcessorConfig := event.OutboxProcessorConfig{
		BatchSize:       cfg.Outbox.BatchSize,
		PollInterval:    cfg.Outbox.PollInterval,
		PublishTimeout:  cfg.Outbox.PublishTimeout,
		BaseBackoff:     cfg.Outbox.BaseBackoff,
		StaleTimeout:    cfg.Outbox.StaleTimeout,
		ReclaimInterval: cfg.Outbox.ReclaimInterval,
		SweepEnabled:    cfg.Outbox.SweepEnabled,
		RetentionPeriod: cfg.Outbox.RetentionPeriod,
		SweepInterval:   cfg.Outbox.SweepInterval,
	}
	outboxProcessor := event.NewOutboxProcessor(outboxRepo, eventBus, eventSerializer, outboxProcessorConfig, log)
	if billingMetrics != nil {
		outboxProcessor.SetMetrics(billingMetrics)
	}
	if cfg.Outbox.ProcessorEnabled {
		if err := outboxProcessor.Start(context.Background()); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
		log.Info("Outbox processor started",
			zap.Int("batch_size", outboxProcessorConfig.BatchSize),
			zap.Duration("poll_interval", outboxProcessorConfig.PollInterval),
		)
	}

	// Two-tier pricing config cache: in-process L1 in front of shared
	// Redis L2, with pub/sub invalidation between instances
	cacheConfig := pricing.DefaultCacheConfig()
	cacheConfig.L1TTL = cfg.Billing.ConfigL1TTL
	cacheConfig.L2TTL = cfg.Billing.ConfigL2TTL

	l1Cache := cache.NewInMemoryConfigCache(
		cache.WithInMemoryConfig(cacheConfig),
		cache.WithInMemoryLogger(log),
	)
	l2Cache := cache.NewRedisConfigCacheWithClient(redisClient,
		cache.WithCacheConfig(cacheConfig),
		cache.WithCacheLogger(log),
	)
	invalidator := cache.NewRedisConfigCacheInvalidatorWithClient(redisClient,
		cache.WithInvalidatorChannel(cacheConfig.PubSubChannel),
		cache.WithInvalidatorLogger(log),
	)
	tieredCache := cache.NewTieredConfigCache(l1Cache, l2Cache, invalidator,
		cache.WithTieredConfig(cacheConfig),
		cache.WithTieredLogger(log),
	)
	go func() {
		if err := tieredCache.StartInvalidationSubscription(context.Background()); err != nil {
			log.Error("Config cache invalidation subscription stopped", zap.Error(err))
		}
	}()
	configStore := cache.NewCachedConfigStore(pricingStore, tieredCache, log)

	// Initialize application services
	subscriptionService := appbilling.NewSubscriptionService(subscriptionRepo, usageRecordRepo, log)
	billingService := appbilling.NewBillingService(
		subscriptionRepo,
		usageRecordRepo,
		configStore,
		pricing.NewComposer(pricing.DefaultRules()...),
		log,
	)
	billingService.SetFetchTimeout(cfg.Billing.FetchTimeout)
	billingService.SetEventPublisher(eventBus)
	invoiceService := appbilling.NewInvoiceService(billingService, invoiceRepo, log)
	outboxService := appevent.NewOutboxService(outboxRepo, log)

	// Initialize HTTP handlers
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionService)
	usageHandler := handler.NewUsageHandler(subscriptionService)
	billingHandler := handler.NewBillingHandler(billingService)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService)
	outboxHandler := handler.NewOutboxHandler(outboxService)
	outboxHandler.SetProcessor(outboxProcessor)
	systemHandler := handler.NewSystemHandler(cfg.App.Env)
	if billingMetrics != nil {
		billingHandler.SetMetrics(billingMetrics)
		invoiceHandler.SetMetrics(billingMetrics)
	}

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	// 6. BodyLimit - Limit request body size
	// 7. RateLimit - Apply rate limiting (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Rate limiting (if enabled)
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Request observability (when telemetry is enabled)
	if cfg.Telemetry.Enabled {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.SpanErrorMarker())
		engine.Use(middleware.Profiling())
	}
	if meterProvider != nil {
		engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
			MeterProvider: meterProvider,
			ServiceName:   cfg.Telemetry.ServiceName,
			Enabled:       true,
		}))
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Unknown paths get the standard error envelope instead of gin's 404 page
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrCodeNotFound, "Route not found"))
	})

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Billing domain (subscriptions, usage, estimates, invoices).
	// All billing routes require tenant resolution.
	tenantConfig := middleware.DefaultTenantConfig()
	tenantConfig.Logger = log
	billingRoutes := router.NewDomainGroup("billing", "/billing")
	billingRoutes.Use(middleware.TenantMiddlewareWithConfig(tenantConfig))
	if cfg.Telemetry.Enabled {
		// Re-enrich spans now that the tenant is resolved
		billingRoutes.Use(middleware.TracingAttributeInjector())
	}
	billingRoutes.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "billing service ready"})
	})

	// Subscription routes
	billingRoutes.POST("/subscriptions", subscriptionHandler.CreateSubscription)
	billingRoutes.GET("/subscriptions/:id", subscriptionHandler.GetSubscription)

	// Usage ingestion routes
	billingRoutes.POST("/usage", usageHandler.RecordUsage)
	billingRoutes.POST("/usage/batch", usageHandler.RecordUsageBatch)

	// Estimation and invoicing routes
	billingRoutes.POST("/estimate", billingHandler.Estimate)
	billingRoutes.POST("/invoices", invoiceHandler.GenerateInvoice)
	billingRoutes.GET("/invoices/:id", invoiceHandler.GetInvoice)
	billingRoutes.POST("/invoices/:id/pay", invoiceHandler.PayInvoice)

	// System domain (info, outbox administration)
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	// Outbox administration routes
	systemRoutes.GET("/outbox/skipped", outboxHandler.GetSkippedEvents)
	systemRoutes.POST("/outbox/skipped/retry-all", outboxHandler.RetryAllSkippedEvents)
	systemRoutes.GET("/outbox/stats", outboxHandler.GetStats)
	systemRoutes.POST("/outbox/process", outboxHandler.ProcessPending)
	systemRoutes.POST("/outbox/retry-failed", outboxHandler.RetryFailed)
	systemRoutes.POST("/outbox/cleanup", outboxHandler.Cleanup)
	systemRoutes.GET("/outbox/:id", outboxHandler.GetEvent)
	systemRoutes.POST("/outbox/:id/retry", outboxHandler.RetrySkippedEvent)

	// Register all domain groups
	r.Register(billingRoutes).
		Register(systemRoutes)

	// Setup routes
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// shutdownProvider flushes a telemetry provider with a bounded timeout
func shutdownProvider(shutdown func(context.Context) error, name string, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Error("Error shutting down "+name, zap.Error(err))
	}
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
