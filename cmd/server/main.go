package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appaudit "github.com/kambio/backend/internal/application/audit"
	appexchange "github.com/kambio/backend/internal/application/exchange"
	appidentity "github.com/kambio/backend/internal/application/identity"
	appledger "github.com/kambio/backend/internal/application/ledger"
	"github.com/kambio/backend/internal/domain/exchange"
	"github.com/kambio/backend/internal/domain/identity"
	"github.com/kambio/backend/internal/infrastructure/auth"
	"github.com/kambio/backend/internal/infrastructure/cache"
	"github.com/kambio/backend/internal/infrastructure/config"
	"github.com/kambio/backend/internal/infrastructure/crypto"
	"github.com/kambio/backend/internal/infrastructure/event"
	"github.com/kambio/backend/internal/infrastructure/logger"
	"github.com/kambio/backend/internal/infrastructure/persistence"
	"github.com/kambio/backend/internal/infrastructure/scheduler"
	"github.com/kambio/backend/internal/infrastructure/telemetry"
	"github.com/kambio/backend/internal/interfaces/http/handler"
	"github.com/kambio/backend/internal/interfaces/http/middleware"
	"github.com/kambio/backend/internal/interfaces/http/router"
)

// devFieldCipherKey keeps local setups working without an encryption
// key configured. Production refuses to start without a real one.
const devFieldCipherKey = "kambio-dev-only-field-cipher-key"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Kambio Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Telemetry providers (no-op when disabled)
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := logsProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()

	// From here on application logs also reach the collector
	log = telemetry.AttachOTELCore(log, logsProvider, cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level))

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Database observability plugins
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		tracingPlugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:        "postgresql",
		}, log)
		if err := tracingPlugin.RegisterOtelGorm(db.DB); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}
	}
	if cfg.Telemetry.Enabled {
		dbMetrics, err := telemetry.NewDBMetrics(
			meterProvider.Meter("kambio-backend/db"),
			telemetry.DefaultDBMetricsConfig(),
			log,
		)
		if err != nil {
			log.Warn("Failed to create database metrics", zap.Error(err))
		} else if err := db.DB.Use(telemetry.NewDBMetricsPlugin(dbMetrics, log)); err != nil {
			log.Warn("Failed to register database metrics plugin", zap.Error(err))
		} else if sqlDB, err := db.DB.DB(); err != nil {
			log.Warn("Failed to access sql.DB for pool metrics", zap.Error(err))
		} else {
			dbMetrics.StartPoolSampler(ctx, sqlDB)
			defer dbMetrics.Stop()
		}
	}

	// Initialize repositories
	tenantRepo := persistence.NewGormTenantRepository(db.DB)
	userRepo := persistence.NewGormUserRepository(db.DB)
	refreshTokenRepo := persistence.NewGormRefreshTokenRepository(db.DB)
	accountRepo := persistence.NewGormAccountRepository(db.DB)
	journalRepo := persistence.NewGormJournalEntryRepository(db.DB)
	rateRepo := persistence.NewGormRateRepository(db.DB)
	txnRepo := persistence.NewGormTransactionRepository(db.DB)
	auditRepo := persistence.NewGormAuditRepository(db.DB)
	ledgerScope := persistence.NewGormLedgerTransactionScope(db.DB)

	// Audit recorder buffers events and flushes them in batches
	recorderConfig := appaudit.DefaultRecorderConfig()
	recorderConfig.FlushInterval = cfg.Audit.FlushInterval
	recorderConfig.FlushBatch = cfg.Audit.BatchSize
	recorder := appaudit.NewRecorder(auditRepo, recorderConfig, log)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := recorder.Close(flushCtx); err != nil {
			log.Error("Error closing audit recorder", zap.Error(err))
		}
	}()

	// Redis-backed stores with in-memory fallback outside production
	cacheFactory := cache.NewFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	)
	defer func() {
		if err := cacheFactory.Close(); err != nil {
			log.Error("Error closing cache connections", zap.Error(err))
		}
	}()

	idempotencyStore, err := cacheFactory.NewIdempotencyStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	rateCache, err := cacheFactory.NewRateCache()
	if err != nil {
		log.Fatal("Failed to create rate cache", zap.Error(err))
	}
	tokenBlacklist, err := cacheFactory.NewTokenBlacklist()
	if err != nil {
		log.Fatal("Failed to create token blacklist", zap.Error(err))
	}

	// Auth building blocks
	jwtService := auth.NewJWTService(cfg.JWT)
	totp := auth.NewTOTPProvisioner(cfg.JWT.Issuer)

	cipherKey := cfg.Auth.EncryptionKey
	if cipherKey == "" {
		log.Warn("auth.encryption_key not set, using development key")
		cipherKey = devFieldCipherKey
	}
	fieldCipher, err := crypto.NewFieldCipher([]byte(cipherKey))
	if err != nil {
		log.Fatal("Failed to create field cipher", zap.Error(err))
	}

	// Event bus for cross-context integration
	eventBus := event.NewInMemoryEventBus(log)

	// Exchange policy knobs arrive as strings to avoid float config
	rateTolerance, err := decimal.NewFromString(cfg.Exchange.RateTolerance)
	if err != nil {
		log.Fatal("Invalid exchange.rate_tolerance", zap.Error(err))
	}
	approvalThreshold, err := decimal.NewFromString(cfg.Exchange.ManualApprovalThreshold)
	if err != nil {
		log.Fatal("Invalid exchange.manual_approval_threshold", zap.Error(err))
	}

	// Initialize application services
	authService := appidentity.NewAuthService(
		userRepo, refreshTokenRepo, jwtService, totp, fieldCipher.For("user.totp_secret"),
		appidentity.AuthConfig{
			MaxFailedAttempts: cfg.Auth.MaxFailedAttempts,
			FailureWindow:     cfg.Auth.FailureWindow,
			LockDuration:      cfg.Auth.LockDuration,
			RefreshTokenTTL:   cfg.JWT.RefreshTokenExpiration,
			BackupCodeCount:   cfg.Auth.BackupCodeCount,
		},
		recorder, log,
	)
	tenantService := appidentity.NewTenantService(tenantRepo, recorder, log)
	userService := appidentity.NewUserService(userRepo, tenantRepo, recorder, log)
	accountService := appledger.NewAccountService(accountRepo, tenantRepo, recorder, log)
	balanceService := appledger.NewBalanceService(accountRepo, tenantRepo, recorder, log)
	journalService := appledger.NewJournalService(ledgerScope, tenantRepo, recorder, log)
	rateService := appexchange.NewRateService(rateRepo, rateCache,
		appexchange.RateServiceConfig{
			MaxAge:   cfg.Exchange.RateMaxAge,
			CacheTTL: cfg.Exchange.RateCacheTTL,
		},
		recorder, log,
	)
	txnService := appexchange.NewTransactionService(
		txnRepo, accountRepo, userRepo, tenantRepo,
		rateService, balanceService, journalService,
		exchange.DefaultCommissionPolicy(),
		appexchange.OrchestratorConfig{
			RateTolerance:           rateTolerance,
			ManualApprovalThreshold: approvalThreshold,
			HoldRiskScore:           cfg.Exchange.HoldRiskScore,
			DailyCapWindow:          cfg.Exchange.DailyCapWindow,
		},
		recorder, eventBus, log,
	)
	recoveryService := appexchange.NewRecoveryService(
		txnRepo, journalRepo, accountRepo, balanceService,
		appexchange.RecoveryConfig{
			StuckAfter:  cfg.Exchange.StuckAfter,
			BatchSize:   cfg.Exchange.SweepBatchSize,
			OrphanGrace: cfg.Exchange.OrphanGrace,
		},
		recorder, log,
	)
	reconciliationService := appexchange.NewReconciliationService(
		txnRepo,
		appexchange.ReconciliationConfig{
			Window:    cfg.Exchange.ReconcileWindow,
			BatchSize: cfg.Exchange.SweepBatchSize,
		},
		recorder, log,
	)

	// Business metrics follow the domain event stream. The idempotent
	// wrapper keeps counters from double-counting redelivered events.
	if cfg.Telemetry.Enabled {
		businessMetrics, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
			Meter:  meterProvider.Meter("kambio-backend/business"),
			Logger: log,
		})
		if err != nil {
			log.Warn("Failed to create business metrics", zap.Error(err))
		} else {
			eventBus.Subscribe(event.NewIdempotentHandler(businessMetrics, idempotencyStore, log))
		}
	}

	// Start event bus
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Background sweeps
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(cfg.Scheduler.JobTimeout, log,
			scheduler.WithRunGuard(idempotencyStore))

		if err := sched.Every(cfg.Scheduler.RecoveryInterval,
			scheduler.NewSweepJob("stuck_transaction_recovery", recoveryService, log)); err != nil {
			log.Fatal("Failed to register recovery sweep", zap.Error(err))
		}
		if err := sched.Every(cfg.Scheduler.RecoveryInterval,
			scheduler.NewSweepJob("orphan_reservation_sweep",
				scheduler.SweeperFunc(recoveryService.SweepOrphanReservations), log)); err != nil {
			log.Fatal("Failed to register orphan reservation sweep", zap.Error(err))
		}
		if err := sched.Every(cfg.Scheduler.ReconcileInterval,
			scheduler.NewSweepJob("remittance_reconciliation", reconciliationService, log)); err != nil {
			log.Fatal("Failed to register reconciliation sweep", zap.Error(err))
		}
		if err := sched.Daily(cfg.Scheduler.TokenSweepCron,
			scheduler.NewTokenSweepJob(refreshTokenRepo, log)); err != nil {
			log.Fatal("Failed to register token sweep", zap.Error(err))
		}
		if err := sched.Daily(cfg.Scheduler.RetentionCron,
			scheduler.NewAuditRetentionJob(auditRepo, cfg.Audit.Retention, log)); err != nil {
			log.Fatal("Failed to register audit retention job", zap.Error(err))
		}

		if err := sched.Start(ctx); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := sched.Stop(stopCtx); err != nil {
				log.Error("Error stopping scheduler", zap.Error(err))
			}
		}()
	}

	// Initialize HTTP handlers
	authHandler := handler.NewAuthHandler(authService, tenantRepo, tokenBlacklist, cfg.Cookie)
	tenantHandler := handler.NewTenantHandler(tenantService)
	userHandler := handler.NewUserHandler(userService)
	accountHandler := handler.NewAccountHandler(accountService, balanceService)
	journalHandler := handler.NewJournalHandler(journalService)
	rateHandler := handler.NewRateHandler(rateService)
	txnHandler := handler.NewTransactionHandler(txnService)
	auditHandler := handler.NewAuditHandler(auditRepo)
	healthHandler := handler.NewHealthHandler(db.DB)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	if cfg.Telemetry.Enabled {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.SpanErrorMarker())
		engine.Use(middleware.HTTPMetricsWithMeter(
			meterProvider.Meter("kambio-backend/http"), true))
	}

	// Configure CORS from config
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

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

	// Health endpoints stay outside API versioning and authentication
	engine.GET("/health", healthHandler.Health)
	engine.GET("/ready", healthHandler.Ready)

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// JWT authentication on everything versioned except login, the
	// two-factor exchange, and refresh
	r.Use(middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
		JWTService:     jwtService,
		TokenBlacklist: tokenBlacklist,
		SkipPaths: []string{
			"/api/v1/auth/login",
			"/api/v1/auth/2fa/verify",
			"/api/v1/auth/refresh",
		},
		Logger: log,
	}))

	// Auth routes, with a stricter limiter to slow credential stuffing
	authRoutes := router.NewDomainGroup("/auth")
	if cfg.HTTP.AuthRateLimitEnabled {
		authLimiter := middleware.NewRateLimiter(cfg.HTTP.AuthRateLimitRequests, cfg.HTTP.AuthRateLimitWindow)
		authRoutes.Use(middleware.RateLimitByKey(authLimiter, func(c *gin.Context) string {
			return c.ClientIP()
		}))
	}
	authRoutes.POST("/login", authHandler.Login)
	authRoutes.POST("/2fa/verify", authHandler.VerifyTwoFactor)
	authRoutes.POST("/refresh", authHandler.Refresh)
	authRoutes.POST("/logout", authHandler.Logout)
	authRoutes.POST("/logout-all", authHandler.LogoutAll)
	authRoutes.PUT("/password", authHandler.ChangePassword)
	authRoutes.POST("/2fa/enable", authHandler.EnableTwoFactor)
	authRoutes.POST("/2fa/disable", authHandler.DisableTwoFactor)
	authRoutes.GET("/me", authHandler.Me)

	// Tenant management
	requireCap := middleware.RequireCapability
	tenantRoutes := router.NewDomainGroup("/tenants")
	tenantRoutes.POST("", requireCap(identity.CapTenantCreate), tenantHandler.Create)
	tenantRoutes.GET("", tenantHandler.List)
	tenantRoutes.GET("/:id", tenantHandler.Get)
	tenantRoutes.PUT("/:id", requireCap(identity.CapTenantManage), tenantHandler.Update)
	tenantRoutes.PUT("/:id/plan", requireCap(identity.CapTenantManage), tenantHandler.SetPlan)
	tenantRoutes.PUT("/:id/limits", requireCap(identity.CapTenantManage), tenantHandler.UpdateLimits)
	tenantRoutes.POST("/:id/branches", requireCap(identity.CapTenantCreate), tenantHandler.CreateBranch)
	tenantRoutes.POST("/:id/activate", requireCap(identity.CapTenantManage), tenantHandler.Activate)
	tenantRoutes.POST("/:id/deactivate", requireCap(identity.CapTenantManage), tenantHandler.Deactivate)
	tenantRoutes.POST("/:id/suspend", requireCap(identity.CapTenantManage), tenantHandler.Suspend)
	tenantRoutes.POST("/:id/quarantine", requireCap(identity.CapLedgerQuarantine), tenantHandler.Quarantine)
	tenantRoutes.POST("/:id/quarantine/lift", requireCap(identity.CapLedgerQuarantine), tenantHandler.LiftQuarantine)

	// User management
	userRoutes := router.NewDomainGroup("/users")
	userRoutes.POST("", requireCap(identity.CapUserCreate), userHandler.Create)
	userRoutes.GET("", requireCap(identity.CapUserManage), userHandler.List)
	userRoutes.GET("/:id", userHandler.Get)
	userRoutes.PUT("/:id", userHandler.Update)
	userRoutes.PUT("/:id/role", requireCap(identity.CapUserManage), userHandler.ChangeRole)
	userRoutes.POST("/:id/activate", requireCap(identity.CapUserManage), userHandler.Activate)
	userRoutes.POST("/:id/deactivate", requireCap(identity.CapUserManage), userHandler.Deactivate)
	userRoutes.POST("/:id/unlock", requireCap(identity.CapUserManage), userHandler.Unlock)
	userRoutes.POST("/:id/reset-password", requireCap(identity.CapUserManage), userHandler.ResetPassword)
	userRoutes.POST("/:id/kyc/review", requireCap(identity.CapUserKYCReview), userHandler.ReviewKYC)

	// Accounts and balances
	accountRoutes := router.NewDomainGroup("/accounts")
	accountRoutes.POST("", requireCap(identity.CapAccountOpen), accountHandler.Open)
	accountRoutes.GET("", requireCap(identity.CapAccountView), accountHandler.List)
	accountRoutes.GET("/:id", requireCap(identity.CapAccountView), accountHandler.Get)
	accountRoutes.POST("/:id/freeze", requireCap(identity.CapAccountFreeze), accountHandler.Freeze)
	accountRoutes.POST("/:id/unfreeze", requireCap(identity.CapAccountFreeze), accountHandler.Unfreeze)
	accountRoutes.POST("/:id/close", requireCap(identity.CapAccountClose), accountHandler.Close)
	accountRoutes.PUT("/:id/limits", requireCap(identity.CapAccountFreeze), accountHandler.SetLimits)
	accountRoutes.POST("/:id/reserve", requireCap(identity.CapTxnProcess), accountHandler.Reserve)
	accountRoutes.POST("/:id/release", requireCap(identity.CapTxnProcess), accountHandler.Release)
	accountRoutes.POST("/:id/settle", requireCap(identity.CapTxnProcess), accountHandler.SettleDebit)
	accountRoutes.POST("/:id/credit", requireCap(identity.CapTxnProcess), accountHandler.Credit)
	accountRoutes.POST("/:id/adjust", requireCap(identity.CapBalanceAdjust), accountHandler.Adjust)

	// Journal
	journalRoutes := router.NewDomainGroup("/journal")
	journalRoutes.POST("/entries", requireCap(identity.CapJournalPost), journalHandler.Post)
	journalRoutes.POST("/entries/:id/reverse", requireCap(identity.CapJournalReverse), journalHandler.Reverse)
	journalRoutes.GET("/entries", requireCap(identity.CapJournalView), journalHandler.List)
	journalRoutes.GET("/entries/:id", requireCap(identity.CapJournalView), journalHandler.Get)
	journalRoutes.GET("/trial-balance", requireCap(identity.CapJournalView), journalHandler.TrialBalance)

	// Exchange rates
	rateRoutes := router.NewDomainGroup("/rates")
	rateRoutes.POST("", requireCap(identity.CapRateManage), rateHandler.Publish)
	rateRoutes.GET("/quote", requireCap(identity.CapRateView), rateHandler.Quote)
	rateRoutes.GET("/current", requireCap(identity.CapRateView), rateHandler.ListCurrent)
	rateRoutes.GET("/history", requireCap(identity.CapRateView), rateHandler.History)

	// Transactions
	txnRoutes := router.NewDomainGroup("/transactions")
	txnRoutes.POST("", requireCap(identity.CapTxnCreate), txnHandler.Create)
	txnRoutes.GET("", requireCap(identity.CapTxnView), txnHandler.List)
	txnRoutes.GET("/:id", requireCap(identity.CapTxnView), txnHandler.Get)
	txnRoutes.POST("/:id/review", requireCap(identity.CapTxnApprove), txnHandler.Review)
	txnRoutes.POST("/:id/cancel", requireCap(identity.CapTxnCancel), txnHandler.Cancel)

	// Audit trail
	auditRoutes := router.NewDomainGroup("/audit")
	auditRoutes.GET("/events", requireCap(identity.CapAuditView), auditHandler.List)
	auditRoutes.GET("/entities/:entity_type/:entity_id", requireCap(identity.CapAuditView), auditHandler.ListByEntity)

	r.Register(authRoutes, tenantRoutes, userRoutes, accountRoutes,
		journalRoutes, rateRoutes, txnRoutes, auditRoutes)
	r.Setup()

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
