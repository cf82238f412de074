package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/matcha-bookable/bookable-bot/internal/config"
	"github.com/matcha-bookable/bookable-bot/internal/database"
	"github.com/matcha-bookable/bookable-bot/internal/discord"
	"github.com/matcha-bookable/bookable-bot/internal/handlers"
	"github.com/matcha-bookable/bookable-bot/internal/middleware"
	"github.com/matcha-bookable/bookable-bot/internal/services"
	"github.com/matcha-bookable/bookable-bot/pkg/jwt"
	"github.com/matcha-bookable/bookable-bot/pkg/provisioning"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Matcha Bookable Bot")
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

	if cfg.Server.LogFile != "" {
		logger.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Server.LogFile,
			MaxSize:    5, // megabytes
			MaxBackups: 3,
		}))
		logger.WithField("file", cfg.Server.LogFile).Info("Logging to rotating file")
	}

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Audit trail (optional)
	var auditor services.Auditor = services.NopAuditor{}
	var purger services.AuditPurger
	var history handlers.AuditHistory
	if cfg.AuditEnabled() {
		logger.Info("Connecting to audit database...")
		db, err := database.NewConnection(ctx, cfg.Database)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := database.EnsureAuditSchema(ctx, db); err != nil {
			logger.Fatalf("Failed to prepare audit schema: %v", err)
		}

		auditService := services.NewAuditService(database.NewBookingAuditRepository(db), logger)
		auditor = auditService
		purger = auditService
		history = auditService
		logger.Info("Audit trail enabled")
	} else {
		logger.Info("DATABASE_URL not set, audit trail disabled")
	}

	// Provisioning backend
	matchaClient := provisioning.NewMatchaClient(provisioning.Config{
		BaseURL:       cfg.Provisioning.BaseURL,
		Token:         cfg.Provisioning.Token,
		Timeout:       cfg.Provisioning.Timeout,
		WebhookURL:    cfg.Provisioning.WebhookURL,
		WebhookBearer: cfg.Provisioning.WebhookBearer,
	}, logger)
	if cfg.Provisioning.Token == "" {
		logger.Warn("MATCHA_API_TOKEN not set, every booking will be answered as unavailable")
	}

	catalog := services.NewRegionCatalog(matchaClient, cfg.Provisioning.Provider, logger)
	if err := catalog.Refresh(ctx); err != nil {
		logger.WithError(err).Warn("Starting without bookable regions, the next refresh will retry")
	}

	// Shared booking state
	store := database.NewBookingStore()
	ledger := services.NewCapacityLedger(cfg.Booking.MaxBookable)

	// Chat platform
	var notifier services.Notifier = services.NewNopNotifier(logger)
	var gateway *discord.Gateway
	var commandSyncer services.CommandSyncer
	if !cfg.Discord.Disabled {
		session, err := discord.NewSession(cfg.Discord)
		if err != nil {
			logger.Fatalf("Failed to create discord session: %v", err)
		}
		notifier = discord.NewNotifier(session, cfg.Discord.ChannelID, logger)

		coordinator := newCoordinator(cfg, store, ledger, matchaClient, notifier, catalog, auditor, logger)
		gateway = discord.NewGateway(session, coordinator, catalog, ledger, discord.GatewayConfig{
			GuildID:      cfg.Discord.GuildID,
			ProviderName: cfg.Provisioning.ProviderName,
		}, logger)
		commandSyncer = gateway
	} else {
		logger.Warn("DISCORD_DISABLED set, only the webhook and admin API are served")
	}

	reconciler := services.NewWebhookReconciler(store, ledger, notifier, catalog, auditor, logger)

	// Background jobs
	cronService := services.NewCronService(catalog, purger, commandSyncer, services.CronConfig{
		RegionRefreshSchedule: cfg.Jobs.RegionRefreshSchedule,
		AuditCleanupSchedule:  cfg.Jobs.AuditCleanupSchedule,
		AuditRetention:        cfg.Database.AuditRetention,
	}, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	router := newRouter(cfg, reconciler, store, ledger, catalog, history, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if gateway != nil {
		group.Go(func() error {
			return gateway.Run(groupCtx)
		})
	}

	if err := group.Wait(); err != nil {
		logger.WithError(err).Error("Service stopped with error")
	}

	cronService.Stop()
	logger.Info("Server exited successfully")
}

func newCoordinator(
	cfg *config.Config,
	store *database.BookingStore,
	ledger *services.CapacityLedger,
	provisioner services.Provisioner,
	notifier services.Notifier,
	catalog *services.RegionCatalog,
	auditor services.Auditor,
	logger *logrus.Logger,
) *services.BookingCoordinator {
	return services.NewBookingCoordinator(store, ledger, provisioner, notifier, catalog, auditor, services.BookingCoordinatorConfig{
		Provider:     cfg.Provisioning.Provider,
		PollInterval: cfg.Booking.PollInterval,
		StartTimeout: cfg.Booking.StartTimeout,
	}, logger)
}

func newRouter(
	cfg *config.Config,
	reconciler handlers.Reconciler,
	store *database.BookingStore,
	ledger *services.CapacityLedger,
	catalog *services.RegionCatalog,
	history handlers.AuditHistory,
	logger *logrus.Logger,
) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))

	// CORS configuration
	router.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.CORS.AllowedOrigins,
		AllowMethods:  cfg.CORS.AllowedMethods,
		AllowHeaders:  cfg.CORS.AllowedHeaders,
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	webhookHandler := handlers.NewWebhookHandler(reconciler, logger)
	router.GET("/health", webhookHandler.HealthCheck)
	router.POST("/webhook", middleware.WebhookBearer(cfg.Provisioning.WebhookBearer, logger), webhookHandler.HandleWebhook)

	if !cfg.AdminAPIEnabled() {
		logger.Info("JWT_SECRET not set, admin API disabled")
		return router
	}

	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	adminHandler := handlers.NewAdminHandler(store, ledger, catalog, history, logger)

	admin := router.Group("/api/v1/admin")
	admin.Use(middleware.AuthMiddleware(jwtService), middleware.RequireRole(jwt.RoleOperator))
	{
		admin.GET("/bookings", adminHandler.ListBookings)
		admin.GET("/capacity", adminHandler.GetCapacity)
		admin.GET("/regions/availability", adminHandler.GetAvailability)
		admin.GET("/audit/:owner", adminHandler.GetAuditHistory)
	}
	return router
}
