package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pillbox/adherence-backend/internal/alarm"
	"github.com/pillbox/adherence-backend/internal/config"
	"github.com/pillbox/adherence-backend/internal/demo"
	"github.com/pillbox/adherence-backend/internal/handler"
	"github.com/pillbox/adherence-backend/internal/middleware"
	"github.com/pillbox/adherence-backend/internal/repository"
	"github.com/pillbox/adherence-backend/internal/service"
	"github.com/pillbox/adherence-backend/internal/store"
	"github.com/pillbox/adherence-backend/pkg/dates"
	"github.com/pillbox/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

var (
	logger *zap.Logger
	pool   *pgxpool.Pool
	cfg    *config.Config
)

func main() {
	// Load configuration
	var err error
	cfg, err = config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize Zap logger
	if cfg.Server.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded successfully",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
	)

	// Initialize the snapshot store. An empty database URL means the engine
	// runs purely in memory.
	var snapshots store.SnapshotRepository
	if cfg.Database.URL != "" {
		pool, err = pgxpool.New(context.Background(), cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(context.Background()); err != nil {
			logger.Fatal("Failed to ping database", zap.Error(err))
		}
		logger.Info("Successfully connected to database")

		repo := repository.NewSnapshotRepository(pool, logger)
		if err := repo.EnsureSchema(context.Background()); err != nil {
			logger.Fatal("Failed to ensure snapshot schema", zap.Error(err))
		}
		snapshots = repo
	} else {
		logger.Warn("No database URL configured, running in memory only")
	}

	persister := store.NewPersister(snapshots, logger)

	// Initialize state and restore persisted snapshots
	registry := service.NewRegistry(persister, logger)
	adherence := store.NewAdherenceStore(logger)

	ctx := context.Background()
	if err := registry.Restore(ctx); err != nil {
		logger.Fatal("Failed to restore registry", zap.Error(err))
	}
	var snapshot map[string]map[string][model.SlotCount]model.Adherence
	found, err := persister.Load(ctx, store.SnapshotAdherence, &snapshot)
	if err != nil {
		logger.Fatal("Failed to restore adherence data", zap.Error(err))
	}
	if found {
		adherence.Restore(snapshot)
	}

	// Initialize the classification pipeline
	classifierCfg := service.ClassifierConfig{
		EarlyWindow:   cfg.Adherence.EarlyWindow,
		LateWindow:    cfg.Adherence.LateWindow,
		MissedCutoff:  cfg.Adherence.MissedCutoff,
		ClarifyWindow: cfg.Adherence.ClarifyWindow,
	}
	classifier := service.NewClassifier(registry, adherence, persister, classifierCfg, logger)

	// Initialize the alarm facility and notification delivery. The cron
	// facility always runs so missed-window checks keep expiring overdue
	// doses; the notification toggle only controls reminder delivery.
	var notifier *alarm.DesktopNotifier
	var prompter service.ConfirmationPrompter
	if cfg.Notifications.Enabled {
		notifier = alarm.NewDesktopNotifier("Pillbox", cfg.Notifications.Text, logger)
		prompter = notifier
	}

	facility := alarm.NewCronFacility(alarm.Handler{
		OnReminder: func(trigger model.Trigger) {
			if notifier == nil {
				return
			}
			med, ok := registry.Medication(trigger.Medication)
			if !ok {
				return
			}
			notifier.NotifyReminder(med)
		},
		OnMissedCheck: func(model.Trigger) {
			classifier.ExpireOverdue(time.Now())
		},
	}, logger)
	defer facility.Stop()
	var alarms service.AlarmFacility = facility

	confirmations := service.NewConfirmationManager(classifier, cfg.Adherence.ConfirmationTimeout, prompter, logger)
	defer confirmations.Close()
	intake := service.NewIntakeService(registry, confirmations, logger)

	// Keep the materialized adherence grid in step with schedule changes.
	// Registered before the scheduler so recomputes see a filled grid. The
	// sweep afterwards expires slots whose scheduled time already passed,
	// which would otherwise wait for the next daily missed-window check.
	materialize := func() {
		adherence.Materialize(dates.DayOf(time.Now()), cfg.Adherence.HorizonDays, registry.Schedules(), time.Local)
		classifier.ExpireOverdue(time.Now())
	}
	registry.Subscribe(materialize)

	scheduler := service.NewReminderScheduler(registry, alarms, persister, cfg.Reminders.DefaultOffsetsMinutes, cfg.Adherence.MissedCutoff, logger)

	var offsets []int
	if found, err := persister.Load(ctx, store.SnapshotReminderOffsets, &offsets); err != nil {
		logger.Fatal("Failed to restore reminder offsets", zap.Error(err))
	} else if found {
		scheduler.RestoreOffsets(offsets)
	}

	progress := service.NewProgressService(registry, adherence, logger)
	syncService := service.NewSyncService(registry, adherence, persister, logger)

	// Seed demo data on first start if requested
	if cfg.Demo.Enabled && len(registry.ListMedications()) == 0 {
		demo.Seed(registry, adherence, cfg.Demo.Seed, logger)
	}

	materialize()
	if expired := classifier.ExpireOverdue(time.Now()); expired > 0 {
		logger.Info("Expired overdue doses on startup", zap.Int("count", expired))
	}
	if err := scheduler.Recompute(); err != nil {
		logger.Error("Failed to arm reminders on startup", zap.Error(err))
	}

	// Initialize handlers
	medicationHandler := handler.NewMedicationHandler(registry, logger)
	intakeHandler := handler.NewIntakeHandler(intake, confirmations, logger)
	adherenceHandler := handler.NewAdherenceHandler(adherence, classifier, logger)
	reminderHandler := handler.NewReminderHandler(scheduler, logger)
	progressHandler := handler.NewProgressHandler(progress, logger)
	syncHandler := handler.NewSyncHandler(syncService, logger)
	statusHandler := handler.NewStatusHandler(pool, logger)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Gin router
	r := gin.New()

	// Add recovery middleware (must be first)
	r.Use(middleware.RecoveryMiddleware(logger))

	// Add CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Configure appropriately for production
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Add request ID middleware
	r.Use(middleware.RequestIDMiddleware())

	// Add request logging middleware
	r.Use(middleware.RequestLoggingMiddleware(logger))

	// Add error logging middleware
	r.Use(middleware.ErrorLoggingMiddleware(logger))

	r.GET("/health", statusHandler.GetHealth)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/medications", medicationHandler.GetMedications)
		v1.POST("/medications", medicationHandler.PostMedications)
		v1.PUT("/medications/:name/schedule", medicationHandler.PutMedicationSchedule)
		v1.PUT("/medications/:name/dosage", medicationHandler.PutMedicationDosage)
		v1.PUT("/medications/:name/address", medicationHandler.PutMedicationAddress)
		v1.DELETE("/medications/:name", medicationHandler.DeleteMedication)

		v1.POST("/intake", intakeHandler.PostIntake)
		v1.GET("/intake/pending", intakeHandler.GetIntakePending)
		v1.POST("/intake/confirm", intakeHandler.PostIntakeConfirm)

		v1.GET("/adherence", adherenceHandler.GetAdherence)
		v1.PUT("/adherence", adherenceHandler.PutAdherence)
		v1.PUT("/adherence/time", adherenceHandler.PutAdherenceTime)

		v1.GET("/reminders", reminderHandler.GetReminders)
		v1.GET("/reminders/offsets", reminderHandler.GetReminderOffsets)
		v1.PUT("/reminders/offsets", reminderHandler.PutReminderOffsets)

		v1.GET("/progress", progressHandler.GetProgress)
		v1.POST("/sync", syncHandler.PostSync)
	}

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
