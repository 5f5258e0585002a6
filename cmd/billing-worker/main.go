package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"finanzas/internal/config"
	"finanzas/internal/log"
	"finanzas/internal/notify"
	"finanzas/internal/services"
	"finanzas/internal/storage"
	"finanzas/internal/storage/memory"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := log.New(log.Config{
		Level:     log.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: log.ComponentWorker,
		JSON:      os.Getenv("LOG_FORMAT") == "json",
		Output:    os.Stdout,
	})
	log.SetDefault(logger)

	logger.Info("Starting billing-worker")

	// Load configuration
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	// Initialize the store backend
	var store storage.Store
	switch cfg.DataBackend {
	case "sqlite":
		sqliteRepo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer sqliteRepo.Close()
		store = sqliteRepo
	case "memory":
		logger.Warn("Using in-memory store, data will not survive a restart")
		store = memory.New()
	}

	// Initialize the event notifier. Without AMQP the worker still runs;
	// events are recorded in memory and visible only through logs.
	var notifier notify.Notifier
	if cfg.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP notifier, continuing without event publishing", log.FieldError, err)
			notifier = notify.NewRecorder()
		} else {
			defer amqpNotifier.Close()
			logger.Info("AMQP notifier initialized",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
			notifier = amqpNotifier
		}
	} else {
		logger.Info("AMQP disabled, billing events will not be published")
		notifier = notify.NewRecorder()
	}

	billing := services.NewBillingServiceWithWindows(store, notifier,
		cfg.ChargeRecencyWindow, cfg.DuplicateLookback, cfg.UpcomingWindowDays)

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sweep := func(now time.Time) {
		results, err := billing.CheckSubscriptions(ctx, now)
		if err != nil {
			slog.ErrorContext(ctx, "Subscription sweep failed", log.FieldError, err)
			return
		}
		for _, failure := range results.Failed {
			slog.WarnContext(ctx, "Charge not applied",
				log.FieldSubscription, failure.Subscription.Name,
				log.FieldReason, failure.Reason)
		}
	}

	// Run an initial sweep so overdue charges are not delayed until the
	// first scheduled tick.
	if cfg.SweepOnStart {
		logger.Info("Running initial subscription sweep")
		sweep(time.Now())
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.BillingSchedule, func() { sweep(time.Now()) }); err != nil {
		logger.Error("Failed to schedule billing sweep", log.FieldError, err, log.FieldSchedule, cfg.BillingSchedule)
		os.Exit(1)
	}

	logger.Info("Billing scheduler configured",
		log.FieldSchedule, cfg.BillingSchedule,
		"backend", cfg.DataBackend)
	scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, stopping scheduler")

		// Let an in-flight sweep finish, bounded by the shutdown timeout.
		stopped := scheduler.Stop()
		select {
		case <-stopped.Done():
			logger.Info("Scheduler stopped cleanly")
		case <-time.After(cfg.ShutdownTimeout):
			logger.Warn("Shutdown timeout reached with a sweep still running")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker exited with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Billing worker stopped")
}
