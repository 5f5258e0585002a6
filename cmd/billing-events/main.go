// billing-events tails the billing event queue and logs every event.
// It is the reference consumer for the notifications the billing worker
// publishes; a UI or alerting bridge would follow the same shape.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"finanzas/internal/config"
	"finanzas/internal/log"
	"finanzas/internal/notify"
)

func main() {
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     log.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: log.ComponentApp,
		JSON:      os.Getenv("LOG_FORMAT") == "json",
		Output:    os.Stdout,
	})
	log.SetDefault(logger)

	cfg := config.Load()
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required to consume billing events")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	notifier, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", log.FieldError, err)
		os.Exit(1)
	}
	defer notifier.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Consuming billing events", "queue", cfg.AMQPQueue)

	err = notifier.Consume(ctx, func(event notify.Event) error {
		switch event.Type {
		case notify.EventSubscriptionSuspended:
			logger.Warn("Subscription suspended",
				log.FieldSubscriptionID, event.SubscriptionID,
				log.FieldSubscription, event.SubscriptionName,
				log.FieldReason, event.Reason)
		case notify.EventUpcomingPayment:
			logger.Info("Upcoming payment",
				log.FieldSubscriptionID, event.SubscriptionID,
				log.FieldSubscription, event.SubscriptionName,
				log.FieldAmount, event.Amount)
		default:
			logger.Info("Payment processed",
				log.FieldSubscriptionID, event.SubscriptionID,
				log.FieldSubscription, event.SubscriptionName,
				log.FieldAmount, event.Amount,
				log.FieldTransactionID, event.TransactionID)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Consumer exited with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Billing event consumer stopped")
}
