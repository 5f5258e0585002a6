package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"finanzas/internal/core"
	"finanzas/internal/log"
)

// AMQPNotifier publishes billing events to a direct exchange. Messages are
// persistent JSON so a consumer restart does not lose notifications.
type AMQPNotifier struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

func NewAMQPNotifier(url, exchangeName, queueName string) (*AMQPNotifier, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	n := &AMQPNotifier{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := n.setup(); err != nil {
		n.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return n, nil
}

func (n *AMQPNotifier) setup() error {
	err := n.channel.ExchangeDeclare(
		n.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = n.channel.QueueDeclare(
		n.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = n.channel.QueueBind(
		n.queueName,    // queue name
		n.queueName,    // routing key (same as queue name for direct exchange)
		n.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

func (n *AMQPNotifier) PaymentProcessed(ctx context.Context, sub core.Subscription, tx core.Transaction) error {
	return n.publish(ctx, newPaymentProcessed(sub, tx))
}

func (n *AMQPNotifier) SubscriptionSuspended(ctx context.Context, sub core.Subscription, reason string) error {
	return n.publish(ctx, newSubscriptionSuspended(sub, reason))
}

func (n *AMQPNotifier) UpcomingPayment(ctx context.Context, sub core.Subscription) error {
	return n.publish(ctx, newUpcomingPayment(sub))
}

func (n *AMQPNotifier) publish(ctx context.Context, event Event) error {
	body, err := event.toJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = n.channel.PublishWithContext(
		ctx,
		n.exchangeName, // exchange
		n.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	slog.InfoContext(ctx, "Published billing event",
		"type", event.Type,
		log.FieldSubscriptionID, event.SubscriptionID,
		"exchange", n.exchangeName,
		"queue", n.queueName)

	return nil
}

// Consume delivers published events to the handler until ctx is done.
// Failed handlers requeue the event; undecodable events are dropped.
func (n *AMQPNotifier) Consume(ctx context.Context, handler func(Event) error) error {
	msgs, err := n.channel.Consume(
		n.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming billing events", "queue", n.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping event consumption", log.FieldReason, ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			event, err := EventFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal event", log.FieldError, err)
				delivery.Nack(false, false)
				continue
			}

			if err := handler(event); err != nil {
				slog.ErrorContext(ctx, "Failed to handle event",
					log.FieldError, err,
					"type", event.Type,
					log.FieldSubscriptionID, event.SubscriptionID)
				delivery.Nack(false, true)
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (n *AMQPNotifier) Close() error {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
