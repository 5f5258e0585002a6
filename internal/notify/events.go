// Package notify carries the billing domain events out of the engine.
// The UI notification bell (or any other consumer) subscribes to these
// instead of the engine knowing anything about rendering.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"finanzas/internal/core"
)

const (
	EventPaymentProcessed      EventType = "payment_processed"
	EventSubscriptionSuspended EventType = "subscription_suspended"
	EventUpcomingPayment       EventType = "upcoming_payment"
)

type (
	EventType string

	// Event is the wire message published for every billing outcome.
	Event struct {
		Type             EventType `json:"type"`
		SubscriptionID   string    `json:"subscription_id"`
		SubscriptionName string    `json:"subscription_name"`
		Amount           string    `json:"amount"`
		TransactionID    string    `json:"transaction_id,omitempty"`
		Reason           string    `json:"reason,omitempty"`
		Timestamp        time.Time `json:"timestamp"`
	}
)

// Notifier is implemented by anything that can deliver billing events.
// Delivery failures must never fail the charge that produced the event.
type Notifier interface {
	PaymentProcessed(ctx context.Context, sub core.Subscription, tx core.Transaction) error
	SubscriptionSuspended(ctx context.Context, sub core.Subscription, reason string) error
	UpcomingPayment(ctx context.Context, sub core.Subscription) error
}

func newPaymentProcessed(sub core.Subscription, tx core.Transaction) Event {
	return Event{
		Type:             EventPaymentProcessed,
		SubscriptionID:   sub.ID,
		SubscriptionName: sub.Name,
		Amount:           sub.Cost.String(),
		TransactionID:    tx.ID,
		Timestamp:        time.Now().UTC(),
	}
}

func newSubscriptionSuspended(sub core.Subscription, reason string) Event {
	return Event{
		Type:             EventSubscriptionSuspended,
		SubscriptionID:   sub.ID,
		SubscriptionName: sub.Name,
		Amount:           sub.Cost.String(),
		Reason:           reason,
		Timestamp:        time.Now().UTC(),
	}
}

func newUpcomingPayment(sub core.Subscription) Event {
	return Event{
		Type:             EventUpcomingPayment,
		SubscriptionID:   sub.ID,
		SubscriptionName: sub.Name,
		Amount:           sub.Cost.String(),
		Timestamp:        time.Now().UTC(),
	}
}

func (e Event) toJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes a published event, for consumers.
func EventFromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}
