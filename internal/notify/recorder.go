package notify

import (
	"context"
	"sync"

	"finanzas/internal/core"
)

// Recorder collects events in memory. Used by tests and as the log-only
// fallback when AMQP is not configured.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) PaymentProcessed(_ context.Context, sub core.Subscription, tx core.Transaction) error {
	r.record(newPaymentProcessed(sub, tx))
	return nil
}

func (r *Recorder) SubscriptionSuspended(_ context.Context, sub core.Subscription, reason string) error {
	r.record(newSubscriptionSuspended(sub, reason))
	return nil
}

func (r *Recorder) UpcomingPayment(_ context.Context, sub core.Subscription) error {
	r.record(newUpcomingPayment(sub))
	return nil
}

func (r *Recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a snapshot of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
