package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/log"
	"finanzas/internal/notify"
	"finanzas/internal/storage"
)

// Charge failure reasons. Dedup reasons are non-fatal: they short-circuit
// the charge and the scheduler moves on to the next subscription.
const (
	ReasonAlreadyProcessing    ChargeReason = "already_processing"
	ReasonProcessedRecently    ChargeReason = "processed_recently"
	ReasonAlreadyPaidToday     ChargeReason = "already_paid_today"
	ReasonDuplicateTransaction ChargeReason = "duplicate_transaction_detected"
	ReasonInsufficientFunds    ChargeReason = "insufficient_funds"
	ReasonProcessingError      ChargeReason = "processing_error"
)

const suspensionInsufficientFunds = "Fondos insuficientes"

type (
	ChargeReason string

	// ChargeResult reports the outcome of one charge attempt.
	ChargeResult struct {
		Processed   bool
		Reason      ChargeReason
		Transaction *core.Transaction
	}

	// ChargeFailure pairs a subscription with the reason its charge was
	// skipped or failed during a sweep.
	ChargeFailure struct {
		Subscription core.Subscription
		Reason       ChargeReason
	}

	// CheckResults summarizes one scheduler sweep.
	CheckResults struct {
		Processed []core.Subscription
		Upcoming  []core.Subscription
		Failed    []ChargeFailure
	}
)

// BillingService runs subscription charge-offs with a layered idempotency
// barrier: an in-flight lock, a recency window, a same-day check against
// lastPaymentDate and a store lookback for automatic transactions. Any
// single layer failing must not by itself produce a duplicate charge.
type BillingService struct {
	store    storage.Store
	notifier notify.Notifier

	guard          *dedupGuard
	recencyWindow  time.Duration
	lookbackWindow time.Duration
	upcomingDays   int
}

func NewBillingService(store storage.Store, notifier notify.Notifier) *BillingService {
	return NewBillingServiceWithWindows(store, notifier, 30*time.Second, 10*time.Minute, 2)
}

// NewBillingServiceWithWindows overrides the dedup and warning windows.
// Shrinking them below the defaults weakens the duplicate-charge barrier.
func NewBillingServiceWithWindows(store storage.Store, notifier notify.Notifier, recency, lookback time.Duration, upcomingDays int) *BillingService {
	return &BillingService{
		store:          store,
		notifier:       notifier,
		guard:          newDedupGuard(),
		recencyWindow:  recency,
		lookbackWindow: lookback,
		upcomingDays:   upcomingDays,
	}
}

// NextPaymentDate advances one calendar month, normalizing month-end
// overflow. The advance is always one month regardless of the stored
// frequency; the annual frequency only feeds projected-spend displays.
func NextPaymentDate(from time.Time) time.Time {
	return from.AddDate(0, 1, 0)
}

// IsOverdue reports whether a payment date has passed.
func IsOverdue(nextPayment, now time.Time) bool {
	return nextPayment.Before(now)
}

// IsUpcoming reports whether a payment falls inside the warning window:
// due today up to upcomingDays from now.
func (s *BillingService) IsUpcoming(nextPayment, now time.Time) bool {
	days := int(math.Ceil(nextPayment.Sub(now).Hours() / 24))
	return days >= 0 && days <= s.upcomingDays
}

func sameCalendarDay(a, b time.Time) bool {
	// Stored payment stamps are UTC while callers pass wall-clock time, so
	// both sides must be read in one location.
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// hasRecentAutomaticCharge scans the store for an automatic transaction of
// this subscription inside the lookback window. Catches duplicates coming
// from another process that the in-memory layers cannot see. A store
// failure here is logged and treated as no duplicates, so the remaining
// layers still decide.
func (s *BillingService) hasRecentAutomaticCharge(ctx context.Context, subscriptionID string, now time.Time) bool {
	txs, err := s.store.ListTransactions(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to check for duplicate transactions",
			log.FieldSubscriptionID, subscriptionID,
			log.FieldError, err)
		return false
	}

	cutoff := now.Add(-s.lookbackWindow)
	for _, tx := range txs {
		if tx.SubscriptionID == subscriptionID && tx.IsAutomatic && !tx.Date.Before(cutoff) {
			return true
		}
	}
	return false
}

// ProcessPayment attempts one automatic charge. On success it creates the
// expense transaction, debits the account, advances nextPayment one cycle
// and stamps the payment metadata. On insufficient funds the subscription
// is suspended instead and no transaction is created.
func (s *BillingService) ProcessPayment(ctx context.Context, sub core.Subscription, account core.Account, now time.Time) ChargeResult {
	if reason := s.guard.acquire(sub.ID, now, s.recencyWindow); reason != "" {
		slog.WarnContext(ctx, "Skipping duplicate charge attempt",
			log.FieldSubscription, sub.Name,
			log.FieldReason, reason)
		return ChargeResult{Reason: reason}
	}
	defer s.guard.release(sub.ID)

	if !sub.LastPaymentDate.IsZero() && sameCalendarDay(sub.LastPaymentDate, now) {
		slog.WarnContext(ctx, "Subscription already charged today",
			log.FieldSubscription, sub.Name,
			"last_payment", sub.LastPaymentDate.Format("2006-01-02"))
		return ChargeResult{Reason: ReasonAlreadyPaidToday}
	}

	if s.hasRecentAutomaticCharge(ctx, sub.ID, now) {
		slog.WarnContext(ctx, "Recent automatic transaction found, skipping charge",
			log.FieldSubscription, sub.Name)
		return ChargeResult{Reason: ReasonDuplicateTransaction}
	}

	s.guard.markStarted(sub.ID, now)

	slog.InfoContext(ctx, "Processing subscription charge",
		log.FieldSubscription, sub.Name,
		"cost", sub.Cost.String(),
		log.FieldAccountID, account.ID)

	if account.Balance.LessThan(sub.Cost) {
		sub.Status = core.StatusSuspended
		sub.SuspensionReason = suspensionInsufficientFunds
		if err := s.store.UpdateSubscription(ctx, sub); err != nil {
			slog.ErrorContext(ctx, "Failed to suspend subscription",
				log.FieldSubscription, sub.Name,
				log.FieldError, err)
			return ChargeResult{Reason: ReasonProcessingError}
		}

		if err := s.notifier.SubscriptionSuspended(ctx, sub, suspensionInsufficientFunds); err != nil {
			slog.ErrorContext(ctx, "Failed to publish suspension event",
				log.FieldSubscription, sub.Name,
				log.FieldError, err)
		}

		slog.WarnContext(ctx, "Subscription suspended",
			log.FieldSubscription, sub.Name,
			log.FieldReason, suspensionInsufficientFunds,
			log.FieldBalance, account.Balance.String())
		return ChargeResult{Reason: ReasonInsufficientFunds}
	}

	charge := core.Transaction{
		Title:          fmt.Sprintf("Pago automático - %s", sub.Name),
		Category:       core.CategorySubscription,
		Amount:         sub.Cost,
		Type:           core.Expense,
		Date:           now,
		AccountID:      sub.AccountID,
		SubscriptionID: sub.ID,
		IsAutomatic:    true,
	}

	created, err := s.store.CreateTransaction(ctx, charge)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to create charge transaction",
			log.FieldSubscription, sub.Name,
			log.FieldError, err)
		return ChargeResult{Reason: ReasonProcessingError}
	}

	account.Balance = account.Balance.Sub(sub.Cost)
	if err := s.store.UpdateAccount(ctx, account); err != nil {
		// Transaction already written; surface, do not roll back.
		slog.ErrorContext(ctx, "Charge written but balance update failed",
			log.FieldSubscription, sub.Name,
			log.FieldTransactionID, created.ID,
			log.FieldError, err)
		return ChargeResult{Reason: ReasonProcessingError, Transaction: &created}
	}

	sub.NextPayment = NextPaymentDate(now)
	sub.LastPaymentDate = now
	sub.LastPaymentAmount = sub.Cost
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		slog.ErrorContext(ctx, "Charge applied but subscription update failed",
			log.FieldSubscription, sub.Name,
			log.FieldTransactionID, created.ID,
			log.FieldError, err)
		return ChargeResult{Reason: ReasonProcessingError, Transaction: &created}
	}

	if err := s.notifier.PaymentProcessed(ctx, sub, created); err != nil {
		slog.ErrorContext(ctx, "Failed to publish payment event",
			log.FieldSubscription, sub.Name,
			log.FieldError, err)
	}

	slog.InfoContext(ctx, "Subscription charged",
		log.FieldSubscription, sub.Name,
		log.FieldAmount, sub.Cost.String(),
		log.FieldNextPayment, sub.NextPayment.Format("2006-01-02"))

	return ChargeResult{Processed: true, Transaction: &created}
}

// CheckSubscriptions sweeps all active subscriptions: overdue ones are
// charged, ones inside the warning window are flagged as upcoming.
// Subscriptions whose account is missing are skipped with a warning.
func (s *BillingService) CheckSubscriptions(ctx context.Context, now time.Time) (CheckResults, error) {
	subs, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		return CheckResults{}, fmt.Errorf("list subscriptions: %w", err)
	}

	var results CheckResults
	active := 0

	for _, sub := range subs {
		if sub.Status != core.StatusActive {
			continue
		}
		active++

		account, err := s.store.GetAccount(ctx, sub.AccountID)
		if err != nil {
			slog.WarnContext(ctx, "Account not found for subscription, skipping",
				log.FieldSubscription, sub.Name,
				log.FieldAccountID, sub.AccountID)
			continue
		}

		switch {
		case IsOverdue(sub.NextPayment, now):
			result := s.ProcessPayment(ctx, sub, account, now)
			if result.Processed {
				results.Processed = append(results.Processed, sub)
			} else {
				results.Failed = append(results.Failed, ChargeFailure{Subscription: sub, Reason: result.Reason})
			}
		case s.IsUpcoming(sub.NextPayment, now):
			results.Upcoming = append(results.Upcoming, sub)
			if err := s.notifier.UpcomingPayment(ctx, sub); err != nil {
				slog.ErrorContext(ctx, "Failed to publish upcoming-payment event",
					log.FieldSubscription, sub.Name,
					log.FieldError, err)
			}
		}
	}

	slog.InfoContext(ctx, "Subscription sweep complete",
		"active", active,
		"processed", len(results.Processed),
		"upcoming", len(results.Upcoming),
		"failed", len(results.Failed))

	return results, nil
}

// CreateSubscription registers a new active subscription with its first
// charge one cycle from now.
func (s *BillingService) CreateSubscription(ctx context.Context, sub core.Subscription, now time.Time) (core.Subscription, error) {
	sub.Status = core.StatusActive
	sub.NextPayment = NextPaymentDate(now)
	sub.SuspensionReason = ""

	if err := sub.Validate(); err != nil {
		return core.Subscription{}, err
	}

	created, err := s.store.CreateSubscription(ctx, sub)
	if err != nil {
		return core.Subscription{}, fmt.Errorf("create subscription: %w", err)
	}

	slog.InfoContext(ctx, "Subscription created",
		"id", created.ID,
		"name", created.Name,
		"first_payment", created.NextPayment.Format("2006-01-02"))
	return created, nil
}

// CancelSubscription marks a subscription cancelled. It can be reactivated
// later; nothing is deleted.
func (s *BillingService) CancelSubscription(ctx context.Context, id string) error {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}

	sub.Status = core.StatusCancelled
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}

	slog.InfoContext(ctx, "Subscription cancelled", "id", id, "name", sub.Name)
	return nil
}

// ReactivateSubscription turns a suspended or cancelled subscription back
// on, charging the current cycle immediately as a manual transaction.
func (s *BillingService) ReactivateSubscription(ctx context.Context, id string, now time.Time) error {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}

	account, err := s.store.GetAccount(ctx, sub.AccountID)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrAccountNotFound, sub.AccountID)
	}

	if account.Balance.LessThan(sub.Cost) {
		return fmt.Errorf("%w: account %q balance %s cannot cover %s",
			core.ErrInsufficientFunds, account.Name, account.Balance.String(), sub.Cost.String())
	}

	charge := core.Transaction{
		Title:          fmt.Sprintf("Reactivación - %s", sub.Name),
		Category:       core.CategorySubscription,
		Amount:         sub.Cost,
		Type:           core.Expense,
		Date:           now,
		AccountID:      sub.AccountID,
		SubscriptionID: sub.ID,
		IsAutomatic:    false, // user-triggered, not a scheduler charge
	}
	if _, err := s.store.CreateTransaction(ctx, charge); err != nil {
		return fmt.Errorf("%w: create reactivation transaction: %w", ErrProcessing, err)
	}

	account.Balance = account.Balance.Sub(sub.Cost)
	if err := s.store.UpdateAccount(ctx, account); err != nil {
		return fmt.Errorf("%w: reactivation written but balance update failed: %w", ErrProcessing, err)
	}

	sub.Status = core.StatusActive
	sub.NextPayment = NextPaymentDate(now)
	sub.LastPaymentDate = now
	sub.LastPaymentAmount = sub.Cost
	sub.SuspensionReason = ""
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("%w: reactivation applied but subscription update failed: %w", ErrProcessing, err)
	}

	slog.InfoContext(ctx, "Subscription reactivated",
		"id", id,
		"name", sub.Name,
		log.FieldNextPayment, sub.NextPayment.Format("2006-01-02"))
	return nil
}
