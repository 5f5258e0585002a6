package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/notify"
	"finanzas/internal/storage/memory"
)

func seedSubscription(t *testing.T, store *memory.Store, sub core.Subscription) core.Subscription {
	t.Helper()
	created, err := store.CreateSubscription(context.Background(), sub)
	if err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return created
}

func TestNextPaymentDate(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{
			name: "mid-month advances one month",
			from: time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "month-end overflow normalizes forward",
			from: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "december wraps into january",
			from: time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextPaymentDate(tt.from); !got.Equal(tt.want) {
				t.Errorf("NextPaymentDate(%v) = %v, want %v", tt.from, got, tt.want)
			}
		})
	}
}

func TestIsUpcoming(t *testing.T) {
	svc := NewBillingService(memory.New(), notify.NewRecorder())
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		nextPayment time.Time
		want        bool
	}{
		{"due this instant", now, true},
		{"due tomorrow", now.Add(24 * time.Hour), true},
		{"due at the edge of the window", now.Add(48 * time.Hour), true},
		{"due beyond the window", now.Add(72 * time.Hour), false},
		{"already past", now.Add(-24 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.IsUpcoming(tt.nextPayment, now); got != tt.want {
				t.Errorf("IsUpcoming(%v, %v) = %v, want %v", tt.nextPayment, now, got, tt.want)
			}
		})
	}
}

func TestSameCalendarDay(t *testing.T) {
	bogota := time.FixedZone("America/Bogota", -5*3600)
	riga := time.FixedZone("Europe/Riga", 3*3600)

	tests := []struct {
		name string
		a, b time.Time
		want bool
	}{
		{
			name: "same instant in different zones",
			a:    time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC),
			b:    time.Date(2025, 4, 10, 7, 0, 0, 0, bogota),
			want: true,
		},
		{
			name: "UTC stamp against a local clock past local midnight",
			a:    time.Date(2025, 4, 10, 23, 30, 0, 0, time.UTC),
			b:    time.Date(2025, 4, 11, 1, 30, 0, 0, riga),
			want: true,
		},
		{
			name: "same local day that straddles UTC midnight",
			a:    time.Date(2025, 4, 10, 22, 0, 0, 0, bogota),
			b:    time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name: "plainly different days",
			a:    time.Date(2025, 4, 9, 12, 0, 0, 0, time.UTC),
			b:    time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sameCalendarDay(tt.a, tt.b); got != tt.want {
				t.Errorf("sameCalendarDay(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestProcessPayment_Charges(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC)

	store := memory.New()
	recorder := notify.NewRecorder()
	account := seedAccount(t, store, core.Account{Name: "Nómina", Type: core.AccountBank, Balance: dec("100000")})
	sub := seedSubscription(t, store, core.Subscription{
		Name: "Netflix", Cost: dec("15000"), Frequency: core.FrequencyMonthly,
		AccountID: account.ID, Status: core.StatusActive,
		NextPayment: now.Add(-time.Hour),
	})
	svc := NewBillingService(store, recorder)

	result := svc.ProcessPayment(ctx, sub, account, now)
	if !result.Processed {
		t.Fatalf("ProcessPayment() = %+v, want processed", result)
	}

	tx := result.Transaction
	if tx == nil {
		t.Fatal("processed result must carry the created transaction")
	}
	if tx.Title != "Pago automático - Netflix" {
		t.Errorf("title = %q", tx.Title)
	}
	if tx.Category != core.CategorySubscription {
		t.Errorf("category = %q, want %q", tx.Category, core.CategorySubscription)
	}
	if !tx.IsAutomatic {
		t.Error("scheduler charge must be marked automatic")
	}
	if tx.SubscriptionID != sub.ID {
		t.Errorf("subscription link = %q, want %q", tx.SubscriptionID, sub.ID)
	}

	if got := accountBalance(t, store, account.ID); !got.Equal(dec("85000")) {
		t.Errorf("balance = %s, want 85000", got)
	}

	updated, _ := store.GetSubscription(ctx, sub.ID)
	if !updated.NextPayment.Equal(now.AddDate(0, 1, 0)) {
		t.Errorf("next payment = %v, want %v", updated.NextPayment, now.AddDate(0, 1, 0))
	}
	if !updated.LastPaymentDate.Equal(now) {
		t.Errorf("last payment date = %v, want %v", updated.LastPaymentDate, now)
	}
	if !updated.LastPaymentAmount.Equal(sub.Cost) {
		t.Errorf("last payment amount = %s, want %s", updated.LastPaymentAmount, sub.Cost)
	}

	events := recorder.Events()
	if len(events) != 1 || events[0].Type != notify.EventPaymentProcessed {
		t.Errorf("events = %+v, want one payment_processed", events)
	}
}

func TestProcessPayment_ImmediateRepeatChargesOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC)

	store := memory.New()
	account := seedAccount(t, store, core.Account{Name: "Nómina", Type: core.AccountBank, Balance: dec("100000")})
	sub := seedSubscription(t, store, core.Subscription{
		Name: "Netflix", Cost: dec("15000"), Frequency: core.FrequencyMonthly,
		AccountID: account.ID, Status: core.StatusActive,
		NextPayment: now.Add(-time.Hour),
	})
	svc := NewBillingService(store, notify.NewRecorder())

	first := svc.ProcessPayment(ctx, sub, account, now)
	if !first.Processed {
		t.Fatalf("first charge = %+v, want processed", first)
	}

	// Replaying the same stale snapshot right away must be rejected by the
	// recency window, leaving exactly one charge and one debit.
	second := svc.ProcessPayment(ctx, sub, account, now.Add(time.Second))
	if second.Processed {
		t.Fatal("second immediate charge must not process")
	}
	if second.Reason != ReasonProcessedRecently {
		t.Errorf("second reason = %q, want %q", second.Reason, ReasonProcessedRecently)
	}

	txs, _ := store.ListTransactions(ctx)
	if len(txs) != 1 {
		t.Fatalf("transactions = %d, want exactly 1", len(txs))
	}
	if got := accountBalance(t, store, account.ID); !got.Equal(dec("85000")) {
		t.Errorf("balance = %s, want a single 15000 debit to 85000", got)
	}
}

func TestProcessPayment_DedupLayers(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC)

	setup := func(t *testing.T) (*BillingService, *memory.Store, core.Subscription, core.Account) {
		store := memory.New()
		account := seedAccount(t, store, core.Account{Name: "Nómina", Type: core.AccountBank, Balance: dec("100000")})
		sub := seedSubscription(t, store, core.Subscription{
			Name: "Netflix", Cost: dec("15000"), Frequency: core.FrequencyMonthly,
			AccountID: account.ID, Status: core.StatusActive,
			NextPayment: now.Add(-time.Hour),
		})
		return NewBillingService(store, notify.NewRecorder()), store, sub, account
	}

	t.Run("in-flight lock", func(t *testing.T) {
		svc, _, sub, account := setup(t)
		if reason := svc.guard.acquire(sub.ID, now, svc.recencyWindow); reason != "" {
			t.Fatalf("acquire() = %q, want free", reason)
		}
		defer svc.guard.release(sub.ID)

		result := svc.ProcessPayment(ctx, sub, account, now)
		if result.Reason != ReasonAlreadyProcessing {
			t.Errorf("reason = %q, want %q", result.Reason, ReasonAlreadyProcessing)
		}
	})

	t.Run("already paid today", func(t *testing.T) {
		svc, store, sub, account := setup(t)
		if r := svc.ProcessPayment(ctx, sub, account, now); !r.Processed {
			t.Fatalf("first charge = %+v", r)
		}

		// Past the recency window, fresh snapshot: the lastPaymentDate
		// calendar-day check takes over.
		refreshed, _ := store.GetSubscription(ctx, sub.ID)
		refreshedAccount, _ := store.GetAccount(ctx, account.ID)
		result := svc.ProcessPayment(ctx, refreshed, refreshedAccount, now.Add(time.Minute))
		if result.Reason != ReasonAlreadyPaidToday {
			t.Errorf("reason = %q, want %q", result.Reason, ReasonAlreadyPaidToday)
		}
	})

	t.Run("store lookback catches stale snapshot", func(t *testing.T) {
		svc, store, sub, account := setup(t)
		if r := svc.ProcessPayment(ctx, sub, account, now); !r.Processed {
			t.Fatalf("first charge = %+v", r)
		}

		// Past the recency window but replaying the pre-charge snapshot,
		// whose lastPaymentDate is still unset. The transaction scan is
		// the last line of defense.
		result := svc.ProcessPayment(ctx, sub, account, now.Add(time.Minute))
		if result.Reason != ReasonDuplicateTransaction {
			t.Errorf("reason = %q, want %q", result.Reason, ReasonDuplicateTransaction)
		}
		txs, _ := store.ListTransactions(ctx)
		if len(txs) != 1 {
			t.Errorf("transactions = %d, want 1", len(txs))
		}
	})

	t.Run("rejected attempt does not block a later retry", func(t *testing.T) {
		svc, store, sub, account := setup(t)

		// Drain the account so the first attempt suspends.
		account.Balance = dec("1000")
		if err := store.UpdateAccount(ctx, account); err != nil {
			t.Fatal(err)
		}
		if r := svc.ProcessPayment(ctx, sub, account, now); r.Reason != ReasonInsufficientFunds {
			t.Fatalf("reason = %q, want %q", r.Reason, ReasonInsufficientFunds)
		}

		// Refund, reactivate and retry a second later. Suspension stamped
		// the recency clock, so the retry is rejected as recent rather
		// than double-charging.
		account.Balance = dec("100000")
		if err := store.UpdateAccount(ctx, account); err != nil {
			t.Fatal(err)
		}
		result := svc.ProcessPayment(ctx, sub, account, now.Add(time.Second))
		if result.Reason != ReasonProcessedRecently {
			t.Errorf("reason = %q, want %q", result.Reason, ReasonProcessedRecently)
		}

		// Past the window the charge goes through.
		result = svc.ProcessPayment(ctx, sub, account, now.Add(time.Minute))
		if !result.Processed {
			t.Errorf("retry past the window = %+v, want processed", result)
		}
	})
}

func TestProcessPayment_InsufficientFundsSuspends(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC)

	store := memory.New()
	recorder := notify.NewRecorder()
	account := seedAccount(t, store, core.Account{Name: "Nómina", Type: core.AccountBank, Balance: dec("5000")})
	sub := seedSubscription(t, store, core.Subscription{
		Name: "Netflix", Cost: dec("15000"), Frequency: core.FrequencyMonthly,
		AccountID: account.ID, Status: core.StatusActive,
		NextPayment: now.Add(-time.Hour),
	})
	svc := NewBillingService(store, recorder)

	result := svc.ProcessPayment(ctx, sub, account, now)
	if result.Processed {
		t.Fatal("underfunded charge must not process")
	}
	if result.Reason != ReasonInsufficientFunds {
		t.Errorf("reason = %q, want %q", result.Reason, ReasonInsufficientFunds)
	}

	suspended, _ := store.GetSubscription(ctx, sub.ID)
	if suspended.Status != core.StatusSuspended {
		t.Errorf("status = %q, want suspended", suspended.Status)
	}
	if suspended.SuspensionReason != "Fondos insuficientes" {
		t.Errorf("suspension reason = %q", suspended.SuspensionReason)
	}

	txs, _ := store.ListTransactions(ctx)
	if len(txs) != 0 {
		t.Errorf("transactions = %d, want none on suspension", len(txs))
	}
	if got := accountBalance(t, store, account.ID); !got.Equal(dec("5000")) {
		t.Errorf("balance = %s, want untouched 5000", got)
	}

	events := recorder.Events()
	if len(events) != 1 || events[0].Type != notify.EventSubscriptionSuspended {
		t.Errorf("events = %+v, want one subscription_suspended", events)
	}
}

func TestCheckSubscriptions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC)

	store := memory.New()
	recorder := notify.NewRecorder()
	account := seedAccount(t, store, core.Account{Name: "Nómina", Type: core.AccountBank, Balance: dec("100000")})

	overdue := seedSubscription(t, store, core.Subscription{
		Name: "Netflix", Cost: dec("15000"), Frequency: core.FrequencyMonthly,
		AccountID: account.ID, Status: core.StatusActive,
		NextPayment: now.AddDate(0, 0, -1),
	})
	upcoming := seedSubscription(t, store, core.Subscription{
		Name: "Spotify", Cost: dec("8000"), Frequency: core.FrequencyMonthly,
		AccountID: account.ID, Status: core.StatusActive,
		NextPayment: now.Add(36 * time.Hour),
	})
	seedSubscription(t, store, core.Subscription{
		Name: "HBO", Cost: dec("12000"), Frequency: core.FrequencyMonthly,
		AccountID: account.ID, Status: core.StatusCancelled,
		NextPayment: now.AddDate(0, 0, -5),
	})
	orphan := seedSubscription(t, store, core.Subscription{
		Name: "Gym", Cost: dec("40000"), Frequency: core.FrequencyMonthly,
		AccountID: "gone", Status: core.StatusActive,
		NextPayment: now.AddDate(0, 0, -1),
	})

	svc := NewBillingService(store, recorder)
	results, err := svc.CheckSubscriptions(ctx, now)
	if err != nil {
		t.Fatalf("CheckSubscriptions() = %v", err)
	}

	if len(results.Processed) != 1 || results.Processed[0].ID != overdue.ID {
		t.Errorf("processed = %+v, want only %q", results.Processed, overdue.Name)
	}
	if len(results.Upcoming) != 1 || results.Upcoming[0].ID != upcoming.ID {
		t.Errorf("upcoming = %+v, want only %q", results.Upcoming, upcoming.Name)
	}
	if len(results.Failed) != 0 {
		t.Errorf("failed = %+v, want none", results.Failed)
	}

	// The orphaned subscription is skipped, not charged and not failed.
	orphaned, _ := store.GetSubscription(ctx, orphan.ID)
	if orphaned.Status != core.StatusActive {
		t.Errorf("orphaned status = %q, want untouched active", orphaned.Status)
	}

	if got := accountBalance(t, store, account.ID); !got.Equal(dec("85000")) {
		t.Errorf("balance = %s, want 85000 after the single overdue charge", got)
	}

	var types []notify.EventType
	for _, e := range recorder.Events() {
		types = append(types, e.Type)
	}
	if len(types) != 2 {
		t.Fatalf("events = %v, want payment_processed and upcoming_payment", types)
	}
}

func TestCreateSubscription(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC)

	store := memory.New()
	account := seedAccount(t, store, core.Account{Name: "Nómina", Type: core.AccountBank, Balance: dec("100000")})
	svc := NewBillingService(store, notify.NewRecorder())

	created, err := svc.CreateSubscription(ctx, core.Subscription{
		Name: "Netflix", Cost: dec("15000"), Frequency: core.FrequencyMonthly, AccountID: account.ID,
	}, now)
	if err != nil {
		t.Fatalf("CreateSubscription() = %v", err)
	}
	if created.Status != core.StatusActive {
		t.Errorf("status = %q, want active", created.Status)
	}
	if !created.NextPayment.Equal(now.AddDate(0, 1, 0)) {
		t.Errorf("first payment = %v, want one month out", created.NextPayment)
	}

	_, err = svc.CreateSubscription(ctx, core.Subscription{
		Name: "", Cost: dec("15000"), Frequency: core.FrequencyMonthly, AccountID: account.ID,
	}, now)
	if !errors.Is(err, core.ErrEmptyName) {
		t.Errorf("CreateSubscription(unnamed) = %v, want ErrEmptyName", err)
	}
}

func TestReactivateSubscription(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC)

	t.Run("charges immediately and clears the suspension", func(t *testing.T) {
		store := memory.New()
		account := seedAccount(t, store, core.Account{Name: "Nómina", Type: core.AccountBank, Balance: dec("100000")})
		sub := seedSubscription(t, store, core.Subscription{
			Name: "Netflix", Cost: dec("15000"), Frequency: core.FrequencyMonthly,
			AccountID: account.ID, Status: core.StatusSuspended,
			SuspensionReason: "Fondos insuficientes",
			NextPayment:      now.AddDate(0, 0, -10),
		})
		svc := NewBillingService(store, notify.NewRecorder())

		if err := svc.ReactivateSubscription(ctx, sub.ID, now); err != nil {
			t.Fatalf("ReactivateSubscription() = %v", err)
		}

		updated, _ := store.GetSubscription(ctx, sub.ID)
		if updated.Status != core.StatusActive {
			t.Errorf("status = %q, want active", updated.Status)
		}
		if updated.SuspensionReason != "" {
			t.Errorf("suspension reason = %q, want cleared", updated.SuspensionReason)
		}
		if !updated.NextPayment.Equal(now.AddDate(0, 1, 0)) {
			t.Errorf("next payment = %v, want one month out", updated.NextPayment)
		}

		txs, _ := store.ListTransactions(ctx)
		if len(txs) != 1 {
			t.Fatalf("transactions = %d, want 1", len(txs))
		}
		if txs[0].Title != "Reactivación - Netflix" {
			t.Errorf("title = %q", txs[0].Title)
		}
		if txs[0].IsAutomatic {
			t.Error("reactivation charge is user-triggered, must not be automatic")
		}
		if got := accountBalance(t, store, account.ID); !got.Equal(dec("85000")) {
			t.Errorf("balance = %s, want 85000", got)
		}
	})

	t.Run("refuses when funds still short", func(t *testing.T) {
		store := memory.New()
		account := seedAccount(t, store, core.Account{Name: "Nómina", Type: core.AccountBank, Balance: dec("3000")})
		sub := seedSubscription(t, store, core.Subscription{
			Name: "Netflix", Cost: dec("15000"), Frequency: core.FrequencyMonthly,
			AccountID: account.ID, Status: core.StatusSuspended,
			SuspensionReason: "Fondos insuficientes",
			NextPayment:      now.AddDate(0, 0, -10),
		})
		svc := NewBillingService(store, notify.NewRecorder())

		if err := svc.ReactivateSubscription(ctx, sub.ID, now); !errors.Is(err, core.ErrInsufficientFunds) {
			t.Fatalf("ReactivateSubscription() = %v, want ErrInsufficientFunds", err)
		}
		unchanged, _ := store.GetSubscription(ctx, sub.ID)
		if unchanged.Status != core.StatusSuspended {
			t.Errorf("status = %q, want still suspended", unchanged.Status)
		}
	})
}

func TestCancelSubscription(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC)

	store := memory.New()
	account := seedAccount(t, store, core.Account{Name: "Nómina", Type: core.AccountBank, Balance: dec("100000")})
	sub := seedSubscription(t, store, core.Subscription{
		Name: "Netflix", Cost: dec("15000"), Frequency: core.FrequencyMonthly,
		AccountID: account.ID, Status: core.StatusActive,
		NextPayment: now.AddDate(0, 0, 5),
	})
	svc := NewBillingService(store, notify.NewRecorder())

	if err := svc.CancelSubscription(ctx, sub.ID); err != nil {
		t.Fatalf("CancelSubscription() = %v", err)
	}
	cancelled, _ := store.GetSubscription(ctx, sub.ID)
	if cancelled.Status != core.StatusCancelled {
		t.Errorf("status = %q, want cancelled", cancelled.Status)
	}

	// Cancelled subscriptions are invisible to the sweep.
	results, err := svc.CheckSubscriptions(ctx, now.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("CheckSubscriptions() = %v", err)
	}
	if len(results.Processed)+len(results.Upcoming)+len(results.Failed) != 0 {
		t.Errorf("sweep touched a cancelled subscription: %+v", results)
	}
}
