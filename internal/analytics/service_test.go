package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"finanzas/internal/core"
)

type stubReader struct {
	accounts []core.Account
	txs      []core.Transaction
	err      error
	loads    int
}

func (r *stubReader) ListAccounts(ctx context.Context) ([]core.Account, error) {
	r.loads++
	if r.err != nil {
		return nil, r.err
	}
	return r.accounts, nil
}

func (r *stubReader) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.txs, nil
}

func TestService_SummaryMemoizes(t *testing.T) {
	ctx := context.Background()
	d := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	reader := &stubReader{
		accounts: testAccounts,
		txs:      []core.Transaction{tx("p1", "Viajes", "400000", core.Expense, "visa", d)},
	}
	svc := NewService(reader)

	first, err := svc.Summary(ctx, "v1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if reader.loads != 1 {
		t.Fatalf("loads = %d after first call, want 1", reader.loads)
	}
	if !first.TotalDebt.Equal(dec("1500000")) {
		t.Errorf("TotalDebt = %s, want 1500000", first.TotalDebt)
	}

	// Same version token: served from cache, no second load.
	second, err := svc.Summary(ctx, "v1")
	if err != nil {
		t.Fatalf("Summary (cached): %v", err)
	}
	if reader.loads != 1 {
		t.Errorf("loads = %d after cached call, want 1", reader.loads)
	}
	if !second.TotalDebt.Equal(first.TotalDebt) || len(second.Usage) != len(first.Usage) {
		t.Errorf("cached summary differs: %+v vs %+v", second, first)
	}

	// A new version token means the dataset changed: reload and reflect it.
	heavier := visa
	heavier.Balance = dec("-2000000")
	reader.accounts = []core.Account{heavier, bank}

	third, err := svc.Summary(ctx, "v2")
	if err != nil {
		t.Fatalf("Summary (new version): %v", err)
	}
	if reader.loads != 2 {
		t.Errorf("loads = %d after version bump, want 2", reader.loads)
	}
	if !third.TotalDebt.Equal(dec("2000000")) {
		t.Errorf("TotalDebt = %s after version bump, want 2000000", third.TotalDebt)
	}
}

func TestService_DeepAnalysisMemoizes(t *testing.T) {
	ctx := context.Background()
	d := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	reader := &stubReader{
		accounts: testAccounts,
		txs: []core.Transaction{
			tx("p1", "Viajes", "400000", core.Expense, "visa", d),
			tx("pay1", core.CategoryCreditPayment, "100000", core.Income, "visa", d),
		},
	}
	svc := NewService(reader)

	first, err := svc.DeepAnalysis(ctx, "v1")
	if err != nil {
		t.Fatalf("DeepAnalysis: %v", err)
	}
	if reader.loads != 1 {
		t.Fatalf("loads = %d after first call, want 1", reader.loads)
	}
	if first.TotalPurchases != 1 || first.TotalPayments != 1 {
		t.Errorf("counts = %d purchases %d payments, want 1 and 1", first.TotalPurchases, first.TotalPayments)
	}

	if _, err := svc.DeepAnalysis(ctx, "v1"); err != nil {
		t.Fatalf("DeepAnalysis (cached): %v", err)
	}
	if reader.loads != 1 {
		t.Errorf("loads = %d after cached call, want 1", reader.loads)
	}

	if _, err := svc.DeepAnalysis(ctx, "v2"); err != nil {
		t.Fatalf("DeepAnalysis (new version): %v", err)
	}
	if reader.loads != 2 {
		t.Errorf("loads = %d after version bump, want 2", reader.loads)
	}
}

func TestService_LoadErrorNotCached(t *testing.T) {
	ctx := context.Background()
	reader := &stubReader{err: errors.New("store down")}
	svc := NewService(reader)

	if _, err := svc.Summary(ctx, "v1"); err == nil {
		t.Fatal("expected error from failing reader")
	}

	// Recovery under the same version must hit the store again, not a
	// poisoned cache entry.
	reader.err = nil
	reader.accounts = testAccounts
	got, err := svc.Summary(ctx, "v1")
	if err != nil {
		t.Fatalf("Summary after recovery: %v", err)
	}
	if !got.TotalDebt.Equal(dec("1500000")) {
		t.Errorf("TotalDebt = %s after recovery, want 1500000", got.TotalDebt)
	}
}

func TestMemoCache_TTLExpiry(t *testing.T) {
	cache := newMemoCache[int](4, 15*time.Millisecond)
	cache.set("v1", 42)

	if got, ok := cache.get("v1"); !ok || got != 42 {
		t.Fatalf("get before expiry = %d, %v; want 42, true", got, ok)
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := cache.get("v1"); ok {
		t.Error("entry still served past its TTL")
	}
}

func TestMemoCache_LRUEviction(t *testing.T) {
	cache := newMemoCache[int](2, time.Minute)
	cache.set("a", 1)
	cache.set("b", 2)

	// Touch a so b becomes the least recently used entry.
	if _, ok := cache.get("a"); !ok {
		t.Fatal("a missing before eviction")
	}

	cache.set("c", 3)
	if _, ok := cache.get("b"); ok {
		t.Error("b survived eviction past the size bound")
	}
	if got, ok := cache.get("a"); !ok || got != 1 {
		t.Errorf("a = %d, %v after eviction; want 1, true", got, ok)
	}
	if got, ok := cache.get("c"); !ok || got != 3 {
		t.Errorf("c = %d, %v after eviction; want 3, true", got, ok)
	}
}

func TestMemoCache_SetExistingUpdates(t *testing.T) {
	cache := newMemoCache[int](2, time.Minute)
	cache.set("a", 1)
	cache.set("a", 2)
	cache.set("b", 3)

	// Overwriting a key must not count as a second entry.
	if got, ok := cache.get("a"); !ok || got != 2 {
		t.Errorf("a = %d, %v; want 2, true", got, ok)
	}
	if got, ok := cache.get("b"); !ok || got != 3 {
		t.Errorf("b = %d, %v; want 3, true", got, ok)
	}
}
