package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// IsPurchasePaid determines whether one credit purchase is fully covered by
// the payments recorded on its account. No paid flag is stored; instead
// payments are allocated oldest-purchase-first (FIFO), each purchase retired
// in full before the next is touched. Partial coverage leaves a purchase
// unpaid.
//
// Precedence:
//  1. an explicit PaidOff flag on the purchase wins;
//  2. a non-negative account balance means the card is settled, so every
//     purchase on it is paid;
//  3. otherwise walk purchases by date ascending, consuming the payment pool.
func IsPurchasePaid(purchase Transaction, allPurchases, allPayments []Transaction, account *Account) bool {
	if purchase.PaidOff != nil {
		return *purchase.PaidOff
	}

	if account != nil && !account.Balance.IsNegative() {
		return true
	}

	totalPaid := decimal.Zero
	for _, p := range allPayments {
		totalPaid = totalPaid.Add(p.Amount)
	}

	sorted := make([]Transaction, len(allPurchases))
	copy(sorted, allPurchases)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	remaining := totalPaid
	for _, p := range sorted {
		purchaseTotal := p.Amount.Add(p.InterestAmount)

		if p.ID == purchase.ID {
			return remaining.GreaterThanOrEqual(purchaseTotal)
		}

		remaining = remaining.Sub(purchaseTotal)
		if remaining.LessThanOrEqual(decimal.Zero) {
			// Payment pool exhausted before reaching the queried
			// purchase; everything newer is unpaid.
			return false
		}
	}

	return false
}
