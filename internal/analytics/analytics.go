// Package analytics derives read-only statistics from transaction and
// account collections. Nothing here mutates state.
//
// Every general-purpose aggregation first filters out credit payments
// (income on a credit account categorized as core.CategoryCreditPayment):
// that money moved from a cash account onto a card, counting it as fresh
// income would double-count it.
package analytics

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
)

type (
	// CategoryAmount is an amount aggregated under one category name.
	CategoryAmount struct {
		Category string
		Amount   decimal.Decimal
	}

	// MonthAmount is an amount aggregated under a YYYY-MM key.
	MonthAmount struct {
		Month  string
		Amount decimal.Decimal
	}
)

// IsCreditPayment reports whether a transaction is a payment toward credit
// card debt: income, on a credit account, under the fixed payment category.
func IsCreditPayment(tx core.Transaction, accounts []core.Account) bool {
	if tx.Type != core.Income {
		return false
	}
	if tx.Category != core.CategoryCreditPayment {
		return false
	}
	for _, acc := range accounts {
		if acc.ID == tx.AccountID {
			return acc.IsCredit()
		}
	}
	return false
}

// CreditPayments returns only the credit-payment transactions.
func CreditPayments(txs []core.Transaction, accounts []core.Account) []core.Transaction {
	var out []core.Transaction
	for _, tx := range txs {
		if IsCreditPayment(tx, accounts) {
			out = append(out, tx)
		}
	}
	return out
}

// FilterOutCreditPayments removes credit payments from a transaction set.
func FilterOutCreditPayments(txs []core.Transaction, accounts []core.Account) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !IsCreditPayment(tx, accounts) {
			out = append(out, tx)
		}
	}
	return out
}

// CategoryTotals sums transaction amounts of the given type per category.
// When accounts are supplied, credit payments are excluded first.
func CategoryTotals(txs []core.Transaction, txType core.TransactionType, accounts []core.Account) map[string]decimal.Decimal {
	if len(accounts) > 0 {
		txs = FilterOutCreditPayments(txs, accounts)
	}

	totals := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		if tx.Type != txType {
			continue
		}
		totals[tx.Category] = totals[tx.Category].Add(tx.Amount)
	}
	return totals
}

// MonthlyNetBalance returns income minus expenses per calendar month,
// ascending by month key. Credit payments are excluded when accounts are
// supplied.
func MonthlyNetBalance(txs []core.Transaction, accounts []core.Account) []MonthAmount {
	if len(accounts) > 0 {
		txs = FilterOutCreditPayments(txs, accounts)
	}

	monthly := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		key := monthKey(tx)
		if tx.Type == core.Income {
			monthly[key] = monthly[key].Add(tx.Amount)
		} else {
			monthly[key] = monthly[key].Sub(tx.Amount)
		}
	}
	return sortedByMonth(monthly)
}

func monthKey(tx core.Transaction) string {
	return fmt.Sprintf("%04d-%02d", tx.Date.Year(), int(tx.Date.Month()))
}

func sortedByMonth(m map[string]decimal.Decimal) []MonthAmount {
	out := make([]MonthAmount, 0, len(m))
	for k, v := range m {
		out = append(out, MonthAmount{Month: k, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

func sortedByAmountDesc(m map[string]decimal.Decimal) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(m))
	for k, v := range m {
		out = append(out, CategoryAmount{Category: k, Amount: v})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount.GreaterThan(out[j].Amount) })
	return out
}
