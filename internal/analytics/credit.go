package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
)

type (
	// AccountUsage is the per-card slice of a credit summary.
	AccountUsage struct {
		ID         string
		Name       string
		Used       decimal.Decimal
		Limit      decimal.Decimal
		Available  decimal.Decimal
		Percentage decimal.Decimal // used/limit*100, zero when limit is zero
	}

	// Summary aggregates debt and availability across all credit accounts.
	Summary struct {
		TotalDebt        decimal.Decimal
		TotalInterest    decimal.Decimal
		TotalCreditLimit decimal.Decimal
		TotalAvailable   decimal.Decimal
		PaymentsReceived decimal.Decimal
		Usage            []AccountUsage
	}

	// CreditPurchase is a credit expense enriched with derived detail for
	// listings.
	CreditPurchase struct {
		core.Transaction
		AccountName    string
		Installments   int
		MonthlyPayment decimal.Decimal
		TotalAmount    decimal.Decimal
	}

	// DeepAnalysis is the full statistical breakdown of credit activity.
	DeepAnalysis struct {
		TotalSpent             decimal.Decimal
		TotalInterestGenerated decimal.Decimal
		TotalPaid              decimal.Decimal
		AvgInstallments        decimal.Decimal // 1 decimal place
		WeightedInterestRate   decimal.Decimal // 2 decimal places, spend-weighted
		PurchasesByMonth       []MonthAmount
		InterestByMonth        []MonthAmount
		PaymentsByMonth        []MonthAmount
		CategorySpending       []CategoryAmount
		TotalPurchases         int
		TotalPayments          int
	}
)

func creditAccounts(accounts []core.Account) map[string]core.Account {
	out := make(map[string]core.Account)
	for _, acc := range accounts {
		if acc.IsCredit() {
			out[acc.ID] = acc
		}
	}
	return out
}

// CreditBalance sums every income posted to a credit account. Any income
// counts, not just the payment category, so manual corrections show up too.
func CreditBalance(txs []core.Transaction, accounts []core.Account) decimal.Decimal {
	credit := creditAccounts(accounts)
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Type != core.Income {
			continue
		}
		if _, ok := credit[tx.AccountID]; !ok {
			continue
		}
		total = total.Add(tx.Amount)
	}
	return total
}

// CreditSummary computes per-card usage and portfolio totals. With zero
// credit accounts every total is zero and the usage list is empty.
func CreditSummary(txs []core.Transaction, accounts []core.Account) Summary {
	credit := creditAccounts(accounts)
	summary := Summary{
		TotalDebt:        decimal.Zero,
		TotalInterest:    decimal.Zero,
		TotalCreditLimit: decimal.Zero,
		TotalAvailable:   decimal.Zero,
		PaymentsReceived: decimal.Zero,
		Usage:            []AccountUsage{},
	}
	if len(credit) == 0 {
		return summary
	}
	summary.PaymentsReceived = CreditBalance(txs, accounts)

	for _, tx := range txs {
		if tx.Type != core.Expense {
			continue
		}
		if _, ok := credit[tx.AccountID]; !ok {
			continue
		}
		summary.TotalInterest = summary.TotalInterest.Add(tx.InterestAmount)
	}

	for _, acc := range accounts {
		if !acc.IsCredit() {
			continue
		}
		used := acc.Balance.Abs()
		available := core.AvailableCredit(acc.CreditLimit, acc.Balance)

		percentage := decimal.Zero
		if acc.CreditLimit.IsPositive() {
			percentage = used.Div(acc.CreditLimit).Mul(decimal.NewFromInt(100))
		}

		summary.TotalDebt = summary.TotalDebt.Add(used)
		summary.TotalCreditLimit = summary.TotalCreditLimit.Add(acc.CreditLimit)
		summary.TotalAvailable = summary.TotalAvailable.Add(available)
		summary.Usage = append(summary.Usage, AccountUsage{
			ID:         acc.ID,
			Name:       acc.Name,
			Used:       used,
			Limit:      acc.CreditLimit,
			Available:  available,
			Percentage: percentage,
		})
	}

	return summary
}

// CreditTransactions lists all credit purchases with derived installment
// detail, newest first.
func CreditTransactions(txs []core.Transaction, accounts []core.Account) []CreditPurchase {
	credit := creditAccounts(accounts)

	var out []CreditPurchase
	for _, tx := range txs {
		acc, ok := credit[tx.AccountID]
		if !ok || tx.Type != core.Expense {
			continue
		}

		n := tx.EffectiveInstallments()
		monthly := tx.Amount
		if n > 1 {
			monthly = core.MonthlyPayment(tx.Amount, n, acc.InterestRate)
		}
		out = append(out, CreditPurchase{
			Transaction:    tx,
			AccountName:    acc.Name,
			Installments:   n,
			MonthlyPayment: monthly,
			TotalAmount:    tx.TotalAmount(),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// DeepCreditAnalysis derives the full credit statistics set. Empty inputs
// degrade to zeros and empty slices, never a division by zero.
func DeepCreditAnalysis(txs []core.Transaction, accounts []core.Account) DeepAnalysis {
	credit := creditAccounts(accounts)

	var purchases, payments []core.Transaction
	for _, tx := range txs {
		if _, ok := credit[tx.AccountID]; !ok {
			continue
		}
		switch {
		case tx.Type == core.Expense:
			purchases = append(purchases, tx)
		case tx.Type == core.Income && tx.Category == core.CategoryCreditPayment:
			payments = append(payments, tx)
		}
	}

	analysis := DeepAnalysis{
		TotalSpent:             decimal.Zero,
		TotalInterestGenerated: decimal.Zero,
		TotalPaid:              decimal.Zero,
		AvgInstallments:        decimal.Zero,
		WeightedInterestRate:   decimal.Zero,
		TotalPurchases:         len(purchases),
		TotalPayments:          len(payments),
	}

	purchasesByMonth := make(map[string]decimal.Decimal)
	interestByMonth := make(map[string]decimal.Decimal)
	categorySpending := make(map[string]decimal.Decimal)

	installmentSum := decimal.Zero
	weightedRateSum := decimal.Zero

	for _, tx := range purchases {
		analysis.TotalSpent = analysis.TotalSpent.Add(tx.Amount)
		analysis.TotalInterestGenerated = analysis.TotalInterestGenerated.Add(tx.InterestAmount)
		installmentSum = installmentSum.Add(decimal.NewFromInt(int64(tx.EffectiveInstallments())))

		acc := credit[tx.AccountID]
		weightedRateSum = weightedRateSum.Add(acc.InterestRate.Mul(tx.Amount))

		key := monthKey(tx)
		purchasesByMonth[key] = purchasesByMonth[key].Add(tx.Amount)
		interestByMonth[key] = interestByMonth[key].Add(tx.InterestAmount)
		categorySpending[tx.Category] = categorySpending[tx.Category].Add(tx.Amount)
	}

	paymentsByMonth := make(map[string]decimal.Decimal)
	for _, tx := range payments {
		analysis.TotalPaid = analysis.TotalPaid.Add(tx.Amount)
		key := monthKey(tx)
		paymentsByMonth[key] = paymentsByMonth[key].Add(tx.Amount)
	}

	if len(purchases) > 0 {
		analysis.AvgInstallments = installmentSum.Div(decimal.NewFromInt(int64(len(purchases)))).Round(1)
		if analysis.TotalSpent.IsPositive() {
			analysis.WeightedInterestRate = weightedRateSum.Div(analysis.TotalSpent).Round(2)
		}
	}

	analysis.PurchasesByMonth = sortedByMonth(purchasesByMonth)
	analysis.InterestByMonth = sortedByMonth(interestByMonth)
	analysis.PaymentsByMonth = sortedByMonth(paymentsByMonth)
	analysis.CategorySpending = sortedByAmountDesc(categorySpending)

	return analysis
}
