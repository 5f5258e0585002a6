// Package core provides the domain model and the pure credit math the
// rest of the engine is built on.
//
// The financing model is a flat fee, not amortized interest: the fee for a
// purchase split into n installments is amount * rate/100 * n. This matches
// how local card issuers quote monthly rates on installment purchases.
package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Interest returns the total financing fee for a purchase. Single-payment
// purchases (installments <= 1) carry no fee.
func Interest(amount decimal.Decimal, installments int, monthlyRatePct decimal.Decimal) decimal.Decimal {
	if installments <= 1 {
		return decimal.Zero
	}
	return amount.Mul(monthlyRatePct.Div(hundred)).Mul(decimal.NewFromInt(int64(installments)))
}

// MonthlyPayment returns the per-installment payment including the
// financing fee, or the plain amount for single-payment purchases.
func MonthlyPayment(amount decimal.Decimal, installments int, monthlyRatePct decimal.Decimal) decimal.Decimal {
	if installments <= 1 {
		return amount
	}
	total := amount.Add(Interest(amount, installments, monthlyRatePct))
	return total.Div(decimal.NewFromInt(int64(installments)))
}

// TotalAmount returns capital plus financing fee.
func TotalAmount(amount decimal.Decimal, installments int, monthlyRatePct decimal.Decimal) decimal.Decimal {
	return amount.Add(Interest(amount, installments, monthlyRatePct))
}

// AvailableCredit returns creditLimit - |balance|. The result can be
// negative when interest accrual pushed the account over its limit;
// callers treat negative availability as zero purchasing power, display
// layers clamp it for presentation.
func AvailableCredit(creditLimit, balance decimal.Decimal) decimal.Decimal {
	return creditLimit.Sub(balance.Abs())
}

// ValidateCreditPurchase reports whether a prospective purchase fits on the
// account. It returns ErrInvalidAccountType for non-credit accounts and
// ErrInsufficientCredit when the amount exceeds the available credit; the
// returned error carries a human-readable reason.
func ValidateCreditPurchase(amount decimal.Decimal, account Account) error {
	if !account.IsCredit() {
		return fmt.Errorf("%w: account %q is not a credit card", ErrInvalidAccountType, account.Name)
	}
	available := AvailableCredit(account.CreditLimit, account.Balance)
	if amount.GreaterThan(available) {
		return fmt.Errorf("%w: available %s", ErrInsufficientCredit, available.String())
	}
	return nil
}
