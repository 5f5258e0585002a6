package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	AccountBank    AccountType = "bank"
	AccountCredit  AccountType = "credit"
	AccountCash    AccountType = "cash"
	AccountSavings AccountType = "savings"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	FrequencyMonthly Frequency = "monthly"
	FrequencyAnnual  Frequency = "annual"
)

const (
	StatusActive    SubscriptionStatus = "active"
	StatusSuspended SubscriptionStatus = "suspended"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// Fixed sentinel categories the engine keys behavior on.
const (
	// CategoryCreditPayment marks income transactions that pay down credit
	// card debt. They are transfers, not real income.
	CategoryCreditPayment = "Pagos Varios"

	// CategorySubscription is assigned to every subscription charge.
	CategorySubscription = "Suscripciones"
)

type (
	AccountType        string
	TransactionType    string
	Frequency          string
	SubscriptionStatus string

	// Account is a user account. For credit accounts the balance follows
	// the negative-of-debt convention: balance <= 0 is outstanding debt,
	// 0 is paid off.
	Account struct {
		ID      string
		Name    string
		Type    AccountType
		Balance decimal.Decimal

		// Credit-only attributes. Zero values for other account types.
		CreditLimit     decimal.Decimal
		InterestRate    decimal.Decimal // monthly %
		MaxInstallments int
	}

	// Transaction is an immutable ledger entry. Amount, type, installments
	// and interest are inputs to balance arithmetic; editing one requires
	// reversing its original effect first (see services.LedgerService).
	Transaction struct {
		ID        string
		Title     string
		Category  string
		Amount    decimal.Decimal // always positive
		Type      TransactionType
		Date      time.Time
		AccountID string

		// Credit purchase fields.
		Installments   int             // >= 1, default 1
		InterestAmount decimal.Decimal // >= 0, meaningful when Installments > 1

		// Subscription charge fields.
		SubscriptionID string
		IsAutomatic    bool

		// PaidOff, when set, overrides FIFO allocation for this purchase.
		PaidOff *bool
	}

	// Subscription is a recurring charge template bound to one account.
	Subscription struct {
		ID        string
		Name      string
		Cost      decimal.Decimal // billing-cycle amount, positive
		Frequency Frequency
		AccountID string
		Status    SubscriptionStatus

		NextPayment       time.Time
		LastPaymentDate   time.Time
		LastPaymentAmount decimal.Decimal
		SuspensionReason  string
	}
)

var (
	ErrInvalidAccountType  = errors.New("invalid account type")
	ErrInsufficientCredit  = errors.New("insufficient credit")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEmptyName           = errors.New("empty name")
	ErrEmptyTitle          = errors.New("empty title")
	ErrInvalidInstallments = errors.New("invalid installments")
	ErrInvalidFrequency    = errors.New("invalid frequency")
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountBank, AccountCredit, AccountCash, AccountSavings:
		return true
	}
	return false
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if !a.Type.Valid() {
		return ErrInvalidAccountType
	}
	if a.Type == AccountCredit {
		if a.CreditLimit.IsNegative() {
			return errors.New("credit limit cannot be negative")
		}
		if a.InterestRate.IsNegative() {
			return errors.New("interest rate cannot be negative")
		}
		if a.MaxInstallments < 1 {
			return ErrInvalidInstallments
		}
	}
	return nil
}

// IsCredit reports whether the account follows the negative-of-debt
// balance convention.
func (a Account) IsCredit() bool {
	return a.Type == AccountCredit
}

func (tx Transaction) Validate() error {
	if strings.TrimSpace(tx.Title) == "" {
		return ErrEmptyTitle
	}
	if tx.Type != Income && tx.Type != Expense {
		return errors.New("invalid transaction type")
	}
	if !tx.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if tx.Date.IsZero() {
		return errors.New("date cannot be zero")
	}
	if tx.AccountID == "" {
		return ErrAccountNotFound
	}
	if tx.Installments < 0 {
		return ErrInvalidInstallments
	}
	if tx.InterestAmount.IsNegative() {
		return errors.New("interest amount cannot be negative")
	}
	return nil
}

// EffectiveInstallments normalizes the optional installment count:
// anything below 1 means a single payment.
func (tx Transaction) EffectiveInstallments() int {
	if tx.Installments < 1 {
		return 1
	}
	return tx.Installments
}

// TotalAmount is the capital plus the financing fee. Derived, never stored.
func (tx Transaction) TotalAmount() decimal.Decimal {
	return tx.Amount.Add(tx.InterestAmount)
}

// MonthlyPayment is the per-installment amount when the purchase is
// financed, the plain amount otherwise.
func (tx Transaction) MonthlyPayment() decimal.Decimal {
	n := tx.EffectiveInstallments()
	if n <= 1 {
		return tx.Amount
	}
	return tx.TotalAmount().Div(decimal.NewFromInt(int64(n)))
}

func (s Subscription) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	if !s.Cost.IsPositive() {
		return ErrInvalidAmount
	}
	switch s.Frequency {
	case FrequencyMonthly, FrequencyAnnual:
	default:
		return ErrInvalidFrequency
	}
	if s.AccountID == "" {
		return ErrAccountNotFound
	}
	return nil
}
