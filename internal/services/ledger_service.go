package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
	"finanzas/internal/log"
	"finanzas/internal/storage"
)

// ErrProcessing wraps unexpected store failures that happen after
// validation passed. When it wraps a failure between the transaction write
// and the balance write, the store holds a transaction whose balance effect
// was not applied; the caller must surface it, there is no auto-rollback.
var ErrProcessing = errors.New("processing error")

// LedgerService applies the balance mutation protocol: every transaction
// write is paired with the matching account-balance write, and edits
// reverse the original effect before applying the new one.
type LedgerService struct {
	store storage.Store
}

func NewLedgerService(store storage.Store) *LedgerService {
	return &LedgerService{store: store}
}

// applyEffect returns the balance after a transaction lands on it.
func applyEffect(balance decimal.Decimal, tx core.Transaction) decimal.Decimal {
	if tx.Type == core.Income {
		return balance.Add(tx.Amount)
	}
	return balance.Sub(tx.Amount)
}

// reverseEffect returns the balance as if the transaction never happened.
func reverseEffect(balance decimal.Decimal, tx core.Transaction) decimal.Decimal {
	if tx.Type == core.Income {
		return balance.Sub(tx.Amount)
	}
	return balance.Add(tx.Amount)
}

// validateExpense enforces the post-state rules before any write: cash-like
// accounts must not go negative, credit accounts must pass the limit check.
func validateExpense(account core.Account, tx core.Transaction) error {
	if tx.Type != core.Expense {
		return nil
	}
	if account.IsCredit() {
		return core.ValidateCreditPurchase(tx.Amount, account)
	}
	if applyEffect(account.Balance, tx).IsNegative() {
		return fmt.Errorf("%w: account %q balance %s cannot cover %s",
			core.ErrInsufficientFunds, account.Name, account.Balance.String(), tx.Amount.String())
	}
	return nil
}

// CreateTransaction validates, writes the transaction and applies its
// effect to the owning account. Validation failures happen before any
// write; a balance-write failure after the transaction write is reported
// as ErrProcessing.
func (s *LedgerService) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	account, err := s.store.GetAccount(ctx, tx.AccountID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, tx.AccountID)
	}

	if err := validateExpense(account, tx); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: create transaction: %w", ErrProcessing, err)
	}

	account.Balance = applyEffect(account.Balance, tx)
	if err := s.store.UpdateAccount(ctx, account); err != nil {
		return created, fmt.Errorf("%w: transaction %s written but balance update failed: %w",
			ErrProcessing, created.ID, err)
	}

	slog.InfoContext(ctx, "Transaction applied",
		"id", created.ID,
		"type", created.Type,
		log.FieldAmount, created.Amount.String(),
		log.FieldAccountID, account.ID,
		"new_balance", account.Balance.String())

	return created, nil
}

// UpdateTransaction reverses the original transaction's effect, applies
// the edited one and re-validates before committing. When the edit moves
// the transaction to another account, the reversal lands on the old
// account and the fresh effect on the new one.
func (s *LedgerService) UpdateTransaction(ctx context.Context, updated core.Transaction) error {
	if err := updated.Validate(); err != nil {
		return err
	}

	original, err := s.store.GetTransaction(ctx, updated.ID)
	if err != nil {
		return fmt.Errorf("load original transaction: %w", err)
	}

	oldAccount, err := s.store.GetAccount(ctx, original.AccountID)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrAccountNotFound, original.AccountID)
	}

	sameAccount := original.AccountID == updated.AccountID

	newAccount := oldAccount
	if !sameAccount {
		newAccount, err = s.store.GetAccount(ctx, updated.AccountID)
		if err != nil {
			return fmt.Errorf("%w: %s", core.ErrAccountNotFound, updated.AccountID)
		}
	}

	// Compute post-state as if the original never happened, then validate
	// the edited transaction against it.
	oldAccount.Balance = reverseEffect(oldAccount.Balance, original)
	if sameAccount {
		newAccount = oldAccount
	}
	if err := validateExpense(newAccount, updated); err != nil {
		return err
	}
	newAccount.Balance = applyEffect(newAccount.Balance, updated)

	if err := s.store.UpdateTransaction(ctx, updated); err != nil {
		return fmt.Errorf("%w: update transaction: %w", ErrProcessing, err)
	}

	if !sameAccount {
		if err := s.store.UpdateAccount(ctx, oldAccount); err != nil {
			return fmt.Errorf("%w: transaction %s updated but old account balance failed: %w",
				ErrProcessing, updated.ID, err)
		}
	}
	if err := s.store.UpdateAccount(ctx, newAccount); err != nil {
		return fmt.Errorf("%w: transaction %s updated but balance update failed: %w",
			ErrProcessing, updated.ID, err)
	}

	slog.InfoContext(ctx, "Transaction edited",
		"id", updated.ID,
		log.FieldAccountID, updated.AccountID,
		"moved_account", !sameAccount)

	return nil
}

// DeleteTransaction removes the transaction and reverses its effect on the
// owning account. No re-validation: reversal only increases available
// funds or credit.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}

	account, err := s.store.GetAccount(ctx, tx.AccountID)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrAccountNotFound, tx.AccountID)
	}

	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("%w: delete transaction: %w", ErrProcessing, err)
	}

	account.Balance = reverseEffect(account.Balance, tx)
	if err := s.store.UpdateAccount(ctx, account); err != nil {
		return fmt.Errorf("%w: transaction %s deleted but balance update failed: %w",
			ErrProcessing, id, err)
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"id", id,
		log.FieldAccountID, account.ID,
		"new_balance", account.Balance.String())

	return nil
}
