// Package storage defines the data-store contract the engine depends on
// and its SQLite implementation. Any CRUD-capable store satisfies the
// contract as long as ids are stable and updates replace the full record.
package storage

import (
	"context"
	"errors"

	"finanzas/internal/core"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence collaborator for accounts, transactions and
// subscriptions. Subscriptions are never hard-deleted; cancellation is a
// status change.
type Store interface {
	ListAccounts(ctx context.Context) ([]core.Account, error)
	GetAccount(ctx context.Context, id string) (core.Account, error)
	CreateAccount(ctx context.Context, a core.Account) (core.Account, error)
	UpdateAccount(ctx context.Context, a core.Account) error
	DeleteAccount(ctx context.Context, id string) error

	ListTransactions(ctx context.Context) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, tx core.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error

	ListSubscriptions(ctx context.Context) ([]core.Subscription, error)
	GetSubscription(ctx context.Context, id string) (core.Subscription, error)
	CreateSubscription(ctx context.Context, s core.Subscription) (core.Subscription, error)
	UpdateSubscription(ctx context.Context, s core.Subscription) error
}
