package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finanzas/internal/core"
	"finanzas/internal/log"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- accounts ---

const accountColumns = "id, name, type, balance, credit_limit, interest_rate, max_installments"

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return a, err
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	a.ID = uuid.NewString()

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO accounts (id, name, type, balance, credit_limit, interest_rate, max_installments) VALUES (?, ?, ?, ?, ?, ?, ?)",
		a.ID, a.Name, string(a.Type), a.Balance.String(), a.CreditLimit.String(), a.InterestRate.String(), a.MaxInstallments)
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}

	slog.InfoContext(ctx, "Account saved to SQLite",
		"id", a.ID,
		"name", a.Name,
		"type", a.Type)
	return a, nil
}

func (r *SQLiteRepository) UpdateAccount(ctx context.Context, a core.Account) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE accounts SET name = ?, type = ?, balance = ?, credit_limit = ?, interest_rate = ?, max_installments = ? WHERE id = ?",
		a.Name, string(a.Type), a.Balance.String(), a.CreditLimit.String(), a.InterestRate.String(), a.MaxInstallments, a.ID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return requireRow(res, a.ID)
}

func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return requireRow(res, id)
}

// --- transactions ---

const transactionColumns = "id, title, category, amount, type, date, account_id, installments, interest_amount, subscription_id, is_automatic, paid_off"

func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+transactionColumns+" FROM transactions ORDER BY date")
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return tx, err
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	tx.ID = uuid.NewString()
	if tx.Installments < 1 {
		tx.Installments = 1
	}

	var subID any
	if tx.SubscriptionID != "" {
		subID = tx.SubscriptionID
	}
	var paidOff any
	if tx.PaidOff != nil {
		paidOff = boolToInt(*tx.PaidOff)
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO transactions ("+transactionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		tx.ID, tx.Title, tx.Category, tx.Amount.String(), string(tx.Type), tx.Date.UTC().Format(time.RFC3339),
		tx.AccountID, tx.Installments, tx.InterestAmount.String(), subID, boolToInt(tx.IsAutomatic), paidOff)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", tx.ID,
		"title", tx.Title,
		log.FieldAmount, tx.Amount.String(),
		"type", tx.Type,
		log.FieldAccountID, tx.AccountID)
	return tx, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	var subID any
	if tx.SubscriptionID != "" {
		subID = tx.SubscriptionID
	}
	var paidOff any
	if tx.PaidOff != nil {
		paidOff = boolToInt(*tx.PaidOff)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET title = ?, category = ?, amount = ?, type = ?, date = ?, account_id = ?,
		 installments = ?, interest_amount = ?, subscription_id = ?, is_automatic = ?, paid_off = ? WHERE id = ?`,
		tx.Title, tx.Category, tx.Amount.String(), string(tx.Type), tx.Date.UTC().Format(time.RFC3339),
		tx.AccountID, tx.Installments, tx.InterestAmount.String(), subID, boolToInt(tx.IsAutomatic), paidOff, tx.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return requireRow(res, tx.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return requireRow(res, id)
}

// --- subscriptions ---

const subscriptionColumns = "id, name, cost, frequency, account_id, status, next_payment, last_payment_date, last_payment_amount, suspension_reason"

func (r *SQLiteRepository) ListSubscriptions(ctx context.Context) ([]core.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+subscriptionColumns+" FROM subscriptions ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []core.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetSubscription(ctx context.Context, id string) (core.Subscription, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+subscriptionColumns+" FROM subscriptions WHERE id = ?", id)
	s, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Subscription{}, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	return s, err
}

func (r *SQLiteRepository) CreateSubscription(ctx context.Context, s core.Subscription) (core.Subscription, error) {
	if err := s.Validate(); err != nil {
		return core.Subscription{}, err
	}
	s.ID = uuid.NewString()

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO subscriptions ("+subscriptionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.ID, s.Name, s.Cost.String(), string(s.Frequency), s.AccountID, string(s.Status),
		s.NextPayment.UTC().Format(time.RFC3339), nullableTime(s.LastPaymentDate),
		s.LastPaymentAmount.String(), s.SuspensionReason)
	if err != nil {
		return core.Subscription{}, fmt.Errorf("create subscription: %w", err)
	}

	slog.InfoContext(ctx, "Subscription saved to SQLite",
		"id", s.ID,
		"name", s.Name,
		"cost", s.Cost.String(),
		log.FieldNextPayment, s.NextPayment.Format("2006-01-02"))
	return s, nil
}

func (r *SQLiteRepository) UpdateSubscription(ctx context.Context, s core.Subscription) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions SET name = ?, cost = ?, frequency = ?, account_id = ?, status = ?,
		 next_payment = ?, last_payment_date = ?, last_payment_amount = ?, suspension_reason = ? WHERE id = ?`,
		s.Name, s.Cost.String(), string(s.Frequency), s.AccountID, string(s.Status),
		s.NextPayment.UTC().Format(time.RFC3339), nullableTime(s.LastPaymentDate),
		s.LastPaymentAmount.String(), s.SuspensionReason, s.ID)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return requireRow(res, s.ID)
}

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (core.Account, error) {
	var a core.Account
	var typ, balance, limit, rate string
	if err := row.Scan(&a.ID, &a.Name, &typ, &balance, &limit, &rate, &a.MaxInstallments); err != nil {
		return core.Account{}, err
	}
	a.Type = core.AccountType(typ)

	var err error
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return core.Account{}, fmt.Errorf("parse balance: %w", err)
	}
	if a.CreditLimit, err = decimal.NewFromString(limit); err != nil {
		return core.Account{}, fmt.Errorf("parse credit limit: %w", err)
	}
	if a.InterestRate, err = decimal.NewFromString(rate); err != nil {
		return core.Account{}, fmt.Errorf("parse interest rate: %w", err)
	}
	return a, nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var tx core.Transaction
	var amount, typ, date, interest string
	var subID sql.NullString
	var isAutomatic int
	var paidOff sql.NullInt64
	if err := row.Scan(&tx.ID, &tx.Title, &tx.Category, &amount, &typ, &date, &tx.AccountID,
		&tx.Installments, &interest, &subID, &isAutomatic, &paidOff); err != nil {
		return core.Transaction{}, err
	}
	tx.Type = core.TransactionType(typ)
	tx.SubscriptionID = subID.String
	tx.IsAutomatic = isAutomatic != 0
	if paidOff.Valid {
		v := paidOff.Int64 != 0
		tx.PaidOff = &v
	}

	var err error
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount: %w", err)
	}
	if tx.InterestAmount, err = decimal.NewFromString(interest); err != nil {
		return core.Transaction{}, fmt.Errorf("parse interest amount: %w", err)
	}
	if tx.Date, err = time.Parse(time.RFC3339, date); err != nil {
		return core.Transaction{}, fmt.Errorf("parse date: %w", err)
	}
	return tx, nil
}

func scanSubscription(row rowScanner) (core.Subscription, error) {
	var s core.Subscription
	var cost, freq, status, nextPayment, lastAmount string
	var lastPaidNull sql.NullString
	if err := row.Scan(&s.ID, &s.Name, &cost, &freq, &s.AccountID, &status,
		&nextPayment, &lastPaidNull, &lastAmount, &s.SuspensionReason); err != nil {
		return core.Subscription{}, err
	}
	s.Frequency = core.Frequency(freq)
	s.Status = core.SubscriptionStatus(status)

	var err error
	if s.Cost, err = decimal.NewFromString(cost); err != nil {
		return core.Subscription{}, fmt.Errorf("parse cost: %w", err)
	}
	if s.LastPaymentAmount, err = decimal.NewFromString(lastAmount); err != nil {
		return core.Subscription{}, fmt.Errorf("parse last payment amount: %w", err)
	}
	if s.NextPayment, err = time.Parse(time.RFC3339, nextPayment); err != nil {
		return core.Subscription{}, fmt.Errorf("parse next payment: %w", err)
	}
	if lastPaidNull.Valid {
		if s.LastPaymentDate, err = time.Parse(time.RFC3339, lastPaidNull.String); err != nil {
			return core.Subscription{}, fmt.Errorf("parse last payment date: %w", err)
		}
	}
	return s, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
