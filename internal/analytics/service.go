package analytics

import (
	"context"
	"fmt"
	"time"

	"finanzas/internal/core"
)

// Reader is the slice of the data store the analytics service needs.
type Reader interface {
	ListAccounts(ctx context.Context) ([]core.Account, error)
	ListTransactions(ctx context.Context) ([]core.Transaction, error)
}

const (
	defaultCacheSize = 16
	defaultCacheTTL  = 30 * time.Second
)

// Service derives analytics from the store and memoizes results per
// dataset version. The version token is owned by the caller and should
// change whenever accounts or transactions are written.
type Service struct {
	reader    Reader
	summaries *memoCache[Summary]
	analyses  *memoCache[DeepAnalysis]
}

func NewService(reader Reader) *Service {
	return &Service{
		reader:    reader,
		summaries: newMemoCache[Summary](defaultCacheSize, defaultCacheTTL),
		analyses:  newMemoCache[DeepAnalysis](defaultCacheSize, defaultCacheTTL),
	}
}

// Summary returns the credit summary for the current dataset, cached under
// the given version token.
func (s *Service) Summary(ctx context.Context, version string) (Summary, error) {
	if cached, ok := s.summaries.get(version); ok {
		return cached, nil
	}

	txs, accounts, err := s.load(ctx)
	if err != nil {
		return Summary{}, err
	}

	summary := CreditSummary(txs, accounts)
	s.summaries.set(version, summary)
	return summary, nil
}

// DeepAnalysis returns the full credit breakdown for the current dataset,
// cached under the given version token.
func (s *Service) DeepAnalysis(ctx context.Context, version string) (DeepAnalysis, error) {
	if cached, ok := s.analyses.get(version); ok {
		return cached, nil
	}

	txs, accounts, err := s.load(ctx)
	if err != nil {
		return DeepAnalysis{}, err
	}

	analysis := DeepCreditAnalysis(txs, accounts)
	s.analyses.set(version, analysis)
	return analysis, nil
}

func (s *Service) load(ctx context.Context) ([]core.Transaction, []core.Account, error) {
	accounts, err := s.reader.ListAccounts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list accounts: %w", err)
	}
	txs, err := s.reader.ListTransactions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, accounts, nil
}
