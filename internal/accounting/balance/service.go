package balance

import (
	"context"
	"log/slog"
	"time"

	"github.com/odyssey-erp/retail-ledger/internal/accounting/ledger"
)

// Recorder receives trial balance outcomes for metrics.
type Recorder interface {
	TrialBalanceComputed(difference float64, balanced bool)
}

// Service answers balance and trial balance queries.
type Service struct {
	repo    RepositoryPort
	cache   *Cache
	metrics Recorder
	logger  *slog.Logger
}

// NewService wires the balance service. cache and metrics may be nil.
func NewService(repo RepositoryPort, cache *Cache, metrics Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, metrics: metrics, logger: logger}
}

// Balance returns the balance of one account. Retired accounts are still
// reportable.
func (s *Service) Balance(ctx context.Context, accountID int64, asOf *time.Time) (AccountBalance, error) {
	totals, err := s.repo.AccountTotals(ctx, accountID, asOf)
	if err != nil {
		return AccountBalance{}, err
	}
	return AccountBalance{AccountTotals: totals, Balance: totals.Balance(), AsOf: asOfLabel(asOf)}, nil
}

// TrialBalance computes the trial balance over active accounts, serving a
// cached copy while no entry has been posted since it was built.
func (s *Service) TrialBalance(ctx context.Context, asOf *time.Time) (TrialBalance, error) {
	label := asOfLabel(asOf)
	load := func(ctx context.Context) (any, error) {
		totals, err := s.repo.ActiveTotals(ctx, asOf)
		if err != nil {
			return nil, err
		}
		tb := BuildTrialBalance(totals)
		tb.AsOf = label
		return tb, nil
	}

	var tb TrialBalance
	key, err := s.cache.BuildKey(ctx, keyTrialBalance(label))
	if err != nil {
		s.logger.Warn("balance cache unavailable", slog.Any("error", err))
		value, lerr := load(ctx)
		if lerr != nil {
			return TrialBalance{}, lerr
		}
		tb = value.(TrialBalance)
	} else if err := s.cache.FetchJSON(ctx, key, &tb, load); err != nil {
		return TrialBalance{}, err
	}

	if s.metrics != nil {
		diff, _ := tb.Difference.Float64()
		s.metrics.TrialBalanceComputed(diff, tb.IsBalanced)
	}
	if !tb.IsBalanced {
		s.logger.Warn("trial balance out of balance",
			slog.String("as_of", label),
			slog.String("difference", tb.Difference.StringFixed(2)))
	}
	return tb, nil
}

func asOfLabel(asOf *time.Time) string {
	if asOf == nil {
		return ""
	}
	return ledger.Day(*asOf).Format(time.DateOnly)
}
