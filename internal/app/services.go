package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/retail-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/retail-ledger/internal/accounting/balance"
	"github.com/odyssey-erp/retail-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/retail-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/retail-ledger/internal/documents"
	"github.com/odyssey-erp/retail-ledger/internal/observability"
	"github.com/odyssey-erp/retail-ledger/internal/platform/db"
	"github.com/odyssey-erp/retail-ledger/internal/sequence"
	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

// Services holds the wired ledger services shared by the binaries.
type Services struct {
	Runner    *db.Runner
	Mappings  mappings.Repository
	Accounts  *accounts.Service
	Sequences *sequence.Service
	Ledger    *ledger.Service
	Balances  *balance.Service
	Documents *documents.Service
}

// BuildServices wires every service on pool. redisClient and metrics may be
// nil. The account mapping snapshot is loaded once here; missing keys are
// logged and surface as consistency errors when a document needs them.
func BuildServices(ctx context.Context, cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	runner := db.NewRunner(pool, cfg.TxMaxAttempts, logger)
	if metrics != nil {
		runner.WithObserver(metrics)
	}
	auditLogger := shared.NewAuditLogger(pool)

	mappingRepo := mappings.NewRepository(pool)
	set, err := mappings.Load(ctx, mappingRepo)
	if err != nil {
		return nil, fmt.Errorf("load account mappings: %w", err)
	}
	if missing := set.Missing(); len(missing) > 0 {
		logger.Warn("account mappings incomplete", slog.String("missing", strings.Join(missing, ",")))
	}

	seq := sequence.NewService(sequence.NewRepository(runner), recorder[sequence.Recorder](metrics), logger)

	var balanceCache *balance.Cache
	if redisClient != nil {
		balanceCache = balance.NewCache(redisClient, cfg.CacheTTL).WithLogger(logger)
	}
	hooks := ledger.Hooks{
		Metrics: recorder[ledger.Recorder](metrics),
		Numbers: recorder[ledger.NumberRecorder](metrics),
		Logger:  logger,
	}
	if balanceCache != nil {
		hooks.Cache = balanceCache
	}

	return &Services{
		Runner:    runner,
		Mappings:  mappingRepo,
		Accounts:  accounts.NewService(accounts.NewRepository(pool, runner), auditLogger),
		Sequences: seq,
		Ledger:    ledger.NewService(ledger.NewRepository(pool, runner, seq), auditLogger, hooks),
		Balances:  balance.NewService(balance.NewRepository(runner), balanceCache, recorder[balance.Recorder](metrics), logger),
		Documents: documents.NewService(documents.NewRepository(pool, runner, seq), set, cfg.Prefixes(), auditLogger, hooks),
	}, nil
}

// recorder converts metrics into a recorder interface, keeping the interface
// nil when metrics are disabled.
func recorder[T any](metrics *observability.Metrics) T {
	var zero T
	if metrics == nil {
		return zero
	}
	if r, ok := any(metrics).(T); ok {
		return r
	}
	return zero
}
