package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

const defaultBackoff = 20 * time.Millisecond

// Runner executes work inside a transaction and replays it when PostgreSQL
// aborts the transaction with a serialization failure or deadlock.
type Runner struct {
	pool        Beginner
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
	observer    RetryObserver
}

// RetryObserver is told about every retried transaction and about runs that
// gave up.
type RetryObserver interface {
	TxRetried(exhausted bool)
}

// NewRunner constructs a Runner. maxAttempts below one is treated as one.
func NewRunner(pool Beginner, maxAttempts int, logger *slog.Logger) *Runner {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{pool: pool, maxAttempts: maxAttempts, backoff: defaultBackoff, logger: logger}
}

// WithBackoff overrides the base retry delay.
func (r *Runner) WithBackoff(d time.Duration) *Runner {
	if d >= 0 {
		r.backoff = d
	}
	return r
}

// WithObserver attaches a retry observer.
func (r *Runner) WithObserver(o RetryObserver) *Runner {
	r.observer = o
	return r
}

// WithTx executes fn within a read-write transaction using the RepeatableRead isolation level.
func (r *Runner) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return r.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, fn)
}

// WithReadTx executes fn within a read-only RepeatableRead transaction so
// every query observes the same snapshot.
func (r *Runner) WithReadTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return r.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (r *Runner) run(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	if r == nil || r.pool == nil {
		return errors.New("platform/db: runner not initialised")
	}
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := runOnce(ctx, r.pool, opts, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		r.logger.Warn("transaction aborted, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.maxAttempts),
			slog.Any("error", err))
		if attempt == r.maxAttempts {
			break
		}
		if r.observer != nil {
			r.observer.TxRetried(false)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delay(attempt)):
		}
	}
	if r.observer != nil {
		r.observer.TxRetried(true)
	}
	return fmt.Errorf("platform/db: %w: transaction retries exhausted after %d attempts: %v", shared.ErrConsistency, r.maxAttempts, lastErr)
}

func (r *Runner) delay(attempt int) time.Duration {
	if r.backoff <= 0 {
		return 0
	}
	base := r.backoff * time.Duration(attempt)
	return base + rand.N(r.backoff)
}

func runOnce(ctx context.Context, pool Beginner, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
// It makes a single attempt; use a Runner for retries.
func WithTx(ctx context.Context, pool Beginner, fn func(pgx.Tx) error) error {
	return runOnce(ctx, pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, fn)
}
