package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/retail-ledger/internal/platform/db"
)

// Store reads and advances persisted counters. Implementations bound to a
// transaction hold the counter row lock until that transaction ends.
type Store interface {
	Increment(ctx context.Context, prefix string) (int64, error)
	Current(ctx context.Context, prefix string) (int64, error)
	Raise(ctx context.Context, prefix string, floor int64) (int64, error)
}

// RepositoryPort abstracts transactional counter access.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error
}

// Repository persists counters in document_sequences.
type Repository struct {
	runner *db.Runner
}

// NewRepository constructs Repository.
func NewRepository(runner *db.Runner) *Repository {
	return &Repository{runner: runner}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	if r == nil || r.runner == nil {
		return errors.New("sequence repository not initialised")
	}
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}

type pgStore struct {
	q db.DBTX
}

// NewStore binds a Store to q, typically the caller's transaction.
func NewStore(q db.DBTX) Store {
	return &pgStore{q: q}
}

func (s *pgStore) Increment(ctx context.Context, prefix string) (int64, error) {
	var n int64
	err := s.q.QueryRow(ctx, `INSERT INTO document_sequences (prefix, last_number, updated_at) VALUES ($1, 1, NOW())
ON CONFLICT (prefix) DO UPDATE SET last_number = document_sequences.last_number + 1, updated_at = NOW()
RETURNING last_number`, prefix).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sequence: increment %s: %w", prefix, err)
	}
	return n, nil
}

func (s *pgStore) Current(ctx context.Context, prefix string) (int64, error) {
	var n int64
	err := s.q.QueryRow(ctx, `SELECT last_number FROM document_sequences WHERE prefix = $1`, prefix).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sequence: read %s: %w", prefix, err)
	}
	return n, nil
}

func (s *pgStore) Raise(ctx context.Context, prefix string, floor int64) (int64, error) {
	var n int64
	err := s.q.QueryRow(ctx, `INSERT INTO document_sequences (prefix, last_number, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (prefix) DO UPDATE SET last_number = GREATEST(document_sequences.last_number, EXCLUDED.last_number), updated_at = NOW()
RETURNING last_number`, prefix, floor).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sequence: raise %s: %w", prefix, err)
	}
	return n, nil
}
