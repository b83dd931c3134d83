package mappings

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/retail-ledger/internal/platform/db"
	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

// Repository reads and maintains account mappings.
type Repository interface {
	List(ctx context.Context) ([]AccountMapping, error)
	Upsert(ctx context.Context, key string, accountID int64) error
}

type repository struct {
	db db.DBTX
}

// NewRepository binds the repository to a pool or transaction.
func NewRepository(q db.DBTX) Repository {
	return &repository{db: q}
}

// List returns every mapping ordered by key.
func (r *repository) List(ctx context.Context) ([]AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT key, account_id, created_at, updated_at FROM account_mappings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Upsert points key at accountID.
func (r *repository) Upsert(ctx context.Context, key string, accountID int64) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || accountID <= 0 {
		return fmt.Errorf("mappings: %w: key and account required", shared.ErrValidation)
	}
	_, err := r.db.Exec(ctx, `INSERT INTO account_mappings (key, account_id, created_at, updated_at)
VALUES ($1, $2, NOW(), NOW())
ON CONFLICT (key) DO UPDATE SET account_id = EXCLUDED.account_id, updated_at = NOW()`, key, accountID)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("mappings: %w: account %d", shared.ErrNotFound, accountID)
	}
	return err
}

// Load reads the mapping snapshot used for the lifetime of the process.
func Load(ctx context.Context, repo Repository) (Set, error) {
	items, err := repo.List(ctx)
	if err != nil {
		return Set{}, fmt.Errorf("mappings: load: %w", err)
	}
	return NewSet(items), nil
}
