package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retail-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/retail-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/retail-ledger/internal/platform/db"
	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

// RepositoryPort loads balance inputs from a consistent snapshot.
type RepositoryPort interface {
	AccountTotals(ctx context.Context, accountID int64, asOf *time.Time) (AccountTotals, error)
	ActiveTotals(ctx context.Context, asOf *time.Time) ([]AccountTotals, error)
}

// Repository reads balances from PostgreSQL inside read-only repeatable-read
// transactions.
type Repository struct {
	runner *db.Runner
}

// NewRepository constructs Repository.
func NewRepository(runner *db.Runner) *Repository {
	return &Repository{runner: runner}
}

// AccountTotals loads opening balance and movement sums for one account.
func (r *Repository) AccountTotals(ctx context.Context, accountID int64, asOf *time.Time) (AccountTotals, error) {
	var out AccountTotals
	err := r.runner.WithReadTx(ctx, func(tx pgx.Tx) error {
		var (
			typ     string
			opening string
		)
		err := tx.QueryRow(ctx, `SELECT id, name, type, opening_balance::text FROM accounts WHERE id = $1`, accountID).
			Scan(&out.AccountID, &out.Name, &typ, &opening)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("balance: account %d %w", accountID, shared.ErrNotFound)
		}
		if err != nil {
			return err
		}
		out.Type = accounts.AccountType(typ)
		if out.Opening, err = decimal.NewFromString(opening); err != nil {
			return err
		}
		out.Debit, out.Credit, err = ledger.NewStore(tx).Sums(ctx, accountID, asOf)
		return err
	})
	return out, err
}

// ActiveTotals aggregates every active account in one grouped query.
func (r *Repository) ActiveTotals(ctx context.Context, asOf *time.Time) ([]AccountTotals, error) {
	var cutoff *time.Time
	if asOf != nil {
		d := ledger.Day(*asOf)
		cutoff = &d
	}
	var out []AccountTotals
	err := r.runner.WithReadTx(ctx, func(tx pgx.Tx) error {
		// The runner replays this closure on serialization failures.
		out = out[:0]
		rows, err := tx.Query(ctx, `WITH movements AS (
  SELECT debit_account_id AS account_id, amount AS debit, 0::numeric AS credit
  FROM ledger_entries WHERE $1::date IS NULL OR entry_date <= $1::date
  UNION ALL
  SELECT credit_account_id, 0::numeric, amount
  FROM ledger_entries WHERE $1::date IS NULL OR entry_date <= $1::date
)
SELECT a.id, a.name, a.type, a.opening_balance::text,
       COALESCE(SUM(m.debit), 0)::text, COALESCE(SUM(m.credit), 0)::text
FROM accounts a
LEFT JOIN movements m ON m.account_id = a.id
WHERE a.status = 'ACTIVE'
GROUP BY a.id, a.name, a.type, a.opening_balance
ORDER BY a.id`, cutoff)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				t                      AccountTotals
				typ                    string
				opening, debit, credit string
			)
			if err := rows.Scan(&t.AccountID, &t.Name, &typ, &opening, &debit, &credit); err != nil {
				return err
			}
			t.Type = accounts.AccountType(typ)
			if t.Opening, err = decimal.NewFromString(opening); err != nil {
				return err
			}
			if t.Debit, err = decimal.NewFromString(debit); err != nil {
				return err
			}
			if t.Credit, err = decimal.NewFromString(credit); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}
