package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retail-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/retail-ledger/internal/platform/db"
)

// chartLockKey serialises structural changes to the chart so concurrent
// re-parenting cannot create a cycle.
const chartLockKey = 7_410_001

const accountColumns = `id, name, type, parent_id, opening_balance::text, status, created_at, updated_at`

// RepositoryPort abstracts account persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Account, error)
	List(ctx context.Context, filter ListFilter) ([]Account, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	LockChart(ctx context.Context) error
	Chart(ctx context.Context) (map[int64]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	Insert(ctx context.Context, in CreateAccountRequest) (Account, error)
	Update(ctx context.Context, a Account) (Account, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	Delete(ctx context.Context, id int64) error
	HasReferences(ctx context.Context, id int64) (bool, error)
	MappedKeys(ctx context.Context, id int64) ([]string, error)
}

// Repository persists accounts in PostgreSQL.
type Repository struct {
	pool   db.DBTX
	runner *db.Runner
}

// NewRepository constructs Repository.
func NewRepository(pool db.DBTX, runner *db.Runner) *Repository {
	return &Repository{pool: pool, runner: runner}
}

// WithTx executes fn within repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.runner == nil {
		return errors.New("accounts repository not initialised")
	}
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

// Get loads one account.
func (r *Repository) Get(ctx context.Context, id int64) (Account, error) {
	return getAccount(ctx, r.pool, id, false)
}

// List returns accounts matching filter ordered by type then name.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	var (
		where []string
		args  []any
	)
	if !filter.IncludeRetired {
		where = append(where, "status = 'ACTIVE'")
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	query := `SELECT ` + accountColumns + ` FROM accounts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY type, name"
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type txRepository struct {
	q db.DBTX
}

func (r *txRepository) LockChart(ctx context.Context) error {
	_, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, chartLockKey)
	return err
}

func (r *txRepository) Chart(ctx context.Context) (map[int64]Account, error) {
	rows, err := r.q.Query(ctx, `SELECT `+accountColumns+` FROM accounts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	chart := make(map[int64]Account)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		chart[a.ID] = a
	}
	return chart, rows.Err()
}

func (r *txRepository) Get(ctx context.Context, id int64) (Account, error) {
	return getAccount(ctx, r.q, id, true)
}

func (r *txRepository) Insert(ctx context.Context, in CreateAccountRequest) (Account, error) {
	row := r.q.QueryRow(ctx, `INSERT INTO accounts (name, type, parent_id, opening_balance, status)
VALUES ($1,$2,$3,$4,'ACTIVE') RETURNING `+accountColumns,
		in.Name, string(in.Type), in.ParentID, in.OpeningBalance.StringFixed(2))
	a, err := scanAccount(row)
	if err != nil {
		if db.IsUniqueViolation(err, "accounts_name_key") {
			return Account{}, ErrDuplicateName
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) Update(ctx context.Context, a Account) (Account, error) {
	row := r.q.QueryRow(ctx, `UPDATE accounts SET name = $2, parent_id = $3, updated_at = NOW() WHERE id = $1 RETURNING `+accountColumns,
		a.ID, a.Name, a.ParentID)
	updated, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		if db.IsUniqueViolation(err, "accounts_name_key") {
			return Account{}, ErrDuplicateName
		}
		return Account{}, err
	}
	return updated, nil
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.q.Exec(ctx, `UPDATE accounts SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) Delete(ctx context.Context, id int64) error {
	// Children keep existing and become roots.
	if _, err := r.q.Exec(ctx, `UPDATE accounts SET parent_id = NULL, updated_at = NOW() WHERE parent_id = $1`, id); err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: account %d", ErrAccountMapped, id)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) HasReferences(ctx context.Context, id int64) (bool, error) {
	return ledger.NewStore(r.q).HasReferences(ctx, id)
}

func (r *txRepository) MappedKeys(ctx context.Context, id int64) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT key FROM account_mappings WHERE account_id = $1 ORDER BY key`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func getAccount(ctx context.Context, q db.DBTX, id int64, forUpdate bool) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	a, err := scanAccount(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: id %d", ErrAccountNotFound, id)
		}
		return Account{}, err
	}
	return a, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a       Account
		opening string
		typ     string
		status  string
	)
	if err := row.Scan(&a.ID, &a.Name, &typ, &a.ParentID, &opening, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Account{}, err
	}
	bal, err := decimal.NewFromString(opening)
	if err != nil {
		return Account{}, fmt.Errorf("accounts: parse opening balance of %d: %w", a.ID, err)
	}
	a.Type = AccountType(typ)
	a.Status = Status(status)
	a.OpeningBalance = bal
	return a, nil
}
