package balance

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retail-ledger/internal/platform/db"
)

// totalsRows replays a fixed result set; failAt > 0 aborts the scan with a
// serialization failure after that many rows.
type totalsRows struct {
	pgx.Rows
	data   [][]string
	pos    int
	failAt int
}

func (r *totalsRows) Next() bool {
	if r.failAt > 0 && r.pos >= r.failAt {
		return false
	}
	r.pos++
	return r.pos <= len(r.data)
}

func (r *totalsRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	*dest[0].(*int64) = int64(r.pos)
	for i, v := range row {
		*dest[i+1].(*string) = v
	}
	return nil
}

func (r *totalsRows) Err() error {
	if r.failAt > 0 && r.pos >= r.failAt {
		return &pgconn.PgError{Code: db.CodeSerializationFailure}
	}
	return nil
}

func (r *totalsRows) Close() {}

type totalsTx struct {
	pgx.Tx
	rows *totalsRows
}

func (t *totalsTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.rows, nil
}
func (t *totalsTx) Commit(ctx context.Context) error   { return nil }
func (t *totalsTx) Rollback(ctx context.Context) error { return nil }

type totalsBeginner struct {
	data    [][]string
	attempt int
}

func (b *totalsBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.attempt++
	rows := &totalsRows{data: b.data}
	if b.attempt == 1 {
		rows.failAt = len(b.data)
	}
	return &totalsTx{rows: rows}, nil
}

func TestActiveTotalsReplayDoesNotDuplicateRows(t *testing.T) {
	pool := &totalsBeginner{data: [][]string{
		{"Cash", "ASSET", "1000.00", "300.00", "0"},
		{"Sales", "INCOME", "0", "0", "300.00"},
	}}
	repo := NewRepository(db.NewRunner(pool, 3, nil).WithBackoff(0))

	totals, err := repo.ActiveTotals(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 2, pool.attempt)
	require.Len(t, totals, 2)
	require.Equal(t, "Cash", totals[0].Name)
	require.Equal(t, "300", totals[1].Credit.String())
}
