package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

type fakeTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeBeginner struct {
	txs  []*fakeTx
	opts []pgx.TxOptions
}

func (b *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	tx := &fakeTx{}
	b.txs = append(b.txs, tx)
	b.opts = append(b.opts, opts)
	return tx, nil
}

func serializationErr() error {
	return &pgconn.PgError{Code: CodeSerializationFailure, Message: "could not serialize access"}
}

func TestRunnerCommitsOnSuccess(t *testing.T) {
	pool := &fakeBeginner{}
	runner := NewRunner(pool, 3, nil).WithBackoff(0)

	err := runner.WithTx(context.Background(), func(tx pgx.Tx) error { return nil })
	require.NoError(t, err)
	require.Len(t, pool.txs, 1)
	require.True(t, pool.txs[0].committed)
	require.Equal(t, pgx.RepeatableRead, pool.opts[0].IsoLevel)
}

func TestRunnerRetriesSerializationFailures(t *testing.T) {
	pool := &fakeBeginner{}
	runner := NewRunner(pool, 3, nil).WithBackoff(0)

	calls := 0
	err := runner.WithTx(context.Background(), func(tx pgx.Tx) error {
		calls++
		if calls < 3 {
			return serializationErr()
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.True(t, pool.txs[0].rolledBack)
	require.True(t, pool.txs[1].rolledBack)
	require.True(t, pool.txs[2].committed)
}

type retryLog []bool

func (l *retryLog) TxRetried(exhausted bool) { *l = append(*l, exhausted) }

func TestRunnerExhaustedRetriesReportConsistency(t *testing.T) {
	pool := &fakeBeginner{}
	var observed retryLog
	runner := NewRunner(pool, 2, nil).WithBackoff(0).WithObserver(&observed)

	err := runner.WithTx(context.Background(), func(tx pgx.Tx) error {
		return &pgconn.PgError{Code: CodeDeadlockDetected}
	})
	require.ErrorIs(t, err, shared.ErrConsistency)
	require.Len(t, pool.txs, 2)
	require.Equal(t, retryLog{false, true}, observed)
}

func TestRunnerDoesNotRetryOtherErrors(t *testing.T) {
	pool := &fakeBeginner{}
	runner := NewRunner(pool, 5, nil).WithBackoff(0)
	boom := errors.New("boom")

	err := runner.WithTx(context.Background(), func(tx pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Len(t, pool.txs, 1)
	require.True(t, pool.txs[0].rolledBack)
}

func TestRunnerRetriesCommitFailure(t *testing.T) {
	pool := &fakeBeginner{}
	runner := NewRunner(pool, 2, nil).WithBackoff(0)

	calls := 0
	err := runner.WithTx(context.Background(), func(tx pgx.Tx) error {
		calls++
		if calls == 1 {
			tx.(*fakeTx).commitErr = serializationErr()
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestReadTxIsReadOnly(t *testing.T) {
	pool := &fakeBeginner{}
	runner := NewRunner(pool, 1, nil)

	require.NoError(t, runner.WithReadTx(context.Background(), func(tx pgx.Tx) error { return nil }))
	require.Equal(t, pgx.ReadOnly, pool.opts[0].AccessMode)
}

func TestUniqueViolationMatchesConstraint(t *testing.T) {
	err := &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "accounts_name_key"}
	require.True(t, IsUniqueViolation(err, "accounts_name_key"))
	require.True(t, IsUniqueViolation(err, ""))
	require.False(t, IsUniqueViolation(err, "other"))
	require.False(t, IsUniqueViolation(errors.New("x"), ""))
}
