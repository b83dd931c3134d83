package mappings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

type stubRepo struct {
	items []AccountMapping
}

func (s *stubRepo) List(ctx context.Context) ([]AccountMapping, error) { return s.items, nil }

func (s *stubRepo) Upsert(ctx context.Context, key string, accountID int64) error {
	s.items = append(s.items, AccountMapping{Key: key, AccountID: accountID})
	return nil
}

func TestResolveMissingKeyIsConsistencyError(t *testing.T) {
	set := NewSet([]AccountMapping{{Key: KeyCash, AccountID: 1}})

	id, err := set.Resolve(KeyCash)
	require.NoError(t, err)
	require.EqualValues(t, 1, id)

	_, err = set.Resolve(KeySales)
	require.ErrorIs(t, err, ErrMappingNotFound)
	require.ErrorIs(t, err, shared.ErrConsistency)
}

func TestResolveExpenseFallsBack(t *testing.T) {
	set := NewSet([]AccountMapping{
		{Key: KeyExpense, AccountID: 10},
		{Key: "expense.rent", AccountID: 11},
	})

	id, err := set.ResolveExpense(" Rent ")
	require.NoError(t, err)
	require.EqualValues(t, 11, id)

	id, err = set.ResolveExpense("utilities")
	require.NoError(t, err)
	require.EqualValues(t, 10, id)

	_, err = NewSet(nil).ResolveExpense("rent")
	require.ErrorIs(t, err, ErrMappingNotFound)
}

func TestLoadReportsMissingRequiredKeys(t *testing.T) {
	repo := &stubRepo{}
	require.NoError(t, repo.Upsert(context.Background(), KeyCash, 1))
	require.NoError(t, repo.Upsert(context.Background(), KeySales, 2))

	set, err := Load(context.Background(), repo)
	require.NoError(t, err)
	require.Equal(t, []string{KeyCash, KeySales}, set.Keys())
	require.Equal(t, []string{KeyBank, KeyReceivables, KeyPurchases, KeyPayables, KeyExpense}, set.Missing())
}
