package accounts

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

type stubRepo struct {
	accounts   map[int64]Account
	referenced map[int64]bool
	mapped     map[int64][]string
	nextID     int64
	audits     []shared.AuditLog
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		accounts:   map[int64]Account{},
		referenced: map[int64]bool{},
		mapped:     map[int64][]string{},
		nextID:     1,
	}
}

func (s *stubRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]Account, len(s.accounts))
	for k, v := range s.accounts {
		snapshot[k] = v
	}
	if err := fn(ctx, &stubTx{repo: s}); err != nil {
		s.accounts = snapshot
		return err
	}
	return nil
}

func (s *stubRepo) Get(ctx context.Context, id int64) (Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (s *stubRepo) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	var out []Account
	for _, a := range s.accounts {
		if !filter.IncludeRetired && !a.Active() {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(a.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) Record(ctx context.Context, log shared.AuditLog) error {
	s.audits = append(s.audits, log)
	return nil
}

type stubTx struct {
	repo *stubRepo
}

func (t *stubTx) LockChart(ctx context.Context) error { return nil }

func (t *stubTx) Chart(ctx context.Context) (map[int64]Account, error) {
	return t.repo.accounts, nil
}

func (t *stubTx) Get(ctx context.Context, id int64) (Account, error) {
	return t.repo.Get(ctx, id)
}

func (t *stubTx) Insert(ctx context.Context, in CreateAccountRequest) (Account, error) {
	for _, a := range t.repo.accounts {
		if a.Name == in.Name {
			return Account{}, ErrDuplicateName
		}
	}
	a := Account{ID: t.repo.nextID, Name: in.Name, Type: in.Type, ParentID: in.ParentID, OpeningBalance: in.OpeningBalance, Status: StatusActive}
	t.repo.nextID++
	t.repo.accounts[a.ID] = a
	return a, nil
}

func (t *stubTx) Update(ctx context.Context, a Account) (Account, error) {
	for _, other := range t.repo.accounts {
		if other.ID != a.ID && other.Name == a.Name {
			return Account{}, ErrDuplicateName
		}
	}
	t.repo.accounts[a.ID] = a
	return a, nil
}

func (t *stubTx) SetStatus(ctx context.Context, id int64, status Status) error {
	a := t.repo.accounts[id]
	a.Status = status
	t.repo.accounts[id] = a
	return nil
}

func (t *stubTx) Delete(ctx context.Context, id int64) error {
	delete(t.repo.accounts, id)
	return nil
}

func (t *stubTx) HasReferences(ctx context.Context, id int64) (bool, error) {
	return t.repo.referenced[id], nil
}

func (t *stubTx) MappedKeys(ctx context.Context, id int64) ([]string, error) {
	return t.repo.mapped[id], nil
}

func newTestService() (*Service, *stubRepo) {
	repo := newStubRepo()
	return NewService(repo, repo), repo
}

func TestCreateAccount(t *testing.T) {
	svc, repo := newTestService()
	ctx := shared.ContextWithActor(context.Background(), 9)

	created, err := svc.Create(ctx, CreateAccountRequest{Name: " Cash Account ", Type: AccountTypeAsset, OpeningBalance: decimal.NewFromInt(100000)})
	require.NoError(t, err)
	assert.Equal(t, "Cash Account", created.Name)
	assert.Equal(t, StatusActive, created.Status)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, int64(9), repo.audits[0].ActorID)
	assert.Equal(t, "account.create", repo.audits[0].Action)
}

func TestCreateAccountRejectsDuplicateName(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Create(ctx, CreateAccountRequest{Name: "Sales Account", Type: AccountTypeIncome})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateAccountRequest{Name: "Sales Account", Type: AccountTypeIncome})
	require.ErrorIs(t, err, ErrDuplicateName)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateAccountValidatesInput(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), CreateAccountRequest{Name: "", Type: AccountTypeAsset})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), CreateAccountRequest{Name: "X", Type: "REVENUE"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateAccountRejectsRetiredParent(t *testing.T) {
	svc, repo := newTestService()
	repo.accounts[1] = Account{ID: 1, Name: "Old", Type: AccountTypeAsset, Status: StatusRetired}
	repo.nextID = 2

	_, err := svc.Create(context.Background(), CreateAccountRequest{Name: "New", Type: AccountTypeAsset, ParentID: ptr(1)})
	require.ErrorIs(t, err, ErrInvalidParent)
	require.Len(t, repo.accounts, 1)
}

func TestUpdateRejectsCycle(t *testing.T) {
	svc, repo := newTestService()
	repo.accounts[1] = Account{ID: 1, Name: "Assets", Type: AccountTypeAsset, Status: StatusActive}
	repo.accounts[2] = Account{ID: 2, Name: "Cash", Type: AccountTypeAsset, ParentID: ptr(1), Status: StatusActive}

	_, err := svc.Update(context.Background(), 1, UpdateAccountRequest{ParentID: ptr(2)})
	require.ErrorIs(t, err, ErrInvalidParent)
	assert.Nil(t, repo.accounts[1].ParentID)
}

func TestUpdateRenamesAndKeepsImmutableFields(t *testing.T) {
	svc, repo := newTestService()
	repo.accounts[1] = Account{ID: 1, Name: "Cash", Type: AccountTypeAsset, OpeningBalance: decimal.NewFromInt(50), Status: StatusActive}
	name := "Cash in Hand"

	updated, err := svc.Update(context.Background(), 1, UpdateAccountRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Cash in Hand", updated.Name)
	assert.Equal(t, AccountTypeAsset, updated.Type)
	assert.True(t, updated.OpeningBalance.Equal(decimal.NewFromInt(50)))
}

func TestUpdateClearsParent(t *testing.T) {
	svc, repo := newTestService()
	repo.accounts[1] = Account{ID: 1, Name: "Assets", Type: AccountTypeAsset, Status: StatusActive}
	repo.accounts[2] = Account{ID: 2, Name: "Cash", Type: AccountTypeAsset, ParentID: ptr(1), Status: StatusActive}

	updated, err := svc.Update(context.Background(), 2, UpdateAccountRequest{ClearParent: true})
	require.NoError(t, err)
	assert.Nil(t, updated.ParentID)
}

func TestDeactivateOrDelete(t *testing.T) {
	svc, repo := newTestService()
	repo.accounts[1] = Account{ID: 1, Name: "Used", Type: AccountTypeAsset, Status: StatusActive}
	repo.accounts[2] = Account{ID: 2, Name: "Unused", Type: AccountTypeAsset, Status: StatusActive}
	repo.referenced[1] = true

	outcome, err := svc.DeactivateOrDelete(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetired, outcome)
	assert.Equal(t, StatusRetired, repo.accounts[1].Status)

	outcome, err = svc.DeactivateOrDelete(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, outcome)
	_, exists := repo.accounts[2]
	assert.False(t, exists)

	_, err = svc.DeactivateOrDelete(context.Background(), 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeactivateRefusesMappedAccount(t *testing.T) {
	svc, repo := newTestService()
	repo.accounts[1] = Account{ID: 1, Name: "Cash", Type: AccountTypeAsset, Status: StatusActive}
	repo.mapped[1] = []string{"cash"}

	_, err := svc.DeactivateOrDelete(context.Background(), 1)
	require.ErrorIs(t, err, ErrAccountMapped)
	assert.Equal(t, StatusActive, repo.accounts[1].Status)
}

func TestListRejectsUnknownType(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.List(context.Background(), ListFilter{Type: "REVENUE"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestHierarchyUsesActiveAccounts(t *testing.T) {
	svc, repo := newTestService()
	repo.accounts[1] = Account{ID: 1, Name: "Cash", Type: AccountTypeAsset, Status: StatusActive}
	repo.accounts[2] = Account{ID: 2, Name: "Gone", Type: AccountTypeAsset, Status: StatusRetired}

	groups, err := svc.Hierarchy(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Roots, 1)
	assert.Equal(t, "Cash", groups[0].Roots[0].Name)
}
