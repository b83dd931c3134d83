package accounts

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// AccountTypes lists the categories in reporting order.
var AccountTypes = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeIncome,
	AccountTypeExpense,
}

// Valid reports whether t is a known category.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether debits increase the balance of t.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Status is the account lifecycle state.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusRetired Status = "RETIRED"
)

// Account models a chart of accounts node. Type and OpeningBalance are fixed
// at creation.
type Account struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Type           AccountType     `json:"type"`
	ParentID       *int64          `json:"parent_id,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Status         Status          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Active reports whether the account accepts new postings.
func (a Account) Active() bool {
	return a.Status == StatusActive
}

// CreateAccountRequest is the payload for registering an account.
type CreateAccountRequest struct {
	Name           string          `json:"name" validate:"required,max=120"`
	Type           AccountType     `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY INCOME EXPENSE"`
	ParentID       *int64          `json:"parent_id" validate:"omitempty,gt=0"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

// UpdateAccountRequest renames and/or re-parents an account.
type UpdateAccountRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=120"`
	ParentID    *int64  `json:"parent_id" validate:"omitempty,gt=0"`
	ClearParent bool    `json:"clear_parent"`
}

// ListFilter narrows account listings.
type ListFilter struct {
	Search         string
	Type           AccountType
	IncludeRetired bool
}

// Outcome reports what DeactivateOrDelete did.
type Outcome string

const (
	OutcomeRetired Outcome = "RETIRED"
	OutcomeDeleted Outcome = "DELETED"
)

var (
	// ErrAccountNotFound indicates missing account.
	ErrAccountNotFound = fmt.Errorf("accounts: account %w", shared.ErrNotFound)
	// ErrDuplicateName indicates another account already uses the name.
	ErrDuplicateName = fmt.Errorf("accounts: %w: account name already exists", shared.ErrConflict)
	// ErrInvalidParent indicates a missing, retired or cyclic parent.
	ErrInvalidParent = fmt.Errorf("accounts: %w: invalid parent", shared.ErrValidation)
	// ErrInvalidAccount indicates malformed account input.
	ErrInvalidAccount = fmt.Errorf("accounts: %w", shared.ErrValidation)
	// ErrAccountMapped indicates the account backs a well-known mapping.
	ErrAccountMapped = fmt.Errorf("accounts: %w: account is mapped to a well-known key", shared.ErrConflict)
)
