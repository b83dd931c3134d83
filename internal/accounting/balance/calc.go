// Package balance derives account balances and the trial balance from the
// ledger on demand.
package balance

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retail-ledger/internal/accounting/accounts"
)

// Tolerance is the largest debit/credit difference still reported as balanced.
var Tolerance = decimal.RequireFromString("0.01")

// Side is the trial balance column an account lands in.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// AccountTotals are the raw inputs for one account's balance.
type AccountTotals struct {
	AccountID int64                `json:"account_id"`
	Name      string               `json:"name"`
	Type      accounts.AccountType `json:"type"`
	Opening   decimal.Decimal      `json:"opening"`
	Debit     decimal.Decimal      `json:"debit"`
	Credit    decimal.Decimal      `json:"credit"`
}

// Balance applies the normal-side rule of the account type.
func (t AccountTotals) Balance() decimal.Decimal {
	return Compute(t.Type, t.Opening, t.Debit, t.Credit)
}

// Compute returns opening + debit - credit for debit-normal types (ASSET,
// EXPENSE) and opening + credit - debit for the rest.
func Compute(t accounts.AccountType, opening, debit, credit decimal.Decimal) decimal.Decimal {
	if t.DebitNormal() {
		return opening.Add(debit).Sub(credit)
	}
	return opening.Add(credit).Sub(debit)
}

// AccountBalance reports one account's balance.
type AccountBalance struct {
	AccountTotals
	Balance decimal.Decimal `json:"balance"`
	AsOf    string          `json:"as_of,omitempty"`
}

// Row is one trial balance line.
type Row struct {
	AccountID int64                `json:"account_id"`
	Name      string               `json:"name"`
	Type      accounts.AccountType `json:"type"`
	Side      Side                 `json:"side"`
	Amount    decimal.Decimal      `json:"amount"`
}

// TrialBalance lists non-zero balances by side. IsBalanced is informational.
type TrialBalance struct {
	AsOf        string          `json:"as_of,omitempty"`
	Rows        []Row           `json:"rows"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Difference  decimal.Decimal `json:"difference"`
	IsBalanced  bool            `json:"is_balanced"`
}

// SideOf returns the column for a balance of an account of type t. A
// non-negative balance sits on the type's normal side and a negative one on
// the opposite side, so debit-normal accounts report DEBIT when balance >= 0.
func SideOf(t accounts.AccountType, bal decimal.Decimal) Side {
	if (bal.Sign() >= 0) == t.DebitNormal() {
		return SideDebit
	}
	return SideCredit
}

// BuildTrialBalance reports every account with a non-zero balance at its
// magnitude on the side given by SideOf. Rows are ordered by account type
// then name.
func BuildTrialBalance(totals []AccountTotals) TrialBalance {
	ordered := make([]AccountTotals, len(totals))
	copy(ordered, totals)
	rank := make(map[accounts.AccountType]int, len(accounts.AccountTypes))
	for i, t := range accounts.AccountTypes {
		rank[t] = i
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Type != ordered[j].Type {
			return rank[ordered[i].Type] < rank[ordered[j].Type]
		}
		return ordered[i].Name < ordered[j].Name
	})

	tb := TrialBalance{Rows: []Row{}, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, t := range ordered {
		bal := t.Balance()
		if bal.IsZero() {
			continue
		}
		row := Row{AccountID: t.AccountID, Name: t.Name, Type: t.Type, Side: SideOf(t.Type, bal), Amount: bal.Abs()}
		if row.Side == SideDebit {
			tb.TotalDebit = tb.TotalDebit.Add(row.Amount)
		} else {
			tb.TotalCredit = tb.TotalCredit.Add(row.Amount)
		}
		tb.Rows = append(tb.Rows, row)
	}
	tb.Difference = tb.TotalDebit.Sub(tb.TotalCredit)
	tb.IsBalanced = tb.Difference.Abs().LessThan(Tolerance)
	return tb
}
