// Package ledger is the append-only store of double-entry postings. Every
// entry moves an amount from one credit account to one debit account; entries
// are never updated or deleted and corrections are new reversing entries.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

// VoucherType classifies the business event behind an entry.
type VoucherType string

const (
	VoucherSales      VoucherType = "SALES"
	VoucherPurchase   VoucherType = "PURCHASE"
	VoucherPayment    VoucherType = "PAYMENT"
	VoucherReceipt    VoucherType = "RECEIPT"
	VoucherJournal    VoucherType = "JOURNAL"
	VoucherContra     VoucherType = "CONTRA"
	VoucherDebitNote  VoucherType = "DEBIT_NOTE"
	VoucherCreditNote VoucherType = "CREDIT_NOTE"
)

// Valid reports whether v is a known voucher type.
func (v VoucherType) Valid() bool {
	switch v {
	case VoucherSales, VoucherPurchase, VoucherPayment, VoucherReceipt,
		VoucherJournal, VoucherContra, VoucherDebitNote, VoucherCreditNote:
		return true
	}
	return false
}

// Links are optional back-references kept for traceability only.
type Links struct {
	CustomerID *int64 `json:"customer_id,omitempty"`
	SupplierID *int64 `json:"supplier_id,omitempty"`
	BillID     *int64 `json:"bill_id,omitempty"`
	PurchaseID *int64 `json:"purchase_id,omitempty"`
	ExpenseID  *int64 `json:"expense_id,omitempty"`
	ReversesID *int64 `json:"reverses_id,omitempty"`
}

// Entry is one immutable posting.
type Entry struct {
	ID              int64           `json:"id"`
	TransactionID   uuid.UUID       `json:"transaction_id"`
	Date            time.Time       `json:"date"`
	VoucherNumber   string          `json:"voucher_number"`
	VoucherType     VoucherType     `json:"voucher_type"`
	DebitAccountID  int64           `json:"debit_account_id"`
	CreditAccountID int64           `json:"credit_account_id"`
	Amount          decimal.Decimal `json:"amount"`
	Narration       string          `json:"narration,omitempty"`
	Reference       string          `json:"reference,omitempty"`
	Links
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// PostingInput describes an entry to append.
type PostingInput struct {
	TransactionID   uuid.UUID
	Date            time.Time
	VoucherNumber   string
	VoucherType     VoucherType
	DebitAccountID  int64
	CreditAccountID int64
	Amount          decimal.Decimal
	Narration       string
	Reference       string
	Links           Links
	CreatedBy       int64
}

// Validate checks the entry-level invariants.
func (p PostingInput) Validate() error {
	if p.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidEntry)
	}
	if !p.Amount.Round(2).Equal(p.Amount) {
		return fmt.Errorf("%w: amount has more than two decimal places", ErrInvalidEntry)
	}
	if p.DebitAccountID <= 0 || p.CreditAccountID <= 0 {
		return fmt.Errorf("%w: debit and credit accounts are required", ErrInvalidEntry)
	}
	if p.DebitAccountID == p.CreditAccountID {
		return fmt.Errorf("%w: debit and credit accounts must differ", ErrInvalidEntry)
	}
	if strings.TrimSpace(p.VoucherNumber) == "" {
		return fmt.Errorf("%w: voucher number is required", ErrInvalidEntry)
	}
	if !p.VoucherType.Valid() {
		return fmt.Errorf("%w: unknown voucher type %q", ErrInvalidEntry, p.VoucherType)
	}
	if p.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidEntry)
	}
	return nil
}

// QueryFilter narrows entry listings. AccountID matches either side.
type QueryFilter struct {
	AccountID     int64
	From          *time.Time
	To            *time.Time
	VoucherType   VoucherType
	VoucherNumber string
	BillID        int64
	Page          int
	PerPage       int
}

// Page is one page of entries, newest first.
type Page struct {
	Entries    []Entry           `json:"entries"`
	Pagination shared.Pagination `json:"pagination"`
}

// PostRequest is the JSON payload for a manual posting.
type PostRequest struct {
	Date            string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	VoucherNumber   string          `json:"voucher_number" validate:"omitempty,max=40"`
	VoucherType     VoucherType     `json:"voucher_type" validate:"omitempty,oneof=SALES PURCHASE PAYMENT RECEIPT JOURNAL CONTRA DEBIT_NOTE CREDIT_NOTE"`
	DebitAccountID  int64           `json:"debit_account_id" validate:"required,gt=0"`
	CreditAccountID int64           `json:"credit_account_id" validate:"required,gt=0"`
	Amount          decimal.Decimal `json:"amount"`
	Narration       string          `json:"narration" validate:"max=500"`
	Reference       string          `json:"reference" validate:"max=120"`
	Links
}

// ReverseInput requests a reversing entry.
type ReverseInput struct {
	EntryID   int64
	Date      time.Time
	Narration string
	CreatedBy int64
}

var (
	// ErrInvalidEntry indicates the entry violates an invariant; nothing was appended.
	ErrInvalidEntry = fmt.Errorf("ledger: %w: invalid entry", shared.ErrValidation)
	// ErrAccountUnavailable indicates a missing or retired account.
	ErrAccountUnavailable = fmt.Errorf("ledger: %w: account unavailable", shared.ErrValidation)
	// ErrEntryNotFound indicates missing entry.
	ErrEntryNotFound = fmt.Errorf("ledger: entry %w", shared.ErrNotFound)
	// ErrAlreadyReversed indicates the entry already has a reversal.
	ErrAlreadyReversed = fmt.Errorf("ledger: %w: entry already reversed", shared.ErrConflict)
	// ErrLinkedDocumentNotFound indicates a bill, purchase or expense link
	// that names no stored document.
	ErrLinkedDocumentNotFound = fmt.Errorf("ledger: linked document %w", shared.ErrNotFound)
	// ErrReversalOfReversal indicates an attempt to reverse a reversing entry.
	ErrReversalOfReversal = fmt.Errorf("ledger: %w: reversing entries cannot be reversed", shared.ErrValidation)
)

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BuildReversal derives the entry that cancels orig.
func BuildReversal(orig Entry, txID uuid.UUID, date time.Time, narration string, by int64) PostingInput {
	if narration == "" {
		narration = fmt.Sprintf("Reversal of entry %d", orig.ID)
	}
	links := orig.Links
	id := orig.ID
	links.ReversesID = &id
	return PostingInput{
		TransactionID:   txID,
		Date:            Day(date),
		VoucherNumber:   orig.VoucherNumber,
		VoucherType:     orig.VoucherType,
		DebitAccountID:  orig.CreditAccountID,
		CreditAccountID: orig.DebitAccountID,
		Amount:          orig.Amount,
		Narration:       narration,
		Reference:       orig.Reference,
		Links:           links,
		CreatedBy:       by,
	}
}
