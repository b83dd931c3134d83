// Package documents creates bills, orders, purchases and expenses together
// with their document numbers and ledger postings in one transaction.
package documents

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retail-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/retail-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/retail-ledger/internal/sequence"
	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

// ============================================================================
// COMMON
// ============================================================================

// PaymentMode is how a document was settled.
type PaymentMode string

const (
	PaymentCash         PaymentMode = "CASH"
	PaymentCard         PaymentMode = "CARD"
	PaymentUPI          PaymentMode = "UPI"
	PaymentBankTransfer PaymentMode = "BANK_TRANSFER"
	PaymentCredit       PaymentMode = "CREDIT"
)

// Valid reports whether m is a known payment mode.
func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentUPI, PaymentBankTransfer, PaymentCredit:
		return true
	}
	return false
}

// SettlementKey is the mapping key of the account that receives or pays out
// the settled part of a document.
func (m PaymentMode) SettlementKey() string {
	if m == PaymentCash || m == "" {
		return mappings.KeyCash
	}
	return mappings.KeyBank
}

// Prefixes are the numbering prefixes per document kind.
type Prefixes struct {
	Bill     string
	Order    string
	Purchase string
	Expense  string
}

// DefaultPrefixes match the original numbering scheme.
var DefaultPrefixes = Prefixes{Bill: "INV", Order: "ORD", Purchase: "PUR", Expense: "EXP"}

// Validate checks every prefix is usable and distinct.
func (p Prefixes) Validate() error {
	seen := map[string]bool{}
	for _, prefix := range []string{p.Bill, p.Order, p.Purchase, p.Expense} {
		if err := sequence.ValidatePrefix(prefix); err != nil {
			return err
		}
		if seen[prefix] {
			return fmt.Errorf("%w: prefix %q used twice", sequence.ErrInvalidPrefix, prefix)
		}
		seen[prefix] = true
	}
	return nil
}

// Line is one priced item of a document.
type Line struct {
	ID          int64           `json:"id"`
	ProductID   *int64          `json:"product_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Discount    decimal.Decimal `json:"discount"`
	Amount      decimal.Decimal `json:"amount"`
}

// LineRequest is a line in a create payload.
type LineRequest struct {
	ProductID   *int64          `json:"product_id,omitempty" validate:"omitempty,gt=0"`
	Description string          `json:"description" validate:"max=200"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Discount    decimal.Decimal `json:"discount"`
	Amount      decimal.Decimal `json:"amount"`
}

// Totals are the header amounts shared by every priced document.
type Totals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Total     decimal.Decimal `json:"total"`
}

// Page is one page of documents.
type Page[T any] struct {
	Items      []T               `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// ============================================================================
// BILL
// ============================================================================

// BillStatus tracks a sales bill.
type BillStatus string

const (
	BillCompleted BillStatus = "COMPLETED"
	BillCancelled BillStatus = "CANCELLED"
)

// Bill is a sales invoice.
type Bill struct {
	ID            int64           `json:"id"`
	BillNumber    string          `json:"bill_number"`
	BillDate      time.Time       `json:"bill_date"`
	CustomerID    *int64          `json:"customer_id,omitempty"`
	OrderID       *int64          `json:"order_id,omitempty"`
	Totals
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	BalanceAmount decimal.Decimal `json:"balance_amount"`
	PaymentMode   PaymentMode     `json:"payment_mode"`
	Status        BillStatus      `json:"status"`
	Notes         string          `json:"notes,omitempty"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	Lines         []Line          `json:"lines"`
	Entries       []ledger.Entry  `json:"entries,omitempty"`
}

// CreateBillRequest is the payload for a new bill.
type CreateBillRequest struct {
	CustomerID  *int64          `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	Date        string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Lines       []LineRequest   `json:"lines" validate:"required,min=1,dive"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	Total       decimal.Decimal `json:"total"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	PaymentMode PaymentMode     `json:"payment_mode" validate:"omitempty,oneof=CASH CARD UPI BANK_TRANSFER CREDIT"`
	Notes       string          `json:"notes" validate:"max=1000"`

	IdempotencyKey string `json:"-"`
}

// UpdateBillRequest revises a bill. The number, date and order link are kept.
type UpdateBillRequest struct {
	CustomerID  *int64          `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	Lines       []LineRequest   `json:"lines" validate:"required,min=1,dive"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	Total       decimal.Decimal `json:"total"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	PaymentMode PaymentMode     `json:"payment_mode" validate:"omitempty,oneof=CASH CARD UPI BANK_TRANSFER CREDIT"`
	Notes       string          `json:"notes" validate:"max=1000"`
}

// BillFilter narrows bill listings.
type BillFilter struct {
	Search     string
	CustomerID int64
	From       *time.Time
	To         *time.Time
	Page       int
	PerPage    int
}

// ============================================================================
// ORDER
// ============================================================================

// OrderStatus tracks a sales order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderFulfilled OrderStatus = "FULFILLED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderFulfilled || s == OrderCancelled
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch next {
	case OrderConfirmed:
		return s == OrderPending
	case OrderFulfilled:
		return s == OrderConfirmed
	case OrderCancelled:
		return !s.Terminal()
	}
	return false
}

// Convertible reports whether an order in status s may become a bill.
func (s OrderStatus) Convertible() bool {
	return s == OrderPending || s == OrderConfirmed
}

// Order is a customer commitment. It carries no ledger effect.
type Order struct {
	ID           int64       `json:"id"`
	OrderNumber  string      `json:"order_number"`
	OrderDate    time.Time   `json:"order_date"`
	CustomerID   int64       `json:"customer_id"`
	DeliveryDate *time.Time  `json:"delivery_date,omitempty"`
	Totals
	Status       OrderStatus `json:"status"`
	BillID       *int64      `json:"bill_id,omitempty"`
	Notes        string      `json:"notes,omitempty"`
	CreatedBy    int64       `json:"created_by"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Lines        []Line      `json:"lines"`
}

// CreateOrderRequest is the payload for a new order.
type CreateOrderRequest struct {
	CustomerID   int64           `json:"customer_id" validate:"required,gt=0"`
	Date         string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	DeliveryDate string          `json:"delivery_date" validate:"omitempty,datetime=2006-01-02"`
	Lines        []LineRequest   `json:"lines" validate:"required,min=1,dive"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	Total        decimal.Decimal `json:"total"`
	Notes        string          `json:"notes" validate:"max=1000"`

	IdempotencyKey string `json:"-"`
}

// ConvertOrderRequest settles an order into a bill.
type ConvertOrderRequest struct {
	Date        string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	PaymentMode PaymentMode     `json:"payment_mode" validate:"omitempty,oneof=CASH CARD UPI BANK_TRANSFER CREDIT"`
	Notes       string          `json:"notes" validate:"max=1000"`
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status  OrderStatus
	Search  string
	Page    int
	PerPage int
}

// ============================================================================
// PURCHASE
// ============================================================================

// Purchase is a supplier invoice.
type Purchase struct {
	ID                 int64           `json:"id"`
	PurchaseNumber     string          `json:"purchase_number"`
	PurchaseDate       time.Time       `json:"purchase_date"`
	SupplierID         *int64          `json:"supplier_id,omitempty"`
	SupplierBillNumber string          `json:"supplier_bill_number,omitempty"`
	Totals
	PaidAmount         decimal.Decimal `json:"paid_amount"`
	BalanceAmount      decimal.Decimal `json:"balance_amount"`
	PaymentMode        PaymentMode     `json:"payment_mode"`
	Notes              string          `json:"notes,omitempty"`
	CreatedBy          int64           `json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
	Lines              []Line          `json:"lines"`
	Entries            []ledger.Entry  `json:"entries,omitempty"`
}

// CreatePurchaseRequest is the payload for a new purchase. Lines must carry
// an item description.
type CreatePurchaseRequest struct {
	SupplierID         *int64          `json:"supplier_id,omitempty" validate:"omitempty,gt=0"`
	SupplierBillNumber string          `json:"supplier_bill_number" validate:"max=60"`
	Date               string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Lines              []LineRequest   `json:"lines" validate:"required,min=1,dive"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	Discount           decimal.Decimal `json:"discount"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	Total              decimal.Decimal `json:"total"`
	PaidAmount         decimal.Decimal `json:"paid_amount"`
	PaymentMode        PaymentMode     `json:"payment_mode" validate:"omitempty,oneof=CASH CARD UPI BANK_TRANSFER CREDIT"`
	Notes              string          `json:"notes" validate:"max=1000"`

	IdempotencyKey string `json:"-"`
}

// PurchaseFilter narrows purchase listings.
type PurchaseFilter struct {
	Search     string
	SupplierID int64
	Page       int
	PerPage    int
}

// ============================================================================
// EXPENSE
// ============================================================================

// Expense is a paid operating cost.
type Expense struct {
	ID                 int64           `json:"id"`
	ExpenseNumber      string          `json:"expense_number"`
	ExpenseDate        time.Time       `json:"expense_date"`
	Category           string          `json:"category"`
	Amount             decimal.Decimal `json:"amount"`
	Description        string          `json:"description"`
	PaymentMode        PaymentMode     `json:"payment_mode"`
	SupplierBillNumber string          `json:"supplier_bill_number,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	CreatedBy          int64           `json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
	Entries            []ledger.Entry  `json:"entries,omitempty"`
}

// CreateExpenseRequest is the payload for a new expense. Expenses are paid
// immediately, so CREDIT is not accepted.
type CreateExpenseRequest struct {
	Category           string          `json:"category" validate:"required,max=60"`
	Date               string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Amount             decimal.Decimal `json:"amount"`
	Description        string          `json:"description" validate:"required,min=2,max=500"`
	PaymentMode        PaymentMode     `json:"payment_mode" validate:"omitempty,oneof=CASH CARD UPI BANK_TRANSFER"`
	SupplierBillNumber string          `json:"supplier_bill_number" validate:"max=60"`
	Notes              string          `json:"notes" validate:"max=1000"`

	IdempotencyKey string `json:"-"`
}

// ExpenseFilter narrows expense listings.
type ExpenseFilter struct {
	Category string
	From     *time.Time
	To       *time.Time
	Page     int
	PerPage  int
}

var (
	// ErrInvalidDocument indicates malformed or inconsistent document amounts.
	ErrInvalidDocument = fmt.Errorf("documents: %w: invalid document", shared.ErrValidation)
	// ErrInvalidTransition indicates a status change the document cannot make.
	ErrInvalidTransition = fmt.Errorf("documents: %w: invalid status transition", shared.ErrConflict)
	// ErrBillNotFound indicates missing bill.
	ErrBillNotFound = fmt.Errorf("documents: bill %w", shared.ErrNotFound)
	// ErrOrderNotFound indicates missing order.
	ErrOrderNotFound = fmt.Errorf("documents: order %w", shared.ErrNotFound)
)
