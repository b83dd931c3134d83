package documents

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retail-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/retail-ledger/internal/accounting/mappings"
)

// tolerance absorbs rounding in client-computed amounts.
var tolerance = decimal.RequireFromString("0.01")

func within(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

func money(d decimal.Decimal) bool {
	return d.Round(2).Equal(d)
}

// ValidateLines checks each line: quantity > 0, rate and discount not
// negative, and amount = quantity × rate − discount. It returns the sum of
// line amounts.
func ValidateLines(lines []LineRequest) (decimal.Decimal, error) {
	sum := decimal.Zero
	if len(lines) == 0 {
		return sum, fmt.Errorf("%w: at least one line required", ErrInvalidDocument)
	}
	for i, l := range lines {
		switch {
		case l.Quantity.Sign() <= 0:
			return sum, fmt.Errorf("%w: line %d quantity must be greater than zero", ErrInvalidDocument, i+1)
		case l.Rate.Sign() < 0, l.Discount.Sign() < 0, l.Amount.Sign() < 0:
			return sum, fmt.Errorf("%w: line %d amounts must not be negative", ErrInvalidDocument, i+1)
		case !within(l.Amount, l.Quantity.Mul(l.Rate).Sub(l.Discount)):
			return sum, fmt.Errorf("%w: line %d amount must equal quantity x rate - discount", ErrInvalidDocument, i+1)
		}
		sum = sum.Add(l.Amount)
	}
	return sum, nil
}

// ValidateTotals checks the header arithmetic against the line sum.
func ValidateTotals(lineSum decimal.Decimal, t Totals) error {
	for name, v := range map[string]decimal.Decimal{"subtotal": t.Subtotal, "discount": t.Discount, "tax_amount": t.TaxAmount} {
		if v.Sign() < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidDocument, name)
		}
	}
	if t.Total.Sign() <= 0 {
		return fmt.Errorf("%w: total must be greater than zero", ErrInvalidDocument)
	}
	if !money(t.Total) {
		return fmt.Errorf("%w: total has more than two decimal places", ErrInvalidDocument)
	}
	if !within(t.Subtotal, lineSum) {
		return fmt.Errorf("%w: subtotal must equal the sum of line amounts", ErrInvalidDocument)
	}
	if !within(t.Total, t.Subtotal.Sub(t.Discount).Add(t.TaxAmount)) {
		return fmt.Errorf("%w: total must equal subtotal - discount + tax", ErrInvalidDocument)
	}
	return nil
}

// ValidatePayment checks 0 <= paid <= total and that CREDIT documents carry
// no settled part.
func ValidatePayment(total, paid decimal.Decimal, mode PaymentMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown payment mode %q", ErrInvalidDocument, mode)
	}
	if paid.Sign() < 0 || paid.GreaterThan(total) {
		return fmt.Errorf("%w: paid amount must be between 0 and total", ErrInvalidDocument)
	}
	if !money(paid) {
		return fmt.Errorf("%w: paid amount has more than two decimal places", ErrInvalidDocument)
	}
	if mode == PaymentCredit && !paid.IsZero() {
		return fmt.Errorf("%w: credit documents cannot carry a paid amount", ErrInvalidDocument)
	}
	return nil
}

type leg struct {
	debit, credit string
	amount        decimal.Decimal
	narration     string
}

func buildPostings(set mappings.Set, legs []leg, base ledger.PostingInput) ([]ledger.PostingInput, error) {
	var out []ledger.PostingInput
	for _, l := range legs {
		if l.amount.Sign() <= 0 {
			continue
		}
		debit, err := set.Resolve(l.debit)
		if err != nil {
			return nil, err
		}
		credit, err := set.Resolve(l.credit)
		if err != nil {
			return nil, err
		}
		p := base
		p.DebitAccountID = debit
		p.CreditAccountID = credit
		p.Amount = l.amount
		p.Narration = l.narration
		out = append(out, p)
	}
	return out, nil
}

// BillPostings derives the SALES entries of a bill: the settled part debits
// cash or bank, the outstanding part debits receivables, both credit sales.
func BillPostings(set mappings.Set, b Bill, txID uuid.UUID) ([]ledger.PostingInput, error) {
	id := b.ID
	base := ledger.PostingInput{
		TransactionID: txID,
		Date:          ledger.Day(b.BillDate),
		VoucherNumber: b.BillNumber,
		VoucherType:   ledger.VoucherSales,
		Links:         ledger.Links{BillID: &id, CustomerID: b.CustomerID},
		CreatedBy:     b.CreatedBy,
	}
	return buildPostings(set, []leg{
		{debit: b.PaymentMode.SettlementKey(), credit: mappings.KeySales, amount: b.PaidAmount,
			narration: fmt.Sprintf("Sales bill %s", b.BillNumber)},
		{debit: mappings.KeyReceivables, credit: mappings.KeySales, amount: b.BalanceAmount,
			narration: fmt.Sprintf("Sales bill %s (on credit)", b.BillNumber)},
	}, base)
}

// PurchasePostings derives the PURCHASE entries of a purchase: purchases are
// debited against cash or bank for the settled part and payables for the rest.
func PurchasePostings(set mappings.Set, p Purchase, txID uuid.UUID) ([]ledger.PostingInput, error) {
	id := p.ID
	base := ledger.PostingInput{
		TransactionID: txID,
		Date:          ledger.Day(p.PurchaseDate),
		VoucherNumber: p.PurchaseNumber,
		VoucherType:   ledger.VoucherPurchase,
		Reference:     p.SupplierBillNumber,
		Links:         ledger.Links{PurchaseID: &id, SupplierID: p.SupplierID},
		CreatedBy:     p.CreatedBy,
	}
	return buildPostings(set, []leg{
		{debit: mappings.KeyPurchases, credit: p.PaymentMode.SettlementKey(), amount: p.PaidAmount,
			narration: fmt.Sprintf("Purchase %s", p.PurchaseNumber)},
		{debit: mappings.KeyPurchases, credit: mappings.KeyPayables, amount: p.BalanceAmount,
			narration: fmt.Sprintf("Purchase %s (on credit)", p.PurchaseNumber)},
	}, base)
}

// ExpensePostings derives the PAYMENT entry of an expense, debiting the
// category's expense account.
func ExpensePostings(set mappings.Set, e Expense, txID uuid.UUID) ([]ledger.PostingInput, error) {
	debit, err := set.ResolveExpense(e.Category)
	if err != nil {
		return nil, err
	}
	credit, err := set.Resolve(e.PaymentMode.SettlementKey())
	if err != nil {
		return nil, err
	}
	id := e.ID
	return []ledger.PostingInput{{
		TransactionID:   txID,
		Date:            ledger.Day(e.ExpenseDate),
		VoucherNumber:   e.ExpenseNumber,
		VoucherType:     ledger.VoucherPayment,
		DebitAccountID:  debit,
		CreditAccountID: credit,
		Amount:          e.Amount,
		Narration:       fmt.Sprintf("Expense %s: %s", e.ExpenseNumber, e.Description),
		Reference:       e.SupplierBillNumber,
		Links:           ledger.Links{ExpenseID: &id},
		CreatedBy:       e.CreatedBy,
	}}, nil
}

func toLines(reqs []LineRequest) []Line {
	out := make([]Line, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, Line{
			ProductID:   r.ProductID,
			Description: r.Description,
			Quantity:    r.Quantity,
			Rate:        r.Rate,
			Discount:    r.Discount,
			Amount:      r.Amount,
		})
	}
	return out
}
