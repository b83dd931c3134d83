package documents

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retail-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/retail-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

func TestValidateLinesToleratesRounding(t *testing.T) {
	sum, err := ValidateLines([]LineRequest{
		{Quantity: d("3"), Rate: d("33.33"), Amount: d("100")},
		{Quantity: d("1"), Rate: d("50"), Discount: d("5"), Amount: d("45")},
	})
	require.NoError(t, err)
	assert.True(t, sum.Equal(d("145")))

	_, err = ValidateLines([]LineRequest{{Quantity: d("3"), Rate: d("33.33"), Amount: d("100.02")}})
	require.ErrorIs(t, err, ErrInvalidDocument)

	_, err = ValidateLines([]LineRequest{{Quantity: d("1"), Rate: d("-1"), Amount: d("-1")}})
	require.ErrorIs(t, err, ErrInvalidDocument)
}

func TestValidateTotals(t *testing.T) {
	require.NoError(t, ValidateTotals(d("200"), Totals{Subtotal: d("200"), Discount: d("20"), TaxAmount: d("18"), Total: d("198")}))
	require.ErrorIs(t, ValidateTotals(d("200"), Totals{Subtotal: d("190"), Total: d("190")}), ErrInvalidDocument)
	require.ErrorIs(t, ValidateTotals(d("0"), Totals{}), ErrInvalidDocument)
	require.ErrorIs(t, ValidateTotals(d("10"), Totals{Subtotal: d("10"), Discount: d("-1"), Total: d("11")}), ErrInvalidDocument)
}

func TestValidatePayment(t *testing.T) {
	require.NoError(t, ValidatePayment(d("100"), d("0"), PaymentCredit))
	require.NoError(t, ValidatePayment(d("100"), d("100"), PaymentUPI))
	require.ErrorIs(t, ValidatePayment(d("100"), d("-1"), PaymentCash), shared.ErrValidation)
	require.ErrorIs(t, ValidatePayment(d("100"), d("10.005"), PaymentCash), shared.ErrValidation)
	require.ErrorIs(t, ValidatePayment(d("100"), d("1"), "CHEQUE"), shared.ErrValidation)
}

func TestPaymentModeSettlementKey(t *testing.T) {
	assert.Equal(t, mappings.KeyCash, PaymentCash.SettlementKey())
	assert.Equal(t, mappings.KeyCash, PaymentMode("").SettlementKey())
	for _, m := range []PaymentMode{PaymentCard, PaymentUPI, PaymentBankTransfer} {
		assert.Equal(t, mappings.KeyBank, m.SettlementKey())
	}
}

func TestBillPostingsBalance(t *testing.T) {
	customer := int64(4)
	bill := Bill{
		ID:            11,
		BillNumber:    "INV0042",
		BillDate:      time.Date(2024, 5, 2, 18, 30, 0, 0, time.UTC),
		CustomerID:    &customer,
		Totals:        Totals{Subtotal: d("1000"), Total: d("1000")},
		PaidAmount:    d("600.50"),
		BalanceAmount: d("399.50"),
		PaymentMode:   PaymentCard,
		CreatedBy:     7,
	}
	txID := uuid.New()
	postings, err := BillPostings(chart(), bill, txID)
	require.NoError(t, err)
	require.Len(t, postings, 2)

	total := decimal.Zero
	for _, p := range postings {
		require.NoError(t, p.Validate())
		assert.Equal(t, acctSales, p.CreditAccountID)
		assert.Equal(t, txID, p.TransactionID)
		assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), p.Date)
		assert.Equal(t, &customer, p.Links.CustomerID)
		total = total.Add(p.Amount)
	}
	assert.True(t, total.Equal(bill.Total))
	assert.Equal(t, acctBank, postings[0].DebitAccountID)
	assert.Equal(t, acctReceivables, postings[1].DebitAccountID)
	assert.Contains(t, postings[1].Narration, "on credit")
}

func TestPurchasePostingsCarrySupplierReference(t *testing.T) {
	p := Purchase{
		ID:                 3,
		PurchaseNumber:     "PUR0003",
		PurchaseDate:       testDay,
		SupplierBillNumber: "S-19",
		Totals:             Totals{Total: d("90")},
		BalanceAmount:      d("90"),
		PaymentMode:        PaymentCredit,
	}
	postings, err := PurchasePostings(chart(), p, uuid.New())
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, acctPurchases, postings[0].DebitAccountID)
	assert.Equal(t, acctPayables, postings[0].CreditAccountID)
	assert.Equal(t, "S-19", postings[0].Reference)
	assert.Equal(t, ledger.VoucherPurchase, postings[0].VoucherType)
}

func TestPostingsFailOnMissingMapping(t *testing.T) {
	empty := mappings.NewSet(nil)
	_, err := BillPostings(empty, Bill{BillNumber: "INV0001", PaidAmount: d("1"), PaymentMode: PaymentCash}, uuid.New())
	require.ErrorIs(t, err, mappings.ErrMappingNotFound)
	require.ErrorIs(t, err, shared.ErrConsistency)

	_, err = ExpensePostings(empty, Expense{ExpenseNumber: "EXP0001", Category: "rent", Amount: d("1")}, uuid.New())
	require.ErrorIs(t, err, shared.ErrConsistency)
}
