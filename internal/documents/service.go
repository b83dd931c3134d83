package documents

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/retail-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/retail-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

// AuditPort records document events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates document creation with numbering and ledger postings.
type Service struct {
	repo     RepositoryPort
	accounts mappings.Set
	prefixes Prefixes
	audit    AuditPort
	hooks    ledger.Hooks
	validate *validator.Validate
	now      func() time.Time
}

// NewService wires the coordinator. accounts is the mapping snapshot loaded
// at startup.
func NewService(repo RepositoryPort, accounts mappings.Set, prefixes Prefixes, audit AuditPort, hooks ledger.Hooks) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		prefixes: prefixes,
		audit:    audit,
		hooks:    hooks,
		validate: validator.New(),
		now:      time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateBill numbers a sales bill, stores it and posts its SALES entries in
// one transaction.
func (s *Service) CreateBill(ctx context.Context, req CreateBillRequest) (Bill, error) {
	actor, err := s.prepare(ctx, req)
	if err != nil {
		return Bill{}, err
	}
	date, err := s.date(req.Date)
	if err != nil {
		return Bill{}, err
	}
	lineSum, err := ValidateLines(req.Lines)
	if err != nil {
		return Bill{}, err
	}
	totals := Totals{Subtotal: req.Subtotal, Discount: req.Discount, TaxAmount: req.TaxAmount, Total: req.Total}
	if err := ValidateTotals(lineSum, totals); err != nil {
		return Bill{}, err
	}
	mode := modeOrCash(req.PaymentMode)
	if err := ValidatePayment(req.Total, req.PaidAmount, mode); err != nil {
		return Bill{}, err
	}
	draft := Bill{
		BillDate:      date,
		CustomerID:    req.CustomerID,
		Totals:        totals,
		PaidAmount:    req.PaidAmount,
		BalanceAmount: req.Total.Sub(req.PaidAmount),
		PaymentMode:   mode,
		Status:        BillCompleted,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedBy:     actor,
		Lines:         toLines(req.Lines),
	}

	var bill Bill
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := claim(ctx, tx, req.IdempotencyKey, KindBill); err != nil {
			return err
		}
		var err error
		bill, err = s.postBill(ctx, tx, draft)
		return err
	})
	if err != nil {
		return Bill{}, err
	}
	s.hooks.NumberIssued(s.prefixes.Bill)
	s.committed(ctx, "documents.bill.create", "bill", bill.ID, bill.Entries, map[string]any{
		"bill_number": bill.BillNumber,
		"total":       bill.Total.StringFixed(2),
	})
	return bill, nil
}

// postBill numbers and inserts draft and appends its entries through tx.
func (s *Service) postBill(ctx context.Context, tx TxRepository, draft Bill) (Bill, error) {
	number, err := tx.NextNumber(ctx, s.prefixes.Bill)
	if err != nil {
		return Bill{}, fmt.Errorf("allocate bill number: %w", err)
	}
	draft.BillNumber = number
	bill, err := tx.InsertBill(ctx, draft)
	if err != nil {
		return Bill{}, err
	}
	postings, err := BillPostings(s.accounts, bill, uuid.New())
	if err != nil {
		return Bill{}, err
	}
	if bill.Entries, err = tx.AppendEntries(ctx, postings); err != nil {
		return Bill{}, err
	}
	return bill, nil
}

// CreateOrder numbers and stores a sales order. Orders have no ledger effect.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	actor, err := s.prepare(ctx, req)
	if err != nil {
		return Order{}, err
	}
	date, err := s.date(req.Date)
	if err != nil {
		return Order{}, err
	}
	var delivery *time.Time
	if req.DeliveryDate != "" {
		d, err := s.date(req.DeliveryDate)
		if err != nil {
			return Order{}, err
		}
		if d.Before(date) {
			return Order{}, fmt.Errorf("%w: delivery date precedes order date", ErrInvalidDocument)
		}
		delivery = &d
	}
	lineSum, err := ValidateLines(req.Lines)
	if err != nil {
		return Order{}, err
	}
	totals := Totals{Subtotal: req.Subtotal, Discount: req.Discount, TaxAmount: req.TaxAmount, Total: req.Total}
	if err := ValidateTotals(lineSum, totals); err != nil {
		return Order{}, err
	}

	var order Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := claim(ctx, tx, req.IdempotencyKey, KindOrder); err != nil {
			return err
		}
		number, err := tx.NextNumber(ctx, s.prefixes.Order)
		if err != nil {
			return fmt.Errorf("allocate order number: %w", err)
		}
		order, err = tx.InsertOrder(ctx, Order{
			OrderNumber:  number,
			OrderDate:    date,
			CustomerID:   req.CustomerID,
			DeliveryDate: delivery,
			Totals:       totals,
			Status:       OrderPending,
			Notes:        strings.TrimSpace(req.Notes),
			CreatedBy:    actor,
			Lines:        toLines(req.Lines),
		})
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.hooks.NumberIssued(s.prefixes.Order)
	s.committed(ctx, "documents.order.create", "order", order.ID, nil, map[string]any{"order_number": order.OrderNumber})
	return order, nil
}

// UpdateOrderStatus moves an order along PENDING -> CONFIRMED -> FULFILLED or
// cancels it while it is not terminal.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, next OrderStatus) (Order, error) {
	if _, ok := shared.ActorFromContext(ctx); !ok {
		return Order{}, unauthorized()
	}
	var (
		order Order
		prev  OrderStatus
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if !order.Status.CanTransition(next) {
			return fmt.Errorf("%w: order %s is %s, cannot become %s", ErrInvalidTransition, order.OrderNumber, order.Status, next)
		}
		return tx.SetOrderStatus(ctx, id, next, nil)
	})
	if err != nil {
		return Order{}, err
	}
	prev, order.Status = order.Status, next
	order.UpdatedAt = s.now()
	s.recordLater(ctx, "documents.order.status", "order", id, map[string]any{"from": string(prev), "to": string(next)})
	return order, nil
}

// ConvertOrderToBill bills a PENDING or CONFIRMED order and marks it
// FULFILLED in the same transaction.
func (s *Service) ConvertOrderToBill(ctx context.Context, orderID int64, req ConvertOrderRequest) (Bill, error) {
	actor, err := s.prepare(ctx, req)
	if err != nil {
		return Bill{}, err
	}
	date, err := s.date(req.Date)
	if err != nil {
		return Bill{}, err
	}
	mode := modeOrCash(req.PaymentMode)

	var bill Bill
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.Convertible() {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.OrderNumber, order.Status)
		}
		if err := ValidatePayment(order.Total, req.PaidAmount, mode); err != nil {
			return err
		}
		customer := order.CustomerID
		id := order.ID
		notes := strings.TrimSpace(req.Notes)
		if notes == "" {
			notes = "Order " + order.OrderNumber
		}
		lines := make([]Line, len(order.Lines))
		for i, l := range order.Lines {
			l.ID = 0
			lines[i] = l
		}
		bill, err = s.postBill(ctx, tx, Bill{
			BillDate:      date,
			CustomerID:    &customer,
			OrderID:       &id,
			Totals:        order.Totals,
			PaidAmount:    req.PaidAmount,
			BalanceAmount: order.Total.Sub(req.PaidAmount),
			PaymentMode:   mode,
			Status:        BillCompleted,
			Notes:         notes,
			CreatedBy:     actor,
			Lines:         lines,
		})
		if err != nil {
			return err
		}
		return tx.SetOrderStatus(ctx, orderID, OrderFulfilled, &bill.ID)
	})
	if err != nil {
		return Bill{}, err
	}
	s.hooks.NumberIssued(s.prefixes.Bill)
	s.committed(ctx, "documents.order.convert", "bill", bill.ID, bill.Entries, map[string]any{
		"bill_number": bill.BillNumber,
		"order_id":    orderID,
	})
	return bill, nil
}

// CancelBill marks a COMPLETED bill CANCELLED and reverses each of its
// entries that has not been reversed already.
func (s *Service) CancelBill(ctx context.Context, id int64, reason string) (Bill, error) {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return Bill{}, unauthorized()
	}
	date := s.now()
	var bill Bill
	var reversals []ledger.Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		bill, err = tx.LockBill(ctx, id)
		if err != nil {
			return err
		}
		if bill.Status != BillCompleted {
			return fmt.Errorf("%w: bill %s is %s", ErrInvalidTransition, bill.BillNumber, bill.Status)
		}
		narration := fmt.Sprintf("Cancellation of bill %s", bill.BillNumber)
		if r := strings.TrimSpace(reason); r != "" {
			narration += ": " + r
		}
		if reversals, err = reverseBill(ctx, tx, id, date, narration, actor); err != nil {
			return err
		}
		if err := tx.SetBillStatus(ctx, id, BillCancelled); err != nil {
			return err
		}
		bill.Status = BillCancelled
		bill.Entries = reversals
		return nil
	})
	if err != nil {
		return Bill{}, err
	}
	s.committed(ctx, "documents.bill.cancel", "bill", id, reversals, map[string]any{
		"bill_number": bill.BillNumber,
		"reversals":   len(reversals),
	})
	return bill, nil
}

// UpdateBill replaces the lines, totals and payment of a COMPLETED bill. The
// entries it carried are reversed and the revised amounts are posted again
// under the same bill number, all in one transaction.
func (s *Service) UpdateBill(ctx context.Context, id int64, req UpdateBillRequest) (Bill, error) {
	actor, err := s.prepare(ctx, req)
	if err != nil {
		return Bill{}, err
	}
	lineSum, err := ValidateLines(req.Lines)
	if err != nil {
		return Bill{}, err
	}
	totals := Totals{Subtotal: req.Subtotal, Discount: req.Discount, TaxAmount: req.TaxAmount, Total: req.Total}
	if err := ValidateTotals(lineSum, totals); err != nil {
		return Bill{}, err
	}
	mode := modeOrCash(req.PaymentMode)
	if err := ValidatePayment(req.Total, req.PaidAmount, mode); err != nil {
		return Bill{}, err
	}
	date := s.now()
	var (
		bill    Bill
		touched []ledger.Entry
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockBill(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != BillCompleted {
			return fmt.Errorf("%w: bill %s is %s", ErrInvalidTransition, current.BillNumber, current.Status)
		}
		revised := current
		revised.CustomerID = req.CustomerID
		revised.Totals = totals
		revised.PaidAmount = req.PaidAmount
		revised.BalanceAmount = req.Total.Sub(req.PaidAmount)
		revised.PaymentMode = mode
		revised.Notes = strings.TrimSpace(req.Notes)
		revised.Lines = toLines(req.Lines)
		if revised, err = tx.ReviseBill(ctx, revised); err != nil {
			return err
		}

		narration := fmt.Sprintf("Revision of bill %s", current.BillNumber)
		reversals, err := reverseBill(ctx, tx, id, date, narration, actor)
		if err != nil {
			return err
		}
		posting := revised
		posting.CreatedBy = actor
		inputs, err := BillPostings(s.accounts, posting, uuid.New())
		if err != nil {
			return err
		}
		if revised.Entries, err = tx.AppendEntries(ctx, inputs); err != nil {
			return err
		}
		bill = revised
		touched = append(reversals, revised.Entries...)
		return nil
	})
	if err != nil {
		return Bill{}, err
	}
	s.committed(ctx, "documents.bill.update", "bill", id, touched, map[string]any{
		"bill_number": bill.BillNumber,
		"total":       bill.Total.StringFixed(2),
		"reversals":   len(touched) - len(bill.Entries),
	})
	return bill, nil
}

// reverseBill reverses each entry of the bill that has no reversal yet. A
// reversal is never dated before the entry it offsets.
func reverseBill(ctx context.Context, tx TxRepository, billID int64, date time.Time, narration string, actor int64) ([]ledger.Entry, error) {
	entries, err := tx.BillEntries(ctx, billID)
	if err != nil {
		return nil, err
	}
	txID := uuid.New()
	var inputs []ledger.PostingInput
	for _, e := range entries {
		if _, reversed, err := tx.ReversalOf(ctx, e.ID); err != nil {
			return nil, err
		} else if reversed {
			continue
		}
		on := date
		if ledger.Day(on).Before(e.Date) {
			on = e.Date
		}
		inputs = append(inputs, ledger.BuildReversal(e, txID, on, narration, actor))
	}
	return tx.AppendEntries(ctx, inputs)
}

// CreatePurchase numbers a purchase, stores it and posts its PURCHASE entries.
func (s *Service) CreatePurchase(ctx context.Context, req CreatePurchaseRequest) (Purchase, error) {
	actor, err := s.prepare(ctx, req)
	if err != nil {
		return Purchase{}, err
	}
	date, err := s.date(req.Date)
	if err != nil {
		return Purchase{}, err
	}
	for i, l := range req.Lines {
		if strings.TrimSpace(l.Description) == "" {
			return Purchase{}, fmt.Errorf("%w: line %d item name required", ErrInvalidDocument, i+1)
		}
	}
	lineSum, err := ValidateLines(req.Lines)
	if err != nil {
		return Purchase{}, err
	}
	totals := Totals{Subtotal: req.Subtotal, Discount: req.Discount, TaxAmount: req.TaxAmount, Total: req.Total}
	if err := ValidateTotals(lineSum, totals); err != nil {
		return Purchase{}, err
	}
	mode := modeOrCash(req.PaymentMode)
	if err := ValidatePayment(req.Total, req.PaidAmount, mode); err != nil {
		return Purchase{}, err
	}

	var purchase Purchase
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := claim(ctx, tx, req.IdempotencyKey, KindPurchase); err != nil {
			return err
		}
		number, err := tx.NextNumber(ctx, s.prefixes.Purchase)
		if err != nil {
			return fmt.Errorf("allocate purchase number: %w", err)
		}
		purchase, err = tx.InsertPurchase(ctx, Purchase{
			PurchaseNumber:     number,
			PurchaseDate:       date,
			SupplierID:         req.SupplierID,
			SupplierBillNumber: strings.TrimSpace(req.SupplierBillNumber),
			Totals:             totals,
			PaidAmount:         req.PaidAmount,
			BalanceAmount:      req.Total.Sub(req.PaidAmount),
			PaymentMode:        mode,
			Notes:              strings.TrimSpace(req.Notes),
			CreatedBy:          actor,
			Lines:              toLines(req.Lines),
		})
		if err != nil {
			return err
		}
		postings, err := PurchasePostings(s.accounts, purchase, uuid.New())
		if err != nil {
			return err
		}
		purchase.Entries, err = tx.AppendEntries(ctx, postings)
		return err
	})
	if err != nil {
		return Purchase{}, err
	}
	s.hooks.NumberIssued(s.prefixes.Purchase)
	s.committed(ctx, "documents.purchase.create", "purchase", purchase.ID, purchase.Entries, map[string]any{
		"purchase_number": purchase.PurchaseNumber,
		"total":           purchase.Total.StringFixed(2),
	})
	return purchase, nil
}

// CreateExpense numbers an expense, stores it and posts its PAYMENT entry.
func (s *Service) CreateExpense(ctx context.Context, req CreateExpenseRequest) (Expense, error) {
	actor, err := s.prepare(ctx, req)
	if err != nil {
		return Expense{}, err
	}
	date, err := s.date(req.Date)
	if err != nil {
		return Expense{}, err
	}
	if req.Amount.Sign() <= 0 || !money(req.Amount) {
		return Expense{}, fmt.Errorf("%w: amount must be greater than zero with at most two decimal places", ErrInvalidDocument)
	}
	mode := modeOrCash(req.PaymentMode)
	if mode == PaymentCredit {
		return Expense{}, fmt.Errorf("%w: expenses cannot be on credit", ErrInvalidDocument)
	}

	var expense Expense
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := claim(ctx, tx, req.IdempotencyKey, KindExpense); err != nil {
			return err
		}
		number, err := tx.NextNumber(ctx, s.prefixes.Expense)
		if err != nil {
			return fmt.Errorf("allocate expense number: %w", err)
		}
		expense, err = tx.InsertExpense(ctx, Expense{
			ExpenseNumber:      number,
			ExpenseDate:        date,
			Category:           strings.ToLower(strings.TrimSpace(req.Category)),
			Amount:             req.Amount,
			Description:        strings.TrimSpace(req.Description),
			PaymentMode:        mode,
			SupplierBillNumber: strings.TrimSpace(req.SupplierBillNumber),
			Notes:              strings.TrimSpace(req.Notes),
			CreatedBy:          actor,
		})
		if err != nil {
			return err
		}
		postings, err := ExpensePostings(s.accounts, expense, uuid.New())
		if err != nil {
			return err
		}
		expense.Entries, err = tx.AppendEntries(ctx, postings)
		return err
	})
	if err != nil {
		return Expense{}, err
	}
	s.hooks.NumberIssued(s.prefixes.Expense)
	s.committed(ctx, "documents.expense.create", "expense", expense.ID, expense.Entries, map[string]any{
		"expense_number": expense.ExpenseNumber,
		"amount":         expense.Amount.StringFixed(2),
	})
	return expense, nil
}

// GetBill returns one bill with its lines.
func (s *Service) GetBill(ctx context.Context, id int64) (Bill, error) {
	return s.repo.GetBill(ctx, id)
}

// ListBills returns one page of bills.
func (s *Service) ListBills(ctx context.Context, f BillFilter) (Page[Bill], error) {
	if err := checkRange(f.From, f.To); err != nil {
		return Page[Bill]{}, err
	}
	f.Page, f.PerPage = shared.NormalizePage(f.Page, f.PerPage)
	items, total, err := s.repo.ListBills(ctx, f)
	return page(items, total, f.Page, f.PerPage, err)
}

// GetOrder returns one order with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns one page of orders.
func (s *Service) ListOrders(ctx context.Context, f OrderFilter) (Page[Order], error) {
	switch f.Status {
	case "", OrderPending, OrderConfirmed, OrderFulfilled, OrderCancelled:
	default:
		return Page[Order]{}, fmt.Errorf("%w: unknown order status %q", ErrInvalidDocument, f.Status)
	}
	f.Page, f.PerPage = shared.NormalizePage(f.Page, f.PerPage)
	items, total, err := s.repo.ListOrders(ctx, f)
	return page(items, total, f.Page, f.PerPage, err)
}

// ListPurchases returns one page of purchases.
func (s *Service) ListPurchases(ctx context.Context, f PurchaseFilter) (Page[Purchase], error) {
	f.Page, f.PerPage = shared.NormalizePage(f.Page, f.PerPage)
	items, total, err := s.repo.ListPurchases(ctx, f)
	return page(items, total, f.Page, f.PerPage, err)
}

// ListExpenses returns one page of expenses.
func (s *Service) ListExpenses(ctx context.Context, f ExpenseFilter) (Page[Expense], error) {
	if err := checkRange(f.From, f.To); err != nil {
		return Page[Expense]{}, err
	}
	f.Page, f.PerPage = shared.NormalizePage(f.Page, f.PerPage)
	items, total, err := s.repo.ListExpenses(ctx, f)
	return page(items, total, f.Page, f.PerPage, err)
}

// NumberSources returns the stored numbers per configured prefix, for
// raising counters after a data import.
func (s *Service) NumberSources(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string, 4)
	for kind, prefix := range map[Kind]string{
		KindBill:     s.prefixes.Bill,
		KindOrder:    s.prefixes.Order,
		KindPurchase: s.prefixes.Purchase,
		KindExpense:  s.prefixes.Expense,
	} {
		numbers, err := s.repo.Numbers(ctx, kind, prefix)
		if err != nil {
			return nil, fmt.Errorf("%s numbers: %w", kind, err)
		}
		out[prefix] = numbers
	}
	return out, nil
}

func (s *Service) prepare(ctx context.Context, req any) (int64, error) {
	if err := s.validate.Struct(req); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return 0, unauthorized()
	}
	return actor, nil
}

func (s *Service) date(raw string) (time.Time, error) {
	if raw == "" {
		return ledger.Day(s.now()), nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidDocument)
	}
	return d, nil
}

// committed runs the post-commit hooks and writes the audit record.
func (s *Service) committed(ctx context.Context, action, entity string, id int64, entries []ledger.Entry, meta map[string]any) {
	s.hooks.Committed(ctx, entries)
	s.recordLater(ctx, action, entity, id, meta)
}

func (s *Service) recordLater(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor, _ := shared.ActorFromContext(ctx)
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil && s.hooks.Logger != nil {
		s.hooks.Logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func claim(ctx context.Context, tx TxRepository, key string, kind Kind) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	return tx.ClaimIdempotencyKey(ctx, key, kind)
}

func modeOrCash(m PaymentMode) PaymentMode {
	if m == "" {
		return PaymentCash
	}
	return m
}

func checkRange(from, to *time.Time) error {
	if from != nil && to != nil && from.After(*to) {
		return fmt.Errorf("%w: from must not be after to", ErrInvalidDocument)
	}
	return nil
}

func page[T any](items []T, total, pageNo, perPage int, err error) (Page[T], error) {
	if err != nil {
		return Page[T]{}, err
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Pagination: shared.NewPagination(pageNo, perPage, total)}, nil
}

func unauthorized() error {
	return fmt.Errorf("documents: %w: acting user required", shared.ErrUnauthorized)
}
