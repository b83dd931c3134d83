package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retail-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/retail-ledger/internal/platform/db"
	"github.com/odyssey-erp/retail-ledger/internal/sequence"
	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

// Kind names a numbered document type.
type Kind string

const (
	KindBill     Kind = "bill"
	KindOrder    Kind = "order"
	KindPurchase Kind = "purchase"
	KindExpense  Kind = "expense"
)

// TxRepository exposes the operations of one document transaction.
type TxRepository interface {
	NextNumber(ctx context.Context, prefix string) (string, error)
	ClaimIdempotencyKey(ctx context.Context, key string, kind Kind) error

	InsertBill(ctx context.Context, b Bill) (Bill, error)
	LockBill(ctx context.Context, id int64) (Bill, error)
	SetBillStatus(ctx context.Context, id int64, status BillStatus) error
	ReviseBill(ctx context.Context, b Bill) (Bill, error)

	InsertOrder(ctx context.Context, o Order) (Order, error)
	LockOrder(ctx context.Context, id int64) (Order, error)
	SetOrderStatus(ctx context.Context, id int64, status OrderStatus, billID *int64) error

	InsertPurchase(ctx context.Context, p Purchase) (Purchase, error)
	InsertExpense(ctx context.Context, e Expense) (Expense, error)

	AppendEntries(ctx context.Context, ins []ledger.PostingInput) ([]ledger.Entry, error)
	BillEntries(ctx context.Context, billID int64) ([]ledger.Entry, error)
	ReversalOf(ctx context.Context, entryID int64) (int64, bool, error)
}

// RepositoryPort abstracts document persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBill(ctx context.Context, id int64) (Bill, error)
	ListBills(ctx context.Context, f BillFilter) ([]Bill, int, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error)
	ListPurchases(ctx context.Context, f PurchaseFilter) ([]Purchase, int, error)
	ListExpenses(ctx context.Context, f ExpenseFilter) ([]Expense, int, error)
	Numbers(ctx context.Context, kind Kind, prefix string) ([]string, error)
}

// Repository is the PostgreSQL RepositoryPort.
type Repository struct {
	pool   db.DBTX
	runner *db.Runner
	seq    *sequence.Service
}

// NewRepository constructs Repository.
func NewRepository(pool db.DBTX, runner *db.Runner, seq *sequence.Service) *Repository {
	return &Repository{pool: pool, runner: runner, seq: seq}
}

// WithTx runs fn in a retried repeatable-read transaction. Numbers, the
// document, its lines and its entries commit or roll back together.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.runner == nil {
		return errors.New("documents repository not initialised")
	}
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			q:        tx,
			ledger:   ledger.NewStore(tx),
			seqStore: sequence.NewStore(tx),
			seq:      r.seq,
			idem:     shared.NewIdempotencyStore(tx),
		})
	})
}

type txRepository struct {
	q        db.DBTX
	ledger   *ledger.Store
	seqStore sequence.Store
	seq      *sequence.Service
	idem     *shared.IdempotencyStore
}

func (t *txRepository) NextNumber(ctx context.Context, prefix string) (string, error) {
	if t.seq != nil {
		return t.seq.NextTx(ctx, t.seqStore, prefix)
	}
	return sequence.Allocate(ctx, t.seqStore, prefix)
}

func (t *txRepository) ClaimIdempotencyKey(ctx context.Context, key string, kind Kind) error {
	return t.idem.Claim(ctx, "documents."+string(kind), key)
}

func (t *txRepository) AppendEntries(ctx context.Context, ins []ledger.PostingInput) ([]ledger.Entry, error) {
	return t.ledger.AppendAll(ctx, ins)
}

func (t *txRepository) BillEntries(ctx context.Context, billID int64) ([]ledger.Entry, error) {
	return t.ledger.ForBill(ctx, billID)
}

func (t *txRepository) ReversalOf(ctx context.Context, entryID int64) (int64, bool, error) {
	return t.ledger.ReversalOf(ctx, entryID)
}

// ============================================================================
// BILLS
// ============================================================================

const billColumns = `id, bill_number, bill_date, customer_id, order_id, subtotal::text, discount::text, tax_amount::text,
total::text, paid_amount::text, balance_amount::text, payment_mode, status, notes, created_by, created_at`

func (t *txRepository) InsertBill(ctx context.Context, b Bill) (Bill, error) {
	row := t.q.QueryRow(ctx, `INSERT INTO bills (bill_number, bill_date, customer_id, order_id, subtotal, discount, tax_amount,
total, paid_amount, balance_amount, payment_mode, status, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING `+billColumns,
		b.BillNumber, ledger.Day(b.BillDate), b.CustomerID, b.OrderID, fixed(b.Subtotal), fixed(b.Discount), fixed(b.TaxAmount),
		fixed(b.Total), fixed(b.PaidAmount), fixed(b.BalanceAmount), string(b.PaymentMode), string(b.Status), b.Notes, b.CreatedBy)
	out, err := scanBill(row)
	if err != nil {
		if db.IsUniqueViolation(err, "bills_bill_number_key") {
			return Bill{}, fmt.Errorf("documents: %w: bill number %s already used", shared.ErrConsistency, b.BillNumber)
		}
		return Bill{}, fmt.Errorf("documents: insert bill: %w", err)
	}
	if out.Lines, err = insertLines(ctx, t.q, linesBill, out.ID, b.Lines); err != nil {
		return Bill{}, err
	}
	return out, nil
}

func (t *txRepository) LockBill(ctx context.Context, id int64) (Bill, error) {
	return getBill(ctx, t.q, id, true)
}

func (t *txRepository) SetBillStatus(ctx context.Context, id int64, status BillStatus) error {
	tag, err := t.q.Exec(ctx, `UPDATE bills SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBillNotFound
	}
	return nil
}

// ReviseBill rewrites the header amounts of b and replaces its lines.
func (t *txRepository) ReviseBill(ctx context.Context, b Bill) (Bill, error) {
	row := t.q.QueryRow(ctx, `UPDATE bills SET customer_id = $2, subtotal = $3, discount = $4, tax_amount = $5, total = $6,
paid_amount = $7, balance_amount = $8, payment_mode = $9, notes = $10 WHERE id = $1 RETURNING `+billColumns,
		b.ID, b.CustomerID, fixed(b.Subtotal), fixed(b.Discount), fixed(b.TaxAmount), fixed(b.Total),
		fixed(b.PaidAmount), fixed(b.BalanceAmount), string(b.PaymentMode), b.Notes)
	out, err := scanBill(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Bill{}, ErrBillNotFound
	}
	if err != nil {
		return Bill{}, fmt.Errorf("documents: revise bill: %w", err)
	}
	if _, err := t.q.Exec(ctx, `DELETE FROM bill_lines WHERE bill_id = $1`, b.ID); err != nil {
		return Bill{}, fmt.Errorf("documents: clear bill lines: %w", err)
	}
	if out.Lines, err = insertLines(ctx, t.q, linesBill, out.ID, b.Lines); err != nil {
		return Bill{}, err
	}
	return out, nil
}

// GetBill loads a bill with its lines.
func (r *Repository) GetBill(ctx context.Context, id int64) (Bill, error) {
	return getBill(ctx, r.pool, id, false)
}

func getBill(ctx context.Context, q db.DBTX, id int64, forUpdate bool) (Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	b, err := scanBill(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Bill{}, ErrBillNotFound
	}
	if err != nil {
		return Bill{}, err
	}
	if b.Lines, err = loadLines(ctx, q, linesBill, id); err != nil {
		return Bill{}, err
	}
	return b, nil
}

// ListBills returns bill headers, newest first.
func (r *Repository) ListBills(ctx context.Context, f BillFilter) ([]Bill, int, error) {
	w := &where{}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := w.arg("%" + s + "%")
		w.add(fmt.Sprintf("(bill_number ILIKE %s OR notes ILIKE %s)", p, p))
	}
	if f.CustomerID > 0 {
		w.add("customer_id = " + w.arg(f.CustomerID))
	}
	if f.From != nil {
		w.add("bill_date >= " + w.arg(ledger.Day(*f.From)))
	}
	if f.To != nil {
		w.add("bill_date <= " + w.arg(ledger.Day(*f.To)))
	}
	total, err := w.count(ctx, r.pool, "bills")
	if err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + billColumns + ` FROM bills` + w.clause() + ` ORDER BY bill_date DESC, id DESC`
	query += w.page(f.Page, f.PerPage)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows, scanBill)
	return out, total, err
}

func scanBill(row pgx.Row) (Bill, error) {
	var (
		b            Bill
		mode, status string
		d            decimals
	)
	err := row.Scan(&b.ID, &b.BillNumber, &b.BillDate, &b.CustomerID, &b.OrderID,
		d.col(&b.Subtotal), d.col(&b.Discount), d.col(&b.TaxAmount), d.col(&b.Total),
		d.col(&b.PaidAmount), d.col(&b.BalanceAmount), &mode, &status, &b.Notes, &b.CreatedBy, &b.CreatedAt)
	if err != nil {
		return Bill{}, err
	}
	b.PaymentMode, b.Status = PaymentMode(mode), BillStatus(status)
	return b, d.parse()
}

// ============================================================================
// ORDERS
// ============================================================================

const orderColumns = `id, order_number, order_date, customer_id, delivery_date, subtotal::text, discount::text,
tax_amount::text, total::text, status, bill_id, notes, created_by, created_at, updated_at`

func (t *txRepository) InsertOrder(ctx context.Context, o Order) (Order, error) {
	var delivery *time.Time
	if o.DeliveryDate != nil {
		d := ledger.Day(*o.DeliveryDate)
		delivery = &d
	}
	row := t.q.QueryRow(ctx, `INSERT INTO orders (order_number, order_date, customer_id, delivery_date, subtotal, discount,
tax_amount, total, status, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING `+orderColumns,
		o.OrderNumber, ledger.Day(o.OrderDate), o.CustomerID, delivery, fixed(o.Subtotal), fixed(o.Discount),
		fixed(o.TaxAmount), fixed(o.Total), string(o.Status), o.Notes, o.CreatedBy)
	out, err := scanOrder(row)
	if err != nil {
		if db.IsUniqueViolation(err, "orders_order_number_key") {
			return Order{}, fmt.Errorf("documents: %w: order number %s already used", shared.ErrConsistency, o.OrderNumber)
		}
		return Order{}, fmt.Errorf("documents: insert order: %w", err)
	}
	if out.Lines, err = insertLines(ctx, t.q, linesOrder, out.ID, o.Lines); err != nil {
		return Order{}, err
	}
	return out, nil
}

func (t *txRepository) LockOrder(ctx context.Context, id int64) (Order, error) {
	return getOrder(ctx, t.q, id, true)
}

func (t *txRepository) SetOrderStatus(ctx context.Context, id int64, status OrderStatus, billID *int64) error {
	tag, err := t.q.Exec(ctx, `UPDATE orders SET status = $2, bill_id = COALESCE($3, bill_id), updated_at = NOW() WHERE id = $1`,
		id, string(status), billID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// GetOrder loads an order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return getOrder(ctx, r.pool, id, false)
}

func getOrder(ctx context.Context, q db.DBTX, id int64, forUpdate bool) (Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if o.Lines, err = loadLines(ctx, q, linesOrder, id); err != nil {
		return Order{}, err
	}
	return o, nil
}

// ListOrders returns order headers, newest first.
func (r *Repository) ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error) {
	w := &where{}
	if f.Status != "" {
		w.add("status = " + w.arg(string(f.Status)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := w.arg("%" + s + "%")
		w.add(fmt.Sprintf("(order_number ILIKE %s OR notes ILIKE %s)", p, p))
	}
	total, err := w.count(ctx, r.pool, "orders")
	if err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + orderColumns + ` FROM orders` + w.clause() + ` ORDER BY order_date DESC, id DESC`
	query += w.page(f.Page, f.PerPage)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows, scanOrder)
	return out, total, err
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		status string
		d      decimals
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.OrderDate, &o.CustomerID, &o.DeliveryDate,
		d.col(&o.Subtotal), d.col(&o.Discount), d.col(&o.TaxAmount), d.col(&o.Total),
		&status, &o.BillID, &o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	o.Status = OrderStatus(status)
	return o, d.parse()
}

// ============================================================================
// PURCHASES
// ============================================================================

const purchaseColumns = `id, purchase_number, purchase_date, supplier_id, supplier_bill_number, subtotal::text,
discount::text, tax_amount::text, total::text, paid_amount::text, balance_amount::text, payment_mode, notes,
created_by, created_at`

func (t *txRepository) InsertPurchase(ctx context.Context, p Purchase) (Purchase, error) {
	row := t.q.QueryRow(ctx, `INSERT INTO purchases (purchase_number, purchase_date, supplier_id, supplier_bill_number,
subtotal, discount, tax_amount, total, paid_amount, balance_amount, payment_mode, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING `+purchaseColumns,
		p.PurchaseNumber, ledger.Day(p.PurchaseDate), p.SupplierID, p.SupplierBillNumber,
		fixed(p.Subtotal), fixed(p.Discount), fixed(p.TaxAmount), fixed(p.Total), fixed(p.PaidAmount), fixed(p.BalanceAmount),
		string(p.PaymentMode), p.Notes, p.CreatedBy)
	out, err := scanPurchase(row)
	if err != nil {
		if db.IsUniqueViolation(err, "purchases_purchase_number_key") {
			return Purchase{}, fmt.Errorf("documents: %w: purchase number %s already used", shared.ErrConsistency, p.PurchaseNumber)
		}
		return Purchase{}, fmt.Errorf("documents: insert purchase: %w", err)
	}
	if out.Lines, err = insertLines(ctx, t.q, linesPurchase, out.ID, p.Lines); err != nil {
		return Purchase{}, err
	}
	return out, nil
}

// ListPurchases returns purchase headers, newest first.
func (r *Repository) ListPurchases(ctx context.Context, f PurchaseFilter) ([]Purchase, int, error) {
	w := &where{}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := w.arg("%" + s + "%")
		w.add(fmt.Sprintf("(purchase_number ILIKE %s OR supplier_bill_number ILIKE %s)", p, p))
	}
	if f.SupplierID > 0 {
		w.add("supplier_id = " + w.arg(f.SupplierID))
	}
	total, err := w.count(ctx, r.pool, "purchases")
	if err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + purchaseColumns + ` FROM purchases` + w.clause() + ` ORDER BY purchase_date DESC, id DESC`
	query += w.page(f.Page, f.PerPage)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows, scanPurchase)
	return out, total, err
}

func scanPurchase(row pgx.Row) (Purchase, error) {
	var (
		p    Purchase
		mode string
		d    decimals
	)
	err := row.Scan(&p.ID, &p.PurchaseNumber, &p.PurchaseDate, &p.SupplierID, &p.SupplierBillNumber,
		d.col(&p.Subtotal), d.col(&p.Discount), d.col(&p.TaxAmount), d.col(&p.Total),
		d.col(&p.PaidAmount), d.col(&p.BalanceAmount), &mode, &p.Notes, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		return Purchase{}, err
	}
	p.PaymentMode = PaymentMode(mode)
	return p, d.parse()
}

// ============================================================================
// EXPENSES
// ============================================================================

const expenseColumns = `id, expense_number, expense_date, category, amount::text, description, payment_mode,
supplier_bill_number, notes, created_by, created_at`

func (t *txRepository) InsertExpense(ctx context.Context, e Expense) (Expense, error) {
	row := t.q.QueryRow(ctx, `INSERT INTO expenses (expense_number, expense_date, category, amount, description,
payment_mode, supplier_bill_number, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING `+expenseColumns,
		e.ExpenseNumber, ledger.Day(e.ExpenseDate), e.Category, fixed(e.Amount), e.Description,
		string(e.PaymentMode), e.SupplierBillNumber, e.Notes, e.CreatedBy)
	out, err := scanExpense(row)
	if err != nil {
		if db.IsUniqueViolation(err, "expenses_expense_number_key") {
			return Expense{}, fmt.Errorf("documents: %w: expense number %s already used", shared.ErrConsistency, e.ExpenseNumber)
		}
		return Expense{}, fmt.Errorf("documents: insert expense: %w", err)
	}
	return out, nil
}

// ListExpenses returns expenses, newest first.
func (r *Repository) ListExpenses(ctx context.Context, f ExpenseFilter) ([]Expense, int, error) {
	w := &where{}
	if c := strings.TrimSpace(f.Category); c != "" {
		w.add("category = " + w.arg(strings.ToLower(c)))
	}
	if f.From != nil {
		w.add("expense_date >= " + w.arg(ledger.Day(*f.From)))
	}
	if f.To != nil {
		w.add("expense_date <= " + w.arg(ledger.Day(*f.To)))
	}
	total, err := w.count(ctx, r.pool, "expenses")
	if err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + expenseColumns + ` FROM expenses` + w.clause() + ` ORDER BY expense_date DESC, id DESC`
	query += w.page(f.Page, f.PerPage)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows, scanExpense)
	return out, total, err
}

func scanExpense(row pgx.Row) (Expense, error) {
	var (
		e    Expense
		mode string
		d    decimals
	)
	err := row.Scan(&e.ID, &e.ExpenseNumber, &e.ExpenseDate, &e.Category, d.col(&e.Amount), &e.Description,
		&mode, &e.SupplierBillNumber, &e.Notes, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return Expense{}, err
	}
	e.PaymentMode = PaymentMode(mode)
	return e, d.parse()
}

// ============================================================================
// NUMBERS
// ============================================================================

// Numbers returns every stored document number of kind that starts with prefix.
func (r *Repository) Numbers(ctx context.Context, kind Kind, prefix string) ([]string, error) {
	var table, column string
	switch kind {
	case KindBill:
		table, column = "bills", "bill_number"
	case KindOrder:
		table, column = "orders", "order_number"
	case KindPurchase:
		table, column = "purchases", "purchase_number"
	case KindExpense:
		table, column = "expenses", "expense_number"
	default:
		return nil, fmt.Errorf("documents: %w: unknown kind %q", shared.ErrValidation, kind)
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE starts_with(%s, $1)`, column, table, column), prefix)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ============================================================================
// LINES
// ============================================================================

type lineTable struct {
	table, fk string
}

var (
	linesBill     = lineTable{table: "bill_lines", fk: "bill_id"}
	linesOrder    = lineTable{table: "order_lines", fk: "order_id"}
	linesPurchase = lineTable{table: "purchase_lines", fk: "purchase_id"}
)

func insertLines(ctx context.Context, q db.DBTX, lt lineTable, docID int64, lines []Line) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for i, l := range lines {
		err := q.QueryRow(ctx, fmt.Sprintf(`INSERT INTO %s (%s, line_no, product_id, description, quantity, rate, discount, amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`, lt.table, lt.fk),
			docID, i+1, l.ProductID, l.Description, l.Quantity.String(), l.Rate.String(), fixed(l.Discount), fixed(l.Amount)).Scan(&l.ID)
		if err != nil {
			return nil, fmt.Errorf("documents: insert %s: %w", lt.table, err)
		}
		out = append(out, l)
	}
	return out, nil
}

func loadLines(ctx context.Context, q db.DBTX, lt lineTable, docID int64) ([]Line, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT id, product_id, description, quantity::text, rate::text, discount::text, amount::text
FROM %s WHERE %s = $1 ORDER BY line_no`, lt.table, lt.fk), docID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (Line, error) {
		var (
			l Line
			d decimals
		)
		if err := row.Scan(&l.ID, &l.ProductID, &l.Description, d.col(&l.Quantity), d.col(&l.Rate), d.col(&l.Discount), d.col(&l.Amount)); err != nil {
			return Line{}, err
		}
		return l, d.parse()
	})
}

// ============================================================================
// HELPERS
// ============================================================================

func fixed(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// decimals collects ::text columns and parses them once the row is scanned.
type decimals struct {
	raw []*string
	dst []*decimal.Decimal
}

func (d *decimals) col(dst *decimal.Decimal) *string {
	s := new(string)
	d.raw = append(d.raw, s)
	d.dst = append(d.dst, dst)
	return s
}

func (d *decimals) parse() error {
	for i, s := range d.raw {
		v, err := decimal.NewFromString(*s)
		if err != nil {
			return fmt.Errorf("documents: parse decimal %q: %w", *s, err)
		}
		*d.dst[i] = v
	}
	return nil
}

type where struct {
	conds []string
	args  []any
}

func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *where) add(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *where) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *where) count(ctx context.Context, q db.DBTX, table string) (int, error) {
	var total int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+w.clause(), w.args...).Scan(&total)
	return total, err
}

// page appends LIMIT and OFFSET placeholders. Call it after count.
func (w *where) page(page, perPage int) string {
	page, perPage = shared.NormalizePage(page, perPage)
	limit := w.arg(perPage)
	offset := w.arg((page - 1) * perPage)
	return " LIMIT " + limit + " OFFSET " + offset
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
