package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retail-ledger/internal/platform/db"
	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

const entryColumns = `id, transaction_id, entry_date, voucher_number, voucher_type, debit_account_id, credit_account_id,
amount::text, narration, reference, customer_id, supplier_id, bill_id, purchase_id, expense_id, reverses_id, created_by, created_at`

// Store reads and appends ledger entries through q, which may be a pool or a
// transaction. It has no update or delete operations.
type Store struct {
	q db.DBTX
}

// NewStore binds a Store to q.
func NewStore(q db.DBTX) *Store {
	return &Store{q: q}
}

// Append validates in and inserts it. Both accounts must exist; they must
// also be active unless in reverses an earlier entry.
func (s *Store) Append(ctx context.Context, in PostingInput) (Entry, error) {
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	if err := s.checkAccounts(ctx, in); err != nil {
		return Entry{}, err
	}
	row := s.q.QueryRow(ctx, `INSERT INTO ledger_entries (transaction_id, entry_date, voucher_number, voucher_type, debit_account_id, credit_account_id,
amount, narration, reference, customer_id, supplier_id, bill_id, purchase_id, expense_id, reverses_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) RETURNING `+entryColumns,
		in.TransactionID, Day(in.Date), in.VoucherNumber, string(in.VoucherType), in.DebitAccountID, in.CreditAccountID,
		in.Amount.StringFixed(2), in.Narration, in.Reference,
		in.Links.CustomerID, in.Links.SupplierID, in.Links.BillID, in.Links.PurchaseID, in.Links.ExpenseID, in.Links.ReversesID,
		in.CreatedBy)
	entry, err := scanEntry(row)
	if err != nil {
		return Entry{}, insertError(err)
	}
	return entry, nil
}

// linkConstraints names the foreign keys behind the optional document links.
var linkConstraints = map[string]string{
	"ledger_entries_bill_id_fkey":     "bill",
	"ledger_entries_purchase_id_fkey": "purchase",
	"ledger_entries_expense_id_fkey":  "expense",
}

// insertError translates constraint failures of an entry insert into the
// ledger's error taxonomy.
func insertError(err error) error {
	if db.IsUniqueViolation(err, "ledger_entries_reverses_id_key") {
		return ErrAlreadyReversed
	}
	if db.IsForeignKeyViolation(err) {
		constraint := db.Constraint(err)
		if kind, ok := linkConstraints[constraint]; ok {
			return fmt.Errorf("%w: %s does not exist", ErrLinkedDocumentNotFound, kind)
		}
		if constraint == "ledger_entries_reverses_id_fkey" {
			return fmt.Errorf("%w: reversed entry does not exist", ErrEntryNotFound)
		}
	}
	return fmt.Errorf("ledger: insert entry: %w", err)
}

// AppendAll appends every input in order.
func (s *Store) AppendAll(ctx context.Context, ins []PostingInput) ([]Entry, error) {
	out := make([]Entry, 0, len(ins))
	for _, in := range ins {
		e, err := s.Append(ctx, in)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) checkAccounts(ctx context.Context, in PostingInput) error {
	// FOR SHARE blocks a concurrent retire until this transaction ends.
	rows, err := s.q.Query(ctx, `SELECT id, status FROM accounts WHERE id = ANY($1) FOR SHARE`, []int64{in.DebitAccountID, in.CreditAccountID})
	if err != nil {
		return err
	}
	defer rows.Close()
	found := make(map[int64]string, 2)
	for rows.Next() {
		var (
			id     int64
			status string
		)
		if err := rows.Scan(&id, &status); err != nil {
			return err
		}
		found[id] = status
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range []int64{in.DebitAccountID, in.CreditAccountID} {
		status, ok := found[id]
		if !ok {
			return fmt.Errorf("%w: account %d does not exist", ErrAccountUnavailable, id)
		}
		if status != "ACTIVE" && in.Links.ReversesID == nil {
			return fmt.Errorf("%w: account %d is retired", ErrAccountUnavailable, id)
		}
	}
	return nil
}

// Get loads one entry.
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	e, err := scanEntry(s.q.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, fmt.Errorf("%w: id %d", ErrEntryNotFound, id)
		}
		return Entry{}, err
	}
	return e, nil
}

// ReversalOf returns the id of the entry that reverses id, if any.
func (s *Store) ReversalOf(ctx context.Context, id int64) (int64, bool, error) {
	var reversal int64
	err := s.q.QueryRow(ctx, `SELECT id FROM ledger_entries WHERE reverses_id = $1`, id).Scan(&reversal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return reversal, true, nil
}

// ForBill returns the original (non-reversing) entries linked to a bill.
func (s *Store) ForBill(ctx context.Context, billID int64) ([]Entry, error) {
	return s.list(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE bill_id = $1 AND reverses_id IS NULL ORDER BY id`, billID)
}

// Query returns one page of entries ordered by date then id, newest first,
// and the total number of matches.
func (s *Store) Query(ctx context.Context, f QueryFilter) ([]Entry, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.AccountID > 0 {
		p := arg(f.AccountID)
		where = append(where, fmt.Sprintf("(debit_account_id = %s OR credit_account_id = %s)", p, p))
	}
	if f.From != nil {
		where = append(where, "entry_date >= "+arg(Day(*f.From)))
	}
	if f.To != nil {
		where = append(where, "entry_date <= "+arg(Day(*f.To)))
	}
	if f.VoucherType != "" {
		where = append(where, "voucher_type = "+arg(string(f.VoucherType)))
	}
	if f.VoucherNumber != "" {
		where = append(where, "voucher_number = "+arg(f.VoucherNumber))
	}
	if f.BillID > 0 {
		where = append(where, "bill_id = "+arg(f.BillID))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := arg(f.PerPage)
	offset := arg(shared.Pagination{Page: f.Page, PerPage: f.PerPage}.Offset())
	entries, err := s.list(ctx, `SELECT `+entryColumns+` FROM ledger_entries`+clause+
		` ORDER BY entry_date DESC, id DESC LIMIT `+limit+` OFFSET `+offset, args...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Sums returns the debit and credit totals of accountID up to and including asOf.
func (s *Store) Sums(ctx context.Context, accountID int64, asOf *time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var cutoff *time.Time
	if asOf != nil {
		d := Day(*asOf)
		cutoff = &d
	}
	var debit, credit string
	err := s.q.QueryRow(ctx, `SELECT
  COALESCE(SUM(amount) FILTER (WHERE debit_account_id = $1), 0)::text,
  COALESCE(SUM(amount) FILTER (WHERE credit_account_id = $1), 0)::text
FROM ledger_entries
WHERE (debit_account_id = $1 OR credit_account_id = $1) AND ($2::date IS NULL OR entry_date <= $2::date)`, accountID, cutoff).Scan(&debit, &credit)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	d, err := decimal.NewFromString(debit)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	c, err := decimal.NewFromString(credit)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return d, c, nil
}

// HasReferences reports whether any entry debits or credits accountID.
func (s *Store) HasReferences(ctx context.Context, accountID int64) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE debit_account_id = $1 OR credit_account_id = $1)`, accountID).Scan(&exists)
	return exists, err
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e      Entry
		vtype  string
		amount string
	)
	err := row.Scan(&e.ID, &e.TransactionID, &e.Date, &e.VoucherNumber, &vtype, &e.DebitAccountID, &e.CreditAccountID,
		&amount, &e.Narration, &e.Reference, &e.CustomerID, &e.SupplierID, &e.BillID, &e.PurchaseID, &e.ExpenseID, &e.ReversesID,
		&e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	e.VoucherType = VoucherType(vtype)
	e.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: parse amount of entry %d: %w", e.ID, err)
	}
	return e, nil
}
