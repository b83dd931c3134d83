package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retail-ledger/internal/platform/db"
	"github.com/odyssey-erp/retail-ledger/internal/sequence"
	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

// JournalPrefix numbers manual vouchers posted without a number.
const JournalPrefix = "JV"

// TxRepository exposes transactional ledger operations.
type TxRepository interface {
	Append(ctx context.Context, in PostingInput) (Entry, error)
	Get(ctx context.Context, id int64) (Entry, error)
	ReversalOf(ctx context.Context, id int64) (int64, bool, error)
	NextVoucherNumber(ctx context.Context, prefix string) (string, error)
}

// RepositoryPort abstracts ledger persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Query(ctx context.Context, f QueryFilter) ([]Entry, int, error)
	Sums(ctx context.Context, accountID int64, asOf *time.Time) (decimal.Decimal, decimal.Decimal, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Repository is the PostgreSQL RepositoryPort.
type Repository struct {
	pool   db.DBTX
	runner *db.Runner
	seq    *sequence.Service
}

// NewRepository constructs Repository. seq allocates voucher numbers for
// manual postings that arrive without one.
func NewRepository(pool db.DBTX, runner *db.Runner, seq *sequence.Service) *Repository {
	return &Repository{pool: pool, runner: runner, seq: seq}
}

// WithTx executes fn within repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.runner == nil {
		return errors.New("ledger repository not initialised")
	}
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{Store: NewStore(tx), seqStore: sequence.NewStore(tx), seq: r.seq})
	})
}

// Query lists entries outside a transaction.
func (r *Repository) Query(ctx context.Context, f QueryFilter) ([]Entry, int, error) {
	return NewStore(r.pool).Query(ctx, f)
}

// Sums aggregates one account in a single statement.
func (r *Repository) Sums(ctx context.Context, accountID int64, asOf *time.Time) (decimal.Decimal, decimal.Decimal, error) {
	return NewStore(r.pool).Sums(ctx, accountID, asOf)
}

type txRepository struct {
	*Store
	seqStore sequence.Store
	seq      *sequence.Service
}

func (r *txRepository) NextVoucherNumber(ctx context.Context, prefix string) (string, error) {
	if r.seq != nil {
		return r.seq.NextTx(ctx, r.seqStore, prefix)
	}
	return sequence.Allocate(ctx, r.seqStore, prefix)
}

// Invalidator drops cached derived data after ledger writes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Recorder receives posting events for metrics.
type Recorder interface {
	EntriesPosted(voucherType string, count int)
}

// NumberRecorder counts document numbers that were committed.
type NumberRecorder interface {
	SequenceAllocated(prefix string)
}

// Hooks run after a transaction that appended entries has committed.
// Failures are logged and never undo the write.
type Hooks struct {
	Cache   Invalidator
	Metrics Recorder
	Numbers NumberRecorder
	Logger  *slog.Logger
}

// NumberIssued reports a number allocated inside a transaction that has
// since committed.
func (h Hooks) NumberIssued(prefix string) {
	if h.Numbers != nil && prefix != "" {
		h.Numbers.SequenceAllocated(prefix)
	}
}

// Committed notifies observers about entries that are now durable.
func (h Hooks) Committed(ctx context.Context, entries []Entry) {
	if len(entries) == 0 {
		return
	}
	if h.Metrics != nil {
		counts := make(map[VoucherType]int)
		for _, e := range entries {
			counts[e.VoucherType]++
		}
		for vt, n := range counts {
			h.Metrics.EntriesPosted(string(vt), n)
		}
	}
	if h.Cache != nil {
		if err := h.Cache.Bump(ctx); err != nil && h.Logger != nil {
			h.Logger.Warn("balance cache bump failed", slog.Any("error", err))
		}
	}
}

// Service posts, reverses and queries ledger entries.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	hooks    Hooks
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, hooks Hooks) *Service {
	return &Service{repo: repo, audit: audit, hooks: hooks, validate: validator.New(), now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post appends a manual entry. Invalid input is rejected with ErrInvalidEntry
// and nothing is appended.
func (s *Service) Post(ctx context.Context, req PostRequest) (Entry, error) {
	if err := s.validate.Struct(req); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return Entry{}, fmt.Errorf("ledger: %w: acting user required", shared.ErrUnauthorized)
	}
	date := s.now()
	if req.Date != "" {
		parsed, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidEntry)
		}
		date = parsed
	}
	vtype := req.VoucherType
	if vtype == "" {
		vtype = VoucherJournal
	}
	in := PostingInput{
		TransactionID:   uuid.New(),
		Date:            Day(date),
		VoucherNumber:   strings.TrimSpace(req.VoucherNumber),
		VoucherType:     vtype,
		DebitAccountID:  req.DebitAccountID,
		CreditAccountID: req.CreditAccountID,
		Amount:          req.Amount,
		Narration:       strings.TrimSpace(req.Narration),
		Reference:       strings.TrimSpace(req.Reference),
		Links:           req.Links,
		CreatedBy:       actor,
	}
	in.Links.ReversesID = nil
	check := in
	if check.VoucherNumber == "" {
		check.VoucherNumber = JournalPrefix
	}
	if err := check.Validate(); err != nil {
		return Entry{}, err
	}

	numbered := in.VoucherNumber == ""
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Work on a copy: a replayed attempt must allocate its number again.
		posting := in
		if posting.VoucherNumber == "" {
			number, err := tx.NextVoucherNumber(ctx, JournalPrefix)
			if err != nil {
				return err
			}
			posting.VoucherNumber = number
		}
		var err error
		entry, err = tx.Append(ctx, posting)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	if numbered {
		s.hooks.NumberIssued(JournalPrefix)
	}
	s.hooks.Committed(ctx, []Entry{entry})
	s.record(ctx, "ledger.post", entry, nil)
	return entry, nil
}

// Reverse appends an entry that cancels an earlier one. An entry can be
// reversed once and reversing entries cannot themselves be reversed.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (Entry, error) {
	if in.EntryID <= 0 {
		return Entry{}, fmt.Errorf("%w: entry id required", ErrInvalidEntry)
	}
	if in.CreatedBy == 0 {
		actor, ok := shared.ActorFromContext(ctx)
		if !ok {
			return Entry{}, fmt.Errorf("ledger: %w: acting user required", shared.ErrUnauthorized)
		}
		in.CreatedBy = actor
	}
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	var reversal Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		orig, err := tx.Get(ctx, in.EntryID)
		if err != nil {
			return err
		}
		if orig.ReversesID != nil {
			return ErrReversalOfReversal
		}
		if existing, found, err := tx.ReversalOf(ctx, orig.ID); err != nil {
			return err
		} else if found {
			return fmt.Errorf("%w: reversed by entry %d", ErrAlreadyReversed, existing)
		}
		if Day(date).Before(orig.Date) {
			return fmt.Errorf("%w: reversal date precedes entry date", ErrInvalidEntry)
		}
		reversal, err = tx.Append(ctx, BuildReversal(orig, uuid.New(), date, in.Narration, in.CreatedBy))
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	s.hooks.Committed(ctx, []Entry{reversal})
	s.record(ctx, "ledger.reverse", reversal, map[string]any{"reverses_id": in.EntryID})
	return reversal, nil
}

// Query returns one page of entries matching f.
func (s *Service) Query(ctx context.Context, f QueryFilter) (Page, error) {
	if f.VoucherType != "" && !f.VoucherType.Valid() {
		return Page{}, fmt.Errorf("%w: unknown voucher type %q", ErrInvalidEntry, f.VoucherType)
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return Page{}, fmt.Errorf("%w: from must not be after to", ErrInvalidEntry)
	}
	f.Page, f.PerPage = shared.NormalizePage(f.Page, f.PerPage)
	entries, total, err := s.repo.Query(ctx, f)
	if err != nil {
		return Page{}, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Page{Entries: entries, Pagination: shared.NewPagination(f.Page, f.PerPage, total)}, nil
}

// AggregateDebit sums amounts debited to accountID up to asOf.
func (s *Service) AggregateDebit(ctx context.Context, accountID int64, asOf *time.Time) (decimal.Decimal, error) {
	debit, _, err := s.repo.Sums(ctx, accountID, asOf)
	return debit, err
}

// AggregateCredit sums amounts credited to accountID up to asOf.
func (s *Service) AggregateCredit(ctx context.Context, accountID int64, asOf *time.Time) (decimal.Decimal, error) {
	_, credit, err := s.repo.Sums(ctx, accountID, asOf)
	return credit, err
}

func (s *Service) record(ctx context.Context, action string, e Entry, extra map[string]any) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"voucher_number": e.VoucherNumber,
		"voucher_type":   string(e.VoucherType),
		"amount":         e.Amount.StringFixed(2),
		"transaction_id": e.TransactionID.String(),
	}
	for k, v := range extra {
		meta[k] = v
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  e.CreatedBy,
		Action:   action,
		Entity:   "ledger_entry",
		EntityID: fmt.Sprintf("%d", e.ID),
		Meta:     meta,
		At:       s.now(),
	})
}
