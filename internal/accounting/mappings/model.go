package mappings

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

// Well-known keys the document postings resolve.
const (
	KeyCash        = "cash"
	KeyBank        = "bank"
	KeySales       = "sales"
	KeyReceivables = "receivables"
	KeyPurchases   = "purchases"
	KeyPayables    = "payables"
	KeyExpense     = "expense"
)

// Required lists the keys every deployment must map before posting documents.
var Required = []string{KeyCash, KeyBank, KeySales, KeyReceivables, KeyPurchases, KeyPayables, KeyExpense}

// ErrMappingNotFound signals that a well-known account has not been configured.
var ErrMappingNotFound = fmt.Errorf("mappings: %w: account mapping missing", shared.ErrConsistency)

// AccountMapping links a well-known key to a ledger account.
type AccountMapping struct {
	Key       string    `json:"key"`
	AccountID int64     `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExpenseKey returns the mapping key for an expense category.
func ExpenseKey(category string) string {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return KeyExpense
	}
	return KeyExpense + "." + category
}

// Set is an immutable snapshot of mappings loaded at startup.
type Set struct {
	ids map[string]int64
}

// NewSet copies the given mappings into a Set.
func NewSet(items []AccountMapping) Set {
	ids := make(map[string]int64, len(items))
	for _, m := range items {
		ids[m.Key] = m.AccountID
	}
	return Set{ids: ids}
}

// Resolve returns the account mapped to key.
func (s Set) Resolve(key string) (int64, error) {
	id, ok := s.ids[key]
	if !ok || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrMappingNotFound, key)
	}
	return id, nil
}

// ResolveExpense resolves an expense category, falling back to the generic
// expense account.
func (s Set) ResolveExpense(category string) (int64, error) {
	if id, err := s.Resolve(ExpenseKey(category)); err == nil {
		return id, nil
	}
	return s.Resolve(KeyExpense)
}

// Missing reports required keys that are not mapped.
func (s Set) Missing() []string {
	var out []string
	for _, key := range Required {
		if _, err := s.Resolve(key); err != nil {
			out = append(out, key)
		}
	}
	return out
}

// Keys returns the mapped keys in order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s.ids))
	for k := range s.ids {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
