package shared

import (
	"context"
	"fmt"
	"strings"
)

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = fmt.Errorf("idempotent request already processed: %w", ErrConflict)

const maxIdempotencyKey = 200

// IdempotencyStore claims client request keys. Bind it to the transaction
// that performs the work so a rolled-back request releases its key.
type IdempotencyStore struct {
	db execer
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(db execer) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// Claim records key for scope. A key already claimed in the same scope
// returns ErrIdempotencyConflict without aborting the transaction.
func (s *IdempotencyStore) Claim(ctx context.Context, scope, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("idempotency store not initialised")
	}
	key = strings.TrimSpace(key)
	switch {
	case scope == "":
		return fmt.Errorf("%w: idempotency scope required", ErrValidation)
	case key == "":
		return fmt.Errorf("%w: idempotency key required", ErrValidation)
	case len(key) > maxIdempotencyKey:
		return fmt.Errorf("%w: idempotency key longer than %d characters", ErrValidation, maxIdempotencyKey)
	}
	tag, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (module, key) VALUES ($1, $2) ON CONFLICT (module, key) DO NOTHING`, scope, key)
	if err != nil {
		return fmt.Errorf("claim idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}
