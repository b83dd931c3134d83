package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

// AuditPort records registry changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the account registry.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs the registry.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, validate: validator.New(), now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create registers a new account.
func (s *Service) Create(ctx context.Context, req CreateAccountRequest) (Account, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if req.ParentID != nil {
			if err := tx.LockChart(ctx); err != nil {
				return err
			}
			chart, err := tx.Chart(ctx)
			if err != nil {
				return err
			}
			if err := validateParent(chart, 0, *req.ParentID); err != nil {
				return err
			}
		}
		var err error
		created, err = tx.Insert(ctx, req)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, "account.create", created.ID, map[string]any{
		"name": created.Name,
		"type": string(created.Type),
	})
	return created, nil
}

// Update renames and/or re-parents an account. Type and opening balance
// cannot change.
func (s *Service) Update(ctx context.Context, id int64, req UpdateAccountRequest) (Account, error) {
	if err := s.validate.Struct(req); err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	if req.ClearParent && req.ParentID != nil {
		return Account{}, fmt.Errorf("%w: parent_id and clear_parent are exclusive", ErrInvalidAccount)
	}
	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockChart(ctx); err != nil {
			return err
		}
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		next := current
		if req.Name != nil {
			next.Name = strings.TrimSpace(*req.Name)
			if next.Name == "" {
				return fmt.Errorf("%w: name is required", ErrInvalidAccount)
			}
		}
		switch {
		case req.ClearParent:
			next.ParentID = nil
		case req.ParentID != nil:
			chart, err := tx.Chart(ctx)
			if err != nil {
				return err
			}
			if err := validateParent(chart, id, *req.ParentID); err != nil {
				return err
			}
			parentID := *req.ParentID
			next.ParentID = &parentID
		}
		updated, err = tx.Update(ctx, next)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, "account.update", updated.ID, map[string]any{"name": updated.Name})
	return updated, nil
}

// DeactivateOrDelete retires an account referenced by ledger entries and
// hard-deletes one that is not.
func (s *Service) DeactivateOrDelete(ctx context.Context, id int64) (Outcome, error) {
	var outcome Outcome
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockChart(ctx); err != nil {
			return err
		}
		if _, err := tx.Get(ctx, id); err != nil {
			return err
		}
		keys, err := tx.MappedKeys(ctx, id)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			return fmt.Errorf("%w: %s", ErrAccountMapped, strings.Join(keys, ", "))
		}
		referenced, err := tx.HasReferences(ctx, id)
		if err != nil {
			return err
		}
		if referenced {
			outcome = OutcomeRetired
			return tx.SetStatus(ctx, id, StatusRetired)
		}
		outcome = OutcomeDeleted
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return "", err
	}
	s.record(ctx, "account.deactivate", id, map[string]any{"outcome": string(outcome)})
	return outcome, nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

// List returns accounts matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown account type %q", ErrInvalidAccount, filter.Type)
	}
	return s.repo.List(ctx, filter)
}

// Hierarchy returns the active chart of accounts as a forest grouped by root type.
func (s *Service) Hierarchy(ctx context.Context) ([]TypeGroup, error) {
	all, err := s.repo.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	return BuildHierarchy(all), nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor, _ := shared.ActorFromContext(ctx)
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "account",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}
