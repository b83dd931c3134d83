package sequence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

// Recorder receives allocation events for metrics.
type Recorder interface {
	SequenceAllocated(prefix string)
}

// Service allocates document numbers.
type Service struct {
	repo    RepositoryPort
	metrics Recorder
	logger  *slog.Logger
}

// NewService constructs the allocator.
func NewService(repo RepositoryPort, metrics Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, metrics: metrics, logger: logger}
}

// Next allocates and commits the next number for prefix in its own transaction.
func (s *Service) Next(ctx context.Context, prefix string) (string, error) {
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		number, err = Allocate(ctx, st, prefix)
		return err
	})
	if err != nil {
		return "", err
	}
	s.record(prefix)
	return number, nil
}

// NextTx allocates the next number through a Store bound to the caller's
// transaction. The number is released if that transaction rolls back, so
// nothing is recorded here; callers report it after commit.
func (s *Service) NextTx(ctx context.Context, st Store, prefix string) (string, error) {
	return Allocate(ctx, st, prefix)
}

// Peek returns the number the next allocation would produce without
// consuming it. Concurrent writers may claim it first.
func (s *Service) Peek(ctx context.Context, prefix string) (string, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return "", err
	}
	var current int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		current, err = st.Current(ctx, prefix)
		return err
	})
	if err != nil {
		return "", err
	}
	return Format(prefix, current+1), nil
}

// Sync raises the counter for prefix so the next allocation follows the
// highest of existing. Counters are never lowered.
func (s *Service) Sync(ctx context.Context, prefix string, existing []string) (int64, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return 0, err
	}
	floor := Highest(prefix, existing)
	var last int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		last, err = st.Raise(ctx, prefix, floor)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("sequence synced", slog.String("prefix", prefix), slog.Int64("highest_existing", floor), slog.Int64("last_number", last))
	return last, nil
}

// Allocate increments the counter for prefix through st and formats the result.
func Allocate(ctx context.Context, st Store, prefix string) (string, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return "", err
	}
	n, err := st.Increment(ctx, prefix)
	if err != nil {
		return "", err
	}
	if n <= 0 {
		return "", fmt.Errorf("sequence: %w: counter %s returned %d", shared.ErrConsistency, prefix, n)
	}
	return Format(prefix, n), nil
}

func (s *Service) record(prefix string) {
	if s.metrics != nil {
		s.metrics.SequenceAllocated(prefix)
	}
}
