package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/retail-ledger/internal/accounting/balance"
	jobmetrics "github.com/odyssey-erp/retail-ledger/internal/jobs"
	"github.com/odyssey-erp/retail-ledger/internal/sequence"
)

const (
	checkTrialBalance   = "trial_balance"
	checkSequenceBehind = "sequence_behind"
)

// TrialBalancer computes the trial balance.
type TrialBalancer interface {
	TrialBalance(ctx context.Context, asOf *time.Time) (balance.TrialBalance, error)
}

// NumberSource lists stored document numbers per prefix.
type NumberSource interface {
	NumberSources(ctx context.Context) (map[string][]string, error)
}

// CounterReader previews the next number of a prefix.
type CounterReader interface {
	Peek(ctx context.Context, prefix string) (string, error)
}

// IntegrityReport summarises one integrity run.
type IntegrityReport struct {
	AsOf            string   `json:"as_of,omitempty"`
	Balanced        bool     `json:"balanced"`
	Difference      string   `json:"difference"`
	SequencesBehind []string `json:"sequences_behind,omitempty"`
}

// Healthy reports whether the run found no violation.
func (r IntegrityReport) Healthy() bool {
	return r.Balanced && len(r.SequencesBehind) == 0
}

// IntegrityJob verifies the ledger balances and that no counter lags behind
// the numbers already stored. Sequences and Numbers are optional.
type IntegrityJob struct {
	Balances  TrialBalancer
	Numbers   NumberSource
	Sequences CounterReader
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIntegrityJob wires dependencies for the integrity handler.
func NewIntegrityJob(balances TrialBalancer, numbers NumberSource, sequences CounterReader, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Balances: balances, Numbers: numbers, Sequences: sequences, Logger: logger, Metrics: metrics}
}

// Handle processes TaskLedgerIntegrity tasks. Violations are reported through
// logs and metrics; only failures to run the check are returned.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Balances == nil {
		return errors.New("integrity: handler not configured")
	}
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	var payload IntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("integrity: decode payload: %v: %w", err, asynq.SkipRetry))
	}
	asOf, err := payload.cutoff()
	if err != nil {
		return tracker.End(fmt.Errorf("%v: %w", err, asynq.SkipRetry))
	}
	_, err = j.Run(ctx, asOf)
	return tracker.End(err)
}

// Run executes the checks once.
func (j *IntegrityJob) Run(ctx context.Context, asOf *time.Time) (IntegrityReport, error) {
	logger := j.logger()
	start := time.Now()

	tb, err := j.Balances.TrialBalance(ctx, asOf)
	if err != nil {
		logger.Error("integrity: trial balance", slog.Any("error", err))
		return IntegrityReport{}, err
	}
	report := IntegrityReport{AsOf: tb.AsOf, Balanced: tb.IsBalanced, Difference: tb.Difference.StringFixed(2)}
	if !tb.IsBalanced {
		j.Metrics.AddViolations(checkTrialBalance, 1)
		logger.Warn("integrity: trial balance does not balance",
			slog.String("total_debit", tb.TotalDebit.StringFixed(2)),
			slog.String("total_credit", tb.TotalCredit.StringFixed(2)),
			slog.String("difference", report.Difference))
	}

	if j.Numbers != nil && j.Sequences != nil {
		behind, err := j.sequencesBehind(ctx)
		if err != nil {
			logger.Error("integrity: sequences", slog.Any("error", err))
			return report, err
		}
		report.SequencesBehind = behind
		if len(behind) > 0 {
			j.Metrics.AddViolations(checkSequenceBehind, len(behind))
			logger.Warn("integrity: counters behind stored numbers", slog.Any("prefixes", behind))
		}
	}

	logger.Info("integrity check completed",
		slog.Bool("healthy", report.Healthy()),
		slog.Int("accounts", len(tb.Rows)),
		slog.Duration("duration", time.Since(start)))
	return report, nil
}

// sequencesBehind returns the prefixes whose counter is below the highest
// stored number; the next allocation there would collide.
func (j *IntegrityJob) sequencesBehind(ctx context.Context) ([]string, error) {
	sources, err := j.Numbers.NumberSources(ctx)
	if err != nil {
		return nil, err
	}
	var behind []string
	for prefix, numbers := range sources {
		next, err := j.Sequences.Peek(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("peek %s: %w", prefix, err)
		}
		n, ok := sequence.Parse(prefix, next)
		if !ok {
			return nil, fmt.Errorf("peek %s: unexpected number %q", prefix, next)
		}
		if n-1 < sequence.Highest(prefix, numbers) {
			behind = append(behind, prefix)
		}
	}
	sort.Strings(behind)
	return behind, nil
}

func (j *IntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default()
}
