package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity checks that the ledger balances and that document
	// counters are ahead of every stored number.
	TaskLedgerIntegrity = "ledger:integrity_check"
)

// IntegrityPayload carries the cut-off for the check. An empty AsOf checks
// the whole ledger.
type IntegrityPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// cutoff parses AsOf.
func (p IntegrityPayload) cutoff() (*time.Time, error) {
	if p.AsOf == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, p.AsOf)
	if err != nil {
		return nil, fmt.Errorf("integrity: as_of must be YYYY-MM-DD: %w", err)
	}
	return &t, nil
}

// NewIntegrityTask constructs an Asynq task for the ledger integrity check.
func NewIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	if _, err := payload.cutoff(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
