package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retail-ledger/internal/accounting/balance"
	jobmetrics "github.com/odyssey-erp/retail-ledger/internal/jobs"
	"github.com/odyssey-erp/retail-ledger/internal/sequence"
)

type stubBalances struct {
	tb    balance.TrialBalance
	err   error
	asOfs []*time.Time
}

func (s *stubBalances) TrialBalance(ctx context.Context, asOf *time.Time) (balance.TrialBalance, error) {
	s.asOfs = append(s.asOfs, asOf)
	return s.tb, s.err
}

type stubNumbers map[string][]string

func (s stubNumbers) NumberSources(ctx context.Context) (map[string][]string, error) {
	return s, nil
}

type stubCounters map[string]int64

func (s stubCounters) Peek(ctx context.Context, prefix string) (string, error) {
	return sequence.Format(prefix, s[prefix]+1), nil
}

func balanced() balance.TrialBalance {
	return balance.TrialBalance{
		TotalDebit:  decimal.NewFromInt(500),
		TotalCredit: decimal.NewFromInt(500),
		Difference:  decimal.Zero,
		IsBalanced:  true,
	}
}

func TestIntegrityRunHealthy(t *testing.T) {
	job := NewIntegrityJob(&stubBalances{tb: balanced()},
		stubNumbers{"INV": {"INV0001", "INV0002"}, "ORD": nil},
		stubCounters{"INV": 2},
		nil, nil)

	report, err := job.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, report.Healthy())
	assert.Equal(t, "0.00", report.Difference)
}

func TestIntegrityRunReportsViolations(t *testing.T) {
	tb := balanced()
	tb.TotalCredit = decimal.NewFromInt(450)
	tb.Difference = decimal.NewFromInt(50)
	tb.IsBalanced = false
	reg := prometheus.NewRegistry()
	job := NewIntegrityJob(&stubBalances{tb: tb},
		stubNumbers{"INV": {"INV0007"}, "PUR": {"PUR0003"}, "EXP": {"EXP0001"}},
		stubCounters{"INV": 5, "PUR": 3, "EXP": 0},
		nil, jobmetrics.NewMetrics(reg))

	report, err := job.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, report.Healthy())
	assert.False(t, report.Balanced)
	assert.Equal(t, "50.00", report.Difference)
	assert.Equal(t, []string{"EXP", "INV"}, report.SequencesBehind)
}

func TestIntegrityHandlePassesCutoff(t *testing.T) {
	balances := &stubBalances{tb: balanced()}
	job := NewIntegrityJob(balances, nil, nil, nil, nil)

	task, err := NewIntegrityTask(IntegrityPayload{AsOf: "2024-03-31"})
	require.NoError(t, err)
	require.Equal(t, TaskLedgerIntegrity, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, balances.asOfs, 1)
	require.NotNil(t, balances.asOfs[0])
	assert.Equal(t, "2024-03-31", balances.asOfs[0].Format(time.DateOnly))
}

func TestIntegrityHandleSkipsRetryOnBadPayload(t *testing.T) {
	job := NewIntegrityJob(&stubBalances{tb: balanced()}, nil, nil, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	body, _ := json.Marshal(IntegrityPayload{AsOf: "31/03/2024"})
	err = job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, body))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIntegrityHandleReturnsComputeFailure(t *testing.T) {
	boom := errors.New("db down")
	job := NewIntegrityJob(&stubBalances{err: boom}, nil, nil, nil, nil)
	task, err := NewIntegrityTask(IntegrityPayload{})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestNewIntegrityTaskRejectsBadDate(t *testing.T) {
	_, err := NewIntegrityTask(IntegrityPayload{AsOf: "yesterday"})
	require.Error(t, err)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{})
	require.Error(t, err)

	_, err = NewWorker(WorkerConfig{Handlers: []TaskHandler{{Type: TaskLedgerIntegrity}}})
	require.Error(t, err)
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	task, err := NewIntegrityTask(IntegrityPayload{})
	require.NoError(t, err)
	handler := func(context.Context, *asynq.Task) error { return nil }

	_, err = NewWorker(WorkerConfig{
		Handlers: []TaskHandler{{Type: TaskLedgerIntegrity, Handler: handler}},
		Cron:     []CronRegistration{{Spec: "every tuesday", Task: task}},
	})
	require.ErrorContains(t, err, "every tuesday")

	w, err := NewWorker(WorkerConfig{
		Handlers: []TaskHandler{{Type: TaskLedgerIntegrity, Handler: handler}},
		Cron:     []CronRegistration{{Spec: "0 2 * * *", Task: task}},
	})
	require.NoError(t, err)
	require.NotNil(t, w.scheduler)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsHealth(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		code      int
		pending   int
	}{
		{name: "no inspector", code: http.StatusOK},
		{name: "queue info", inspector: stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, code: http.StatusOK, pending: 4},
		{name: "redis down", inspector: stubInspector{err: errors.New("dial tcp")}, code: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := chi.NewRouter()
			NewHandler(tc.inspector, nil).MountRoutes(router)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tc.code, rec.Code)
			if tc.code != http.StatusOK {
				return
			}
			var got queueHealth
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, QueueDefault, got.Queue)
			assert.Equal(t, tc.pending, got.Pending)
		})
	}
}
