package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

// memoryRepo serialises transactions with a mutex and restores the counters
// when fn fails, mirroring row-lock and rollback semantics.
type memoryRepo struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{counters: map[string]int64{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		snapshot[k] = v
	}
	if err := fn(ctx, memoryStore{r}); err != nil {
		r.counters = snapshot
		return err
	}
	return nil
}

type memoryStore struct{ r *memoryRepo }

func (s memoryStore) Increment(ctx context.Context, prefix string) (int64, error) {
	s.r.counters[prefix]++
	return s.r.counters[prefix], nil
}

func (s memoryStore) Current(ctx context.Context, prefix string) (int64, error) {
	return s.r.counters[prefix], nil
}

func (s memoryStore) Raise(ctx context.Context, prefix string, floor int64) (int64, error) {
	if floor > s.r.counters[prefix] {
		s.r.counters[prefix] = floor
	}
	return s.r.counters[prefix], nil
}

type countingRecorder struct {
	mu    sync.Mutex
	count map[string]int
}

func (c *countingRecorder) SequenceAllocated(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == nil {
		c.count = map[string]int{}
	}
	c.count[prefix]++
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "INV0001", Format("INV", 1))
	assert.Equal(t, "INV0007", Format("INV", 7))
	assert.Equal(t, "INV9999", Format("INV", 9999))
	assert.Equal(t, "INV10000", Format("INV", 10000))
}

func TestParse(t *testing.T) {
	n, ok := Parse("INV", "INV0042")
	require.True(t, ok)
	require.Equal(t, int64(42), n)

	n, ok = Parse("INV", "INV12345")
	require.True(t, ok)
	require.Equal(t, int64(12345), n)

	_, ok = Parse("INV", "ORD0001")
	require.False(t, ok)
	_, ok = Parse("INV", "INV")
	require.False(t, ok)
	_, ok = Parse("INV", "INV-001")
	require.False(t, ok)
}

func TestHighestIgnoresForeignNumbers(t *testing.T) {
	got := Highest("PUR", []string{"PUR0003", "PUR0011", "ORD0099", "PURX", "PUR0002"})
	require.Equal(t, int64(11), got)
	require.Zero(t, Highest("PUR", nil))
}

func TestNextStartsAtOneAndIncrements(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	first, err := svc.Next(ctx, "INV")
	require.NoError(t, err)
	require.Equal(t, "INV0001", first)

	second, err := svc.Next(ctx, "INV")
	require.NoError(t, err)
	require.Equal(t, "INV0002", second)

	other, err := svc.Next(ctx, "ORD")
	require.NoError(t, err)
	require.Equal(t, "ORD0001", other)
}

func TestNextRejectsInvalidPrefix(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	for _, prefix := range []string{"", "inv", "IN V", "INVOICE-NUMBER-TOO-LONG"} {
		_, err := svc.Next(context.Background(), prefix)
		require.ErrorIs(t, err, shared.ErrValidation, prefix)
	}
}

func TestConcurrentNextIsUniqueAndContiguous(t *testing.T) {
	const callers = 64
	recorder := &countingRecorder{}
	svc := NewService(newMemoryRepo(), recorder, nil)

	var mu sync.Mutex
	seen := make(map[string]bool, callers)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			number, err := svc.Next(ctx, "INV")
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[number] {
				return fmt.Errorf("duplicate number %s", number)
			}
			seen[number] = true
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Len(t, seen, callers)
	for i := 1; i <= callers; i++ {
		require.True(t, seen[Format("INV", int64(i))], "missing %s", Format("INV", int64(i)))
	}
	require.Equal(t, callers, recorder.count["INV"])
}

func TestRolledBackAllocationIsReused(t *testing.T) {
	repo := newMemoryRepo()
	recorder := &countingRecorder{}
	svc := NewService(repo, recorder, nil)
	ctx := context.Background()

	failure := errors.New("document insert failed")
	var allocated string
	err := repo.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		allocated, err = svc.NextTx(ctx, st, "PUR")
		require.NoError(t, err)
		return failure
	})
	require.ErrorIs(t, err, failure)
	require.Equal(t, "PUR0001", allocated)
	require.Zero(t, recorder.count["PUR"], "rolled back numbers must not be counted")

	next, err := svc.Next(ctx, "PUR")
	require.NoError(t, err)
	require.Equal(t, "PUR0001", next)
	require.Equal(t, 1, recorder.count["PUR"])
}

func TestPeekDoesNotConsume(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	peek, err := svc.Peek(ctx, "INV")
	require.NoError(t, err)
	require.Equal(t, "INV0001", peek)

	next, err := svc.Next(ctx, "INV")
	require.NoError(t, err)
	require.Equal(t, peek, next)
}

func TestSyncNeverLowersCounter(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	last, err := svc.Sync(ctx, "INV", []string{"INV0005", "INV0017"})
	require.NoError(t, err)
	require.Equal(t, int64(17), last)

	next, err := svc.Next(ctx, "INV")
	require.NoError(t, err)
	require.Equal(t, "INV0018", next)

	last, err = svc.Sync(ctx, "INV", []string{"INV0002"})
	require.NoError(t, err)
	require.Equal(t, int64(18), last)
}
