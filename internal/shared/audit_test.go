package shared

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type stubExecer struct {
	calls []execCall
	tag   string
	err   error
}

func (s *stubExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, execCall{sql: sql, args: args})
	tag := s.tag
	if tag == "" {
		tag = "INSERT 0 1"
	}
	return pgconn.NewCommandTag(tag), s.err
}

func TestAuditLoggerRecord(t *testing.T) {
	db := &stubExecer{}
	at := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	err := NewAuditLogger(db).Record(context.Background(), AuditLog{
		ActorID: 7, Action: "bill.create", Entity: "bill", EntityID: "12",
		Meta: map[string]any{"number": "INV0001"}, At: at,
	})
	require.NoError(t, err)
	require.Len(t, db.calls, 1)
	args := db.calls[0].args
	require.Equal(t, int64(7), args[0])
	require.Equal(t, "bill.create", args[1])
	var meta map[string]string
	require.NoError(t, json.Unmarshal(args[4].([]byte), &meta))
	require.Equal(t, "INV0001", meta["number"])
	require.True(t, args[5].(*time.Time).Equal(at))
}

func TestAuditLoggerDefaultsActorAndMeta(t *testing.T) {
	db := &stubExecer{}
	ctx := ContextWithActor(context.Background(), 42)
	require.NoError(t, NewAuditLogger(db).Record(ctx, AuditLog{Action: "account.create", Entity: "account", EntityID: "3"}))
	args := db.calls[0].args
	require.Equal(t, int64(42), args[0])
	require.JSONEq(t, `{}`, string(args[4].([]byte)))
	require.Nil(t, args[5])
}

func TestAuditLoggerRejectsIncompleteRecords(t *testing.T) {
	db := &stubExecer{}
	err := NewAuditLogger(db).Record(context.Background(), AuditLog{Action: "bill.create"})
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, db.calls)

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{Action: "a", Entity: "b", EntityID: "c"}))
}

func TestIdempotencyStoreClaim(t *testing.T) {
	db := &stubExecer{}
	store := NewIdempotencyStore(db)
	require.NoError(t, store.Claim(context.Background(), "documents.bill", " abc "))
	require.Equal(t, []any{"documents.bill", "abc"}, db.calls[0].args)

	db.tag = "INSERT 0 0"
	err := store.Claim(context.Background(), "documents.bill", "abc")
	require.ErrorIs(t, err, ErrIdempotencyConflict)
	require.ErrorIs(t, err, ErrConflict)
}

func TestIdempotencyStoreRejectsBadInput(t *testing.T) {
	store := NewIdempotencyStore(&stubExecer{})
	require.ErrorIs(t, store.Claim(context.Background(), "documents.bill", "  "), ErrValidation)
	require.ErrorIs(t, store.Claim(context.Background(), "", "abc"), ErrValidation)
	require.ErrorIs(t, store.Claim(context.Background(), "documents.bill", strings.Repeat("k", 201)), ErrValidation)

	failing := NewIdempotencyStore(&stubExecer{err: errors.New("connection reset")})
	require.ErrorContains(t, failing.Claim(context.Background(), "documents.bill", "abc"), "connection reset")
}
