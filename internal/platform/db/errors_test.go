package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert bill: %w", &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "bills_bill_number_key"})
	assert.True(t, IsUniqueViolation(unique, ""))
	assert.True(t, IsUniqueViolation(unique, "bills_bill_number_key"))
	assert.False(t, IsUniqueViolation(unique, "accounts_name_key"))
	assert.False(t, IsRetryable(unique))

	assert.True(t, IsRetryable(&pgconn.PgError{Code: CodeSerializationFailure}))
	assert.True(t, IsRetryable(&pgconn.PgError{Code: CodeDeadlockDetected}))
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: CodeForeignKeyViolation}))

	fk := fmt.Errorf("insert entry: %w", &pgconn.PgError{Code: CodeForeignKeyViolation, ConstraintName: "ledger_entries_bill_id_fkey"})
	assert.True(t, IsForeignKeyViolation(fk))
	assert.Equal(t, "ledger_entries_bill_id_fkey", Constraint(fk))

	plain := errors.New("boom")
	assert.Equal(t, "", Code(plain))
	assert.Equal(t, "", Constraint(plain))
	assert.False(t, IsUniqueViolation(plain, ""))
}
