package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodePayloadTooLarge, status: http.StatusRequestEntityTooLarge, publicMsg: "payload too large", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusConflict, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeQuotaExceeded, status: http.StatusTooManyRequests, publicMsg: "usage limit reached", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCauseAndCode(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeDependency, cause, "insert job")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, CodeDependency, err.Code())
	assert.Equal(t, "insert job", err.Message())

	outer := fmt.Errorf("dispatch: %w", err)
	assert.True(t, IsCode(outer, CodeDependency))
	assert.False(t, IsCode(outer, CodeNotFound))
	assert.False(t, IsCode(stdErrors.New("plain"), CodeInternal))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(stdErrors.New("socket closed")))
	assert.True(t, Retryable(fmt.Errorf("fetch: %w", New(CodeDependency, "gcs down"))))
	assert.False(t, Retryable(New(CodeValidation, "bad field")))
	assert.False(t, Retryable(nil))
}

func TestErrorStringAndNewf(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: job 7 not found", Newf(CodeNotFound, "job %d not found", 7).Error())
	assert.Equal(t, "CONFLICT", New(CodeConflict, "").Error())
}

func TestWithDetails(t *testing.T) {
	err := New(CodeQuotaExceeded, "daily uploads exhausted").WithDetails(map[string]any{"limit": 3})
	assert.Equal(t, map[string]any{"limit": 3}, err.Details())

	var nilErr *Error
	assert.Nil(t, nilErr.WithDetails("x"))
	assert.Equal(t, CodeInternal, nilErr.Code())
}

func TestDumpExtractsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "usage_counters_period_key", TableName: "usage_counters", Message: "duplicate key"}
	err := Wrap(CodeInternal, pgErr, "insert counter")

	d := Dump(err)
	assert.Equal(t, CodeInternal, d.Code)
	if assert.NotNil(t, d.Postgres) {
		assert.Equal(t, "23505", d.Postgres.Code)
		assert.Equal(t, "usage_counters_period_key", d.Postgres.Constraint)
		assert.Equal(t, "usage_counters", d.Postgres.Table)
	}
	assert.Len(t, d.Chain, 2)
	assert.Equal(t, ErrorDump{}, Dump(nil))

	fields := d.Fields()
	assert.Equal(t, "23505", fields["pg_code"])
	assert.Equal(t, "usage_counters", fields["pg_table"])
	assert.NotContains(t, fields, "pg_column")
}

func TestDumpFieldsWithoutPostgres(t *testing.T) {
	fields := Dump(New(CodeNotFound, "job not found")).Fields()
	assert.Equal(t, CodeNotFound, fields["error_code"])
	assert.NotContains(t, fields, "pg_code")
	assert.NotContains(t, fields, "error_chain")
}
