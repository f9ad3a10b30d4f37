package db

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Cadence/internal/core"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{
			name:   "missing table",
			err:    &pgconn.PgError{Code: "42P01", Message: `relation "chat_messages" does not exist`},
			target: core.ErrSchemaMissing,
		},
		{
			name:   "unknown column",
			err:    &pgconn.PgError{Code: "42703", Message: `column "response" of relation "chat_messages" does not exist`},
			target: core.ErrSchemaMismatch,
		},
		{
			name:   "not null",
			err:    &pgconn.PgError{Code: "23502", ColumnName: "message"},
			target: core.ErrSchemaMismatch,
		},
		{
			name:   "unique",
			err:    &pgconn.PgError{Code: "23505", ConstraintName: "web_sources_client_root_key"},
			target: core.ErrDuplicateJob,
		},
		{
			name:   "other pg error",
			err:    &pgconn.PgError{Code: "57014"},
			target: core.ErrStorageFailure,
		},
		{
			name:   "non pg error",
			err:    errors.New("connection reset"),
			target: core.ErrStorageFailure,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError("op", tc.err), tc.target)
		})
	}
}

func TestMapErrorNil(t *testing.T) {
	assert.NoError(t, mapError("op", nil))
}

func TestMapErrorColumns(t *testing.T) {
	var unknown *core.UnknownColumnError
	err := mapError("insert", &pgconn.PgError{Code: "42703", Message: `column "response" of relation "chat_messages" does not exist`})
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "response", unknown.Column)

	err = mapError("select", &pgconn.PgError{Code: "42703", Message: `column m.metadata does not exist`})
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "metadata", unknown.Column)

	var notNull *core.NotNullViolationError
	err = mapError("insert", &pgconn.PgError{Code: "23502", ColumnName: "message"})
	require.ErrorAs(t, err, &notNull)
	assert.Equal(t, "message", notNull.Column)
}
