package db

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/markdave123-py/Cadence/internal/core"
)

// Postgres SQLSTATE codes the gateway translates.
const (
	codeUndefinedTable   = "42P01"
	codeUndefinedColumn  = "42703"
	codeNotNullViolation = "23502"
	codeUniqueViolation  = "23505"
)

var columnRe = regexp.MustCompile(`column "?([^" ]+)"?`)

// mapError translates driver errors into the core taxonomy. Anything it does
// not recognise is wrapped as a storage failure.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w: %w", op, core.ErrStorageFailure, err)
	}
	switch pgErr.Code {
	case codeUndefinedTable:
		return fmt.Errorf("%s: %w: %s", op, core.ErrSchemaMissing, pgErr.Message)
	case codeUndefinedColumn:
		return &core.UnknownColumnError{Column: columnFromMessage(pgErr), Err: err}
	case codeNotNullViolation:
		return &core.NotNullViolationError{Column: pgErr.ColumnName, Err: err}
	case codeUniqueViolation:
		return fmt.Errorf("%s: %w: %s", op, core.ErrDuplicateJob, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrStorageFailure, err)
}

// columnFromMessage pulls the column name out of messages such as
// `column "response" of relation "chat_messages" does not exist` or
// `column m.response does not exist`.
func columnFromMessage(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	m := columnRe.FindStringSubmatch(pgErr.Message)
	if len(m) < 2 {
		return ""
	}
	col := m[1]
	for i := len(col) - 1; i >= 0; i-- {
		if col[i] == '.' {
			return col[i+1:]
		}
	}
	return col
}
