package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// pgError is the subset of a Postgres error both drivers expose.
type pgError struct {
	Code       string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

func postgresError(err error) (pgError, bool) {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return pgError{pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail, pgxErr.Message}, true
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return pgError{string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message}, true
	}
	return pgError{}, false
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally on a named constraint. SQLite errors are matched by message and
// only carry column names, so the constraint check is skipped for them.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if pg, ok := postgresError(err); ok {
		return pg.Code == pgUniqueViolation && (constraint == "" || pg.Constraint == constraint)
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		(strings.Contains(msg, "duplicate key value") && (constraint == "" || strings.Contains(msg, constraint)))
}

// IsCheckViolation reports whether err is a CHECK constraint violation,
// optionally on a named constraint. SQLite names the constraint in its message.
func IsCheckViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if pg, ok := postgresError(err); ok {
		return pg.Code == pgCheckViolation && (constraint == "" || pg.Constraint == constraint)
	}
	msg := err.Error()
	return (strings.Contains(msg, "CHECK constraint failed") || strings.Contains(msg, "violates check constraint")) &&
		(constraint == "" || strings.Contains(msg, constraint))
}

// ErrorDump is the structured form of an error written to logs by the
// response writer. It never reaches clients.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.code
	}
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	if pg, ok := postgresError(err); ok {
		d.PGCode, d.PGConstraint, d.PGTable = pg.Code, pg.Constraint, pg.Table
		d.PGColumn, d.PGDetail, d.PGMessage = pg.Column, pg.Detail, pg.Message
	}
	return d
}
