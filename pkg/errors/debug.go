package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the log-friendly breakdown of an error chain.
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

// pgFields normalises the two postgres driver error types we may see: pgx
// through gorm and lib/pq through goose.
type pgFields struct {
	code, constraint, table, column, detail, message string
}

func pgFrom(err error) (pgFields, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgFields{pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail, pgxErr.Message}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgFields{string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message}, true
	}
	return pgFields{}, false
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	if pg, ok := pgFrom(err); ok {
		d.PGCode = pg.code
		d.PGConstraint = pg.constraint
		d.PGTable = pg.table
		d.PGColumn = pg.column
		d.PGDetail = pg.detail
		d.PGMessage = pg.message
	}
	return d
}

// ClassifyDB maps a postgres SQLSTATE onto a code. Errors that are not
// postgres errors classify as CodeInternal.
func ClassifyDB(err error) Code {
	pg, ok := pgFrom(err)
	if !ok {
		return CodeInternal
	}
	switch {
	case pg.code == "23505":
		return CodeConflict
	case pg.code == "40001", pg.code == "40P01":
		// serialization failure, deadlock
		return CodeDependency
	case strings.HasPrefix(pg.code, "23"), strings.HasPrefix(pg.code, "22"):
		return CodeValidation
	case strings.HasPrefix(pg.code, "08"), strings.HasPrefix(pg.code, "57P"), strings.HasPrefix(pg.code, "53"):
		return CodeDependency
	default:
		return CodeInternal
	}
}

// FromDB wraps a database error with the code ClassifyDB picks for it.
// Typed errors pass through untouched.
func FromDB(err error, message string) error {
	if err == nil {
		return nil
	}
	if As(err) != nil {
		return err
	}
	return Wrap(ClassifyDB(err), err, message)
}
