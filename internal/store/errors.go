package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/restq/internal/errs"
	"github.com/roach88/restq/internal/ir"
	"github.com/roach88/restq/internal/queryir"
)

// ArgsError reports a request the store rejected before it reached the
// database: an unknown field, relation or operator, a value that does not
// fit its field, or a malformed projection.
type ArgsError struct {
	Op  string
	Err error
}

func (e *ArgsError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ArgsError) Unwrap() error {
	return e.Err
}

func invalid(op string, err error) error {
	return &ArgsError{Op: op, Err: err}
}

// Methods for which a missing row means the addressed record does not exist.
var notFoundMethods = map[string]bool{
	"get":    true,
	"update": true,
	"patch":  true,
	"remove": true,
}

// TranslateError maps a store failure onto the errs taxonomy. method names
// the resource operation that failed ("find", "get", "create", "update",
// "patch", "remove"). Errors that already carry a kind pass through.
func TranslateError(err error, method string) error {
	if err == nil {
		return nil
	}
	if e, ok := errs.As(err); ok {
		return e
	}

	if errors.Is(err, sql.ErrNoRows) {
		if notFoundMethods[method] {
			return errs.NotFound("Record not found.").Wrap(err)
		}
		return errs.General("%s", err.Error()).Wrap(err)
	}

	var ae *ArgsError
	var pe *queryir.ParseError
	var ve *ir.ValueError
	switch {
	case errors.As(err, &pe):
		return errs.BadRequest("%s", pe.Error()).Wrap(err).With("path", pe.Path)
	case errors.As(err, &ve):
		return errs.BadRequest("%s", ve.Error()).Wrap(err).With("field", ve.Field)
	case errors.Is(err, ErrSelectInclude):
		e := errs.BadRequest("%s", ErrSelectInclude.Error()).Wrap(err)
		e.Code = errs.CodeSelectInclude
		return e
	case errors.As(err, &ae):
		return errs.BadRequest("%s", ae.Err.Error()).Wrap(err)
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		return translateSQLite(se, err)
	}
	var qe *pq.Error
	if errors.As(err, &qe) {
		return translatePostgres(qe, err)
	}

	e := errs.General("%s", err.Error()).Wrap(err)
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		e.Code = errs.CodeStoreUnavailable
	}
	return e
}

func translateSQLite(se sqlite3.Error, err error) error {
	var e *errs.Error
	switch se.Code {
	case sqlite3.ErrIoErr, sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen,
		sqlite3.ErrCorrupt, sqlite3.ErrFull, sqlite3.ErrReadonly, sqlite3.ErrPerm,
		sqlite3.ErrNotADB, sqlite3.ErrNomem, sqlite3.ErrProtocol, sqlite3.ErrInternal:
		e = errs.General("%s", se.Error())
		e.Code = errs.CodeStoreUnavailable
	default:
		// constraint, mismatch, range, SQL logic errors and anything else
		e = errs.BadRequest("%s", se.Error())
	}
	return e.Wrap(err).
		With("driver", "sqlite3").
		With("code", int(se.Code)).
		With("extendedCode", int(se.ExtendedCode))
}

// Postgres SQLSTATE classes that mean the database is unreachable or broken.
var postgresUnavailable = map[pq.ErrorClass]bool{
	"08": true, // connection exception
	"53": true, // insufficient resources
	"54": true, // program limit exceeded
	"57": true, // operator intervention
	"58": true, // system error
	"XX": true, // internal error
}

func translatePostgres(qe *pq.Error, err error) error {
	var e *errs.Error
	switch class := qe.Code.Class(); {
	case class == "02":
		msg := qe.Message
		if msg == "" {
			msg = "Record not found."
		}
		e = errs.NotFound("%s", msg)
	case postgresUnavailable[class]:
		e = errs.General("%s", qe.Message)
		e.Code = errs.CodeStoreUnavailable
	default:
		e = errs.BadRequest("%s", qe.Message)
	}
	e = e.Wrap(err).With("driver", "postgres").With("code", string(qe.Code))
	if qe.Detail != "" {
		e = e.With("detail", qe.Detail)
	}
	if qe.Constraint != "" {
		e = e.With("constraint", qe.Constraint)
	}
	return e
}
