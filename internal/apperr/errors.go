// Package apperr defines the error taxonomy shared by every service layer.
// Raw driver errors never cross a service boundary unclassified: the record
// layer turns PostgreSQL constraint violations into taxonomy errors here.
package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

// Code identifies an error class independent of transport.
type Code string

const (
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeDatabase     Code = "DATABASE_ERROR"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// PostgreSQL error codes the record layer classifies.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
)

// Error carries a taxonomy code, an HTTP status for the API binding, a
// caller-facing message and the underlying cause. The cause is only surfaced
// in non-production diagnostic output.
type Error struct {
	Code    Code
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap attaches the underlying cause and returns the error for chaining.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func BadRequest(msg string) *Error {
	return &Error{Code: CodeBadRequest, Status: http.StatusBadRequest, Message: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Status: http.StatusUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Status: http.StatusForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Status: http.StatusNotFound, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Status: http.StatusConflict, Message: msg}
}

func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Status: http.StatusUnprocessableEntity, Message: msg}
}

func Database(msg string) *Error {
	return &Error{Code: CodeDatabase, Status: http.StatusInternalServerError, Message: msg}
}

func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: msg}
}

// From extracts the taxonomy error if err carries one.
func From(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsCode reports whether err is a taxonomy error with the given code.
func IsCode(err error, code Code) bool {
	ae, ok := From(err)
	return ok && ae.Code == code
}

// StatusFor maps any error to the HTTP status of its taxonomy class.
// Unclassified errors map to 500.
func StatusFor(err error) int {
	if ae, ok := From(err); ok {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// Classify turns a store-level error into a taxonomy error. Already
// classified errors pass through unchanged; unique violations become
// Conflict, broken foreign keys and missing required columns become
// BadRequest, and everything else is wrapped as a DatabaseError with the
// given fallback message.
func Classify(err error, fallback string) error {
	if err == nil {
		return nil
	}
	if ae, ok := From(err); ok {
		return ae
	}
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound("record not found").Wrap(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return Conflict("duplicate entry").Wrap(err)
		case pgForeignKeyViolation:
			return BadRequest("invalid reference").Wrap(err)
		case pgNotNullViolation:
			return BadRequest("missing required field").Wrap(err)
		}
	}
	return Database(fallback).Wrap(err)
}

// ClassifyDelete is Classify with delete semantics: a foreign-key violation
// means a dependent row still references the record, which is a domain
// conflict rather than a malformed request.
func ClassifyDelete(err error, fallback string) error {
	if err == nil {
		return nil
	}
	if ae, ok := From(err); ok {
		return ae
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return Conflict("cannot delete: record is referenced by other records").Wrap(err)
	}
	return Classify(err, fallback)
}
