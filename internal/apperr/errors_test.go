package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestConstructorsCarryStatus(t *testing.T) {
	cases := []struct {
		err    *Error
		code   Code
		status int
	}{
		{BadRequest("x"), CodeBadRequest, http.StatusBadRequest},
		{Unauthorized("x"), CodeUnauthorized, http.StatusUnauthorized},
		{Forbidden("x"), CodeForbidden, http.StatusForbidden},
		{NotFound("x"), CodeNotFound, http.StatusNotFound},
		{Conflict("x"), CodeConflict, http.StatusConflict},
		{Validation("x"), CodeValidation, http.StatusUnprocessableEntity},
		{Database("x"), CodeDatabase, http.StatusInternalServerError},
		{Internal("x"), CodeInternal, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if c.err.Code != c.code || c.err.Status != c.status {
			t.Fatalf("constructor for %s: got %s/%d", c.code, c.err.Code, c.err.Status)
		}
	}
}

func TestClassifyUniqueViolation(t *testing.T) {
	err := Classify(&pgconn.PgError{Code: "23505"}, "create failed")
	if !IsCode(err, CodeConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestClassifyForeignKeyViolation(t *testing.T) {
	err := Classify(&pgconn.PgError{Code: "23503"}, "create failed")
	if !IsCode(err, CodeBadRequest) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
}

func TestClassifyDeleteForeignKey(t *testing.T) {
	err := ClassifyDelete(&pgconn.PgError{Code: "23503"}, "delete failed")
	if !IsCode(err, CodeConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestClassifyNoRows(t *testing.T) {
	err := Classify(fmt.Errorf("scan: %w", sql.ErrNoRows), "fetch failed")
	if !IsCode(err, CodeNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestClassifyPassesThroughTaxonomyErrors(t *testing.T) {
	orig := Conflict("email already in use")
	err := Classify(fmt.Errorf("register: %w", orig), "fallback")
	ae, ok := From(err)
	if !ok || ae.Message != "email already in use" {
		t.Fatalf("taxonomy error was rewrapped: %v", err)
	}
}

func TestClassifyWrapsUnknownAsDatabase(t *testing.T) {
	cause := errors.New("connection reset")
	err := Classify(cause, "fetch records failed")
	ae, ok := From(err)
	if !ok || ae.Code != CodeDatabase {
		t.Fatalf("expected DatabaseError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause was not preserved")
	}
}

func TestStatusForUnclassified(t *testing.T) {
	if got := StatusFor(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("StatusFor=%d", got)
	}
}
