package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newTestManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewManagerWithDB(db, Config{}), mock
}

func TestQueryPassesParameters(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectQuery(`select id from users where email = \$1`).
		WithArgs("a@b.c").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1"))

	rows, err := m.Query(context.Background(), `select id from users where email = $1`, "a@b.c")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatal("expected one row")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestQueryErrorIsReturned(t *testing.T) {
	m, mock := newTestManager(t)

	boom := errors.New("syntax error")
	mock.ExpectQuery(`select broken`).WillReturnError(boom)

	if _, err := m.Query(context.Background(), `select broken`); !errors.Is(err, boom) {
		t.Fatalf("expected query error to propagate, got %v", err)
	}
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectExec(`update requests set payment_status`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := m.Transaction(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `update requests set payment_status = 'paid' where id = $1`, "r1")
		return err
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	fail := errors.New("domain failure")
	err := m.Transaction(context.Background(), func(tx *sql.Tx) error {
		return fail
	})
	if !errors.Is(err, fail) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestHealthCheckReportsPoolStats(t *testing.T) {
	m, mock := newTestManager(t)

	now := time.Now()
	mock.ExpectQuery(`select now\(\), version\(\)`).
		WillReturnRows(sqlmock.NewRows([]string{"now", "version"}).AddRow(now, "PostgreSQL 16.2"))

	h := m.HealthCheck(context.Background())
	if !h.Healthy {
		t.Fatalf("expected healthy, got %+v", h)
	}
	if h.Version != "PostgreSQL 16.2" {
		t.Fatalf("unexpected version: %s", h.Version)
	}
}

func TestHealthCheckNeverErrors(t *testing.T) {
	m, mock := newTestManager(t)

	mock.ExpectQuery(`select now\(\), version\(\)`).WillReturnError(errors.New("down"))

	h := m.HealthCheck(context.Background())
	if h.Healthy || h.Error == "" {
		t.Fatalf("expected unhealthy result with error, got %+v", h)
	}
}
