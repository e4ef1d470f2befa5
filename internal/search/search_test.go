package search

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"egovportal.org/internal/apperr"
	"egovportal.org/internal/store"
)

func newTestSearch(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(store.NewManagerWithDB(db, store.Config{}), 50), mock
}

func TestRequestsNoCriteriaReturnsRecent(t *testing.T) {
	svc, mock := newTestSearch(t)

	mock.ExpectQuery(`where 1=1 order by r.submitted_at desc limit \$1`).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "citizen_name"}).
			AddRow("r1", "Alice"))

	out, err := svc.Requests(context.Background(), RequestQuery{})
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	if len(out) != 1 || out[0].String("citizen_name") != "Alice" {
		t.Fatalf("unexpected rows: %v", out)
	}
}

func TestRequestsCombinesCriteriaInOrder(t *testing.T) {
	svc, mock := newTestSearch(t)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`and u.name ilike \$1 and r.status = \$2 and r.submitted_at >= \$3 order by r.submitted_at desc limit \$4`).
		WithArgs("%ali%", "approved", from, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("r1"))

	_, err := svc.Requests(context.Background(), RequestQuery{
		CitizenName: "ali",
		Status:      "approved",
		From:        from,
		Limit:       10,
	})
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRequestsLimitCapped(t *testing.T) {
	svc, mock := newTestSearch(t)

	mock.ExpectQuery(`limit \$1`).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := svc.Requests(context.Background(), RequestQuery{Limit: 9999}); err != nil {
		t.Fatalf("Requests: %v", err)
	}
}

func TestUsersRequiresTerm(t *testing.T) {
	svc, _ := newTestSearch(t)
	if _, err := svc.Users(context.Background(), "   ", 10, 0); !apperr.IsCode(err, apperr.CodeBadRequest) {
		t.Fatalf("want bad request, got %v", err)
	}
}

func TestUsersMatchesAcrossColumns(t *testing.T) {
	svc, mock := newTestSearch(t)

	mock.ExpectQuery(`where name ilike \$1 or email ilike \$1 or national_id ilike \$1`).
		WithArgs("%smith%", 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow("u1", "John Smith").
			AddRow("u2", "Jane Smith"))

	out, err := svc.Users(context.Background(), "smith", 10, 0)
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("unexpected rows: %v", out)
	}
}
