package lifecycle

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"egovportal.org/internal/apperr"
	"egovportal.org/internal/auth"
	"egovportal.org/internal/catalog"
	"egovportal.org/internal/record"
	"egovportal.org/internal/store"
)

type fakeNotifier struct {
	userIDs []string
	msgs    []string
	emails  []bool
}

func (n *fakeNotifier) Notify(_ context.Context, userID, message string, sendEmail bool) {
	n.userIDs = append(n.userIDs, userID)
	n.msgs = append(n.msgs, message)
	n.emails = append(n.emails, sendEmail)
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *fakeNotifier) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	mgr := store.NewManagerWithDB(db, store.Config{})
	services := record.New(mgr, catalog.ServiceTable)
	sink := &fakeNotifier{}
	return New(mgr, services, sink, func() string { return "pay1" }), mock, sink
}

var (
	citizen  = auth.Principal{UserID: "u1", Role: auth.RoleCitizen}
	stranger = auth.Principal{UserID: "u9", Role: auth.RoleCitizen}
	officer  = auth.Principal{UserID: "o1", Role: auth.RoleOfficer}
)

func TestSubmitUnknownService(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("select id from services where id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.Submit(context.Background(), citizen, SubmitInput{ServiceID: "missing"})
	if !apperr.IsCode(err, apperr.CodeNotFound) || err.Error() != "NOT_FOUND: service not found" {
		t.Fatalf("want service not found, got %v", err)
	}
}

func TestSubmitRequiresServiceID(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Submit(context.Background(), citizen, SubmitInput{}); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestSubmitCreatesRequestAndDocuments(t *testing.T) {
	svc, mock, sink := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("select id from services where id = $1")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1"))
	mock.ExpectQuery(regexp.QuoteMeta(
		"insert into requests (id, user_id, service_id, status, payment_status) values ($1, $2, $3, $4, $5) returning *")).
		WithArgs(sqlmock.AnyArg(), "u1", "s1", StatusSubmitted, PaymentUnpaid).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status", "payment_status"}).
			AddRow("r1", "u1", StatusSubmitted, PaymentUnpaid))
	mock.ExpectQuery(regexp.QuoteMeta(
		"insert into documents (id, request_id, file_name, file_path, mime_type) values ($1, $2, $3, $4, $5) returning *")).
		WithArgs(sqlmock.AnyArg(), "r1", "passport.pdf", "/uploads/passport.pdf", "application/pdf").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("doc1"))

	request, err := svc.Submit(context.Background(), citizen, SubmitInput{
		ServiceID: "s1",
		Documents: []DocumentInput{{FileName: "passport.pdf", FilePath: "/uploads/passport.pdf", MimeType: "application/pdf"}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if request.String("status") != StatusSubmitted {
		t.Fatalf("status = %q", request.String("status"))
	}
	if len(sink.msgs) != 1 || sink.msgs[0] != "Your request #r1 has been submitted." || sink.emails[0] {
		t.Fatalf("unexpected notification: %+v", sink)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateStatusRequiresReviewerRole(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.UpdateStatus(context.Background(), citizen, "r1", StatusApproved)
	if !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("want forbidden, got %v", err)
	}
}

func TestUpdateStatusRejectsUnknownTarget(t *testing.T) {
	svc, _, _ := newTestService(t)
	for _, bad := range []string{"submitted", "done", ""} {
		if _, err := svc.UpdateStatus(context.Background(), officer, "r1", bad); !apperr.IsCode(err, apperr.CodeValidation) {
			t.Fatalf("status %q: want validation error, got %v", bad, err)
		}
	}
}

func TestUpdateStatusTerminalIsImmutable(t *testing.T) {
	svc, mock, sink := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("select * from requests where id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status"}).
			AddRow("r1", "u1", StatusRejected))

	_, err := svc.UpdateStatus(context.Background(), officer, "r1", StatusUnderReview)
	if !apperr.IsCode(err, apperr.CodeConflict) {
		t.Fatalf("want conflict, got %v", err)
	}
	if len(sink.msgs) != 0 {
		t.Fatalf("terminal transition must not notify")
	}
}

func TestUpdateStatusNotifiesOwner(t *testing.T) {
	svc, mock, sink := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("select * from requests where id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status"}).
			AddRow("r1", "u1", StatusUnderReview))
	mock.ExpectQuery(regexp.QuoteMeta(
		"update requests set status = $1, reviewed_by = $2, updated_at = now() where id = $3 returning *")).
		WithArgs(StatusApproved, "o1", "r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status", "reviewed_by"}).
			AddRow("r1", "u1", StatusApproved, "o1"))

	updated, err := svc.Approve(context.Background(), officer, "r1")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if updated.String("reviewed_by") != "o1" {
		t.Fatalf("reviewed_by = %q", updated.String("reviewed_by"))
	}
	if len(sink.msgs) != 1 || sink.msgs[0] != "Your request #r1 is now approved." {
		t.Fatalf("unexpected notification: %+v", sink.msgs)
	}
	if sink.userIDs[0] != "u1" || !sink.emails[0] {
		t.Fatalf("notification must email the owner: %+v", sink)
	}
}

func TestRejectStraightFromSubmitted(t *testing.T) {
	svc, mock, sink := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("select * from requests where id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status"}).
			AddRow("r1", "u1", StatusSubmitted))
	mock.ExpectQuery("update requests set status").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status"}).
			AddRow("r1", "u1", StatusRejected))

	if _, err := svc.Reject(context.Background(), officer, "r1"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if sink.msgs[0] != "Your request #r1 is now rejected." {
		t.Fatalf("unexpected notification: %q", sink.msgs[0])
	}
}

func expectRequestRow(mock sqlmock.Sqlmock, paymentStatus string) {
	mock.ExpectQuery(regexp.QuoteMeta("select * from requests where id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status", "payment_status"}).
			AddRow("r1", "u1", StatusApproved, paymentStatus))
}

func TestPayOwnershipEnforced(t *testing.T) {
	svc, mock, _ := newTestService(t)
	expectRequestRow(mock, PaymentUnpaid)

	_, err := svc.Pay(context.Background(), stranger, "r1")
	if !apperr.IsCode(err, apperr.CodeForbidden) {
		t.Fatalf("want forbidden, got %v", err)
	}
}

func TestPayAlreadyPaid(t *testing.T) {
	svc, mock, _ := newTestService(t)
	expectRequestRow(mock, PaymentPaid)

	_, err := svc.Pay(context.Background(), citizen, "r1")
	if !apperr.IsCode(err, apperr.CodeConflict) {
		t.Fatalf("want conflict, got %v", err)
	}
}

func TestPayCommitsFeeAndFlipsPaymentStatus(t *testing.T) {
	svc, mock, sink := newTestService(t)
	expectRequestRow(mock, PaymentUnpaid)

	mock.ExpectQuery(regexp.QuoteMeta(
		"select s.fee from services s join requests r on r.service_id = s.id where r.id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"fee"}).AddRow(25.0))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(
		"insert into payments (id, request_id, amount, payment_method, status) values ($1, $2, $3, $4, $5)")).
		WithArgs("pay1", "r1", 25.0, "credit_card", "completed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(
		"update requests set payment_status = $1, updated_at = now() where id = $2")).
		WithArgs(PaymentPaid, "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payment, err := svc.Pay(context.Background(), citizen, "r1")
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if payment.Float64("amount") != 25.0 || payment.String("status") != "completed" {
		t.Fatalf("unexpected payment: %v", payment)
	}
	if len(sink.msgs) != 1 || sink.msgs[0] != "Payment of 25.00 received for request #r1." {
		t.Fatalf("unexpected notification: %+v", sink.msgs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPayRollsBackOnInsertFailure(t *testing.T) {
	svc, mock, sink := newTestService(t)
	expectRequestRow(mock, PaymentUnpaid)

	mock.ExpectQuery("select s.fee from services s").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"fee"}).AddRow(25.0))
	mock.ExpectBegin()
	mock.ExpectExec("insert into payments").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, err := svc.Pay(context.Background(), citizen, "r1"); err == nil {
		t.Fatal("expected error")
	}
	if len(sink.msgs) != 0 {
		t.Fatal("failed payment must not notify")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListAllRejectsUnknownStatusFilter(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.ListAll(context.Background(), "bogus", 1, 10); !apperr.IsCode(err, apperr.CodeBadRequest) {
		t.Fatalf("want bad request, got %v", err)
	}
}

func TestDetailNotFound(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery("select r\\.\\*").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.Detail(context.Background(), "missing")
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}
