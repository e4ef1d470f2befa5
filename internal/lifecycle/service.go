// Package lifecycle owns the service-request state machine: submission,
// review transitions, and payment. Every status change writes a notification
// for the request owner; that side effect is part of the transition, not an
// optional extra.
package lifecycle

import (
	"context"
	"database/sql"
	"fmt"

	"egovportal.org/internal/apperr"
	"egovportal.org/internal/auth"
	"egovportal.org/internal/obs"
	"egovportal.org/internal/record"
)

// Request review statuses. A request starts submitted; approved and rejected
// are terminal.
const (
	StatusSubmitted   = "submitted"
	StatusUnderReview = "under_review"
	StatusApproved    = "approved"
	StatusRejected    = "rejected"
)

// Payment statuses. Payment is an independent axis: paying a request never
// moves its review status, and review never touches payment.
const (
	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
)

// RequestTable registers the requests entity.
var RequestTable = record.Table{
	Name: "requests",
	Columns: []string{
		"id", "user_id", "service_id", "status", "payment_status",
		"reviewed_by", "notes", "submitted_at", "created_at", "updated_at",
	},
	DefaultOrder: "submitted_at",
	GeneratedID:  true,
}

// DocumentTable registers the supporting documents attached to a request.
var DocumentTable = record.Table{
	Name: "documents",
	Columns: []string{
		"id", "request_id", "file_name", "file_path", "mime_type",
		"created_at", "updated_at",
	},
	GeneratedID: true,
}

func terminal(status string) bool {
	return status == StatusApproved || status == StatusRejected
}

var reviewTargets = map[string]struct{}{
	StatusUnderReview: {},
	StatusApproved:    {},
	StatusRejected:    {},
}

// Notifier is the slice of the notification sink the lifecycle needs.
type Notifier interface {
	Notify(ctx context.Context, userID, message string, sendEmail bool)
}

// Service drives request submission, review, and payment.
type Service struct {
	store     record.Store
	requests  *record.Service
	documents *record.Service
	services  *record.Service
	ids       func() string
	sink      Notifier
}

// New binds the lifecycle service. services is the catalog accessor used to
// validate service references; newID mints payment ids.
func New(store record.Store, services *record.Service, sink Notifier, newID func() string) *Service {
	return &Service{
		store:     store,
		requests:  record.New(store, RequestTable),
		documents: record.New(store, DocumentTable),
		services:  services,
		ids:       newID,
		sink:      sink,
	}
}

// DocumentInput describes one uploaded file attached at submission.
type DocumentInput struct {
	FileName string `json:"fileName"`
	FilePath string `json:"filePath"`
	MimeType string `json:"mimeType"`
}

// SubmitInput carries a citizen's request submission.
type SubmitInput struct {
	ServiceID string          `json:"serviceId"`
	Notes     string          `json:"notes"`
	Documents []DocumentInput `json:"documents"`
}

// Submit files a new request for the calling citizen. The request starts
// submitted and unpaid; attached documents are stored alongside it.
func (s *Service) Submit(ctx context.Context, citizen auth.Principal, in SubmitInput) (record.Row, error) {
	if in.ServiceID == "" {
		return nil, apperr.Validation("serviceId is required")
	}
	if _, err := s.services.FindByID(ctx, in.ServiceID, "id"); err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return nil, apperr.NotFound("service not found")
		}
		return nil, err
	}

	row := record.Row{
		"user_id":        citizen.UserID,
		"service_id":     in.ServiceID,
		"status":         StatusSubmitted,
		"payment_status": PaymentUnpaid,
	}
	if in.Notes != "" {
		row["notes"] = in.Notes
	}
	request, err := s.requests.Create(ctx, row)
	if err != nil {
		return nil, err
	}
	requestID := request.String("id")

	for _, doc := range in.Documents {
		if doc.FileName == "" {
			continue
		}
		if _, err := s.documents.Create(ctx, record.Row{
			"request_id": requestID,
			"file_name":  doc.FileName,
			"file_path":  doc.FilePath,
			"mime_type":  doc.MimeType,
		}); err != nil {
			return nil, err
		}
	}

	obs.Event(ctx, "request.submitted", map[string]any{
		"request_id": requestID,
		"user_id":    citizen.UserID,
		"service_id": in.ServiceID,
	})
	s.sink.Notify(ctx, citizen.UserID,
		fmt.Sprintf("Your request #%s has been submitted.", requestID), false)
	return request, nil
}

// UpdateStatus moves a request to the given review status, records the
// reviewer, and notifies the owner. Terminal requests cannot move again;
// submitted requests may go straight to approved or rejected without an
// under_review stop.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Principal, requestID, status string) (record.Row, error) {
	if !actor.CanReview() {
		return nil, apperr.Forbidden("insufficient role to review requests")
	}
	if _, ok := reviewTargets[status]; !ok {
		return nil, apperr.Validation(fmt.Sprintf("invalid status %q", status))
	}

	current, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return nil, apperr.NotFound("request not found")
		}
		return nil, err
	}
	if terminal(current.String("status")) {
		return nil, apperr.Conflict(fmt.Sprintf("request is already %s", current.String("status")))
	}

	updated, err := s.requests.Update(ctx, requestID, record.Row{
		"status":      status,
		"reviewed_by": actor.UserID,
	})
	if err != nil {
		return nil, err
	}

	obs.Event(ctx, "request.status_changed", map[string]any{
		"request_id": requestID,
		"status":     status,
		"actor_id":   actor.UserID,
	})
	s.sink.Notify(ctx, updated.String("user_id"),
		fmt.Sprintf("Your request #%s is now %s.", requestID, status), true)
	return updated, nil
}

// Approve is UpdateStatus to approved.
func (s *Service) Approve(ctx context.Context, actor auth.Principal, requestID string) (record.Row, error) {
	return s.UpdateStatus(ctx, actor, requestID, StatusApproved)
}

// Reject is UpdateStatus to rejected.
func (s *Service) Reject(ctx context.Context, actor auth.Principal, requestID string) (record.Row, error) {
	return s.UpdateStatus(ctx, actor, requestID, StatusRejected)
}

// Pay settles a request's fee. The amount is the service's current fee; the
// payment row and the request's payment_status flip commit in one
// transaction. Citizens may only pay their own requests.
func (s *Service) Pay(ctx context.Context, actor auth.Principal, requestID string) (record.Row, error) {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return nil, apperr.NotFound("request not found")
		}
		return nil, err
	}
	ownerID := request.String("user_id")
	if actor.Is(auth.RoleCitizen) && ownerID != actor.UserID {
		return nil, apperr.Forbidden("you can only pay for your own requests")
	}
	if request.String("payment_status") == PaymentPaid {
		return nil, apperr.Conflict("request is already paid")
	}

	var fee float64
	rows, err := s.store.Query(ctx,
		`select s.fee from services s join requests r on r.service_id = s.id where r.id = $1`,
		requestID)
	if err != nil {
		return nil, apperr.Classify(err, "fetch service fee failed")
	}
	found := false
	for rows.Next() {
		if err := rows.Scan(&fee); err != nil {
			rows.Close()
			return nil, apperr.Classify(err, "fetch service fee failed")
		}
		found = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperr.Classify(err, "fetch service fee failed")
	}
	if !found {
		return nil, apperr.NotFound("service not found")
	}

	paymentID := s.ids()
	err = s.store.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`insert into payments (id, request_id, amount, payment_method, status) values ($1, $2, $3, $4, $5)`,
			paymentID, requestID, fee, "credit_card", "completed"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`update requests set payment_status = $1, updated_at = now() where id = $2`,
			PaymentPaid, requestID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Classify(err, "payment failed")
	}

	obs.Event(ctx, "request.paid", map[string]any{
		"request_id": requestID,
		"payment_id": paymentID,
		"amount":     fee,
	})
	s.sink.Notify(ctx, ownerID,
		fmt.Sprintf("Payment of %.2f received for request #%s.", fee, requestID), false)

	return record.Row{
		"id":             paymentID,
		"request_id":     requestID,
		"amount":         fee,
		"payment_method": "credit_card",
		"status":         "completed",
	}, nil
}
