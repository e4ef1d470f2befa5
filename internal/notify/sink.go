// Package notify persists user notifications and best-effort dispatches the
// matching email. The row is the durable side effect; delivery runs on an
// outbox worker after the write lands, and its failures are logged but never
// reach the caller.
package notify

import (
	"context"
	"fmt"
	"sync"

	"egovportal.org/internal/obs"
	"egovportal.org/internal/record"
)

var notificationTable = record.Table{
	Name:         "notifications",
	Columns:      []string{"id", "user_id", "message", "is_read", "created_at", "updated_at"},
	DefaultOrder: "created_at",
	GeneratedID:  true,
}

const emailSubject = "E-Government Portal Notification"

type emailJob struct {
	to      string
	name    string
	message string
}

// Sink stores notifications and hands delivery to its worker.
type Sink struct {
	notifications *record.Service
	users         *record.Service
	mailer        Mailer
	appURL        string

	queue chan emailJob
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewSink builds the sink. mailer may be nil, in which case email delivery
// is disabled and only the durable row is written.
func NewSink(store record.Store, users *record.Service, mailer Mailer, appURL string) *Sink {
	s := &Sink{
		notifications: record.New(store, notificationTable),
		users:         users,
		mailer:        mailer,
		appURL:        appURL,
		queue:         make(chan emailJob, 64),
	}
	if mailer != nil {
		s.wg.Add(1)
		go s.deliver()
	}
	return s
}

func (s *Sink) deliver() {
	defer s.wg.Done()
	for job := range s.queue {
		body := fmt.Sprintf(
			"<p>Hello %s,</p><p>%s</p><p>Please log in at <a href=%q>%s</a> to view more details.</p>",
			job.name, job.message, s.appURL, s.appURL)
		if err := s.mailer.Send(context.Background(), job.to, emailSubject, body); err != nil {
			obs.Warn("email delivery failed", map[string]any{
				"to":    job.to,
				"error": err.Error(),
			})
		}
	}
}

// Notify persists a notification row and, when sendEmail is set, enqueues
// best-effort email delivery. Persist failures are logged and swallowed:
// the caller's state transition must not fail because messaging did.
func (s *Sink) Notify(ctx context.Context, userID, message string, sendEmail bool) {
	row, err := s.notifications.Create(ctx, record.Row{
		"user_id": userID,
		"message": message,
	})
	if err != nil {
		obs.Error("notification persist failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		return
	}
	_ = row

	if !sendEmail || s.mailer == nil {
		return
	}

	user, err := s.users.FindByID(ctx, userID, "id", "name", "email")
	if err != nil {
		obs.Warn("notification email lookup failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		return
	}

	job := emailJob{to: user.String("email"), name: user.String("name"), message: message}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- job:
	default:
		obs.Warn("notification email queue full, dropping", map[string]any{"user_id": userID})
	}
}

// MarkRead flips a notification's read flag. No cascading effects.
func (s *Sink) MarkRead(ctx context.Context, notificationID string) (record.Row, error) {
	return s.notifications.Update(ctx, notificationID, record.Row{"is_read": true})
}

// List returns a user's notifications, newest first.
func (s *Sink) List(ctx context.Context, userID string) ([]record.Row, error) {
	return s.notifications.FindAll(ctx, record.ListOptions{
		Filters: record.Filters{record.Eq("user_id", userID)},
		Limit:   100,
	})
}

// Close stops the delivery worker after draining queued jobs.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.queue)
	s.wg.Wait()
}
