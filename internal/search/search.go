// Package search builds the ad-hoc filtered queries the admin views use.
// Conditions are appended only for the criteria a caller actually supplies,
// always through positional parameters.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"egovportal.org/internal/apperr"
	"egovportal.org/internal/record"
)

// Store is the query surface searches run against.
type Store interface {
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Service runs cross-table searches.
type Service struct {
	store Store
	limit int
}

// New binds the search service. maxLimit caps how many rows one search may
// return; zero falls back to 100.
func New(store Store, maxLimit int) *Service {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &Service{store: store, limit: maxLimit}
}

// RequestQuery holds the optional request search criteria. Zero values mean
// "not filtered on".
type RequestQuery struct {
	RequestID   string
	CitizenName string
	ServiceName string
	Status      string
	From        time.Time
	To          time.Time
	Limit       int
}

// Requests searches requests across citizen and service names, status, and
// submission window, newest first.
func (s *Service) Requests(ctx context.Context, q RequestQuery) ([]record.Row, error) {
	var b strings.Builder
	b.WriteString(`select r.id, r.status, r.payment_status, r.submitted_at,
		u.name as citizen_name, s.name as service_name, d.name as department_name
		from requests r
		join users u on u.id = r.user_id
		join services s on s.id = r.service_id
		join departments d on d.id = s.department_id
		where 1=1`)

	var params []any
	add := func(expr string, value any) {
		params = append(params, value)
		fmt.Fprintf(&b, " and %s $%d", expr, len(params))
	}

	if q.RequestID != "" {
		add("r.id =", q.RequestID)
	}
	if q.CitizenName != "" {
		add("u.name ilike", "%"+q.CitizenName+"%")
	}
	if q.ServiceName != "" {
		add("s.name ilike", "%"+q.ServiceName+"%")
	}
	if q.Status != "" {
		add("r.status =", q.Status)
	}
	if !q.From.IsZero() {
		add("r.submitted_at >=", q.From)
	}
	if !q.To.IsZero() {
		add("r.submitted_at <=", q.To)
	}

	limit := q.Limit
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	params = append(params, limit)
	fmt.Fprintf(&b, " order by r.submitted_at desc limit $%d", len(params))

	rows, err := s.store.Query(ctx, b.String(), params...)
	if err != nil {
		return nil, apperr.Classify(err, "request search failed")
	}
	defer rows.Close()
	out, err := record.ScanRows(rows)
	if err != nil {
		return nil, apperr.Classify(err, "request search failed")
	}
	return out, nil
}

// Users searches users by name, email, or national id substring.
func (s *Service) Users(ctx context.Context, term string, limit, offset int) ([]record.Row, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, apperr.BadRequest("search term is required")
	}
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	if offset < 0 {
		offset = 0
	}

	pattern := "%" + term + "%"
	rows, err := s.store.Query(ctx, `select id, name, email, role, national_id, department_id
		from users
		where name ilike $1 or email ilike $1 or national_id ilike $1
		order by name asc
		limit $2 offset $3`, pattern, limit, offset)
	if err != nil {
		return nil, apperr.Classify(err, "user search failed")
	}
	defer rows.Close()
	out, err := record.ScanRows(rows)
	if err != nil {
		return nil, apperr.Classify(err, "user search failed")
	}
	return out, nil
}
