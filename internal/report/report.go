// Package report computes the administrative aggregates the dashboard
// shows: request volumes, revenue, and user counts.
package report

import (
	"context"
	"database/sql"

	"egovportal.org/internal/apperr"
)

// Store is the query surface reports run against.
type Store interface {
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Service runs reporting queries.
type Service struct {
	store Store
}

// New binds the reporting service.
func New(store Store) *Service { return &Service{store: store} }

// StatusCount is one slice of a requests-by-status breakdown.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// NamedCount is a count keyed by a display name.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RoleCount is one slice of a users-by-role breakdown.
type RoleCount struct {
	Role  string `json:"role"`
	Count int    `json:"count"`
}

// RequestsByStatus counts requests per review status.
func (s *Service) RequestsByStatus(ctx context.Context) ([]StatusCount, error) {
	rows, err := s.store.Query(ctx,
		`select status, count(*) from requests group by status order by status`)
	if err != nil {
		return nil, apperr.Classify(err, "requests by status failed")
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, apperr.Classify(err, "requests by status failed")
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// RequestsByService counts requests per service, busiest first.
func (s *Service) RequestsByService(ctx context.Context) ([]NamedCount, error) {
	return s.namedCounts(ctx, `select s.name, count(r.id)
		from services s
		left join requests r on r.service_id = s.id
		group by s.name
		order by count(r.id) desc, s.name`)
}

// RequestsByDepartment counts requests per department, busiest first.
func (s *Service) RequestsByDepartment(ctx context.Context) ([]NamedCount, error) {
	return s.namedCounts(ctx, `select d.name, count(r.id)
		from departments d
		left join services s on s.department_id = d.id
		left join requests r on r.service_id = s.id
		group by d.name
		order by count(r.id) desc, d.name`)
}

func (s *Service) namedCounts(ctx context.Context, query string) ([]NamedCount, error) {
	rows, err := s.store.Query(ctx, query)
	if err != nil {
		return nil, apperr.Classify(err, "report query failed")
	}
	defer rows.Close()

	var out []NamedCount
	for rows.Next() {
		var nc NamedCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, apperr.Classify(err, "report query failed")
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

// TotalRevenue sums the fees of all paid requests.
func (s *Service) TotalRevenue(ctx context.Context) (float64, error) {
	rows, err := s.store.Query(ctx, `select coalesce(sum(s.fee), 0)
		from requests r
		join services s on s.id = r.service_id
		where r.payment_status = $1`, "paid")
	if err != nil {
		return 0, apperr.Classify(err, "total revenue failed")
	}
	defer rows.Close()

	var total float64
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, apperr.Classify(err, "total revenue failed")
		}
	}
	return total, rows.Err()
}

// UserStatistics counts users per role.
func (s *Service) UserStatistics(ctx context.Context) ([]RoleCount, error) {
	rows, err := s.store.Query(ctx,
		`select role, count(*) from users group by role order by role`)
	if err != nil {
		return nil, apperr.Classify(err, "user statistics failed")
	}
	defer rows.Close()

	var out []RoleCount
	for rows.Next() {
		var rc RoleCount
		if err := rows.Scan(&rc.Role, &rc.Count); err != nil {
			return nil, apperr.Classify(err, "user statistics failed")
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// UserActivity is one citizen's usage summary.
type UserActivity struct {
	UserID        string  `json:"userId"`
	RequestCount  int     `json:"requestCount"`
	ApprovedCount int     `json:"approvedCount"`
	TotalPaid     float64 `json:"totalPaid"`
}

// ActivityForUser summarizes one user's requests and payments.
func (s *Service) ActivityForUser(ctx context.Context, userID string) (*UserActivity, error) {
	rows, err := s.store.Query(ctx, `select
			(select count(*) from requests where user_id = $1),
			(select count(*) from requests where user_id = $1 and status = 'approved'),
			(select coalesce(sum(p.amount), 0)
				from payments p
				join requests r on r.id = p.request_id
				where r.user_id = $1)`, userID)
	if err != nil {
		return nil, apperr.Classify(err, "user activity failed")
	}
	defer rows.Close()

	activity := UserActivity{UserID: userID}
	if rows.Next() {
		if err := rows.Scan(&activity.RequestCount, &activity.ApprovedCount, &activity.TotalPaid); err != nil {
			return nil, apperr.Classify(err, "user activity failed")
		}
	}
	return &activity, rows.Err()
}

// Overview bundles the dashboard aggregates into one response.
type Overview struct {
	RequestsByStatus     []StatusCount `json:"requestsByStatus"`
	RequestsByService    []NamedCount  `json:"requestsByService"`
	RequestsByDepartment []NamedCount  `json:"requestsByDepartment"`
	TotalRevenue         float64       `json:"totalRevenue"`
	Users                []RoleCount   `json:"users"`
}

// Dashboard runs every aggregate and returns the combined overview.
func (s *Service) Dashboard(ctx context.Context) (*Overview, error) {
	byStatus, err := s.RequestsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	byService, err := s.RequestsByService(ctx)
	if err != nil {
		return nil, err
	}
	byDepartment, err := s.RequestsByDepartment(ctx)
	if err != nil {
		return nil, err
	}
	revenue, err := s.TotalRevenue(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.UserStatistics(ctx)
	if err != nil {
		return nil, err
	}
	return &Overview{
		RequestsByStatus:     byStatus,
		RequestsByService:    byService,
		RequestsByDepartment: byDepartment,
		TotalRevenue:         revenue,
		Users:                users,
	}, nil
}
