package lifecycle

import (
	"context"

	"egovportal.org/internal/apperr"
	"egovportal.org/internal/record"
)

// ListForCitizen returns a citizen's own requests with service names,
// newest first.
func (s *Service) ListForCitizen(ctx context.Context, userID string) ([]record.Row, error) {
	rows, err := s.store.Query(ctx, `select r.*, s.name as service_name, s.fee as service_fee
		from requests r
		join services s on s.id = r.service_id
		where r.user_id = $1
		order by r.submitted_at desc`, userID)
	if err != nil {
		return nil, apperr.Classify(err, "fetch requests failed")
	}
	defer rows.Close()
	out, err := record.ScanRows(rows)
	if err != nil {
		return nil, apperr.Classify(err, "fetch requests failed")
	}
	return out, nil
}

// ListAll returns a paginated page of requests for reviewers, optionally
// narrowed to one status.
func (s *Service) ListAll(ctx context.Context, status string, page, limit int) (*record.Page, error) {
	var filters record.Filters
	if status != "" {
		if _, ok := reviewTargets[status]; !ok && status != StatusSubmitted {
			return nil, apperr.BadRequest("unknown status filter")
		}
		filters = record.Filters{record.Eq("status", status)}
	}
	return s.requests.Paginate(ctx, record.PageParams{
		Page:    page,
		Limit:   limit,
		Filters: filters,
		OrderBy: "submitted_at",
		Order:   "DESC",
	})
}

// Detail returns one request joined with its service, department, and
// citizen names, or NotFound.
func (s *Service) Detail(ctx context.Context, requestID string) (record.Row, error) {
	rows, err := s.store.Query(ctx, `select r.*,
			s.name as service_name, s.fee as service_fee,
			d.name as department_name,
			u.name as citizen_name, u.email as citizen_email
		from requests r
		join services s on s.id = r.service_id
		join departments d on d.id = s.department_id
		join users u on u.id = r.user_id
		where r.id = $1`, requestID)
	if err != nil {
		return nil, apperr.Classify(err, "fetch request failed")
	}
	defer rows.Close()
	out, err := record.ScanRows(rows)
	if err != nil {
		return nil, apperr.Classify(err, "fetch request failed")
	}
	if len(out) == 0 {
		return nil, apperr.NotFound("request not found")
	}
	return out[0], nil
}

// Documents returns the files attached to a request.
func (s *Service) Documents(ctx context.Context, requestID string) ([]record.Row, error) {
	return s.documents.FindAll(ctx, record.ListOptions{
		Filters: record.Filters{record.Eq("request_id", requestID)},
		Order:   "ASC",
		Limit:   100,
	})
}

// Owner returns the user id that filed a request.
func (s *Service) Owner(ctx context.Context, requestID string) (string, error) {
	row, err := s.requests.FindByID(ctx, requestID, "id", "user_id")
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return "", apperr.NotFound("request not found")
		}
		return "", err
	}
	return row.String("user_id"), nil
}
