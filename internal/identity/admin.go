package identity

import (
	"context"
	"fmt"

	"egovportal.org/internal/apperr"
	"egovportal.org/internal/auth"
	"egovportal.org/internal/obs"
	"egovportal.org/internal/record"
)

// Administrative operations on user accounts; the HTTP layer gates these
// behind the admin role.

// List returns users without password hashes, ordered by creation.
func (s *Service) List(ctx context.Context, limit, offset int) ([]record.Row, error) {
	return s.users.FindAll(ctx, record.ListOptions{
		Fields: publicFields,
		Order:  "ASC",
		Limit:  limit,
		Offset: offset,
	})
}

// ListByRole returns users holding the given role.
func (s *Service) ListByRole(ctx context.Context, role string, limit, offset int) ([]record.Row, error) {
	if !auth.ValidRole(role) {
		return nil, apperr.BadRequest(fmt.Sprintf("unknown role %q", role))
	}
	return s.users.FindAll(ctx, record.ListOptions{
		Filters: record.Filters{record.Eq("role", role)},
		Fields:  publicFields,
		Limit:   limit,
		Offset:  offset,
	})
}

// ListInDepartment returns the staff assigned to a department.
func (s *Service) ListInDepartment(ctx context.Context, departmentID string) ([]record.Row, error) {
	return s.users.FindAll(ctx, record.ListOptions{
		Filters: record.Filters{record.Eq("department_id", departmentID)},
		Fields:  publicFields,
		Limit:   100,
	})
}

// SetRole changes a user's role. This is the privileged path UpdateProfile
// deliberately refuses.
func (s *Service) SetRole(ctx context.Context, userID, role string) (record.Row, error) {
	if !auth.ValidRole(role) {
		return nil, apperr.Validation(fmt.Sprintf("unknown role %q", role))
	}
	user, err := s.users.Update(ctx, userID, record.Row{"role": role})
	if err != nil {
		return nil, err
	}
	obs.Event(ctx, "user.role.updated", map[string]any{"user_id": userID, "role": role})
	return sanitize(user), nil
}

// AssignDepartment places a staff user in a department, optionally with a
// job title.
func (s *Service) AssignDepartment(ctx context.Context, userID, departmentID, jobTitle string) (record.Row, error) {
	updates := record.Row{"department_id": departmentID}
	if jobTitle != "" {
		updates["job_title"] = jobTitle
	}
	user, err := s.users.Update(ctx, userID, updates)
	if err != nil {
		return nil, err
	}
	obs.Event(ctx, "user.department.assigned", map[string]any{
		"user_id":       userID,
		"department_id": departmentID,
	})
	return sanitize(user), nil
}

// Delete removes a user account. A user still referenced by requests or
// notifications surfaces as Conflict.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if _, err := s.users.Delete(ctx, userID); err != nil {
		return err
	}
	obs.Event(ctx, "user.deleted", map[string]any{"user_id": userID})
	return nil
}
