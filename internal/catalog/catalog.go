// Package catalog manages the reference data citizens submit requests
// against: departments and the services they offer.
package catalog

import (
	"context"
	"strings"

	"egovportal.org/internal/apperr"
	"egovportal.org/internal/obs"
	"egovportal.org/internal/record"
)

// DepartmentTable registers the departments entity.
var DepartmentTable = record.Table{
	Name:         "departments",
	Columns:      []string{"id", "name", "description", "created_at", "updated_at"},
	DefaultOrder: "name",
	GeneratedID:  true,
}

// ServiceTable registers the services entity. fee is the amount charged when
// a request against the service is paid.
var ServiceTable = record.Table{
	Name: "services",
	Columns: []string{
		"id", "department_id", "name", "description", "fee",
		"processing_days", "created_at", "updated_at",
	},
	DefaultOrder: "name",
	GeneratedID:  true,
}

// Catalog exposes CRUD over departments and services.
type Catalog struct {
	store       record.Store
	departments *record.Service
	services    *record.Service
}

// New binds a Catalog to the store.
func New(store record.Store) *Catalog {
	return &Catalog{
		store:       store,
		departments: record.New(store, DepartmentTable),
		services:    record.New(store, ServiceTable),
	}
}

// Services returns the record accessor for the services table, for wiring
// into components that validate service references.
func (c *Catalog) Services() *record.Service { return c.services }

// DepartmentInput carries a department create or update.
type DepartmentInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateDepartment inserts a department.
func (c *Catalog) CreateDepartment(ctx context.Context, in DepartmentInput) (record.Row, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperr.Validation("department name is required")
	}
	row, err := c.departments.Create(ctx, record.Row{
		"name":        in.Name,
		"description": in.Description,
	})
	if err != nil {
		return nil, err
	}
	obs.Event(ctx, "department.created", map[string]any{"id": row.String("id"), "name": in.Name})
	return row, nil
}

// ListDepartments returns all departments ordered by name.
func (c *Catalog) ListDepartments(ctx context.Context) ([]record.Row, error) {
	return c.departments.FindAll(ctx, record.ListOptions{Order: "ASC", Limit: 500})
}

// GetDepartment fetches one department.
func (c *Catalog) GetDepartment(ctx context.Context, id string) (record.Row, error) {
	return c.departments.FindByID(ctx, id)
}

// UpdateDepartment patches a department's name or description.
func (c *Catalog) UpdateDepartment(ctx context.Context, id string, in DepartmentInput) (record.Row, error) {
	patch := record.Row{}
	if name := strings.TrimSpace(in.Name); name != "" {
		patch["name"] = name
	}
	if in.Description != "" {
		patch["description"] = in.Description
	}
	return c.departments.Update(ctx, id, patch)
}

// DeleteDepartment removes a department. A department still referenced by
// services or users fails with Conflict rather than cascading.
func (c *Catalog) DeleteDepartment(ctx context.Context, id string) error {
	row, err := c.departments.Delete(ctx, id)
	if err != nil {
		return err
	}
	obs.Event(ctx, "department.deleted", map[string]any{"id": id, "name": row.String("name")})
	return nil
}

// ServiceInput carries a service create or update.
type ServiceInput struct {
	DepartmentID   string  `json:"departmentId"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Fee            float64 `json:"fee"`
	ProcessingDays int     `json:"processingDays"`
}

// CreateService inserts a service. The department reference is enforced by
// the foreign key; a dangling departmentId surfaces as BadRequest.
func (c *Catalog) CreateService(ctx context.Context, in ServiceInput) (record.Row, error) {
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		return nil, apperr.Validation("service name is required")
	case in.DepartmentID == "":
		return nil, apperr.Validation("departmentId is required")
	case in.Fee < 0:
		return nil, apperr.Validation("fee must be non-negative")
	case in.ProcessingDays < 0:
		return nil, apperr.Validation("processingDays must be non-negative")
	}
	row, err := c.services.Create(ctx, record.Row{
		"department_id":   in.DepartmentID,
		"name":            in.Name,
		"description":     in.Description,
		"fee":             in.Fee,
		"processing_days": in.ProcessingDays,
	})
	if err != nil {
		return nil, err
	}
	obs.Event(ctx, "service.created", map[string]any{"id": row.String("id"), "name": in.Name})
	return row, nil
}

// ListServices returns every service with its department name attached.
func (c *Catalog) ListServices(ctx context.Context) ([]record.Row, error) {
	rows, err := c.store.Query(ctx, `select s.*, d.name as department_name
		from services s
		join departments d on d.id = s.department_id
		order by s.name asc`)
	if err != nil {
		return nil, apperr.Classify(err, "fetch services failed")
	}
	defer rows.Close()
	out, err := record.ScanRows(rows)
	if err != nil {
		return nil, apperr.Classify(err, "fetch services failed")
	}
	return out, nil
}

// ListServicesByDepartment returns a department's services ordered by name.
func (c *Catalog) ListServicesByDepartment(ctx context.Context, departmentID string) ([]record.Row, error) {
	return c.services.FindAll(ctx, record.ListOptions{
		Filters: record.Filters{record.Eq("department_id", departmentID)},
		Order:   "ASC",
		Limit:   500,
	})
}

// GetService fetches one service.
func (c *Catalog) GetService(ctx context.Context, id string) (record.Row, error) {
	return c.services.FindByID(ctx, id)
}

// UpdateService patches a service.
func (c *Catalog) UpdateService(ctx context.Context, id string, patch record.Row) (record.Row, error) {
	if fee, ok := patch["fee"]; ok {
		if f, ok := fee.(float64); ok && f < 0 {
			return nil, apperr.Validation("fee must be non-negative")
		}
	}
	delete(patch, "id")
	return c.services.Update(ctx, id, patch)
}

// DeleteService removes a service. Services with submitted requests fail
// with Conflict via the foreign key.
func (c *Catalog) DeleteService(ctx context.Context, id string) error {
	row, err := c.services.Delete(ctx, id)
	if err != nil {
		return err
	}
	obs.Event(ctx, "service.deleted", map[string]any{"id": id, "name": row.String("name")})
	return nil
}
