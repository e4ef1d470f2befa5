package httpapi

import (
	"net/http"
	"strconv"

	"egovportal.org/internal/apperr"
	"egovportal.org/internal/auth"
	"egovportal.org/internal/catalog"
	"egovportal.org/internal/identity"
	"egovportal.org/internal/record"
)

// --- catalog: departments ---

func (a *API) handleDepartmentList(w http.ResponseWriter, r *http.Request) {
	if _, err := principal(r); err != nil {
		writeError(w, r, err)
		return
	}
	departments, err := a.catalog.ListDepartments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": departments})
}

func (a *API) handleDepartmentCreate(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}
	var in catalog.DepartmentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	department, err := a.catalog.CreateDepartment(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, department)
}

func (a *API) handleDepartmentGet(w http.ResponseWriter, r *http.Request) {
	if _, err := principal(r); err != nil {
		writeError(w, r, err)
		return
	}
	department, err := a.catalog.GetDepartment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, department)
}

func (a *API) handleDepartmentUpdate(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}
	var in catalog.DepartmentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	department, err := a.catalog.UpdateDepartment(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, department)
}

func (a *API) handleDepartmentDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.catalog.DeleteDepartment(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDepartmentServices(w http.ResponseWriter, r *http.Request) {
	if _, err := principal(r); err != nil {
		writeError(w, r, err)
		return
	}
	services, err := a.catalog.ListServicesByDepartment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": services})
}

func (a *API) handleDepartmentUsers(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}
	users, err := a.identity.ListInDepartment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": users})
}

// --- catalog: services ---

func (a *API) handleServiceList(w http.ResponseWriter, r *http.Request) {
	if _, err := principal(r); err != nil {
		writeError(w, r, err)
		return
	}
	services, err := a.catalog.ListServices(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": services})
}

func (a *API) handleServiceCreate(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}
	var in catalog.ServiceInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	service, err := a.catalog.CreateService(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, service)
}

func (a *API) handleServiceGet(w http.ResponseWriter, r *http.Request) {
	if _, err := principal(r); err != nil {
		writeError(w, r, err)
		return
	}
	service, err := a.catalog.GetService(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, service)
}

func (a *API) handleServiceUpdate(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}
	var patch record.Row
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	service, err := a.catalog.UpdateService(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, service)
}

func (a *API) handleServiceDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.catalog.DeleteService(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- user administration ---

func (a *API) handleUserList(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 {
		limit = a.cfg.Pagination.DefaultLimit
	}
	if limit > a.cfg.Pagination.MaxLimit {
		limit = a.cfg.Pagination.MaxLimit
	}

	var (
		users []record.Row
		err   error
	)
	switch {
	case q.Get("q") != "":
		users, err = a.search.Users(r.Context(), q.Get("q"), limit, offset)
	case q.Get("role") != "":
		users, err = a.identity.ListByRole(r.Context(), q.Get("role"), limit, offset)
	default:
		users, err = a.identity.List(r.Context(), limit, offset)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": users})
}

// handleUserCreate lets an admin provision an account with any role, unlike
// self-registration which always yields a citizen.
func (a *API) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}
	var in identity.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := a.identity.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUserGet(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if !p.IsAdmin() && p.UserID != id {
		writeError(w, r, apperr.Forbidden("insufficient role"))
		return
	}
	user, err := a.identity.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleUserActivity: a user's own summary, or any user's for an admin.
func (a *API) handleUserActivity(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if !p.IsAdmin() && p.UserID != id {
		writeError(w, r, apperr.Forbidden("insufficient role"))
		return
	}
	activity, err := a.reports.ActivityForUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

type roleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleUserSetRole(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := a.identity.SetRole(r.Context(), r.PathValue("id"), req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type departmentAssignRequest struct {
	DepartmentID string `json:"departmentId"`
	JobTitle     string `json:"jobTitle"`
}

func (a *API) handleUserAssignDepartment(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}
	var req departmentAssignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := a.identity.AssignDepartment(r.Context(), r.PathValue("id"), req.DepartmentID, req.JobTitle)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	p, err := requireAdmin(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if p.UserID == id {
		badRequest(w, r, "you cannot delete your own account")
		return
	}
	if err := a.identity.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- reports ---

func (a *API) handleReportDashboard(w http.ResponseWriter, r *http.Request) {
	if _, err := requireRole(r, auth.RoleDepartmentHead, auth.RoleAdmin); err != nil {
		writeError(w, r, err)
		return
	}
	overview, err := a.reports.Dashboard(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (a *API) handleReportRevenue(w http.ResponseWriter, r *http.Request) {
	if _, err := requireRole(r, auth.RoleDepartmentHead, auth.RoleAdmin); err != nil {
		writeError(w, r, err)
		return
	}
	total, err := a.reports.TotalRevenue(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"totalRevenue": total})
}
