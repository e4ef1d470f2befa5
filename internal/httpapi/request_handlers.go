package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"egovportal.org/internal/apperr"
	"egovportal.org/internal/auth"
	"egovportal.org/internal/lifecycle"
	"egovportal.org/internal/search"
)

func (a *API) handleRequestSubmit(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in lifecycle.SubmitInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	request, err := a.lifecycle.Submit(r.Context(), p, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

// handleRequestList: citizens see their own requests, reviewers see a
// paginated view of everyone's, optionally filtered by status.
func (a *API) handleRequestList(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if p.Is(auth.RoleCitizen) {
		requests, err := a.lifecycle.ListForCitizen(r.Context(), p.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": requests})
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = a.cfg.Pagination.DefaultLimit
	}
	if limit > a.cfg.Pagination.MaxLimit {
		limit = a.cfg.Pagination.MaxLimit
	}
	result, err := a.lifecycle.ListAll(r.Context(), q.Get("status"), page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// canAccessRequest: reviewers may see any request, citizens only their own.
func (a *API) canAccessRequest(r *http.Request, p auth.Principal, requestID string) error {
	if p.CanReview() {
		return nil
	}
	owner, err := a.lifecycle.Owner(r.Context(), requestID)
	if err != nil {
		return err
	}
	if owner != p.UserID {
		return apperr.Forbidden("you can only view your own requests")
	}
	return nil
}

func (a *API) handleRequestDetail(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := a.canAccessRequest(r, p, id); err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := a.lifecycle.Detail(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleRequestDocuments(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := a.canAccessRequest(r, p, id); err != nil {
		writeError(w, r, err)
		return
	}
	docs, err := a.lifecycle.Documents(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": docs})
}

func (a *API) handleRequestPay(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payment, err := a.lifecycle.Pay(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := a.lifecycle.UpdateStatus(r.Context(), p, r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleRequestApprove(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := a.lifecycle.Approve(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleRequestReject(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := a.lifecycle.Reject(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleRequestSearch(w http.ResponseWriter, r *http.Request) {
	if _, err := requireReviewer(r); err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	query := search.RequestQuery{
		RequestID:   q.Get("requestId"),
		CitizenName: q.Get("citizen"),
		ServiceName: q.Get("service"),
		Status:      q.Get("status"),
		Limit:       limit,
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			badRequest(w, r, "from must be RFC 3339")
			return
		}
		query.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			badRequest(w, r, "to must be RFC 3339")
			return
		}
		query.To = t
	}

	results, err := a.search.Requests(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": results})
}
