package httpapi

import (
	"net/http"

	"egovportal.org/internal/apperr"
)

func (a *API) handleNotificationList(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	notifications, err := a.sink.List(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": notifications})
}

func (a *API) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")

	owns, err := a.identity.Owns(r.Context(), "notifications", id, p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !owns {
		writeError(w, r, apperr.Forbidden("you can only read your own notifications"))
		return
	}

	updated, err := a.sink.MarkRead(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
