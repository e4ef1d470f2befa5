package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"egovportal.org/internal/apperr"
	"egovportal.org/internal/obs"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

type errorResponse struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"requestId,omitempty"`
}

// writeError renders any error through the taxonomy. Unclassified errors
// become 500 with a generic message; the cause stays in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := apperr.From(err)
	if !ok {
		ae = apperr.Internal("internal server error").Wrap(err)
	}
	if ae.Status >= http.StatusInternalServerError {
		obs.Error("request failed", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": obs.RequestIDFrom(r.Context()),
			"error":      err.Error(),
		})
	}
	writeJSON(w, ae.Status, errorResponse{
		Error:     errorBody{Code: ae.Code, Message: ae.Message},
		RequestID: obs.RequestIDFrom(r.Context()),
	})
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, apperr.BadRequest(msg))
}

// decodeJSON strictly decodes a request body, rejecting unknown fields and
// trailing garbage.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.BadRequest("request body too large")
		}
		return apperr.BadRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	if dec.More() {
		return apperr.BadRequest("invalid request body: unexpected trailing data")
	}
	return nil
}
