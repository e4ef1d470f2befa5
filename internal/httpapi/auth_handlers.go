package httpapi

import (
	"net/http"
	"time"

	"egovportal.org/internal/identity"
	"egovportal.org/internal/record"
)

type tokenResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      record.Row `json:"user"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in identity.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	// self-registration is always a citizen account
	in.Role = ""

	user, err := a.identity.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, expiresAt, err := a.tokens.Generate(user.String("id"), user.String("role"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		badRequest(w, r, "email and password are required")
		return
	}

	user, err := a.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, expiresAt, err := a.tokens.Generate(user.String("id"), user.String("role"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	user, err := a.identity.Get(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var updates record.Row
	if err := decodeJSON(r, &updates); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := a.identity.UpdateProfile(r.Context(), p.UserID, updates)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (a *API) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req passwordChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		badRequest(w, r, "currentPassword and newPassword are required")
		return
	}
	if err := a.identity.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "password changed"})
}
