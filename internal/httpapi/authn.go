package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"egovportal.org/internal/apperr"
	"egovportal.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = map[string]struct{}{
	"/healthz":          {},
	"/readyz":           {},
	"/metrics":          {},
	"/v1/info":          {},
	"/v1/auth/register": {},
	"/v1/auth/login":    {},
}

// withAuth validates the bearer token on every non-public request and puts
// the resulting principal on the context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, apperr.Unauthorized(err.Error()))
			return
		}
		claims, err := a.tokens.Validate(token)
		if err != nil {
			writeError(w, r, apperr.Unauthorized("invalid or expired token"))
			return
		}

		principal := auth.PrincipalFromClaims(claims)
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// principal returns the authenticated caller or an Unauthorized error. The
// auth middleware guarantees it for protected routes; this covers handlers
// called outside that chain.
func principal(r *http.Request) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return auth.Principal{}, apperr.Unauthorized("authentication required")
	}
	return p, nil
}

// requireRole returns the caller if they hold one of the given roles.
func requireRole(r *http.Request, roles ...string) (auth.Principal, error) {
	p, err := principal(r)
	if err != nil {
		return auth.Principal{}, err
	}
	for _, role := range roles {
		if p.Role == role {
			return p, nil
		}
	}
	return auth.Principal{}, apperr.Forbidden("insufficient role")
}

func requireAdmin(r *http.Request) (auth.Principal, error) {
	return requireRole(r, auth.RoleAdmin)
}

func requireReviewer(r *http.Request) (auth.Principal, error) {
	return requireRole(r, auth.RoleOfficer, auth.RoleDepartmentHead, auth.RoleAdmin)
}
