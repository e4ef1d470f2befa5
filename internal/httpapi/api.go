// Package httpapi is the portal's HTTP surface: routing, middleware, and
// the JSON handlers over the domain services.
package httpapi

import (
	"net/http"

	"egovportal.org/internal/auth"
	"egovportal.org/internal/catalog"
	"egovportal.org/internal/config"
	"egovportal.org/internal/identity"
	"egovportal.org/internal/lifecycle"
	"egovportal.org/internal/notify"
	"egovportal.org/internal/obs"
	"egovportal.org/internal/report"
	"egovportal.org/internal/search"
	"egovportal.org/internal/store"
)

// Deps carries everything the API serves.
type Deps struct {
	Version   string
	Config    config.Config
	Store     *store.Manager
	Tokens    *auth.TokenSource
	Identity  *identity.Service
	Lifecycle *lifecycle.Service
	Catalog   *catalog.Catalog
	Reports   *report.Service
	Search    *search.Service
	Sink      *notify.Sink
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	version   string
	cfg       config.Config
	store     *store.Manager
	tokens    *auth.TokenSource
	identity  *identity.Service
	lifecycle *lifecycle.Service
	catalog   *catalog.Catalog
	reports   *report.Service
	search    *search.Service
	sink      *notify.Sink
}

// New wires the routes.
func New(d Deps) *API {
	a := &API{
		mux:       http.NewServeMux(),
		version:   d.Version,
		cfg:       d.Config,
		store:     d.Store,
		tokens:    d.Tokens,
		identity:  d.Identity,
		lifecycle: d.Lifecycle,
		catalog:   d.Catalog,
		reports:   d.Reports,
		search:    d.Search,
		sink:      d.Sink,
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	// auth + profile; credential endpoints get their own strict bucket
	// against brute forcing
	a.mux.Handle("POST /v1/auth/register", RateLimit(http.HandlerFunc(a.handleRegister), 5, 1))
	a.mux.Handle("POST /v1/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), 5, 1))
	a.mux.HandleFunc("GET /v1/profile", a.handleProfile)
	a.mux.HandleFunc("PATCH /v1/profile", a.handleProfileUpdate)
	a.mux.HandleFunc("POST /v1/profile/password", a.handlePasswordChange)

	// requests
	a.mux.HandleFunc("POST /v1/requests", a.handleRequestSubmit)
	a.mux.HandleFunc("GET /v1/requests", a.handleRequestList)
	a.mux.HandleFunc("GET /v1/requests/search", a.handleRequestSearch)
	a.mux.HandleFunc("GET /v1/requests/{id}", a.handleRequestDetail)
	a.mux.HandleFunc("GET /v1/requests/{id}/documents", a.handleRequestDocuments)
	a.mux.HandleFunc("POST /v1/requests/{id}/pay", a.handleRequestPay)
	a.mux.HandleFunc("POST /v1/requests/{id}/status", a.handleRequestStatus)
	a.mux.HandleFunc("POST /v1/requests/{id}/approve", a.handleRequestApprove)
	a.mux.HandleFunc("POST /v1/requests/{id}/reject", a.handleRequestReject)

	// notifications
	a.mux.HandleFunc("GET /v1/notifications", a.handleNotificationList)
	a.mux.HandleFunc("POST /v1/notifications/{id}/read", a.handleNotificationRead)

	// catalog
	a.mux.HandleFunc("GET /v1/departments", a.handleDepartmentList)
	a.mux.HandleFunc("POST /v1/departments", a.handleDepartmentCreate)
	a.mux.HandleFunc("GET /v1/departments/{id}", a.handleDepartmentGet)
	a.mux.HandleFunc("PATCH /v1/departments/{id}", a.handleDepartmentUpdate)
	a.mux.HandleFunc("DELETE /v1/departments/{id}", a.handleDepartmentDelete)
	a.mux.HandleFunc("GET /v1/departments/{id}/services", a.handleDepartmentServices)
	a.mux.HandleFunc("GET /v1/departments/{id}/users", a.handleDepartmentUsers)
	a.mux.HandleFunc("GET /v1/services", a.handleServiceList)
	a.mux.HandleFunc("POST /v1/services", a.handleServiceCreate)
	a.mux.HandleFunc("GET /v1/services/{id}", a.handleServiceGet)
	a.mux.HandleFunc("PATCH /v1/services/{id}", a.handleServiceUpdate)
	a.mux.HandleFunc("DELETE /v1/services/{id}", a.handleServiceDelete)

	// user administration
	a.mux.HandleFunc("GET /v1/users", a.handleUserList)
	a.mux.HandleFunc("POST /v1/users", a.handleUserCreate)
	a.mux.HandleFunc("GET /v1/users/{id}", a.handleUserGet)
	a.mux.HandleFunc("GET /v1/users/{id}/activity", a.handleUserActivity)
	a.mux.HandleFunc("PATCH /v1/users/{id}/role", a.handleUserSetRole)
	a.mux.HandleFunc("PATCH /v1/users/{id}/department", a.handleUserAssignDepartment)
	a.mux.HandleFunc("DELETE /v1/users/{id}", a.handleUserDelete)

	// reporting
	a.mux.HandleFunc("GET /v1/reports/dashboard", a.handleReportDashboard)
	a.mux.HandleFunc("GET /v1/reports/revenue", a.handleReportRevenue)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.cfg.Security.RateLimitBurst, a.cfg.Security.RateLimitPerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
