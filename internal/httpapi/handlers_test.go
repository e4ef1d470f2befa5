package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"

	"egovportal.org/internal/auth"
	"egovportal.org/internal/catalog"
	"egovportal.org/internal/config"
	"egovportal.org/internal/identity"
	"egovportal.org/internal/ids"
	"egovportal.org/internal/lifecycle"
	"egovportal.org/internal/notify"
	"egovportal.org/internal/report"
	"egovportal.org/internal/search"
	"egovportal.org/internal/store"
)

func newTestAPI(t *testing.T) (*API, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mgr := store.NewManagerWithDB(db, store.Config{})
	tokens, err := auth.NewTokenSource("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	ident := identity.New(mgr, bcrypt.MinCost)
	sink := notify.NewSink(mgr, ident.Users(), nil, "http://localhost:8080")
	t.Cleanup(sink.Close)
	cat := catalog.New(mgr)

	cfg := config.Config{
		App: config.App{Name: "E-Government Portal", Env: "test"},
		Security: config.Security{
			RateLimitBurst:  100,
			RateLimitPerSec: 100,
		},
		Pagination: config.Pagination{DefaultLimit: 10, MaxLimit: 100},
	}

	api := New(Deps{
		Version:   "test",
		Config:    cfg,
		Store:     mgr,
		Tokens:    tokens,
		Identity:  ident,
		Lifecycle: lifecycle.New(mgr, cat.Services(), sink, ids.New),
		Catalog:   cat,
		Reports:   report.New(mgr),
		Search:    search.New(mgr, 100),
		Sink:      sink,
	})
	return api, mock
}

func do(t *testing.T, api *API, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(authHeader, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := do(t, api, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Fatalf("body = %v", body)
	}
}

func TestInfoIsPublic(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := do(t, api, http.MethodGet, "/v1/info", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	api, _ := newTestAPI(t)

	// authenticated caller, nonexistent path
	token, _, _ := mustToken(t, api, "u1", auth.RoleCitizen)
	rec := do(t, api, http.MethodGet, "/v1/nope", token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func mustToken(t *testing.T, api *API, userID, role string) (string, time.Time, error) {
	t.Helper()
	token, exp, err := api.tokens.Generate(userID, role)
	if err != nil {
		t.Fatal(err)
	}
	return token, exp, nil
}

func TestRegisterThenProfile(t *testing.T) {
	api, mock := newTestAPI(t)

	mock.ExpectQuery(regexp.QuoteMeta("select * from users where email = $1 limit 1")).
		WithArgs("alice@example.org").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta(
		"insert into users (id, name, email, password, role) values ($1, $2, $3, $4, $5) returning *")).
		WithArgs(sqlmock.AnyArg(), "Alice", "alice@example.org", sqlmock.AnyArg(), auth.RoleCitizen).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role"}).
			AddRow("u1", "Alice", "alice@example.org", auth.RoleCitizen))

	rec := do(t, api, http.MethodPost, "/v1/auth/register", "",
		`{"name":"Alice","email":"Alice@Example.org","password":"hunter22"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}
	var reg struct {
		Token string         `json:"token"`
		User  map[string]any `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &reg); err != nil {
		t.Fatal(err)
	}
	if reg.Token == "" {
		t.Fatal("no token issued")
	}
	if _, leaked := reg.User["password"]; leaked {
		t.Fatal("password hash leaked in response")
	}

	mock.ExpectQuery(regexp.QuoteMeta("select * from users where id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role"}).
			AddRow("u1", "Alice", "alice@example.org", auth.RoleCitizen))

	rec = do(t, api, http.MethodGet, "/v1/profile", reg.Token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("profile status = %d: %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRegisterCannotGrantRole(t *testing.T) {
	api, _ := newTestAPI(t)

	// unknown field rejected outright by the strict decoder
	rec := do(t, api, http.MethodPost, "/v1/auth/register", "",
		`{"name":"Eve","email":"eve@example.org","password":"pw","is_admin":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAdminCreatesUserWithRole(t *testing.T) {
	api, mock := newTestAPI(t)
	admin, _, _ := mustToken(t, api, "a1", auth.RoleAdmin)

	mock.ExpectQuery(regexp.QuoteMeta("select * from users where email = $1 limit 1")).
		WithArgs("officer@egov.example").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("insert into users").
		WithArgs(sqlmock.AnyArg(), "Omar", "officer@egov.example", sqlmock.AnyArg(), auth.RoleOfficer).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role"}).AddRow("u2", auth.RoleOfficer))

	rec := do(t, api, http.MethodPost, "/v1/users", admin,
		`{"name":"Omar","email":"officer@egov.example","password":"pw123456","role":"officer"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCitizenCannotApprove(t *testing.T) {
	api, _ := newTestAPI(t)
	token, _, _ := mustToken(t, api, "u1", auth.RoleCitizen)

	rec := do(t, api, http.MethodPost, "/v1/requests/r1/approve", token, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDashboardRequiresElevatedRole(t *testing.T) {
	api, _ := newTestAPI(t)

	officer, _, _ := mustToken(t, api, "o1", auth.RoleOfficer)
	rec := do(t, api, http.MethodGet, "/v1/reports/dashboard", officer, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("officer status = %d", rec.Code)
	}
}

func TestDepartmentCreateAdminOnly(t *testing.T) {
	api, mock := newTestAPI(t)

	citizen, _, _ := mustToken(t, api, "u1", auth.RoleCitizen)
	rec := do(t, api, http.MethodPost, "/v1/departments", citizen, `{"name":"Interior"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("citizen status = %d", rec.Code)
	}

	mock.ExpectQuery("insert into departments").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("d1", "Interior"))

	admin, _, _ := mustToken(t, api, "a1", auth.RoleAdmin)
	rec = do(t, api, http.MethodPost, "/v1/departments", admin, `{"name":"Interior"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestErrorEnvelope(t *testing.T) {
	api, mock := newTestAPI(t)
	token, _, _ := mustToken(t, api, "u1", auth.RoleCitizen)

	mock.ExpectQuery(regexp.QuoteMeta("select id from services where id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := do(t, api, http.MethodPost, "/v1/requests", token, `{"serviceId":"missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != "NOT_FOUND" || body.Error.Message != "service not found" {
		t.Fatalf("error = %+v", body.Error)
	}
	if body.RequestID == "" {
		t.Fatal("no request id in error envelope")
	}
}
