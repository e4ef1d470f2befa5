package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Host != "localhost" || cfg.Database.Port != 5432 {
		t.Fatalf("unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.Security.BcryptCost != 10 {
		t.Fatalf("unexpected bcrypt cost: %d", cfg.Security.BcryptCost)
	}
	if cfg.Pagination.DefaultLimit != 10 || cfg.Pagination.MaxLimit != 100 {
		t.Fatalf("unexpected pagination defaults: %+v", cfg.Pagination)
	}
	if !cfg.App.IsDevelopment() {
		t.Fatal("expected development mode")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_CONNECTION_TIMEOUT", "5000")
	t.Setenv("DEFAULT_PAGE_LIMIT", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Host != "db.internal" {
		t.Fatalf("DB_HOST not applied: %s", cfg.Database.Host)
	}
	if cfg.Database.ConnectTimeout != 5*time.Second {
		t.Fatalf("timeout not applied: %v", cfg.Database.ConnectTimeout)
	}
	if cfg.Pagination.DefaultLimit != 25 {
		t.Fatalf("page limit not applied: %d", cfg.Pagination.DefaultLimit)
	}
}

func TestValidateRejectsDevSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SESSION_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected production validation to fail")
	}
}

func TestDSN(t *testing.T) {
	d := Database{Host: "localhost", Port: 5432, User: "postgres", Password: "pw", Name: "egov"}
	dsn := d.DSN()
	for _, want := range []string{"host=localhost", "port=5432", "dbname=egov", "password=pw"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn %q missing %q", dsn, want)
		}
	}
}
