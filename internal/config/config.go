// Package config loads portal configuration from the environment,
// optionally seeded by a .env file during development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config groups every tunable the portal reads at startup.
type Config struct {
	App        App
	Database   Database
	Email      Email
	Security   Security
	Pagination Pagination
}

type App struct {
	Name string
	URL  string
	Port int
	Env  string
}

func (a App) IsProduction() bool  { return a.Env == "production" }
func (a App) IsDevelopment() bool { return !a.IsProduction() }

type Database struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	MaxConns       int
	MinConns       int
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
}

// DSN renders a key/value PostgreSQL connection string for the pgx driver.
func (d Database) DSN() string {
	parts := []string{
		"host=" + d.Host,
		fmt.Sprintf("port=%d", d.Port),
		"user=" + d.User,
		"dbname=" + d.Name,
		"sslmode=disable",
	}
	if d.Password != "" {
		parts = append(parts, "password="+d.Password)
	}
	return strings.Join(parts, " ")
}

type Email struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether SMTP delivery is configured at all.
func (e Email) Enabled() bool { return e.Host != "" && e.Username != "" }

type Security struct {
	BcryptCost      int
	SessionSecret   string
	TokenTTL        time.Duration
	RateLimitBurst  int
	RateLimitPerSec int
}

type Pagination struct {
	DefaultLimit int
	MaxLimit     int
}

const devSecret = "dev-secret-change-this"

// Load reads configuration from the environment. A missing .env file is not
// an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		App: App{
			Name: envStr("APP_NAME", "E-Government Portal"),
			URL:  envStr("APP_URL", "http://localhost:8080"),
			Port: envInt("PORT", 8080),
			Env:  envStr("APP_ENV", "development"),
		},
		Database: Database{
			Host:           envStr("DB_HOST", "localhost"),
			Port:           envInt("DB_PORT", 5432),
			User:           envStr("DB_USER", "postgres"),
			Password:       envStr("DB_PASSWORD", ""),
			Name:           envStr("DB_NAME", "egovernment"),
			MaxConns:       envInt("DB_POOL_MAX", 20),
			MinConns:       envInt("DB_POOL_MIN", 5),
			IdleTimeout:    envMillis("DB_IDLE_TIMEOUT", 30_000),
			ConnectTimeout: envMillis("DB_CONNECTION_TIMEOUT", 2_000),
		},
		Email: Email{
			Host:     envStr("EMAIL_HOST", ""),
			Port:     envInt("EMAIL_PORT", 587),
			Username: envStr("EMAIL_USER", ""),
			Password: envStr("EMAIL_PASS", ""),
			From:     envStr("EMAIL_FROM", "noreply@egov.example"),
		},
		Security: Security{
			BcryptCost:      envInt("BCRYPT_ROUNDS", 10),
			SessionSecret:   envStr("SESSION_SECRET", devSecret),
			TokenTTL:        envMillis("TOKEN_TTL", 86_400_000),
			RateLimitBurst:  envInt("RATE_LIMIT_BURST", 20),
			RateLimitPerSec: envInt("RATE_LIMIT_PER_SEC", 10),
		},
		Pagination: Pagination{
			DefaultLimit: envInt("DEFAULT_PAGE_LIMIT", 10),
			MaxLimit:     envInt("MAX_PAGE_LIMIT", 100),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate fails fast on settings that must not reach production unset.
func (c Config) Validate() error {
	if !c.App.IsProduction() {
		return nil
	}
	var errs []string
	if c.Security.SessionSecret == devSecret || c.Security.SessionSecret == "" {
		errs = append(errs, "SESSION_SECRET must be set in production")
	}
	if c.Email.Host != "" && (c.Email.Username == "" || c.Email.Password == "") {
		errs = append(errs, "email credentials are required when EMAIL_HOST is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envMillis(key string, defMillis int) time.Duration {
	return time.Duration(envInt(key, defMillis)) * time.Millisecond
}
