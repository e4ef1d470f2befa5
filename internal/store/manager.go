// Package store owns the pooled PostgreSQL connection: connect-time retry,
// parameterized query execution, transactions with guaranteed release, and
// the health probe the readiness endpoint reports.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"egovportal.org/internal/obs"
)

// Config tunes the pool and the connect retry policy.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
	MaxRetries      int
	RetryBase       time.Duration
	SlowThreshold   time.Duration
	// LogQueries enables slow-statement warnings; keep off in production.
	LogQueries bool
}

func (c Config) withDefaults() Config {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 20
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 15 * time.Minute
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 2 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = time.Second
	}
	return c
}

// Manager is the single shared handle to the relational store. Construct it
// once at process start and pass it into every component that needs it.
type Manager struct {
	cfg Config

	mu sync.Mutex
	db *sql.DB
}

// NewManager builds a Manager; no connection is made until Connect or the
// first query.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg.withDefaults()}
}

// NewManagerWithDB wraps an existing handle. Used by tests to inject sqlmock.
func NewManagerWithDB(db *sql.DB, cfg Config) *Manager {
	return &Manager{cfg: cfg.withDefaults(), db: db}
}

// Connect idempotently establishes the pool, pinging with up to MaxRetries
// retries at linearly increasing delay before failing with a terminal error
// that embeds the retry count and root cause.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx)
}

func (m *Manager) connectLocked(ctx context.Context) error {
	if m.db != nil {
		return nil
	}

	db, err := sql.Open("pgx", m.cfg.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(m.cfg.MaxOpenConns)
	db.SetMaxIdleConns(m.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(m.cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(m.cfg.ConnMaxIdleTime)

	var lastErr error
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			obs.Warn("retrying database connection", map[string]any{
				"attempt": attempt,
				"max":     m.cfg.MaxRetries,
			})
			select {
			case <-ctx.Done():
				_ = db.Close()
				return ctx.Err()
			case <-time.After(m.cfg.RetryBase * time.Duration(attempt)):
			}
		}
		pingCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			m.db = db
			obs.Info("database connected", nil)
			return nil
		}
		lastErr = err
	}
	_ = db.Close()
	return fmt.Errorf("database connection failed after %d retries: %w", m.cfg.MaxRetries, lastErr)
}

// ensure lazily connects before the first statement.
func (m *Manager) ensure(ctx context.Context) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		if err := m.connectLocked(ctx); err != nil {
			return nil, err
		}
	}
	return m.db, nil
}

// DB hands out the underlying pool handle for components that run their own
// statements, such as the migration runner.
func (m *Manager) DB(ctx context.Context) (*sql.DB, error) {
	return m.ensure(ctx)
}

// Query executes a parameterized statement returning rows. Failures are
// logged with the offending statement and parameters, then returned.
func (m *Manager) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	db, err := m.ensure(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := db.QueryContext(ctx, query, args...)
	m.observe(query, args, start, err)
	return rows, err
}

// Exec executes a parameterized statement that returns no rows.
func (m *Manager) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db, err := m.ensure(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := db.ExecContext(ctx, query, args...)
	m.observe(query, args, start, err)
	return res, err
}

func (m *Manager) observe(query string, args []any, start time.Time, err error) {
	elapsed := time.Since(start)
	if err != nil {
		obs.Error("query failed", map[string]any{
			"error":  err.Error(),
			"query":  truncate(query, 200),
			"params": fmt.Sprintf("%v", args),
		})
		return
	}
	if m.cfg.LogQueries && elapsed > m.cfg.SlowThreshold {
		obs.Warn("slow query", map[string]any{
			"duration_ms": elapsed.Milliseconds(),
			"query":       truncate(query, 100),
		})
	}
}

// Transaction acquires a dedicated connection, runs fn between BEGIN and
// COMMIT, rolls back on any failure, and releases the connection on every
// exit path.
func (m *Manager) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db, err := m.ensure(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Health is the structured result of a liveness probe; it never arrives as
// an error.
type Health struct {
	Healthy bool      `json:"healthy"`
	Time    time.Time `json:"timestamp,omitempty"`
	Version string    `json:"version,omitempty"`
	Pool    PoolStats `json:"pool"`
	Error   string    `json:"error,omitempty"`
}

// PoolStats reports pool utilization.
type PoolStats struct {
	Total   int `json:"total"`
	Idle    int `json:"idle"`
	InUse   int `json:"in_use"`
	Waiting int `json:"waiting"`
}

// HealthCheck probes the store and reports pool utilization. It never
// returns an error; failures are carried inside the result.
func (m *Manager) HealthCheck(ctx context.Context) Health {
	db, err := m.ensure(ctx)
	if err != nil {
		return Health{Healthy: false, Error: err.Error()}
	}

	var h Health
	row := db.QueryRowContext(ctx, `select now(), version()`)
	if err := row.Scan(&h.Time, &h.Version); err != nil {
		return Health{Healthy: false, Error: err.Error(), Pool: poolStats(db)}
	}
	h.Healthy = true
	h.Pool = poolStats(db)
	return h
}

func poolStats(db *sql.DB) PoolStats {
	s := db.Stats()
	return PoolStats{
		Total:   s.OpenConnections,
		Idle:    s.Idle,
		InUse:   s.InUse,
		Waiting: int(s.WaitCount),
	}
}

// Close releases the pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
