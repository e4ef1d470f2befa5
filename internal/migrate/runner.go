// Package migrate applies the portal's on-disk SQL migrations and seed
// files, with bookkeeping tables recording what already ran.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"egovportal.org/internal/obs"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"
)

// Runner executes migrations from migrationsDir (pairs of *.up.sql and
// *.down.sql) and idempotent seed files from seedsDir.
type Runner struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
}

// NewRunner constructs a Runner over an open database handle.
func NewRunner(db *sql.DB, migrationsDir, seedsDir string) *Runner {
	return &Runner{db: db, migrationsDir: migrationsDir, seedsDir: seedsDir}
}

// Applied is one bookkeeping row.
type Applied struct {
	Name      string
	AppliedAt time.Time
}

// Up applies every pending up migration in filename order and returns how
// many ran.
func (r *Runner) Up(ctx context.Context) (int, error) {
	if err := r.ensureTables(ctx); err != nil {
		return 0, err
	}
	done, err := r.applied(ctx, migrationsTable)
	if err != nil {
		return 0, err
	}
	files, err := listSQL(r.migrationsDir, ".up.sql")
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, f := range files {
		if _, ok := done[f.name]; ok {
			continue
		}
		if err := r.execFile(ctx, f.path); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", f.name, err)
		}
		if err := r.record(ctx, migrationsTable, f.name); err != nil {
			return applied, err
		}
		obs.Info("migration applied", map[string]any{"name": f.name})
		applied++
	}
	return applied, nil
}

// Down rolls back the most recently applied migration and returns its name.
func (r *Runner) Down(ctx context.Context) (string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return "", err
	}
	history, err := r.history(ctx)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", errors.New("no migrations applied")
	}

	last := history[len(history)-1].Name
	downPath := filepath.Join(r.migrationsDir,
		strings.TrimSuffix(last, ".up.sql")+".down.sql")
	if _, err := os.Stat(downPath); err != nil {
		return "", fmt.Errorf("missing down migration for %s", last)
	}
	if err := r.execFile(ctx, downPath); err != nil {
		return "", fmt.Errorf("rollback migration %s: %w", last, err)
	}
	if _, err := r.db.ExecContext(ctx,
		fmt.Sprintf("delete from %s where name = $1", migrationsTable), last); err != nil {
		return "", err
	}
	obs.Info("migration rolled back", map[string]any{"name": last})
	return last, nil
}

// Status returns applied migrations in application order.
func (r *Runner) Status(ctx context.Context) ([]Applied, error) {
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	return r.history(ctx)
}

// Seed applies every seed file that has not run yet and returns how many ran.
func (r *Runner) Seed(ctx context.Context) (int, error) {
	if err := r.ensureTables(ctx); err != nil {
		return 0, err
	}
	done, err := r.applied(ctx, seedsTable)
	if err != nil {
		return 0, err
	}
	files, err := listSQL(r.seedsDir, ".sql")
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, f := range files {
		if _, ok := done[f.name]; ok {
			continue
		}
		if err := r.execFile(ctx, f.path); err != nil {
			return applied, fmt.Errorf("apply seed %s: %w", f.name, err)
		}
		if err := r.record(ctx, seedsTable, f.name); err != nil {
			return applied, err
		}
		obs.Info("seed applied", map[string]any{"name": f.name})
		applied++
	}
	return applied, nil
}

func (r *Runner) ensureTables(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		ddl := fmt.Sprintf(`create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, table)
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// execFile runs one SQL file inside a transaction, statement by statement.
func (r *Runner) execFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) record(ctx context.Context, table, name string) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf("insert into %s (name, applied_at) values ($1, $2)", table),
		name, time.Now().UTC())
	return err
}

func (r *Runner) applied(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("select name from %s", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = struct{}{}
	}
	return done, rows.Err()
}

func (r *Runner) history(ctx context.Context) ([]Applied, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf("select name, applied_at from %s order by applied_at asc", migrationsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Applied
	for rows.Next() {
		var a Applied
		if err := rows.Scan(&a.Name, &a.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type sqlFile struct {
	name string
	path string
}

func listSQL(dir, suffix string) ([]sqlFile, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var files []sqlFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		files = append(files, sqlFile{name: e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

// splitStatements splits on semicolons outside single-quoted strings. Good
// enough for the DDL and seed files this repo ships; dollar-quoted bodies
// would need a real parser.
func splitStatements(sql string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	for _, r := range sql {
		current.WriteRune(r)
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
