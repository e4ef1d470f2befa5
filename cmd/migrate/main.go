package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"egovportal.org/internal/config"
	"egovportal.org/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("DATABASE_URL"), "PostgreSQL DSN (defaults to DATABASE_URL, then DB_* settings)")
		migrationsPath = flag.String("migrations", "ops/migrations/sql", "Path to SQL migrations")
		seedsPath      = flag.String("seeds", "ops/migrations/seeds", "Path to SQL seeds")
	)
	flag.Parse()

	connStr := *dsn
	if connStr == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		connStr = cfg.Database.DSN()
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	runner := migrate.NewRunner(db, *migrationsPath, *seedsPath)

	switch flag.Arg(0) {
	case "up":
		var n int
		if n, err = runner.Up(ctx); err == nil {
			fmt.Printf("applied %d migration(s)\n", n)
		}
	case "down":
		var name string
		if name, err = runner.Down(ctx); err == nil {
			fmt.Printf("rolled back %s\n", name)
		}
	case "seed":
		var n int
		if n, err = runner.Seed(ctx); err == nil {
			fmt.Printf("applied %d seed(s)\n", n)
		}
	case "status":
		var history []migrate.Applied
		if history, err = runner.Status(ctx); err == nil {
			if len(history) == 0 {
				fmt.Println("no migrations applied")
			}
			for _, item := range history {
				fmt.Printf("%s\t%s\n", item.AppliedAt.Format(time.RFC3339), item.Name)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
