package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"egovportal.org/internal/auth"
	"egovportal.org/internal/catalog"
	"egovportal.org/internal/config"
	"egovportal.org/internal/httpapi"
	"egovportal.org/internal/identity"
	"egovportal.org/internal/ids"
	"egovportal.org/internal/lifecycle"
	"egovportal.org/internal/notify"
	"egovportal.org/internal/obs"
	"egovportal.org/internal/report"
	"egovportal.org/internal/search"
	"egovportal.org/internal/store"
)

var version = "1.0.0"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	manager := store.NewManager(store.Config{
		DSN:             cfg.Database.DSN(),
		MaxOpenConns:    cfg.Database.MaxConns,
		MaxIdleConns:    cfg.Database.MinConns,
		ConnMaxIdleTime: cfg.Database.IdleTimeout,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
		LogQueries:      cfg.App.IsDevelopment(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := manager.Connect(ctx); err != nil {
		cancel()
		log.Fatalf("database: %v", err)
	}
	cancel()

	var mailer notify.Mailer
	if cfg.Email.Enabled() {
		mailer = notify.NewSMTPMailer(cfg.Email)
	}

	ident := identity.New(manager, cfg.Security.BcryptCost)
	sink := notify.NewSink(manager, ident.Users(), mailer, cfg.App.URL)
	cat := catalog.New(manager)

	tokens, err := auth.NewTokenSource(cfg.Security.SessionSecret, cfg.Security.TokenTTL)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Version:   version,
		Config:    cfg,
		Store:     manager,
		Tokens:    tokens,
		Identity:  ident,
		Lifecycle: lifecycle.New(manager, cat.Services(), sink, ids.New),
		Catalog:   cat,
		Reports:   report.New(manager),
		Search:    search.New(manager, cfg.Pagination.MaxLimit),
		Sink:      sink,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting %s %s on %s (env=%s)", cfg.App.Name, version, srv.Addr, cfg.App.Env)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	sink.Close()
	_ = manager.Close()
	log.Println("Stopped")
}
