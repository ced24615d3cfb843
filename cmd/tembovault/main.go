package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	sqliteadapter "github.com/kestrelworks/tembovault/internal/adapter/driven/sqlite"
	temboadapter "github.com/kestrelworks/tembovault/internal/adapter/driven/tembo"
	httphandler "github.com/kestrelworks/tembovault/internal/adapter/driving/http"
	"github.com/kestrelworks/tembovault/internal/application"
	"github.com/kestrelworks/tembovault/internal/config"
	"github.com/kestrelworks/tembovault/internal/crypto"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"tembo_base_url", cfg.TemboBaseURL,
		"tembo_timeout", cfg.TemboTimeout,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Build the envelope cipher. A missing or malformed master key is
	// fatal: no credential can be stored or read without it.
	envelope, err := crypto.NewEnvelope(cfg.MasterKey)
	if err != nil {
		return err
	}

	// 6. Wire adapters.
	credentialStore := sqliteadapter.NewCredentialRepo(db)
	auditStore := sqliteadapter.NewAuditRepo(db)
	newTemboClient := temboadapter.NewFactory(cfg.TemboBaseURL, cfg.TemboTimeout)

	// 7. Create the auth service.
	authSvc := application.NewAuthService(envelope, credentialStore, auditStore, newTemboClient)

	// 8. Create HTTP handler and server.
	handler := httphandler.NewHandler(authSvc, auditStore, slog.Default())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(handler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("tembovault started", "listen_addr", cfg.ListenAddr)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout to drain in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
