// Package main provides the entry point for the browser-record server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/dphuang2/browser-record-app/internal/config"
	"github.com/dphuang2/browser-record-app/internal/server"
	"github.com/dphuang2/browser-record-app/pkg/auth"
	s3store "github.com/dphuang2/browser-record-app/pkg/chunk/s3"
	custpg "github.com/dphuang2/browser-record-app/pkg/customer/postgres"
	"github.com/dphuang2/browser-record-app/pkg/database/migrate"
	"github.com/dphuang2/browser-record-app/pkg/health"
	"github.com/dphuang2/browser-record-app/pkg/replay"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() string {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()
	return *configPath
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

func run() error {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg, err := config.Load(parseFlags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	gin.SetMode(cfg.Server.Mode)

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := migrate.Run(db); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chunks, err := s3store.NewFromConfig(ctx, s3store.Config{
		Bucket:      cfg.Storage.Bucket,
		Region:      cfg.Storage.Region,
		Endpoint:    cfg.Storage.Endpoint,
		AccessKeyID: cfg.Storage.AccessKeyID,
		SecretKey:   cfg.Storage.SecretKey,
	})
	if err != nil {
		return err
	}

	customers := custpg.New(db)
	aggregator := replay.NewAggregator(chunks, customers,
		replay.WithURLTTL(cfg.Replay.URLTTL))
	coordinator := replay.NewCoordinator(customers, aggregator, slog.Default())

	manager, err := auth.NewManager([]byte(cfg.Auth.Secret), cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	checker := health.NewChecker()
	api := server.New(server.Options{
		Chunks:      chunks,
		Customers:   customers,
		Coordinator: coordinator,
		Auth:        manager,
		Health:      checker,
		Logger:      slog.Default(),
	})
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	checker.SetReady()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	checker.SetDraining()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
