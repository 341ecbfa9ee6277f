package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kidlearn/tutor/internal/adapter/llm"
	"github.com/kidlearn/tutor/internal/auth"
	"github.com/kidlearn/tutor/internal/config"
	"github.com/kidlearn/tutor/internal/metrics"
	"github.com/kidlearn/tutor/internal/observability"
	"github.com/kidlearn/tutor/internal/repository"
	"github.com/kidlearn/tutor/internal/service"
	server "github.com/kidlearn/tutor/internal/transport/http"
	"github.com/kidlearn/tutor/policy"
)

func main() {
	if err := run(); err != nil {
		slog.Error("tutor exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := observability.Init(cfg.LogLevel)

	logger.Info("starting tutor",
		"http_port", cfg.HTTPPort,
		"internal_port", cfg.InternalPort,
		"database", cfg.DatabaseURL,
		"provider", cfg.LLMProvider,
		"partial_policy", cfg.PartialPolicy,
	)

	ctx := context.Background()

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	// Nothing is streaming yet; any open turn belongs to a previous process.
	if n, err := db.FailInterruptedTurns(ctx, "interrupted by restart"); err != nil {
		return fmt.Errorf("failed to close interrupted turns: %w", err)
	} else if n > 0 {
		logger.Warn("marked interrupted turns failed", "count", n)
	}

	// Initialize completion provider
	provider, err := llm.NewProvider(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize completion provider: %w", err)
	}

	// Initialize policy engine
	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	m := metrics.New()
	svc := service.New(db, provider, cfg, policyEngine, m, logger)

	externalServer := server.NewExternalServer(svc, auth.NewVerifier(cfg.JWTSecret), cfg, logger)
	internalServer := server.NewInternalServer(svc, m, logger)

	errCh := make(chan error, 2)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := externalServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("external server: %w", err)
		}
	}()
	go func() {
		addr := fmt.Sprintf(":%d", cfg.InternalPort)
		if err := internalServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("internal server: %w", err)
		}
	}()

	logger.Info("tutor api started", "port", cfg.HTTPPort)
	logger.Info("internal api started", "port", cfg.InternalPort)

	// Wait for interrupt signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-quit:
		logger.Info("shutting down tutor", "signal", sig.String())
	case runErr = <-errCh:
		logger.Error("server failed, shutting down", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := externalServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown external server gracefully", "error", err)
	}
	if err := internalServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown internal server gracefully", "error", err)
	}

	logger.Info("tutor stopped")
	return runErr
}
