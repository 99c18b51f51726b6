// Package cli provides common initialization for the moneyflow binaries:
// environment, logging, storage, event publishing and service wiring.
package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"moneyflow/internal/amqp"
	"moneyflow/internal/config"
	apphttp "moneyflow/internal/http"
	applog "moneyflow/internal/log"
	"moneyflow/internal/services"
	"moneyflow/internal/storage"
)

// SetupLogger builds the process logger for component at the configured
// level and makes it the slog default.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     cfg.SlogLevel(),
		Component: component,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// LoadLocation resolves the zone in which recurring rules evaluate
// "today". Returns the location or exits the process on failure.
func LoadLocation(logger *applog.Logger, cfg *config.Config) *time.Location {
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid recurring location", "error", err, "location", cfg.RecurringLocation)
		os.Exit(1)
	}
	return loc
}

// InitSQLite opens the repository at dbPath, running pending migrations.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// NewPublisher connects to the broker when AMQP_URL is set. It returns a
// nil publisher, and no error, when event publishing is disabled or the
// broker is unreachable; the ledger keeps working without events.
func NewPublisher(logger *applog.Logger, cfg *config.Config) (services.EventPublisher, func()) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - ledger events will not be published")
		return nil, func() {}
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		return nil, func() {}
	}
	logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client, func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", "error", err)
		}
	}
}

// BuildServices wires every application service onto repo. events may be
// nil. Engine options are appended after the publisher option.
func BuildServices(repo *storage.SQLiteRepository, events services.EventPublisher, opts ...services.EngineOption) apphttp.Services {
	balances := services.NewBalanceCalculator(repo, repo)
	engineOpts := opts
	if events != nil {
		engineOpts = append([]services.EngineOption{services.WithEventPublisher(events)}, opts...)
	}
	return apphttp.Services{
		Accounts:     services.NewAccountService(repo, balances),
		Categories:   services.NewCategoryService(repo),
		Transactions: services.NewTransactionService(repo, repo, events),
		Rules:        services.NewRuleService(repo, repo),
		Balances:     balances,
		Engine:       services.NewRecurringEngine(repo, repo, engineOpts...),
		Initializer:  services.NewDefaultDataInitializer(repo),
	}
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// ServeMetrics exposes /metrics on addr until ctx is done.
func ServeMetrics(ctx context.Context, logger *applog.Logger, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
