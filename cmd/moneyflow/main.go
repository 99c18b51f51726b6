package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"moneyflow/internal/cli"
	apphttp "moneyflow/internal/http"
	applog "moneyflow/internal/log"
	"moneyflow/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	loc := cli.LoadLocation(logger, cfg)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	publisher, closePublisher := cli.NewPublisher(logger, cfg)
	defer closePublisher()

	svc := cli.BuildServices(repo, publisher, services.WithLocation(loc))

	opts := apphttp.DefaultOptions()
	opts.Logger = logger.WithComponent(applog.ComponentHTTP)
	srv := apphttp.NewServer(":"+cfg.Port, svc, repo, opts)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting moneyflow server",
		"port", cfg.Port,
		"sqlite_db", cfg.SQLiteDBPath,
		"recurring_location", loc.String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}
