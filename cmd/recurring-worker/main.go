package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"moneyflow/internal/cli"
	"moneyflow/internal/core"
	applog "moneyflow/internal/log"
	"moneyflow/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentRecurring)

	logger.Info("Starting recurring-worker")

	loc := cli.LoadLocation(logger, cfg)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	publisher, closePublisher := cli.NewPublisher(logger, cfg)
	defer closePublisher()

	engine := cli.BuildServices(repo, publisher, services.WithLocation(loc)).Engine

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	logger.Info("Recurring scheduler configured",
		"interval", cfg.RecurringInterval,
		"location", loc.String(),
		"sqlite_db", cfg.SQLiteDBPath)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return cli.ServeMetrics(ctx, logger, ":"+cfg.MetricsPort)
	})
	g.Go(func() error {
		schedule(ctx, logger, engine, cfg.RecurringInterval)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Recurring-worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Recurring-worker shutdown complete")
}

// schedule runs every due rule on startup and then once per interval. A
// failed run is logged and retried on the next tick.
func schedule(ctx context.Context, logger *applog.Logger, engine *services.RecurringEngine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce(ctx, logger, engine)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(ctx, logger, engine)
		}
	}
}

func runOnce(ctx context.Context, logger *applog.Logger, engine *services.RecurringEngine) {
	report, err := engine.RunDueRules(ctx, core.ScopeAll)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("Recurring run failed", "error", err)
		}
		return
	}
	logger.Info("Recurring run complete",
		"run_id", report.RunID,
		"today", report.Today.String(),
		"generated", report.Count(core.OutcomeGenerated),
		"duplicates", report.Count(core.OutcomeDuplicate),
		"skipped", report.Count(core.OutcomeSkipped),
		"failed", report.Count(core.OutcomeFailed),
		"total", core.FormatAmount(report.Total()))
}
