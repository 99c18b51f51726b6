package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"moneyflow/internal/amqp"
	"moneyflow/internal/backend"
	"moneyflow/internal/cli"
	applog "moneyflow/internal/log"
	"moneyflow/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentExport)

	logger.Info("Starting ledger-worker", "backend", cfg.ExportBackend)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid export backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize export backend", "error", err)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Warn("Export backend cleanup failed", "error", err)
			}
		}()
	}
	if result.Exporter == nil {
		logger.Info("Export backend is none - nothing to do")
		return
	}

	exporter := worker.NewExportWorker(repo, result.Exporter, cfg.ExportBatchSize, cfg.ExportInterval)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	// Pending rows are exported on every poll, so events only reduce
	// latency; a missing broker is not fatal.
	var consumer *amqp.Client
	if cfg.AMQPURL != "" {
		consumer, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, relying on polling", "error", err)
			consumer = nil
		} else {
			defer consumer.Close()
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return cli.ServeMetrics(ctx, logger, ":"+cfg.MetricsPort)
	})
	g.Go(func() error {
		if err := exporter.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		return exporter.Stop(stopCtx)
	})
	if consumer != nil {
		g.Go(func() error {
			logger.Info("Consuming ledger events", "queue", cfg.AMQPQueue)
			return consumer.Consume(ctx, exporter.HandleEvent)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Ledger-worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Ledger-worker shutdown complete")
}
