package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tidebooks/tidebooks/internal/app"
	"github.com/tidebooks/tidebooks/internal/observability"
	"github.com/tidebooks/tidebooks/internal/platform/db"
	"github.com/tidebooks/tidebooks/internal/shared"
	"github.com/tidebooks/tidebooks/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	idempotencyStore := shared.NewIdempotencyStore(pool)

	ledgerChecker := jobs.NewLedgerIntegrityChecker(pool, logger, metrics)
	stockChecker := jobs.NewStockIntegrityChecker(pool, logger, metrics)

	cleanupHandler := func(ctx context.Context, t *asynq.Task) error {
		if err := idempotencyStore.Cleanup(ctx, cfg.IdempotencyRetention); err != nil {
			metrics.RecordJob(jobs.TaskIdempotencyCleanup, "error")
			return err
		}
		metrics.RecordJob(jobs.TaskIdempotencyCleanup, "ok")
		return nil
	}

	now := time.Now().UTC()
	ledgerTask, err := jobs.NewLedgerIntegrityTask(now)
	if err != nil {
		logger.Error("build ledger integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	stockTask, err := jobs.NewStockIntegrityTask(now)
	if err != nil {
		logger.Error("build stock integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(now)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrity, Handler: ledgerChecker.Handle},
			{Type: jobs.TaskStockIntegrity, Handler: stockChecker.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupHandler},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: ledgerTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: stockTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
