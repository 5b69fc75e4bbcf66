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

	"github.com/kirillkom/it-support-rag/internal/bootstrap"
	"github.com/kirillkom/it-support-rag/internal/config"
	"github.com/kirillkom/it-support-rag/internal/core/domain"
	"github.com/kirillkom/it-support-rag/internal/observability/logging"
	"github.com/kirillkom/it-support-rag/internal/observability/metrics"
)

const (
	serviceName = "worker"
	jobTimeout  = 10 * time.Minute
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv_load_failed", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Queue: true})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "collection", cfg.QdrantCollection)
	err = app.Queue.SubscribeIngestJobs(ctx, func(handlerCtx context.Context, job domain.IngestJob) error {
		workerMetrics.ObserveQueueLag(serviceName, time.Since(job.CreatedAt))
		workerMetrics.StartJob()
		start := time.Now()

		processCtx, cancel := context.WithTimeout(handlerCtx, jobTimeout)
		defer cancel()
		report, err := app.IngestUC.Process(processCtx, job)
		workerMetrics.FinishJob(serviceName, time.Since(start), report, err)
		if err != nil {
			return err
		}

		slog.Info("ingest_job_completed",
			"job_id", job.ID,
			"filename", job.Filename,
			"total", report.Total,
			"indexed", report.Indexed,
			"failed", len(report.Failures),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
