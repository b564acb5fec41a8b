// Command pipelined runs the resume-processing worker daemon: a set of
// poll loops that drain the job queue until the process is signalled.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/resumeiq/pipeline/internal/analyze"
	"github.com/resumeiq/pipeline/internal/blob"
	"github.com/resumeiq/pipeline/internal/common"
	"github.com/resumeiq/pipeline/internal/extract"
	"github.com/resumeiq/pipeline/internal/queue"
	"github.com/resumeiq/pipeline/internal/repository"
	"github.com/resumeiq/pipeline/internal/worker"
)

func main() {
	cfg := common.LoadConfig()
	logger, cleanup := common.SetupLogger(cfg.Logging.File, cfg.Logging.Level)
	defer func() { _ = cleanup() }()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	if err := repository.HealthCheck(ctx, pool, cfg.Database.DialTimeout, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	if err := repository.EnsureSchema(ctx, pool, logger); err != nil {
		logger.Error("schema bootstrap failed", "error", err)
		os.Exit(1)
	}

	gateway, err := blob.NewS3Gateway(cfg.Blob, logger)
	if err != nil {
		logger.Error("blob gateway init failed", "error", err)
		os.Exit(1)
	}

	jobs := repository.NewJobRepository(pool, logger)
	q := queue.NewPGQueue(pool, logger)
	extractor := extract.NewClient(cfg.Stages.ExtractionURL, cfg.Stages.ExtractionTimeout, logger)
	analyzer := analyze.NewClient(cfg.Stages.AnalysisURL, cfg.Stages.AnalysisTimeout, logger)

	w := worker.New(q, jobs, gateway, extractor, analyzer, worker.Config{
		MaxRetries:   cfg.Pipeline.MaxRetries,
		Lease:        cfg.Pipeline.VisibilityLease,
		BatchSize:    cfg.Pipeline.BatchSize,
		PollInterval: cfg.Pipeline.PollInterval,
		URLTTL:       cfg.Pipeline.URLTTL,
	}, logger)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Pipeline.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			logger.Info("worker loop started", "worker_id", id)
			_ = w.Run(ctx)
			logger.Info("worker loop stopped", "worker_id", id)
		}(i + 1)
	}

	<-ctx.Done()
	logger.Info("shutting down...")
	wg.Wait()
	logger.Info("shutdown complete")
}
