// Package worker runs the resume-processing pipeline: it polls the queue,
// advances each job PENDING -> PROCESSING -> ANALYZED|FAILED through the
// extraction and analysis stages, and owns the retry/poison policy. The
// queue's visibility lease is the only cross-worker coordination; delivery
// is at-least-once and every job-store write is idempotent-safe.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/resumeiq/pipeline/constants"
	"github.com/resumeiq/pipeline/internal/analyze"
	"github.com/resumeiq/pipeline/internal/blob"
	"github.com/resumeiq/pipeline/internal/common"
	"github.com/resumeiq/pipeline/internal/entity"
	"github.com/resumeiq/pipeline/internal/extract"
	"github.com/resumeiq/pipeline/internal/queue"
	"github.com/resumeiq/pipeline/internal/repository"
)

// failedMessage is the only error text a job owner ever sees. Internal
// details stay in the logs.
const failedMessage = "Resume processing failed after multiple attempts. Please try uploading again."

// Config holds one poll loop's knobs.
type Config struct {
	MaxRetries   int
	Lease        time.Duration
	BatchSize    int
	PollInterval time.Duration
	URLTTL       time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.Lease <= 0 {
		c.Lease = 5 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.URLTTL <= 0 {
		c.URLTTL = 24 * time.Hour
	}
}

// Worker is one polling loop. Run several against the same queue for
// horizontal scale; no extra locking is needed.
type Worker struct {
	queue     queue.Queue
	jobs      repository.JobRepository
	blobs     blob.Gateway
	extractor extract.Extractor
	analyzer  analyze.Analyzer
	cfg       Config
	log       *slog.Logger
}

// New wires a worker from its collaborators.
func New(
	q queue.Queue,
	jobs repository.JobRepository,
	blobs blob.Gateway,
	extractor extract.Extractor,
	analyzer analyze.Analyzer,
	cfg Config,
	log *slog.Logger,
) *Worker {
	if log == nil {
		log = slog.Default()
	}
	cfg.applyDefaults()
	return &Worker{
		queue:     q,
		jobs:      jobs,
		blobs:     blobs,
		extractor: extractor,
		analyzer:  analyzer,
		cfg:       cfg,
		log:       log,
	}
}

// Run polls until ctx is cancelled. Shutdown stops new batches; an
// in-flight message that is abandoned simply redelivers after its lease.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("pipeline worker started",
		"batch_size", w.cfg.BatchSize,
		"poll_interval", w.cfg.PollInterval,
		"max_retries", w.cfg.MaxRetries,
	)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.PollOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			w.log.Info("pipeline worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce receives one batch and handles every message in it. A single bad
// message never escapes its handler; queue-level failures are returned as
// transient so the loop logs and moves on.
func (w *Worker) PollOnce(ctx context.Context) error {
	msgs, err := w.queue.Receive(ctx, w.cfg.BatchSize, w.cfg.Lease)
	if err != nil {
		return common.NewAppError("QUEUE_ERROR", "receive batch", common.ErrTransient)
	}
	for _, msg := range msgs {
		if ctx.Err() != nil {
			// Abandon the rest of the batch; their leases will expire.
			return nil
		}
		w.handleMessage(ctx, msg)
	}
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg queue.Message) {
	jobID, err := uuid.Parse(msg.JobID)
	if err != nil {
		// No job to fail; dead-letter the payload and drop it.
		w.log.Error("malformed queue message", "job_id", msg.JobID, "err", err)
		_ = w.queue.Poison(ctx, entity.PoisonRecord{
			JobID:    msg.JobID,
			OwnerID:  msg.OwnerID,
			Reason:   "malformed message payload",
			FailedAt: time.Now().UTC(),
		})
		_ = w.queue.Delete(ctx, msg.Receipt)
		return
	}

	if msg.DeliveryCount > w.cfg.MaxRetries {
		w.poison(ctx, msg, jobID)
		return
	}

	if err := w.process(ctx, jobID, msg); err != nil {
		w.log.Error("processing failed, rolling back for redelivery",
			"job_id", jobID,
			"stage", stageName(err),
			"delivery_count", msg.DeliveryCount,
			"err", err,
		)
		w.rollback(ctx, jobID)
		// Do not delete the message: the lease expires and the queue
		// redelivers with an incremented delivery count.
	}
}

// process is the transactional unit for one message. The message is deleted
// only after every step has succeeded.
func (w *Worker) process(ctx context.Context, jobID uuid.UUID, msg queue.Message) error {
	job, err := w.jobs.Get(ctx, jobID)
	if errors.Is(err, common.ErrNotFound) {
		w.log.Warn("message references unknown job, dropping", "job_id", jobID)
		return w.queue.Delete(ctx, msg.Receipt)
	}
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	if job.Status.Terminal() {
		// Redelivery of an already-settled job is a no-op.
		w.log.Info("job already terminal, dropping redelivery", "job_id", jobID, "status", job.Status)
		return w.queue.Delete(ctx, msg.Receipt)
	}

	// Persist PROCESSING before any external call so the polling client
	// sees true progress. A duplicate delivery of a job another worker is
	// still holding finds it already PROCESSING; the store treats that as
	// a no-op and both attempts race to SaveAnalysis, where the first
	// commit wins.
	if err := w.jobs.SetStatus(ctx, jobID, constants.JobStatusProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	text, err := w.extractText(ctx, job)
	if err != nil {
		return err
	}

	result, err := w.analyzer.Analyze(ctx, text, job.OwnerID)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	if err := w.jobs.SaveAnalysis(ctx, jobID, result); err != nil {
		if errors.Is(err, repository.ErrNotProcessing) {
			return w.settleDuplicate(ctx, jobID, msg)
		}
		return fmt.Errorf("save analysis: %w", err)
	}

	// Commit point for at-least-once delivery.
	if err := w.queue.Delete(ctx, msg.Receipt); err != nil {
		// The job is settled; the redelivered message will be dropped by
		// the terminal check above.
		w.log.Warn("message delete failed after success", "job_id", jobID, "err", err)
		return nil
	}

	w.log.Info("job analyzed",
		"job_id", jobID,
		"owner_id", job.OwnerID,
		"score", result.Score,
		"suggestions", len(result.Suggestions),
		"delivery_count", msg.DeliveryCount,
	)
	return nil
}

// extractText returns the job's extracted text, reusing the checkpoint from
// an earlier attempt when present so a retry of the analysis stage does not
// re-pay extraction.
func (w *Worker) extractText(ctx context.Context, job *entity.Job) (string, error) {
	if job.ExtractedText != nil && *job.ExtractedText != "" {
		w.log.Debug("reusing extracted text checkpoint", "job_id", job.ID)
		return *job.ExtractedText, nil
	}

	// Minted fresh per attempt, never stored.
	readURL, err := w.blobs.MintReadURL(ctx, job.DocumentRef, w.cfg.URLTTL)
	if err != nil {
		return "", fmt.Errorf("mint read url: %w", err)
	}

	text, err := w.extractor.Extract(ctx, readURL)
	if err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}

	if err := w.jobs.SaveExtractedText(ctx, job.ID, text); err != nil {
		return "", fmt.Errorf("checkpoint extracted text: %w", err)
	}
	return text, nil
}

// settleDuplicate handles a SaveAnalysis skipped because another delivery
// got to the job first. The message may only be dropped once the job is
// actually terminal; otherwise it stays queued so the job is reprocessed.
func (w *Worker) settleDuplicate(ctx context.Context, jobID uuid.UUID, msg queue.Message) error {
	job, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("reload job after skipped save: %w", err)
	}
	if job.Status.Terminal() {
		w.log.Info("analysis already committed by another delivery, dropping message",
			"job_id", jobID, "status", job.Status)
		return w.queue.Delete(ctx, msg.Receipt)
	}
	return fmt.Errorf("analysis save skipped, job %s is %s: %w", jobID, job.Status, common.ErrTransient)
}

// rollback returns a job to PENDING so the redelivered message finds it
// ready. A job that never reached PROCESSING, or was settled by a racing
// worker, rejects the transition; that is expected.
func (w *Worker) rollback(ctx context.Context, jobID uuid.UUID) {
	err := w.jobs.SetStatus(ctx, jobID, constants.JobStatusPending)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrInvalidTransition), errors.Is(err, common.ErrNotFound):
		w.log.Debug("rollback skipped", "job_id", jobID, "err", err)
	default:
		w.log.Warn("rollback failed", "job_id", jobID, "err", err)
	}
}

// poison handles a message whose retry budget is spent: record it on the
// dead-letter channel, fail the job with a generic message, and delete the
// message from the main queue without another processing attempt.
func (w *Worker) poison(ctx context.Context, msg queue.Message, jobID uuid.UUID) {
	rec := entity.PoisonRecord{
		JobID:    msg.JobID,
		OwnerID:  msg.OwnerID,
		Reason:   fmt.Sprintf("delivery count %d exceeded max retries %d", msg.DeliveryCount, w.cfg.MaxRetries),
		FailedAt: time.Now().UTC(),
	}
	if err := w.queue.Poison(ctx, rec); err != nil {
		// Keep the message so poisoning itself is retried.
		w.log.Error("poison record write failed", "job_id", jobID, "err", err)
		return
	}

	err := w.jobs.MarkFailed(ctx, jobID, failedMessage)
	if err != nil && !errors.Is(err, repository.ErrInvalidTransition) && !errors.Is(err, common.ErrNotFound) {
		w.log.Error("failed-status write failed", "job_id", jobID, "err", err)
		return
	}

	if err := w.queue.Delete(ctx, msg.Receipt); err != nil {
		w.log.Warn("poisoned message delete failed", "job_id", jobID, "err", err)
		return
	}
	w.log.Warn("job poisoned",
		"job_id", jobID,
		"owner_id", msg.OwnerID,
		"delivery_count", msg.DeliveryCount,
	)
}

// stageName classifies an error for diagnostics.
func stageName(err error) string {
	switch {
	case errors.Is(err, common.ErrExtraction):
		return "extract"
	case errors.Is(err, common.ErrAnalysis):
		return "analyze"
	default:
		return "infra"
	}
}
