// Package status maps job-store state to the client-facing status/progress
// projection that the polling HTTP layer serves.
package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/resumeiq/pipeline/constants"
	"github.com/resumeiq/pipeline/internal/entity"
	"github.com/resumeiq/pipeline/internal/repository"
)

const cacheKeyPrefix = "job_status:"

// Reader projects job state for polling clients. It only ever reads
// committed job rows; it never mutates a job. The Redis cache is optional
// (nil client means straight repository reads) and exists to absorb tight
// polling loops, so its TTL is short.
type Reader struct {
	jobs     repository.JobRepository
	cache    *redis.Client
	cacheTTL time.Duration
	log      *slog.Logger
}

// NewReader wires a status reader. cache may be nil.
func NewReader(jobs repository.JobRepository, cache *redis.Client, cacheTTL time.Duration, log *slog.Logger) *Reader {
	if log == nil {
		log = slog.Default()
	}
	if cacheTTL <= 0 {
		cacheTTL = 2 * time.Second
	}
	return &Reader{jobs: jobs, cache: cache, cacheTTL: cacheTTL, log: log}
}

// GetStatus returns the deterministic projection for one job.
func (r *Reader) GetStatus(ctx context.Context, jobID uuid.UUID) (entity.StatusProjection, error) {
	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, cacheKeyPrefix+jobID.String()).Result(); err == nil {
			var proj entity.StatusProjection
			if err := json.Unmarshal([]byte(cached), &proj); err == nil {
				return proj, nil
			}
		}
	}

	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		return entity.StatusProjection{}, err
	}
	proj := Project(job)

	if r.cache != nil {
		if b, err := json.Marshal(proj); err == nil {
			if err := r.cache.Set(ctx, cacheKeyPrefix+jobID.String(), b, r.cacheTTL).Err(); err != nil {
				r.log.Debug("status cache write failed", "job_id", jobID, "err", err)
			}
		}
	}
	return proj, nil
}

// Project maps a job onto its status projection:
// PENDING -> (pending, 0), PROCESSING -> (processing, 50),
// ANALYZED -> (complete, 100), FAILED -> (failed, 0, message).
func Project(job *entity.Job) entity.StatusProjection {
	proj := entity.StatusProjection{JobID: job.ID.String()}
	switch job.Status {
	case constants.JobStatusPending:
		proj.Status = constants.ProjectionPending
		proj.Progress = 0
	case constants.JobStatusProcessing:
		proj.Status = constants.ProjectionProcessing
		proj.Progress = 50
	case constants.JobStatusAnalyzed:
		proj.Status = constants.ProjectionComplete
		proj.Progress = 100
	case constants.JobStatusFailed:
		proj.Status = constants.ProjectionFailed
		proj.Progress = 0
		if job.ErrorMessage != nil {
			proj.ErrorMessage = *job.ErrorMessage
		} else {
			proj.ErrorMessage = "Resume processing failed."
		}
	}
	return proj
}
