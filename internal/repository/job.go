package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resumeiq/pipeline/constants"
	"github.com/resumeiq/pipeline/internal/common"
	"github.com/resumeiq/pipeline/internal/entity"
)

// ErrInvalidTransition is returned when a status write would violate the
// forward-only transition rule.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrNotProcessing is returned when a worker write finds the job no longer
// in PROCESSING, meaning another delivery got there first.
var ErrNotProcessing = errors.New("job is not processing")

// JobRepository is the durable job store. Only the worker calls the mutating
// methods after Create; every write is idempotent-safe under redelivery.
type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	SetStatus(ctx context.Context, id uuid.UUID, next constants.JobStatus) error
	SaveExtractedText(ctx context.Context, id uuid.UUID, text string) error
	// SaveAnalysis persists the analysis result and moves the job to
	// ANALYZED in one transaction, fully replacing suggestions and the
	// candidate profile. A job no longer in PROCESSING is left untouched
	// and the skip is reported as ErrNotProcessing.
	SaveAnalysis(ctx context.Context, id uuid.UUID, res *entity.AnalysisResult) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	ListAnalyzedByOwner(ctx context.Context, ownerID string) ([]*entity.Job, error)
}

type jobRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewJobRepository returns the Postgres-backed job store.
func NewJobRepository(pool *pgxpool.Pool, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{pool: pool, log: log}
}

func (r *jobRepo) Create(ctx context.Context, job *entity.Job) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO resume_jobs (id, owner_id, document_ref, file_name, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.OwnerID, job.DocumentRef, job.FileName, string(job.Status),
	)
	if err != nil {
		r.log.Error("job create failed", "job_id", job.ID, "err", err)
		return common.WrapError(err, "create job")
	}
	r.log.Info("job created", "job_id", job.ID, "owner_id", job.OwnerID)
	return nil
}

func (r *jobRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	var job entity.Job
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, document_ref, file_name, extracted_text, status,
		        score, optimized_content, error_message, created_at, updated_at
		 FROM resume_jobs WHERE id = $1`, id,
	).Scan(&job.ID, &job.OwnerID, &job.DocumentRef, &job.FileName, &job.ExtractedText,
		&status, &job.Score, &job.OptimizedContent, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "get job")
	}
	job.Status = constants.JobStatus(status)

	if err := r.loadChildren(ctx, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) loadChildren(ctx context.Context, job *entity.Job) error {
	rows, err := r.pool.Query(ctx,
		`SELECT category, description, priority
		 FROM suggestions WHERE job_id = $1 ORDER BY position`, job.ID)
	if err != nil {
		return common.WrapError(err, "load suggestions")
	}
	defer rows.Close()
	for rows.Next() {
		var s entity.Suggestion
		if err := rows.Scan(&s.Category, &s.Description, &s.Priority); err != nil {
			return common.WrapError(err, "scan suggestion")
		}
		job.Suggestions = append(job.Suggestions, s)
	}
	if err := rows.Err(); err != nil {
		return common.WrapError(err, "load suggestions")
	}

	var p entity.CandidateProfile
	err = r.pool.QueryRow(ctx,
		`SELECT full_name, email, phone, location, skills, years_of_experience,
		        current_title, education
		 FROM candidate_profiles WHERE job_id = $1`, job.ID,
	).Scan(&p.FullName, &p.Email, &p.Phone, &p.Location, &p.Skills,
		&p.YearsOfExperience, &p.CurrentTitle, &p.Education)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// no profile for this job
	case err != nil:
		return common.WrapError(err, "load profile")
	default:
		job.Profile = &p
	}
	return nil
}

// SetStatus applies a guarded status transition. The guard runs in SQL so
// two workers racing on a redelivered message cannot both win. Setting the
// status a job already has succeeds as a no-op, so a duplicate delivery
// that finds its job mid-flight does not conflict with the live attempt.
func (r *jobRepo) SetStatus(ctx context.Context, id uuid.UUID, next constants.JobStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE resume_jobs SET status = $2, updated_at = now()
		 WHERE id = $1 AND (status = ANY($3) OR status = $2)`,
		id, string(next), transitionSources(next),
	)
	if err != nil {
		r.log.Error("job status update failed", "job_id", id, "status", next, "err", err)
		return common.WrapError(err, "set status")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s -> %s", ErrInvalidTransition, id, next)
	}
	r.log.Debug("job status updated", "job_id", id, "status", next)
	return nil
}

// transitionSources lists the statuses allowed to move to next.
func transitionSources(next constants.JobStatus) []string {
	all := []constants.JobStatus{
		constants.JobStatusPending,
		constants.JobStatusProcessing,
		constants.JobStatusAnalyzed,
		constants.JobStatusFailed,
	}
	var from []string
	for _, s := range all {
		if s.CanTransitionTo(next) {
			from = append(from, string(s))
		}
	}
	return from
}

func (r *jobRepo) SaveExtractedText(ctx context.Context, id uuid.UUID, text string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE resume_jobs SET extracted_text = $2, updated_at = now()
		 WHERE id = $1 AND status = $3`,
		id, text, string(constants.JobStatusProcessing),
	)
	if err != nil {
		r.log.Error("extracted text save failed", "job_id", id, "err", err)
		return common.WrapError(err, "save extracted text")
	}
	r.log.Debug("extracted text saved", "job_id", id, "bytes", len(text))
	return nil
}

func (r *jobRepo) SaveAnalysis(ctx context.Context, id uuid.UUID, res *entity.AnalysisResult) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return common.WrapError(err, "begin analysis tx")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE resume_jobs
		 SET score = $2, optimized_content = $3, status = $4, error_message = NULL, updated_at = now()
		 WHERE id = $1 AND status = $5`,
		id, res.Score, res.OptimizedContent,
		string(constants.JobStatusAnalyzed), string(constants.JobStatusProcessing),
	)
	if err != nil {
		return common.WrapError(err, "finish analysis")
	}
	if tag.RowsAffected() == 0 {
		// Duplicate delivery lost the race; the committed result stands.
		r.log.Warn("analysis save skipped, job not in PROCESSING", "job_id", id)
		return fmt.Errorf("%w: job %s", ErrNotProcessing, id)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM suggestions WHERE job_id = $1`, id); err != nil {
		return common.WrapError(err, "clear suggestions")
	}
	for i, s := range res.Suggestions {
		if _, err := tx.Exec(ctx,
			`INSERT INTO suggestions (job_id, position, category, description, priority)
			 VALUES ($1, $2, $3, $4, $5)`,
			id, i, s.Category, s.Description, s.Priority,
		); err != nil {
			return common.WrapError(err, "insert suggestion")
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM candidate_profiles WHERE job_id = $1`, id); err != nil {
		return common.WrapError(err, "clear profile")
	}
	if p := res.Profile; p != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO candidate_profiles
			 (job_id, full_name, email, phone, location, skills, years_of_experience, current_title, education)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			id, p.FullName, p.Email, p.Phone, p.Location, p.Skills,
			p.YearsOfExperience, p.CurrentTitle, p.Education,
		); err != nil {
			return common.WrapError(err, "insert profile")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return common.WrapError(err, "commit analysis")
	}
	r.log.Info("analysis saved", "job_id", id, "score", res.Score, "suggestions", len(res.Suggestions))
	return nil
}

func (r *jobRepo) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE resume_jobs SET status = $2, error_message = $3, updated_at = now()
		 WHERE id = $1 AND status = ANY($4)`,
		id, string(constants.JobStatusFailed), message,
		transitionSources(constants.JobStatusFailed),
	)
	if err != nil {
		r.log.Error("job fail mark failed", "job_id", id, "err", err)
		return common.WrapError(err, "mark failed")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s -> FAILED", ErrInvalidTransition, id)
	}
	r.log.Warn("job marked failed", "job_id", id, "error", message)
	return nil
}

func (r *jobRepo) ListAnalyzedByOwner(ctx context.Context, ownerID string) ([]*entity.Job, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM resume_jobs
		 WHERE owner_id = $1 AND status = $2 ORDER BY created_at`,
		ownerID, string(constants.JobStatusAnalyzed))
	if err != nil {
		return nil, common.WrapError(err, "list analyzed jobs")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, common.WrapError(err, "scan job id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(err, "list analyzed jobs")
	}

	jobs := make([]*entity.Job, 0, len(ids))
	for _, id := range ids {
		job, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
