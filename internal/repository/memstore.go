package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/resumeiq/pipeline/constants"
	"github.com/resumeiq/pipeline/internal/common"
	"github.com/resumeiq/pipeline/internal/entity"
)

// MemStore is an in-memory JobRepository with the same transition semantics
// as the Postgres store. It backs tests and the local mode of the CLIs.
type MemStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*entity.Job

	// Transitions records every observed status change, oldest first.
	// Tests use it to audit the forward-only invariant.
	Transitions []string
}

// NewMemStore returns an empty in-memory job store.
func NewMemStore() *MemStore {
	return &MemStore{jobs: make(map[uuid.UUID]*entity.Job)}
}

func (m *MemStore) Create(_ context.Context, job *entity.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	cp := cloneJob(job)
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	m.jobs[job.ID] = cp
	return nil
}

func (m *MemStore) Get(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneJob(job), nil
}

func (m *MemStore) SetStatus(_ context.Context, id uuid.UUID, next constants.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	if job.Status == next {
		// Duplicate delivery re-asserting the current status; no conflict.
		return nil
	}
	if !job.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: job %s %s -> %s", ErrInvalidTransition, id, job.Status, next)
	}
	m.record(job.Status, next)
	job.Status = next
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemStore) SaveExtractedText(_ context.Context, id uuid.UUID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	if job.Status != constants.JobStatusProcessing {
		return nil
	}
	t := text
	job.ExtractedText = &t
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemStore) SaveAnalysis(_ context.Context, id uuid.UUID, res *entity.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	if job.Status != constants.JobStatusProcessing {
		// Duplicate delivery lost the race; keep the committed result.
		return fmt.Errorf("%w: job %s", ErrNotProcessing, id)
	}
	m.record(job.Status, constants.JobStatusAnalyzed)
	score := res.Score
	optimized := res.OptimizedContent
	job.Score = &score
	job.OptimizedContent = &optimized
	job.Suggestions = append([]entity.Suggestion(nil), res.Suggestions...)
	if res.Profile != nil {
		p := *res.Profile
		job.Profile = &p
	} else {
		job.Profile = nil
	}
	job.Status = constants.JobStatusAnalyzed
	job.ErrorMessage = nil
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemStore) MarkFailed(_ context.Context, id uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	if !job.Status.CanTransitionTo(constants.JobStatusFailed) {
		return fmt.Errorf("%w: job %s %s -> FAILED", ErrInvalidTransition, id, job.Status)
	}
	m.record(job.Status, constants.JobStatusFailed)
	msg := message
	job.Status = constants.JobStatusFailed
	job.ErrorMessage = &msg
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemStore) ListAnalyzedByOwner(_ context.Context, ownerID string) ([]*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*entity.Job
	for _, job := range m.jobs {
		if job.OwnerID == ownerID && job.Status == constants.JobStatusAnalyzed {
			jobs = append(jobs, cloneJob(job))
		}
	}
	return jobs, nil
}

func (m *MemStore) record(from, to constants.JobStatus) {
	m.Transitions = append(m.Transitions, fmt.Sprintf("%s->%s", from, to))
}

func cloneJob(job *entity.Job) *entity.Job {
	cp := *job
	cp.Suggestions = append([]entity.Suggestion(nil), job.Suggestions...)
	if job.Profile != nil {
		p := *job.Profile
		p.Skills = append([]string(nil), job.Profile.Skills...)
		cp.Profile = &p
	}
	if job.ExtractedText != nil {
		t := *job.ExtractedText
		cp.ExtractedText = &t
	}
	if job.Score != nil {
		s := *job.Score
		cp.Score = &s
	}
	if job.OptimizedContent != nil {
		o := *job.OptimizedContent
		cp.OptimizedContent = &o
	}
	if job.ErrorMessage != nil {
		e := *job.ErrorMessage
		cp.ErrorMessage = &e
	}
	return &cp
}
