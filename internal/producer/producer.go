// Package producer accepts validated uploads and feeds them into the
// pipeline: store the document, create the job record, enqueue the message.
package producer

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/resumeiq/pipeline/constants"
	"github.com/resumeiq/pipeline/internal/blob"
	"github.com/resumeiq/pipeline/internal/common"
	"github.com/resumeiq/pipeline/internal/entity"
	"github.com/resumeiq/pipeline/internal/queue"
	"github.com/resumeiq/pipeline/internal/repository"
)

// Producer creates jobs. File type and size validation happen upstream in
// the HTTP layer; by the time Submit runs the bytes are accepted.
type Producer struct {
	blobs blob.Gateway
	jobs  repository.JobRepository
	queue queue.Queue
	log   *slog.Logger
}

// New wires a producer from its collaborators.
func New(blobs blob.Gateway, jobs repository.JobRepository, q queue.Queue, log *slog.Logger) *Producer {
	if log == nil {
		log = slog.Default()
	}
	return &Producer{blobs: blobs, jobs: jobs, queue: q, log: log}
}

// Submit stores the document, creates a PENDING job and enqueues its
// message. On success a queue message has been durably enqueued. A blob
// failure creates nothing; an enqueue failure after the row insert leaves a
// stuck-PENDING job for the operational sweep to find, which is the one
// accepted failure window.
func (p *Producer) Submit(ctx context.Context, ownerID string, fileBytes []byte, fileName string) (uuid.UUID, error) {
	ref, err := p.blobs.Upload(ctx, ownerID, fileName, fileBytes)
	if err != nil {
		p.log.Error("upload failed, no job created", "owner_id", ownerID, "err", err)
		return uuid.Nil, common.WrapError(err, "store document")
	}

	job := &entity.Job{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		DocumentRef: ref,
		FileName:    fileName,
		Status:      constants.JobStatusPending,
	}
	if err := p.jobs.Create(ctx, job); err != nil {
		return uuid.Nil, common.WrapError(err, "create job")
	}

	msg := entity.QueueMessage{JobID: job.ID.String(), OwnerID: ownerID}
	if err := p.queue.Enqueue(ctx, msg); err != nil {
		p.log.Error("enqueue failed, job stuck in PENDING", "job_id", job.ID, "err", err)
		return uuid.Nil, common.WrapError(err, "enqueue job")
	}

	p.log.Info("job submitted", "job_id", job.ID, "owner_id", ownerID, "file", fileName)
	return job.ID, nil
}
