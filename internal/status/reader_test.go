package status

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/resumeiq/pipeline/constants"
	"github.com/resumeiq/pipeline/internal/common"
	"github.com/resumeiq/pipeline/internal/entity"
	"github.com/resumeiq/pipeline/internal/repository"
)

func TestProject(t *testing.T) {
	id := uuid.New()
	msg := "Resume processing failed after multiple attempts. Please try uploading again."

	cases := []struct {
		name     string
		job      *entity.Job
		status   string
		progress int
		errMsg   string
	}{
		{"pending", &entity.Job{ID: id, Status: constants.JobStatusPending}, constants.ProjectionPending, 0, ""},
		{"processing", &entity.Job{ID: id, Status: constants.JobStatusProcessing}, constants.ProjectionProcessing, 50, ""},
		{"analyzed", &entity.Job{ID: id, Status: constants.JobStatusAnalyzed}, constants.ProjectionComplete, 100, ""},
		{"failed with message", &entity.Job{ID: id, Status: constants.JobStatusFailed, ErrorMessage: &msg}, constants.ProjectionFailed, 0, msg},
		{"failed without message", &entity.Job{ID: id, Status: constants.JobStatusFailed}, constants.ProjectionFailed, 0, "Resume processing failed."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			proj := Project(tc.job)
			require.Equal(t, id.String(), proj.JobID)
			require.Equal(t, tc.status, proj.Status)
			require.Equal(t, tc.progress, proj.Progress)
			require.Equal(t, tc.errMsg, proj.ErrorMessage)
		})
	}
}

func TestReader_GetStatus(t *testing.T) {
	store := repository.NewMemStore()
	reader := NewReader(store, nil, 0, nil)
	ctx := context.Background()

	job := &entity.Job{
		ID:      uuid.New(),
		OwnerID: "o1",
		Status:  constants.JobStatusPending,
	}
	require.NoError(t, store.Create(ctx, job))

	proj, err := reader.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.ProjectionPending, proj.Status)

	require.NoError(t, store.SetStatus(ctx, job.ID, constants.JobStatusProcessing))
	proj, err = reader.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.ProjectionProcessing, proj.Status)
	require.Equal(t, 50, proj.Progress)
}

func TestReader_GetStatusUnknownJob(t *testing.T) {
	reader := NewReader(repository.NewMemStore(), nil, 0, nil)
	_, err := reader.GetStatus(context.Background(), uuid.New())
	require.ErrorIs(t, err, common.ErrNotFound)
}
