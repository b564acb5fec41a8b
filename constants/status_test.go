package constants

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJobStatusTransitions(t *testing.T) {
	all := []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusAnalyzed, JobStatusFailed}

	allowed := map[JobStatus][]JobStatus{
		JobStatusPending:    {JobStatusProcessing, JobStatusFailed},
		JobStatusProcessing: {JobStatusPending, JobStatusAnalyzed, JobStatusFailed},
		JobStatusAnalyzed:   {},
		JobStatusFailed:     {},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			require.Equalf(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestJobStatusTerminal(t *testing.T) {
	require.False(t, JobStatusPending.Terminal())
	require.False(t, JobStatusProcessing.Terminal())
	require.True(t, JobStatusAnalyzed.Terminal())
	require.True(t, JobStatusFailed.Terminal())
}
