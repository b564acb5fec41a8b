package constants

// JobStatus is the canonical status for rows in resume_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending    JobStatus = "PENDING"    // created, waiting for a worker
	JobStatusProcessing JobStatus = "PROCESSING" // a worker holds the message
	JobStatusAnalyzed   JobStatus = "ANALYZED"   // terminal success
	JobStatusFailed     JobStatus = "FAILED"     // terminal failure (retries exhausted)
)

// CanTransitionTo reports whether moving from s to next is a legal status
// transition. The only backward edge is PROCESSING -> PENDING, used for the
// failure rollback before a redelivery. Terminal states never move.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		// PENDING -> FAILED is the retry-exhaustion edge: a poisoned message
		// fails its job without another processing attempt.
		return next == JobStatusProcessing || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusPending || next == JobStatusAnalyzed || next == JobStatusFailed
	default:
		return false
	}
}

// Terminal reports whether the status permits no further mutation.
func (s JobStatus) Terminal() bool {
	return s == JobStatusAnalyzed || s == JobStatusFailed
}

// Client-facing status strings for the polling projection.
const (
	ProjectionPending    = "pending"
	ProjectionProcessing = "processing"
	ProjectionComplete   = "complete"
	ProjectionFailed     = "failed"
)
