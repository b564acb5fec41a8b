package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/resumeiq/pipeline/constants"
)

// Job is one resume's processing record. Only the pipeline worker mutates
// status and content after creation; readers see committed rows only.
type Job struct {
	ID               uuid.UUID
	OwnerID          string
	DocumentRef      string // permanent blob key, never expires
	FileName         string
	ExtractedText    *string
	Status           constants.JobStatus
	Score            *int // 0-100, set on successful analysis
	OptimizedContent *string
	ErrorMessage     *string // generic, non-sensitive; set on FAILED only
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Children, owned and fully rewritten by the worker.
	Profile     *CandidateProfile
	Suggestions []Suggestion
}

// CandidateProfile is the optional 1:1 child of an analyzed job. It never
// exists for a job that has not reached ANALYZED.
type CandidateProfile struct {
	FullName          string   `json:"full_name"`
	Email             string   `json:"email"`
	Phone             *string  `json:"phone,omitempty"`
	Location          *string  `json:"location,omitempty"`
	Skills            []string `json:"skills"`
	YearsOfExperience *int     `json:"years_of_experience,omitempty"`
	CurrentTitle      *string  `json:"current_title,omitempty"`
	Education         *string  `json:"education,omitempty"`
}

// Suggestion is one improvement suggestion from the analysis stage.
// Priority 1 is highest, 5 lowest.
type Suggestion struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

// AnalysisResult is the validated output of one analysis stage call.
type AnalysisResult struct {
	Score            int               `json:"score"`
	OptimizedContent string            `json:"optimized_content"`
	Suggestions      []Suggestion      `json:"suggestions"`
	Profile          *CandidateProfile `json:"profile,omitempty"`
}
