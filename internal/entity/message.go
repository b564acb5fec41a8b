package entity

import "time"

// QueueMessage is the wire payload carried from producer to worker.
// Additions to this payload must be additive; consumers ignore unknown fields.
type QueueMessage struct {
	JobID   string `json:"jobId"`
	OwnerID string `json:"ownerId"`
}

// PoisonRecord is written to the dead-letter channel when a message
// exhausts its retry budget.
type PoisonRecord struct {
	JobID    string    `json:"jobId"`
	OwnerID  string    `json:"ownerId"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failedAt"`
}

// StatusProjection is the client-facing view of a job, consumed by the
// polling HTTP layer.
type StatusProjection struct {
	JobID        string `json:"jobId"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}
