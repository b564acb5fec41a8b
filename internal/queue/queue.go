// Package queue provides the durable, at-least-once message channel between
// the job producer and the pipeline workers. A received message is hidden
// from other receivers for the duration of its visibility lease and comes
// back automatically if it is never deleted; delivery count is maintained by
// the queue, not by the application.
package queue

import (
	"context"
	"time"

	"github.com/resumeiq/pipeline/internal/entity"
)

// Message is one received delivery. DeliveryCount is the number of times the
// message has been received without being deleted, this delivery included.
type Message struct {
	entity.QueueMessage
	DeliveryCount int
	Receipt       string
}

// Queue is the channel contract the producer and workers share.
type Queue interface {
	Enqueue(ctx context.Context, msg entity.QueueMessage) error
	// Receive returns up to max messages, each leased for the given
	// duration. An empty result is not an error.
	Receive(ctx context.Context, max int, lease time.Duration) ([]Message, error)
	// Delete removes a delivered message permanently. This is the
	// at-least-once commit point.
	Delete(ctx context.Context, receipt string) error
	// Poison writes a record to the dead-letter side channel.
	Poison(ctx context.Context, rec entity.PoisonRecord) error
}
