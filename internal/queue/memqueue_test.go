package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/resumeiq/pipeline/internal/entity"
)

func TestMemQueue_LeaseHidesMessage(t *testing.T) {
	now := time.Now().UTC()
	q := NewMemQueue()
	q.Now = func() time.Time { return now }

	require.NoError(t, q.Enqueue(context.Background(), entity.QueueMessage{JobID: "j1", OwnerID: "o1"}))

	msgs, err := q.Receive(context.Background(), 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "j1", msgs[0].JobID)
	require.Equal(t, 1, msgs[0].DeliveryCount)

	// Leased: invisible to the next receiver.
	msgs, err = q.Receive(context.Background(), 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, msgs)
	require.Equal(t, 1, q.Len(), "leased message is hidden, not gone")
}

func TestMemQueue_ExpiredLeaseRedeliversWithIncrementedCount(t *testing.T) {
	now := time.Now().UTC()
	q := NewMemQueue()
	q.Now = func() time.Time { return now }

	require.NoError(t, q.Enqueue(context.Background(), entity.QueueMessage{JobID: "j1"}))

	for want := 1; want <= 3; want++ {
		msgs, err := q.Receive(context.Background(), 10, time.Minute)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.Equal(t, want, msgs[0].DeliveryCount)
		now = now.Add(time.Minute + time.Second)
	}
}

func TestMemQueue_DeleteIsFinal(t *testing.T) {
	now := time.Now().UTC()
	q := NewMemQueue()
	q.Now = func() time.Time { return now }

	require.NoError(t, q.Enqueue(context.Background(), entity.QueueMessage{JobID: "j1"}))
	msgs, err := q.Receive(context.Background(), 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	receipt := msgs[0].Receipt

	require.NoError(t, q.Delete(context.Background(), receipt))
	require.Equal(t, 0, q.Len())

	now = now.Add(time.Hour)
	msgs, err = q.Receive(context.Background(), 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, msgs)

	// Deleting again is a no-op.
	require.NoError(t, q.Delete(context.Background(), receipt))
}

func TestMemQueue_BatchRespectsMax(t *testing.T) {
	q := NewMemQueue()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(context.Background(), entity.QueueMessage{JobID: "j"}))
	}
	msgs, err := q.Receive(context.Background(), 3, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
}

func TestMemQueue_PoisonIsSeparateChannel(t *testing.T) {
	q := NewMemQueue()
	require.NoError(t, q.Enqueue(context.Background(), entity.QueueMessage{JobID: "j1"}))

	rec := entity.PoisonRecord{JobID: "j1", OwnerID: "o1", Reason: "exhausted", FailedAt: time.Now().UTC()}
	require.NoError(t, q.Poison(context.Background(), rec))

	require.Equal(t, 1, q.Len(), "poisoning does not touch the main channel")
	poisoned := q.Poisoned()
	require.Len(t, poisoned, 1)
	require.Equal(t, rec, poisoned[0])
}
