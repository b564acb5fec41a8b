package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/resumeiq/pipeline/internal/entity"
)

type memItem struct {
	id            int64
	payload       []byte
	deliveryCount int
	visibleAt     time.Time
}

// MemQueue is an in-memory Queue with the same lease semantics as PGQueue.
// It backs tests and the local mode of the CLIs. The clock is injectable so
// lease-expiry scenarios need no sleeping.
type MemQueue struct {
	mu     sync.Mutex
	nextID int64
	items  []*memItem
	poison []entity.PoisonRecord

	Now func() time.Time
}

// NewMemQueue returns an empty in-memory queue.
func NewMemQueue() *MemQueue {
	return &MemQueue{Now: time.Now}
}

func (q *MemQueue) Enqueue(_ context.Context, msg entity.QueueMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.items = append(q.items, &memItem{
		id:        q.nextID,
		payload:   payload,
		visibleAt: q.Now(),
	})
	return nil
}

func (q *MemQueue) Receive(_ context.Context, max int, lease time.Duration) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.Now()

	var msgs []Message
	for _, it := range q.items {
		if len(msgs) >= max {
			break
		}
		if it.visibleAt.After(now) {
			continue
		}
		it.deliveryCount++
		it.visibleAt = now.Add(lease)

		var wire entity.QueueMessage
		_ = json.Unmarshal(it.payload, &wire)
		msgs = append(msgs, Message{
			QueueMessage:  wire,
			DeliveryCount: it.deliveryCount,
			Receipt:       strconv.FormatInt(it.id, 10),
		})
	}
	return msgs, nil
}

func (q *MemQueue) Delete(_ context.Context, receipt string) error {
	id, err := strconv.ParseInt(receipt, 10, 64)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.id == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *MemQueue) Poison(_ context.Context, rec entity.PoisonRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.poison = append(q.poison, rec)
	return nil
}

// Poisoned returns a copy of the dead-letter channel contents.
func (q *MemQueue) Poisoned() []entity.PoisonRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]entity.PoisonRecord(nil), q.poison...)
}

// Len reports how many messages remain in the main channel.
func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
