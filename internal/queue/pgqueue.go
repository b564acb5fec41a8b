package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resumeiq/pipeline/internal/common"
	"github.com/resumeiq/pipeline/internal/entity"
)

// PGQueue is a Postgres-backed lease queue. Receive claims rows with
// FOR UPDATE SKIP LOCKED so concurrent workers never block each other, and
// pushes visible_at forward by the lease so an undeleted message reappears
// on its own after a crash.
type PGQueue struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPGQueue returns a queue over the shared pool.
func NewPGQueue(pool *pgxpool.Pool, log *slog.Logger) *PGQueue {
	if log == nil {
		log = slog.Default()
	}
	return &PGQueue{pool: pool, log: log}
}

func (q *PGQueue) Enqueue(ctx context.Context, msg entity.QueueMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return common.WrapError(err, "encode queue message")
	}
	if _, err := q.pool.Exec(ctx,
		`INSERT INTO queue_messages (payload) VALUES ($1)`, payload,
	); err != nil {
		q.log.Error("enqueue failed", "job_id", msg.JobID, "err", err)
		return common.WrapError(err, "enqueue")
	}
	q.log.Debug("message enqueued", "job_id", msg.JobID)
	return nil
}

func (q *PGQueue) Receive(ctx context.Context, max int, lease time.Duration) ([]Message, error) {
	rows, err := q.pool.Query(ctx,
		`UPDATE queue_messages
		 SET delivery_count = delivery_count + 1,
		     visible_at = now() + make_interval(secs => $2)
		 WHERE id IN (
		     SELECT id FROM queue_messages
		     WHERE visible_at <= now()
		     ORDER BY id
		     LIMIT $1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, payload, delivery_count`,
		max, lease.Seconds(),
	)
	if err != nil {
		return nil, common.WrapError(err, "receive")
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			id      int64
			payload []byte
			count   int
		)
		if err := rows.Scan(&id, &payload, &count); err != nil {
			return nil, common.WrapError(err, "scan message")
		}
		var wire entity.QueueMessage
		if err := json.Unmarshal(payload, &wire); err != nil {
			// An undecodable payload would redeliver forever; leave it to
			// the delivery-count bound by reporting it as received.
			q.log.Error("malformed queue payload", "message_id", id, "err", err)
		}
		msgs = append(msgs, Message{
			QueueMessage:  wire,
			DeliveryCount: count,
			Receipt:       strconv.FormatInt(id, 10),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(err, "receive")
	}
	return msgs, nil
}

func (q *PGQueue) Delete(ctx context.Context, receipt string) error {
	id, err := strconv.ParseInt(receipt, 10, 64)
	if err != nil {
		return common.WrapError(err, "parse receipt")
	}
	if _, err := q.pool.Exec(ctx,
		`DELETE FROM queue_messages WHERE id = $1`, id,
	); err != nil {
		return common.WrapError(err, "delete message")
	}
	return nil
}

func (q *PGQueue) Poison(ctx context.Context, rec entity.PoisonRecord) error {
	record, err := json.Marshal(rec)
	if err != nil {
		return common.WrapError(err, "encode poison record")
	}
	if _, err := q.pool.Exec(ctx,
		`INSERT INTO poison_messages (record) VALUES ($1)`, record,
	); err != nil {
		return common.WrapError(err, "write poison record")
	}
	q.log.Warn("poison record written", "job_id", rec.JobID, "reason", rec.Reason)
	return nil
}
