package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// maxBackoff caps every retry delay.
const maxBackoff = time.Hour

// backoff doubles base for every attempt after the first. Attempt zero is due at once.
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	if attempt > 32 {
		return maxBackoff
	}
	delay := time.Duration(1<<uint(attempt-1)) * base
	if delay > maxBackoff || delay <= 0 {
		return maxBackoff
	}
	return delay
}

// writeDLQ records an undeliverable event. retry_count carries over the replays the
// event already had, so an event failing again and again still reaches quarantine.
func writeDLQ(ctx context.Context, tx pgx.Tx, msg Message, reason string, delay time.Duration) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox_dlq (user_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at)
	         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, NOW() + $12::interval)`,
		msg.UserID, msg.EventID, msg.EventType, msg.Topic, msg.Payload, reason, msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
		msg.Attempts, delay,
	)
	return err
}
