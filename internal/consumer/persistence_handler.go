package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mudmantim/switchline-backend-sub000/internal/events"
)

// PersistenceHandler writes consumed engagement events into Postgres for auditing.
type PersistenceHandler struct {
	pool *pgxpool.Pool
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool) *PersistenceHandler {
	return &PersistenceHandler{pool: pool}
}

// Handle stores the event in engagement_event_log. Redelivered offsets are ignored.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	summary, err := summarize(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnprocessable, err)
	}

	_, err = h.pool.Exec(ctx,
		`INSERT INTO engagement_event_log (event_type, user_id, schema_id, schema_subject, topic, partition, record_offset, gems, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.EventType,
		summary.userID,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		summary.gems,
		msg.Payload,
		msg.Timestamp,
	)
	return err
}

type eventSummary struct {
	userID string
	gems   int
}

// summarize validates the payload against its event type and extracts the audit columns.
// The user header wins when present.
func summarize(msg Message) (eventSummary, error) {
	var s eventSummary
	switch msg.EventType {
	case events.TypeWorkoutCompleted:
		var ev events.WorkoutCompleted
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return s, fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		s.userID = ev.UserID
	case events.TypePopupScheduled:
		var ev events.PopupScheduled
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return s, fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		s.userID = ev.UserID
	case events.TypePopupCompleted:
		var ev events.PopupCompleted
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return s, fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		s.userID = ev.UserID
		s.gems = ev.GemsEarned + ev.SpeedBonus
	case events.TypeTriviaAnswered:
		var ev events.TriviaAnswered
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return s, fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		s.userID = ev.UserID
		s.gems = ev.GemsEarned
	default:
		return s, fmt.Errorf("unknown event type %q", msg.EventType)
	}
	if msg.UserID != "" {
		s.userID = msg.UserID
	}
	if s.userID == "" {
		return s, fmt.Errorf("%s event without user id", msg.EventType)
	}
	return s, nil
}
