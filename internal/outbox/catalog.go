package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mudmantim/switchline-backend-sub000/internal/events"
)

// Route describes where an event type is published and which schema frames it.
type Route struct {
	Topic         string
	SchemaSubject string
	Schema        string
}

var routes = map[string]Route{
	events.TypeWorkoutCompleted: {
		Topic:         events.TopicWorkouts,
		SchemaSubject: events.TopicWorkouts + "-value",
		Schema:        workoutCompletedSchema,
	},
	events.TypePopupScheduled: {
		Topic:         events.TopicPopups,
		SchemaSubject: events.TopicPopups + "-scheduled-value",
		Schema:        popupScheduledSchema,
	},
	events.TypePopupCompleted: {
		Topic:         events.TopicPopups,
		SchemaSubject: events.TopicPopups + "-completed-value",
		Schema:        popupCompletedSchema,
	},
	events.TypeTriviaAnswered: {
		Topic:         events.TopicTrivia,
		SchemaSubject: events.TopicTrivia + "-value",
		Schema:        triviaAnsweredSchema,
	},
}

// RouteFor returns the routing metadata for an event type.
func RouteFor(eventType string) (Route, bool) {
	r, ok := routes[eventType]
	return r, ok
}

// Topics lists every topic the outbox publishes to.
func Topics() []string {
	seen := make(map[string]struct{})
	topics := make([]string, 0, len(routes))
	for _, r := range routes {
		if _, ok := seen[r.Topic]; ok {
			continue
		}
		seen[r.Topic] = struct{}{}
		topics = append(topics, r.Topic)
	}
	return topics
}

// Event is a domain event staged for publication.
type Event struct {
	UserID        string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       any
}

// Enqueue writes the event into the outbox table inside the caller's transaction.
// Events are keyed by user so a user's events stay ordered within a partition.
func Enqueue(ctx context.Context, tx pgx.Tx, ev Event) error {
	route, ok := RouteFor(ev.EventType)
	if !ok {
		return fmt.Errorf("unknown event type: %s", ev.EventType)
	}
	body, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		ev.UserID,
		ev.AggregateType,
		ev.AggregateID,
		ev.EventType,
		route.Topic,
		route.SchemaSubject,
		ev.UserID,
		body,
		fmt.Sprintf("%s:%s", ev.AggregateID, ev.EventType),
	)
	if err != nil {
		return err
	}
	enqueuedCounter.WithLabelValues(ev.EventType).Inc()
	return nil
}
