// Package outbox persists and delivers domain events to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	SchemaID(ctx context.Context, subject, schema string) (int, error)
}

// Dispatcher drains the outbox table and publishes engagement events to Kafka framed
// with their Schema Registry id. A failure only dead-letters the events it affects:
// an event with no route, a subject the registry rejects, or a topic whose write failed.
type Dispatcher struct {
	pool         *pgxpool.Pool
	producer     messageWriter
	registry     schemaRegistrar
	pollInterval time.Duration
	batchSize    int
	retryBase    time.Duration
	logger       *log.Logger
	done         chan struct{}
}

// DispatcherOption configures optional Dispatcher behaviour.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger overrides the logger used for delivery failures.
func WithDispatcherLogger(logger *log.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithRetryBackoff sets the base delay before a dead-lettered event that already
// failed after a replay becomes due again.
func WithRetryBackoff(base time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if base > 0 {
			d.retryBase = base
		}
	}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int, opts ...DispatcherOption) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 25
	}
	d := &Dispatcher{
		pool:         pool,
		producer:     producer,
		registry:     registry,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		retryBase:    time.Minute,
		logger:       log.New(log.Writer(), "[outbox] ", log.LstdFlags),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs the polling loop until ctx is cancelled. A full batch is followed
// immediately by the next one so a backlog drains without waiting for the ticker.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.done)
	}()

	for {
		claimed, err := d.processBatch(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Printf("dispatch failed: %v", err)
		}
		if err == nil && claimed == d.batchSize {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

// Causes recorded when an event is dead-lettered.
const (
	causeUnroutable = "unroutable"
	causeSchema     = "schema"
	causeKafka      = "kafka"
)

// rejection is an event that could not be published and goes to the DLQ.
type rejection struct {
	msg    Message
	cause  string
	reason string
}

func (d *Dispatcher) processBatch(ctx context.Context) (int, error) {
	start := time.Now()

	messages, err := d.claim(ctx)
	if err != nil || len(messages) == 0 {
		return 0, err
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	byTopic, rejected := d.prepare(ctx, messages)

	topics := make([]string, 0, len(byTopic))
	for topic := range byTopic {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	delivered := make([]Message, 0, len(messages))
	for _, topic := range topics {
		batch := byTopic[topic]
		records := make([]kafka.Message, 0, len(batch))
		for _, p := range batch {
			records = append(records, p.record)
		}
		if err := d.producer.WriteMessages(ctx, topic, records...); err != nil {
			d.logger.Printf("publish to %s failed for %d events: %v", topic, len(batch), err)
			for _, p := range batch {
				rejected = append(rejected, rejection{msg: p.msg, cause: causeKafka, reason: fmt.Sprintf("kafka write failed: %v (topic=%s)", err, topic)})
			}
			continue
		}
		for _, p := range batch {
			delivered = append(delivered, p.msg)
		}
	}

	if err := d.settle(ctx, delivered, rejected); err != nil {
		return len(messages), err
	}
	batchSizeHistogram.Observe(float64(len(messages)))
	for _, m := range delivered {
		publishedCounter.WithLabelValues(m.EventType).Inc()
	}
	for _, r := range rejected {
		rejectedCounter.WithLabelValues(r.cause).Inc()
		dlqCounter.WithLabelValues(r.msg.Topic).Inc()
	}
	return len(messages), nil
}

// claim locks the oldest unpublished events and stamps claimed_at.
func (d *Dispatcher) claim(ctx context.Context) ([]Message, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, `SELECT event_id, user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, attempts
        FROM outbox
        WHERE published_at IS NULL
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`, d.batchSize)
	if err != nil {
		return nil, err
	}
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.EventID, &m.UserID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Topic, &m.SchemaSubject, &m.PartitionKey, &m.Payload, &m.Attempts)
		return m, err
	})
	if err != nil || len(messages) == 0 {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, eventIDs(messages)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return messages, nil
}

type pending struct {
	msg    Message
	record kafka.Message
}

// prepare frames every routable event and groups them by topic. Each schema subject
// is resolved at most once per batch.
func (d *Dispatcher) prepare(ctx context.Context, messages []Message) (map[string][]pending, []rejection) {
	byTopic := make(map[string][]pending)
	rejected := make([]rejection, 0)
	schemaIDs := make(map[string]int)
	schemaErrs := make(map[string]error)

	for _, msg := range messages {
		route, ok := RouteFor(msg.EventType)
		if !ok {
			rejected = append(rejected, rejection{msg: msg, cause: causeUnroutable, reason: fmt.Sprintf("no schema metadata for event_type=%s", msg.EventType)})
			continue
		}

		id, resolved := schemaIDs[route.SchemaSubject]
		if !resolved {
			if err, failed := schemaErrs[route.SchemaSubject]; failed {
				rejected = append(rejected, rejection{msg: msg, cause: causeSchema, reason: fmt.Sprintf("schema registry: %v", err)})
				continue
			}
			var err error
			id, err = d.registry.SchemaID(ctx, route.SchemaSubject, route.Schema)
			if err != nil {
				schemaErrs[route.SchemaSubject] = err
				rejected = append(rejected, rejection{msg: msg, cause: causeSchema, reason: fmt.Sprintf("schema registry: %v", err)})
				continue
			}
			schemaIDs[route.SchemaSubject] = id
		}

		byTopic[route.Topic] = append(byTopic[route.Topic], pending{msg: msg, record: kafkaRecord(msg, route, id)})
	}
	return byTopic, rejected
}

func kafkaRecord(msg Message, route Route, schemaID int) kafka.Message {
	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: encodeWireFormat(schemaID, msg.Payload),
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.EventType)},
			{Key: "user_id", Value: []byte(msg.UserID)},
			{Key: "schema_subject", Value: []byte(route.SchemaSubject)},
		},
	}
}

// settle dead-letters rejected events and marks the whole batch published in one
// transaction, so no claimed event is left behind or handled twice.
func (d *Dispatcher) settle(ctx context.Context, delivered []Message, rejected []rejection) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	all := append([]Message(nil), delivered...)
	for _, r := range rejected {
		if err := writeDLQ(ctx, tx, r.msg, r.reason, backoff(d.retryBase, r.msg.Attempts)); err != nil {
			return fmt.Errorf("dead-letter event %d: %w", r.msg.EventID, err)
		}
		all = append(all, r.msg)
	}
	if _, err := tx.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(all)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func eventIDs(messages []Message) []int64 {
	ids := make([]int64, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.EventID)
	}
	return ids
}

// Message represents a row fetched from outbox.
type Message struct {
	EventID       int64
	UserID        string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
	// Attempts counts earlier DLQ replays of this event.
	Attempts int
}

// encodeWireFormat applies Confluent framing: a zero magic byte, the big-endian
// schema id, then the payload.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
