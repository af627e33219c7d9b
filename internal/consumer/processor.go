// Package consumer reads engagement events back off Kafka and hands them to a Handler.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mudmantim/switchline-backend-sub000/internal/outbox"
)

// Reader is the subset of *kafka.Reader the processor uses.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded engagement events.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is one outbox event with its Confluent frame removed.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	UserID        string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// HandlerError is returned from Run when a message kept failing after every retry.
// The offset is left uncommitted so a fresh reader resumes from it.
type HandlerError struct {
	Topic     string
	Partition int
	Offset    int64
	EventType string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handle %s at %s/%d@%d: %v", e.EventType, e.Topic, e.Partition, e.Offset, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// ErrUnprocessable marks handler failures that no retry can fix. The processor commits
// such messages and moves on.
var ErrUnprocessable = errors.New("unprocessable event")

const (
	defaultAttempts   = 3
	defaultRetryDelay = 500 * time.Millisecond
)

// Option configures a Processor.
type Option func(*Processor)

// WithLogger replaces the processor logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRetry sets how many times a message is handed to the handler before Run gives up,
// and the pause between tries.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		if delay >= 0 {
			p.retryDelay = delay
		}
	}
}

// Processor fetches, validates and dispatches messages, committing each offset once it
// has been handled or rejected as malformed.
type Processor struct {
	reader     Reader
	handler    Handler
	logger     *log.Logger
	attempts   int
	retryDelay time.Duration
}

// NewProcessor wires a reader to a handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:     reader,
		handler:    handler,
		logger:     log.New(log.Writer(), "[consumer] ", log.LstdFlags),
		attempts:   defaultAttempts,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes messages until ctx ends or a message exhausts its retries.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return err
			}
			p.logger.Printf("fetch failed: %v", err)
			if err := p.pause(ctx); err != nil {
				return err
			}
			continue
		}

		msg, err := decodeMessage(record)
		if err != nil {
			var frameErr *frameError
			reason := "malformed"
			if errors.As(err, &frameErr) {
				reason = frameErr.reason
			}
			p.logger.Printf("dropping %s/%d@%d: %v", record.Topic, record.Partition, record.Offset, err)
			recordRejected(record.Topic, reason)
			p.commit(ctx, record)
			continue
		}

		if err := p.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrUnprocessable) {
				p.logger.Printf("dropping %s/%d@%d: %v", record.Topic, record.Partition, record.Offset, err)
				recordRejected(record.Topic, "unprocessable")
				p.commit(ctx, record)
				continue
			}
			return &HandlerError{
				Topic:     msg.Topic,
				Partition: msg.Partition,
				Offset:    msg.Offset,
				EventType: msg.EventType,
				Err:       err,
			}
		}

		if p.commit(ctx, record) {
			recordHandled(msg)
		}
	}
}

func (p *Processor) handle(ctx context.Context, msg Message) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.handler.Handle(ctx, msg); err == nil {
			return nil
		}
		recordHandlerFailure(msg.EventType)
		if errors.Is(err, ErrUnprocessable) {
			return err
		}
		p.logger.Printf("handler attempt %d/%d failed (event_type=%s, user=%s): %v", attempt, p.attempts, msg.EventType, msg.UserID, err)
		if attempt < p.attempts {
			if waitErr := p.pause(ctx); waitErr != nil {
				return waitErr
			}
		}
	}
	return err
}

func (p *Processor) commit(ctx context.Context, record kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, record); err != nil {
		p.logger.Printf("commit %s/%d@%d failed: %v", record.Topic, record.Partition, record.Offset, err)
		return false
	}
	return true
}

func (p *Processor) pause(ctx context.Context) error {
	if p.retryDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type frameError struct {
	reason string
	detail string
}

func (e *frameError) Error() string { return e.detail }

func rejectFrame(reason, format string, args ...any) error {
	return &frameError{reason: reason, detail: fmt.Sprintf(format, args...)}
}

// decodeMessage strips the wire frame and checks the headers against the outbox routes.
func decodeMessage(record kafka.Message) (Message, error) {
	if len(record.Value) < 5 {
		return Message{}, rejectFrame("short_frame", "frame of %d bytes is shorter than the 5 byte header", len(record.Value))
	}
	if record.Value[0] != 0 {
		return Message{}, rejectFrame("magic_byte", "unexpected magic byte %#x", record.Value[0])
	}

	eventType := headerValue(record, "event_type")
	if eventType == "" {
		return Message{}, rejectFrame("missing_event_type", "event_type header missing")
	}
	route, ok := outbox.RouteFor(eventType)
	if !ok {
		return Message{}, rejectFrame("unknown_event_type", "no route for event_type=%s", eventType)
	}
	if record.Topic != "" && record.Topic != route.Topic {
		return Message{}, rejectFrame("wrong_topic", "%s belongs on %s, read from %s", eventType, route.Topic, record.Topic)
	}

	subject := headerValue(record, "schema_subject")
	if subject == "" {
		subject = route.SchemaSubject
	}

	return Message{
		Topic:         record.Topic,
		Partition:     record.Partition,
		Offset:        record.Offset,
		Timestamp:     record.Time,
		EventType:     eventType,
		UserID:        headerValue(record, "user_id"),
		SchemaSubject: subject,
		SchemaID:      int(binary.BigEndian.Uint32(record.Value[1:5])),
		Payload:       json.RawMessage(append([]byte(nil), record.Value[5:]...)),
	}, nil
}

func headerValue(record kafka.Message, key string) string {
	for _, h := range record.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
