package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func framed(schemaID uint32, payload string) []byte {
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], schemaID)
	copy(value[5:], payload)
	return value
}

func headers(eventType, userID, subject string) []kafka.Header {
	return []kafka.Header{
		{Key: "event_type", Value: []byte(eventType)},
		{Key: "user_id", Value: []byte(userID)},
		{Key: "schema_subject", Value: []byte(subject)},
	}
}

func quietLogger(t *testing.T) Option {
	return WithLogger(log.New(testWriter{t}, "", 0))
}

func TestProcessorCommitsHandledEvents(t *testing.T) {
	payload := `{"popup_id":"p-1","user_id":"user-1","kind":"trivia","scheduled_at":"2025-03-10T09:30:00Z"}`
	reader := &stubReader{messages: []kafka.Message{{
		Topic:   "engagement.popups",
		Offset:  10,
		Time:    time.Now().UTC(),
		Value:   framed(42, payload),
		Headers: headers("popup.scheduled", "user-1", "engagement.popups-scheduled-value"),
	}}}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, quietLogger(t)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, []int64{10}, reader.committed)
	require.Equal(t, "popup.scheduled", handler.last.EventType)
	require.Equal(t, "user-1", handler.last.UserID)
	require.Equal(t, "engagement.popups-scheduled-value", handler.last.SchemaSubject)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, payload, string(handler.last.Payload))
}

func TestProcessorFillsSubjectFromRoute(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{{
		Topic:   "engagement.trivia",
		Value:   framed(3, `{}`),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte("trivia.answered")}},
	}}}
	handler := &stubHandler{}

	require.ErrorIs(t, NewProcessor(reader, handler, quietLogger(t)).Run(context.Background()), context.Canceled)
	require.Equal(t, "engagement.trivia-value", handler.last.SchemaSubject)
}

func TestProcessorRetriesHandlerBeforeCommitting(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{{
		Topic:   "engagement.trivia",
		Offset:  20,
		Value:   framed(99, `{"user_id":"user-2","question_id":"tq-003"}`),
		Headers: headers("trivia.answered", "user-2", "engagement.trivia-value"),
	}}}
	handler := &stubHandler{failures: 2, err: errors.New("connection reset")}

	err := NewProcessor(reader, handler, quietLogger(t), WithRetry(3, 0)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 3, handler.calls)
	require.Equal(t, []int64{20}, reader.committed)
}

func TestProcessorStopsWithoutCommitWhenRetriesRunOut(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{
		{
			Topic:     "engagement.workouts",
			Partition: 1,
			Offset:    30,
			Value:     framed(7, `{}`),
			Headers:   headers("workout.completed", "user-3", "engagement.workouts-value"),
		},
		{
			Topic:     "engagement.workouts",
			Partition: 1,
			Offset:    31,
			Value:     framed(7, `{}`),
			Headers:   headers("workout.completed", "user-3", "engagement.workouts-value"),
		},
	}}
	cause := errors.New("database unavailable")
	handler := &stubHandler{failures: 100, err: cause}

	err := NewProcessor(reader, handler, quietLogger(t), WithRetry(2, 0)).Run(context.Background())

	var handlerErr *HandlerError
	require.ErrorAs(t, err, &handlerErr)
	require.ErrorIs(t, err, cause)
	require.Equal(t, int64(30), handlerErr.Offset)
	require.Equal(t, 1, handlerErr.Partition)
	require.Equal(t, "workout.completed", handlerErr.EventType)
	require.Equal(t, 2, handler.calls)
	require.Empty(t, reader.committed)
	require.Equal(t, 1, reader.index, "the next record is not fetched")
}

func TestProcessorDropsUnprocessableEventsAfterOneTry(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{{
		Topic:   "engagement.trivia",
		Offset:  40,
		Value:   framed(1, `{}`),
		Headers: headers("trivia.answered", "user-4", "engagement.trivia-value"),
	}}}
	handler := &stubHandler{failures: 100, err: fmt.Errorf("%w: missing question", ErrUnprocessable)}

	err := NewProcessor(reader, handler, quietLogger(t), WithRetry(5, 0)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, []int64{40}, reader.committed)
}

func TestProcessorCommitsInvalidFrames(t *testing.T) {
	valid := headers("popup.completed", "user-5", "engagement.popups-completed-value")
	reader := &stubReader{messages: []kafka.Message{
		{Topic: "engagement.popups", Offset: 1, Value: []byte{0, 1}, Headers: valid},
		{Topic: "engagement.popups", Offset: 2, Value: []byte{1, 0, 0, 0, 1, '{', '}'}, Headers: valid},
		{Topic: "engagement.popups", Offset: 3, Value: framed(1, `{}`)},
		{Topic: "engagement.popups", Offset: 4, Value: framed(1, `{}`), Headers: headers("popup.expired", "user-5", "")},
		{Topic: "engagement.trivia", Offset: 5, Value: framed(1, `{}`), Headers: valid},
	}}
	handler := &stubHandler{}

	require.ErrorIs(t, NewProcessor(reader, handler, quietLogger(t)).Run(context.Background()), context.Canceled)

	require.Zero(t, handler.calls)
	require.Equal(t, []int64{1, 2, 3, 4, 5}, reader.committed)
}

func TestDecodeMessageReasons(t *testing.T) {
	cases := []struct {
		name   string
		record kafka.Message
		reason string
	}{
		{"short", kafka.Message{Value: []byte{0}}, "short_frame"},
		{"magic", kafka.Message{Value: []byte{9, 0, 0, 0, 1}}, "magic_byte"},
		{"no event type", kafka.Message{Value: framed(1, "{}")}, "missing_event_type"},
		{"unknown", kafka.Message{Value: framed(1, "{}"), Headers: headers("streak.lost", "", "")}, "unknown_event_type"},
		{"topic", kafka.Message{Topic: "engagement.popups", Value: framed(1, "{}"), Headers: headers("workout.completed", "", "")}, "wrong_topic"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeMessage(tc.record)
			var frameErr *frameError
			require.ErrorAs(t, err, &frameErr)
			require.Equal(t, tc.reason, frameErr.reason)
		})
	}
}

func TestSummarizeExtractsAuditColumns(t *testing.T) {
	s, err := summarize(Message{
		EventType: "popup.completed",
		Payload:   []byte(`{"popup_id":"p-9","user_id":"user-9","kind":"trivia","correct":true,"time_to_complete":4,"gems_earned":15,"speed_bonus":7,"completed_at":"2025-03-10T12:00:04Z"}`),
	})
	require.NoError(t, err)
	require.Equal(t, "user-9", s.userID)
	require.Equal(t, 22, s.gems)

	s, err = summarize(Message{
		EventType: "workout.completed",
		UserID:    "header-user",
		Payload:   []byte(`{"user_id":"body-user","tier":"beginner","exercises":4,"current_streak":2,"longest_streak":2,"completed_at":"2025-03-10T18:00:00Z"}`),
	})
	require.NoError(t, err)
	require.Equal(t, "header-user", s.userID)

	_, err = summarize(Message{EventType: "popup.unknown", Payload: []byte(`{}`)})
	require.Error(t, err)

	_, err = summarize(Message{EventType: "trivia.answered", Payload: []byte(`{"question_id":"tq-1"}`)})
	require.Error(t, err)
}

type stubReader struct {
	messages  []kafka.Message
	index     int
	committed []int64
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *stubReader) Close() error { return nil }

// stubHandler fails the first `failures` calls with err.
type stubHandler struct {
	calls    int
	failures int
	err      error
	last     Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	if h.calls <= h.failures {
		return h.err
	}
	return nil
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
