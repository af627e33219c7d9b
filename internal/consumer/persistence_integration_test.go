//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestPersistenceHandlerLogsEveryEventType(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	handler := NewPersistenceHandler(pool)

	received := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		msg  Message
		gems int
	}{
		{Message{EventType: "workout.completed", Topic: "engagement.workouts", Offset: 1,
			Payload: json.RawMessage(`{"user_id":"user-1","tier":"beginner","exercises":4,"current_streak":1,"longest_streak":1,"bonus_gold":50,"bonus_xp":100,"completed_at":"2025-03-10T11:59:00Z"}`)}, 0},
		{Message{EventType: "popup.scheduled", Topic: "engagement.popups", Offset: 1,
			Payload: json.RawMessage(`{"popup_id":"p-1","user_id":"user-1","kind":"exercise","scheduled_at":"2025-03-10T13:10:00Z"}`)}, 0},
		{Message{EventType: "popup.completed", Topic: "engagement.popups", Offset: 2,
			Payload: json.RawMessage(`{"popup_id":"p-1","user_id":"user-1","kind":"exercise","correct":true,"time_to_complete":30,"gems_earned":12,"speed_bonus":3,"completed_at":"2025-03-10T13:10:30Z"}`)}, 15},
		{Message{EventType: "trivia.answered", Topic: "engagement.trivia", Offset: 1,
			Payload: json.RawMessage(`{"user_id":"user-1","question_id":"tq-003","answer":2,"correct":true,"gems_earned":10,"answered_at":"2025-03-10T12:00:00Z"}`)}, 10},
	}

	for _, tc := range cases {
		tc.msg.SchemaID = 7
		tc.msg.Timestamp = received
		require.NoError(t, handler.Handle(ctx, tc.msg), tc.msg.EventType)
		require.NoError(t, handler.Handle(ctx, tc.msg), "redelivered %s is ignored", tc.msg.EventType)

		var (
			userID  string
			gems    int
			payload []byte
		)
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT user_id, gems, payload FROM engagement_event_log WHERE topic = $1 AND record_offset = $2`,
			tc.msg.Topic, tc.msg.Offset).Scan(&userID, &gems, &payload))
		require.Equal(t, "user-1", userID)
		require.Equal(t, tc.gems, gems, tc.msg.EventType)
		require.JSONEq(t, string(tc.msg.Payload), string(payload))
	}

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM engagement_event_log`).Scan(&count))
	require.Equal(t, len(cases), count)
}

func TestPersistenceHandlerRejectsPayloadWithoutUser(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	err := NewPersistenceHandler(pool).Handle(ctx, Message{
		EventType: "trivia.answered",
		Topic:     "engagement.trivia",
		Payload:   json.RawMessage(`{"question_id":"tq-001"}`),
	})
	require.ErrorIs(t, err, ErrUnprocessable)
}

func TestProcessorPersistsThroughHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := setupPostgres(t, ctx)

	reader := &stubReader{messages: []kafka.Message{
		{
			Topic:   "engagement.popups",
			Offset:  11,
			Time:    time.Now().UTC(),
			Value:   framed(5, `{"popup_id":"p-2","user_id":"user-2","kind":"trivia","correct":false,"time_to_complete":4,"gems_earned":0,"speed_bonus":0,"completed_at":"2025-03-10T20:00:04Z"}`),
			Headers: headers("popup.completed", "user-2", "engagement.popups-completed-value"),
		},
		{
			Topic:   "engagement.popups",
			Offset:  12,
			Value:   framed(5, `{"popup_id":"p-3"}`),
			Headers: headers("popup.scheduled", "", "engagement.popups-scheduled-value"),
		},
	}}

	err := NewProcessor(reader, NewPersistenceHandler(pool), quietLogger(t), WithRetry(1, 0)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []int64{11, 12}, reader.committed)

	var subject string
	var schemaID int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT schema_subject, schema_id FROM engagement_event_log WHERE user_id = 'user-2'`).Scan(&subject, &schemaID))
	require.Equal(t, "engagement.popups-completed-value", subject)
	require.Equal(t, 5, schemaID)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM engagement_event_log`).Scan(&count))
	require.Equal(t, 1, count, "the scheduled event without a user is dropped")
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("engagement"),
		postgrescontainer.WithUsername("engagement"),
		postgrescontainer.WithPassword("engagement"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, pingUntilReady(ctx, connStr, 30*time.Second))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	files, err := filepath.Glob(filepath.Join(filepath.Dir(file), "../../db/postgres/migrations", "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	sort.Strings(files)
	for _, f := range files {
		sql, readErr := os.ReadFile(f)
		require.NoErrorf(t, readErr, "read migration %s", f)
		_, execErr := pool.Exec(ctx, string(sql))
		require.NoErrorf(t, execErr, "execute migration %s", f)
	}
	return pool
}

func pingUntilReady(ctx context.Context, connStr string, within time.Duration) error {
	deadline := time.Now().Add(within)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
		}
		if err == nil || time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
