//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/timesheet/internal/testsupport/pgtest"
)

func TestPersistenceHandlerStoresEventOnce(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Start(t, ctx)

	handler := NewPersistenceHandler(pool)

	payload := json.RawMessage(`{"timesheet_id":"abc","user_id":12}`)
	msg := Message{
		EventType:     "timesheet.started",
		UserID:        12,
		SchemaID:      42,
		SchemaSubject: "timesheet_started-value",
		Topic:         "timesheet_events",
		Partition:     0,
		Offset:        5,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}

	require.NoError(t, handler.Handle(ctx, msg))
	require.NoError(t, handler.Handle(ctx, msg))

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM timesheet_event_log`).Scan(&count))
	require.Equal(t, 1, count)

	var (
		storedPayload []byte
		userID        *int64
	)
	err := pool.QueryRow(ctx, `SELECT payload, user_id FROM timesheet_event_log LIMIT 1`).Scan(&storedPayload, &userID)
	require.NoError(t, err)
	require.JSONEq(t, string(payload), string(storedPayload))
	require.NotNil(t, userID)
	require.Equal(t, int64(12), *userID)
}
