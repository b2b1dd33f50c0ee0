package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
)

const (
	EventTimesheetStarted = "timesheet.started"
	EventTimesheetStopped = "timesheet.stopped"
	EventTimesheetDeleted = "timesheet.deleted"

	// TopicTimesheetEvents carries every timesheet event keyed by user so a
	// user's events stay ordered within one partition.
	TopicTimesheetEvents = "timesheet_events"

	aggregateTimesheet = "timesheet"
)

// EventMetadata describes how to route and describe an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
	Schema        string
}

var eventCatalog = map[string]EventMetadata{
	EventTimesheetStarted: {
		Topic:         TopicTimesheetEvents,
		SchemaSubject: "timesheet_started-value",
		Schema:        timesheetStartedSchema,
	},
	EventTimesheetStopped: {
		Topic:         TopicTimesheetEvents,
		SchemaSubject: "timesheet_stopped-value",
		Schema:        timesheetStoppedSchema,
	},
	EventTimesheetDeleted: {
		Topic:         TopicTimesheetEvents,
		SchemaSubject: "timesheet_deleted-value",
		Schema:        timesheetDeletedSchema,
	},
}

// Lookup returns routing metadata for eventType.
func Lookup(eventType string) (EventMetadata, bool) {
	meta, ok := eventCatalog[eventType]
	return meta, ok
}

// Record is an event staged alongside the state change that produced it.
type Record struct {
	UserID      int64
	TimesheetID string
	EventType   string
	Payload     any
}

// Insert stages rec in the outbox table within tx so the event commits or
// rolls back with the interval it describes.
func Insert(ctx context.Context, tx pgx.Tx, rec Record) error {
	meta, ok := Lookup(rec.EventType)
	if !ok {
		return fmt.Errorf("unknown event type: %s", rec.EventType)
	}

	body, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		rec.UserID,
		aggregateTimesheet,
		rec.TimesheetID,
		rec.EventType,
		meta.Topic,
		meta.SchemaSubject,
		strconv.FormatInt(rec.UserID, 10),
		body,
		fmt.Sprintf("%s:%s", rec.TimesheetID, rec.EventType),
	)
	return err
}
