// Package events defines payloads shared by the push channels and the Kafka outbox.
package events

import "time"

// Push protocol message types.
const (
	TypeStatus = "timesheet:status"
	TypeSync   = "timesheet:sync"
)

// Reason says why a status message was pushed.
type Reason string

const (
	ReasonConnect Reason = "connect"
	ReasonStarted Reason = "started"
	ReasonStopped Reason = "stopped"
	ReasonDeleted Reason = "deleted"
	ReasonSync    Reason = "sync"
	ReasonResync  Reason = "resync"
)

// Activity is the catalog entry embedded in timesheet views.
type Activity struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

// Timesheet is the wire view of an interval with its read-time duration.
type Timesheet struct {
	ID              string     `json:"id"`
	UserID          int64      `json:"user_id"`
	ActivityID      int64      `json:"activity_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	Running         bool       `json:"running"`
	DurationMinutes int        `json:"duration_minutes"`
	Activity        *Activity  `json:"activity,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Status is pushed to every channel of a user. Timesheet is null when nothing is running.
type Status struct {
	Type      string     `json:"type"`
	Reason    Reason     `json:"reason"`
	Timesheet *Timesheet `json:"timesheet"`
	DeletedID string     `json:"deleted_id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ClientMessage is sent by devices over full-duplex channels.
type ClientMessage struct {
	Type string `json:"type"`
}

// TimesheetStarted is emitted when a running interval is accepted.
type TimesheetStarted struct {
	TimesheetID string    `json:"timesheet_id"`
	UserID      int64     `json:"user_id"`
	ActivityID  int64     `json:"activity_id"`
	StartTime   time.Time `json:"start_time"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// TimesheetStopped is emitted when a running interval is closed.
type TimesheetStopped struct {
	TimesheetID     string    `json:"timesheet_id"`
	UserID          int64     `json:"user_id"`
	ActivityID      int64     `json:"activity_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// TimesheetDeleted is emitted when a stopped interval is removed.
type TimesheetDeleted struct {
	TimesheetID string    `json:"timesheet_id"`
	UserID      int64     `json:"user_id"`
	ActivityID  int64     `json:"activity_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}
