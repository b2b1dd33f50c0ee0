// Package domain defines timing intervals and the rules governing their lifecycle.
package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// IntervalState is the lifecycle position of an interval. Deleted intervals are
// represented by absence.
type IntervalState string

const (
	IntervalRunning IntervalState = "running"
	IntervalStopped IntervalState = "stopped"
)

// Interval is one timed period a user tracked against an activity.
type Interval struct {
	ID         string
	UserID     int64
	ActivityID int64
	StartTime  time.Time
	EndTime    *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Activity is populated on reads when the store can join the catalog entry.
	Activity *Activity
}

// TimedInterval pairs an interval with its duration as computed at read time.
type TimedInterval struct {
	Interval
	DurationMinutes int
}

// StartInterval builds a new running interval. Activity visibility is the
// caller's responsibility.
func StartInterval(userID, activityID int64, startTime, now time.Time) (Interval, error) {
	if userID <= 0 {
		return Interval{}, InvalidArgument("user id must be positive")
	}
	if activityID <= 0 {
		return Interval{}, InvalidArgument("Activity ID must be positive")
	}
	if startTime.IsZero() {
		return Interval{}, InvalidArgument("Start time is required")
	}
	now = now.UTC()
	return Interval{
		ID:         uuid.NewString(),
		UserID:     userID,
		ActivityID: activityID,
		StartTime:  startTime.UTC(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// State reports whether the interval is running or stopped.
func (i Interval) State() IntervalState {
	if i.EndTime == nil {
		return IntervalRunning
	}
	return IntervalStopped
}

// Running reports whether the interval has no end time yet.
func (i Interval) Running() bool { return i.EndTime == nil }

// Stop closes a running interval. Stopped intervals are never reopened or
// re-stopped.
func (i *Interval) Stop(endTime, now time.Time) error {
	if !i.Running() {
		return ErrNoRunningTimesheet
	}
	if endTime.IsZero() {
		return InvalidArgument("End time is required")
	}
	if !endTime.After(i.StartTime) {
		return ErrEndBeforeStart
	}
	end := endTime.UTC()
	i.EndTime = &end
	i.UpdatedAt = now.UTC()
	return nil
}

// CheckDeletable enforces that only stopped intervals are removed.
func (i Interval) CheckDeletable() error {
	if i.Running() {
		return ErrDeleteRunning
	}
	return nil
}

// DurationMinutes is the elapsed time rounded to whole minutes, measured up to
// now while the interval is running.
func (i Interval) DurationMinutes(now time.Time) int {
	end := now
	if i.EndTime != nil {
		end = *i.EndTime
	}
	return int(math.Round(end.Sub(i.StartTime).Minutes()))
}

// Timed attaches the duration computed at now.
func (i Interval) Timed(now time.Time) TimedInterval {
	return TimedInterval{Interval: i, DurationMinutes: i.DurationMinutes(now)}
}
