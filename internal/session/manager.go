// Package session owns the timer lifecycle: it serializes each user's
// transitions, persists them and fans the resulting status out to every
// device the user has connected.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"example.com/timesheet/internal/clock"
	"example.com/timesheet/internal/domain"
	"example.com/timesheet/internal/events"
	"example.com/timesheet/internal/observability"
	"example.com/timesheet/internal/realtime"
)

const (
	transitionStart  = "start"
	transitionStop   = "stop"
	transitionDelete = "delete"
)

// Notifier pushes a user's status after a transition. The manager calls it
// while holding the user's region.
type Notifier interface {
	Broadcast(ctx context.Context, userID int64, change realtime.Change)
}

// Config tunes the Manager; zero values take defaults.
type Config struct {
	StoreTimeout time.Duration
	Clock        clock.Clock
	Logger       *slog.Logger
}

// Manager is the entry point for every timer operation.
type Manager struct {
	store        domain.IntervalStore
	activities   domain.ActivityFinder
	locker       realtime.Locker
	notifier     Notifier
	storeTimeout time.Duration
	clock        clock.Clock
	logger       *slog.Logger
}

// NewManager wires a Manager. locker must be the same instance the
// broadcaster uses so pushes stay ordered with transitions.
func NewManager(store domain.IntervalStore, activities domain.ActivityFinder, locker realtime.Locker, notifier Notifier, cfg Config) *Manager {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = realtime.DefaultStoreTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		store:        store,
		activities:   activities,
		locker:       locker,
		notifier:     notifier,
		storeTimeout: cfg.StoreTimeout,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
}

// ListResult is one page of stopped intervals.
type ListResult struct {
	Items []domain.TimedInterval
	Page  domain.PageInfo
}

// StartTimesheet opens a running interval for userID.
func (m *Manager) StartTimesheet(ctx context.Context, userID, activityID int64, startTime time.Time) (result domain.TimedInterval, err error) {
	defer func() { m.record(transitionStart, err) }()

	interval, err := domain.StartInterval(userID, activityID, startTime, m.clock.Now())
	if err != nil {
		return domain.TimedInterval{}, err
	}

	activity, err := m.findActivity(ctx, activityID, userID)
	if err != nil {
		return domain.TimedInterval{}, err
	}

	unlock, err := m.lock(ctx, userID)
	if err != nil {
		return domain.TimedInterval{}, err
	}
	defer unlock()

	running, err := m.findRunning(ctx, userID)
	if err != nil {
		return domain.TimedInterval{}, err
	}
	if running != nil {
		return domain.TimedInterval{}, domain.ErrRunningTimesheetExists
	}

	if err := m.call(ctx, func(ctx context.Context) error { return m.store.CreateInterval(ctx, interval) }); err != nil {
		return domain.TimedInterval{}, err
	}
	interval.Activity = activity

	m.logger.Info("timesheet started", "user_id", userID, "timesheet_id", interval.ID, "activity_id", activityID)
	m.notifier.Broadcast(context.WithoutCancel(ctx), userID, realtime.Change{Reason: events.ReasonStarted, TimesheetID: interval.ID})
	return interval.Timed(m.clock.Now()), nil
}

// StopTimesheet closes userID's running interval at endTime.
func (m *Manager) StopTimesheet(ctx context.Context, userID int64, endTime time.Time) (result domain.TimedInterval, err error) {
	defer func() { m.record(transitionStop, err) }()

	unlock, err := m.lock(ctx, userID)
	if err != nil {
		return domain.TimedInterval{}, err
	}
	defer unlock()

	running, err := m.findRunning(ctx, userID)
	if err != nil {
		return domain.TimedInterval{}, err
	}
	if running == nil {
		return domain.TimedInterval{}, domain.ErrNoRunningTimesheet
	}
	if err := running.Stop(endTime, m.clock.Now()); err != nil {
		return domain.TimedInterval{}, err
	}

	if err := m.call(ctx, func(ctx context.Context) error { return m.store.StopInterval(ctx, *running) }); err != nil {
		return domain.TimedInterval{}, err
	}

	timed := running.Timed(m.clock.Now())
	m.logger.Info("timesheet stopped", "user_id", userID, "timesheet_id", running.ID, "duration_minutes", timed.DurationMinutes)
	m.notifier.Broadcast(context.WithoutCancel(ctx), userID, realtime.Change{Reason: events.ReasonStopped, TimesheetID: running.ID})
	return timed, nil
}

// GetCurrentTimesheet returns userID's running interval, or nil when nothing
// is running. It never takes the user's region.
func (m *Manager) GetCurrentTimesheet(ctx context.Context, userID int64) (*domain.TimedInterval, error) {
	running, err := m.findRunning(ctx, userID)
	if err != nil || running == nil {
		return nil, err
	}
	timed := running.Timed(m.clock.Now())
	return &timed, nil
}

// GetTimesheet returns one of userID's intervals, running or stopped.
func (m *Manager) GetTimesheet(ctx context.Context, userID int64, intervalID string) (domain.TimedInterval, error) {
	interval, err := m.findInterval(ctx, userID, intervalID)
	if err != nil {
		return domain.TimedInterval{}, err
	}
	return interval.Timed(m.clock.Now()), nil
}

// DeleteTimesheet removes a stopped interval owned by userID.
func (m *Manager) DeleteTimesheet(ctx context.Context, userID int64, intervalID string) (err error) {
	defer func() { m.record(transitionDelete, err) }()

	unlock, err := m.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	interval, err := m.findInterval(ctx, userID, intervalID)
	if err != nil {
		return err
	}
	if err := interval.CheckDeletable(); err != nil {
		return err
	}

	if err := m.call(ctx, func(ctx context.Context) error { return m.store.DeleteInterval(ctx, *interval, m.clock.Now()) }); err != nil {
		return err
	}

	m.logger.Info("timesheet deleted", "user_id", userID, "timesheet_id", interval.ID)
	m.notifier.Broadcast(context.WithoutCancel(ctx), userID, realtime.Change{Reason: events.ReasonDeleted, TimesheetID: interval.ID})
	return nil
}

// ListTimesheets pages through userID's stopped intervals, newest first.
func (m *Manager) ListTimesheets(ctx context.Context, userID int64, filter domain.ListFilter, page domain.Page) (ListResult, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return ListResult{}, domain.InvalidArgument("Start date must not be after end date")
	}
	if err := page.Validate(); err != nil {
		return ListResult{}, err
	}
	page = page.Normalize()

	var (
		intervals []domain.Interval
		total     int
	)
	err := m.call(ctx, func(ctx context.Context) error {
		var err error
		intervals, total, err = m.store.ListIntervals(ctx, userID, filter, page)
		return err
	})
	if err != nil {
		return ListResult{}, err
	}

	now := m.clock.Now()
	items := make([]domain.TimedInterval, 0, len(intervals))
	for _, interval := range intervals {
		items = append(items, interval.Timed(now))
	}
	return ListResult{Items: items, Page: page.Describe(total)}, nil
}

func (m *Manager) lock(ctx context.Context, userID int64) (func(), error) {
	start := time.Now()
	unlock, err := m.locker.Lock(ctx, userID)
	observability.ObserveGuardWait(time.Since(start))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.Unavailable("timed out waiting for a concurrent request", err)
		}
		return nil, err
	}
	return unlock, nil
}

// call bounds a store operation by the store timeout and classifies failures.
func (m *Manager) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	err := fn(ctx)
	switch {
	case err == nil:
		return nil
	case domain.KindOf(err) != "":
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return domain.Unavailable("store timed out", err)
	default:
		return fmt.Errorf("store: %w", err)
	}
}

func (m *Manager) findRunning(ctx context.Context, userID int64) (*domain.Interval, error) {
	var running *domain.Interval
	err := m.call(ctx, func(ctx context.Context) error {
		var err error
		running, err = m.store.FindRunning(ctx, userID)
		return err
	})
	return running, err
}

func (m *Manager) findInterval(ctx context.Context, userID int64, intervalID string) (*domain.Interval, error) {
	if _, err := uuid.Parse(intervalID); err != nil {
		return nil, domain.ErrTimesheetNotFound
	}
	var interval *domain.Interval
	err := m.call(ctx, func(ctx context.Context) error {
		var err error
		interval, err = m.store.FindInterval(ctx, userID, intervalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if interval == nil {
		return nil, domain.ErrTimesheetNotFound
	}
	return interval, nil
}

func (m *Manager) findActivity(ctx context.Context, activityID, userID int64) (*domain.Activity, error) {
	var activity *domain.Activity
	err := m.call(ctx, func(ctx context.Context) error {
		var err error
		activity, err = m.activities.FindActivity(ctx, activityID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if activity == nil || !activity.VisibleTo(userID) {
		return nil, domain.ErrActivityNotFound
	}
	return activity, nil
}

func (m *Manager) record(transition string, err error) {
	if err == nil {
		observability.RecordTransition(transition, "ok")
		observability.RecordTransitionAccepted(m.clock.Now())
		return
	}
	outcome := string(domain.KindOf(err))
	if outcome == "" {
		outcome = "error"
		m.logger.Error("timesheet transition failed", "transition", transition, "error", err)
	}
	observability.RecordTransition(transition, outcome)
}
