package realtime

import (
	"context"
	"log/slog"
	"time"

	"example.com/timesheet/internal/clock"
	"example.com/timesheet/internal/domain"
	"example.com/timesheet/internal/events"
	"example.com/timesheet/internal/observability"
)

const (
	DefaultResyncInterval = 30 * time.Second
	DefaultStoreTimeout   = 5 * time.Second
)

// StatusSource reads a user's running interval straight from the store.
type StatusSource interface {
	FindRunning(ctx context.Context, userID int64) (*domain.Interval, error)
}

// Locker grants the per-user exclusive region that orders pushes relative to
// transitions.
type Locker interface {
	Lock(ctx context.Context, userID int64) (func(), error)
}

// Change describes the transition that triggered a broadcast.
type Change struct {
	Reason      events.Reason
	TimesheetID string
}

// BroadcasterConfig holds tunables; zero values take defaults.
type BroadcasterConfig struct {
	ResyncInterval time.Duration
	StoreTimeout   time.Duration
	Clock          clock.Clock
	Logger         *slog.Logger
}

// Broadcaster pushes the current timer status to a user's channels after
// transitions, on connect, on request and on a periodic resync tick.
// Delivery is best-effort and at most once per channel per event.
type Broadcaster struct {
	registry       *Registry
	source         StatusSource
	locker         Locker
	resyncInterval time.Duration
	storeTimeout   time.Duration
	clock          clock.Clock
	logger         *slog.Logger
}

// NewBroadcaster wires a Broadcaster to its registry, status source and locker.
func NewBroadcaster(registry *Registry, source StatusSource, locker Locker, cfg BroadcasterConfig) *Broadcaster {
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = DefaultResyncInterval
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Broadcaster{
		registry:       registry,
		source:         source,
		locker:         locker,
		resyncInterval: cfg.ResyncInterval,
		storeTimeout:   cfg.StoreTimeout,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
	}
}

// Status computes userID's current status message.
func (b *Broadcaster) Status(ctx context.Context, userID int64, change Change) (events.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, b.storeTimeout)
	defer cancel()

	running, err := b.source.FindRunning(ctx, userID)
	if err != nil {
		return events.Status{}, err
	}

	now := b.clock.Now()
	status := events.Status{
		Type:      events.TypeStatus,
		Reason:    change.Reason,
		Timestamp: now.UTC(),
	}
	if running != nil {
		view := running.Timed(now).View()
		status.Timesheet = &view
	}
	if change.Reason == events.ReasonDeleted {
		status.DeletedID = change.TimesheetID
	}
	return status, nil
}

// Broadcast pushes the current status to every channel of userID. The caller
// must hold userID's region so messages leave in acceptance order. Failures
// are logged and never returned: a transition that was accepted stays accepted.
func (b *Broadcaster) Broadcast(ctx context.Context, userID int64, change Change) {
	channels := b.registry.ChannelsFor(userID)
	if len(channels) == 0 {
		return
	}
	status, err := b.Status(ctx, userID, change)
	if err != nil {
		b.logger.Warn("computing status for broadcast failed", "user_id", userID, "reason", change.Reason, "error", err)
		return
	}
	b.deliver(userID, channels, status)
}

func (b *Broadcaster) deliver(userID int64, channels []Channel, status events.Status) int {
	delivered := 0
	for _, ch := range channels {
		ok := ch.Send(status)
		observability.RecordDelivery(string(status.Reason), ok)
		if !ok {
			b.logger.Warn("status dropped for slow or closed channel", "user_id", userID, "channel_id", ch.ID(), "reason", status.Reason)
			continue
		}
		delivered++
	}
	return delivered
}

// Attach registers ch and queues the current status on it before any later
// broadcast can reach it.
func (b *Broadcaster) Attach(ctx context.Context, userID int64, ch Channel) error {
	unlock, err := b.locker.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	b.registry.Register(userID, ch)

	status, err := b.Status(ctx, userID, Change{Reason: events.ReasonConnect})
	if err != nil {
		// The channel stays registered; the next resync tick catches it up.
		b.logger.Warn("initial status pull failed", "user_id", userID, "channel_id", ch.ID(), "error", err)
		return nil
	}
	b.deliver(userID, []Channel{ch}, status)
	return nil
}

// Detach unregisters and closes ch.
func (b *Broadcaster) Detach(userID int64, ch Channel) {
	b.registry.Unregister(userID, ch)
	if err := ch.Close(); err != nil {
		b.logger.Debug("closing detached channel", "user_id", userID, "channel_id", ch.ID(), "error", err)
	}
}

// SyncChannel answers a device's explicit sync request on that channel only.
func (b *Broadcaster) SyncChannel(ctx context.Context, userID int64, ch Channel) error {
	unlock, err := b.locker.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	status, err := b.Status(ctx, userID, Change{Reason: events.ReasonSync})
	if err != nil {
		return err
	}
	b.deliver(userID, []Channel{ch}, status)
	return nil
}

// SyncUser pushes the current status to all of userID's channels.
func (b *Broadcaster) SyncUser(ctx context.Context, userID int64, reason events.Reason) error {
	unlock, err := b.locker.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	channels := b.registry.ChannelsFor(userID)
	if len(channels) == 0 {
		return nil
	}
	status, err := b.Status(ctx, userID, Change{Reason: reason})
	if err != nil {
		return err
	}
	b.deliver(userID, channels, status)
	return nil
}

// Resync pushes the current status to every registered user.
func (b *Broadcaster) Resync(ctx context.Context) {
	start := time.Now()
	defer func() { observability.ObserveResync(time.Since(start)) }()

	for _, userID := range b.registry.Users() {
		if ctx.Err() != nil {
			return
		}
		userCtx, cancel := context.WithTimeout(ctx, b.storeTimeout)
		err := b.SyncUser(userCtx, userID, events.ReasonResync)
		cancel()
		if err != nil {
			b.logger.Warn("resync failed", "user_id", userID, "error", err)
		}
	}
}

// Run drives the periodic resync until ctx is cancelled. It should be called
// in a goroutine.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := b.clock.NewTicker(b.resyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Resync(ctx)
		}
	}
}

// Close disconnects every channel.
func (b *Broadcaster) Close() {
	b.registry.CloseAll()
}
