package realtime

import (
	"log/slog"
	"sort"
	"sync"

	"example.com/timesheet/internal/observability"
)

// Registry tracks the open channels of every connected user. Users with no
// channels are absent.
type Registry struct {
	mu       sync.RWMutex
	channels map[int64]map[string]Channel
	logger   *slog.Logger
}

// NewRegistry builds an empty Registry. A nil logger discards output.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		channels: make(map[int64]map[string]Channel),
		logger:   logger,
	}
}

// Register adds ch to userID's set.
func (r *Registry) Register(userID int64, ch Channel) {
	r.mu.Lock()
	set, ok := r.channels[userID]
	if !ok {
		set = make(map[string]Channel)
		r.channels[userID] = set
	}
	_, existed := set[ch.ID()]
	set[ch.ID()] = ch
	r.mu.Unlock()

	if !existed {
		observability.ChannelOpened()
		r.logger.Debug("channel registered", "user_id", userID, "channel_id", ch.ID())
	}
}

// Unregister removes ch and prunes the user once the last channel is gone.
// It reports whether ch was registered.
func (r *Registry) Unregister(userID int64, ch Channel) bool {
	r.mu.Lock()
	set, ok := r.channels[userID]
	if ok {
		_, ok = set[ch.ID()]
		delete(set, ch.ID())
		if len(set) == 0 {
			delete(r.channels, userID)
		}
	}
	r.mu.Unlock()

	if ok {
		observability.ChannelClosed()
		r.logger.Debug("channel unregistered", "user_id", userID, "channel_id", ch.ID())
	}
	return ok
}

// ChannelsFor returns a snapshot of userID's channels so delivery never holds
// the registry lock.
func (r *Registry) ChannelsFor(userID int64) []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.channels[userID]
	out := make([]Channel, 0, len(set))
	for _, ch := range set {
		out = append(out, ch)
	}
	return out
}

// Users lists users with at least one channel, in ascending order.
func (r *Registry) Users() []int64 {
	r.mu.RLock()
	out := make([]int64, 0, len(r.channels))
	for userID := range r.channels {
		out = append(out, userID)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len counts registered channels across all users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.channels {
		n += len(set)
	}
	return n
}

// CloseAll closes and forgets every channel. Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.channels
	r.channels = make(map[int64]map[string]Channel)
	r.mu.Unlock()

	for userID, set := range all {
		for _, ch := range set {
			if err := ch.Close(); err != nil {
				r.logger.Warn("closing channel failed", "user_id", userID, "channel_id", ch.ID(), "error", err)
			}
			observability.ChannelClosed()
		}
	}
}
