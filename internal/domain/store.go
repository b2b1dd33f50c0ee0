package domain

import (
	"context"
	"math"
	"time"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// IntervalStore is the durable record of intervals. Implementations must
// enforce running-uniqueness per user themselves and report a violation as
// ErrRunningTimesheetExists.
type IntervalStore interface {
	CreateInterval(ctx context.Context, interval Interval) error
	// FindRunning returns nil, nil when the user has no running interval.
	FindRunning(ctx context.Context, userID int64) (*Interval, error)
	// FindInterval returns nil, nil when the interval is missing or not owned by userID.
	FindInterval(ctx context.Context, userID int64, intervalID string) (*Interval, error)
	// StopInterval persists the end time of a still-running interval.
	StopInterval(ctx context.Context, interval Interval) error
	// DeleteInterval removes a stopped interval. deletedAt stamps any event
	// the store records for the removal.
	DeleteInterval(ctx context.Context, interval Interval, deletedAt time.Time) error
	ListIntervals(ctx context.Context, userID int64, filter ListFilter, page Page) ([]Interval, int, error)
}

// ActivityFinder resolves catalog entries visible to a user. It returns nil, nil
// when the activity does not exist or belongs to someone else.
type ActivityFinder interface {
	FindActivity(ctx context.Context, activityID, userID int64) (*Activity, error)
}

// ListFilter narrows history queries. Zero values mean "no constraint".
type ListFilter struct {
	ActivityID int64
	From       *time.Time
	To         *time.Time
}

// Matches applies the filter to a stopped interval.
func (f ListFilter) Matches(i Interval) bool {
	if i.Running() {
		return false
	}
	if f.ActivityID != 0 && i.ActivityID != f.ActivityID {
		return false
	}
	if f.From != nil && i.StartTime.Before(*f.From) {
		return false
	}
	if f.To != nil && i.StartTime.After(*f.To) {
		return false
	}
	return true
}

// Page selects a 1-based page of results.
type Page struct {
	Number int
	Limit  int
}

// Normalize applies defaults and caps the limit.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Validate rejects pages that cannot be served. Zero fields select the
// defaults applied by Normalize.
func (p Page) Validate() error {
	switch {
	case p.Number < 0:
		return InvalidArgument("Page must be at least 1")
	case p.Limit < 0:
		return InvalidArgument("Limit must be at least 1")
	case p.Limit > MaxPageLimit:
		return InvalidArgument("Limit cannot exceed 100")
	}
	n := p.Normalize()
	if n.Number-1 > math.MaxInt/n.Limit {
		return InvalidArgument("Page is out of range")
	}
	return nil
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Number - 1) * n.Limit
}

// PageInfo describes where a page sits within the full result set.
type PageInfo struct {
	Page       int
	Limit      int
	Total      int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

// Describe builds page metadata for total matching rows.
func (p Page) Describe(total int) PageInfo {
	n := p.Normalize()
	pages := (total + n.Limit - 1) / n.Limit
	return PageInfo{
		Page:       n.Number,
		Limit:      n.Limit,
		Total:      total,
		TotalPages: pages,
		HasNext:    n.Number < pages,
		HasPrev:    n.Number > 1,
	}
}
