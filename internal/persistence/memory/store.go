// Package memory is an in-process interval store for tests and single-node
// development. It enforces the same uniqueness rules as the SQL stores.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/timesheet/internal/domain"
)

// Store keeps intervals and activities in maps guarded by one mutex.
type Store struct {
	mu         sync.RWMutex
	intervals  map[string]domain.Interval
	activities map[int64]domain.Activity
}

// NewStore seeds the catalog with activities, or domain.DefaultActivities
// when none are passed.
func NewStore(activities ...domain.Activity) *Store {
	if len(activities) == 0 {
		activities = domain.DefaultActivities()
	}
	s := &Store{
		intervals:  make(map[string]domain.Interval),
		activities: make(map[int64]domain.Activity, len(activities)),
	}
	for _, a := range activities {
		s.activities[a.ID] = a
	}
	return s
}

// PutActivity adds or replaces a catalog entry.
func (s *Store) PutActivity(activity domain.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities[activity.ID] = activity
}

func (s *Store) FindActivity(ctx context.Context, activityID, userID int64) (*domain.Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.activities[activityID]
	if !ok || !a.VisibleTo(userID) {
		return nil, nil
	}
	return &a, nil
}

func (s *Store) CreateInterval(ctx context.Context, interval domain.Interval) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.activities[interval.ActivityID]; !ok {
		return domain.ErrActivityNotFound
	}
	if interval.Running() {
		for _, existing := range s.intervals {
			if existing.UserID == interval.UserID && existing.Running() {
				return domain.ErrRunningTimesheetExists
			}
		}
	}
	interval.Activity = nil
	s.intervals[interval.ID] = interval
	return nil
}

func (s *Store) FindRunning(ctx context.Context, userID int64) (*domain.Interval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, interval := range s.intervals {
		if interval.UserID == userID && interval.Running() {
			return s.withActivity(interval), nil
		}
	}
	return nil, nil
}

func (s *Store) FindInterval(ctx context.Context, userID int64, intervalID string) (*domain.Interval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	interval, ok := s.intervals[intervalID]
	if !ok || interval.UserID != userID {
		return nil, nil
	}
	return s.withActivity(interval), nil
}

func (s *Store) StopInterval(ctx context.Context, interval domain.Interval) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if interval.EndTime == nil {
		return domain.InvalidArgument("End time is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.intervals[interval.ID]
	if !ok || stored.UserID != interval.UserID || !stored.Running() {
		return domain.ErrNoRunningTimesheet
	}
	end := *interval.EndTime
	stored.EndTime = &end
	stored.UpdatedAt = interval.UpdatedAt
	s.intervals[stored.ID] = stored
	return nil
}

func (s *Store) DeleteInterval(ctx context.Context, interval domain.Interval, _ time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.intervals[interval.ID]
	if !ok || stored.UserID != interval.UserID {
		return domain.ErrTimesheetNotFound
	}
	if stored.Running() {
		return domain.ErrDeleteRunning
	}
	delete(s.intervals, interval.ID)
	return nil
}

func (s *Store) ListIntervals(ctx context.Context, userID int64, filter domain.ListFilter, page domain.Page) ([]domain.Interval, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Interval
	for _, interval := range s.intervals {
		if interval.UserID == userID && filter.Matches(interval) {
			matched = append(matched, interval)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].StartTime.Equal(matched[j].StartTime) {
			return matched[i].StartTime.After(matched[j].StartTime)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	page = page.Normalize()
	offset := page.Offset()
	if offset >= total {
		return []domain.Interval{}, total, nil
	}
	end := min(offset+page.Limit, total)

	out := make([]domain.Interval, 0, end-offset)
	for _, interval := range matched[offset:end] {
		out = append(out, *s.withActivity(interval))
	}
	return out, total, nil
}

// withActivity copies interval and attaches its catalog entry. Callers hold mu.
func (s *Store) withActivity(interval domain.Interval) *domain.Interval {
	if a, ok := s.activities[interval.ActivityID]; ok {
		interval.Activity = &a
	}
	if interval.EndTime != nil {
		end := *interval.EndTime
		interval.EndTime = &end
	}
	return &interval
}
