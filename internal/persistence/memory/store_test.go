package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/timesheet/internal/domain"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func mustStart(t *testing.T, userID, activityID int64, start time.Time) domain.Interval {
	t.Helper()
	iv, err := domain.StartInterval(userID, activityID, start, start)
	require.NoError(t, err)
	return iv
}

func TestCreateRejectsSecondRunningInterval(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.CreateInterval(ctx, mustStart(t, 1, 1, t0)))
	err := s.CreateInterval(ctx, mustStart(t, 1, 2, t0.Add(time.Minute)))
	require.ErrorIs(t, err, domain.ErrConflict)

	// Another user is unaffected.
	require.NoError(t, s.CreateInterval(ctx, mustStart(t, 2, 1, t0)))
}

func TestFindActivityVisibility(t *testing.T) {
	s := NewStore()
	s.PutActivity(domain.Activity{ID: 50, OwnerID: 9, Name: "Private"})
	ctx := context.Background()

	a, err := s.FindActivity(ctx, 1, 9)
	require.NoError(t, err)
	require.NotNil(t, a)

	a, err = s.FindActivity(ctx, 50, 9)
	require.NoError(t, err)
	require.NotNil(t, a)

	a, err = s.FindActivity(ctx, 50, 10)
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = s.FindActivity(ctx, 999, 9)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestStopAndDeleteLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	iv := mustStart(t, 1, 1, t0)
	require.NoError(t, s.CreateInterval(ctx, iv))

	require.ErrorIs(t, s.DeleteInterval(ctx, iv, t0.Add(2*time.Hour)), domain.ErrInvalidState)

	running, err := s.FindRunning(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, running)
	require.NotNil(t, running.Activity)
	assert.Equal(t, "Work", running.Activity.Name)

	require.NoError(t, running.Stop(t0.Add(time.Hour), t0.Add(time.Hour)))
	require.NoError(t, s.StopInterval(ctx, *running))
	require.ErrorIs(t, s.StopInterval(ctx, *running), domain.ErrNotFound)

	running, err = s.FindRunning(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, running)

	got, err := s.FindInterval(ctx, 1, iv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, t0.Add(time.Hour), *got.EndTime)

	other, err := s.FindInterval(ctx, 2, iv.ID)
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, s.DeleteInterval(ctx, *got, t0.Add(2*time.Hour)))
	require.ErrorIs(t, s.DeleteInterval(ctx, *got, t0.Add(2*time.Hour)), domain.ErrNotFound)
}

func TestListIntervalsOrdersAndPages(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		start := t0.Add(time.Duration(i) * time.Hour)
		iv := mustStart(t, 1, int64(1+i%2), start)
		require.NoError(t, s.CreateInterval(ctx, iv))
		require.NoError(t, iv.Stop(start.Add(30*time.Minute), start))
		require.NoError(t, s.StopInterval(ctx, iv))
	}
	require.NoError(t, s.CreateInterval(ctx, mustStart(t, 1, 1, t0.Add(10*time.Hour))))

	items, total, err := s.ListIntervals(ctx, 1, domain.ListFilter{}, domain.Page{Number: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 2)
	assert.Equal(t, t0.Add(4*time.Hour), items[0].StartTime)
	assert.Equal(t, t0.Add(3*time.Hour), items[1].StartTime)

	items, _, err = s.ListIntervals(ctx, 1, domain.ListFilter{}, domain.Page{Number: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, t0, items[0].StartTime)

	items, total, err = s.ListIntervals(ctx, 1, domain.ListFilter{ActivityID: 2}, domain.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	from, to := t0.Add(time.Hour), t0.Add(3*time.Hour)
	_, total, err = s.ListIntervals(ctx, 1, domain.ListFilter{From: &from, To: &to}, domain.Page{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	items, total, err = s.ListIntervals(ctx, 1, domain.ListFilter{}, domain.Page{Number: 9, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, items)
}

func TestCancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.FindRunning(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
}
