package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/timesheet/internal/domain"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "timesheet.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustStart(t *testing.T, userID, activityID int64, start time.Time) domain.Interval {
	t.Helper()
	iv, err := domain.StartInterval(userID, activityID, start, start)
	require.NoError(t, err)
	return iv
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timesheet.db")
	ctx := context.Background()

	first, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, first.CreateInterval(ctx, mustStart(t, 1, 1, t0)))
	require.NoError(t, first.Close())

	second, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	defer second.Close()

	running, err := second.FindRunning(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, running)
	assert.Equal(t, t0, running.StartTime)
}

func TestUniqueIndexRejectsSecondRunningInterval(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateInterval(ctx, mustStart(t, 1, 1, t0)))
	err := s.CreateInterval(ctx, mustStart(t, 1, 2, t0.Add(time.Minute)))
	require.ErrorIs(t, err, domain.ErrRunningTimesheetExists)

	require.NoError(t, s.CreateInterval(ctx, mustStart(t, 2, 1, t0)))
}

func TestConcurrentCreatesLeaveOneRunning(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			iv, err := domain.StartInterval(7, 1, t0.Add(time.Duration(i)*time.Second), t0)
			if err != nil {
				return
			}
			err = s.CreateInterval(ctx, iv)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrConflict)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	running, err := s.FindRunning(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, running)
}

func TestCheckAndForeignKeyConstraints(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	err := s.CreateInterval(ctx, mustStart(t, 1, 999, t0))
	require.ErrorIs(t, err, domain.ErrActivityNotFound)

	iv := mustStart(t, 1, 1, t0)
	require.NoError(t, s.CreateInterval(ctx, iv))
	backwards := t0.Add(-time.Minute)
	iv.EndTime = &backwards
	require.ErrorIs(t, s.StopInterval(ctx, iv), domain.ErrEndBeforeStart)
}

func TestFindActivityVisibility(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutActivity(ctx, domain.Activity{ID: 50, OwnerID: 9, Name: "Private", CreatedAt: t0, UpdatedAt: t0}))

	a, err := s.FindActivity(ctx, 1, 9)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "Work", a.Name)

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
	s := openStore(t)
	ctx := context.Background()
	iv := mustStart(t, 1, 3, t0)
	require.NoError(t, s.CreateInterval(ctx, iv))

	require.ErrorIs(t, s.DeleteInterval(ctx, iv, t0.Add(2*time.Hour)), domain.ErrNotFound)

	running, err := s.FindRunning(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, running)
	require.NotNil(t, running.Activity)
	assert.Equal(t, "Exercise", running.Activity.Name)
	assert.Nil(t, running.EndTime)

	require.NoError(t, running.Stop(t0.Add(time.Hour), t0.Add(time.Hour)))
	require.NoError(t, s.StopInterval(ctx, *running))
	require.ErrorIs(t, s.StopInterval(ctx, *running), domain.ErrNoRunningTimesheet)

	running, err = s.FindRunning(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, running)

	got, err := s.FindInterval(ctx, 1, iv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.EndTime)
	assert.Equal(t, t0.Add(time.Hour), *got.EndTime)

	other, err := s.FindInterval(ctx, 2, iv.ID)
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, s.DeleteInterval(ctx, *got, t0.Add(2*time.Hour)))
	require.ErrorIs(t, s.DeleteInterval(ctx, *got, t0.Add(2*time.Hour)), domain.ErrTimesheetNotFound)
}

func TestListIntervalsOrdersAndPages(t *testing.T) {
	s := openStore(t)
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
	require.NotNil(t, items[0].Activity)

	items, _, err = s.ListIntervals(ctx, 1, domain.ListFilter{}, domain.Page{Number: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, t0, items[0].StartTime)

	_, total, err = s.ListIntervals(ctx, 1, domain.ListFilter{ActivityID: 2}, domain.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	from, to := t0.Add(time.Hour), t0.Add(3*time.Hour)
	_, total, err = s.ListIntervals(ctx, 1, domain.ListFilter{From: &from, To: &to}, domain.Page{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	items, total, err = s.ListIntervals(ctx, 1, domain.ListFilter{}, domain.Page{Number: 9, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, items)
}
