package domain

import "example.com/timesheet/internal/events"

// View renders the interval for HTTP responses and push messages.
func (t TimedInterval) View() events.Timesheet {
	view := events.Timesheet{
		ID:              t.ID,
		UserID:          t.UserID,
		ActivityID:      t.ActivityID,
		StartTime:       t.StartTime,
		EndTime:         t.EndTime,
		Running:         t.Running(),
		DurationMinutes: t.DurationMinutes,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	if t.Activity != nil {
		view.Activity = &events.Activity{
			ID:    t.Activity.ID,
			Name:  t.Activity.Name,
			Color: t.Activity.Color,
			Icon:  t.Activity.Icon,
		}
	}
	return view
}
