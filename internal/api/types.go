package api

import (
	"time"

	"example.com/timesheet/internal/domain"
	"example.com/timesheet/internal/events"
)

// StartTimesheetRequest is the body of POST /v1/timesheets/start.
type StartTimesheetRequest struct {
	ActivityID int64     `json:"activity_id"`
	StartTime  time.Time `json:"start_time"`
}

// StopTimesheetRequest is the body of POST /v1/timesheets/stop.
type StopTimesheetRequest struct {
	EndTime time.Time `json:"end_time"`
}

// TimesheetResponse wraps a single interval. Timesheet is null when the
// caller has nothing running.
type TimesheetResponse struct {
	Timesheet *events.Timesheet `json:"timesheet"`
	Message   string            `json:"message,omitempty"`
}

// DeleteTimesheetResponse confirms a deletion.
type DeleteTimesheetResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Pagination describes where a page sits in the full history.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// ListTimesheetsResponse is one page of stopped intervals.
type ListTimesheetsResponse struct {
	Items      []events.Timesheet `json:"items"`
	Pagination Pagination         `json:"pagination"`
}

func toTimesheetResponse(interval *domain.TimedInterval, message string) TimesheetResponse {
	resp := TimesheetResponse{Message: message}
	if interval != nil {
		view := interval.View()
		resp.Timesheet = &view
	}
	return resp
}

func toPagination(info domain.PageInfo) Pagination {
	return Pagination{
		Page:       info.Page,
		Limit:      info.Limit,
		Total:      info.Total,
		TotalPages: info.TotalPages,
		HasNext:    info.HasNext,
		HasPrev:    info.HasPrev,
	}
}
