// Package api exposes the timesheet HTTP surface and the device push channels.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"example.com/timesheet/internal/auth"
	"example.com/timesheet/internal/domain"
	"example.com/timesheet/internal/events"
	"example.com/timesheet/internal/realtime"
	"example.com/timesheet/internal/session"
)

const (
	defaultKeepAlive = 15 * time.Second
	dateLayout       = "2006-01-02"
)

// Config tunes the push channels; zero values take defaults.
type Config struct {
	ChannelBuffer int
	WriteTimeout  time.Duration
	KeepAlive     time.Duration
	// AllowedOrigin is checked on websocket upgrades. Empty or "*" accepts any origin.
	AllowedOrigin string
	Logger        *slog.Logger
}

// Handler coordinates HTTP requests with the session manager and the broadcaster.
type Handler struct {
	manager      *session.Manager
	broadcaster  *realtime.Broadcaster
	upgrader     websocket.Upgrader
	buffer       int
	writeTimeout time.Duration
	keepAlive    time.Duration
	logger       *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(manager *session.Manager, broadcaster *realtime.Broadcaster, cfg Config) *Handler {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	h := &Handler{
		manager:      manager,
		broadcaster:  broadcaster,
		buffer:       cfg.ChannelBuffer,
		writeTimeout: cfg.WriteTimeout,
		keepAlive:    cfg.KeepAlive,
		logger:       cfg.Logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigin),
	}
	return h
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", healthz)
	r.Route("/v1/timesheets", func(r chi.Router) {
		r.Post("/start", h.startTimesheet)
		r.Post("/stop", h.stopTimesheet)
		r.Get("/current", h.currentTimesheet)
		r.Post("/sync", h.syncTimesheet)
		r.Get("/ws", h.socket)
		r.Get("/events", h.stream)
		r.Get("/", h.listTimesheets)
		r.Get("/{id}", h.getTimesheet)
		r.Delete("/{id}", h.deleteTimesheet)
	})
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) startTimesheet(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req StartTimesheetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	started, err := h.manager.StartTimesheet(r.Context(), userID, req.ActivityID, req.StartTime)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTimesheetResponse(&started, "Timesheet started successfully"))
}

func (h *Handler) stopTimesheet(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req StopTimesheetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	stopped, err := h.manager.StopTimesheet(r.Context(), userID, req.EndTime)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimesheetResponse(&stopped, "Timesheet stopped successfully"))
}

func (h *Handler) currentTimesheet(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	current, err := h.manager.GetCurrentTimesheet(r.Context(), userID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	message := "No running timesheet"
	if current != nil {
		message = "Running timesheet retrieved"
	}
	writeJSON(w, http.StatusOK, toTimesheetResponse(current, message))
}

func (h *Handler) getTimesheet(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	interval, err := h.manager.GetTimesheet(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimesheetResponse(&interval, ""))
}

func (h *Handler) deleteTimesheet(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.manager.DeleteTimesheet(r.Context(), userID, id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteTimesheetResponse{ID: id, Message: "Timesheet deleted successfully"})
}

func (h *Handler) listTimesheets(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	var (
		filter domain.ListFilter
		page   domain.Page
		err    error
	)
	if page.Number, err = intParam(query.Get("page")); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "page must be a positive integer")
		return
	}
	if page.Limit, err = intParam(query.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
		return
	}
	if raw := query.Get("activity_id"); raw != "" {
		if filter.ActivityID, err = strconv.ParseInt(raw, 10, 64); err != nil || filter.ActivityID <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "activity_id must be a positive integer")
			return
		}
	}
	if filter.From, err = timeParam(query.Get("start_date"), false); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "start_date must be a date or RFC 3339 timestamp")
		return
	}
	if filter.To, err = timeParam(query.Get("end_date"), true); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "end_date must be a date or RFC 3339 timestamp")
		return
	}

	result, err := h.manager.ListTimesheets(r.Context(), userID, filter, page)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	items := make([]events.Timesheet, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, item.View())
	}
	writeJSON(w, http.StatusOK, ListTimesheetsResponse{Items: items, Pagination: toPagination(result.Page)})
}

// syncTimesheet is the request-sync path for devices on push-only channels.
func (h *Handler) syncTimesheet(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	if err := h.broadcaster.SyncUser(r.Context(), userID, events.ReasonSync); err != nil {
		writeDomainError(w, h.logger, unavailable(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return 0, false
	}
	return claims.UserID, true
}

// intParam parses an optional positive integer. An absent value is 0.
func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("%d is not positive", n)
	}
	return n, nil
}

// timeParam accepts an RFC 3339 timestamp or a bare date. A bare date used as
// an upper bound covers the whole day.
func timeParam(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
