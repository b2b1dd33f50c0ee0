package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/timesheet/internal/auth"
	"example.com/timesheet/internal/clock"
	"example.com/timesheet/internal/events"
	"example.com/timesheet/internal/guard"
	"example.com/timesheet/internal/persistence/memory"
	"example.com/timesheet/internal/realtime"
	"example.com/timesheet/internal/session"
)

const (
	testSecret = "api-test-secret"
	testIssuer = "timesheet-test"
)

var t0 = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type testAPI struct {
	router http.Handler
	clock  *clock.Fake
	store  *memory.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	clk := clock.NewFake(t0)
	store := memory.NewStore()
	locker := guard.New()
	broadcaster := realtime.NewBroadcaster(realtime.NewRegistry(nil), store, locker, realtime.BroadcasterConfig{Clock: clk})
	t.Cleanup(broadcaster.Close)
	manager := session.NewManager(store, store, locker, broadcaster, session.Config{Clock: clk})

	handler := NewHandler(manager, broadcaster, Config{ChannelBuffer: 8, KeepAlive: time.Hour})
	verifier := auth.NewVerifier(auth.Config{Secret: testSecret, Issuer: testIssuer})
	router := NewRouter(handler, RouterConfig{
		Auth:    auth.NewMiddleware(verifier, PublicPath),
		Metrics: http.NotFoundHandler(),
	})
	return &testAPI{router: router, clock: clk, store: store}
}

func tokenFor(t *testing.T, userID int64) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    testIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (a *testAPI) do(t *testing.T, userID int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID))
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["type"]
}

func TestStartStopLifecycle(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, 1, http.MethodPost, "/v1/timesheets/stop", StopTimesheetRequest{EndTime: t0})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, 1, http.MethodPost, "/v1/timesheets/start", StartTimesheetRequest{ActivityID: 1, StartTime: t0})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decode[TimesheetResponse](t, rec)
	require.NotNil(t, started.Timesheet)
	assert.True(t, started.Timesheet.Running)
	require.NotNil(t, started.Timesheet.Activity)
	assert.Equal(t, "Work", started.Timesheet.Activity.Name)

	rec = a.do(t, 1, http.MethodPost, "/v1/timesheets/start", StartTimesheetRequest{ActivityID: 2, StartTime: t0})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", errorType(t, rec))

	rec = a.do(t, 1, http.MethodPost, "/v1/timesheets/stop", StopTimesheetRequest{EndTime: t0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", errorType(t, rec))

	a.clock.Advance(65 * time.Second)
	rec = a.do(t, 1, http.MethodPost, "/v1/timesheets/stop", StopTimesheetRequest{EndTime: t0.Add(65 * time.Second)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stopped := decode[TimesheetResponse](t, rec)
	require.NotNil(t, stopped.Timesheet)
	assert.Equal(t, started.Timesheet.ID, stopped.Timesheet.ID)
	assert.False(t, stopped.Timesheet.Running)
	assert.Equal(t, 1, stopped.Timesheet.DurationMinutes)
}

func TestStartValidation(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/timesheets/start", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, 1))
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, 1, http.MethodPost, "/v1/timesheets/start", StartTimesheetRequest{ActivityID: 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, 1, http.MethodPost, "/v1/timesheets/start", StartTimesheetRequest{ActivityID: 404, StartTime: t0})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorType(t, rec))
}

func TestCurrentAndGet(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, 1, http.MethodGet, "/v1/timesheets/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[TimesheetResponse](t, rec).Timesheet)

	rec = a.do(t, 1, http.MethodPost, "/v1/timesheets/start", StartTimesheetRequest{ActivityID: 3, StartTime: t0})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[TimesheetResponse](t, rec).Timesheet.ID

	a.clock.Advance(10 * time.Minute)
	rec = a.do(t, 1, http.MethodGet, "/v1/timesheets/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	current := decode[TimesheetResponse](t, rec).Timesheet
	require.NotNil(t, current)
	assert.Equal(t, id, current.ID)
	assert.Equal(t, 10, current.DurationMinutes)

	rec = a.do(t, 1, http.MethodGet, "/v1/timesheets/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decode[TimesheetResponse](t, rec).Timesheet.ID)

	rec = a.do(t, 2, http.MethodGet, "/v1/timesheets/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, 1, http.MethodGet, "/v1/timesheets/not-a-uuid", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteGuards(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, 1, http.MethodPost, "/v1/timesheets/start", StartTimesheetRequest{ActivityID: 1, StartTime: t0})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[TimesheetResponse](t, rec).Timesheet.ID

	rec = a.do(t, 1, http.MethodDelete, "/v1/timesheets/"+id, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", errorType(t, rec))

	a.clock.Advance(time.Hour)
	rec = a.do(t, 1, http.MethodPost, "/v1/timesheets/stop", StopTimesheetRequest{EndTime: t0.Add(time.Hour)})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, 2, http.MethodDelete, "/v1/timesheets/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, 1, http.MethodDelete, "/v1/timesheets/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decode[DeleteTimesheetResponse](t, rec).ID)

	rec = a.do(t, 1, http.MethodDelete, "/v1/timesheets/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTimesheets(t *testing.T) {
	a := newTestAPI(t)

	day := func(d int) time.Time { return t0.AddDate(0, 0, d) }
	for i := 0; i < 3; i++ {
		start := day(i)
		a.clock.Advance(start.Sub(a.clock.Now()))
		rec := a.do(t, 1, http.MethodPost, "/v1/timesheets/start", StartTimesheetRequest{ActivityID: int64(1 + i%2), StartTime: start})
		require.Equal(t, http.StatusCreated, rec.Code)
		a.clock.Advance(30 * time.Minute)
		rec = a.do(t, 1, http.MethodPost, "/v1/timesheets/stop", StopTimesheetRequest{EndTime: start.Add(30 * time.Minute)})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := a.do(t, 1, http.MethodGet, "/v1/timesheets?page=1&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListTimesheetsResponse](t, rec)
	require.Len(t, list.Items, 2)
	assert.Equal(t, day(2), list.Items[0].StartTime)
	assert.Equal(t, 30, list.Items[0].DurationMinutes)
	assert.Equal(t, Pagination{Page: 1, Limit: 2, Total: 3, TotalPages: 2, HasNext: true}, list.Pagination)

	rec = a.do(t, 1, http.MethodGet, "/v1/timesheets?activity_id=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[ListTimesheetsResponse](t, rec).Pagination.Total)

	rec = a.do(t, 1, http.MethodGet, "/v1/timesheets?start_date=2024-06-04&end_date=2024-06-04", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[ListTimesheetsResponse](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, day(1), list.Items[0].StartTime)

	for _, bad := range []string{"page=x", "limit=1.5", "activity_id=-1", "start_date=yesterday", "start_date=2024-06-05&end_date=2024-06-03",
		"page=0", "page=-2", "limit=0", "limit=101", "page=9223372036854775807"} {
		rec = a.do(t, 1, http.MethodGet, "/v1/timesheets?"+bad, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}

	rec = a.do(t, 2, http.MethodGet, "/v1/timesheets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[ListTimesheetsResponse](t, rec).Items)
}

func TestAuthentication(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, 0, http.MethodGet, "/v1/timesheets/current", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, 0, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, 0, http.MethodOptions, "/v1/timesheets/start", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTimeParamEndOfDay(t *testing.T) {
	from, err := timeParam("2024-06-04", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC), *from)

	to, err := timeParam("2024-06-04", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 4, 23, 59, 59, 999999999, time.UTC), *to)

	exact, err := timeParam("2024-06-04T10:00:00Z", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 4, 10, 0, 0, 0, time.UTC), exact.UTC())

	none, err := timeParam("", true)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestWebSocketChannelFollowsTransitions(t *testing.T) {
	a := newTestAPI(t)
	srv := httptest.NewServer(a.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/timesheets/ws?token=" + tokenFor(t, 5)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var status events.Status
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, events.ReasonConnect, status.Reason)
	assert.Nil(t, status.Timesheet)

	rec := a.do(t, 5, http.MethodPost, "/v1/timesheets/start", StartTimesheetRequest{ActivityID: 1, StartTime: t0})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[TimesheetResponse](t, rec).Timesheet.ID

	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, events.TypeStatus, status.Type)
	assert.Equal(t, events.ReasonStarted, status.Reason)
	require.NotNil(t, status.Timesheet)
	assert.Equal(t, id, status.Timesheet.ID)

	require.NoError(t, conn.WriteJSON(events.ClientMessage{Type: events.TypeSync}))
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, events.ReasonSync, status.Reason)
	require.NotNil(t, status.Timesheet)

	a.clock.Advance(time.Minute)
	rec = a.do(t, 5, http.MethodPost, "/v1/timesheets/stop", StopTimesheetRequest{EndTime: t0.Add(time.Minute)})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, events.ReasonStopped, status.Reason)
	assert.Nil(t, status.Timesheet)
}

func TestWebSocketRejectsAnonymous(t *testing.T) {
	a := newTestAPI(t)
	srv := httptest.NewServer(a.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/timesheets/ws", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEventStreamAndRequestSync(t *testing.T) {
	a := newTestAPI(t)
	srv := httptest.NewServer(a.router)
	defer srv.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(srv.URL + "/v1/timesheets/events?token=" + tokenFor(t, 9))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	status := readEvent(t, reader)
	assert.Equal(t, events.ReasonConnect, status.Reason)

	rec := a.do(t, 9, http.MethodPost, "/v1/timesheets/sync", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	status = readEvent(t, reader)
	assert.Equal(t, events.ReasonSync, status.Reason)
	assert.Nil(t, status.Timesheet)
}

// readEvent returns the next status in an SSE stream, skipping comments.
func readEvent(t *testing.T, reader *bufio.Reader) events.Status {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		data, ok := strings.CutPrefix(strings.TrimRight(line, "\n"), "data: ")
		if !ok {
			continue
		}
		var status events.Status
		require.NoError(t, json.Unmarshal([]byte(data), &status))
		return status
	}
}
