package api

import (
	"net/http"
	"time"

	"example.com/timesheet/internal/domain"
	"example.com/timesheet/internal/events"
	"example.com/timesheet/internal/realtime"
)

// socket serves the full-duplex channel. The caller is authenticated before
// the upgrade, so anonymous devices never reach the registry.
func (h *Handler) socket(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Debug("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	ch := realtime.NewSocketChannel(conn, realtime.SocketConfig{
		Buffer:       h.buffer,
		WriteTimeout: h.writeTimeout,
		Logger:       h.logger,
	})
	ctx := r.Context()
	if err := h.broadcaster.Attach(ctx, userID, ch); err != nil {
		h.logger.Warn("attaching websocket channel failed", "user_id", userID, "error", err)
		_ = ch.Close()
		return
	}
	defer h.broadcaster.Detach(userID, ch)

	err = ch.ReadLoop(func(msg events.ClientMessage) {
		if msg.Type != events.TypeSync {
			return
		}
		if err := h.broadcaster.SyncChannel(ctx, userID, ch); err != nil {
			h.logger.Warn("sync request failed", "user_id", userID, "channel_id", ch.ID(), "error", err)
		}
	})
	if err != nil {
		h.logger.Debug("websocket read ended", "user_id", userID, "channel_id", ch.ID(), "error", err)
	}
}

// stream serves the push-only server-sent events channel.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "server_error", "streaming unsupported")
		return
	}
	// The server write timeout would otherwise cut long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := realtime.NewStreamChannel(h.buffer)
	ctx := r.Context()
	if err := h.broadcaster.Attach(ctx, userID, ch); err != nil {
		h.logger.Warn("attaching stream channel failed", "user_id", userID, "error", err)
		return
	}
	defer h.broadcaster.Detach(userID, ch)

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	if err := ch.Serve(ctx, w, flusher.Flush, keepAlive.C); err != nil {
		h.logger.Debug("event stream ended", "user_id", userID, "channel_id", ch.ID(), "error", err)
	}
}

func originChecker(allowed string) func(*http.Request) bool {
	if allowed == "" || allowed == "*" {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == allowed
	}
}

func unavailable(err error) error {
	if domain.KindOf(err) != "" {
		return err
	}
	return domain.Unavailable("status unavailable", err)
}
