package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"example.com/timesheet/internal/events"
)

const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultPongWait     = 60 * time.Second
	maxClientMessage    = 4096
)

// SocketConfig tunes a SocketChannel; zero values take defaults.
type SocketConfig struct {
	Buffer       int
	WriteTimeout time.Duration
	PongWait     time.Duration
	Logger       *slog.Logger
}

// SocketChannel is a full-duplex websocket channel. Status messages are
// written by a single goroutine in queue order.
type SocketChannel struct {
	*outbound

	conn         *websocket.Conn
	writeTimeout time.Duration
	pongWait     time.Duration
	logger       *slog.Logger
	writerDone   chan struct{}
}

// NewSocketChannel takes ownership of conn and starts its writer.
func NewSocketChannel(conn *websocket.Conn, cfg SocketConfig) *SocketChannel {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = DefaultPongWait
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	s := &SocketChannel{
		outbound:     newOutbound(cfg.Buffer),
		conn:         conn,
		writeTimeout: cfg.WriteTimeout,
		pongWait:     cfg.PongWait,
		logger:       cfg.Logger,
		writerDone:   make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// Close stops the writer, which sends a close frame and releases the connection.
func (s *SocketChannel) Close() error {
	s.shutdown()
	<-s.writerDone
	return nil
}

func (s *SocketChannel) writeLoop() {
	defer close(s.writerDone)
	defer s.conn.Close()

	ping := time.NewTicker(s.pongWait * 9 / 10)
	defer ping.Stop()

	for {
		select {
		case <-s.done:
			deadline := time.Now().Add(s.writeTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		case status := <-s.queue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteJSON(status); err != nil {
				s.logger.Debug("websocket write failed", "channel_id", s.id, "error", err)
				s.shutdown()
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(s.writeTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("websocket ping failed", "channel_id", s.id, "error", err)
				s.shutdown()
				return
			}
		}
	}
}

// ReadLoop blocks reading client messages until the peer goes away or the
// channel is closed. Malformed messages are skipped. A normal close returns nil.
func (s *SocketChannel) ReadLoop(onMessage func(events.ClientMessage)) error {
	s.conn.SetReadLimit(maxClientMessage)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil
			}
			return err
		}

		var msg events.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("ignoring malformed client message", "channel_id", s.id, "error", err)
			continue
		}
		onMessage(msg)
	}
}
