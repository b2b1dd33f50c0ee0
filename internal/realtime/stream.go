package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StreamChannel is a server-sent events channel. It is push-only; devices
// request a sync over HTTP instead.
type StreamChannel struct {
	*outbound
}

// NewStreamChannel returns a channel with the given queue bound.
func NewStreamChannel(buffer int) *StreamChannel {
	return &StreamChannel{outbound: newOutbound(buffer)}
}

// Close ends Serve.
func (s *StreamChannel) Close() error {
	s.shutdown()
	return nil
}

// Serve writes queued status messages as SSE events until ctx is done or the
// channel is closed. A comment line is written on every keepAlive tick so
// proxies keep the stream open.
func (s *StreamChannel) Serve(ctx context.Context, w io.Writer, flush func(), keepAlive <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case status := <-s.queue:
			data, err := json.Marshal(status)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", status.Type, data); err != nil {
				return err
			}
			flush()
		case <-keepAlive:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return err
			}
			flush()
		}
	}
}
