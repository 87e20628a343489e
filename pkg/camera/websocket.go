package camera

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket receives JPEG frames as binary messages from a remote camera,
// such as a phone streaming to a relay. It reconnects until ctx is done.
type WebSocket struct {
	url    string
	logger *slog.Logger

	// ReconnectDelay is the pause between connection attempts.
	ReconnectDelay time.Duration
}

// NewWebSocket creates a websocket frame source.
func NewWebSocket(cfg Config, logger *slog.Logger) *WebSocket {
	return &WebSocket{
		url:            cfg.URL,
		logger:         logger.With("component", "camera.websocket"),
		ReconnectDelay: 2 * time.Second,
	}
}

// Name implements Source.
func (s *WebSocket) Name() string {
	return "websocket:" + s.url
}

// Run implements Source.
func (s *WebSocket) Run(ctx context.Context, h Handler) error {
	for {
		err := s.session(ctx, h)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("frame feed disconnected, reconnecting",
			"error", err,
			"delay", s.ReconnectDelay,
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.ReconnectDelay):
		}
	}
}

func (s *WebSocket) session(ctx context.Context, h Handler) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	})
	defer stop()

	s.logger.Info("frame feed connected", "url", s.url)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("closed by peer")
			}
			return err
		}
		if msgType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}
		h(jpegFrame(data, time.Now()))
	}
}

// Verify WebSocket implements Source at compile time.
var _ Source = (*WebSocket)(nil)
