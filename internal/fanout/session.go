package fanout

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gocodealone/taskrecur/internal/applog"
	"github.com/gocodealone/taskrecur/internal/ids"
)

const (
	pingInterval = 30 * time.Second
	pongTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// Session is one open WebSocket connection belonging to userID.
type Session struct {
	userID   ids.ID
	conn     *websocket.Conn
	outbound chan []byte
	logger   applog.Logger

	closeOnce sync.Once
}

func newSession(userID ids.ID, conn *websocket.Conn, bufferSize int, logger applog.Logger) *Session {
	return &Session{
		userID:   userID,
		conn:     conn,
		outbound: make(chan []byte, bufferSize),
		logger:   logger,
	}
}

// Close shuts down the outbound channel, unblocking writePump. Safe to call
// more than once or concurrently.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.outbound)
	})
}

// readPump drains (and discards) client frames, existing solely to detect
// disconnects and keep the pong deadline alive — this engine's sessions are
// receive-only from the client's perspective.
func (s *Session) readPump(onClose func()) {
	defer onClose()
	defer s.conn.Close()

	s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump delivers queued messages and periodic pings until the
// outbound channel is closed or a write fails.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case body, ok := <-s.outbound:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
