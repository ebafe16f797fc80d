package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Session wraps one live connection. Writes are serialized by the mutex so
// the ping loop, group deliveries and direct replies never interleave frames.
type Session struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	logger    *slog.Logger
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, logger *slog.Logger) *Session {
	return &Session{conn: conn, logger: logger, done: make(chan struct{})}
}

func (s *Session) SendJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// startPing emits a liveness message on a fixed interval until the session
// closes. A failed write ends the loop; the read loop notices the dead
// connection on its own.
func (s *Session) startPing(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				if err := s.SendJSON(pingMsg{Type: "ping"}); err != nil {
					s.logger.Debug("ping loop stopped", "error", err)
					return
				}
			}
		}
	}()
}

// Close cancels the keep-alive and closes the connection. Safe to call more
// than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// closeWithCode sends a websocket close frame with an application close code
// before tearing the connection down. Used only at the handshake boundary.
func (s *Session) closeWithCode(code int, reason string) {
	s.mu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	s.mu.Unlock()
	s.Close()
}
