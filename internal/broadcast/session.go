package broadcast

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"robosim/internal/logging"
)

// MessageClass controls queue behavior under backpressure.
type MessageClass int

// Message classes. Telemetry is droppable under pressure; alerts are not.
const (
	ClassTelemetry MessageClass = iota
	ClassAlert
)

type queued struct {
	class MessageClass
	data  []byte
}

// wsConn is the subset of *websocket.Conn a session uses.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	ReadMessage() (int, []byte, error)
	Close() error
}

// Session is one connected WebSocket client with a bounded send queue.
// Messages keep tick order; when the queue is full, the oldest telemetry
// message is evicted first, and alert messages are never dropped.
type Session struct {
	ID   string
	conn wsConn

	mu     sync.Mutex
	queue  []queued
	cap    int
	closed bool

	wake chan struct{}
	done chan struct{}

	pingInterval time.Duration
	missedPongs  int

	onClose func(*Session)
}

func newSession(id string, conn wsConn, queueSize int, pingInterval time.Duration, onClose func(*Session)) *Session {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Session{
		ID:           id,
		conn:         conn,
		cap:          queueSize,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		onClose:      onClose,
	}
}

// enqueue adds a message for this session. Returns false if the session is
// closed or the message was dropped.
func (s *Session) enqueue(class MessageClass, data []byte) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if len(s.queue) >= s.cap {
		if !s.evictLocked(class) {
			s.mu.Unlock()
			return false
		}
	}
	s.queue = append(s.queue, queued{class: class, data: data})
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// evictLocked makes room in a full queue. The oldest telemetry message
// goes first; an incoming telemetry message is dropped if only alerts
// remain, while alerts always get a slot.
func (s *Session) evictLocked(incoming MessageClass) bool {
	for i, q := range s.queue {
		if q.class == ClassTelemetry {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return incoming == ClassAlert
}

func (s *Session) dequeue() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	q := s.queue[0]
	s.queue = s.queue[1:]
	return q.data, true
}

func (s *Session) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// writePump drains the queue to the socket and drives heartbeat pings.
// Two pings without an intervening pong terminate the session.
func (s *Session) writePump() {
	log := logging.New()
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	defer s.Close()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.missedPongs++
			missed := s.missedPongs
			s.mu.Unlock()
			if missed > 2 {
				log.Warn("closing unresponsive session", "session_id", s.ID)
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.pingInterval))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.wake:
			for {
				data, ok := s.dequeue()
				if !ok {
					break
				}
				_ = s.conn.SetWriteDeadline(time.Now().Add(s.pingInterval))
				if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					log.Warn("session write failed", "session_id", s.ID, "err", err)
					return
				}
			}
		}
	}
}

// readPump consumes inbound frames so pong handlers run, and closes the
// session when the peer goes away.
func (s *Session) readPump() {
	defer s.Close()
	s.conn.SetPongHandler(func(string) error {
		s.mu.Lock()
		s.missedPongs = 0
		s.mu.Unlock()
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close terminates the session exactly once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
	_ = s.conn.Close()
	if s.onClose != nil {
		s.onClose(s)
	}
}
