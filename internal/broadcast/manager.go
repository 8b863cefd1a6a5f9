// WebSocket fan-out with per-session bounded queues
package broadcast

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"robosim/internal/config"
	"robosim/internal/logging"
	"robosim/internal/telemetry"
)

// SnapshotFunc supplies the latest telemetry row per robot, sent to every
// session right after it connects.
type SnapshotFunc func() []telemetry.TelemetryRow

// Manager owns all WebSocket sessions and fans out telemetry and alerts.
// It implements the simulator's writer interfaces so it can be wired as
// just another telemetry sink.
type Manager struct {
	cfg      config.BroadcastConfig
	upgrader websocket.Upgrader
	snapshot SnapshotFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a broadcast manager.
func NewManager(cfg config.BroadcastConfig, snapshot SnapshotFunc) *Manager {
	return &Manager{
		cfg:      cfg,
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*Session),
	}
}

// HandleWS upgrades an HTTP request into a broadcast session.
func (m *Manager) HandleWS(w http.ResponseWriter, r *http.Request) {
	log := logging.New()
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}
	s := m.attach(conn)
	log.Info("session connected", "session_id", s.ID)
}

// attach registers a connection and starts its pumps. Split from HandleWS
// so tests can drive fake connections.
func (m *Manager) attach(conn wsConn) *Session {
	interval := time.Duration(m.cfg.HeartbeatIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := newSession(uuid.New().String(), conn, m.cfg.QueueSize, interval, m.detach)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	// Seed the new session with the current fleet state so clients render
	// immediately instead of waiting a tick.
	if m.snapshot != nil {
		now := time.Now()
		for _, row := range m.snapshot() {
			if env, err := telemetry.NewEnvelope(telemetry.MsgTelemetry, row.RobotID, row, now); err == nil {
				if data, err := env.Encode(); err == nil {
					s.enqueue(ClassTelemetry, data)
				}
			}
		}
	}

	go s.writePump()
	go s.readPump()
	return s
}

func (m *Manager) detach(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
}

// SessionCount returns the number of connected sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Broadcast fans out one envelope to every session.
func (m *Manager) Broadcast(class MessageClass, msgType, robotID string, payload any) {
	env, err := telemetry.NewEnvelope(msgType, robotID, payload, time.Now())
	if err != nil {
		return
	}
	data, err := env.Encode()
	if err != nil {
		return
	}
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.enqueue(class, data)
	}
}

// Write implements the telemetry writer interface: per-tick rows go out
// as droppable telemetry messages.
func (m *Manager) Write(row telemetry.TelemetryRow) error {
	m.Broadcast(ClassTelemetry, telemetry.MsgTelemetry, row.RobotID, row)
	return nil
}

// WritePathSegment pushes recent path history as a droppable message, for
// clients rendering trails.
func (m *Manager) WritePathSegment(robotID string, points []telemetry.PathPoint) error {
	m.Broadcast(ClassTelemetry, telemetry.MsgPathSegment, robotID, points)
	return nil
}

// WriteEvent implements the event writer interface. Maintenance and
// safety events ride the alert class; everything else is droppable.
func (m *Manager) WriteEvent(entry telemetry.EventLogEntry) error {
	class := ClassTelemetry
	msgType := telemetry.MsgLogEvent
	if entry.Category == "maintenance" || entry.Category == "safety" {
		class = ClassAlert
		msgType = telemetry.MsgMaintenanceAlert
	}
	m.Broadcast(class, msgType, entry.RobotID, entry)
	return nil
}

// CloseAll terminates every session, for shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
