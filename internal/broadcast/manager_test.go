package broadcast

import (
	"encoding/json"
	"testing"
	"time"

	"robosim/internal/config"
	"robosim/internal/telemetry"
)

func testManager(snapshot SnapshotFunc) *Manager {
	cfg := config.BroadcastConfig{
		QueueSize:           8,
		HeartbeatIntervalMS: 60000,
		HeartbeatTimeoutMS:  120000,
	}
	return NewManager(cfg, snapshot)
}

func waitForTexts(t *testing.T, conn *fakeConn, n int) {
	t.Helper()
	deadline := time.After(time.Second)
	for conn.textCount() < n {
		select {
		case <-deadline:
			t.Fatalf("expected %d messages, got %d", n, conn.textCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSnapshotOnConnect(t *testing.T) {
	rows := []telemetry.TelemetryRow{
		{RobotID: "r1", Battery: 90},
		{RobotID: "r2", Battery: 40},
	}
	m := testManager(func() []telemetry.TelemetryRow { return rows })

	conn := newFakeConn()
	s := m.attach(conn)
	defer s.Close()

	waitForTexts(t, conn, 2)
	conn.mu.Lock()
	defer conn.mu.Unlock()
	for i, want := range []string{"r1", "r2"} {
		var env telemetry.Envelope
		if err := json.Unmarshal(conn.texts[i], &env); err != nil {
			t.Fatalf("snapshot message %d: %v", i, err)
		}
		if env.Type != telemetry.MsgTelemetry || env.RobotID != want {
			t.Fatalf("snapshot message %d: type=%s robot=%s", i, env.Type, env.RobotID)
		}
	}
}

func TestBroadcastReachesAllSessions(t *testing.T) {
	m := testManager(nil)
	connA, connB := newFakeConn(), newFakeConn()
	sa := m.attach(connA)
	sb := m.attach(connB)
	defer sa.Close()
	defer sb.Close()

	if got := m.SessionCount(); got != 2 {
		t.Fatalf("session count = %d, want 2", got)
	}

	if err := m.Write(telemetry.TelemetryRow{RobotID: "r1"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	waitForTexts(t, connA, 1)
	waitForTexts(t, connB, 1)
}

func TestWriteEventClassifiesAlerts(t *testing.T) {
	m := testManager(nil)
	conn := newFakeConn()
	s := m.attach(conn)
	defer s.Close()

	alert := telemetry.EventLogEntry{Level: telemetry.LevelWarn, Category: "maintenance", RobotID: "r1", Message: "battery health low"}
	info := telemetry.EventLogEntry{Level: telemetry.LevelInfo, Category: "mode", RobotID: "r1", Message: "mode standby -> walking"}
	if err := m.WriteEvent(alert); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if err := m.WriteEvent(info); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	waitForTexts(t, conn, 2)
	conn.mu.Lock()
	defer conn.mu.Unlock()
	var first, second telemetry.Envelope
	if err := json.Unmarshal(conn.texts[0], &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(conn.texts[1], &second); err != nil {
		t.Fatal(err)
	}
	if first.Type != telemetry.MsgMaintenanceAlert {
		t.Errorf("first message type = %s, want %s", first.Type, telemetry.MsgMaintenanceAlert)
	}
	if second.Type != telemetry.MsgLogEvent {
		t.Errorf("second message type = %s, want %s", second.Type, telemetry.MsgLogEvent)
	}
}

func TestWritePathSegment(t *testing.T) {
	m := testManager(nil)
	conn := newFakeConn()
	s := m.attach(conn)
	defer s.Close()

	points := []telemetry.PathPoint{{X: 1, Y: 2}, {X: 1.1, Y: 2}}
	if err := m.WritePathSegment("r1", points); err != nil {
		t.Fatalf("WritePathSegment: %v", err)
	}
	waitForTexts(t, conn, 1)
	conn.mu.Lock()
	defer conn.mu.Unlock()
	var env telemetry.Envelope
	if err := json.Unmarshal(conn.texts[0], &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != telemetry.MsgPathSegment || env.RobotID != "r1" {
		t.Fatalf("envelope = %+v", env)
	}
	var decoded []telemetry.PathPoint
	if err := json.Unmarshal(env.Data, &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 points, got %d", len(decoded))
	}
}

func TestDetachOnClose(t *testing.T) {
	m := testManager(nil)
	conn := newFakeConn()
	s := m.attach(conn)
	if got := m.SessionCount(); got != 1 {
		t.Fatalf("session count = %d, want 1", got)
	}
	s.Close()
	deadline := time.After(time.Second)
	for m.SessionCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("session not detached after close")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
