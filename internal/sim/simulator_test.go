package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"robosim/internal/command"
	"robosim/internal/config"
	"robosim/internal/telemetry"
)

// MockWriter collects telemetry rows for assertions.
type MockWriter struct {
	mu   sync.Mutex
	Rows []telemetry.TelemetryRow
}

func (m *MockWriter) Write(row telemetry.TelemetryRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rows = append(m.Rows, row)
	return nil
}

func (m *MockWriter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Rows)
}

// MockEventWriter collects event log entries for assertions.
type MockEventWriter struct {
	mu      sync.Mutex
	Entries []telemetry.EventLogEntry
}

func (m *MockEventWriter) WriteEvent(entry telemetry.EventLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MockEventWriter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries)
}

func testConfig(robots int) *config.SimulationConfig {
	cfg := &config.SimulationConfig{
		FleetID: "fleet-test",
		Robots: []config.RobotGroup{
			{Name: "quad", Model: "qr-2", Count: robots},
		},
		Seed: 7,
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestNewSimulatorCreatesRobots(t *testing.T) {
	sim := NewSimulator(testConfig(3), &MockWriter{}, nil, 150*time.Millisecond)

	ids := sim.RobotIDs()
	if len(ids) != 3 {
		t.Fatalf("expected 3 robots, got %d", len(ids))
	}
	for _, id := range ids {
		snap, ok := sim.Snapshot(id)
		if !ok {
			t.Fatalf("missing snapshot for %s", id)
		}
		if snap.Mode != telemetry.ModeStandby {
			t.Errorf("robot %s: expected standby mode, got %s", id, snap.Mode)
		}
		if len(snap.Joints) != telemetry.JointCount {
			t.Errorf("robot %s: expected %d joints, got %d", id, telemetry.JointCount, len(snap.Joints))
		}
	}
}

func TestSubmitCommandUnknownRobot(t *testing.T) {
	sim := NewSimulator(testConfig(1), &MockWriter{}, nil, 150*time.Millisecond)
	err := sim.SubmitCommand("nope", command.Command{Kind: telemetry.CmdMove})
	if !errors.Is(err, command.ErrUnknownRobot) {
		t.Errorf("expected ErrUnknownRobot, got %v", err)
	}
}

func TestAddAndRemoveRobot(t *testing.T) {
	sim := NewSimulator(testConfig(1), &MockWriter{}, nil, 150*time.Millisecond)
	id := sim.AddRobot(config.RobotGroup{Name: "extra", Model: "qr-2", Count: 1})
	if len(sim.RobotIDs()) != 2 {
		t.Fatalf("expected 2 robots after add, got %d", len(sim.RobotIDs()))
	}
	if !sim.RemoveRobot(id) {
		t.Error("expected removal of existing robot to succeed")
	}
	if sim.RemoveRobot(id) {
		t.Error("expected second removal to fail")
	}
	if _, ok := sim.Snapshot(id); ok {
		t.Error("expected snapshot lookup to miss after removal")
	}
}

func TestRunTicksAndWritesTelemetry(t *testing.T) {
	writer := &MockWriter{}
	sim := NewSimulator(testConfig(2), writer, nil, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	sim.Run(ctx)

	if writer.Count() == 0 {
		t.Fatal("expected telemetry rows written during run")
	}
	writer.mu.Lock()
	defer writer.mu.Unlock()
	for _, row := range writer.Rows {
		if row.FleetID != "fleet-test" {
			t.Fatalf("unexpected fleet id %q", row.FleetID)
		}
		if row.RobotID == "" {
			t.Fatal("row missing robot id")
		}
	}
}

func TestDrainEventsContinuesAfterRingFills(t *testing.T) {
	cfg := testConfig(1)
	cfg.EventLogCapacity = 3
	ew := &MockEventWriter{}
	sim := NewSimulator(cfg, &MockWriter{}, ew, 150*time.Millisecond)

	for i := 0; i < 3; i++ {
		sim.Events().Append(telemetry.EventLogEntry{Category: "safety", Message: "older"})
	}
	sim.drainEvents()
	if ew.Count() != 3 {
		t.Fatalf("expected 3 entries forwarded, got %d", ew.Count())
	}

	// The ring is at capacity now; appends evict the oldest entry but
	// must still reach the writer.
	sim.Events().Append(telemetry.EventLogEntry{Category: "safety", Message: "after wrap"})
	sim.drainEvents()
	if ew.Count() != 4 {
		t.Fatalf("entry appended after the ring filled was not forwarded: got %d entries, want 4", ew.Count())
	}
	ew.mu.Lock()
	defer ew.mu.Unlock()
	if got := ew.Entries[3].Message; got != "after wrap" {
		t.Errorf("last forwarded entry = %q, want %q", got, "after wrap")
	}
}

func TestEStopLookup(t *testing.T) {
	sim := NewSimulator(testConfig(1), &MockWriter{}, nil, 150*time.Millisecond)
	id := sim.RobotIDs()[0]

	active, ok := sim.EStopLookup(id)
	if !ok || active {
		t.Fatalf("expected known robot without estop, got active=%v ok=%v", active, ok)
	}
	if _, ok := sim.EStopLookup("missing"); ok {
		t.Error("expected lookup miss for unknown robot")
	}
}

func TestFleetHealthAggregation(t *testing.T) {
	sim := NewSimulator(testConfig(2), &MockWriter{}, nil, 150*time.Millisecond)
	h := sim.Health()
	if h.Total != 2 {
		t.Fatalf("expected total 2, got %d", h.Total)
	}
	// Fresh robots have full battery and nominal temps.
	if h.Healthy+h.Warning+h.Critical != h.Total {
		t.Errorf("band counts do not sum to total: %+v", h)
	}
}

func TestTelemetrySnapshotCoversFleet(t *testing.T) {
	sim := NewSimulator(testConfig(3), &MockWriter{}, nil, 150*time.Millisecond)
	rows := sim.TelemetrySnapshot()
	if len(rows) != 3 {
		t.Fatalf("expected 3 snapshot rows, got %d", len(rows))
	}
	seen := make(map[string]bool)
	for _, row := range rows {
		seen[row.RobotID] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected distinct robot ids, got %d", len(seen))
	}
}
