package sim

import (
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"robosim/internal/command"
	"robosim/internal/config"
	"robosim/internal/history"
	"robosim/internal/telemetry"
)

func testTuning() config.Tuning {
	return config.Tuning{
		CommandTimeoutMS:  2000,
		RateLimitWindowMS: 100,
		RateLimitBurst:    20,
		BatteryWeight:     0.4,
		ThermalWeight:     0.3,
		ResourceWeight:    0.3,
		BatteryHealthWarn: 80,
		MotorTempAlert:    70,
		MemoryWarn:        90,
		CycleLimit:        10000,
	}
}

func newTestEngine(t *testing.T, state telemetry.RobotState, pathCap int, events *history.Ring[telemetry.EventLogEntry]) *Engine {
	t.Helper()
	if state.ID == "" {
		state.ID = "robot-1"
	}
	rng := rand.New(rand.NewSource(42))
	return NewEngine("fleet-test", state, testTuning(), pathCap, events, rng)
}

func TestMoveIntegratesPoseAndDrainsBattery(t *testing.T) {
	e := newTestEngine(t, telemetry.RobotState{}, 100, nil)

	e.SubmitCommand(command.Command{Kind: telemetry.CmdSetMode, Mode: telemetry.ModeStanding, IssuedAt: time.Now()})
	e.Tick(0.15)

	e.SubmitCommand(command.Command{Kind: telemetry.CmdMove, Linear: 1.0, IssuedAt: time.Now()})
	prev := e.Snapshot().Battery.Level
	for i := 0; i < 10; i++ {
		e.Tick(0.15)
		snap := e.Snapshot()
		if snap.Battery.Level >= prev {
			t.Fatalf("tick %d: battery did not drain: %.3f -> %.3f", i, prev, snap.Battery.Level)
		}
		prev = snap.Battery.Level
	}

	snap := e.Snapshot()
	if math.Abs(snap.Pose.X-1.5) > 1e-9 {
		t.Errorf("expected x = 1.5 after 10 ticks at 1.0 m/s, got %.4f", snap.Pose.X)
	}
	if snap.Pose.Y != 0 {
		t.Errorf("expected y unchanged at heading 0, got %.4f", snap.Pose.Y)
	}
	if snap.Mode != telemetry.ModeStanding {
		t.Errorf("expected mode standing, got %s", snap.Mode)
	}
}

func TestEmergencyStopLocksModeAndIgnoresCommands(t *testing.T) {
	events := history.NewRing[telemetry.EventLogEntry](100)
	e := newTestEngine(t, telemetry.RobotState{}, 100, events)

	e.SubmitCommand(command.Command{Kind: telemetry.CmdMove, Linear: 1.2, IssuedAt: time.Now()})
	e.Tick(0.15)
	if v := e.Snapshot().Velocity.Linear; v != 1.2 {
		t.Fatalf("expected linear velocity 1.2 before estop, got %.2f", v)
	}

	e.SubmitCommand(command.Command{Kind: telemetry.CmdEmergencyStop, IssuedAt: time.Now()})
	e.Tick(0.15)
	snap := e.Snapshot()
	if !snap.EmergencyStopActive {
		t.Fatal("expected emergency stop active")
	}
	if snap.Mode != telemetry.ModeStopped {
		t.Errorf("expected mode stopped, got %s", snap.Mode)
	}
	if snap.Velocity.Linear != 0 || snap.Velocity.Angular != 0 {
		t.Errorf("expected zero velocity after estop, got %+v", snap.Velocity)
	}

	// Motion and mode commands must be ignored while stopped.
	x := snap.Pose.X
	e.SubmitCommand(command.Command{Kind: telemetry.CmdMove, Linear: 1.0, IssuedAt: time.Now()})
	e.Tick(0.15)
	e.SubmitCommand(command.Command{Kind: telemetry.CmdSetMode, Mode: telemetry.ModeWalking, IssuedAt: time.Now()})
	e.Tick(0.15)
	snap = e.Snapshot()
	if snap.Pose.X != x {
		t.Errorf("robot moved while emergency stopped: %.4f -> %.4f", x, snap.Pose.X)
	}
	if snap.Mode != telemetry.ModeStopped {
		t.Errorf("mode changed while emergency stopped: %s", snap.Mode)
	}

	e.SubmitCommand(command.Command{Kind: telemetry.CmdClearStop, IssuedAt: time.Now()})
	e.Tick(0.15)
	snap = e.Snapshot()
	if snap.EmergencyStopActive {
		t.Error("expected emergency stop cleared")
	}
	if snap.Mode != telemetry.ModeStandby {
		t.Errorf("expected mode standby after clear_stop, got %s", snap.Mode)
	}
}

func TestPathLogEvictsOldestWhenFull(t *testing.T) {
	e := newTestEngine(t, telemetry.RobotState{}, 5, nil)
	e.SubmitCommand(command.Command{Kind: telemetry.CmdMove, Linear: 1.0, IssuedAt: time.Now()})
	for i := 0; i < 8; i++ {
		e.Tick(0.15)
	}
	points := e.Path(0)
	if len(points) != 5 {
		t.Fatalf("expected path log capped at 5, got %d", len(points))
	}
	// Oldest surviving point is from the 4th tick: x = 4 * 0.15.
	if math.Abs(points[0].X-0.6) > 1e-9 {
		t.Errorf("expected oldest retained point at x=0.6, got %.4f", points[0].X)
	}
}

func TestPathLogHoldsFullCapacity(t *testing.T) {
	e := newTestEngine(t, telemetry.RobotState{}, 5000, nil)
	base := time.Now()
	e.SetNow(func() time.Time { return base })
	e.SubmitCommand(command.Command{Kind: telemetry.CmdMove, Linear: 1.0, IssuedAt: base})
	for i := 0; i < 5001; i++ {
		e.Tick(0.15)
	}
	points := e.Path(0)
	if len(points) != 5000 {
		t.Fatalf("expected path log capped at 5000, got %d", len(points))
	}
	// Only the first point falls out: the oldest retained one is from
	// the second tick at x = 2 * 0.15.
	if math.Abs(points[0].X-0.3) > 1e-6 {
		t.Errorf("expected oldest retained point at x=0.3, got %.4f", points[0].X)
	}
}

func TestCommandTimeoutDecaysVelocity(t *testing.T) {
	e := newTestEngine(t, telemetry.RobotState{}, 100, nil)
	base := time.Now()
	clock := base
	e.SetNow(func() time.Time { return clock })

	e.SubmitCommand(command.Command{Kind: telemetry.CmdMove, Linear: 1.0, IssuedAt: base})
	e.Tick(0.15)
	if v := e.Snapshot().Velocity.Linear; v != 1.0 {
		t.Fatalf("expected velocity 1.0, got %.2f", v)
	}

	clock = base.Add(3 * time.Second)
	e.Tick(0.15)
	if v := e.Snapshot().Velocity; v.Linear != 0 || v.Angular != 0 {
		t.Errorf("expected velocity decayed to zero after timeout, got %+v", v)
	}
}

func TestSittingRechargesBattery(t *testing.T) {
	e := newTestEngine(t, telemetry.RobotState{Battery: telemetry.Battery{Level: 50, Health: 100}}, 100, nil)
	e.SubmitCommand(command.Command{Kind: telemetry.CmdSetMode, Mode: telemetry.ModeSitting, IssuedAt: time.Now()})
	e.Tick(0.15)
	prev := e.Snapshot().Battery.Level
	for i := 0; i < 5; i++ {
		e.Tick(0.15)
		snap := e.Snapshot()
		if !snap.Battery.Charging {
			t.Fatal("expected charging flag while sitting")
		}
		if snap.Battery.Level <= prev {
			t.Fatalf("battery did not recover while sitting: %.3f -> %.3f", prev, snap.Battery.Level)
		}
		prev = snap.Battery.Level
	}
}

func TestNavigateToStopsAtTarget(t *testing.T) {
	e := newTestEngine(t, telemetry.RobotState{}, 1000, nil)
	e.SubmitCommand(command.Command{Kind: telemetry.CmdNavigateTo, TargetX: 0.5, TargetY: 0, IssuedAt: time.Now()})
	for i := 0; i < 40; i++ {
		e.Tick(0.15)
	}
	snap := e.Snapshot()
	if snap.Velocity.Linear != 0 || snap.Velocity.Angular != 0 {
		t.Errorf("expected robot halted at target, velocity %+v", snap.Velocity)
	}
	if math.Abs(snap.Pose.X-0.5) > navArriveRadius+1e-9 {
		t.Errorf("expected x within %.2f of target 0.5, got %.4f", navArriveRadius, snap.Pose.X)
	}
}

func TestMaintenanceAlertsAreEdgeTriggered(t *testing.T) {
	events := history.NewRing[telemetry.EventLogEntry](100)
	state := telemetry.RobotState{Battery: telemetry.Battery{Level: 90, Health: 50}}
	e := newTestEngine(t, state, 100, events)

	e.Tick(0.15)
	e.Tick(0.15)
	e.Tick(0.15)

	count := 0
	for _, entry := range events.ReadAll() {
		if entry.Category == "maintenance" && strings.Contains(entry.Message, "battery health") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one battery health alert for a persistent condition, got %d", count)
	}
}

func TestHealthScoreWeightsAndBand(t *testing.T) {
	e := newTestEngine(t, telemetry.RobotState{}, 100, nil)
	e.Tick(0.15)
	snap := e.Snapshot()
	if snap.HealthScore <= 70 {
		t.Errorf("fresh robot should land in the healthy band, score %.1f", snap.HealthScore)
	}
	if snap.HealthBand() != telemetry.BandHealthy {
		t.Errorf("expected healthy band, got %s", snap.HealthBand())
	}
}

func TestJointsOscillateOnlyWhileWalking(t *testing.T) {
	e := newTestEngine(t, telemetry.RobotState{}, 100, nil)

	e.SubmitCommand(command.Command{Kind: telemetry.CmdSetMode, Mode: telemetry.ModeStanding, IssuedAt: time.Now()})
	e.Tick(0.15)
	for _, j := range e.Snapshot().Joints {
		if j.Velocity != 0 {
			t.Fatalf("joint %s has nonzero velocity while standing", j.Name)
		}
	}

	e.SubmitCommand(command.Command{Kind: telemetry.CmdSetMode, Mode: telemetry.ModeWalking, IssuedAt: time.Now()})
	e.Tick(0.15)
	e.Tick(0.15)
	moving := 0
	for _, j := range e.Snapshot().Joints {
		if j.Velocity != 0 {
			moving++
		}
	}
	if moving == 0 {
		t.Error("expected leg joints oscillating while walking")
	}
	if got := len(e.Snapshot().Joints); got != telemetry.JointCount {
		t.Errorf("expected %d joints, got %d", telemetry.JointCount, got)
	}
}

func TestResetRestoresDefaultsAndClearsPath(t *testing.T) {
	e := newTestEngine(t, telemetry.RobotState{Pose: telemetry.Pose{X: 2, Y: 3}}, 100, nil)
	e.SubmitCommand(command.Command{Kind: telemetry.CmdMove, Linear: 1.0, IssuedAt: time.Now()})
	for i := 0; i < 5; i++ {
		e.Tick(0.15)
	}
	if len(e.Path(0)) == 0 {
		t.Fatal("expected path points before reset")
	}

	e.Reset()
	snap := e.Snapshot()
	if snap.Pose.X != 2 || snap.Pose.Y != 3 {
		t.Errorf("expected start pose restored, got %+v", snap.Pose)
	}
	if snap.Mode != telemetry.ModeStandby || snap.Battery.Level != 100 {
		t.Errorf("expected default state after reset, got mode=%s battery=%.1f", snap.Mode, snap.Battery.Level)
	}
	if len(e.Path(0)) != 0 {
		t.Error("expected path log cleared by reset")
	}
}
