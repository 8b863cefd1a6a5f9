// Simulator orchestrating robot engines and telemetry ticks
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"robosim/internal/command"
	"robosim/internal/config"
	"robosim/internal/history"
	"robosim/internal/logging"
	"robosim/internal/telemetry"

	"github.com/google/uuid"
)

// Simulator is the fleet registry. It owns one Engine per robot and runs
// each robot's tick loop on its own goroutine; loops never block on I/O
// because writers sit behind queues or are in-memory.
type Simulator struct {
	fleetID      string
	cfg          *config.SimulationConfig
	writer       TelemetryWriter
	eventWriter  EventWriter
	events       *history.Ring[telemetry.EventLogEntry]
	tickInterval time.Duration
	seed         int64

	mu      sync.Mutex
	robots  map[string]*robotRunner
	order   []string
	ctx     context.Context
	started bool
	wg      sync.WaitGroup

	eventsMu    sync.Mutex
	eventCursor uint64
}

// robotRunner pairs an engine with its loop cancellation.
type robotRunner struct {
	engine *Engine
	cancel context.CancelFunc
}

// NewSimulator initializes engines from the robot group config.
func NewSimulator(cfg *config.SimulationConfig, writer TelemetryWriter, eventWriter EventWriter, tickInterval time.Duration) *Simulator {
	if tickInterval <= 0 {
		tickInterval = 150 * time.Millisecond
	}
	s := &Simulator{
		fleetID:      cfg.FleetID,
		cfg:          cfg,
		writer:       writer,
		eventWriter:  eventWriter,
		events:       history.NewRing[telemetry.EventLogEntry](cfg.EventLogCapacity),
		tickInterval: tickInterval,
		seed:         cfg.Seed,
		robots:       make(map[string]*robotRunner),
	}
	for _, group := range cfg.Robots {
		for i := 0; i < group.Count; i++ {
			s.addRobotLocked(generateRobotID(group.Name, i), group)
		}
	}
	return s
}

// Events returns the fleet-wide event log ring shared by all components.
func (s *Simulator) Events() *history.Ring[telemetry.EventLogEntry] {
	return s.events
}

// TickInterval returns the configured tick period.
func (s *Simulator) TickInterval() time.Duration {
	return s.tickInterval
}

// Run starts one tick loop per robot and blocks until the context is done.
func (s *Simulator) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("starting simulator", "tick_interval", s.tickInterval, "robots", len(s.RobotIDs()))

	s.mu.Lock()
	s.ctx = ctx
	s.started = true
	for _, id := range s.order {
		s.startLoopLocked(id)
	}
	s.mu.Unlock()

	<-ctx.Done()
	log.Info("stopping simulator")
	s.wg.Wait()
}

// startLoopLocked launches the tick loop for one robot. Callers hold s.mu.
func (s *Simulator) startLoopLocked(id string) {
	r, ok := s.robots[id]
	if !ok || s.ctx == nil {
		return
	}
	loopCtx, cancel := context.WithCancel(s.ctx)
	r.cancel = cancel
	s.wg.Add(1)
	go s.runRobot(loopCtx, r.engine)
}

// pathSegmentEvery is the tick interval between path segment pushes to
// interested sinks.
const pathSegmentEvery = 20

// runRobot drives one robot at the fixed tick rate. Removal cancels the
// context and the loop exits at the next tick boundary.
func (s *Simulator) runRobot(ctx context.Context, engine *Engine) {
	defer s.wg.Done()
	log := logging.FromContext(ctx)
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	dt := s.tickInterval.Seconds()

	segWriter, _ := s.writer.(pathSegmentWriter)
	ticks := 0
	for {
		select {
		case <-ticker.C:
			row := engine.Tick(dt)
			if s.writer != nil {
				if err := s.writer.Write(row); err != nil {
					log.Error("telemetry write failed", "robot_id", row.RobotID, "err", err)
				}
			}
			ticks++
			if segWriter != nil && ticks%pathSegmentEvery == 0 {
				if points := engine.Path(pathSegmentEvery); len(points) > 0 {
					_ = segWriter.WritePathSegment(engine.ID(), points)
				}
			}
			s.drainEvents()
		case <-ctx.Done():
			return
		}
	}
}

// drainEvents forwards freshly appended events to the event writer. The
// cursor tracks the ring's append sequence, not a position in the bounded
// view, so forwarding keeps working after the ring wraps.
func (s *Simulator) drainEvents() {
	if s.eventWriter == nil {
		return
	}
	s.eventsMu.Lock()
	fresh, cursor := s.events.Since(s.eventCursor)
	s.eventCursor = cursor
	s.eventsMu.Unlock()
	for _, entry := range fresh {
		_ = s.eventWriter.WriteEvent(entry)
	}
}

// AddRobot registers a new robot and, if the simulator is running, starts
// its tick loop. Returns the assigned robot ID.
func (s *Simulator) AddRobot(group config.RobotGroup) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := generateRobotID(group.Name, len(s.order))
	s.addRobotLocked(id, group)
	if s.started {
		s.startLoopLocked(id)
	}
	s.events.Append(telemetry.EventLogEntry{
		Level: telemetry.LevelInfo, Category: "lifecycle", RobotID: id,
		Message: "robot added", Timestamp: time.Now().UTC(),
	})
	return id
}

func (s *Simulator) addRobotLocked(id string, group config.RobotGroup) {
	seed := s.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed + int64(len(s.order))))
	state := telemetry.RobotState{
		ID:    id,
		Model: group.Model,
		Pose: telemetry.Pose{
			X:       group.StartPose.X,
			Y:       group.StartPose.Y,
			Heading: group.StartPose.Heading,
		},
		Mode:    telemetry.ModeStandby,
		Battery: telemetry.Battery{Level: 100, Health: 100},
	}
	engine := NewEngine(s.fleetID, state, s.cfg.Tuning, s.cfg.PathLogCapacity, s.events, rng)
	s.robots[id] = &robotRunner{engine: engine}
	s.order = append(s.order, id)
}

// RemoveRobot stops a robot's tick loop at the next boundary and releases
// its buffers.
func (s *Simulator) RemoveRobot(id string) bool {
	s.mu.Lock()
	r, ok := s.robots[id]
	if ok {
		delete(s.robots, id)
		for i, rid := range s.order {
			if rid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	if r.cancel != nil {
		r.cancel()
	}
	s.events.Append(telemetry.EventLogEntry{
		Level: telemetry.LevelInfo, Category: "lifecycle", RobotID: id,
		Message: "robot removed", Timestamp: time.Now().UTC(),
	})
	return true
}

// RobotIDs returns robot identifiers in registration order.
func (s *Simulator) RobotIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *Simulator) engine(id string) (*Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.robots[id]
	if !ok {
		return nil, false
	}
	return r.engine, true
}

// Snapshot returns a copy of one robot's state.
func (s *Simulator) Snapshot(id string) (telemetry.RobotState, bool) {
	e, ok := s.engine(id)
	if !ok {
		return telemetry.RobotState{}, false
	}
	return e.Snapshot(), true
}

// Snapshots returns state copies for all robots in registration order.
func (s *Simulator) Snapshots() []telemetry.RobotState {
	ids := s.RobotIDs()
	out := make([]telemetry.RobotState, 0, len(ids))
	for _, id := range ids {
		if snap, ok := s.Snapshot(id); ok {
			out = append(out, snap)
		}
	}
	return out
}

// TelemetrySnapshot returns the latest row per robot, for the query
// surface and for seeding new broadcast sessions.
func (s *Simulator) TelemetrySnapshot() []telemetry.TelemetryRow {
	now := time.Now()
	states := s.Snapshots()
	rows := make([]telemetry.TelemetryRow, 0, len(states))
	for i := range states {
		rows = append(rows, states[i].Row(s.fleetID, now))
	}
	return rows
}

// SubmitCommand routes a sanitized command to the robot's latest-command
// slot.
func (s *Simulator) SubmitCommand(robotID string, cmd command.Command) error {
	e, ok := s.engine(robotID)
	if !ok {
		return fmt.Errorf("submit command: %w", command.ErrUnknownRobot)
	}
	e.SubmitCommand(cmd)
	return nil
}

// EStopLookup exposes emergency-stop state for the command validator.
func (s *Simulator) EStopLookup(robotID string) (bool, bool) {
	e, ok := s.engine(robotID)
	if !ok {
		return false, false
	}
	return e.EStopActive(), true
}

// Path returns recorded path points for one robot.
func (s *Simulator) Path(robotID string, limit int) ([]telemetry.PathPoint, bool) {
	e, ok := s.engine(robotID)
	if !ok {
		return nil, false
	}
	return e.Path(limit), true
}

// PathStats returns derived path statistics for one robot.
func (s *Simulator) PathStats(robotID string) (history.PathStats, bool) {
	e, ok := s.engine(robotID)
	if !ok {
		return history.PathStats{}, false
	}
	return e.PathStats(), true
}

// TickOnce advances every robot by dt seconds without the tick loops
// running. Intended for tests and for the replay tooling.
func (s *Simulator) TickOnce(dt float64) {
	for _, id := range s.RobotIDs() {
		if e, ok := s.engine(id); ok {
			e.Tick(dt)
		}
	}
	s.drainEvents()
}

// Reset clears one robot's path log and restores default state.
func (s *Simulator) Reset(robotID string) bool {
	e, ok := s.engine(robotID)
	if !ok {
		return false
	}
	e.Reset()
	return true
}

// FleetHealth summarizes health bands across the fleet.
type FleetHealth struct {
	Total    int `json:"total"`
	Healthy  int `json:"healthy"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
	Stopped  int `json:"stopped"`
}

// Health returns aggregated health information for the fleet.
func (s *Simulator) Health() FleetHealth {
	var h FleetHealth
	for _, state := range s.Snapshots() {
		h.Total++
		switch state.HealthBand() {
		case telemetry.BandHealthy:
			h.Healthy++
		case telemetry.BandCritical:
			h.Critical++
		default:
			h.Warning++
		}
		if state.Mode == telemetry.ModeStopped {
			h.Stopped++
		}
	}
	return h
}

func generateRobotID(groupName string, index int) string {
	// Include the index along with a short UUID to guarantee uniqueness.
	id := uuid.New().String()[:8]
	return fmt.Sprintf("%s-%d-%s", groupName, index, id)
}
