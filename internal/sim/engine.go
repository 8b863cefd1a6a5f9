// Per-robot simulation engine advancing state once per tick
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"robosim/internal/command"
	"robosim/internal/config"
	"robosim/internal/history"
	"robosim/internal/telemetry"
)

// Joint alert thresholds. Elevated-but-safe readings map to WARNING,
// anything beyond to ERROR.
const (
	jointTorqueWarn = 25.0
	jointTorqueErr  = 35.0
	jointVelWarn    = 6.0
	jointVelErr     = 10.0
)

// navArriveRadius is the distance in meters at which a navigation target
// counts as reached.
const navArriveRadius = 0.15

// Engine owns one robot's state and is its single writer. All mutation
// happens inside Tick; readers get copies via Snapshot.
type Engine struct {
	mu      sync.Mutex
	state   telemetry.RobotState
	fleetID string
	tun     config.Tuning
	rand    *rand.Rand
	now     func() time.Time

	// Latest-command slot: inbound commands land here (last-write-wins)
	// and are consumed at the start of the next tick.
	cmdMu   sync.Mutex
	pending *command.Command

	lastCommandAt time.Time
	navTarget     *telemetry.Pose
	gaitPhase     float64

	pathLog *history.Ring[telemetry.PathPoint]
	events  *history.Ring[telemetry.EventLogEntry]

	// Edge-trigger latches for maintenance thresholds.
	alertLatched map[string]bool

	startPose telemetry.Pose
}

// NewEngine creates an engine for one robot with a seedable random source.
func NewEngine(fleetID string, state telemetry.RobotState, tun config.Tuning, pathCapacity int, events *history.Ring[telemetry.EventLogEntry], rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if state.Mode == "" {
		state.Mode = telemetry.ModeStandby
	}
	if state.Battery.Level == 0 {
		state.Battery = telemetry.Battery{Level: 100, Health: 100}
	}
	if state.Battery.Health == 0 {
		state.Battery.Health = 100
	}
	if state.Thermal.CPUTemp == 0 {
		state.Thermal.CPUTemp = 38
	}
	if state.Thermal.MotorTemp == 0 {
		state.Thermal.MotorTemp = 30
	}
	if state.Resources.CPU == 0 {
		state.Resources = telemetry.Resources{CPU: 20, Memory: 30, Disk: 10}
	}
	if len(state.Joints) == 0 {
		state.Joints = telemetry.NewJoints()
	}
	return &Engine{
		state:        state,
		fleetID:      fleetID,
		tun:          tun,
		rand:         rng,
		now:          time.Now,
		pathLog:      history.NewRing[telemetry.PathPoint](pathCapacity),
		events:       events,
		alertLatched: make(map[string]bool),
		startPose:    state.Pose,
	}
}

// SetNow overrides the engine clock, for tests.
func (e *Engine) SetNow(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// ID returns the robot's stable identifier.
func (e *Engine) ID() string {
	return e.state.ID
}

// SubmitCommand stores a sanitized command into the latest-command slot.
// A newer command supersedes an unconsumed older one.
func (e *Engine) SubmitCommand(cmd command.Command) {
	e.cmdMu.Lock()
	e.pending = &cmd
	e.cmdMu.Unlock()
}

func (e *Engine) takeCommand() *command.Command {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()
	cmd := e.pending
	e.pending = nil
	return cmd
}

// EStopActive reports the emergency-stop flag.
func (e *Engine) EStopActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.EmergencyStopActive
}

// Snapshot returns a deep copy of the robot state.
func (e *Engine) Snapshot() telemetry.RobotState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Snapshot()
}

// Path returns up to limit recorded path points in insertion order.
// limit <= 0 returns everything.
func (e *Engine) Path(limit int) []telemetry.PathPoint {
	return e.pathLog.Tail(limit)
}

// PathStats computes derived statistics over the recorded path.
func (e *Engine) PathStats() history.PathStats {
	return history.ComputePathStats(e.pathLog.ReadAll())
}

// Reset clears the path log and re-initializes the state to defaults,
// keeping the robot's identity.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, model := e.state.ID, e.state.Model
	e.state = telemetry.RobotState{
		ID:        id,
		Model:     model,
		Pose:      e.startPose,
		Mode:      telemetry.ModeStandby,
		Battery:   telemetry.Battery{Level: 100, Health: 100},
		Thermal:   telemetry.Thermal{CPUTemp: 38, MotorTemp: 30},
		Resources: telemetry.Resources{CPU: 20, Memory: 30, Disk: 10},
		Joints:    telemetry.NewJoints(),
	}
	e.navTarget = nil
	e.gaitPhase = 0
	e.alertLatched = make(map[string]bool)
	e.pathLog.Clear()
	e.logEvent(telemetry.LevelInfo, "lifecycle", "robot reset to defaults")
}

// Tick advances the robot by dt seconds and returns the resulting
// telemetry row.
func (e *Engine) Tick(dt float64) telemetry.TelemetryRow {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if cmd := e.takeCommand(); cmd != nil {
		e.applyCommand(*cmd)
	}

	// Fail-safe: commanded velocity decays to zero when the operator
	// goes quiet.
	timeout := time.Duration(e.tun.CommandTimeoutMS) * time.Millisecond
	if e.navTarget == nil && !e.lastCommandAt.IsZero() && now.Sub(e.lastCommandAt) > timeout {
		e.state.Velocity = telemetry.Velocity{}
	}

	if e.state.EmergencyStopActive {
		e.state.Velocity = telemetry.Velocity{}
		e.navTarget = nil
	} else if e.navTarget != nil {
		e.steerToTarget()
	}

	e.integratePose(dt)
	e.updateBattery()
	e.updateThermal()
	e.updateResources()
	e.updateJoints(dt)
	e.updateHealthScore()
	e.checkMaintenance()

	if e.moving() {
		e.pathLog.Append(telemetry.PathPoint{
			X:         e.state.Pose.X,
			Y:         e.state.Pose.Y,
			Heading:   e.state.Pose.Heading,
			Timestamp: now.UTC(),
		})
	}

	e.state.CycleCount++
	e.state.UpdatedAt = now.UTC()
	return e.state.Row(e.fleetID, now)
}

// applyCommand mutates state for one consumed command. Callers hold e.mu.
func (e *Engine) applyCommand(cmd command.Command) {
	switch cmd.Kind {
	case telemetry.CmdEmergencyStop:
		if !e.state.EmergencyStopActive {
			e.logEvent(telemetry.LevelWarn, "safety", "emergency stop engaged")
		}
		e.state.EmergencyStopActive = true
		e.state.Velocity = telemetry.Velocity{}
		e.navTarget = nil
		e.transition(telemetry.ModeStopped)
	case telemetry.CmdClearStop:
		if e.state.EmergencyStopActive {
			e.logEvent(telemetry.LevelInfo, "safety", "emergency stop cleared")
		}
		e.state.EmergencyStopActive = false
		e.transition(telemetry.ModeStandby)
	case telemetry.CmdMove:
		if e.state.EmergencyStopActive {
			return
		}
		e.state.Velocity = telemetry.Velocity{Linear: cmd.Linear, Angular: cmd.Angular}
		e.navTarget = nil
		e.lastCommandAt = cmd.IssuedAt
	case telemetry.CmdSetMode:
		if e.state.EmergencyStopActive {
			return
		}
		e.transition(cmd.Mode)
		e.lastCommandAt = cmd.IssuedAt
	case telemetry.CmdNavigateTo:
		if e.state.EmergencyStopActive {
			return
		}
		e.navTarget = &telemetry.Pose{X: cmd.TargetX, Y: cmd.TargetY}
		e.lastCommandAt = cmd.IssuedAt
	}
}

// transition applies the mode state machine. Stopped is entered only via
// emergency stop and left only via clear_stop; every other commanded
// transition is unconditional.
func (e *Engine) transition(to telemetry.Mode) {
	from := e.state.Mode
	if from == to {
		return
	}
	if from == telemetry.ModeStopped && e.state.EmergencyStopActive {
		return
	}
	e.state.Mode = to
	e.logEvent(telemetry.LevelInfo, "mode", fmt.Sprintf("mode %s -> %s", from, to))
}

func (e *Engine) steerToTarget() {
	dx := e.navTarget.X - e.state.Pose.X
	dy := e.navTarget.Y - e.state.Pose.Y
	dist := math.Hypot(dx, dy)
	if dist <= navArriveRadius {
		e.navTarget = nil
		e.state.Velocity = telemetry.Velocity{}
		e.logEvent(telemetry.LevelInfo, "navigation", "navigation target reached")
		return
	}

	targetHeading := math.Atan2(dy, dx) * 180 / math.Pi
	diff := normalizeAngle(targetHeading - e.state.Pose.Heading)
	angular := clampF(diff*math.Pi/180, -telemetry.MaxAngularVelocity, telemetry.MaxAngularVelocity)
	linear := clampF(dist, 0, telemetry.MaxLinearVelocity)
	if math.Abs(diff) > 45 {
		// Turn in place before driving off-heading.
		linear = 0
	}
	e.state.Velocity = telemetry.Velocity{Linear: linear, Angular: angular}
}

// integratePose applies planar kinematics. Heading is stored in degrees;
// angular velocity is rad/s.
func (e *Engine) integratePose(dt float64) {
	headingRad := e.state.Pose.Heading * math.Pi / 180
	e.state.Pose.X += e.state.Velocity.Linear * math.Cos(headingRad) * dt
	e.state.Pose.Y += e.state.Velocity.Linear * math.Sin(headingRad) * dt
	e.state.Pose.Heading = math.Mod(e.state.Pose.Heading+e.state.Velocity.Angular*dt*180/math.Pi+360, 360)
}

func (e *Engine) active() bool {
	return e.state.Mode == telemetry.ModeWalking || e.state.Mode == telemetry.ModeRunning
}

func (e *Engine) moving() bool {
	return e.state.Velocity.Linear != 0 || e.state.Velocity.Angular != 0
}

// updateBattery drains within randomized bands to emulate sensor noise and
// recovers while sitting.
func (e *Engine) updateBattery() {
	b := &e.state.Battery
	b.Charging = e.state.Mode == telemetry.ModeSitting
	switch {
	case b.Charging:
		b.Level += 0.05 + e.rand.Float64()*0.10
	case e.active() && e.moving():
		b.Level -= 0.15 + e.rand.Float64()*0.20
		b.Health -= 0.0005
	default:
		b.Level -= 0.02 + e.rand.Float64()*0.06
	}
	b.Level = clampF(b.Level, 0, 100)
	b.Health = clampF(b.Health, 0, 100)
}

func (e *Engine) updateThermal() {
	t := &e.state.Thermal
	if e.active() {
		t.CPUTemp += (0.3 + e.rand.Float64()*0.9) * sign(e.rand)
		t.MotorTemp += e.rand.Float64() * 2
	} else {
		t.CPUTemp -= 0.2 + e.rand.Float64()*0.6
		t.MotorTemp -= 0.3 + e.rand.Float64()*0.7
	}
	t.CPUTemp = clampF(t.CPUTemp, 28, 95)
	t.MotorTemp = clampF(t.MotorTemp, 24, 90)
}

func (e *Engine) updateResources() {
	r := &e.state.Resources
	r.CPU += e.rand.Float64()*4 - 2
	r.Memory += e.rand.Float64()*2 - 0.9
	r.Disk += e.rand.Float64() * 0.01
	if e.active() {
		r.CPU += 1
	}
	r.CPU = clampF(r.CPU, 0, 100)
	r.Memory = clampF(r.Memory, 0, 100)
	r.Disk = clampF(r.Disk, 0, 100)
}

// updateJoints applies the mode's pose template to the skeleton. Walking
// and running oscillate the leg joints; sitting and standing are static
// offsets.
func (e *Engine) updateJoints(dt float64) {
	var freq, amp float64
	switch e.state.Mode {
	case telemetry.ModeWalking:
		freq, amp = 1.5, 0.35
	case telemetry.ModeRunning:
		freq, amp = 3.0, 0.6
	}
	e.gaitPhase += dt * freq * 2 * math.Pi

	for i := range e.state.Joints {
		j := &e.state.Joints[i]
		base := jointRestOffset(j.Name, e.state.Mode)
		if amp > 0 && isLegJoint(j.Name) {
			// Alternate leg pairs half a cycle apart.
			phase := e.gaitPhase
			if legPair(j.Name)%2 == 1 {
				phase += math.Pi
			}
			j.Position[0] = base + amp*math.Sin(phase)
			j.Velocity = amp * 2 * math.Pi * freq * math.Cos(phase)
			j.Torque = 8 + math.Abs(j.Velocity)*2.5 + e.rand.Float64()*2
		} else {
			j.Position[0] = base
			j.Velocity = 0
			j.Torque = 2 + e.rand.Float64()
		}
		j.Status = jointStatus(j.Velocity, j.Torque)
	}
}

func jointStatus(velocity, torque float64) telemetry.JointStatus {
	absVel := math.Abs(velocity)
	switch {
	case torque > jointTorqueErr || absVel > jointVelErr:
		return telemetry.JointError
	case torque > jointTorqueWarn || absVel > jointVelWarn:
		return telemetry.JointWarning
	default:
		return telemetry.JointOK
	}
}

// updateHealthScore recomputes the derived health score from the weighted
// battery/thermal/resource sub-scores.
func (e *Engine) updateHealthScore() {
	t := e.state.Thermal
	thermalScore := clampF(100-1.5*math.Max(0, t.CPUTemp-45)-1.0*math.Max(0, t.MotorTemp-50), 0, 100)
	r := e.state.Resources
	resourceScore := clampF(100-(0.4*r.CPU+0.4*r.Memory+0.2*r.Disk), 0, 100)
	score := e.tun.BatteryWeight*e.state.Battery.Health +
		e.tun.ThermalWeight*thermalScore +
		e.tun.ResourceWeight*resourceScore
	e.state.HealthScore = clampF(score, 0, 100)
}

// checkMaintenance emits one event per threshold crossing. Alerts are
// edge-triggered so a persistent condition does not flood the log.
func (e *Engine) checkMaintenance() {
	e.checkThreshold("battery_health", e.state.Battery.Health < e.tun.BatteryHealthWarn,
		telemetry.LevelWarn, fmt.Sprintf("battery health %.1f%% below %.0f%%", e.state.Battery.Health, e.tun.BatteryHealthWarn))
	e.checkThreshold("motor_temp", e.state.Thermal.MotorTemp > e.tun.MotorTempAlert,
		telemetry.LevelError, fmt.Sprintf("motor temperature %.1f°C above %.0f°C", e.state.Thermal.MotorTemp, e.tun.MotorTempAlert))
	e.checkThreshold("memory", e.state.Resources.Memory > e.tun.MemoryWarn,
		telemetry.LevelWarn, fmt.Sprintf("memory usage %.1f%% above %.0f%%", e.state.Resources.Memory, e.tun.MemoryWarn))
	e.checkThreshold("cycles", float64(e.state.CycleCount) > 0.8*float64(e.tun.CycleLimit),
		telemetry.LevelWarn, fmt.Sprintf("cycle count %d approaching limit %d", e.state.CycleCount, e.tun.CycleLimit))
}

func (e *Engine) checkThreshold(key string, crossed bool, level, msg string) {
	if crossed && !e.alertLatched[key] {
		e.alertLatched[key] = true
		e.logEvent(level, "maintenance", msg)
	} else if !crossed {
		e.alertLatched[key] = false
	}
}

func (e *Engine) logEvent(level, category, msg string) {
	if e.events == nil {
		return
	}
	e.events.Append(telemetry.EventLogEntry{
		Level:     level,
		Category:  category,
		RobotID:   e.state.ID,
		Message:   msg,
		Timestamp: e.now().UTC(),
	})
}

// jointRestOffset returns the static template position for a joint in the
// given mode.
func jointRestOffset(name string, mode telemetry.Mode) float64 {
	leg := isLegJoint(name)
	switch mode {
	case telemetry.ModeSitting:
		if leg {
			switch jointRole(name) {
			case "thigh":
				return 1.25
			case "calf":
				return -2.4
			}
		}
	case telemetry.ModeStanding, telemetry.ModeWalking, telemetry.ModeRunning:
		if leg {
			switch jointRole(name) {
			case "thigh":
				return 0.67
			case "calf":
				return -1.3
			}
		}
	}
	return 0
}

func isLegJoint(name string) bool {
	switch name[:3] {
	case "fl_", "fr_", "rl_", "rr_":
		return true
	}
	return false
}

// legPair returns 0 for the fl/rr diagonal and 1 for fr/rl.
func legPair(name string) int {
	switch name[:3] {
	case "fr_", "rl_":
		return 1
	}
	return 0
}

func jointRole(name string) string {
	return name[3:]
}

func normalizeAngle(deg float64) float64 {
	deg = math.Mod(deg+180, 360)
	if deg < 0 {
		deg += 360
	}
	return deg - 180
}

func sign(r *rand.Rand) float64 {
	if r.Float64() < 0.5 {
		return -1
	}
	return 1
}

func clampF(val, lo, hi float64) float64 {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
