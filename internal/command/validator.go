// Command sanitization, clamping, and rate limiting
package command

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"robosim/internal/history"
	"robosim/internal/telemetry"
)

// Rejection reasons surfaced synchronously to the command origin.
var (
	ErrUnknownCommand         = errors.New("unknown command")
	ErrBlockedByEmergencyStop = errors.New("blocked by emergency stop")
	ErrRateLimited            = errors.New("rate limited")
	ErrUnknownRobot           = errors.New("unknown robot")
)

// Command is a sanitized command ready for the simulation engine.
type Command struct {
	Kind     telemetry.CommandKind
	Linear   float64
	Angular  float64
	Mode     telemetry.Mode
	TargetX  float64
	TargetY  float64
	IssuedAt time.Time
}

// EStopFunc reports whether the robot exists and has its emergency stop
// engaged. The validator reads this from a snapshot, never from live state.
type EStopFunc func(robotID string) (active bool, ok bool)

// Validator sanitizes inbound commands before they reach a robot's engine.
type Validator struct {
	mu     sync.Mutex
	window time.Duration
	burst  int
	now    func() time.Time
	estop  EStopFunc
	events *history.Ring[telemetry.EventLogEntry]
	gates  map[string]*gate
}

// gate tracks the rate-limit window for one robot.
type gate struct {
	windowStart time.Time
	count       int
}

// NewValidator creates a validator. window bounds how often non-critical
// commands are accepted per robot; burst caps supersessions inside one
// window before commands are rejected outright.
func NewValidator(window time.Duration, burst int, estop EStopFunc, events *history.Ring[telemetry.EventLogEntry]) *Validator {
	if window <= 0 {
		window = 100 * time.Millisecond
	}
	if burst <= 0 {
		burst = 20
	}
	return &Validator{
		window: window,
		burst:  burst,
		now:    time.Now,
		estop:  estop,
		events: events,
		gates:  make(map[string]*gate),
	}
}

// SetNow overrides the clock, for tests.
func (v *Validator) SetNow(now func() time.Time) {
	v.now = now
}

// Validate sanitizes one inbound command for the given robot. Out-of-range
// velocities are clamped, never rejected. emergency_stop bypasses both the
// rate limiter and the stop lock; clear_stop bypasses the stop lock only.
func (v *Validator) Validate(robotID string, msg telemetry.CommandMessage) (Command, error) {
	now := v.now()

	active, ok := v.estop(robotID)
	if !ok {
		return Command{}, v.reject(robotID, msg.Action, ErrUnknownRobot)
	}

	switch msg.Action {
	case telemetry.CmdEmergencyStop:
		return Command{Kind: telemetry.CmdEmergencyStop, IssuedAt: now}, nil
	case telemetry.CmdClearStop:
		return Command{Kind: telemetry.CmdClearStop, IssuedAt: now}, nil
	case telemetry.CmdMove, telemetry.CmdSetMode, telemetry.CmdNavigateTo:
	default:
		return Command{}, v.reject(robotID, msg.Action, ErrUnknownCommand)
	}

	if active {
		return Command{}, v.reject(robotID, msg.Action, ErrBlockedByEmergencyStop)
	}
	if err := v.admit(robotID, now); err != nil {
		return Command{}, v.reject(robotID, msg.Action, err)
	}

	cmd := Command{Kind: msg.Action, IssuedAt: now}
	switch msg.Action {
	case telemetry.CmdMove:
		cmd.Linear = clamp(msg.Linear, -telemetry.MaxLinearVelocity, telemetry.MaxLinearVelocity)
		cmd.Angular = clamp(msg.Angular, -telemetry.MaxAngularVelocity, telemetry.MaxAngularVelocity)
	case telemetry.CmdSetMode:
		if !msg.Mode.Valid() || msg.Mode == telemetry.ModeStopped {
			return Command{}, v.reject(robotID, msg.Action, ErrUnknownCommand)
		}
		cmd.Mode = msg.Mode
	case telemetry.CmdNavigateTo:
		cmd.TargetX = msg.TargetX
		cmd.TargetY = msg.TargetY
	}
	return cmd, nil
}

// admit applies the per-robot rate window. Commands inside the window
// supersede each other via the engine's latest-command slot; only a burst
// beyond the cap is rejected.
func (v *Validator) admit(robotID string, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	g, ok := v.gates[robotID]
	if !ok {
		g = &gate{}
		v.gates[robotID] = g
	}
	if now.Sub(g.windowStart) >= v.window {
		g.windowStart = now
		g.count = 1
		return nil
	}
	g.count++
	if g.count > v.burst {
		return ErrRateLimited
	}
	return nil
}

// Forget drops rate-limit state for a removed robot.
func (v *Validator) Forget(robotID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.gates, robotID)
}

func (v *Validator) reject(robotID string, kind telemetry.CommandKind, reason error) error {
	if v.events != nil {
		v.events.Append(telemetry.EventLogEntry{
			Level:     telemetry.LevelWarn,
			Category:  "command",
			RobotID:   robotID,
			Message:   fmt.Sprintf("rejected %s: %v", kind, reason),
			Timestamp: v.now().UTC(),
		})
	}
	return reason
}

func clamp(val, lo, hi float64) float64 {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
