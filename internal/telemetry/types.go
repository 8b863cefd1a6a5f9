// Robot state model and telemetry rows
package telemetry

import (
	"os"
	"time"
)

// Mode is the high-level locomotion mode of a robot.
type Mode string

// Robot mode constants.
const (
	ModeStandby  Mode = "standby"
	ModeSitting  Mode = "sitting"
	ModeStanding Mode = "standing"
	ModeWalking  Mode = "walking"
	ModeRunning  Mode = "running"
	ModeStopped  Mode = "stopped"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeStandby, ModeSitting, ModeStanding, ModeWalking, ModeRunning, ModeStopped:
		return true
	}
	return false
}

// Velocity envelope limits in m/s and rad/s.
const (
	MaxLinearVelocity  = 1.5
	MaxAngularVelocity = 2.0
)

// Pose holds planar position in meters and heading in degrees.
type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// Velocity holds commanded linear (m/s) and angular (rad/s) speed.
type Velocity struct {
	Linear  float64 `json:"linear"`
	Angular float64 `json:"angular"`
}

// Battery holds charge level and health, both percentages.
type Battery struct {
	Level    float64 `json:"level"`
	Health   float64 `json:"health"`
	Charging bool    `json:"charging"`
}

// Thermal holds simulated temperatures in degrees Celsius.
type Thermal struct {
	CPUTemp   float64 `json:"cpu_temp"`
	MotorTemp float64 `json:"motor_temp"`
}

// Resources holds simulated utilization percentages.
type Resources struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
	Disk   float64 `json:"disk"`
}

// JointStatus classifies a joint reading.
type JointStatus string

// Joint status constants.
const (
	JointOK      JointStatus = "OK"
	JointWarning JointStatus = "WARNING"
	JointError   JointStatus = "ERROR"
)

// Joint is one entry of the fixed 18-joint skeleton.
type Joint struct {
	Name     string      `json:"name"`
	DOF      int         `json:"degrees_of_freedom"`
	Position []float64   `json:"position"`
	Velocity float64     `json:"velocity"`
	Torque   float64     `json:"torque"`
	Status   JointStatus `json:"status"`
}

// HealthBand buckets the derived health score.
type HealthBand string

// Health band constants.
const (
	BandHealthy  HealthBand = "healthy"
	BandWarning  HealthBand = "warning"
	BandCritical HealthBand = "critical"
)

// BandFor maps a health score to its band (healthy >70, critical <30).
func BandFor(score float64) HealthBand {
	switch {
	case score > 70:
		return BandHealthy
	case score < 30:
		return BandCritical
	default:
		return BandWarning
	}
}

// RobotState is the authoritative per-robot state. It is owned and mutated
// only by that robot's simulation engine tick; everyone else works on
// copies returned by Snapshot.
type RobotState struct {
	ID                  string    `json:"id"`
	Model               string    `json:"model"`
	Pose                Pose      `json:"pose"`
	Velocity            Velocity  `json:"velocity"`
	Mode                Mode      `json:"mode"`
	Battery             Battery   `json:"battery"`
	Thermal             Thermal   `json:"thermal"`
	Resources           Resources `json:"resources"`
	Joints              []Joint   `json:"joints"`
	EmergencyStopActive bool      `json:"emergency_stop_active"`
	HealthScore         float64   `json:"health_score"`
	CycleCount          int       `json:"cycle_count"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// HealthBand returns the band for the current health score.
func (s *RobotState) HealthBand() HealthBand {
	return BandFor(s.HealthScore)
}

// Snapshot returns a deep copy safe to hand to readers outside the tick.
func (s *RobotState) Snapshot() RobotState {
	cp := *s
	cp.Joints = make([]Joint, len(s.Joints))
	for i, j := range s.Joints {
		cp.Joints[i] = j
		cp.Joints[i].Position = append([]float64(nil), j.Position...)
	}
	return cp
}

// PathPoint is one recorded position sample of a moving robot.
type PathPoint struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Heading   float64   `json:"heading"`
	Timestamp time.Time `json:"ts"`
}

// Event severity levels.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// EventLogEntry is an append-only record of something noteworthy.
type EventLogEntry struct {
	Level     string    `json:"level"`
	Category  string    `json:"category"`
	RobotID   string    `json:"robot_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"ts"`
}

// TelemetryRow is one per-tick record, shaped for the GreptimeDB ingester.
type TelemetryRow struct {
	FleetID     string     `json:"fleet_id"` // TAG
	RobotID     string     `json:"robot_id"` // TAG
	X           float64    `json:"x"`
	Y           float64    `json:"y"`
	Heading     float64    `json:"heading"`
	Linear      float64    `json:"linear"`
	Angular     float64    `json:"angular"`
	Mode        Mode       `json:"mode"`
	Battery     float64    `json:"battery"`
	HealthScore float64    `json:"health_score"`
	HealthBand  HealthBand `json:"health_band"`
	CPUTemp     float64    `json:"cpu_temp"`
	MotorTemp   float64    `json:"motor_temp"`
	EStop       bool       `json:"estop"`
	Timestamp   time.Time  `json:"ts"` // TIME INDEX
}

// TelemetryTableName holds the table name used when writing to GreptimeDB.
// It defaults to "robot_telemetry" but can be overridden via the
// GREPTIMEDB_TABLE environment variable.
var TelemetryTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "robot_telemetry"
}()

func (TelemetryRow) TableName() string {
	return TelemetryTableName
}

// Row flattens the state into a telemetry row for writers and broadcast.
func (s *RobotState) Row(fleetID string, now time.Time) TelemetryRow {
	return TelemetryRow{
		FleetID:     fleetID,
		RobotID:     s.ID,
		X:           s.Pose.X,
		Y:           s.Pose.Y,
		Heading:     s.Pose.Heading,
		Linear:      s.Velocity.Linear,
		Angular:     s.Velocity.Angular,
		Mode:        s.Mode,
		Battery:     s.Battery.Level,
		HealthScore: s.HealthScore,
		HealthBand:  s.HealthBand(),
		CPUTemp:     s.Thermal.CPUTemp,
		MotorTemp:   s.Thermal.MotorTemp,
		EStop:       s.EmergencyStopActive,
		Timestamp:   now.UTC(),
	}
}
