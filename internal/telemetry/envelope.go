package telemetry

import (
	"encoding/json"
	"fmt"
	"time"
)

// Outbound message types published per tick or on events.
const (
	MsgTelemetry        = "telemetry"
	MsgPose             = "pose"
	MsgBattery          = "battery"
	MsgHealth           = "health"
	MsgJoints           = "joints"
	MsgPathSegment      = "path_segment"
	MsgMaintenanceAlert = "maintenance_alert"
	MsgUpdateProgress   = "update_progress"
	MsgLogEvent         = "log_event"
)

// Topic categories used in robot/<category>/<robot_id> names.
const (
	CategoryStatus  = "status"
	CategoryBattery = "battery"
	CategoryHealth  = "health"
	CategoryPose    = "pose"
	CategoryJoints  = "joints"
	CategoryCmdVel  = "cmd_vel"
	CategoryMode    = "mode"
)

// Topic builds a broker topic following the robot/<category>/<robot_id>
// convention.
func Topic(category, robotID string) string {
	return fmt.Sprintf("robot/%s/%s", category, robotID)
}

// Envelope is the outbound message wrapper for telemetry and events.
type Envelope struct {
	Type      string          `json:"type"`
	RobotID   string          `json:"robot_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope wraps a payload into an outbound envelope.
func NewEnvelope(msgType, robotID string, payload any, now time.Time) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return Envelope{
		Type:      msgType,
		RobotID:   robotID,
		Data:      data,
		Timestamp: now.UTC(),
	}, nil
}

// Encode marshals the envelope to JSON.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// CommandKind enumerates the known inbound command kinds, plus an explicit
// Unknown variant for anything else on the wire.
type CommandKind string

// Inbound command kinds.
const (
	CmdMove          CommandKind = "move"
	CmdSetMode       CommandKind = "set_mode"
	CmdEmergencyStop CommandKind = "emergency_stop"
	CmdClearStop     CommandKind = "clear_stop"
	CmdNavigateTo    CommandKind = "navigate_to"
	CmdUnknown       CommandKind = "unknown"
)

// CommandMessage is the inbound command envelope. Unrecognized actions
// decode to CmdUnknown rather than failing dispatch; the validator rejects
// them explicitly.
type CommandMessage struct {
	Type      string      `json:"type"`
	RobotID   string      `json:"robot_id"`
	Action    CommandKind `json:"action"`
	Mode      Mode        `json:"mode,omitempty"`
	Linear    float64     `json:"linear,omitempty"`
	Angular   float64     `json:"angular,omitempty"`
	TargetX   float64     `json:"target_x,omitempty"`
	TargetY   float64     `json:"target_y,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// DecodeCommand parses an inbound command payload. Only malformed JSON is
// an error; unknown actions are normalized to CmdUnknown.
func DecodeCommand(payload []byte) (CommandMessage, error) {
	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return CommandMessage{}, fmt.Errorf("decode command: %w", err)
	}
	switch msg.Action {
	case CmdMove, CmdSetMode, CmdEmergencyStop, CmdClearStop, CmdNavigateTo:
	default:
		msg.Action = CmdUnknown
	}
	return msg, nil
}
