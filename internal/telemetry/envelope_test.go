package telemetry

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTopic(t *testing.T) {
	if got := Topic(CategoryBattery, "r1"); got != "robot/battery/r1" {
		t.Fatalf("Topic = %s", got)
	}
}

func TestNewEnvelopeRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	env, err := NewEnvelope(MsgBattery, "r1", Battery{Level: 50, Health: 90}, now)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != MsgBattery || decoded.RobotID != "r1" {
		t.Fatalf("envelope = %+v", decoded)
	}
	var batt Battery
	if err := json.Unmarshal(decoded.Data, &batt); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if batt.Level != 50 {
		t.Fatalf("battery level = %v, want 50", batt.Level)
	}
}

func TestNewEnvelopeRejectsUnencodablePayload(t *testing.T) {
	if _, err := NewEnvelope(MsgTelemetry, "r1", make(chan int), time.Now()); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestDecodeCommand(t *testing.T) {
	payload := []byte(`{"type":"command","robot_id":"r1","action":"move","linear":0.8,"angular":-0.2}`)
	msg, err := DecodeCommand(payload)
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}
	if msg.Action != CmdMove || msg.Linear != 0.8 || msg.Angular != -0.2 {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestDecodeCommandNormalizesUnknownAction(t *testing.T) {
	msg, err := DecodeCommand([]byte(`{"action":"self_destruct"}`))
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}
	if msg.Action != CmdUnknown {
		t.Fatalf("action = %s, want unknown", msg.Action)
	}
}

func TestDecodeCommandMalformed(t *testing.T) {
	if _, err := DecodeCommand([]byte(`{"action":`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
