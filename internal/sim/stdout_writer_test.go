package sim

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"robosim/internal/telemetry"
)

func TestJSONStdoutWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &JSONStdoutWriter{out: buf}
	row := telemetry.TelemetryRow{FleetID: "f1", RobotID: "r1", Timestamp: time.Unix(0, 0)}
	if err := w.Write(row); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	out := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(out, "{") {
		t.Fatalf("expected JSON output, got %q", out)
	}
	if !strings.Contains(out, `"robot_id":"r1"`) {
		t.Fatalf("robot id missing from output: %q", out)
	}
}

func TestJSONStdoutWriterEvents(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &JSONStdoutWriter{out: buf}
	entries := []telemetry.EventLogEntry{
		{Level: telemetry.LevelInfo, Category: "mode", RobotID: "r1", Message: "mode standby -> walking"},
		{Level: telemetry.LevelWarn, Category: "command", RobotID: "r1", Message: "rejected move: rate limited"},
	}
	if err := w.WriteEvents(entries); err != nil {
		t.Fatalf("write events failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
}
