package sim

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"robosim/internal/telemetry"
)

type collectWriter struct{ rows []telemetry.TelemetryRow }

func (c *collectWriter) Write(r telemetry.TelemetryRow) error {
	c.rows = append(c.rows, r)
	return nil
}

func TestReplayLog(t *testing.T) {
	rows := []telemetry.TelemetryRow{
		{FleetID: "f1", RobotID: "r1", Timestamp: time.Unix(0, 0)},
		{FleetID: "f1", RobotID: "r2", Timestamp: time.Unix(1, 0)},
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	cw := &collectWriter{}
	if err := ReplayLog(&buf, cw, 0); err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if len(cw.rows) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(cw.rows))
	}
	for i, r := range rows {
		if cw.rows[i].RobotID != r.RobotID {
			t.Fatalf("row %d mismatch: %+v vs %+v", i, cw.rows[i], r)
		}
	}
}

func TestReplayLogPropagatesMalformedInput(t *testing.T) {
	cw := &collectWriter{}
	if err := ReplayLog(bytes.NewBufferString("{not json"), cw, 0); err == nil {
		t.Fatal("expected decode error")
	}
}
