package sim

import (
	"context"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"robosim/internal/telemetry"
)

type mockGreptimeClient struct {
	table *table.Table
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	if len(tables) > 0 {
		m.table = tables[0]
	}
	return &gpb.GreptimeResponse{}, nil
}

func TestGreptimeWriterBatch(t *testing.T) {
	ts := time.Unix(0, 0).UTC()
	rows := []telemetry.TelemetryRow{
		{
			FleetID:     "f1",
			RobotID:     "r1",
			X:           1.5,
			Y:           -0.5,
			Mode:        telemetry.ModeWalking,
			Battery:     87.5,
			HealthScore: 92,
			HealthBand:  telemetry.BandHealthy,
			Timestamp:   ts,
		},
		{
			FleetID:   "f1",
			RobotID:   "r2",
			Mode:      telemetry.ModeStopped,
			EStop:     true,
			Timestamp: ts,
		},
	}

	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, table: telemetry.TelemetryTableName}

	if err := w.WriteBatch(rows); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}
	if got := len(m.table.GetRows().Rows); got != 2 {
		t.Fatalf("rows = %d, want 2", got)
	}
	if got := m.table.GetRows().Rows[0].Values[1].GetStringValue(); got != "r1" {
		t.Fatalf("robot_id = %s, want r1", got)
	}
}

func TestGreptimeWriterEmptyBatch(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, table: telemetry.TelemetryTableName}
	if err := w.WriteBatch(nil); err != nil {
		t.Fatalf("WriteBatch(nil): %v", err)
	}
	if m.table != nil {
		t.Fatal("expected no write for empty batch")
	}
}
