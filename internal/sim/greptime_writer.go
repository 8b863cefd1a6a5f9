package sim

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"

	"robosim/internal/telemetry"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
)

// ingestClient is the subset of the ingester client the writer uses.
type ingestClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes telemetry to GreptimeDB via the ingester client
type GreptimeDBWriter struct {
	client ingestClient
	table  string
}

// defaultGreptimePort is the gRPC ingest port.
const defaultGreptimePort = 4001

// NewGreptimeDBWriter connects to the GreptimeDB gRPC endpoint. The table
// is created automatically on the first write.
func NewGreptimeDBWriter(endpoint, database string) (*GreptimeDBWriter, error) {
	host := endpoint
	port := defaultGreptimePort
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		host = h
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}

	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to greptimedb %s: %w", endpoint, err)
	}

	return &GreptimeDBWriter{
		client: client,
		table:  telemetry.TelemetryTableName,
	}, nil
}

// Write inserts a single telemetry row.
func (w *GreptimeDBWriter) Write(row telemetry.TelemetryRow) error {
	return w.WriteBatch([]telemetry.TelemetryRow{row})
}

// WriteBatch inserts multiple telemetry rows.
func (w *GreptimeDBWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	if len(rows) == 0 {
		return nil
	}

	tbl, err := table.New(w.table)
	if err != nil {
		return err
	}
	// Column declaration order matches the AddRow value order below.
	tbl.AddTagColumn("fleet_id", types.STRING)
	tbl.AddTagColumn("robot_id", types.STRING)
	tbl.AddFieldColumn("x", types.FLOAT64)
	tbl.AddFieldColumn("y", types.FLOAT64)
	tbl.AddFieldColumn("heading", types.FLOAT64)
	tbl.AddFieldColumn("linear", types.FLOAT64)
	tbl.AddFieldColumn("angular", types.FLOAT64)
	tbl.AddFieldColumn("mode", types.STRING)
	tbl.AddFieldColumn("battery", types.FLOAT64)
	tbl.AddFieldColumn("health_score", types.FLOAT64)
	tbl.AddFieldColumn("health_band", types.STRING)
	tbl.AddFieldColumn("cpu_temp", types.FLOAT64)
	tbl.AddFieldColumn("motor_temp", types.FLOAT64)
	tbl.AddFieldColumn("estop", types.BOOLEAN)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rows {
		if err := tbl.AddRow(
			r.FleetID, r.RobotID,
			r.X, r.Y, r.Heading, r.Linear, r.Angular,
			string(r.Mode), r.Battery, r.HealthScore, string(r.HealthBand),
			r.CPUTemp, r.MotorTemp, r.EStop,
			r.Timestamp,
		); err != nil {
			return err
		}
	}

	resp, err := w.client.Write(context.Background(), tbl)
	if err != nil {
		log.Printf("[GreptimeDBWriter] Write failed: %v", err)
		return err
	}

	log.Printf("[GreptimeDBWriter] wrote %d rows (affected %d)", len(rows), resp.GetAffectedRows().GetValue())
	return nil
}
