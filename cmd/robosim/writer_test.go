package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"robosim/internal/sim"
	"robosim/internal/telemetry"
)

func TestNewWritersPrintOnly(t *testing.T) {
	tw, ew, cleanup, err := newWriters(true, "")
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	cleanup()
	if _, ok := tw.(*sim.JSONStdoutWriter); !ok {
		t.Fatalf("expected *sim.JSONStdoutWriter, got %T", tw)
	}
	if _, ok := ew.(*sim.JSONStdoutWriter); !ok {
		t.Fatalf("expected *sim.JSONStdoutWriter, got %T", ew)
	}
}

func TestNewWritersGreptimeFallback(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	tw, _, cleanup, err := newWriters(false, "")
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	cleanup()
	if _, ok := tw.(*sim.JSONStdoutWriter); !ok {
		t.Fatalf("expected *sim.JSONStdoutWriter, got %T", tw)
	}
}

func TestNewWritersLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telemetry.log")
	tw, ew, cleanup, err := newWriters(true, path)
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	defer cleanup()
	if _, ok := tw.(*sim.MultiWriter); !ok {
		t.Fatalf("expected *sim.MultiWriter, got %T", tw)
	}
	row := telemetry.TelemetryRow{FleetID: "f1", RobotID: "r1", Timestamp: time.Now()}
	if err := tw.Write(row); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	entry := telemetry.EventLogEntry{Level: telemetry.LevelInfo, Category: "lifecycle", RobotID: "r1", Message: "robot added", Timestamp: time.Now()}
	if err := ew.WriteEvent(entry); err != nil {
		t.Fatalf("write event failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected log file to be non-empty")
	}
	eventInfo, err := os.Stat(path + ".events")
	if err != nil {
		t.Fatalf("stat events failed: %v", err)
	}
	if eventInfo.Size() == 0 {
		t.Fatalf("expected event log file to be non-empty")
	}
}
