package main

import (
	"os"

	"robosim/internal/sim"
)

// newWriters sets up the telemetry and event sinks based on flags and env
// vars. It returns the writers and a cleanup function to close any
// resources.
func newWriters(printOnly bool, logFile string) (sim.TelemetryWriter, sim.EventWriter, func(), error) {
	cleanup := func() {}

	writer, eventWriter, err := baseWriters(printOnly)
	if err != nil {
		return nil, nil, nil, err
	}
	if logFile == "" {
		return writer, eventWriter, cleanup, nil
	}

	fw, err := sim.NewFileWriter(logFile, logFile+".events")
	if err != nil {
		return nil, nil, nil, err
	}
	mw := sim.NewMultiWriter(
		[]sim.TelemetryWriter{writer, fw},
		[]sim.EventWriter{eventWriter, fw},
	)
	cleanup = func() { fw.Close() }
	return mw, mw, cleanup, nil
}

// baseWriters chooses the underlying sink: GreptimeDB when an endpoint is
// configured, JSON lines on stdout otherwise.
func baseWriters(printOnly bool) (sim.TelemetryWriter, sim.EventWriter, error) {
	if printOnly || os.Getenv("GREPTIMEDB_ENDPOINT") == "" {
		w := sim.NewJSONStdoutWriter()
		return w, w, nil
	}

	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	database := os.Getenv("GREPTIMEDB_DATABASE")
	if database == "" {
		database = "public"
	}
	w, err := sim.NewGreptimeDBWriter(endpoint, database)
	if err != nil {
		return nil, nil, err
	}
	// Events stay on stdout; only telemetry rows go to the database.
	return w, sim.NewJSONStdoutWriter(), nil
}

// newTelemetryWriter creates a telemetry-only writer for replay.
func newTelemetryWriter(printOnly bool) (sim.TelemetryWriter, error) {
	w, _, _, err := newWriters(printOnly, "")
	return w, err
}
