package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"robosim/internal/telemetry"
)

// JSONStdoutWriter prints telemetry and events as JSON to STDOUT.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// Write outputs a telemetry row in JSON format.
func (w *JSONStdoutWriter) Write(row telemetry.TelemetryRow) error {
	data, _ := json.Marshal(row)
	fmt.Fprintln(w.out, string(data))
	return nil
}

// WriteBatch outputs multiple telemetry rows in JSON format.
func (w *JSONStdoutWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteEvent outputs an event log entry in JSON format.
func (w *JSONStdoutWriter) WriteEvent(entry telemetry.EventLogEntry) error {
	data, _ := json.Marshal(entry)
	fmt.Fprintln(w.out, string(data))
	return nil
}

// WriteEvents outputs multiple event log entries in JSON format.
func (w *JSONStdoutWriter) WriteEvents(entries []telemetry.EventLogEntry) error {
	for _, e := range entries {
		_ = w.WriteEvent(e)
	}
	return nil
}
