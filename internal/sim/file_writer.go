package sim

import (
	"encoding/json"
	"os"

	"robosim/internal/telemetry"
)

// FileWriter writes telemetry and event data to JSONL files.
type FileWriter struct {
	teleFile  *os.File
	eventFile *os.File
	teleEnc   *json.Encoder
	eventEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. eventPath may be empty to skip the
// event log.
func NewFileWriter(telemetryPath, eventPath string) (*FileWriter, error) {
	tf, err := os.Create(telemetryPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{teleFile: tf, teleEnc: json.NewEncoder(tf)}
	if eventPath != "" {
		ef, err := os.Create(eventPath)
		if err != nil {
			tf.Close()
			return nil, err
		}
		fw.eventFile = ef
		fw.eventEnc = json.NewEncoder(ef)
	}
	return fw, nil
}

// Write logs a single telemetry row.
func (f *FileWriter) Write(row telemetry.TelemetryRow) error {
	return f.teleEnc.Encode(row)
}

// WriteBatch logs multiple telemetry rows.
func (f *FileWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, r := range rows {
		if err := f.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteEvent logs a single event entry, if enabled.
func (f *FileWriter) WriteEvent(entry telemetry.EventLogEntry) error {
	if f.eventEnc == nil {
		return nil
	}
	return f.eventEnc.Encode(entry)
}

// WriteEvents logs multiple event entries.
func (f *FileWriter) WriteEvents(entries []telemetry.EventLogEntry) error {
	for _, e := range entries {
		if err := f.WriteEvent(e); err != nil {
			return err
		}
	}
	return nil
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	if f.teleFile != nil {
		if e := f.teleFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	if f.eventFile != nil {
		if e := f.eventFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
