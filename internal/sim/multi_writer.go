package sim

import (
	"robosim/internal/telemetry"
)

// MultiWriter fan-outs telemetry rows and events to multiple writers.
type MultiWriter struct {
	telewriters  []TelemetryWriter
	eventwriters []EventWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(tws []TelemetryWriter, ews []EventWriter) *MultiWriter {
	return &MultiWriter{telewriters: tws, eventwriters: ews}
}

// Write sends a telemetry row to all writers.
func (mw *MultiWriter) Write(row telemetry.TelemetryRow) error {
	for _, w := range mw.telewriters {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteBatch sends multiple telemetry rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, w := range mw.telewriters {
		if bw, ok := w.(batchWriter); ok {
			if err := bw.WriteBatch(rows); err != nil {
				return err
			}
			continue
		}
		for _, r := range rows {
			if err := w.Write(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WritePathSegment forwards a path segment to writers that care about it.
func (mw *MultiWriter) WritePathSegment(robotID string, points []telemetry.PathPoint) error {
	for _, w := range mw.telewriters {
		if pw, ok := w.(pathSegmentWriter); ok {
			if err := pw.WritePathSegment(robotID, points); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteEvent sends an event entry to all event writers.
func (mw *MultiWriter) WriteEvent(entry telemetry.EventLogEntry) error {
	for _, w := range mw.eventwriters {
		if err := w.WriteEvent(entry); err != nil {
			return err
		}
	}
	return nil
}

// WriteEvents sends multiple events to all event writers, using batch if supported.
func (mw *MultiWriter) WriteEvents(entries []telemetry.EventLogEntry) error {
	for _, w := range mw.eventwriters {
		if bw, ok := w.(batchEventWriter); ok {
			if err := bw.WriteEvents(entries); err != nil {
				return err
			}
			continue
		}
		for _, e := range entries {
			if err := w.WriteEvent(e); err != nil {
				return err
			}
		}
	}
	return nil
}
