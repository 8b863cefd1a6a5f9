package sim

import "robosim/internal/telemetry"

// TelemetryWriter is an interface to support different telemetry sinks.
type TelemetryWriter interface {
	Write(telemetry.TelemetryRow) error
}

// EventWriter handles event log entries (mode changes, rejections,
// maintenance alerts).
type EventWriter interface {
	WriteEvent(telemetry.EventLogEntry) error
}

// Optional: writers can also support batch mode
type batchWriter interface {
	WriteBatch([]telemetry.TelemetryRow) error
}

// Optional: event writers may support batch mode
type batchEventWriter interface {
	WriteEvents([]telemetry.EventLogEntry) error
}

// Optional: sinks interested in recent path history get a segment of the
// path log every pathSegmentEvery ticks.
type pathSegmentWriter interface {
	WritePathSegment(robotID string, points []telemetry.PathPoint) error
}
