// Writer implementation printing colored telemetry to STDOUT
package sim

import (
	"fmt"
	"time"

	"robosim/internal/telemetry"
)

// StdoutWriter prints human-readable telemetry lines to STDOUT. Escape
// codes are dropped when stdout is not a terminal.
type StdoutWriter struct{}

func (w *StdoutWriter) Write(row telemetry.TelemetryRow) error {
	if !colorEnabled() {
		fmt.Printf("[%s] fleet=%s robot=%s x=%.2f y=%.2f hdg=%.1f v=%.2f w=%.2f mode=%s batt=%.1f health=%.1f(%s)",
			row.Timestamp.Format(time.RFC3339), row.FleetID, row.RobotID,
			row.X, row.Y, row.Heading, row.Linear, row.Angular,
			row.Mode, row.Battery, row.HealthScore, row.HealthBand)
		if row.EStop {
			fmt.Print(" ESTOP")
		}
		fmt.Println()
		return nil
	}
	fmt.Printf("%s[%s]%s %sfleet=%s%s %srobot=%s%s x=%.2f y=%.2f hdg=%.1f v=%.2f w=%.2f %smode=%s%s %sbatt=%.1f%s %shealth=%.1f(%s)%s",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		colorBlue, row.FleetID, colorReset,
		colorCyan, row.RobotID, colorReset,
		row.X, row.Y, row.Heading, row.Linear, row.Angular,
		colorMagenta, row.Mode, colorReset,
		colorGreen, row.Battery, colorReset,
		healthColor(row.HealthBand), row.HealthScore, row.HealthBand, colorReset)
	if row.EStop {
		fmt.Printf(" %sESTOP%s", colorRed, colorReset)
	}
	fmt.Println()
	return nil
}

// WriteBatch outputs multiple telemetry rows.
func (w *StdoutWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteEvent prints an event log entry to STDOUT.
func (w *StdoutWriter) WriteEvent(entry telemetry.EventLogEntry) error {
	if !colorEnabled() {
		fmt.Printf("[%s] %s cat=%s robot=%s %s\n",
			entry.Timestamp.Format(time.RFC3339), entry.Level, entry.Category, entry.RobotID, entry.Message)
		return nil
	}
	levelColor := colorGray
	switch entry.Level {
	case telemetry.LevelWarn:
		levelColor = colorYellow
	case telemetry.LevelError:
		levelColor = colorRed
	}
	fmt.Printf("%s[%s]%s %s%s%s %scat=%s%s %srobot=%s%s %s\n",
		colorGray, entry.Timestamp.Format(time.RFC3339), colorReset,
		levelColor, entry.Level, colorReset,
		colorBlue, entry.Category, colorReset,
		colorWhite(), entry.RobotID, colorReset,
		entry.Message)
	return nil
}

// WriteEvents prints multiple event log entries.
func (w *StdoutWriter) WriteEvents(entries []telemetry.EventLogEntry) error {
	for _, e := range entries {
		_ = w.WriteEvent(e)
	}
	return nil
}

func healthColor(band telemetry.HealthBand) string {
	switch band {
	case telemetry.BandCritical:
		return colorRed
	case telemetry.BandWarning:
		return colorYellow
	default:
		return colorGreen
	}
}
