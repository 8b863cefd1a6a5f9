package sim

import (
	"os"

	"golang.org/x/term"
)

// ANSI palette shared by the stdout and TUI writers.
const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
	bgRed        = "\x1b[41m"
	bgYellow     = "\x1b[43m"
	bgGreen      = "\x1b[42m"
)

// robotPalette assigns stable colors to robots as they first appear.
var robotPalette = []string{
	"\x1b[94m", // bright blue
	"\x1b[92m", // bright green
	"\x1b[96m", // bright cyan
	"\x1b[95m", // bright magenta
	"\x1b[93m", // bright yellow
	"\x1b[91m", // bright red
}

// colorWhite picks a readable foreground for dark and light terminals.
func colorWhite() string {
	if os.Getenv("TUI_LIGHT_BG") != "" {
		return "\x1b[30m"
	}
	return "\x1b[97m"
}

// colorEnabled reports whether escape codes should be emitted at all.
// Piped output (and NO_COLOR) gets plain text.
func colorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
