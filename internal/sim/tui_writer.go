package sim

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"robosim/internal/config"
	"robosim/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a telemetry log line for the viewport.
type logMsg struct{ line string }

// eventMsg carries an event log line and row data.
type eventMsg struct {
	line  string
	entry telemetry.EventLogEntry
}

// adminMsg reports admin API status.
type adminMsg struct{ active bool }

// setCommandMsg registers the callback used by the command dialog.
type setCommandMsg struct {
	fn func(string, telemetry.CommandMessage)
}

type telemetryMsg struct{ telemetry.TelemetryRow }

const (
	fallbackCommandInput = "robot-id,move,0.5 0.0"
	maxSectionHeightPct  = 0.2
)

// TUIWriter renders telemetry using a bubbletea TUI.
type TUIWriter struct {
	program     teaProgram
	robotColors map[string]string
	colorIdx    int
	done        chan struct{}
	sendSignal  atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter.
func NewTUIWriter(cfg *config.SimulationConfig) *TUIWriter {
	rc := make(map[string]string)
	w := &TUIWriter{robotColors: rc, done: make(chan struct{})}
	w.sendSignal.Store(true)
	m := newTUIModel(cfg, rc)
	p := tea.NewProgram(m, tea.WithAltScreen())
	w.program = p
	go func() {
		_ = p.Start()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

func (w *TUIWriter) getRobotColor(id string) string {
	if c, ok := w.robotColors[id]; ok {
		return c
	}
	c := robotPalette[w.colorIdx%len(robotPalette)]
	w.robotColors[id] = c
	w.colorIdx++
	return c
}

// Write implements TelemetryWriter.
func (w *TUIWriter) Write(row telemetry.TelemetryRow) error {
	rColor := w.getRobotColor(row.RobotID)
	bandColor := colorGreen
	switch row.HealthBand {
	case telemetry.BandCritical:
		bandColor = colorRed
	case telemetry.BandWarning:
		bandColor = colorYellow
	}

	line := fmt.Sprintf("%s[%s]%s %sfleet=%s%s %srobot=%s%s %sx=%.2f%s %sy=%.2f%s %shdg=%.1f%s %sv=%.2f%s %sw=%.2f%s %smode=%s%s %sbatt=%.1f%s %shealth=%.1f(%s)%s",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		colorBlue, row.FleetID, colorReset,
		rColor, row.RobotID, colorReset,
		colorGreen, row.X, colorReset,
		colorYellow, row.Y, colorReset,
		colorCyan, row.Heading, colorReset,
		colorMagenta, row.Linear, colorReset,
		colorMagenta, row.Angular, colorReset,
		colorBlue, row.Mode, colorReset,
		colorCyan, row.Battery, colorReset,
		bandColor, row.HealthScore, row.HealthBand, colorReset,
	)
	if row.EStop {
		line += fmt.Sprintf(" %sESTOP%s", colorRed, colorReset)
	}
	w.program.Send(logMsg{line: line})
	w.program.Send(telemetryMsg{row})
	return nil
}

// WriteBatch outputs multiple telemetry rows.
func (w *TUIWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteEvent implements EventWriter.
func (w *TUIWriter) WriteEvent(entry telemetry.EventLogEntry) error {
	levelColor := colorGray
	switch entry.Level {
	case telemetry.LevelWarn:
		levelColor = colorYellow
	case telemetry.LevelError:
		levelColor = colorRed
	}
	line := fmt.Sprintf("%s[%s]%s %s%s%s %scat=%s%s %srobot=%s%s %s",
		colorGray, entry.Timestamp.Format(time.RFC3339), colorReset,
		levelColor, entry.Level, colorReset,
		colorBlue, entry.Category, colorReset,
		colorWhite(), entry.RobotID, colorReset,
		entry.Message)
	w.program.Send(eventMsg{line: line, entry: entry})
	return nil
}

// WriteEvents outputs multiple event entries.
func (w *TUIWriter) WriteEvents(entries []telemetry.EventLogEntry) error {
	for _, e := range entries {
		_ = w.WriteEvent(e)
	}
	return nil
}

// SetAdminStatus updates the admin API indicator.
func (w *TUIWriter) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// SetCommandSender registers a callback used to dispatch operator commands
// entered in the command dialog.
func (w *TUIWriter) SetCommandSender(fn func(string, telemetry.CommandMessage)) {
	w.program.Send(setCommandMsg{fn: fn})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	cfg           *config.SimulationConfig
	table         table.Model
	vp            viewport.Model
	eventVP       viewport.Model
	logs          []string
	eventLogs     []string
	admin         bool
	wrap          bool
	autoscroll    bool
	header        string
	headerHeight  int
	height        int
	robotColors   map[string]string
	sendCommand   func(string, telemetry.CommandMessage)
	cmdInput      textinput.Model
	cmdDialog     bool
	summary       bool
	help          bool
	showFleet     bool
	showEvents    bool
	showMap       bool
	mapCenterX    float64
	mapCenterY    float64
	mapXSpan      float64
	mapYSpan      float64
	mapInit       bool
	mapShowRobots bool
	mapShowTrails bool
	positions     map[string]telemetry.Pose
	batteries     map[string]float64
	modes         map[string]telemetry.Mode
	bands         map[string]telemetry.HealthBand
	estops        map[string]bool
	trails        map[string][]telemetry.Pose
	alertTotal    int
	alertCounts   map[string]int
	alertHistory  []int
	lastAlertSec  time.Time
}

func newTUIModel(cfg *config.SimulationConfig, robotColors map[string]string) tuiModel {
	cols := []table.Column{
		{Title: "Config", Width: 20},
		{Title: "Value", Width: 12},
		{Title: "Config", Width: 20},
		{Title: "Value", Width: 12},
	}
	totalRobots := 0
	for _, g := range cfg.Robots {
		totalRobots += g.Count
	}
	rows := []table.Row{
		{"Fleet", cfg.FleetID, "Robots", fmt.Sprintf("%d", totalRobots)},
		{"Broker", cfg.Broker.URL, "Publish Every (ms)", fmt.Sprintf("%d", cfg.Broker.PublishEveryMS)},
		{"Rate Window (ms)", fmt.Sprintf("%d", cfg.Tuning.RateLimitWindowMS), "Rate Burst", fmt.Sprintf("%d", cfg.Tuning.RateLimitBurst)},
		{"Path Log", fmt.Sprintf("%d", cfg.PathLogCapacity), "Event Log", fmt.Sprintf("%d", cfg.EventLogCapacity)},
	}
	t := table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	m := tuiModel{
		cfg:           cfg,
		table:         t,
		vp:            viewport.New(0, 0),
		eventVP:       viewport.New(0, 0),
		robotColors:   robotColors,
		autoscroll:    true,
		showFleet:     true,
		showEvents:    true,
		mapShowRobots: true,
		positions:     make(map[string]telemetry.Pose),
		batteries:     make(map[string]float64),
		modes:         make(map[string]telemetry.Mode),
		bands:         make(map[string]telemetry.HealthBand),
		estops:        make(map[string]bool),
		trails:        make(map[string][]telemetry.Pose),
		alertCounts:   make(map[string]int),
	}
	return m
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.eventVP.Width = msg.Width
		m.height = msg.Height
		m.header = m.renderHeader()
		m.headerHeight = lipgloss.Height(m.header)
		m.updateViewportHeight()
		m.refreshViewport()
		m.refreshEvents()
	case tea.KeyMsg:
		if m.cmdDialog {
			switch msg.Type {
			case tea.KeyEnter:
				id, cm, err := parseCommandInput(m.cmdInput.Value())
				if err == nil && m.sendCommand != nil {
					go m.sendCommand(id, cm)
				}
				m.cmdDialog = false
				m.updateViewportHeight()
			case tea.KeyEsc:
				m.cmdDialog = false
				m.updateViewportHeight()
			default:
				var cmd tea.Cmd
				m.cmdInput, cmd = m.cmdInput.Update(msg)
				return m, cmd
			}
			return m, nil
		}
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
				m.updateViewportHeight()
			}
			return m, nil
		}
		if m.showMap {
			switch msg.String() {
			case "+", "=":
				m.mapXSpan *= 0.8
				m.mapYSpan *= 0.8
				if m.mapXSpan < 0.5 {
					m.mapXSpan = 0.5
				}
				if m.mapYSpan < 0.5 {
					m.mapYSpan = 0.5
				}
				return m, nil
			case "-":
				m.mapXSpan *= 1.25
				m.mapYSpan *= 1.25
				return m, nil
			case "left":
				m.mapCenterX -= m.mapXSpan * 0.1
				return m, nil
			case "right":
				m.mapCenterX += m.mapXSpan * 0.1
				return m, nil
			case "up":
				m.mapCenterY += m.mapYSpan * 0.1
				return m, nil
			case "down":
				m.mapCenterY -= m.mapYSpan * 0.1
				return m, nil
			case "1":
				m.mapShowRobots = !m.mapShowRobots
				return m, nil
			case "2":
				m.mapShowTrails = !m.mapShowTrails
				return m, nil
			}
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			m.header = m.renderHeader()
			m.headerHeight = lipgloss.Height(m.header)
			m.updateViewportHeight()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
				m.eventVP.GotoBottom()
			}
			return m, nil
		case "c":
			m.cmdInput = textinput.New()
			m.cmdInput.Placeholder = "id,action,args"
			val := fallbackCommandInput
			for id := range m.positions {
				val = fmt.Sprintf("%s,move,0.5 0.0", id)
				break
			}
			m.cmdInput.SetValue(val)
			m.cmdInput.CursorEnd()
			m.cmdInput.Focus()
			m.cmdDialog = true
			m.updateViewportHeight()
			return m, nil
		case "p":
			m.showFleet = !m.showFleet
			m.updateViewportHeight()
			return m, nil
		case "n":
			m.showEvents = !m.showEvents
			m.updateViewportHeight()
			return m, nil
		case "m":
			m.showMap = !m.showMap
			if m.showMap && !m.mapInit {
				m.initMapViewport()
			}
			m.updateViewportHeight()
			return m, nil
		case "t":
			m.summary = !m.summary
			m.updateViewportHeight()
			return m, nil
		case "h", "?":
			m.help = !m.help
			m.updateViewportHeight()
			return m, nil
		}
		if !m.autoscroll {
			switch msg.String() {
			case "j", "down":
				m.vp.LineDown(1)
				m.eventVP.LineDown(1)
			case "k", "up":
				m.vp.LineUp(1)
				m.eventVP.LineUp(1)
			case "pgdown", "ctrl+n":
				m.vp.LineDown(10)
				m.eventVP.LineDown(10)
			case "pgup", "ctrl+p":
				m.vp.LineUp(10)
				m.eventVP.LineUp(10)
			default:
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				m.eventVP, _ = m.eventVP.Update(msg)
				return m, cmd
			}
			return m, nil
		}
		return m, nil
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > 1000 {
			m.logs = m.logs[len(m.logs)-1000:]
		}
		m.refreshViewport()
	case eventMsg:
		m.eventLogs = append(m.eventLogs, msg.line)
		if len(m.eventLogs) > 1000 {
			m.eventLogs = m.eventLogs[len(m.eventLogs)-1000:]
		}
		if msg.entry.Category == "maintenance" || msg.entry.Category == "safety" {
			m.recordAlert(msg.entry)
		}
		m.updateViewportHeight()
		m.refreshEvents()
		m.refreshViewport()
	case telemetryMsg:
		pose := telemetry.Pose{X: msg.X, Y: msg.Y, Heading: msg.Heading}
		m.positions[msg.RobotID] = pose
		m.batteries[msg.RobotID] = msg.Battery
		m.modes[msg.RobotID] = msg.Mode
		m.bands[msg.RobotID] = msg.HealthBand
		m.estops[msg.RobotID] = msg.EStop
		if msg.Linear != 0 || msg.Angular != 0 {
			trail := append(m.trails[msg.RobotID], pose)
			if len(trail) > 200 {
				trail = trail[len(trail)-200:]
			}
			m.trails[msg.RobotID] = trail
		}
	case adminMsg:
		m.admin = msg.active
	case setCommandMsg:
		m.sendCommand = msg.fn
	}
	return m, nil
}

func (m *tuiModel) recordAlert(entry telemetry.EventLogEntry) {
	m.alertTotal++
	m.alertCounts[entry.RobotID]++
	second := entry.Timestamp.Truncate(time.Second)
	switch {
	case m.lastAlertSec.IsZero():
		m.lastAlertSec = second
		m.alertHistory = append(m.alertHistory, 1)
	case !second.After(m.lastAlertSec):
		if len(m.alertHistory) == 0 {
			m.alertHistory = append(m.alertHistory, 1)
		} else {
			m.alertHistory[len(m.alertHistory)-1]++
		}
	default:
		diff := int(second.Sub(m.lastAlertSec).Seconds())
		for i := 0; i < diff-1; i++ {
			m.alertHistory = append(m.alertHistory, 0)
		}
		m.alertHistory = append(m.alertHistory, 1)
		m.lastAlertSec = second
	}
	if len(m.alertHistory) > 5 {
		m.alertHistory = m.alertHistory[len(m.alertHistory)-5:]
	}
}

func (m *tuiModel) updateViewportHeight() {
	bottomHeight := lipgloss.Height(m.renderBottom())

	maxLines := m.maxSectionLines()

	eventLines := len(m.eventLogs)
	if eventLines == 0 {
		eventLines = 1
	}
	if eventLines > maxLines {
		eventLines = maxLines
	}
	m.eventVP.Height = eventLines

	eventHeight := 0
	if m.showEvents {
		eventHeight = 1 + m.eventVP.Height
	}
	fleetHeight := 0
	if m.showFleet || m.cmdDialog {
		fleetHeight = lipgloss.Height(m.renderFleet())
	}
	h := m.height - m.headerHeight - bottomHeight - eventHeight - fleetHeight - 5
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.eventVP.GotoBottom()
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshEvents() {
	content := "none"
	if len(m.eventLogs) > 0 {
		content = strings.Join(m.eventLogs, "\n")
	}
	m.eventVP.SetContent(content)
	if m.autoscroll {
		m.eventVP.GotoBottom()
	}
}

func (m tuiModel) maxSectionLines() int {
	h := int(float64(m.height) * maxSectionHeightPct)
	if h < 1 {
		h = 1
	}
	return h
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	bottom := m.renderBottom()
	divider := strings.Repeat("─", m.vp.Width)
	if m.showMap {
		sections := []string{
			m.header,
			divider,
			m.renderMap(),
			divider,
			bottom,
		}
		return strings.Join(sections, "\n")
	}
	sections := []string{
		m.header,
		divider,
		m.vp.View(),
	}
	if m.showEvents {
		sections = append(sections, divider, "Events:", m.eventVP.View())
	}
	if m.showFleet || m.cmdDialog {
		sections = append(sections, divider, m.renderFleet())
	}
	sections = append(sections, divider, bottom)
	return strings.Join(sections, "\n")
}

func (m tuiModel) renderHeader() string {
	return m.table.View()
}

func (m tuiModel) renderSummary() string {
	total := len(m.batteries)
	var sum float64
	for _, b := range m.batteries {
		sum += b
	}
	avg := 0.0
	if total > 0 {
		avg = sum / float64(total)
	}
	stopped := 0
	for _, active := range m.estops {
		if active {
			stopped++
		}
	}
	var alertParts []string
	for r, c := range m.alertCounts {
		alertParts = append(alertParts, fmt.Sprintf("%s%s%s=%d", colorWhite(), r, colorReset, c))
	}
	alerts := strings.Join(alertParts, " ")
	var trendParts []string
	for _, v := range m.alertHistory {
		trendParts = append(trendParts, fmt.Sprintf("%d", v))
	}
	trend := strings.Join(trendParts, ",")
	summary := fmt.Sprintf("%sSUMMARY%s %srobots=%d%s %savg_batt=%.1f%s %sestopped=%d%s %salerts=%d%s",
		colorBlue, colorReset, colorGreen, total, colorReset, colorCyan, avg, colorReset, colorRed, stopped, colorReset, colorMagenta, m.alertTotal, colorReset)
	if alerts != "" {
		summary = fmt.Sprintf("%s [%s]", summary, alerts)
	}
	if trend != "" {
		summary = fmt.Sprintf("%s %strend=[%s]%s", summary, colorYellow, trend, colorReset)
	}
	return summary
}

func (m tuiModel) renderBottom() string {
	adminColor := lipgloss.Color("9")
	if m.admin {
		adminColor = lipgloss.Color("10")
	}
	wrapColor := lipgloss.Color("9")
	if m.wrap {
		wrapColor = lipgloss.Color("10")
	}
	scrollColor := lipgloss.Color("10")
	if !m.autoscroll {
		scrollColor = lipgloss.Color("9")
	}
	adminIndicator := lipgloss.NewStyle().Foreground(adminColor).Render("●")
	wrapIndicator := lipgloss.NewStyle().Foreground(wrapColor).Render("●")
	scrollIndicator := lipgloss.NewStyle().Foreground(scrollColor).Render("●")
	summaryColor := lipgloss.Color("9")
	if m.summary {
		summaryColor = lipgloss.Color("10")
	}
	summaryIndicator := lipgloss.NewStyle().Foreground(summaryColor).Render("●")
	fleetColor := lipgloss.Color("10")
	if !m.showFleet {
		fleetColor = lipgloss.Color("9")
	}
	fleetIndicator := lipgloss.NewStyle().Foreground(fleetColor).Render("●")
	eventsColor := lipgloss.Color("10")
	if !m.showEvents {
		eventsColor = lipgloss.Color("9")
	}
	eventsIndicator := lipgloss.NewStyle().Foreground(eventsColor).Render("●")
	line := fmt.Sprintf("Admin API %s | Wrap %s | Scroll %s | Summary %s | Fleet %s | Events %s",
		adminIndicator, wrapIndicator, scrollIndicator, summaryIndicator, fleetIndicator, eventsIndicator)
	if m.summary {
		return fmt.Sprintf("%s\n%s", m.renderSummary(), line)
	}
	return line
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit",
		" w  toggle line wrap",
		" s  toggle auto-scroll",
		" c  send command (id,action,args)",
		"    actions: move <lin> <ang> | set_mode <mode> | navigate_to <x> <y>",
		"             emergency_stop | clear_stop",
		" t  toggle summary footer",
		" m  toggle map view",
		" +  zoom in map",
		" -  zoom out map",
		" ←→↑↓ pan map",
		" 1  toggle robot layer",
		" 2  toggle trail layer",
		" p  toggle fleet section",
		" n  toggle events section",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}

func headingIcon(h float64) string {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	switch {
	case h >= 45 && h < 135:
		return "^"
	case h >= 135 && h < 225:
		return "<"
	case h >= 225 && h < 315:
		return "v"
	default:
		return ">"
	}
}

func batteryBG(b float64) string {
	switch {
	case b < 25:
		return bgRed
	case b < 75:
		return bgYellow
	default:
		return bgGreen
	}
}

func (m *tuiModel) initMapViewport() {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range m.positions {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	if minX == math.Inf(1) {
		minX, maxX = -5, 5
		minY, maxY = -5, 5
	}
	m.mapCenterX = (maxX + minX) / 2
	m.mapCenterY = (maxY + minY) / 2
	m.mapXSpan = maxX - minX
	m.mapYSpan = maxY - minY
	if m.mapXSpan < 4 {
		m.mapXSpan = 4
	}
	if m.mapYSpan < 4 {
		m.mapYSpan = 4
	}
	m.mapInit = true
}

func (m tuiModel) renderMap() string {
	width := m.vp.Width
	bottomHeight := lipgloss.Height(m.renderBottom())
	mapHeight := m.height - m.headerHeight - bottomHeight - 4
	if mapHeight < 1 {
		mapHeight = 1
	}
	if len(m.positions) == 0 {
		return "No position data"
	}
	minX := m.mapCenterX - m.mapXSpan/2
	maxX := m.mapCenterX + m.mapXSpan/2
	minY := m.mapCenterY - m.mapYSpan/2
	maxY := m.mapCenterY + m.mapYSpan/2
	grid := make([][]string, mapHeight)
	for i := range grid {
		row := make([]string, width)
		for j := range row {
			row[j] = "."
		}
		grid[i] = row
	}
	// overlay simple x/y gridlines
	const divisions = 4
	for i := 1; i < divisions; i++ {
		x := int(float64(width-1) * float64(i) / divisions)
		for y := 0; y < mapHeight; y++ {
			if grid[y][x] == "-" {
				grid[y][x] = "+"
			} else if grid[y][x] == "." {
				grid[y][x] = "|"
			}
		}
		y := int(float64(mapHeight-1) * float64(i) / divisions)
		for x2 := 0; x2 < width; x2++ {
			if grid[y][x2] == "|" {
				grid[y][x2] = "+"
			} else if grid[y][x2] == "." {
				grid[y][x2] = "-"
			}
		}
	}
	if m.mapShowTrails {
		for id, trail := range m.trails {
			c := colorGray
			if col, ok := m.robotColors[id]; ok {
				c = col
			}
			for _, p := range trail {
				x := int((p.X - minX) / (maxX - minX) * float64(width-1))
				y := int((maxY - p.Y) / (maxY - minY) * float64(mapHeight-1))
				if y >= 0 && y < mapHeight && x >= 0 && x < width && grid[y][x] == "." {
					grid[y][x] = fmt.Sprintf("%s%s%s", c, "·", colorReset)
				}
			}
		}
	}
	if m.mapShowRobots {
		for id, p := range m.positions {
			x := int((p.X - minX) / (maxX - minX) * float64(width-1))
			y := int((maxY - p.Y) / (maxY - minY) * float64(mapHeight-1))
			if y < 0 || y >= mapHeight || x < 0 || x >= width {
				continue
			}
			robotColor := colorWhite()
			if c, ok := m.robotColors[id]; ok {
				robotColor = c
			}
			icon := headingIcon(p.Heading)
			if m.estops[id] {
				icon = "X"
				robotColor = colorRed
			}
			bg := batteryBG(m.batteries[id])
			grid[y][x] = fmt.Sprintf("%s%s%s%s", bg, robotColor, icon, colorReset)
		}
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("x %.1f..%.1f y %.1f..%.1f (m)\n", minX, maxX, minY, maxY))
	for _, row := range grid {
		b.WriteString(strings.Join(row, ""))
		b.WriteByte('\n')
	}
	// simple horizontal scale bar
	mPerChar := (maxX - minX) / float64(width)
	barChars := int(math.Min(10, float64(width)/3))
	scaleM := mPerChar * float64(barChars)
	b.WriteString(fmt.Sprintf("Scale: |%s| %.1fm\n", strings.Repeat("-", barChars), scaleM))
	legendParts := []string{
		fmt.Sprintf("%sX%s=estopped", colorRed, colorReset),
		"^>v<=heading",
		fmt.Sprintf("%s█%s=high_batt %s█%s=med %s█%s=low", bgGreen, colorReset, bgYellow, colorReset, bgRed, colorReset),
		"·=trail",
	}
	b.WriteString(strings.Join(legendParts, " "))
	return strings.TrimRight(b.String(), "\n")
}

func (m tuiModel) renderFleet() string {
	if m.cmdDialog {
		return fmt.Sprintf("Send Command (id,action,args) - Enter to send, Esc to cancel: %s", m.cmdInput.View())
	}
	if len(m.positions) == 0 {
		return "Fleet: none"
	}
	maxLines := m.maxSectionLines()
	var ids []string
	for id := range m.positions {
		ids = append(ids, id)
	}
	if len(ids) > maxLines {
		ids = ids[:maxLines]
	}
	var b strings.Builder
	b.WriteString("Fleet:\n")
	for _, id := range ids {
		p := m.positions[id]
		bandColor := colorGreen
		switch m.bands[id] {
		case telemetry.BandCritical:
			bandColor = colorRed
		case telemetry.BandWarning:
			bandColor = colorYellow
		}
		line := fmt.Sprintf("%s mode=%s batt=%.1f %s%s%s x=%.2f y=%.2f hdg=%.1f",
			id, m.modes[id], m.batteries[id], bandColor, m.bands[id], colorReset, p.X, p.Y, p.Heading)
		if m.estops[id] {
			line += fmt.Sprintf(" %sESTOP%s", colorRed, colorReset)
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// parseCommandInput turns "id,action,args" dialog input into a command
// message. Args are space separated and depend on the action.
func parseCommandInput(val string) (string, telemetry.CommandMessage, error) {
	parts := strings.SplitN(val, ",", 3)
	if len(parts) < 2 {
		return "", telemetry.CommandMessage{}, fmt.Errorf("expected id,action,args")
	}
	id := strings.TrimSpace(parts[0])
	action := telemetry.CommandKind(strings.TrimSpace(parts[1]))
	args := ""
	if len(parts) == 3 {
		args = strings.TrimSpace(parts[2])
	}
	msg := telemetry.CommandMessage{RobotID: id, Action: action, Timestamp: time.Now().UTC()}
	fields := strings.Fields(args)
	switch action {
	case telemetry.CmdMove:
		if len(fields) < 2 {
			return "", telemetry.CommandMessage{}, fmt.Errorf("move expects <linear> <angular>")
		}
		lin, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return "", telemetry.CommandMessage{}, err
		}
		ang, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return "", telemetry.CommandMessage{}, err
		}
		msg.Linear, msg.Angular = lin, ang
	case telemetry.CmdSetMode:
		if len(fields) < 1 {
			return "", telemetry.CommandMessage{}, fmt.Errorf("set_mode expects <mode>")
		}
		msg.Mode = telemetry.Mode(fields[0])
	case telemetry.CmdNavigateTo:
		if len(fields) < 2 {
			return "", telemetry.CommandMessage{}, fmt.Errorf("navigate_to expects <x> <y>")
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return "", telemetry.CommandMessage{}, err
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return "", telemetry.CommandMessage{}, err
		}
		msg.TargetX, msg.TargetY = x, y
	case telemetry.CmdEmergencyStop, telemetry.CmdClearStop:
	default:
		return "", telemetry.CommandMessage{}, fmt.Errorf("unknown action %q", action)
	}
	return id, msg, nil
}
