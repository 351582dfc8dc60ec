// Package ui provides the Bubble Tea dashboard for the price gap monitor.
package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
	pricingDomain "github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/pkg/ui/components"
)

// Phase represents the current UI phase.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"   // Initial welcome screen
	PhaseStartup   Phase = "startup"   // Loading/connecting
	PhaseDashboard Phase = "dashboard" // Main dashboard
)

// WelcomeDuration is how long the welcome screen shows before auto-advancing.
const WelcomeDuration = 2 * time.Second

// StartupStep represents a step in the startup process.
type StartupStep struct {
	Key    string
	Name   string
	Status string // "pending", "connecting", "connected", "done", "failed"
}

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// ConnectionInfo holds connection state and latency.
type ConnectionInfo struct {
	Connected bool
	Latency   time.Duration
}

// Options configures the dashboard.
type Options struct {
	Title string
	Demo  bool
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	// Components
	prices *components.PricesComponent
	alerts *components.AlertsComponent
	tasks  *components.TasksComponent
	stats  *components.StatsComponent

	keys    KeyMap
	help    help.Model
	spinner spinner.Model

	title string
	demo  bool

	// Phase state
	phase        Phase
	welcomeStart time.Time
	startupTime  time.Time
	startupSteps []*StartupStep
	onStart      func()

	// State
	quitting    bool
	paused      bool
	width       int
	height      int
	lastUpdate  time.Time
	connections map[string]ConnectionInfo
	connOrder   []string
	errors      []ErrorEntry // last 3
	logs        []string     // last 5
}

// New creates a new TUI model.
func New(opts Options) Model {
	if opts.Title == "" {
		opts.Title = "Price Gap Monitor"
	}

	now := time.Now()
	return Model{
		prices:       components.NewPricesComponent(),
		alerts:       components.NewAlertsComponent(100, 8),
		tasks:        components.NewTasksComponent(),
		stats:        components.NewStatsComponent(),
		keys:         DefaultKeyMap(),
		help:         help.New(),
		spinner:      spinner.New(spinner.WithSpinner(spinner.Dot)),
		title:        opts.Title,
		demo:         opts.Demo,
		phase:        PhaseWelcome,
		welcomeStart: now,
		startupTime:  now,
		startupSteps: []*StartupStep{
			{Key: "config", Name: "Loading configuration", Status: "pending"},
			{Key: "rpc", Name: "Connecting to chain RPCs", Status: "pending"},
			{Key: "sources", Name: "Verifying price sources", Status: "pending"},
			{Key: "tasks", Name: "Starting monitoring tasks", Status: "pending"},
		},
		connections: make(map[string]ConnectionInfo),
	}
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.spinner.Tick)
}

// tickCmd returns a command that sends a tick every 100ms for smooth animations.
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		if m.phase == PhaseWelcome {
			m.enterStartup()
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Clear):
			m.alerts.Clear()
		case key.Matches(msg, m.keys.Errors):
			m.errors = m.errors[:0]
		case key.Matches(msg, m.keys.Up):
			m.alerts.ScrollUp()
		case key.Matches(msg, m.keys.Down):
			m.alerts.ScrollDown()
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.phase == PhaseWelcome && time.Since(m.welcomeStart) >= WelcomeDuration {
			m.enterStartup()
		}
		return m, tickCmd()

	case TickReportMsg:
		m.observe(msg.Report)

	case TasksMsg:
		m.tasks.Set(taskRows(msg.Tasks))

	case ConnectionStatusMsg:
		if _, ok := m.connections[msg.Name]; !ok {
			m.connOrder = append(m.connOrder, msg.Name)
		}
		m.connections[msg.Name] = ConnectionInfo{Connected: msg.Connected, Latency: msg.Latency}
		m.lastUpdate = time.Now()

	case StartupMsg:
		for _, step := range m.startupSteps {
			if step.Key == msg.Step {
				step.Status = msg.Status
			}
		}
		if m.startupComplete() && m.phase == PhaseStartup {
			m.phase = PhaseDashboard
		}

	case ErrorMsg:
		m.addError(msg.Error.Error())

	case LogMsg:
		m.logs = addLog(m.logs, msg.Level, msg.Message)
	}

	return m, nil
}

func (m *Model) enterStartup() {
	if m.phase != PhaseWelcome {
		return
	}
	m.phase = PhaseStartup
	m.startupTime = time.Now()
	if m.onStart != nil {
		go m.onStart()
	}
}

func (m *Model) startupComplete() bool {
	for _, step := range m.startupSteps {
		if step.Status != "connected" && step.Status != "done" {
			return false
		}
	}
	return true
}

// observe folds a tick report into prices, tasks, alerts and counters.
func (m *Model) observe(r domain.TickReport) {
	// first data means startup is effectively over
	if m.phase == PhaseStartup {
		m.phase = PhaseDashboard
	}

	stats := m.stats.Stats()
	stats.Ticks++
	switch r.Outcome {
	case domain.OutcomeAlerted:
		stats.Alerts++
	case domain.OutcomeSuppressed:
		stats.Suppressed++
	case domain.OutcomeBelowThreshold:
		stats.BelowThreshold++
	case domain.OutcomeUnavailable:
		stats.Unavailable++
	}
	m.stats.Update(stats)

	if m.paused {
		return
	}

	for _, q := range []*pricingDomain.PriceQuote{r.QuoteA, r.QuoteB} {
		if q != nil {
			m.prices.Update(priceRow(*q))
		}
	}
	m.tasks.Observe(r.TaskID, string(r.Outcome), r.Spread.Percent)

	if r.Alert != nil {
		a := r.Alert
		m.alerts.Add(components.AlertRow{
			Time:          a.Timestamp.Format("15:04:05"),
			TaskID:        a.TaskID,
			ChainA:        a.ChainA,
			ChainB:        a.ChainB,
			PriceA:        a.PriceA,
			PriceB:        a.PriceB,
			SpreadPercent: a.SpreadPercent,
			Threshold:     a.ThresholdPercent,
		})
	}
	m.lastUpdate = r.At
}

func (m *Model) addError(msg string) {
	m.logs = addLog(m.logs, "error", msg)
	m.errors = append(m.errors, ErrorEntry{Message: msg, Timestamp: time.Now()})
	if len(m.errors) > 3 {
		m.errors = m.errors[len(m.errors)-3:]
	}
	stats := m.stats.Stats()
	stats.Errors++
	m.stats.Update(stats)
}

func priceRow(q pricingDomain.PriceQuote) components.PriceRow {
	return components.PriceRow{
		Chain:      q.Chain,
		Pair:       q.Pair,
		Price:      q.Price,
		Provenance: q.Provenance,
		Success:    q.Success,
		Stale:      q.Stale,
		ObservedAt: q.ObservedAt,
	}
}

func taskRows(snaps []domain.TaskSnapshot) []components.TaskRow {
	rows := make([]components.TaskRow, 0, len(snaps))
	for _, s := range snaps {
		row := components.TaskRow{
			ID:        s.ID,
			ChainA:    s.ChainPair[0],
			ChainB:    s.ChainPair[1],
			Threshold: s.ThresholdPercent,
			Interval:  s.Interval,
			Active:    s.Active,
		}
		if s.LastAlertAt != nil {
			row.LastAlertAt = *s.LastAlertAt
		}
		rows = append(rows, row)
	}
	return rows
}

// addLog adds a log message and returns the updated slice (keeps last 5).
func addLog(logs []string, level, message string) []string {
	line := fmt.Sprintf("[%s] %s: %s", time.Now().Format("15:04:05"), level, message)
	logs = append(logs, line)
	if len(logs) > 5 {
		logs = logs[len(logs)-5:]
	}
	return logs
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	switch m.phase {
	case PhaseWelcome:
		return m.renderWelcomeScreen()
	case PhaseStartup:
		return m.renderStartupScreen()
	}

	now := time.Now()
	var b strings.Builder

	title := " " + m.title + " "
	if m.demo {
		title += "[DEMO: synthetic prices] "
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatusBar(now))
	b.WriteString("\n\n")

	leftCol := m.prices.View(now) + "\n\n" + m.stats.View()
	rightCol := m.tasks.View(now) + "\n\n" + m.alerts.View()

	if m.width > 100 {
		left := BoxStyle.Width(m.width/2 - 2).Render(leftCol)
		right := BoxStyle.Width(m.width/2 - 2).Render(rightCol)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	} else {
		width := max(m.width-4, 40)
		b.WriteString(BoxStyle.Width(width).Render(leftCol))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(width).Render(rightCol))
	}
	b.WriteString("\n\n")

	if len(m.errors) > 0 {
		errorHeader := lipgloss.NewStyle().Bold(true).Foreground(ColorDanger)
		errorStyle := lipgloss.NewStyle().Foreground(ColorDanger)

		b.WriteString(errorHeader.Render("ERRORS"))
		b.WriteString(MutedValue.Render(" (e: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := now.Sub(err.Timestamp).Round(time.Second)
			b.WriteString(errorStyle.Render(fmt.Sprintf("  • %s ", err.Message)))
			b.WriteString(MutedValue.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.paused {
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(ColorWarning).Render("⏸ PAUSED"))
		b.WriteString(" • ")
	}
	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))

	return b.String()
}

func (m Model) renderWelcomeScreen() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	greenStyle := lipgloss.NewStyle().Foreground(ColorSecondary)

	dots := strings.Repeat(".", int(time.Since(m.welcomeStart).Milliseconds()/300)%4)

	var sb strings.Builder
	sb.WriteString("\n\n\n\n")

	logo := `
   ██████╗ ██████╗ ██╗ ██████╗███████╗     ██████╗  █████╗ ██████╗
   ██╔══██╗██╔══██╗██║██╔════╝██╔════╝    ██╔════╝ ██╔══██╗██╔══██╗
   ██████╔╝██████╔╝██║██║     █████╗      ██║  ███╗███████║██████╔╝
   ██╔═══╝ ██╔══██╗██║██║     ██╔══╝      ██║   ██║██╔══██║██╔═══╝
   ██║     ██║  ██║██║╚██████╗███████╗    ╚██████╔╝██║  ██║██║
   ╚═╝     ╚═╝  ╚═╝╚═╝ ╚═════╝╚══════╝     ╚═════╝ ╚═╝  ╚═╝╚═╝
`
	sb.WriteString(titleStyle.Render(logo))
	sb.WriteString("\n")
	sb.WriteString(mutedStyle.Render("              C R O S S - C H A I N   M O N I T O R"))
	sb.WriteString("\n\n\n")
	sb.WriteString(greenStyle.Render(fmt.Sprintf("                     Initializing%s", dots)))
	sb.WriteString("\n\n")
	sb.WriteString(mutedStyle.Render("               Press any key to skip, or wait..."))
	sb.WriteString("\n")

	return sb.String()
}

func (m Model) renderStartupScreen() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).MarginBottom(1)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	successStyle := lipgloss.NewStyle().Foreground(ColorSecondary)
	connectingStyle := lipgloss.NewStyle().Foreground(ColorWarning)
	failedStyle := lipgloss.NewStyle().Foreground(ColorDanger)

	var sb strings.Builder
	sb.WriteString("\n\n")
	sb.WriteString(titleStyle.Render("  " + m.title))
	sb.WriteString("\n\n")
	sb.WriteString(headerStyle.Render("  Starting up..."))
	sb.WriteString("\n\n")

	for _, step := range m.startupSteps {
		var icon, statusText string
		var style lipgloss.Style

		switch step.Status {
		case "connected", "done":
			icon, statusText, style = "✓", "Ready", successStyle
		case "connecting":
			icon, statusText, style = m.spinner.View(), "Working...", connectingStyle
		case "failed":
			icon, statusText, style = "✗", "Failed", failedStyle
		default:
			icon, statusText, style = "○", "Pending", mutedStyle
		}

		sb.WriteString(fmt.Sprintf("  %s %s %s\n", style.Render(icon), mutedStyle.Render(step.Name), style.Render(statusText)))
	}

	sb.WriteString("\n")
	sb.WriteString(mutedStyle.Render(fmt.Sprintf("  Elapsed: %s", time.Since(m.startupTime).Round(time.Second))))
	sb.WriteString("\n")

	return sb.String()
}

func (m Model) renderStatusBar(now time.Time) string {
	var parts []string

	parts = append(parts, m.spinner.View()+" Monitoring")
	parts = append(parts, fmt.Sprintf("Tasks: %d", m.tasks.Len()))
	parts = append(parts, fmt.Sprintf("Chains: %d", m.prices.Len()))

	for _, name := range m.connOrder {
		info := m.connections[name]
		if info.Connected {
			status := name
			if info.Latency > 0 {
				status = fmt.Sprintf("%s (%dms)", name, info.Latency.Milliseconds())
			}
			parts = append(parts, StatusConnected.Render("● "+status))
		} else {
			parts = append(parts, StatusDisconnected.Render("○ "+name+" (disconnected)"))
		}
	}

	if !m.lastUpdate.IsZero() {
		parts = append(parts, MutedValue.Render(fmt.Sprintf("Updated: %s ago", now.Sub(m.lastUpdate).Round(time.Second))))
	}

	return strings.Join(parts, "  │  ")
}

// Dashboard owns the Bubble Tea program and the start signal raised when the
// welcome screen is done.
type Dashboard struct {
	program *tea.Program
	started chan struct{}
	once    sync.Once
}

// NewDashboard creates a dashboard program. Options such as tea.WithAltScreen
// are passed through.
func NewDashboard(opts Options, programOpts ...tea.ProgramOption) *Dashboard {
	d := &Dashboard{started: make(chan struct{})}

	m := New(opts)
	m.onStart = func() { d.once.Do(func() { close(d.started) }) }

	d.program = tea.NewProgram(m, programOpts...)
	return d
}

// Started is closed once the welcome screen completes.
func (d *Dashboard) Started() <-chan struct{} {
	return d.started
}

// Send delivers msg to the running program. It is safe to call from any goroutine.
func (d *Dashboard) Send(msg tea.Msg) {
	d.program.Send(msg)
}

// Run blocks until the user quits or Quit is called.
func (d *Dashboard) Run() error {
	_, err := d.program.Run()
	return err
}

// Quit asks the program to exit.
func (d *Dashboard) Quit() {
	d.program.Quit()
}
