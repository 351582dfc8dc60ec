package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// AlertRow represents an alert in the list.
type AlertRow struct {
	Time          string
	TaskID        string
	ChainA        string
	ChainB        string
	PriceA        float64
	PriceB        float64
	SpreadPercent float64
	Threshold     float64
}

// AlertsComponent renders the most recent alerts, newest first.
type AlertsComponent struct {
	rows    []AlertRow
	maxRows int
	visible int
	offset  int
}

// NewAlertsComponent keeps up to maxRows alerts and shows visible of them.
func NewAlertsComponent(maxRows, visible int) *AlertsComponent {
	return &AlertsComponent{
		rows:    make([]AlertRow, 0),
		maxRows: maxRows,
		visible: visible,
	}
}

// Add prepends row.
func (a *AlertsComponent) Add(row AlertRow) {
	a.rows = append([]AlertRow{row}, a.rows...)
	if len(a.rows) > a.maxRows {
		a.rows = a.rows[:a.maxRows]
	}
	a.offset = 0
}

// Clear clears all alerts.
func (a *AlertsComponent) Clear() {
	a.rows = make([]AlertRow, 0)
	a.offset = 0
}

// Len returns the number of stored alerts.
func (a *AlertsComponent) Len() int {
	return len(a.rows)
}

// ScrollUp moves towards newer alerts.
func (a *AlertsComponent) ScrollUp() {
	if a.offset > 0 {
		a.offset--
	}
}

// ScrollDown moves towards older alerts.
func (a *AlertsComponent) ScrollDown() {
	if a.offset < len(a.rows)-a.visible {
		a.offset++
	}
}

// View renders the alerts component.
func (a *AlertsComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	alertStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("ALERTS (%d)", len(a.rows))))
	b.WriteString("\n\n")

	if len(a.rows) == 0 {
		b.WriteString(dimStyle.Render("  No abnormal spreads yet..."))
		return b.String()
	}

	end := min(a.offset+a.visible, len(a.rows))
	for _, row := range a.rows[a.offset:end] {
		b.WriteString(fmt.Sprintf("  %s  %-12s %s  %s vs %s  (%s)\n",
			dimStyle.Render(row.Time),
			row.TaskID,
			alertStyle.Render(fmt.Sprintf("%6.3f%%", row.SpreadPercent)),
			fmt.Sprintf("%s $%.2f", row.ChainA, row.PriceA),
			fmt.Sprintf("%s $%.2f", row.ChainB, row.PriceB),
			dimStyle.Render(fmt.Sprintf("> %.2f%%", row.Threshold)),
		))
	}

	if len(a.rows) > a.visible {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  showing %d-%d of %d", a.offset+1, end, len(a.rows))))
	}
	return b.String()
}
