package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Stats holds tick outcome counters for display.
type Stats struct {
	Ticks          int64
	Alerts         int64
	Suppressed     int64
	BelowThreshold int64
	Unavailable    int64
	Errors         int64
}

// StatsComponent renders statistics.
type StatsComponent struct {
	stats Stats
}

// NewStatsComponent creates a new stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

// Update updates the statistics.
func (s *StatsComponent) Update(stats Stats) {
	s.stats = stats
}

// Stats returns the current counters.
func (s *StatsComponent) Stats() Stats {
	return s.stats
}

// View renders the stats component.
func (s *StatsComponent) View() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	alertRate := float64(0)
	if s.stats.Ticks > 0 {
		alertRate = float64(s.stats.Alerts) / float64(s.stats.Ticks) * 100
	}

	errorsDisplay := valueStyle.Render(fmt.Sprintf("%d", s.stats.Errors))
	if s.stats.Errors > 0 {
		errorsDisplay = errorStyle.Render(fmt.Sprintf("%d", s.stats.Errors))
	}

	return style.Render("STATS") + "\n" +
		fmt.Sprintf("Ticks: %s  │  Alerts: %s (%.1f%%)  │  Suppressed: %s\n",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Ticks)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Alerts)),
			alertRate,
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Suppressed)),
		) +
		fmt.Sprintf("Below threshold: %s  │  Unavailable: %s  │  Errors: %s",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.BelowThreshold)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Unavailable)),
			errorsDisplay,
		)
}
