package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// TaskRow is one monitoring task as shown in the task table.
type TaskRow struct {
	ID          string
	ChainA      string
	ChainB      string
	Threshold   float64
	Interval    string
	Active      bool
	LastOutcome string
	LastSpread  float64
	LastAlertAt time.Time
}

// TasksComponent renders the running tasks.
type TasksComponent struct {
	rows []TaskRow
}

// NewTasksComponent creates a new tasks component.
func NewTasksComponent() *TasksComponent {
	return &TasksComponent{}
}

// Set replaces the task list, keeping each task's last outcome and spread.
func (t *TasksComponent) Set(rows []TaskRow) {
	prev := make(map[string]TaskRow, len(t.rows))
	for _, r := range t.rows {
		prev[r.ID] = r
	}
	for i, r := range rows {
		if p, ok := prev[r.ID]; ok && r.LastOutcome == "" {
			rows[i].LastOutcome = p.LastOutcome
			rows[i].LastSpread = p.LastSpread
		}
	}
	t.rows = rows
}

// Observe records the outcome of a tick for task id.
func (t *TasksComponent) Observe(id, outcome string, spread float64) {
	for i := range t.rows {
		if t.rows[i].ID == id {
			t.rows[i].LastOutcome = outcome
			t.rows[i].LastSpread = spread
			return
		}
	}
	t.rows = append(t.rows, TaskRow{ID: id, Active: true, LastOutcome: outcome, LastSpread: spread})
}

// Len returns the number of tasks.
func (t *TasksComponent) Len() int {
	return len(t.rows)
}

// View renders the tasks component at time now.
func (t *TasksComponent) View(now time.Time) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	activeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	stoppedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	alertStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))

	var b strings.Builder
	b.WriteString(headerStyle.Render("TASKS"))
	b.WriteString("\n\n")

	if len(t.rows) == 0 {
		b.WriteString(dimStyle.Render("  No monitoring tasks"))
		return b.String()
	}

	for _, row := range t.rows {
		icon := activeStyle.Render("●")
		if !row.Active {
			icon = stoppedStyle.Render("○")
		}

		outcome := dimStyle.Render("waiting")
		switch row.LastOutcome {
		case "":
		case "alerted":
			outcome = alertStyle.Render(fmt.Sprintf("ALERT %.3f%%", row.LastSpread))
		case "suppressed":
			outcome = warnStyle.Render(fmt.Sprintf("cooldown %.3f%%", row.LastSpread))
		case "unavailable":
			outcome = stoppedStyle.Render("no price")
		default:
			outcome = dimStyle.Render(fmt.Sprintf("%s %.3f%%", row.LastOutcome, row.LastSpread))
		}

		line := fmt.Sprintf("  %s %-12s %s ↔ %s  > %.2f%%  every %s  %s",
			icon, row.ID, row.ChainA, row.ChainB, row.Threshold, row.Interval, outcome)
		if !row.LastAlertAt.IsZero() {
			line += dimStyle.Render(fmt.Sprintf("  last alert %s ago", now.Sub(row.LastAlertAt).Round(time.Second)))
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}
