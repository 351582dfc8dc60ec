package ui

import (
	"time"

	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
)

// Message types for TUI updates

// TickReportMsg is sent after every completed task tick.
type TickReportMsg struct {
	Report domain.TickReport
}

// TasksMsg carries the current task snapshots.
type TasksMsg struct {
	Tasks []domain.TaskSnapshot
}

// ConnectionStatusMsg is sent when a connection changes state.
type ConnectionStatusMsg struct {
	Name      string
	Connected bool
	Latency   time.Duration
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// TickMsg is sent periodically for UI updates.
type TickMsg struct{}

// StartupMsg is sent during application startup to show progress.
type StartupMsg struct {
	Step   string // "config", "rpc", "sources", "tasks"
	Status string // "connecting", "connected", "done", "failed"
}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}
