package notify

import (
	"context"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fd1az/pricegap-monitor/business/monitor/app"
	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
	"github.com/fd1az/pricegap-monitor/pkg/ui"
)

// tuiBuffer is how many reports may wait for the dashboard before new ones are dropped.
const tuiBuffer = 64

// Ensure TUIObserver implements TickObserver.
var _ app.TickObserver = (*TUIObserver)(nil)

// Sender delivers messages to a running Bubble Tea program.
type Sender interface {
	Send(msg tea.Msg)
}

// TUIObserver forwards tick reports to the dashboard. Reports are handed to
// a forwarding goroutine so a slow or not yet started program never stalls
// the monitor; when the hand-off buffer is full the report is dropped.
type TUIObserver struct {
	sender  Sender
	reports chan domain.TickReport
	dropped atomic.Int64
}

// NewTUIObserver creates a TUIObserver sending to s until ctx is done.
func NewTUIObserver(ctx context.Context, s Sender) *TUIObserver {
	o := &TUIObserver{
		sender:  s,
		reports: make(chan domain.TickReport, tuiBuffer),
	}
	go o.forward(ctx)
	return o
}

// ObserveTick queues r for the dashboard without blocking.
func (o *TUIObserver) ObserveTick(r domain.TickReport) {
	select {
	case o.reports <- r:
	default:
		o.dropped.Add(1)
	}
}

// Dropped returns how many reports were discarded on a full buffer.
func (o *TUIObserver) Dropped() int64 {
	return o.dropped.Load()
}

func (o *TUIObserver) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-o.reports:
			o.sender.Send(ui.TickReportMsg{Report: r})
		}
	}
}
