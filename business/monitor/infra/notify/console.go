// Package notify contains alert sinks and tick observers for the monitor context.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fd1az/pricegap-monitor/business/monitor/app"
	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
)

// Ensure ConsoleNotifier implements Notifier.
var _ app.Notifier = (*ConsoleNotifier)(nil)

// ConsoleNotifier prints alerts as a block of text for CLI mode.
type ConsoleNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleNotifier creates a ConsoleNotifier writing to out, or stdout when nil.
func NewConsoleNotifier(out io.Writer) *ConsoleNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleNotifier{out: out}
}

func (n *ConsoleNotifier) Name() string { return "console" }

// Notify writes the alert.
func (n *ConsoleNotifier) Notify(ctx context.Context, a domain.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	w := n.out
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "================================================================================")
	fmt.Fprintln(w, "ABNORMAL CROSS-CHAIN SPREAD")
	fmt.Fprintln(w, "================================================================================")
	fmt.Fprintf(w, "Alert:          %s\n", a.ID)
	fmt.Fprintf(w, "Task:           %s\n", a.TaskID)
	fmt.Fprintf(w, "Timestamp:      %s\n", a.Timestamp.Format(time.RFC3339))
	fmt.Fprintln(w, "--------------------------------------------------------------------------------")
	fmt.Fprintln(w, "PRICES")
	fmt.Fprintf(w, "  %-14s  $%.4f  (%s)\n", a.ChainA+":", a.PriceA, a.ProvenanceA)
	fmt.Fprintf(w, "  %-14s  $%.4f  (%s)\n", a.ChainB+":", a.PriceB, a.ProvenanceB)
	fmt.Fprintf(w, "  Spread:         %.4f%% (threshold %.4f%%)\n", a.SpreadPercent, a.ThresholdPercent)
	fmt.Fprintln(w, "================================================================================")
	return nil
}
