package notify

import (
	"context"

	"github.com/fd1az/pricegap-monitor/business/monitor/app"
	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
	"github.com/fd1az/pricegap-monitor/internal/logger"
)

// Ensure LogObserver implements TickObserver.
var _ app.TickObserver = (*LogObserver)(nil)

// LogObserver writes every tick to the debug log.
type LogObserver struct {
	logger logger.LoggerInterface
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(log logger.LoggerInterface) *LogObserver {
	return &LogObserver{logger: log}
}

// ObserveTick logs r.
func (o *LogObserver) ObserveTick(r domain.TickReport) {
	args := []any{
		"task", r.TaskID,
		"outcome", string(r.Outcome),
		"spread_percent", r.Spread.Percent,
		"threshold_percent", r.ThresholdPercent,
	}
	if r.QuoteA != nil {
		args = append(args, "price_a", r.QuoteA.Price, "source_a", r.QuoteA.Provenance, "stale_a", r.QuoteA.Stale)
	}
	if r.QuoteB != nil {
		args = append(args, "price_b", r.QuoteB.Price, "source_b", r.QuoteB.Provenance, "stale_b", r.QuoteB.Stale)
	}
	if r.CooldownRemaining > 0 {
		args = append(args, "cooldown_remaining", r.CooldownRemaining.String())
	}
	o.logger.Debug(context.Background(), "tick", args...)
}
