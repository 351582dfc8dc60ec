package domain

import (
	"time"

	pricingDomain "github.com/fd1az/pricegap-monitor/business/pricing/domain"
)

// TickOutcome is what a single evaluation of a task decided.
type TickOutcome string

const (
	OutcomeAlerted        TickOutcome = "alerted"
	OutcomeSuppressed     TickOutcome = "suppressed"
	OutcomeBelowThreshold TickOutcome = "below_threshold"
	OutcomeUnavailable    TickOutcome = "unavailable"
	OutcomeInactive       TickOutcome = "inactive"
)

// TickReport describes one completed tick.
type TickReport struct {
	TaskID            string
	At                time.Time
	QuoteA            *pricingDomain.PriceQuote
	QuoteB            *pricingDomain.PriceQuote
	Spread            pricingDomain.SpreadReading
	ThresholdPercent  float64
	Outcome           TickOutcome
	CooldownRemaining time.Duration
	Alert             *Alert
}
