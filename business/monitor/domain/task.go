// Package domain contains the core domain types for the monitor context.
package domain

import (
	"fmt"
	"strings"
	"time"

	pricingDomain "github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/internal/apperror"
)

// MonitoringTask watches the spread between the same pair on two chains.
type MonitoringTask struct {
	ID               string                  `json:"id"`
	ChainA           pricingDomain.ChainPair `json:"-"`
	ChainB           pricingDomain.ChainPair `json:"-"`
	ThresholdPercent float64                 `json:"thresholdPercent"`
	CooldownSeconds  int64                   `json:"cooldownSeconds"`

	// Active tasks evaluate spreads on every tick; inactive ones only report.
	Active bool `json:"active"`

	// LastAlertAtUnixMillis seeds the cooldown gate; nil means never alerted.
	LastAlertAtUnixMillis *int64 `json:"lastAlertAtUnixMillis,omitempty"`
}

// NewMonitoringTask parses both "chain:pair" encodings and validates the limits.
func NewMonitoringTask(id, chainA, chainB string, thresholdPercent float64, cooldownSeconds int64) (MonitoringTask, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return MonitoringTask{}, apperror.Validation(apperror.CodeValidationError, "task id is required")
	}

	a, err := pricingDomain.ParseChainPair(chainA)
	if err != nil {
		return MonitoringTask{}, err
	}
	b, err := pricingDomain.ParseChainPair(chainB)
	if err != nil {
		return MonitoringTask{}, err
	}

	if thresholdPercent < 0 {
		return MonitoringTask{}, apperror.Validation(apperror.CodeValidationError,
			fmt.Sprintf("threshold %v is negative", thresholdPercent))
	}
	if cooldownSeconds < 0 {
		return MonitoringTask{}, apperror.Validation(apperror.CodeValidationError,
			fmt.Sprintf("cooldown %d is negative", cooldownSeconds))
	}

	return MonitoringTask{
		ID:               id,
		ChainA:           a,
		ChainB:           b,
		ThresholdPercent: thresholdPercent,
		CooldownSeconds:  cooldownSeconds,
		Active:           true,
	}, nil
}

// ChainPair returns both encodings as "chain:pair".
func (t MonitoringTask) ChainPair() [2]string {
	return [2]string{t.ChainA.String(), t.ChainB.String()}
}

// Cooldown returns the cooldown as a duration.
func (t MonitoringTask) Cooldown() time.Duration {
	return time.Duration(t.CooldownSeconds) * time.Second
}

// TaskSnapshot is a point-in-time view of a running task.
type TaskSnapshot struct {
	ID               string     `json:"id"`
	ChainPair        [2]string  `json:"chainPair"`
	ThresholdPercent float64    `json:"thresholdPercent"`
	CooldownSeconds  int64      `json:"cooldownSeconds"`
	Interval         string     `json:"interval"`
	Active           bool       `json:"active"`
	LastAlertAt      *time.Time `json:"lastAlertAt,omitempty"`
	LastTickAt       *time.Time `json:"lastTickAt,omitempty"`
	Ticks            int64      `json:"ticks"`
	SkippedTicks     int64      `json:"skippedTicks"`
	Alerts           int64      `json:"alerts"`
}
