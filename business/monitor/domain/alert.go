package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	pricingDomain "github.com/fd1az/pricegap-monitor/business/pricing/domain"
)

// Alert is raised when a task's spread exceeds its threshold outside cooldown.
type Alert struct {
	ID               string    `json:"id"`
	TaskID           string    `json:"taskId"`
	ChainA           string    `json:"chainA"`
	ChainB           string    `json:"chainB"`
	PriceA           float64   `json:"priceA"`
	PriceB           float64   `json:"priceB"`
	ProvenanceA      string    `json:"provenanceA"`
	ProvenanceB      string    `json:"provenanceB"`
	SpreadPercent    float64   `json:"spreadPercent"`
	ThresholdPercent float64   `json:"thresholdPercent"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewAlert builds an alert from both quotes.
func NewAlert(task MonitoringTask, a, b pricingDomain.PriceQuote, spread float64, at time.Time) Alert {
	return Alert{
		ID:               uuid.NewString(),
		TaskID:           task.ID,
		ChainA:           task.ChainA.String(),
		ChainB:           task.ChainB.String(),
		PriceA:           a.Price,
		PriceB:           b.Price,
		ProvenanceA:      a.Provenance,
		ProvenanceB:      b.Provenance,
		SpreadPercent:    spread,
		ThresholdPercent: task.ThresholdPercent,
		Timestamp:        at,
	}
}

// Summary is a one-line description for logs and chat sinks.
func (a Alert) Summary() string {
	return fmt.Sprintf("[%s] %s %.4f (%s) vs %s %.4f (%s): spread %.3f%% > %.3f%%",
		a.TaskID, a.ChainA, a.PriceA, a.ProvenanceA, a.ChainB, a.PriceB, a.ProvenanceB,
		a.SpreadPercent, a.ThresholdPercent)
}
