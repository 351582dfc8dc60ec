package notify

import "github.com/fd1az/pricegap-monitor/business/monitor/domain"

// envelope is the wire shape shared by the webhook, websocket and redis sinks.
type envelope struct {
	Type    string       `json:"type"`
	Summary string       `json:"summary"`
	Alert   domain.Alert `json:"alert"`
}

func newEnvelope(a domain.Alert) envelope {
	return envelope{Type: "spread_alert", Summary: a.Summary(), Alert: a}
}
