package domain

import "time"

// PriceQuote is a single price observation with provenance.
type PriceQuote struct {
	Chain      string    `json:"chain"`
	Pair       string    `json:"pair"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observedAt"`
	Provenance string    `json:"provenance"`
	Success    bool      `json:"success"`
	Stale      bool      `json:"stale"`
	Error      string    `json:"error,omitempty"`
}

// NewQuote builds a successful quote.
func NewQuote(chain, pair string, price float64, provenance string, observedAt time.Time) PriceQuote {
	return PriceQuote{
		Chain:      chain,
		Pair:       pair,
		Price:      price,
		ObservedAt: observedAt,
		Provenance: provenance,
		Success:    true,
	}
}

// FailedQuote builds a failure marker. It never carries a price.
func FailedQuote(chain, pair string, observedAt time.Time, err error) PriceQuote {
	q := PriceQuote{
		Chain:      chain,
		Pair:       pair,
		ObservedAt: observedAt,
	}
	if err != nil {
		q.Error = err.Error()
	}
	return q
}

// ObservedAtUnixMillis returns the observation time in unix milliseconds.
func (q PriceQuote) ObservedAtUnixMillis() int64 {
	return q.ObservedAt.UnixMilli()
}

// Usable reports whether the quote carries a positive price.
func (q PriceQuote) Usable() bool {
	return q.Success && q.Price > 0
}

// Age returns how old the observation is at now.
func (q PriceQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.ObservedAt)
}
