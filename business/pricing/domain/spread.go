package domain

import "math"

// SpreadDirection indicates which side of a comparison is priced higher.
type SpreadDirection string

const (
	SpreadAAboveB SpreadDirection = "A_ABOVE_B"
	SpreadBAboveA SpreadDirection = "B_ABOVE_A"
	SpreadNone    SpreadDirection = "NONE"
)

// Spread is the relative difference between two prices, in percent of the
// smaller one. It is 0 when either price is not positive.
func Spread(p1, p2 float64) float64 {
	if p1 <= 0 || p2 <= 0 {
		return 0
	}
	return math.Abs(p1-p2) / math.Min(p1, p2) * 100
}

// IsAbnormal reports whether the spread strictly exceeds thresholdPercent.
func IsAbnormal(p1, p2, thresholdPercent float64) bool {
	return Spread(p1, p2) > thresholdPercent
}

// SpreadReading is a spread evaluation with both inputs attached.
type SpreadReading struct {
	PriceA    float64         `json:"priceA"`
	PriceB    float64         `json:"priceB"`
	Percent   float64         `json:"spreadPercent"`
	Direction SpreadDirection `json:"direction"`
}

// ReadSpread evaluates the spread between a and b.
func ReadSpread(a, b float64) SpreadReading {
	r := SpreadReading{
		PriceA:    a,
		PriceB:    b,
		Percent:   Spread(a, b),
		Direction: SpreadNone,
	}

	if r.Percent > 0 {
		switch {
		case a > b:
			r.Direction = SpreadAAboveB
		case b > a:
			r.Direction = SpreadBAboveA
		}
	}

	return r
}

// Exceeds reports whether the reading strictly exceeds thresholdPercent.
func (r SpreadReading) Exceeds(thresholdPercent float64) bool {
	return r.Percent > thresholdPercent
}
