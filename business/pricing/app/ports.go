// Package app contains application services and port definitions for the pricing context.
package app

import "context"

// Source names double as quote provenance.
const (
	SourcePool      = "pool"
	SourceOracle    = "oracle"
	SourceApi       = "api"
	SourceIndex     = "index"
	SourceSynthetic = "synthetic"
)

// PriceSource produces a reference price for a chain's configured pair.
type PriceSource interface {
	// Name identifies the source in quotes, logs and metrics.
	Name() string

	// Priority orders sources ascending; lower values are tried first.
	Priority() int

	// GetPrice returns a positive price or an error describing why none is available.
	GetPrice(ctx context.Context, chain string) (float64, error)
}
