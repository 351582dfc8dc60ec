// Package di contains dependency injection tokens for the pricing context.
package di

import (
	"github.com/fd1az/pricegap-monitor/business/pricing/app"
	"github.com/fd1az/pricegap-monitor/internal/di"
	"github.com/fd1az/pricegap-monitor/internal/ratelimit"
)

// Public service tokens - exposed to other modules
var (
	SourceManager = di.NewToken[*app.SourceManager]("pricing.SourceManager")
	PriceCache    = di.NewToken[*app.PriceCache]("pricing.PriceCache")
)

// Private dependency tokens - internal to pricing module
var (
	Sources      = di.NewToken[[]app.PriceSource]("pricing:sources")
	IndexLimiter = di.NewToken[*ratelimit.Limiter]("pricing:indexLimiter")
)

// Helper functions for type-safe access
func GetSourceManager(c di.ServiceRegistry) *app.SourceManager {
	return di.GetToken(c, SourceManager)
}

func GetPriceCache(c di.ServiceRegistry) *app.PriceCache {
	return di.GetToken(c, PriceCache)
}

func GetSources(c di.ServiceRegistry) []app.PriceSource {
	return di.GetToken(c, Sources)
}

func GetIndexLimiter(c di.ServiceRegistry) *ratelimit.Limiter {
	return di.GetToken(c, IndexLimiter)
}
