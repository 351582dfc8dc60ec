// Package app contains the monitor application service and its ports.
package app

import (
	"context"
	"time"

	"github.com/fd1az/pricegap-monitor/business/monitor/domain"
	pricingDomain "github.com/fd1az/pricegap-monitor/business/pricing/domain"
)

// PriceFetcher is the pricing surface the monitor needs. SourceManager implements it.
type PriceFetcher interface {
	GetPrice(ctx context.Context, chain string) pricingDomain.PriceQuote
	BatchGetPrices(ctx context.Context, chains []string, maxParallel int) []pricingDomain.PriceQuote
}

// QuoteCache is read for fresh quotes and stale fallback. PriceCache implements it.
type QuoteCache interface {
	Get(ctx context.Context, chain, pair string) (pricingDomain.PriceQuote, bool, bool)
}

// Notifier delivers alerts. Implementations must respect ctx.
type Notifier interface {
	Notify(ctx context.Context, alert domain.Alert) error
}

// TickObserver receives every completed tick. It must not block.
type TickObserver interface {
	ObserveTick(report domain.TickReport)
}

// Ticker abstracts time.Ticker so tests can drive the loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}
