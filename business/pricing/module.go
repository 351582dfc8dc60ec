// Package pricing implements the pricing bounded context: price sources,
// priority fallback and the quote cache.
package pricing

import (
	"context"
	"fmt"
	"time"

	blockchainDI "github.com/fd1az/pricegap-monitor/business/blockchain/di"
	"github.com/fd1az/pricegap-monitor/business/pricing/app"
	pricingDI "github.com/fd1az/pricegap-monitor/business/pricing/di"
	"github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/business/pricing/infra/aggregator"
	"github.com/fd1az/pricegap-monitor/business/pricing/infra/onchain"
	"github.com/fd1az/pricegap-monitor/business/pricing/infra/synthetic"
	"github.com/fd1az/pricegap-monitor/internal/config"
	"github.com/fd1az/pricegap-monitor/internal/di"
	"github.com/fd1az/pricegap-monitor/internal/logger"
	"github.com/fd1az/pricegap-monitor/internal/monolith"
	"github.com/fd1az/pricegap-monitor/internal/ratelimit"
)

// Module implements the pricing bounded context.
type Module struct{}

// verifier is implemented by sources that probe their contracts at startup.
type verifier interface {
	Verify(ctx context.Context)
}

// RegisterServices registers all pricing services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register IndexLimiter - one instance shared by every index caller
	di.RegisterToken(c, pricingDI.IndexLimiter, func(sr di.ServiceRegistry) *ratelimit.Limiter {
		cfg := sr.Get("config").(*config.Config)
		return ratelimit.NewInterval(cfg.Sources.Index.Interval)
	})

	// Register Sources - private dependency
	di.RegisterToken(c, pricingDI.Sources, func(sr di.ServiceRegistry) []app.PriceSource {
		cfg := sr.Get("config").(*config.Config)
		sources, err := buildSources(cfg, sr)
		if err != nil {
			panic("failed to create price sources: " + err.Error())
		}
		return sources
	})

	// Register PriceCache (public)
	di.RegisterToken(c, pricingDI.PriceCache, func(sr di.ServiceRegistry) *app.PriceCache {
		cfg := sr.Get("config").(*config.Config)
		return app.NewPriceCache(cfg.Engine.CacheTTL, nil)
	})

	// Register SourceManager (public - exposed to other modules)
	di.RegisterToken(c, pricingDI.SourceManager, func(sr di.ServiceRegistry) *app.SourceManager {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		registry := sr.Get("chainRegistry").(*domain.ChainRegistry)

		mgr, err := app.NewSourceManager(app.ManagerConfig{
			RequestTimeout: cfg.Engine.RequestTimeout,
			MaxParallel:    cfg.Engine.MaxParallel,
		}, registry, pricingDI.GetPriceCache(sr), log, pricingDI.GetSources(sr)...)
		if err != nil {
			panic("failed to create source manager: " + err.Error())
		}
		return mgr
	})

	return nil
}

// buildSources creates the enabled sources in configuration order. Demo mode
// replaces them all with the synthetic source.
func buildSources(cfg *config.Config, sr di.ServiceRegistry) ([]app.PriceSource, error) {
	log := sr.Get("logger").(logger.LoggerInterface)
	registry := sr.Get("chainRegistry").(*domain.ChainRegistry)

	if cfg.DemoMode {
		return []app.PriceSource{synthetic.New(synthetic.DefaultConfig(), registry)}, nil
	}

	var sources []app.PriceSource
	for _, name := range cfg.Sources.Enabled {
		var (
			src app.PriceSource
			err error
		)

		switch name {
		case app.SourcePool:
			src, err = onchain.NewPoolSource(registry, blockchainDI.GetBlockchainService(sr), log)
		case app.SourceOracle:
			src, err = onchain.NewOracleSource(registry, blockchainDI.GetBlockchainService(sr), log)
		case app.SourceApi:
			src, err = aggregator.NewApiSource(aggregator.ApiConfig{
				TokenPriceURL:     cfg.Sources.Api.TokenPriceURL,
				DexPairURL:        cfg.Sources.Api.DexPairURL,
				Timeout:           cfg.Engine.RequestTimeout,
				RequestsPerMinute: cfg.Sources.Api.RequestsPerMinute,
			}, registry, log)
		case app.SourceIndex:
			src, err = aggregator.NewIndexSource(aggregator.IndexConfig{
				URL:        cfg.Sources.Index.URL,
				CoinID:     cfg.Sources.Index.CoinID,
				VsCurrency: cfg.Sources.Index.VsCurrency,
				Timeout:    cfg.Engine.RequestTimeout,
			}, registry, pricingDI.GetIndexLimiter(sr), log)
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		sources = append(sources, src)
	}

	return sources, nil
}

// Startup verifies on-chain contracts so unusable ones are skipped from the first tick.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	mgr := pricingDI.GetSourceManager(mono.Services())

	if !mono.Config().DemoMode {
		verifyCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		defer cancel()

		for _, src := range pricingDI.GetSources(mono.Services()) {
			if v, ok := src.(verifier); ok {
				v.Verify(verifyCtx)
			}
		}
	}

	log.Info(ctx, "pricing module started",
		"sources", mgr.Sources(),
		"cache_ttl", mgr.Cache().TTL().String(),
		"demo", mono.Config().DemoMode,
	)
	return nil
}
