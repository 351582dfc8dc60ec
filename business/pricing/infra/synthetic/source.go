// Package synthetic provides a labelled random-walk price source for -demo runs.
// It is never registered outside demo mode.
package synthetic

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/fd1az/pricegap-monitor/business/pricing/app"
	"github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/internal/apperror"
)

// Ensure Source implements PriceSource.
var _ app.PriceSource = (*Source)(nil)

// Config shapes the walk.
type Config struct {
	Base       float64 // starting mid price
	Volatility float64 // max relative step per call, e.g. 0.002
	Skew       float64 // max per-chain offset from Base, e.g. 0.01
	Seed       uint64
}

// DefaultConfig returns an ETH-like walk around 3000 with occasional gaps.
func DefaultConfig() Config {
	return Config{Base: 3000, Volatility: 0.002, Skew: 0.01, Seed: 1}
}

// Source walks an independent price per chain.
type Source struct {
	cfg      Config
	registry *domain.ChainRegistry

	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
}

// New creates a synthetic Source.
func New(cfg Config, registry *domain.ChainRegistry) *Source {
	if cfg.Base <= 0 {
		cfg.Base = DefaultConfig().Base
	}
	return &Source{
		cfg:      cfg,
		registry: registry,
		rng:      rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		prices:   make(map[string]float64),
	}
}

func (s *Source) Name() string  { return app.SourceSynthetic }
func (s *Source) Priority() int { return 0 }

// GetPrice advances the chain's walk by one step and returns it.
func (s *Source) GetPrice(ctx context.Context, chain string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !s.registry.Has(chain) {
		return 0, apperror.NotFound(apperror.CodeUnsupportedChain, chain)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.prices[chain]
	if !ok {
		p = s.cfg.Base * (1 + s.cfg.Skew*offset(chain))
	}

	step := (s.rng.Float64()*2 - 1) * s.cfg.Volatility
	p *= 1 + step

	// keep each chain within Skew of the base so the gap stays bounded
	lo, hi := s.cfg.Base*(1-2*s.cfg.Skew), s.cfg.Base*(1+2*s.cfg.Skew)
	p = math.Min(math.Max(p, lo), hi)

	s.prices[chain] = p
	return p, nil
}

// offset maps a chain name to a stable value in [-1, 1].
func offset(chain string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(chain))
	return float64(h.Sum32()%2001)/1000 - 1
}
