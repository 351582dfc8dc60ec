package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/internal/apperror"
	"github.com/fd1az/pricegap-monitor/internal/logger"
)

const (
	tracerName = "github.com/fd1az/pricegap-monitor/business/pricing/app"
	meterName  = "github.com/fd1az/pricegap-monitor/business/pricing/app"

	// DefaultMaxParallel is the batch chunk size when none is given.
	DefaultMaxParallel = 4
	// DefaultRequestTimeout bounds a single source call.
	DefaultRequestTimeout = 10 * time.Second
)

// ManagerConfig holds SourceManager settings.
type ManagerConfig struct {
	RequestTimeout time.Duration
	MaxParallel    int
	Clock          func() time.Time
}

type managerMetrics struct {
	attempts metric.Int64Counter
	latency  metric.Float64Histogram
	failures metric.Int64Counter
}

// SourceManager tries price sources in priority order and caches the first success.
type SourceManager struct {
	sources  []PriceSource
	registry *domain.ChainRegistry
	cache    *PriceCache
	logger   logger.LoggerInterface

	timeout     time.Duration
	maxParallel int
	now         func() time.Time

	tracer  trace.Tracer
	metrics *managerMetrics
}

// NewSourceManager creates a SourceManager. Sources are sorted by priority;
// ties keep their given order.
func NewSourceManager(cfg ManagerConfig, registry *domain.ChainRegistry, cache *PriceCache, log logger.LoggerInterface, sources ...PriceSource) (*SourceManager, error) {
	if registry == nil {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("chain registry is required"))
	}
	if len(sources) == 0 {
		return nil, apperror.New(apperror.CodeSourceNotConfigured, apperror.WithContext("no price sources"))
	}

	sorted := slices.Clone(sources)
	slices.SortStableFunc(sorted, func(a, b PriceSource) int {
		return a.Priority() - b.Priority()
	})

	m := &SourceManager{
		sources:     sorted,
		registry:    registry,
		cache:       cache,
		logger:      log,
		timeout:     cfg.RequestTimeout,
		maxParallel: cfg.MaxParallel,
		now:         cfg.Clock,
		tracer:      otel.Tracer(tracerName),
	}
	if m.timeout <= 0 {
		m.timeout = DefaultRequestTimeout
	}
	if m.maxParallel <= 0 {
		m.maxParallel = DefaultMaxParallel
	}
	if m.now == nil {
		m.now = time.Now
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return m, nil
}

func (m *SourceManager) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	m.metrics = &managerMetrics{}

	m.metrics.attempts, err = meter.Int64Counter(
		"price_source_attempts_total",
		metric.WithDescription("Price source calls by source and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	m.metrics.latency, err = meter.Float64Histogram(
		"price_source_latency_ms",
		metric.WithDescription("Price source call latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.metrics.failures, err = meter.Int64Counter(
		"price_all_sources_failed_total",
		metric.WithDescription("Lookups where every source failed"),
		metric.WithUnit("{lookup}"),
	)
	return err
}

// Sources returns source names in the order they are tried.
func (m *SourceManager) Sources() []string {
	return lo.Map(m.sources, func(s PriceSource, _ int) string { return s.Name() })
}

// Registry returns the chain registry the manager validates against.
func (m *SourceManager) Registry() *domain.ChainRegistry {
	return m.registry
}

// Cache returns the cache successful quotes are written to.
func (m *SourceManager) Cache() *PriceCache {
	return m.cache
}

// GetPrice returns the first successful quote for chain. Source errors are
// folded into a failure quote and never returned.
func (m *SourceManager) GetPrice(ctx context.Context, chain string) domain.PriceQuote {
	ctx, span := m.tracer.Start(ctx, "pricing.get_price",
		trace.WithAttributes(attribute.String("chain", chain)),
	)
	defer span.End()

	desc, ok := m.registry.Describe(chain)
	if !ok {
		err := apperror.NotFound(apperror.CodeUnsupportedChain, chain)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unsupported chain")
		return domain.FailedQuote(chain, "", m.now(), err)
	}

	var errs []error
	for _, src := range m.sources {
		price, err := m.try(ctx, src, chain)
		if err == nil {
			q := domain.NewQuote(chain, desc.Pair, price, src.Name(), m.now())
			if m.cache != nil {
				m.cache.Put(ctx, chain, desc.Pair, q)
			}
			span.SetAttributes(
				attribute.String("provenance", src.Name()),
				attribute.Float64("price", price),
			)
			span.SetStatus(codes.Ok, "priced")
			return q
		}

		m.logger.Debug(ctx, "price source failed", "chain", chain, "source", src.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))

		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}

	m.metrics.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("chain", chain)))

	err := apperror.New(apperror.CodeAllSourcesFailed,
		apperror.WithCause(errors.Join(errs...)),
		apperror.WithContext(chain))
	span.RecordError(err)
	span.SetStatus(codes.Error, "all sources failed")

	return domain.FailedQuote(chain, desc.Pair, m.now(), err)
}

// try runs one source under the per-call timeout and validates its answer.
func (m *SourceManager) try(ctx context.Context, src PriceSource, chain string) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	price, err := src.GetPrice(callCtx, chain)
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	if err == nil && (price <= 0 || math.IsNaN(price) || math.IsInf(price, 0)) {
		err = apperror.New(apperror.CodeMalformedResponse,
			apperror.WithContext(fmt.Sprintf("non-positive price %v", price)))
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("source", src.Name()),
		attribute.String("chain", chain),
		attribute.String("outcome", outcome),
	)
	m.metrics.attempts.Add(ctx, 1, attrs)
	m.metrics.latency.Record(ctx, elapsed, attrs)

	return price, err
}

// BatchGetPrices prices chains in chunks of maxParallel. Chunks run one after
// another; chains inside a chunk run concurrently. The result has one quote
// per input chain, in input order.
func (m *SourceManager) BatchGetPrices(ctx context.Context, chains []string, maxParallel int) []domain.PriceQuote {
	if maxParallel <= 0 {
		maxParallel = m.maxParallel
	}

	ctx, span := m.tracer.Start(ctx, "pricing.batch_get_prices",
		trace.WithAttributes(
			attribute.Int("chains", len(chains)),
			attribute.Int("max_parallel", maxParallel),
		),
	)
	defer span.End()

	results := make([]domain.PriceQuote, len(chains))
	offset := 0

	for _, chunk := range lo.Chunk(chains, maxParallel) {
		if err := ctx.Err(); err != nil {
			for i, chain := range chunk {
				results[offset+i] = domain.FailedQuote(chain, "", m.now(), err)
			}
			offset += len(chunk)
			continue
		}

		var g errgroup.Group
		for i, chain := range chunk {
			idx := offset + i
			g.Go(func() error {
				results[idx] = m.GetPrice(ctx, chain)
				return nil
			})
		}
		_ = g.Wait()

		offset += len(chunk)
	}

	return results
}
