package onchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	blockchainApp "github.com/fd1az/pricegap-monitor/business/blockchain/app"
	"github.com/fd1az/pricegap-monitor/business/pricing/app"
	"github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/internal/apperror"
	"github.com/fd1az/pricegap-monitor/internal/logger"
)

// Ensure PoolSource implements PriceSource.
var _ app.PriceSource = (*PoolSource)(nil)

// PoolSource prices the pair from the configured AMM pool's state.
type PoolSource struct {
	registry *domain.ChainRegistry
	callers  CallerProvider
	abis     *contractABIs
	verified *verifier
	logger   logger.LoggerInterface

	tracer  trace.Tracer
	metrics *sourceMetrics
}

// NewPoolSource creates a PoolSource.
func NewPoolSource(registry *domain.ChainRegistry, callers CallerProvider, log logger.LoggerInterface) (*PoolSource, error) {
	abis, err := parseABIs()
	if err != nil {
		return nil, err
	}

	m, err := newSourceMetrics("pool_source")
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	return &PoolSource{
		registry: registry,
		callers:  callers,
		abis:     abis,
		verified: newVerifier(),
		logger:   log,
		tracer:   otel.Tracer(tracerName),
		metrics:  m,
	}, nil
}

func (s *PoolSource) Name() string  { return app.SourcePool }
func (s *PoolSource) Priority() int { return 1 }

// Verify checks every configured pool once. Failures are logged; unusable
// pools are skipped by later GetPrice calls.
func (s *PoolSource) Verify(ctx context.Context) {
	for _, chain := range s.registry.AllChains() {
		desc, _ := s.registry.Describe(chain)
		if !desc.HasPool() {
			continue
		}
		caller, err := s.callers.Client(chain)
		if err != nil {
			continue
		}
		if _, err := s.verify(ctx, chain, caller, *desc.Pool); err != nil {
			s.logger.Warn(ctx, "pool verification failed", "chain", chain, "pool", desc.Pool.Address.Hex(), "error", err)
		}
	}
}

// GetPrice reads the pool and converts its state to a base/quote price.
func (s *PoolSource) GetPrice(ctx context.Context, chain string) (float64, error) {
	ctx, span := s.tracer.Start(ctx, "pool.get_price",
		trace.WithAttributes(attribute.String("chain", chain)),
	)
	defer span.End()

	start := time.Now()
	attrs := metric.WithAttributes(attribute.String("chain", chain))
	s.metrics.reads.Add(ctx, 1, attrs)

	price, err := s.read(ctx, chain)
	s.metrics.readLatency.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)

	if err != nil {
		s.metrics.readErrors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, "pool read failed")
		return 0, err
	}

	f := price.InexactFloat64()
	s.metrics.lastPrice.Record(ctx, f, attrs)
	span.SetAttributes(attribute.String("price", price.String()))
	span.SetStatus(codes.Ok, "priced")

	return f, nil
}

func (s *PoolSource) read(ctx context.Context, chain string) (decimal.Decimal, error) {
	desc, ok := s.registry.Describe(chain)
	if !ok {
		return decimal.Zero, unsupported(chain)
	}
	if !desc.HasPool() {
		return decimal.Zero, notConfigured(s.Name(), chain)
	}
	pool := *desc.Pool

	caller, err := s.callers.Client(chain)
	if err != nil {
		return decimal.Zero, apperror.New(apperror.CodeSourceNotConfigured,
			apperror.WithCause(err),
			apperror.WithContext(chain))
	}

	if _, err := s.verify(ctx, chain, caller, pool); err != nil {
		return decimal.Zero, err
	}

	var price decimal.Decimal
	switch pool.Variant {
	case domain.ConstantProduct:
		out, err := call(ctx, caller, s.abis.pairV2, pool.Address, methodGetReserves)
		if err != nil {
			return decimal.Zero, err
		}
		r0, r1, err := reservesFrom(out)
		if err != nil {
			return decimal.Zero, err
		}
		price, err = domain.PriceFromReserves(r0, r1, pool.Decimals, pool.Order)
		if err != nil {
			return decimal.Zero, malformed(chain, err)
		}

	case domain.ConcentratedLiquidity:
		out, err := call(ctx, caller, s.abis.poolV3, pool.Address, methodSlot0)
		if err != nil {
			return decimal.Zero, err
		}
		sqrtP, err := sqrtPriceFrom(out)
		if err != nil {
			return decimal.Zero, err
		}
		price, err = domain.PriceFromSqrtPriceX96(sqrtP, pool.Decimals, pool.Order)
		if err != nil {
			return decimal.Zero, malformed(chain, err)
		}

	default:
		return decimal.Zero, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(fmt.Sprintf("unknown pool variant %q", pool.Variant)))
	}

	if !price.IsPositive() {
		return decimal.Zero, malformed(chain, errNonPositive)
	}
	return price, nil
}

// verify probes the pool with the read its variant relies on.
func (s *PoolSource) verify(ctx context.Context, chain string, caller blockchainApp.ContractCaller, pool domain.PoolDescriptor) (any, error) {
	return s.verified.verify(ctx, chain, caller, pool.Address, func(ctx context.Context) (any, error) {
		switch pool.Variant {
		case domain.ConstantProduct:
			out, err := call(ctx, caller, s.abis.pairV2, pool.Address, methodGetReserves)
			if err != nil {
				return nil, err
			}
			_, _, err = reservesFrom(out)
			return nil, err
		default:
			out, err := call(ctx, caller, s.abis.poolV3, pool.Address, methodSlot0)
			if err != nil {
				return nil, err
			}
			_, err = sqrtPriceFrom(out)
			return nil, err
		}
	})
}

func reservesFrom(out []any) (*big.Int, *big.Int, error) {
	if len(out) < 2 {
		return nil, nil, malformedOutput(methodGetReserves, len(out))
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, malformedOutput(methodGetReserves, len(out))
	}
	return r0, r1, nil
}

func sqrtPriceFrom(out []any) (*big.Int, error) {
	if len(out) < 1 {
		return nil, malformedOutput(methodSlot0, len(out))
	}
	sqrtP, ok := out[0].(*big.Int)
	if !ok {
		return nil, malformedOutput(methodSlot0, len(out))
	}
	return sqrtP, nil
}

func malformedOutput(method string, n int) error {
	return apperror.New(apperror.CodeMalformedResponse,
		apperror.WithContext(fmt.Sprintf("unexpected %s output (%d values)", method, n)))
}

func malformed(chain string, cause error) error {
	return apperror.New(apperror.CodeMalformedResponse,
		apperror.WithCause(cause),
		apperror.WithContext(chain))
}
