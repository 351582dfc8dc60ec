package onchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
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

// Ensure OracleSource implements PriceSource.
var _ app.PriceSource = (*OracleSource)(nil)

// OracleSource prices the pair from a price feed aggregator.
type OracleSource struct {
	registry *domain.ChainRegistry
	callers  CallerProvider
	abis     *contractABIs
	verified *verifier
	logger   logger.LoggerInterface

	tracer  trace.Tracer
	metrics *sourceMetrics
}

// NewOracleSource creates an OracleSource.
func NewOracleSource(registry *domain.ChainRegistry, callers CallerProvider, log logger.LoggerInterface) (*OracleSource, error) {
	abis, err := parseABIs()
	if err != nil {
		return nil, err
	}

	m, err := newSourceMetrics("oracle_source")
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	return &OracleSource{
		registry: registry,
		callers:  callers,
		abis:     abis,
		verified: newVerifier(),
		logger:   log,
		tracer:   otel.Tracer(tracerName),
		metrics:  m,
	}, nil
}

func (s *OracleSource) Name() string  { return app.SourceOracle }
func (s *OracleSource) Priority() int { return 2 }

// Verify checks every configured feed once and caches its decimals.
func (s *OracleSource) Verify(ctx context.Context) {
	for _, chain := range s.registry.AllChains() {
		desc, _ := s.registry.Describe(chain)
		if !desc.HasOracle() {
			continue
		}
		caller, err := s.callers.Client(chain)
		if err != nil {
			continue
		}
		if _, err := s.decimals(ctx, chain, caller, desc.Oracle.FeedAddress); err != nil {
			s.logger.Warn(ctx, "oracle verification failed", "chain", chain, "feed", desc.Oracle.FeedAddress.Hex(), "error", err)
		}
	}
}

// GetPrice reads latestRoundData and scales the answer by the feed's decimals.
func (s *OracleSource) GetPrice(ctx context.Context, chain string) (float64, error) {
	ctx, span := s.tracer.Start(ctx, "oracle.get_price",
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
		span.SetStatus(codes.Error, "feed read failed")
		return 0, err
	}

	f := price.InexactFloat64()
	s.metrics.lastPrice.Record(ctx, f, attrs)
	span.SetAttributes(attribute.String("price", price.String()))
	span.SetStatus(codes.Ok, "priced")

	return f, nil
}

func (s *OracleSource) read(ctx context.Context, chain string) (decimal.Decimal, error) {
	desc, ok := s.registry.Describe(chain)
	if !ok {
		return decimal.Zero, unsupported(chain)
	}
	if !desc.HasOracle() {
		return decimal.Zero, notConfigured(s.Name(), chain)
	}
	feed := desc.Oracle.FeedAddress

	caller, err := s.callers.Client(chain)
	if err != nil {
		return decimal.Zero, apperror.New(apperror.CodeSourceNotConfigured,
			apperror.WithCause(err),
			apperror.WithContext(chain))
	}

	decimals, err := s.decimals(ctx, chain, caller, feed)
	if err != nil {
		return decimal.Zero, err
	}

	out, err := call(ctx, caller, s.abis.aggregator, feed, methodLatestRoundData)
	if err != nil {
		return decimal.Zero, err
	}
	if len(out) < 2 {
		return decimal.Zero, malformedOutput(methodLatestRoundData, len(out))
	}
	answer, ok := out[1].(*big.Int)
	if !ok {
		return decimal.Zero, malformedOutput(methodLatestRoundData, len(out))
	}
	if answer.Sign() <= 0 {
		return decimal.Zero, malformed(chain, errNonPositive)
	}

	return domain.ScaleAnswer(answer, decimals), nil
}

// decimals verifies the feed on first use and returns its cached decimals.
func (s *OracleSource) decimals(ctx context.Context, chain string, caller blockchainApp.ContractCaller, feed common.Address) (uint8, error) {
	meta, err := s.verified.verify(ctx, chain, caller, feed, func(ctx context.Context) (any, error) {
		out, err := call(ctx, caller, s.abis.aggregator, feed, methodDecimals)
		if err != nil {
			return nil, err
		}
		if len(out) < 1 {
			return nil, malformedOutput(methodDecimals, len(out))
		}
		d, ok := out[0].(uint8)
		if !ok {
			return nil, malformedOutput(methodDecimals, len(out))
		}
		return d, nil
	})
	if err != nil {
		return 0, err
	}
	return meta.(uint8), nil
}
