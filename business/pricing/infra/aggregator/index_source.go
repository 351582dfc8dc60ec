package aggregator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/pricegap-monitor/business/pricing/app"
	"github.com/fd1az/pricegap-monitor/business/pricing/domain"
	"github.com/fd1az/pricegap-monitor/internal/apperror"
	"github.com/fd1az/pricegap-monitor/internal/httpclient"
	"github.com/fd1az/pricegap-monitor/internal/logger"
	"github.com/fd1az/pricegap-monitor/internal/ratelimit"
)

// Ensure IndexSource implements PriceSource.
var _ app.PriceSource = (*IndexSource)(nil)

// IndexConfig configures the market index lookup.
type IndexConfig struct {
	URL        string
	CoinID     string
	VsCurrency string
	Timeout    time.Duration
}

// IndexSource returns a chain-agnostic market index price for the base asset.
// Every chain gets the same number, so it is the last resort.
type IndexSource struct {
	cfg      IndexConfig
	registry *domain.ChainRegistry
	client   httpclient.Client
	limiter  *ratelimit.Limiter
	logger   logger.LoggerInterface
	tracer   trace.Tracer
}

// NewIndexSource creates an IndexSource. limiter is shared by every caller of
// the index endpoint; nil disables throttling.
func NewIndexSource(cfg IndexConfig, registry *domain.ChainRegistry, limiter *ratelimit.Limiter, log logger.LoggerInterface) (*IndexSource, error) {
	if cfg.URL == "" {
		return nil, apperror.New(apperror.CodeSourceNotConfigured, apperror.WithContext("index url is empty"))
	}
	if cfg.CoinID == "" {
		cfg.CoinID = "ethereum"
	}
	if cfg.VsCurrency == "" {
		cfg.VsCurrency = "usd"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if limiter == nil {
		limiter = ratelimit.NewInterval(0)
	}

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("market-index"),
		httpclient.WithBaseURL(cfg.URL),
		httpclient.WithRequestTimeout(cfg.Timeout),
		httpclient.WithHeaders(map[string]string{"Accept": "application/json"}),
	)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	return &IndexSource{
		cfg:      cfg,
		registry: registry,
		client:   client,
		limiter:  limiter,
		logger:   log,
		tracer:   otelTracer(),
	}, nil
}

func (s *IndexSource) Name() string  { return app.SourceIndex }
func (s *IndexSource) Priority() int { return 4 }

// GetPrice waits for the shared limiter, then queries /simple/price.
func (s *IndexSource) GetPrice(ctx context.Context, chain string) (float64, error) {
	ctx, span := s.tracer.Start(ctx, "index.get_price",
		trace.WithAttributes(
			attribute.String("chain", chain),
			attribute.String("coin", s.cfg.CoinID),
		),
	)
	defer span.End()

	if !s.registry.Has(chain) {
		return 0, apperror.NotFound(apperror.CodeUnsupportedChain, chain)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		return 0, apperror.New(apperror.CodeRateLimitExceeded, apperror.WithCause(err),
			apperror.WithContext("index limiter"))
	}

	resp, err := s.client.NewRequest("simple_price").SetQueryParams(map[string]string{
		"ids":           s.cfg.CoinID,
		"vs_currencies": s.cfg.VsCurrency,
	}).Get(ctx, "/simple/price")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return 0, err
	}

	path := gjson.Escape(s.cfg.CoinID) + "." + gjson.Escape(strings.ToLower(s.cfg.VsCurrency))
	price, err := positive(gjson.GetBytes(resp.Body(), path), path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed")
		return 0, err
	}

	span.SetAttributes(attribute.Float64("price", price))
	span.SetStatus(codes.Ok, "priced")
	return price, nil
}
