// Package aggregator implements price sources backed by hosted price APIs.
package aggregator

import (
	"context"
	"errors"
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

// Ensure ApiSource implements PriceSource.
var _ app.PriceSource = (*ApiSource)(nil)

// ApiConfig holds the aggregator base URLs. An empty URL disables that lookup.
type ApiConfig struct {
	TokenPriceURL string
	DexPairURL    string
	Timeout       time.Duration
	// RequestsPerMinute caps calls across all lookups. Zero means unlimited.
	RequestsPerMinute int
}

// lookup is one aggregator query; ok=false means it has nothing configured for the chain.
type lookup struct {
	name string
	run  func(ctx context.Context, desc domain.ChainDescriptor) (float64, bool, error)
}

// ApiSource asks hosted aggregators in order: token price, DEX pair, subgraph.
// The first positive answer wins.
type ApiSource struct {
	cfg      ApiConfig
	registry *domain.ChainRegistry
	client   httpclient.Client
	logger   logger.LoggerInterface
	lookups  []lookup
	limiter  *ratelimit.Limiter
	tracer   trace.Tracer
}

// NewApiSource creates an ApiSource.
func NewApiSource(cfg ApiConfig, registry *domain.ChainRegistry, log logger.LoggerInterface) (*ApiSource, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("aggregator-api"),
		httpclient.WithRequestTimeout(cfg.Timeout),
		httpclient.WithHeaders(map[string]string{"Accept": "application/json"}),
	)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	s := &ApiSource{
		cfg:      cfg,
		registry: registry,
		client:   client,
		logger:   log,
		tracer:   otelTracer(),
	}
	if cfg.RequestsPerMinute > 0 {
		s.limiter = ratelimit.NewPerMinute(cfg.RequestsPerMinute)
	}
	s.lookups = []lookup{
		{name: "token_price", run: s.tokenPrice},
		{name: "dex_pair", run: s.dexPair},
		{name: "subgraph", run: s.subgraph},
	}

	return s, nil
}

func (s *ApiSource) Name() string  { return app.SourceApi }
func (s *ApiSource) Priority() int { return 3 }

// GetPrice runs the lookups in order and returns the first positive price.
func (s *ApiSource) GetPrice(ctx context.Context, chain string) (float64, error) {
	ctx, span := s.tracer.Start(ctx, "api.get_price",
		trace.WithAttributes(attribute.String("chain", chain)),
	)
	defer span.End()

	desc, ok := s.registry.Describe(chain)
	if !ok {
		return 0, apperror.NotFound(apperror.CodeUnsupportedChain, chain)
	}
	if !desc.HasApi() {
		return 0, apperror.New(apperror.CodeSourceNotConfigured,
			apperror.WithContext(fmt.Sprintf("api source has no identifiers for %s", chain)))
	}

	var errs []error
	tried := 0
	for _, l := range s.lookups {
		price, configured, err := l.run(ctx, desc)
		if !configured {
			continue
		}
		tried++

		if err == nil && price <= 0 {
			err = apperror.New(apperror.CodeMalformedResponse,
				apperror.WithContext(fmt.Sprintf("%s returned %v", l.name, price)))
		}
		if err == nil {
			span.SetAttributes(attribute.String("lookup", l.name), attribute.Float64("price", price))
			span.SetStatus(codes.Ok, "priced")
			return price, nil
		}

		span.AddEvent("lookup_failed", trace.WithAttributes(
			attribute.String("lookup", l.name),
			attribute.String("error", err.Error()),
		))
		s.logger.Debug(ctx, "aggregator lookup failed", "chain", chain, "lookup", l.name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
	}

	if tried == 0 {
		return 0, apperror.New(apperror.CodeSourceNotConfigured,
			apperror.WithContext(fmt.Sprintf("no aggregator endpoint configured for %s", chain)))
	}

	err := apperror.New(apperror.CodeSourceUnavailable,
		apperror.WithCause(errors.Join(errs...)),
		apperror.WithContext(chain))
	span.RecordError(err)
	span.SetStatus(codes.Error, "all lookups failed")
	return 0, err
}

// tokenPrice queries {base}/prices/current/{network}:{token}.
func (s *ApiSource) tokenPrice(ctx context.Context, desc domain.ChainDescriptor) (float64, bool, error) {
	api := desc.Api
	if s.cfg.TokenPriceURL == "" || api.Network == "" || api.TokenAddress == zeroAddress {
		return 0, false, nil
	}

	key := api.Network + ":" + api.TokenAddress.Hex()
	body, err := s.get(ctx, "token_price", s.cfg.TokenPriceURL, "/prices/current/"+key)
	if err != nil {
		return 0, true, err
	}

	res := gjson.GetBytes(body, "coins."+gjson.Escape(key)+".price")
	if !res.Exists() {
		// key casing is not guaranteed to round-trip
		res = gjson.GetBytes(body, "coins.*.price")
	}
	p, err := positive(res, "coins.<key>.price")
	return p, true, err
}

// dexPair queries {base}/latest/dex/pairs/{chainId}/{pair}.
func (s *ApiSource) dexPair(ctx context.Context, desc domain.ChainDescriptor) (float64, bool, error) {
	api := desc.Api
	if s.cfg.DexPairURL == "" || api.DexChainID == "" || api.PairAddress == zeroAddress {
		return 0, false, nil
	}

	body, err := s.get(ctx, "dex_pair", s.cfg.DexPairURL,
		"/latest/dex/pairs/"+api.DexChainID+"/"+api.PairAddress.Hex())
	if err != nil {
		return 0, true, err
	}

	res := gjson.GetBytes(body, "pairs.0.priceUsd")
	if !res.Exists() {
		res = gjson.GetBytes(body, "pair.priceUsd")
	}
	p, err := positive(res, "pairs.0.priceUsd")
	return p, true, err
}

// subgraph posts a pool query to the configured subgraph endpoint.
func (s *ApiSource) subgraph(ctx context.Context, desc domain.ChainDescriptor) (float64, bool, error) {
	api := desc.Api
	if api.SubgraphURL == "" || api.PoolID == "" {
		return 0, false, nil
	}

	query := map[string]any{
		"query": fmt.Sprintf(`{ pool(id: "%s") { token0Price token1Price } }`, strings.ToLower(api.PoolID)),
	}

	if err := s.wait(ctx); err != nil {
		return 0, true, err
	}
	resp, err := s.client.NewRequest("subgraph").SetBody(query).Post(ctx, api.SubgraphURL)
	if err != nil {
		return 0, true, err
	}
	body := resp.Body()

	if errMsg := gjson.GetBytes(body, "errors.0.message"); errMsg.Exists() {
		return 0, true, apperror.New(apperror.CodeMalformedResponse,
			apperror.WithContext("subgraph: "+errMsg.String()))
	}

	// token1Price is token0 priced in token1
	path := "data.pool.token0Price"
	if desc.Pool == nil || desc.Pool.Order.BaseIsToken0() {
		path = "data.pool.token1Price"
	}
	p, err := positive(gjson.GetBytes(body, path), path)
	return p, true, err
}

func (s *ApiSource) get(ctx context.Context, endpoint, baseURL, path string) ([]byte, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := s.client.NewRequest(endpoint).Get(ctx, strings.TrimSuffix(baseURL, "/")+path)
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (s *ApiSource) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return apperror.New(apperror.CodeRateLimitExceeded, apperror.WithCause(err))
	}
	return nil
}
