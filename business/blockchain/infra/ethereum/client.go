// Package ethereum provides EVM JSON-RPC infrastructure adapters.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/pricegap-monitor/business/blockchain/app"
	"github.com/fd1az/pricegap-monitor/business/blockchain/domain"
	"github.com/fd1az/pricegap-monitor/internal/apperror"
	"github.com/fd1az/pricegap-monitor/internal/circuitbreaker"
	"github.com/fd1az/pricegap-monitor/internal/logger"
)

const (
	tracerName = "github.com/fd1az/pricegap-monitor/business/blockchain/infra/ethereum"
	meterName  = "github.com/fd1az/pricegap-monitor/business/blockchain/infra/ethereum"
)

// Backend is the subset of *ethclient.Client used by DualClient.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, addr common.Address, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// Dialer opens a Backend for an endpoint URL.
type Dialer func(ctx context.Context, url string) (Backend, error)

// DialEthclient dials with go-ethereum's ethclient.
func DialEthclient(ctx context.Context, url string) (Backend, error) {
	return ethclient.DialContext(ctx, url)
}

// ClientConfig holds configuration for a chain's RPC client.
type ClientConfig struct {
	Chain       string
	PrimaryURL  string
	BackupURL   string
	RetryLimit  int           // backup attempts after a primary failure
	DialTimeout time.Duration // per-endpoint dial timeout
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(chain, primaryURL, backupURL string) ClientConfig {
	return ClientConfig{
		Chain:       chain,
		PrimaryURL:  primaryURL,
		BackupURL:   backupURL,
		RetryLimit:  1,
		DialTimeout: 10 * time.Second,
	}
}

// clientMetrics holds OTEL metric instruments.
type clientMetrics struct {
	calls     metric.Int64Counter
	failovers metric.Int64Counter
	latency   metric.Float64Histogram
}

// endpoint is one RPC URL with its own breaker.
type endpoint struct {
	role    domain.EndpointRole
	url     string
	cb      *circuitbreaker.CircuitBreaker[any]
	mu      sync.Mutex
	backend Backend
}

// DualClient talks to a primary RPC endpoint and retries failed calls
// against a backup. Endpoints are dialed lazily and redialed after Close.
type DualClient struct {
	config ClientConfig
	logger logger.LoggerInterface
	dial   Dialer

	endpoints []*endpoint

	lastBlock  atomic.Uint64
	lastUpdate atomic.Int64
	failovers  atomic.Int64
	primaryOK  atomic.Bool
	backupOK   atomic.Bool

	tracer  trace.Tracer
	metrics *clientMetrics
}

var _ app.ChainClient = (*DualClient)(nil)

// Option configures a DualClient.
type Option func(*DualClient)

// WithDialer replaces the ethclient dialer.
func WithDialer(d Dialer) Option {
	return func(c *DualClient) {
		c.dial = d
	}
}

// NewDualClient creates a client for one chain. Nothing is dialed until first use or Connect.
func NewDualClient(cfg ClientConfig, log logger.LoggerInterface, opts ...Option) (*DualClient, error) {
	if cfg.PrimaryURL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(fmt.Sprintf("%s: primary rpc url is required", cfg.Chain)))
	}
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}

	c := &DualClient{
		config: cfg,
		logger: log,
		dial:   DialEthclient,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.endpoints = append(c.endpoints, c.newEndpoint(domain.RolePrimary, cfg.PrimaryURL))
	if cfg.BackupURL != "" && cfg.BackupURL != cfg.PrimaryURL {
		c.endpoints = append(c.endpoints, c.newEndpoint(domain.RoleBackup, cfg.BackupURL))
	}

	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return c, nil
}

func (c *DualClient) newEndpoint(role domain.EndpointRole, url string) *endpoint {
	cbCfg := circuitbreaker.DefaultConfig(fmt.Sprintf("rpc-%s-%s", c.config.Chain, role))
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		c.logger.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	return &endpoint{
		role: role,
		url:  url,
		cb:   circuitbreaker.New[any](cbCfg),
	}
}

// initMetrics initializes OTEL metric instruments.
func (c *DualClient) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &clientMetrics{}

	c.metrics.calls, err = meter.Int64Counter(
		"rpc_calls_total",
		metric.WithDescription("RPC calls by chain, endpoint and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	c.metrics.failovers, err = meter.Int64Counter(
		"rpc_failovers_total",
		metric.WithDescription("Calls retried against the backup endpoint"),
		metric.WithUnit("{failover}"),
	)
	if err != nil {
		return err
	}

	c.metrics.latency, err = meter.Float64Histogram(
		"rpc_call_latency_ms",
		metric.WithDescription("RPC call latency"),
		metric.WithUnit("ms"),
	)
	return err
}

// Connect dials every endpoint. It fails only if none could be dialed.
func (c *DualClient) Connect(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "rpc.connect",
		trace.WithAttributes(attribute.String("chain", c.config.Chain)),
	)
	defer span.End()

	var errs []error
	connected := 0
	for _, ep := range c.endpoints {
		if _, err := c.backend(ctx, ep); err != nil {
			errs = append(errs, err)
			c.logger.Warn(ctx, "rpc endpoint dial failed", "chain", c.config.Chain, "role", ep.role, "error", err)
			continue
		}
		connected++
	}

	if connected == 0 {
		err := apperror.New(apperror.CodeRPCConnectionFailed,
			apperror.WithCause(errors.Join(errs...)),
			apperror.WithContext(c.config.Chain))
		span.RecordError(err)
		span.SetStatus(codes.Error, "no endpoint reachable")
		return err
	}

	span.SetStatus(codes.Ok, "connected")
	c.logger.Info(ctx, "rpc client connected", "chain", c.config.Chain, "endpoints", connected)
	return nil
}

// backend returns the endpoint's client, dialing it on first use.
func (c *DualClient) backend(ctx context.Context, ep *endpoint) (Backend, error) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.backend != nil {
		return ep.backend, nil
	}

	dialCtx := ctx
	if c.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.config.DialTimeout)
		defer cancel()
	}

	b, err := c.dial(dialCtx, ep.url)
	if err != nil {
		return nil, apperror.New(apperror.CodeRPCConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s %s", c.config.Chain, ep.role)))
	}
	ep.backend = b
	return b, nil
}

// CallContract executes an eth_call, retrying on the backup endpoint.
func (c *DualClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return do(ctx, c, "eth_call", func(ctx context.Context, b Backend) ([]byte, error) {
		return b.CallContract(ctx, msg, blockNumber)
	})
}

// CodeAt returns the bytecode at addr, retrying on the backup endpoint.
func (c *DualClient) CodeAt(ctx context.Context, addr common.Address, blockNumber *big.Int) ([]byte, error) {
	return do(ctx, c, "eth_getCode", func(ctx context.Context, b Backend) ([]byte, error) {
		return b.CodeAt(ctx, addr, blockNumber)
	})
}

// BlockNumber returns the latest block height, retrying on the backup endpoint.
func (c *DualClient) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := do(ctx, c, "eth_blockNumber", func(ctx context.Context, b Backend) (uint64, error) {
		return b.BlockNumber(ctx)
	})
	if err == nil {
		c.lastBlock.Store(n)
		c.lastUpdate.Store(time.Now().UnixMilli())
	}
	return n, err
}

// do runs fn on the primary endpoint, then up to RetryLimit times on the backup.
func do[T any](ctx context.Context, c *DualClient, method string, fn func(context.Context, Backend) (T, error)) (T, error) {
	ctx, span := c.tracer.Start(ctx, "rpc."+method,
		trace.WithAttributes(attribute.String("chain", c.config.Chain)),
	)
	defer span.End()

	var zero T
	var errs []error

	for i, ep := range c.endpoints {
		attempts := 1
		if ep.role == domain.RoleBackup {
			attempts = c.config.RetryLimit
			if attempts > 0 {
				c.failovers.Add(1)
				c.metrics.failovers.Add(ctx, 1, metric.WithAttributes(attribute.String("chain", c.config.Chain)))
				span.AddEvent("failover_to_backup")
			}
		}

		for a := 0; a < attempts; a++ {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}

			res, err := callEndpoint(ctx, c, ep, method, fn)
			c.markEndpoint(ep, err)
			if err == nil {
				span.SetAttributes(attribute.String("endpoint", string(ep.role)))
				span.SetStatus(codes.Ok, "ok")
				return res, nil
			}
			errs = append(errs, fmt.Errorf("%s attempt %d: %w", ep.role, a+1, err))
		}

		if i == 0 && len(c.endpoints) > 1 {
			c.logger.Debug(ctx, "primary rpc failed, retrying on backup", "chain", c.config.Chain, "method", method)
		}
	}

	err := apperror.New(apperror.CodeContractCallFailed,
		apperror.WithCause(errors.Join(errs...)),
		apperror.WithContext(fmt.Sprintf("%s %s", c.config.Chain, method)))
	span.RecordError(err)
	span.SetStatus(codes.Error, "all endpoints failed")
	return zero, err
}

// callEndpoint runs fn on one endpoint through its breaker.
func callEndpoint[T any](ctx context.Context, c *DualClient, ep *endpoint, method string, fn func(context.Context, Backend) (T, error)) (T, error) {
	var zero T

	b, err := c.backend(ctx, ep)
	if err != nil {
		return zero, err
	}

	start := time.Now()
	res, err := ep.cb.Execute(func() (any, error) {
		return fn(ctx, b)
	})
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("chain", c.config.Chain),
		attribute.String("endpoint", string(ep.role)),
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	)
	c.metrics.calls.Add(ctx, 1, attrs)
	c.metrics.latency.Record(ctx, elapsed, attrs)

	if err != nil {
		return zero, err
	}
	return res.(T), nil
}

func (c *DualClient) markEndpoint(ep *endpoint, err error) {
	ok := err == nil
	if ep.role == domain.RolePrimary {
		c.primaryOK.Store(ok)
	} else {
		c.backupOK.Store(ok)
	}
}

// Status reports the client's connection state.
func (c *DualClient) Status() domain.ConnectionStatus {
	state := domain.StateDisconnected
	switch {
	case c.primaryOK.Load():
		state = domain.StateConnected
	case c.backupOK.Load():
		state = domain.StateDegraded
	case c.dialed():
		state = domain.StateConnecting
	}

	var updated time.Time
	if ms := c.lastUpdate.Load(); ms > 0 {
		updated = time.UnixMilli(ms)
	}

	return domain.ConnectionStatus{
		Chain:      c.config.Chain,
		State:      state,
		LastBlock:  c.lastBlock.Load(),
		LastUpdate: updated,
		Failovers:  c.failovers.Load(),
		HasBackup:  len(c.endpoints) > 1,
	}
}

func (c *DualClient) dialed() bool {
	for _, ep := range c.endpoints {
		ep.mu.Lock()
		ok := ep.backend != nil
		ep.mu.Unlock()
		if ok {
			return true
		}
	}
	return false
}

// Close closes every dialed endpoint. A later call redials.
func (c *DualClient) Close() error {
	for _, ep := range c.endpoints {
		ep.mu.Lock()
		if ep.backend != nil {
			ep.backend.Close()
			ep.backend = nil
		}
		ep.mu.Unlock()
	}
	c.primaryOK.Store(false)
	c.backupOK.Store(false)
	return nil
}
