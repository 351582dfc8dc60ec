package httpclient

import (
	"context"
	"maps"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Default connection pool settings
	defaultDialKeepAlive         = 10 * time.Second
	defaultRequestTimeout        = 10 * time.Second
	defaultMaxConnsPerHost       = 5
	defaultIdleConnTimeout       = 2 * time.Minute
	defaultExpectContinueTimeout = 100 * time.Millisecond

	instrumentationName = "github.com/fd1az/pricegap-monitor/internal/httpclient"

	// Metric names
	metricRequests        = "http_client_requests_total"
	metricRequestDuration = "http_client_request_duration_seconds"
)

// Client builds requests against one upstream provider.
type Client interface {
	// NewRequest starts a request to the named endpoint. The name labels
	// metrics and spans and is carried in error context.
	NewRequest(endpoint string, opts ...RequestOption) Request
}

var _ Client = (*InstrumentedClient)(nil)

// InstrumentedClient is an http.Client with otel transport instrumentation.
// Non-2xx statuses and transport failures come back as application errors,
// classified by StatusErrorHandler unless a request overrides it.
type InstrumentedClient struct {
	client   *http.Client
	provider string
	baseURL  string
	headers  map[string]string
	tracer   trace.Tracer
	metrics  *clientMetrics
}

type clientMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewInstrumentedClient creates a client for one upstream provider.
func NewInstrumentedClient(opts ...ClientOption) (*InstrumentedClient, error) {
	options := newClientOptions(opts...)

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			KeepAlive: defaultDialKeepAlive,
		}).DialContext,
		MaxConnsPerHost:       defaultMaxConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}

	httpClient := &http.Client{
		Timeout: options.requestTimeout,
		Transport: otelhttp.NewTransport(transport,
			otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
				return otelhttptrace.NewClientTrace(ctx)
			}),
		),
	}

	metrics, err := newClientMetrics(options.provider)
	if err != nil {
		return nil, err
	}

	return &InstrumentedClient{
		client:   httpClient,
		provider: options.provider,
		baseURL:  options.baseURL,
		headers:  options.headers,
		tracer:   otel.Tracer(instrumentationName),
		metrics:  metrics,
	}, nil
}

func newClientMetrics(provider string) (*clientMetrics, error) {
	meter := otel.Meter(instrumentationName,
		metric.WithInstrumentationAttributes(attribute.String("provider", provider)),
	)

	requests, err := meter.Int64Counter(
		metricRequests,
		metric.WithDescription("Upstream HTTP requests by endpoint and outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		metricRequestDuration,
		metric.WithDescription("Upstream HTTP request latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &clientMetrics{requests: requests, duration: duration}, nil
}

// NewRequest starts a request to endpoint with the client's default headers.
func (c *InstrumentedClient) NewRequest(endpoint string, opts ...RequestOption) Request {
	reqOpts := newRequestOptions(opts...)

	errorHandler := reqOpts.errorHandler
	if errorHandler == nil {
		errorHandler = StatusErrorHandler(c.provider + "/" + endpoint)
	}

	headers := make(map[string]string, len(c.headers))
	maps.Copy(headers, c.headers)

	return &requestBuilder{
		client:       c,
		endpoint:     endpoint,
		headers:      headers,
		errorHandler: errorHandler,
	}
}

