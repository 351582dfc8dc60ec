// Package metrics configures the OpenTelemetry meter provider and serves
// Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metric2 "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

type MetricProvider interface {
	Meter(name string, options ...metric.MeterOption) metric.Meter
	// Handler serves the Prometheus registry. It is nil without a Prometheus reader.
	Handler() http.Handler
	Shutdown(ctx context.Context) error
}

type meterProvider struct {
	*metric2.MeterProvider
	handler http.Handler
}

func (p *meterProvider) Handler() http.Handler {
	return p.handler
}

func getReaders(ctx context.Context, cfg Config) ([]metric2.Reader, http.Handler, error) {
	var (
		readers []metric2.Reader
		handler http.Handler
	)

	for _, provider := range cfg.Provider {
		switch provider.Provider {
		case PrometheusProvider:
			// a private registry keeps several providers (tests) from colliding
			registry := prom.NewRegistry()
			promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
			if err != nil {
				return nil, nil, fmt.Errorf("prometheus exporter: %w", err)
			}

			readers = append(readers, promExporter)
			handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		case OtelCollector:
			opts := []otlpmetricgrpc.Option{
				otlpmetricgrpc.WithEndpointURL(provider.Endpoint),
			}
			if len(provider.Headers) > 0 {
				opts = append(opts, otlpmetricgrpc.WithHeaders(provider.Headers))
			}
			if provider.Insecure {
				opts = append(opts, otlpmetricgrpc.WithInsecure())
			}

			exp, err := otlpmetricgrpc.New(ctx, opts...)
			if err != nil {
				return nil, nil, fmt.Errorf("otlp metric exporter: %w", err)
			}

			readers = append(readers, metric2.NewPeriodicReader(exp))
		default:
			return nil, nil, fmt.Errorf("unknown metric provider %q", provider.Provider)
		}
	}

	if len(readers) == 0 {
		return nil, nil, errors.New("no metric provider configured")
	}

	return readers, handler, nil
}

// NewMetricProvider builds a meter provider and installs it globally.
func NewMetricProvider(options ...OptionFn) (MetricProvider, error) {
	ctx := context.Background()

	var cfg Config

	for _, opt := range options {
		cfg = opt(cfg)
	}

	readers, handler, err := getReaders(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var metricsOps []metric2.Option

	for _, reader := range readers {
		metricsOps = append(metricsOps, metric2.WithReader(reader))
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = os.Getenv("OTEL_SERVICE_NAME")
	}
	metricsOps = append(metricsOps, metric2.WithResource(
		resource.NewSchemaless(semconv.ServiceNameKey.String(serviceName)),
	))

	mp := metric2.NewMeterProvider(metricsOps...)

	otel.SetMeterProvider(mp)

	return &meterProvider{MeterProvider: mp, handler: handler}, nil
}

// Server exposes a metrics handler on /metrics.
type Server struct {
	server *http.Server
}

// NewServer creates a metrics server on port serving handler.
func NewServer(handler http.Handler, opt ...PromOptionFn) *Server {
	cfg := PromServerConfig{port: "2223"}

	for _, o := range opt {
		cfg = o(cfg)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background. Listen errors are passed to onError.
func (s *Server) Start(onError func(error)) {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && onError != nil {
			onError(err)
		}
	}()
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
