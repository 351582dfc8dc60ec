package onchain

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// sourceMetrics holds OTEL metric instruments shared by the on-chain sources.
type sourceMetrics struct {
	reads       metric.Int64Counter
	readErrors  metric.Int64Counter
	readLatency metric.Float64Histogram
	lastPrice   metric.Float64Gauge
}

func newSourceMetrics(prefix string) (*sourceMetrics, error) {
	meter := otel.Meter(meterName)
	m := &sourceMetrics{}
	var err error

	m.reads, err = meter.Int64Counter(
		prefix+"_reads_total",
		metric.WithDescription("Total contract price reads"),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		return nil, err
	}

	m.readErrors, err = meter.Int64Counter(
		prefix+"_read_errors_total",
		metric.WithDescription("Failed contract price reads"),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		return nil, err
	}

	m.readLatency, err = meter.Float64Histogram(
		prefix+"_read_latency_ms",
		metric.WithDescription("Contract price read latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	m.lastPrice, err = meter.Float64Gauge(
		prefix+"_price",
		metric.WithDescription("Last price read from the contract"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
