package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/pricegap-monitor/internal/apperror"
)

// Request builds and executes one HTTP call.
type Request interface {
	Get(ctx context.Context, path string) (*Response, error)
	Post(ctx context.Context, path string) (*Response, error)

	// SetBody sets the request body. Values other than []byte, string and
	// io.Reader are JSON encoded.
	SetBody(body any) Request
	SetQueryParam(key, value string) Request
	SetQueryParams(params map[string]string) Request
}

// Response is an http.Response with its body already read.
type Response struct {
	*http.Response
	body []byte
}

// Body returns the response body.
func (r *Response) Body() []byte {
	return r.body
}

type requestBuilder struct {
	client       *InstrumentedClient
	endpoint     string
	headers      map[string]string
	queryParams  url.Values
	body         any
	errorHandler ResponseErrorHandler
}

func (r *requestBuilder) Get(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodGet, path)
}

func (r *requestBuilder) Post(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodPost, path)
}

func (r *requestBuilder) SetBody(body any) Request {
	r.body = body
	return r
}

func (r *requestBuilder) SetQueryParam(key, value string) Request {
	if r.queryParams == nil {
		r.queryParams = make(url.Values)
	}
	r.queryParams.Set(key, value)
	return r
}

func (r *requestBuilder) SetQueryParams(params map[string]string) Request {
	for k, v := range params {
		r.SetQueryParam(k, v)
	}
	return r
}

// execute runs the request. Transport failures and rejected statuses come
// back as application errors; the response is returned with the latter.
func (r *requestBuilder) execute(ctx context.Context, method, path string) (*Response, error) {
	c := r.client
	ctx, span := c.tracer.Start(ctx, "http.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("provider", c.provider),
			attribute.String("endpoint", r.endpoint),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := r.do(ctx, method, r.resolve(path))
	outcome := "ok"
	switch {
	case err != nil && resp == nil:
		outcome = "transport_error"
	case err != nil:
		outcome = fmt.Sprintf("%dxx", resp.StatusCode/100)
	}
	r.record(ctx, outcome, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return resp, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

func (r *requestBuilder) resolve(path string) string {
	full := path
	if base := r.client.baseURL; base != "" && !strings.HasPrefix(path, "http") {
		full = strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	if len(r.queryParams) > 0 {
		sep := "?"
		if strings.Contains(full, "?") {
			sep = "&"
		}
		full += sep + r.queryParams.Encode()
	}
	return full
}

func (r *requestBuilder) do(ctx context.Context, method, target string) (*Response, error) {
	name := r.client.provider + "/" + r.endpoint

	body, err := r.encodeBody()
	if err != nil {
		return nil, apperror.New(apperror.CodeInternalError, apperror.WithCause(err), apperror.WithContext(name))
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithCause(err), apperror.WithContext(name))
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.client.Do(req)
	if err != nil {
		return nil, transportError(name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(name, err)
	}

	out := &Response{Response: resp, body: data}
	if err := r.errorHandler(resp.StatusCode, data); err != nil {
		return out, err
	}
	return out, nil
}

func (r *requestBuilder) encodeBody() (io.Reader, error) {
	switch b := r.body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(b), nil
	case string:
		return strings.NewReader(b), nil
	case io.Reader:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		if _, ok := r.headers["Content-Type"]; !ok {
			r.headers["Content-Type"] = "application/json"
		}
		return bytes.NewReader(data), nil
	}
}

func (r *requestBuilder) record(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("endpoint", r.endpoint),
		attribute.String("outcome", outcome),
	)
	r.client.metrics.requests.Add(ctx, 1, attrs)
	r.client.metrics.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// transportError marks a failed round trip as an unavailable upstream. The
// cause is kept so callers can still match context errors.
func transportError(name string, err error) error {
	detail := name
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		detail += ": timeout"
	}
	return apperror.New(apperror.CodeSourceUnavailable, apperror.WithCause(err), apperror.WithContext(detail))
}
