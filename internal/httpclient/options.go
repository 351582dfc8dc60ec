// Package httpclient provides the instrumented REST client used for hosted
// price APIs and alert webhooks.
package httpclient

import (
	"time"
)

type clientOptions struct {
	provider       string
	requestTimeout time.Duration
	headers        map[string]string
	baseURL        string
}

// ClientOption configures an InstrumentedClient.
type ClientOption func(*clientOptions)

func newClientOptions(opts ...ClientOption) *clientOptions {
	options := &clientOptions{
		provider:       "default",
		requestTimeout: defaultRequestTimeout,
	}
	for _, o := range opts {
		o(options)
	}
	return options
}

// WithProviderName names the upstream for metrics, traces and errors.
func WithProviderName(name string) ClientOption {
	return func(o *clientOptions) {
		if name != "" {
			o.provider = name
		}
	}
}

// WithRequestTimeout bounds every request. Non-positive keeps the default.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.requestTimeout = timeout
		}
	}
}

// WithHeaders sets default headers for all requests.
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *clientOptions) {
		o.headers = headers
	}
}

// WithBaseURL resolves relative request paths against baseURL.
func WithBaseURL(baseURL string) ClientOption {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

type requestOptions struct {
	errorHandler ResponseErrorHandler
}

// RequestOption configures a single request.
type RequestOption func(*requestOptions)

func newRequestOptions(opts ...RequestOption) *requestOptions {
	options := &requestOptions{}
	for _, o := range opts {
		o(options)
	}
	return options
}

// ResponseErrorHandler turns a response into an error, or nil when it is acceptable.
type ResponseErrorHandler func(statusCode int, body []byte) error

// WithResponseErrorHandler replaces the default status classification.
func WithResponseErrorHandler(handler ResponseErrorHandler) RequestOption {
	return func(o *requestOptions) {
		o.errorHandler = handler
	}
}
