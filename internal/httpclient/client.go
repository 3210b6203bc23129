// Package httpclient builds the instrumented HTTP client used for JSON-RPC
// traffic to the Ethereum node.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// Default connection pool settings
	defaultDialKeepAlive         = 10 * time.Second
	defaultRequestTimeout        = 10 * time.Second
	defaultMaxIdleConnsPerHost   = 16
	defaultMaxConnsPerHost       = 32
	defaultIdleConnTimeout       = 2 * time.Minute
	defaultExpectContinueTimeout = 100 * time.Millisecond

	// Metric names
	metricRequestCounter = "http_client_requests_total"
)

type options struct {
	name          string
	timeout       time.Duration
	headers       map[string]string
	roundTripper  http.RoundTripper
	meterProvider metric.MeterProvider
}

// Option configures the client.
type Option func(*options)

// WithName sets the provider name used in metrics and span names.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithTimeout sets the overall request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithHeaders sets headers added to every request, e.g. provider API keys.
func WithHeaders(headers map[string]string) Option {
	return func(o *options) {
		o.headers = headers
	}
}

// WithRoundTripper replaces the base transport.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *options) {
		o.roundTripper = rt
	}
}

// WithMeterProvider sets the OTEL meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// New returns an *http.Client whose transport records OTEL spans and a
// request counter labelled by provider, method and status.
func New(opts ...Option) (*http.Client, error) {
	o := options{
		name:    "default",
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	base := o.roundTripper
	if base == nil {
		base = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				KeepAlive: defaultDialKeepAlive,
			}).DialContext,
			MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
			MaxConnsPerHost:       defaultMaxConnsPerHost,
			IdleConnTimeout:       defaultIdleConnTimeout,
			ExpectContinueTimeout: defaultExpectContinueTimeout,
		}
	}

	mp := o.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(
		"instrumented_http_client",
		metric.WithInstrumentationAttributes(attribute.String("provider", o.name)),
	)
	counter, err := meter.Int64Counter(
		metricRequestCounter,
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	rt := &countingTransport{
		next:    base,
		name:    o.name,
		headers: o.headers,
		counter: counter,
	}

	return &http.Client{
		Timeout: o.timeout,
		Transport: otelhttp.NewTransport(
			rt,
			otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
				return otelhttptrace.NewClientTrace(ctx)
			}),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return o.name + " " + r.Method
			}),
		),
	}, nil
}

// countingTransport adds default headers and counts requests.
type countingTransport struct {
	next    http.RoundTripper
	name    string
	headers map[string]string
	counter metric.Int64Counter
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) > 0 {
		req = req.Clone(req.Context())
		for k, v := range t.headers {
			if req.Header.Get(k) == "" {
				req.Header.Set(k, v)
			}
		}
	}

	resp, err := t.next.RoundTrip(req)

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	t.counter.Add(req.Context(), 1, metric.WithAttributes(
		attribute.String("provider", t.name),
		attribute.String("method", req.Method),
		attribute.String("status", status),
	))

	return resp, err
}
