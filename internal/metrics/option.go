package metrics

import (
	"strconv"

	"github.com/fd1az/chainstream/internal/config"
)

type Provider string

const (
	PrometheusProvider Provider = "prometheus"
	OtelCollector      Provider = "customOtelCollector"
	InsecureOtel                = false
	SecureOtel                  = true
)

// NewOtelCollectorConfig describes an OTLP-gRPC metrics collector.
func NewOtelCollectorConfig(url string, headers map[string]string, insecure bool) ProviderCfg {
	return ProviderCfg{
		Provider: OtelCollector,
		Endpoint: url,
		Headers:  headers,
		Insecure: insecure,
	}
}

const otlpGRPCTraceProvider = "OTLP_GRPC_PROVIDER"

type Config struct {
	ServiceName string
	Provider    []ProviderCfg
}

type ProviderCfg struct {
	Provider Provider
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

type OptionFn func(config Config) Config

func WithProviderConfig(provider ProviderCfg) OptionFn {
	return func(config Config) Config {
		config.Provider = append(config.Provider, provider)

		return config
	}
}

func WithServiceName(serviceName string) OptionFn {
	return func(config Config) Config {
		config.ServiceName = serviceName

		return config
	}
}

// FromTelemetry maps the telemetry config section onto provider options:
// Prometheus always, plus an OTLP-gRPC collector when traces go to one.
func FromTelemetry(cfg config.TelemetryConfig, headers map[string]string) []OptionFn {
	opts := []OptionFn{
		WithServiceName(cfg.ServiceName),
		WithProviderConfig(ProviderCfg{Provider: PrometheusProvider}),
	}
	if cfg.TraceProvider == otlpGRPCTraceProvider && cfg.OTLPEndpoint != "" {
		opts = append(opts, WithProviderConfig(NewOtelCollectorConfig(cfg.OTLPEndpoint, headers, InsecureOtel)))
	}
	return opts
}

type PromServerConfig struct {
	port string
}

type PromOptionFn func(config PromServerConfig) PromServerConfig

func WithPort(port int) PromOptionFn {
	return func(config PromServerConfig) PromServerConfig {
		config.port = strconv.Itoa(port)
		return config
	}
}
