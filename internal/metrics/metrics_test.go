package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fd1az/chainstream/internal/config"
)

func TestFromTelemetry(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TelemetryConfig
		want []Provider
	}{
		{
			name: "prometheus_only",
			cfg:  config.TelemetryConfig{ServiceName: "svc", TraceProvider: "ZIPKIN_PROVIDER", OTLPEndpoint: "http://zipkin:9411"},
			want: []Provider{PrometheusProvider},
		},
		{
			name: "with_collector",
			cfg:  config.TelemetryConfig{ServiceName: "svc", TraceProvider: "OTLP_GRPC_PROVIDER", OTLPEndpoint: "http://collector:4317"},
			want: []Provider{PrometheusProvider, OtelCollector},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			for _, opt := range FromTelemetry(tt.cfg, nil) {
				cfg = opt(cfg)
			}
			if cfg.ServiceName != "svc" {
				t.Errorf("service name = %q", cfg.ServiceName)
			}
			if len(cfg.Provider) != len(tt.want) {
				t.Fatalf("providers = %+v", cfg.Provider)
			}
			for i, p := range tt.want {
				if cfg.Provider[i].Provider != p {
					t.Errorf("provider[%d] = %s, want %s", i, cfg.Provider[i].Provider, p)
				}
			}
		})
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	ctx := context.Background()
	mp, err := NewMetricProvider(ctx,
		WithServiceName("chainstream-test"),
		WithProviderConfig(ProviderCfg{Provider: PrometheusProvider}),
	)
	if err != nil {
		t.Fatalf("NewMetricProvider: %v", err)
	}
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	counter, err := mp.Meter("metrics-test").Int64Counter("chainstream_test_events_total")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	counter.Add(ctx, 3)

	rec := httptest.NewRecorder()
	NewPrometheusServer(WithPort(0)).Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "chainstream_test_events_total") {
		t.Errorf("metric missing from scrape:\n%s", body)
	}
}
