// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Backfill  BackfillConfig  `mapstructure:"backfill"`
	FeeMarket FeeMarketConfig `mapstructure:"fee_market"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Health    HealthConfig    `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFile     string `mapstructure:"log_file"`
	LogMaxSize  int    `mapstructure:"log_max_size_mb" validate:"gte=0"`
	LogBackups  int    `mapstructure:"log_max_backups" validate:"gte=0"`
	TUIMode     bool   `mapstructure:"-"` // Set at runtime, not from config file
}

// EthereumConfig holds Ethereum node configuration.
type EthereumConfig struct {
	HTTPURL           string        `mapstructure:"http_url" validate:"required,url"`
	WebSocketURL      string        `mapstructure:"websocket_url" validate:"omitempty,url"`
	ChainID           uint64        `mapstructure:"chain_id" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int           `mapstructure:"burst" validate:"gt=0"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

// StreamConfig holds the live block stream settings.
type StreamConfig struct {
	PollingInterval time.Duration `mapstructure:"polling_interval" validate:"gt=0"`
	MaxReorgDepth   int           `mapstructure:"max_reorg_depth" validate:"gt=0"`
	RetryCount      int           `mapstructure:"retry_count" validate:"gte=0"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" validate:"gt=0"`
	MaxRetryDelay   time.Duration `mapstructure:"max_retry_delay" validate:"gt=0"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
	WindowCapacity  int           `mapstructure:"window_capacity" validate:"gt=0"`
	UseHeadNotifier bool          `mapstructure:"use_head_notifier"`
}

// BackfillConfig holds historical backfill settings.
type BackfillConfig struct {
	ChunkSize    int `mapstructure:"chunk_size" validate:"gt=0"`
	MinChunkSize int `mapstructure:"min_chunk_size" validate:"gt=0"`
	Concurrency  int `mapstructure:"concurrency" validate:"gt=0"`
}

// FeeMarketConfig holds fee estimation settings.
type FeeMarketConfig struct {
	Fork       string        `mapstructure:"fork" validate:"oneof=cancun prague"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	MaxTipGwei float64       `mapstructure:"max_tip_gwei" validate:"gt=0"`
}

// MaxTipCapWei returns MaxTipGwei in wei.
func (c *FeeMarketConfig) MaxTipCapWei() *big.Int {
	return decimal.NewFromFloat(c.MaxTipGwei).Shift(9).BigInt()
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceProvider  string `mapstructure:"trace_provider" validate:"omitempty,oneof=EMPTY_PROVIDER CONSOLE_PROVIDER ZIPKIN_PROVIDER OTLP_GRPC_PROVIDER OTLP_HTTP_PROVIDER"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port" validate:"gte=0,lte=65535"`
}

// HealthConfig holds the health server settings.
type HealthConfig struct {
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("CHS")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "CHS_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "CHS_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "CHS_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("app.log_file", "CHS_LOG_FILE")

	// Ethereum
	v.BindEnv("ethereum.http_url", "CHS_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.websocket_url", "CHS_ETH_WS_URL", "ETH_WS_URL")
	v.BindEnv("ethereum.chain_id", "CHS_ETH_CHAIN_ID", "ETH_CHAIN_ID")
	v.BindEnv("ethereum.requests_per_second", "CHS_ETH_RPS")

	// Stream
	v.BindEnv("stream.polling_interval", "CHS_STREAM_POLLING_INTERVAL")
	v.BindEnv("stream.max_reorg_depth", "CHS_STREAM_MAX_REORG_DEPTH")
	v.BindEnv("stream.retry_count", "CHS_STREAM_RETRY_COUNT")
	v.BindEnv("stream.window_capacity", "CHS_STREAM_WINDOW_CAPACITY")
	v.BindEnv("stream.use_head_notifier", "CHS_STREAM_USE_HEAD_NOTIFIER")

	// Backfill
	v.BindEnv("backfill.chunk_size", "CHS_BACKFILL_CHUNK_SIZE")
	v.BindEnv("backfill.concurrency", "CHS_BACKFILL_CONCURRENCY")

	// Fee market
	v.BindEnv("fee_market.fork", "CHS_FEE_FORK")

	// Telemetry
	v.BindEnv("telemetry.enabled", "CHS_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "CHS_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.trace_provider", "CHS_OTEL_PROVIDER")
	v.BindEnv("telemetry.otlp_endpoint", "CHS_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.otlp_headers", "CHS_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS_KEY")

	// Health
	v.BindEnv("health.port", "CHS_HEALTH_PORT", "HEALTH_PORT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "chainstream")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_max_size_mb", 50)
	v.SetDefault("app.log_max_backups", 3)

	// Ethereum defaults
	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.requests_per_second", 10)
	v.SetDefault("ethereum.burst", 20)
	v.SetDefault("ethereum.request_timeout", "10s")

	// Stream defaults
	v.SetDefault("stream.polling_interval", "12s") // one slot
	v.SetDefault("stream.max_reorg_depth", 64)
	v.SetDefault("stream.retry_count", 3)
	v.SetDefault("stream.retry_delay", "500ms")
	v.SetDefault("stream.max_retry_delay", "10s")
	v.SetDefault("stream.fetch_timeout", "10s")
	v.SetDefault("stream.window_capacity", 256)
	v.SetDefault("stream.use_head_notifier", false)

	// Backfill defaults
	v.SetDefault("backfill.chunk_size", 100)
	v.SetDefault("backfill.min_chunk_size", 1)
	v.SetDefault("backfill.concurrency", 4)

	// Fee market defaults
	v.SetDefault("fee_market.fork", "cancun")
	v.SetDefault("fee_market.cache_ttl", "12s")
	v.SetDefault("fee_market.max_tip_gwei", 100)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "chainstream")
	v.SetDefault("telemetry.trace_provider", "EMPTY_PROVIDER")
	v.SetDefault("telemetry.prometheus_port", 9090)

	// Health defaults
	v.SetDefault("health.port", 8080)
}

var (
	validate   = validator.New(validator.WithRequiredStructEnabled())
	translator ut.Translator
)

func init() {
	enLocale := en.New()
	translator, _ = ut.New(enLocale, enLocale).GetTranslator("en")
	if err := entranslations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic("register validator translations: " + err.Error())
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: %s (value %v)", fe.Namespace(), fe.Translate(translator), fe.Value())
		}
		return err
	}

	if c.Stream.MaxRetryDelay < c.Stream.RetryDelay {
		return fmt.Errorf("stream.max_retry_delay %s is below stream.retry_delay %s",
			c.Stream.MaxRetryDelay, c.Stream.RetryDelay)
	}
	if c.Backfill.MinChunkSize > c.Backfill.ChunkSize {
		return fmt.Errorf("backfill.min_chunk_size %d exceeds backfill.chunk_size %d",
			c.Backfill.MinChunkSize, c.Backfill.ChunkSize)
	}
	if c.Stream.UseHeadNotifier && c.Ethereum.WebSocketURL == "" {
		return fmt.Errorf("stream.use_head_notifier requires ethereum.websocket_url")
	}
	return nil
}
