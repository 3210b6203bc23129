// Package ethereum provides the go-ethereum backed fee oracle.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chainstream/business/feemarket/app"
	"github.com/fd1az/chainstream/business/feemarket/domain"
	"github.com/fd1az/chainstream/internal/apperror"
	"github.com/fd1az/chainstream/internal/cache"
	"github.com/fd1az/chainstream/internal/circuitbreaker"
	"github.com/fd1az/chainstream/internal/logger"
)

const (
	tracerName = "github.com/fd1az/chainstream/business/feemarket/infra/ethereum"
	meterName  = "github.com/fd1az/chainstream/business/feemarket/infra/ethereum"

	headKey = "head"
)

// FeeOracleConfig holds configuration for the fee oracle.
type FeeOracleConfig struct {
	CacheTTL  time.Duration // How long to cache the head state
	MaxTipCap *big.Int      // Upper bound applied to suggested tips
}

// DefaultFeeOracleConfig returns sensible defaults.
func DefaultFeeOracleConfig() FeeOracleConfig {
	maxTip := new(big.Int)
	maxTip.SetString("100000000000", 10) // 100 gwei

	return FeeOracleConfig{
		CacheTTL:  12 * time.Second, // ~1 block
		MaxTipCap: maxTip,
	}
}

type feeOracleMetrics struct {
	headFetches  metric.Int64Counter
	tipFetches   metric.Int64Counter
	baseFeeGwei  metric.Float64Gauge
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
	fetchLatency metric.Float64Histogram
}

// FeeOracle implements app.FeeOracle on top of an ethclient.
type FeeOracle struct {
	config FeeOracleConfig
	logger logger.LoggerInterface
	client *ethclient.Client

	headCache *cache.Cache[string, app.HeadState]

	headCB *circuitbreaker.CircuitBreaker[*types.Header]
	tipCB  *circuitbreaker.CircuitBreaker[*big.Int]

	tracer  trace.Tracer
	metrics *feeOracleMetrics
}

// NewFeeOracle creates a new fee oracle using an already dialed client.
func NewFeeOracle(cfg FeeOracleConfig, client *ethclient.Client, log logger.LoggerInterface) (*FeeOracle, error) {
	o := &FeeOracle{
		config:    cfg,
		logger:    log,
		client:    client,
		headCache: cache.New[string, app.HeadState](time.Minute),
		tracer:    otel.Tracer(tracerName),
	}

	if err := o.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	o.initCircuitBreakers()

	return o, nil
}

func (o *FeeOracle) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	o.metrics = &feeOracleMetrics{}

	o.metrics.headFetches, err = meter.Int64Counter(
		"fee_head_fetches_total",
		metric.WithDescription("Total head state fetch attempts"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return err
	}

	o.metrics.tipFetches, err = meter.Int64Counter(
		"fee_tip_fetches_total",
		metric.WithDescription("Total tip cap suggestion calls"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return err
	}

	o.metrics.baseFeeGwei, err = meter.Float64Gauge(
		"fee_base_fee_gwei",
		metric.WithDescription("Base fee of the latest head in gwei"),
		metric.WithUnit("gwei"),
	)
	if err != nil {
		return err
	}

	o.metrics.cacheHits, err = meter.Int64Counter(
		"fee_cache_hits_total",
		metric.WithDescription("Head state cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return err
	}

	o.metrics.cacheMisses, err = meter.Int64Counter(
		"fee_cache_misses_total",
		metric.WithDescription("Head state cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return err
	}

	o.metrics.fetchLatency, err = meter.Float64Histogram(
		"fee_fetch_latency_ms",
		metric.WithDescription("Latency of fee oracle RPC calls"),
		metric.WithUnit("ms"),
	)
	return err
}

func (o *FeeOracle) initCircuitBreakers() {
	onChange := func(name string, from, to gobreaker.State) {
		o.logger.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}

	headCfg := circuitbreaker.DefaultConfig("fee-head")
	headCfg.OnStateChange = onChange
	o.headCB = circuitbreaker.New[*types.Header](headCfg)

	tipCfg := circuitbreaker.DefaultConfig("fee-tip")
	tipCfg.OnStateChange = onChange
	o.tipCB = circuitbreaker.New[*big.Int](tipCfg)
}

// HeadState returns the fee state of the latest block, cached for CacheTTL.
func (o *FeeOracle) HeadState(ctx context.Context) (app.HeadState, error) {
	ctx, span := o.tracer.Start(ctx, "fee.head_state")
	defer span.End()

	if head, found := o.headCache.Get(ctx, headKey); found {
		o.metrics.cacheHits.Add(ctx, 1)
		span.AddEvent("cache_hit")
		return head, nil
	}

	o.metrics.cacheMisses.Add(ctx, 1)
	o.metrics.headFetches.Add(ctx, 1)

	start := time.Now()
	header, err := o.headCB.Execute(func() (*types.Header, error) {
		return o.client.HeaderByNumber(ctx, nil)
	})
	o.metrics.fetchLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("call", "head")))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return app.HeadState{}, apperror.Wrap(err, apperror.CodeEthereumRPCError, "failed to fetch head")
	}

	head, err := HeadStateFromHeader(header)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid head")
		return app.HeadState{}, err
	}

	o.headCache.Set(ctx, headKey, head, o.config.CacheTTL)

	gwei, _ := domain.WeiToGwei(head.State.BaseFeeBig()).Float64()
	o.metrics.baseFeeGwei.Record(ctx, gwei)

	span.SetAttributes(
		attribute.Int64("block_number", int64(head.Number)),
		attribute.Float64("base_fee_gwei", gwei),
	)
	span.SetStatus(codes.Ok, "fetched")

	return head, nil
}

// SuggestTipCap returns eth_maxPriorityFeePerGas, bounded by MaxTipCap.
func (o *FeeOracle) SuggestTipCap(ctx context.Context) (*big.Int, error) {
	ctx, span := o.tracer.Start(ctx, "fee.suggest_tip")
	defer span.End()

	o.metrics.tipFetches.Add(ctx, 1)

	start := time.Now()
	tip, err := o.tipCB.Execute(func() (*big.Int, error) {
		return o.client.SuggestGasTipCap(ctx)
	})
	o.metrics.fetchLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("call", "tip")))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.Wrap(err, apperror.CodeEthereumRPCError, "failed to get tip cap")
	}

	if o.config.MaxTipCap != nil && tip.Cmp(o.config.MaxTipCap) > 0 {
		span.AddEvent("tip_exceeded_max",
			trace.WithAttributes(attribute.String("wei", tip.String())))
		o.logger.Warn(ctx, "suggested tip exceeds max", "wei", tip.String())
		tip = new(big.Int).Set(o.config.MaxTipCap)
	}

	span.SetStatus(codes.Ok, "fetched")
	return tip, nil
}

// Close releases the cache. The shared client is owned by the caller.
func (o *FeeOracle) Close() error {
	o.headCache.Close()
	return nil
}

// HeadStateFromHeader converts a go-ethereum header into fee state.
// Pre-London headers have no base fee and are rejected.
func HeadStateFromHeader(h *types.Header) (app.HeadState, error) {
	if h == nil || h.Number == nil {
		return app.HeadState{}, apperror.New(apperror.CodeMalformedHeader,
			apperror.WithContext("header without number"))
	}

	var blobGasUsed, excess uint64
	if h.BlobGasUsed != nil {
		blobGasUsed = *h.BlobGasUsed
	}
	if h.ExcessBlobGas != nil {
		excess = *h.ExcessBlobGas
	}

	s, err := domain.NewState(h.GasUsed, h.GasLimit, h.BaseFee, blobGasUsed, excess)
	if err != nil {
		return app.HeadState{}, apperror.New(apperror.CodeFeeMarketInvalidState,
			apperror.WithCause(err),
			apperror.WithContextf("block %d", h.Number.Uint64()))
	}

	return app.HeadState{Number: h.Number.Uint64(), State: s}, nil
}
