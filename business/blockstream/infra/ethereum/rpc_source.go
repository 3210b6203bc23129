// Package ethereum provides the JSON-RPC block source and the WebSocket head
// notifier for the block stream.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chainstream/business/blockstream/domain"
	"github.com/fd1az/chainstream/internal/cache"
	"github.com/fd1az/chainstream/internal/circuitbreaker"
	"github.com/fd1az/chainstream/internal/logger"
	"github.com/fd1az/chainstream/internal/ratelimit"
)

const (
	tracerName = "github.com/fd1az/chainstream/business/blockstream/infra/ethereum"
	meterName  = "github.com/fd1az/chainstream/business/blockstream/infra/ethereum"
)

// RPCSourceConfig holds configuration for the RPC block source.
type RPCSourceConfig struct {
	RequestsPerSecond float64       // Client-side rate limit, 0 = unlimited
	Burst             int           // Rate limiter burst
	HashCacheTTL      time.Duration // How long headers stay in the by-hash cache
	MaxBatchSize      int           // Calls per JSON-RPC batch in HeadersByRange
}

// DefaultRPCSourceConfig returns sensible defaults.
func DefaultRPCSourceConfig() RPCSourceConfig {
	return RPCSourceConfig{
		RequestsPerSecond: 25,
		Burst:             50,
		HashCacheTTL:      10 * time.Minute, // ~50 blocks
		MaxBatchSize:      100,
	}
}

type rpcSourceMetrics struct {
	requests  metric.Int64Counter
	errors    metric.Int64Counter
	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
	batchSize metric.Int64Histogram
}

// RPCSource implements app.RangeSource over an Ethereum JSON-RPC endpoint.
type RPCSource struct {
	config RPCSourceConfig
	logger logger.LoggerInterface

	rpc    *rpc.Client
	client *ethclient.Client

	limiter *ratelimit.Limiter
	byHash  *cache.Cache[common.Hash, domain.Header]

	headerCB *circuitbreaker.CircuitBreaker[*types.Header]
	batchCB  *circuitbreaker.CircuitBreaker[[]*types.Header]

	tracer  trace.Tracer
	metrics *rpcSourceMetrics
}

// NewRPCSource creates a block source on an already dialed RPC client.
func NewRPCSource(cfg RPCSourceConfig, client *rpc.Client, log logger.LoggerInterface) (*RPCSource, error) {
	if client == nil {
		return nil, errors.New("rpc client is required")
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultRPCSourceConfig().MaxBatchSize
	}

	s := &RPCSource{
		config: cfg,
		logger: log,
		rpc:    client,
		client: ethclient.NewClient(client),
		byHash: cache.New[common.Hash, domain.Header](time.Minute),
		tracer: otel.Tracer(tracerName),
	}

	if cfg.RequestsPerSecond > 0 {
		s.limiter = ratelimit.NewWithBurst(cfg.RequestsPerSecond, cfg.Burst)
	}

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	s.initCircuitBreakers()

	return s, nil
}

func (s *RPCSource) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &rpcSourceMetrics{}

	s.metrics.requests, err = meter.Int64Counter(
		"eth_header_requests_total",
		metric.WithDescription("Total header requests sent to the node"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	s.metrics.errors, err = meter.Int64Counter(
		"eth_header_errors_total",
		metric.WithDescription("Total failed header requests"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	s.metrics.latency, err = meter.Float64Histogram(
		"eth_header_latency_ms",
		metric.WithDescription("Header request latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	s.metrics.cacheHits, err = meter.Int64Counter(
		"eth_header_cache_hits_total",
		metric.WithDescription("Headers served from the by-hash cache"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return err
	}

	s.metrics.batchSize, err = meter.Int64Histogram(
		"eth_header_batch_size",
		metric.WithDescription("Headers requested per JSON-RPC batch"),
		metric.WithUnit("{header}"),
	)
	if err != nil {
		return err
	}

	return nil
}

func (s *RPCSource) initCircuitBreakers() {
	onChange := func(name string, from, to gobreaker.State) {
		s.logger.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	// A missing block is an answer, not a node failure.
	notFoundOK := func(err error) bool {
		return err == nil || errors.Is(err, geth.NotFound)
	}

	headerCfg := circuitbreaker.DefaultConfig("eth-headers")
	headerCfg.OnStateChange = onChange
	headerCfg.IsSuccessful = notFoundOK
	s.headerCB = circuitbreaker.New[*types.Header](headerCfg)

	batchCfg := circuitbreaker.DefaultConfig("eth-header-batch")
	batchCfg.OnStateChange = onChange
	s.batchCB = circuitbreaker.New[[]*types.Header](batchCfg)
}

// LatestHeader returns the node's current head.
func (s *RPCSource) LatestHeader(ctx context.Context) (domain.Header, error) {
	return s.fetch(ctx, "latest", func(ctx context.Context) (*types.Header, error) {
		return s.client.HeaderByNumber(ctx, nil)
	})
}

// HeaderByNumber returns the canonical header at number.
func (s *RPCSource) HeaderByNumber(ctx context.Context, number uint64) (domain.Header, error) {
	h, err := s.fetch(ctx, "by_number", func(ctx context.Context) (*types.Header, error) {
		return s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	})
	if err != nil {
		return domain.Header{}, err
	}
	if h.Number != number {
		return domain.Header{}, fmt.Errorf("%w: asked for block %d, got %s", domain.ErrMalformedHeader, number, h.ID())
	}
	return h, nil
}

// HeaderByHash returns the header with hash, canonical or not. Results are
// cached since a hash always names the same header.
func (s *RPCSource) HeaderByHash(ctx context.Context, hash common.Hash) (domain.Header, error) {
	if h, ok := s.byHash.Get(ctx, hash); ok {
		s.metrics.cacheHits.Add(ctx, 1)
		return h, nil
	}

	h, err := s.fetch(ctx, "by_hash", func(ctx context.Context) (*types.Header, error) {
		return s.client.HeaderByHash(ctx, hash)
	})
	if err != nil {
		return domain.Header{}, err
	}
	if h.Hash != hash {
		return domain.Header{}, fmt.Errorf("%w: asked for %s, got %s", domain.ErrMalformedHeader, hash.TerminalString(), h.ID())
	}
	return h, nil
}

// HeadersByRange fetches from..to with batched eth_getBlockByNumber calls.
func (s *RPCSource) HeadersByRange(ctx context.Context, from, to uint64) ([]domain.Header, error) {
	if from > to {
		return nil, fmt.Errorf("invalid range %d..%d", from, to)
	}

	ctx, span := s.tracer.Start(ctx, "eth.headers_by_range",
		trace.WithAttributes(
			attribute.Int64("from", int64(from)),
			attribute.Int64("to", int64(to)),
		),
	)
	defer span.End()

	out := make([]domain.Header, 0, to-from+1)
	for start := from; start <= to; {
		end := min(to, start+uint64(s.config.MaxBatchSize)-1)

		headers, err := s.batch(ctx, start, end)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch failed")
			return nil, err
		}
		out = append(out, headers...)

		if end == to {
			break
		}
		start = end + 1
	}

	span.SetStatus(codes.Ok, "fetched")
	return out, nil
}

func (s *RPCSource) batch(ctx context.Context, from, to uint64) ([]domain.Header, error) {
	n := int(to - from + 1)
	// Nodes bill each call in a batch.
	if err := s.wait(ctx, n); err != nil {
		return nil, err
	}

	s.metrics.batchSize.Record(ctx, int64(n))

	start := time.Now()
	raw, err := s.batchCB.Execute(func() ([]*types.Header, error) {
		results := make([]*types.Header, n)
		elems := make([]rpc.BatchElem, n)
		for i := range elems {
			elems[i] = rpc.BatchElem{
				Method: "eth_getBlockByNumber",
				Args:   []any{hexutil.EncodeUint64(from + uint64(i)), false},
				Result: &results[i],
			}
		}
		if err := s.rpc.BatchCallContext(ctx, elems); err != nil {
			return nil, err
		}
		for i, el := range elems {
			if el.Error != nil {
				return nil, fmt.Errorf("block %d: %w", from+uint64(i), el.Error)
			}
		}
		return results, nil
	})
	s.record(ctx, "range", start, err)
	if err != nil {
		return nil, classify("range", err)
	}

	out := make([]domain.Header, n)
	for i, eh := range raw {
		if eh == nil {
			return nil, fmt.Errorf("block %d: %w", from+uint64(i), domain.ErrNotFound)
		}
		h, err := HeaderFromEth(eh)
		if err != nil {
			return nil, err
		}
		s.byHash.Set(ctx, h.Hash, h, s.config.HashCacheTTL)
		out[i] = h
	}
	return out, nil
}

func (s *RPCSource) fetch(ctx context.Context, op string, call func(context.Context) (*types.Header, error)) (domain.Header, error) {
	ctx, span := s.tracer.Start(ctx, "eth.header."+op)
	defer span.End()

	if err := s.wait(ctx, 1); err != nil {
		span.RecordError(err)
		return domain.Header{}, err
	}

	start := time.Now()
	eh, err := s.headerCB.Execute(func() (*types.Header, error) {
		return call(ctx)
	})
	s.record(ctx, op, start, err)
	if err != nil {
		err = classify(op, err)
		if !errors.Is(err, domain.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
		}
		return domain.Header{}, err
	}

	h, err := HeaderFromEth(eh)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed header")
		return domain.Header{}, err
	}

	s.byHash.Set(ctx, h.Hash, h, s.config.HashCacheTTL)
	span.SetAttributes(attribute.Int64("block_number", int64(h.Number)))
	span.SetStatus(codes.Ok, "fetched")
	return h, nil
}

// wait blocks on the rate limiter for n calls. A limiter that cannot grant
// the tokens before the deadline is a transport failure.
func (s *RPCSource) wait(ctx context.Context, n int) error {
	if s.limiter == nil {
		return nil
	}
	if avail := s.limiter.Tokens(); avail < float64(n) {
		s.logger.Debug(ctx, "rate limited", "need", n, "available", avail)
	}
	if err := s.limiter.WaitN(ctx, n); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return domain.NewTransportError("rate limit", err)
	}
	return nil
}

func (s *RPCSource) record(ctx context.Context, op string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("op", op))
	s.metrics.requests.Add(ctx, 1, attrs)
	s.metrics.latency.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if err != nil && !errors.Is(err, geth.NotFound) {
		s.metrics.errors.Add(ctx, 1, attrs)
		s.logger.Debug(ctx, "header request failed", "op", op, "error", err)
	}
}

// classify maps client errors onto the domain's error vocabulary.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, geth.NotFound):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return domain.NewTransportError(op, err)
	}
}

// Close releases the cache. The RPC client is owned by the caller.
func (s *RPCSource) Close() {
	s.byHash.Close()
}

// HeaderFromEth converts a go-ethereum header.
func HeaderFromEth(h *types.Header) (domain.Header, error) {
	if h == nil {
		return domain.Header{}, fmt.Errorf("%w: nil header", domain.ErrMalformedHeader)
	}
	if h.Number == nil || !h.Number.IsUint64() {
		return domain.Header{}, fmt.Errorf("%w: missing or oversized number", domain.ErrMalformedHeader)
	}

	out := domain.Header{
		Number:     h.Number.Uint64(),
		Hash:       h.Hash(),
		ParentHash: h.ParentHash,
		Timestamp:  time.Unix(int64(h.Time), 0),
		GasLimit:   h.GasLimit,
		GasUsed:    h.GasUsed,
	}
	if h.BaseFee != nil {
		out.BaseFee = new(big.Int).Set(h.BaseFee)
	}
	if h.BlobGasUsed != nil {
		v := *h.BlobGasUsed
		out.BlobGasUsed = &v
	}
	if h.ExcessBlobGas != nil {
		v := *h.ExcessBlobGas
		out.ExcessBlobGas = &v
	}
	return out, nil
}
