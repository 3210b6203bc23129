package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/chainstream/business/blockstream/domain"
	"github.com/fd1az/chainstream/internal/apperror"
	"github.com/fd1az/chainstream/internal/logger"
)

var errDiscontinuity = errors.New("parent hash discontinuity")

// BackfillConfig holds the backfill settings.
type BackfillConfig struct {
	ChunkSize     int           // Headers per fetch at full speed
	MinChunkSize  int           // Floor when halving after errors
	Concurrency   int           // Chunks fetched in parallel
	RetryCount    int           // Consecutive failures tolerated at MinChunkSize
	RetryDelay    time.Duration // Initial backoff at MinChunkSize
	MaxRetryDelay time.Duration // Backoff ceiling
	FetchTimeout  time.Duration // Bound on a single chunk fetch
}

// DefaultBackfillConfig returns sensible defaults.
func DefaultBackfillConfig() BackfillConfig {
	return BackfillConfig{
		ChunkSize:     100,
		MinChunkSize:  1,
		Concurrency:   4,
		RetryCount:    3,
		RetryDelay:    500 * time.Millisecond,
		MaxRetryDelay: 10 * time.Second,
		FetchTimeout:  30 * time.Second,
	}
}

type chunkRange struct {
	from, to uint64
}

// Backfiller delivers a historical range as NewBlock events, in order, with
// parent continuity checked across the whole range.
type Backfiller struct {
	cfg     BackfillConfig
	source  BlockSource
	handler Handler
	log     logger.LoggerInterface

	chunkSize int

	tracer  trace.Tracer
	metrics *streamMetrics
}

// NewBackfiller creates a backfiller over source delivering to handler.
func NewBackfiller(cfg BackfillConfig, source BlockSource, handler Handler, log logger.LoggerInterface) (*Backfiller, error) {
	if cfg.ChunkSize <= 0 || cfg.Concurrency <= 0 || cfg.FetchTimeout <= 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("chunk size, concurrency and fetch timeout must be positive"))
	}
	if cfg.MinChunkSize <= 0 || cfg.MinChunkSize > cfg.ChunkSize {
		cfg.MinChunkSize = 1
	}
	if source == nil || handler == nil {
		return nil, apperror.New(apperror.CodeRequiredField, apperror.WithContext("source and handler are required"))
	}

	m, err := newStreamMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return &Backfiller{
		cfg:       cfg,
		source:    source,
		handler:   handler,
		log:       log,
		chunkSize: cfg.ChunkSize,
		tracer:    otel.Tracer(tracerName),
		metrics:   m,
	}, nil
}

// ChunkSize returns the current, possibly reduced, chunk size.
func (b *Backfiller) ChunkSize() int { return b.chunkSize }

// Run delivers blocks from..to and returns the last delivered header. On
// error the returned header is where a Resume should continue from.
func (b *Backfiller) Run(ctx context.Context, from, to uint64) (domain.Header, error) {
	return b.run(ctx, from, to, nil)
}

// Resume continues after last, which must be the parent of block last+1.
func (b *Backfiller) Resume(ctx context.Context, last domain.Header, to uint64) (domain.Header, error) {
	return b.run(ctx, last.Number+1, to, &last)
}

func (b *Backfiller) run(ctx context.Context, from, to uint64, anchor *domain.Header) (domain.Header, error) {
	ctx, span := b.tracer.Start(ctx, "blockstream.backfill", trace.WithAttributes(
		attribute.Int64("from", int64(from)),
		attribute.Int64("to", int64(to)),
	))
	defer span.End()

	var last domain.Header
	linked := anchor != nil
	if linked {
		last = *anchor
	}

	if from > to {
		return last, apperror.New(apperror.CodeInvalidRange, apperror.WithContextf("from %d > to %d", from, to))
	}

	b.log.Info(ctx, "backfill started", "from", from, "to", to, "chunk_size", b.chunkSize)

	bo := newBackOff(b.cfg.RetryDelay, b.cfg.MaxRetryDelay)
	failures := 0
	next := from
	done := false

	for !done {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		plan := b.plan(next, to)
		results, firstFailed, err := b.fetchRound(ctx, plan)

		for i := 0; i < firstFailed; i++ {
			for _, h := range results[i] {
				if linked && !last.IsParentOf(h) {
					derr := fmt.Errorf("%w: %s does not extend %s", errDiscontinuity, h.ID(), last.ID())
					return last, b.finish(ctx, span, derr)
				}
				if err := b.emit(ctx, h); err != nil {
					return last, b.finish(ctx, span, err)
				}
				last, linked = h, true
			}
			// to may be the last representable block number.
			if plan[i].to == to {
				done = true
				break
			}
			next = plan[i].to + 1
		}

		if err == nil {
			failures = 0
			bo.Reset()
			b.grow(ctx)
			continue
		}

		if !retryable(err) {
			return last, b.finish(ctx, span, err)
		}

		if b.chunkSize > b.cfg.MinChunkSize {
			b.shrink(ctx, err)
			continue
		}

		failures++
		if failures > b.cfg.RetryCount {
			return last, b.finish(ctx, span, fmt.Errorf("%w: %w", errRetriesExhausted, err))
		}

		wait := bo.NextBackOff()
		b.log.Warn(ctx, "backfill chunk failed, retrying",
			"from", next, "error", err, "attempt", failures, "retry_in", wait.String())

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}
	}

	b.log.Info(ctx, "backfill finished", "from", from, "to", to, "last", last.ID().String())
	span.SetStatus(codes.Ok, "done")
	return last, nil
}

// plan splits next..to into up to Concurrency chunks.
func (b *Backfiller) plan(next, to uint64) []chunkRange {
	size := uint64(b.chunkSize)
	var out []chunkRange
	for i := 0; i < b.cfg.Concurrency && next <= to; i++ {
		end := to
		if to-next >= size {
			end = next + size - 1
		}
		out = append(out, chunkRange{from: next, to: end})
		if end == to {
			break
		}
		next = end + 1
	}
	return out
}

// fetchRound fetches the planned chunks concurrently. It returns every
// result and the index of the first failed chunk (len(plan) if none).
func (b *Backfiller) fetchRound(ctx context.Context, plan []chunkRange) ([][]domain.Header, int, error) {
	results := make([][]domain.Header, len(plan))
	errs := make([]error, len(plan))

	var g errgroup.Group
	g.SetLimit(b.cfg.Concurrency)
	for i, c := range plan {
		g.Go(func() error {
			results[i], errs[i] = b.fetchChunk(ctx, c)
			return errs[i]
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			return results, i, err
		}
	}
	return results, len(plan), nil
}

func (b *Backfiller) fetchChunk(ctx context.Context, c chunkRange) ([]domain.Header, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.FetchTimeout)
	defer cancel()

	var headers []domain.Header
	if rs, ok := b.source.(RangeSource); ok {
		var err error
		headers, err = rs.HeadersByRange(fctx, c.from, c.to)
		if err != nil {
			return nil, err
		}
	} else {
		headers = make([]domain.Header, 0, c.to-c.from+1)
		for i := uint64(0); i <= c.to-c.from; i++ {
			h, err := b.source.HeaderByNumber(fctx, c.from+i)
			if err != nil {
				return nil, err
			}
			headers = append(headers, h)
		}
	}

	if uint64(len(headers)) != c.to-c.from+1 {
		return nil, fmt.Errorf("%w: range %d..%d returned %d headers",
			domain.ErrMalformedHeader, c.from, c.to, len(headers))
	}
	for i, h := range headers {
		if h.Number != c.from+uint64(i) {
			return nil, fmt.Errorf("%w: expected block %d, got %s", domain.ErrMalformedHeader, c.from+uint64(i), h.ID())
		}
		if err := h.Validate(false); err != nil {
			return nil, err
		}
		if i > 0 && !headers[i-1].IsParentOf(h) {
			return nil, fmt.Errorf("%w: %s does not extend %s", errDiscontinuity, h.ID(), headers[i-1].ID())
		}
	}
	return headers, nil
}

func (b *Backfiller) emit(ctx context.Context, h domain.Header) error {
	if err := b.handler.HandleEvent(ctx, domain.NewBlock{Header: h}); err != nil {
		return &handlerError{err: err}
	}
	b.metrics.backfillHeaders.Add(ctx, 1)
	return nil
}

func (b *Backfiller) shrink(ctx context.Context, cause error) {
	b.chunkSize = max(b.chunkSize/2, b.cfg.MinChunkSize)
	b.metrics.backfillChunk.Record(ctx, int64(b.chunkSize))
	b.log.Warn(ctx, "backfill chunk size reduced", "chunk_size", b.chunkSize, "error", cause)
}

func (b *Backfiller) grow(ctx context.Context) {
	if b.chunkSize >= b.cfg.ChunkSize {
		return
	}
	b.chunkSize = min(b.chunkSize*2, b.cfg.ChunkSize)
	b.metrics.backfillChunk.Record(ctx, int64(b.chunkSize))
}

// finish maps err to an AppError and records it on the span.
func (b *Backfiller) finish(ctx context.Context, span trace.Span, err error) error {
	var (
		herr *handlerError
		code apperror.Code
	)
	switch {
	case errors.As(err, &herr):
		code = apperror.CodeHandlerFailed
	case errors.Is(err, errDiscontinuity):
		code = apperror.CodeBackfillDiscontinuity
	case errors.Is(err, errRetriesExhausted):
		code = apperror.CodeRetriesExhausted
	case errors.Is(err, domain.ErrMalformedHeader):
		code = apperror.CodeMalformedHeader
	case errors.Is(err, domain.ErrNotFound):
		code = apperror.CodeBlockNotFound
	case errors.Is(err, domain.ErrSourceExhausted):
		code = apperror.CodeSourceExhausted
	default:
		code = apperror.CodeInternalError
	}

	appErr := apperror.New(code, apperror.WithCause(err))
	span.RecordError(appErr)
	span.SetStatus(codes.Error, string(code))
	b.log.Error(ctx, "backfill failed", "error", appErr.ToLog())
	return appErr
}
