package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chainstream/business/blockstream/domain"
	"github.com/fd1az/chainstream/internal/apperror"
	"github.com/fd1az/chainstream/internal/logger"
)

// State is the lifecycle state of a Stream.
type State int32

const (
	StateIdle State = iota
	StateWatching
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

var (
	errRetriesExhausted   = errors.New("retries exhausted")
	errUnrecoverableReorg = errors.New("unrecoverable reorg")
	errStale              = errors.New("stale header")
)

type handlerError struct {
	err error
}

func (e *handlerError) Error() string { return "handler: " + e.err.Error() }
func (e *handlerError) Unwrap() error { return e.err }

// Option configures a Stream.
type Option func(*Stream)

// WithHeadNotifier wakes the poll loop whenever the notifier reports a head.
func WithHeadNotifier(n HeadNotifier) Option {
	return func(s *Stream) {
		s.notifier = n
	}
}

// WithID overrides the generated stream id.
func WithID(id string) Option {
	return func(s *Stream) {
		s.id = id
	}
}

// WithSeed preloads the window, e.g. with the tail of a backfill, so the
// stream resumes from it instead of from the current head.
func WithSeed(headers []domain.Header) Option {
	return func(s *Stream) {
		s.seed = headers
	}
}

// Stream follows the chain head, keeps a window of recent headers and
// delivers NewBlock, Reorg and a final Aborted event to its handler.
type Stream struct {
	id       string
	cfg      Config
	source   BlockSource
	handler  Handler
	notifier HeadNotifier
	log      logger.LoggerInterface
	seed     []domain.Header

	// Owned by the Run goroutine. Writes hold mu so Window() can snapshot.
	window *domain.Window
	budget int

	started atomic.Bool
	state   atomic.Int32

	mu          sync.RWMutex
	lastEmitted *domain.BlockID
	checkpoint  *domain.BlockID

	tracer  trace.Tracer
	metrics *streamMetrics
}

// NewStream creates a stream over source delivering to handler.
func NewStream(cfg Config, source BlockSource, handler Handler, log logger.LoggerInterface, opts ...Option) (*Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithCause(err))
	}
	if source == nil || handler == nil {
		return nil, apperror.New(apperror.CodeRequiredField, apperror.WithContext("source and handler are required"))
	}

	s := &Stream{
		id:      uuid.NewString(),
		cfg:     cfg,
		source:  source,
		handler: handler,
		log:     log,
		window:  domain.NewWindow(cfg.WindowCapacity),
		budget:  cfg.RetryCount,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, h := range s.seed {
		if err := s.window.Append(h); err != nil {
			return nil, apperror.New(apperror.CodeInvalidInput, apperror.WithCause(err), apperror.WithContext("seed"))
		}
	}
	s.seed = nil

	m, err := newStreamMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	s.metrics = m

	return s, nil
}

// ID returns the stream id used in logs and metrics.
func (s *Stream) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Stream) State() State { return State(s.state.Load()) }

// Window returns a snapshot of the chain window, oldest first.
func (s *Stream) Window() []domain.Header {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window.Headers()
}

// Checkpoint records that the consumer has processed id. The stream keeps it
// in memory only.
func (s *Stream) Checkpoint(id domain.BlockID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = &id
}

// LastCheckpoint returns the most recent checkpoint.
func (s *Stream) LastCheckpoint() (domain.BlockID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.checkpoint == nil {
		return domain.BlockID{}, false
	}
	return *s.checkpoint, true
}

// LastEmitted returns the head of the last delivered NewBlock or Reorg.
func (s *Stream) LastEmitted() (domain.BlockID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastEmitted == nil {
		return domain.BlockID{}, false
	}
	return *s.lastEmitted, true
}

// Run follows the chain until ctx is cancelled or a fatal condition occurs.
// Either way exactly one Aborted event is delivered and its error returned.
// Run may be called once.
func (s *Stream) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return apperror.New(apperror.CodeStreamAlreadyStarted, apperror.WithContext(s.id))
	}
	s.state.Store(int32(StateWatching))
	s.budget = s.cfg.RetryCount

	s.log.Info(ctx, "block stream started",
		"stream_id", s.id,
		"polling_interval", s.cfg.PollingInterval.String(),
		"max_reorg_depth", s.cfg.MaxReorgDepth,
		"window_capacity", s.cfg.WindowCapacity,
	)

	hints := s.subscribe(ctx)

	ticker := time.NewTicker(s.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return s.abort(ctx, domain.ReasonCancelled, context.Cause(ctx))
		}

		if err := s.poll(ctx); err != nil {
			return s.fail(ctx, err)
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		case n, ok := <-hints:
			if !ok {
				s.log.Warn(ctx, "head notifier closed, polling only", "stream_id", s.id)
				hints = nil
				continue
			}
			s.log.Debug(ctx, "head hint", "stream_id", s.id, "number", n)
		}
	}
}

func (s *Stream) subscribe(ctx context.Context) <-chan uint64 {
	if s.notifier == nil {
		return nil
	}
	ch, err := s.notifier.Notify(ctx)
	if err != nil {
		s.log.Warn(ctx, "head notifier unavailable, polling only", "stream_id", s.id, "error", err)
		return nil
	}
	return ch
}

// poll runs one cycle: read the head, fill any gap, ingest.
func (s *Stream) poll(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "blockstream.poll",
		trace.WithAttributes(attribute.String("stream_id", s.id)))
	defer span.End()

	err := s.pollOnce(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "poll failed")
		return err
	}

	s.budget = s.cfg.RetryCount
	s.metrics.windowSize.Record(ctx, int64(s.window.Len()),
		metric.WithAttributes(attribute.String("stream_id", s.id)))
	return nil
}

func (s *Stream) pollOnce(ctx context.Context) error {
	latest, err := s.fetch(ctx, "latest", func(ctx context.Context) (domain.Header, error) {
		h, err := s.source.LatestHeader(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			return h, domain.NewTransportError("latest", err)
		}
		return h, err
	})
	if err != nil {
		return err
	}
	if err := s.checkHeader(latest); err != nil {
		return err
	}

	last, ok := s.window.Last()
	switch {
	case !ok:
		return s.ingest(ctx, latest)
	case latest.Number > last.Number+1:
		return s.fillGap(ctx, last.Number+1, latest)
	case latest.Number <= last.Number && s.window.Contains(latest.Hash):
		return nil
	default:
		return s.ingest(ctx, latest)
	}
}

// fillGap ingests from..latest-1 by number, then latest.
func (s *Stream) fillGap(ctx context.Context, from uint64, latest domain.Header) error {
	s.log.Debug(ctx, "filling gap", "stream_id", s.id, "from", from, "to", latest.Number)

	for n := from; n < latest.Number; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		h, err := s.fetchByNumber(ctx, n)
		if err != nil {
			return err
		}
		if err := s.ingest(ctx, h); err != nil {
			return err
		}
	}
	return s.ingest(ctx, latest)
}

func (s *Stream) ingest(ctx context.Context, h domain.Header) error {
	if err := s.checkHeader(h); err != nil {
		return err
	}

	last, ok := s.window.Last()
	if !ok || last.IsParentOf(h) {
		return s.extend(ctx, h)
	}

	if s.window.Contains(h.Hash) {
		s.log.Debug(ctx, "duplicate header", "stream_id", s.id, "block", h.ID().String())
		return nil
	}

	return s.reorg(ctx, h)
}

func (s *Stream) extend(ctx context.Context, h domain.Header) error {
	s.mu.Lock()
	err := s.window.Append(h)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.emit(ctx, domain.NewBlock{Header: h})
}

// reorg walks h's ancestors until one is in the window.
func (s *Stream) reorg(ctx context.Context, h domain.Header) error {
	oldest, _ := s.window.Oldest()

	chain := []domain.Header{h} // newest first
	cursor := h
	for fetched := 0; ; fetched++ {
		if idx := s.window.IndexOf(cursor.ParentHash); idx >= 0 {
			if ancestor := s.window.At(idx); !ancestor.IsParentOf(cursor) {
				return fmt.Errorf("%w: %s claims parent %s", domain.ErrMalformedHeader, cursor.ID(), ancestor.ID())
			}
			slices.Reverse(chain)
			return s.switchTo(ctx, idx, chain)
		}

		if fetched >= s.cfg.MaxReorgDepth {
			return fmt.Errorf("%w: no common ancestor within %d blocks of %s",
				errUnrecoverableReorg, s.cfg.MaxReorgDepth, h.ID())
		}
		if cursor.Number <= oldest.Number {
			return fmt.Errorf("%w: %s descends below window start %s",
				errUnrecoverableReorg, h.ID(), oldest.ID())
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		parent, err := s.fetchParent(ctx, cursor)
		if errors.Is(err, errStale) {
			s.log.Warn(ctx, "skipping stale header",
				"stream_id", s.id,
				"block", h.ID().String(),
				"missing_ancestor", cursor.ParentHash.Hex(),
			)
			return nil
		}
		if err != nil {
			return err
		}

		chain = append(chain, parent)
		cursor = parent
	}
}

// switchTo replaces everything after window[idx] with newChain (oldest first).
func (s *Stream) switchTo(ctx context.Context, idx int, newChain []domain.Header) error {
	s.mu.Lock()
	ancestor := s.window.At(idx)
	reverted := s.window.TruncateAfter(idx)
	for _, h := range newChain {
		if err := s.window.Append(h); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%w: %w", domain.ErrMalformedHeader, err)
		}
	}
	s.mu.Unlock()

	if len(reverted) == 0 {
		for _, h := range newChain {
			if err := s.emit(ctx, domain.NewBlock{Header: h}); err != nil {
				return err
			}
		}
		return nil
	}

	slices.Reverse(reverted)
	ev := domain.Reorg{CommonAncestor: ancestor, Reverted: reverted, New: newChain}

	s.log.Warn(ctx, "chain reorganization",
		"stream_id", s.id,
		"depth", ev.Depth(),
		"common_ancestor", ancestor.ID().String(),
		"new_head", ev.Head().ID().String(),
	)
	return s.emit(ctx, ev)
}

func (s *Stream) fetchParent(ctx context.Context, child domain.Header) (domain.Header, error) {
	parent, err := s.fetch(ctx, "header_by_hash", func(ctx context.Context) (domain.Header, error) {
		return s.source.HeaderByHash(ctx, child.ParentHash)
	})
	if err == nil {
		if parent.Hash != child.ParentHash || !parent.IsParentOf(child) {
			return domain.Header{}, fmt.Errorf("%w: asked for parent of %s, got %s",
				domain.ErrMalformedHeader, child.ID(), parent.ID())
		}
		return parent, s.checkHeader(parent)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Header{}, err
	}

	// The node may have pruned the fork; look at what is canonical there now.
	canon, err := s.fetch(ctx, "header_by_number", func(ctx context.Context) (domain.Header, error) {
		return s.source.HeaderByNumber(ctx, child.Number-1)
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.Header{}, errStale
	case err != nil:
		return domain.Header{}, err
	case canon.Hash != child.ParentHash:
		return domain.Header{}, errStale
	}
	return canon, s.checkHeader(canon)
}

func (s *Stream) fetchByNumber(ctx context.Context, n uint64) (domain.Header, error) {
	h, err := s.fetch(ctx, "header_by_number", func(ctx context.Context) (domain.Header, error) {
		h, err := s.source.HeaderByNumber(ctx, n)
		if errors.Is(err, domain.ErrNotFound) {
			// Behind the reported head: the node is catching up.
			return h, domain.NewTransportError("header_by_number", err)
		}
		return h, err
	})
	if err != nil {
		return domain.Header{}, err
	}
	if h.Number != n {
		return domain.Header{}, fmt.Errorf("%w: asked for block %d, got %s", domain.ErrMalformedHeader, n, h.ID())
	}
	return h, nil
}

// fetch runs fn with retries drawn from the cycle's shared budget. Each
// attempt is detached from ctx cancellation and bounded by FetchTimeout.
func (s *Stream) fetch(ctx context.Context, op string, fn func(context.Context) (domain.Header, error)) (domain.Header, error) {
	attempt := func() (domain.Header, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FetchTimeout)
		defer cancel()

		h, err := fn(fctx)
		if err == nil {
			return h, nil
		}
		if !retryable(err) {
			return h, backoff.Permanent(err)
		}
		if s.budget <= 0 {
			return h, backoff.Permanent(fmt.Errorf("%w: %s: %w", errRetriesExhausted, op, err))
		}
		s.budget--
		s.metrics.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
		return h, err
	}

	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(s.cfg.backOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Warn(ctx, "fetch failed, retrying",
				"stream_id", s.id,
				"op", op,
				"error", err,
				"retry_in", next.String(),
				"budget_left", s.budget,
			)
		}),
	)
}

// retryable classifies a fetch error. Transport failures and AppErrors with
// a temporary code (open breaker, rate limit) are retried; other AppErrors
// carry a definite verdict and are not. Unclassified errors are retried.
func retryable(err error) bool {
	if domain.IsTransient(err) || apperror.IsTemporary(err) {
		return true
	}
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrMalformedHeader),
		errors.Is(err, domain.ErrSourceExhausted),
		errors.Is(err, errDiscontinuity),
		errors.Is(err, context.Canceled):
		return false
	}
	return !apperror.IsAppError(err)
}

func (s *Stream) checkHeader(h domain.Header) error {
	return h.Validate(s.cfg.RequireFeeFields)
}

func (s *Stream) emit(ctx context.Context, ev domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.handler.HandleEvent(ctx, ev); err != nil {
		return &handlerError{err: err}
	}

	attrs := metric.WithAttributes(attribute.String("stream_id", s.id))

	var head domain.BlockID
	switch e := ev.(type) {
	case domain.NewBlock:
		head = e.Header.ID()
		s.metrics.blocks.Add(ctx, 1, attrs)
	case domain.Reorg:
		head = e.Head().ID()
		s.metrics.blocks.Add(ctx, int64(len(e.New)), attrs)
		s.metrics.reorgs.Add(ctx, 1, attrs)
		s.metrics.reorgDepth.Record(ctx, int64(e.Depth()), attrs)
	}

	s.mu.Lock()
	s.lastEmitted = &head
	s.mu.Unlock()
	return nil
}

func (s *Stream) fail(ctx context.Context, err error) error {
	var herr *handlerError
	switch {
	case ctx.Err() != nil:
		return s.abort(ctx, domain.ReasonCancelled, context.Cause(ctx))
	case errors.As(err, &herr):
		return s.abort(ctx, domain.ReasonHandlerFailed, herr.err)
	case errors.Is(err, errUnrecoverableReorg):
		return s.abort(ctx, domain.ReasonUnrecoverableReorg, err)
	case errors.Is(err, domain.ErrMalformedHeader):
		return s.abort(ctx, domain.ReasonMalformedHeader, err)
	case errors.Is(err, domain.ErrSourceExhausted):
		return s.abort(ctx, domain.ReasonSourceExhausted, err)
	default:
		return s.abort(ctx, domain.ReasonRetriesExhausted, err)
	}
}

var abortCodes = map[domain.AbortReason]apperror.Code{
	domain.ReasonUnrecoverableReorg: apperror.CodeReorgTooDeep,
	domain.ReasonRetriesExhausted:   apperror.CodeRetriesExhausted,
	domain.ReasonMalformedHeader:    apperror.CodeMalformedHeader,
	domain.ReasonSourceExhausted:    apperror.CodeSourceExhausted,
	domain.ReasonHandlerFailed:      apperror.CodeHandlerFailed,
}

// abort moves to the terminal state and delivers the Aborted event.
func (s *Stream) abort(ctx context.Context, reason domain.AbortReason, cause error) error {
	s.state.Store(int32(StateAborted))

	err := cause
	var appErr *apperror.AppError
	if code, ok := abortCodes[reason]; ok {
		appErr = apperror.New(code, apperror.WithCause(cause), apperror.WithContextf("stream %s", s.id))
		err = appErr
	}

	// The handler must see Aborted even when ctx is already cancelled.
	dctx := context.WithoutCancel(ctx)

	s.metrics.aborts.Add(dctx, 1, metric.WithAttributes(
		attribute.String("stream_id", s.id),
		attribute.String("reason", string(reason)),
	))

	switch {
	case reason == domain.ReasonCancelled:
		s.log.Info(dctx, "block stream stopped", "stream_id", s.id)
	case appErr != nil:
		s.log.Error(dctx, "block stream aborted", "stream_id", s.id, "reason", string(reason), "error", appErr.ToLog())
	default:
		s.log.Error(dctx, "block stream aborted", "stream_id", s.id, "reason", string(reason), "error", err)
	}

	if herr := s.handler.HandleEvent(dctx, domain.Aborted{Reason: reason, Err: err}); herr != nil {
		s.log.Warn(dctx, "handler failed on abort", "stream_id", s.id, "error", herr)
	}
	return err
}
