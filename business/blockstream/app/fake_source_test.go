package app

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/chainstream/business/blockstream/domain"
	"github.com/fd1az/chainstream/internal/logger"
)

var errFlaky = errors.New("connection reset")

func hashOf(number uint64, fork byte) common.Hash {
	var h common.Hash
	h[0] = fork + 1
	binary.BigEndian.PutUint64(h[24:], number)
	return h
}

// makeChain builds headers from..to on fork, the first parented on parent.
func makeChain(from, to uint64, fork byte, parent common.Hash) []domain.Header {
	var out []domain.Header
	for n := from; n <= to; n++ {
		h := domain.Header{
			Number:     n,
			Hash:       hashOf(n, fork),
			ParentHash: parent,
			Timestamp:  time.Unix(int64(1_700_000_000+12*n), 0),
			GasLimit:   30_000_000,
			GasUsed:    15_000_000,
			BaseFee:    big.NewInt(1_000_000_000),
		}
		out = append(out, h)
		parent = h.Hash
		if n == to {
			break
		}
	}
	return out
}

func genesis() common.Hash { return hashOf(0, 0) }

// fakeSource is an in-memory chain. Queued errors are returned, one per
// call, before the real answer.
type fakeSource struct {
	mu sync.Mutex

	byHash   map[common.Hash]domain.Header
	byNumber map[uint64]domain.Header
	latest   domain.Header

	latestErrs []error
	numberErrs []error
	hashErrs   []error

	calls map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		byHash:   make(map[common.Hash]domain.Header),
		byNumber: make(map[uint64]domain.Header),
		calls:    make(map[string]int),
	}
}

// canon makes hs canonical and sets the head to the last one.
func (f *fakeSource) canon(hs ...domain.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range hs {
		f.byHash[h.Hash] = h
		f.byNumber[h.Number] = h
		f.latest = h
	}
}

// known makes hs reachable by hash only.
func (f *fakeSource) known(hs ...domain.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range hs {
		f.byHash[h.Hash] = h
	}
}

func (f *fakeSource) setLatest(h domain.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = h
}

func (f *fakeSource) failLatest(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestErrs = append(f.latestErrs, errs...)
}

func (f *fakeSource) failNumber(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.numberErrs = append(f.numberErrs, errs...)
}

func (f *fakeSource) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeSource) LatestHeader(context.Context) (domain.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["latest"]++
	if err := pop(&f.latestErrs); err != nil {
		return domain.Header{}, err
	}
	return f.latest, nil
}

func (f *fakeSource) HeaderByNumber(_ context.Context, n uint64) (domain.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["number"]++
	if err := pop(&f.numberErrs); err != nil {
		return domain.Header{}, err
	}
	h, ok := f.byNumber[n]
	if !ok {
		return domain.Header{}, domain.ErrNotFound
	}
	return h, nil
}

func (f *fakeSource) HeaderByHash(_ context.Context, hash common.Hash) (domain.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["hash"]++
	if err := pop(&f.hashErrs); err != nil {
		return domain.Header{}, err
	}
	h, ok := f.byHash[hash]
	if !ok {
		return domain.Header{}, domain.ErrNotFound
	}
	return h, nil
}

// rangeSource adds HeadersByRange; fail decides per call whether to error.
type rangeSource struct {
	*fakeSource

	mu     sync.Mutex
	fail   func(from, to uint64) error
	failed int
}

func (r *rangeSource) HeadersByRange(ctx context.Context, from, to uint64) ([]domain.Header, error) {
	if r.fail != nil {
		if err := r.fail(from, to); err != nil {
			r.mu.Lock()
			r.failed++
			r.mu.Unlock()
			return nil, err
		}
	}
	out := make([]domain.Header, 0, to-from+1)
	for i := uint64(0); i <= to-from; i++ {
		h, err := r.HeaderByNumber(ctx, from+i)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func (r *rangeSource) failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// recorder collects delivered events.
type recorder struct {
	mu      sync.Mutex
	events  []domain.Event
	onEvent func(domain.Event) error
}

func (r *recorder) HandleEvent(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	hook := r.onEvent
	r.mu.Unlock()

	if hook != nil {
		return hook(ev)
	}
	return nil
}

func (r *recorder) all() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func testConfig() Config {
	return Config{
		PollingInterval: time.Hour,
		MaxReorgDepth:   64,
		RetryCount:      3,
		RetryDelay:      time.Millisecond,
		MaxRetryDelay:   5 * time.Millisecond,
		FetchTimeout:    time.Second,
		WindowCapacity:  256,
	}
}

func newTestStream(t *testing.T, cfg Config, src BlockSource, h Handler, opts ...Option) *Stream {
	t.Helper()
	s, err := NewStream(cfg, src, h, logger.NewNop(), opts...)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	return s
}

func numbers(hs []domain.Header) []uint64 {
	out := make([]uint64, len(hs))
	for i, h := range hs {
		out[i] = h.Number
	}
	return out
}

func hashes(hs []domain.Header) []common.Hash {
	out := make([]common.Hash, len(hs))
	for i, h := range hs {
		out[i] = h.Hash
	}
	return out
}
