// Package app contains the block stream and backfill use cases.
package app

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/chainstream/business/blockstream/domain"
)

// BlockSource provides headers. Implementations must be safe for concurrent
// use and return domain.ErrNotFound for unknown blocks.
type BlockSource interface {
	HeaderByNumber(ctx context.Context, number uint64) (domain.Header, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (domain.Header, error)
	LatestHeader(ctx context.Context) (domain.Header, error)
}

// RangeSource is a BlockSource that can fetch a contiguous range in one call.
type RangeSource interface {
	BlockSource
	HeadersByRange(ctx context.Context, from, to uint64) ([]domain.Header, error)
}

// HeadNotifier pushes the numbers of new heads as they appear. The channel
// is closed when ctx is done or the subscription fails.
type HeadNotifier interface {
	Notify(ctx context.Context) (<-chan uint64, error)
}

// Handler receives stream events in order.
type Handler interface {
	HandleEvent(ctx context.Context, ev domain.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev domain.Event) error

// HandleEvent calls f(ctx, ev).
func (f HandlerFunc) HandleEvent(ctx context.Context, ev domain.Event) error {
	return f(ctx, ev)
}

// MultiHandler fans events out to several handlers, stopping at the first error.
type MultiHandler []Handler

// HandleEvent delivers ev to each handler in order.
func (m MultiHandler) HandleEvent(ctx context.Context, ev domain.Event) error {
	for _, h := range m {
		if err := h.HandleEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
