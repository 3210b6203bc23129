package reporter

import (
	"context"

	"github.com/fd1az/chainstream/business/blockstream/domain"
	"github.com/fd1az/chainstream/internal/logger"
)

// LogReporter writes stream events to the structured log. Blocks are logged
// at debug, reorgs at warn and aborts at error.
type LogReporter struct {
	log logger.LoggerInterface
}

// NewLogReporter creates a LogReporter.
func NewLogReporter(log logger.LoggerInterface) *LogReporter {
	return &LogReporter{log: log}
}

// HandleEvent logs one event.
func (r *LogReporter) HandleEvent(ctx context.Context, ev domain.Event) error {
	switch e := ev.(type) {
	case domain.NewBlock:
		r.log.Debug(ctx, "new block", "block", e.Header.ID().String(), "parent", e.Header.ParentHash.Hex())
	case domain.Reorg:
		r.log.Warn(ctx, "chain reorganization",
			"ancestor", e.CommonAncestor.ID().String(),
			"depth", e.Depth(),
			"reverted", len(e.Reverted),
			"new", len(e.New),
		)
	case domain.Aborted:
		if e.Reason == domain.ReasonCancelled {
			return nil
		}
		r.log.Error(ctx, "stream aborted", "reason", string(e.Reason), "error", e.Err)
	}
	return nil
}
