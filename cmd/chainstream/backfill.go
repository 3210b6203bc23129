package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fd1az/chainstream/business/blockstream"
	"github.com/fd1az/chainstream/business/blockstream/app"
	blockstreamDI "github.com/fd1az/chainstream/business/blockstream/di"
	"github.com/fd1az/chainstream/business/blockstream/domain"
)

type backfillOptions struct {
	from   uint64
	to     uint64
	follow bool
}

func newBackfillCmd(opts *rootOptions) *cobra.Command {
	bf := &backfillOptions{}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Replay a historical block range, checking parent-hash continuity",
		Example: `  chainstream backfill --from 19000000 --to 19000100
  chainstream backfill --from 19000000 --follow`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer rt.close()

			return runBackfill(cmd.Context(), rt, bf)
		},
	}
	cmd.Flags().Uint64Var(&bf.from, "from", 0, "First block to replay")
	cmd.Flags().Uint64Var(&bf.to, "to", 0, "Last block to replay (default: current head)")
	cmd.Flags().BoolVar(&bf.follow, "follow", false, "Keep following the head after the range is done")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func runBackfill(ctx context.Context, rt *runtime, opts *backfillOptions) (err error) {
	ctx, span := rt.tracer.StartSpan(ctx, "chainstream.backfill",
		attribute.Int64("from", int64(opts.from)),
		attribute.Int64("to", int64(opts.to)),
	)
	defer func() { span.Finish(err) }()

	if err := rt.start(ctx); err != nil {
		return err
	}

	services := rt.mono.Services()
	source := blockstreamDI.GetSource(services)
	rep := blockstreamDI.GetReporter(services)

	to := opts.to
	if to == 0 {
		head, err := source.LatestHeader(ctx)
		if err != nil {
			return fmt.Errorf("fetch chain head: %w", err)
		}
		to = head.Number
	}

	if lc, ok := rep.(lifecycle); ok {
		_ = lc.Start(ctx)
		defer lc.Stop()
	}

	b := blockstreamDI.GetBackfiller(services)
	last, err := b.Run(ctx, opts.from, to)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("backfill stopped after %s: %w", describe(last), err)
	}
	rt.log.Info(ctx, "backfill complete", "from", opts.from, "to", to, "last", last.ID().String())
	span.AddEvent("backfill_complete", attribute.Int64("last", int64(last.Number)))

	if !opts.follow {
		return nil
	}

	// Seed the stream with the last replayed header so it fills the gap to
	// the head and then follows it.
	stream, err := app.NewStream(blockstream.StreamConfig(rt.cfg), source, blockstreamDI.GetHandler(services), rt.log,
		app.WithSeed([]domain.Header{last}))
	if err != nil {
		return err
	}
	if rt.health != nil {
		rt.health.RegisterCheck("stream", blockstream.HealthCheck(stream))
	}
	if err := stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func describe(h domain.Header) string {
	if h.Hash == (common.Hash{}) {
		return "no blocks"
	}
	return h.ID().String()
}
