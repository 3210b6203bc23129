package main

import (
	"context"
	"fmt"
	"io"
	"math/big"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fd1az/chainstream/business/feemarket"
	feemarketDI "github.com/fd1az/chainstream/business/feemarket/di"
	"github.com/fd1az/chainstream/business/feemarket/domain"
)

type feeOptions struct {
	project  int
	gasLimit uint64
	blobs    uint64
}

func newFeeCmd(opts *rootOptions) *cobra.Command {
	fo := &feeOptions{}

	cmd := &cobra.Command{
		Use:   "fee",
		Short: "Estimate fees for the next block from the current head",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer rt.close()

			return runFee(cmd.Context(), rt, fo, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&fo.project, "project", 0, "Also project base fees this many blocks ahead at current usage")
	cmd.Flags().Uint64Var(&fo.gasLimit, "gas-limit", 21_000, "Gas limit used for the worst-case cost line")
	cmd.Flags().Uint64Var(&fo.blobs, "blobs", 0, "Blobs carried by the transaction")
	return cmd
}

func runFee(ctx context.Context, rt *runtime, opts *feeOptions, out io.Writer) (err error) {
	ctx, span := rt.tracer.StartSpan(ctx, "chainstream.fee")
	defer func() { span.Finish(err) }()

	if err := rt.start(ctx, &feemarket.Module{}); err != nil {
		return err
	}

	est := feemarketDI.GetEstimator(rt.mono.Services())
	e, err := est.Estimate(ctx)
	if err != nil {
		return err
	}
	printEstimate(out, est.Params(), e, opts)

	if opts.project > 0 {
		proj, err := est.Project(ctx, opts.project)
		if err != nil {
			return err
		}
		printProjection(out, proj)
	}
	return nil
}

func printEstimate(out io.Writer, p domain.Params, e *domain.FeeEstimate, opts *feeOptions) {
	fmt.Fprintf(out, "Fee estimate from block #%d (%s)\n", e.BlockNumber, p.Fork)

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.Append([]string{"base fee", domain.FormatGwei(e.BaseFee, 4) + " gwei"})
	table.Append([]string{"next base fee", e.NextBaseFeeGwei().StringFixed(4) + " gwei"})
	table.Append([]string{"priority fee", domain.FormatGwei(e.TipCap, 4) + " gwei"})
	table.Append([]string{"max fee", e.MaxFeeGwei().StringFixed(4) + " gwei"})
	table.Append([]string{"next blob fee", e.NextBlobBaseFee.String() + " wei"})
	table.Append([]string{
		fmt.Sprintf("tx cost (%d gas)", opts.gasLimit),
		domain.FormatGwei(e.TxCost(opts.gasLimit), 4) + " gwei",
	})

	if opts.blobs > 0 {
		blobGas := new(big.Int).SetUint64(domain.BlobGasForBlobs(opts.blobs))
		cost := blobGas.Mul(blobGas, e.NextBlobBaseFee)
		table.Append([]string{fmt.Sprintf("blob cost (%d)", opts.blobs), domain.FormatGwei(cost, 6) + " gwei"})
	}
	table.Render()
}

func printProjection(out io.Writer, proj []domain.Projection) {
	fmt.Fprintln(out, "Projection at current usage")

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Block", "Base fee (gwei)", "Blob fee (wei)"})
	for _, pr := range proj {
		table.Append([]string{
			fmt.Sprintf("+%d", pr.Offset),
			domain.FormatGwei(pr.BaseFee, 4),
			pr.BlobBaseFee.String(),
		})
	}
	table.Render()
}
