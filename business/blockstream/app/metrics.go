package app

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	tracerName = "github.com/fd1az/chainstream/business/blockstream/app"
	meterName  = "github.com/fd1az/chainstream/business/blockstream/app"
)

type streamMetrics struct {
	blocks     metric.Int64Counter
	reorgs     metric.Int64Counter
	reorgDepth metric.Int64Histogram
	aborts     metric.Int64Counter
	retries    metric.Int64Counter
	windowSize metric.Int64Gauge

	backfillHeaders metric.Int64Counter
	backfillChunk   metric.Int64Gauge
}

func newStreamMetrics() (*streamMetrics, error) {
	meter := otel.Meter(meterName)
	m := &streamMetrics{}
	var err error

	m.blocks, err = meter.Int64Counter(
		"chainstream_blocks_total",
		metric.WithDescription("Blocks delivered as NewBlock or as part of a reorg"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return nil, err
	}

	m.reorgs, err = meter.Int64Counter(
		"chainstream_reorgs_total",
		metric.WithDescription("Chain reorganizations detected"),
		metric.WithUnit("{reorg}"),
	)
	if err != nil {
		return nil, err
	}

	m.reorgDepth, err = meter.Int64Histogram(
		"chainstream_reorg_depth",
		metric.WithDescription("Number of reverted blocks per reorg"),
		metric.WithUnit("{block}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 5, 8, 13, 21, 34, 64),
	)
	if err != nil {
		return nil, err
	}

	m.aborts, err = meter.Int64Counter(
		"chainstream_aborts_total",
		metric.WithDescription("Streams stopped, by reason"),
		metric.WithUnit("{abort}"),
	)
	if err != nil {
		return nil, err
	}

	m.retries, err = meter.Int64Counter(
		"chainstream_fetch_retries_total",
		metric.WithDescription("Fetch retries after transient errors"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	m.windowSize, err = meter.Int64Gauge(
		"chainstream_window_size",
		metric.WithDescription("Headers held in the chain window"),
		metric.WithUnit("{header}"),
	)
	if err != nil {
		return nil, err
	}

	m.backfillHeaders, err = meter.Int64Counter(
		"chainstream_backfill_headers_total",
		metric.WithDescription("Headers delivered by backfill"),
		metric.WithUnit("{header}"),
	)
	if err != nil {
		return nil, err
	}

	m.backfillChunk, err = meter.Int64Gauge(
		"chainstream_backfill_chunk_size",
		metric.WithDescription("Current backfill chunk size"),
		metric.WithUnit("{header}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
