package app

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	tracerName = "github.com/fd1az/chain-wallet/business/subscription"
	meterName  = "github.com/fd1az/chain-wallet/business/subscription"
)

type multiplexerMetrics struct {
	activeBatches metric.Int64UpDownCounter
	deliveries    metric.Int64Counter
	decodeErrors  metric.Int64Counter
	readErrors    metric.Int64Counter
	interrupted   metric.Int64Counter
}

func newMultiplexerMetrics() (*multiplexerMetrics, error) {
	meter := otel.Meter(meterName)
	var err error

	m := &multiplexerMetrics{}

	m.activeBatches, err = meter.Int64UpDownCounter(
		"subscription_active_batches",
		metric.WithDescription("Batched subscriptions currently open"),
	)
	if err != nil {
		return nil, err
	}

	m.deliveries, err = meter.Int64Counter(
		"subscription_deliveries_total",
		metric.WithDescription("Per-index values handed to callbacks"),
	)
	if err != nil {
		return nil, err
	}

	m.decodeErrors, err = meter.Int64Counter(
		"subscription_decode_errors_total",
		metric.WithDescription("Values skipped because they failed to decode"),
	)
	if err != nil {
		return nil, err
	}

	m.readErrors, err = meter.Int64Counter(
		"subscription_read_errors_total",
		metric.WithDescription("Values skipped because the node could not read them"),
	)
	if err != nil {
		return nil, err
	}

	m.interrupted, err = meter.Int64Counter(
		"subscription_interrupted_total",
		metric.WithDescription("Batches ended by connection loss or stream failure"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
