package app

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	tracerName = "github.com/fd1az/chain-wallet/business/connection"
	meterName  = "github.com/fd1az/chain-wallet/business/connection"
)

// connectionMetrics holds OTEL metric instruments shared by every connection.
type connectionMetrics struct {
	transitions      metric.Int64Counter
	readyConnections metric.Int64UpDownCounter
	readinessLatency metric.Float64Histogram
	metadataFailures metric.Int64Counter
	staleResolutions metric.Int64Counter
}

func newConnectionMetrics() (*connectionMetrics, error) {
	meter := otel.Meter(meterName)
	var err error

	m := &connectionMetrics{}

	m.transitions, err = meter.Int64Counter(
		"connection_transitions_total",
		metric.WithDescription("Connection state transitions"),
	)
	if err != nil {
		return nil, err
	}

	m.readyConnections, err = meter.Int64UpDownCounter(
		"connection_ready",
		metric.WithDescription("Connections currently in the ready state"),
	)
	if err != nil {
		return nil, err
	}

	m.readinessLatency, err = meter.Float64Histogram(
		"connection_readiness_seconds",
		metric.WithDescription("Time from connecting to ready"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.metadataFailures, err = meter.Int64Counter(
		"connection_metadata_failures_total",
		metric.WithDescription("Metadata resolutions that failed"),
	)
	if err != nil {
		return nil, err
	}

	m.staleResolutions, err = meter.Int64Counter(
		"connection_stale_resolutions_total",
		metric.WithDescription("Metadata results discarded because the connection moved on"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
