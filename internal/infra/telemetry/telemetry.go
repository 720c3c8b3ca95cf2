// Package telemetry wires OpenTelemetry metrics for the submission engine.
// With telemetry disabled a no-op provider is installed.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"vermietify/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const instrumentationScope = "vermietify/internal/usecase"

// Setup installs the global meter provider and returns its shutdown func.
func Setup(ctx context.Context, enabled bool, interval time.Duration) (metric.MeterProvider, func(context.Context) error, error) {
	if !enabled {
		mp := metricnoop.NewMeterProvider()
		otel.SetMeterProvider(mp)
		return mp, func(context.Context) error { return nil }, nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	exp, err := stdoutmetric.New()
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp)
	return mp, mp.Shutdown, nil
}

// EngineMetrics implements usecase.Metrics on OTel counters.
type EngineMetrics struct {
	transitions     metric.Int64Counter
	sweepSubmitted  metric.Int64Counter
	sweepWithheld   metric.Int64Counter
	sweepFailed     metric.Int64Counter
	gatewayFailures metric.Int64Counter
	batchItems      metric.Int64Counter
}

func NewEngineMetrics(provider metric.MeterProvider) (*EngineMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(instrumentationScope)
	m := &EngineMetrics{}
	var err error
	if m.transitions, err = meter.Int64Counter("vermietify.transitions",
		metric.WithDescription("Submission state transitions by action")); err != nil {
		return nil, err
	}
	if m.sweepSubmitted, err = meter.Int64Counter("vermietify.sweep.submitted",
		metric.WithDescription("Submissions transmitted by the auto-submit sweep")); err != nil {
		return nil, err
	}
	if m.sweepWithheld, err = meter.Int64Counter("vermietify.sweep.withheld",
		metric.WithDescription("Submissions the confidence gate held back")); err != nil {
		return nil, err
	}
	if m.sweepFailed, err = meter.Int64Counter("vermietify.sweep.failed"); err != nil {
		return nil, err
	}
	if m.gatewayFailures, err = meter.Int64Counter("vermietify.gateway.failures",
		metric.WithDescription("Failed gateway calls by operation")); err != nil {
		return nil, err
	}
	if m.batchItems, err = meter.Int64Counter("vermietify.batch.items",
		metric.WithDescription("Batch targets by operation and result")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *EngineMetrics) Transition(ctx context.Context, action domain.AuditAction) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("action", string(action))))
}

func (m *EngineMetrics) SweepCompleted(ctx context.Context, submitted, withheld, failed int) {
	m.sweepSubmitted.Add(ctx, int64(submitted))
	m.sweepWithheld.Add(ctx, int64(withheld))
	m.sweepFailed.Add(ctx, int64(failed))
}

func (m *EngineMetrics) GatewayFailure(ctx context.Context, op string) {
	m.gatewayFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *EngineMetrics) BatchCompleted(ctx context.Context, operation string, success, failed int) {
	m.batchItems.Add(ctx, int64(success), metric.WithAttributes(
		attribute.String("operation", operation), attribute.String("result", "success")))
	m.batchItems.Add(ctx, int64(failed), metric.WithAttributes(
		attribute.String("operation", operation), attribute.String("result", "failed")))
}
