package telemetry

import (
	"context"
	"testing"

	"vermietify/internal/domain"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestEngineMetricsRecordCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewEngineMetrics(provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	ctx := context.Background()
	m.Transition(ctx, domain.ActionSubmitted)
	m.Transition(ctx, domain.ActionSubmitted)
	m.SweepCompleted(ctx, 3, 1, 0)
	m.GatewayFailure(ctx, "submit")
	m.BatchCompleted(ctx, "archive", 2, 1)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, point := range sum.DataPoints {
				totals[metric.Name] += point.Value
			}
		}
	}
	if totals["vermietify.transitions"] != 2 {
		t.Fatalf("transitions = %d", totals["vermietify.transitions"])
	}
	if totals["vermietify.sweep.submitted"] != 3 || totals["vermietify.sweep.withheld"] != 1 {
		t.Fatalf("sweep counters = %v", totals)
	}
	if totals["vermietify.batch.items"] != 3 {
		t.Fatalf("batch items = %d", totals["vermietify.batch.items"])
	}
}

func TestSetupDisabledIsNoop(t *testing.T) {
	provider, shutdown, err := Setup(context.Background(), false, 0)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := NewEngineMetrics(provider); err != nil {
		t.Fatalf("noop metrics: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
