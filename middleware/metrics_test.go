package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	mw "github.com/badbayesian/ragonometrics-sub003/middleware"
)

// runWithMeter executes one job through the metrics middleware against a
// manual reader and returns everything it collected.
func runWithMeter(t *testing.T, handlerErr error) metricdata.ResourceMetrics {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := mw.MetricsWithMeter(mp.Meter("test"))

	_ = m(context.Background(), newTestJob(), func(_ context.Context) error {
		return handlerErr
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func attrValue(set attribute.Set, key string) string {
	for _, a := range set.ToSlice() {
		if string(a.Key) == key {
			return a.Value.AsString()
		}
	}
	return ""
}

func TestMetricsDurationHistogram(t *testing.T) {
	rm := runWithMeter(t, nil)

	metric := findMetric(rm, "ragonometrics.job.duration")
	if metric == nil {
		t.Fatal("ragonometrics.job.duration not recorded")
	}
	hist, ok := metric.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("duration data is %T, want Histogram[float64]", metric.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("duration data points = %d, want 1", len(hist.DataPoints))
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("duration count = %d, want 1", got)
	}
}

func TestMetricsExecutionStatus(t *testing.T) {
	tests := []struct {
		name       string
		handlerErr error
		wantStatus string
	}{
		{name: "success", handlerErr: nil, wantStatus: "ok"},
		{name: "failure", handlerErr: errors.New("boom"), wantStatus: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := runWithMeter(t, tt.handlerErr)

			metric := findMetric(rm, "ragonometrics.job.executions")
			if metric == nil {
				t.Fatal("ragonometrics.job.executions not recorded")
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("executions data is %T, want Sum[int64]", metric.Data)
			}
			if len(sum.DataPoints) != 1 {
				t.Fatalf("executions data points = %d, want 1", len(sum.DataPoints))
			}

			dp := sum.DataPoints[0]
			if dp.Value != 1 {
				t.Errorf("executions value = %d, want 1", dp.Value)
			}
			if got := attrValue(dp.Attributes, "status"); got != tt.wantStatus {
				t.Errorf("status attribute = %q, want %q", got, tt.wantStatus)
			}
			if got := attrValue(dp.Attributes, "job_name"); got != "execute-run" {
				t.Errorf("job_name attribute = %q, want %q", got, "execute-run")
			}
			if got := attrValue(dp.Attributes, "queue"); got != "default" {
				t.Errorf("queue attribute = %q, want %q", got, "default")
			}
		})
	}
}

func TestMetricsWithoutProviderIsInert(t *testing.T) {
	// The global-provider form must stay a pass-through when no SDK is
	// installed.
	m := mw.Metrics()

	called := false
	err := m(context.Background(), newTestJob(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not invoked")
	}
}
