package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
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

func TestObserveStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ObserveStage(ctx, "transcription", 120*time.Millisecond)
	m.ObserveStage(ctx, "generation", 800*time.Millisecond)
	m.ObserveStage(ctx, "generation", 650*time.Millisecond)

	rm := collect(t, reader)
	found := findMetric(rm, "parley.turn.stage.duration")
	if found == nil {
		t.Fatal("stage duration histogram not found")
	}

	hist, ok := found.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data type = %T, want Histogram[float64]", found.Data)
	}
	byStage := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		stage, _ := dp.Attributes.Value(attribute.Key("stage"))
		byStage[stage.AsString()] = dp.Count
	}
	if byStage["transcription"] != 1 || byStage["generation"] != 2 {
		t.Errorf("counts by stage = %v", byStage)
	}
}

func TestCountTurn(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.CountTurn(ctx, "ok")
	m.CountTurn(ctx, "ok")
	m.CountTurn(ctx, "transcription_error")

	rm := collect(t, reader)
	found := findMetric(rm, "parley.turns")
	if found == nil {
		t.Fatal("turns counter not found")
	}

	sum, ok := found.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("data type = %T, want Sum[int64]", found.Data)
	}
	byStatus := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		byStatus[status.AsString()] = dp.Value
	}
	if byStatus["ok"] != 2 || byStatus["transcription_error"] != 1 {
		t.Errorf("counts by status = %v", byStatus)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SessionStarted(ctx)
	m.SessionStarted(ctx)
	m.SessionEnded(ctx)

	rm := collect(t, reader)
	found := findMetric(rm, "parley.active_sessions")
	if found == nil {
		t.Fatal("active sessions gauge not found")
	}

	sum, ok := found.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("data type = %T, want Sum[int64]", found.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1 {
		t.Errorf("active sessions = %d, want 1", total)
	}
}

func TestWatchBufferDepth(t *testing.T) {
	m, reader := newTestMetrics(t)

	depth := 7
	unwatch := m.WatchBufferDepth("session-1", func() int { return depth })

	rm := collect(t, reader)
	found := findMetric(rm, "parley.frame_buffer.depth")
	if found == nil {
		t.Fatal("buffer depth gauge not found")
	}
	gauge, ok := found.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("data type = %T, want Gauge[int64]", found.Data)
	}
	if len(gauge.DataPoints) != 1 || gauge.DataPoints[0].Value != 7 {
		t.Errorf("data points = %+v, want one observation of 7", gauge.DataPoints)
	}
	session, _ := gauge.DataPoints[0].Attributes.Value(attribute.Key("session"))
	if session.AsString() != "session-1" {
		t.Errorf("session attribute = %q", session.AsString())
	}

	// After unwatching, the gauge reports nothing for the session.
	unwatch()
	rm = collect(t, reader)
	if found = findMetric(rm, "parley.frame_buffer.depth"); found != nil {
		if g, ok := found.Data.(metricdata.Gauge[int64]); ok && len(g.DataPoints) != 0 {
			t.Errorf("gauge still reporting after unwatch: %+v", g.DataPoints)
		}
	}
}
