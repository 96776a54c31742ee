package metrics

import (
	"context"
	"math"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMonitor_FPSAndLatency(t *testing.T) {
	m := NewMonitor(10)
	start := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		m.ObserveFrame(start.Add(time.Duration(i)*50*time.Millisecond), time.Duration(i%2+1)*time.Millisecond)
	}

	snap := m.Snapshot()
	if snap.Frames != 25 {
		t.Errorf("Frames = %d, want 25", snap.Frames)
	}
	if math.Abs(snap.FPS-20) > 0.01 {
		t.Errorf("FPS = %v, want 20", snap.FPS)
	}
	if snap.AvgLatency != 1500*time.Microsecond {
		t.Errorf("AvgLatency = %v, want 1.5ms", snap.AvgLatency)
	}
	if snap.MaxLatency != 2*time.Millisecond {
		t.Errorf("MaxLatency = %v, want 2ms", snap.MaxLatency)
	}
}

func TestMonitor_Empty(t *testing.T) {
	snap := NewMonitor(5).Snapshot()
	if snap.FPS != 0 || snap.AvgLatency != 0 {
		t.Errorf("expected zero snapshot, got %+v", snap)
	}
	if got := snap.FormatLatency(); got != "---ms avg | ---ms max" {
		t.Errorf("FormatLatency = %q", got)
	}
}

func TestMonitor_OnUpdate(t *testing.T) {
	m := NewMonitor(5)
	var calls int
	m.OnUpdate(3, func(Snapshot) { calls++ })

	for i := 0; i < 7; i++ {
		m.ObserveFrame(time.Now(), time.Millisecond)
	}
	if calls != 2 {
		t.Errorf("callback fired %d times, want 2", calls)
	}
}

func sumCounter(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: unexpected data type %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestRecorder_ExportsCounters(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(ctx)

	rec, err := NewRecorder(provider.Meter(ScopeName), nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	rec.RecordFrame(ctx, 2, time.Millisecond)
	rec.RecordFrame(ctx, 1, 2*time.Millisecond)
	rec.RecordDropped(ctx, 3)
	rec.RecordInvalid(ctx, "hand")
	rec.RecordEvent(ctx, "move")
	rec.RecordEvent(ctx, "click")
	rec.RecordMissed(ctx)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	tests := []struct {
		name string
		want int64
	}{
		{"kursor.frames", 2},
		{"kursor.frames.dropped", 3},
		{"kursor.observations.invalid", 1},
		{"kursor.events", 2},
		{"kursor.frames.missed", 1},
	}
	for _, tt := range tests {
		if got := sumCounter(t, rm, tt.name); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}

	snap := rec.Monitor().Snapshot()
	if snap.Frames != 2 || snap.Dropped != 3 || snap.Events != 2 {
		t.Errorf("monitor not mirrored: %+v", snap)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var rec *Recorder
	rec.RecordFrame(context.Background(), 1, time.Millisecond)
	rec.RecordEvent(context.Background(), "click")
	if rec.Monitor() != nil {
		t.Error("nil recorder should have no monitor")
	}
}

func TestExporter_Collect(t *testing.T) {
	ctx := context.Background()
	exp := NewExporter()
	defer exp.Shutdown(ctx)

	rec, err := NewRecorder(exp.Provider().Meter(ScopeName), nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	rec.RecordFrame(ctx, 1, time.Millisecond)
	rec.RecordInvalid(ctx, "gaze")
	rec.RecordInvalid(ctx, "gaze")

	points, err := exp.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	var frames, invalid, duration *Point
	for i := range points {
		p := &points[i]
		switch p.Name {
		case "kursor.frames":
			frames = p
		case "kursor.observations.invalid":
			invalid = p
		case "kursor.frame.duration":
			duration = p
		}
		if i > 0 && points[i-1].Name > p.Name {
			t.Errorf("points not sorted: %s before %s", points[i-1].Name, p.Name)
		}
	}
	if frames == nil || frames.Value != 1 {
		t.Errorf("frames = %+v", frames)
	}
	if invalid == nil || invalid.Value != 2 || invalid.Attrs["modality"] == "" {
		t.Errorf("invalid = %+v", invalid)
	}
	if duration == nil || duration.Count != 1 || math.Abs(duration.Value-0.001) > 1e-9 {
		t.Errorf("duration = %+v", duration)
	}
}
