package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScopeName is the instrumentation scope of all kursor instruments.
const ScopeName = "github.com/teslashibe/go-kursor"

// Recorder exports pipeline counters through OpenTelemetry and mirrors
// them into a Monitor. A nil *Recorder is a no-op.
type Recorder struct {
	monitor *Monitor

	frames         metric.Int64Counter
	dropped        metric.Int64Counter
	invalid        metric.Int64Counter
	missed         metric.Int64Counter
	events         metric.Int64Counter
	injectorErrors metric.Int64Counter
	frameDuration  metric.Float64Histogram
}

// NewRecorder creates the instruments on meter. A nil meter uses the
// global meter provider.
func NewRecorder(meter metric.Meter, monitor *Monitor) (*Recorder, error) {
	if meter == nil {
		meter = otel.Meter(ScopeName)
	}
	if monitor == nil {
		monitor = NewMonitor(30)
	}
	r := &Recorder{monitor: monitor}

	var err error
	if r.frames, err = meter.Int64Counter("kursor.frames",
		metric.WithDescription("Frames processed by the engine"),
		metric.WithUnit("{frame}")); err != nil {
		return nil, err
	}
	if r.dropped, err = meter.Int64Counter("kursor.frames.dropped",
		metric.WithDescription("Frames replaced in the handoff before processing"),
		metric.WithUnit("{frame}")); err != nil {
		return nil, err
	}
	if r.invalid, err = meter.Int64Counter("kursor.observations.invalid",
		metric.WithDescription("Observations rejected during normalization"),
		metric.WithUnit("{observation}")); err != nil {
		return nil, err
	}
	if r.missed, err = meter.Int64Counter("kursor.frames.missed",
		metric.WithDescription("Frame waits that timed out"),
		metric.WithUnit("{frame}")); err != nil {
		return nil, err
	}
	if r.events, err = meter.Int64Counter("kursor.events",
		metric.WithDescription("Interaction events dispatched"),
		metric.WithUnit("{event}")); err != nil {
		return nil, err
	}
	if r.injectorErrors, err = meter.Int64Counter("kursor.injector.errors",
		metric.WithDescription("Failed event injections"),
		metric.WithUnit("{error}")); err != nil {
		return nil, err
	}
	if r.frameDuration, err = meter.Float64Histogram("kursor.frame.duration",
		metric.WithDescription("Time to process one frame"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05)); err != nil {
		return nil, err
	}
	return r, nil
}

// Monitor returns the rolling summary.
func (r *Recorder) Monitor() *Monitor {
	if r == nil {
		return nil
	}
	return r.monitor
}

// RecordFrame records one processed frame and how long it took.
func (r *Recorder) RecordFrame(ctx context.Context, modalities int, took time.Duration) {
	if r == nil {
		return
	}
	r.frames.Add(ctx, 1, metric.WithAttributes(attribute.Int("modalities", modalities)))
	r.frameDuration.Record(ctx, took.Seconds())
	r.monitor.ObserveFrame(time.Now(), took)
}

// RecordDropped records frames lost to the single-slot handoff.
func (r *Recorder) RecordDropped(ctx context.Context, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.dropped.Add(ctx, int64(n))
	r.monitor.AddDropped(uint64(n))
}

// RecordInvalid records observations rejected by the normalizer.
func (r *Recorder) RecordInvalid(ctx context.Context, kind string) {
	if r == nil {
		return
	}
	r.invalid.Add(ctx, 1, metric.WithAttributes(attribute.String("modality", kind)))
	r.monitor.AddInvalid(1)
}

// RecordMissed records a frame timeout.
func (r *Recorder) RecordMissed(ctx context.Context) {
	if r == nil {
		return
	}
	r.missed.Add(ctx, 1)
	r.monitor.AddMissed(1)
}

// RecordEvent records one dispatched event of the given kind.
func (r *Recorder) RecordEvent(ctx context.Context, kind string) {
	if r == nil {
		return
	}
	r.events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	r.monitor.AddEvents(1)
}

// RecordInjectorError records a failed injection.
func (r *Recorder) RecordInjectorError(ctx context.Context) {
	if r == nil {
		return
	}
	r.injectorErrors.Add(ctx, 1)
	r.monitor.AddInjectorError()
}
