package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	internallog "github.com/teslashibe/go-kursor/internal/log"
	"github.com/teslashibe/go-kursor/pkg/event"
	"github.com/teslashibe/go-kursor/pkg/metrics"
	"github.com/teslashibe/go-kursor/pkg/tracking"
)

var ts = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func TestDispatcher_OrdersMoveFirst(t *testing.T) {
	rec := &Recorder{}
	d := New(rec, WithSink(rec), WithLogger(internallog.Discard()))

	p := tracking.Vec2{X: 0.5, Y: 0.5}
	err := d.Dispatch(context.Background(), Batch{
		Seq: 7,
		Events: []event.Event{
			event.New(event.Click, p, ts, event.SourcePinch),
			event.New(event.Move, p, ts, event.SourceFusion),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := rec.Events()
	if len(got) != 2 || got[0].Kind != event.Move || got[1].Kind != event.Click {
		t.Errorf("expected [move click], got %v", got)
	}
	batches := rec.Batches()
	if len(batches) != 1 || batches[0].Seq != 7 {
		t.Errorf("sink should see the batch, got %+v", batches)
	}
}

func TestDispatcher_EmptyBatchSkipsInjector(t *testing.T) {
	calls := 0
	inj := InjectorFunc(func(context.Context, []event.Event) error {
		calls++
		return nil
	})
	sink := &Recorder{}
	d := New(inj, WithSink(sink), WithLogger(internallog.Discard()))

	if err := d.Dispatch(context.Background(), Batch{Seq: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 0 {
		t.Errorf("injector called %d times for an empty batch", calls)
	}
	if len(sink.Batches()) != 1 {
		t.Error("sinks should still see cursor-only batches")
	}
}

func TestDispatcher_InjectorErrorIsCounted(t *testing.T) {
	boom := errors.New("no display")
	inj := InjectorFunc(func(context.Context, []event.Event) error { return boom })
	rec, err := metrics.NewRecorder(nil, nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	sink := &Recorder{}
	d := New(inj, WithSink(sink), WithMetrics(rec), WithLogger(internallog.Discard()))

	err = d.Dispatch(context.Background(), Batch{Events: []event.Event{event.New(event.Click, tracking.Vec2{}, ts, event.SourceDwell)}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped injector error, got %v", err)
	}
	if got := rec.Monitor().Snapshot().InjectorErrors; got != 1 {
		t.Errorf("InjectorErrors = %d, want 1", got)
	}
	if len(sink.Batches()) != 1 {
		t.Error("sinks should be notified even when injection fails")
	}
}

func TestLogInjector(t *testing.T) {
	l := LogInjector{Logger: internallog.Discard()}
	err := l.Inject(context.Background(), []event.Event{
		event.New(event.Move, tracking.Vec2{}, ts, event.SourceFusion),
		event.New(event.Pause, tracking.Vec2{}, ts, event.SourceFusion).WithReason(event.ReasonTrackingLost),
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
