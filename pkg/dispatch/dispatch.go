// Package dispatch forwards each frame's ordered interaction events to the
// input-injection collaborator and to observers.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-kursor/internal/log"
	"github.com/teslashibe/go-kursor/pkg/event"
	"github.com/teslashibe/go-kursor/pkg/fusion"
	"github.com/teslashibe/go-kursor/pkg/metrics"
)

// Injector moves the OS cursor and presses buttons. Implementations live
// outside the engine; events arrive already ordered.
type Injector interface {
	Inject(ctx context.Context, events []event.Event) error
}

// InjectorFunc adapts a function to Injector.
type InjectorFunc func(ctx context.Context, events []event.Event) error

func (f InjectorFunc) Inject(ctx context.Context, events []event.Event) error {
	return f(ctx, events)
}

// Batch is everything one frame produced.
type Batch struct {
	Seq       uint64             `json:"seq"`
	Timestamp time.Time          `json:"timestamp"`
	Cursor    fusion.CursorState `json:"cursor"`
	Events    []event.Event      `json:"events"`
}

// Sink observes dispatched batches. Publish must not block.
type Sink interface {
	Publish(b Batch)
}

// Dispatcher orders events and hands them on. It makes no decisions.
type Dispatcher struct {
	injector Injector
	metrics  *metrics.Recorder
	logger   *slog.Logger
	errLog   *rate.Sometimes

	mu    sync.RWMutex
	sinks []Sink
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSink adds an observer.
func WithSink(s Sink) Option {
	return func(d *Dispatcher) { d.sinks = append(d.sinks, s) }
}

// WithMetrics records event counts and injector failures.
func WithMetrics(r *metrics.Recorder) Option {
	return func(d *Dispatcher) { d.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a dispatcher. A nil injector drops events after ordering.
func New(injector Injector, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		injector: injector,
		errLog:   &rate.Sometimes{Interval: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = log.With("component", "dispatch")
	}
	return d
}

// AddSink registers an observer after construction.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Dispatch orders the batch's events (move first) and forwards them. An
// injector error is logged, counted and returned; observers are notified
// regardless.
func (d *Dispatcher) Dispatch(ctx context.Context, b Batch) error {
	event.Order(b.Events)

	var err error
	if len(b.Events) > 0 {
		for _, e := range b.Events {
			d.metrics.RecordEvent(ctx, string(e.Kind))
		}
		if d.injector != nil {
			if err = d.injector.Inject(ctx, b.Events); err != nil {
				err = fmt.Errorf("dispatch: inject frame %d: %w", b.Seq, err)
				d.metrics.RecordInjectorError(ctx)
				d.errLog.Do(func() {
					d.logger.Warn("injector failed", "seq", b.Seq, "events", len(b.Events), "error", err)
				})
			}
		}
	}

	d.mu.RLock()
	sinks := d.sinks
	d.mu.RUnlock()
	for _, s := range sinks {
		s.Publish(b)
	}
	return err
}

// LogInjector writes events to the log instead of moving a real cursor.
// Move events are logged at debug level.
type LogInjector struct {
	Logger *slog.Logger
}

func (l LogInjector) Inject(_ context.Context, events []event.Event) error {
	logger := l.Logger
	if logger == nil {
		logger = log.With("component", "injector")
	}
	for _, e := range events {
		attrs := []any{"kind", e.Kind, "x", e.Position.X, "y", e.Position.Y}
		if e.Source != "" {
			attrs = append(attrs, "source", e.Source)
		}
		if e.Reason != "" {
			attrs = append(attrs, "reason", e.Reason)
		}
		if e.Kind == event.Move {
			logger.Debug("event", attrs...)
			continue
		}
		logger.Info("event", attrs...)
	}
	return nil
}

// Recorder is an Injector and Sink that keeps everything it receives.
// Goroutine-safe.
type Recorder struct {
	mu      sync.Mutex
	events  []event.Event
	batches []Batch
}

func (r *Recorder) Inject(_ context.Context, events []event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *Recorder) Publish(b Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.Events = append([]event.Event(nil), b.Events...)
	r.batches = append(r.batches, b)
}

// Events returns a copy of every injected event.
func (r *Recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

// Batches returns a copy of every published batch.
func (r *Recorder) Batches() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Batch(nil), r.batches...)
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.batches = nil
}
