package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-kursor/internal/log"
	"github.com/teslashibe/go-kursor/pkg/calibration"
	"github.com/teslashibe/go-kursor/pkg/dispatch"
	"github.com/teslashibe/go-kursor/pkg/metrics"
	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// ErrNotRunning is returned by control calls once the runner has exited.
var ErrNotRunning = errors.New("engine: runner not running")

type request struct {
	fn   func(*Engine) error
	done chan error
}

// Runner owns an Engine and drives it from a single goroutine: frames
// from the handoff, timeouts as missing frames, and control requests
// queued by other goroutines.
type Runner struct {
	engine    *Engine
	handoff   *Handoff
	metrics   *metrics.Recorder
	logger    *slog.Logger
	sessionID string

	control chan request
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once

	status   atomic.Pointer[Status]
	onStatus func(Status)
	dropLog  rate.Sometimes
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerMetrics records handoff drops.
func WithRunnerMetrics(m *metrics.Recorder) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithRunnerLogger sets the logger. The session ID is added to it.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithStatusCallback is called on the processing goroutine after every
// frame and control request. It must not block.
func WithStatusCallback(fn func(Status)) RunnerOption {
	return func(r *Runner) { r.onStatus = fn }
}

// NewRunner creates a runner. Frames are offered through Offer or directly
// on h.
func NewRunner(e *Engine, h *Handoff, opts ...RunnerOption) *Runner {
	if h == nil {
		h = NewHandoff()
	}
	r := &Runner{
		engine:    e,
		handoff:   h,
		sessionID: uuid.NewString(),
		control:   make(chan request),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		dropLog:   rate.Sometimes{Interval: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.With("component", "runner")
	}
	r.logger = r.logger.With("session", r.sessionID)
	r.publish()
	return r
}

// SessionID identifies this run in logs and on the dashboard.
func (r *Runner) SessionID() string {
	return r.sessionID
}

// Offer hands a frame to the processing goroutine without blocking. An
// undelivered older frame is dropped.
func (r *Runner) Offer(f tracking.RawFrame) {
	if r.handoff.Offer(f) {
		r.metrics.RecordDropped(context.Background(), 1)
		r.dropLog.Do(func() {
			r.logger.Debug("frame dropped, processing is behind", "seq", f.Seq, "dropped", r.handoff.Dropped())
		})
	}
}

// Run processes frames until ctx is done or Stop is called. On exit the
// engine is stopped, which releases any drag and dispatches the terminal
// pause.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)

	timeout := r.engine.Config().FrameTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	r.logger.Info("runner started", "frame_timeout", timeout, "click", r.engine.Config().ClickMethods())

	for {
		select {
		case <-ctx.Done():
			r.shutdown(ctx)
			return ctx.Err()

		case <-r.stop:
			r.shutdown(ctx)
			return nil

		case <-r.handoff.Done():
			r.shutdown(ctx)
			return nil

		case req := <-r.control:
			req.done <- req.fn(r.engine)
			timeout = r.engine.Config().FrameTimeout
			r.publish()

		case <-r.handoff.Ready():
			frame, ok := r.handoff.Take()
			if !ok {
				continue
			}
			b, err := r.engine.Process(ctx, frame)
			r.dispatchFailed("frame", frame.Seq, b, err)
			r.publish()
			resetTimer(timer, timeout)

		case <-timer.C:
			b, err := r.engine.Miss(ctx)
			r.dispatchFailed("miss", b.Seq, b, err)
			r.publish()
			timer.Reset(timeout)
		}
	}
}

func (r *Runner) dispatchFailed(source string, seq uint64, b dispatch.Batch, err error) {
	if err == nil || errors.Is(err, ErrStopped) {
		return
	}
	r.logger.Debug(source+" dispatch failed", "seq", seq, "events", len(b.Events), "error", err)
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func (r *Runner) shutdown(ctx context.Context) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if _, err := r.engine.Stop(stopCtx); err != nil {
		r.logger.Warn("terminal events not delivered", "error", err)
	}
	r.publish()
	r.logger.Info("runner stopped")
}

// Stop ends Run. It is safe to call more than once.
func (r *Runner) Stop() {
	r.once.Do(func() { close(r.stop) })
}

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) publish() {
	st := r.engine.Status()
	st.SessionID = r.sessionID
	r.status.Store(&st)
	if r.onStatus != nil {
		r.onStatus(st)
	}
}

// Status returns the snapshot published after the last frame. Safe from
// any goroutine.
func (r *Runner) Status() Status {
	if st := r.status.Load(); st != nil {
		return *st
	}
	return Status{SessionID: r.sessionID}
}

// Do runs fn on the processing goroutine and waits for it.
func (r *Runner) Do(ctx context.Context, fn func(*Engine) error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case r.control <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrNotRunning
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause pauses cursor and click output.
func (r *Runner) Pause(ctx context.Context) error {
	return r.Do(ctx, func(e *Engine) error {
		_, err := e.Pause(ctx)
		return err
	})
}

// Resume resumes after Pause.
func (r *Runner) Resume(ctx context.Context) error {
	return r.Do(ctx, func(e *Engine) error {
		_, err := e.Resume(ctx)
		return err
	})
}

// Toggle flips between paused and tracking.
func (r *Runner) Toggle(ctx context.Context) error {
	return r.Do(ctx, func(e *Engine) error {
		_, err := e.Toggle(ctx)
		return err
	})
}

// Reconfigure validates and applies cfg on the processing goroutine.
func (r *Runner) Reconfigure(ctx context.Context, cfg tracking.Config) error {
	return r.Do(ctx, func(e *Engine) error { return e.Reconfigure(cfg) })
}

// SetCalibration replaces the gaze calibration.
func (r *Runner) SetCalibration(ctx context.Context, a calibration.Affine) error {
	return r.Do(ctx, func(e *Engine) error { return e.SetCalibration(a) })
}

// Tuning returns the current tunables.
func (r *Runner) Tuning(ctx context.Context) (TuningParams, error) {
	var p TuningParams
	err := r.Do(ctx, func(e *Engine) error {
		p = Tuning(e.Config())
		return nil
	})
	return p, err
}

// ApplyTuning applies runtime tuning and returns the resulting tunables.
func (r *Runner) ApplyTuning(ctx context.Context, p TuningParams) (TuningParams, error) {
	var out TuningParams
	err := r.Do(ctx, func(e *Engine) error {
		if err := e.ApplyTuning(p); err != nil {
			return err
		}
		out = Tuning(e.Config())
		return nil
	})
	return out, err
}
