// Package engine runs the per-frame pipeline: normalize, filter, fuse,
// classify and dispatch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-kursor/internal/log"
	"github.com/teslashibe/go-kursor/pkg/calibration"
	"github.com/teslashibe/go-kursor/pkg/debug"
	"github.com/teslashibe/go-kursor/pkg/dispatch"
	"github.com/teslashibe/go-kursor/pkg/event"
	"github.com/teslashibe/go-kursor/pkg/fusion"
	"github.com/teslashibe/go-kursor/pkg/gesture"
	"github.com/teslashibe/go-kursor/pkg/metrics"
	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// ErrStopped is returned by operations on a stopped engine.
var ErrStopped = errors.New("engine: stopped")

// State is the engine lifecycle state.
type State int

const (
	// Idle means no frame has been processed yet.
	Idle State = iota
	// Tracking means frames drive the cursor and gestures.
	Tracking
	// Paused means the user paused control. Filters keep running so the
	// cursor does not jump on resume.
	Paused
	// Stopped is terminal.
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tracking:
		return "tracking"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Engine wires the pipeline stages together. It is not safe for concurrent
// use; Runner owns an Engine and drives it from one goroutine.
type Engine struct {
	cfg        tracking.Config
	normalizer *tracking.Normalizer
	bank       *tracking.Bank
	fusion     *fusion.Core
	gestures   *gesture.Classifier
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Recorder
	logger     *slog.Logger

	invalidLog *rate.Sometimes
	filterLog  *rate.Sometimes

	state  State
	seq    uint64
	lastTs time.Time
	last   fusion.Result
}

// Option configures an Engine.
type Option func(*Engine)

// WithCalibration sets the initial gaze calibration.
func WithCalibration(a calibration.Affine) Option {
	return func(e *Engine) { e.fusion.SetCalibration(a) }
}

// WithMetrics records pipeline metrics.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine. The configuration is validated first; nothing is
// built from an invalid one.
func New(cfg tracking.Config, d *dispatch.Dispatcher, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d == nil {
		d = dispatch.New(nil)
	}
	e := &Engine{
		cfg:        cfg,
		normalizer: tracking.NewNormalizer(cfg),
		bank:       tracking.NewBank(cfg),
		fusion:     fusion.New(cfg, calibration.Identity()),
		gestures:   gesture.NewClassifier(cfg),
		dispatcher: d,
		invalidLog: &rate.Sometimes{Interval: 2 * time.Second},
		filterLog:  &rate.Sometimes{Interval: 2 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.With("component", "engine")
	}
	return e, nil
}

// Process runs one frame through the pipeline and dispatches the result.
// Invalid observations are dropped and logged; they never fail the frame.
// The returned error is the dispatcher's.
func (e *Engine) Process(ctx context.Context, raw tracking.RawFrame) (dispatch.Batch, error) {
	if e.state == Stopped {
		return dispatch.Batch{}, ErrStopped
	}
	start := time.Now()

	frame, err := e.normalizer.Normalize(raw)
	if err != nil {
		e.reportInvalid(ctx, raw.Seq, err)
	}
	sigs, err := e.bank.Update(frame)
	if err != nil {
		e.filterLog.Do(func() {
			e.logger.Warn("filter reset", "seq", raw.Seq, "error", err)
		})
	}

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = e.nextTimestamp()
	}
	b, err := e.step(ctx, raw.Seq, ts, sigs)
	e.metrics.RecordFrame(ctx, len(frame.Observations), time.Since(start))
	return b, err
}

// Miss advances the pipeline by one frame that never arrived. All
// modalities go stale; it is not an error.
func (e *Engine) Miss(ctx context.Context) (dispatch.Batch, error) {
	if e.state == Stopped {
		return dispatch.Batch{}, ErrStopped
	}
	e.metrics.RecordMissed(ctx)
	return e.step(ctx, e.seq, e.nextTimestamp(), e.bank.Tick())
}

func (e *Engine) nextTimestamp() time.Time {
	if e.lastTs.IsZero() {
		return time.Now()
	}
	return e.lastTs.Add(e.cfg.FrameTimeout)
}

// step runs fusion and the gesture machines over one frame's signals.
// The palm machine runs first so its pause holds the cursor on the same
// frame.
func (e *Engine) step(ctx context.Context, seq uint64, ts time.Time, sigs tracking.Signals) (dispatch.Batch, error) {
	e.seq, e.lastTs = seq, ts
	b := dispatch.Batch{Seq: seq, Timestamp: ts}

	if e.state == Paused {
		b.Cursor = e.fusion.Cursor()
		return b, e.dispatcher.Dispatch(ctx, b)
	}
	if e.state == Idle {
		e.state = Tracking
	}

	hand := sigs.Get(tracking.Hand)
	var events []event.Event

	events = append(events, e.gestures.UpdatePalm(hand, e.fusion.Cursor().Position, ts)...)
	palm := e.gestures.PalmActive()
	e.fusion.SetHold(palm)

	res := e.fusion.Update(sigs, ts)
	events = append(events, res.Events...)
	e.last = res

	events = append(events, e.gestures.Update(gesture.Input{
		Timestamp:   ts,
		Cursor:      res.Cursor.Position,
		CursorValid: res.HasPrimary && res.Cursor.Valid && !palm,
		Hand:        hand,
		Gaze:        sigs.Get(tracking.Gaze),
	})...)

	if palm {
		events = suppressWhilePaused(events)
	}

	if debug.Frames {
		debug.FrameLog("frame",
			"seq", seq,
			"primary", primaryName(res),
			"x", res.Cursor.Position.X,
			"y", res.Cursor.Position.Y,
			"events", len(events))
	}

	b.Cursor = res.Cursor
	b.Events = events
	return b, e.dispatcher.Dispatch(ctx, b)
}

// suppressWhilePaused drops everything that would move the cursor or press
// a button while the palm pause is active. Releases still pass.
func suppressWhilePaused(events []event.Event) []event.Event {
	out := events[:0]
	for _, ev := range events {
		switch ev.Kind {
		case event.Move, event.Click, event.DoubleClick, event.DragStart:
			continue
		}
		out = append(out, ev)
	}
	return out
}

func primaryName(res fusion.Result) string {
	if !res.HasPrimary {
		return "none"
	}
	return res.Primary.String()
}

func (e *Engine) reportInvalid(ctx context.Context, seq uint64, err error) {
	var n int
	for _, err := range unjoin(err) {
		var inv *tracking.InvalidObservationError
		kind := "unknown"
		if errors.As(err, &inv) {
			kind = inv.Kind.String()
		}
		e.metrics.RecordInvalid(ctx, kind)
		n++
	}
	e.invalidLog.Do(func() {
		e.logger.Debug("invalid observations dropped", "seq", seq, "count", n, "error", err)
	})
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// Pause stops cursor and click output until Resume. Gesture machines are
// flushed so a held drag is released before the pause event.
func (e *Engine) Pause(ctx context.Context) (dispatch.Batch, error) {
	switch e.state {
	case Stopped:
		return dispatch.Batch{}, ErrStopped
	case Paused:
		return dispatch.Batch{}, nil
	}
	e.state = Paused
	cursor := e.fusion.Cursor()
	ts := e.controlTimestamp()

	events := e.gestures.Flush(cursor.Position, ts)
	e.fusion.SetHold(false)
	events = append(events, event.New(event.Pause, cursor.Position, ts, event.SourceEngine).WithReason(event.ReasonUser))
	return e.emit(ctx, ts, cursor, events)
}

// Resume continues after a user pause.
func (e *Engine) Resume(ctx context.Context) (dispatch.Batch, error) {
	switch e.state {
	case Stopped:
		return dispatch.Batch{}, ErrStopped
	case Tracking, Idle:
		return dispatch.Batch{}, nil
	}
	e.state = Tracking
	cursor := e.fusion.Cursor()
	ts := e.controlTimestamp()
	return e.emit(ctx, ts, cursor, []event.Event{
		event.New(event.Resume, cursor.Position, ts, event.SourceEngine).WithReason(event.ReasonUser),
	})
}

// Toggle pauses a running engine or resumes a paused one.
func (e *Engine) Toggle(ctx context.Context) (dispatch.Batch, error) {
	if e.state == Paused {
		return e.Resume(ctx)
	}
	return e.Pause(ctx)
}

// Stop flushes every gesture machine, ending any drag, and dispatches a
// terminal pause. Later calls do nothing.
func (e *Engine) Stop(ctx context.Context) (dispatch.Batch, error) {
	if e.state == Stopped {
		return dispatch.Batch{}, nil
	}
	e.state = Stopped
	cursor := e.fusion.Cursor()
	ts := e.controlTimestamp()

	events := e.gestures.Flush(cursor.Position, ts)
	events = append(events, event.New(event.Pause, cursor.Position, ts, event.SourceEngine).WithReason(event.ReasonStopped))
	e.logger.Info("engine stopped", "seq", e.seq, "x", cursor.Position.X, "y", cursor.Position.Y)
	return e.emit(ctx, ts, cursor, events)
}

func (e *Engine) controlTimestamp() time.Time {
	if e.lastTs.IsZero() {
		return time.Now()
	}
	return e.lastTs
}

func (e *Engine) emit(ctx context.Context, ts time.Time, cursor fusion.CursorState, events []event.Event) (dispatch.Batch, error) {
	b := dispatch.Batch{Seq: e.seq, Timestamp: ts, Cursor: cursor, Events: events}
	return b, e.dispatcher.Dispatch(ctx, b)
}

// Reset returns the engine to the state it had after New. Calibration and
// configuration are kept; nothing is dispatched.
func (e *Engine) Reset() {
	e.bank.Reset()
	e.fusion.Reset()
	e.gestures.Reset()
	e.state = Idle
	e.seq = 0
	e.lastTs = time.Time{}
	e.last = fusion.Result{}
}

// Reconfigure validates and applies a new configuration. Filters are
// rebuilt; the cursor and gesture state are kept.
func (e *Engine) Reconfigure(cfg tracking.Config) error {
	if e.state == Stopped {
		return ErrStopped
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	e.normalizer = tracking.NewNormalizer(cfg)
	e.bank = tracking.NewBank(cfg)
	e.fusion.Reconfigure(cfg)
	e.gestures.Reconfigure(cfg)
	e.logger.Info("configuration applied", "smoothing", cfg.Smoothing, "click", cfg.ClickMethods())
	return nil
}

// SetCalibration replaces the gaze calibration.
func (e *Engine) SetCalibration(a calibration.Affine) error {
	if !a.Valid() {
		return fmt.Errorf("engine: calibration is not invertible")
	}
	e.fusion.SetCalibration(a)
	return nil
}

// Config returns the active configuration.
func (e *Engine) Config() tracking.Config {
	return e.cfg
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	return e.state
}

// Cursor returns the fused cursor.
func (e *Engine) Cursor() fusion.CursorState {
	return e.fusion.Cursor()
}

// Status describes the engine after the last processed frame.
type Status struct {
	SessionID     string             `json:"session_id,omitempty"`
	State         State              `json:"state"`
	Seq           uint64             `json:"seq"`
	Timestamp     time.Time          `json:"timestamp"`
	Cursor        fusion.CursorState `json:"cursor"`
	Primary       string             `json:"primary"`
	TrackingLost  bool               `json:"tracking_lost"`
	PalmPaused    bool               `json:"palm_paused"`
	Dragging      bool               `json:"dragging"`
	DwellProgress float64            `json:"dwell_progress"`
	Calibrated    bool               `json:"calibrated"`
	Signals       []SignalStatus     `json:"signals"`
	Gestures      gesture.Snapshot   `json:"gestures"`
	Performance   *metrics.Snapshot  `json:"performance,omitempty"`
}

// SignalStatus is the filtered state of one modality.
type SignalStatus struct {
	Kind        tracking.Modality `json:"kind"`
	Position    tracking.Vec2     `json:"position"`
	Reliability float64           `json:"reliability"`
	Staleness   int               `json:"staleness"`
	Seen        bool              `json:"seen"`
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() Status {
	st := Status{
		State:         e.state,
		Seq:           e.seq,
		Timestamp:     e.lastTs,
		Cursor:        e.fusion.Cursor(),
		Primary:       primaryName(e.last),
		TrackingLost:  e.fusion.Lost(),
		PalmPaused:    e.gestures.PalmActive(),
		Dragging:      e.gestures.Dragging(),
		DwellProgress: e.gestures.DwellProgress(e.lastTs),
		Calibrated:    !e.fusion.Calibration().IsIdentity(),
		Gestures:      e.gestures.Snapshot(),
	}
	sigs := e.bank.Signals()
	for _, m := range tracking.Modalities {
		s := sigs.Get(m)
		st.Signals = append(st.Signals, SignalStatus{
			Kind:        m,
			Position:    s.Position,
			Reliability: s.Reliability,
			Staleness:   s.Staleness,
			Seen:        s.Seen,
		})
	}
	if m := e.metrics.Monitor(); m != nil {
		snap := m.Snapshot()
		st.Performance = &snap
	}
	return st
}
