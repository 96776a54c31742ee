package gesture

import (
	"time"

	"github.com/teslashibe/go-kursor/pkg/event"
	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// Input is the per-frame evidence for the click machines.
type Input struct {
	Timestamp time.Time
	// Cursor is the fused cursor position after this frame.
	Cursor tracking.Vec2
	// CursorValid is false while the cursor is held or tracking is lost.
	CursorValid bool
	Hand        tracking.FilteredSignal
	Gaze        tracking.FilteredSignal
}

// Snapshot is a copy of every machine's state.
type Snapshot struct {
	Pinch PinchState `json:"pinch"`
	Blink BlinkState `json:"blink"`
	Dwell DwellState `json:"dwell"`
	Palm  PalmState  `json:"palm"`
}

// Classifier runs the four gesture machines. The palm machine is stepped
// separately, before fusion, so that a palm pause can hold the cursor on
// the same frame it appears. Not safe for concurrent use.
type Classifier struct {
	cfg tracking.Config

	pinch PinchState
	blink BlinkState
	dwell DwellState
	palm  PalmState
}

// NewClassifier creates a classifier with every machine Idle.
func NewClassifier(cfg tracking.Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// UpdatePalm steps the palm machine.
func (c *Classifier) UpdatePalm(hand tracking.FilteredSignal, cursor tracking.Vec2, ts time.Time) []event.Event {
	if !c.cfg.PalmEnabled {
		return c.flushPalm(cursor, ts)
	}
	var out []event.Event
	c.palm, out = stepPalm(c.cfg.ReliabilityFloor, c.palm, hand, cursor, ts)
	return out
}

// PalmActive reports whether the palm pause is confirmed.
func (c *Classifier) PalmActive() bool {
	return c.palm.Active()
}

// Update steps the pinch, blink and dwell machines and returns their
// events in that order.
func (c *Classifier) Update(in Input) []event.Event {
	var out, evs []event.Event

	if c.cfg.PinchEnabled {
		c.pinch, evs = stepPinch(pinchParamsFrom(c.cfg), c.pinch, in.Hand, in.Cursor, in.Timestamp)
	} else {
		c.pinch, evs = resetPinch(c.pinch, in.Cursor, in.Timestamp)
	}
	out = append(out, evs...)

	if c.cfg.BlinkEnabled {
		c.blink, evs = stepBlink(blinkParamsFrom(c.cfg), c.blink, in.Gaze, in.Cursor, in.Timestamp)
		out = append(out, evs...)
	} else if c.blink.Phase != Idle {
		c.blink = BlinkState{State: c.blink.enter(Idle, in.Timestamp), LastClick: c.blink.LastClick}
	}

	if c.cfg.DwellEnabled {
		c.dwell, evs = stepDwell(dwellParamsFrom(c.cfg), c.dwell, in.Cursor, in.CursorValid, in.Timestamp)
		out = append(out, evs...)
	} else if c.dwell.Phase != Idle {
		c.dwell = DwellState{State: c.dwell.enter(Idle, in.Timestamp)}
	}

	return out
}

// Flush returns every machine to Idle. A drag in progress is ended so no
// button stays pressed. A confirmed palm pause is dropped without a resume:
// Flush is followed by a pause of its own.
func (c *Classifier) Flush(cursor tracking.Vec2, ts time.Time) []event.Event {
	var out []event.Event
	var evs []event.Event

	c.pinch, evs = resetPinch(c.pinch, cursor, ts)
	out = append(out, evs...)
	c.pinch.LastClick = time.Time{}

	c.blink = BlinkState{State: c.blink.enter(Idle, ts)}
	c.dwell = DwellState{State: c.dwell.enter(Idle, ts)}
	c.palm = PalmState{State: c.palm.enter(Idle, ts)}
	return out
}

func (c *Classifier) flushPalm(cursor tracking.Vec2, ts time.Time) []event.Event {
	if !c.palm.Active() {
		c.palm = PalmState{}
		return nil
	}
	c.palm = PalmState{State: c.palm.enter(Idle, ts)}
	return []event.Event{event.New(event.Resume, cursor, ts, event.SourcePalm).WithReason(event.ReasonPalm)}
}

// Dragging reports whether a pinch drag is in progress.
func (c *Classifier) Dragging() bool {
	return c.pinch.Dragging
}

// Snapshot returns the state of every machine.
func (c *Classifier) Snapshot() Snapshot {
	return Snapshot{Pinch: c.pinch, Blink: c.blink, Dwell: c.dwell, Palm: c.palm}
}

// DwellProgress returns the dwell candidate's progress toward a click.
func (c *Classifier) DwellProgress(ts time.Time) float64 {
	return c.dwell.Progress(ts, c.cfg.DwellDuration)
}

// Reconfigure applies new tunables. Machine state is kept; machines whose
// gesture was disabled are reset on the next Update.
func (c *Classifier) Reconfigure(cfg tracking.Config) {
	c.cfg = cfg
}

// Reset discards all state without emitting events.
func (c *Classifier) Reset() {
	c.pinch = PinchState{}
	c.blink = BlinkState{}
	c.dwell = DwellState{}
	c.palm = PalmState{}
}
