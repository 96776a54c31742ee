// Package fusion combines the filtered modality signals into a single
// cursor position.
package fusion

import (
	"errors"
	"time"

	"github.com/teslashibe/go-kursor/pkg/calibration"
	"github.com/teslashibe/go-kursor/pkg/event"
	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// ErrTrackingLost is reported while no modality has been reliable for the
// configured number of frames. It is informational; the engine keeps running.
var ErrTrackingLost = errors.New("fusion: tracking lost")

// Result is the outcome of one fusion step.
type Result struct {
	Cursor     CursorState
	Target     tracking.Vec2
	Primary    tracking.Modality
	HasPrimary bool
	Lost       bool
	Events     []event.Event
	Err        error
}

// rule is one link of the fallback chain: when applies holds, handle
// produces the result and later rules are skipped.
type rule struct {
	name    string
	applies func(c *Core, sigs *tracking.Signals) bool
	handle  func(c *Core, sigs *tracking.Signals, ts time.Time) Result
}

// Core is the fusion state machine. It owns the cursor and is not safe
// for concurrent use; the engine drives it from a single goroutine.
type Core struct {
	cfg   tracking.Config
	calib calibration.Affine
	ctl   *controller
	chain []rule

	lastTs       time.Time
	lostFrames   int
	lostReported bool
	hold         bool
}

// New creates a fusion core. calib is applied to gaze positions only.
func New(cfg tracking.Config, calib calibration.Affine) *Core {
	c := &Core{
		cfg:   cfg,
		calib: calib,
		ctl:   newController(cfg),
	}
	c.chain = []rule{
		modalityRule(tracking.Hand),
		modalityRule(tracking.Head),
		modalityRule(tracking.Gaze),
		{name: "tracking-lost", applies: func(*Core, *tracking.Signals) bool { return true }, handle: (*Core).lost},
	}
	return c
}

func modalityRule(m tracking.Modality) rule {
	return rule{
		name: m.String(),
		applies: func(c *Core, sigs *tracking.Signals) bool {
			return c.eligible(sigs.Get(m))
		},
		handle: func(c *Core, sigs *tracking.Signals, ts time.Time) Result {
			return c.track(sigs, m, ts)
		},
	}
}

// Update runs one fusion step over the filtered signals of a frame.
func (c *Core) Update(sigs tracking.Signals, ts time.Time) Result {
	var res Result
	for _, r := range c.chain {
		if r.applies(c, &sigs) {
			res = r.handle(c, &sigs, ts)
			break
		}
	}
	c.lastTs = ts
	return res
}

func (c *Core) eligible(s tracking.FilteredSignal) bool {
	return s.Seen && s.Reliability >= c.cfg.ReliabilityFloor && c.weight(s.Kind) > 0
}

func (c *Core) weight(m tracking.Modality) float64 {
	switch m {
	case tracking.Head:
		return c.cfg.HeadWeight
	case tracking.Hand:
		return c.cfg.HandWeight
	case tracking.Gaze:
		return c.cfg.GazeWeight
	}
	return 0
}

// position returns the screen position of a signal, calibrated for gaze.
func (c *Core) position(s tracking.FilteredSignal) tracking.Vec2 {
	if s.Kind == tracking.Gaze {
		return c.calib.Apply(s.Position)
	}
	return s.Position
}

// Target computes the reliability weighted position of all eligible
// modalities, with the primary boosted by PrimaryGain.
func (c *Core) target(sigs *tracking.Signals, primary tracking.Modality) tracking.Vec2 {
	var sum tracking.Vec2
	var total float64
	var n int
	for _, m := range tracking.Modalities {
		s := sigs.Get(m)
		if !c.eligible(s) {
			continue
		}
		n++
		w := s.Reliability * c.weight(m)
		if m == primary {
			w *= c.cfg.PrimaryGain
		}
		sum = sum.Add(c.position(s).Scale(w))
		total += w
	}
	// A lone modality passes through unweighted.
	if n <= 1 || total <= 0 {
		return c.position(sigs.Get(primary))
	}
	return sum.Scale(1 / total)
}

func (c *Core) track(sigs *tracking.Signals, primary tracking.Modality, ts time.Time) Result {
	res := Result{Primary: primary, HasPrimary: true}

	c.lostFrames = 0
	if c.lostReported {
		c.lostReported = false
		res.Events = append(res.Events,
			event.New(event.Resume, c.ctl.State().Position, ts, event.SourceFusion).WithReason(event.ReasonTrackingRestored))
	}

	res.Target = c.target(sigs, primary)

	switch {
	case c.hold:
		c.ctl.Halt(ts)
	case !c.ctl.State().Valid:
		c.ctl.Snap(res.Target, ts)
		res.Events = append(res.Events, event.New(event.Move, c.ctl.State().Position, ts, event.SourceFusion))
	default:
		var dt time.Duration
		if !c.lastTs.IsZero() && !ts.IsZero() {
			dt = ts.Sub(c.lastTs)
		}
		if c.ctl.Update(res.Target, dt, ts) {
			res.Events = append(res.Events, event.New(event.Move, c.ctl.State().Position, ts, event.SourceFusion))
		}
	}

	res.Cursor = c.ctl.State()
	return res
}

// lost handles a frame where nothing is eligible. The cursor is frozen;
// after LostFrames consecutive frames a single pause is emitted.
func (c *Core) lost(_ *tracking.Signals, ts time.Time) Result {
	c.lostFrames++
	res := Result{Cursor: c.ctl.State(), Target: c.ctl.State().Position}

	if c.lostFrames >= c.cfg.LostFrames && !c.lostReported {
		c.lostReported = true
		res.Events = append(res.Events,
			event.New(event.Pause, c.ctl.State().Position, ts, event.SourceFusion).WithReason(event.ReasonTrackingLost))
	}
	if c.lostReported {
		res.Lost = true
		res.Err = ErrTrackingLost
	}
	return res
}

// SetHold freezes (true) or releases (false) the cursor. While held the
// target is still computed but no move is produced.
func (c *Core) SetHold(hold bool) {
	c.hold = hold
}

// Holding reports whether the cursor is held.
func (c *Core) Holding() bool {
	return c.hold
}

// SetCalibration replaces the gaze calibration.
func (c *Core) SetCalibration(calib calibration.Affine) {
	c.calib = calib
}

// Calibration returns the current gaze calibration.
func (c *Core) Calibration() calibration.Affine {
	return c.calib
}

// Cursor returns the current cursor state.
func (c *Core) Cursor() CursorState {
	return c.ctl.State()
}

// Lost reports whether tracking-lost has been signalled and not yet cleared.
func (c *Core) Lost() bool {
	return c.lostReported
}

// Reconfigure applies new tunables without losing the cursor.
func (c *Core) Reconfigure(cfg tracking.Config) {
	c.cfg = cfg
	c.ctl.DeadZone = cfg.DeadZone
	c.ctl.MaxVelocity = cfg.MaxVelocity
	c.ctl.FallbackDt = cfg.FrameInterval
}

// Reset returns the core to its initial state. Calibration is kept.
func (c *Core) Reset() {
	c.ctl.Reset()
	c.lastTs = time.Time{}
	c.lostFrames = 0
	c.lostReported = false
	c.hold = false
}
