package gesture

import (
	"math"
	"time"

	"github.com/teslashibe/go-kursor/pkg/event"
	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// DwellState is the dwell-click machine. The cursor spread is tracked
// with Welford's running mean and variance; keeping it inside the radius
// for the dwell duration clicks once.
type DwellState struct {
	State
	Mean tracking.Vec2 `json:"mean"`
	m2   float64
}

// Spread returns the standard deviation of the cursor samples so far.
func (s DwellState) Spread() float64 {
	if s.Frames < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.Frames))
}

// Progress returns how far a candidate is toward the dwell duration, in [0,1].
func (s DwellState) Progress(ts time.Time, duration time.Duration) float64 {
	if s.Phase != Candidate || duration <= 0 {
		return 0
	}
	return math.Min(1, float64(ts.Sub(s.Entered))/float64(duration))
}

type dwellParams struct {
	duration time.Duration
	radius   float64
}

func dwellParamsFrom(cfg tracking.Config) dwellParams {
	return dwellParams{duration: cfg.DwellDuration, radius: cfg.DwellRadius}
}

// add folds one cursor sample into the running statistics.
func (s DwellState) add(p tracking.Vec2) DwellState {
	s.Frames++
	delta := p.Sub(s.Mean)
	s.Mean = s.Mean.Add(delta.Scale(1 / float64(s.Frames)))
	s.m2 += delta.X*(p.X-s.Mean.X) + delta.Y*(p.Y-s.Mean.Y)
	return s
}

// stepDwell advances the dwell machine by one frame. valid is false while
// the cursor is not tracking (held or lost), which resets the machine.
func stepDwell(p dwellParams, s DwellState, pos tracking.Vec2, valid bool, ts time.Time) (DwellState, []event.Event) {
	if !valid {
		if s.Phase == Idle {
			return s, nil
		}
		return DwellState{State: s.enter(Idle, ts)}, nil
	}

	if s.Phase == Confirmed {
		s.Phase, s.Entered = Cooldown, ts
	}

	switch s.Phase {
	case Idle:
		s = DwellState{State: s.enter(Candidate, ts)}
		return s.add(pos), nil

	case Candidate:
		if pos.Dist(s.Mean) > p.radius {
			return DwellState{State: s.enter(Idle, ts)}, nil
		}
		s = s.add(pos)
		if s.Spread() > p.radius {
			return DwellState{State: s.enter(Idle, ts)}, nil
		}
		if ts.Sub(s.Entered) >= p.duration {
			next := DwellState{State: s.enter(Confirmed, ts), Mean: s.Mean, m2: s.m2}
			next.Frames = s.Frames
			return next, []event.Event{event.New(event.Click, pos, ts, event.SourceDwell)}
		}

	case Cooldown:
		// Stay quiet until the cursor leaves the spot it clicked.
		if pos.Dist(s.Mean) > p.radius {
			return DwellState{State: s.enter(Idle, ts)}, nil
		}
	}
	return s, nil
}
