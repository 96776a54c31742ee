package gesture

import (
	"time"

	"github.com/teslashibe/go-kursor/pkg/event"
	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// PinchState is the thumb-index pinch machine. A confirmed pinch clicks;
// one confirmed within the double-click window of the previous click
// becomes a double-click. Holding the pinch long enough starts a drag.
type PinchState struct {
	State
	LastClick time.Time `json:"last_click"`
	Dragging  bool      `json:"dragging"`
}

type pinchParams struct {
	threshold  float64
	hysteresis float64
	confirm    int
	dragHold   int
	window     time.Duration
	floor      float64
}

func pinchParamsFrom(cfg tracking.Config) pinchParams {
	return pinchParams{
		threshold:  cfg.PinchThreshold,
		hysteresis: cfg.PinchHysteresis,
		confirm:    cfg.PinchConfirmFrames,
		dragHold:   cfg.DragHoldFrames,
		window:     cfg.DoubleClickWindow,
		floor:      cfg.ReliabilityFloor,
	}
}

// stepPinch advances the pinch machine by one frame.
func stepPinch(p pinchParams, s PinchState, hand tracking.FilteredSignal, pos tracking.Vec2, ts time.Time) (PinchState, []event.Event) {
	switch classify(hand, p.floor) {
	case unreliable:
		return resetPinch(s, pos, ts)
	case stale:
		return s, nil
	}

	ratio := hand.Features.PinchRatio
	closed := ratio < p.threshold
	released := ratio > p.threshold+p.hysteresis

	if s.Phase == Confirmed {
		s.Phase, s.Entered = Cooldown, ts
	}

	switch s.Phase {
	case Idle:
		if !closed {
			return s, nil
		}
		s.State = s.enter(Candidate, ts)
		s.Frames = 1
		return confirmPinch(p, s, pos, ts)

	case Candidate:
		if !closed {
			s.State = s.enter(Idle, ts)
			return s, nil
		}
		s.Frames++
		return confirmPinch(p, s, pos, ts)

	case Cooldown:
		if released {
			return resetPinch(s, pos, ts)
		}
		if !closed {
			// Inside the hysteresis band: neither held nor released.
			return s, nil
		}
		s.Frames++
		if p.dragHold > 0 && !s.Dragging && s.Frames >= p.dragHold {
			s.Dragging = true
			return s, []event.Event{event.New(event.DragStart, pos, ts, event.SourcePinch)}
		}
	}
	return s, nil
}

func confirmPinch(p pinchParams, s PinchState, pos tracking.Vec2, ts time.Time) (PinchState, []event.Event) {
	if s.Frames < p.confirm {
		return s, nil
	}
	frames := s.Frames
	s.State = s.enter(Confirmed, ts)
	s.Frames = frames

	kind := event.Click
	if !s.LastClick.IsZero() && ts.Sub(s.LastClick) <= p.window {
		kind = event.DoubleClick
		s.LastClick = time.Time{}
	} else {
		s.LastClick = ts
	}
	return s, []event.Event{event.New(kind, pos, ts, event.SourcePinch)}
}

// resetPinch returns to Idle, releasing a drag if one is active.
func resetPinch(s PinchState, pos tracking.Vec2, ts time.Time) (PinchState, []event.Event) {
	var out []event.Event
	if s.Dragging {
		out = append(out, event.New(event.DragEnd, pos, ts, event.SourcePinch))
	}
	if s.Phase == Idle && !s.Dragging {
		return s, nil
	}
	return PinchState{State: s.enter(Idle, ts), LastClick: s.LastClick}, out
}
