package gesture

import (
	"time"

	"github.com/teslashibe/go-kursor/pkg/event"
	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// BlinkState is the deliberate-blink machine. It confirms faster than a
// pinch but will not start a new candidate until the minimum gap after
// the previous blink click has passed. With a maximum duration set the
// click fires when the eye reopens, and closures that last longer than
// the maximum are treated as resting eyes.
type BlinkState struct {
	State
	LastClick time.Time `json:"last_click"`
}

type blinkParams struct {
	threshold float64
	confirm   int
	minGap    time.Duration
	maxDur    time.Duration
	floor     float64
}

func blinkParamsFrom(cfg tracking.Config) blinkParams {
	return blinkParams{
		threshold: cfg.BlinkThreshold,
		confirm:   cfg.BlinkConfirmFrames,
		minGap:    cfg.BlinkMinGap,
		maxDur:    cfg.BlinkMaxDuration,
		floor:     cfg.ReliabilityFloor,
	}
}

// stepBlink advances the blink machine by one frame.
func stepBlink(p blinkParams, s BlinkState, gaze tracking.FilteredSignal, pos tracking.Vec2, ts time.Time) (BlinkState, []event.Event) {
	switch classify(gaze, p.floor) {
	case unreliable:
		return BlinkState{State: s.enter(Idle, ts), LastClick: s.LastClick}, nil
	case stale:
		return s, nil
	}

	closed := gaze.Features.EyeOpenness < p.threshold

	if s.Phase == Confirmed {
		s.Phase, s.Entered = Cooldown, ts
	}

	switch s.Phase {
	case Idle:
		if !closed {
			return s, nil
		}
		if !s.LastClick.IsZero() && ts.Sub(s.LastClick) < p.minGap {
			return s, nil
		}
		s.State = s.enter(Candidate, ts)
		s.Frames = 1
		return confirmBlink(p, s, pos, ts)

	case Candidate:
		if !closed {
			if p.maxDur > 0 && s.Frames >= p.confirm {
				return clickBlink(s, pos, ts)
			}
			// Reopened before the debounce: a natural blink.
			s.State = s.enter(Idle, ts)
			return s, nil
		}
		if p.maxDur > 0 && ts.Sub(s.Entered) > p.maxDur {
			// Held too long; wait in Cooldown for the eye to reopen.
			s.State = s.enter(Cooldown, ts)
			return s, nil
		}
		s.Frames++
		return confirmBlink(p, s, pos, ts)

	case Cooldown:
		if !closed {
			s.State = s.enter(Idle, ts)
		}
	}
	return s, nil
}

func confirmBlink(p blinkParams, s BlinkState, pos tracking.Vec2, ts time.Time) (BlinkState, []event.Event) {
	if s.Frames < p.confirm || p.maxDur > 0 {
		return s, nil
	}
	return clickBlink(s, pos, ts)
}

func clickBlink(s BlinkState, pos tracking.Vec2, ts time.Time) (BlinkState, []event.Event) {
	frames := s.Frames
	s.State = s.enter(Confirmed, ts)
	s.Frames = frames
	s.LastClick = ts
	return s, []event.Event{event.New(event.Click, pos, ts, event.SourceBlink)}
}
