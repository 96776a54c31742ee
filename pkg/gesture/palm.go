package gesture

import (
	"time"

	"github.com/teslashibe/go-kursor/pkg/event"
	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// PalmState is the open-palm pause machine. It has no debounce: an open
// palm confirms at once and its disappearance resumes.
type PalmState struct {
	State
}

// Active reports whether the palm pause is in effect.
func (s PalmState) Active() bool {
	return s.Phase == Confirmed
}

// stepPalm advances the palm machine by one frame.
func stepPalm(floor float64, s PalmState, hand tracking.FilteredSignal, pos tracking.Vec2, ts time.Time) (PalmState, []event.Event) {
	open := false
	switch classify(hand, floor) {
	case stale:
		return s, nil
	case fresh:
		open = hand.Features.OpenPalm
	}

	switch {
	case open && s.Phase != Confirmed:
		s.State = s.enter(Confirmed, ts)
		s.Frames = 1
		return s, []event.Event{event.New(event.Pause, pos, ts, event.SourcePalm).WithReason(event.ReasonPalm)}
	case open:
		s.Frames++
	case s.Phase == Confirmed:
		s.State = s.enter(Idle, ts)
		return s, []event.Event{event.New(event.Resume, pos, ts, event.SourcePalm).WithReason(event.ReasonPalm)}
	}
	return s, nil
}
