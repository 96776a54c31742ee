// Package gesture classifies hand, eye and cursor evidence into debounced
// interaction events. Every gesture is an independent state machine with
// the phases Idle, Candidate, Confirmed and Cooldown, advanced by a pure
// transition function once per frame.
package gesture

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// Phase is the phase of one gesture machine.
type Phase int

const (
	Idle Phase = iota
	Candidate
	Confirmed
	Cooldown
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Candidate:
		return "candidate"
	case Confirmed:
		return "confirmed"
	case Cooldown:
		return "cooldown"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is the part shared by every gesture machine.
type State struct {
	Phase   Phase     `json:"phase"`
	Entered time.Time `json:"entered"`
	// Frames counts consecutive frames of supporting evidence.
	Frames int `json:"frames"`
}

func (s State) enter(p Phase, ts time.Time) State {
	return State{Phase: p, Entered: ts}
}

// evidence classifies a filtered signal for the gesture machines.
type evidence int

const (
	// unreliable: below the reliability floor or never seen. Machines reset.
	unreliable evidence = iota
	// stale: reliable but not observed this frame. Machines hold.
	stale
	// fresh: observed this frame. Machines advance.
	fresh
)

func classify(s tracking.FilteredSignal, floor float64) evidence {
	switch {
	case !s.Seen || s.Reliability < floor:
		return unreliable
	case !s.Fresh():
		return stale
	default:
		return fresh
	}
}
