// Package event defines the interaction events produced by the engine.
package event

import (
	"fmt"
	"sort"
	"time"

	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// Kind identifies an interaction event.
type Kind string

const (
	Move        Kind = "move"
	Click       Kind = "click"
	DoubleClick Kind = "double-click"
	DragStart   Kind = "drag-start"
	DragEnd     Kind = "drag-end"
	Pause       Kind = "pause"
	Resume      Kind = "resume"
)

// Source names the component that produced an event.
type Source string

const (
	SourceFusion Source = "fusion"
	SourcePinch  Source = "pinch"
	SourceBlink  Source = "blink"
	SourceDwell  Source = "dwell"
	SourcePalm   Source = "palm"
	SourceEngine Source = "engine"
)

// Reasons attached to pause and resume events.
const (
	ReasonTrackingLost     = "tracking-lost"
	ReasonTrackingRestored = "tracking-restored"
	ReasonPalm             = "palm"
	ReasonUser             = "user"
	ReasonStopped          = "stopped"
)

// Event is a single interaction event. Position is the cursor position in
// normalized screen coordinates when the event was generated.
type Event struct {
	Kind      Kind          `json:"kind"`
	Position  tracking.Vec2 `json:"position"`
	Timestamp time.Time     `json:"timestamp"`
	Source    Source        `json:"source,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

func (e Event) String() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s(%s) @(%.3f,%.3f)", e.Kind, e.Reason, e.Position.X, e.Position.Y)
	}
	return fmt.Sprintf("%s @(%.3f,%.3f)", e.Kind, e.Position.X, e.Position.Y)
}

// IsButton reports whether the event presses or releases a button.
func (k Kind) IsButton() bool {
	switch k {
	case Click, DoubleClick, DragStart, DragEnd:
		return true
	}
	return false
}

// New builds an event.
func New(kind Kind, pos tracking.Vec2, ts time.Time, source Source) Event {
	return Event{Kind: kind, Position: pos, Timestamp: ts, Source: source}
}

// WithReason returns a copy of e with reason set.
func (e Event) WithReason(reason string) Event {
	e.Reason = reason
	return e
}

// Order sorts the events of one frame in place: move events first, every
// other event keeps its generation order.
func Order(events []Event) []Event {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Kind == Move && events[j].Kind != Move
	})
	return events
}
