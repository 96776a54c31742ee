package fusion

import (
	"time"

	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// CursorState is the fused pointer position. Position always lies in
// [0,1]x[0,1]. Velocity is in screen units per second.
type CursorState struct {
	Position tracking.Vec2 `json:"position"`
	Velocity tracking.Vec2 `json:"velocity"`
	Updated  time.Time     `json:"updated"`
	Valid    bool          `json:"valid"`
}

// controller moves the cursor toward a target, ignoring deltas inside the
// dead zone and limiting the step to the maximum velocity.
type controller struct {
	// Limits
	DeadZone    float64 // Ignore deltas smaller than this
	MaxVelocity float64 // Maximum speed, screen units per second
	FallbackDt  time.Duration

	state CursorState
}

func newController(cfg tracking.Config) *controller {
	return &controller{
		DeadZone:    cfg.DeadZone,
		MaxVelocity: cfg.MaxVelocity,
		FallbackDt:  cfg.FrameInterval,
	}
}

// Snap places the cursor directly on target. Used for the first fix.
func (c *controller) Snap(target tracking.Vec2, ts time.Time) {
	c.state = CursorState{
		Position: target.Clamp01(),
		Updated:  ts,
		Valid:    true,
	}
}

// Update steps toward target and reports whether the position changed.
// dt is the time since the previous processed frame.
func (c *controller) Update(target tracking.Vec2, dt time.Duration, ts time.Time) bool {
	if dt <= 0 {
		dt = c.FallbackDt
	}
	c.state.Updated = ts

	delta := target.Sub(c.state.Position)
	dist := delta.Len()

	// Dead zone: small deltas are jitter
	if dist < c.DeadZone {
		c.state.Velocity = tracking.Vec2{}
		return false
	}

	// Rate limit the step
	maxStep := c.MaxVelocity * dt.Seconds()
	if dist > maxStep {
		delta = delta.Scale(maxStep / dist)
	}

	next := c.state.Position.Add(delta).Clamp01()
	if next == c.state.Position {
		c.state.Velocity = tracking.Vec2{}
		return false
	}
	c.state.Velocity = next.Sub(c.state.Position).Scale(1 / dt.Seconds())
	c.state.Position = next
	return true
}

// Halt zeroes the velocity without moving the cursor.
func (c *controller) Halt(ts time.Time) {
	c.state.Velocity = tracking.Vec2{}
	if c.state.Valid {
		c.state.Updated = ts
	}
}

func (c *controller) State() CursorState {
	return c.state
}

func (c *controller) Reset() {
	c.state = CursorState{}
}
