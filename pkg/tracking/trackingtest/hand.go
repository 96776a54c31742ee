// Package trackingtest builds synthetic detector output for tests and demos.
package trackingtest

import (
	"time"

	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// Pose selects the hand shape produced by Hand.
type Pose int

const (
	// Point has the index finger extended and the other fingers curled.
	Point Pose = iota
	// Pinch is Point with the thumb tip touching the index tip.
	Pinch
	// Open has all five fingers spread.
	Open
)

// HandSize is the wrist to middle-MCP span of generated hands, in pixels.
const HandSize = 100.0

// Hand returns 21 landmarks in pixels for an upright hand whose index
// fingertip is at (tipX, tipY).
func Hand(tipX, tipY float64, pose Pose) []tracking.Point3D {
	// Offsets from the wrist; fingers point toward -Y.
	off := [tracking.NumHandLandmarks][2]float64{
		{0, 0},       // wrist
		{-30, -30},   // thumb cmc
		{-50, -55},   // thumb mcp
		{-65, -80},   // thumb ip
		{-80, -100},  // thumb tip
		{-25, -95},   // index mcp
		{-28, -140},  // index pip
		{-30, -165},  // index dip
		{-32, -185},  // index tip
		{0, -100},    // middle mcp
		{0, -145},    // middle pip
		{0, -120},    // middle dip
		{0, -110},    // middle tip
		{22, -92},    // ring mcp
		{25, -135},   // ring pip
		{25, -115},   // ring dip
		{22, -105},   // ring tip
		{42, -80},    // pinky mcp
		{48, -115},   // pinky pip
		{46, -100},   // pinky dip
		{42, -90},    // pinky tip
	}

	switch pose {
	case Pinch:
		off[tracking.ThumbTip] = [2]float64{-35, -178}
	case Open:
		off[11] = [2]float64{0, -170}
		off[tracking.MiddleTip] = [2]float64{0, -195}
		off[15] = [2]float64{26, -160}
		off[tracking.RingTip] = [2]float64{27, -180}
		off[19] = [2]float64{50, -135}
		off[tracking.PinkyTip] = [2]float64{52, -150}
	}

	idx := off[tracking.IndexTip]
	wx, wy := tipX-idx[0], tipY-idx[1]

	lm := make([]tracking.Point3D, tracking.NumHandLandmarks)
	for i, o := range off {
		lm[i] = tracking.Point3D{X: wx + o[0], Y: wy + o[1]}
	}
	return lm
}

// HandFrame returns a raw frame holding a single hand observation.
func HandFrame(seq uint64, ts time.Time, width, height int, conf, tipX, tipY float64, pose Pose) tracking.RawFrame {
	return tracking.RawFrame{
		Seq:       seq,
		Timestamp: ts,
		Width:     width,
		Height:    height,
		Observations: []tracking.RawObservation{
			{Kind: tracking.Hand, Confidence: conf, Hand: Hand(tipX, tipY, pose)},
		},
	}
}

// Clock hands out timestamps spaced by a fixed frame interval.
type Clock struct {
	Now      time.Time
	Interval time.Duration
}

// NewClock starts a clock at a fixed reference time.
func NewClock(interval time.Duration) *Clock {
	return &Clock{Now: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), Interval: interval}
}

// Next advances the clock by one interval and returns the new time.
func (c *Clock) Next() time.Time {
	c.Now = c.Now.Add(c.Interval)
	return c.Now
}
