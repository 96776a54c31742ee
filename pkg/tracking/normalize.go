package tracking

import (
	"errors"
	"math"
)

// Normalizer maps raw detector output into the shared normalized screen
// frame. It keeps no state between frames.
type Normalizer struct {
	cfg Config
}

// NewNormalizer creates a normalizer for the given configuration
func NewNormalizer(config Config) *Normalizer {
	return &Normalizer{cfg: config}
}

// Normalize converts a raw frame. Invalid observations are left out of the
// returned frame and reported through the joined error, which always
// wraps ErrInvalidObservation. The frame is usable even when err != nil.
// When a frame carries several observations of one modality the most
// confident valid one wins.
func (n *Normalizer) Normalize(raw RawFrame) (Frame, error) {
	out := Frame{
		Seq:          raw.Seq,
		Timestamp:    raw.Timestamp,
		Observations: make([]Observation, 0, len(raw.Observations)),
	}

	var errs []error
	var best [numModalities]int
	for i := range best {
		best[i] = -1
	}

	for _, ro := range raw.Observations {
		if !ro.Kind.Valid() {
			errs = append(errs, invalid(ro.Kind, "unknown modality"))
			continue
		}
		if !n.enabled(ro.Kind) {
			continue
		}
		obs, err := n.Observation(ro, raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if i := best[obs.Kind]; i >= 0 {
			if obs.Confidence > out.Observations[i].Confidence {
				out.Observations[i] = obs
			}
			continue
		}
		best[obs.Kind] = len(out.Observations)
		out.Observations = append(out.Observations, obs)
	}

	return out, errors.Join(errs...)
}

// Observation normalizes a single raw observation taken from frame.
func (n *Normalizer) Observation(ro RawObservation, frame RawFrame) (Observation, error) {
	if !finite(ro.Confidence) || ro.Confidence < 0 || ro.Confidence > 1 {
		return Observation{}, invalid(ro.Kind, "confidence %v outside [0,1]", ro.Confidence)
	}

	obs := Observation{
		Kind:       ro.Kind,
		Confidence: ro.Confidence,
		Timestamp:  frame.Timestamp,
	}

	var err error
	switch ro.Kind {
	case Head:
		obs.Position, err = n.head(ro.Head)
	case Hand:
		obs.Position, obs.Features, err = n.hand(ro.Hand, frame.Width, frame.Height)
	case Gaze:
		obs.Position, obs.Features, err = n.gaze(ro.Gaze)
	default:
		err = invalid(ro.Kind, "unknown modality")
	}
	if err != nil {
		return Observation{}, err
	}
	return obs, nil
}

func (n *Normalizer) enabled(kind Modality) bool {
	switch kind {
	case Head:
		return n.cfg.HeadEnabled
	case Hand:
		return n.cfg.HandEnabled
	case Gaze:
		return n.cfg.GazeEnabled
	}
	return false
}

func (n *Normalizer) head(pose *HeadPose) (Vec2, error) {
	if pose == nil {
		return Vec2{}, invalid(Head, "missing pose")
	}
	if !finite(pose.Yaw) || !finite(pose.Pitch) || !finite(pose.Roll) {
		return Vec2{}, invalid(Head, "non-finite angle")
	}
	if math.Abs(pose.Yaw) > MaxHeadYaw || math.Abs(pose.Pitch) > MaxHeadPitch {
		return Vec2{}, invalid(Head, "pose yaw=%.1f pitch=%.1f out of range", pose.Yaw, pose.Pitch)
	}

	x := 0.5 + pose.Yaw/(2*n.cfg.HeadRangeYaw)*n.cfg.HeadGainX
	y := 0.5 + pose.Pitch/(2*n.cfg.HeadRangePitch)*n.cfg.HeadGainY
	if n.cfg.MirrorX {
		x = 1 - x
	}
	return Vec2{x, y}.Clamp01(), nil
}

func (n *Normalizer) hand(lm []Point3D, width, height int) (Vec2, Features, error) {
	if len(lm) != NumHandLandmarks {
		return Vec2{}, Features{}, invalid(Hand, "expected %d landmarks, got %d", NumHandLandmarks, len(lm))
	}
	if width <= 0 || height <= 0 {
		return Vec2{}, Features{}, invalid(Hand, "frame size %dx%d", width, height)
	}
	for i, p := range lm {
		if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
			return Vec2{}, Features{}, invalid(Hand, "non-finite landmark %d", i)
		}
	}

	size := planar(lm[Wrist], lm[MiddleMCP])
	if size < 1e-6 {
		return Vec2{}, Features{}, invalid(Hand, "degenerate hand size")
	}

	// Index fingertip in camera space, then the active region stretched
	// over the whole screen.
	tip := lm[IndexTip]
	cx := tip.X / float64(width)
	cy := tip.Y / float64(height)
	if n.cfg.MirrorX {
		cx = 1 - cx
	}
	r := n.cfg.HandRegion
	pos := Vec2{
		X: (cx - r.MinX) / (r.MaxX - r.MinX),
		Y: (cy - r.MinY) / (r.MaxY - r.MinY),
	}.Clamp01()

	ratio := planar(lm[ThumbTip], lm[IndexTip]) / size
	f := Features{
		PinchRatio: ratio,
		OpenPalm:   fingersExtended(lm) && ratio > n.cfg.PinchThreshold+n.cfg.PinchHysteresis,
	}
	return pos, f, nil
}

func (n *Normalizer) gaze(g *GazeSample) (Vec2, Features, error) {
	if g == nil {
		return Vec2{}, Features{}, invalid(Gaze, "missing sample")
	}
	if !finite(g.X) || !finite(g.Y) || !finite(g.EyeOpenness) {
		return Vec2{}, Features{}, invalid(Gaze, "non-finite sample")
	}
	if g.EyeOpenness < 0 {
		return Vec2{}, Features{}, invalid(Gaze, "negative eye openness")
	}

	x := 0.5 + (g.X-0.5)/n.cfg.GazeRangeX
	y := 0.5 + (g.Y-0.5)/n.cfg.GazeRangeY
	if n.cfg.MirrorX {
		x = 1 - x
	}
	// Gaze stays unclamped; calibration is applied during fusion.
	return Vec2{x, y}, Features{EyeOpenness: g.EyeOpenness}, nil
}

// fingersExtended reports whether all five fingers are straight. A finger
// is extended when its tip is farther from the wrist than its PIP joint;
// the thumb is compared against the pinky base instead.
func fingersExtended(lm []Point3D) bool {
	wrist := lm[Wrist]
	for _, f := range [...][2]int{
		{IndexTip, IndexPIP},
		{MiddleTip, MiddlePIP},
		{RingTip, RingPIP},
		{PinkyTip, PinkyPIP},
	} {
		if planar(wrist, lm[f[0]]) <= planar(wrist, lm[f[1]]) {
			return false
		}
	}
	return planar(lm[ThumbTip], lm[PinkyMCP]) > planar(lm[ThumbIP], lm[PinkyMCP])
}

func planar(a, b Point3D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
