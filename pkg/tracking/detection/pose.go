package detection

import (
	"math"

	"github.com/teslashibe/go-kursor/pkg/tracking"
)

// Pose estimation constants, tuned against YuNet landmarks on a frontal
// laptop webcam.
const (
	// noseNeutral is where the nose tip sits between the eye line and the
	// mouth line on a level face, as a fraction of that distance.
	noseNeutral = 0.45

	// yawPerOffset converts the nose's horizontal offset from the eye
	// midpoint, in inter-ocular distances, to degrees.
	yawPerOffset = 90.0

	// pitchPerOffset converts the nose's vertical shift, as a fraction of
	// the eye-mouth distance, to degrees.
	pitchPerOffset = 110.0
)

// EstimatePose estimates head orientation from a detection's five
// landmarks. width and height are the image size in pixels, needed so
// distances are measured in square units. Angles are in image terms:
// positive yaw when the nose moves toward the image's right edge,
// positive pitch when it moves down. ok is false when the landmarks are
// missing or degenerate.
func EstimatePose(d Detection, width, height int) (pose tracking.HeadPose, ok bool) {
	if !d.HasLandmarks() || width <= 0 || height <= 0 {
		return tracking.HeadPose{}, false
	}
	px := func(p Point) (float64, float64) {
		return p.X * float64(width), p.Y * float64(height)
	}

	rex, rey := px(d.Landmarks[RightEye])
	lex, ley := px(d.Landmarks[LeftEye])
	nx, ny := px(d.Landmarks[NoseTip])
	rmx, rmy := px(d.Landmarks[RightMouth])
	lmx, lmy := px(d.Landmarks[LeftMouth])

	dx, dy := lex-rex, ley-rey
	iod := math.Hypot(dx, dy)
	if iod < 1 {
		return tracking.HeadPose{}, false
	}
	roll := math.Atan2(dy, dx)

	// Rotate into the face frame so roll does not leak into yaw and pitch.
	cos, sin := math.Cos(-roll), math.Sin(-roll)
	rot := func(x, y float64) (float64, float64) {
		return x*cos - y*sin, x*sin + y*cos
	}
	eyeX, eyeY := rot((rex+lex)/2, (rey+ley)/2)
	noseX, noseY := rot(nx, ny)
	_, mouthY := rot((rmx+lmx)/2, (rmy+lmy)/2)

	span := mouthY - eyeY
	if span < 1 {
		return tracking.HeadPose{}, false
	}

	yaw := (noseX - eyeX) / iod * yawPerOffset
	pitch := ((noseY-eyeY)/span - noseNeutral) * pitchPerOffset

	pose = tracking.HeadPose{
		Yaw:   clamp(yaw, -tracking.MaxHeadYaw, tracking.MaxHeadYaw),
		Pitch: clamp(pitch, -tracking.MaxHeadPitch, tracking.MaxHeadPitch),
		Roll:  roll * 180 / math.Pi,
	}
	return pose, true
}

// Observation converts the best face into a head observation.
func Observation(dets []Detection, width, height int) (tracking.RawObservation, bool) {
	best := SelectBest(dets)
	if best == nil {
		return tracking.RawObservation{}, false
	}
	pose, ok := EstimatePose(*best, width, height)
	if !ok {
		return tracking.RawObservation{}, false
	}
	return tracking.RawObservation{
		Kind:       tracking.Head,
		Confidence: clamp(best.Confidence, 0, 1),
		Head:       &pose,
	}, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
